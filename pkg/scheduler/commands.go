package scheduler

// CommandKind tags the coordinate frame a request's two scalar arguments
// are expressed in; each kind maps to one transform chain in resolve.go's
// dispatch.
type CommandKind int

const (
	CmdQS CommandKind = iota
	CmdObsXY
	CmdPoslocTP
	CmdPosintTP
	CmdDTdP
	CmdDQdS
	CmdObsdXdY
	CmdPoslocXY
	CmdPoslocdXdY
	CmdPtlXY
)

func (c CommandKind) String() string {
	switch c {
	case CmdQS:
		return "QS"
	case CmdObsXY:
		return "obsXY"
	case CmdPoslocTP:
		return "poslocTP"
	case CmdPosintTP:
		return "posintTP"
	case CmdDTdP:
		return "dTdP"
	case CmdDQdS:
		return "dQdS"
	case CmdObsdXdY:
		return "obsdXdY"
	case CmdPoslocXY:
		return "poslocXY"
	case CmdPoslocdXdY:
		return "poslocdXdY"
	case CmdPtlXY:
		return "ptlXY"
	default:
		return "unknown"
	}
}

// HomingAxis selects which axis (or both) RequestHoming drives to a
// hardstop.
type HomingAxis int

const (
	HomingTheta HomingAxis = iota
	HomingPhi
	HomingBoth
)
