package scheduler

import (
	"fmt"
	"sort"

	"github.com/desi-focalplane/fpanticoll/pkg/coords"
)

// homingOvershoot is how far past the full physical range a homing row
// drives each axis, guaranteeing the hardstop is reached from any start.
const homingOvershoot = 15.0 // deg

// RequestTarget registers one positioner's move request for this schedule.
// The command and its two scalar arguments are resolved into an absolute
// posintTP target; unreachable or out-of-range targets are rejected and
// never enter the request map.
func (p *Petal) RequestTarget(posid string, cmd CommandKind, v1, v2 float64, logNote string) error {
	pos := p.positioners[posid]
	if pos == nil {
		return fmt.Errorf("scheduler: unknown positioner %q", posid)
	}
	if !pos.CtrlEnabled {
		return fmt.Errorf("scheduler: positioner %q has control disabled", posid)
	}
	if _, dup := p.requests[posid]; dup {
		return fmt.Errorf("%w: %s", ErrDuplicateRequest, posid)
	}
	if len(p.directRequested) > 0 && p.AnticollisionMode != ModeFreeze {
		return ErrMixedRequestTypes
	}

	target, err := p.resolveTarget(posid, cmd, v1, v2)
	if err != nil {
		p.log.Debug().Str("posid", posid).Str("command", cmd.String()).Err(err).Msg("request rejected")
		return err
	}

	start := p.expectedCurrentTP(posid)
	delta := coords.DeltaPosintTP(target, start, pos.TargetableRangeT(), pos.TargetableRangeP())

	p.requests[posid] = &request{
		posid:    posid,
		command:  cmd.String(),
		val1:     v1,
		val2:     v2,
		logNote:  logNote,
		deltaTP:  delta,
		targetTP: target,
	}
	p.normalRequested[posid] = true
	p.expectedTP[posid] = target
	p.phase[posid] = PhaseRequested
	p.log.Debug().Str("posid", posid).Str("command", cmd.String()).
		Float64("target_t", target.T).Float64("target_p", target.P).Msg("request registered")
	return nil
}

// RequestDirectDTDP is the expert path: the given posintTP delta is
// registered without the request-level range check and admits no
// anticollision. Its move table still clamps the motion to the targetable
// range when quantized. It may not be mixed with normal requests in one
// schedule except under Freeze mode.
func (p *Petal) RequestDirectDTDP(posid string, dT, dP float64) error {
	pos := p.positioners[posid]
	if pos == nil {
		return fmt.Errorf("scheduler: unknown positioner %q", posid)
	}
	if _, dup := p.requests[posid]; dup {
		return fmt.Errorf("%w: %s", ErrDuplicateRequest, posid)
	}
	if len(p.normalRequested) > 0 && p.AnticollisionMode != ModeFreeze {
		return ErrMixedRequestTypes
	}

	start := p.expectedCurrentTP(posid)
	delta := coords.TP{T: dT, P: dP}
	p.requests[posid] = &request{
		posid:                posid,
		command:              "direct_dTdP",
		val1:                 dT,
		val2:                 dP,
		deltaTP:              delta,
		targetTP:             coords.TP{T: start.T + dT, P: start.P + dP},
		disableAnticollision: true,
	}
	p.directRequested[posid] = true
	p.expectedTP[posid] = p.requests[posid].targetTP
	p.phase[posid] = PhaseRequested
	return nil
}

// RequestHoming registers hardstop-finding moves for the given positioners:
// one large-magnitude row per axis in the toward-hardstop direction, with
// range clamping disabled and anticollision suppressed for these rows. The
// hardstop direction is the low end of each axis's physical range.
func (p *Petal) RequestHoming(posids []string, axis HomingAxis) error {
	sorted := append([]string(nil), posids...)
	sort.Strings(sorted)
	for _, posid := range sorted {
		pos := p.positioners[posid]
		if pos == nil {
			return fmt.Errorf("scheduler: unknown positioner %q", posid)
		}
		if _, dup := p.requests[posid]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateRequest, posid)
		}

		start := p.expectedCurrentTP(posid)
		var delta coords.TP
		if axis == HomingTheta || axis == HomingBoth {
			delta.T = (pos.Calib.PhysicalRangeT[0] - homingOvershoot) - start.T
		}
		if axis == HomingPhi || axis == HomingBoth {
			delta.P = (pos.Calib.PhysicalRangeP[0] - homingOvershoot) - start.P
		}

		p.requests[posid] = &request{
			posid:                posid,
			command:              "homing",
			deltaTP:              delta,
			targetTP:             coords.TP{T: start.T + delta.T, P: start.P + delta.P},
			isHoming:             true,
			disableAnticollision: true,
		}
		p.expectedTP[posid] = coords.TP{T: pos.Calib.PhysicalRangeT[0], P: pos.Calib.PhysicalRangeP[0]}
		p.phase[posid] = PhaseRequested
		p.log.Info().Str("posid", posid).Str("axis", axis.String()).Msg("homing requested")
	}
	return nil
}

// sortedRequestIDs returns every requested posid in ascending order, the
// processing order every schedule pass uses so that order-dependent
// behavior is reproducible.
func (p *Petal) sortedRequestIDs() []string {
	ids := make([]string, 0, len(p.requests))
	for id := range p.requests {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (a HomingAxis) String() string {
	switch a {
	case HomingTheta:
		return "theta"
	case HomingPhi:
		return "phi"
	case HomingBoth:
		return "both"
	default:
		return "unknown"
	}
}
