// Package transport defines the hardware-table artifact and the external
// collaborator boundary to the CAN-bus layer that delivers step counts to
// motor controllers. Only the Go-level struct the collaborator consumes
// and the structured outcome taxonomy it returns live here; the wire codec
// belongs to the petalcontroller.
package transport

import (
	"context"
	"time"

	"github.com/desi-focalplane/fpanticoll/pkg/movetable"
)

// DefaultTimeout is the default hardware-emission timeout; exceeding it is
// surfaced as an unresponsive batch.
const DefaultTimeout = 10 * time.Second

// HardwareTable is the per-positioner artifact handed to the transport
// collaborator.
type HardwareTable struct {
	PosID    string
	CanID    uint32
	BusID    uint32
	Required bool
	Rows     []movetable.HardwareRow
}

// OutcomeKind enumerates the transport's structured response taxonomy.
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomePartialSend
	OutcomeFailSend
	OutcomeFailPowerOff
	OutcomeFailBusOff
	OutcomeFailMoveRate
	OutcomeFailResetRate
	OutcomeFailTempLimit
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "SUCCESS"
	case OutcomePartialSend:
		return "PARTIAL_SEND"
	case OutcomeFailSend:
		return "FAIL_SEND"
	case OutcomeFailPowerOff:
		return "FAIL_POWER_OFF"
	case OutcomeFailBusOff:
		return "FAIL_BUS_OFF"
	case OutcomeFailMoveRate:
		return "FAIL_MOVE_RATE"
	case OutcomeFailResetRate:
		return "FAIL_RESET_RATE"
	case OutcomeFailTempLimit:
		return "FAIL_TEMP_LIMIT"
	default:
		return "UNKNOWN"
	}
}

// PerPositionerStatus is one positioner's disposition within a
// PARTIAL_SEND/FAIL_SEND outcome.
type PerPositionerStatus int

const (
	StatusCleared PerPositionerStatus = iota
	StatusNoResponse
	StatusUnknown
	StatusFailedSend
)

// Outcome is the transport's structured, per-batch response.
type Outcome struct {
	Kind OutcomeKind

	// PerPositioner carries cleared/no_response/unknown/failed-send per
	// posid, populated for OutcomeSuccess/OutcomePartialSend/OutcomeFailSend.
	PerPositioner map[string]PerPositionerStatus

	PowerOffSupplies []string // OutcomeFailPowerOff
	BusOffBuses      []string // OutcomeFailBusOff

	MoveRateCurrent   float64 // OutcomeFailMoveRate
	MoveRateSecUntil  float64
	ResetRateCurrent  float64 // OutcomeFailResetRate
	ResetRateSecUntil float64

	TempLimitByCanID map[uint32]float64 // OutcomeFailTempLimit
}

// Transport is the external hardware collaborator boundary. The scheduler
// treats it as a single synchronous round-trip and never assumes anything
// about its internal wire format.
type Transport interface {
	// SendAndSync delivers tables and blocks for the synchronized execution
	// result, or returns ctx.Err() if ctx is done before a response
	// arrives.
	SendAndSync(ctx context.Context, tables []HardwareTable) (Outcome, error)
}
