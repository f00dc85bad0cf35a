package scheduler

import (
	"context"
	"fmt"
	"sort"

	"github.com/desi-focalplane/fpanticoll/pkg/movetable"
	"github.com/desi-focalplane/fpanticoll/pkg/positioner"
	"github.com/desi-focalplane/fpanticoll/pkg/transport"
)

// MaxMotorStepsPerRow is the firmware-side bound on one submove's step
// count; a hardware view exceeding it is never sent.
const MaxMotorStepsPerRow = 1 << 20

// ExecuteResult is the structured outcome of SendAndExecuteMoves for the
// non-batch-failure cases.
type ExecuteResult struct {
	Outcome transport.Outcome

	// Updated lists every posid whose stored posintTP was advanced from its
	// cleanup view, in ascending order.
	Updated []string

	// Errors carries per-positioner send/response failures.
	Errors map[string]error
}

func (r *ExecuteResult) addError(posid string, err error) {
	if r.Errors == nil {
		r.Errors = make(map[string]error)
	}
	r.Errors[posid] = err
}

// SendAndExecuteMoves finalizes every table, validates the hardware views,
// emits them to the transport collaborator, and on confirmed execution
// updates each positioner's stored posintTP from its cleanup view. Batch
// failures (power, bus, rate, temperature, timeout) abort with a single
// error and mutate nothing.
func (p *Petal) SendAndExecuteMoves(ctx context.Context, tr transport.Transport) (*ExecuteResult, error) {
	ids := make([]string, 0, len(p.moveTables))
	for id := range p.moveTables {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	tables := make([]transport.HardwareTable, 0, len(ids))
	for _, posid := range ids {
		mt := p.moveTables[posid]
		mt.CalculateTrueMoves()
		hw := mt.HardwareView()
		if err := validateHardwareView(posid, hw); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInternalInvariantViolation, err)
		}
		pos := p.positioners[posid]
		req := p.requests[posid]
		tables = append(tables, transport.HardwareTable{
			PosID:    posid,
			CanID:    pos.CanID,
			BusID:    pos.BusID,
			Required: req != nil && !req.disableAnticollision,
			Rows:     hw,
		})
		p.phase[posid] = PhaseSent
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, transport.DefaultTimeout)
		defer cancel()
	}

	for _, posid := range ids {
		p.phase[posid] = PhaseExecuting
	}
	out, err := tr.SendAndSync(ctx, tables)
	if err != nil {
		p.resetPhases(ids)
		return nil, fmt.Errorf("%w: %v", ErrHardwareUnresponsive, err)
	}

	switch out.Kind {
	case transport.OutcomeFailPowerOff:
		p.resetPhases(ids)
		return nil, fmt.Errorf("%w: supplies %v", ErrPowerOff, out.PowerOffSupplies)
	case transport.OutcomeFailBusOff:
		p.resetPhases(ids)
		return nil, fmt.Errorf("%w: buses %v", ErrBusOff, out.BusOffBuses)
	case transport.OutcomeFailMoveRate:
		p.resetPhases(ids)
		return nil, fmt.Errorf("%w: move rate %.2f, ready in %.1fs", ErrRateLimited, out.MoveRateCurrent, out.MoveRateSecUntil)
	case transport.OutcomeFailResetRate:
		p.resetPhases(ids)
		return nil, fmt.Errorf("%w: reset rate %.2f, ready in %.1fs", ErrRateLimited, out.ResetRateCurrent, out.ResetRateSecUntil)
	case transport.OutcomeFailTempLimit:
		p.resetPhases(ids)
		return nil, fmt.Errorf("%w: %v", ErrTempLimit, out.TempLimitByCanID)
	}

	res := &ExecuteResult{Outcome: out}
	for _, posid := range ids {
		status, known := out.PerPositioner[posid]
		if !known {
			if out.Kind == transport.OutcomeSuccess {
				status = transport.StatusCleared
			} else {
				status = transport.StatusUnknown
			}
		}
		switch status {
		case transport.StatusCleared:
			p.cleanup(posid)
			res.Updated = append(res.Updated, posid)
		case transport.StatusNoResponse:
			res.addError(posid, ErrHardwareUnresponsive)
		case transport.StatusFailedSend:
			res.addError(posid, ErrHardwareSendFailed)
		default:
			res.addError(posid, fmt.Errorf("%w: disposition unknown", ErrHardwareSendFailed))
		}
		p.phase[posid] = PhaseIdle
	}
	return res, nil
}

func (p *Petal) resetPhases(ids []string) {
	for _, posid := range ids {
		p.phase[posid] = PhaseIdle
	}
}

// cleanup advances posid's stored posintTP by its cleanup view's
// accumulated deltas, clamped into the physical range: an axis driven past
// its hardstop (homing) physically stops there.
func (p *Petal) cleanup(posid string) {
	pos := p.positioners[posid]
	mt := p.moveTables[posid]
	if pos == nil || mt == nil {
		return
	}

	var dT, dP float64
	for _, row := range mt.CleanupView() {
		dT += row.DT
		dP += row.DP
	}

	newT := clamp(pos.PosT+dT, pos.Calib.PhysicalRangeT)
	newP := clamp(pos.PosP+dP, pos.Calib.PhysicalRangeP)

	pos.PosT = newT
	pos.PosP = newP
	if err := p.store.Save(posid, newT, newP); err != nil {
		p.log.Error().Str("posid", posid).Err(err).Msg("state store save failed")
	}
}

func clamp(v float64, rng [2]float64) float64 {
	if v < rng[0] {
		return rng[0]
	}
	if v > rng[1] {
		return rng[1]
	}
	return v
}

// validateHardwareView enforces the emission invariants: step counts within
// the firmware bound and speed modes valid. Postpauses cannot overflow
// here, the view type already clamps them to 16 bits.
func validateHardwareView(posid string, rows []movetable.HardwareRow) error {
	for i, row := range rows {
		if abs32(row.MotorStepsT) > MaxMotorStepsPerRow || abs32(row.MotorStepsP) > MaxMotorStepsPerRow {
			return fmt.Errorf("positioner %s row %d exceeds max step count", posid, i)
		}
		if row.SpeedModeT != positioner.Cruise && row.SpeedModeT != positioner.Creep {
			return fmt.Errorf("positioner %s row %d has invalid theta speed mode", posid, i)
		}
		if row.SpeedModeP != positioner.Cruise && row.SpeedModeP != positioner.Creep {
			return fmt.Errorf("positioner %s row %d has invalid phi speed mode", posid, i)
		}
	}
	return nil
}

func abs32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}
