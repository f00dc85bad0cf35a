package scheduler

import "errors"

// Error kinds surfaced per-positioner in ScheduleResult and ExecuteResult
// where applicable. Batch-level kinds (RateLimited,
// PowerOff, BusOff, TempLimit) are returned as the single error from
// SendAndExecuteMoves, never attached per-positioner.
var (
	ErrUnreachable               = errors.New("scheduler: target outside patrol annulus")
	ErrOutOfRange                = errors.New("scheduler: target inside patrol annulus but outside targetable range")
	ErrTargetInfeasible          = errors.New("scheduler: target pose collides with a fixed obstacle or higher-precedence request")
	ErrDynamicallyInfeasible     = errors.New("scheduler: no adjustment method resolved the collision within the iteration budget")
	ErrDuplicateRequest          = errors.New("scheduler: duplicate request for positioner in this schedule")
	ErrHardwareSendFailed        = errors.New("scheduler: transport reported a failed send for this positioner")
	ErrHardwareUnresponsive      = errors.New("scheduler: transport reported no response for this positioner")
	ErrRateLimited               = errors.New("scheduler: transport is rate limited")
	ErrPowerOff                  = errors.New("scheduler: one or more power supplies are off")
	ErrBusOff                    = errors.New("scheduler: one or more CAN buses are off")
	ErrTempLimit                 = errors.New("scheduler: temperature limit exceeded")
	ErrInternalInvariantViolation = errors.New("scheduler: internal invariant violation")
)
