// Package scheduler implements the top-level orchestration of a petal's
// move batch: request intake, target-space feasibility, move-table
// generation, the path-adjustment loop, and the frozen-positioner
// fallback. Errors accumulate in result objects per positioner; only
// batch-level failures surface as a single returned error.
package scheduler

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/desi-focalplane/fpanticoll/pkg/collider"
	"github.com/desi-focalplane/fpanticoll/pkg/coords"
	"github.com/desi-focalplane/fpanticoll/pkg/geometry"
	"github.com/desi-focalplane/fpanticoll/pkg/movetable"
	"github.com/desi-focalplane/fpanticoll/pkg/positioner"
	"github.com/desi-focalplane/fpanticoll/pkg/stats"
)

// AnticollisionMode selects the scheduling policy.
type AnticollisionMode int

const (
	// ModeNone disables anticollision entirely: tables are generated but
	// never checked or adjusted.
	ModeNone AnticollisionMode = iota
	// ModeFreeze runs the dynamic adjustment loop but admits only the
	// Freeze method.
	ModeFreeze
	// ModeAdjust runs the full Retract/Delay/Reroute/Freeze loop,
	// retaining statically infeasible targets as best-effort.
	ModeAdjust
	// ModeAdjustRequestedOnly is like ModeAdjust but replaces any
	// statically infeasible request with a frozen stay-in-place table.
	ModeAdjustRequestedOnly
)

func (m AnticollisionMode) String() string {
	switch m {
	case ModeNone:
		return "None"
	case ModeFreeze:
		return "Freeze"
	case ModeAdjust:
		return "Adjust"
	case ModeAdjustRequestedOnly:
		return "AdjustRequestedOnly"
	default:
		return "unknown"
	}
}

// DefaultMaxAdjustIters bounds the dynamic adjustment loop.
const DefaultMaxAdjustIters = 20

// Options carries the configuration-surface knobs a petal exposes.
type Options struct {
	// PhiLimitOn carries the configuration's phi_limit_on flag. Nothing in
	// this module reads it: phi moves other than homing are limited to each
	// positioner's targetable range, whatever its value.
	PhiLimitOn bool
	// MaxAdjustIters overrides DefaultMaxAdjustIters; zero means default.
	MaxAdjustIters int
}

// Phase is one positioner's position in the per-schedule state machine:
//
//	Idle -> Requested -> Scheduled -> Sent -> Executing -> Idle
//	               \-> Frozen (adjustment fallback)
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseRequested
	PhaseScheduled
	PhaseFrozen
	PhaseSent
	PhaseExecuting
)

func (ph Phase) String() string {
	switch ph {
	case PhaseIdle:
		return "Idle"
	case PhaseRequested:
		return "Requested"
	case PhaseScheduled:
		return "Scheduled"
	case PhaseFrozen:
		return "Frozen"
	case PhaseSent:
		return "Sent"
	case PhaseExecuting:
		return "Executing"
	default:
		return "unknown"
	}
}

// PositionerStateStore is the external persistence collaborator: the
// per-positioner calibration/dynamic state outlives any one schedule and is
// written back one positioner at a time after execution.
type PositionerStateStore interface {
	LoadAll() (map[string]*positioner.Positioner, error)
	Save(posid string, posT, posP float64) error
}

// request is one registered request's resolved target and bookkeeping.
type request struct {
	posid   string
	command string
	val1    float64
	val2    float64
	logNote string

	deltaTP  coords.TP
	targetTP coords.TP

	isHoming             bool
	disableAnticollision bool
}

// Petal is the whole-petal state during scheduling: the positioner arena,
// this schedule's requests and move tables, and the shared collider and
// stats records.
type Petal struct {
	log zerolog.Logger

	positioners    map[string]*positioner.Positioner
	petalTransform coords.PetalTransform
	radialLookup   *coords.RadialLookup

	collider *collider.Collider
	stats    *stats.ScheduleStats
	store    PositionerStateStore

	AnticollisionMode AnticollisionMode
	Options           Options

	requests   map[string]*request
	moveTables map[string]*movetable.MoveTable

	// expectedTP tracks each requested positioner's expected current
	// posintTP, independent of the real hardware, so relative commands
	// chain within one schedule. Seeded lazily from Positioner.PosT/PosP
	// the first time a posid is touched.
	expectedTP map[string]coords.TP

	// directRequested/normalRequested track which request styles have been
	// used this schedule so RequestDirectDTDP's mutual-exclusion rule can
	// be enforced.
	directRequested map[string]bool
	normalRequested map[string]bool

	frozen map[string]bool
	phase  map[string]Phase
}

// ErrMixedRequestTypes is returned when a schedule mixes expert direct-dTdP
// requests with normal, anticollision-checked requests under a mode other
// than ModeFreeze.
var ErrMixedRequestTypes = fmt.Errorf("scheduler: direct_dtdp and normal requests cannot mix in one schedule outside Freeze mode")

// currentTP returns posid's real, currently-stored posintTP: the snapshot
// every collision sweep starts from. Distinct from expectedTP, which tracks
// the running target of in-progress relative requests.
func (p *Petal) currentTP(posid string) coords.TP {
	pos := p.positioners[posid]
	if pos == nil {
		return coords.TP{}
	}
	return coords.TP{T: pos.PosT, P: pos.PosP}
}

// expectedCurrentTP returns the expected current posintTP for posid,
// seeding it from the real stored state on first use this schedule.
func (p *Petal) expectedCurrentTP(posid string) coords.TP {
	if tp, ok := p.expectedTP[posid]; ok {
		return tp
	}
	tp := p.currentTP(posid)
	p.expectedTP[posid] = tp
	return tp
}

// NewPetal loads the initial positioner snapshot from store and builds the
// collider's neighbor maps.
func NewPetal(log zerolog.Logger, store PositionerStateStore, mode AnticollisionMode, opts Options) (*Petal, error) {
	positioners, err := store.LoadAll()
	if err != nil {
		return nil, fmt.Errorf("scheduler: loading positioner state: %w", err)
	}

	c := collider.New()
	for _, pos := range positioners {
		c.AddPositioner(pos)
	}
	c.BuildNeighbors()

	p := &Petal{
		log:               log,
		positioners:       positioners,
		collider:          c,
		store:             store,
		AnticollisionMode: mode,
		Options:           opts,
	}
	p.ScheduleBegin()
	return p, nil
}

// SetFixedObstacles installs the fixed PTL/GFA keepout polygons and
// rebuilds the fixed-neighbor map.
func (p *Petal) SetFixedObstacles(ptl, gfa geometry.Polygon, eoRadius float64) {
	p.collider.SetFixed(ptl, gfa, eoRadius)
	p.collider.BuildFixedNeighbors()
}

// SetPetalTransform installs the obsXY<->ptlXY rigid transform used by the
// ptlXY command.
func (p *Petal) SetPetalTransform(t coords.PetalTransform) { p.petalTransform = t }

// SetRadialLookup installs the R2S/S2R lookup table used by the QS and
// dQdS commands.
func (p *Petal) SetRadialLookup(lut *coords.RadialLookup) { p.radialLookup = lut }

// Stats returns the current schedule's stats record.
func (p *Petal) Stats() *stats.ScheduleStats { return p.stats }

// Collider exposes the petal's collider for callers that need it directly
// (e.g. pkg/animator snapshotting keepout polygons).
func (p *Petal) Collider() *collider.Collider { return p.collider }

// Positioner returns the positioner record for posid, or nil if unknown.
func (p *Petal) Positioner(posid string) *positioner.Positioner { return p.positioners[posid] }

// MoveTable returns the current move table for posid, or nil if none has
// been built yet this schedule.
func (p *Petal) MoveTable(posid string) *movetable.MoveTable { return p.moveTables[posid] }

// Phase returns posid's position in the per-schedule state machine.
func (p *Petal) Phase(posid string) Phase { return p.phase[posid] }

// ScheduleBegin starts a fresh schedule: requests, move tables, and stats
// are (re)born here. Any tables from a prior, unfinalized schedule are
// discarded.
func (p *Petal) ScheduleBegin() {
	p.requests = make(map[string]*request)
	p.moveTables = make(map[string]*movetable.MoveTable)
	p.expectedTP = make(map[string]coords.TP)
	p.directRequested = make(map[string]bool)
	p.normalRequested = make(map[string]bool)
	p.frozen = make(map[string]bool)
	p.phase = make(map[string]Phase)
	p.stats = stats.New(stats.NewScheduleID())
}

// Discard abandons the in-progress schedule without mutating any
// positioner state.
func (p *Petal) Discard() {
	p.requests = make(map[string]*request)
	p.moveTables = make(map[string]*movetable.MoveTable)
	p.frozen = make(map[string]bool)
	p.phase = make(map[string]Phase)
}
