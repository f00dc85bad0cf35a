package scheduler

import (
	"math"
	"sort"
	"time"

	"github.com/desi-focalplane/fpanticoll/pkg/collider"
	"github.com/desi-focalplane/fpanticoll/pkg/coords"
	"github.com/desi-focalplane/fpanticoll/pkg/movetable"
)

// retractedPoslocP is the folded phi angle (posloc frame) the Retract
// method bends to before sweeping theta: the arm points back over the
// central body, minimizing the ferrule's radial excursion.
const retractedPoslocP = 180.0

// delayMargin is the extra pause the Delay method adds past the partner's
// total move time so quantization jitter cannot re-overlap the sweeps.
const delayMargin = 0.25 // seconds

// simultaneitySampleStep is the coarse interval of the moving-positioner
// time series recorded into stats after a successful schedule pass.
const simultaneitySampleStep = 0.5 // seconds

// ScheduleResult is the structured outcome of ScheduleMoves. Per-positioner
// failures are carried in Errors; they never abort the schedule.
type ScheduleResult struct {
	ScheduleID string

	// Scheduled lists every posid that ends the pass with a move table,
	// including frozen ones, in ascending order.
	Scheduled []string

	// Frozen lists posids whose table was replaced with a zero-motion
	// placeholder, in ascending order.
	Frozen []string

	// NotReached lists requested posids whose target could not be reached
	// (frozen, or statically infeasible under a freezing mode).
	NotReached []string

	// Errors carries the per-positioner error taxonomy entries.
	Errors map[string]error

	CollisionsFound    int
	CollisionsResolved int
}

func (r *ScheduleResult) addError(posid string, err error) {
	if r.Errors == nil {
		r.Errors = make(map[string]error)
	}
	r.Errors[posid] = err
}

// collisionInfo attributes one positioner's earliest collision to the
// partner that caused it ("" for a fixed obstacle).
type collisionInfo struct {
	sweep   collider.Sweep
	partner string
}

// ScheduleMoves assembles and, unless anticollision is disabled, verifies
// and adjusts the batch: one move table per request, a static target
// feasibility check, then the bounded dynamic adjustment loop. Requests are
// processed in posid order throughout so identical inputs yield identical
// tables.
func (p *Petal) ScheduleMoves() (*ScheduleResult, error) {
	began := time.Now()
	res := &ScheduleResult{ScheduleID: p.stats.ScheduleID}
	defer func() {
		p.stats.AddCalcTime(time.Since(began).Seconds())
	}()

	p.stats.NumPositioners = len(p.positioners)

	ids := p.sortedRequestIDs()
	for _, posid := range ids {
		req := p.requests[posid]
		pos := p.positioners[posid]
		mt := movetable.New(pos)
		if req.isHoming {
			// One row per homed axis: theta's row first, then phi's.
			mt.AllowExceedLimits = true
			row := 0
			if req.deltaTP.T != 0 {
				mt.SetMove(row, req.deltaTP.T, 0, req.command, req.val1, req.val2)
				row++
			}
			if req.deltaTP.P != 0 {
				mt.SetMove(row, 0, req.deltaTP.P, req.command, req.val1, req.val2)
			}
		} else {
			mt.SetMove(0, req.deltaTP.T, req.deltaTP.P, req.command, req.val1, req.val2)
		}
		mt.CalculateTrueMoves()
		p.moveTables[posid] = mt
		p.phase[posid] = PhaseScheduled
	}

	if p.AnticollisionMode == ModeNone {
		p.finishSchedule(res)
		return res, nil
	}

	p.staticCheck(res)
	p.dynamicAdjust(res)
	p.finishSchedule(res)
	return res, nil
}

// finishSchedule fills the result's ordered id lists and the stats record's
// per-table and simultaneity series.
func (p *Petal) finishSchedule(res *ScheduleResult) {
	var maxTotal float64
	for _, posid := range p.sortedRequestIDs() {
		mt := p.moveTables[posid]
		if mt == nil {
			continue
		}
		res.Scheduled = append(res.Scheduled, posid)
		total := mt.TotalMoveTime()
		p.stats.NoteMoveTable(total)
		if total > maxTotal {
			maxTotal = total
		}
		if p.frozen[posid] {
			res.Frozen = append(res.Frozen, posid)
			res.NotReached = append(res.NotReached, posid)
		}
	}
	sort.Strings(res.Frozen)
	sort.Strings(res.NotReached)

	for t := 0.0; t <= maxTotal; t += simultaneitySampleStep {
		moving := 0
		for _, posid := range res.Scheduled {
			mt := p.moveTables[posid]
			if !mt.IsZeroMotion() && mt.TotalMoveTime() > t {
				moving++
			}
		}
		p.stats.RecordSimultaneity(t, moving)
	}
}

// staticCheck verifies every request's target pose against fixed obstacles,
// against other requests' target poses (lower posid takes precedence), and
// against non-requesting neighbors' current poses. Infeasible targets are
// kept as best effort under Adjust, frozen otherwise.
func (p *Petal) staticCheck(res *ScheduleResult) {
	ids := p.sortedRequestIDs()
	for _, posid := range ids {
		req := p.requests[posid]
		if req.disableAnticollision {
			continue
		}
		infeasible := false

		if cc, err := p.collider.SpatialCollisionWithFixed(posid, req.targetTP); err == nil && cc != collider.CaseNone {
			infeasible = true
		}

		if !infeasible {
			for _, nb := range p.collider.PosNeighbors(posid) {
				other, requested := p.requests[nb]
				var otherTP coords.TP
				switch {
				case requested && nb < posid && !p.frozen[nb]:
					otherTP = other.targetTP
				case !requested:
					otherTP = p.currentTP(nb)
				default:
					continue
				}
				cc, err := p.collider.SpatialCollisionBetweenPositioners(posid, req.targetTP, nb, otherTP)
				if err == nil && cc != collider.CaseNone {
					infeasible = true
					break
				}
			}
		}

		if !infeasible {
			continue
		}
		res.addError(posid, ErrTargetInfeasible)
		p.stats.RecordFound(posid)
		res.CollisionsFound++
		p.log.Warn().Str("posid", posid).Msg("target statically infeasible")
		if p.AnticollisionMode == ModeAdjustRequestedOnly || p.AnticollisionMode == ModeFreeze {
			p.freeze(posid)
		}
	}
}

// dynamicAdjust is the bounded path-adjustment loop: find every pair and
// fixed collision along the swept trajectories, pick the positioner with
// the earliest collision (DeviceLoc ascending on ties), and try the
// resolution methods in priority order. Positioners still colliding when
// the iteration budget runs out are frozen.
func (p *Petal) dynamicAdjust(res *ScheduleResult) {
	maxIters := p.Options.MaxAdjustIters
	if maxIters <= 0 {
		maxIters = DefaultMaxAdjustIters
	}

	for iter := 0; iter < maxIters; iter++ {
		p.stats.IncAdjustIterations()
		collisions := p.findCollisions()
		if len(collisions) == 0 {
			return
		}

		victim := p.selectVictim(collisions)
		info := collisions[victim]
		if !p.stats.FoundCollisions[victim] {
			res.CollisionsFound++
		}
		p.stats.RecordFound(victim)
		p.log.Debug().Str("posid", victim).Str("case", info.sweep.Case.String()).
			Float64("t", info.sweep.CollisionTime).Str("partner", info.partner).Msg("collision found")

		resolved := false
		for _, m := range p.methods() {
			cand := m.fn(victim, info)
			if cand == nil {
				continue
			}
			if !p.candidateClear(victim, cand) {
				continue
			}
			p.moveTables[victim] = cand
			p.stats.RecordResolved(m.name, victim)
			res.CollisionsResolved++
			if m.name == methodFreeze {
				p.freeze(victim)
			}
			p.log.Info().Str("posid", victim).Str("method", m.name).Msg("collision resolved")
			resolved = true
			break
		}
		if !resolved {
			p.freeze(victim)
			p.stats.RecordResolved(methodFreeze, victim)
			res.CollisionsResolved++
			res.addError(victim, ErrDynamicallyInfeasible)
		}
	}

	// Iteration budget exhausted: force-freeze whatever still collides.
	for {
		collisions := p.findCollisions()
		if len(collisions) == 0 {
			return
		}
		victim := p.selectVictim(collisions)
		p.stats.RecordFound(victim)
		p.freeze(victim)
		p.stats.RecordResolved(methodFreeze, victim)
		res.addError(victim, ErrDynamicallyInfeasible)
		p.log.Warn().Str("posid", victim).Msg("adjustment budget exhausted, frozen")
	}
}

// findCollisions sweeps every anticollision-eligible table against its
// fixed obstacles, its scheduled neighbors, and its unscheduled neighbors'
// static poses, keeping the earliest collision per posid.
func (p *Petal) findCollisions() map[string]collisionInfo {
	out := make(map[string]collisionInfo)
	note := func(posid string, sw collider.Sweep, partner string) {
		if math.IsInf(sw.CollisionTime, 1) {
			return
		}
		// Freeze is terminal: a frozen positioner cannot be adjusted
		// further, so any remaining overlap is attributed to its partner.
		if p.frozen[posid] {
			return
		}
		cur, seen := out[posid]
		if !seen || sw.CollisionTime < cur.sweep.CollisionTime {
			out[posid] = collisionInfo{sweep: sw, partner: partner}
		}
	}

	ids := p.sortedRequestIDs()
	for _, a := range ids {
		if p.requests[a].disableAnticollision {
			continue
		}
		rowsA := p.moveTables[a].ScheduleView()
		tp0A := p.currentTP(a)

		if len(p.collider.FixedNeighbors(a)) > 0 {
			sw, err := p.collider.SpacetimeCollisionWithFixed(a, tp0A, rowsA)
			if err == nil {
				note(a, sw, sw.Case.String())
			}
		}

		for _, b := range p.collider.PosNeighbors(a) {
			reqB, requested := p.requests[b]
			if requested && reqB.disableAnticollision {
				continue
			}
			var rowsB []movetable.ScheduleRow
			if requested {
				if b < a {
					continue // pair already swept when b was "a"
				}
				rowsB = p.moveTables[b].ScheduleView()
			}
			sw, err := p.collider.SpacetimeCollisionBetweenPositioners(a, tp0A, rowsA, b, p.currentTP(b), rowsB)
			if err != nil {
				continue
			}
			note(a, sw, b)
			if requested {
				note(b, sw, a)
			}
		}
	}
	return out
}

// selectVictim picks the posid with the earliest collision time, breaking
// ties by ascending DeviceLoc and then posid.
func (p *Petal) selectVictim(collisions map[string]collisionInfo) string {
	ids := make([]string, 0, len(collisions))
	for id := range collisions {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	best := ids[0]
	for _, id := range ids[1:] {
		ci, cb := collisions[id], collisions[best]
		switch {
		case ci.sweep.CollisionTime < cb.sweep.CollisionTime:
			best = id
		case ci.sweep.CollisionTime == cb.sweep.CollisionTime &&
			p.positioners[id].DeviceLoc < p.positioners[best].DeviceLoc:
			best = id
		}
	}
	return best
}

const (
	methodRetract = "Retract"
	methodDelay   = "Delay"
	methodReroute = "Reroute"
	methodFreeze  = "Freeze"
)

type adjustMethod struct {
	name string
	fn   func(posid string, info collisionInfo) *movetable.MoveTable
}

// methods returns the resolution strategies in priority order. Under
// Freeze mode only the Freeze method is admitted.
func (p *Petal) methods() []adjustMethod {
	if p.AnticollisionMode == ModeFreeze {
		return []adjustMethod{{methodFreeze, p.methodFreezeTable}}
	}
	return []adjustMethod{
		{methodRetract, p.methodRetract},
		{methodDelay, p.methodDelay},
		{methodReroute, p.methodRerouteBoth},
		{methodFreeze, p.methodFreezeTable},
	}
}

// methodRetract bends phi to the folded position first, sweeps theta with
// the arm tucked in, then extends phi to the target.
func (p *Petal) methodRetract(posid string, _ collisionInfo) *movetable.MoveTable {
	req := p.requests[posid]
	pos := p.positioners[posid]
	start := p.currentTP(posid)
	target := coords.TP{T: start.T + req.deltaTP.T, P: start.P + req.deltaTP.P}

	retractP := retractedPoslocP + pos.Calib.OffsetP
	rP := pos.TargetableRangeP()
	if retractP > rP[1] {
		retractP = rP[1]
	}
	if retractP < rP[0] {
		retractP = rP[0]
	}

	mt := movetable.New(pos)
	mt.SetMove(0, 0, retractP-start.P, req.command, req.val1, req.val2)
	mt.SetMove(1, target.T-start.T, 0, req.command, req.val1, req.val2)
	mt.SetMove(2, 0, target.P-retractP, req.command, req.val1, req.val2)
	mt.CalculateTrueMoves()
	return mt
}

// methodDelay prepends a pause long enough for the colliding partner to
// finish moving before this positioner starts. Useless against fixed
// obstacles or static neighbors, which do not go away.
func (p *Petal) methodDelay(posid string, info collisionInfo) *movetable.MoveTable {
	if info.partner == "" || info.partner == "PTL" || info.partner == "GFA" {
		return nil
	}
	partnerMT := p.moveTables[info.partner]
	if partnerMT == nil || partnerMT.IsZeroMotion() {
		return nil
	}

	pos := p.positioners[posid]
	cur := p.moveTables[posid]

	mt := movetable.New(pos)
	mt.AllowExceedLimits = cur.AllowExceedLimits
	for i, row := range cur.Rows {
		mt.SetMove(i, row.DTIdeal, row.DPIdeal, row.Command, row.CmdVal1, row.CmdVal2)
		mt.SetPrePause(i, row.PrePause)
		mt.SetPostPause(i, row.PostPause)
	}
	mt.SetPrePause(0, cur.Rows[0].PrePause+partnerMT.TotalMoveTime()+delayMargin)
	mt.CalculateTrueMoves()
	return mt
}

// methodRerouteBoth splits the single-row move into axis-sequential legs,
// trying theta-first then phi-first.
func (p *Petal) methodRerouteBoth(posid string, info collisionInfo) *movetable.MoveTable {
	if mt := p.reroute(posid, true); mt != nil && p.candidateClear(posid, mt) {
		return mt
	}
	return p.reroute(posid, false)
}

func (p *Petal) reroute(posid string, thetaFirst bool) *movetable.MoveTable {
	req := p.requests[posid]
	pos := p.positioners[posid]

	mt := movetable.New(pos)
	if thetaFirst {
		mt.SetMove(0, req.deltaTP.T, 0, req.command, req.val1, req.val2)
		mt.SetMove(1, 0, req.deltaTP.P, req.command, req.val1, req.val2)
	} else {
		mt.SetMove(0, 0, req.deltaTP.P, req.command, req.val1, req.val2)
		mt.SetMove(1, req.deltaTP.T, 0, req.command, req.val1, req.val2)
	}
	mt.CalculateTrueMoves()
	return mt
}

// methodFreezeTable builds the zero-motion placeholder table.
func (p *Petal) methodFreezeTable(posid string, _ collisionInfo) *movetable.MoveTable {
	pos := p.positioners[posid]
	mt := movetable.New(pos)
	mt.ShouldAntibacklash = false
	mt.ShouldFinalCreep = false
	mt.SetMove(0, 0, 0, "FREEZE", 0, 0)
	mt.CalculateTrueMoves()
	return mt
}

// freeze replaces posid's table with the zero-motion placeholder and marks
// it so the result reports its target as not reached.
func (p *Petal) freeze(posid string) {
	p.moveTables[posid] = p.methodFreezeTable(posid, collisionInfo{})
	p.frozen[posid] = true
	p.expectedTP[posid] = p.currentTP(posid)
	p.phase[posid] = PhaseFrozen
}

// candidateClear rechecks one candidate table against posid's fixed
// obstacles and every neighbor's committed table or static pose.
func (p *Petal) candidateClear(posid string, cand *movetable.MoveTable) bool {
	rows := cand.ScheduleView()
	tp0 := p.currentTP(posid)

	if len(p.collider.FixedNeighbors(posid)) > 0 {
		sw, err := p.collider.SpacetimeCollisionWithFixed(posid, tp0, rows)
		if err != nil || !math.IsInf(sw.CollisionTime, 1) {
			return false
		}
	}

	for _, nb := range p.collider.PosNeighbors(posid) {
		reqB, requested := p.requests[nb]
		if requested && reqB.disableAnticollision {
			continue
		}
		var rowsB []movetable.ScheduleRow
		if requested {
			rowsB = p.moveTables[nb].ScheduleView()
		}
		sw, err := p.collider.SpacetimeCollisionBetweenPositioners(posid, tp0, rows, nb, p.currentTP(nb), rowsB)
		if err != nil || !math.IsInf(sw.CollisionTime, 1) {
			return false
		}
	}
	return true
}
