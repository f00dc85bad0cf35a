package scheduler

import (
	"github.com/desi-focalplane/fpanticoll/pkg/collider"
	"github.com/desi-focalplane/fpanticoll/pkg/geometry"
)

// AnimationSink receives per-timestep polygon snapshots of a committed
// schedule. animator.Animator satisfies it.
type AnimationSink interface {
	Add(itemKey string, t float64, pts []geometry.Point, style string)
}

// DefaultSnapshotStep is the EmitSnapshots sampling interval, seconds.
const DefaultSnapshotStep = 0.1

// EmitSnapshots replays every committed move table through the sink: the
// fixed obstacles once at t=0, then each scheduled positioner's three
// keepout polygons at every sample step. Call after ScheduleMoves; a nil
// sink or an empty schedule is a no-op.
func (p *Petal) EmitSnapshots(sink AnimationSink, step float64) {
	if sink == nil {
		return
	}
	if step <= 0 {
		step = DefaultSnapshotStep
	}

	if pts := p.collider.PTL.Points; len(pts) > 0 {
		sink.Add("PTL", 0, pts, "fixed")
	}
	if pts := p.collider.GFA.Points; len(pts) > 0 {
		sink.Add("GFA", 0, pts, "fixed")
	}

	for _, posid := range p.sortedRequestIDs() {
		mt := p.moveTables[posid]
		if mt == nil {
			continue
		}
		rows := mt.ScheduleView()
		for _, tp := range collider.TrajectoryPoses(p.currentTP(posid), rows, step) {
			posed, err := p.collider.PoseOf(posid, tp.Pose)
			if err != nil {
				continue
			}
			sink.Add(posid+".body", tp.Time, posed.CentralBody.Points, "body")
			sink.Add(posid+".arm", tp.Time, posed.PhiArm.Points, "arm")
			sink.Add(posid+".ferrule", tp.Time, posed.Ferrule.Points, "ferrule")
		}
	}
}
