package collider

import (
	"math"

	"github.com/desi-focalplane/fpanticoll/pkg/coords"
	"github.com/desi-focalplane/fpanticoll/pkg/movetable"
)

// defaultSamplePeriod is used when a schedule view has no row with positive
// duration (e.g. a frozen, zero-motion table); it keeps the sweep sampler
// from dividing by zero while still producing one sample at t=0.
const defaultSamplePeriod = 0.01

// trajectory turns a schedule view plus a starting pose into a piecewise
// function of elapsed time, by integrating each row's (PrePause, constant
// velocity move, PostPause) segments in order.
type trajectory struct {
	start  coords.TP
	breaks []breakpoint
	total  float64
}

type breakpoint struct {
	tStart, tEnd   float64
	startT, startP float64
	speedT, speedP float64 // deg/s during [tStart,tEnd); 0 during pauses
}

func buildTrajectory(start coords.TP, rows []movetable.ScheduleRow) trajectory {
	traj := trajectory{start: start}
	t := start.T
	p := start.P
	clock := 0.0
	add := func(dur, speedT, speedP float64) {
		if dur <= 0 {
			return
		}
		traj.breaks = append(traj.breaks, breakpoint{
			tStart: clock, tEnd: clock + dur,
			startT: t, startP: p,
			speedT: speedT, speedP: speedP,
		})
		t += speedT * dur
		p += speedP * dur
		clock += dur
	}
	for _, row := range rows {
		add(row.PrePause, 0, 0)
		add(row.Duration, row.SpeedT, row.SpeedP)
		add(row.PostPause, 0, 0)
	}
	traj.total = clock
	return traj
}

// at returns the posintTP at elapsed time tm (clamped to [0,total]).
func (traj trajectory) at(tm float64) coords.TP {
	if len(traj.breaks) == 0 {
		// No motion rows at all (a frozen or unscheduled positioner): the
		// pose is the start pose at every instant.
		return traj.start
	}
	if tm <= traj.breaks[0].tStart {
		b := traj.breaks[0]
		return coords.TP{T: b.startT, P: b.startP}
	}
	for _, b := range traj.breaks {
		if tm >= b.tStart && tm <= b.tEnd {
			dt := tm - b.tStart
			return coords.TP{T: b.startT + b.speedT*dt, P: b.startP + b.speedP*dt}
		}
	}
	last := traj.breaks[len(traj.breaks)-1]
	dt := last.tEnd - last.tStart
	return coords.TP{T: last.startT + last.speedT*dt, P: last.startP + last.speedP*dt}
}

// minPositiveDuration returns the smallest positive row duration, or 0 if
// none exists.
func minPositiveDuration(rows []movetable.ScheduleRow) float64 {
	min := math.Inf(1)
	for _, r := range rows {
		if r.Duration > 0 && r.Duration < min {
			min = r.Duration
		}
	}
	if math.IsInf(min, 1) {
		return 0
	}
	return min
}

// samplePeriod returns the sweep sampling interval for a schedule view:
// the minimum submove time divided by SamplePeriodDivisor. Sampling coarser
// than the minimum submove risks missing a brief overlap, so the minimum is
// oversampled; the divisor is a tuning knob.
func (c *Collider) samplePeriod(rows []movetable.ScheduleRow) float64 {
	d := minPositiveDuration(rows)
	if d <= 0 {
		return defaultSamplePeriod
	}
	divisor := c.SamplePeriodDivisor
	if divisor <= 0 {
		divisor = DefaultSamplePeriodDivisor
	}
	return d / float64(divisor)
}

// TimedPose is one sample of a reconstructed trajectory.
type TimedPose struct {
	Time float64
	Pose coords.TP
}

// TrajectoryPoses samples the trajectory a schedule view describes at the
// given fixed step, for consumers outside the collision loop (the
// animator). The final pose is always included.
func TrajectoryPoses(tp0 coords.TP, rows []movetable.ScheduleRow, step float64) []TimedPose {
	if step <= 0 {
		step = defaultSamplePeriod
	}
	traj := buildTrajectory(tp0, rows)
	times := sampleTimes(traj.total, step)
	out := make([]TimedPose, 0, len(times))
	for _, tm := range times {
		out = append(out, TimedPose{Time: tm, Pose: traj.at(tm)})
	}
	return out
}

func sampleTimes(total, period float64) []float64 {
	if period <= 0 {
		period = defaultSamplePeriod
	}
	n := int(math.Ceil(total/period)) + 1
	out := make([]float64, 0, n+1)
	for i := 0; i <= n; i++ {
		tm := float64(i) * period
		if tm > total {
			tm = total
		}
		out = append(out, tm)
		if tm >= total {
			break
		}
	}
	return out
}
