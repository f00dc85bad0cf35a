// Package animator collects per-timestep polygon snapshots from a schedule
// and writes them as an image frame sequence for offline verification. It
// is off by default; the scheduler runs identically with or without it.
package animator

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/desi-focalplane/fpanticoll/pkg/geometry"
)

// Snapshot is one item's polygon at one instant, with a rendering style
// tag ("body", "arm", "ferrule", "fixed", ...).
type Snapshot struct {
	ItemKey string
	Time    float64
	Points  []geometry.Point
	Style   string
}

// Options controls framing and labeling of the emitted sequence.
type Options struct {
	// Crop is the visible window, in the petal's shared frame (mm). A zero
	// rectangle means auto-fit to the collected snapshots.
	CropMinX, CropMinY, CropMaxX, CropMaxY float64

	Label string
	Note  string

	// FrameStep groups snapshots into frames: all snapshots whose times fall
	// in the same interval [k*FrameStep, (k+1)*FrameStep) land on the same
	// frame. Zero means DefaultFrameStep.
	FrameStep float64

	// EncodeVideo shells out to ffmpeg after the frames are written. Off by
	// default; the frame sequence alone is always usable.
	EncodeVideo bool
}

// DefaultFrameStep is the default frame grouping interval, seconds.
const DefaultFrameStep = 0.1

// Animator accumulates snapshots for one schedule.
type Animator struct {
	log  zerolog.Logger
	opts Options

	enabled   bool
	snapshots []Snapshot
}

// New returns a disabled animator; call Enable to start collecting.
func New(log zerolog.Logger, opts Options) *Animator {
	return &Animator{log: log, opts: opts}
}

// Enable turns snapshot collection on.
func (a *Animator) Enable() { a.enabled = true }

// Enabled reports whether Add calls are currently collected.
func (a *Animator) Enabled() bool { return a.enabled }

// Add records one polygon snapshot. A disabled animator drops it, so
// callers can emit unconditionally.
func (a *Animator) Add(itemKey string, t float64, pts []geometry.Point, style string) {
	if !a.enabled {
		return
	}
	cp := make([]geometry.Point, len(pts))
	copy(cp, pts)
	a.snapshots = append(a.snapshots, Snapshot{ItemKey: itemKey, Time: t, Points: cp, Style: style})
}

// Frame is all snapshots sharing one frame interval, ordered by item key.
type Frame struct {
	Time      float64
	Snapshots []Snapshot
}

// Frames groups the collected snapshots into the ordered frame timeline.
func (a *Animator) Frames() []Frame {
	step := a.opts.FrameStep
	if step <= 0 {
		step = DefaultFrameStep
	}
	byBucket := make(map[int64][]Snapshot)
	for _, s := range a.snapshots {
		bucket := int64(s.Time / step)
		byBucket[bucket] = append(byBucket[bucket], s)
	}
	buckets := make([]int64, 0, len(byBucket))
	for b := range byBucket {
		buckets = append(buckets, b)
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i] < buckets[j] })

	out := make([]Frame, 0, len(buckets))
	for _, b := range buckets {
		snaps := byBucket[b]
		sort.SliceStable(snaps, func(i, j int) bool {
			if snaps[i].ItemKey != snaps[j].ItemKey {
				return snaps[i].ItemKey < snaps[j].ItemKey
			}
			return snaps[i].Time < snaps[j].Time
		})
		out = append(out, Frame{Time: float64(b) * step, Snapshots: snaps})
	}
	return out
}

// WriteFrameSequence renders every frame as an SVG file named frame-%06d.svg
// under dir, then optionally invokes ffmpeg over the sequence.
func (a *Animator) WriteFrameSequence(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("animator: creating %s: %w", dir, err)
	}
	frames := a.Frames()
	minX, minY, maxX, maxY := a.bounds()
	for i, f := range frames {
		path := filepath.Join(dir, fmt.Sprintf("frame-%06d.svg", i))
		if err := os.WriteFile(path, []byte(renderSVG(f, minX, minY, maxX, maxY, a.opts)), 0o644); err != nil {
			return fmt.Errorf("animator: writing %s: %w", path, err)
		}
	}
	a.log.Info().Int("frames", len(frames)).Str("dir", dir).Msg("frame sequence written")

	if !a.opts.EncodeVideo {
		return nil
	}
	return encodeVideo(dir, len(frames))
}

func (a *Animator) bounds() (minX, minY, maxX, maxY float64) {
	o := a.opts
	if o.CropMaxX != o.CropMinX || o.CropMaxY != o.CropMinY {
		return o.CropMinX, o.CropMinY, o.CropMaxX, o.CropMaxY
	}
	first := true
	for _, s := range a.snapshots {
		for _, p := range s.Points {
			if first || p.X < minX {
				minX = p.X
			}
			if first || p.Y < minY {
				minY = p.Y
			}
			if first || p.X > maxX {
				maxX = p.X
			}
			if first || p.Y > maxY {
				maxY = p.Y
			}
			first = false
		}
	}
	if first {
		return 0, 0, 1, 1
	}
	return minX - 1, minY - 1, maxX + 1, maxY + 1
}

var styleFill = map[string]string{
	"body":    "#7788aa",
	"arm":     "#aa6644",
	"ferrule": "#cc3333",
	"fixed":   "#444444",
}

func renderSVG(f Frame, minX, minY, maxX, maxY float64, opts Options) string {
	var b strings.Builder
	w, h := maxX-minX, maxY-minY
	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" viewBox="%.3f %.3f %.3f %.3f">`+"\n", minX, -maxY, w, h)
	for _, s := range f.Snapshots {
		fill, ok := styleFill[s.Style]
		if !ok {
			fill = "#999999"
		}
		b.WriteString(`<polygon points="`)
		for i, p := range s.Points {
			if i > 0 {
				b.WriteByte(' ')
			}
			fmt.Fprintf(&b, "%.4f,%.4f", p.X, -p.Y)
		}
		fmt.Fprintf(&b, `" fill="%s" fill-opacity="0.6"/>`+"\n", fill)
	}
	if opts.Label != "" {
		fmt.Fprintf(&b, `<text x="%.3f" y="%.3f" font-size="%.3f">%s t=%.2fs</text>`+"\n",
			minX+w*0.02, -maxY+h*0.06, h*0.04, opts.Label, f.Time)
	}
	b.WriteString("</svg>\n")
	return b.String()
}

func encodeVideo(dir string, frames int) error {
	if frames == 0 {
		return nil
	}
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return fmt.Errorf("animator: ffmpeg not found: %w", err)
	}
	cmd := exec.Command("ffmpeg", "-y", "-framerate", "10",
		"-i", filepath.Join(dir, "frame-%06d.svg"),
		filepath.Join(dir, "schedule.mp4"))
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("animator: ffmpeg: %w: %s", err, out)
	}
	return nil
}
