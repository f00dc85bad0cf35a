// Package stats implements the append-only per-schedule record:
// found/resolved collision counters, per-method resolution counts,
// calc-time totals, and a simultaneity time series. A schedule's stats
// have a fixed, known shape, so this is a concrete struct with accumulator
// methods rather than a generic keyed store.
package stats

import (
	"crypto/rand"
	"sort"
	"sync"

	"github.com/mr-tron/base58"
)

// NewScheduleID returns a compact, human-legible base58 identifier for one
// schedule run, suitable for CSV headers and log correlation.
func NewScheduleID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return base58.Encode(buf)
}

// ScheduleStats is the append-only record for one schedule run. All
// accumulator methods are safe to call from the single-threaded
// scheduler loop only; the mutex below guards SaveCSV being called
// concurrently with a still-running schedule's adjustment loop (e.g. an
// operator inspecting progress), not general concurrent writers.
type ScheduleStats struct {
	mu sync.Mutex

	ScheduleID string

	NumPositioners int
	NumMoveTables  int
	MaxSubmoveTime float64

	FoundCollisions map[string]bool   // posids that were found colliding at least once
	ResolvedByMethod map[string]map[string]bool // method -> set of posids resolved by it

	CalcTimeSeconds float64
	AdjustIterations int

	// Simultaneity is a coarse time -> count-of-moving-positioners series,
	// keyed by the sample time exactly as recorded; counts recorded at the
	// same key add together.
	Simultaneity map[float64]int
}

// New returns an empty ScheduleStats for the given schedule id.
func New(scheduleID string) *ScheduleStats {
	return &ScheduleStats{
		ScheduleID:       scheduleID,
		FoundCollisions:  make(map[string]bool),
		ResolvedByMethod: make(map[string]map[string]bool),
		Simultaneity:     make(map[float64]int),
	}
}

// RecordFound marks posid as having been found in a collision this
// schedule.
func (s *ScheduleStats) RecordFound(posid string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.FoundCollisions[posid] = true
}

// RecordResolved marks posid as resolved via the given adjustment method
// (Retract, Delay, Reroute, or Freeze).
func (s *ScheduleStats) RecordResolved(method, posid string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.ResolvedByMethod[method]
	if !ok {
		set = make(map[string]bool)
		s.ResolvedByMethod[method] = set
	}
	set[posid] = true
}

// AddCalcTime accumulates time spent in request/scheduling.
func (s *ScheduleStats) AddCalcTime(seconds float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CalcTimeSeconds += seconds
}

// IncAdjustIterations records one pass through the dynamic adjustment loop.
func (s *ScheduleStats) IncAdjustIterations() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.AdjustIterations++
}

// RecordSimultaneity adds one sample to the moving-positioners time series
// at the given elapsed time.
func (s *ScheduleStats) RecordSimultaneity(t float64, movingCount int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Simultaneity[t] += movingCount
}

// NoteMoveTable records a move table's presence and its total time against
// MaxSubmoveTime.
func (s *ScheduleStats) NoteMoveTable(totalTime float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.NumMoveTables++
	if totalTime > s.MaxSubmoveTime {
		s.MaxSubmoveTime = totalTime
	}
}

// MethodCount returns how many positioners were resolved by the named
// method.
func (s *ScheduleStats) MethodCount(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ResolvedByMethod[method])
}

// FoundCount returns how many distinct positioners were found colliding.
func (s *ScheduleStats) FoundCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.FoundCollisions)
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func sortedMethods(m map[string]map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

