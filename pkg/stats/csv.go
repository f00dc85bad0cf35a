package stats

import (
	"encoding/csv"
	"fmt"
	"io"
)

// SaveCSV writes the schedule's stats as CSV for the enveloping petal
// process, which persists them for offline analysis.
func (s *ScheduleStats) SaveCSV(w io.Writer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cw := csv.NewWriter(w)
	defer cw.Flush()

	if err := cw.Write([]string{"schedule_id", "num_positioners", "num_move_tables", "max_submove_time_s", "calc_time_s", "adjust_iterations", "num_found_collisions"}); err != nil {
		return err
	}
	if err := cw.Write([]string{
		s.ScheduleID,
		fmt.Sprint(s.NumPositioners),
		fmt.Sprint(s.NumMoveTables),
		fmt.Sprintf("%.6f", s.MaxSubmoveTime),
		fmt.Sprintf("%.6f", s.CalcTimeSeconds),
		fmt.Sprint(s.AdjustIterations),
		fmt.Sprint(len(s.FoundCollisions)),
	}); err != nil {
		return err
	}

	if err := cw.Write(nil); err != nil {
		return err
	}
	if err := cw.Write([]string{"found_collision_posid"}); err != nil {
		return err
	}
	for _, posid := range sortedKeys(s.FoundCollisions) {
		if err := cw.Write([]string{posid}); err != nil {
			return err
		}
	}

	if err := cw.Write(nil); err != nil {
		return err
	}
	if err := cw.Write([]string{"method", "posid"}); err != nil {
		return err
	}
	for _, method := range sortedMethods(s.ResolvedByMethod) {
		for _, posid := range sortedKeys(s.ResolvedByMethod[method]) {
			if err := cw.Write([]string{method, posid}); err != nil {
				return err
			}
		}
	}

	if err := cw.Write(nil); err != nil {
		return err
	}
	if err := cw.Write([]string{"time_s", "moving_count"}); err != nil {
		return err
	}
	for _, t := range sortedTimes(s.Simultaneity) {
		if err := cw.Write([]string{fmt.Sprintf("%.6f", t), fmt.Sprint(s.Simultaneity[t])}); err != nil {
			return err
		}
	}

	return nil
}

func sortedTimes(m map[float64]int) []float64 {
	out := make([]float64, 0, len(m))
	for t := range m {
		out = append(out, t)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1] > out[j]; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}
