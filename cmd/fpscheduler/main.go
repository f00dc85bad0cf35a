// fpscheduler wires a petal config file, a batch of target requests, and a
// simulated transport into one schedule run, then writes the schedule stats
// as CSV. It exists to exercise the scheduling core end to end from the
// command line; the observatory's real control sequence lives elsewhere.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/desi-focalplane/fpanticoll/pkg/animator"
	"github.com/desi-focalplane/fpanticoll/pkg/config"
	"github.com/desi-focalplane/fpanticoll/pkg/logger"
	"github.com/desi-focalplane/fpanticoll/pkg/scheduler"
	"github.com/desi-focalplane/fpanticoll/pkg/transport"
)

// requestEntry is one line of the requests YAML file.
type requestEntry struct {
	PosID   string  `yaml:"pos_id"`
	Command string  `yaml:"command"`
	Val1    float64 `yaml:"val1"`
	Val2    float64 `yaml:"val2"`
	LogNote string  `yaml:"log_note"`
}

var commandByName = map[string]scheduler.CommandKind{
	"QS":         scheduler.CmdQS,
	"obsXY":      scheduler.CmdObsXY,
	"poslocTP":   scheduler.CmdPoslocTP,
	"posintTP":   scheduler.CmdPosintTP,
	"dTdP":       scheduler.CmdDTdP,
	"dQdS":       scheduler.CmdDQdS,
	"obsdXdY":    scheduler.CmdObsdXdY,
	"poslocXY":   scheduler.CmdPoslocXY,
	"poslocdXdY": scheduler.CmdPoslocdXdY,
	"ptlXY":      scheduler.CmdPtlXY,
}

var modeByName = map[string]scheduler.AnticollisionMode{
	"None":                scheduler.ModeNone,
	"Freeze":              scheduler.ModeFreeze,
	"Adjust":              scheduler.ModeAdjust,
	"AdjustRequestedOnly": scheduler.ModeAdjustRequestedOnly,
}

// nullTransport acknowledges every table without hardware attached, so a
// schedule can be exercised and its stats inspected on a bench.
type nullTransport struct{}

func (nullTransport) SendAndSync(_ context.Context, tables []transport.HardwareTable) (transport.Outcome, error) {
	per := make(map[string]transport.PerPositionerStatus, len(tables))
	for _, t := range tables {
		per[t.PosID] = transport.StatusCleared
	}
	return transport.Outcome{Kind: transport.OutcomeSuccess, PerPositioner: per}, nil
}

func main() {
	configPath := flag.String("config", "petal.yaml", "Petal config/state YAML file")
	requestsPath := flag.String("requests", "requests.yaml", "Batch request YAML file")
	statsPath := flag.String("stats", "schedule_stats.csv", "Stats CSV output path")
	modeName := flag.String("anticollision", "", "Override the config's anticollision mode")
	execute := flag.Bool("execute", false, "Send tables to the (simulated) transport and update stored state")
	animateDir := flag.String("animate", "", "Write a frame sequence of the schedule to this directory")
	flag.Parse()

	log := logger.Named("fpscheduler")

	store, err := config.NewFileStore(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	cfg := store.Config()

	name := cfg.Anticollision
	if *modeName != "" {
		name = *modeName
	}
	mode, ok := modeByName[name]
	if !ok {
		fmt.Fprintf(os.Stderr, "Error: unknown anticollision mode %q\n", name)
		os.Exit(1)
	}

	petal, err := scheduler.NewPetal(log, store, mode, scheduler.Options{PhiLimitOn: cfg.PhiLimitOn})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	ptl, gfa := cfg.FixedPolygons()
	petal.SetFixedObstacles(ptl, gfa, cfg.EoRadius)
	petal.SetPetalTransform(cfg.PetalTransform())
	if lut, err := cfg.RadialLookup(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	} else if lut != nil {
		petal.SetRadialLookup(lut)
	}

	raw, err := os.ReadFile(*requestsPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	var entries []requestEntry
	if err := yaml.Unmarshal(raw, &entries); err != nil {
		fmt.Fprintf(os.Stderr, "Error: parsing %s: %v\n", *requestsPath, err)
		os.Exit(1)
	}

	rejected := 0
	for _, e := range entries {
		cmd, ok := commandByName[e.Command]
		if !ok {
			fmt.Fprintf(os.Stderr, "Error: unknown command %q for %s\n", e.Command, e.PosID)
			os.Exit(1)
		}
		if err := petal.RequestTarget(e.PosID, cmd, e.Val1, e.Val2, e.LogNote); err != nil {
			log.Warn().Str("posid", e.PosID).Err(err).Msg("request rejected")
			rejected++
		}
	}

	res, err := petal.ScheduleMoves()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	log.Info().Str("schedule", res.ScheduleID).
		Int("scheduled", len(res.Scheduled)).
		Int("frozen", len(res.Frozen)).
		Int("rejected", rejected).
		Int("collisions_found", res.CollisionsFound).
		Int("collisions_resolved", res.CollisionsResolved).
		Msg("schedule complete")
	for posid, perr := range res.Errors {
		log.Warn().Str("posid", posid).Err(perr).Msg("per-positioner outcome")
	}

	if *animateDir != "" {
		anim := animator.New(log, animator.Options{Label: fmt.Sprintf("petal %d", cfg.PetalID)})
		anim.Enable()
		petal.EmitSnapshots(anim, scheduler.DefaultSnapshotStep)
		if err := anim.WriteFrameSequence(*animateDir); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}

	if *execute {
		exec, err := petal.SendAndExecuteMoves(context.Background(), nullTransport{})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		log.Info().Int("updated", len(exec.Updated)).Msg("execution complete")
	}

	f, err := os.Create(*statsPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()
	if err := petal.Stats().SaveCSV(f); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	log.Info().Str("path", *statsPath).Msg("stats written")
}
