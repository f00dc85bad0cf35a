// Package config loads a petal's layout and per-positioner calibration
// from YAML and exposes a file-backed positioner state store. It only ever
// loads calibration; deriving calibration from measurements belongs to the
// instrument's offline tooling.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/desi-focalplane/fpanticoll/pkg/coords"
	"github.com/desi-focalplane/fpanticoll/pkg/geometry"
	"github.com/desi-focalplane/fpanticoll/pkg/positioner"
)

// PositionerRecord is one device's YAML calibration entry.
type PositionerRecord struct {
	PosID     string `yaml:"pos_id"`
	BusID     uint32 `yaml:"bus_id"`
	CanID     uint32 `yaml:"can_id"`
	DeviceLoc int    `yaml:"device_loc"`

	LengthR1 float64 `yaml:"length_r1"`
	LengthR2 float64 `yaml:"length_r2"`
	OffsetX  float64 `yaml:"offset_x"`
	OffsetY  float64 `yaml:"offset_y"`
	OffsetT  float64 `yaml:"offset_t"`
	OffsetP  float64 `yaml:"offset_p"`

	PhysicalRangeT [2]float64 `yaml:"physical_range_t"`
	PhysicalRangeP [2]float64 `yaml:"physical_range_p"`

	GearCalibT float64 `yaml:"gear_calib_t"`
	GearCalibP float64 `yaml:"gear_calib_p"`

	PosT float64 `yaml:"pos_t"`
	PosP float64 `yaml:"pos_p"`

	CurrSpinUpDown       float64 `yaml:"curr_spin_up_down"`
	CurrCruise           float64 `yaml:"curr_cruise"`
	CurrCreep            float64 `yaml:"curr_creep"`
	CreepPeriodMs        float64 `yaml:"creep_period_ms"`
	SpinUpDownPeriod     int     `yaml:"spin_up_down_period"`
	FinalCreepOn         bool    `yaml:"final_creep_on"`
	AntibacklashOn       bool    `yaml:"antibacklash_on"`
	OnlyCreep            bool    `yaml:"only_creep"`
	MinDistAtCruiseSpeed float64 `yaml:"min_dist_at_cruise_speed"`
	Backlash             float64 `yaml:"backlash"`

	AntibacklashFinalMoveDirT float64 `yaml:"antibacklash_final_move_dir_t"`
	AntibacklashFinalMoveDirP float64 `yaml:"antibacklash_final_move_dir_p"`

	CtrlEnabled           bool `yaml:"ctrl_enabled"`
	ClassifiedAsRetracted bool `yaml:"classified_as_retracted"`

	KeepoutExpansionCentral float64 `yaml:"keepout_expansion_central"`
	KeepoutExpansionArm     float64 `yaml:"keepout_expansion_arm"`
	KeepoutExpansionFerrule float64 `yaml:"keepout_expansion_ferrule"`
}

// Config is the whole petal file.
type Config struct {
	PetalID int `yaml:"petal_id"`

	// Petal rigid transform from obsXY to ptlXY.
	PetalRotationDeg float64 `yaml:"petal_rotation_deg"`
	PetalTranslateX  float64 `yaml:"petal_translate_x"`
	PetalTranslateY  float64 `yaml:"petal_translate_y"`

	// Anticollision is one of None, Freeze, Adjust, AdjustRequestedOnly.
	Anticollision string `yaml:"anticollision"`
	PhiLimitOn    bool   `yaml:"phi_limit_on"`

	// R2S/S2R lookup samples, sorted by R ascending.
	RadialLookupR []float64 `yaml:"radial_lookup_r"`
	RadialLookupS []float64 `yaml:"radial_lookup_s"`

	// Fixed keepout polygons, vertex lists in the petal's shared frame.
	PTL      [][2]float64 `yaml:"ptl"`
	GFA      [][2]float64 `yaml:"gfa"`
	EoRadius float64      `yaml:"eo_radius"`

	Positioners []PositionerRecord `yaml:"positioners"`
}

// Load reads and validates a petal YAML file.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	var c Config
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	seen := make(map[string]bool, len(c.Positioners))
	for _, rec := range c.Positioners {
		if rec.PosID == "" {
			return nil, fmt.Errorf("config: %s: positioner with empty pos_id", path)
		}
		if seen[rec.PosID] {
			return nil, fmt.Errorf("config: %s: duplicate pos_id %q", path, rec.PosID)
		}
		seen[rec.PosID] = true
	}
	return &c, nil
}

// PetalTransform returns the obsXY<->ptlXY rigid transform.
func (c *Config) PetalTransform() coords.PetalTransform {
	return coords.PetalTransform{
		RotationDeg: c.PetalRotationDeg,
		TranslateX:  c.PetalTranslateX,
		TranslateY:  c.PetalTranslateY,
	}
}

// RadialLookup builds the R2S/S2R table, or nil if the file carries none.
func (c *Config) RadialLookup() (*coords.RadialLookup, error) {
	if len(c.RadialLookupR) == 0 {
		return nil, nil
	}
	return coords.NewRadialLookup(c.RadialLookupR, c.RadialLookupS)
}

// FixedPolygons returns the PTL and GFA keepouts as polygons.
func (c *Config) FixedPolygons() (ptl, gfa geometry.Polygon) {
	return toPolygon(c.PTL), toPolygon(c.GFA)
}

func toPolygon(pts [][2]float64) geometry.Polygon {
	out := geometry.Polygon{Points: make([]geometry.Point, len(pts)), Convex: true}
	for i, p := range pts {
		out.Points[i] = geometry.Point{X: p[0], Y: p[1]}
	}
	return out
}

// build converts one record into a live positioner, deriving the targetable
// ranges by shrinking the physical ranges by the backlash margin.
func (rec PositionerRecord) build() *positioner.Positioner {
	margin := rec.Backlash
	return &positioner.Positioner{
		PosID:      rec.PosID,
		BusID:      rec.BusID,
		CanID:      rec.CanID,
		DeviceLoc:  rec.DeviceLoc,
		GearCalibT: rec.GearCalibT,
		GearCalibP: rec.GearCalibP,
		Calib: coords.Calibration{
			LengthR1:         rec.LengthR1,
			LengthR2:         rec.LengthR2,
			OffsetX:          rec.OffsetX,
			OffsetY:          rec.OffsetY,
			OffsetT:          rec.OffsetT,
			OffsetP:          rec.OffsetP,
			PhysicalRangeT:   rec.PhysicalRangeT,
			PhysicalRangeP:   rec.PhysicalRangeP,
			TargetableRangeT: [2]float64{rec.PhysicalRangeT[0] + margin, rec.PhysicalRangeT[1] - margin},
			TargetableRangeP: [2]float64{rec.PhysicalRangeP[0] + margin, rec.PhysicalRangeP[1] - margin},
			MinPatrol:        0,
			MaxPatrol:        rec.LengthR1 + rec.LengthR2,
		},
		PosT:                      rec.PosT,
		PosP:                      rec.PosP,
		CurrSpinUpDown:            rec.CurrSpinUpDown,
		CurrCruise:                rec.CurrCruise,
		CurrCreep:                 rec.CurrCreep,
		CreepPeriodMs:             rec.CreepPeriodMs,
		SpinUpDownPeriod:          rec.SpinUpDownPeriod,
		FinalCreepOn:              rec.FinalCreepOn,
		AntibacklashOn:            rec.AntibacklashOn,
		OnlyCreep:                 rec.OnlyCreep,
		MinDistAtCruiseSpeed:      rec.MinDistAtCruiseSpeed,
		Backlash:                  rec.Backlash,
		AntibacklashFinalMoveDirT: rec.AntibacklashFinalMoveDirT,
		AntibacklashFinalMoveDirP: rec.AntibacklashFinalMoveDirP,
		CtrlEnabled:               rec.CtrlEnabled,
		ClassifiedAsRetracted:     rec.ClassifiedAsRetracted,
		KeepoutExpansionCentral:   rec.KeepoutExpansionCentral,
		KeepoutExpansionArm:       rec.KeepoutExpansionArm,
		KeepoutExpansionFerrule:   rec.KeepoutExpansionFerrule,
	}
}

// FileStore is a YAML-file-backed positioner state store. LoadAll builds
// the live positioner records; Save rewrites the file with one positioner's
// updated angles via a temp-file rename, so a crash mid-write never
// corrupts the stored state.
type FileStore struct {
	mu   sync.Mutex
	path string
	cfg  *Config
}

// NewFileStore opens (and parses) the store at path.
func NewFileStore(path string) (*FileStore, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	return &FileStore{path: path, cfg: cfg}, nil
}

// Config returns the parsed petal file backing this store.
func (s *FileStore) Config() *Config { return s.cfg }

// LoadAll builds the positioner map from the file's records.
func (s *FileStore) LoadAll() (map[string]*positioner.Positioner, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]*positioner.Positioner, len(s.cfg.Positioners))
	for _, rec := range s.cfg.Positioners {
		out[rec.PosID] = rec.build()
	}
	return out, nil
}

// Save persists one positioner's updated angles.
func (s *FileStore) Save(posid string, posT, posP float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	found := false
	for i := range s.cfg.Positioners {
		if s.cfg.Positioners[i].PosID == posid {
			s.cfg.Positioners[i].PosT = posT
			s.cfg.Positioners[i].PosP = posP
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("config: save for unknown positioner %q", posid)
	}

	raw, err := yaml.Marshal(s.cfg)
	if err != nil {
		return fmt.Errorf("config: marshaling %s: %w", s.path, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".petal-*.yaml")
	if err != nil {
		return fmt.Errorf("config: temp file for %s: %w", s.path, err)
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("config: writing %s: %w", s.path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("config: closing %s: %w", s.path, err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("config: replacing %s: %w", s.path, err)
	}
	return nil
}
