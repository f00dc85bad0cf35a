package positioner

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidate_OK(t *testing.T) {
	p := testPositioner()
	assert.NoError(t, p.Validate())
}

func TestValidate_RejectsNonFinite(t *testing.T) {
	p := testPositioner()
	p.Calib.LengthR1 = 1.0 / zero()
	assert.ErrorIs(t, p.Validate(), ErrInvalidCalibration)
}

func TestValidate_RejectsPosOutsideTargetableRange(t *testing.T) {
	p := testPositioner()
	p.PosT = 500
	assert.ErrorIs(t, p.Validate(), ErrInvalidCalibration)
}

func TestValidate_RejectsGearCalibOutOfTolerance(t *testing.T) {
	p := testPositioner()
	p.GearCalibT = 1.2
	assert.ErrorIs(t, p.Validate(), ErrInvalidCalibration)
}

func TestGearRatio(t *testing.T) {
	p := testPositioner()
	p.GearCalibT = 1.01
	assert.InDelta(t, NominalGearRatio*1.01, p.GearRatio(0), 1e-9)
}

func zero() float64 { return 0 }
