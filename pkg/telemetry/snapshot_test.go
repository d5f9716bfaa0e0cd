package telemetry

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f(v float64) *float64 { return &v }

func TestPitFuel_AbsentMenuIsNotZero(t *testing.T) {
	_, ok := Snapshot{}.PitFuel()
	assert.False(t, ok)

	_, ok = Snapshot{PitMenu: &PitMenu{}}.PitFuel()
	assert.False(t, ok)

	v, ok := Snapshot{PitMenu: &PitMenu{FuelToAddL: f(0)}}.PitFuel()
	assert.True(t, ok)
	assert.Equal(t, 0.0, v)
}

func TestPitPressure_PicksCorner(t *testing.T) {
	s := Snapshot{PitMenu: &PitMenu{
		FrontTires: &StagedAxle{LeftPressureKpa: f(170), RightPressureKpa: f(171)},
		RearTires:  &StagedAxle{LeftPressureKpa: f(160)},
	}}

	tests := []struct {
		corner Corner
		want   float64
		ok     bool
	}{
		{FrontLeft, 170, true},
		{FrontRight, 171, true},
		{RearLeft, 160, true},
		{RearRight, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.corner.String(), func(t *testing.T) {
			got, ok := s.PitPressure(tt.corner)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSnapshot_DecodesNullSections(t *testing.T) {
	var s Snapshot
	require.NoError(t, json.Unmarshal([]byte(`{"Player": null, "PitMenu": {"TireSet": 2}}`), &s))
	assert.Nil(t, s.Player)
	ts, ok := s.PitTireSet()
	assert.True(t, ok)
	assert.Equal(t, 2, ts)
}
