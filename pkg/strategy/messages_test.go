package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_FullRequest(t *testing.T) {
	raw := `{
		"PitStrategyRequest": {
			"FuelToAddL": 42.5,
			"TireSet": 3,
			"FrontTires": {"Compound": "Dry", "LeftPressureKpa": 172.4, "RightPressureKpa": null},
			"RearTires": null
		}
	}`

	req, err := Parse([]byte(raw))
	require.NoError(t, err)

	require.NotNil(t, req.FuelToAddL)
	assert.InDelta(t, 42.5, *req.FuelToAddL, 1e-9)
	require.NotNil(t, req.TireSet)
	assert.Equal(t, 3, *req.TireSet)
	require.NotNil(t, req.FrontTires)
	assert.Equal(t, "Dry", req.FrontTires.Compound)
	require.NotNil(t, req.FrontTires.LeftPressureKpa)
	assert.InDelta(t, 172.4, *req.FrontTires.LeftPressureKpa, 1e-9)
	assert.Nil(t, req.FrontTires.RightPressureKpa)
	assert.Nil(t, req.RearTires)
	assert.Equal(t, []string{"fuel", "tireSet", "frontTires"}, req.Fields())
}

func TestParse_NullFieldsLeaveUnchanged(t *testing.T) {
	req, err := Parse([]byte(`{"PitStrategyRequest": {"FuelToAddL": null}}`))
	require.NoError(t, err)
	assert.True(t, req.Empty())
	assert.Empty(t, req.Fields())
}

func TestDecode_SwallowsFailures(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "malformed json", raw: `{"PitStrategyRequest": `},
		{name: "other message", raw: `{"Ping": 1}`},
		{name: "wrong field type", raw: `{"PitStrategyRequest": {"TireSet": "soft"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var reasons []error
			_, ok := Decode([]byte(tt.raw), func(err error) { reasons = append(reasons, err) })
			assert.False(t, ok)
			assert.Len(t, reasons, 1)
		})
	}
}

func TestDecode_NilErrorCallback(t *testing.T) {
	_, ok := Decode([]byte(`nope`), nil)
	assert.False(t, ok)
}

func TestEncode_ProducesWireShape(t *testing.T) {
	data, err := Encode(Request{FuelToAddL: Float(10)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"PitStrategyRequest":{"FuelToAddL":10,"TireSet":null,"FrontTires":null,"RearTires":null}}`, string(data))
}

func TestEmpty_TireSpecWithOnlyCompound(t *testing.T) {
	req := Request{RearTires: &TireSpec{Compound: "Wet"}}
	assert.False(t, req.Empty())
	assert.Equal(t, []string{"rearTires"}, req.Fields())
}
