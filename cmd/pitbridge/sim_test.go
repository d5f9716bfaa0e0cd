package main

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pitwall/pitbridge/internal/action"
	"github.com/pitwall/pitbridge/pkg/telemetry"
)

func menuFromJSON(t *testing.T, s string) telemetry.PitMenu {
	t.Helper()
	var m telemetry.PitMenu
	require.NoError(t, json.Unmarshal([]byte(s), &m))
	return m
}

func parseActions(t *testing.T, names ...string) []action.Action {
	t.Helper()
	out := make([]action.Action, 0, len(names))
	for _, n := range names {
		a, err := action.Parse(n)
		require.NoError(t, err)
		out = append(out, a)
	}
	return out
}

func TestMenuSim_Pressures(t *testing.T) {
	sim := newMenuSim(menuLayouts["ACC"], menuFromJSON(t, `{"FrontTires": {"LeftPressureKpa": 170, "RightPressureKpa": 170}}`))

	ctx := context.Background()
	for _, a := range parseActions(t, "OpenMenu", "Down", "Down", "Down", "Down", "Down", "Right", "Right", "Down", "Left") {
		require.NoError(t, sim.Send(ctx, a))
	}

	_, final := sim.result()
	step := menuLayouts["ACC"].PressureStepKpa
	assert.InDelta(t, 170+2*step, *final.FrontTires.LeftPressureKpa, 1e-9)
	assert.InDelta(t, 170-step, *final.FrontTires.RightPressureKpa, 1e-9)
}
