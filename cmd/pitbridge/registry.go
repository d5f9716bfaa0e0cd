package main

import (
	"log/slog"

	"github.com/pitwall/pitbridge/internal/detect"
	"github.com/pitwall/pitbridge/internal/navigator"
)

// menuLayouts are the simulators whose pit menu can be driven and verified.
// Identities must match what the telemetry collaborator reports, case
// included.
var menuLayouts = map[string]navigator.Layout{
	"ACC": navigator.StandardLayout,
	"LMU": navigator.FuelOnlyLayout,
}

func buildRegistry(logger *slog.Logger, detector detect.Detector) *navigator.Registry {
	registry := navigator.NewRegistry(navigator.Fallback(logger)).MustRegister(
		navigator.Inert("AMS2", "pit menu state is not exposed in telemetry", logger),
		navigator.Inert("iRacing", "pit strategy is set through chat macros", logger),
	)
	for game, layout := range menuLayouts {
		registry.MustRegister(navigator.NewMenu(game, layout, detector, logger))
	}
	return registry
}
