package main

import (
	"context"
	"sync"

	"github.com/pitwall/pitbridge/internal/action"
	"github.com/pitwall/pitbridge/internal/channel"
	"github.com/pitwall/pitbridge/internal/navigator"
	"github.com/pitwall/pitbridge/pkg/telemetry"
)

// menuSim plays actions against a pit menu described by a layout and
// publishes the resulting menu, so a dry run sees the same feedback a
// simulator would give.
type menuSim struct {
	mu      sync.Mutex
	layout  navigator.Layout
	fields  map[int]navigator.Field
	focus   int
	menu    telemetry.PitMenu
	actions []action.Action
	feed    *channel.Latest[telemetry.Snapshot]
}

func newMenuSim(layout navigator.Layout, initial telemetry.PitMenu) *menuSim {
	fields := make(map[int]navigator.Field, len(layout.Rows))
	for f, row := range layout.Rows {
		fields[row] = f
	}
	s := &menuSim{
		layout: layout,
		fields: fields,
		menu:   cloneMenu(initial),
		feed:   channel.NewLatest[telemetry.Snapshot](),
	}
	s.publish()
	return s
}

func (s *menuSim) Send(_ context.Context, a action.Action) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.actions = append(s.actions, a)
	switch a {
	case action.OpenMenu:
		s.focus = 0
	case action.Down:
		s.focus++
	case action.Up:
		if s.focus > 0 {
			s.focus--
		}
	case action.Right:
		s.adjust(1)
	case action.Left:
		s.adjust(-1)
	}
	return nil
}

func (s *menuSim) adjust(dir float64) {
	field, ok := s.fields[s.focus]
	if !ok {
		return
	}

	switch field {
	case navigator.FieldFuel:
		v := max(0, deref(s.menu.FuelToAddL)+dir*s.layout.FuelStepL)
		s.menu.FuelToAddL = &v
	case navigator.FieldTireSet:
		v := 1
		if s.menu.TireSet != nil {
			v = max(1, *s.menu.TireSet+int(dir))
		}
		s.menu.TireSet = &v
	case navigator.FieldPressureFL, navigator.FieldPressureFR:
		if s.menu.FrontTires == nil {
			s.menu.FrontTires = &telemetry.StagedAxle{}
		}
		s.bump(s.menu.FrontTires, field == navigator.FieldPressureFL, dir)
	case navigator.FieldPressureRL, navigator.FieldPressureRR:
		if s.menu.RearTires == nil {
			s.menu.RearTires = &telemetry.StagedAxle{}
		}
		s.bump(s.menu.RearTires, field == navigator.FieldPressureRL, dir)
	}
	s.publish()
}

func (s *menuSim) bump(axle *telemetry.StagedAxle, left bool, dir float64) {
	p := &axle.RightPressureKpa
	if left {
		p = &axle.LeftPressureKpa
	}
	v := deref(*p) + dir*s.layout.PressureStepKpa
	*p = &v
}

// publish hands out a copy; subscribers never see later edits.
func (s *menuSim) publish() {
	menu := cloneMenu(s.menu)
	s.feed.Publish(telemetry.Snapshot{PitMenu: &menu})
}

func (s *menuSim) result() ([]action.Action, telemetry.PitMenu) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]action.Action(nil), s.actions...), cloneMenu(s.menu)
}

func cloneMenu(m telemetry.PitMenu) telemetry.PitMenu {
	out := telemetry.PitMenu{
		FuelToAddL: clonePtr(m.FuelToAddL),
		TireSet:    clonePtr(m.TireSet),
	}
	if m.FrontTires != nil {
		out.FrontTires = &telemetry.StagedAxle{
			LeftPressureKpa:  clonePtr(m.FrontTires.LeftPressureKpa),
			RightPressureKpa: clonePtr(m.FrontTires.RightPressureKpa),
		}
	}
	if m.RearTires != nil {
		out.RearTires = &telemetry.StagedAxle{
			LeftPressureKpa:  clonePtr(m.RearTires.LeftPressureKpa),
			RightPressureKpa: clonePtr(m.RearTires.RightPressureKpa),
		}
	}
	return out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func deref(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}
