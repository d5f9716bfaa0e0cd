// Package telemetry holds the normalized simulator state the bridge navigates
// against. Nil sections and nil leaves mean "not currently meaningful".
package telemetry

// Corner identifies one wheel.
type Corner int

const (
	FrontLeft Corner = iota
	FrontRight
	RearLeft
	RearRight
)

// Corners lists every corner in pit-menu order.
var Corners = []Corner{FrontLeft, FrontRight, RearLeft, RearRight}

func (c Corner) String() string {
	switch c {
	case FrontLeft:
		return "FL"
	case FrontRight:
		return "FR"
	case RearLeft:
		return "RL"
	case RearRight:
		return "RR"
	default:
		return "unknown"
	}
}

// Tire is the on-track state of one tire.
type Tire struct {
	PressureKpa *float64 `json:"PressureKpa"`
	Wear        *float64 `json:"Wear"`
}

// Axle pairs the left and right tire of one axle.
type Axle struct {
	Left  Tire `json:"Left"`
	Right Tire `json:"Right"`
}

// Player is the player's on-track car.
type Player struct {
	FuelRemainingL *float64 `json:"FuelRemainingL"`
	TireSet        *int     `json:"TireSet"`
	FrontTires     *Axle    `json:"FrontTires"`
	RearTires      *Axle    `json:"RearTires"`
}

// StagedAxle is the pressure staged in the pit menu for one axle.
type StagedAxle struct {
	LeftPressureKpa  *float64 `json:"LeftPressureKpa"`
	RightPressureKpa *float64 `json:"RightPressureKpa"`
}

// PitMenu is what the in-game pit menu currently shows. It is distinct from
// the car's on-track state.
type PitMenu struct {
	FuelToAddL *float64    `json:"FuelToAddL"`
	TireSet    *int        `json:"TireSet"`
	FrontTires *StagedAxle `json:"FrontTires"`
	RearTires  *StagedAxle `json:"RearTires"`
}

// Snapshot is a point-in-time view of the simulator.
type Snapshot struct {
	Player  *Player  `json:"Player"`
	PitMenu *PitMenu `json:"PitMenu"`
}

// PitFuel returns the staged fuel-to-add.
func (s Snapshot) PitFuel() (float64, bool) {
	if s.PitMenu == nil || s.PitMenu.FuelToAddL == nil {
		return 0, false
	}
	return *s.PitMenu.FuelToAddL, true
}

// PitTireSet returns the staged tire set.
func (s Snapshot) PitTireSet() (int, bool) {
	if s.PitMenu == nil || s.PitMenu.TireSet == nil {
		return 0, false
	}
	return *s.PitMenu.TireSet, true
}

// PitPressure returns the staged pressure for one corner.
func (s Snapshot) PitPressure(c Corner) (float64, bool) {
	if s.PitMenu == nil {
		return 0, false
	}
	var axle *StagedAxle
	switch c {
	case FrontLeft, FrontRight:
		axle = s.PitMenu.FrontTires
	case RearLeft, RearRight:
		axle = s.PitMenu.RearTires
	}
	if axle == nil {
		return 0, false
	}
	v := axle.RightPressureKpa
	if c == FrontLeft || c == RearLeft {
		v = axle.LeftPressureKpa
	}
	if v == nil {
		return 0, false
	}
	return *v, true
}
