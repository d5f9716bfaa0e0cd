package navigator

import "github.com/pitwall/pitbridge/pkg/telemetry"

// Field is one adjustable entry of a pit menu.
type Field int

const (
	FieldFuel Field = iota
	FieldTireSet
	FieldPressureFL
	FieldPressureFR
	FieldPressureRL
	FieldPressureRR
)

func (f Field) String() string {
	switch f {
	case FieldFuel:
		return "fuel"
	case FieldTireSet:
		return "tireSet"
	case FieldPressureFL:
		return "pressureFL"
	case FieldPressureFR:
		return "pressureFR"
	case FieldPressureRL:
		return "pressureRL"
	case FieldPressureRR:
		return "pressureRR"
	default:
		return "unknown"
	}
}

// PressureField returns the menu field holding the pressure for c.
func PressureField(c telemetry.Corner) Field {
	switch c {
	case telemetry.FrontRight:
		return FieldPressureFR
	case telemetry.RearLeft:
		return FieldPressureRL
	case telemetry.RearRight:
		return FieldPressureRR
	default:
		return FieldPressureFL
	}
}

// psiToKpa converts a pressure step quoted in psi.
const psiToKpa = 6.894757

// Layout describes a pit menu: how many Down presses after OpenMenu reach
// each field, and how much one Left/Right press changes a value. A field
// without a row is not adjustable in that game.
type Layout struct {
	Rows            map[Field]int
	FuelStepL       float64
	PressureStepKpa float64
}

// Row returns the row of f and whether the layout supports it.
func (l Layout) Row(f Field) (int, bool) {
	row, ok := l.Rows[f]
	return row, ok
}

// StandardLayout is the strategy page shared by the GT sims: fuel two rows
// down, then tire set, compound, and the four pressures. Each press moves
// fuel by one litre and pressure by 0.1 psi.
var StandardLayout = Layout{
	Rows: map[Field]int{
		FieldFuel:       2,
		FieldTireSet:    3,
		FieldPressureFL: 5,
		FieldPressureFR: 6,
		FieldPressureRL: 7,
		FieldPressureRR: 8,
	},
	FuelStepL:       1,
	PressureStepKpa: 0.1 * psiToKpa,
}

// FuelOnlyLayout exposes just the fuel row.
var FuelOnlyLayout = Layout{
	Rows:      map[Field]int{FieldFuel: 2},
	FuelStepL: 1,
}
