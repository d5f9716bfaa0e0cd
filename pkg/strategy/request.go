// Package strategy defines the pit strategy request the remote operator sends
// and the wire message it arrives in.
package strategy

// TireSpec describes the requested tires for one axle.
type TireSpec struct {
	Compound         string   `json:"Compound"`
	LeftPressureKpa  *float64 `json:"LeftPressureKpa"`
	RightPressureKpa *float64 `json:"RightPressureKpa"`
}

// Request is a one-shot pit strategy adjustment. Every field is optional;
// a nil field leaves the corresponding pit-menu entry unchanged.
type Request struct {
	FuelToAddL *float64  `json:"FuelToAddL"`
	TireSet    *int      `json:"TireSet"`
	FrontTires *TireSpec `json:"FrontTires"`
	RearTires  *TireSpec `json:"RearTires"`
}

// Empty reports whether the request asks for no change at all.
func (r Request) Empty() bool {
	return r.FuelToAddL == nil &&
		r.TireSet == nil &&
		r.FrontTires.empty() &&
		r.RearTires.empty()
}

// Fields lists the names of the fields the request sets, in menu order.
func (r Request) Fields() []string {
	var fields []string
	if r.FuelToAddL != nil {
		fields = append(fields, "fuel")
	}
	if r.TireSet != nil {
		fields = append(fields, "tireSet")
	}
	if !r.FrontTires.empty() {
		fields = append(fields, "frontTires")
	}
	if !r.RearTires.empty() {
		fields = append(fields, "rearTires")
	}
	return fields
}

func (t *TireSpec) empty() bool {
	return t == nil || (t.Compound == "" && t.LeftPressureKpa == nil && t.RightPressureKpa == nil)
}

// Float returns a pointer to v. Handy for building requests in code and tests.
func Float(v float64) *float64 { return &v }

// Int returns a pointer to v.
func Int(v int) *int { return &v }
