package homie

// Value is a property value accepted by Property.Send. It is one of Integer,
// Float, Boolean, String, EnumValue, RGB or HSV.
type Value interface {
	isValue()
}

type Integer int64

type Boolean bool

type String string

type EnumValue string

// Float is a floating point value. A nil Precision renders the shortest
// representation that round-trips, otherwise exactly *Precision fractional
// digits are used.
type Float struct {
	V         float64
	Precision *int
}

// FloatValue renders v with the shortest representation that round-trips.
func FloatValue(v float64) Float {
	return Float{V: v}
}

// FloatWithPrecision renders v with precision fractional digits.
func FloatWithPrecision(v float64, precision int) Float {
	return Float{V: v, Precision: &precision}
}

// RGB components are each in [0,255].
type RGB struct {
	R, G, B int
}

// HSV hue is in [0,360], saturation and value in [0,100].
type HSV struct {
	H, S, V int
}

func (Integer) isValue()   {}
func (Float) isValue()     {}
func (Boolean) isValue()   {}
func (String) isValue()    {}
func (EnumValue) isValue() {}
func (RGB) isValue()       {}
func (HSV) isValue()       {}
