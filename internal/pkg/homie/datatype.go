package homie

// DataType is the type advertised on a property's $datatype.
type DataType int

const (
	DataTypeString DataType = iota
	DataTypeInteger
	DataTypeFloat
	DataTypeBoolean
	DataTypeEnum
	DataTypeColorRGB
	DataTypeColorHSV
)

// String returns the $datatype payload. Both color types advertise as
// "color", the colour model lives in $format.
func (t DataType) String() string {
	switch t {
	case DataTypeInteger:
		return "integer"
	case DataTypeFloat:
		return "float"
	case DataTypeBoolean:
		return "boolean"
	case DataTypeEnum:
		return "enum"
	case DataTypeColorRGB, DataTypeColorHSV:
		return "color"
	default:
		return "string"
	}
}

func (t DataType) isColor() bool {
	return t == DataTypeColorRGB || t == DataTypeColorHSV
}

// colorFormat is the fixed $format of a color type.
func (t DataType) colorFormat() string {
	switch t {
	case DataTypeColorRGB:
		return "rgb"
	case DataTypeColorHSV:
		return "hsv"
	}
	return ""
}
