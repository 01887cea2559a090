// Package device declares the property set of the LED controller and the
// program catalogue built on it.
package device

import (
	"github.com/solatis/microproto/internal/property"
	"github.com/solatis/microproto/internal/schema"
	"github.com/solatis/microproto/internal/types"
)

const (
	// MaxPrograms bounds the program catalogue.
	MaxPrograms = 16

	// ProgramNameSize is the size of a program's resource header, which holds
	// its NUL padded name.
	ProgramNameSize = 16

	MaxLEDs         = 1024
	DefaultLEDLimit = 300

	paletteInline = 4
	paletteMax    = 16
)

// Segment is the lit range of the strip.
type Segment struct {
	Start  uint16 `json:"start"`
	Length uint16 `json:"length"`
}

// Color is an RGB triple.
type Color [3]uint8

func init() {
	schema.MustRegisterFieldNames[Segment]("start", "length")
}

// Props is the declared property set of the device.
type Props struct {
	Brightness *property.Scalar[uint8]
	Speed      *property.Scalar[uint8]
	Enabled    *property.Scalar[bool]
	LEDLimit   *property.Scalar[uint16]
	Program    *property.Scalar[string]
	Segment    *property.Object[Segment]
	Palette    *property.List[Color]
	Status     *property.Variant
	Programs   *property.Resource
}

// NewProps declares the device properties. Program bodies go to blobs.
func NewProps(blobs property.BlobStore) *Props {
	return &Props{
		Brightness: property.New[uint8]("brightness", 128,
			property.Persistent(), property.BLEExposed(), property.WithGroup(1),
			property.WithUIHints(property.UIHints{Widget: property.WidgetSlider, Icon: "sun"}),
			property.WithDescription("Global brightness")),
		Speed: property.New[uint8]("speed", 50,
			property.Persistent(), property.BLEExposed(), property.WithGroup(1),
			property.WithUIHints(property.UIHints{Widget: property.WidgetSlider, Icon: "gauge"}),
			property.WithDescription("Animation speed")),
		Enabled: property.New("enabled", true,
			property.Persistent(), property.BLEExposed(), property.WithGroup(1),
			property.WithUIHints(property.UIHints{Widget: property.WidgetToggle})),
		LEDLimit: property.New[uint16]("ledLimit", DefaultLEDLimit,
			property.Persistent(), property.WithGroup(2),
			property.WithConstraints(schema.Between[uint16](1, MaxLEDs)),
			property.WithUIHints(property.UIHints{Unit: "leds"}),
			property.WithDescription("Number of driven LEDs")),
		Program: property.New("program", "",
			property.Persistent(), property.WithGroup(3),
			property.WithContainer(schema.MaxLen(ProgramNameSize)),
			property.WithUIHints(property.UIHints{Widget: property.WidgetSelect}),
			property.WithDescription("Selected program")),
		Segment: property.NewObject("segment", Segment{Start: 0, Length: DefaultLEDLimit},
			property.Persistent(), property.WithGroup(2)),
		Palette: property.NewList[Color]("palette", paletteInline, paletteMax,
			property.Persistent(), property.WithGroup(3), property.WithContainer(schema.MaxLen(paletteMax)),
			property.WithUIHints(property.UIHints{Widget: property.WidgetColor, ColorGroup: 1})),
		Status: property.NewVariant("status", 4, []property.Alternative{
			{Name: "ok", Type: types.TypeUint8},
			{Name: "error", Type: types.TypeInt32},
		}, property.ReadOnly(), property.WithDescription("Renderer status")),
		Programs: property.NewResource("programs", MaxPrograms, ProgramNameSize, blobs,
			property.Persistent(), property.WithGroup(3)),
	}
}

// All returns the properties in registration order.
func (p *Props) All() []property.Property {
	return []property.Property{
		p.Brightness, p.Speed, p.Enabled, p.LEDLimit, p.Program,
		p.Segment, p.Palette, p.Status, p.Programs,
	}
}

// Register adds every property to reg.
func (p *Props) Register(reg *property.Registry) error {
	return reg.Register(p.All()...)
}
