package property

import (
	"fmt"

	"github.com/solatis/microproto/internal/types"
	"github.com/solatis/microproto/internal/wire"
)

// Widget selects the control a client renders for a property.
type Widget uint8

const (
	WidgetAuto Widget = iota
	WidgetSlider
	WidgetToggle
	WidgetColor
	WidgetSelect
	WidgetText
	WidgetButton
)

var widgetNames = [...]string{"auto", "slider", "toggle", "color", "select", "text", "button"}

func (w Widget) String() string {
	if int(w) < len(widgetNames) {
		return widgetNames[w]
	}
	return fmt.Sprintf("widget(%d)", uint8(w))
}

// MaxColorGroup is the largest colour group a hint can carry.
const MaxColorGroup = 15

// UI hint flag bits. The colour group occupies the upper nibble.
const (
	uiHasWidget uint8 = 0x01
	uiHasUnit   uint8 = 0x02
	uiHasIcon   uint8 = 0x04
)

// UIHints are presentation hints sent with the schema. The zero value means
// none.
type UIHints struct {
	Widget     Widget
	Unit       string
	Icon       string
	ColorGroup uint8
}

// IsZero reports whether no hint is set.
func (u UIHints) IsZero() bool { return u == UIHints{} }

func (u UIHints) validate() error {
	switch {
	case u.ColorGroup > MaxColorGroup:
		return fmt.Errorf("%w: colour group %d", types.ErrInvariant, u.ColorGroup)
	case len(u.Unit) > 255 || len(u.Icon) > 255:
		return fmt.Errorf("%w: unit or icon longer than 255 bytes", types.ErrInvariant)
	}
	return nil
}

func (u UIHints) flags() uint8 {
	f := u.ColorGroup << 4
	if u.Widget != WidgetAuto {
		f |= uiHasWidget
	}
	if u.Unit != "" {
		f |= uiHasUnit
	}
	if u.Icon != "" {
		f |= uiHasIcon
	}
	return f
}

// Encode writes the hints:
//
//	flags u8 (bit0 widget, bit1 unit, bit2 icon, bits 4-7 colour group)
//	[widget u8] [u8 len | unit] [u8 len | icon]
func (u UIHints) Encode(wb *wire.WriteBuffer) bool {
	f := u.flags()
	ok := wb.WriteU8(f)
	if ok && f&uiHasWidget != 0 {
		ok = wb.WriteU8(uint8(u.Widget))
	}
	if ok && f&uiHasUnit != 0 {
		ok = writeIdent(wb, u.Unit)
	}
	if ok && f&uiHasIcon != 0 {
		ok = writeIdent(wb, u.Icon)
	}
	return ok
}

func writeIdent(wb *wire.WriteBuffer, s string) bool {
	return wb.WriteU8(uint8(len(s))) && wb.WriteBytes([]byte(s))
}

// DecodeUIHints reads hints written by Encode.
func DecodeUIHints(rb *wire.ReadBuffer) (UIHints, error) {
	var u UIHints
	f, err := rb.ReadU8()
	if err != nil {
		return u, err
	}
	u.ColorGroup = f >> 4
	if f&uiHasWidget != 0 {
		w, err := rb.ReadU8()
		if err != nil {
			return u, err
		}
		u.Widget = Widget(w)
	}
	if f&uiHasUnit != 0 {
		if u.Unit, err = readIdent(rb); err != nil {
			return u, err
		}
	}
	if f&uiHasIcon != 0 {
		if u.Icon, err = readIdent(rb); err != nil {
			return u, err
		}
	}
	return u, nil
}

func readIdent(rb *wire.ReadBuffer) (string, error) {
	n, err := rb.ReadU8()
	if err != nil {
		return "", err
	}
	b, err := rb.ReadBytes(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}
