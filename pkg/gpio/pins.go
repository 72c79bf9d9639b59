// Package gpio provides the digital output surface of a node.
package gpio

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	fx "github.com/robotalks/gpionode/pkg/framework"
)

// MaxPins is the number of pins addressable by one mask byte.
const MaxPins = 8

// Level is the output level of a pin.
type Level uint8

// Levels
const (
	Low  Level = 0
	High Level = 1
)

// String implements fmt.Stringer.
func (l Level) String() string {
	if l == High {
		return "HIGH"
	}
	return "LOW"
}

// Driver drives output pins.
type Driver interface {
	SetLevel(pin int, level Level) error
}

// PinTable maps a pin index to whether it may be controlled remotely.
// Pins used for boot strapping are excluded.
type PinTable [MaxPins]bool

// DefaultPinTable allows GPIO0 and GPIO2. GPIO1 is the UART TX line.
var DefaultPinTable = PinTable{0: true, 2: true}

// ErrPinOutOfRange indicates a pin index beyond MaxPins.
var ErrPinOutOfRange = errors.New("pin out of range")

// ParsePinTable parses a comma separated list of pin indices, e.g. "0,2".
func ParsePinTable(s string) (t PinTable, err error) {
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item == "" {
			continue
		}
		pin, err := strconv.Atoi(item)
		if err != nil {
			return t, fmt.Errorf("invalid pin %q: %w", item, err)
		}
		if pin < 0 || pin >= MaxPins {
			return t, fmt.Errorf("pin %d: %w", pin, ErrPinOutOfRange)
		}
		t[pin] = true
	}
	return t, nil
}

// Controllable tells if the pin can be driven by commands.
func (t PinTable) Controllable(pin int) bool {
	return pin >= 0 && pin < MaxPins && t[pin]
}

// Pins lists controllable pin indices in ascending order.
func (t PinTable) Pins() []int {
	return Pins(t.Mask())
}

// Mask returns the mask with a bit set for every controllable pin.
func (t PinTable) Mask() byte {
	var m byte
	for pin, ok := range t {
		if ok {
			m |= 1 << uint(pin)
		}
	}
	return m
}

// String implements fmt.Stringer.
func (t PinTable) String() string {
	pins := t.Pins()
	items := make([]string, len(pins))
	for n, pin := range pins {
		items[n] = strconv.Itoa(pin)
	}
	return strings.Join(items, ",")
}

// Apply drives every controllable pin whose bit is set in mask to level.
// Bits of pins not in the table are ignored. It returns the pins driven.
func Apply(d Driver, t PinTable, mask byte, level Level) ([]int, error) {
	var driven []int
	var errs fx.AggregatedError
	for pin := 0; pin < MaxPins; pin++ {
		if mask&(1<<uint(pin)) == 0 || !t.Controllable(pin) {
			continue
		}
		if err := d.SetLevel(pin, level); err != nil {
			errs.Add(fmt.Errorf("GPIO%d: %w", pin, err))
			continue
		}
		driven = append(driven, pin)
	}
	return driven, errs.Aggregate()
}

// Pins lists the pin indices whose bits are set in mask.
func Pins(mask byte) []int {
	var pins []int
	for pin := 0; pin < MaxPins; pin++ {
		if mask&(1<<uint(pin)) != 0 {
			pins = append(pins, pin)
		}
	}
	return pins
}
