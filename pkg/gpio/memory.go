package gpio

import (
	"sync"

	"github.com/golang/glog"
)

// PowerOnLevels are the levels applied at start. GPIO0 and GPIO2 must be
// HIGH for the chip to boot from flash.
var PowerOnLevels = map[int]Level{0: High, 2: High}

// ChangeObserver is notified after a pin level is set.
type ChangeObserver func(pin int, level Level)

// MemoryDriver keeps pin levels in memory. It is the output surface of a
// node running on a host without real pins.
type MemoryDriver struct {
	Observer ChangeObserver

	levels [MaxPins]Level
	lock   sync.RWMutex
}

// NewMemoryDriver creates a MemoryDriver with initial levels.
func NewMemoryDriver(initial map[int]Level) *MemoryDriver {
	d := &MemoryDriver{}
	for pin, level := range initial {
		if pin >= 0 && pin < MaxPins {
			d.levels[pin] = level
		}
	}
	return d
}

// SetLevel implements Driver.
func (d *MemoryDriver) SetLevel(pin int, level Level) error {
	if pin < 0 || pin >= MaxPins {
		return ErrPinOutOfRange
	}
	d.lock.Lock()
	d.levels[pin] = level
	observer := d.Observer
	d.lock.Unlock()
	glog.V(2).Infof("GPIO%d -> %s", pin, level)
	if observer != nil {
		observer(pin, level)
	}
	return nil
}

// Level gets the current level of a pin.
func (d *MemoryDriver) Level(pin int) Level {
	if pin < 0 || pin >= MaxPins {
		return Low
	}
	d.lock.RLock()
	defer d.lock.RUnlock()
	return d.levels[pin]
}

// Levels returns a snapshot of all pin levels.
func (d *MemoryDriver) Levels() (levels [MaxPins]Level) {
	d.lock.RLock()
	levels = d.levels
	d.lock.RUnlock()
	return
}
