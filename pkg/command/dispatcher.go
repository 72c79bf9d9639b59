package command

import (
	"io"

	"github.com/golang/glog"

	"github.com/robotalks/gpionode/pkg/gpio"
)

// FotaStarter starts a firmware upgrade session.
type FotaStarter interface {
	// Start returns an error if no session is started, e.g. one is
	// already in progress.
	Start() error
}

// Dispatcher handles frames received on the control connection.
type Dispatcher struct {
	Pins   gpio.PinTable
	Driver gpio.Driver
	Fota   FotaStarter
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(pins gpio.PinTable, driver gpio.Driver, fota FotaStarter) *Dispatcher {
	return &Dispatcher{Pins: pins, Driver: driver, Fota: fota}
}

// Handle processes one received frame. Replies, if any, are written to
// conn. Malformed frames are dropped without reply.
func (d *Dispatcher) Handle(conn io.Writer, data []byte) {
	if glog.V(2) {
		glog.Infof("command frame: % X", data)
	}
	cmd, err := Decode(data)
	if err != nil {
		glog.V(1).Infof("drop frame: %v", err)
		return
	}
	switch c := cmd.(type) {
	case Echo:
		if _, err := conn.Write(c.Frame); err != nil {
			glog.Warningf("echo reply error: %v", err)
		}
	case GpioSet:
		d.applyPins(c.Mask, gpio.High)
	case GpioClear:
		d.applyPins(c.Mask, gpio.Low)
	case FotaTrigger:
		if d.Fota == nil {
			glog.Warning("FOTA requested but not available")
			return
		}
		if err := d.Fota.Start(); err != nil {
			glog.Warningf("FOTA not started: %v", err)
		}
	case Unknown:
		glog.Warningf("invalid or unsupported operation for CMD = %02X", c.Op)
	}
}

func (d *Dispatcher) applyPins(mask byte, level gpio.Level) {
	pins, err := gpio.Apply(d.Driver, d.Pins, mask, level)
	if err != nil {
		glog.Warningf("set pins %02X to %s error: %v", mask, level, err)
	}
	glog.V(1).Infof("pins %v -> %s", pins, level)
}
