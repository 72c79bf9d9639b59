package registry

import (
	"context"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/golang/protobuf/proto"

	"github.com/robotalks/gpionode/pkg/device"
	"github.com/robotalks/gpionode/pkg/fota"
	"github.com/robotalks/gpionode/pkg/gpio"
	"github.com/robotalks/gpionode/pkg/heartbeat"
)

// Reporter keeps the status snapshot of a node and sends it to the
// Registrar on every change.
type Reporter struct {
	Registrar Registrar

	lock   sync.Mutex
	status NodeStatus
	pins   map[int]*PinState
}

// NewReporter creates a Reporter for the controllable pins with their
// current levels.
func NewReporter(reg Registrar, version uint16, pins gpio.PinTable, levels [gpio.MaxPins]gpio.Level) *Reporter {
	r := &Reporter{
		Registrar: reg,
		status: NodeStatus{
			Link:     device.Disconnected.String(),
			Firmware: uint32(version),
			Fota:     &FotaStatus{State: fota.StateIdle.String()},
		},
		pins: make(map[int]*PinState),
	}
	for _, pin := range pins.Pins() {
		state := &PinState{Pin: uint32(pin), High: levels[pin] == gpio.High}
		r.status.Pins = append(r.status.Pins, state)
		r.pins[pin] = state
	}
	return r
}

// Status returns a copy of the current snapshot.
func (r *Reporter) Status() *NodeStatus {
	r.lock.Lock()
	defer r.lock.Unlock()
	return proto.Clone(&r.status).(*NodeStatus)
}

// LinkChanged implements device.LinkObserver.
func (r *Reporter) LinkChanged(state device.LinkState, st heartbeat.Status) {
	r.update(func(s *NodeStatus) bool {
		s.Link = state.String()
		if state == device.IPAcquired {
			s.Ip, s.Mac = st.IP.String(), st.MAC.String()
		} else {
			s.Ip, s.Mac = "", ""
		}
		return true
	})
}

// PinChanged implements gpio.ChangeObserver.
func (r *Reporter) PinChanged(pin int, level gpio.Level) {
	r.update(func(s *NodeStatus) bool {
		state := r.pins[pin]
		if state == nil || state.High == (level == gpio.High) {
			return false
		}
		state.High = level == gpio.High
		return true
	})
}

// FotaChanged is used as fota.Orchestrator.Observer.
func (r *Reporter) FotaChanged(st fota.Status) {
	r.update(func(s *NodeStatus) bool {
		s.Fota = &FotaStatus{State: st.State.String(), Bank: st.Target.String()}
		if st.Err != nil {
			s.Fota.Error = st.Err.Error()
		}
		return true
	})
}

func (r *Reporter) update(fn func(*NodeStatus) bool) {
	r.lock.Lock()
	if !fn(&r.status) {
		r.lock.Unlock()
		return
	}
	r.status.Timestamp = time.Now().UnixNano()
	st := proto.Clone(&r.status).(*NodeStatus)
	r.lock.Unlock()
	if r.Registrar == nil {
		return
	}
	if err := r.Registrar.SendStatus(context.Background(), st); err != nil {
		glog.Warningf("send status error: %v", err)
	}
}
