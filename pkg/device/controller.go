// Package device wires the protocol handlers of a node around the link
// lifecycle.
package device

import (
	"context"
	"fmt"
	"net"

	"github.com/golang/glog"

	"github.com/robotalks/gpionode/pkg/command"
	"github.com/robotalks/gpionode/pkg/fota"
	fx "github.com/robotalks/gpionode/pkg/framework"
	"github.com/robotalks/gpionode/pkg/heartbeat"
)

// FirmwareVersion is reported in the heartbeat payload.
const FirmwareVersion uint16 = 0x000A

// LinkState is the state of the network link.
type LinkState int

// Link states
const (
	Disconnected LinkState = iota
	Associated
	IPAcquired
)

var linkStateNames = [...]string{"disconnected", "associated", "ip-acquired"}

// String implements fmt.Stringer.
func (s LinkState) String() string {
	if s >= 0 && int(s) < len(linkStateNames) {
		return linkStateNames[s]
	}
	return fmt.Sprintf("link(%d)", int(s))
}

// Endpoint is a listening socket armed on link-up.
type Endpoint interface {
	Start() error
	Close() error
}

// LinkObserver is notified after the link state changes. status is
// only valid in IPAcquired.
type LinkObserver interface {
	LinkChanged(state LinkState, status heartbeat.Status)
}

// Controller reacts to the closed set of node events. All events must
// be delivered from a single goroutine.
type Controller struct {
	Version    uint16
	Dispatcher *command.Dispatcher
	Responder  *heartbeat.Responder
	Fota       *fota.Orchestrator
	Endpoints  []Endpoint
	// Observer is optional.
	Observer LinkObserver

	state   LinkState
	ip      net.IP
	mac     net.HardwareAddr
	payload *heartbeat.Payload
	started map[Endpoint]bool
}

// NewController creates a Controller.
func NewController(dispatcher *command.Dispatcher, responder *heartbeat.Responder, orchestrator *fota.Orchestrator, endpoints ...Endpoint) *Controller {
	return &Controller{
		Version:    FirmwareVersion,
		Dispatcher: dispatcher,
		Responder:  responder,
		Fota:       orchestrator,
		Endpoints:  endpoints,
	}
}

// State returns the link state.
func (c *Controller) State() LinkState {
	return c.state
}

// Payload returns the heartbeat payload of the current link, nil if
// no IP is acquired.
func (c *Controller) Payload() *heartbeat.Payload {
	return c.payload
}

// Armed tells if all endpoints are started.
func (c *Controller) Armed() bool {
	for _, ep := range c.Endpoints {
		if !c.started[ep] {
			return false
		}
	}
	return len(c.Endpoints) > 0
}

// HandleEvent implements framework.EventHandler.
func (c *Controller) HandleEvent(ctx context.Context, event fx.Event) error {
	switch ev := event.(type) {
	case LinkAssociated:
		c.associated(ev)
	case LinkIPAcquired:
		return c.ipAcquired(ev)
	case LinkDisconnected:
		return c.disconnected()
	case CommandFrameReceived:
		c.Dispatcher.Handle(ev.Conn, ev.Data)
	case HeartbeatProbeReceived:
		c.Responder.Handle(ev.Conn, ev.Data)
	case FotaCompleted:
		c.Fota.Complete(ev.Result)
	}
	return nil
}

func (c *Controller) associated(ev LinkAssociated) {
	glog.Infof("link associated %s", ev.Iface)
	if c.state == Disconnected {
		c.setState(Associated)
	}
}

func (c *Controller) ipAcquired(ev LinkIPAcquired) error {
	p := heartbeat.Build(c.Version, ev.IP, ev.MAC)
	c.payload = &p
	c.ip, c.mac = ev.IP, ev.MAC
	c.Responder.Payload = c.payload
	if c.Fota != nil {
		c.Fota.LocalIP = ev.IP
	}
	glog.Infof("link IP acquired %s, heartbeat %s", ev.IP, p.Status())
	c.setState(IPAcquired)
	return c.arm()
}

// arm starts the endpoints not yet started. A failed one is retried on
// the next IP-acquired event.
func (c *Controller) arm() error {
	if c.started == nil {
		c.started = make(map[Endpoint]bool)
	}
	var errs fx.AggregatedError
	for _, ep := range c.Endpoints {
		if c.started[ep] {
			continue
		}
		if err := ep.Start(); err != nil {
			errs.Add(err)
			continue
		}
		c.started[ep] = true
	}
	return errs.Aggregate()
}

func (c *Controller) disconnected() error {
	if c.state == Disconnected {
		return nil
	}
	glog.Infof("link disconnected")
	c.payload = nil
	c.ip, c.mac = nil, nil
	c.Responder.Payload = nil
	var errs fx.AggregatedError
	for _, ep := range c.Endpoints {
		if c.started[ep] {
			errs.Add(ep.Close())
			delete(c.started, ep)
		}
	}
	c.setState(Disconnected)
	return errs.Aggregate()
}

func (c *Controller) setState(state LinkState) {
	c.state = state
	if c.Observer == nil {
		return
	}
	var status heartbeat.Status
	if c.payload != nil {
		status = c.payload.Status()
	}
	c.Observer.LinkChanged(state, status)
}
