package device

import (
	"io"
	"net"

	"github.com/robotalks/gpionode/pkg/fota"
	"github.com/robotalks/gpionode/pkg/heartbeat"
)

// LinkAssociated is posted when the interface comes up.
type LinkAssociated struct {
	Iface string
}

// LinkIPAcquired is posted when an IPv4 address is assigned, or when
// the address changes.
type LinkIPAcquired struct {
	IP  net.IP
	MAC net.HardwareAddr
}

// LinkDisconnected is posted when the interface goes down or loses its
// address.
type LinkDisconnected struct{}

// CommandFrameReceived carries one frame read from a command connection.
type CommandFrameReceived struct {
	Conn io.Writer
	Data []byte
}

// HeartbeatProbeReceived carries one datagram from the heartbeat port.
type HeartbeatProbeReceived struct {
	Conn heartbeat.Conn
	Data []byte
}

// FotaCompleted carries the result of a download.
type FotaCompleted struct {
	Result fota.Result
}

// EventName implements framework.Event.
func (LinkAssociated) EventName() string { return "link-associated" }

// EventName implements framework.Event.
func (LinkIPAcquired) EventName() string { return "link-ip-acquired" }

// EventName implements framework.Event.
func (LinkDisconnected) EventName() string { return "link-disconnected" }

// EventName implements framework.Event.
func (CommandFrameReceived) EventName() string { return "command-frame" }

// EventName implements framework.Event.
func (HeartbeatProbeReceived) EventName() string { return "heartbeat-probe" }

// EventName implements framework.Event.
func (FotaCompleted) EventName() string { return "fota-completed" }
