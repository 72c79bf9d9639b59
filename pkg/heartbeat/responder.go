package heartbeat

import (
	"net"

	"github.com/golang/glog"
)

// Conn is the datagram endpoint a probe arrived on. Datagram sockets
// are connectionless, RemoteAddr is the sender of the datagram being
// handled.
type Conn interface {
	RemoteAddr() net.Addr
	WriteTo(b []byte, addr net.Addr) (int, error)
}

// Responder answers probes with the current payload.
type Responder struct {
	// Payload is owned by the link controller, nil before link-up.
	Payload *Payload
}

// Handle processes one datagram. It replies to the sender only if the
// datagram is the probe and a payload is available.
func (r *Responder) Handle(conn Conn, data []byte) {
	target := conn.RemoteAddr()
	if !IsProbe(data) {
		glog.V(2).Infof("ignore datagram from %v: % X", target, data)
		return
	}
	payload := r.Payload
	if payload == nil {
		glog.V(1).Infof("probe from %v before link-up", target)
		return
	}
	if _, err := conn.WriteTo(payload[:], target); err != nil {
		glog.Warningf("heartbeat reply to %v error: %v", target, err)
	}
}
