// Package client talks to nodes over their command and heartbeat ports.
package client

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/gpionode/pkg/heartbeat"
)

// Defaults
const (
	DefaultPort            = 60000
	DefaultDiscoverTimeout = time.Second
)

// Node is a node answering the heartbeat probe.
type Node struct {
	// Addr is where the reply came from.
	Addr   *net.UDPAddr
	Status heartbeat.Status
}

// CommandAddr returns the command address assuming the command port
// equals the heartbeat port.
func (n *Node) CommandAddr() string {
	return net.JoinHostPort(n.Status.IP.String(), strconv.Itoa(n.Addr.Port))
}

// Discoverer probes nodes.
type Discoverer struct {
	// Target is where the probe is sent, usually the broadcast address.
	Target  string
	Timeout time.Duration
}

// NewDiscoverer creates a Discoverer broadcasting to port.
func NewDiscoverer(port int) *Discoverer {
	return &Discoverer{
		Target:  net.JoinHostPort(net.IPv4bcast.String(), strconv.Itoa(port)),
		Timeout: DefaultDiscoverTimeout,
	}
}

// Discover sends the probe and collects valid replies until the
// timeout expires. Invalid replies are skipped.
func (d *Discoverer) Discover(ctx context.Context) ([]Node, error) {
	target, err := net.ResolveUDPAddr("udp4", d.Target)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp4", nil)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	timeout := d.Timeout
	if timeout <= 0 {
		timeout = DefaultDiscoverTimeout
	}
	deadline := time.Now().Add(timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	conn.SetReadDeadline(deadline)
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.SetReadDeadline(time.Unix(1, 0))
		case <-stop:
		}
	}()

	if _, err = conn.WriteToUDP(heartbeat.Probe[:], target); err != nil {
		return nil, err
	}

	var nodes []Node
	seen := make(map[string]bool)
	buf := make([]byte, 64)
	for {
		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				if ctx.Err() != nil {
					return nodes, ctx.Err()
				}
				return nodes, nil
			}
			return nodes, err
		}
		st, err := heartbeat.Decode(buf[:n])
		if err != nil {
			glog.V(1).Infof("invalid heartbeat from %s: %v", from, err)
			continue
		}
		if key := from.String(); !seen[key] {
			seen[key] = true
			nodes = append(nodes, Node{Addr: from, Status: st})
		}
	}
}
