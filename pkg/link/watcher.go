// Package link watches a network interface and reports link events.
package link

import (
	"context"
	"net"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/gpionode/pkg/device"
	fx "github.com/robotalks/gpionode/pkg/framework"
)

// DefaultInterval is the default poll interval.
const DefaultInterval = 2 * time.Second

// Interface is a snapshot of a network interface.
type Interface struct {
	Name     string
	Up       bool
	Loopback bool
	MAC      net.HardwareAddr
	// IP is the first IPv4 address, nil if none.
	IP net.IP
}

// Lister lists network interfaces.
type Lister func() ([]Interface, error)

// SystemInterfaces lists interfaces of the host.
func SystemInterfaces() ([]Interface, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	result := make([]Interface, 0, len(ifaces))
	for _, iface := range ifaces {
		info := Interface{
			Name:     iface.Name,
			Up:       iface.Flags&net.FlagUp != 0,
			Loopback: iface.Flags&net.FlagLoopback != 0,
			MAC:      iface.HardwareAddr,
		}
		addrs, err := iface.Addrs()
		if err != nil {
			glog.V(2).Infof("interface %s addrs error: %v", iface.Name, err)
		}
		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok {
				if ip4 := ipnet.IP.To4(); ip4 != nil {
					info.IP = ip4
					break
				}
			}
		}
		result = append(result, info)
	}
	return result, nil
}

// Watcher polls an interface and posts device link events on changes.
type Watcher struct {
	// Name of the interface, empty selects the first non-loopback
	// interface which is up, preferring one with IPv4.
	Name     string
	Interval time.Duration
	List     Lister

	iface string
	up    bool
	ip    net.IP
}

// NewWatcher creates a Watcher on the named interface.
func NewWatcher(name string) *Watcher {
	return &Watcher{Name: name, Interval: DefaultInterval, List: SystemInterfaces}
}

// Run implements framework.Runnable. Events are posted to the loop
// found in ctx.
func (w *Watcher) Run(ctx context.Context) error {
	poster := fx.LoopCtlFrom(ctx)
	interval := w.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		w.Poll(poster)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Poll checks the interface once and posts the events for the changes
// since the last poll.
func (w *Watcher) Poll(poster fx.EventPoster) {
	ifaces, err := w.List()
	if err != nil {
		glog.Warningf("list interfaces error: %v", err)
		return
	}
	iface := w.selectIface(ifaces)
	switch {
	case iface == nil || !iface.Up:
		if w.up {
			w.reset()
			poster.PostEvent(device.LinkDisconnected{})
		}
	case w.up && iface.Name != w.iface:
		w.reset()
		poster.PostEvent(device.LinkDisconnected{})
		w.Poll(poster)
	default:
		if !w.up {
			w.up, w.iface = true, iface.Name
			poster.PostEvent(device.LinkAssociated{Iface: iface.Name})
		}
		if iface.IP == nil {
			if w.ip != nil {
				w.reset()
				poster.PostEvent(device.LinkDisconnected{})
			}
			return
		}
		if !iface.IP.Equal(w.ip) {
			w.ip = iface.IP
			poster.PostEvent(device.LinkIPAcquired{IP: iface.IP, MAC: iface.MAC})
		}
	}
}

func (w *Watcher) reset() {
	w.up, w.iface, w.ip = false, "", nil
}

func (w *Watcher) selectIface(ifaces []Interface) *Interface {
	var candidate *Interface
	for n := range ifaces {
		iface := &ifaces[n]
		if w.Name != "" {
			if iface.Name == w.Name {
				return iface
			}
			continue
		}
		if iface.Loopback || !iface.Up {
			continue
		}
		if iface.Name == w.iface {
			return iface
		}
		if candidate == nil || (candidate.IP == nil && iface.IP != nil) {
			candidate = iface
		}
	}
	return candidate
}
