package link

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robotalks/gpionode/pkg/device"
	fx "github.com/robotalks/gpionode/pkg/framework"
)

var (
	mac0 = net.HardwareAddr{0x18, 0xfe, 0x34, 0x01, 0x02, 0x03}
	ip1  = net.IPv4(192, 168, 1, 10).To4()
	ip2  = net.IPv4(192, 168, 1, 11).To4()
	lo   = Interface{Name: "lo", Up: true, Loopback: true, IP: net.IPv4(127, 0, 0, 1).To4()}
)

type recorder struct {
	events []fx.Event
}

func (r *recorder) PostEvent(ev fx.Event) {
	r.events = append(r.events, ev)
}

func (r *recorder) take() []fx.Event {
	evs := r.events
	r.events = nil
	return evs
}

func wlan(up bool, ip net.IP) Interface {
	return Interface{Name: "wlan0", Up: up, MAC: mac0, IP: ip}
}

func TestWatcherTransitions(t *testing.T) {
	var current []Interface
	w := &Watcher{List: func() ([]Interface, error) { return current, nil }}
	r := &recorder{}

	testCases := []struct {
		name   string
		ifaces []Interface
		events []fx.Event
	}{
		{"no interface", []Interface{lo}, nil},
		{"down", []Interface{lo, wlan(false, nil)}, nil},
		{"associated", []Interface{lo, wlan(true, nil)}, []fx.Event{device.LinkAssociated{Iface: "wlan0"}}},
		{"unchanged", []Interface{lo, wlan(true, nil)}, nil},
		{"ip acquired", []Interface{lo, wlan(true, ip1)}, []fx.Event{device.LinkIPAcquired{IP: ip1, MAC: mac0}}},
		{"same ip", []Interface{lo, wlan(true, ip1)}, nil},
		{"ip changed", []Interface{lo, wlan(true, ip2)}, []fx.Event{device.LinkIPAcquired{IP: ip2, MAC: mac0}}},
		{"ip lost", []Interface{lo, wlan(true, nil)}, []fx.Event{device.LinkDisconnected{}}},
		{"reassociated", []Interface{lo, wlan(true, ip1)}, []fx.Event{
			device.LinkAssociated{Iface: "wlan0"},
			device.LinkIPAcquired{IP: ip1, MAC: mac0},
		}},
		{"down again", []Interface{lo, wlan(false, ip1)}, []fx.Event{device.LinkDisconnected{}}},
		{"gone", []Interface{lo}, nil},
	}
	for _, tc := range testCases {
		current = tc.ifaces
		w.Poll(r)
		assert.Equal(t, tc.events, r.take(), tc.name)
	}
}

func TestWatcherNamedInterface(t *testing.T) {
	eth := Interface{Name: "eth0", Up: true, MAC: mac0, IP: ip2}
	current := []Interface{lo, eth, wlan(true, ip1)}
	w := &Watcher{Name: "wlan0", List: func() ([]Interface, error) { return current, nil }}
	r := &recorder{}
	w.Poll(r)
	require.Len(t, r.events, 2)
	assert.Equal(t, device.LinkIPAcquired{IP: ip1, MAC: mac0}, r.events[1])

	// auto selection prefers an interface with an address.
	current = []Interface{lo, {Name: "usb0", Up: true}, eth}
	w = &Watcher{List: func() ([]Interface, error) { return current, nil }}
	r = &recorder{}
	w.Poll(r)
	assert.Equal(t, []fx.Event{
		device.LinkAssociated{Iface: "eth0"},
		device.LinkIPAcquired{IP: ip2, MAC: mac0},
	}, r.events)
}

func TestWatcherListError(t *testing.T) {
	w := &Watcher{List: func() ([]Interface, error) { return nil, errors.New("fail") }}
	r := &recorder{}
	w.Poll(r)
	assert.Empty(t, r.events)
}

func TestWatcherRun(t *testing.T) {
	loop := fx.NewLoop()
	events := make(chan fx.Event, 8)
	loop.AddHandler(fx.HandleEventFunc(func(ctx context.Context, ev fx.Event) error {
		events <- ev
		return nil
	}))
	w := &Watcher{
		Interval: 10 * time.Millisecond,
		List:     func() ([]Interface, error) { return []Interface{wlan(true, ip1)}, nil },
	}
	loop.AddRunnable(w)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx)
	for _, expected := range []fx.Event{
		device.LinkAssociated{Iface: "wlan0"},
		device.LinkIPAcquired{IP: ip1, MAC: mac0},
	} {
		select {
		case ev := <-events:
			assert.Equal(t, expected, ev)
		case <-time.After(5 * time.Second):
			t.Fatal("missing event")
		}
	}
}

func TestSystemInterfaces(t *testing.T) {
	ifaces, err := SystemInterfaces()
	require.NoError(t, err)
	for _, iface := range ifaces {
		if iface.IP != nil {
			assert.Len(t, iface.IP, net.IPv4len)
		}
	}
}
