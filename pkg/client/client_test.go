package client

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robotalks/gpionode/pkg/command"
	"github.com/robotalks/gpionode/pkg/gpio"
	"github.com/robotalks/gpionode/pkg/heartbeat"
	"github.com/robotalks/gpionode/pkg/transport"
)

type nopFota struct{ starts chan struct{} }

func (f *nopFota) Start() error {
	f.starts <- struct{}{}
	return nil
}

func TestConnAgainstNode(t *testing.T) {
	driver := gpio.NewMemoryDriver(nil)
	changes := make(chan int, 8)
	driver.Observer = func(pin int, level gpio.Level) { changes <- pin }
	fota := &nopFota{starts: make(chan struct{}, 1)}
	dispatcher := command.NewDispatcher(gpio.DefaultPinTable, driver, fota)
	srv := transport.NewCommandServer("127.0.0.1:0", func(c *transport.Conn, data []byte) {
		dispatcher.Handle(c, data)
	})
	require.NoError(t, srv.Start())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := Dial(ctx, srv.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.Echo(ctx, 1, 2, 3))
	require.NoError(t, conn.Echo(ctx))

	require.NoError(t, conn.Set(0x05))
	for _, pin := range []int{0, 2} {
		select {
		case changed := <-changes:
			assert.Equal(t, pin, changed)
		case <-ctx.Done():
			t.Fatal("pin not changed")
		}
	}
	assert.Equal(t, gpio.High, driver.Level(0))
	assert.Equal(t, gpio.High, driver.Level(2))

	require.NoError(t, conn.Clear(0x01))
	<-changes
	// echo round trip orders after the clear.
	require.NoError(t, conn.Echo(ctx, 9))
	assert.Equal(t, gpio.Low, driver.Level(0))

	require.NoError(t, conn.TriggerFota())
	select {
	case <-fota.starts:
	case <-ctx.Done():
		t.Fatal("FOTA not triggered")
	}
}

func TestConnSplitReplies(t *testing.T) {
	local, remote := net.Pipe()
	conn := NewConn(local)
	defer conn.Close()

	go func() {
		buf := make([]byte, 64)
		var frames []byte
		for i := 0; i < 2; i++ {
			n, err := remote.Read(buf)
			if err != nil {
				return
			}
			frames = append(frames, buf[:n]...)
		}
		// both replies merged, then split at odd boundaries.
		remote.Write(frames[:2])
		remote.Write(frames[2:5])
		remote.Write(frames[5:])
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- conn.Echo(ctx, 0xaa) }()
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, conn.Echo(ctx, 1, 2))
	require.NoError(t, <-errCh)
}

func TestConnClosedByPeer(t *testing.T) {
	local, remote := net.Pipe()
	conn := NewConn(local)
	go func() {
		buf := make([]byte, 16)
		remote.Read(buf)
		remote.Close()
	}()
	err := conn.Echo(context.Background(), 1)
	assert.Equal(t, ErrClosed, err)
	assert.Equal(t, ErrClosed, conn.Echo(context.Background(), 1))
	conn.Close()
}

func TestDiscover(t *testing.T) {
	mac := net.HardwareAddr{0x18, 0xfe, 0x34, 0x01, 0x02, 0x03}
	payload := heartbeat.Build(0x000A, net.IPv4(127, 0, 0, 1), mac)
	responder := &heartbeat.Responder{Payload: &payload}
	srv := transport.NewDatagramServer("127.0.0.1:0", func(d *transport.Datagram) {
		responder.Handle(d, d.Data)
	})
	require.NoError(t, srv.Start())
	defer srv.Close()

	d := &Discoverer{Target: srv.Addr().String(), Timeout: 300 * time.Millisecond}
	nodes, err := d.Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.EqualValues(t, 0x000A, nodes[0].Status.Version)
	assert.Equal(t, mac, nodes[0].Status.MAC)
	assert.Equal(t, srv.Addr().String(), nodes[0].Addr.String())
	assert.Equal(t, srv.Addr().String(), nodes[0].CommandAddr())
}

func TestDiscoverSkipsInvalidReplies(t *testing.T) {
	bad := heartbeat.Build(0x000A, net.IPv4(127, 0, 0, 1), nil)
	bad[14]++
	srv := transport.NewDatagramServer("127.0.0.1:0", func(d *transport.Datagram) {
		d.WriteTo(bad[:], d.RemoteAddr())
		d.WriteTo([]byte{0x55}, d.RemoteAddr())
	})
	require.NoError(t, srv.Start())
	defer srv.Close()

	d := &Discoverer{Target: srv.Addr().String(), Timeout: 200 * time.Millisecond}
	nodes, err := d.Discover(context.Background())
	require.NoError(t, err)
	assert.Empty(t, nodes)
}
