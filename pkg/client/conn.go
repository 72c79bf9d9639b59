package client

import (
	"context"
	"errors"
	"net"
	"sync"

	"github.com/golang/glog"

	"github.com/robotalks/gpionode/pkg/command"
)

var (
	// ErrClosed indicates the connection is closed.
	ErrClosed = errors.New("connection closed")
	// ErrEchoMismatch indicates the echo reply differs from the request.
	ErrEchoMismatch = errors.New("echo mismatch")
)

// Conn is a command connection to a node. The node only replies to
// echo, replies are matched to requests in order.
type Conn struct {
	conn   net.Conn
	parser command.Parser

	lock    sync.Mutex
	pending []*pendingEcho
	err     error
	doneCh  chan struct{}
}

type pendingEcho struct {
	frame   []byte
	replyCh chan []byte
}

// Dial connects to the command port of a node.
func Dial(ctx context.Context, addr string) (*Conn, error) {
	var d net.Dialer
	nc, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return NewConn(nc), nil
}

// NewConn wraps a connected stream.
func NewConn(nc net.Conn) *Conn {
	c := &Conn{conn: nc, doneCh: make(chan struct{})}
	go c.readLoop()
	return c
}

// RemoteAddr returns the node address.
func (c *Conn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// Close closes the connection.
func (c *Conn) Close() error {
	err := c.conn.Close()
	<-c.doneCh
	return err
}

// Send writes a frame without waiting for anything.
func (c *Conn) Send(f *command.Frame) error {
	_, err := f.WriteTo(c.conn)
	return err
}

// Set drives the pins in mask HIGH.
func (c *Conn) Set(mask byte) error {
	return c.Send(command.GpioSetFrame(mask))
}

// Clear drives the pins in mask LOW.
func (c *Conn) Clear(mask byte) error {
	return c.Send(command.GpioClearFrame(mask))
}

// TriggerFota asks the node to upgrade its firmware.
func (c *Conn) TriggerFota() error {
	return c.Send(command.FotaTriggerFrame())
}

// Echo sends an echo frame and waits for the identical reply.
func (c *Conn) Echo(ctx context.Context, data ...byte) error {
	frame := command.EchoFrame(data...).Bytes()
	p := &pendingEcho{frame: frame, replyCh: make(chan []byte, 1)}
	c.lock.Lock()
	if c.err != nil {
		err := c.err
		c.lock.Unlock()
		return err
	}
	c.pending = append(c.pending, p)
	_, err := c.conn.Write(frame)
	c.lock.Unlock()
	if err != nil {
		c.remove(p)
		return err
	}
	select {
	case reply, ok := <-p.replyCh:
		if !ok {
			return ErrClosed
		}
		if string(reply) != string(frame) {
			return ErrEchoMismatch
		}
		return nil
	case <-ctx.Done():
		c.remove(p)
		return ctx.Err()
	}
}

func (c *Conn) remove(p *pendingEcho) {
	c.lock.Lock()
	defer c.lock.Unlock()
	for n, item := range c.pending {
		if item == p {
			c.pending = append(c.pending[:n:n], c.pending[n+1:]...)
			return
		}
	}
}

func (c *Conn) readLoop() {
	defer close(c.doneCh)
	buf := make([]byte, 512)
	for {
		n, err := c.conn.Read(buf)
		for _, frame := range c.parser.Feed(buf[:n]) {
			c.deliver(frame)
		}
		if err != nil {
			glog.V(1).Infof("command connection %s: %v", c.conn.RemoteAddr(), err)
			c.lock.Lock()
			c.err = ErrClosed
			pending := c.pending
			c.pending = nil
			c.lock.Unlock()
			for _, p := range pending {
				close(p.replyCh)
			}
			return
		}
	}
}

func (c *Conn) deliver(frame []byte) {
	if len(frame) < command.HeaderSize || frame[2] != command.OpEcho {
		glog.V(1).Infof("unexpected frame % X", frame)
		return
	}
	c.lock.Lock()
	var p *pendingEcho
	if len(c.pending) > 0 {
		p = c.pending[0]
		c.pending = c.pending[1:]
	}
	c.lock.Unlock()
	if p == nil {
		glog.V(1).Infof("unsolicited echo % X", frame)
		return
	}
	p.replyCh <- frame
}
