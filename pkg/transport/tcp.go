// Package transport provides the listening endpoints of the node.
package transport

import (
	"net"
	"sync"
	"time"

	"github.com/golang/glog"
)

// Defaults
const (
	DefaultPort         = 60000
	DefaultWriteTimeout = 5 * time.Second
	// ReadBufferSize is the largest chunk delivered at once.
	ReadBufferSize = 1460
)

// Conn is an accepted command connection.
type Conn struct {
	conn         net.Conn
	id           uint64
	writeTimeout time.Duration
}

// ID is unique per server.
func (c *Conn) ID() uint64 {
	return c.id
}

// RemoteAddr returns the peer address.
func (c *Conn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// Write implements io.Writer. Each write must finish within the write
// timeout.
func (c *Conn) Write(p []byte) (int, error) {
	if c.writeTimeout > 0 {
		c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	return c.conn.Write(p)
}

// Close closes the connection.
func (c *Conn) Close() error {
	return c.conn.Close()
}

// String implements fmt.Stringer.
func (c *Conn) String() string {
	return c.conn.RemoteAddr().String()
}

// CommandServer accepts command connections. Every chunk read from a
// connection is delivered to OnData as one frame.
type CommandServer struct {
	Address      string
	WriteTimeout time.Duration
	// OnData is called from the connection goroutine with a buffer it
	// may keep.
	OnData func(*Conn, []byte)
	// OnClose is optional.
	OnClose func(*Conn)

	lock     sync.Mutex
	listener net.Listener
	conns    map[*Conn]struct{}
	nextID   uint64
	wg       sync.WaitGroup
}

// NewCommandServer creates a CommandServer listening on address.
func NewCommandServer(address string, onData func(*Conn, []byte)) *CommandServer {
	return &CommandServer{
		Address:      address,
		WriteTimeout: DefaultWriteTimeout,
		OnData:       onData,
	}
}

// Start listens and accepts connections in background. It does nothing
// if already started.
func (s *CommandServer) Start() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.listener != nil {
		return nil
	}
	ln, err := net.Listen("tcp", s.Address)
	if err != nil {
		return err
	}
	s.listener = ln
	s.conns = make(map[*Conn]struct{})
	glog.Infof("command server listening on %s", ln.Addr())
	s.wg.Add(1)
	go s.acceptLoop(ln)
	return nil
}

// Started tells if the server is listening.
func (s *CommandServer) Started() bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.listener != nil
}

// Addr returns the listening address, nil if not started.
func (s *CommandServer) Addr() net.Addr {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Close stops listening and closes all connections. It does nothing if
// not started.
func (s *CommandServer) Close() error {
	s.lock.Lock()
	ln := s.listener
	s.listener = nil
	var conns []*Conn
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.conns = nil
	s.lock.Unlock()
	if ln == nil {
		return nil
	}
	err := ln.Close()
	for _, c := range conns {
		c.Close()
	}
	s.wg.Wait()
	glog.Infof("command server on %s closed", ln.Addr())
	return err
}

func (s *CommandServer) acceptLoop(ln net.Listener) {
	defer s.wg.Done()
	for {
		nc, err := ln.Accept()
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Temporary() {
				glog.Warningf("accept error: %v", err)
				time.Sleep(10 * time.Millisecond)
				continue
			}
			glog.V(1).Infof("accept loop exits: %v", err)
			return
		}
		s.lock.Lock()
		if s.conns == nil {
			s.lock.Unlock()
			nc.Close()
			return
		}
		s.nextID++
		conn := &Conn{conn: nc, id: s.nextID, writeTimeout: s.WriteTimeout}
		s.conns[conn] = struct{}{}
		s.wg.Add(1)
		s.lock.Unlock()
		glog.V(1).Infof("command connection %d from %s", conn.id, conn)
		go s.readLoop(conn)
	}
}

func (s *CommandServer) readLoop(conn *Conn) {
	defer s.wg.Done()
	defer func() {
		conn.Close()
		s.lock.Lock()
		if s.conns != nil {
			delete(s.conns, conn)
		}
		s.lock.Unlock()
		glog.V(1).Infof("command connection %d closed", conn.id)
		if s.OnClose != nil {
			s.OnClose(conn)
		}
	}()
	buf := make([]byte, ReadBufferSize)
	for {
		n, err := conn.conn.Read(buf)
		if n > 0 && s.OnData != nil {
			data := make([]byte, n)
			copy(data, buf[:n])
			s.OnData(conn, data)
		}
		if err != nil {
			return
		}
	}
}
