package transport

import (
	"net"
	"sync"

	"github.com/golang/glog"
	"golang.org/x/net/ipv4"
)

// MaxDatagramSize is the receive buffer size of the heartbeat server.
const MaxDatagramSize = 512

// Datagram is a received datagram. It carries its own peer so a reply
// always goes to the sender of this datagram.
type Datagram struct {
	Data []byte
	Peer net.Addr
	// Dst is the destination address when available, it tells a
	// broadcast probe from a unicast one.
	Dst net.IP

	conn *ipv4.PacketConn
}

// RemoteAddr returns the sender.
func (d *Datagram) RemoteAddr() net.Addr {
	return d.Peer
}

// WriteTo sends b to addr from the receiving socket.
func (d *Datagram) WriteTo(b []byte, addr net.Addr) (int, error) {
	return d.conn.WriteTo(b, nil, addr)
}

// DatagramServer receives UDP datagrams.
type DatagramServer struct {
	Address string
	// OnDatagram is called from the receive goroutine.
	OnDatagram func(*Datagram)

	lock sync.Mutex
	conn *ipv4.PacketConn
	wg   sync.WaitGroup
}

// NewDatagramServer creates a DatagramServer listening on address.
func NewDatagramServer(address string, onDatagram func(*Datagram)) *DatagramServer {
	return &DatagramServer{Address: address, OnDatagram: onDatagram}
}

// Start listens in background. It does nothing if already started.
func (s *DatagramServer) Start() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.conn != nil {
		return nil
	}
	c, err := net.ListenPacket("udp4", s.Address)
	if err != nil {
		return err
	}
	conn := ipv4.NewPacketConn(c)
	if err = conn.SetControlMessage(ipv4.FlagDst, true); err != nil {
		glog.V(1).Infof("destination address unavailable: %v", err)
	}
	s.conn = conn
	glog.Infof("heartbeat server listening on %s", c.LocalAddr())
	s.wg.Add(1)
	go s.recvLoop(conn)
	return nil
}

// Started tells if the server is listening.
func (s *DatagramServer) Started() bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.conn != nil
}

// Addr returns the listening address, nil if not started.
func (s *DatagramServer) Addr() net.Addr {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr()
}

// Close stops the server. It does nothing if not started.
func (s *DatagramServer) Close() error {
	s.lock.Lock()
	conn := s.conn
	s.conn = nil
	s.lock.Unlock()
	if conn == nil {
		return nil
	}
	err := conn.Close()
	s.wg.Wait()
	glog.Infof("heartbeat server on %s closed", conn.LocalAddr())
	return err
}

func (s *DatagramServer) recvLoop(conn *ipv4.PacketConn) {
	defer s.wg.Done()
	buf := make([]byte, MaxDatagramSize)
	for {
		n, cm, peer, err := conn.ReadFrom(buf)
		if err != nil {
			glog.V(1).Infof("heartbeat receive loop exits: %v", err)
			return
		}
		d := &Datagram{Data: make([]byte, n), Peer: peer, conn: conn}
		copy(d.Data, buf[:n])
		if cm != nil {
			d.Dst = cm.Dst
		}
		if s.OnDatagram != nil {
			s.OnDatagram(d)
		}
	}
}
