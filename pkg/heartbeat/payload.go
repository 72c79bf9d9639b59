// Package heartbeat implements the UDP discovery/heartbeat exchange.
//
// A peer sends the 2-byte probe AA 55 and the node answers with a
// 15-byte payload:
//
//	[SIG=0x55][RSVD][FW VER 2B BE][IPv4 4B][MAC 6B][CHKSUM]
//
// CHKSUM is the 8-bit wraparound sum of the preceding 14 bytes.
package heartbeat

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"
)

// Sizes and signatures.
const (
	PayloadSize      = 15
	PayloadSignature = 0x55
	ProbeSize        = 2
)

// Probe is the only datagram answered by a node.
var Probe = [ProbeSize]byte{0xAA, 0x55}

var (
	// ErrPayloadSize indicates a payload of the wrong size.
	ErrPayloadSize = errors.New("invalid payload size")
	// ErrPayloadSignature indicates the payload does not start with PayloadSignature.
	ErrPayloadSignature = errors.New("invalid payload signature")
	// ErrChecksum indicates a checksum mismatch.
	ErrChecksum = errors.New("checksum mismatch")
)

// Payload is the heartbeat reply.
type Payload [PayloadSize]byte

// Status is the decoded content of a payload.
type Status struct {
	Version uint16
	IP      net.IP
	MAC     net.HardwareAddr
}

// String implements fmt.Stringer.
func (s Status) String() string {
	return fmt.Sprintf("%s mac=%s fw=%s", s.IP, s.MAC, FormatVersion(s.Version))
}

// FormatVersion formats a firmware version as 0xHHLL.
func FormatVersion(v uint16) string {
	return fmt.Sprintf("0x%04X", v)
}

// Checksum computes the 8-bit wraparound sum.
func Checksum(b []byte) (sum byte) {
	for _, c := range b {
		sum += c
	}
	return
}

// Build lays out the payload. ip must be IPv4, mac is truncated or
// zero padded to 6 bytes.
func Build(version uint16, ip net.IP, mac net.HardwareAddr) (p Payload) {
	p[0] = PayloadSignature
	binary.BigEndian.PutUint16(p[2:4], version)
	if ip4 := ip.To4(); ip4 != nil {
		copy(p[4:8], ip4)
	}
	copy(p[8:14], mac)
	p[14] = Checksum(p[:14])
	return
}

// Verify checks the checksum against the other 14 bytes.
func (p *Payload) Verify() bool {
	return p[14] == Checksum(p[:14])
}

// Status extracts fields from the payload.
func (p *Payload) Status() Status {
	ip := make(net.IP, net.IPv4len)
	copy(ip, p[4:8])
	mac := make(net.HardwareAddr, 6)
	copy(mac, p[8:14])
	return Status{
		Version: binary.BigEndian.Uint16(p[2:4]),
		IP:      ip,
		MAC:     mac,
	}
}

// Decode validates a received payload and extracts its fields.
func Decode(data []byte) (Status, error) {
	if len(data) != PayloadSize {
		return Status{}, ErrPayloadSize
	}
	var p Payload
	copy(p[:], data)
	if p[0] != PayloadSignature {
		return Status{}, ErrPayloadSignature
	}
	if !p.Verify() {
		return Status{}, ErrChecksum
	}
	return p.Status(), nil
}

// IsProbe tells if a datagram is exactly the probe.
func IsProbe(data []byte) bool {
	return len(data) == ProbeSize && data[0] == Probe[0] && data[1] == Probe[1]
}
