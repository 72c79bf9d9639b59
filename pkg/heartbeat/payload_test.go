package heartbeat

import (
	"math/rand"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuild(t *testing.T) {
	mac, err := net.ParseMAC("18:fe:34:01:02:03")
	require.NoError(t, err)
	p := Build(0x000A, net.ParseIP("192.168.1.10"), mac)
	require.Equal(t, Payload{
		0x55, 0x00,
		0x00, 0x0A,
		192, 168, 1, 10,
		0x18, 0xfe, 0x34, 0x01, 0x02, 0x03,
		0x22,
	}, p)
	require.True(t, p.Verify())

	s, err := Decode(p[:])
	require.NoError(t, err)
	require.Equal(t, uint16(0x000A), s.Version)
	require.True(t, s.IP.Equal(net.ParseIP("192.168.1.10")))
	require.Equal(t, mac, s.MAC)
}

func TestChecksumLaw(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	for i := 0; i < 1000; i++ {
		ip := make(net.IP, 4)
		mac := make(net.HardwareAddr, 6)
		rnd.Read(ip)
		rnd.Read(mac)
		version := uint16(rnd.Intn(0x10000))
		p := Build(version, ip, mac)
		require.Equal(t, Checksum(p[:14]), p[14])
		require.True(t, p.Verify())
		s, err := Decode(p[:])
		require.NoError(t, err)
		require.Equal(t, version, s.Version)
		require.Equal(t, ip, s.IP)
		require.Equal(t, mac, s.MAC)
		// Building again from the decoded status is stable.
		require.Equal(t, p, Build(s.Version, s.IP, s.MAC))
	}
}

func TestChecksumWraps(t *testing.T) {
	require.Equal(t, byte(0xfe), Checksum([]byte{0xff, 0xff}))
	require.Equal(t, byte(0), Checksum(nil))
}

func TestDecodeErrors(t *testing.T) {
	p := Build(1, net.IPv4(10, 0, 0, 1), nil)
	require.Equal(t, make(net.HardwareAddr, 6), p.Status().MAC)

	_, err := Decode(p[:14])
	require.Equal(t, ErrPayloadSize, err)

	bad := p
	bad[0] = 0xAA
	_, err = Decode(bad[:])
	require.Equal(t, ErrPayloadSignature, err)

	bad = p
	bad[5]++
	_, err = Decode(bad[:])
	require.Equal(t, ErrChecksum, err)
}

func TestIsProbe(t *testing.T) {
	testCases := []struct {
		in     []byte
		expect bool
	}{
		{[]byte{0xAA, 0x55}, true},
		{[]byte{0x55, 0xAA}, false},
		{[]byte{0xAA, 0x00}, false},
		{[]byte{0xAA}, false},
		{[]byte{0xAA, 0x55, 0x00}, false},
		{nil, false},
	}
	for _, tc := range testCases {
		require.Equalf(t, tc.expect, IsProbe(tc.in), "% X", tc.in)
	}
	for a := 0; a < 256; a++ {
		for b := 0; b < 256; b++ {
			require.Equal(t, a == 0xAA && b == 0x55, IsProbe([]byte{byte(a), byte(b)}))
		}
	}
}
