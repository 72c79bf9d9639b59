package node

import (
	"context"
	"io/ioutil"
	"net"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robotalks/gpionode/pkg/device"
	"github.com/robotalks/gpionode/pkg/fota"
	fx "github.com/robotalks/gpionode/pkg/framework"
	"github.com/robotalks/gpionode/pkg/gpio"
	"github.com/robotalks/gpionode/pkg/link"
)

func testConfig(t *testing.T) (*Config, func()) {
	dir, err := ioutil.TempDir("", "gpionode")
	require.NoError(t, err)
	conf := NewConfig()
	conf.ID = "node1"
	conf.FlashDir = dir
	conf.MQTTBrokerURL = ""
	conf.FotaServer = "192.168.1.2"
	return conf, func() { os.RemoveAll(dir) }
}

func TestNewEnv(t *testing.T) {
	conf, cleanup := testConfig(t)
	defer cleanup()
	e, err := conf.NewEnv()
	require.NoError(t, err)
	assert.Equal(t, gpio.DefaultPinTable, e.Pins)
	assert.Equal(t, gpio.High, e.Driver.Level(0))
	assert.Equal(t, gpio.High, e.Driver.Level(2))
	assert.True(t, e.Orchestrator.Config.Server.Equal(net.IPv4(192, 168, 1, 2)))
	assert.Equal(t, 80, e.Orchestrator.Config.Port)
	bank, err := e.Flash.ActiveBank()
	require.NoError(t, err)
	assert.Equal(t, fota.User1, bank)
	assert.Empty(t, e.Registrar.Registrars)
	assert.Equal(t, "disconnected", e.Reporter.Status().Link)

	info := conf.NodeInfo(e.Pins)
	assert.Equal(t, "0x000A", info.Meta.Firmware)
	assert.Equal(t, []int{0, 2}, info.Meta.Pins)
	assert.Equal(t, 60000, info.Meta.CommandPort)
}

func TestNewEnvErrors(t *testing.T) {
	testCases := []struct {
		name   string
		modify func(*Config)
	}{
		{"no id", func(c *Config) { c.ID = "" }},
		{"bad pins", func(c *Config) { c.Pins = "0,9" }},
		{"bad server", func(c *Config) { c.FotaServer = "fota.local" }},
		{"ipv6 server", func(c *Config) { c.FotaServer = "::1" }},
		{"bad mqtt", func(c *Config) { c.MQTTBrokerURL = "mqtt://%zz" }},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			conf, cleanup := testConfig(t)
			defer cleanup()
			tc.modify(conf)
			_, err := conf.NewEnv()
			assert.Error(t, err)
		})
	}
}

func TestEnvOnLoop(t *testing.T) {
	conf, cleanup := testConfig(t)
	defer cleanup()
	conf.CommandPort, conf.HeartbeatPort = 0, 0
	e, err := conf.NewEnv()
	require.NoError(t, err)
	defer e.Close()
	e.Watcher.List = func() ([]link.Interface, error) {
		return []link.Interface{{
			Name: "wlan0",
			Up:   true,
			MAC:  net.HardwareAddr{0x18, 0xfe, 0x34, 0x01, 0x02, 0x03},
			IP:   net.IPv4(127, 0, 0, 1).To4(),
		}}, nil
	}
	e.Watcher.Interval = 10 * time.Millisecond

	loop := fx.NewLoop()
	loop.Add(e)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx)

	deadline := time.Now().Add(5 * time.Second)
	for e.Reporter.Status().Link != device.IPAcquired.String() {
		require.True(t, time.Now().Before(deadline), "link not up")
		time.Sleep(10 * time.Millisecond)
	}
	st := e.Reporter.Status()
	assert.Equal(t, "127.0.0.1", st.Ip)
	for !e.Commands.Started() || !e.Heartbeats.Started() {
		require.True(t, time.Now().Before(deadline), "endpoints not started")
		time.Sleep(10 * time.Millisecond)
	}
}
