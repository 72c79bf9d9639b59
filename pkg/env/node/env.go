// Package node sets up the env of a node from flags and environment.
package node

import (
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/robotalks/gpionode/pkg/command"
	"github.com/robotalks/gpionode/pkg/device"
	"github.com/robotalks/gpionode/pkg/env"
	"github.com/robotalks/gpionode/pkg/flash"
	"github.com/robotalks/gpionode/pkg/fota"
	"github.com/robotalks/gpionode/pkg/fota/httpget"
	fx "github.com/robotalks/gpionode/pkg/framework"
	"github.com/robotalks/gpionode/pkg/gpio"
	"github.com/robotalks/gpionode/pkg/heartbeat"
	"github.com/robotalks/gpionode/pkg/link"
	"github.com/robotalks/gpionode/pkg/registry"
	"github.com/robotalks/gpionode/pkg/registry/mqtt"
	"github.com/robotalks/gpionode/pkg/transport"
)

// Config provides options to setup a node.
type Config struct {
	ID          string
	Description string
	// Iface is the watched interface, empty to pick one.
	Iface         string
	CommandPort   int
	HeartbeatPort int
	FotaServer    string
	FotaPort      int
	FotaTimeout   time.Duration
	FlashDir      string
	Pins          string
	LinkPoll      time.Duration

	// MQTTBrokerURL enables the registry, e.g.
	// mqtt://host:port/topic-prefix
	MQTTBrokerURL string
}

var defaultConfig = Config{
	CommandPort:   transport.DefaultPort,
	HeartbeatPort: transport.DefaultPort,
	FotaPort:      fota.DefaultPort,
	FotaTimeout:   fota.DefaultTimeout,
	FlashDir:      filepath.Join(os.TempDir(), "gpionode"),
	Pins:          gpio.DefaultPinTable.String(),
	LinkPoll:      link.DefaultInterval,
}

func init() {
	defaultConfig.ID = env.MachineID()
	if val := os.Getenv("GPIONODE_ID"); val != "" {
		defaultConfig.ID = val
	}
	if val := os.Getenv("GPIONODE_IFACE"); val != "" {
		defaultConfig.Iface = val
	}
	if val := os.Getenv("GPIONODE_FOTA_SERVER"); val != "" {
		defaultConfig.FotaServer = val
	}
	if val := os.Getenv("GPIONODE_FLASH_DIR"); val != "" {
		defaultConfig.FlashDir = val
	}
	if val := os.Getenv("GPIONODE_MQTT_URL"); val != "" {
		defaultConfig.MQTTBrokerURL = val
	}
}

// SetupFlags sets command line flags.
func SetupFlags() {
	flag.StringVar(&defaultConfig.ID, "id", defaultConfig.ID, "Node ID")
	flag.StringVar(&defaultConfig.Description, "desc", defaultConfig.Description, "Node description")
	flag.StringVar(&defaultConfig.Iface, "iface", defaultConfig.Iface, "Network interface to watch")
	flag.IntVar(&defaultConfig.CommandPort, "cmd-port", defaultConfig.CommandPort, "TCP command port")
	flag.IntVar(&defaultConfig.HeartbeatPort, "hb-port", defaultConfig.HeartbeatPort, "UDP heartbeat port")
	flag.StringVar(&defaultConfig.FotaServer, "fota-server", defaultConfig.FotaServer, "FOTA server IPv4 address")
	flag.IntVar(&defaultConfig.FotaPort, "fota-port", defaultConfig.FotaPort, "FOTA server port")
	flag.DurationVar(&defaultConfig.FotaTimeout, "fota-timeout", defaultConfig.FotaTimeout, "FOTA download timeout")
	flag.StringVar(&defaultConfig.FlashDir, "flash-dir", defaultConfig.FlashDir, "Directory of firmware banks")
	flag.StringVar(&defaultConfig.Pins, "pins", defaultConfig.Pins, "Controllable pins, e.g. 0,2")
	flag.DurationVar(&defaultConfig.LinkPoll, "link-poll", defaultConfig.LinkPoll, "Link poll interval")
	flag.StringVar(&defaultConfig.MQTTBrokerURL, "mqtt", defaultConfig.MQTTBrokerURL, "MQTT broker URL of the registry")
}

// Default gets default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a Config with default configurations.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// Env is the assembled node.
type Env struct {
	Config       *Config
	Pins         gpio.PinTable
	Driver       *gpio.MemoryDriver
	Flash        *flash.Store
	Orchestrator *fota.Orchestrator
	Controller   *device.Controller
	Commands     *transport.CommandServer
	Heartbeats   *transport.DatagramServer
	Watcher      *link.Watcher
	Registrar    *registry.RegistrarMux
	Reporter     *registry.Reporter
	Rebooter     *device.ExecRebooter
}

func (c *Config) fotaServer() (net.IP, error) {
	if c.FotaServer == "" {
		return nil, nil
	}
	ip := net.ParseIP(c.FotaServer).To4()
	if ip == nil {
		return nil, fmt.Errorf("invalid FOTA server %q, IPv4 address expected", c.FotaServer)
	}
	return ip, nil
}

// NodeInfo returns the registry info of the node.
func (c *Config) NodeInfo(pins gpio.PinTable) registry.NodeInfo {
	return registry.NodeInfo{
		ID: c.ID,
		Meta: registry.NodeMeta{
			Description:   c.Description,
			Firmware:      heartbeat.FormatVersion(device.FirmwareVersion),
			Pins:          pins.Pins(),
			CommandPort:   c.CommandPort,
			HeartbeatPort: c.HeartbeatPort,
		},
	}
}

// NewEnv creates Env from config.
func (c *Config) NewEnv() (*Env, error) {
	if c.ID == "" {
		return nil, fmt.Errorf("node id must be specified")
	}
	pins, err := gpio.ParsePinTable(c.Pins)
	if err != nil {
		return nil, fmt.Errorf("invalid pins: %v", err)
	}
	server, err := c.fotaServer()
	if err != nil {
		return nil, err
	}
	store, err := flash.Open(c.FlashDir)
	if err != nil {
		return nil, fmt.Errorf("open flash %s error: %v", c.FlashDir, err)
	}

	e := &Env{
		Config:     c,
		Pins:       pins,
		Driver:     gpio.NewMemoryDriver(gpio.PowerOnLevels),
		Flash:      store,
		Commands:   transport.NewCommandServer(":"+strconv.Itoa(c.CommandPort), nil),
		Heartbeats: transport.NewDatagramServer(":"+strconv.Itoa(c.HeartbeatPort), nil),
		Registrar:  &registry.RegistrarMux{},
		Rebooter:   &device.ExecRebooter{},
	}
	e.Watcher = link.NewWatcher(c.Iface)
	e.Watcher.Interval = c.LinkPoll
	e.Orchestrator = fota.NewOrchestrator(fota.Config{
		Server:  server,
		Port:    c.FotaPort,
		Timeout: c.FotaTimeout,
	}, store, httpget.New(store), e.Rebooter)
	e.Controller = device.NewController(
		command.NewDispatcher(pins, e.Driver, e.Orchestrator),
		&heartbeat.Responder{},
		e.Orchestrator,
		e.Commands, e.Heartbeats)

	if c.MQTTBrokerURL != "" {
		reg, err := mqtt.NewRegistrar(c.MQTTBrokerURL, c.NodeInfo(pins))
		if err != nil {
			return nil, fmt.Errorf("create MQTT registrar error: %v", err)
		}
		e.Registrar.Add(reg)
		e.Rebooter.BeforeReboot = reg.Unregister
	}
	e.Reporter = registry.NewReporter(e.Registrar, device.FirmwareVersion, pins, e.Driver.Levels())
	e.Driver.Observer = e.Reporter.PinChanged
	e.Orchestrator.Observer = e.Reporter.FotaChanged
	e.Controller.Observer = e.Reporter
	return e, nil
}

// MustNewEnv creates Env and fails on error.
func (c *Config) MustNewEnv() *Env {
	e, err := c.NewEnv()
	if err != nil {
		log.Fatalln(err)
	}
	return e
}

// AddToLoop implements LoopAdder. Everything reaching the controller
// goes through the loop.
func (e *Env) AddToLoop(loop *fx.Loop) {
	e.Commands.OnData = device.CommandPoster(loop)
	e.Heartbeats.OnDatagram = device.DatagramPoster(loop)
	e.Orchestrator.Notify = device.FotaResultPoster(loop)
	loop.AddHandler(e.Controller)
	loop.AddRunnable(fx.NamedRun("link", e.Watcher))
	loop.Add(e.Registrar)
}

// Close tears down the endpoints.
func (e *Env) Close() error {
	var errs fx.AggregatedError
	errs.Add(e.Commands.Close(), e.Heartbeats.Close())
	return errs.Aggregate()
}
