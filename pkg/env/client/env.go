// Package client sets up the env of client tools.
package client

import (
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"time"

	"github.com/robotalks/gpionode/pkg/client"
	"github.com/robotalks/gpionode/pkg/registry"
	"github.com/robotalks/gpionode/pkg/registry/mqtt"
)

// Config provides common options of client tools.
type Config struct {
	// Addr is the command address of the node to connect.
	Addr            string
	HeartbeatPort   int
	DiscoverTimeout time.Duration

	// RegistryURL specifies the URL of the node registry.
	// e.g. mqtt://host:port/topic-prefix
	RegistryURL string
}

var defaultConfig = Config{
	HeartbeatPort:   client.DefaultPort,
	DiscoverTimeout: client.DefaultDiscoverTimeout,
	RegistryURL:     "mqtt://localhost:1883/",
}

func init() {
	if val := os.Getenv("GPIONODE_ADDR"); val != "" {
		defaultConfig.Addr = val
	}
	if val := os.Getenv("GPIONODE_MQTT_URL"); val != "" {
		defaultConfig.RegistryURL = val
	}
}

// SetupFlags sets up command line flags.
func SetupFlags() {
	flag.StringVar(&defaultConfig.Addr, "addr", defaultConfig.Addr, "Node address HOST:PORT to connect.")
	flag.IntVar(&defaultConfig.HeartbeatPort, "hb-port", defaultConfig.HeartbeatPort, "Heartbeat port to probe.")
	flag.DurationVar(&defaultConfig.DiscoverTimeout, "discover-timeout", defaultConfig.DiscoverTimeout, "Time waiting for heartbeat replies.")
	flag.StringVar(&defaultConfig.RegistryURL, "mqtt", defaultConfig.RegistryURL, "Node registry URL.")
}

// Default gets the default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a Config with default configurations.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// NewDiscoverer creates a Discoverer probing the heartbeat port.
func (c *Config) NewDiscoverer() *client.Discoverer {
	d := client.NewDiscoverer(c.HeartbeatPort)
	d.Timeout = c.DiscoverTimeout
	return d
}

// NewConnector creates a registry Connector using current config.
func (c *Config) NewConnector() (registry.Connector, error) {
	if c.RegistryURL == "" {
		return nil, fmt.Errorf("registry URL not specified")
	}
	parsedURL, err := url.Parse(c.RegistryURL)
	if err != nil {
		return nil, fmt.Errorf("invalid registry URL: %v", err)
	}
	switch parsedURL.Scheme {
	case "mqtt", "mqtts":
		return mqtt.NewConnector(c.RegistryURL)
	default:
		return nil, fmt.Errorf("unknown registry URL scheme: %q", parsedURL.Scheme)
	}
}

// MustNewConnector creates a Connector and fails on error.
func (c *Config) MustNewConnector() registry.Connector {
	conn, err := c.NewConnector()
	if err != nil {
		log.Fatalln(err)
	}
	return conn
}
