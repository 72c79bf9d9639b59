package mqtt

import (
	"context"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/golang/glog"

	"github.com/robotalks/gpionode/pkg/registry"
)

// Defaults
const (
	DefaultDiscoverTimeout = 500 * time.Millisecond
	DefaultConnectTimeout  = 5 * time.Second
)

// Connector implements registry.Connector using MQTT.
type Connector struct {
	DiscoverTimeout time.Duration
	ConnectTimeout  time.Duration

	options     *paho.ClientOptions
	topicPrefix string
}

// NewConnector creates a Connector.
func NewConnector(brokerURL string) (*Connector, error) {
	opts, topicPrefix, err := ClientOptionsFromURL(brokerURL)
	if err != nil {
		return nil, err
	}
	return &Connector{
		DiscoverTimeout: DefaultDiscoverTimeout,
		ConnectTimeout:  DefaultConnectTimeout,
		options:         opts,
		topicPrefix:     topicPrefix,
	}, nil
}

// NodeIDFromTopic extracts the node ID from gpionode/ID/KIND.
func NodeIDFromTopic(topic, kind string) (string, bool) {
	items := strings.Split(topic, "/")
	if len(items) != 3 || items[0] != registry.TopicRoot || items[2] != kind || items[1] == "" {
		return "", false
	}
	return items[1], true
}

func (c *Connector) connect() (*Queue, error) {
	q := NewQueue(c.options, c.topicPrefix)
	timeout := c.ConnectTimeout
	if timeout == 0 {
		timeout = DefaultConnectTimeout
	}
	if err := q.ConnectWait(timeout); err != nil {
		q.Close()
		return nil, err
	}
	return q, nil
}

// Discover implements registry.Connector. It collects the retained
// meta of online nodes.
func (c *Connector) Discover(ctx context.Context) (res []registry.NodeInfo, err error) {
	q, err := c.connect()
	if err != nil {
		return nil, err
	}
	defer q.Close()
	resCh := make(chan registry.NodeInfo, 1)
	sub := q.Sub(registry.MetaTopic("+"), func(topic string, payload []byte) {
		id, ok := NodeIDFromTopic(topic, "meta")
		if !ok || len(payload) == 0 {
			return
		}
		info, err := registry.ParseNodeInfo(id, payload)
		if err != nil {
			glog.Warningf("%s: bad meta: %v", topic, err)
			return
		}
		select {
		case resCh <- info:
		case <-time.After(time.Second):
		}
	})
	defer sub.Close()

	dur := c.DiscoverTimeout
	if dur == 0 {
		dur = DefaultDiscoverTimeout
	}
	timeout := time.After(dur)
	for {
		select {
		case info := <-resCh:
			res = append(res, info)
		case <-timeout:
			return
		case <-ctx.Done():
			err = ctx.Err()
			return
		}
	}
}

// Watch implements registry.Connector.
func (c *Connector) Watch(ctx context.Context, fn func(id string, status *registry.NodeStatus)) error {
	q, err := c.connect()
	if err != nil {
		return err
	}
	defer q.Close()
	sub := q.Sub(registry.StatusTopic("+"), func(topic string, payload []byte) {
		id, ok := NodeIDFromTopic(topic, "status")
		if !ok {
			return
		}
		st, err := registry.DecodeStatus(payload)
		if err != nil {
			glog.Warningf("%s: bad status: %v", topic, err)
			return
		}
		fn(id, st)
	})
	defer sub.Close()
	<-ctx.Done()
	return ctx.Err()
}
