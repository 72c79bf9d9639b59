package mqtt

import (
	"context"
	"errors"
	"time"

	"github.com/golang/glog"

	fx "github.com/robotalks/gpionode/pkg/framework"
	"github.com/robotalks/gpionode/pkg/registry"
)

var (
	// ErrTimeout indicates the broker didn't respond in time.
	ErrTimeout = errors.New("MQTT timeout")
	// ErrNotConnected indicates the client is not connected.
	ErrNotConnected = errors.New("MQTT not connected")
)

// ClientIDPrefix prefixes the client ID of a node.
const ClientIDPrefix = "gpionode:"

// Registrar implements registry.Registrar using MQTT. The node meta
// is retained on the meta topic while the node is online and cleared
// by the will when it goes away.
type Registrar struct {
	Queue *Queue
	Info  registry.NodeInfo

	meta []byte
}

// NewRegistrar creates a Registrar.
func NewRegistrar(brokerURL string, info registry.NodeInfo) (*Registrar, error) {
	meta, err := info.MarshalMeta()
	if err != nil {
		return nil, err
	}
	opts, topicPrefix, err := ClientOptionsFromURL(brokerURL)
	if err != nil {
		return nil, err
	}
	opts.SetBinaryWill(topicPrefix+registry.MetaTopic(info.ID), nil, 1, true)
	if opts.ClientID == "" {
		opts.SetClientID(ClientIDPrefix + info.ID)
	}
	r := &Registrar{
		Queue: NewQueue(opts, topicPrefix),
		Info:  info,
		meta:  meta,
	}
	r.Queue.OnConnect = func(*Queue) { r.announce() }
	return r, nil
}

// SendStatus implements registry.Registrar. It doesn't wait for the
// broker.
func (r *Registrar) SendStatus(ctx context.Context, st *registry.NodeStatus) error {
	if !r.Queue.Client.IsConnected() {
		return ErrNotConnected
	}
	data, err := registry.EncodeStatus(st)
	if err != nil {
		return err
	}
	r.Queue.Pub(registry.StatusTopic(r.Info.ID), data)
	return nil
}

// AddToLoop implements LoopAdder.
func (r *Registrar) AddToLoop(loop *fx.Loop) {
	loop.AddRunnable(r)
}

// Run implements Runnable.
func (r *Registrar) Run(ctx context.Context) error {
	r.Queue.Connect()
	<-ctx.Done()
	r.Unregister()
	return nil
}

// Unregister clears the meta and disconnects.
func (r *Registrar) Unregister() {
	if r.Queue.Client.IsConnected() {
		token := r.Queue.PubWith(registry.MetaTopic(r.Info.ID), nil, 1, true)
		if !token.WaitTimeout(time.Second) {
			glog.Warning("clear meta timeout")
		}
	}
	r.Queue.Close()
}

func (r *Registrar) announce() {
	glog.Infof("registered as %s", r.Info.ID)
	r.Queue.PubWith(registry.MetaTopic(r.Info.ID), r.meta, 1, true)
}
