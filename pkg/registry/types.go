// Package registry announces nodes and their status to a registry
// where clients can find them.
package registry

import (
	"context"
	"encoding/json"

	fx "github.com/robotalks/gpionode/pkg/framework"
)

// TopicRoot is the root of all node topics under the prefix.
const TopicRoot = "gpionode"

// NodeMeta provides metadata of a node.
type NodeMeta struct {
	Description   string            `json:"description,omitempty"`
	Labels        map[string]string `json:"labels,omitempty"`
	Firmware      string            `json:"firmware,omitempty"`
	Pins          []int             `json:"pins,omitempty"`
	CommandPort   int               `json:"command-port,omitempty"`
	HeartbeatPort int               `json:"heartbeat-port,omitempty"`
}

// NodeInfo provides information of a node.
type NodeInfo struct {
	ID   string
	Meta NodeMeta
}

// MarshalMeta encodes meta as JSON.
func (n *NodeInfo) MarshalMeta() ([]byte, error) {
	return json.Marshal(&n.Meta)
}

// ParseNodeInfo decodes meta JSON of node id.
func ParseNodeInfo(id string, meta []byte) (info NodeInfo, err error) {
	info.ID = id
	if len(meta) > 0 {
		err = json.Unmarshal(meta, &info.Meta)
	}
	return
}

// MetaTopic is the topic where meta is retained.
func MetaTopic(id string) string {
	return TopicRoot + "/" + id + "/meta"
}

// StatusTopic is the topic where status is published.
func StatusTopic(id string) string {
	return TopicRoot + "/" + id + "/status"
}

// Registrar publishes node status to a registry.
type Registrar interface {
	// SendStatus publishes a status snapshot.
	SendStatus(context.Context, *NodeStatus) error
}

// Connector is used by clients to find nodes.
type Connector interface {
	// Discover enumerates registered nodes.
	Discover(context.Context) ([]NodeInfo, error)
	// Watch delivers status updates of all nodes until ctx is done.
	Watch(ctx context.Context, fn func(id string, status *NodeStatus)) error
}

// RegistrarMux publishes to multiple Registrars.
type RegistrarMux struct {
	Registrars []Registrar
}

// SendStatus implements Registrar.
func (r *RegistrarMux) SendStatus(ctx context.Context, st *NodeStatus) error {
	var errs fx.AggregatedError
	for _, reg := range r.Registrars {
		errs.Add(reg.SendStatus(ctx, st))
	}
	return errs.Aggregate()
}

// AddToLoop implements LoopAdder.
func (r *RegistrarMux) AddToLoop(l *fx.Loop) {
	for _, reg := range r.Registrars {
		if adder, ok := reg.(fx.LoopAdder); ok {
			l.Add(adder)
		}
	}
}

// Add adds more registrars.
func (r *RegistrarMux) Add(registrars ...Registrar) *RegistrarMux {
	r.Registrars = append(r.Registrars, registrars...)
	return r
}
