package registry

import (
	"github.com/golang/protobuf/proto"
)

// PinState is the level of a controllable pin.
type PinState struct {
	Pin  uint32 `protobuf:"varint,1,opt,name=pin,proto3" json:"pin,omitempty"`
	High bool   `protobuf:"varint,2,opt,name=high,proto3" json:"high,omitempty"`
}

// ProtoMessage implements proto.Message.
func (m *PinState) ProtoMessage() {}

// Reset implements proto.Message.
func (m *PinState) Reset() { *m = PinState{} }

// String implements proto.Message.
func (m *PinState) String() string { return proto.CompactTextString(m) }

// FotaStatus reports the upgrade state.
type FotaStatus struct {
	State string `protobuf:"bytes,1,opt,name=state,proto3" json:"state,omitempty"`
	Bank  string `protobuf:"bytes,2,opt,name=bank,proto3" json:"bank,omitempty"`
	Error string `protobuf:"bytes,3,opt,name=error,proto3" json:"error,omitempty"`
}

// ProtoMessage implements proto.Message.
func (m *FotaStatus) ProtoMessage() {}

// Reset implements proto.Message.
func (m *FotaStatus) Reset() { *m = FotaStatus{} }

// String implements proto.Message.
func (m *FotaStatus) String() string { return proto.CompactTextString(m) }

// NodeStatus is a status snapshot of a node.
type NodeStatus struct {
	Link      string      `protobuf:"bytes,1,opt,name=link,proto3" json:"link,omitempty"`
	Ip        string      `protobuf:"bytes,2,opt,name=ip,proto3" json:"ip,omitempty"`
	Mac       string      `protobuf:"bytes,3,opt,name=mac,proto3" json:"mac,omitempty"`
	Firmware  uint32      `protobuf:"varint,4,opt,name=firmware,proto3" json:"firmware,omitempty"`
	Pins      []*PinState `protobuf:"bytes,5,rep,name=pins,proto3" json:"pins,omitempty"`
	Fota      *FotaStatus `protobuf:"bytes,6,opt,name=fota,proto3" json:"fota,omitempty"`
	Timestamp int64       `protobuf:"varint,7,opt,name=timestamp,proto3" json:"timestamp,omitempty"`
}

// ProtoMessage implements proto.Message.
func (m *NodeStatus) ProtoMessage() {}

// Reset implements proto.Message.
func (m *NodeStatus) Reset() { *m = NodeStatus{} }

// String implements proto.Message.
func (m *NodeStatus) String() string { return proto.CompactTextString(m) }

// EncodeStatus serializes a status.
func EncodeStatus(st *NodeStatus) ([]byte, error) {
	return proto.Marshal(st)
}

// DecodeStatus parses a serialized status.
func DecodeStatus(data []byte) (*NodeStatus, error) {
	st := &NodeStatus{}
	if err := proto.Unmarshal(data, st); err != nil {
		return nil, err
	}
	return st, nil
}
