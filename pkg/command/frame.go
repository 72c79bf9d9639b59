package command

import (
	"errors"
	"fmt"
	"io"
)

// Signature is the first byte of every command frame.
const Signature byte = 0xAA

// Opcodes
const (
	OpEcho        byte = 0x00
	OpGpioSet     byte = 0x01
	OpGpioClear   byte = 0x02
	OpFotaTrigger byte = 0x80
)

// HeaderSize is the size of [SIG][LENGTH][OPCODE].
const HeaderSize = 3

var (
	// ErrBadSignature indicates the first byte is not Signature.
	ErrBadSignature = errors.New("bad signature")
	// ErrShortFrame indicates the frame is too short for its opcode.
	ErrShortFrame = errors.New("short frame")
)

// Command is a decoded command frame. It is one of Echo, GpioSet,
// GpioClear, FotaTrigger or Unknown.
type Command interface {
	Opcode() byte
}

// Echo asks the node to send the frame back.
type Echo struct {
	Frame []byte
}

// GpioSet drives pins in Mask HIGH.
type GpioSet struct {
	Mask byte
}

// GpioClear drives pins in Mask LOW.
type GpioClear struct {
	Mask byte
}

// FotaTrigger starts a firmware upgrade.
type FotaTrigger struct{}

// Unknown is a well-formed frame with an unsupported opcode.
type Unknown struct {
	Op byte
}

// Opcode implements Command.
func (Echo) Opcode() byte { return OpEcho }

// Opcode implements Command.
func (GpioSet) Opcode() byte { return OpGpioSet }

// Opcode implements Command.
func (GpioClear) Opcode() byte { return OpGpioClear }

// Opcode implements Command.
func (FotaTrigger) Opcode() byte { return OpFotaTrigger }

// Opcode implements Command.
func (c Unknown) Opcode() byte { return c.Op }

// Decode decodes a received frame. The LENGTH byte is advisory and not
// checked against len(data), but data is never read beyond its end.
func Decode(data []byte) (Command, error) {
	if len(data) == 0 {
		return nil, ErrShortFrame
	}
	if data[0] != Signature {
		return nil, ErrBadSignature
	}
	if len(data) < HeaderSize {
		return nil, ErrShortFrame
	}
	switch op := data[2]; op {
	case OpEcho:
		return Echo{Frame: data}, nil
	case OpGpioSet, OpGpioClear:
		if len(data) < HeaderSize+1 {
			return nil, ErrShortFrame
		}
		if op == OpGpioSet {
			return GpioSet{Mask: data[3]}, nil
		}
		return GpioClear{Mask: data[3]}, nil
	case OpFotaTrigger:
		return FotaTrigger{}, nil
	default:
		return Unknown{Op: op}, nil
	}
}

// Frame is a command frame to be sent.
type Frame struct {
	Op   byte
	Data []byte
}

// MaxDataSize is the maximum data bytes LENGTH can describe.
const MaxDataSize = 0xff - 1

// EchoFrame creates an ECHO frame carrying data.
func EchoFrame(data ...byte) *Frame {
	return &Frame{Op: OpEcho, Data: data}
}

// GpioSetFrame creates a GPIO_SET frame.
func GpioSetFrame(mask byte) *Frame {
	return &Frame{Op: OpGpioSet, Data: []byte{mask}}
}

// GpioClearFrame creates a GPIO_CLEAR frame.
func GpioClearFrame(mask byte) *Frame {
	return &Frame{Op: OpGpioClear, Data: []byte{mask}}
}

// FotaTriggerFrame creates a FOTA frame.
func FotaTriggerFrame() *Frame {
	return &Frame{Op: OpFotaTrigger}
}

// Bytes returns encoded bytes for sending.
func (f *Frame) Bytes() []byte {
	data := f.Data
	if len(data) > MaxDataSize {
		data = data[:MaxDataSize]
	}
	b := make([]byte, HeaderSize+len(data))
	b[0], b[1], b[2] = Signature, byte(len(data)+1), f.Op
	copy(b[HeaderSize:], data)
	return b
}

// WriteTo writes the encoded frame in a single Write, the node treats
// every receive as a whole frame.
func (f *Frame) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(f.Bytes())
	return int64(n), err
}

// String implements fmt.Stringer.
func (f *Frame) String() string {
	return fmt.Sprintf("op=%02X % X", f.Op, f.Data)
}
