package command

// Parser reassembles frames from a byte stream using the LENGTH byte.
// The node itself treats each receive as one frame; Parser is for peers
// reading replies from a TCP stream where receives may split or merge.
type Parser struct {
	state   parseState
	frame   []byte
	recvLen int
}

type parseState int

const (
	stateSignature parseState = iota // waiting for Signature
	stateLength                      // waiting for LENGTH
	stateBody                        // waiting for OPCODE and data
)

// Receiving tells if the parser is in the middle of a frame.
func (p *Parser) Receiving() bool {
	return p.state != stateSignature
}

// Reset drops any partial frame.
func (p *Parser) Reset() {
	p.state, p.frame, p.recvLen = stateSignature, nil, 0
}

// Parse consumes one byte and returns a complete frame if any.
func (p *Parser) Parse(b byte) []byte {
	switch p.state {
	case stateSignature:
		if b == Signature {
			p.state = stateLength
		}
	case stateLength:
		if b == 0 {
			// LENGTH always includes OPCODE.
			p.Reset()
			return nil
		}
		p.frame = make([]byte, int(b)+2)
		p.frame[0], p.frame[1], p.recvLen = Signature, b, 2
		p.state = stateBody
	case stateBody:
		p.frame[p.recvLen] = b
		p.recvLen++
		if p.recvLen >= len(p.frame) {
			frame := p.frame
			p.Reset()
			return frame
		}
	}
	return nil
}

// Feed consumes a chunk and returns all frames completed by it.
func (p *Parser) Feed(data []byte) (frames [][]byte) {
	for _, b := range data {
		if frame := p.Parse(b); frame != nil {
			frames = append(frames, frame)
		}
	}
	return
}
