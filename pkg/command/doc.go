// Package command implements the binary command protocol served on
// the control TCP port of a node.
package command

// A command frame is
//
//   [SIG=0xAA][LENGTH][OPCODE][D0]...[D(LENGTH-2)]
//
// LENGTH counts OPCODE and the data bytes. The transport delivers one
// frame per receive; the protocol has no sequence numbers and no
// negative acknowledgement, malformed frames are dropped silently.
//
// OPCODE 0x00 ECHO        the frame is sent back verbatim.
// OPCODE 0x01 GPIO_SET    every controllable pin with its bit set in D0 goes HIGH.
// OPCODE 0x02 GPIO_CLEAR  every controllable pin with its bit set in D0 goes LOW.
// OPCODE 0x80 FOTA        start a firmware upgrade unless one is in progress.
