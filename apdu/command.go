package apdu

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Command struct represent the data sent as an APDU command with CLA, Ins, P1, P2, Lc, Data, and Le.
type Command struct {
	cla        uint8
	ins        uint8
	p1         uint8
	p2         uint8
	data       []byte
	le         uint8
	requiresLe bool
}

// NewCommand returns a new apdu Command.
func NewCommand(cla, ins, p1, p2 uint8, data []byte) *Command {
	return &Command{
		cla:  cla,
		ins:  ins,
		p1:   p1,
		p2:   p2,
		data: data,
	}
}

// SetLe sets the expected length of the response. A zero Le means "up to 256 bytes".
func (c *Command) SetLe(le uint8) {
	c.requiresLe = true
	c.le = le
}

// Le returns if Le is set and its value.
func (c *Command) Le() (bool, uint8) {
	return c.requiresLe, c.le
}

// Data returns the data field of the command.
func (c *Command) Data() []byte {
	return c.data
}

// Cla returns the Cla field of the command.
func (c *Command) Cla() uint8 {
	return c.cla
}

// Ins returns the Ins field of the command.
func (c *Command) Ins() uint8 {
	return c.ins
}

// P1 returns the P1 field of the command.
func (c *Command) P1() uint8 {
	return c.p1
}

// P2 returns the P2 field of the command.
func (c *Command) P2() uint8 {
	return c.p2
}

// Serialize serielizes the command into a raw short APDU (ISO 7816-4 cases 1 to 4).
func (c *Command) Serialize() ([]byte, error) {
	if len(c.data) > 255 {
		return nil, fmt.Errorf("command data too long for a short apdu: %d bytes", len(c.data))
	}

	buf := new(bytes.Buffer)

	if err := binary.Write(buf, binary.BigEndian, []byte{c.cla, c.ins, c.p1, c.p2}); err != nil {
		return nil, err
	}

	if len(c.data) > 0 {
		if err := buf.WriteByte(uint8(len(c.data))); err != nil {
			return nil, err
		}

		if _, err := buf.Write(c.data); err != nil {
			return nil, err
		}
	}

	if c.requiresLe {
		if err := buf.WriteByte(c.le); err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}
