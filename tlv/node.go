// Package tlv decodes and encodes the BER-TLV structures found in EMV responses.
package tlv

import (
	"bytes"
	"fmt"
	"io"
)

// ParseError marks the position where a TLV structure could not be decoded.
type ParseError struct {
	Offset int
	Tag    Tag
	Reason error
}

func (e *ParseError) Error() string {
	if e.Tag == 0 {
		return fmt.Sprintf("tlv: offset %d: %s", e.Offset, e.Reason)
	}

	return fmt.Sprintf("tlv: tag %s at offset %d: %s", e.Tag, e.Offset, e.Reason)
}

func (e *ParseError) Unwrap() error {
	return e.Reason
}

// Node is one decoded tag. Constructed nodes keep their raw Value and the decoded Children.
type Node struct {
	Tag      Tag
	Length   int
	Value    []byte
	Children []*Node
	Err      error
}

// New returns a primitive node.
func New(tag Tag, value []byte) *Node {
	return &Node{
		Tag:    tag,
		Length: len(value),
		Value:  value,
	}
}

// NewConstructed returns a constructed node whose value is the encoding of children.
func NewConstructed(tag Tag, children ...*Node) *Node {
	value := Encode(children)
	return &Node{
		Tag:      tag,
		Length:   len(value),
		Value:    value,
		Children: children,
	}
}

// Decode parses raw into a list of sibling nodes. Decoding never fails as a
// whole: a malformed node carries its error in Err, and scanning goes on with
// the following siblings whenever the broken node's extent is known.
func Decode(raw []byte) []*Node {
	return decode(raw, 0)
}

func decode(raw []byte, base int) []*Node {
	nodes := make([]*Node, 0)
	buf := bytes.NewReader(raw)

	for buf.Len() > 0 {
		offset := len(raw) - buf.Len()

		// 00 and FF may pad records between objects
		if raw[offset] == 0x00 || raw[offset] == 0xFF {
			buf.ReadByte()
			continue
		}

		tag, err := ReadTag(buf)
		if err != nil {
			nodes = append(nodes, &Node{Tag: tag, Err: &ParseError{base + offset, tag, err}})
			return nodes
		}

		length, err := ReadLength(buf)
		if err != nil {
			nodes = append(nodes, &Node{Tag: tag, Err: &ParseError{base + offset, tag, err}})
			return nodes
		}

		valueOffset := len(raw) - buf.Len()
		if length < 0 || length > buf.Len() {
			node := &Node{
				Tag:    tag,
				Length: length,
				Value:  raw[valueOffset:],
				Err:    &ParseError{base + offset, tag, fmt.Errorf("value truncated: want %d bytes, have %d", length, buf.Len())},
			}
			return append(nodes, node)
		}

		value := raw[valueOffset : valueOffset+length]
		if _, err := buf.Seek(int64(length), io.SeekCurrent); err != nil {
			return nodes
		}

		node := &Node{
			Tag:    tag,
			Length: length,
			Value:  value,
		}

		if tag.Constructed() {
			node.Children = decode(value, base+valueOffset)
		}

		nodes = append(nodes, node)
	}

	return nodes
}

// Encode serializes nodes. Constructed nodes with children are re-encoded from
// their children, other nodes from their Value.
func Encode(nodes []*Node) []byte {
	buf := new(bytes.Buffer)
	for _, n := range nodes {
		value := n.Value
		if n.Tag.Constructed() && len(n.Children) > 0 {
			value = Encode(n.Children)
		}

		buf.Write(n.Tag.Bytes())
		WriteLength(buf, len(value))
		buf.Write(value)
	}

	return buf.Bytes()
}

// Find returns the first node with the given tag, searching depth first.
func Find(nodes []*Node, tag Tag) *Node {
	for _, n := range nodes {
		if n.Tag == tag && n.Err == nil {
			return n
		}

		if found := Find(n.Children, tag); found != nil {
			return found
		}
	}

	return nil
}

// FindAll returns every node with the given tag in depth first order.
func FindAll(nodes []*Node, tag Tag) []*Node {
	found := make([]*Node, 0)
	for _, n := range nodes {
		if n.Tag == tag && n.Err == nil {
			found = append(found, n)
		}

		found = append(found, FindAll(n.Children, tag)...)
	}

	return found
}

// Errors collects the parse errors of the whole tree.
func Errors(nodes []*Node) []error {
	errs := make([]error, 0)
	for _, n := range nodes {
		if n.Err != nil {
			errs = append(errs, n.Err)
		}

		errs = append(errs, Errors(n.Children)...)
	}

	return errs
}
