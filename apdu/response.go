package apdu

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	SwOK                     = uint16(0x9000)
	SwWrongLength            = uint16(0x6700)
	SwSecurityNotSatisfied   = uint16(0x6982)
	SwConditionsNotSatisfied = uint16(0x6985)
	SwWrongData              = uint16(0x6A80)
	SwFunctionNotSupported   = uint16(0x6A81)
	SwFileNotFound           = uint16(0x6A82)
	SwRecordNotFound         = uint16(0x6A83)
	SwIncorrectP1P2          = uint16(0x6A86)
	SwReferencedDataNotFound = uint16(0x6A88)
	SwInsNotSupported        = uint16(0x6D00)
	SwClaNotSupported        = uint16(0x6E00)
)

// ErrBadRawResponse is an error returned by ParseResponse if the response is not valid.
var ErrBadRawResponse = errors.New("response from card should be at least 2 bytes")

// Response represents a struct returned by a smartcard to an apdu Command.
type Response struct {
	Data []byte
	Sw1  uint8
	Sw2  uint8
	Sw   uint16
}

// ErrBadResponse defines an error conaining the returned Sw code and a description message.
type ErrBadResponse struct {
	Sw      uint16
	message string
}

// NewErrBadResponse returns a ErrBadResponse with the specified sw and message values.
func NewErrBadResponse(sw uint16, message string) *ErrBadResponse {
	return &ErrBadResponse{
		Sw:      sw,
		message: message,
	}
}

// Error implements the error interface.
func (e *ErrBadResponse) Error() string {
	return fmt.Sprintf("bad response %04X: %s", e.Sw, e.message)
}

// ParseResponse parses a raw response and return a Response.
func ParseResponse(data []byte) (*Response, error) {
	if len(data) < 2 {
		return nil, ErrBadRawResponse
	}

	swIndex := len(data) - 2
	sw1 := data[swIndex]
	sw2 := data[swIndex+1]

	return &Response{
		Data: data[:swIndex],
		Sw1:  sw1,
		Sw2:  sw2,
		Sw:   binary.BigEndian.Uint16(data[swIndex:]),
	}, nil
}

// IsOK returns true if the response Sw code is 0x9000.
func (r *Response) IsOK() bool {
	return r.Sw == SwOK
}

// HasMoreData returns true for 61XX, meaning the card has more bytes to give via GET RESPONSE.
func (r *Response) HasMoreData() bool {
	return r.Sw1 == 0x61
}

// WrongLe returns true for 6CXX, meaning the command must be repeated with Le set to Sw2.
func (r *Response) WrongLe() bool {
	return r.Sw1 == 0x6C
}
