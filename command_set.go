package cardid

import (
	"github.com/accessterm/cardid-go/apdu"
	"github.com/accessterm/cardid-go/tlv"
	"github.com/accessterm/cardid-go/types"
)

// maxGetResponse bounds the 61XX chaining loop.
const maxGetResponse = 8

// CommandSet sends the EMV commands used during identification.
type CommandSet struct {
	c types.Channel
}

func NewCommandSet(c types.Channel) *CommandSet {
	return &CommandSet{
		c: c,
	}
}

// Select selects aid and returns its FCI.
func (cs *CommandSet) Select(aid []byte) ([]byte, error) {
	resp, err := cs.send(NewCommandSelect(aid))
	if err = cs.checkOK(resp, err); err != nil {
		return nil, err
	}

	return resp.Data, nil
}

// GetProcessingOptions sends a GPO variant and returns the response template.
func (cs *CommandSet) GetProcessingOptions(cmd *apdu.Command) ([]byte, error) {
	resp, err := cs.send(cmd)
	if err = cs.checkOK(resp, err); err != nil {
		return nil, err
	}

	return resp.Data, nil
}

func (cs *CommandSet) ReadRecord(sfi uint8, record uint8) ([]byte, error) {
	resp, err := cs.send(NewCommandReadRecord(sfi, record))
	if err = cs.checkOK(resp, err); err != nil {
		return nil, err
	}

	return resp.Data, nil
}

func (cs *CommandSet) GetData(tag tlv.Tag) ([]byte, error) {
	resp, err := cs.send(NewCommandGetData(tag))
	if err = cs.checkOK(resp, err); err != nil {
		return nil, err
	}

	return resp.Data, nil
}

// Transmit sends cmd and returns the raw response whatever its status word.
func (cs *CommandSet) Transmit(cmd *apdu.Command) (*apdu.Response, error) {
	return cs.send(cmd)
}

// send follows the T=0 conventions: 6CXX repeats the command with the right
// Le, 61XX fetches the remaining bytes with GET RESPONSE.
func (cs *CommandSet) send(cmd *apdu.Command) (*apdu.Response, error) {
	resp, err := cs.c.Send(cmd)
	if err != nil {
		return nil, err
	}

	if resp.WrongLe() {
		cmd.SetLe(resp.Sw2)
		resp, err = cs.c.Send(cmd)
		if err != nil {
			return nil, err
		}
	}

	data := append([]byte{}, resp.Data...)
	for i := 0; resp.HasMoreData() && i < maxGetResponse; i++ {
		resp, err = cs.c.Send(NewCommandGetResponse(resp.Sw2))
		if err != nil {
			return nil, err
		}
		data = append(data, resp.Data...)
	}

	resp.Data = data
	return resp, nil
}

func (cs *CommandSet) checkOK(resp *apdu.Response, err error, allowedResponses ...uint16) error {
	if err != nil {
		return err
	}

	if len(allowedResponses) == 0 {
		allowedResponses = []uint16{apdu.SwOK}
	}

	for _, code := range allowedResponses {
		if code == resp.Sw {
			return nil
		}
	}

	return apdu.NewErrBadResponse(resp.Sw, "unexpected response")
}
