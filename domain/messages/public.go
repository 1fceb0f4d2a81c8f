package messages

import (
	"encoding/json"
	"fmt"
)

type PublicRequest struct {
	SenderSide int `json:"senderSide"`
	RangeType  int `json:"rangeType"`
}

type PublicClose struct{}

// PublicMessage is the anonymous broadcast union; exactly one data
// field is set.
type PublicMessage struct {
	Request *PublicRequest `json:"request,omitempty"`
	Close   *PublicClose   `json:"close,omitempty"`
}

func (m *PublicMessage) Empty() bool {
	return m.Request == nil && m.Close == nil
}

func (m *PublicMessage) Marshal() ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf(`marshalling public message failed - %v`, err)
	}
	return data, nil
}

func ParsePublic(data []byte) (*PublicMessage, error) {
	m := &PublicMessage{}
	if err := json.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf(`parsing public message failed - %v`, err)
	}
	return m, nil
}
