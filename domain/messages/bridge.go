package messages

import (
	"encoding/json"
	"fmt"
)

// Bridge trade states pushed through UpdateOtcState.
const (
	OtcStateWaitBuyerSign  = `wait-buyer-sign`
	OtcStateWaitSellerSeal = `wait-seller-seal`
	OtcStateWaitSellerSign = `wait-seller-sign`
	OtcStateCancelled      = `cancelled`
	OtcStateFailed         = `failed`
	OtcStateSucceeded      = `succeeded`
)

type StartOtc struct {
	RequestID string `json:"requestId"`
}

type VerifyOtc struct {
	IsSeller          bool   `json:"isSeller"`
	Price             int64  `json:"price"`
	Amount            int64  `json:"amount"`
	SettlementID      string `json:"settlementId"`
	AuthAddressBuyer  string `json:"authAddressBuyer"`
	AuthAddressSeller string `json:"authAddressSeller"`
	UnsignedTx        []byte `json:"unsignedTx"`
	PayinHash         string `json:"payinHash"`
	ChatIDBuyer       string `json:"chatIdBuyer"`
	ChatIDSeller      string `json:"chatIdSeller"`
}

type SealPayinValidity struct {
	SettlementID string `json:"settlementId"`
}

type ProcessTx struct {
	SignedTx     []byte `json:"signedTx"`
	SettlementID string `json:"settlementId"`
}

type Cancel struct {
	SettlementID string `json:"settlementId"`
}

// BridgeRequest is the client-to-bridge union; exactly one data field
// is set.
type BridgeRequest struct {
	StartOtc          *StartOtc          `json:"startOtc,omitempty"`
	VerifyOtc         *VerifyOtc         `json:"verifyOtc,omitempty"`
	SealPayinValidity *SealPayinValidity `json:"sealPayinValidity,omitempty"`
	ProcessTx         *ProcessTx         `json:"processTx,omitempty"`
	Cancel            *Cancel            `json:"cancel,omitempty"`
}

func (r *BridgeRequest) Marshal() ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf(`marshalling bridge request failed - %v`, err)
	}
	return data, nil
}

type StartOtcResponse struct {
	RequestID    string `json:"requestId"`
	SettlementID string `json:"settlementId"`
}

type UpdateOtcState struct {
	SettlementID string `json:"settlementId"`
	State        string `json:"state"`
	ErrorMsg     string `json:"errorMsg,omitempty"`
}

// BridgeResponse is the bridge-to-client union.
type BridgeResponse struct {
	StartOtc       *StartOtcResponse `json:"startOtc,omitempty"`
	UpdateOtcState *UpdateOtcState   `json:"updateOtcState,omitempty"`
}

func (r *BridgeResponse) Empty() bool {
	return r.StartOtc == nil && r.UpdateOtcState == nil
}

func (r *BridgeResponse) Marshal() ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf(`marshalling bridge response failed - %v`, err)
	}
	return data, nil
}

func ParseBridgeResponse(data []byte) (*BridgeResponse, error) {
	r := &BridgeResponse{}
	if err := json.Unmarshal(data, r); err != nil {
		return nil, fmt.Errorf(`parsing bridge response failed - %v`, err)
	}
	return r, nil
}
