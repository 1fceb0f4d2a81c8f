package messages

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/btcsuite/btcutil/base58"
	"github.com/otcdesk/otcdesk/domain"
)

// ContactKind mirrors the peer category a contact message belongs to so
// the receiver can dispatch it to the right peer map.
type ContactKind int

const (
	KindPrivate ContactKind = iota
	KindPublicRequest
	KindPublicResponse
)

type Offer struct {
	Price  int64 `json:"price"`
	Amount int64 `json:"amount"`
}

type Range struct {
	Lower int64 `json:"lower"`
	Upper int64 `json:"upper"`
}

type BuyerOffers struct {
	Offer            Offer  `json:"offer"`
	AuthAddressBuyer string `json:"authAddressBuyer"`
}

type SellerOffers struct {
	Offer Offer `json:"offer"`
}

type BuyerAccepts struct {
	Offer            Offer  `json:"offer"`
	AuthAddressBuyer string `json:"authAddressBuyer"`
}

type SellerAccepts struct {
	Offer             Offer  `json:"offer"`
	SettlementID      string `json:"settlementId"`
	AuthAddressSeller string `json:"authAddressSeller"`
	PayinTxID         string `json:"payinTxId"`
}

type BuyerAcks struct {
	SettlementID string `json:"settlementId"`
}

type Close struct{}

type QuoteResponse struct {
	SenderSide int   `json:"senderSide"`
	Price      Range `json:"price"`
	Amount     Range `json:"amount"`
}

// ContactMessage is a tagged union; exactly one data field is set.
type ContactMessage struct {
	ContactKind ContactKind `json:"contactKind"`

	BuyerOffers   *BuyerOffers   `json:"buyerOffers,omitempty"`
	SellerOffers  *SellerOffers  `json:"sellerOffers,omitempty"`
	BuyerAccepts  *BuyerAccepts  `json:"buyerAccepts,omitempty"`
	SellerAccepts *SellerAccepts `json:"sellerAccepts,omitempty"`
	BuyerAcks     *BuyerAcks     `json:"buyerAcks,omitempty"`
	Close         *Close         `json:"close,omitempty"`
	QuoteResponse *QuoteResponse `json:"quoteResponse,omitempty"`
}

// Empty reports whether no data field is set, which a receiver treats
// as a protocol violation.
func (m *ContactMessage) Empty() bool {
	return m.BuyerOffers == nil && m.SellerOffers == nil && m.BuyerAccepts == nil &&
		m.SellerAccepts == nil && m.BuyerAcks == nil && m.Close == nil && m.QuoteResponse == nil
}

func (m *ContactMessage) Marshal() ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf(`marshalling contact message failed - %v`, err)
	}
	return data, nil
}

func ParseContact(data []byte) (*ContactMessage, error) {
	m := &ContactMessage{}
	if err := json.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf(`parsing contact message failed - %v`, err)
	}
	return m, nil
}

func ValidOffer(o Offer) bool {
	return o.Price > 0 && o.Amount > 0
}

func CopyOffer(src domain.Offer) Offer {
	return Offer{Price: src.Price, Amount: src.Amount}
}

func CopyRange(src domain.Range) Range {
	return Range{Lower: src.Lower, Upper: src.Upper}
}

func ToRange(src Range) domain.Range {
	return domain.Range{Lower: src.Lower, Upper: src.Upper}
}

// EncodePubKey renders a 33-byte compressed public key as base58 for
// the wire.
func EncodePubKey(pubKey []byte) string {
	return base58.Encode(pubKey)
}

// DecodePubKey parses a base58 public key and enforces the compressed
// key size.
func DecodePubKey(s string) ([]byte, error) {
	key := base58.Decode(s)
	if len(key) != domain.PubKeySize {
		return nil, fmt.Errorf(`invalid public key size (%d)`, len(key))
	}
	return key, nil
}

// EncodeTxID renders a 32-byte transaction hash as hex.
func EncodeTxID(txID []byte) string {
	return hex.EncodeToString(txID)
}

func DecodeTxID(s string) ([]byte, error) {
	txID, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf(`invalid tx id encoding - %v`, err)
	}
	if len(txID) != domain.TxHashSize {
		return nil, fmt.Errorf(`invalid tx id size (%d)`, len(txID))
	}
	return txID, nil
}
