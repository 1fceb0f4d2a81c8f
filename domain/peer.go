package domain

import (
	"fmt"
	"time"
)

type Side int

const (
	SideUnknown Side = iota
	SideBuy
	SideSell
)

func (s Side) String() string {
	switch s {
	case SideBuy:
		return `buy`
	case SideSell:
		return `sell`
	default:
		return `unknown`
	}
}

// SwitchSide returns the counterparty's view of a side.
func SwitchSide(s Side) Side {
	switch s {
	case SideBuy:
		return SideSell
	case SideSell:
		return SideBuy
	default:
		return SideUnknown
	}
}

type PeerType int

const (
	PeerContact PeerType = iota
	PeerRequest
	PeerResponse
)

func (t PeerType) String() string {
	switch t {
	case PeerContact:
		return `contact`
	case PeerRequest:
		return `request`
	case PeerResponse:
		return `response`
	default:
		return `undefined`
	}
}

type State int

const (
	StateIdle State = iota
	StateQuoteSent
	StateQuoteRecv
	StateOfferSent
	StateOfferRecv
	StateWaitPayinInfo
	StateSentPayinInfo
	StateWaitVerification
	StateWaitBuyerSign
	StateWaitSellerSeal
	StateWaitSellerSign
	StateBlacklisted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return `idle`
	case StateQuoteSent:
		return `quote-sent`
	case StateQuoteRecv:
		return `quote-received`
	case StateOfferSent:
		return `offer-sent`
	case StateOfferRecv:
		return `offer-received`
	case StateWaitPayinInfo:
		return `wait-payin-info`
	case StateSentPayinInfo:
		return `sent-payin-info`
	case StateWaitVerification:
		return `wait-verification`
	case StateWaitBuyerSign:
		return `wait-buyer-sign`
	case StateWaitSellerSeal:
		return `wait-seller-seal`
	case StateWaitSellerSign:
		return `wait-seller-sign`
	case StateBlacklisted:
		return `blacklisted`
	default:
		return `undefined`
	}
}

// PostAcceptance reports whether a deal record exists for a peer in this
// state. A deal is created by the seller when pay-in details are sent and
// by the buyer when the pay-in is acknowledged.
func (s State) PostAcceptance() bool {
	switch s {
	case StateSentPayinInfo, StateWaitVerification, StateWaitBuyerSign, StateWaitSellerSeal, StateWaitSellerSign:
		return true
	default:
		return false
	}
}

// SignPhase reports whether the peer has handed the trade over to the
// bridge. Peer-to-peer messages are ignored in these states.
func (s State) SignPhase() bool {
	switch s {
	case StateWaitVerification, StateWaitBuyerSign, StateWaitSellerSeal, StateWaitSellerSign:
		return true
	default:
		return false
	}
}

// RangeType is a discretized quantity bucket for anonymous public
// requests. Exact trade size is never revealed before a counterparty
// is selected.
type RangeType int

const (
	RangeUnknown RangeType = iota
	Range0_1
	Range1_5
	Range5_10
	Range10_50
	Range50_100
	Range100_250
)

func (r RangeType) String() string {
	bounds := RangeOf(r)
	if bounds.Lower == 0 && bounds.Upper == 0 {
		return `undefined`
	}
	return fmt.Sprintf(`%d-%d`, bounds.Lower, bounds.Upper)
}

type Range struct {
	Lower int64
	Upper int64
}

// RangeOf returns the XBT bounds of a quantity bucket.
func RangeOf(r RangeType) Range {
	switch r {
	case Range0_1:
		return Range{Lower: 0, Upper: 1}
	case Range1_5:
		return Range{Lower: 1, Upper: 5}
	case Range5_10:
		return Range{Lower: 5, Upper: 10}
	case Range10_50:
		return Range{Lower: 10, Upper: 50}
	case Range50_100:
		return Range{Lower: 50, Upper: 100}
	case Range100_250:
		return Range{Lower: 100, Upper: 250}
	default:
		return Range{}
	}
}

func ValidRangeType(r RangeType) bool {
	return r >= Range0_1 && r <= Range100_250
}

// IsSubRange reports whether sub lies within the outer range.
func IsSubRange(outer, sub Range) bool {
	return sub.Lower >= outer.Lower && sub.Upper <= outer.Upper && sub.Lower <= sub.Upper
}

// Offer carries the bilateral terms of a proposed trade. Amount is in
// minor asset units (satoshi), price in minor currency units (cents).
type Offer struct {
	OurSide     Side
	Amount      int64
	Price       int64
	WalletID    string
	AuthAddress string
	RecvAddress string
	Inputs      []string
}

func (o Offer) TermsEqual(other Offer) bool {
	return o.OurSide == other.OurSide && o.Amount == other.Amount && o.Price == other.Price
}

type QuoteRequest struct {
	OurSide   Side
	RangeType RangeType
	Timestamp time.Time
}

type QuoteResponse struct {
	OurSide Side
	Price   Range
	Amount  Range
}

// Validity is the liveness token of a Peer. It is owned by the registry
// and revoked when the peer record is destroyed, so that callbacks
// scheduled before destruction can detect it and no-op. Accessed only
// from the engine's run loop.
type Validity struct {
	alive bool
}

func NewValidity() *Validity {
	return &Validity{alive: true}
}

func (v *Validity) Revoke() {
	v.alive = false
}

func (v *Validity) Handle() Handle {
	return Handle{v: v}
}

// Handle is a non-owning liveness check captured by async closures.
type Handle struct {
	v *Validity
}

func (h Handle) Valid() bool {
	return h.v != nil && h.v.alive
}

// Peer is the negotiation-state record for one counterparty, or one
// slot in the public broadcast flow.
type Peer struct {
	ContactID string
	Type      PeerType
	State     State

	Offer    Offer
	Request  QuoteRequest
	Response QuoteResponse

	// Populated once exchanged. 33-byte compressed public keys.
	AuthPubKey    []byte
	OurAuthPubKey []byte

	// Pay-in transaction id announced by the seller; buyers need it to
	// build the pay-out.
	PayinTxIDFromSeller []byte

	// Non-empty exactly while a deal is active.
	SettlementID string

	// Correlates an in-flight signing operation to this peer so it can
	// be cancelled on reject.
	ActiveSignSettlementID string

	IsOwnRequest       bool
	IsOurSideSentOffer bool

	StateTimestamp time.Time

	Validity *Validity
}

func NewPeer(contactID string, typ PeerType) *Peer {
	return &Peer{
		ContactID:      contactID,
		Type:           typ,
		State:          StateIdle,
		StateTimestamp: time.Now(),
		Validity:       NewValidity(),
	}
}

func (p *Peer) String() string {
	return fmt.Sprintf(`%s/%s/%s`, p.ContactID, p.Type, p.State)
}
