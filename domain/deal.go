package domain

import (
	"encoding/hex"
	"time"

	"github.com/btcsuite/btcutil"
	"github.com/btcsuite/btcutil/base58"
)

// UnsignedTx is an opaque transaction descriptor produced by the
// transaction-builder collaborator. The engine never inspects its
// payload beyond the id and the fee.
type UnsignedTx struct {
	Payload []byte
	TxID    []byte
	Fee     int64
}

func (t UnsignedTx) Valid() bool {
	return len(t.Payload) > 0
}

// Deal tracks an agreed trade through the two-phase signing sequence.
// Created only once a settlement id is allocated, destroyed when the
// bridge reports a terminal state or the owning peer resets to idle.
type Deal struct {
	Side Side

	WalletID       string
	SettlementID   string
	SettlementAddr string

	Payin  UnsignedTx
	Payout UnsignedTx

	PayinReqID  string
	PayoutReqID string

	PayinTxID []byte
	SignedTx  []byte

	PayinSigned  bool
	PayoutSigned bool

	OurAuthAddress string
	CpPubKey       []byte

	Amount int64
	Fee    int64
	Price  int64

	// Counterparty auth-address verification result; pre-set for deals
	// below the verification threshold.
	CpVerified bool

	Success  bool
	ErrorMsg string

	Peer       *Peer
	PeerHandle Handle

	CreatedAt time.Time
}

// DealError returns a failed deal carrying a structured reason from the
// transaction builder.
func DealError(msg string) *Deal {
	return &Deal{ErrorMsg: msg}
}

// AuthAddress returns the requested side's authentication address: ours
// when we play that side, otherwise one derived from the counterparty's
// public key.
func (d *Deal) AuthAddress(seller bool) string {
	weSell := d.Side == SideSell
	if seller == weSell {
		return d.OurAuthAddress
	}
	return AddressFromPubKey(d.CpPubKey)
}

// IsRequestor reports whether this node initiated settlement; by
// convention the seller requests the settlement id.
func (d *Deal) IsRequestor() bool {
	return d.Side == SideSell
}

func (d *Deal) RequestorAuthAddress() string {
	return d.AuthAddress(d.IsRequestor())
}

func (d *Deal) ResponderAuthAddress() string {
	return d.AuthAddress(!d.IsRequestor())
}

// AddressFromPubKey derives a display address from a 33-byte compressed
// public key (hash160, base58-check).
func AddressFromPubKey(pubKey []byte) string {
	if len(pubKey) == 0 {
		return ``
	}
	return base58.CheckEncode(btcutil.Hash160(pubKey), 0)
}

// Outcome is the journaled terminal record of a deal.
type Outcome struct {
	SettlementID string
	ContactID    string
	Side         Side
	Amount       int64
	Price        int64
	Fee          int64
	Result       string
	ErrorMsg     string
	ClosedAt     time.Time
}

const (
	OutcomeSucceeded = `succeeded`
	OutcomeFailed    = `failed`
	OutcomeCancelled = `cancelled`
	OutcomeTimedOut  = `timed-out`
)

func ValidSettlementID(id string) bool {
	if len(id) != SettlementIDHexSize {
		return false
	}
	_, err := hex.DecodeString(id)
	return err == nil
}
