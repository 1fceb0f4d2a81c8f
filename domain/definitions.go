package domain

import "time"

const (
	SettlementIDHexSize = 64
	TxHashSize          = 32
	PubKeySize          = 33
)

const (
	// Public requests stay on the board considerably longer than an
	// active negotiation.
	PublicRequestTimeout = 10 * time.Minute
	NegotiationTimeout   = 2 * time.Minute

	// Server-driven signing deadlines.
	PayinTimeout  = 2 * time.Minute
	PayoutTimeout = time.Minute

	// Pay-in/pay-out timeout is normally detected through the bridge's
	// status updates. The local grace delay absorbs network latency
	// before the client declares failure on its own.
	LocalTimeoutDelay = 5 * time.Second

	// Settlement id allocation round-trip deadline, independent of the
	// negotiation timeouts.
	StartOtcTimeout = 10 * time.Second
)

// VerificationState is reported by the address-verification
// collaborator. Only Verified unlocks signing.
type VerificationState int

const (
	VerificationInProgress VerificationState = iota
	VerificationNotSubmitted
	Verified
	VerificationFailed
	VerificationRevoked
	VerificationRevokedByBS
)

func (v VerificationState) String() string {
	switch v {
	case VerificationInProgress:
		return `in-progress`
	case VerificationNotSubmitted:
		return `not-submitted`
	case Verified:
		return `verified`
	case VerificationFailed:
		return `failed`
	case VerificationRevoked:
		return `revoked`
	case VerificationRevokedByBS:
		return `revoked-by-bs`
	default:
		return `undefined`
	}
}

// SignResult is the terminal status of a signing request.
type SignResult int

const (
	SignOK SignResult = iota
	SignCancelledByUser
	SignFailed
)

// FailureKind classifies failures surfaced through the peer error
// event so the presentation layer can distinguish them.
type FailureKind int

const (
	FailureProtocol FailureKind = iota
	FailureOffer
	FailureSigning
	FailureTimeout
	FailureVerification
	FailureCancelled
	FailureRejected
)

func (k FailureKind) String() string {
	switch k {
	case FailureProtocol:
		return `protocol-violation`
	case FailureOffer:
		return `offer-invalid`
	case FailureSigning:
		return `signing-failure`
	case FailureTimeout:
		return `network-timeout`
	case FailureVerification:
		return `verification-failure`
	case FailureCancelled:
		return `cancelled`
	case FailureRejected:
		return `rejected`
	default:
		return `undefined`
	}
}

// BalanceDivider converts minor asset units to XBT.
const BalanceDivider = 100_000_000

// FromCents converts a price in minor currency units to a display value.
func FromCents(price int64) float64 {
	return float64(price) / 100
}

func XBTAmount(minor int64) float64 {
	return float64(minor) / BalanceDivider
}
