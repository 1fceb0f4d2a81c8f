package services

import (
	"github.com/otcdesk/otcdesk/domain"
)

/* wallet and signing collaborators; implementations live outside this
   core, which only drives them through these boundaries */

// SettlementLeaf is a signing-capable wallet leaf bound to one
// authentication address.
type SettlementLeaf interface {
	// RootPubKey resolves the leaf's root public key asynchronously.
	RootPubKey(cb func(pubKey []byte, err error))
	// SetSettlementID binds an allocated settlement id to the leaf
	// before any leg is assembled.
	SetSettlementID(settlementID string, cb func(err error))
}

type WalletManager interface {
	// SettlementLeaf resolves the leaf owning the given auth address.
	SettlementLeaf(authAddress string) (SettlementLeaf, error)
	// WalletIDByAddress resolves the wallet owning a receive address.
	WalletIDByAddress(address string) (walletID string, err error)
	HasWallet(walletID string) bool
	// EstimateFeePerByte resolves the current fee estimate asynchronously.
	EstimateFeePerByte(cb func(feePerByte float64))
	// ReserveInputs pins spendable inputs for the duration of one
	// negotiation attempt; ReleaseInputs must be called on every exit
	// path.
	ReserveInputs(walletID string, inputs []string) error
	ReleaseInputs(walletID string)
	// SetTxComment labels a broadcast transaction in the owning wallet.
	SetTxComment(walletID string, signedTx []byte, comment string)
}

// Signer submits unsigned settlement legs for signing. Completion is
// delivered asynchronously to the handler registered at startup.
type Signer interface {
	SignPayin(deal *domain.Deal) (reqID string)
	SignPayout(deal *domain.Deal) (reqID string)
	// CancelSign aborts an in-flight request keyed by settlement id.
	CancelSign(settlementID string)
	// AllowSigning raises the signing-allowed flag once the
	// counterparty's auth address is verified.
	AllowSigning(settlementID string)
	OnSigned(cb func(reqID string, signedTx []byte, result domain.SignResult, reason string))
}

// BuildRequest carries everything the transaction builder needs to
// assemble one settlement leg.
type BuildRequest struct {
	Side         domain.Side
	SettlementID string
	Amount       int64
	Price        int64
	FeePerByte   float64
	WalletID     string
	AuthAddress  string
	RecvAddress  string
	CpPubKey     []byte
	PayinTxID    []byte
	Inputs       []string
}

// TxBuilder produces unsigned pay-in/pay-out legs. The callback
// receives either a populated deal or one carrying a structured
// failure reason.
type TxBuilder interface {
	BuildPayin(req BuildRequest, cb func(deal *domain.Deal))
	BuildPayout(req BuildRequest, cb func(deal *domain.Deal))
}

// AddressVerifier streams verification-state updates for submitted
// addresses against the trusted issuer list.
type AddressVerifier interface {
	Verify(address string, cb func(state domain.VerificationState))
	Stop(address string)
}
