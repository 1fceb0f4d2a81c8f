package engine

import (
	"fmt"

	"github.com/otcdesk/otcdesk/domain"
	"github.com/otcdesk/otcdesk/domain/services"
)

// verifier wraps the address-verification collaborator and applies the
// size gate: deals below the threshold are treated as pre-verified.
type verifier struct {
	e         *Engine
	impl      services.AddressVerifier
	threshold int64
}

func newVerifier(e *Engine, impl services.AddressVerifier, threshold int64) *verifier {
	return &verifier{e: e, impl: impl, threshold: threshold}
}

func (v *verifier) gated(amount int64) bool {
	return v.impl != nil && v.threshold > 0 && amount >= v.threshold
}

// watch starts counterparty auth-address verification for a deal, or
// unlocks signing immediately for deals below the threshold.
func (v *verifier) watch(deal *domain.Deal) {
	if !v.gated(deal.Amount) {
		deal.CpVerified = true
		v.e.signer.AllowSigning(deal.SettlementID)
		v.e.log.Debug(fmt.Sprintf(`auth address verification skipped for %s`, deal.SettlementID))
		return
	}

	var addr string
	if deal.IsRequestor() {
		addr = deal.ResponderAuthAddress()
	} else {
		addr = deal.RequestorAuthAddress()
	}
	v.e.verifyAddrs[deal.SettlementID] = addr

	handle := deal.PeerHandle
	settlementID := deal.SettlementID
	v.impl.Verify(addr, func(state domain.VerificationState) {
		v.e.post(func() {
			v.onState(settlementID, addr, handle, state)
		})
	})
}

func (v *verifier) onState(settlementID, addr string, handle domain.Handle, state domain.VerificationState) {
	deal, ok := v.e.deals[settlementID]
	if !ok || !handle.Valid() {
		return
	}

	v.e.log.Debug(fmt.Sprintf(`counterparty address verification %s for %s`, state, addr))

	switch state {
	case domain.Verified:
		deal.CpVerified = true
		v.e.signer.AllowSigning(settlementID)
	case domain.VerificationFailed, domain.VerificationRevoked, domain.VerificationRevokedByBS:
		v.e.events.PeerError(deal.Peer, domain.FailureVerification,
			fmt.Sprintf(`counterparty auth address %s: %s`, addr, state))
		v.e.pullOrReject(deal.Peer)
	default:
		// in-progress and not-submitted are transient
	}
}

// stop tears down verification when its deal is destroyed.
func (v *verifier) stop(settlementID string) {
	addr, ok := v.e.verifyAddrs[settlementID]
	if !ok {
		return
	}
	delete(v.e.verifyAddrs, settlementID)
	if v.impl != nil {
		v.impl.Stop(addr)
	}
}
