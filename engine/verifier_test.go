package engine

import (
	"testing"

	"github.com/otcdesk/otcdesk/domain"
	"github.com/stretchr/testify/require"
)

func TestVerificationSkippedBelowThreshold(t *testing.T) {
	h := newHarness(`alice`)
	h.e.verifier.threshold = 100_000_000

	peer := h.addContact(`bob`)
	deal := &domain.Deal{
		Side:         domain.SideSell,
		SettlementID: testSettlementID(`small`),
		Amount:       50_000_000,
		Peer:         peer,
		PeerHandle:   peer.Validity.Handle(),
	}
	h.e.deals[deal.SettlementID] = deal

	h.e.verifier.watch(deal)

	require.True(t, deal.CpVerified)
	require.Contains(t, h.signer.allowed, deal.SettlementID)
	require.Empty(t, h.verif.watching)
}

func TestVerificationUnlocksSigning(t *testing.T) {
	h := newHarness(`alice`)
	h.e.verifier.threshold = 10_000_000

	peer := h.addContact(`bob`)
	peer.State = domain.StateWaitBuyerSign
	deal := &domain.Deal{
		Side:           domain.SideBuy,
		SettlementID:   testSettlementID(`large`),
		Amount:         20_000_000,
		OurAuthAddress: `our-auth`,
		CpPubKey:       buyerPubKey(),
		Peer:           peer,
		PeerHandle:     peer.Validity.Handle(),
	}
	h.e.deals[deal.SettlementID] = deal

	h.e.verifier.watch(deal)
	require.False(t, deal.CpVerified)
	require.Len(t, h.verif.watching, 1)

	for _, cb := range h.verif.watching {
		cb(domain.VerificationInProgress)
		cb(domain.Verified)
	}
	h.e.drainPending()

	require.True(t, deal.CpVerified)
	require.Contains(t, h.signer.allowed, deal.SettlementID)
}

func TestVerificationFailureAbortsDeal(t *testing.T) {
	h := newHarness(`alice`)
	h.e.verifier.threshold = 10_000_000

	peer := h.addContact(`bob`)
	peer.State = domain.StateWaitBuyerSign
	peer.SettlementID = testSettlementID(`bad`)
	deal := &domain.Deal{
		Side:           domain.SideSell,
		SettlementID:   peer.SettlementID,
		Amount:         20_000_000,
		OurAuthAddress: `our-auth`,
		CpPubKey:       buyerPubKey(),
		Peer:           peer,
		PeerHandle:     peer.Validity.Handle(),
	}
	h.e.deals[deal.SettlementID] = deal

	h.e.verifier.watch(deal)
	for _, cb := range h.verif.watching {
		cb(domain.VerificationFailed)
	}
	h.e.drainPending()

	require.Equal(t, domain.FailureVerification, h.sink.lastFailure().kind)
	require.Equal(t, domain.StateIdle, peer.State)
	require.NotContains(t, h.e.deals, deal.SettlementID)
}

func TestVerifierStopOnDealRemoval(t *testing.T) {
	h := newHarness(`alice`)
	h.e.verifier.threshold = 10_000_000

	peer := h.addContact(`bob`)
	deal := &domain.Deal{
		Side:           domain.SideSell,
		SettlementID:   testSettlementID(`stopped`),
		Amount:         20_000_000,
		OurAuthAddress: `our-auth`,
		CpPubKey:       buyerPubKey(),
		Peer:           peer,
		PeerHandle:     peer.Validity.Handle(),
	}
	h.e.deals[deal.SettlementID] = deal

	h.e.verifier.watch(deal)
	h.e.removeDeal(deal.SettlementID)

	require.Len(t, h.verif.stopped, 1)
	require.Empty(t, h.e.verifyAddrs)
}
