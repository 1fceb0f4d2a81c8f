package engine

import (
	"testing"

	"github.com/otcdesk/otcdesk/domain"
	"github.com/otcdesk/otcdesk/domain/messages"
	"github.com/stretchr/testify/require"
)

func pushState(t *testing.T, h *harness, settlementID, state string) {
	t.Helper()
	h.e.processBridgeMessage(bridgeFrame(t, &messages.BridgeResponse{
		UpdateOtcState: &messages.UpdateOtcState{SettlementID: settlementID, State: state},
	}))
	h.e.drainPending()
}

// sellerToWaitVerification continues the seller flow until the bridge
// takes over.
func sellerToWaitVerification(t *testing.T, h *harness, contactID string) (*domain.Peer, string) {
	t.Helper()
	peer, settlementID := sellerToSentPayinInfo(t, h, contactID)
	h.e.processContactMessage(contactID, contactFrame(t, &messages.ContactMessage{
		BuyerAcks: &messages.BuyerAcks{SettlementID: settlementID},
	}))
	h.e.drainPending()
	require.Equal(t, domain.StateWaitVerification, peer.State)
	return peer, settlementID
}

func TestSellerSigningSequence(t *testing.T) {
	h := newHarness(`alice`)
	peer, settlementID := sellerToWaitVerification(t, h, `bob`)
	deal := h.e.deals[settlementID]

	// buyer signs first; the seller only tracks the transition
	pushState(t, h, settlementID, messages.OtcStateWaitBuyerSign)
	require.Equal(t, domain.StateWaitBuyerSign, peer.State)
	require.Empty(t, h.signer.calls)

	// now it is the seller's turn to seal the pay-in
	pushState(t, h, settlementID, messages.OtcStateWaitSellerSeal)
	require.Equal(t, domain.StateWaitSellerSeal, peer.State)
	require.Len(t, h.signer.calls, 1)
	require.True(t, h.signer.calls[0].payin)
	require.Equal(t, settlementID, peer.ActiveSignSettlementID)
	require.True(t, deal.CpVerified) // below the gate, pre-verified

	h.signer.complete(deal.PayinReqID, []byte(`signed-payin`), domain.SignOK, ``)
	h.e.drainPending()

	require.True(t, deal.PayinSigned)
	require.Empty(t, peer.ActiveSignSettlementID)
	seal := h.bridge.last().SealPayinValidity
	require.NotNil(t, seal)
	require.Equal(t, settlementID, seal.SettlementID)

	pushState(t, h, settlementID, messages.OtcStateWaitSellerSign)
	require.Equal(t, domain.StateWaitSellerSign, peer.State)

	process := h.bridge.last().ProcessTx
	require.NotNil(t, process)
	require.Equal(t, []byte(`signed-payin`), process.SignedTx)
	require.NotEmpty(t, h.wallets.comments)

	pushState(t, h, settlementID, messages.OtcStateSucceeded)
	require.Equal(t, domain.StateIdle, peer.State)
	require.NotContains(t, h.e.deals, settlementID)
	require.Len(t, h.jrn.outcomes, 1)
	require.Equal(t, domain.OutcomeSucceeded, h.jrn.outcomes[0].Result)
}

func TestBuyerSignsPayoutOnBuyerSignState(t *testing.T) {
	h := newHarness(`alice`)
	peer, settlementID := buyerToWaitVerification(t, h, `bob`)
	deal := h.e.deals[settlementID]

	pushState(t, h, settlementID, messages.OtcStateWaitBuyerSign)

	require.Equal(t, domain.StateWaitBuyerSign, peer.State)
	require.Len(t, h.signer.calls, 1)
	require.False(t, h.signer.calls[0].payin)

	h.signer.complete(deal.PayoutReqID, []byte(`signed-payout`), domain.SignOK, ``)
	h.e.drainPending()

	require.True(t, deal.PayoutSigned)
	process := h.bridge.last().ProcessTx
	require.NotNil(t, process)
	require.Equal(t, []byte(`signed-payout`), process.SignedTx)
}

func TestUnknownSignRequestIgnored(t *testing.T) {
	h := newHarness(`alice`)
	_, settlementID := sellerToWaitVerification(t, h, `bob`)
	pushState(t, h, settlementID, messages.OtcStateWaitBuyerSign)
	pushState(t, h, settlementID, messages.OtcStateWaitSellerSeal)

	before := len(h.bridge.sent)
	h.signer.complete(`stale-request`, []byte(`tx`), domain.SignOK, ``)
	h.e.drainPending()

	require.Len(t, h.bridge.sent, before)
	require.Empty(t, h.sink.failures)
}

func TestSignCancelledByUserPullsDeal(t *testing.T) {
	h := newHarness(`alice`)
	peer, settlementID := sellerToWaitVerification(t, h, `bob`)
	pushState(t, h, settlementID, messages.OtcStateWaitBuyerSign)
	pushState(t, h, settlementID, messages.OtcStateWaitSellerSeal)
	deal := h.e.deals[settlementID]

	h.signer.complete(deal.PayinReqID, nil, domain.SignCancelledByUser, `cancelled`)
	h.e.drainPending()

	require.Equal(t, domain.FailureCancelled, h.sink.lastFailure().kind)
	require.Equal(t, domain.StateIdle, peer.State)
	require.NotContains(t, h.e.deals, settlementID)
	require.NotNil(t, h.bridge.last().Cancel)
}

func TestSignFailurePullsDeal(t *testing.T) {
	h := newHarness(`alice`)
	peer, settlementID := sellerToWaitVerification(t, h, `bob`)
	pushState(t, h, settlementID, messages.OtcStateWaitBuyerSign)
	pushState(t, h, settlementID, messages.OtcStateWaitSellerSeal)
	deal := h.e.deals[settlementID]

	h.signer.complete(deal.PayinReqID, nil, domain.SignFailed, `device error`)
	h.e.drainPending()

	failure := h.sink.lastFailure()
	require.Equal(t, domain.FailureSigning, failure.kind)
	require.Equal(t, `device error`, failure.msg)
	require.Equal(t, domain.StateIdle, peer.State)
}

func TestBridgeFailureJournalsAndResets(t *testing.T) {
	h := newHarness(`alice`)
	peer, settlementID := sellerToWaitVerification(t, h, `bob`)

	h.e.processBridgeMessage(bridgeFrame(t, &messages.BridgeResponse{
		UpdateOtcState: &messages.UpdateOtcState{
			SettlementID: settlementID,
			State:        messages.OtcStateFailed,
			ErrorMsg:     `counterparty mismatch`,
		},
	}))
	h.e.drainPending()

	require.Equal(t, domain.FailureRejected, h.sink.lastFailure().kind)
	require.Equal(t, domain.StateIdle, peer.State)
	require.Len(t, h.jrn.outcomes, 1)
	require.Equal(t, domain.OutcomeFailed, h.jrn.outcomes[0].Result)
	require.Equal(t, `counterparty mismatch`, h.jrn.outcomes[0].ErrorMsg)
}

func TestBridgeCancellationResetsContact(t *testing.T) {
	h := newHarness(`alice`)
	peer, settlementID := sellerToWaitVerification(t, h, `bob`)
	pushState(t, h, settlementID, messages.OtcStateWaitBuyerSign)

	pushState(t, h, settlementID, messages.OtcStateCancelled)

	require.Equal(t, domain.FailureCancelled, h.sink.lastFailure().kind)
	require.Equal(t, domain.StateIdle, peer.State)
	require.NotContains(t, h.e.deals, settlementID)
	require.Len(t, h.jrn.outcomes, 1)
	require.Equal(t, domain.OutcomeCancelled, h.jrn.outcomes[0].Result)
}

func TestOutOfOrderBridgeStatesIgnored(t *testing.T) {
	h := newHarness(`alice`)
	peer, settlementID := sellerToWaitVerification(t, h, `bob`)

	// seal before the buyer signed is out of order
	pushState(t, h, settlementID, messages.OtcStateWaitSellerSeal)
	require.Equal(t, domain.StateWaitVerification, peer.State)
	require.Empty(t, h.signer.calls)

	pushState(t, h, settlementID, messages.OtcStateSucceeded)
	require.Equal(t, domain.StateWaitVerification, peer.State)
	require.Contains(t, h.e.deals, settlementID)
}

func TestUnknownSettlementIDFromBridgeIgnored(t *testing.T) {
	h := newHarness(`alice`)
	pushState(t, h, testSettlementID(`nobody`), messages.OtcStateWaitBuyerSign)
	require.Empty(t, h.sink.failures)
}

func TestInvalidSettlementIDAllocationAborts(t *testing.T) {
	h := newHarness(`alice`)
	peer := h.addContact(`bob`)
	require.NoError(t, h.e.sendOffer(peer, h.offer(domain.SideSell, 20_000_000, 4_500_000)))
	h.e.drainPending()

	h.e.processContactMessage(`bob`, contactFrame(t, &messages.ContactMessage{
		BuyerAccepts: &messages.BuyerAccepts{
			Offer:            messages.Offer{Price: 4_500_000, Amount: 20_000_000},
			AuthAddressBuyer: messages.EncodePubKey(buyerPubKey()),
		},
	}))
	h.e.drainPending()
	startOtc := h.bridge.last().StartOtc
	require.NotNil(t, startOtc)

	h.e.processBridgeMessage(bridgeFrame(t, &messages.BridgeResponse{
		StartOtc: &messages.StartOtcResponse{RequestID: startOtc.RequestID, SettlementID: `bogus`},
	}))
	h.e.drainPending()

	require.Equal(t, domain.FailureVerification, h.sink.lastFailure().kind)
	require.Equal(t, domain.StateIdle, peer.State)
	require.Empty(t, h.e.deals)
}

func TestStartOtcResponseAfterPeerReset(t *testing.T) {
	h := newHarness(`alice`)
	peer := h.addContact(`bob`)
	require.NoError(t, h.e.sendOffer(peer, h.offer(domain.SideSell, 20_000_000, 4_500_000)))
	h.e.drainPending()

	h.e.processContactMessage(`bob`, contactFrame(t, &messages.ContactMessage{
		BuyerAccepts: &messages.BuyerAccepts{
			Offer:            messages.Offer{Price: 4_500_000, Amount: 20_000_000},
			AuthAddressBuyer: messages.EncodePubKey(buyerPubKey()),
		},
	}))
	h.e.drainPending()
	startOtc := h.bridge.last().StartOtc

	// negotiation was pulled before the allocation arrived
	require.NoError(t, h.e.pullOrReject(peer))

	h.e.processBridgeMessage(bridgeFrame(t, &messages.BridgeResponse{
		StartOtc: &messages.StartOtcResponse{RequestID: startOtc.RequestID, SettlementID: testSettlementID(`late`)},
	}))
	h.e.drainPending()

	require.Equal(t, domain.StateIdle, peer.State)
	require.Empty(t, h.e.deals)
	for _, sent := range h.ctc.sent {
		require.Nil(t, sent.msg.SellerAccepts)
	}
}

func TestLocalSignTimeoutFallback(t *testing.T) {
	h := newHarness(`alice`)
	peer, settlementID := sellerToWaitVerification(t, h, `bob`)
	h.timers.pending = nil
	pushState(t, h, settlementID, messages.OtcStateWaitBuyerSign)

	// the bridge's own timeout notification never arrives
	h.timers.fireAll(h.e)

	require.Equal(t, domain.FailureTimeout, h.sink.lastFailure().kind)
	require.Equal(t, domain.StateIdle, peer.State)
	require.NotContains(t, h.e.deals, settlementID)
	require.Len(t, h.jrn.outcomes, 1)
	require.Equal(t, domain.OutcomeTimedOut, h.jrn.outcomes[0].Result)
}

func TestDealExistsOnlyPostAcceptance(t *testing.T) {
	h := newHarness(`alice`)
	peer := h.addContact(`bob`)
	require.NoError(t, h.e.sendOffer(peer, h.offer(domain.SideSell, 20_000_000, 4_500_000)))
	h.e.drainPending()
	require.Empty(t, h.e.deals)

	h.e.processContactMessage(`bob`, contactFrame(t, &messages.ContactMessage{
		BuyerAccepts: &messages.BuyerAccepts{
			Offer:            messages.Offer{Price: 4_500_000, Amount: 20_000_000},
			AuthAddressBuyer: messages.EncodePubKey(buyerPubKey()),
		},
	}))
	h.e.drainPending()
	require.Empty(t, h.e.deals) // allocation still in flight

	startOtc := h.bridge.last().StartOtc
	h.e.processBridgeMessage(bridgeFrame(t, &messages.BridgeResponse{
		StartOtc: &messages.StartOtcResponse{RequestID: startOtc.RequestID, SettlementID: testSettlementID(`inv`)},
	}))
	h.e.drainPending()

	require.True(t, peer.State.PostAcceptance())
	require.Len(t, h.e.deals, 1)
}
