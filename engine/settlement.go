package engine

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/otcdesk/otcdesk/domain"
	"github.com/otcdesk/otcdesk/domain/messages"
	"github.com/otcdesk/otcdesk/domain/services"
)

/* settlement coordination: request-settlement-id → build unsigned
   legs → sign → verify → broadcast */

// sendSellerAccepts asks the bridge for a settlement id. The request
// carries a locally generated correlation id and fails independently
// of the negotiation timeouts.
func (e *Engine) sendSellerAccepts(peer *domain.Peer) {
	requestID := uuid.NewString()
	e.waitSettlementIDs[requestID] = settlementIDRequest{peer: peer, handle: peer.Validity.Handle()}

	data, err := (&messages.BridgeRequest{StartOtc: &messages.StartOtc{RequestID: requestID}}).Marshal()
	if err != nil {
		e.log.Error(err)
		return
	}
	if err = e.bridge.Send(data); err != nil {
		e.log.Error(fmt.Sprintf(`sending start request to bridge failed - %v`, err))
	}

	handle := peer.Validity.Handle()
	e.sched.fireAfter(e.cfg.Timeouts.StartOtc, func() {
		if !handle.Valid() {
			return
		}
		if _, ok := e.waitSettlementIDs[requestID]; !ok {
			return
		}
		delete(e.waitSettlementIDs, requestID)
		e.log.Error(`can't get settlement id from bridge: timeout`)
		e.events.PeerError(peer, domain.FailureTimeout, ``)
		_ = e.pullOrReject(peer)
	})
}

// ProcessBridgeMessage dispatches a frame pushed by the bridge. Safe to
// call from the gateway goroutine.
func (e *Engine) ProcessBridgeMessage(data []byte) {
	e.post(func() { e.processBridgeMessage(data) })
}

func (e *Engine) processBridgeMessage(data []byte) {
	resp, err := messages.ParseBridgeResponse(data)
	if err != nil {
		e.log.Error(err)
		return
	}

	switch {
	case resp.StartOtc != nil:
		e.handleStartOtc(resp.StartOtc)
	case resp.UpdateOtcState != nil:
		e.handleUpdateOtcState(resp.UpdateOtcState)
	default:
		e.log.Error(`response from bridge is invalid`)
	}
}

func (e *Engine) handleStartOtc(resp *messages.StartOtcResponse) {
	req, ok := e.waitSettlementIDs[resp.RequestID]
	if !ok {
		e.log.Error(`unexpected start response: can't find request`)
		return
	}
	delete(e.waitSettlementIDs, resp.RequestID)

	if !req.handle.Valid() {
		e.log.Error(`peer was destroyed`)
		return
	}
	peer := req.peer

	settlementID := resp.SettlementID
	if !domain.ValidSettlementID(settlementID) {
		e.log.Error(fmt.Sprintf(`invalid settlement id from bridge: %s`, settlementID))
		e.events.PeerError(peer, domain.FailureVerification, `invalid settlement id from bridge`)
		_ = e.pullOrReject(peer)
		return
	}

	offer := peer.Offer
	handle := peer.Validity.Handle()

	e.buildPayin(peer, settlementID, func(deal *domain.Deal) {
		if !handle.Valid() {
			e.log.Error(`peer was destroyed`)
			return
		}
		if deal.ErrorMsg != `` {
			e.log.Error(fmt.Sprintf(`creating pay-in sign request failed: %s`, deal.ErrorMsg))
			e.events.PeerError(peer, domain.FailureOffer, deal.ErrorMsg)
			_ = e.pullOrReject(peer)
			return
		}
		if offer.OurSide != domain.SideSell {
			e.log.Error(`can't send pay-in info, wrong side`)
			return
		}
		if !offer.TermsEqual(peer.Offer) {
			e.log.Error(`offer details have changed unexpectedly`)
			return
		}

		msg := &messages.ContactMessage{SellerAccepts: &messages.SellerAccepts{
			Offer:             messages.CopyOffer(peer.Offer),
			SettlementID:      settlementID,
			AuthAddressSeller: messages.EncodePubKey(peer.OurAuthPubKey),
			PayinTxID:         messages.EncodeTxID(deal.PayinTxID),
		}}
		e.send(peer, msg)

		peer.SettlementID = settlementID
		deal.Peer = peer
		deal.PeerHandle = handle
		e.deals[settlementID] = deal

		e.changePeerState(peer, domain.StateSentPayinInfo)
	})
}

// buildPayin binds the settlement id to our leaf, obtains a fee
// estimate and delegates pay-in assembly to the transaction builder.
// The callback runs on the loop with either a populated deal or a
// structured failure.
func (e *Engine) buildPayin(peer *domain.Peer, settlementID string, cb func(deal *domain.Deal)) {
	e.createLeg(peer, settlementID, cb, func(req services.BuildRequest, done func(*domain.Deal)) {
		e.builder.BuildPayin(req, done)
	})
}

// buildPayout is the buyer-side counterpart; it consumes the seller's
// announced pay-in hash.
func (e *Engine) buildPayout(peer *domain.Peer, settlementID string, cb func(deal *domain.Deal)) {
	e.createLeg(peer, settlementID, cb, func(req services.BuildRequest, done func(*domain.Deal)) {
		e.builder.BuildPayout(req, done)
	})
}

func (e *Engine) createLeg(peer *domain.Peer, settlementID string, cb func(deal *domain.Deal),
	build func(req services.BuildRequest, done func(*domain.Deal))) {

	leaf, err := e.wallets.SettlementLeaf(peer.Offer.AuthAddress)
	if err != nil {
		cb(domain.DealError(`can't find settlement leaf`))
		return
	}

	handle := peer.Validity.Handle()

	leaf.SetSettlementID(settlementID, func(err error) {
		e.post(func() {
			if !handle.Valid() {
				e.log.Error(`peer was destroyed`)
				return
			}
			if err != nil {
				cb(domain.DealError(fmt.Sprintf(`binding settlement id failed - %v`, err)))
				return
			}

			e.wallets.EstimateFeePerByte(func(feePerByte float64) {
				e.post(func() {
					if !handle.Valid() {
						e.log.Error(`peer was destroyed`)
						return
					}
					if feePerByte < 1 {
						cb(domain.DealError(`invalid fees`))
						return
					}
					if !e.wallets.HasWallet(peer.Offer.WalletID) {
						cb(domain.DealError(fmt.Sprintf(`can't find wallet: %s`, peer.Offer.WalletID)))
						return
					}

					req := services.BuildRequest{
						Side:         peer.Offer.OurSide,
						SettlementID: settlementID,
						Amount:       peer.Offer.Amount,
						Price:        peer.Offer.Price,
						FeePerByte:   feePerByte,
						WalletID:     peer.Offer.WalletID,
						AuthAddress:  peer.Offer.AuthAddress,
						RecvAddress:  peer.Offer.RecvAddress,
						CpPubKey:     peer.AuthPubKey,
						PayinTxID:    peer.PayinTxIDFromSeller,
						Inputs:       peer.Offer.Inputs,
					}

					build(req, func(deal *domain.Deal) {
						e.post(func() {
							if !handle.Valid() {
								e.log.Error(`peer was destroyed`)
								return
							}
							if deal.ErrorMsg == `` {
								deal.CreatedAt = time.Now()
							}
							cb(deal)
						})
					})
				})
			})
		})
	})
}

func (e *Engine) handleUpdateOtcState(upd *messages.UpdateOtcState) {
	deal, ok := e.deals[upd.SettlementID]
	if !ok {
		e.log.Error(fmt.Sprintf(`unknown settlement id in state update: %s`, upd.SettlementID))
		return
	}
	if !deal.PeerHandle.Valid() {
		e.log.Error(`peer was destroyed`)
		return
	}
	peer := deal.Peer

	e.log.Debug(fmt.Sprintf(`otc trade %s state update: %s`, upd.SettlementID, upd.State))

	switch upd.State {
	case messages.OtcStateFailed:
		if !peer.State.SignPhase() {
			e.log.Error(`unexpected state update request`)
			return
		}

		e.log.Error(fmt.Sprintf(`otc trade failed: %s`, upd.ErrorMsg))
		e.events.PeerError(peer, domain.FailureRejected, upd.ErrorMsg)
		e.journalOutcome(deal, domain.OutcomeFailed, upd.ErrorMsg)
		e.resetPeerStateToIdle(peer)

	case messages.OtcStateWaitBuyerSign:
		if peer.State != domain.StateWaitVerification {
			e.log.Error(`unexpected state update request`)
			return
		}

		if deal.Side == domain.SideBuy {
			if !deal.Payout.Valid() {
				e.log.Error(`pay-out is not ready`)
				e.events.PeerError(peer, domain.FailureSigning, `pay-out is not ready`)
				_ = e.pullOrReject(peer)
				return
			}

			reqID := e.signer.SignPayout(deal)
			e.signRequestIDs[reqID] = deal.SettlementID
			deal.PayoutReqID = reqID
			e.verifier.watch(deal)
			peer.ActiveSignSettlementID = deal.SettlementID
		}

		e.changePeerState(peer, domain.StateWaitBuyerSign)
		e.scheduleLocalSignTimeout(peer, domain.StateWaitBuyerSign, e.cfg.Timeouts.Payout)

	case messages.OtcStateWaitSellerSeal:
		if peer.State != domain.StateWaitBuyerSign {
			e.log.Error(`unexpected state update request`)
			return
		}

		if deal.Side == domain.SideSell {
			if !deal.Payin.Valid() {
				e.log.Error(`pay-in is not ready`)
				e.events.PeerError(peer, domain.FailureSigning, `pay-in is not ready`)
				_ = e.pullOrReject(peer)
				return
			}

			reqID := e.signer.SignPayin(deal)
			e.signRequestIDs[reqID] = deal.SettlementID
			deal.PayinReqID = reqID
			e.verifier.watch(deal)
			peer.ActiveSignSettlementID = deal.SettlementID
		}

		e.changePeerState(peer, domain.StateWaitSellerSeal)
		e.scheduleLocalSignTimeout(peer, domain.StateWaitSellerSeal, e.cfg.Timeouts.Payin)

	case messages.OtcStateWaitSellerSign:
		if peer.State != domain.StateWaitSellerSeal {
			e.log.Error(`unexpected state update request`)
			return
		}

		e.changePeerState(peer, domain.StateWaitSellerSign)

		if deal.Side == domain.SideSell {
			e.trySendSignedTx(deal)
		}

	case messages.OtcStateCancelled:
		if peer.State != domain.StateWaitBuyerSign && peer.State != domain.StateWaitSellerSeal {
			e.log.Error(`unexpected state update request`)
			return
		}

		e.events.PeerError(peer, domain.FailureCancelled, ``)
		e.journalOutcome(deal, domain.OutcomeCancelled, upd.ErrorMsg)

		switch peer.Type {
		case domain.PeerContact:
			e.resetPeerStateToIdle(peer)
		default:
			e.destroyPeer(peer)
			e.events.PublicUpdated()
		}

	case messages.OtcStateSucceeded:
		if peer.State != domain.StateWaitSellerSign {
			e.log.Error(`unexpected state update request`)
			return
		}

		e.journalOutcome(deal, domain.OutcomeSucceeded, ``)
		e.resetPeerStateToIdle(peer)

	default:
		e.log.Error(fmt.Sprintf(`unexpected new state value: %s`, upd.State))
	}
}

// scheduleLocalSignTimeout arms the local fallback for a server-driven
// signing deadline with a grace delay on top, in case the bridge's own
// timeout notification is lost.
func (e *Engine) scheduleLocalSignTimeout(peer *domain.Peer, state domain.State, timeout time.Duration) {
	handle := peer.Validity.Handle()
	e.sched.fireAfter(timeout+e.cfg.Timeouts.LocalDelay, func() {
		if !handle.Valid() || peer.State != state {
			return
		}
		e.events.PeerError(peer, domain.FailureTimeout, ``)
		if deal, ok := e.deals[peer.SettlementID]; ok {
			e.journalOutcome(deal, domain.OutcomeTimedOut, ``)
		}
		e.resetPeerStateToIdle(peer)
	})
}

// onTxSigned correlates a signing completion back to its deal. Unknown
// request ids are ignored: the deal may have been removed by a prior
// cancellation.
func (e *Engine) onTxSigned(reqID string, signedTx []byte, result domain.SignResult, reason string) {
	settlementID, ok := e.signRequestIDs[reqID]
	if !ok {
		return
	}
	delete(e.signRequestIDs, reqID)

	deal, ok := e.deals[settlementID]
	if !ok {
		e.log.Error(`unknown sign request`)
		return
	}
	if !deal.PeerHandle.Valid() {
		e.log.Error(`peer was destroyed`)
		return
	}
	peer := deal.Peer

	peer.ActiveSignSettlementID = ``

	switch result {
	case domain.SignOK:
	case domain.SignCancelledByUser:
		e.events.PeerError(peer, domain.FailureCancelled, `signing cancelled by user`)
		_ = e.pullOrReject(peer)
		return
	default:
		e.events.PeerError(peer, domain.FailureSigning, reason)
		_ = e.pullOrReject(peer)
		return
	}

	switch reqID {
	case deal.PayinReqID:
		if peer.State != domain.StateWaitSellerSeal {
			e.log.Error(`unexpected pay-in sign`)
			return
		}

		e.log.Debug(fmt.Sprintf(`pay-in was signed, settlement id: %s`, deal.SettlementID))
		deal.SignedTx = signedTx
		deal.PayinSigned = true

		data, err := (&messages.BridgeRequest{SealPayinValidity: &messages.SealPayinValidity{
			SettlementID: deal.SettlementID,
		}}).Marshal()
		if err != nil {
			e.log.Error(err)
			return
		}
		if err = e.bridge.Send(data); err != nil {
			e.log.Error(fmt.Sprintf(`sending seal request to bridge failed - %v`, err))
		}

	case deal.PayoutReqID:
		e.log.Debug(fmt.Sprintf(`pay-out was signed, settlement id: %s`, deal.SettlementID))
		deal.SignedTx = signedTx
		deal.PayoutSigned = true
		e.trySendSignedTx(deal)
	}
}

// trySendSignedTx submits the signed leg for final broadcast and
// labels the transaction in the owning wallet.
func (e *Engine) trySendSignedTx(deal *domain.Deal) {
	data, err := (&messages.BridgeRequest{ProcessTx: &messages.ProcessTx{
		SignedTx:     deal.SignedTx,
		SettlementID: deal.SettlementID,
	}}).Marshal()
	if err != nil {
		e.log.Error(err)
		return
	}
	if err = e.bridge.Send(data); err != nil {
		e.log.Error(fmt.Sprintf(`sending signed tx to bridge failed - %v`, err))
	}

	comment := fmt.Sprintf(`%s XBT/EUR @ %.2f (OTC)`, deal.Side, domain.FromCents(deal.Price))
	e.wallets.SetTxComment(deal.WalletID, deal.SignedTx, comment)
}

func (e *Engine) removeDeal(settlementID string) {
	if _, ok := e.deals[settlementID]; !ok {
		return
	}
	e.verifier.stop(settlementID)
	delete(e.deals, settlementID)
}

func (e *Engine) journalOutcome(deal *domain.Deal, result, errorMsg string) {
	if e.journal == nil {
		return
	}

	contactID := ``
	if deal.PeerHandle.Valid() {
		contactID = deal.Peer.ContactID
	}

	err := e.journal.RecordOutcome(domain.Outcome{
		SettlementID: deal.SettlementID,
		ContactID:    contactID,
		Side:         deal.Side,
		Amount:       deal.Amount,
		Price:        deal.Price,
		Fee:          deal.Fee,
		Result:       result,
		ErrorMsg:     errorMsg,
		ClosedAt:     time.Now(),
	})
	if err != nil {
		e.log.Error(fmt.Sprintf(`journaling deal outcome failed - %v`, err))
	}
}
