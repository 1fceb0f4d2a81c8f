package engine

import (
	"fmt"
	"time"

	"github.com/otcdesk/otcdesk/domain"
	"github.com/otcdesk/otcdesk/domain/messages"
)

/* inbound wire message dispatch and state transitions */

// ProcessContactMessage dispatches a contact-to-contact message to the
// owning peer record. Safe to call from transport goroutines.
func (e *Engine) ProcessContactMessage(contactID string, data []byte) {
	e.post(func() { e.processContactMessage(contactID, data) })
}

func (e *Engine) processContactMessage(contactID string, data []byte) {
	msg, err := messages.ParseContact(data)
	if err != nil {
		e.log.Error(fmt.Sprintf(`can't parse otc message from %s - %v`, contactID, err))
		return
	}

	var peer *domain.Peer
	switch msg.ContactKind {
	case messages.KindPrivate:
		peer = e.contact(contactID)
		if peer == nil {
			e.log.Error(fmt.Sprintf(`can't find peer %s`, contactID))
			return
		}
		if peer.State == domain.StateBlacklisted {
			e.log.Debug(fmt.Sprintf(`ignoring message from blacklisted peer %s`, contactID))
			return
		}

	case messages.KindPublicRequest:
		// A counterparty answering our broadcast request.
		if e.ownRequest == nil {
			e.log.Error(`response is not expected`)
			return
		}
		peer = e.response(contactID)
		if peer == nil {
			peer = domain.NewPeer(contactID, domain.PeerResponse)
			e.responseMap[contactID] = peer
			e.events.PublicUpdated()
		}
		if peer.State == domain.StateBlacklisted {
			e.log.Debug(fmt.Sprintf(`ignoring message from blacklisted peer %s`, contactID))
			return
		}

	case messages.KindPublicResponse:
		peer = e.request(contactID)
		if peer == nil {
			e.log.Error(`request is not expected`)
			return
		}
		if peer.State == domain.StateBlacklisted {
			e.log.Debug(fmt.Sprintf(`ignoring message from blacklisted peer %s`, contactID))
			return
		}

	default:
		e.log.Error(fmt.Sprintf(`unknown contact kind (%d) from %s`, msg.ContactKind, contactID))
		return
	}

	switch {
	case msg.BuyerOffers != nil:
		e.processBuyerOffers(peer, msg.BuyerOffers)
	case msg.SellerOffers != nil:
		e.processSellerOffers(peer, msg.SellerOffers)
	case msg.BuyerAccepts != nil:
		e.processBuyerAccepts(peer, msg.BuyerAccepts)
	case msg.SellerAccepts != nil:
		e.processSellerAccepts(peer, msg.SellerAccepts)
	case msg.BuyerAcks != nil:
		e.processBuyerAcks(peer, msg.BuyerAcks)
	case msg.Close != nil:
		e.processClose(peer)
	case msg.QuoteResponse != nil:
		e.processQuoteResponse(peer, msg.QuoteResponse)
	default:
		e.blockPeer(`unknown or empty otc message`, peer)
	}
}

func (e *Engine) processBuyerOffers(peer *domain.Peer, msg *messages.BuyerOffers) {
	if peer.State.SignPhase() {
		e.log.Debug(fmt.Sprintf(`ignoring offer from %s during signing`, peer))
		return
	}
	if !messages.ValidOffer(msg.Offer) {
		e.blockPeer(`invalid offer`, peer)
		return
	}

	authPubKey, err := messages.DecodePubKey(msg.AuthAddressBuyer)
	if err != nil {
		e.blockPeer(`invalid auth address in buyer offer`, peer)
		return
	}
	peer.AuthPubKey = authPubKey

	e.processIncomingOffer(peer, msg.Offer, domain.SideSell)
}

func (e *Engine) processSellerOffers(peer *domain.Peer, msg *messages.SellerOffers) {
	if peer.State.SignPhase() {
		e.log.Debug(fmt.Sprintf(`ignoring offer from %s during signing`, peer))
		return
	}
	if !messages.ValidOffer(msg.Offer) {
		e.blockPeer(`invalid offer`, peer)
		return
	}

	e.processIncomingOffer(peer, msg.Offer, domain.SideBuy)
}

// processIncomingOffer applies a fresh or counter offer. ourSide is
// the side this node would take if the offer is accepted.
func (e *Engine) processIncomingOffer(peer *domain.Peer, offer messages.Offer, ourSide domain.Side) {
	switch peer.State {
	case domain.StateIdle, domain.StateQuoteSent:
		peer.Offer.OurSide = ourSide
		peer.Offer.Amount = offer.Amount
		peer.Offer.Price = offer.Price
		e.changePeerState(peer, domain.StateOfferRecv)
		e.sched.closeAfter(e.cfg.Timeouts.Negotiation, peer)

	case domain.StateOfferSent:
		// Counter-offer: side and amount are fixed, only price moves.
		if peer.Offer.OurSide != ourSide {
			e.blockPeer(`unexpected side in counter-offer`, peer)
			return
		}
		if peer.Offer.Amount != offer.Amount {
			e.blockPeer(`invalid amount in counter-offer`, peer)
			return
		}

		peer.Offer.Price = offer.Price
		e.changePeerState(peer, domain.StateOfferRecv)
		e.sched.closeAfter(e.cfg.Timeouts.Negotiation, peer)

	default:
		e.blockPeer(`unexpected offer`, peer)
	}
}

func (e *Engine) processBuyerAccepts(peer *domain.Peer, msg *messages.BuyerAccepts) {
	if peer.State.SignPhase() {
		e.log.Debug(fmt.Sprintf(`ignoring accept from %s during signing`, peer))
		return
	}
	if peer.State != domain.StateOfferSent || peer.Offer.OurSide != domain.SideSell {
		e.blockPeer(`unexpected buyer accept, should be in offer-sent state and be seller`, peer)
		return
	}
	if msg.Offer.Price != peer.Offer.Price || msg.Offer.Amount != peer.Offer.Amount {
		e.blockPeer(`wrong accepted price or amount in buyer accept`, peer)
		return
	}

	authPubKey, err := messages.DecodePubKey(msg.AuthAddressBuyer)
	if err != nil {
		e.blockPeer(`invalid auth address in buyer accept`, peer)
		return
	}
	peer.AuthPubKey = authPubKey

	e.sendSellerAccepts(peer)
}

func (e *Engine) processSellerAccepts(peer *domain.Peer, msg *messages.SellerAccepts) {
	if peer.State.SignPhase() {
		e.log.Debug(fmt.Sprintf(`ignoring accept from %s during signing`, peer))
		return
	}
	if (peer.State != domain.StateWaitPayinInfo && peer.State != domain.StateOfferSent) ||
		peer.Offer.OurSide != domain.SideBuy {
		e.blockPeer(`unexpected seller accept, should be in wait-payin-info or offer-sent state and be buyer`, peer)
		return
	}
	if msg.Offer.Price != peer.Offer.Price || msg.Offer.Amount != peer.Offer.Amount {
		e.blockPeer(`wrong accepted price or amount in seller accept`, peer)
		return
	}
	if !domain.ValidSettlementID(msg.SettlementID) {
		e.blockPeer(`invalid settlement id in seller accept`, peer)
		return
	}

	authPubKey, err := messages.DecodePubKey(msg.AuthAddressSeller)
	if err != nil {
		e.blockPeer(`invalid auth address in seller accept`, peer)
		return
	}
	peer.AuthPubKey = authPubKey

	payinTxID, err := messages.DecodeTxID(msg.PayinTxID)
	if err != nil {
		e.blockPeer(`invalid payin tx id in seller accept`, peer)
		return
	}
	peer.PayinTxIDFromSeller = payinTxID

	settlementID := msg.SettlementID
	offer := peer.Offer
	handle := peer.Validity.Handle()

	e.buildPayout(peer, settlementID, func(deal *domain.Deal) {
		if !handle.Valid() {
			e.log.Error(`peer was destroyed`)
			return
		}
		if deal.ErrorMsg != `` {
			e.log.Error(fmt.Sprintf(`creating pay-out sign request failed: %s`, deal.ErrorMsg))
			e.events.PeerError(peer, domain.FailureVerification, deal.ErrorMsg)
			_ = e.pullOrReject(peer)
			return
		}
		if !offer.TermsEqual(peer.Offer) {
			e.log.Error(`offer details have changed unexpectedly`)
			return
		}

		peer.SettlementID = settlementID
		deal.Peer = peer
		deal.PeerHandle = handle
		e.deals[settlementID] = deal

		e.send(peer, &messages.ContactMessage{BuyerAcks: &messages.BuyerAcks{SettlementID: settlementID}})

		e.changePeerState(peer, domain.StateWaitVerification)

		e.sendVerifyOtc(peer, deal, false)
	})
}

func (e *Engine) processBuyerAcks(peer *domain.Peer, msg *messages.BuyerAcks) {
	if peer.State.SignPhase() {
		e.log.Debug(fmt.Sprintf(`ignoring ack from %s during signing`, peer))
		return
	}
	if peer.State != domain.StateSentPayinInfo || peer.Offer.OurSide != domain.SideSell {
		e.blockPeer(`unexpected buyer ack, should be in sent-payin-info state and be seller`, peer)
		return
	}

	deal, ok := e.deals[msg.SettlementID]
	if !ok {
		e.log.Error(fmt.Sprintf(`unknown settlement id in buyer ack: %s`, msg.SettlementID))
		return
	}

	e.changePeerState(peer, domain.StateWaitVerification)

	e.sendVerifyOtc(peer, deal, true)
}

// sendVerifyOtc submits both sides' auth keys plus this side's unsigned
// leg to the bridge for cross-checking.
func (e *Engine) sendVerifyOtc(peer *domain.Peer, deal *domain.Deal, isSeller bool) {
	v := &messages.VerifyOtc{
		IsSeller:     isSeller,
		Price:        peer.Offer.Price,
		Amount:       peer.Offer.Amount,
		SettlementID: deal.SettlementID,
	}

	if isSeller {
		v.AuthAddressBuyer = messages.EncodePubKey(peer.AuthPubKey)
		v.AuthAddressSeller = messages.EncodePubKey(peer.OurAuthPubKey)
		v.UnsignedTx = deal.Payin.Payload
		v.PayinHash = messages.EncodeTxID(deal.PayinTxID)
		v.ChatIDSeller = e.ownContactID
		v.ChatIDBuyer = peer.ContactID
	} else {
		v.AuthAddressBuyer = messages.EncodePubKey(peer.OurAuthPubKey)
		v.AuthAddressSeller = messages.EncodePubKey(peer.AuthPubKey)
		v.UnsignedTx = deal.Payout.Payload
		v.PayinHash = messages.EncodeTxID(peer.PayinTxIDFromSeller)
		v.ChatIDBuyer = e.ownContactID
		v.ChatIDSeller = peer.ContactID
	}

	data, err := (&messages.BridgeRequest{VerifyOtc: v}).Marshal()
	if err != nil {
		e.log.Error(err)
		return
	}
	if err = e.bridge.Send(data); err != nil {
		e.log.Error(fmt.Sprintf(`sending verify request to bridge failed - %v`, err))
	}
}

func (e *Engine) processClose(peer *domain.Peer) {
	switch peer.State {
	case domain.StateQuoteSent, domain.StateQuoteRecv, domain.StateOfferSent,
		domain.StateOfferRecv, domain.StateWaitPayinInfo:
		if peer.Type == domain.PeerResponse {
			e.log.Debug(`removing active response on peer close`)
			e.destroyPeer(peer)
			e.events.PublicUpdated()
			return
		}

		e.resetPeerStateToIdle(peer)
		if peer.Type != domain.PeerContact {
			e.events.PublicUpdated()
		}

	case domain.StateIdle:
		// Both sides cancelled at the same time.

	case domain.StateWaitVerification, domain.StateWaitBuyerSign,
		domain.StateWaitSellerSeal, domain.StateWaitSellerSign:
		// Bridge-mediated from here on; peers can't close directly.
		e.log.Debug(`ignoring unexpected close request`)

	case domain.StateSentPayinInfo:
		e.blockPeer(`unexpected close`, peer)
	}
}

func (e *Engine) processQuoteResponse(peer *domain.Peer, msg *messages.QuoteResponse) {
	if e.ownRequest == nil {
		e.log.Error(`own request is not available`)
		return
	}
	if peer.Type != domain.PeerResponse {
		e.log.Error(`unexpected quote response`)
		return
	}
	if peer.State != domain.StateIdle {
		e.blockPeer(`repeated quote response`, peer)
		return
	}

	e.changePeerState(peer, domain.StateQuoteRecv)
	e.sched.closeAfter(e.cfg.Timeouts.Negotiation, peer)
	peer.Response.OurSide = domain.SwitchSide(domain.Side(msg.SenderSide))
	peer.Response.Price = messages.ToRange(msg.Price)
	peer.Response.Amount = messages.ToRange(msg.Amount)

	e.events.PublicUpdated()
}

// ProcessPublicMessage dispatches an anonymous broadcast frame. Own
// broadcasts loop back and are dropped here.
func (e *Engine) ProcessPublicMessage(contactID string, data []byte) {
	e.post(func() { e.processPublicMessage(contactID, data) })
}

func (e *Engine) processPublicMessage(contactID string, data []byte) {
	if contactID == e.ownContactID {
		return
	}

	msg, err := messages.ParsePublic(data)
	if err != nil {
		e.log.Error(fmt.Sprintf(`parsing public otc message failed - %v`, err))
		return
	}

	switch {
	case msg.Request != nil:
		e.processPublicRequest(contactID, msg.Request)
	case msg.Close != nil:
		e.processPublicClose(contactID)
	default:
		e.log.Error(`invalid public request detected`)
	}
}

func (e *Engine) processPublicRequest(contactID string, msg *messages.PublicRequest) {
	rangeType := domain.RangeType(msg.RangeType)
	if !domain.ValidRangeType(rangeType) {
		e.log.Error(fmt.Sprintf(`invalid range type (%d) in public request`, msg.RangeType))
		return
	}

	// A rebroadcast replaces any previous request from the same sender.
	if old := e.requestMap[contactID]; old != nil {
		old.Validity.Revoke()
	}

	peer := domain.NewPeer(contactID, domain.PeerRequest)
	peer.Request = domain.QuoteRequest{
		OurSide:   domain.SwitchSide(domain.Side(msg.SenderSide)),
		RangeType: rangeType,
		Timestamp: time.Now(),
	}
	e.requestMap[contactID] = peer

	e.events.PublicUpdated()
}

func (e *Engine) processPublicClose(contactID string) {
	if peer := e.requestMap[contactID]; peer != nil {
		peer.Validity.Revoke()
		delete(e.requestMap, contactID)
	}

	e.events.PublicUpdated()
}
