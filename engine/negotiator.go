package engine

import (
	"fmt"
	"time"

	"github.com/otcdesk/otcdesk/domain"
	"github.com/otcdesk/otcdesk/domain/messages"
)

/* outbound negotiation operations; each public method hops onto the
   run loop and reports local validation failures synchronously */

// SendQuoteRequest broadcasts an anonymous request carrying a discrete
// quantity bucket. Only one own request may be active at a time.
func (e *Engine) SendQuoteRequest(req domain.QuoteRequest) error {
	return e.call(func() error { return e.sendQuoteRequest(req) })
}

func (e *Engine) sendQuoteRequest(req domain.QuoteRequest) error {
	if e.ownRequest != nil {
		return fmt.Errorf(`own quote request was already sent`)
	}
	if e.ownContactID == `` {
		return fmt.Errorf(`own contact id is not set`)
	}
	if !domain.ValidRangeType(req.RangeType) {
		return fmt.Errorf(`invalid range type (%d)`, req.RangeType)
	}

	req.Timestamp = time.Now()
	own := domain.NewPeer(e.ownContactID, domain.PeerRequest)
	own.Request = req
	own.IsOwnRequest = true
	e.ownRequest = own
	e.sched.closeAfter(e.cfg.Timeouts.PublicRequest, own)

	msg := &messages.PublicMessage{Request: &messages.PublicRequest{
		SenderSide: int(req.OurSide),
		RangeType:  int(req.RangeType),
	}}
	data, err := msg.Marshal()
	if err != nil {
		return err
	}
	if err = e.broadcast.SendPublic(data); err != nil {
		return fmt.Errorf(`broadcasting quote request failed - %v`, err)
	}

	e.events.PublicUpdated()
	return nil
}

// SendQuoteResponse answers a received public request, narrowing the
// request's bucket to concrete price and amount sub-ranges.
func (e *Engine) SendQuoteResponse(contactID string, resp domain.QuoteResponse) error {
	return e.call(func() error {
		peer := e.request(contactID)
		if peer == nil {
			return fmt.Errorf(`unknown public request from %s`, contactID)
		}
		return e.sendQuoteResponse(peer, resp)
	})
}

func (e *Engine) sendQuoteResponse(peer *domain.Peer, resp domain.QuoteResponse) error {
	if peer.State != domain.StateIdle {
		return fmt.Errorf(`can't respond to %s, peer should be in idle state`, peer)
	}
	if !domain.IsSubRange(domain.RangeOf(peer.Request.RangeType), resp.Amount) {
		return fmt.Errorf(`response amount is not within the requested range`)
	}

	e.changePeerState(peer, domain.StateQuoteSent)
	e.sched.closeAfter(e.cfg.Timeouts.Negotiation, peer)
	peer.Response = resp

	msg := &messages.ContactMessage{QuoteResponse: &messages.QuoteResponse{
		SenderSide: int(resp.OurSide),
		Price:      messages.CopyRange(resp.Price),
		Amount:     messages.CopyRange(resp.Amount),
	}}
	e.send(peer, msg)

	e.events.PublicUpdated()
	return nil
}

// SendOffer opens a bilateral negotiation. The chosen authentication
// address must resolve to a settlement leaf with a valid root public
// key before the offer goes out.
func (e *Engine) SendOffer(contactID string, typ domain.PeerType, offer domain.Offer) error {
	return e.call(func() error {
		peer := e.peer(contactID, typ)
		if peer == nil {
			return fmt.Errorf(`unknown peer %s/%s`, contactID, typ)
		}
		return e.sendOffer(peer, offer)
	})
}

func (e *Engine) sendOffer(peer *domain.Peer, offer domain.Offer) error {
	e.log.Debug(fmt.Sprintf(`send offer to %s (price: %d, amount: %d)`, peer, offer.Price, offer.Amount))

	if err := e.verifyOffer(offer); err != nil {
		return err
	}

	leaf, err := e.wallets.SettlementLeaf(offer.AuthAddress)
	if err != nil {
		return fmt.Errorf(`can't find settlement leaf with address '%s' - %v`, offer.AuthAddress, err)
	}

	handle := peer.Validity.Handle()
	leaf.RootPubKey(func(pubKey []byte, err error) {
		e.post(func() {
			if !handle.Valid() {
				e.log.Error(`peer was destroyed`)
				return
			}
			if err != nil || len(pubKey) != domain.PubKeySize {
				e.log.Error(fmt.Sprintf(`invalid auth address root public key - %v`, err))
				return
			}

			switch peer.Type {
			case domain.PeerContact:
				if peer.State != domain.StateIdle {
					e.log.Error(fmt.Sprintf(`can't send offer to %s, peer should be in idle state`, peer))
					return
				}
			case domain.PeerRequest:
				e.log.Error(fmt.Sprintf(`can't send offer to own request slot %s`, peer))
				return
			case domain.PeerResponse:
				if peer.State != domain.StateQuoteRecv {
					e.log.Error(fmt.Sprintf(`can't send offer to %s, peer should be in quote-received state`, peer))
					return
				}
			}

			peer.Offer = offer
			peer.OurAuthPubKey = pubKey
			peer.IsOurSideSentOffer = true
			e.reserveInputs(peer, offer)
			e.changePeerState(peer, domain.StateOfferSent)
			e.sched.closeAfter(e.cfg.Timeouts.Negotiation, peer)

			msg := &messages.ContactMessage{}
			if offer.OurSide == domain.SideBuy {
				msg.BuyerOffers = &messages.BuyerOffers{
					Offer:            messages.CopyOffer(offer),
					AuthAddressBuyer: messages.EncodePubKey(peer.OurAuthPubKey),
				}
			} else {
				msg.SellerOffers = &messages.SellerOffers{Offer: messages.CopyOffer(offer)}
			}
			e.send(peer, msg)
		})
	})

	return nil
}

// AcceptOffer accepts the counterparty's last offer. The accepted
// terms must match what was received exactly; a seller immediately
// requests a settlement id while a buyer waits for pay-in details.
func (e *Engine) AcceptOffer(contactID string, typ domain.PeerType, offer domain.Offer) error {
	return e.call(func() error {
		peer := e.peer(contactID, typ)
		if peer == nil {
			return fmt.Errorf(`unknown peer %s/%s`, contactID, typ)
		}
		return e.acceptOffer(peer, offer)
	})
}

func (e *Engine) acceptOffer(peer *domain.Peer, offer domain.Offer) error {
	e.log.Debug(fmt.Sprintf(`accept offer from %s (price: %d, amount: %d)`, peer, offer.Price, offer.Amount))

	if err := e.verifyOffer(offer); err != nil {
		return err
	}

	leaf, err := e.wallets.SettlementLeaf(offer.AuthAddress)
	if err != nil {
		return fmt.Errorf(`can't find settlement leaf with address '%s' - %v`, offer.AuthAddress, err)
	}

	handle := peer.Validity.Handle()
	leaf.RootPubKey(func(pubKey []byte, err error) {
		e.post(func() {
			if !handle.Valid() {
				e.log.Error(`peer was destroyed`)
				return
			}
			if peer.State != domain.StateOfferRecv {
				e.log.Error(fmt.Sprintf(`can't accept offer from %s, should be in offer-received state`, peer))
				return
			}
			if err != nil || len(pubKey) != domain.PubKeySize {
				e.log.Error(fmt.Sprintf(`invalid auth address root public key - %v`, err))
				return
			}
			if !offer.TermsEqual(peer.Offer) {
				e.events.PeerError(peer, domain.FailureOffer, `accepted terms do not match the received offer`)
				return
			}

			peer.Offer = offer
			peer.OurAuthPubKey = pubKey
			e.reserveInputs(peer, offer)

			if offer.OurSide == domain.SideSell {
				e.sendSellerAccepts(peer)
				return
			}

			// Buyer needs the seller's pay-in hash before a pay-out can
			// be built; it arrives with the accept reply.
			msg := &messages.ContactMessage{BuyerAccepts: &messages.BuyerAccepts{
				Offer:            messages.CopyOffer(offer),
				AuthAddressBuyer: messages.EncodePubKey(peer.OurAuthPubKey),
			}}
			e.send(peer, msg)

			e.changePeerState(peer, domain.StateWaitPayinInfo)
		})
	})

	return nil
}

// UpdateOffer sends a counter-offer. Only the price may change.
func (e *Engine) UpdateOffer(contactID string, typ domain.PeerType, offer domain.Offer) error {
	return e.call(func() error {
		peer := e.peer(contactID, typ)
		if peer == nil {
			return fmt.Errorf(`unknown peer %s/%s`, contactID, typ)
		}
		return e.updateOffer(peer, offer)
	})
}

func (e *Engine) updateOffer(peer *domain.Peer, offer domain.Offer) error {
	e.log.Debug(fmt.Sprintf(`update offer from %s (price: %d, amount: %d)`, peer, offer.Price, offer.Amount))

	if err := e.verifyOffer(offer); err != nil {
		return err
	}
	if peer.State != domain.StateOfferRecv {
		return fmt.Errorf(`can't update offer for %s, should be in offer-received state`, peer)
	}
	if offer.Amount != peer.Offer.Amount || offer.OurSide != peer.Offer.OurSide {
		return fmt.Errorf(`only price can change in a counter-offer`)
	}
	if offer.Price == peer.Offer.Price {
		return fmt.Errorf(`counter-offer price is unchanged`)
	}

	leaf, err := e.wallets.SettlementLeaf(offer.AuthAddress)
	if err != nil {
		return fmt.Errorf(`can't find settlement leaf with address '%s' - %v`, offer.AuthAddress, err)
	}

	handle := peer.Validity.Handle()
	leaf.RootPubKey(func(pubKey []byte, err error) {
		e.post(func() {
			if !handle.Valid() {
				e.log.Error(`peer was destroyed`)
				return
			}
			if peer.State != domain.StateOfferRecv {
				e.log.Error(fmt.Sprintf(`can't update offer for %s, should be in offer-received state`, peer))
				return
			}
			if err != nil || len(pubKey) != domain.PubKeySize {
				e.log.Error(fmt.Sprintf(`invalid auth address root public key - %v`, err))
				return
			}

			peer.Offer = offer
			peer.OurAuthPubKey = pubKey

			msg := &messages.ContactMessage{}
			if offer.OurSide == domain.SideBuy {
				msg.BuyerOffers = &messages.BuyerOffers{
					Offer:            messages.CopyOffer(offer),
					AuthAddressBuyer: messages.EncodePubKey(peer.OurAuthPubKey),
				}
			} else {
				msg.SellerOffers = &messages.SellerOffers{Offer: messages.CopyOffer(offer)}
			}
			e.send(peer, msg)

			e.changePeerState(peer, domain.StateOfferSent)
			e.sched.closeAfter(e.cfg.Timeouts.Negotiation, peer)
		})
	})

	return nil
}

// PullOrReject cancels an ongoing negotiation or pulls an own public
// request. Pulling an already idle peer is a no-op.
func (e *Engine) PullOrReject(contactID string, typ domain.PeerType) error {
	return e.call(func() error {
		peer := e.peer(contactID, typ)
		if peer == nil {
			return fmt.Errorf(`unknown peer %s/%s`, contactID, typ)
		}
		return e.pullOrReject(peer)
	})
}

func (e *Engine) pullOrReject(peer *domain.Peer) error {
	if peer.IsOwnRequest {
		e.log.Debug(`pull own quote request`)

		// Pulling the own request drops every received response with it.
		for _, resp := range e.responseMap {
			resp.Validity.Revoke()
		}
		e.responseMap = map[string]*domain.Peer{}
		e.destroyPeer(peer)

		msg := &messages.PublicMessage{Close: &messages.PublicClose{}}
		data, err := msg.Marshal()
		if err != nil {
			return err
		}
		if err = e.broadcast.SendPublic(data); err != nil {
			e.log.Error(fmt.Sprintf(`broadcasting close failed - %v`, err))
		}

		e.events.PublicUpdated()
		return nil
	}

	switch peer.State {
	case domain.StateIdle:
		// Both sides may cancel at the same time.
		return nil

	case domain.StateQuoteSent, domain.StateQuoteRecv, domain.StateOfferSent,
		domain.StateOfferRecv, domain.StateWaitPayinInfo, domain.StateSentPayinInfo:
		e.log.Debug(fmt.Sprintf(`pull or reject offer from %s`, peer))

		e.send(peer, &messages.ContactMessage{Close: &messages.Close{}})

		switch peer.Type {
		case domain.PeerContact:
			e.resetPeerStateToIdle(peer)
		case domain.PeerRequest:
			// A received public request survives our rejection.
			e.resetPeerStateToIdle(peer)
			e.events.PublicUpdated()
		case domain.PeerResponse:
			e.destroyPeer(peer)
			e.events.PublicUpdated()
		}
		return nil

	case domain.StateWaitVerification, domain.StateWaitBuyerSign,
		domain.StateWaitSellerSeal, domain.StateWaitSellerSign:
		deal, ok := e.deals[peer.SettlementID]
		if !ok {
			e.resetPeerStateToIdle(peer)
			return nil
		}

		req := &messages.BridgeRequest{Cancel: &messages.Cancel{SettlementID: deal.SettlementID}}
		data, err := req.Marshal()
		if err != nil {
			return err
		}
		if err = e.bridge.Send(data); err != nil {
			e.log.Error(fmt.Sprintf(`sending cancel to bridge failed - %v`, err))
		}

		switch peer.Type {
		case domain.PeerContact:
			e.resetPeerStateToIdle(peer)
		default:
			e.destroyPeer(peer)
			e.events.PublicUpdated()
		}
		return nil

	default:
		return fmt.Errorf(`can't pull offer from %s`, peer)
	}
}

// verifyOffer checks the local validity of offer details before any
// message is sent; failures here are retryable by the caller.
func (e *Engine) verifyOffer(offer domain.Offer) error {
	if offer.OurSide == domain.SideUnknown {
		return fmt.Errorf(`offer side is not set`)
	}
	if offer.Amount <= 0 || offer.Price <= 0 {
		return fmt.Errorf(`invalid offer amount or price`)
	}
	if offer.WalletID == `` || !e.wallets.HasWallet(offer.WalletID) {
		return fmt.Errorf(`can't find wallet '%s'`, offer.WalletID)
	}
	if offer.AuthAddress == `` {
		return fmt.Errorf(`auth address is not set`)
	}

	if offer.RecvAddress != `` {
		walletID, err := e.wallets.WalletIDByAddress(offer.RecvAddress)
		if err != nil {
			return fmt.Errorf(`invalid receiving address '%s' - %v`, offer.RecvAddress, err)
		}
		if walletID != offer.WalletID {
			return fmt.Errorf(`receiving address '%s' is not owned by wallet '%s'`, offer.RecvAddress, offer.WalletID)
		}
	}

	return nil
}

func (e *Engine) reserveInputs(peer *domain.Peer, offer domain.Offer) {
	if len(offer.Inputs) == 0 {
		return
	}
	if err := e.wallets.ReserveInputs(offer.WalletID, offer.Inputs); err != nil {
		e.log.Error(fmt.Sprintf(`reserving inputs for %s failed - %v`, peer, err))
		return
	}
	e.reservedInputs[peer.ContactID] = offer.WalletID
}

func (e *Engine) send(peer *domain.Peer, msg *messages.ContactMessage) {
	switch peer.Type {
	case domain.PeerContact:
		msg.ContactKind = messages.KindPrivate
	case domain.PeerRequest:
		// Talking back to a broadcaster whose request we answered.
		msg.ContactKind = messages.KindPublicRequest
	case domain.PeerResponse:
		msg.ContactKind = messages.KindPublicResponse
	}

	data, err := msg.Marshal()
	if err != nil {
		e.log.Error(err)
		return
	}
	if err = e.contacts.SendContact(peer.ContactID, data); err != nil {
		e.log.Error(fmt.Sprintf(`sending contact message to %s failed - %v`, peer.ContactID, err))
	}
}

func (e *Engine) changePeerStateWithoutUpdate(peer *domain.Peer, state domain.State) {
	e.log.Debug(fmt.Sprintf(`changing peer %s state from %s to %s`, peer.ContactID, peer.State, state))
	peer.State = state
	peer.StateTimestamp = time.Now()
}

func (e *Engine) changePeerState(peer *domain.Peer, state domain.State) {
	e.changePeerStateWithoutUpdate(peer, state)
	e.events.PeerUpdated(peer)
}

// resetPeerStateToIdle cancels in-flight signing, removes the deal and
// returns the peer to idle, keeping a still-pending public request for
// a warm restart.
func (e *Engine) resetPeerStateToIdle(peer *domain.Peer) {
	if peer.ActiveSignSettlementID != `` {
		e.signer.CancelSign(peer.ActiveSignSettlementID)
		peer.ActiveSignSettlementID = ``
	}
	if peer.SettlementID != `` {
		e.removeDeal(peer.SettlementID)
	}
	e.releaseReserved(peer)

	e.changePeerStateWithoutUpdate(peer, domain.StateIdle)

	// Revoking the old validity kills callbacks scheduled against the
	// previous negotiation; the record itself lives on with a fresh one.
	peer.Validity.Revoke()
	request := peer.Request
	*peer = *domain.NewPeer(peer.ContactID, peer.Type)
	peer.Request = request

	e.events.PeerUpdated(peer)
}

// blockPeer marks a peer as terminally broken; any active deal is torn
// down and further messages from it are dropped.
func (e *Engine) blockPeer(reason string, peer *domain.Peer) {
	e.log.Error(fmt.Sprintf(`block broken peer %s: %s`, peer, reason))

	if peer.ActiveSignSettlementID != `` {
		e.signer.CancelSign(peer.ActiveSignSettlementID)
		peer.ActiveSignSettlementID = ``
	}
	if peer.SettlementID != `` {
		e.removeDeal(peer.SettlementID)
		peer.SettlementID = ``
	}
	e.releaseReserved(peer)

	e.changePeerState(peer, domain.StateBlacklisted)
	e.events.PeerError(peer, domain.FailureProtocol, reason)
}
