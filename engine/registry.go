package engine

import (
	"fmt"

	"github.com/otcdesk/otcdesk/domain"
)

/* peer registry: the engine exclusively owns all peer records; other
   components receive snapshots or validity handles only */

func (e *Engine) contact(contactID string) *domain.Peer {
	return e.contactMap[contactID]
}

func (e *Engine) request(contactID string) *domain.Peer {
	return e.requestMap[contactID]
}

func (e *Engine) response(contactID string) *domain.Peer {
	return e.responseMap[contactID]
}

func (e *Engine) peer(contactID string, typ domain.PeerType) *domain.Peer {
	switch typ {
	case domain.PeerContact:
		return e.contact(contactID)
	case domain.PeerRequest:
		if e.ownRequest != nil && e.ownRequest.ContactID == contactID {
			return e.ownRequest
		}
		return e.request(contactID)
	case domain.PeerResponse:
		return e.response(contactID)
	default:
		return nil
	}
}

// ContactConnected registers a new contact peer in idle state.
func (e *Engine) ContactConnected(contactID string) {
	e.post(func() {
		if e.contact(contactID) != nil {
			e.log.Warn(fmt.Sprintf(`contact %s is already connected`, contactID))
			return
		}
		e.contactMap[contactID] = domain.NewPeer(contactID, domain.PeerContact)
		e.events.PublicUpdated()
	})
}

// ContactDisconnected cancels any bridge-mediated deal of the contact
// and destroys the peer record.
func (e *Engine) ContactDisconnected(contactID string) {
	e.post(func() {
		peer := e.contact(contactID)
		if peer == nil {
			return
		}

		switch peer.State {
		case domain.StateWaitBuyerSign, domain.StateWaitSellerSeal:
			// The bridge must learn the deal can be cancelled; other
			// signing states are short-lived and time out server-side.
			e.pullOrReject(peer)
		}

		e.destroyPeer(peer)
		e.events.PublicUpdated()
	})
}

// destroyPeer removes a peer record and revokes its validity so that
// outstanding async callbacks no-op.
func (e *Engine) destroyPeer(peer *domain.Peer) {
	if peer.ActiveSignSettlementID != `` {
		e.signer.CancelSign(peer.ActiveSignSettlementID)
		peer.ActiveSignSettlementID = ``
	}
	e.releaseReserved(peer)
	if peer.SettlementID != `` {
		e.removeDeal(peer.SettlementID)
	}
	peer.Validity.Revoke()

	switch peer.Type {
	case domain.PeerContact:
		delete(e.contactMap, peer.ContactID)
	case domain.PeerRequest:
		if peer.IsOwnRequest {
			e.ownRequest = nil
		} else {
			delete(e.requestMap, peer.ContactID)
		}
	case domain.PeerResponse:
		delete(e.responseMap, peer.ContactID)
	}
}

func (e *Engine) releaseReserved(peer *domain.Peer) {
	walletID, ok := e.reservedInputs[peer.ContactID]
	if !ok {
		return
	}
	delete(e.reservedInputs, peer.ContactID)
	e.wallets.ReleaseInputs(walletID)
}

// PeerInfo is a read-only snapshot handed to the presentation layer.
type PeerInfo struct {
	ContactID string
	Type      string
	State     string
	Side      string
	Amount    int64
	Price     int64
	Request   domain.QuoteRequest
	Response  domain.QuoteResponse
	OwnSlot   bool
}

func snapshot(p *domain.Peer) PeerInfo {
	return PeerInfo{
		ContactID: p.ContactID,
		Type:      p.Type.String(),
		State:     p.State.String(),
		Side:      p.Offer.OurSide.String(),
		Amount:    p.Offer.Amount,
		Price:     p.Offer.Price,
		Request:   p.Request,
		Response:  p.Response,
		OwnSlot:   p.IsOwnRequest,
	}
}

// Peers returns snapshots of all known peers grouped by category. The
// own public request, when present, leads the request list.
func (e *Engine) Peers() (contacts, requests, responses []PeerInfo) {
	done := make(chan struct{})
	e.post(func() {
		defer close(done)
		for _, p := range e.contactMap {
			contacts = append(contacts, snapshot(p))
		}
		if e.ownRequest != nil {
			requests = append(requests, snapshot(e.ownRequest))
		}
		for _, p := range e.requestMap {
			requests = append(requests, snapshot(p))
		}
		for _, p := range e.responseMap {
			responses = append(responses, snapshot(p))
		}
	})
	<-done
	return contacts, requests, responses
}
