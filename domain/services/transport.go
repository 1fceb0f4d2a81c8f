package services

import "github.com/otcdesk/otcdesk/domain"

/* transport boundaries */

// ContactSender delivers a serialized contact message to one
// counterparty.
type ContactSender interface {
	SendContact(contactID string, data []byte) error
}

// PublicSender broadcasts a serialized public message to all listeners.
type PublicSender interface {
	SendPublic(data []byte) error
}

// Bridge carries requests to the settlement coordination service.
// Responses and state pushes arrive through the engine's bridge
// message entry point.
type Bridge interface {
	Send(data []byte) error
}

/* events exposed by the core for presentation-layer consumption */

type EventSink interface {
	PeerUpdated(p *domain.Peer)
	PublicUpdated()
	PeerError(p *domain.Peer, kind domain.FailureKind, msg string)
}

// Journal records terminal deal outcomes for audit.
type Journal interface {
	RecordOutcome(o domain.Outcome) error
}
