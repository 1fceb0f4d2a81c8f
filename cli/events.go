package cli

import (
	"fmt"

	"github.com/otcdesk/otcdesk/domain"
	"github.com/tryfix/log"
)

// Sink forwards engine events to the interactive output channel.
type Sink struct {
	log     log.Logger
	outChan chan string
}

func NewSink(logger log.Logger, outChan chan string) *Sink {
	return &Sink{log: logger, outChan: outChan}
}

func (s *Sink) PeerUpdated(p *domain.Peer) {
	s.notify(fmt.Sprintf(`Peer %s updated (price: %d, amount: %d)`, p, p.Offer.Price, p.Offer.Amount))
}

func (s *Sink) PublicUpdated() {
	s.notify(`Public board updated`)
}

func (s *Sink) PeerError(p *domain.Peer, kind domain.FailureKind, msg string) {
	if msg == `` {
		s.notify(fmt.Sprintf(`Peer %s failed: %s`, p, kind))
		return
	}
	s.notify(fmt.Sprintf(`Peer %s failed: %s (%s)`, p, kind, msg))
}

func (s *Sink) notify(text string) {
	select {
	case s.outChan <- text:
	default:
		// interactive consumer is busy; events are advisory
	}
}
