package mock

import (
	"crypto/sha256"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/otcdesk/otcdesk/domain"
)

// Signer completes signing requests asynchronously after a short delay,
// standing in for a hardware or remote signing device.
type Signer struct {
	mu        sync.Mutex
	cb        func(reqID string, signedTx []byte, result domain.SignResult, reason string)
	cancelled map[string]bool // keyed by settlement id
	pending   map[string]string
	delay     time.Duration
}

func NewSigner() *Signer {
	return &Signer{
		cancelled: map[string]bool{},
		pending:   map[string]string{},
		delay:     50 * time.Millisecond,
	}
}

func (s *Signer) OnSigned(cb func(reqID string, signedTx []byte, result domain.SignResult, reason string)) {
	s.mu.Lock()
	s.cb = cb
	s.mu.Unlock()
}

func (s *Signer) SignPayin(deal *domain.Deal) string {
	return s.submit(deal.SettlementID, deal.Payin.Payload)
}

func (s *Signer) SignPayout(deal *domain.Deal) string {
	return s.submit(deal.SettlementID, deal.Payout.Payload)
}

func (s *Signer) submit(settlementID string, payload []byte) string {
	reqID := uuid.New().String()

	s.mu.Lock()
	s.pending[reqID] = settlementID
	s.mu.Unlock()

	go func() {
		time.Sleep(s.delay)

		s.mu.Lock()
		cb := s.cb
		delete(s.pending, reqID)
		cancelled := s.cancelled[settlementID]
		s.mu.Unlock()

		if cb == nil {
			return
		}
		if cancelled {
			cb(reqID, nil, domain.SignCancelledByUser, `cancelled`)
			return
		}
		sig := sha256.Sum256(payload)
		cb(reqID, append(payload, sig[:]...), domain.SignOK, ``)
	}()

	return reqID
}

func (s *Signer) CancelSign(settlementID string) {
	s.mu.Lock()
	s.cancelled[settlementID] = true
	s.mu.Unlock()
}

func (s *Signer) AllowSigning(settlementID string) {}
