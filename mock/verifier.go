package mock

import (
	"sync"
	"time"

	"github.com/otcdesk/otcdesk/domain"
)

// Verifier approves every address after a short delay unless it was
// explicitly denied beforehand.
type Verifier struct {
	mu     sync.Mutex
	denied map[string]bool
}

func NewVerifier() *Verifier {
	return &Verifier{denied: map[string]bool{}}
}

// Deny marks an address so subsequent verification attempts fail.
func (v *Verifier) Deny(address string) {
	v.mu.Lock()
	v.denied[address] = true
	v.mu.Unlock()
}

func (v *Verifier) Verify(address string, cb func(state domain.VerificationState)) {
	go func() {
		cb(domain.VerificationInProgress)
		time.Sleep(20 * time.Millisecond)

		v.mu.Lock()
		denied := v.denied[address]
		v.mu.Unlock()

		if denied {
			cb(domain.VerificationFailed)
			return
		}
		cb(domain.Verified)
	}()
}

func (v *Verifier) Stop(address string) {}
