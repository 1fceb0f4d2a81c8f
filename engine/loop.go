package engine

import (
	"context"

	"github.com/otcdesk/otcdesk/domain"
	"github.com/otcdesk/otcdesk/domain/container"
	"github.com/otcdesk/otcdesk/domain/services"
	"github.com/tryfix/log"
)

// Engine is the OTC negotiation and settlement-coordination core. All
// peer and deal state is owned by a single run loop; external entry
// points and collaborator callbacks are posted onto the inbox as
// discrete tasks, so state transitions for a given peer can never
// interleave.
type Engine struct {
	cfg *domain.Config
	log log.Logger

	inbox chan func()

	ownContactID string

	contactMap  map[string]*domain.Peer
	requestMap  map[string]*domain.Peer
	responseMap map[string]*domain.Peer
	ownRequest  *domain.Peer

	// deals keyed by settlement id
	deals map[string]*domain.Deal
	// in-flight settlement id allocations keyed by correlation id
	waitSettlementIDs map[string]settlementIDRequest
	// in-flight signing requests mapped back to settlement ids
	signRequestIDs map[string]string
	// wallets with inputs reserved for an ongoing attempt, by contact id
	reservedInputs map[string]string
	// addresses being watched by the verifier, by settlement id
	verifyAddrs map[string]string

	wallets   services.WalletManager
	signer    services.Signer
	builder   services.TxBuilder
	bridge    services.Bridge
	contacts  services.ContactSender
	broadcast services.PublicSender
	events    services.EventSink
	journal   services.Journal

	verifier *verifier
	sched    *scheduler
}

type settlementIDRequest struct {
	peer   *domain.Peer
	handle domain.Handle
}

func New(c *container.Container) *Engine {
	e := &Engine{
		cfg:               c.Cfg,
		log:               c.Log,
		inbox:             make(chan func(), 256),
		ownContactID:      c.Cfg.ContactID,
		contactMap:        map[string]*domain.Peer{},
		requestMap:        map[string]*domain.Peer{},
		responseMap:       map[string]*domain.Peer{},
		deals:             map[string]*domain.Deal{},
		waitSettlementIDs: map[string]settlementIDRequest{},
		signRequestIDs:    map[string]string{},
		reservedInputs:    map[string]string{},
		verifyAddrs:       map[string]string{},
		wallets:           c.Wallets,
		signer:            c.Signer,
		builder:           c.Builder,
		bridge:            c.Bridge,
		contacts:          c.Contacts,
		broadcast:         c.Broadcast,
		events:            c.Events,
		journal:           c.Journal,
	}

	e.verifier = newVerifier(e, c.Verifier, c.Cfg.VerifyThresholdXBT)
	e.sched = newScheduler(e)

	if e.signer != nil {
		e.signer.OnSigned(func(reqID string, signedTx []byte, result domain.SignResult, reason string) {
			e.post(func() { e.onTxSigned(reqID, signedTx, result, reason) })
		})
	}

	return e
}

// Run drains the inbox until the context is cancelled. It must be the
// only goroutine executing engine tasks.
func (e *Engine) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case task := <-e.inbox:
			task()
		}
	}
}

// post schedules a task onto the run loop. Safe to call from any
// goroutine.
func (e *Engine) post(task func()) {
	e.inbox <- task
}

// call runs fn on the loop and blocks the caller until it completes,
// so local validation errors are reported synchronously.
func (e *Engine) call(fn func() error) error {
	res := make(chan error, 1)
	e.post(func() { res <- fn() })
	return <-res
}

// drainPending executes queued tasks until the inbox is empty. Used by
// tests to pump the loop deterministically.
func (e *Engine) drainPending() {
	for {
		select {
		case task := <-e.inbox:
			task()
		default:
			return
		}
	}
}

func (e *Engine) OwnContactID() string {
	return e.ownContactID
}
