package engine

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	"github.com/otcdesk/otcdesk/domain"
	"github.com/otcdesk/otcdesk/domain/container"
	"github.com/otcdesk/otcdesk/domain/messages"
	"github.com/otcdesk/otcdesk/domain/services"
	"github.com/otcdesk/otcdesk/log"
)

/* synchronous in-memory collaborators; callbacks run inline so tests
   can pump the loop with drainPending */

type fakeLeaf struct {
	pubKey []byte
	setIDs []string
	keyErr error
}

func (l *fakeLeaf) RootPubKey(cb func(pubKey []byte, err error)) {
	cb(l.pubKey, l.keyErr)
}

func (l *fakeLeaf) SetSettlementID(settlementID string, cb func(err error)) {
	l.setIDs = append(l.setIDs, settlementID)
	cb(nil)
}

type fakeWallets struct {
	walletID   string
	leaf       *fakeLeaf
	addrOwners map[string]string
	feePerByte float64

	reserved map[string][]string
	released []string
	comments []string
}

func newFakeWallets(owner string) *fakeWallets {
	seed := sha256.Sum256([]byte(owner))
	pubKey := make([]byte, domain.PubKeySize)
	pubKey[0] = 0x02
	copy(pubKey[1:], seed[:])

	return &fakeWallets{
		walletID:   owner + `-wallet`,
		leaf:       &fakeLeaf{pubKey: pubKey},
		addrOwners: map[string]string{},
		feePerByte: 5,
		reserved:   map[string][]string{},
	}
}

func (w *fakeWallets) SettlementLeaf(authAddress string) (services.SettlementLeaf, error) {
	return w.leaf, nil
}

func (w *fakeWallets) WalletIDByAddress(address string) (string, error) {
	id, ok := w.addrOwners[address]
	if !ok {
		return ``, fmt.Errorf(`no wallet owns address %s`, address)
	}
	return id, nil
}

func (w *fakeWallets) HasWallet(walletID string) bool {
	return walletID == w.walletID
}

func (w *fakeWallets) EstimateFeePerByte(cb func(feePerByte float64)) {
	cb(w.feePerByte)
}

func (w *fakeWallets) ReserveInputs(walletID string, inputs []string) error {
	if _, ok := w.reserved[walletID]; ok {
		return fmt.Errorf(`already reserved`)
	}
	w.reserved[walletID] = inputs
	return nil
}

func (w *fakeWallets) ReleaseInputs(walletID string) {
	delete(w.reserved, walletID)
	w.released = append(w.released, walletID)
}

func (w *fakeWallets) SetTxComment(walletID string, signedTx []byte, comment string) {
	w.comments = append(w.comments, comment)
}

type signCall struct {
	reqID        string
	settlementID string
	payin        bool
}

type fakeSigner struct {
	cb        func(reqID string, signedTx []byte, result domain.SignResult, reason string)
	calls     []signCall
	cancelled []string
	allowed   []string
	seq       int
}

func (s *fakeSigner) OnSigned(cb func(reqID string, signedTx []byte, result domain.SignResult, reason string)) {
	s.cb = cb
}

func (s *fakeSigner) SignPayin(deal *domain.Deal) string {
	return s.record(deal.SettlementID, true)
}

func (s *fakeSigner) SignPayout(deal *domain.Deal) string {
	return s.record(deal.SettlementID, false)
}

func (s *fakeSigner) record(settlementID string, payin bool) string {
	s.seq++
	reqID := fmt.Sprintf(`sign-req-%d`, s.seq)
	s.calls = append(s.calls, signCall{reqID: reqID, settlementID: settlementID, payin: payin})
	return reqID
}

func (s *fakeSigner) CancelSign(settlementID string) {
	s.cancelled = append(s.cancelled, settlementID)
}

func (s *fakeSigner) AllowSigning(settlementID string) {
	s.allowed = append(s.allowed, settlementID)
}

// complete delivers a signing result as the device would.
func (s *fakeSigner) complete(reqID string, signedTx []byte, result domain.SignResult, reason string) {
	s.cb(reqID, signedTx, result, reason)
}

type fakeBuilder struct {
	payinErr  string
	payoutErr string
}

func (b *fakeBuilder) BuildPayin(req services.BuildRequest, cb func(deal *domain.Deal)) {
	if b.payinErr != `` {
		cb(domain.DealError(b.payinErr))
		return
	}
	deal := b.newDeal(req)
	payload := []byte(`payin/` + req.SettlementID)
	txID := sha256.Sum256(payload)
	deal.Payin = domain.UnsignedTx{Payload: payload, TxID: txID[:], Fee: deal.Fee}
	deal.PayinTxID = txID[:]
	cb(deal)
}

func (b *fakeBuilder) BuildPayout(req services.BuildRequest, cb func(deal *domain.Deal)) {
	if b.payoutErr != `` {
		cb(domain.DealError(b.payoutErr))
		return
	}
	deal := b.newDeal(req)
	deal.Payout = domain.UnsignedTx{Payload: []byte(`payout/` + req.SettlementID), TxID: req.PayinTxID, Fee: deal.Fee}
	deal.PayinTxID = req.PayinTxID
	cb(deal)
}

func (b *fakeBuilder) newDeal(req services.BuildRequest) *domain.Deal {
	return &domain.Deal{
		Side:           req.Side,
		WalletID:       req.WalletID,
		SettlementID:   req.SettlementID,
		OurAuthAddress: req.AuthAddress,
		CpPubKey:       req.CpPubKey,
		Amount:         req.Amount,
		Price:          req.Price,
		Fee:            int64(req.FeePerByte * 250),
	}
}

type fakeVerifier struct {
	watching map[string]func(state domain.VerificationState)
	stopped  []string
}

func (v *fakeVerifier) Verify(address string, cb func(state domain.VerificationState)) {
	v.watching[address] = cb
}

func (v *fakeVerifier) Stop(address string) {
	v.stopped = append(v.stopped, address)
}

type fakeBridge struct {
	sent []*messages.BridgeRequest
	err  error
}

func (b *fakeBridge) Send(data []byte) error {
	if b.err != nil {
		return b.err
	}
	req := &messages.BridgeRequest{}
	if err := json.Unmarshal(data, req); err != nil {
		return err
	}
	b.sent = append(b.sent, req)
	return nil
}

func (b *fakeBridge) last() *messages.BridgeRequest {
	if len(b.sent) == 0 {
		return &messages.BridgeRequest{}
	}
	return b.sent[len(b.sent)-1]
}

type sentContact struct {
	contactID string
	msg       *messages.ContactMessage
}

type fakeContacts struct {
	sent []sentContact
}

func (c *fakeContacts) SendContact(contactID string, data []byte) error {
	msg, err := messages.ParseContact(data)
	if err != nil {
		return err
	}
	c.sent = append(c.sent, sentContact{contactID: contactID, msg: msg})
	return nil
}

func (c *fakeContacts) last() *messages.ContactMessage {
	if len(c.sent) == 0 {
		return &messages.ContactMessage{}
	}
	return c.sent[len(c.sent)-1].msg
}

type fakePublic struct {
	sent []*messages.PublicMessage
}

func (p *fakePublic) SendPublic(data []byte) error {
	msg, err := messages.ParsePublic(data)
	if err != nil {
		return err
	}
	p.sent = append(p.sent, msg)
	return nil
}

type peerFailure struct {
	contactID string
	kind      domain.FailureKind
	msg       string
}

type fakeSink struct {
	updates  []string
	failures []peerFailure
	public   int
}

func (s *fakeSink) PeerUpdated(p *domain.Peer) {
	s.updates = append(s.updates, p.String())
}

func (s *fakeSink) PublicUpdated() {
	s.public++
}

func (s *fakeSink) PeerError(p *domain.Peer, kind domain.FailureKind, msg string) {
	s.failures = append(s.failures, peerFailure{contactID: p.ContactID, kind: kind, msg: msg})
}

func (s *fakeSink) lastFailure() peerFailure {
	if len(s.failures) == 0 {
		return peerFailure{kind: -1}
	}
	return s.failures[len(s.failures)-1]
}

type fakeJournal struct {
	outcomes []domain.Outcome
}

func (j *fakeJournal) RecordOutcome(o domain.Outcome) error {
	j.outcomes = append(j.outcomes, o)
	return nil
}

type firedTimer struct {
	fn func()
}

// timerStub captures scheduled deadlines instead of arming real timers.
type timerStub struct {
	pending []*firedTimer
}

func (t *timerStub) fireAll(e *Engine) {
	pending := t.pending
	t.pending = nil
	for _, f := range pending {
		f.fn()
	}
	e.drainPending()
}

type harness struct {
	e       *Engine
	wallets *fakeWallets
	signer  *fakeSigner
	builder *fakeBuilder
	verif   *fakeVerifier
	bridge  *fakeBridge
	ctc     *fakeContacts
	pub     *fakePublic
	sink    *fakeSink
	jrn     *fakeJournal
	timers  *timerStub
}

func newHarness(ownID string) *harness {
	h := &harness{
		wallets: newFakeWallets(ownID),
		signer:  &fakeSigner{},
		builder: &fakeBuilder{},
		verif:   &fakeVerifier{watching: map[string]func(domain.VerificationState){}},
		bridge:  &fakeBridge{},
		ctc:     &fakeContacts{},
		pub:     &fakePublic{},
		sink:    &fakeSink{},
		jrn:     &fakeJournal{},
		timers:  &timerStub{},
	}

	cfg := &domain.Config{
		Name:      ownID,
		ContactID: ownID,
		Timeouts:  domain.DefaultTimeouts(),
	}

	h.e = New(&container.Container{
		Cfg:       cfg,
		Log:       log.NewLogger(false, `ERROR`),
		Wallets:   h.wallets,
		Signer:    h.signer,
		Builder:   h.builder,
		Verifier:  h.verif,
		Bridge:    h.bridge,
		Contacts:  h.ctc,
		Broadcast: h.pub,
		Events:    h.sink,
		Journal:   h.jrn,
	})

	h.e.sched.after = func(d time.Duration, f func()) *time.Timer {
		h.timers.pending = append(h.timers.pending, &firedTimer{fn: f})
		return nil
	}

	return h
}

// addContact registers an idle contact peer directly in the registry.
func (h *harness) addContact(contactID string) *domain.Peer {
	peer := domain.NewPeer(contactID, domain.PeerContact)
	h.e.contactMap[contactID] = peer
	return peer
}

func (h *harness) offer(side domain.Side, amount, price int64) domain.Offer {
	recv := h.wallets.walletID + `-recv`
	h.wallets.addrOwners[recv] = h.wallets.walletID
	return domain.Offer{
		OurSide:     side,
		Amount:      amount,
		Price:       price,
		WalletID:    h.wallets.walletID,
		AuthAddress: `auth-` + h.wallets.walletID,
		RecvAddress: recv,
	}
}

func testSettlementID(tag string) string {
	sum := sha256.Sum256([]byte(tag))
	return fmt.Sprintf(`%x`, sum)
}
