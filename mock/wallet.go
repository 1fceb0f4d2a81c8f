// Package mock provides in-memory wallet, signer, builder and verifier
// collaborators for running a terminal without external infrastructure.
package mock

import (
	"crypto/sha256"
	"fmt"
	"sync"

	"github.com/btcsuite/btcutil/base58"
	"github.com/otcdesk/otcdesk/domain/services"
)

type leaf struct {
	pubKey []byte
	mu     sync.Mutex
	setID  string
}

func (l *leaf) RootPubKey(cb func(pubKey []byte, err error)) {
	go cb(l.pubKey, nil)
}

func (l *leaf) SetSettlementID(settlementID string, cb func(err error)) {
	l.mu.Lock()
	l.setID = settlementID
	l.mu.Unlock()
	go cb(nil)
}

type Wallet struct {
	walletID string
	leaf     *leaf
	mu       sync.Mutex
	addrs    map[string]string // address -> wallet id
	reserved map[string][]string
}

// NewWallet builds a wallet with a single settlement leaf whose root
// public key is derived deterministically from the owner name.
func NewWallet(owner, walletID string) *Wallet {
	seed := sha256.Sum256([]byte(owner))
	pubKey := make([]byte, 33)
	pubKey[0] = 0x02
	copy(pubKey[1:], seed[:])

	return &Wallet{
		walletID: walletID,
		leaf:     &leaf{pubKey: pubKey},
		addrs:    map[string]string{},
		reserved: map[string][]string{},
	}
}

func (w *Wallet) WalletID() string { return w.walletID }

// AuthPubKey exposes the leaf root key for constructing offers.
func (w *Wallet) AuthPubKey() []byte { return w.leaf.pubKey }

// NewAddress mints a receive address owned by this wallet.
func (w *Wallet) NewAddress(label string) string {
	sum := sha256.Sum256([]byte(w.walletID + `/` + label))
	addr := base58.CheckEncode(sum[:20], 0x00)

	w.mu.Lock()
	w.addrs[addr] = w.walletID
	w.mu.Unlock()
	return addr
}

func (w *Wallet) SettlementLeaf(authAddress string) (services.SettlementLeaf, error) {
	return w.leaf, nil
}

func (w *Wallet) WalletIDByAddress(address string) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	id, ok := w.addrs[address]
	if !ok {
		return ``, fmt.Errorf(`no wallet owns address %s`, address)
	}
	return id, nil
}

func (w *Wallet) HasWallet(walletID string) bool {
	return walletID == w.walletID
}

func (w *Wallet) EstimateFeePerByte(cb func(feePerByte float64)) {
	go cb(5.0)
}

func (w *Wallet) ReserveInputs(walletID string, inputs []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.reserved[walletID]; ok {
		return fmt.Errorf(`inputs of wallet %s are already reserved`, walletID)
	}
	w.reserved[walletID] = inputs
	return nil
}

func (w *Wallet) ReleaseInputs(walletID string) {
	w.mu.Lock()
	delete(w.reserved, walletID)
	w.mu.Unlock()
}

func (w *Wallet) SetTxComment(walletID string, signedTx []byte, comment string) {}
