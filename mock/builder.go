package mock

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcutil"
	"github.com/btcsuite/btcutil/base58"
	"github.com/otcdesk/otcdesk/domain"
	"github.com/otcdesk/otcdesk/domain/services"
)

// estimated settlement leg weight used for fee calculation
const legVSize = 250

// Builder assembles deterministic placeholder legs instead of real
// bitcoin transactions.
type Builder struct{}

func NewBuilder() *Builder {
	return &Builder{}
}

func (b *Builder) BuildPayin(req services.BuildRequest, cb func(deal *domain.Deal)) {
	go func() {
		deal := b.newDeal(req)

		payload := legPayload(`payin`, req)
		txID := sha256.Sum256(payload)
		deal.Payin = domain.UnsignedTx{Payload: payload, TxID: txID[:], Fee: deal.Fee}
		deal.PayinTxID = txID[:]

		cb(deal)
	}()
}

func (b *Builder) BuildPayout(req services.BuildRequest, cb func(deal *domain.Deal)) {
	go func() {
		if len(req.PayinTxID) != domain.TxHashSize {
			cb(domain.DealError(`pay-in hash is missing`))
			return
		}

		deal := b.newDeal(req)

		payload := legPayload(`payout`, req)
		deal.Payout = domain.UnsignedTx{Payload: payload, TxID: req.PayinTxID, Fee: deal.Fee}
		deal.PayinTxID = req.PayinTxID

		cb(deal)
	}()
}

func (b *Builder) newDeal(req services.BuildRequest) *domain.Deal {
	return &domain.Deal{
		Side:           req.Side,
		WalletID:       req.WalletID,
		SettlementID:   req.SettlementID,
		SettlementAddr: settlementAddr(req.SettlementID),
		OurAuthAddress: req.AuthAddress,
		CpPubKey:       req.CpPubKey,
		Amount:         req.Amount,
		Price:          req.Price,
		Fee:            int64(req.FeePerByte * legVSize),
	}
}

func legPayload(leg string, req services.BuildRequest) []byte {
	return []byte(fmt.Sprintf(`%s/%s/%d@%d/%s->%s`,
		leg, req.SettlementID, req.Amount, req.Price, req.WalletID, req.RecvAddress))
}

func settlementAddr(settlementID string) string {
	raw, err := hex.DecodeString(settlementID)
	if err != nil {
		return ``
	}
	return base58.CheckEncode(btcutil.Hash160(raw), 0)
}
