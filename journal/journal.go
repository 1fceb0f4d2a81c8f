// Package journal keeps an audit trail of terminal deal outcomes in
// sqlite. Chat history is deliberately not persisted.
package journal

import (
	"database/sql"
	"fmt"

	"github.com/otcdesk/otcdesk/domain"
)

type Journal struct {
	db *sql.DB
}

func New(db *sql.DB) *Journal {
	return &Journal{db: db}
}

// RecordOutcome appends one terminal deal record.
func (j *Journal) RecordOutcome(o domain.Outcome) error {
	_, err := j.db.Exec(
		`INSERT INTO deal_outcomes (settlement_id, contact_id, side, amount, price, fee, result, error_msg, closed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.SettlementID, o.ContactID, o.Side.String(), o.Amount, o.Price, o.Fee, o.Result, o.ErrorMsg, o.ClosedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf(`inserting deal outcome failed - %v`, err)
	}
	return nil
}

// Outcomes returns the most recent records, newest first.
func (j *Journal) Outcomes(limit int) ([]domain.Outcome, error) {
	rows, err := j.db.Query(
		`SELECT settlement_id, contact_id, side, amount, price, fee, result, error_msg, closed_at
		 FROM deal_outcomes ORDER BY closed_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf(`querying deal outcomes failed - %v`, err)
	}
	defer rows.Close()

	var outcomes []domain.Outcome
	for rows.Next() {
		var o domain.Outcome
		var side string
		if err = rows.Scan(&o.SettlementID, &o.ContactID, &side, &o.Amount, &o.Price, &o.Fee, &o.Result, &o.ErrorMsg, &o.ClosedAt); err != nil {
			return nil, fmt.Errorf(`scanning deal outcome failed - %v`, err)
		}
		switch side {
		case domain.SideBuy.String():
			o.Side = domain.SideBuy
		case domain.SideSell.String():
			o.Side = domain.SideSell
		}
		outcomes = append(outcomes, o)
	}

	return outcomes, rows.Err()
}

func (j *Journal) Close() error {
	return j.db.Close()
}
