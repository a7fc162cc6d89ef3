package store

import (
	"database/sql"
	"fmt"

	"github.com/kodix/kodix/internal/model"
	"github.com/kodix/kodix/internal/voucher"
)

// PlanFunc decides the voucher amount and the fragments it consumes from
// the client's cashbacks as read inside the transaction.
type PlanFunc func(cashbacks []model.Cashback) (float64, []model.VoucherCashback, error)

type VoucherStore struct {
	db *sql.DB
}

func NewVoucherStore(db *sql.DB) *VoucherStore {
	return &VoucherStore{db: db}
}

func scanVoucher(scanner interface{ Scan(...any) error }) (*model.Voucher, error) {
	var v model.Voucher
	err := scanner.Scan(
		&v.ID, &v.TeamID, &v.ClientID, &v.CodeNumber, &v.PurchaseTotal,
		&v.Amount, &v.CreatedByUserID, &v.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	v.VoucherCashbacks = []model.VoucherCashback{}
	return &v, nil
}

const voucherCols = `id, team_id, client_id, code_number, purchase_total, amount, created_by_user_id, created_at`

// Create issues a voucher. The client's cashbacks are read, planned and
// debited in one transaction, and the voucher takes the team's next code
// number.
func (s *VoucherStore) Create(teamID, clientID, userID int64, purchaseTotal float64, plan PlanFunc) (*model.Voucher, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	cbs, err := listClientCashbacks(tx, teamID, clientID)
	if err != nil {
		return nil, err
	}
	amount, allocs, err := plan(cbs)
	if err != nil {
		return nil, err
	}

	var code int64
	if err := tx.QueryRow(
		`SELECT COALESCE(MAX(code_number), 0) + 1 FROM vouchers WHERE team_id = ?`,
		teamID,
	).Scan(&code); err != nil {
		return nil, fmt.Errorf("next code number: %w", err)
	}

	result, err := tx.Exec(
		`INSERT INTO vouchers (team_id, client_id, code_number, purchase_total, amount, created_by_user_id)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		teamID, clientID, code, purchaseTotal, amount, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("insert voucher: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	for _, a := range allocs {
		if _, err := tx.Exec(
			`INSERT INTO voucher_cashbacks (voucher_id, cashback_id, amount) VALUES (?, ?, ?)`,
			id, a.CashbackID, a.Amount,
		); err != nil {
			return nil, fmt.Errorf("insert voucher cashback: %w", err)
		}
		res, err := tx.Exec(
			`UPDATE cashbacks SET used_amount = MIN(amount, used_amount + ?)
			 WHERE id = ? AND client_id = ? AND amount - used_amount >= ? - 1e-9`,
			a.Amount, a.CashbackID, clientID, a.Amount,
		)
		if err != nil {
			return nil, fmt.Errorf("debit cashback %d: %w", a.CashbackID, err)
		}
		if n, _ := res.RowsAffected(); n != 1 {
			return nil, fmt.Errorf("debit cashback %d: %w", a.CashbackID, voucher.ErrInsufficientCashback)
		}
	}

	v, err := scanVoucher(tx.QueryRow(`SELECT `+voucherCols+` FROM vouchers WHERE id = ?`, id))
	if err != nil {
		return nil, fmt.Errorf("read voucher: %w", err)
	}
	v.VoucherCashbacks = append(v.VoucherCashbacks, allocs...)

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return v, nil
}

// ListByClient returns the client's vouchers, newest first.
func (s *VoucherStore) ListByClient(teamID, clientID int64) ([]model.Voucher, error) {
	rows, err := s.db.Query(
		`SELECT `+voucherCols+` FROM vouchers WHERE team_id = ? AND client_id = ? ORDER BY code_number DESC`,
		teamID, clientID,
	)
	if err != nil {
		return nil, fmt.Errorf("list vouchers: %w", err)
	}
	defer rows.Close()

	vouchers := []model.Voucher{}
	index := make(map[int64]int)
	for rows.Next() {
		v, err := scanVoucher(rows)
		if err != nil {
			return nil, fmt.Errorf("scan voucher: %w", err)
		}
		index[v.ID] = len(vouchers)
		vouchers = append(vouchers, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	vcRows, err := s.db.Query(
		`SELECT vc.voucher_id, vc.cashback_id, vc.amount
		 FROM voucher_cashbacks vc
		 JOIN vouchers v ON v.id = vc.voucher_id
		 WHERE v.team_id = ? AND v.client_id = ?
		 ORDER BY vc.voucher_id, vc.rowid`,
		teamID, clientID,
	)
	if err != nil {
		return nil, fmt.Errorf("list voucher cashbacks: %w", err)
	}
	defer vcRows.Close()

	for vcRows.Next() {
		var voucherID int64
		var vc model.VoucherCashback
		if err := vcRows.Scan(&voucherID, &vc.CashbackID, &vc.Amount); err != nil {
			return nil, fmt.Errorf("scan voucher cashback: %w", err)
		}
		if i, ok := index[voucherID]; ok {
			vouchers[i].VoucherCashbacks = append(vouchers[i].VoucherCashbacks, vc)
		}
	}
	return vouchers, vcRows.Err()
}
