package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/kodix/kodix/internal/model"
)

type CashbackStore struct {
	db *sql.DB
}

func NewCashbackStore(db *sql.DB) *CashbackStore {
	return &CashbackStore{db: db}
}

func scanClient(scanner interface{ Scan(...any) error }) (*model.Client, error) {
	var c model.Client
	err := scanner.Scan(&c.ID, &c.TeamID, &c.Name, &c.Document, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func scanSale(scanner interface{ Scan(...any) error }) (*model.Sale, error) {
	var s model.Sale
	err := scanner.Scan(&s.ID, &s.TeamID, &s.ClientID, &s.Total, &s.CaNumero, &s.CaCreatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func scanCashback(scanner interface{ Scan(...any) error }) (*model.Cashback, error) {
	var c model.Cashback
	err := scanner.Scan(&c.ID, &c.SaleID, &c.ClientID, &c.Amount, &c.UsedAmount, &c.ExpiresAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

const (
	clientCols   = `id, team_id, name, document, created_at`
	saleCols     = `id, team_id, client_id, total, ca_numero, ca_created_at`
	cashbackCols = `c.id, c.sale_id, c.client_id, c.amount, c.used_amount, c.expires_at`
)

func (s *CashbackStore) CreateClient(teamID int64, name, document string) (*model.Client, error) {
	result, err := s.db.Exec(
		`INSERT INTO clients (team_id, name, document) VALUES (?, ?, ?)`,
		teamID, strings.TrimSpace(name), strings.TrimSpace(document),
	)
	if err != nil {
		return nil, fmt.Errorf("insert client: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetClient(teamID, id)
}

// GetClient scopes the lookup to the team; a client of another team is
// reported as missing.
func (s *CashbackStore) GetClient(teamID, id int64) (*model.Client, error) {
	row := s.db.QueryRow(`SELECT `+clientCols+` FROM clients WHERE team_id = ? AND id = ?`, teamID, id)
	c, err := scanClient(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get client: %w", err)
	}
	return c, nil
}

// FindClientByDocument returns the team's client with document, or nil.
func (s *CashbackStore) FindClientByDocument(teamID int64, document string) (*model.Client, error) {
	row := s.db.QueryRow(
		`SELECT `+clientCols+` FROM clients WHERE team_id = ? AND document = ? ORDER BY id LIMIT 1`,
		teamID, strings.TrimSpace(document),
	)
	c, err := scanClient(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find client by document: %w", err)
	}
	return c, nil
}

// SaleExists reports whether the team already has a sale with caNumero.
func (s *CashbackStore) SaleExists(teamID int64, caNumero string) (bool, error) {
	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM sales WHERE team_id = ? AND ca_numero = ?`,
		teamID, caNumero,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check sale: %w", err)
	}
	return n > 0, nil
}

func (s *CashbackStore) ListClients(teamID int64) ([]model.Client, error) {
	rows, err := s.db.Query(`SELECT `+clientCols+` FROM clients WHERE team_id = ? ORDER BY name ASC, id ASC`, teamID)
	if err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	defer rows.Close()

	clients := []model.Client{}
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, fmt.Errorf("scan client: %w", err)
		}
		clients = append(clients, *c)
	}
	return clients, rows.Err()
}

// Fragment is a cashback credit to record with a sale.
type Fragment struct {
	Amount    float64
	ExpiresAt time.Time
}

// CreateSale records a sale with its cashback fragments.
func (s *CashbackStore) CreateSale(sale model.Sale, fragments []Fragment) (*model.SaleWithCashbacks, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(
		`INSERT INTO sales (team_id, client_id, total, ca_numero, ca_created_at) VALUES (?, ?, ?, ?, ?)`,
		sale.TeamID, sale.ClientID, sale.Total, sale.CaNumero, sale.CaCreatedAt.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert sale: %w", err)
	}
	saleID, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	for _, f := range fragments {
		if _, err := tx.Exec(
			`INSERT INTO cashbacks (sale_id, client_id, amount, expires_at) VALUES (?, ?, ?, ?)`,
			saleID, sale.ClientID, f.Amount, f.ExpiresAt.UTC(),
		); err != nil {
			return nil, fmt.Errorf("insert cashback: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	sales, err := s.listSales(`WHERE s.id = ?`, saleID)
	if err != nil {
		return nil, err
	}
	if len(sales) == 0 {
		return nil, fmt.Errorf("sale %d vanished after insert", saleID)
	}
	return &sales[0], nil
}

// ListSalesWithCashbacks returns the client's sales, newest first, each
// with its fragments in insertion order.
func (s *CashbackStore) ListSalesWithCashbacks(teamID, clientID int64) ([]model.SaleWithCashbacks, error) {
	return s.listSales(`WHERE s.team_id = ? AND s.client_id = ?`, teamID, clientID)
}

func (s *CashbackStore) listSales(where string, args ...any) ([]model.SaleWithCashbacks, error) {
	rows, err := s.db.Query(
		`SELECT s.id, s.team_id, s.client_id, s.total, s.ca_numero, s.ca_created_at
		 FROM sales s `+where+` ORDER BY s.ca_created_at DESC, s.id DESC`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("list sales: %w", err)
	}
	defer rows.Close()

	out := []model.SaleWithCashbacks{}
	index := make(map[int64]int)
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, fmt.Errorf("scan sale: %w", err)
		}
		index[sale.ID] = len(out)
		out = append(out, model.SaleWithCashbacks{Sale: *sale, Cashbacks: []model.Cashback{}})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return out, nil
	}

	cbRows, err := s.db.Query(
		`SELECT `+cashbackCols+` FROM cashbacks c
		 JOIN sales s ON s.id = c.sale_id `+where+` ORDER BY c.id ASC`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("list cashbacks: %w", err)
	}
	defer cbRows.Close()

	for cbRows.Next() {
		c, err := scanCashback(cbRows)
		if err != nil {
			return nil, fmt.Errorf("scan cashback: %w", err)
		}
		if i, ok := index[c.SaleID]; ok {
			out[i].Cashbacks = append(out[i].Cashbacks, *c)
		}
	}
	return out, cbRows.Err()
}

func listClientCashbacks(tx *sql.Tx, teamID, clientID int64) ([]model.Cashback, error) {
	rows, err := tx.Query(
		`SELECT `+cashbackCols+` FROM cashbacks c
		 JOIN sales s ON s.id = c.sale_id
		 WHERE s.team_id = ? AND c.client_id = ?
		 ORDER BY c.expires_at ASC, c.id ASC`,
		teamID, clientID,
	)
	if err != nil {
		return nil, fmt.Errorf("list client cashbacks: %w", err)
	}
	defer rows.Close()

	var cbs []model.Cashback
	for rows.Next() {
		c, err := scanCashback(rows)
		if err != nil {
			return nil, fmt.Errorf("scan cashback: %w", err)
		}
		cbs = append(cbs, *c)
	}
	return cbs, rows.Err()
}
