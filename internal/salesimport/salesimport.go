// Package salesimport loads sales and their cashback credit from the CSV
// export of the point-of-sale system.
package salesimport

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/kodix/kodix/internal/model"
	"github.com/kodix/kodix/internal/store"
)

// Columns expected in the header row, in any order.
var Columns = []string{"client_name", "document", "ca_numero", "date", "total", "cashback", "expires_at"}

var ErrMissingColumn = errors.New("missing column")

// Store is the subset of the cashback store an import needs.
type Store interface {
	FindClientByDocument(teamID int64, document string) (*model.Client, error)
	CreateClient(teamID int64, name, document string) (*model.Client, error)
	SaleExists(teamID int64, caNumero string) (bool, error)
	CreateSale(sale model.Sale, fragments []store.Fragment) (*model.SaleWithCashbacks, error)
}

// Result counts what an import did.
type Result struct {
	Sales          int
	Skipped        int
	ClientsCreated int
}

// RowError reports a malformed line. Line numbers count the header as 1.
type RowError struct {
	Line int
	Err  error
}

func (e *RowError) Error() string { return fmt.Sprintf("line %d: %v", e.Line, e.Err) }

func (e *RowError) Unwrap() error { return e.Err }

// Import reads r and records each row as a sale of teamID. Clients are
// matched by document and created on first sight. Rows whose ca_numero is
// already imported are skipped. Dates without a zone are read in loc.
func Import(r io.Reader, s Store, teamID int64, loc *time.Location) (Result, error) {
	var res Result
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return res, fmt.Errorf("read header: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, c := range Columns {
		if _, ok := idx[c]; !ok {
			return res, fmt.Errorf("%w: %s", ErrMissingColumn, c)
		}
	}

	clients := make(map[string]*model.Client)
	line := 1
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			return res, nil
		}
		line++
		if err != nil {
			return res, &RowError{Line: line, Err: err}
		}
		get := func(col string) string { return strings.TrimSpace(rec[idx[col]]) }

		row, err := parseRow(get, loc)
		if err != nil {
			return res, &RowError{Line: line, Err: err}
		}

		exists, err := s.SaleExists(teamID, row.caNumero)
		if err != nil {
			return res, err
		}
		if exists {
			res.Skipped++
			continue
		}

		client, ok := clients[row.document]
		if !ok {
			client, err = s.FindClientByDocument(teamID, row.document)
			if err != nil {
				return res, err
			}
			if client == nil {
				client, err = s.CreateClient(teamID, row.clientName, row.document)
				if err != nil {
					return res, err
				}
				res.ClientsCreated++
			}
			clients[row.document] = client
		}

		var frags []store.Fragment
		if row.cashback > 0 {
			frags = append(frags, store.Fragment{Amount: row.cashback, ExpiresAt: row.expiresAt})
		}
		sale := model.Sale{TeamID: teamID, ClientID: client.ID, Total: row.total, CaNumero: row.caNumero, CaCreatedAt: row.date}
		if _, err := s.CreateSale(sale, frags); err != nil {
			return res, err
		}
		res.Sales++
	}
}

type row struct {
	clientName string
	document   string
	caNumero   string
	date       time.Time
	total      float64
	cashback   float64
	expiresAt  time.Time
}

func parseRow(get func(string) string, loc *time.Location) (row, error) {
	r := row{
		clientName: get("client_name"),
		document:   get("document"),
		caNumero:   get("ca_numero"),
	}
	if r.clientName == "" || r.document == "" || r.caNumero == "" {
		return r, errors.New("client_name, document and ca_numero are required")
	}

	var err error
	if r.date, err = parseTime(get("date"), loc); err != nil {
		return r, fmt.Errorf("date: %w", err)
	}
	if r.total, err = parseAmount(get("total")); err != nil {
		return r, fmt.Errorf("total: %w", err)
	}
	if r.cashback, err = parseAmount(get("cashback")); err != nil {
		return r, fmt.Errorf("cashback: %w", err)
	}
	if r.cashback > 0 {
		if r.expiresAt, err = parseTime(get("expires_at"), loc); err != nil {
			return r, fmt.Errorf("expires_at: %w", err)
		}
	}
	return r, nil
}

func parseTime(s string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	for _, layout := range []string{"2006-01-02 15:04:05", "2006-01-02", "02/01/2006"} {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// parseAmount accepts "1234.56" and the Brazilian "1.234,56".
func parseAmount(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	if strings.Contains(s, ",") {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("invalid amount %v", v)
	}
	return v, nil
}
