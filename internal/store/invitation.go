package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kodix/kodix/internal/ability"
	"github.com/kodix/kodix/internal/model"
)

const InvitationTTL = 7 * 24 * time.Hour

var ErrAlreadyInvited = errors.New("email already invited")

type InvitationStore struct {
	db *sql.DB
}

func NewInvitationStore(db *sql.DB) *InvitationStore {
	return &InvitationStore{db: db}
}

func scanInvitation(scanner interface{ Scan(...any) error }) (*model.Invitation, error) {
	var inv model.Invitation
	err := scanner.Scan(
		&inv.ID, &inv.TeamID, &inv.Email, &inv.InvitedByID, &inv.CodeHash,
		&inv.Accepted, &inv.ExpiresAt, &inv.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

const invitationCols = `id, team_id, email, invited_by_id, code_hash, accepted, expires_at, created_at`

// Create stores an invitation for email with a fresh UUID. A pending
// invitation for the same team and email yields ErrAlreadyInvited.
func (s *InvitationStore) Create(teamID int64, email string, invitedByID int64, codeHash string) (*model.Invitation, error) {
	email = NormalizeEmail(email)

	var n int
	if err := s.db.QueryRow(
		`SELECT COUNT(*) FROM invitations WHERE team_id = ? AND email = ?`,
		teamID, email,
	).Scan(&n); err != nil {
		return nil, fmt.Errorf("check invitation: %w", err)
	}
	if n > 0 {
		return nil, ErrAlreadyInvited
	}

	id := uuid.NewString()
	_, err := s.db.Exec(
		`INSERT INTO invitations (id, team_id, email, invited_by_id, code_hash, expires_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, teamID, email, invitedByID, codeHash, time.Now().UTC().Add(InvitationTTL),
	)
	if err != nil {
		return nil, fmt.Errorf("insert invitation: %w", err)
	}
	return s.GetByID(id)
}

func (s *InvitationStore) GetByID(id string) (*model.Invitation, error) {
	row := s.db.QueryRow(`SELECT `+invitationCols+` FROM invitations WHERE id = ?`, id)
	inv, err := scanInvitation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get invitation: %w", err)
	}
	return inv, nil
}

func (s *InvitationStore) ListByTeam(teamID int64) ([]model.Invitation, error) {
	return s.list(`SELECT `+invitationCols+` FROM invitations WHERE team_id = ? ORDER BY created_at ASC, email ASC`, teamID)
}

// ListPendingByEmail returns unexpired invitations addressed to email.
func (s *InvitationStore) ListPendingByEmail(email string) ([]model.Invitation, error) {
	return s.list(
		`SELECT `+invitationCols+` FROM invitations WHERE email = ? AND accepted = 0 AND expires_at > ? ORDER BY created_at ASC`,
		NormalizeEmail(email), time.Now().UTC(),
	)
}

func (s *InvitationStore) list(query string, args ...any) ([]model.Invitation, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list invitations: %w", err)
	}
	defer rows.Close()

	var invs []model.Invitation
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan invitation: %w", err)
		}
		invs = append(invs, *inv)
	}
	return invs, rows.Err()
}

// Accept adds userID to the invitation's team with the USER team role and
// removes the invitation.
func (s *InvitationStore) Accept(id string, userID int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	inv, err := scanInvitation(tx.QueryRow(`SELECT `+invitationCols+` FROM invitations WHERE id = ?`, id))
	if err != nil {
		return fmt.Errorf("read invitation: %w", err)
	}

	if _, err := tx.Exec(`UPDATE invitations SET accepted = 1 WHERE id = ?`, id); err != nil {
		return fmt.Errorf("mark invitation accepted: %w", err)
	}
	roles := map[ability.App][]ability.Role{ability.AppTeam: {ability.RoleUser}}
	if err := addMember(tx, inv.TeamID, userID, roles); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM invitations WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete invitation: %w", err)
	}
	return tx.Commit()
}

func (s *InvitationStore) Delete(id string) error {
	_, err := s.db.Exec(`DELETE FROM invitations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete invitation: %w", err)
	}
	return nil
}

func (s *InvitationStore) DeleteExpired() (int64, error) {
	result, err := s.db.Exec(`DELETE FROM invitations WHERE expires_at <= ?`, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("delete expired invitations: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return count, nil
}
