package store

import (
	"database/sql"
	"fmt"

	"github.com/kodix/kodix/internal/ability"
	"github.com/kodix/kodix/internal/model"
)

// PersonalTeamName is the name given to the team created at signup.
const PersonalTeamName = "Personal Team"

type TeamStore struct {
	db *sql.DB
}

func NewTeamStore(db *sql.DB) *TeamStore {
	return &TeamStore{db: db}
}

func scanTeam(scanner interface{ Scan(...any) error }) (*model.Team, error) {
	var t model.Team
	err := scanner.Scan(&t.ID, &t.Name, &t.OwnerID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

const teamCols = `id, name, owner_id, created_at, updated_at`

// Signup creates a user together with their personal team. The user owns
// the team and holds ADMIN in every app. Everything happens in one
// transaction.
func (s *TeamStore) Signup(email, name string) (*model.User, *model.Team, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRow(`SELECT COUNT(*) FROM users WHERE email = ?`, NormalizeEmail(email)).Scan(&exists)
	if err != nil {
		return nil, nil, fmt.Errorf("check email: %w", err)
	}
	if exists > 0 {
		return nil, nil, ErrEmailTaken
	}

	userID, err := insertUser(tx, email, name)
	if err != nil {
		return nil, nil, err
	}
	teamID, err := createTeam(tx, userID, PersonalTeamName)
	if err != nil {
		return nil, nil, err
	}

	u, err := scanUser(tx.QueryRow(`SELECT `+userCols+` FROM users WHERE id = ?`, userID))
	if err != nil {
		return nil, nil, fmt.Errorf("read user: %w", err)
	}
	t, err := scanTeam(tx.QueryRow(`SELECT `+teamCols+` FROM teams WHERE id = ?`, teamID))
	if err != nil {
		return nil, nil, fmt.Errorf("read team: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("commit: %w", err)
	}
	return u, t, nil
}

// Create makes a new team owned by ownerID, who becomes its first member
// with ADMIN in every app.
func (s *TeamStore) Create(ownerID int64, name string) (*model.Team, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	id, err := createTeam(tx, ownerID, name)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return s.GetByID(id)
}

func createTeam(tx *sql.Tx, ownerID int64, name string) (int64, error) {
	result, err := tx.Exec(`INSERT INTO teams (name, owner_id) VALUES (?, ?)`, name, ownerID)
	if err != nil {
		return 0, fmt.Errorf("insert team: %w", err)
	}
	teamID, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}

	admin := make(map[ability.App][]ability.Role)
	for _, app := range ability.Apps() {
		admin[app] = []ability.Role{ability.RoleAdmin}
	}
	if err := addMember(tx, teamID, ownerID, admin); err != nil {
		return 0, err
	}
	return teamID, nil
}

func (s *TeamStore) GetByID(id int64) (*model.Team, error) {
	row := s.db.QueryRow(`SELECT `+teamCols+` FROM teams WHERE id = ?`, id)
	t, err := scanTeam(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get team: %w", err)
	}
	return t, nil
}

func (s *TeamStore) Rename(id int64, name string) (*model.Team, error) {
	_, err := s.db.Exec(`UPDATE teams SET name = ? WHERE id = ?`, name, id)
	if err != nil {
		return nil, fmt.Errorf("rename team: %w", err)
	}
	return s.GetByID(id)
}

func (s *TeamStore) ListForUser(userID int64) ([]model.Team, error) {
	rows, err := s.db.Query(
		`SELECT t.id, t.name, t.owner_id, t.created_at, t.updated_at
		 FROM teams t
		 JOIN team_members tm ON t.id = tm.team_id
		 WHERE tm.user_id = ?
		 ORDER BY t.name ASC, t.id ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list teams for user: %w", err)
	}
	defer rows.Close()

	var teams []model.Team
	for rows.Next() {
		t, err := scanTeam(rows)
		if err != nil {
			return nil, fmt.Errorf("scan team: %w", err)
		}
		teams = append(teams, *t)
	}
	return teams, rows.Err()
}

// ListIDs returns every team ID. Used by batch jobs.
func (s *TeamStore) ListIDs() ([]int64, error) {
	rows, err := s.db.Query(`SELECT id FROM teams ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list team ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan team id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *TeamStore) IsMember(teamID, userID int64) (bool, error) {
	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM team_members WHERE team_id = ? AND user_id = ?`,
		teamID, userID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check membership: %w", err)
	}
	return n > 0, nil
}

func (s *TeamStore) IsMemberByEmail(teamID int64, email string) (bool, error) {
	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM team_members tm
		 JOIN users u ON u.id = tm.user_id
		 WHERE tm.team_id = ? AND u.email = ?`,
		teamID, NormalizeEmail(email),
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check membership by email: %w", err)
	}
	return n > 0, nil
}

const memberSelect = `SELECT tm.team_id, tm.user_id, u.email, u.name, tm.created_at
	 FROM team_members tm
	 JOIN users u ON u.id = tm.user_id`

func scanMember(scanner interface{ Scan(...any) error }) (*model.TeamMember, error) {
	var m model.TeamMember
	err := scanner.Scan(&m.TeamID, &m.UserID, &m.Email, &m.Name, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	m.Roles = make(map[string][]string)
	return &m, nil
}

func (s *TeamStore) GetMember(teamID, userID int64) (*model.TeamMember, error) {
	row := s.db.QueryRow(memberSelect+` WHERE tm.team_id = ? AND tm.user_id = ?`, teamID, userID)
	m, err := scanMember(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get member: %w", err)
	}

	roles, err := s.Roles(teamID, userID)
	if err != nil {
		return nil, err
	}
	for app, rs := range roles {
		for _, r := range rs {
			m.Roles[string(app)] = append(m.Roles[string(app)], string(r))
		}
	}
	return m, nil
}

// ListMembers returns the team's members with their per-app roles, oldest
// membership first.
func (s *TeamStore) ListMembers(teamID int64) ([]model.TeamMember, error) {
	rows, err := s.db.Query(memberSelect+` WHERE tm.team_id = ? ORDER BY tm.created_at ASC, tm.user_id ASC`, teamID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var members []model.TeamMember
	index := make(map[int64]int)
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		index[m.UserID] = len(members)
		members = append(members, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	roleRows, err := s.db.Query(
		`SELECT user_id, app_id, role FROM team_app_roles WHERE team_id = ? ORDER BY app_id, role`,
		teamID,
	)
	if err != nil {
		return nil, fmt.Errorf("list member roles: %w", err)
	}
	defer roleRows.Close()

	for roleRows.Next() {
		var userID int64
		var app, role string
		if err := roleRows.Scan(&userID, &app, &role); err != nil {
			return nil, fmt.Errorf("scan member role: %w", err)
		}
		i, ok := index[userID]
		if !ok {
			continue
		}
		members[i].Roles[app] = append(members[i].Roles[app], role)
	}
	return members, roleRows.Err()
}

// AddMember adds userID to the team with the given roles.
func (s *TeamStore) AddMember(teamID, userID int64, roles map[ability.App][]ability.Role) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := addMember(tx, teamID, userID, roles); err != nil {
		return err
	}
	return tx.Commit()
}

func addMember(tx *sql.Tx, teamID, userID int64, roles map[ability.App][]ability.Role) error {
	var n int
	if err := tx.QueryRow(
		`SELECT COUNT(*) FROM team_members WHERE team_id = ? AND user_id = ?`,
		teamID, userID,
	).Scan(&n); err != nil {
		return fmt.Errorf("check membership: %w", err)
	}
	if n > 0 {
		return ErrAlreadyMember
	}

	if _, err := tx.Exec(
		`INSERT INTO team_members (team_id, user_id) VALUES (?, ?)`,
		teamID, userID,
	); err != nil {
		return fmt.Errorf("add member: %w", err)
	}
	for app, rs := range roles {
		if err := insertRoles(tx, teamID, userID, app, rs); err != nil {
			return err
		}
	}
	return nil
}

// RemoveMember drops the membership and every app role the user held in
// the team. Sessions pointing at the team are revoked.
func (s *TeamStore) RemoveMember(teamID, userID int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`DELETE FROM team_app_roles WHERE team_id = ? AND user_id = ?`,
		teamID, userID,
	); err != nil {
		return fmt.Errorf("remove member roles: %w", err)
	}
	result, err := tx.Exec(
		`DELETE FROM team_members WHERE team_id = ? AND user_id = ?`,
		teamID, userID,
	)
	if err != nil {
		return fmt.Errorf("remove member: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotMember
	}
	if _, err := tx.Exec(
		`DELETE FROM sessions WHERE team_id = ? AND user_id = ?`,
		teamID, userID,
	); err != nil {
		return fmt.Errorf("revoke member sessions: %w", err)
	}
	return tx.Commit()
}

// Roles returns every app role userID holds in the team.
func (s *TeamStore) Roles(teamID, userID int64) (map[ability.App][]ability.Role, error) {
	rows, err := s.db.Query(
		`SELECT app_id, role FROM team_app_roles WHERE team_id = ? AND user_id = ? ORDER BY app_id, role`,
		teamID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	defer rows.Close()

	roles := make(map[ability.App][]ability.Role)
	for rows.Next() {
		var app, role string
		if err := rows.Scan(&app, &role); err != nil {
			return nil, fmt.Errorf("scan role: %w", err)
		}
		roles[ability.App(app)] = append(roles[ability.App(app)], ability.Role(role))
	}
	return roles, rows.Err()
}

// SetRoles replaces the user's roles in one app.
func (s *TeamStore) SetRoles(teamID, userID int64, app ability.App, roles []ability.Role) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var n int
	if err := tx.QueryRow(
		`SELECT COUNT(*) FROM team_members WHERE team_id = ? AND user_id = ?`,
		teamID, userID,
	).Scan(&n); err != nil {
		return fmt.Errorf("check membership: %w", err)
	}
	if n == 0 {
		return ErrNotMember
	}

	if _, err := tx.Exec(
		`DELETE FROM team_app_roles WHERE team_id = ? AND user_id = ? AND app_id = ?`,
		teamID, userID, string(app),
	); err != nil {
		return fmt.Errorf("clear roles: %w", err)
	}
	if err := insertRoles(tx, teamID, userID, app, roles); err != nil {
		return err
	}
	return tx.Commit()
}

func insertRoles(tx *sql.Tx, teamID, userID int64, app ability.App, roles []ability.Role) error {
	for _, r := range roles {
		if _, err := tx.Exec(
			`INSERT OR IGNORE INTO team_app_roles (team_id, user_id, app_id, role) VALUES (?, ?, ?, ?)`,
			teamID, userID, string(app), string(r),
		); err != nil {
			return fmt.Errorf("insert role %s/%s: %w", app, r, err)
		}
	}
	return nil
}
