// Package pgstore implements store.Gateway on PostgreSQL.
package pgstore

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // registers the postgres driver

	"github.com/simplesurance/classportal/internal/portalerr"
	"github.com/simplesurance/classportal/internal/store"
)

//go:embed schema.sql
var schema string

var _ store.Gateway = &Store{}

// Store persists course records in PostgreSQL.
type Store struct {
	db *sqlx.DB
}

// New returns a Store that uses db.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Open connects to the database at dsn.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	return New(db), nil
}

// Migrate creates missing tables.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}

	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func wrapGetErr(err error, kind, org, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %s/%s: %w", kind, org, id, portalerr.ErrNotFound)
	}

	return fmt.Errorf("get %s %s/%s: %w", kind, org, id, err)
}

func (s *Store) GetPerson(ctx context.Context, org, id string) (*store.Person, error) {
	const query = `SELECT org, id, kind, url, custom, created_at FROM persons WHERE org = $1 AND id = $2`

	var row personRow
	if err := s.db.GetContext(ctx, &row, query, org, id); err != nil {
		return nil, wrapGetErr(err, "person", org, id)
	}

	return row.toPerson(), nil
}

func (s *Store) CreatePerson(ctx context.Context, p *store.Person) error {
	const query = `INSERT INTO persons (org, id, kind, url, custom, created_at)
        VALUES (:org, :id, :kind, :url, :custom, :created_at)
        ON CONFLICT (org, id) DO NOTHING`

	res, err := s.db.NamedExecContext(ctx, query, newPersonRow(p))
	if err != nil {
		return fmt.Errorf("create person: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("create person: %w", err)
	}

	if affected == 0 {
		return fmt.Errorf("person %s/%s: %w", p.Org, p.ID, portalerr.ErrAlreadyExists)
	}

	return nil
}

func (s *Store) SavePerson(ctx context.Context, p *store.Person) error {
	const query = `INSERT INTO persons (org, id, kind, url, custom, created_at)
        VALUES (:org, :id, :kind, :url, :custom, :created_at)
        ON CONFLICT (org, id)
        DO UPDATE SET kind = EXCLUDED.kind, url = EXCLUDED.url, custom = EXCLUDED.custom`

	if _, err := s.db.NamedExecContext(ctx, query, newPersonRow(p)); err != nil {
		return fmt.Errorf("save person: %w", err)
	}

	return nil
}

func (s *Store) GetTeam(ctx context.Context, org, id string) (*store.Team, error) {
	const query = `SELECT org, id, members, url, custom FROM teams WHERE org = $1 AND id = $2`

	var row teamRow
	if err := s.db.GetContext(ctx, &row, query, org, id); err != nil {
		return nil, wrapGetErr(err, "team", org, id)
	}

	return row.toTeam(), nil
}

func (s *Store) SaveTeam(ctx context.Context, t *store.Team) error {
	const query = `INSERT INTO teams (org, id, members, url, custom)
        VALUES (:org, :id, :members, :url, :custom)
        ON CONFLICT (org, id)
        DO UPDATE SET members = EXCLUDED.members, url = EXCLUDED.url, custom = EXCLUDED.custom`

	if _, err := s.db.NamedExecContext(ctx, query, newTeamRow(t)); err != nil {
		return fmt.Errorf("save team: %w", err)
	}

	return nil
}

func (s *Store) GetRepository(ctx context.Context, org, id string) (*store.Repository, error) {
	const query = `SELECT org, id, url, team_ids, custom FROM repositories WHERE org = $1 AND id = $2`

	var row repositoryRow
	if err := s.db.GetContext(ctx, &row, query, org, id); err != nil {
		return nil, wrapGetErr(err, "repository", org, id)
	}

	return row.toRepository(), nil
}

func (s *Store) SaveRepository(ctx context.Context, r *store.Repository) error {
	const query = `INSERT INTO repositories (org, id, url, team_ids, custom)
        VALUES (:org, :id, :url, :team_ids, :custom)
        ON CONFLICT (org, id)
        DO UPDATE SET url = EXCLUDED.url, team_ids = EXCLUDED.team_ids, custom = EXCLUDED.custom`

	if _, err := s.db.NamedExecContext(ctx, query, newRepositoryRow(r)); err != nil {
		return fmt.Errorf("save repository: %w", err)
	}

	return nil
}

const deliverableColumns = `org, id, open_timestamp, close_timestamp, grades_released, grading_delay_seconds,
        team_min_size, team_max_size, students_form_teams, template_url`

func (s *Store) GetDeliverable(ctx context.Context, org, id string) (*store.Deliverable, error) {
	query := `SELECT ` + deliverableColumns + ` FROM deliverables WHERE org = $1 AND id = $2`

	var row deliverableRow
	if err := s.db.GetContext(ctx, &row, query, org, id); err != nil {
		return nil, wrapGetErr(err, "deliverable", org, id)
	}

	return row.toDeliverable(), nil
}

// GetAllDeliverables returns the deliverables of the organization ordered
// by their ID.
func (s *Store) GetAllDeliverables(ctx context.Context, org string) ([]*store.Deliverable, error) {
	query := `SELECT ` + deliverableColumns + ` FROM deliverables WHERE org = $1 ORDER BY id`

	var rows []deliverableRow
	if err := s.db.SelectContext(ctx, &rows, query, org); err != nil {
		return nil, fmt.Errorf("list deliverables: %w", err)
	}

	result := make([]*store.Deliverable, 0, len(rows))
	for i := range rows {
		result = append(result, rows[i].toDeliverable())
	}

	return result, nil
}

func (s *Store) SaveDeliverable(ctx context.Context, d *store.Deliverable) error {
	const query = `INSERT INTO deliverables (org, id, open_timestamp, close_timestamp, grades_released, grading_delay_seconds,
        team_min_size, team_max_size, students_form_teams, template_url)
        VALUES (:org, :id, :open_timestamp, :close_timestamp, :grades_released, :grading_delay_seconds,
        :team_min_size, :team_max_size, :students_form_teams, :template_url)
        ON CONFLICT (org, id)
        DO UPDATE SET open_timestamp = EXCLUDED.open_timestamp, close_timestamp = EXCLUDED.close_timestamp,
        grades_released = EXCLUDED.grades_released, grading_delay_seconds = EXCLUDED.grading_delay_seconds,
        team_min_size = EXCLUDED.team_min_size, team_max_size = EXCLUDED.team_max_size,
        students_form_teams = EXCLUDED.students_form_teams, template_url = EXCLUDED.template_url`

	if _, err := s.db.NamedExecContext(ctx, query, newDeliverableRow(d)); err != nil {
		return fmt.Errorf("save deliverable: %w", err)
	}

	return nil
}

func (s *Store) GetGrade(ctx context.Context, org, personID, delivID string) (*store.Grade, error) {
	const query = `SELECT org, person_id, deliv_id, score, comment, url, timestamp, custom
        FROM grades WHERE org = $1 AND person_id = $2 AND deliv_id = $3`

	var row gradeRow
	if err := s.db.GetContext(ctx, &row, query, org, personID, delivID); err != nil {
		return nil, wrapGetErr(err, "grade", org, personID+"/"+delivID)
	}

	return row.toGrade(), nil
}

func (s *Store) CreateOrUpdateGrade(ctx context.Context, g *store.Grade) error {
	const query = `INSERT INTO grades (org, person_id, deliv_id, score, comment, url, timestamp, custom)
        VALUES (:org, :person_id, :deliv_id, :score, :comment, :url, :timestamp, :custom)
        ON CONFLICT (org, person_id, deliv_id)
        DO UPDATE SET score = EXCLUDED.score, comment = EXCLUDED.comment, url = EXCLUDED.url,
        timestamp = EXCLUDED.timestamp, custom = EXCLUDED.custom`

	if _, err := s.db.NamedExecContext(ctx, query, newGradeRow(g)); err != nil {
		return fmt.Errorf("save grade: %w", err)
	}

	return nil
}

func (s *Store) WriteAuth(ctx context.Context, a *store.Auth) error {
	const query = `INSERT INTO auths (org, person_id, token) VALUES ($1, $2, $3)
        ON CONFLICT (org, person_id) DO UPDATE SET token = EXCLUDED.token`

	if _, err := s.db.ExecContext(ctx, query, a.Org, a.PersonID, a.Token); err != nil {
		return fmt.Errorf("write auth: %w", err)
	}

	return nil
}
