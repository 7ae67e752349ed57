package pgstore

import (
	"time"

	"github.com/lib/pq"

	"github.com/simplesurance/classportal/internal/store"
)

type personRow struct {
	Org       string       `db:"org"`
	ID        string       `db:"id"`
	Kind      string       `db:"kind"`
	URL       string       `db:"url"`
	Custom    store.Custom `db:"custom"`
	CreatedAt time.Time    `db:"created_at"`
}

func newPersonRow(p *store.Person) *personRow {
	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	return &personRow{
		Org:       p.Org,
		ID:        p.ID,
		Kind:      string(p.Kind),
		URL:       p.URL,
		Custom:    p.Custom,
		CreatedAt: createdAt,
	}
}

func (r *personRow) toPerson() *store.Person {
	return &store.Person{
		Org:       r.Org,
		ID:        r.ID,
		Kind:      store.PersonKind(r.Kind),
		URL:       r.URL,
		Custom:    r.Custom,
		CreatedAt: r.CreatedAt,
	}
}

type teamRow struct {
	Org     string         `db:"org"`
	ID      string         `db:"id"`
	Members pq.StringArray `db:"members"`
	URL     string         `db:"url"`
	Custom  store.Custom   `db:"custom"`
}

func newTeamRow(t *store.Team) *teamRow {
	return &teamRow{
		Org:     t.Org,
		ID:      t.ID,
		Members: pq.StringArray(t.Members),
		URL:     t.URL,
		Custom:  t.Custom,
	}
}

func (r *teamRow) toTeam() *store.Team {
	return &store.Team{
		Org:     r.Org,
		ID:      r.ID,
		Members: []string(r.Members),
		URL:     r.URL,
		Custom:  r.Custom,
	}
}

type repositoryRow struct {
	Org     string         `db:"org"`
	ID      string         `db:"id"`
	URL     string         `db:"url"`
	TeamIDs pq.StringArray `db:"team_ids"`
	Custom  store.Custom   `db:"custom"`
}

func newRepositoryRow(r *store.Repository) *repositoryRow {
	return &repositoryRow{
		Org:     r.Org,
		ID:      r.ID,
		URL:     r.URL,
		TeamIDs: pq.StringArray(r.TeamIDs),
		Custom:  r.Custom,
	}
}

func (r *repositoryRow) toRepository() *store.Repository {
	return &store.Repository{
		Org:     r.Org,
		ID:      r.ID,
		URL:     r.URL,
		TeamIDs: []string(r.TeamIDs),
		Custom:  r.Custom,
	}
}

type deliverableRow struct {
	Org                 string    `db:"org"`
	ID                  string    `db:"id"`
	OpenTimestamp       time.Time `db:"open_timestamp"`
	CloseTimestamp      time.Time `db:"close_timestamp"`
	GradesReleased      bool      `db:"grades_released"`
	GradingDelaySeconds int64     `db:"grading_delay_seconds"`
	TeamMinSize         int       `db:"team_min_size"`
	TeamMaxSize         int       `db:"team_max_size"`
	StudentsFormTeams   bool      `db:"students_form_teams"`
	TemplateURL         string    `db:"template_url"`
}

func newDeliverableRow(d *store.Deliverable) *deliverableRow {
	return &deliverableRow{
		Org:                 d.Org,
		ID:                  d.ID,
		OpenTimestamp:       d.OpenTimestamp,
		CloseTimestamp:      d.CloseTimestamp,
		GradesReleased:      d.GradesReleased,
		GradingDelaySeconds: int64(d.GradingDelay / time.Second),
		TeamMinSize:         d.TeamMinSize,
		TeamMaxSize:         d.TeamMaxSize,
		StudentsFormTeams:   d.StudentsFormTeams,
		TemplateURL:         d.TemplateURL,
	}
}

func (r *deliverableRow) toDeliverable() *store.Deliverable {
	return &store.Deliverable{
		Org:               r.Org,
		ID:                r.ID,
		OpenTimestamp:     r.OpenTimestamp,
		CloseTimestamp:    r.CloseTimestamp,
		GradesReleased:    r.GradesReleased,
		GradingDelay:      time.Duration(r.GradingDelaySeconds) * time.Second,
		TeamMinSize:       r.TeamMinSize,
		TeamMaxSize:       r.TeamMaxSize,
		StudentsFormTeams: r.StudentsFormTeams,
		TemplateURL:       r.TemplateURL,
	}
}

type gradeRow struct {
	Org       string       `db:"org"`
	PersonID  string       `db:"person_id"`
	DelivID   string       `db:"deliv_id"`
	Score     float64      `db:"score"`
	Comment   string       `db:"comment"`
	URL       string       `db:"url"`
	Timestamp time.Time    `db:"timestamp"`
	Custom    store.Custom `db:"custom"`
}

func newGradeRow(g *store.Grade) *gradeRow {
	return &gradeRow{
		Org:       g.Org,
		PersonID:  g.PersonID,
		DelivID:   g.DelivID,
		Score:     g.Score,
		Comment:   g.Comment,
		URL:       g.URL,
		Timestamp: g.Timestamp,
		Custom:    g.Custom,
	}
}

func (r *gradeRow) toGrade() *store.Grade {
	return &store.Grade{
		Org:       r.Org,
		PersonID:  r.PersonID,
		DelivID:   r.DelivID,
		Score:     r.Score,
		Comment:   r.Comment,
		URL:       r.URL,
		Timestamp: r.Timestamp,
		Custom:    r.Custom,
	}
}
