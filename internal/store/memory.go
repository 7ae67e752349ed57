package store

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/simplesurance/classportal/internal/portalerr"
)

var _ Gateway = &Memory{}

// Memory is an in-memory Gateway.
// Records are copied on read and write, modifying a returned record does not
// change the stored one.
type Memory struct {
	lock sync.RWMutex

	persons      map[string]*Person
	teams        map[string]*Team
	repositories map[string]*Repository
	deliverables map[string]*Deliverable
	grades       map[string]*Grade
	auths        map[string]*Auth
}

func NewMemory() *Memory {
	return &Memory{
		persons:      map[string]*Person{},
		teams:        map[string]*Team{},
		repositories: map[string]*Repository{},
		deliverables: map[string]*Deliverable{},
		grades:       map[string]*Grade{},
		auths:        map[string]*Auth{},
	}
}

func key(parts ...string) string {
	return strings.Join(parts, "/")
}

func notFound(kind, org, id string) error {
	return fmt.Errorf("%s %s/%s: %w", kind, org, id, portalerr.ErrNotFound)
}

func (p *Person) clone() *Person {
	c := *p
	c.Custom = p.Custom.Clone()
	return &c
}

func (t *Team) clone() *Team {
	c := *t
	c.Members = slices.Clone(t.Members)
	c.Custom = t.Custom.Clone()
	return &c
}

func (r *Repository) clone() *Repository {
	c := *r
	c.TeamIDs = slices.Clone(r.TeamIDs)
	c.Custom = r.Custom.Clone()
	return &c
}

func (d *Deliverable) clone() *Deliverable {
	c := *d
	return &c
}

func (g *Grade) clone() *Grade {
	c := *g
	c.Custom = g.Custom.Clone()
	return &c
}

func (m *Memory) GetPerson(_ context.Context, org, id string) (*Person, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()

	p, exists := m.persons[key(org, id)]
	if !exists {
		return nil, notFound("person", org, id)
	}

	return p.clone(), nil
}

func (m *Memory) CreatePerson(_ context.Context, p *Person) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	k := key(p.Org, p.ID)
	if _, exists := m.persons[k]; exists {
		return fmt.Errorf("person %s: %w", k, portalerr.ErrAlreadyExists)
	}

	m.persons[k] = p.clone()

	return nil
}

func (m *Memory) SavePerson(_ context.Context, p *Person) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	m.persons[key(p.Org, p.ID)] = p.clone()

	return nil
}

func (m *Memory) GetTeam(_ context.Context, org, id string) (*Team, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()

	t, exists := m.teams[key(org, id)]
	if !exists {
		return nil, notFound("team", org, id)
	}

	return t.clone(), nil
}

func (m *Memory) SaveTeam(_ context.Context, t *Team) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	m.teams[key(t.Org, t.ID)] = t.clone()

	return nil
}

func (m *Memory) GetRepository(_ context.Context, org, id string) (*Repository, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()

	r, exists := m.repositories[key(org, id)]
	if !exists {
		return nil, notFound("repository", org, id)
	}

	return r.clone(), nil
}

func (m *Memory) SaveRepository(_ context.Context, r *Repository) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	m.repositories[key(r.Org, r.ID)] = r.clone()

	return nil
}

func (m *Memory) GetDeliverable(_ context.Context, org, id string) (*Deliverable, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()

	d, exists := m.deliverables[key(org, id)]
	if !exists {
		return nil, notFound("deliverable", org, id)
	}

	return d.clone(), nil
}

// GetAllDeliverables returns the deliverables of the organization ordered
// by their ID.
func (m *Memory) GetAllDeliverables(_ context.Context, org string) ([]*Deliverable, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()

	var result []*Deliverable
	for _, d := range m.deliverables {
		if d.Org == org {
			result = append(result, d.clone())
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].ID < result[j].ID
	})

	return result, nil
}

func (m *Memory) SaveDeliverable(_ context.Context, d *Deliverable) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	m.deliverables[key(d.Org, d.ID)] = d.clone()

	return nil
}

func (m *Memory) GetGrade(_ context.Context, org, personID, delivID string) (*Grade, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()

	g, exists := m.grades[key(org, personID, delivID)]
	if !exists {
		return nil, notFound("grade", org, personID+"/"+delivID)
	}

	return g.clone(), nil
}

func (m *Memory) CreateOrUpdateGrade(_ context.Context, g *Grade) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	m.grades[key(g.Org, g.PersonID, g.DelivID)] = g.clone()

	return nil
}

func (m *Memory) WriteAuth(_ context.Context, a *Auth) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	c := *a
	m.auths[key(a.Org, a.PersonID)] = &c

	return nil
}
