// Package store provides persistence of course records.
package store

import (
	"context"
)

// Gateway persists course records.
// Get operations return an error wrapping portalerr.ErrNotFound when the
// record does not exist.
// Save operations create the record or replace an existing one.
// Implementations serialize concurrent writes to the same record.
type Gateway interface {
	GetPerson(ctx context.Context, org, id string) (*Person, error)
	// CreatePerson fails with an error wrapping portalerr.ErrAlreadyExists
	// if the person exists.
	CreatePerson(ctx context.Context, p *Person) error
	SavePerson(ctx context.Context, p *Person) error

	GetTeam(ctx context.Context, org, id string) (*Team, error)
	SaveTeam(ctx context.Context, t *Team) error

	GetRepository(ctx context.Context, org, id string) (*Repository, error)
	SaveRepository(ctx context.Context, r *Repository) error

	GetDeliverable(ctx context.Context, org, id string) (*Deliverable, error)
	GetAllDeliverables(ctx context.Context, org string) ([]*Deliverable, error)
	SaveDeliverable(ctx context.Context, d *Deliverable) error

	GetGrade(ctx context.Context, org, personID, delivID string) (*Grade, error)
	CreateOrUpdateGrade(ctx context.Context, g *Grade) error

	WriteAuth(ctx context.Context, a *Auth) error
}
