package provision

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/simplesurance/classportal/internal/logfields"
	"github.com/simplesurance/classportal/internal/portalerr"
	"github.com/simplesurance/classportal/internal/store"
)

// SeedDeliverables stores the deliverables that do not exist in the gateway.
// Existing deliverables are not modified, they are immutable once
// provisioning for them started.
// The number of created deliverables is returned.
func SeedDeliverables(ctx context.Context, gateway store.Gateway, delivs []*store.Deliverable) (int, error) {
	logger := zap.L().Named(loggerName)

	var created int

	for _, d := range delivs {
		existing, err := gateway.GetDeliverable(ctx, d.Org, d.ID)
		if err == nil {
			if existing.TeamMinSize != d.TeamMinSize || existing.TeamMaxSize != d.TeamMaxSize ||
				existing.TemplateURL != d.TemplateURL || existing.StudentsFormTeams != d.StudentsFormTeams {
				logger.Warn(
					"configured stage differs from the stored deliverable, keeping stored deliverable",
					logfields.Event("deliverable_config_mismatch"),
					logfields.Org(d.Org),
					logfields.Stage(d.ID),
				)
			}

			continue
		}

		if !errors.Is(err, portalerr.ErrNotFound) {
			return created, fmt.Errorf("loading deliverable %s/%s failed: %w", d.Org, d.ID, err)
		}

		if err := gateway.SaveDeliverable(ctx, d); err != nil {
			return created, fmt.Errorf("saving deliverable %s/%s failed: %w", d.Org, d.ID, err)
		}

		created++

		logger.Info(
			"deliverable created",
			logfields.Event("deliverable_created"),
			logfields.Org(d.Org),
			logfields.Stage(d.ID),
		)
	}

	return created, nil
}
