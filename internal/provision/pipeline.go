package provision

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/simplesurance/classportal/internal/githubclt"
	"github.com/simplesurance/classportal/internal/logfields"
	"github.com/simplesurance/classportal/internal/portalerr"
	"github.com/simplesurance/classportal/internal/store"
)

// pipeline converges the remote state of one team to the desired state.
// Its steps run sequentially, every step is an idempotent ensure operation
// that relies on the results of the previous steps.
type pipeline struct {
	engine *Engine
	req    *request
	logger *zap.Logger

	members []string

	team          *githubclt.Team
	remoteMembers []string
	repo          *store.Repository
}

type step struct {
	name string
	fn   func(context.Context) error
}

func (p *pipeline) steps() []step {
	return []step{
		{"ensure_team", p.ensureTeam},
		{"ensure_members", p.ensureMembers},
		{"ensure_repository", p.ensureRepo},
		{"seed_content", p.seedContent},
		{"ensure_permissions", p.ensurePermissions},
		{"ensure_webhook", p.ensureWebhook},
	}
}

// run executes all steps, it stops at the first failing step.
func (p *pipeline) run(ctx context.Context) error {
	for _, s := range p.steps() {
		logger := p.logger.With(logfields.Step(s.name))
		start := time.Now()

		err := s.fn(ctx)
		metrics.StepDuration(s.name, time.Since(start))

		if err != nil {
			logger.Info(
				"provisioning step failed",
				logfields.Event("provisioning_step_failed"),
				zap.Error(err),
			)

			return fmt.Errorf("%s: %w", s.name, err)
		}

		logger.Debug(
			"provisioning step succeeded",
			logfields.Event("provisioning_step_succeeded"),
			zap.Duration("duration", time.Since(start)),
		)
	}

	return nil
}

// ensureTeam ensures that the team exists.
// If the team exists and has members that were not requested, the team is
// blocked.
func (p *pipeline) ensureTeam(ctx context.Context) error {
	org, name := p.req.org, p.req.teamName

	team, err := p.engine.remote.FindTeam(ctx, org, name)
	if err != nil {
		return err
	}

	if team == nil {
		team, err = p.engine.remote.CreateTeam(ctx, org, name, teamPermission)
		if err != nil {
			return err
		}

		p.team = team
		return nil
	}

	members, err := p.engine.remote.TeamMembers(ctx, team)
	if err != nil {
		return err
	}

	members = p.engine.withoutIgnoredMembers(members)

	var foreign []string
	for _, m := range members {
		if !slices.Contains(p.members, m) {
			foreign = append(foreign, m)
		}
	}

	if len(foreign) > 0 {
		p.logger.Warn(
			"remote team has unexpected members, blocking team",
			logfields.Event("provisioning_team_blocked"),
			zap.Strings("unexpected_members", foreign),
		)

		return fmt.Errorf("team %s has unexpected members %v: %w", name, foreign, portalerr.ErrBlocked)
	}

	p.team = team
	p.remoteMembers = members

	return nil
}

func (p *pipeline) ensureMembers(ctx context.Context) error {
	var missing []string

	for _, m := range p.members {
		if !slices.Contains(p.remoteMembers, m) {
			missing = append(missing, m)
		}
	}

	if len(missing) == 0 {
		return nil
	}

	_, err := p.engine.remote.AddMembersToTeam(ctx, p.team, missing)
	return err
}

// ensureRepo ensures that the repository exists and records it.
func (p *pipeline) ensureRepo(ctx context.Context) error {
	org, name := p.req.org, p.req.repoName

	url, err := p.engine.remote.CreateRepo(ctx, org, name)
	if err != nil {
		return err
	}

	repo, err := p.engine.gateway.GetRepository(ctx, org, name)
	if err != nil {
		if !errors.Is(err, portalerr.ErrNotFound) {
			return fmt.Errorf("loading repository record failed: %w", err)
		}

		repo = &store.Repository{
			ID:     name,
			Org:    org,
			Custom: store.Custom{},
		}
	}

	repo.URL = url
	if !slices.Contains(repo.TeamIDs, p.req.teamName) {
		repo.TeamIDs = append(repo.TeamIDs, p.req.teamName)
	}

	if err := p.engine.gateway.SaveRepository(ctx, repo); err != nil {
		return fmt.Errorf("saving repository record failed: %w", err)
	}

	p.repo = repo

	return nil
}

// seedContent imports the template of the stage into the repository.
// The import happens only once, afterwards the repository might contain
// work of the team that must not be overwritten.
func (p *pipeline) seedContent(ctx context.Context) error {
	templateURL := p.req.deliverable.TemplateURL
	if templateURL == "" {
		return nil
	}

	if contentImported(p.repo) {
		p.logger.Debug(
			"repository content was already imported",
			logfields.Event("provisioning_content_import_skipped"),
		)
		return nil
	}

	_, err := p.engine.remote.ImportRepoFS(ctx, p.req.org, templateURL, p.repo.URL)
	if err != nil {
		return err
	}

	setContentImported(p.repo)

	if err := p.engine.gateway.SaveRepository(ctx, p.repo); err != nil {
		return fmt.Errorf("saving repository record failed: %w", err)
	}

	return nil
}

// ensurePermissions grants the team write and the staff team admin
// permissions on the repository.
func (p *pipeline) ensurePermissions(ctx context.Context) error {
	_, err := p.engine.remote.AddTeamToRepo(ctx, p.team, p.req.repoName, teamPermission)
	if err != nil {
		return err
	}

	staffTeamName := p.engine.cfg.StaffTeam
	if staffTeamName == "" {
		return nil
	}

	staffTeam, err := p.engine.remote.FindTeam(ctx, p.req.org, staffTeamName)
	if err != nil {
		return err
	}

	if staffTeam == nil {
		return portalerr.NewPermanentError(fmt.Errorf("staff team %q does not exist", staffTeamName))
	}

	_, err = p.engine.remote.AddTeamToRepo(ctx, staffTeam, p.req.repoName, staffPermission)
	return err
}

func (p *pipeline) ensureWebhook(ctx context.Context) error {
	hookURL := p.engine.cfg.WebhookURL
	if hookURL == "" {
		return nil
	}

	hooks, err := p.engine.remote.ListWebhooks(ctx, p.req.org, p.req.repoName)
	if err != nil {
		return err
	}

	for _, h := range hooks {
		if h.URL == hookURL {
			return nil
		}
	}

	_, err = p.engine.remote.AddWebhook(ctx, p.req.org, p.req.repoName, hookURL)
	return err
}
