// Package provision implements the provisioning of github teams and
// repositories for the stages of a course and tracks the progress of teams
// through the stages.
package provision

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/simplesurance/classportal/internal/githubclt"
	"github.com/simplesurance/classportal/internal/logfields"
	"github.com/simplesurance/classportal/internal/portalerr"
	"github.com/simplesurance/classportal/internal/store"
)

const loggerName = "provision_engine"

const (
	DefPipelineTimeout = 10 * time.Minute

	teamPermission  = "push"
	staffPermission = "admin"
)

//go:generate mockgen -destination mocks/mock_remoteclient.go -package mocks github.com/simplesurance/classportal/internal/provision RemoteClient

// RemoteClient provisions resources on github.
// All operations are idempotent.
type RemoteClient interface {
	RepoExists(ctx context.Context, org, repo string) (bool, error)
	CreateRepo(ctx context.Context, org, repo string) (string, error)
	FindTeam(ctx context.Context, org, name string) (*githubclt.Team, error)
	CreateTeam(ctx context.Context, org, name, permission string) (*githubclt.Team, error)
	TeamMembers(ctx context.Context, team *githubclt.Team) ([]string, error)
	AddMembersToTeam(ctx context.Context, team *githubclt.Team, members []string) (*githubclt.Team, error)
	AddTeamToRepo(ctx context.Context, team *githubclt.Team, repo, permission string) (*githubclt.TeamRepoGrant, error)
	ListWebhooks(ctx context.Context, org, repo string) ([]*githubclt.Webhook, error)
	AddWebhook(ctx context.Context, org, repo, callbackURL string) (bool, error)
	ImportRepoFS(ctx context.Context, org, sourceURL, targetURL string) (bool, error)
}

// LockMode defines how a provisioning request behaves when another request
// for the same team is in progress.
type LockMode string

const (
	// LockModeWait waits until the other request finished, at most until
	// the pipeline timeout expired.
	LockModeWait LockMode = "wait"
	// LockModeReject fails immediately with a lock contention error.
	LockModeReject LockMode = "reject"
)

// Config configures an Engine.
type Config struct {
	// Stages are the ordered stage IDs of the ladder, a stage can only
	// be provisioned when the previous stage is complete for all
	// members.
	Stages []string
	// StaffTeam is the name of the team that is granted admin
	// permissions on all provisioned repositories. If empty, no staff
	// team is attached.
	StaffTeam  string
	TeamPrefix string
	RepoPrefix string
	// WebhookURL is the callback URL of the grading webhook that is
	// added to provisioned repositories. If empty, no webhook is added.
	WebhookURL string
	// IgnoredTeamMembers are logins that may be members of provisioned
	// teams without being requested, e.g. the account owning the API
	// token.
	IgnoredTeamMembers []string
	PipelineTimeout    time.Duration
	LockMode           LockMode
}

// Engine provisions github resources for course stages and maintains the
// provisioning status of teams and persons.
// The engine is the only writer of provisioning states.
// At most one provisioning pipeline runs at a time per team.
type Engine struct {
	remote  RemoteClient
	gateway store.Gateway
	locker  Locker
	cfg     Config
	logger  *zap.Logger
}

func NewEngine(cfg Config, remote RemoteClient, gateway store.Gateway, locker Locker) *Engine {
	if cfg.PipelineTimeout <= 0 {
		cfg.PipelineTimeout = DefPipelineTimeout
	}

	if cfg.LockMode == "" {
		cfg.LockMode = LockModeWait
	}

	if locker == nil {
		locker = NewKeyedMutex()
	}

	return &Engine{
		remote:  remote,
		gateway: gateway,
		locker:  locker,
		cfg:     cfg,
		logger:  zap.L().Named(loggerName),
	}
}

// acquire acquires the lock for the team according to the lock mode.
// Failures are returned as errors wrapping portalerr.ErrLockContention.
func (e *Engine) acquire(ctx context.Context, org, teamName string) (func(), error) {
	key := lockKey(org, teamName)

	var release func()
	var err error

	if e.cfg.LockMode == LockModeReject {
		release, err = e.locker.TryLock(ctx, key)
	} else {
		release, err = e.locker.Lock(ctx, key)
	}

	if err == nil {
		return release, nil
	}

	metrics.LockContentionInc()

	if errors.Is(err, portalerr.ErrLockContention) {
		return nil, err
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("waiting for lock %s timed out: %w", key, portalerr.ErrLockContention)
	}

	return nil, err
}

type request struct {
	org         string
	stage       string
	members     []string
	deliverable *store.Deliverable
	teamName    string
	repoName    string
}

func (e *Engine) stageIndex(stage string) int {
	return slices.Index(e.cfg.Stages, stage)
}

// validate checks the request without doing remote calls.
func (e *Engine) validate(ctx context.Context, org, stage string, members []string) (*request, error) {
	if org == "" {
		return nil, portalerr.NewValidationError("organization must be specified")
	}

	idx := e.stageIndex(stage)
	if idx == -1 {
		return nil, portalerr.NewValidationError("unknown stage %q", stage)
	}

	members = normalizeMembers(members)
	if len(members) == 0 {
		return nil, portalerr.NewValidationError("at least one team member must be specified")
	}

	deliv, err := e.gateway.GetDeliverable(ctx, org, stage)
	if err != nil {
		if errors.Is(err, portalerr.ErrNotFound) {
			return nil, portalerr.NewValidationError("unknown stage %q", stage)
		}

		return nil, fmt.Errorf("loading deliverable failed: %w", err)
	}

	if len(members) < deliv.TeamMinSize || len(members) > deliv.TeamMaxSize {
		return nil, portalerr.NewValidationError(
			"team size %d is not allowed for stage %s, it must be between %d and %d",
			len(members), stage, deliv.TeamMinSize, deliv.TeamMaxSize,
		)
	}

	if len(members) > 1 && !deliv.StudentsFormTeams {
		return nil, portalerr.NewValidationError("teams can not be formed for stage %s", stage)
	}

	teamName := e.teamName(stage, members)

	for _, m := range members {
		p, err := e.gateway.GetPerson(ctx, org, m)
		if err != nil && !errors.Is(err, portalerr.ErrNotFound) {
			return nil, fmt.Errorf("loading person %s failed: %w", m, err)
		}

		if idx > 0 {
			prev := e.cfg.Stages[idx-1]

			if p == nil || personState(p, prev) != StateComplete {
				return nil, portalerr.NewValidationError(
					"%s has not completed stage %s", m, prev,
				)
			}
		}

		if p == nil || personState(p, stage) == StateUnprovisioned {
			continue
		}

		inTeam, err := e.provisionedInTeam(ctx, org, stage, teamName)
		if err != nil {
			return nil, err
		}

		if !inTeam {
			return nil, portalerr.NewValidationError(
				"%s is already provisioned for stage %s in another team", m, stage,
			)
		}
	}

	return &request{
		org:         org,
		stage:       stage,
		members:     members,
		deliverable: deliv,
		teamName:    teamName,
		repoName:    e.repoName(stage, members),
	}, nil
}

// provisionedInTeam returns true when the stored team was provisioned for the
// stage before.
func (e *Engine) provisionedInTeam(ctx context.Context, org, stage, teamName string) (bool, error) {
	team, err := e.gateway.GetTeam(ctx, org, teamName)
	if err != nil {
		if errors.Is(err, portalerr.ErrNotFound) {
			return false, nil
		}

		return false, fmt.Errorf("loading team %s failed: %w", teamName, err)
	}

	status := teamStatus(team)

	return status.Stage == stage && status.State != StateUnprovisioned, nil
}

// Provision ensures that the team and repository for the members at the
// stage exist on github and are configured.
// The operation is idempotent, calling it again after a failure resumes the
// provisioning. Remote resources created before a failure are not removed.
func (e *Engine) Provision(ctx context.Context, org, stage string, members []string) *Result {
	provisionID := uuid.NewString()
	logger := e.logger.With(
		logfields.ProvisionID(provisionID),
		logfields.Org(org),
		logfields.Stage(stage),
		logfields.Members(members),
	)

	result := e.provision(ctx, logger, org, stage, members)
	if result.Failure != nil {
		metrics.RunFinished(string(result.Failure.Kind))

		logger.Info(
			"provisioning failed",
			logfields.Event("provisioning_failed"),
			zap.String("failure_kind", string(result.Failure.Kind)),
			zap.Error(result.Err()),
		)

		return result
	}

	metrics.RunFinished(resultLabelSuccessVal)

	logger.Info(
		"provisioning succeeded",
		logfields.Event("provisioning_succeeded"),
		logfields.State(result.Success.State.String()),
		zap.String("repository_url", result.Success.RepoURL),
	)

	return result
}

func (e *Engine) provision(ctx context.Context, logger *zap.Logger, org, stage string, members []string) *Result {
	req, err := e.validate(ctx, org, stage, members)
	if err != nil {
		return failureResult(err)
	}

	logger = logger.With(logfields.Team(req.teamName), logfields.Repository(req.repoName))

	ctx, cancel := context.WithTimeout(ctx, e.cfg.PipelineTimeout)
	defer cancel()

	release, err := e.acquire(ctx, org, req.teamName)
	if err != nil {
		return failureResult(err)
	}
	defer release()

	logger.Debug("team lock acquired", logfields.Event("provisioning_lock_acquired"))

	if err := e.ensurePersons(ctx, req); err != nil {
		return failureResult(err)
	}

	team, err := e.loadTeam(ctx, req)
	if err != nil {
		return failureResult(err)
	}

	status := teamStatus(team)
	if status.State == StateBlocked {
		return failureResult(fmt.Errorf("team %s: %w", req.teamName, portalerr.ErrBlocked))
	}

	if payload, ok := e.alreadySatisfied(ctx, logger, req, team, status); ok {
		return successResult(payload)
	}

	p := pipeline{
		engine:  e,
		req:     req,
		logger:  logger,
		members: slices.Clone(req.members),
	}

	if err := p.run(ctx); err != nil {
		e.saveFailedTeamState(ctx, logger, team, req.stage, status, err)
		return failureResult(err)
	}

	state := advance(status.State, StateProvisioned)

	team.URL = p.team.URL
	if err := e.saveTeamState(ctx, team, req.stage, state); err != nil {
		return failureResult(err)
	}

	if err := e.savePersonStates(ctx, req, state); err != nil {
		return failureResult(err)
	}

	return successResult(&StagePayload{
		Stage:   req.stage,
		State:   state,
		Team:    req.teamName,
		RepoURL: p.repo.URL,
	})
}

// ensurePersons creates missing person records of the members.
func (e *Engine) ensurePersons(ctx context.Context, req *request) error {
	for _, m := range req.members {
		_, err := e.gateway.GetPerson(ctx, req.org, m)
		if err == nil {
			continue
		}

		if !errors.Is(err, portalerr.ErrNotFound) {
			return fmt.Errorf("loading person %s failed: %w", m, err)
		}

		err = e.gateway.CreatePerson(ctx, &store.Person{
			ID:        m,
			Org:       req.org,
			Kind:      store.PersonKindStudent,
			URL:       "https://github.com/" + m,
			Custom:    store.Custom{},
			CreatedAt: time.Now().UTC(),
		})
		if err != nil && !errors.Is(err, portalerr.ErrAlreadyExists) {
			return fmt.Errorf("creating person %s failed: %w", m, err)
		}
	}

	return nil
}

// loadTeam returns the persisted team record, if it does not exist a new
// unsaved record is returned.
func (e *Engine) loadTeam(ctx context.Context, req *request) (*store.Team, error) {
	team, err := e.gateway.GetTeam(ctx, req.org, req.teamName)
	if err == nil {
		return team, nil
	}

	if !errors.Is(err, portalerr.ErrNotFound) {
		return nil, fmt.Errorf("loading team failed: %w", err)
	}

	team = &store.Team{
		ID:      req.teamName,
		Org:     req.org,
		Members: req.members,
		Custom:  store.Custom{},
	}
	setTeamStatus(team, Status{Stage: req.stage, State: StateUnprovisioned})

	return team, nil
}

func (e *Engine) saveTeamState(ctx context.Context, team *store.Team, stage string, state State) error {
	setTeamStatus(team, Status{Stage: stage, State: state})

	if err := e.gateway.SaveTeam(ctx, team); err != nil {
		return fmt.Errorf("saving team %s failed: %w", team.ID, err)
	}

	return nil
}

// saveFailedTeamState persists the state of a team whose pipeline failed.
// Only unprovisioned teams are changed, provisioned and completed teams keep
// their state.
func (e *Engine) saveFailedTeamState(ctx context.Context, logger *zap.Logger, team *store.Team, stage string, status Status, pipelineErr error) {
	if status.Stage == stage && status.State != StateUnprovisioned {
		logger.Debug(
			"keeping team state after failed provisioning",
			logfields.Event("provisioning_state_kept"),
			logfields.State(status.State.String()),
		)

		return
	}

	state := StateUnprovisioned
	if errors.Is(pipelineErr, portalerr.ErrBlocked) {
		state = StateBlocked
	}

	if err := e.saveTeamState(ctx, team, stage, state); err != nil {
		logger.Error(
			"persisting team state failed",
			logfields.Event("provisioning_persisting_state_failed"),
			logfields.State(state.String()),
			zap.Error(err),
		)
	}
}

func (e *Engine) savePersonStates(ctx context.Context, req *request, state State) error {
	for _, m := range req.members {
		p, err := e.gateway.GetPerson(ctx, req.org, m)
		if err != nil {
			return fmt.Errorf("loading person %s failed: %w", m, err)
		}

		setPersonState(p, req.stage, advance(personState(p, req.stage), state))

		if err := e.gateway.SavePerson(ctx, p); err != nil {
			return fmt.Errorf("saving person %s failed: %w", m, err)
		}
	}

	return nil
}

// alreadySatisfied returns true when the team is provisioned for the stage,
// the repository exists and the remote team has exactly the requested
// members.
func (e *Engine) alreadySatisfied(ctx context.Context, logger *zap.Logger, req *request, team *store.Team, status Status) (*StagePayload, bool) {
	if status.Stage != req.stage || (status.State != StateProvisioned && status.State != StateComplete) {
		return nil, false
	}

	repo, err := e.gateway.GetRepository(ctx, req.org, req.repoName)
	if err != nil || repo.URL == "" || (req.deliverable.TemplateURL != "" && !contentImported(repo)) {
		return nil, false
	}

	exists, err := e.remote.RepoExists(ctx, req.org, req.repoName)
	if err != nil || !exists {
		return nil, false
	}

	remoteTeam, err := e.remote.FindTeam(ctx, req.org, req.teamName)
	if err != nil || remoteTeam == nil {
		return nil, false
	}

	remoteMembers, err := e.remote.TeamMembers(ctx, remoteTeam)
	if err != nil {
		return nil, false
	}

	if !slices.Equal(e.withoutIgnoredMembers(remoteMembers), req.members) {
		return nil, false
	}

	logger.Debug(
		"team is already provisioned, skipping remote operations",
		logfields.Event("provisioning_already_satisfied"),
	)

	return &StagePayload{
		Stage:   req.stage,
		State:   status.State,
		Team:    team.ID,
		RepoURL: repo.URL,
	}, true
}

// withoutIgnoredMembers returns the normalized and sorted members without the
// configured ignored members.
func (e *Engine) withoutIgnoredMembers(members []string) []string {
	result := make([]string, 0, len(members))

	for _, m := range members {
		m = normalizeLogin(m)

		ignored := slices.ContainsFunc(e.cfg.IgnoredTeamMembers, func(i string) bool {
			return strings.EqualFold(i, m)
		})
		if !ignored {
			result = append(result, m)
		}
	}

	slices.Sort(result)

	return result
}
