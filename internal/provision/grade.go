package provision

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/simplesurance/classportal/internal/logfields"
	"github.com/simplesurance/classportal/internal/portalerr"
	"github.com/simplesurance/classportal/internal/store"
)

// GradeRecord is a grading result for a repository.
type GradeRecord struct {
	Score     float64
	Comment   string
	URL       string
	Timestamp time.Time
	Custom    map[string]any
}

func (g *GradeRecord) validate() error {
	if math.IsNaN(g.Score) || math.IsInf(g.Score, 0) {
		return portalerr.NewValidationError("score must be a finite number")
	}

	return nil
}

// HandleNewGrade stores the grade for every member of the teams of the
// repository.
// Teams that are provisioned for the stage become complete. For teams in
// another state the grade is stored but their state does not change.
// True is returned when the grade was stored.
func (e *Engine) HandleNewGrade(ctx context.Context, org, repoID, stage string, grade *GradeRecord) (bool, error) {
	logger := e.logger.With(logfields.Org(org), logfields.Repository(repoID), logfields.Stage(stage))

	ok, err := e.handleNewGrade(ctx, logger, org, repoID, stage, grade)
	if err != nil {
		metrics.GradeProcessed(string(portalerr.KindOf(err)))
		return false, err
	}

	metrics.GradeProcessed(resultLabelSuccessVal)

	return ok, nil
}

func (e *Engine) handleNewGrade(ctx context.Context, logger *zap.Logger, org, repoID, stage string, grade *GradeRecord) (bool, error) {
	if org == "" || repoID == "" || stage == "" {
		return false, portalerr.NewValidationError("organization, repository and stage must be specified")
	}

	if grade == nil {
		return false, portalerr.NewValidationError("grade must be specified")
	}

	if err := grade.validate(); err != nil {
		return false, err
	}

	repo, err := e.gateway.GetRepository(ctx, org, repoID)
	if err != nil {
		return false, fmt.Errorf("resolving repository %s failed: %w", repoID, err)
	}

	if len(repo.TeamIDs) == 0 {
		return false, fmt.Errorf("repository %s has no teams: %w", repoID, portalerr.ErrNotFound)
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.PipelineTimeout)
	defer cancel()

	for _, teamID := range repo.TeamIDs {
		if err := e.gradeTeam(ctx, logger.With(logfields.Team(teamID)), org, teamID, stage, grade); err != nil {
			return false, err
		}
	}

	return true, nil
}

func (e *Engine) gradeTeam(ctx context.Context, logger *zap.Logger, org, teamID, stage string, grade *GradeRecord) error {
	release, err := e.locker.Lock(ctx, lockKey(org, teamID))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("waiting for lock of team %s timed out: %w", teamID, portalerr.ErrLockContention)
		}

		return err
	}
	defer release()

	team, err := e.gateway.GetTeam(ctx, org, teamID)
	if err != nil {
		return fmt.Errorf("loading team %s failed: %w", teamID, err)
	}

	for _, m := range team.Members {
		err := e.gateway.CreateOrUpdateGrade(ctx, &store.Grade{
			PersonID:  m,
			DelivID:   stage,
			Org:       org,
			Score:     grade.Score,
			Comment:   grade.Comment,
			URL:       grade.URL,
			Timestamp: grade.Timestamp,
			Custom:    store.Custom(grade.Custom),
		})
		if err != nil {
			return fmt.Errorf("storing grade of %s failed: %w", m, err)
		}
	}

	status := teamStatus(team)
	if status.Stage != stage || (status.State != StateProvisioned && status.State != StateComplete) {
		logger.Info(
			"grade stored, team is not provisioned for the stage, status unchanged",
			logfields.Event("grade_stored_without_status_change"),
			logfields.State(status.State.String()),
			zap.String("team_stage", status.Stage),
		)

		return nil
	}

	if err := e.saveTeamState(ctx, team, stage, StateComplete); err != nil {
		return err
	}

	for _, m := range team.Members {
		p, err := e.gateway.GetPerson(ctx, org, m)
		if err != nil {
			return fmt.Errorf("loading person %s failed: %w", m, err)
		}

		setPersonState(p, stage, StateComplete)

		if err := e.gateway.SavePerson(ctx, p); err != nil {
			return fmt.Errorf("saving person %s failed: %w", m, err)
		}
	}

	logger.Info(
		"grade stored, stage completed",
		logfields.Event("stage_completed"),
		logfields.Members(team.Members),
		zap.Float64("score", grade.Score),
	)

	return nil
}

// GetStatus returns the state of every stage of the ladder for the person.
// Stages of unknown persons are unprovisioned.
func (e *Engine) GetStatus(ctx context.Context, org, personID string) ([]Status, error) {
	personID = normalizeLogin(personID)

	p, err := e.gateway.GetPerson(ctx, org, personID)
	if err != nil && !errors.Is(err, portalerr.ErrNotFound) {
		return nil, fmt.Errorf("loading person %s failed: %w", personID, err)
	}

	result := make([]Status, 0, len(e.cfg.Stages))
	for _, stage := range e.cfg.Stages {
		state := StateUnprovisioned
		if p != nil {
			state = personState(p, stage)
		}

		result = append(result, Status{Stage: stage, State: state})
	}

	return result, nil
}

// ResetTeam moves a blocked team back to the unprovisioned state, so that it
// can be provisioned again.
func (e *Engine) ResetTeam(ctx context.Context, org, teamName string) error {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.PipelineTimeout)
	defer cancel()

	release, err := e.acquire(ctx, org, teamName)
	if err != nil {
		return err
	}
	defer release()

	team, err := e.gateway.GetTeam(ctx, org, teamName)
	if err != nil {
		if errors.Is(err, portalerr.ErrNotFound) {
			return portalerr.NewValidationError("team %s does not exist", teamName)
		}

		return fmt.Errorf("loading team %s failed: %w", teamName, err)
	}

	status := teamStatus(team)
	if status.State != StateBlocked {
		return portalerr.NewValidationError("team %s is not blocked, its state is %s", teamName, status.State)
	}

	if err := e.saveTeamState(ctx, team, status.Stage, StateUnprovisioned); err != nil {
		return err
	}

	e.logger.Info(
		"blocked team was reset",
		logfields.Event("team_reset"),
		logfields.Org(org),
		logfields.Team(teamName),
		logfields.Stage(status.Stage),
	)

	return nil
}
