package githubclt

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/google/go-github/v59/github"
	"github.com/shurcooL/githubv4"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/simplesurance/classportal/internal/logfields"
	"github.com/simplesurance/classportal/internal/portalerr"
)

// Team is a handle to an existing github team.
type Team struct {
	Org    string
	Name   string
	Slug   string
	Number int64
	URL    string
}

func toTeam(org string, t *github.Team) *Team {
	return &Team{
		Org:    org,
		Name:   t.GetName(),
		Slug:   t.GetSlug(),
		Number: t.GetID(),
		URL:    t.GetHTMLURL(),
	}
}

func (t *Team) logFields() []zap.Field {
	return []zap.Field{
		logfields.Org(t.Org),
		logfields.Team(t.Name),
		logfields.TeamNumber(t.Number),
	}
}

// TeamRepoGrant describes the permission a team has on a repository.
type TeamRepoGrant struct {
	Org        string
	Repo       string
	TeamNumber int64
	Permission string
}

// ListTeams returns an iterator over all teams of the organization.
func (clt *Client) ListTeams(ctx context.Context, org string) *Iterator[Team] {
	return newIterator(ctx, func(ctx context.Context, page int) ([]*Team, *github.Response, error) {
		var result []*Team
		var resp *github.Response

		err := clt.do(ctx, []zap.Field{logfields.Org(org)}, func(ctx context.Context) error {
			teams, r, err := clt.restClt.Teams.ListTeams(ctx, org, &github.ListOptions{
				Page:    page,
				PerPage: pageSize,
			})
			if err != nil {
				return clt.wrapErrors(err)
			}

			result = make([]*Team, 0, len(teams))
			for _, t := range teams {
				result = append(result, toTeam(org, t))
			}
			resp = r

			return nil
		})

		return result, resp, err
	})
}

var teamSlugSanitizeRe = regexp.MustCompile(`[^a-z0-9_-]+`)

// teamSlug returns the slug github derives from a team name.
func teamSlug(name string) string {
	return strings.Trim(teamSlugSanitizeRe.ReplaceAllString(strings.ToLower(name), "-"), "-")
}

// FindTeam returns the team with the given name, it is looked up by the
// slug derived from the name.
// If the team does not exist, nil is returned.
func (clt *Client) FindTeam(ctx context.Context, org, name string) (*Team, error) {
	var result *Team

	slug := teamSlug(name)

	err := clt.do(ctx, []zap.Field{logfields.Org(org), logfields.Team(name)}, func(ctx context.Context) error {
		t, _, err := clt.restClt.Teams.GetTeamBySlug(ctx, org, slug)
		if err != nil {
			err = clt.wrapErrors(err)
			if errors.Is(err, portalerr.ErrNotFound) {
				result = nil
				return nil
			}

			return err
		}

		if !strings.EqualFold(t.GetName(), name) {
			result = nil
			return nil
		}

		result = toTeam(org, t)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// findTeamByName searches all teams of the organization for the team.
// It finds teams whose slug differs from the one FindTeam derives.
func (clt *Client) findTeamByName(ctx context.Context, org, name string) (*Team, error) {
	it := clt.ListTeams(ctx, org)

	for {
		team, err := it.Next()
		if err != nil {
			return nil, err
		}

		if team == nil {
			return nil, nil
		}

		if strings.EqualFold(team.Name, name) {
			return team, nil
		}
	}
}

// GetTeamNumber returns the numeric ID of the team.
// If the team does not exist, TeamNotFound is returned.
func (clt *Client) GetTeamNumber(ctx context.Context, org, name string) (int64, error) {
	team, err := clt.FindTeam(ctx, org, name)
	if err != nil {
		return 0, err
	}

	if team == nil {
		return TeamNotFound, nil
	}

	return team.Number, nil
}

// CreateTeam creates a closed team in the organization.
// If a team with the name already exists, the existing team is returned.
func (clt *Client) CreateTeam(ctx context.Context, org, name, permission string) (*Team, error) {
	logF := []zap.Field{logfields.Org(org), logfields.Team(name), logfields.Permission(permission)}
	logger := clt.logger.With(logF...)

	existing, err := clt.FindTeam(ctx, org, name)
	if err != nil {
		return nil, err
	}

	if existing != nil {
		logger.Debug("team already exists", logfields.Event("github_team_exists"))
		return existing, nil
	}

	var created *Team
	var conflict bool

	err = clt.do(ctx, logF, func(ctx context.Context) error {
		t, _, err := clt.restClt.Teams.CreateTeam(ctx, org, github.NewTeam{
			Name:       name,
			Permission: github.String(permission),
			Privacy:    github.String("closed"),
		})
		if err != nil {
			err = clt.wrapErrors(err)
			if errors.Is(err, portalerr.ErrAlreadyExists) {
				conflict = true
				return nil
			}

			return err
		}

		created = toTeam(org, t)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !conflict {
		logger.Info("team created", logfields.Event("github_team_created"), logfields.TeamNumber(created.Number))
		return created, nil
	}

	existing, err = clt.FindTeam(ctx, org, name)
	if err != nil {
		return nil, err
	}

	if existing == nil {
		existing, err = clt.findTeamByName(ctx, org, name)
		if err != nil {
			return nil, err
		}
	}

	if existing == nil {
		return nil, portalerr.NewRetryableAnytimeError(
			fmt.Errorf("team creation reported a conflict but team %q does not exist", name),
		)
	}

	logger.Debug("team was created concurrently", logfields.Event("github_team_exists"))

	return existing, nil
}

// DeleteTeam deletes the team.
// False is returned when the team did not exist.
func (clt *Client) DeleteTeam(ctx context.Context, team *Team) (bool, error) {
	var deleted bool

	err := clt.do(ctx, team.logFields(), func(ctx context.Context) error {
		_, err := clt.restClt.Teams.DeleteTeamBySlug(ctx, team.Org, team.Slug)
		if err != nil {
			err = clt.wrapErrors(err)
			if errors.Is(err, portalerr.ErrNotFound) {
				deleted = false
				return nil
			}

			return err
		}

		deleted = true
		return nil
	})

	return deleted, err
}

// AddMembersToTeam adds the users as members to the team.
// Adding a user that already is a member succeeds.
// Every member is added with its own retries, when adding members failed
// the other members are still added and the errors are returned combined.
func (clt *Client) AddMembersToTeam(ctx context.Context, team *Team, members []string) (*Team, error) {
	var errs error

	for _, member := range members {
		logF := append(team.logFields(), logfields.Member(member))

		err := clt.do(ctx, logF, func(ctx context.Context) error {
			_, _, err := clt.restClt.Teams.AddTeamMembershipBySlug(
				ctx, team.Org, team.Slug, member,
				&github.TeamAddTeamMembershipOptions{Role: "member"},
			)
			return clt.wrapErrors(err)
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, multierr.Append(errs, err)
			}

			clt.logger.Info(
				"adding member to team failed",
				append(logF, logfields.Event("github_team_member_add_failed"), zap.Error(err))...,
			)

			errs = multierr.Append(errs, fmt.Errorf("adding member %q failed: %w", member, err))
			continue
		}

		clt.logger.Debug(
			"member added to team",
			append(logF, logfields.Event("github_team_member_added"))...,
		)
	}

	if errs != nil {
		return nil, errs
	}

	return team, nil
}

type teamMembersQuery struct {
	Organization struct {
		Team struct {
			Members struct {
				Nodes []struct {
					Login githubv4.String
				}
				PageInfo struct {
					EndCursor   githubv4.String
					HasNextPage bool
				}
			} `graphql:"members(first: 100, after: $cursor)"`
		} `graphql:"team(slug: $slug)"`
	} `graphql:"organization(login: $org)"`
}

// TeamMembers returns the sorted logins of all members of the team.
func (clt *Client) TeamMembers(ctx context.Context, team *Team) ([]string, error) {
	var members []string

	vars := map[string]any{
		"org":    githubv4.String(team.Org),
		"slug":   githubv4.String(team.Slug),
		"cursor": (*githubv4.String)(nil),
	}

	for {
		var q teamMembersQuery

		err := clt.do(ctx, team.logFields(), func(ctx context.Context) error {
			return clt.wrapGraphQLErrors(clt.graphQLClt.Query(ctx, &q, vars))
		})
		if err != nil {
			return nil, err
		}

		for _, n := range q.Organization.Team.Members.Nodes {
			members = append(members, string(n.Login))
		}

		if !q.Organization.Team.Members.PageInfo.HasNextPage {
			break
		}

		vars["cursor"] = githubv4.NewString(q.Organization.Team.Members.PageInfo.EndCursor)
	}

	sort.Strings(members)

	return members, nil
}

// AddTeamToRepo grants the team the permission on the repository.
// Granting an existing permission again succeeds.
func (clt *Client) AddTeamToRepo(ctx context.Context, team *Team, repo, permission string) (*TeamRepoGrant, error) {
	logF := append(team.logFields(), logfields.Repository(repo), logfields.Permission(permission))

	err := clt.do(ctx, logF, func(ctx context.Context) error {
		_, err := clt.restClt.Teams.AddTeamRepoBySlug(
			ctx, team.Org, team.Slug, team.Org, repo,
			&github.TeamAddTeamRepoOptions{Permission: permission},
		)
		return clt.wrapErrors(err)
	})
	if err != nil {
		return nil, err
	}

	clt.logger.Debug("team permission on repository granted", append(logF, logfields.Event("github_team_repo_granted"))...)

	return &TeamRepoGrant{
		Org:        team.Org,
		Repo:       repo,
		TeamNumber: team.Number,
		Permission: permission,
	}, nil
}
