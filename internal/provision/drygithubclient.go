package provision

import (
	"context"

	"go.uber.org/zap"

	"github.com/simplesurance/classportal/internal/githubclt"
	"github.com/simplesurance/classportal/internal/logfields"
)

// DryGithubClient is a RemoteClient that does not do any changes on github.
// All operations that could cause a change are simulated and always succeed.
// All other operations are forwarded to the wrapped RemoteClient.
type DryGithubClient struct {
	clt    RemoteClient
	logger *zap.Logger
}

var (
	_ RemoteClient = &DryGithubClient{}
	_ RemoteClient = &githubclt.Client{}
)

func NewDryGithubClient(clt RemoteClient, logger *zap.Logger) *DryGithubClient {
	return &DryGithubClient{
		clt:    clt,
		logger: logger.Named("dry_github_client"),
	}
}

func (c *DryGithubClient) RepoExists(ctx context.Context, org, repo string) (bool, error) {
	return c.clt.RepoExists(ctx, org, repo)
}

func (c *DryGithubClient) CreateRepo(_ context.Context, org, repo string) (string, error) {
	c.logger.Info("simulated creating of github repository", logfields.Org(org), logfields.Repository(repo))
	return "https://github.com/" + org + "/" + repo, nil
}

func (c *DryGithubClient) FindTeam(ctx context.Context, org, name string) (*githubclt.Team, error) {
	return c.clt.FindTeam(ctx, org, name)
}

func (c *DryGithubClient) CreateTeam(ctx context.Context, org, name, permission string) (*githubclt.Team, error) {
	team, err := c.clt.FindTeam(ctx, org, name)
	if err != nil {
		return nil, err
	}

	if team != nil {
		return team, nil
	}

	c.logger.Info(
		"simulated creating of github team",
		logfields.Org(org), logfields.Team(name), logfields.Permission(permission),
	)

	return &githubclt.Team{
		Org:    org,
		Name:   name,
		Slug:   name,
		Number: githubclt.TeamNotFound,
		URL:    "https://github.com/orgs/" + org + "/teams/" + name,
	}, nil
}

func (c *DryGithubClient) TeamMembers(ctx context.Context, team *githubclt.Team) ([]string, error) {
	if team.Number == githubclt.TeamNotFound {
		return nil, nil
	}

	return c.clt.TeamMembers(ctx, team)
}

func (c *DryGithubClient) AddMembersToTeam(_ context.Context, team *githubclt.Team, members []string) (*githubclt.Team, error) {
	c.logger.Info(
		"simulated adding members to github team",
		logfields.Org(team.Org), logfields.Team(team.Name), logfields.Members(members),
	)

	return team, nil
}

func (c *DryGithubClient) AddTeamToRepo(_ context.Context, team *githubclt.Team, repo, permission string) (*githubclt.TeamRepoGrant, error) {
	c.logger.Info(
		"simulated granting github team permissions on repository",
		logfields.Org(team.Org), logfields.Team(team.Name),
		logfields.Repository(repo), logfields.Permission(permission),
	)

	return &githubclt.TeamRepoGrant{
		Org:        team.Org,
		Repo:       repo,
		TeamNumber: team.Number,
		Permission: permission,
	}, nil
}

func (c *DryGithubClient) ListWebhooks(ctx context.Context, org, repo string) ([]*githubclt.Webhook, error) {
	exists, err := c.clt.RepoExists(ctx, org, repo)
	if err != nil {
		return nil, err
	}

	if !exists {
		return nil, nil
	}

	return c.clt.ListWebhooks(ctx, org, repo)
}

func (c *DryGithubClient) AddWebhook(_ context.Context, org, repo, callbackURL string) (bool, error) {
	c.logger.Info(
		"simulated adding webhook to github repository",
		logfields.Org(org), logfields.Repository(repo), zap.String("webhook_url", callbackURL),
	)

	return true, nil
}

func (c *DryGithubClient) ImportRepoFS(_ context.Context, org, sourceURL, targetURL string) (bool, error) {
	c.logger.Info(
		"simulated importing repository content",
		logfields.Org(org), zap.String("import_source_url", sourceURL), zap.String("import_target_url", targetURL),
	)

	return true, nil
}
