package githubclt

import (
	"context"
	"errors"

	"github.com/google/go-github/v59/github"
	"go.uber.org/zap"

	"github.com/simplesurance/classportal/internal/logfields"
	"github.com/simplesurance/classportal/internal/portalerr"
)

// RepoSummary describes an existing repository.
type RepoSummary struct {
	Name     string
	FullName string
	URL      string
	Private  bool
}

func toRepoSummary(repo *github.Repository) *RepoSummary {
	return &RepoSummary{
		Name:     repo.GetName(),
		FullName: repo.GetFullName(),
		URL:      repo.GetHTMLURL(),
		Private:  repo.GetPrivate(),
	}
}

// getRepo returns the repository, if it does not exist nil is returned.
// The call is not retried.
func (clt *Client) getRepo(ctx context.Context, org, repo string) (*github.Repository, error) {
	result, _, err := clt.restClt.Repositories.Get(ctx, org, repo)
	if err != nil {
		err = clt.wrapErrors(err)
		if errors.Is(err, portalerr.ErrNotFound) {
			return nil, nil
		}

		return nil, err
	}

	return result, nil
}

// RepoExists returns true if the repository exists.
func (clt *Client) RepoExists(ctx context.Context, org, repo string) (bool, error) {
	var exists bool

	err := clt.do(ctx, []zap.Field{logfields.Org(org), logfields.Repository(repo)}, func(ctx context.Context) error {
		r, err := clt.getRepo(ctx, org, repo)
		if err != nil {
			return err
		}

		exists = r != nil
		return nil
	})

	return exists, err
}

// CreateRepo creates a private repository in the organization and returns
// its URL.
// If the repository already exists, the URL of the existing repository is
// returned.
func (clt *Client) CreateRepo(ctx context.Context, org, repo string) (string, error) {
	var repoURL string

	logger := clt.logger.With(logfields.Org(org), logfields.Repository(repo))

	err := clt.do(ctx, []zap.Field{logfields.Org(org), logfields.Repository(repo)}, func(ctx context.Context) error {
		existing, err := clt.getRepo(ctx, org, repo)
		if err != nil {
			return err
		}

		if existing != nil {
			logger.Debug("repository already exists", logfields.Event("github_repository_exists"))
			repoURL = existing.GetHTMLURL()
			return nil
		}

		created, _, err := clt.restClt.Repositories.Create(ctx, org, &github.Repository{
			Name:        github.String(repo),
			Private:     github.Bool(true),
			HasIssues:   github.Bool(true),
			HasWiki:     github.Bool(false),
			HasProjects: github.Bool(false),
		})
		if err == nil {
			logger.Info("repository created", logfields.Event("github_repository_created"))
			repoURL = created.GetHTMLURL()
			return nil
		}

		err = clt.wrapErrors(err)
		if !errors.Is(err, portalerr.ErrAlreadyExists) {
			return err
		}

		// created concurrently by someone else
		existing, err = clt.getRepo(ctx, org, repo)
		if err != nil {
			return err
		}

		if existing == nil {
			return portalerr.NewRetryableAnytimeError(errors.New("repository creation reported a conflict but the repository does not exist"))
		}

		logger.Debug("repository was created concurrently", logfields.Event("github_repository_exists"))
		repoURL = existing.GetHTMLURL()

		return nil
	})
	if err != nil {
		return "", err
	}

	return repoURL, nil
}

// DeleteRepo deletes the repository.
// False is returned when the repository did not exist.
func (clt *Client) DeleteRepo(ctx context.Context, org, repo string) (bool, error) {
	var deleted bool

	err := clt.do(ctx, []zap.Field{logfields.Org(org), logfields.Repository(repo)}, func(ctx context.Context) error {
		_, err := clt.restClt.Repositories.Delete(ctx, org, repo)
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

// ListRepos returns an iterator over all repositories of the organization.
func (clt *Client) ListRepos(ctx context.Context, org string) *Iterator[RepoSummary] {
	return newIterator(ctx, func(ctx context.Context, page int) ([]*RepoSummary, *github.Response, error) {
		var result []*RepoSummary
		var resp *github.Response

		err := clt.do(ctx, []zap.Field{logfields.Org(org)}, func(ctx context.Context) error {
			repos, r, err := clt.restClt.Repositories.ListByOrg(ctx, org, &github.RepositoryListByOrgOptions{
				ListOptions: github.ListOptions{
					Page:    page,
					PerPage: pageSize,
				},
			})
			if err != nil {
				return clt.wrapErrors(err)
			}

			result = make([]*RepoSummary, 0, len(repos))
			for _, repo := range repos {
				result = append(result, toRepoSummary(repo))
			}
			resp = r

			return nil
		})

		return result, resp, err
	})
}
