package githubclt

import (
	"context"
	"errors"

	"github.com/google/go-github/v59/github"
	"go.uber.org/zap"

	"github.com/simplesurance/classportal/internal/logfields"
	"github.com/simplesurance/classportal/internal/portalerr"
)

// WebhookEvents are the events that are subscribed by AddWebhook.
var WebhookEvents = []string{"push", "commit_comment"}

// Webhook is a repository webhook.
type Webhook struct {
	ID     int64
	URL    string
	Active bool
	Events []string
}

func hookURL(h *github.Hook) string {
	url, _ := h.Config["url"].(string)
	return url
}

// ListWebhooks returns all webhooks of the repository.
func (clt *Client) ListWebhooks(ctx context.Context, org, repo string) ([]*Webhook, error) {
	var result []*Webhook

	logF := []zap.Field{logfields.Org(org), logfields.Repository(repo)}

	for page := 1; page != 0; {
		err := clt.do(ctx, logF, func(ctx context.Context) error {
			hooks, resp, err := clt.restClt.Repositories.ListHooks(ctx, org, repo, &github.ListOptions{
				Page:    page,
				PerPage: pageSize,
			})
			if err != nil {
				return clt.wrapErrors(err)
			}

			for _, h := range hooks {
				result = append(result, &Webhook{
					ID:     h.GetID(),
					URL:    hookURL(h),
					Active: h.GetActive(),
					Events: h.Events,
				})
			}

			if len(hooks) == 0 {
				page = 0
			} else {
				page = resp.NextPage
			}

			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	return result, nil
}

// AddWebhook creates a webhook on the repository that sends json encoded
// WebhookEvents to callbackURL.
// Callers are expected to check via ListWebhooks if the hook exists already.
// If github rejects the hook because it exists already, true is returned.
func (clt *Client) AddWebhook(ctx context.Context, org, repo, callbackURL string) (bool, error) {
	logF := []zap.Field{logfields.Org(org), logfields.Repository(repo), zap.String("webhook_url", callbackURL)}

	err := clt.do(ctx, logF, func(ctx context.Context) error {
		_, _, err := clt.restClt.Repositories.CreateHook(ctx, org, repo, &github.Hook{
			Name:   github.String("web"),
			Active: github.Bool(true),
			Events: WebhookEvents,
			Config: map[string]interface{}{
				"url":          callbackURL,
				"content_type": "json",
				"insecure_ssl": "0",
			},
		})
		if err != nil {
			err = clt.wrapErrors(err)
			if errors.Is(err, portalerr.ErrAlreadyExists) {
				clt.logger.Debug("webhook already exists", append(logF, logfields.Event("github_webhook_exists"))...)
				return nil
			}

			return err
		}

		clt.logger.Info("webhook created", append(logF, logfields.Event("github_webhook_created"))...)

		return nil
	})
	if err != nil {
		return false, err
	}

	return true, nil
}
