package githubclt

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/simplesurance/classportal/internal/logfields"
	"github.com/simplesurance/classportal/internal/portalerr"
)

// ImportRepoFS copies all refs of the repository at sourceURL into the
// repository at targetURL.
// The import is retried when it fails with a temporary error.
func (clt *Client) ImportRepoFS(ctx context.Context, org, sourceURL, targetURL string) (bool, error) {
	if clt.importer == nil {
		return false, portalerr.NewPermanentError(errors.New("repository importer is not configured"))
	}

	logF := []zap.Field{
		logfields.Org(org),
		zap.String("import_source_url", sourceURL),
		zap.String("import_target_url", targetURL),
	}

	err := clt.do(ctx, logF, func(ctx context.Context) error {
		return clt.importer.MirrorImport(ctx, sourceURL, targetURL)
	})
	if err != nil {
		return false, err
	}

	clt.logger.Info("repository content imported", append(logF, logfields.Event("github_repository_imported"))...)

	return true, nil
}
