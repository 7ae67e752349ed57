package gitutil

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/simplesurance/classportal/internal/logfields"
	"github.com/simplesurance/classportal/internal/portalerr"
)

const maxScratchNameLen = 40

var scratchNameSanitizeRe = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// Importer seeds repositories with the content of other repositories.
type Importer struct {
	runner     *Runner
	scratchDir string
	token      string
	logger     *zap.Logger
}

// NewImporter returns an Importer that creates its per-import working
// directories in scratchDir. If scratchDir is empty, the default directory
// for temporary files is used.
// token is used as credential for http(s) remotes.
func NewImporter(runner *Runner, scratchDir, token string) *Importer {
	return &Importer{
		runner:     runner,
		scratchDir: scratchDir,
		token:      token,
		logger:     zap.L().Named("git_importer"),
	}
}

// MirrorImport clones sourceURL as bare repository into a private scratch
// directory and pushes all of its refs to targetURL, overwriting refs that
// exist in the target.
// The scratch directory is removed before MirrorImport returns, also when it
// fails or ctx is cancelled.
func (imp *Importer) MirrorImport(ctx context.Context, sourceURL, targetURL string) error {
	srcURL, err := AuthURL(sourceURL, imp.token)
	if err != nil {
		return err
	}

	tgtURL, err := AuthURL(targetURL, imp.token)
	if err != nil {
		return err
	}

	dir, err := os.MkdirTemp(imp.scratchDir, "import-"+scratchName(targetURL)+"-*")
	if err != nil {
		return portalerr.NewPermanentError(fmt.Errorf("creating scratch directory failed: %w", err))
	}

	logger := imp.logger.With(zap.String("scratch_dir", dir))

	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			logger.Error(
				"removing scratch directory failed",
				logfields.Event("git_scratch_dir_removal_failed"),
				zap.Error(err),
			)
		}
	}()

	mirrorDir := filepath.Join(dir, "mirror.git")

	if _, err := imp.runner.Run(ctx, dir, "clone", "--bare", srcURL, mirrorDir); err != nil {
		return fmt.Errorf("cloning source repository failed: %w", err)
	}

	logger.Debug("source repository cloned", logfields.Event("git_source_cloned"))

	if _, err := imp.runner.Run(ctx, mirrorDir, "push", "--mirror", tgtURL); err != nil {
		return fmt.Errorf("pushing mirror to target repository failed: %w", err)
	}

	logger.Debug("mirror pushed to target repository", logfields.Event("git_mirror_pushed"))

	return nil
}

// scratchName derives a file name component from the last path element of
// a repository URL.
func scratchName(repoURL string) string {
	name := path.Base(strings.TrimSuffix(strings.TrimRight(repoURL, "/"), ".git"))
	name = scratchNameSanitizeRe.ReplaceAllString(name, "_")

	if len(name) > maxScratchNameLen {
		name = name[:maxScratchNameLen]
	}

	if name == "" || name == "." || name == "_" {
		return "repo"
	}

	return name
}
