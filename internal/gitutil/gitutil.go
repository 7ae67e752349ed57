// Package gitutil runs git commands and mirrors repositories between remotes.
package gitutil

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"strings"

	"github.com/simplesurance/classportal/internal/portalerr"
)

// Runner runs git commands.
type Runner struct {
	// Path to the git executable.
	gitPath string
	// secrets are removed from error messages.
	secrets []string
}

// NewRunner returns a Runner that uses the git executable found in PATH.
// Occurrences of the passed secrets are redacted from errors returned by the
// runner.
func NewRunner(secrets ...string) (*Runner, error) {
	p, err := exec.LookPath("git")
	if err != nil {
		return nil, portalerr.NewPermanentError(fmt.Errorf("no 'git' program on path: %w", err))
	}

	var s []string
	for _, secret := range secrets {
		if secret != "" {
			s = append(s, secret)
		}
	}

	return &Runner{gitPath: p, secrets: s}, nil
}

type RunResult struct {
	Stdout string
	Stderr string
}

// Run runs a git command in dir.
// Omit the 'git' part of the command.
// Failures are returned as *GitExecError wrapped in a
// portalerr.RetryableError or portalerr.PermanentError, depending on the
// cause reported by git.
func (r *Runner) Run(ctx context.Context, dir string, args ...string) (RunResult, error) {
	cmd := exec.CommandContext(ctx, r.gitPath, args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")

	cmdStdout := &bytes.Buffer{}
	cmdStderr := &bytes.Buffer{}
	cmd.Stdout = cmdStdout
	cmd.Stderr = cmdStderr

	err := cmd.Run()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return RunResult{}, fmt.Errorf("git %s: %w", r.redact(strings.Join(args, " ")), ctxErr)
		}

		execErr := &GitExecError{
			Args:   r.redactAll(args),
			Err:    err,
			StdOut: r.redact(cmdStdout.String()),
			StdErr: r.redact(cmdStderr.String()),
		}
		execErr.Type = determineErrorType(execErr.StdErr)

		return RunResult{}, classify(execErr)
	}

	return RunResult{
		Stdout: cmdStdout.String(),
		Stderr: cmdStderr.String(),
	}, nil
}

func (r *Runner) redact(s string) string {
	for _, secret := range r.secrets {
		s = strings.ReplaceAll(s, secret, "**hidden**")
	}

	return s
}

func (r *Runner) redactAll(args []string) []string {
	result := make([]string, 0, len(args))
	for _, a := range args {
		result = append(result, r.redact(a))
	}

	return result
}

// AuthURL returns rawURL with token embedded as basic auth credentials.
// URLs that are not http(s), e.g. local paths, are returned unchanged.
func AuthURL(rawURL, token string) (string, error) {
	if token == "" {
		return rawURL, nil
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return "", portalerr.NewPermanentError(fmt.Errorf("parsing git url failed: %w", err))
	}

	if u.Scheme != "https" && u.Scheme != "http" {
		return rawURL, nil
	}

	u.User = url.UserPassword("x-access-token", token)

	return u.String(), nil
}
