package gitutil

import (
	"regexp"
	"strings"

	"github.com/simplesurance/classportal/internal/portalerr"
)

var (
	repoNotFoundRe = regexp.MustCompile(`fatal: repository '.*' not found`)
	serverErrorRe  = regexp.MustCompile(`The requested URL returned error: 5[0-9][0-9]`)
)

type GitExecErrorType int

const (
	Unknown GitExecErrorType = iota
	HTTPSAuthRequired
	AuthenticationFailed
	RepositoryNotFound
	RepositoryUnavailable
	RemoteServerError
)

type GitExecError struct {
	Type   GitExecErrorType
	Args   []string
	Err    error
	StdErr string
	StdOut string
}

func (e *GitExecError) Error() string {
	b := new(strings.Builder)
	b.WriteString("git ")
	b.WriteString(strings.Join(e.Args, " "))
	b.WriteString(": ")
	b.WriteString(e.Err.Error())
	b.WriteString(": ")
	b.WriteString(strings.TrimSpace(e.StdErr))
	return b.String()
}

func (e *GitExecError) Unwrap() error {
	return e.Err
}

func determineErrorType(stdErr string) GitExecErrorType {
	switch {
	case strings.Contains(stdErr, "could not read Username"):
		return HTTPSAuthRequired
	case strings.Contains(stdErr, "Authentication failed"),
		strings.Contains(stdErr, "Permission denied"),
		strings.Contains(stdErr, "The requested URL returned error: 403"):
		return AuthenticationFailed
	case repoNotFoundRe.MatchString(stdErr),
		strings.Contains(stdErr, "does not appear to be a git repository"),
		strings.Contains(stdErr, "The requested URL returned error: 404"):
		return RepositoryNotFound
	case strings.Contains(stdErr, "Could not resolve host"),
		strings.Contains(stdErr, "Connection timed out"),
		strings.Contains(stdErr, "Connection refused"),
		strings.Contains(stdErr, "early EOF"),
		strings.Contains(stdErr, "the remote end hung up unexpectedly"):
		return RepositoryUnavailable
	case serverErrorRe.MatchString(stdErr):
		return RemoteServerError
	}
	return Unknown
}

// classify wraps err into a portalerr type. Network problems are retryable,
// everything else is permanent.
func classify(err *GitExecError) error {
	switch err.Type {
	case RepositoryUnavailable, RemoteServerError:
		return portalerr.NewRetryableAnytimeError(err)
	default:
		return portalerr.NewPermanentError(err)
	}
}
