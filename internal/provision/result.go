package provision

import (
	"errors"

	"github.com/simplesurance/classportal/internal/portalerr"
)

// StagePayload is the outcome of a successful provisioning.
type StagePayload struct {
	Stage   string `json:"stage"`
	State   State  `json:"state"`
	Team    string `json:"team"`
	RepoURL string `json:"repoUrl"`
}

// Failure describes why an operation failed.
// Message is suitable to be shown to users, it does not contain internal
// details.
type Failure struct {
	Message string         `json:"message"`
	Kind    portalerr.Kind `json:"kind"`
}

// Result is the outcome of a provisioning request.
// Exactly one of Success and Failure is set.
type Result struct {
	Success *StagePayload `json:"success,omitempty"`
	Failure *Failure      `json:"failure,omitempty"`

	err error
}

// Err returns the classified error that caused the failure, nil on success.
func (r *Result) Err() error {
	return r.err
}

func successResult(p *StagePayload) *Result {
	return &Result{Success: p}
}

func failureResult(err error) *Result {
	kind := portalerr.KindOf(err)

	return &Result{
		Failure: &Failure{
			Message: failureMessage(kind, err),
			Kind:    kind,
		},
		err: err,
	}
}

func failureMessage(kind portalerr.Kind, err error) string {
	switch kind {
	case portalerr.KindValidation:
		var validationErr *portalerr.ValidationError
		if errors.As(err, &validationErr) {
			return validationErr.Msg
		}

		return "invalid request"

	case portalerr.KindLockContention:
		return "provisioning for this team is already in progress, please retry later"

	case portalerr.KindBlocked:
		return "provisioning for this team is blocked, please contact the course staff"

	default:
		return "provisioning failed, please retry later"
	}
}
