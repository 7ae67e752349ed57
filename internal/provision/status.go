package provision

import (
	"github.com/simplesurance/classportal/internal/store"
)

// State is the provisioning state of a team or person for a stage.
type State string

const (
	StateUnprovisioned State = "unprovisioned"
	// StateProvisioned means that the remote resources for the stage exist.
	StateProvisioned State = "provisioned"
	// StateComplete means that a grade for the stage was received.
	StateComplete State = "complete"
	// StateBlocked means that the remote state of the team is inconsistent
	// and requires manual intervention. Blocked teams are not provisioned.
	StateBlocked State = "blocked"
)

func (s State) String() string {
	return string(s)
}

// Status is the state of one stage of the ladder.
type Status struct {
	Stage string `json:"stage"`
	State State  `json:"state"`
}

const (
	teamStageKey     = "stage"
	teamStateKey     = "state"
	personStatusKey  = "status"
	contentImportKey = "content_imported"
)

func teamStatus(t *store.Team) Status {
	var result Status

	result.Stage, _ = t.Custom[teamStageKey].(string)

	state, _ := t.Custom[teamStateKey].(string)
	if state == "" {
		result.State = StateUnprovisioned
	} else {
		result.State = State(state)
	}

	return result
}

func setTeamStatus(t *store.Team, s Status) {
	if t.Custom == nil {
		t.Custom = store.Custom{}
	}

	t.Custom[teamStageKey] = s.Stage
	t.Custom[teamStateKey] = string(s.State)
}

func personStageStates(p *store.Person) map[string]any {
	if m, ok := p.Custom[personStatusKey].(map[string]any); ok {
		return m
	}

	return map[string]any{}
}

func personState(p *store.Person, stage string) State {
	state, _ := personStageStates(p)[stage].(string)
	if state == "" {
		return StateUnprovisioned
	}

	return State(state)
}

func setPersonState(p *store.Person, stage string, state State) {
	if p.Custom == nil {
		p.Custom = store.Custom{}
	}

	m := personStageStates(p)
	m[stage] = string(state)
	p.Custom[personStatusKey] = m
}

func contentImported(r *store.Repository) bool {
	imported, _ := r.Custom[contentImportKey].(bool)
	return imported
}

func setContentImported(r *store.Repository) {
	if r.Custom == nil {
		r.Custom = store.Custom{}
	}

	r.Custom[contentImportKey] = true
}

// advance returns the state that results from provisioning when the
// current state is cur. Complete stages stay complete.
func advance(cur, next State) State {
	if cur == StateComplete {
		return StateComplete
	}

	return next
}
