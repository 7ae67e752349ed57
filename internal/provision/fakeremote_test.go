package provision

import (
	"context"
	"slices"
	"sync"

	"github.com/simplesurance/classportal/internal/githubclt"
)

// fakeRemote is an in-memory RemoteClient that records its calls.
type fakeRemote struct {
	mu sync.Mutex

	repos   map[string]string
	teams   map[string]*githubclt.Team
	members map[string][]string
	grants  map[string]string
	hooks   map[string][]*githubclt.Webhook
	imports map[string]int
	nextID  int64

	calls map[string]int
	// failures contains errors that are returned once by the method
	// with the name of the key
	failures map[string][]error
	// gates are waited for once by CreateRepo for the repository with
	// the name of the key, before the repository is created
	gates map[string]*gate
}

type gate struct {
	entered chan struct{}
	proceed chan struct{}
}

func newGate() *gate {
	return &gate{
		entered: make(chan struct{}),
		proceed: make(chan struct{}),
	}
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		repos:    map[string]string{},
		teams:    map[string]*githubclt.Team{},
		members:  map[string][]string{},
		grants:   map[string]string{},
		hooks:    map[string][]*githubclt.Webhook{},
		imports:  map[string]int{},
		nextID:   1000,
		calls:    map[string]int{},
		failures: map[string][]error{},
		gates:    map[string]*gate{},
	}
}

var mutatingMethods = []string{
	"CreateRepo", "CreateTeam", "AddMembersToTeam", "AddTeamToRepo", "AddWebhook", "ImportRepoFS",
}

// record counts the call and returns the next injected error of the
// method.
// f.mu must be held.
func (f *fakeRemote) record(method string) error {
	f.calls[method]++

	if errs := f.failures[method]; len(errs) > 0 {
		f.failures[method] = errs[1:]
		return errs[0]
	}

	return nil
}

func (f *fakeRemote) callCount(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.calls[method]
}

func (f *fakeRemote) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	var result int
	for _, cnt := range f.calls {
		result += cnt
	}

	return result
}

func (f *fakeRemote) mutatingCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	var result int
	for _, m := range mutatingMethods {
		result += f.calls[m]
	}

	return result
}

func (f *fakeRemote) failOnce(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.failures[method] = append(f.failures[method], err)
}

func (f *fakeRemote) addGate(repo string) *gate {
	f.mu.Lock()
	defer f.mu.Unlock()

	g := newGate()
	f.gates[repo] = g

	return g
}

// addTeam creates a team directly, without recording a call.
func (f *fakeRemote) addTeam(org, name string, members ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.createTeamLocked(org, name)
	f.members[org+"/"+name] = members
}

func (f *fakeRemote) setTeamMembers(org, name string, members ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.members[org+"/"+name] = members
}

func (f *fakeRemote) repoCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.repos)
}

func (f *fakeRemote) grant(org, team, repo string) string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.grants[org+"/"+team+"/"+repo]
}

func (f *fakeRemote) importCount(targetURL string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.imports[targetURL]
}

func (f *fakeRemote) createTeamLocked(org, name string) *githubclt.Team {
	f.nextID++

	t := githubclt.Team{
		Org:    org,
		Name:   name,
		Slug:   name,
		Number: f.nextID,
		URL:    "https://github.com/orgs/" + org + "/teams/" + name,
	}
	f.teams[org+"/"+name] = &t

	return &t
}

func (f *fakeRemote) RepoExists(_ context.Context, org, repo string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.record("RepoExists"); err != nil {
		return false, err
	}

	_, exists := f.repos[org+"/"+repo]

	return exists, nil
}

func (f *fakeRemote) CreateRepo(ctx context.Context, org, repo string) (string, error) {
	f.mu.Lock()
	g := f.gates[repo]
	delete(f.gates, repo)
	f.mu.Unlock()

	if g != nil {
		close(g.entered)

		select {
		case <-g.proceed:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.record("CreateRepo"); err != nil {
		return "", err
	}

	key := org + "/" + repo
	if url, exists := f.repos[key]; exists {
		return url, nil
	}

	url := "https://github.com/" + key
	f.repos[key] = url

	return url, nil
}

func (f *fakeRemote) FindTeam(_ context.Context, org, name string) (*githubclt.Team, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.record("FindTeam"); err != nil {
		return nil, err
	}

	t, exists := f.teams[org+"/"+name]
	if !exists {
		return nil, nil
	}

	c := *t

	return &c, nil
}

func (f *fakeRemote) CreateTeam(_ context.Context, org, name, _ string) (*githubclt.Team, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.record("CreateTeam"); err != nil {
		return nil, err
	}

	if t, exists := f.teams[org+"/"+name]; exists {
		c := *t
		return &c, nil
	}

	c := *f.createTeamLocked(org, name)

	return &c, nil
}

func (f *fakeRemote) TeamMembers(_ context.Context, team *githubclt.Team) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.record("TeamMembers"); err != nil {
		return nil, err
	}

	result := slices.Clone(f.members[team.Org+"/"+team.Name])
	slices.Sort(result)

	return result, nil
}

func (f *fakeRemote) AddMembersToTeam(_ context.Context, team *githubclt.Team, members []string) (*githubclt.Team, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.record("AddMembersToTeam"); err != nil {
		return nil, err
	}

	key := team.Org + "/" + team.Name
	for _, m := range members {
		if !slices.Contains(f.members[key], m) {
			f.members[key] = append(f.members[key], m)
		}
	}

	return team, nil
}

func (f *fakeRemote) AddTeamToRepo(_ context.Context, team *githubclt.Team, repo, permission string) (*githubclt.TeamRepoGrant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.record("AddTeamToRepo"); err != nil {
		return nil, err
	}

	f.grants[team.Org+"/"+team.Name+"/"+repo] = permission

	return &githubclt.TeamRepoGrant{
		Org:        team.Org,
		Repo:       repo,
		TeamNumber: team.Number,
		Permission: permission,
	}, nil
}

func (f *fakeRemote) ListWebhooks(_ context.Context, org, repo string) ([]*githubclt.Webhook, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.record("ListWebhooks"); err != nil {
		return nil, err
	}

	return slices.Clone(f.hooks[org+"/"+repo]), nil
}

func (f *fakeRemote) AddWebhook(_ context.Context, org, repo, callbackURL string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.record("AddWebhook"); err != nil {
		return false, err
	}

	key := org + "/" + repo
	f.nextID++
	f.hooks[key] = append(f.hooks[key], &githubclt.Webhook{
		ID:     f.nextID,
		URL:    callbackURL,
		Active: true,
		Events: githubclt.WebhookEvents,
	})

	return true, nil
}

func (f *fakeRemote) ImportRepoFS(_ context.Context, _, _, targetURL string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.record("ImportRepoFS"); err != nil {
		return false, err
	}

	f.imports[targetURL]++

	return true, nil
}
