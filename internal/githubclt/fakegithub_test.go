package githubclt

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeRepo struct {
	Name     string `json:"name"`
	FullName string `json:"full_name"`
	HTMLURL  string `json:"html_url"`
	Private  bool   `json:"private"`
}

type fakeTeam struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Slug    string `json:"slug"`
	HTMLURL string `json:"html_url"`

	members []string
	repos   map[string]string
}

type fakeHookConfig struct {
	URL         string `json:"url"`
	ContentType string `json:"content_type,omitempty"`
	InsecureSSL string `json:"insecure_ssl,omitempty"`
}

type fakeHook struct {
	ID     int64          `json:"id,omitempty"`
	Name   string         `json:"name"`
	Active bool           `json:"active"`
	Events []string       `json:"events"`
	Config fakeHookConfig `json:"config"`
}

// fakeGitHub is an in-memory implementation of the subset of the github
// REST and GraphQL API that is used by the client.
type fakeGitHub struct {
	srv *httptest.Server

	mu           sync.Mutex
	repos        map[string]*fakeRepo
	teams        map[string]*fakeTeam
	hooks        map[string][]*fakeHook
	unknownUsers map[string]bool
	nextID       int64

	// failures contains the number of times a request to "METHOD PATH"
	// is answered with a 502 status code
	failures map[string]int
	// rateLimited contains the number of requests that are answered with
	// a rate limit error
	rateLimited int

	createRepoCalls int
	createTeamCalls int
	requests        int
}

func newFakeGitHub(t *testing.T) *fakeGitHub {
	f := fakeGitHub{
		repos:        map[string]*fakeRepo{},
		teams:        map[string]*fakeTeam{},
		hooks:        map[string][]*fakeHook{},
		unknownUsers: map[string]bool{},
		failures:     map[string]int{},
		nextID:       100,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/{owner}/{repo}", f.getRepo)
	mux.HandleFunc("DELETE /repos/{owner}/{repo}", f.deleteRepo)
	mux.HandleFunc("GET /orgs/{org}/repos", f.listRepos)
	mux.HandleFunc("POST /orgs/{org}/repos", f.createRepo)
	mux.HandleFunc("GET /orgs/{org}/teams", f.listTeams)
	mux.HandleFunc("POST /orgs/{org}/teams", f.createTeam)
	mux.HandleFunc("GET /orgs/{org}/teams/{slug}", f.getTeam)
	mux.HandleFunc("DELETE /orgs/{org}/teams/{slug}", f.deleteTeam)
	mux.HandleFunc("PUT /orgs/{org}/teams/{slug}/memberships/{user}", f.addMembership)
	mux.HandleFunc("PUT /orgs/{org}/teams/{slug}/repos/{owner}/{repo}", f.addTeamRepo)
	mux.HandleFunc("GET /repos/{owner}/{repo}/hooks", f.listHooks)
	mux.HandleFunc("POST /repos/{owner}/{repo}/hooks", f.createHook)
	mux.HandleFunc("POST /graphql", f.graphql)

	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.requests++

		if f.rateLimited > 0 {
			f.rateLimited--
			f.mu.Unlock()

			reset := time.Now().Add(2 * time.Second).Unix()
			w.Header().Set("X-RateLimit-Limit", "5000")
			w.Header().Set("X-RateLimit-Remaining", "0")
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(reset, 10))
			writeJSON(w, http.StatusForbidden, map[string]string{
				"message": "API rate limit exceeded for 127.0.0.1.",
			})
			return
		}

		key := r.Method + " " + r.URL.Path
		if f.failures[key] > 0 {
			f.failures[key]--
			f.mu.Unlock()

			writeJSON(w, http.StatusBadGateway, map[string]string{"message": "Server Error"})
			return
		}
		f.mu.Unlock()

		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(f.srv.Close)

	return &f
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeNotFound(w http.ResponseWriter) {
	writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
}

func writeAlreadyExists(w http.ResponseWriter, resource string) {
	writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
		"message": "Validation Failed",
		"errors": []map[string]string{{
			"resource": resource,
			"code":     "custom",
			"field":    "name",
			"message":  "name already exists on this account",
		}},
	})
}

// paginate writes the page of elems that is requested via the page and
// per_page query parameters.
func paginate[T any](w http.ResponseWriter, r *http.Request, elems []T) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}

	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	if perPage < 1 {
		perPage = 30
	}

	start := (page - 1) * perPage
	if start > len(elems) {
		start = len(elems)
	}

	end := start + perPage
	if end > len(elems) {
		end = len(elems)
	}

	if end < len(elems) {
		w.Header().Set(
			"Link",
			fmt.Sprintf(`<http://%s%s?page=%d&per_page=%d>; rel="next"`, r.Host, r.URL.Path, page+1, perPage),
		)
	}

	writeJSON(w, http.StatusOK, elems[start:end])
}

func (f *fakeGitHub) url() string {
	return f.srv.URL
}

func (f *fakeGitHub) addRepo(org, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.repos[org+"/"+name] = &fakeRepo{
		Name:     name,
		FullName: org + "/" + name,
		HTMLURL:  "https://github.com/" + org + "/" + name,
		Private:  true,
	}
}

func (f *fakeGitHub) addTeam(org, name string, members ...string) *fakeTeam {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.addTeamLocked(org, name, members...)
}

func (f *fakeGitHub) addTeamLocked(org, name string, members ...string) *fakeTeam {
	f.nextID++
	slug := strings.ToLower(name)

	t := fakeTeam{
		ID:      f.nextID,
		Name:    name,
		Slug:    slug,
		HTMLURL: "https://github.com/orgs/" + org + "/teams/" + slug,
		members: members,
		repos:   map[string]string{},
	}
	f.teams[org+"/"+slug] = &t

	return &t
}

func (f *fakeGitHub) repoCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.repos)
}

func (f *fakeGitHub) team(org, slug string) *fakeTeam {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.teams[org+"/"+slug]
}

func (f *fakeGitHub) getRepo(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	repo, exists := f.repos[r.PathValue("owner")+"/"+r.PathValue("repo")]
	if !exists {
		writeNotFound(w)
		return
	}

	writeJSON(w, http.StatusOK, repo)
}

func (f *fakeGitHub) deleteRepo(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := r.PathValue("owner") + "/" + r.PathValue("repo")
	if _, exists := f.repos[key]; !exists {
		writeNotFound(w)
		return
	}

	delete(f.repos, key)
	w.WriteHeader(http.StatusNoContent)
}

func (f *fakeGitHub) listRepos(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	org := r.PathValue("org")

	var result []*fakeRepo
	for k, repo := range f.repos {
		if strings.HasPrefix(k, org+"/") {
			result = append(result, repo)
		}
	}

	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })

	paginate(w, r, result)
}

func (f *fakeGitHub) createRepo(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.createRepoCalls++

	org := r.PathValue("org")
	key := org + "/" + req.Name
	if _, exists := f.repos[key]; exists {
		writeAlreadyExists(w, "Repository")
		return
	}

	repo := fakeRepo{
		Name:     req.Name,
		FullName: key,
		HTMLURL:  "https://github.com/" + key,
		Private:  true,
	}
	f.repos[key] = &repo

	writeJSON(w, http.StatusCreated, &repo)
}

func (f *fakeGitHub) listTeams(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	org := r.PathValue("org")

	var result []*fakeTeam
	for k, t := range f.teams {
		if strings.HasPrefix(k, org+"/") {
			result = append(result, t)
		}
	}

	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })

	paginate(w, r, result)
}

func (f *fakeGitHub) createTeam(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name       string `json:"name"`
		Permission string `json:"permission"`
		Privacy    string `json:"privacy"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.createTeamCalls++

	org := r.PathValue("org")
	if _, exists := f.teams[org+"/"+strings.ToLower(req.Name)]; exists {
		writeAlreadyExists(w, "Team")
		return
	}

	t := f.addTeamLocked(org, req.Name)
	writeJSON(w, http.StatusCreated, t)
}

func (f *fakeGitHub) getTeam(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	t, exists := f.teams[r.PathValue("org")+"/"+r.PathValue("slug")]
	if !exists {
		writeNotFound(w)
		return
	}

	writeJSON(w, http.StatusOK, t)
}

func (f *fakeGitHub) requestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.requests
}

func (f *fakeGitHub) deleteTeam(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := r.PathValue("org") + "/" + r.PathValue("slug")
	if _, exists := f.teams[key]; !exists {
		writeNotFound(w)
		return
	}

	delete(f.teams, key)
	w.WriteHeader(http.StatusNoContent)
}

func (f *fakeGitHub) addMembership(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	t, exists := f.teams[r.PathValue("org")+"/"+r.PathValue("slug")]
	user := r.PathValue("user")
	if !exists || f.unknownUsers[user] {
		writeNotFound(w)
		return
	}

	found := false
	for _, m := range t.members {
		if m == user {
			found = true
			break
		}
	}
	if !found {
		t.members = append(t.members, user)
	}

	writeJSON(w, http.StatusOK, map[string]string{"state": "active", "role": "member"})
}

func (f *fakeGitHub) addTeamRepo(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Permission string `json:"permission"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	t, exists := f.teams[r.PathValue("org")+"/"+r.PathValue("slug")]
	if !exists {
		writeNotFound(w)
		return
	}

	if _, exists := f.repos[r.PathValue("owner")+"/"+r.PathValue("repo")]; !exists {
		writeNotFound(w)
		return
	}

	t.repos[r.PathValue("repo")] = req.Permission
	w.WriteHeader(http.StatusNoContent)
}

func (f *fakeGitHub) listHooks(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	paginate(w, r, f.hooks[r.PathValue("owner")+"/"+r.PathValue("repo")])
}

func (f *fakeGitHub) createHook(w http.ResponseWriter, r *http.Request) {
	var req fakeHook

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	key := r.PathValue("owner") + "/" + r.PathValue("repo")
	for _, h := range f.hooks[key] {
		if h.Config.URL == req.Config.URL {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
				"message": "Validation Failed",
				"errors": []map[string]string{{
					"resource": "Hook",
					"code":     "custom",
					"message":  "Hook already exists on this repository",
				}},
			})
			return
		}
	}

	f.nextID++
	req.ID = f.nextID
	f.hooks[key] = append(f.hooks[key], &req)

	writeJSON(w, http.StatusCreated, &req)
}

// graphql answers team member queries, it returns 2 members per page.
func (f *fakeGitHub) graphql(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query     string         `json:"query"`
		Variables map[string]any `json:"variables"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
		return
	}

	org, _ := req.Variables["org"].(string)
	slug, _ := req.Variables["slug"].(string)
	cursor, _ := req.Variables["cursor"].(string)

	f.mu.Lock()
	var members []string
	if t, exists := f.teams[org+"/"+slug]; exists {
		members = append(members, t.members...)
	}
	f.mu.Unlock()

	start, _ := strconv.Atoi(cursor)
	end := start + 2
	if end > len(members) {
		end = len(members)
	}

	nodes := []map[string]string{}
	for _, m := range members[start:end] {
		nodes = append(nodes, map[string]string{"login": m})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{
			"organization": map[string]any{
				"team": map[string]any{
					"members": map[string]any{
						"nodes": nodes,
						"pageInfo": map[string]any{
							"endCursor":   strconv.Itoa(end),
							"hasNextPage": end < len(members),
						},
					},
				},
			},
		},
	})
}
