package provision

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simplesurance/classportal/internal/portalerr"
)

func newTestHTTPServer(t *testing.T, engine *Engine) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	NewHTTPService(engine).RegisterHandlers(mux, "/api/v1")

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return srv
}

func postJSON(t *testing.T, url, body string) (*http.Response, map[string]any) {
	t.Helper()

	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var result map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))

	return resp, result
}

func TestHTTPProvision(t *testing.T) {
	remote := newFakeRemoteWithStaff()
	engine := newTestEngine(t, remote, newTestStore(t))
	srv := newTestHTTPServer(t, engine)

	resp, result := postJSON(t, srv.URL+"/api/v1/orgs/demo/stages/s0/provision", `{"members": ["alice"]}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.Equal(t, map[string]any{
		"success": map[string]any{
			"stage":   "s0",
			"state":   "provisioned",
			"team":    "s0_alice",
			"repoUrl": "https://github.com/demo/s0_alice",
		},
	}, result)
}

func TestHTTPProvisionFailures(t *testing.T) {
	tcs := []struct {
		name           string
		path           string
		body           string
		expectedStatus int
		expectedKind   portalerr.Kind
	}{
		{
			name:           "invalidBody",
			path:           "/api/v1/orgs/demo/stages/s0/provision",
			body:           `{"members": `,
			expectedStatus: http.StatusBadRequest,
			expectedKind:   portalerr.KindValidation,
		},
		{
			name:           "teamTooLarge",
			path:           "/api/v1/orgs/demo/stages/s0/provision",
			body:           `{"members": ["a", "b"]}`,
			expectedStatus: http.StatusBadRequest,
			expectedKind:   portalerr.KindValidation,
		},
		{
			name:           "unknownStage",
			path:           "/api/v1/orgs/demo/stages/s7/provision",
			body:           `{"members": ["a"]}`,
			expectedStatus: http.StatusBadRequest,
			expectedKind:   portalerr.KindValidation,
		},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			remote := newFakeRemoteWithStaff()
			engine := newTestEngine(t, remote, newTestStore(t))
			srv := newTestHTTPServer(t, engine)

			resp, result := postJSON(t, srv.URL+tc.path, tc.body)
			assert.Equal(t, tc.expectedStatus, resp.StatusCode)
			require.Contains(t, result, "failure")

			failure := result["failure"].(map[string]any)
			assert.Equal(t, string(tc.expectedKind), failure["kind"])
			assert.NotEmpty(t, failure["message"])
			assert.NotContains(t, result, "success")
			assert.Zero(t, remote.totalCalls())
		})
	}
}

func TestHTTPBlockedTeamIsConflict(t *testing.T) {
	remote := newFakeRemoteWithStaff()
	remote.addTeam(org, "s0_alice", "mallory")
	engine := newTestEngine(t, remote, newTestStore(t))
	srv := newTestHTTPServer(t, engine)

	resp, result := postJSON(t, srv.URL+"/api/v1/orgs/demo/stages/s0/provision", `{"members": ["alice"]}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, string(portalerr.KindBlocked), result["failure"].(map[string]any)["kind"])

	resp, result = postJSON(t, srv.URL+"/api/v1/orgs/demo/teams/s0_alice/reset", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, result["success"])

	resp, _ = postJSON(t, srv.URL+"/api/v1/orgs/demo/teams/s0_alice/reset", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHTTPStatus(t *testing.T) {
	remote := newFakeRemoteWithStaff()
	engine := newTestEngine(t, remote, newTestStore(t))
	srv := newTestHTTPServer(t, engine)

	resp, _ := postJSON(t, srv.URL+"/api/v1/orgs/demo/stages/s0/provision", `{"members": ["alice"]}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err := http.Get(srv.URL + "/api/v1/orgs/demo/persons/alice/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var result struct {
		Success []Status `json:"success"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.Equal(t, []Status{
		{Stage: "s0", State: StateProvisioned},
		{Stage: "s1", State: StateUnprovisioned},
	}, result.Success)
}

func TestHTTPStatusCodes(t *testing.T) {
	assert.Equal(t, http.StatusOK, httpStatus(portalerr.KindNone))
	assert.Equal(t, http.StatusBadRequest, httpStatus(portalerr.KindValidation))
	assert.Equal(t, http.StatusConflict, httpStatus(portalerr.KindLockContention))
	assert.Equal(t, http.StatusConflict, httpStatus(portalerr.KindBlocked))
	assert.Equal(t, http.StatusServiceUnavailable, httpStatus(portalerr.KindTransient))
	assert.Equal(t, http.StatusInternalServerError, httpStatus(portalerr.KindPermanent))
	assert.Equal(t, http.StatusInternalServerError, httpStatus(portalerr.KindInternal))
}
