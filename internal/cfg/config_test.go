package cfg

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const exampleCfg = `
http_server_listen_addr = ":9000"
github_api_token = "abc"
organizations = ["demo"]
staff_team = "staff"
pipeline_timeout = "2m"
lock_mode = "reject"

[[stage]]
id = "s0"
template_url = "https://github.com/templates/s0"

[[stage]]
id = "s1"
team_min_size = 1
team_max_size = 2
students_form_teams = true
`

func TestLoad(t *testing.T) {
	config, err := Load(strings.NewReader(exampleCfg))
	require.NoError(t, err)
	require.NoError(t, config.Validate())

	assert.Equal(t, ":9000", config.HTTPListenAddr)
	assert.Equal(t, []string{"demo"}, config.Organizations)
	assert.Equal(t, "staff", config.StaffTeam)
	assert.Equal(t, "reject", config.LockMode)
	assert.Equal(t, 2*time.Minute, config.PipelineTimeoutDuration())
	assert.Equal(t, []string{"s0", "s1"}, config.StageIDs())

	assert.Equal(t, &Stage{
		ID:          "s0",
		TemplateURL: "https://github.com/templates/s0",
		TeamMinSize: 1,
		TeamMaxSize: 1,
	}, config.Stages[0])
	assert.Equal(t, &Stage{
		ID:                "s1",
		TeamMinSize:       1,
		TeamMaxSize:       2,
		StudentsFormTeams: true,
	}, config.Stages[1])

	// defaults
	assert.Equal(t, DefLogFormat, config.LogFormat)
	assert.Equal(t, DefGradeEndpoint, config.GradeEndpoint)
	assert.Equal(t, uint(DefRetryMaxAttempts), config.RetryMaxAttempts)
	assert.Equal(t, time.Minute, config.RemoteCallTimeoutDuration())
	assert.Equal(t, time.Second, config.RetryInitialIntervalDuration())
	assert.Equal(t, 5*time.Minute, config.RetryMaxTimeoutDuration())
}

func TestMarshal(t *testing.T) {
	config, err := Load(strings.NewReader(exampleCfg))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, config.Marshal(&buf))

	assert.Contains(t, buf.String(), `http_server_listen_addr = ":9000"`)
	assert.Contains(t, buf.String(), "[[stage]]")
}

func TestValidate(t *testing.T) {
	tcs := []struct {
		name      string
		modify    func(*Config)
		errSubstr string
	}{
		{
			name:      "noOrganizations",
			modify:    func(c *Config) { c.Organizations = nil },
			errSubstr: "organizations",
		},
		{
			name:      "noStages",
			modify:    func(c *Config) { c.Stages = nil },
			errSubstr: "at least one stage",
		},
		{
			name:      "duplicateStage",
			modify:    func(c *Config) { c.Stages[1].ID = "s0" },
			errSubstr: "multiple times",
		},
		{
			name:      "emptyStageID",
			modify:    func(c *Config) { c.Stages[0].ID = "" },
			errSubstr: "id is empty",
		},
		{
			name:      "invalidTeamSize",
			modify:    func(c *Config) { c.Stages[1].TeamMaxSize = 0 },
			errSubstr: "team size",
		},
		{
			name:      "invalidDuration",
			modify:    func(c *Config) { c.PipelineTimeout = "ten minutes" },
			errSubstr: "pipeline_timeout",
		},
		{
			name:      "negativeDuration",
			modify:    func(c *Config) { c.RetryMaxTimeout = "-1s" },
			errSubstr: "retry_max_timeout",
		},
		{
			name:      "invalidLockMode",
			modify:    func(c *Config) { c.LockMode = "queue" },
			errSubstr: "lock_mode",
		},
		{
			name:      "missingToken",
			modify:    func(c *Config) { c.GithubAPIToken = "" },
			errSubstr: "github_api_token",
		},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			config, err := Load(strings.NewReader(exampleCfg))
			require.NoError(t, err)

			tc.modify(config)

			err = config.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.errSubstr)
		})
	}
}
