package cfg

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/pelletier/go-toml"
)

const (
	DefHTTPListenAddr       = ":8080"
	DefLogFormat            = "logfmt"
	DefLogTimeKey           = "time_iso8601"
	DefLogLevel             = "info"
	DefGradeEndpoint        = "/api/v1/grades"
	DefScratchDir           = "/var/tmp/classportal"
	DefRemoteCallTimeout    = "1m"
	DefPipelineTimeout      = "10m"
	DefRetryMaxAttempts     = 5
	DefRetryInitialInterval = "1s"
	DefRetryMaxTimeout      = "5m"
	DefLockMode             = "wait"
)

type Config struct {
	HTTPListenAddr       string   `toml:"http_server_listen_addr"`
	LogFormat            string   `toml:"log_format"`
	LogTimeKey           string   `toml:"log_time_key"`
	LogLevel             string   `toml:"log_level"`
	GithubAPIToken       string   `toml:"github_api_token"`
	GithubAPIURL         string   `toml:"github_api_url"`
	GithubGraphQLURL     string   `toml:"github_graphql_url"`
	DryRun               bool     `toml:"dry_run"`
	Organizations        []string `toml:"organizations"`
	StaffTeam            string   `toml:"staff_team"`
	TeamPrefix           string   `toml:"team_prefix"`
	RepoPrefix           string   `toml:"repo_prefix"`
	IgnoredTeamMembers   []string `toml:"ignored_team_members"`
	GradeEndpoint        string   `toml:"grade_endpoint"`
	GradeWebhookURL      string   `toml:"grade_webhook_url"`
	GradeWebhookSecret   string   `toml:"grade_webhook_secret"`
	ScratchDir           string   `toml:"scratch_dir"`
	RemoteCallTimeout    string   `toml:"remote_call_timeout"`
	PipelineTimeout      string   `toml:"pipeline_timeout"`
	RetryMaxAttempts     uint     `toml:"retry_max_attempts"`
	RetryInitialInterval string   `toml:"retry_initial_interval"`
	RetryMaxTimeout      string   `toml:"retry_max_timeout"`
	LockMode             string   `toml:"lock_mode"`
	RedisAddr            string   `toml:"redis_addr"`
	DatabaseDSN          string   `toml:"database_dsn"`
	Stages               []*Stage `toml:"stage"`
}

// Stage is a deliverable of the course.
// The order of the stages in the configuration defines the order in which
// they must be completed.
type Stage struct {
	ID                string `toml:"id"`
	TemplateURL       string `toml:"template_url"`
	TeamMinSize       int    `toml:"team_min_size"`
	TeamMaxSize       int    `toml:"team_max_size"`
	StudentsFormTeams bool   `toml:"students_form_teams"`
}

func Load(reader io.Reader) (*Config, error) {
	var result Config

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}

	if err := toml.Unmarshal(data, &result); err != nil {
		return nil, err
	}

	result.setDefaults()

	return &result, nil
}

func (r *Config) setDefaults() {
	setDefault(&r.HTTPListenAddr, DefHTTPListenAddr)
	setDefault(&r.LogFormat, DefLogFormat)
	setDefault(&r.LogTimeKey, DefLogTimeKey)
	setDefault(&r.LogLevel, DefLogLevel)
	setDefault(&r.GradeEndpoint, DefGradeEndpoint)
	setDefault(&r.ScratchDir, DefScratchDir)
	setDefault(&r.RemoteCallTimeout, DefRemoteCallTimeout)
	setDefault(&r.PipelineTimeout, DefPipelineTimeout)
	setDefault(&r.RetryInitialInterval, DefRetryInitialInterval)
	setDefault(&r.RetryMaxTimeout, DefRetryMaxTimeout)
	setDefault(&r.LockMode, DefLockMode)

	if r.RetryMaxAttempts == 0 {
		r.RetryMaxAttempts = DefRetryMaxAttempts
	}

	for _, s := range r.Stages {
		if s.TeamMinSize == 0 {
			s.TeamMinSize = 1
		}

		if s.TeamMaxSize == 0 {
			s.TeamMaxSize = s.TeamMinSize
		}
	}
}

func setDefault(val *string, def string) {
	if *val == "" {
		*val = def
	}
}

// Validate returns an error if the configuration is incomplete or contains
// invalid values.
func (r *Config) Validate() error {
	if len(r.Organizations) == 0 {
		return errors.New("organizations: at least one organization must be configured")
	}

	if len(r.Stages) == 0 {
		return errors.New("stage: at least one stage must be configured")
	}

	seen := make(map[string]struct{}, len(r.Stages))
	for i, s := range r.Stages {
		if s.ID == "" {
			return fmt.Errorf("stage[%d]: id is empty", i)
		}

		if _, exists := seen[s.ID]; exists {
			return fmt.Errorf("stage[%d]: id %q is defined multiple times", i, s.ID)
		}
		seen[s.ID] = struct{}{}

		if s.TeamMinSize < 1 || s.TeamMaxSize < s.TeamMinSize {
			return fmt.Errorf("stage %s: team size bounds %d-%d are invalid", s.ID, s.TeamMinSize, s.TeamMaxSize)
		}
	}

	for key, val := range map[string]string{
		"remote_call_timeout":    r.RemoteCallTimeout,
		"pipeline_timeout":       r.PipelineTimeout,
		"retry_initial_interval": r.RetryInitialInterval,
		"retry_max_timeout":      r.RetryMaxTimeout,
	} {
		if _, err := parsePositiveDuration(val); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	}

	if r.LockMode != "wait" && r.LockMode != "reject" {
		return fmt.Errorf("lock_mode: %q is invalid, must be wait or reject", r.LockMode)
	}

	if r.GithubAPIToken == "" {
		return errors.New("github_api_token: must be set")
	}

	return nil
}

func parsePositiveDuration(val string) (time.Duration, error) {
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, err
	}

	if d <= 0 {
		return 0, fmt.Errorf("duration %s must be positive", val)
	}

	return d, nil
}

// mustDuration returns the parsed duration, it panics when val is invalid.
// It must only be called after Validate() succeeded.
func mustDuration(val string) time.Duration {
	d, err := parsePositiveDuration(val)
	if err != nil {
		panic(err)
	}

	return d
}

func (r *Config) RemoteCallTimeoutDuration() time.Duration {
	return mustDuration(r.RemoteCallTimeout)
}

func (r *Config) PipelineTimeoutDuration() time.Duration {
	return mustDuration(r.PipelineTimeout)
}

func (r *Config) RetryInitialIntervalDuration() time.Duration {
	return mustDuration(r.RetryInitialInterval)
}

func (r *Config) RetryMaxTimeoutDuration() time.Duration {
	return mustDuration(r.RetryMaxTimeout)
}

// StageIDs returns the IDs of the stages in their configured order.
func (r *Config) StageIDs() []string {
	result := make([]string, 0, len(r.Stages))
	for _, s := range r.Stages {
		result = append(result, s.ID)
	}

	return result
}

func (r *Config) Marshal(writer io.Writer) error {
	return toml.NewEncoder(writer).Encode(r)
}
