package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	zaplogfmt "github.com/sykesm/zap-logfmt"
	"github.com/thecodeteam/goodbye"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/simplesurance/classportal/internal/cfg"
	"github.com/simplesurance/classportal/internal/githubclt"
	"github.com/simplesurance/classportal/internal/gitutil"
	"github.com/simplesurance/classportal/internal/gradeingest"
	"github.com/simplesurance/classportal/internal/logfields"
	"github.com/simplesurance/classportal/internal/provision"
	"github.com/simplesurance/classportal/internal/retry"
	"github.com/simplesurance/classportal/internal/store"
	"github.com/simplesurance/classportal/internal/store/pgstore"
)

const appName = "classportal"

var logger *zap.Logger

// Version is set via a ldflag on compilation
var Version = "unknown"

const (
	apiPrefix       = "/api/v1"
	metricsEndpoint = "/metrics"
)

func exitOnErr(msg string, err error) {
	if err == nil {
		return
	}

	fmt.Fprintln(os.Stderr, "ERROR:", msg+", error:", err.Error())
	os.Exit(1)
}

func panicHandler() {
	if r := recover(); r != nil {
		logger.Info(
			"panic caught, terminating gracefully",
			zap.String("panic", fmt.Sprintf("%v", r)),
			zap.StackSkip("stacktrace", 1),
		)

		ctx, cancelFn := context.WithTimeout(context.Background(), time.Minute)
		defer cancelFn()

		goodbye.Exit(ctx, 1)
	}
}

func startHTTPServer(listenAddr string, mux *http.ServeMux) {
	httpServer := http.Server{
		Addr:              listenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 30 * time.Second,
	}

	goodbye.Register(func(context.Context, os.Signal) {
		const shutdownTimeout = 30 * time.Second
		ctx, cancelFn := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancelFn()

		logger.Debug(
			"terminating http server",
			logfields.Event("http_server_terminating"),
			zap.Duration("shutdown_timeout", shutdownTimeout),
		)

		err := httpServer.Shutdown(ctx)
		if err != nil {
			logger.Warn(
				"shutting down http server failed",
				logfields.Event("http_server_termination_failed"),
				zap.Error(err),
			)
		}
	})

	go func() {
		defer panicHandler()

		logger.Info(
			"http server started",
			logfields.Event("http_server_started"),
			zap.String("listenAddr", listenAddr),
		)

		err := httpServer.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			logger.Info("http server terminated", logfields.Event("http_server_terminated"))
			return
		}

		logger.Fatal(
			"http server terminated unexpectedly",
			logfields.Event("http_server_terminated_unexpectedly"),
			zap.Error(err),
		)
	}()
}

type arguments struct {
	Verbose     *bool
	ConfigFile  *string
	ShowVersion *bool
}

var args arguments

const defConfigFile = "/etc/classportal/config.toml"

func mustParseCommandlineParams() {
	args = arguments{
		Verbose: pflag.BoolP(
			"verbose",
			"v",
			false,
			"enable verbose logging",
		),
		ConfigFile: pflag.StringP(
			"cfg-file",
			"c",
			defConfigFile,
			"path to the classportal configuration file",
		),
		ShowVersion: pflag.Bool(
			"version",
			false,
			"print the version and exit",
		),
	}

	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTION]\nProvision GitHub teams and repositories for course stages.\n", appName)
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		pflag.PrintDefaults()
	}

	pflag.Parse()
}

func mustParseCfg() *cfg.Config {
	// we use exitOnErr in this function instead of logger.Fatal() because
	// the logger is not initialized yet

	file, err := os.Open(*args.ConfigFile)
	exitOnErr("could not open configuration files", err)
	defer file.Close()

	config, err := cfg.Load(file)
	exitOnErr(fmt.Sprintf("could not load configuration file: %s", *args.ConfigFile), err)

	err = config.Validate()
	exitOnErr(fmt.Sprintf("configuration file %s is invalid", *args.ConfigFile), err)

	return config
}

func initLogFmtLogger(config *cfg.Config, logLevel zapcore.Level) *zap.Logger {
	cfg := zapEncoderConfig(config)

	logger := zap.New(zapcore.NewCore(
		zaplogfmt.NewEncoder(cfg),
		os.Stdout,
		logLevel),
	)

	return logger
}

func zapEncoderConfig(config *cfg.Config) zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()

	cfg.LevelKey = "loglevel"
	cfg.TimeKey = config.LogTimeKey
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeDuration = zapcore.StringDurationEncoder

	return cfg
}

func mustInitZapFormatLogger(config *cfg.Config, logLevel zapcore.Level) *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.Sampling = nil
	cfg.EncoderConfig = zapEncoderConfig(config)
	cfg.OutputPaths = []string{"stdout"}
	cfg.Encoding = config.LogFormat
	cfg.Level = zap.NewAtomicLevelAt(logLevel)

	logger, err := cfg.Build()
	exitOnErr("could not initialize logger", err)

	return logger
}

func mustInitLogger(config *cfg.Config) {
	var logLevel zapcore.Level
	if *args.Verbose {
		logLevel = zapcore.DebugLevel
	} else {
		if err := (&logLevel).Set(config.LogLevel); err != nil {
			fmt.Fprintf(os.Stderr, "can not set log level to %q: %s \n", config.LogLevel, err)
			os.Exit(2)
		}
	}

	switch config.LogFormat {
	case "logfmt":
		logger = initLogFmtLogger(config, logLevel)
	case "console", "json":
		logger = mustInitZapFormatLogger(config, logLevel)
	default:
		fmt.Fprintf(os.Stderr, "unsupported log-format argument: %q\n", config.LogFormat)
		os.Exit(2)
	}

	logger = logger.Named("main")
	zap.ReplaceGlobals(logger)

	goodbye.Register(func(context.Context, os.Signal) {
		if err := logger.Sync(); err != nil {
			fmt.Fprintf(os.Stderr, "flushing logs failed: %s\n", err)
		}
	})
}

func hide(in string) string {
	if in == "" {
		return in
	}

	return "**hidden**"
}

func mustInitGateway(config *cfg.Config) store.Gateway {
	if config.DatabaseDSN == "" {
		logger.Info(
			"database_dsn is not set, using in-memory store, data is lost on termination",
			logfields.Event("store_in_memory"),
		)

		return store.NewMemory()
	}

	ctx, cancelFn := context.WithTimeout(context.Background(), time.Minute)
	defer cancelFn()

	pg, err := pgstore.Open(ctx, config.DatabaseDSN)
	if err != nil {
		logger.Fatal("connecting to database failed", logfields.Event("store_connecting_failed"), zap.Error(err))
	}

	if err := pg.Migrate(ctx); err != nil {
		logger.Fatal("migrating database schema failed", logfields.Event("store_migration_failed"), zap.Error(err))
	}

	goodbye.Register(func(context.Context, os.Signal) {
		if err := pg.Close(); err != nil {
			logger.Warn("closing database connection failed", logfields.Event("store_close_failed"), zap.Error(err))
		}
	})

	logger.Info("connected to database", logfields.Event("store_connected"))

	return pg
}

func mustInitLocker(config *cfg.Config) provision.Locker {
	if config.RedisAddr == "" {
		return provision.NewKeyedMutex()
	}

	clt, err := provision.NewRedisClient(config.RedisAddr)
	if err != nil {
		logger.Fatal("connecting to redis failed", logfields.Event("redis_connecting_failed"), zap.Error(err))
	}

	goodbye.Register(func(context.Context, os.Signal) {
		if err := clt.Close(); err != nil {
			logger.Warn("closing redis connection failed", logfields.Event("redis_close_failed"), zap.Error(err))
		}
	})

	// a lock must outlive the pipeline that holds it
	return provision.NewRedisLocker(clt, 2*config.PipelineTimeoutDuration())
}

func mustInitRemoteClient(config *cfg.Config) provision.RemoteClient {
	retryer := retry.New(
		retry.WithMaxAttempts(config.RetryMaxAttempts),
		retry.WithBackoffInitialInterval(config.RetryInitialIntervalDuration()),
		retry.WithMaxRetryTimeout(config.RetryMaxTimeoutDuration()),
		retry.WithAttemptTimeout(config.RemoteCallTimeoutDuration()),
	)
	goodbye.Register(func(context.Context, os.Signal) {
		retryer.Stop()
	})

	runner, err := gitutil.NewRunner(config.GithubAPIToken)
	if err != nil {
		logger.Fatal("initializing git runner failed", logfields.Event("git_runner_init_failed"), zap.Error(err))
	}

	opts := []githubclt.Option{
		githubclt.WithRetryer(retryer),
		githubclt.WithImporter(gitutil.NewImporter(runner, config.ScratchDir, config.GithubAPIToken)),
	}

	if config.GithubAPIURL != "" || config.GithubGraphQLURL != "" {
		opts = append(opts, githubclt.WithBaseURLs(config.GithubAPIURL, config.GithubGraphQLURL))
	}

	clt, err := githubclt.New(config.GithubAPIToken, opts...)
	if err != nil {
		logger.Fatal("initializing github client failed", logfields.Event("github_client_init_failed"), zap.Error(err))
	}

	if config.DryRun {
		logger.Info("dry run enabled, github resources are not changed", logfields.Event("dry_run_enabled"))
		return provision.NewDryGithubClient(clt, logger)
	}

	return clt
}

func mustSeedStages(config *cfg.Config, gateway store.Gateway) {
	delivs := make([]*store.Deliverable, 0, len(config.Organizations)*len(config.Stages))

	for _, org := range config.Organizations {
		for _, s := range config.Stages {
			delivs = append(delivs, &store.Deliverable{
				ID:                s.ID,
				Org:               org,
				TeamMinSize:       s.TeamMinSize,
				TeamMaxSize:       s.TeamMaxSize,
				StudentsFormTeams: s.StudentsFormTeams,
				TemplateURL:       s.TemplateURL,
			})
		}
	}

	ctx, cancelFn := context.WithTimeout(context.Background(), time.Minute)
	defer cancelFn()

	created, err := provision.SeedDeliverables(ctx, gateway, delivs)
	if err != nil {
		logger.Fatal("seeding stages failed", logfields.Event("stage_seeding_failed"), zap.Error(err))
	}

	logger.Info(
		"stages seeded",
		logfields.Event("stages_seeded"),
		zap.Int("created_deliverables", created),
	)
}

func main() {
	defer panicHandler()

	defer goodbye.Exit(context.Background(), 1)
	goodbye.Notify(context.Background())

	mustParseCommandlineParams()

	if *args.ShowVersion {
		fmt.Printf("%s %s\n", appName, Version)
		os.Exit(0) // nolint:gocritic // defer functions won't run
	}

	config := mustParseCfg()

	mustInitLogger(config)

	logger.Info(
		"loaded cfg file",
		logfields.Event("cfg_loaded"),
		zap.String("cfg_file", *args.ConfigFile),
		zap.String("http_server_listen_addr", config.HTTPListenAddr),
		zap.String("github_api_token", hide(config.GithubAPIToken)),
		zap.String("github_api_url", config.GithubAPIURL),
		zap.String("github_graphql_url", config.GithubGraphQLURL),
		zap.Bool("dry_run", config.DryRun),
		zap.Strings("organizations", config.Organizations),
		zap.String("staff_team", config.StaffTeam),
		zap.String("team_prefix", config.TeamPrefix),
		zap.String("repo_prefix", config.RepoPrefix),
		zap.Strings("ignored_team_members", config.IgnoredTeamMembers),
		zap.String("grade_endpoint", config.GradeEndpoint),
		zap.String("grade_webhook_url", config.GradeWebhookURL),
		zap.String("grade_webhook_secret", hide(config.GradeWebhookSecret)),
		zap.String("scratch_dir", config.ScratchDir),
		zap.String("remote_call_timeout", config.RemoteCallTimeout),
		zap.String("pipeline_timeout", config.PipelineTimeout),
		zap.Uint("retry_max_attempts", config.RetryMaxAttempts),
		zap.String("retry_initial_interval", config.RetryInitialInterval),
		zap.String("retry_max_timeout", config.RetryMaxTimeout),
		zap.String("lock_mode", config.LockMode),
		zap.String("redis_addr", config.RedisAddr),
		zap.String("database_dsn", hide(config.DatabaseDSN)),
		zap.Strings("stages", config.StageIDs()),
		zap.String("log_format", config.LogFormat),
		zap.String("log_time_key", config.LogTimeKey),
		zap.String("log_level", config.LogLevel),
	)

	goodbye.Register(func(_ context.Context, sig os.Signal) {
		logger.Info(fmt.Sprintf("terminating, received signal %s", sig.String()))
	})

	gateway := mustInitGateway(config)
	mustSeedStages(config, gateway)

	engine := provision.NewEngine(
		provision.Config{
			Stages:             config.StageIDs(),
			StaffTeam:          config.StaffTeam,
			TeamPrefix:         config.TeamPrefix,
			RepoPrefix:         config.RepoPrefix,
			WebhookURL:         config.GradeWebhookURL,
			IgnoredTeamMembers: config.IgnoredTeamMembers,
			PipelineTimeout:    config.PipelineTimeoutDuration(),
			LockMode:           provision.LockMode(config.LockMode),
		},
		mustInitRemoteClient(config),
		gateway,
		mustInitLocker(config),
	)

	mux := http.NewServeMux()

	provision.NewHTTPService(engine).RegisterHandlers(mux, apiPrefix)
	logger.Info(
		"registered provisioning http endpoints",
		logfields.Event("provision_http_handler_registered"),
		zap.String("endpoint", apiPrefix),
	)

	gradeingest.New(
		engine,
		gradeingest.WithPayloadSecret(config.GradeWebhookSecret),
		gradeingest.WithProcessingTimeout(config.PipelineTimeoutDuration()),
	).RegisterHandlers(mux, config.GradeEndpoint)
	logger.Info(
		"registered grade ingestion http endpoint",
		logfields.Event("grade_http_handler_registered"),
		zap.String("endpoint", config.GradeEndpoint),
	)

	mux.Handle(metricsEndpoint, promhttp.Handler())

	startHTTPServer(config.HTTPListenAddr, mux)

	// goodbye terminates the process when a signal is received
	select {}
}
