// Package githubclt provides an idempotent github API client for provisioning
// repositories and teams.
package githubclt

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/go-github/v59/github"
	"github.com/shurcooL/githubv4"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/simplesurance/classportal/internal/logfields"
	"github.com/simplesurance/classportal/internal/portalerr"
	"github.com/simplesurance/classportal/internal/retry"
)

const DefaultHTTPClientTimeout = time.Minute

const loggerName = "github_client"

// TeamNotFound is returned by GetTeamNumber when the team does not exist.
const TeamNotFound int64 = -1

// Importer copies the content of one git repository into another.
type Importer interface {
	MirrorImport(ctx context.Context, sourceURL, targetURL string) error
}

type options struct {
	restURL    string
	graphQLURL string
	httpClient *http.Client
	retryer    *retry.Retryer
	importer   Importer
}

type Option func(*options)

// WithBaseURLs sets the endpoints of the REST and GraphQL APIs, it is
// required for GitHub Enterprise installations.
func WithBaseURLs(restURL, graphQLURL string) Option {
	return func(o *options) {
		o.restURL = restURL
		o.graphQLURL = graphQLURL
	}
}

// WithHTTPClient sets the http client that is used for API requests.
// The client must add the authentication credentials itself.
func WithHTTPClient(clt *http.Client) Option {
	return func(o *options) {
		o.httpClient = clt
	}
}

func WithRetryer(r *retry.Retryer) Option {
	return func(o *options) {
		o.retryer = r
	}
}

func WithImporter(imp Importer) Option {
	return func(o *options) {
		o.importer = imp
	}
}

// New returns a new github api client.
func New(oauthAPItoken string, opts ...Option) (*Client, error) {
	var o options

	for _, opt := range opts {
		opt(&o)
	}

	httpClient := o.httpClient
	if httpClient == nil {
		httpClient = newHTTPClient(oauthAPItoken)
	}

	restClt := github.NewClient(httpClient)
	if o.restURL != "" {
		u, err := url.Parse(o.restURL)
		if err != nil {
			return nil, fmt.Errorf("parsing github api url failed: %w", err)
		}

		if !strings.HasSuffix(u.Path, "/") {
			u.Path += "/"
		}

		restClt.BaseURL = u
	}

	var graphQLClt *githubv4.Client
	if o.graphQLURL != "" {
		graphQLClt = githubv4.NewEnterpriseClient(o.graphQLURL, httpClient)
	} else {
		graphQLClt = githubv4.NewClient(httpClient)
	}

	retryer := o.retryer
	if retryer == nil {
		retryer = retry.New()
	}

	return &Client{
		restClt:    restClt,
		graphQLClt: graphQLClt,
		retryer:    retryer,
		importer:   o.importer,
		logger:     zap.L().Named(loggerName),
	}, nil
}

func newHTTPClient(apiToken string) *http.Client {
	if apiToken == "" {
		return &http.Client{
			Timeout: DefaultHTTPClientTimeout,
		}
	}

	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: apiToken},
	)

	tc := oauth2.NewClient(context.Background(), ts)
	tc.Timeout = DefaultHTTPClientTimeout

	return tc
}

// Client is an github API client.
// All operations are retried when they fail with a temporary error, failures
// are returned as portalerr.RetryableError or portalerr.PermanentError.
// When the API rate limit is exceeded, all operations of the client are
// suspended until the reset time reported by github.
type Client struct {
	restClt    *github.Client
	graphQLClt *githubv4.Client
	retryer    *retry.Retryer
	importer   Importer
	logger     *zap.Logger

	rateLimitLock    sync.Mutex
	rateLimitedUntil time.Time
}

// do runs fn via the retryer.
// A rate limit suspension is awaited before the retryer runs, bounded only by
// ctx. When the client is suspended while fn is retried, the attempt fails
// with a retryable error that is retried after the reset time.
func (clt *Client) do(ctx context.Context, logF []zap.Field, fn func(context.Context) error) error {
	if err := clt.waitForRateLimitReset(ctx); err != nil {
		return err
	}

	return clt.retryer.Run(ctx, func(ctx context.Context) error {
		if until := clt.suspendedUntil(); time.Now().Before(until) {
			return portalerr.NewRetryableError(errors.New("api calls suspended until rate limit reset"), until)
		}

		return fn(ctx)
	}, logF)
}

func (clt *Client) suspendedUntil() time.Time {
	clt.rateLimitLock.Lock()
	defer clt.rateLimitLock.Unlock()

	return clt.rateLimitedUntil
}

func (clt *Client) suspendUntil(t time.Time) {
	clt.rateLimitLock.Lock()
	defer clt.rateLimitLock.Unlock()

	if t.After(clt.rateLimitedUntil) {
		clt.rateLimitedUntil = t
	}
}

func (clt *Client) waitForRateLimitReset(ctx context.Context) error {
	d := time.Until(clt.suspendedUntil())
	if d <= 0 {
		return nil
	}

	clt.logger.Debug(
		"api calls suspended, waiting for rate limit reset",
		logfields.Event("github_api_calls_suspended"),
		zap.Duration("wait_duration", d),
	)

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func isAlreadyExistsResponse(respErr *github.ErrorResponse) bool {
	if strings.Contains(strings.ToLower(respErr.Message), "already exist") {
		return true
	}

	for _, e := range respErr.Errors {
		if e.Code == "already_exists" ||
			strings.Contains(strings.ToLower(e.Message), "already exist") ||
			strings.Contains(strings.ToLower(e.Message), "must be unique") {
			return true
		}
	}

	return false
}

// wrapErrors classifies errors returned by the REST client.
// Context errors are returned unchanged.
func (clt *Client) wrapErrors(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var rateLimitErr *github.RateLimitError
	if errors.As(err, &rateLimitErr) {
		clt.logger.Info(
			"rate limit exceeded",
			logfields.Event("github_api_rate_limit_exceeded"),
			zap.Int("github_api_rate_limit", rateLimitErr.Rate.Limit),
			zap.Time("github_api_rate_limit_reset_time", rateLimitErr.Rate.Reset.Time),
		)

		clt.suspendUntil(rateLimitErr.Rate.Reset.Time)

		return portalerr.NewRetryableError(err, rateLimitErr.Rate.Reset.Time)
	}

	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		if abuseErr.RetryAfter == nil {
			return portalerr.NewRetryableAnytimeError(err)
		}

		after := time.Now().Add(*abuseErr.RetryAfter)

		clt.logger.Info(
			"secondary rate limit exceeded",
			logfields.Event("github_api_secondary_rate_limit_exceeded"),
			zap.Time("retry_after", after),
		)

		clt.suspendUntil(after)

		return portalerr.NewRetryableError(err, after)
	}

	var respErr *github.ErrorResponse
	if errors.As(err, &respErr) {
		if respErr.Response == nil {
			return portalerr.NewPermanentError(err)
		}

		switch code := respErr.Response.StatusCode; {
		case code >= 500 && code < 600:
			return portalerr.NewRetryableAnytimeError(err)

		case code == http.StatusNotFound:
			return portalerr.NewPermanentError(fmt.Errorf("%w: %w", portalerr.ErrNotFound, err))

		case code == http.StatusUnprocessableEntity && isAlreadyExistsResponse(respErr):
			return portalerr.NewPermanentError(fmt.Errorf("%w: %w", portalerr.ErrAlreadyExists, err))

		default:
			return portalerr.NewPermanentError(err)
		}
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return portalerr.NewRetryableAnytimeError(err)
	}

	return portalerr.NewPermanentError(err)
}

var graphQlHTTPStatusErrRe = regexp.MustCompile(`^non-200 OK status code: ([0-9]+) .*`)

func (clt *Client) wrapGraphQLErrors(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return portalerr.NewRetryableAnytimeError(err)
	}

	matches := graphQlHTTPStatusErrRe.FindStringSubmatch(err.Error())
	if len(matches) != 2 {
		return portalerr.NewPermanentError(err)
	}

	errcode, atoiErr := strconv.Atoi(matches[1])
	if atoiErr != nil {
		clt.logger.Info(
			"parsing http code from error string failed",
			zap.Error(atoiErr),
			zap.String("error_string", err.Error()),
			zap.String("http_errcode", matches[1]),
		)
		return portalerr.NewPermanentError(err)
	}

	if errcode >= 500 && errcode < 600 {
		return portalerr.NewRetryableAnytimeError(err)
	}

	return portalerr.NewPermanentError(err)
}
