package surge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Authenticator supplies fresh auth query parameters on demand (spec.md
// section 1: "the token/authentication engine... provides fresh
// credentials and URL query parameters on demand"). It is explicitly out
// of scope as a real implementation; this is the seam the Connection
// Manager's open sequence calls into (spec.md 4.6), supplemented per
// SPEC_FULL.md with four minimal concrete implementations.
type Authenticator interface {
	// Params returns the auth-related query parameters for the next
	// handshake. Implementations that need network/IO must not block the
	// event loop directly (design note: "Dynamic auth callback returning
	// a blocking value"); CallbackAuthenticator runs the user func on a
	// worker goroutine for this reason.
	Params(ctx context.Context) (url.Values, error)
}

// StaticAuthenticator wraps a fixed API key, for the "key" config option.
type StaticAuthenticator struct {
	Key string
}

// Params returns {"key": [Key]}.
func (a *StaticAuthenticator) Params(context.Context) (url.Values, error) {
	v := url.Values{}
	v.Set("key", a.Key)
	return v, nil
}

// TokenAuthenticator wraps a fixed access token, for the "token" config
// option.
type TokenAuthenticator struct {
	Token string
}

// Params returns {"access_token": [Token]}.
func (a *TokenAuthenticator) Params(context.Context) (url.Values, error) {
	v := url.Values{}
	v.Set("access_token", a.Token)
	return v, nil
}

// CallbackAuthenticator wraps a user-supplied function for the
// "auth_callback" config option. Fn is always invoked off
// the event loop goroutine (design note, section 9).
type CallbackAuthenticator struct {
	Fn func(ctx context.Context) (url.Values, error)
}

// Params runs Fn on a worker goroutine and returns its result, respecting
// ctx cancellation.
func (a *CallbackAuthenticator) Params(ctx context.Context) (url.Values, error) {
	type result struct {
		v   url.Values
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := a.Fn(ctx)
		done <- result{v: v, err: err}
	}()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-done:
		return r.v, r.err
	}
}

// URLAuthenticator fetches an access token from a caller-supplied URL,
// for the "auth_url" config option. The response body is the token.
// Transient failures (network, 5xx) are retried with exponential backoff
// bounded by MaxRetryCount/MaxRetryDuration; a 4xx means the credentials
// themselves were rejected and is permanent.
type URLAuthenticator struct {
	URL              string
	Client           *http.Client
	MaxRetryCount    int
	MaxRetryDuration time.Duration
}

// Params fetches the token and returns {"access_token": [token]}.
func (a *URLAuthenticator) Params(ctx context.Context) (url.Values, error) {
	var token string
	op := func() error {
		tok, err := a.fetch(ctx)
		if err != nil {
			var e *Error
			if errors.As(err, &e) && e.Kind == AuthFailure {
				return backoff.Permanent(err)
			}
			return err
		}
		token = tok
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = a.MaxRetryDuration
	var b backoff.BackOff = bo
	if a.MaxRetryCount > 0 {
		b = backoff.WithMaxRetries(bo, uint64(a.MaxRetryCount))
	}
	if err := backoff.Retry(op, backoff.WithContext(b, ctx)); err != nil {
		return nil, err
	}

	v := url.Values{}
	v.Set("access_token", token)
	return v, nil
}

func (a *URLAuthenticator) fetch(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.URL, nil)
	if err != nil {
		return "", NewError(InvalidArgument, err)
	}
	client := a.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", NewError(ConnectionError, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return "", NewError(ServerError, fmt.Sprintf("auth url returned %d", resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		return "", NewError(AuthFailure, fmt.Sprintf("auth url returned %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return "", NewError(ConnectionError, err)
	}
	token := strings.TrimSpace(string(body))
	if token == "" {
		return "", NewError(AuthFailure, "auth url returned an empty token")
	}
	return token, nil
}

// ClientOptions is the parsed, validated configuration surface from
// spec.md section 6, grounded on amps.LogonParams plus the enumerated
// environment/config list.
type ClientOptions struct {
	// Exactly one of Key/Token/AuthCallback/AuthURL must be set.
	Key          string
	Token        string
	AuthCallback func(ctx context.Context) (url.Values, error)
	AuthURL      string

	ClientID    string // must not be literal "*"
	Environment string // routes to a named deployment; disables default-pool fallback
	CustomHost  string // manual primary host override

	TLS          *bool // default true
	EchoMessages *bool // default true
	Recover      string

	HTTPOpenTimeout      time.Duration
	HTTPRequestTimeout   time.Duration
	HTTPMaxRetryCount    int
	HTTPMaxRetryDuration time.Duration

	LogLevel string

	// LogFilePath, if set, routes structured logs through a
	// lumberjack-rotated file sink instead of stderr (SPEC_FULL.md
	// ambient logging section).
	LogFilePath string

	Format string // "json" (default); "msgpack" is rejected by NewClient
}

// Validate checks the mutually-exclusive-auth and wildcard-client-id
// rules, returning InvalidArgument on violation.
func (o *ClientOptions) Validate() error {
	authCount := 0
	if o.Key != "" {
		authCount++
	}
	if o.Token != "" {
		authCount++
	}
	if o.AuthCallback != nil {
		authCount++
	}
	if o.AuthURL != "" {
		authCount++
	}
	if authCount != 1 {
		return NewError(InvalidArgument, "exactly one of key/token/auth_callback/auth_url must be set")
	}
	if o.ClientID == "*" {
		return NewError(InvalidArgument, `client_id must not be the literal "*"`)
	}
	return nil
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

// tlsEnabled returns the effective TLS setting (default true).
func (o *ClientOptions) tlsEnabled() bool { return boolOr(o.TLS, true) }

// echoMessages returns the effective echo setting (default true).
func (o *ClientOptions) echoMessages() bool { return boolOr(o.EchoMessages, true) }

// authenticator builds the Authenticator implied by the configured auth
// family.
func (o *ClientOptions) authenticator() Authenticator {
	switch {
	case o.Key != "":
		return &StaticAuthenticator{Key: o.Key}
	case o.Token != "":
		return &TokenAuthenticator{Token: o.Token}
	case o.AuthCallback != nil:
		return &CallbackAuthenticator{Fn: o.AuthCallback}
	case o.AuthURL != "":
		return &URLAuthenticator{
			URL:              o.AuthURL,
			Client:           o.httpClient(),
			MaxRetryCount:    o.HTTPMaxRetryCount,
			MaxRetryDuration: o.HTTPMaxRetryDuration,
		}
	default:
		return nil
	}
}

// httpClient builds the HTTP client auth-url fetches go through,
// honoring the http_request_timeout option.
func (o *ClientOptions) httpClient() *http.Client {
	timeout := o.HTTPRequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &http.Client{Timeout: timeout}
}
