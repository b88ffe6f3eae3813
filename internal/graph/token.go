package graph

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	gklog "github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"
)

const (
	defaultAuthority = "https://login.microsoftonline.com"
	defaultScope     = "https://graph.microsoft.com/.default"

	// tokenSafetyMargin forces a refresh slightly before the advertised
	// expiry so an in-flight request never carries a token that lapses
	// mid-call.
	tokenSafetyMargin = 60 * time.Second
)

// Credentials hold the client-credentials grant inputs for one tenant.
type Credentials struct {
	TenantID     string
	ClientID     string
	ClientSecret string
}

// TokenSource acquires and caches an app-only access token. It is safe for
// concurrent use.
type TokenSource struct {
	httpClient *retryablehttp.Client
	authority  string
	creds      Credentials
	now        func() time.Time
	log        gklog.Logger

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

func NewTokenSource(creds Credentials, cfg Config, logger gklog.Logger) *TokenSource {
	c := retryablehttp.NewClient()
	c.RetryMax = cfg.RetryMax
	c.HTTPClient.Timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	c.Logger = nil

	return &TokenSource{
		httpClient: c,
		authority:  defaultAuthority,
		creds:      creds,
		now:        time.Now,
		log:        gklog.With(logger, "component", "graph_token"),
	}
}

// Token returns a valid bearer token, refreshing when the cached one is
// within the safety margin of expiring.
func (s *TokenSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != "" && s.now().Before(s.expiresAt.Add(-tokenSafetyMargin)) {
		return s.token, nil
	}

	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {s.creds.ClientID},
		"client_secret": {s.creds.ClientSecret},
		"scope":         {defaultScope},
	}
	endpoint := s.authority + "/" + s.creds.TenantID + "/oauth2/v2.0/token"

	req, err := retryablehttp.NewRequest(http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", errors.Wrap(err, "acquire token")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpClient.Do(req.WithContext(ctx))
	if err != nil {
		return "", errors.Wrap(err, "acquire token")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", errors.Wrap(decodeAPIError(resp), "acquire token")
	}

	var body struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", errors.Wrap(err, "acquire token")
	}
	if body.AccessToken == "" {
		return "", errors.New("acquire token: empty access_token in response")
	}

	s.token = body.AccessToken
	s.expiresAt = s.now().Add(time.Duration(body.ExpiresIn) * time.Second)
	level.Debug(s.log).Log("msg", "acquired access token", "expires_in", body.ExpiresIn)
	return s.token, nil
}
