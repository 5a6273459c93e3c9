// Package discogs provides a rate-limited client for the Discogs API.
package discogs

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/oyama27/vinylog/internal/domain/release"
	"github.com/oyama27/vinylog/internal/infra/signature"
)

const (
	defaultRequestsPerMinute = 60
	defaultRetryWait         = 2 * time.Second
	collectionPerPage        = 50
	searchPerPage            = 30
)

// ErrNotConfigured is returned when a call requires consumer credentials
// that were never configured. Checked before any network traffic.
var ErrNotConfigured = errors.New("discogs consumer credentials are not configured")

// ErrMalformedPayload marks an upstream response that could not be decoded.
var ErrMalformedPayload = errors.New("malformed discogs payload")

// RateLimitError is returned when the service throttled the request and the
// single retry was throttled as well. RetryAfter carries the upstream hint.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("discogs rate limited, retry after %s", e.RetryAfter)
}

// UpstreamError is a non-2xx response from the service.
type UpstreamError struct {
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("discogs returned status %d: %s", e.StatusCode, e.Message)
}

// ClientError reports whether the request itself was at fault, as opposed
// to the service being unwell. Callers must not retry client errors.
func (e *UpstreamError) ClientError() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}

// Client is a Discogs API client. All calls pass through a shared outbound
// rate limiter and carry the registered application's User-Agent.
type Client struct {
	consumerKey    string
	consumerSecret string
	userAgent      string
	baseURL        string
	authorizeURL   string
	limiter        *rate.Limiter
	maxRetryWait   time.Duration
	httpClient     *http.Client
}

// Config represents Discogs client configuration. Consumer credentials may
// be empty; calls then fail with ErrNotConfigured instead of reaching the
// network.
type Config struct {
	ConsumerKey       string
	ConsumerSecret    string
	UserAgent         string
	RequestsPerMinute int
}

// RequestTokenResult is the unauthorized token pair opening the OAuth dance.
type RequestTokenResult struct {
	Token  string
	Secret string
}

// AccessTokenResult is the long-lived token pair closing the OAuth dance.
type AccessTokenResult struct {
	Token  string
	Secret string
}

// Identity is the authenticated account behind a token pair.
type Identity struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

// Pagination describes one page of a listing response.
type Pagination struct {
	Page    int `json:"page"`
	Pages   int `json:"pages"`
	PerPage int `json:"per_page"`
	Items   int `json:"items"`
}

// SearchResult is one row of a catalog search. Title carries the combined
// "Artist - Title" form the catalog uses for search listings.
type SearchResult struct {
	ID         int64    `json:"id"`
	Title      string   `json:"title"`
	Year       string   `json:"year"`
	Thumb      string   `json:"thumb"`
	CoverImage string   `json:"cover_image"`
	Format     []string `json:"format"`
}

// SearchPage is one page of search results.
type SearchPage struct {
	Pagination Pagination     `json:"pagination"`
	Results    []SearchResult `json:"results"`
}

// CollectionRelease is one release of a user's collection, flattened from
// the nested listing shape.
type CollectionRelease struct {
	ID         int64  `json:"id"`
	Title      string `json:"title"`
	Artist     string `json:"artist"`
	Year       int    `json:"year"`
	Thumb      string `json:"thumb"`
	CoverImage string `json:"coverImage"`
}

// CollectionPage is one page of a user's collection.
type CollectionPage struct {
	Pagination Pagination          `json:"pagination"`
	Releases   []CollectionRelease `json:"releases"`
}

// New creates a new Discogs client.
func New(cfg Config) (*Client, error) {
	if cfg.UserAgent == "" {
		return nil, errors.New("discogs user agent is required")
	}

	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = defaultRequestsPerMinute
	}

	return &Client{
		consumerKey:    cfg.ConsumerKey,
		consumerSecret: cfg.ConsumerSecret,
		userAgent:      cfg.UserAgent,
		baseURL:        "https://api.discogs.com",
		authorizeURL:   "https://www.discogs.com/oauth/authorize",
		limiter:        rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), 3),
		maxRetryWait:   defaultRetryWait,
		httpClient:     &http.Client{Timeout: 10 * time.Second},
	}, nil
}

// GetRelease fetches a release and normalizes it immediately, so nothing
// downstream sees the raw catalog shape.
func (c *Client) GetRelease(ctx context.Context, id int64) (*release.Release, error) {
	if err := c.requireCreds(); err != nil {
		return nil, err
	}

	var raw release.Raw
	if err := c.getJSON(ctx, fmt.Sprintf("/releases/%d", id), nil, c.appAuthHeader(), &raw); err != nil {
		return nil, err
	}
	return release.Normalize(raw), nil
}

// Search runs a catalog search for releases.
func (c *Client) Search(ctx context.Context, query string, page int) (*SearchPage, error) {
	if err := c.requireCreds(); err != nil {
		return nil, err
	}
	if page < 1 {
		page = 1
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("type", "release")
	params.Set("page", strconv.Itoa(page))
	params.Set("per_page", strconv.Itoa(searchPerPage))

	var result SearchPage
	if err := c.getJSON(ctx, "/database/search", params, c.appAuthHeader(), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Collection lists one page of the user's main collection folder, signed
// with the user's token pair.
func (c *Client) Collection(ctx context.Context, username, token, tokenSecret string, page int) (*CollectionPage, error) {
	if err := c.requireCreds(); err != nil {
		return nil, err
	}
	if username == "" {
		return nil, errors.New("username is required")
	}
	if page < 1 {
		page = 1
	}

	params := url.Values{}
	params.Set("page", strconv.Itoa(page))
	params.Set("per_page", strconv.Itoa(collectionPerPage))
	params.Set("sort", "added")
	params.Set("sort_order", "desc")

	auth := c.oauthHeader(tokenSecret, map[string]string{"oauth_token": token})
	path := fmt.Sprintf("/users/%s/collection/folders/0/releases", url.PathEscape(username))

	var wire collectionResponse
	if err := c.getJSON(ctx, path, params, auth, &wire); err != nil {
		return nil, err
	}

	result := &CollectionPage{
		Pagination: wire.Pagination,
		Releases:   make([]CollectionRelease, 0, len(wire.Releases)),
	}
	for _, r := range wire.Releases {
		result.Releases = append(result.Releases, convertCollectionRelease(r))
	}
	return result, nil
}

// RequestToken obtains an unauthorized request token, binding callbackURL
// for the post-authorize redirect.
func (c *Client) RequestToken(ctx context.Context, callbackURL string) (*RequestTokenResult, error) {
	if err := c.requireCreds(); err != nil {
		return nil, err
	}

	auth := c.oauthHeader("", map[string]string{"oauth_callback": callbackURL})
	values, err := c.postForm(ctx, "/oauth/request_token", auth)
	if err != nil {
		return nil, err
	}

	result := &RequestTokenResult{
		Token:  values.Get("oauth_token"),
		Secret: values.Get("oauth_token_secret"),
	}
	if result.Token == "" || result.Secret == "" {
		return nil, errors.Wrap(ErrMalformedPayload, "request token response missing token pair")
	}
	return result, nil
}

// AccessToken exchanges an authorized request token for the long-lived
// pair. The call is signed with both the consumer and request secrets.
func (c *Client) AccessToken(ctx context.Context, requestToken, requestSecret, verifier string) (*AccessTokenResult, error) {
	if err := c.requireCreds(); err != nil {
		return nil, err
	}

	auth := c.oauthHeader(requestSecret, map[string]string{
		"oauth_token":    requestToken,
		"oauth_verifier": verifier,
	})
	values, err := c.postForm(ctx, "/oauth/access_token", auth)
	if err != nil {
		return nil, err
	}

	result := &AccessTokenResult{
		Token:  values.Get("oauth_token"),
		Secret: values.Get("oauth_token_secret"),
	}
	if result.Token == "" || result.Secret == "" {
		return nil, errors.Wrap(ErrMalformedPayload, "access token response missing token pair")
	}
	return result, nil
}

// Identity returns the account that authorized the token pair.
func (c *Client) Identity(ctx context.Context, token, tokenSecret string) (*Identity, error) {
	if err := c.requireCreds(); err != nil {
		return nil, err
	}

	auth := c.oauthHeader(tokenSecret, map[string]string{"oauth_token": token})

	var identity Identity
	if err := c.getJSON(ctx, "/oauth/identity", nil, auth, &identity); err != nil {
		return nil, err
	}
	if identity.Username == "" {
		return nil, errors.Wrap(ErrMalformedPayload, "identity response missing username")
	}
	return &identity, nil
}

// AuthorizeURL returns the page where the user grants access to a request
// token.
func (c *Client) AuthorizeURL(requestToken string) string {
	params := url.Values{}
	params.Set("oauth_token", requestToken)
	return c.authorizeURL + "?" + params.Encode()
}

func (c *Client) requireCreds() error {
	if c.consumerKey == "" || c.consumerSecret == "" {
		return ErrNotConfigured
	}
	return nil
}

// appAuthHeader authorizes catalog reads at the application level, without
// a user token.
func (c *Client) appAuthHeader() string {
	return fmt.Sprintf("Discogs key=%s, secret=%s", c.consumerKey, c.consumerSecret)
}

// oauthHeader builds a PLAINTEXT-signed OAuth 1.0a Authorization header.
// Keys are emitted in sorted order so requests are reproducible.
func (c *Client) oauthHeader(tokenSecret string, extra map[string]string) string {
	params := map[string]string{
		"oauth_consumer_key":     c.consumerKey,
		"oauth_nonce":            uuid.NewString(),
		"oauth_signature":        signature.Plaintext(c.consumerSecret, tokenSecret),
		"oauth_signature_method": "PLAINTEXT",
		"oauth_timestamp":        strconv.FormatInt(time.Now().Unix(), 10),
	}
	for k, v := range extra {
		params[k] = v
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("OAuth ")
	for i, k := range keys {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(k)
		b.WriteString(`="`)
		b.WriteString(signature.PercentEncode(params[k]))
		b.WriteString(`"`)
	}
	return b.String()
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, auth string, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, path, query, auth)
	if err != nil {
		return err
	}

	body, err := c.do(ctx, req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return errors.Wrapf(ErrMalformedPayload, "failed to parse response: %v", err)
	}
	return nil
}

// postForm sends a bodyless POST and parses the urlencoded response the
// token endpoints answer with.
func (c *Client) postForm(ctx context.Context, path string, auth string) (url.Values, error) {
	req, err := c.newRequest(ctx, http.MethodPost, path, nil, auth)
	if err != nil {
		return nil, err
	}

	body, err := c.do(ctx, req)
	if err != nil {
		return nil, err
	}
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, errors.Wrapf(ErrMalformedPayload, "failed to parse token response: %v", err)
	}
	return values, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, auth string) (*http.Request, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Authorization", auth)
	return req, nil
}

// do sends the request through the rate limiter and classifies the
// response. A 429 is retried exactly once after waiting the smaller of the
// upstream hint and the bounded default; a second 429 surfaces to the
// caller with the hint preserved.
func (c *Client) do(ctx context.Context, req *http.Request) ([]byte, error) {
	for attempt := 0; ; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, errors.Wrap(err, "rate limiter wait aborted")
		}

		resp, err := c.httpClient.Do(req.Clone(ctx))
		if err != nil {
			return nil, errors.Wrap(err, "failed to send request")
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, errors.Wrap(err, "failed to read response body")
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			hint := retryAfterHint(resp.Header)
			if attempt > 0 {
				return nil, &RateLimitError{RetryAfter: hint}
			}

			wait := hint
			if wait <= 0 || wait > c.maxRetryWait {
				wait = c.maxRetryWait
			}
			select {
			case <-ctx.Done():
				return nil, errors.Wrap(ctx.Err(), "aborted while waiting to retry")
			case <-time.After(wait):
			}
			continue
		}

		if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
			return nil, &UpstreamError{
				StatusCode: resp.StatusCode,
				Message:    upstreamMessage(body),
			}
		}

		return body, nil
	}
}

// retryAfterHint reads the Retry-After header as seconds, zero when absent
// or unusable.
func retryAfterHint(h http.Header) time.Duration {
	v := h.Get("Retry-After")
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// upstreamMessage extracts the error message the service puts in JSON
// bodies, falling back to a trimmed raw body.
func upstreamMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Message != "" {
		return payload.Message
	}

	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}

// collectionItem is the nested wire shape of one collection row.
type collectionItem struct {
	BasicInformation struct {
		ID         int64  `json:"id"`
		Title      string `json:"title"`
		Year       int    `json:"year"`
		Thumb      string `json:"thumb"`
		CoverImage string `json:"cover_image"`
		Artists    []struct {
			Name string `json:"name"`
		} `json:"artists"`
	} `json:"basic_information"`
}

type collectionResponse struct {
	Pagination Pagination       `json:"pagination"`
	Releases   []collectionItem `json:"releases"`
}

func convertCollectionRelease(r collectionItem) CollectionRelease {
	artist := ""
	if len(r.BasicInformation.Artists) > 0 {
		artist = r.BasicInformation.Artists[0].Name
	}
	return CollectionRelease{
		ID:         r.BasicInformation.ID,
		Title:      r.BasicInformation.Title,
		Artist:     artist,
		Year:       r.BasicInformation.Year,
		Thumb:      r.BasicInformation.Thumb,
		CoverImage: r.BasicInformation.CoverImage,
	}
}
