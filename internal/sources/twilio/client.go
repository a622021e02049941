package twilio

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mkoziy/numbers/syncer/internal/ratelimit"
)

const (
	DefaultAPIBaseURL     = "https://api.twilio.com"
	DefaultNumbersBaseURL = "https://numbers.twilio.com"

	apiVersion     = "2010-04-01"
	maxPages       = 1000
	maxErrorBody   = 4 << 10
	defaultTimeout = 30 * time.Second
)

// Client handles provider API requests.
type Client struct {
	httpClient     *http.Client
	limiter        ratelimit.Limiter
	accountSID     string
	authToken      string
	apiBaseURL     string
	numbersBaseURL string
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithBaseURLs points the client at alternative API hosts.
func WithBaseURLs(apiBaseURL, numbersBaseURL string) Option {
	return func(c *Client) {
		if apiBaseURL != "" {
			c.apiBaseURL = strings.TrimRight(apiBaseURL, "/")
		}
		if numbersBaseURL != "" {
			c.numbersBaseURL = strings.TrimRight(numbersBaseURL, "/")
		}
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// NewClient creates a new provider client.
func NewClient(limiter ratelimit.Limiter, accountSID, authToken string, opts ...Option) *Client {
	if limiter == nil {
		limiter = ratelimit.Unlimited{}
	}
	c := &Client{
		httpClient:     &http.Client{Timeout: defaultTimeout},
		limiter:        limiter,
		accountSID:     strings.TrimSpace(accountSID),
		authToken:      strings.TrimSpace(authToken),
		apiBaseURL:     DefaultAPIBaseURL,
		numbersBaseURL: DefaultNumbersBaseURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// HasCredentials reports whether both account SID and auth token are set.
func (c *Client) HasCredentials() bool {
	return c.accountSID != "" && c.authToken != ""
}

// ListCountries returns every country with available phone numbers, following pagination.
func (c *Client) ListCountries(ctx context.Context) ([]Country, error) {
	next := fmt.Sprintf("%s/%s/Accounts/%s/AvailablePhoneNumbers.json", c.apiBaseURL, apiVersion, url.PathEscape(c.accountSID))

	var all []Country
	seen := make(map[string]bool)
	for page := 0; next != ""; page++ {
		if page >= maxPages || seen[next] {
			return nil, fmt.Errorf("list countries: pagination did not terminate at %s", next)
		}
		seen[next] = true

		var resp countriesPage
		if err := c.getJSON(ctx, next, nil, &resp); err != nil {
			return nil, fmt.Errorf("list countries: %w", err)
		}
		all = append(all, resp.Countries...)

		next = ""
		if resp.NextPageURI != "" {
			next = c.resolve(c.apiBaseURL, resp.NextPageURI)
		}
	}
	return all, nil
}

// GetCountry fetches one country with its number type subresources.
func (c *Client) GetCountry(ctx context.Context, countryCode string) (*Country, error) {
	u := fmt.Sprintf("%s/%s/Accounts/%s/AvailablePhoneNumbers/%s.json",
		c.apiBaseURL, apiVersion, url.PathEscape(c.accountSID), url.PathEscape(countryCode))

	var country Country
	if err := c.getJSON(ctx, u, nil, &country); err != nil {
		return nil, fmt.Errorf("get country %s: %w", countryCode, err)
	}
	return &country, nil
}

// ListRegulations returns the business regulations of one country, constraints included.
func (c *Client) ListRegulations(ctx context.Context, countryCode string) ([]Regulation, error) {
	next := c.numbersBaseURL + "/v2/RegulatoryCompliance/Regulations"
	params := url.Values{}
	params.Set("EndUserType", "business")
	params.Set("IsoCountry", countryCode)
	params.Set("IncludeConstraints", "true")

	var all []Regulation
	seen := make(map[string]bool)
	for page := 0; next != ""; page++ {
		if page >= maxPages || seen[next] {
			return nil, fmt.Errorf("list regulations %s: pagination did not terminate at %s", countryCode, next)
		}
		seen[next] = true

		var resp regulationsPage
		if err := c.getJSON(ctx, next, params, &resp); err != nil {
			return nil, fmt.Errorf("list regulations %s: %w", countryCode, err)
		}
		all = append(all, resp.Results...)

		// Next page URLs already carry the query.
		next = resp.Meta.NextPageURL
		params = nil
	}
	return all, nil
}

func (c *Client) resolve(base, ref string) string {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref
	}
	return base + "/" + strings.TrimLeft(ref, "/")
}

func (c *Client) getJSON(ctx context.Context, rawURL string, params url.Values, out any) error {
	if !c.HasCredentials() {
		return ErrMissingCredentials
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	if len(params) > 0 {
		sep := "?"
		if strings.Contains(rawURL, "?") {
			sep = "&"
		}
		rawURL += sep + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.SetBasicAuth(c.accountSID, c.authToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newAPIError(resp, rawURL)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func newAPIError(resp *http.Response, rawURL string) *APIError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		URL:        redactQuery(rawURL),
		Message:    strings.TrimSpace(string(body)),
		RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), time.Now()),
	}

	var eb errorBody
	if json.Unmarshal(body, &eb) == nil && eb.Message != "" {
		apiErr.Code = eb.Code
		apiErr.Message = eb.Message
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}

func redactQuery(rawURL string) string {
	if i := strings.IndexByte(rawURL, '?'); i >= 0 {
		return rawURL[:i]
	}
	return rawURL
}
