package twilio

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mkoziy/numbers/syncer/internal/models"
)

// mockLimiter is a no-op limiter that counts waits.
type mockLimiter struct{ waits atomic.Int32 }

func (m *mockLimiter) Wait(_ context.Context) error { m.waits.Add(1); return nil }
func (m *mockLimiter) Allow() bool                  { return true }
func (m *mockLimiter) Reserve() time.Duration       { return 0 }
func (m *mockLimiter) Reset()                       {}

func newTestClient(ts *httptest.Server, limiter *mockLimiter) *Client {
	return NewClient(limiter, "AC123", "secret", WithHTTPClient(ts.Client()), WithBaseURLs(ts.URL, ts.URL))
}

func TestListCountriesFollowsPagination(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "AC123" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Query().Get("Page") {
		case "":
			_, _ = w.Write([]byte(`{"countries":[{"country_code":"US","country":"United States"}],"next_page_uri":"/2010-04-01/Accounts/AC123/AvailablePhoneNumbers.json?Page=1"}`))
		case "1":
			_, _ = w.Write([]byte(`{"countries":[{"country_code":"GB","country":"United Kingdom"}],"next_page_uri":null}`))
		}
	}))
	defer ts.Close()

	limiter := &mockLimiter{}
	client := newTestClient(ts, limiter)

	countries, err := client.ListCountries(context.Background())
	if err != nil {
		t.Fatalf("list countries: %v", err)
	}
	if len(countries) != 2 || countries[0].CountryCode != "US" || countries[1].CountryCode != "GB" {
		t.Fatalf("unexpected countries: %+v", countries)
	}
	if limiter.waits.Load() != 2 {
		t.Fatalf("expected limiter consulted per page, got %d", limiter.waits.Load())
	}
}

func TestListRegulationsSendsBusinessFilterAndPages(t *testing.T) {
	var ts *httptest.Server
	ts = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/RegulatoryCompliance/Regulations" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		q := r.URL.Query()
		if q.Get("EndUserType") != "business" || q.Get("IsoCountry") != "DE" || q.Get("IncludeConstraints") != "true" {
			t.Errorf("unexpected query: %s", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		if q.Get("PageToken") == "" {
			fmt.Fprintf(w, `{"results":[{"sid":"RN1","iso_country":"DE","number_type":"mobile","requirements":{"end_user":[]}}],"meta":{"next_page_url":"%s/v2/RegulatoryCompliance/Regulations?EndUserType=business&IsoCountry=DE&IncludeConstraints=true&PageToken=p2"}}`, ts.URL)
			return
		}
		_, _ = w.Write([]byte(`{"results":[{"sid":"RN2","iso_country":"DE","number_type":"local"}],"meta":{"next_page_url":null}}`))
	}))
	defer ts.Close()

	regs, err := newTestClient(ts, &mockLimiter{}).ListRegulations(context.Background(), "DE")
	if err != nil {
		t.Fatalf("list regulations: %v", err)
	}
	if len(regs) != 2 || regs[0].SID != "RN1" || regs[1].SID != "RN2" {
		t.Fatalf("unexpected regulations: %+v", regs)
	}
}

func TestAPIErrorCarriesStatusAndRetryAfter(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "3")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"code":20429,"message":"Too Many Requests","status":429}`))
	}))
	defer ts.Close()

	_, err := newTestClient(ts, &mockLimiter{}).GetCountry(context.Background(), "US")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.HTTPStatus() != http.StatusTooManyRequests || apiErr.Code != 20429 {
		t.Fatalf("unexpected error fields: %+v", apiErr)
	}
	if apiErr.RetryAfterHint() != 3*time.Second {
		t.Fatalf("expected 3s retry after, got %v", apiErr.RetryAfterHint())
	}
	if strings.Contains(apiErr.Error(), "secret") {
		t.Fatalf("error leaks credentials: %s", apiErr.Error())
	}
}

func TestMissingCredentialsShortCircuits(t *testing.T) {
	called := false
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer ts.Close()

	client := NewClient(nil, "", "", WithBaseURLs(ts.URL, ts.URL))
	if _, err := client.ListCountries(context.Background()); !errors.Is(err, ErrMissingCredentials) {
		t.Fatalf("expected ErrMissingCredentials, got %v", err)
	}
	if err := NewSource(client).Preflight(context.Background()); !errors.Is(err, ErrMissingCredentials) {
		t.Fatalf("expected preflight to fail, got %v", err)
	}
	if called {
		t.Fatalf("no request expected without credentials")
	}
}

func TestIsAuthError(t *testing.T) {
	if !IsAuthError(fmt.Errorf("wrap: %w", &APIError{StatusCode: http.StatusUnauthorized})) {
		t.Fatalf("expected 401 to be an auth error")
	}
	if IsAuthError(&APIError{StatusCode: http.StatusNotFound}) {
		t.Fatalf("404 is not an auth error")
	}
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	if d := parseRetryAfter("10", now); d != 10*time.Second {
		t.Fatalf("expected 10s, got %v", d)
	}
	if d := parseRetryAfter(now.Add(5*time.Second).Format(http.TimeFormat), now); d != 5*time.Second {
		t.Fatalf("expected 5s from HTTP date, got %v", d)
	}
	if d := parseRetryAfter("soon", now); d != 0 {
		t.Fatalf("expected 0 for garbage, got %v", d)
	}
}

func TestSourceListTargetsDeduplicates(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"countries":[{"country_code":"us"},{"country_code":"US"},{"country_code":""},{"country_code":"CA"}]}`))
	}))
	defer ts.Close()

	keys, err := NewSource(newTestClient(ts, &mockLimiter{})).ListTargets(context.Background(), models.JobTypeRegulations)
	if err != nil {
		t.Fatalf("list targets: %v", err)
	}
	if len(keys) != 2 || keys[0] != "US" || keys[1] != "CA" {
		t.Fatalf("unexpected keys: %v", keys)
	}
}

func TestSourceListTargetsLabelsRejectedCredentials(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"code":20003,"message":"Authenticate"}`))
	}))
	defer ts.Close()

	_, err := NewSource(newTestClient(ts, &mockLimiter{})).ListTargets(context.Background(), models.JobTypeNumberTypes)
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "credentials rejected") {
		t.Fatalf("expected credentials label, got %v", err)
	}
	if !IsAuthError(err) {
		t.Fatalf("expected wrapped APIError to stay classifiable")
	}
}

func TestMapToCountryNumberTypes(t *testing.T) {
	row, err := MapToCountryNumberTypes(&Country{
		CountryCode: "gb",
		Country:     "United Kingdom",
		Beta:        true,
		SubresourceURIs: map[string]string{
			"local":     "/Local.json",
			"mobile":    "/Mobile.json",
			"toll_free": "/TollFree.json",
		},
	})
	if err != nil {
		t.Fatalf("map: %v", err)
	}
	if row.CountryCode != "GB" || !row.Beta {
		t.Fatalf("unexpected row: %+v", row)
	}
	if !row.Local || !row.Mobile || !row.TollFree || row.National || row.VoIP {
		t.Fatalf("unexpected availability: %+v", row)
	}

	if _, err := MapToCountryNumberTypes(&Country{CountryCode: "XYZ"}); err == nil {
		t.Fatalf("expected invalid country code to fail")
	}
}

func TestMapToRegulations(t *testing.T) {
	rows := MapToRegulations(&RegulationSet{
		CountryCode: "de",
		Regulations: []Regulation{
			{SID: "RN1", FriendlyName: "first", NumberType: "mobile", EndUserType: "individual"},
			{SID: ""},
			{SID: "RN1", FriendlyName: "second", NumberType: "mobile"},
			{SID: "RN2", IsoCountry: "de", Requirements: map[string]any{"end_user": []any{}}},
		},
	})

	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].FriendlyName == nil || *rows[0].FriendlyName != "second" {
		t.Fatalf("expected last occurrence to win: %+v", rows[0])
	}
	if rows[0].EndUserType != models.EndUserBusiness || rows[0].IsoCountry != "DE" {
		t.Fatalf("unexpected row: %+v", rows[0])
	}
	if rows[1].Requirements == nil || rows[1].URL != nil {
		t.Fatalf("unexpected optional fields: %+v", rows[1])
	}
}
