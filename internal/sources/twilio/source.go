package twilio

import (
	"context"
	"fmt"
	"strings"

	"github.com/mkoziy/numbers/syncer/internal/models"
)

// ProviderName keys the provider's entry in rate_limits.
const ProviderName = "twilio"

// Source exposes the client as a sync provider: one enumeration call per job
// and one detail call per country.
type Source struct {
	client *Client
}

// NewSource wraps a client.
func NewSource(client *Client) *Source {
	return &Source{client: client}
}

// Preflight fails fast when credentials are absent.
func (s *Source) Preflight(_ context.Context) error {
	if !s.client.HasCredentials() {
		return ErrMissingCredentials
	}
	return nil
}

// ListTargets enumerates the country codes a job will visit. Both job types
// iterate over the same country list.
func (s *Source) ListTargets(ctx context.Context, jobType models.JobType) ([]string, error) {
	if !jobType.Valid() {
		return nil, fmt.Errorf("unknown job type %q", jobType)
	}

	countries, err := s.client.ListCountries(ctx)
	if err != nil {
		if IsAuthError(err) {
			return nil, fmt.Errorf("credentials rejected: %w", err)
		}
		return nil, err
	}

	seen := make(map[string]bool, len(countries))
	keys := make([]string, 0, len(countries))
	for _, c := range countries {
		code := strings.ToUpper(strings.TrimSpace(c.CountryCode))
		if code == "" || seen[code] {
			continue
		}
		seen[code] = true
		keys = append(keys, code)
	}
	return keys, nil
}

// FetchDetail returns *Country for number-types jobs and *RegulationSet for
// regulations jobs.
func (s *Source) FetchDetail(ctx context.Context, jobType models.JobType, key string) (any, error) {
	switch jobType {
	case models.JobTypeNumberTypes:
		return s.client.GetCountry(ctx, key)
	case models.JobTypeRegulations:
		regs, err := s.client.ListRegulations(ctx, key)
		if err != nil {
			return nil, err
		}
		return &RegulationSet{CountryCode: key, Regulations: regs}, nil
	default:
		return nil, fmt.Errorf("unknown job type %q", jobType)
	}
}
