package twilio

import (
	"fmt"
	"strings"

	"github.com/mkoziy/numbers/syncer/internal/models"
)

// MapToCountryNumberTypes converts a country payload into an availability row.
// Availability of each number type is the presence of its subresource.
func MapToCountryNumberTypes(c *Country) (*models.CountryNumberTypes, error) {
	if c == nil {
		return nil, fmt.Errorf("nil country payload")
	}

	code := strings.ToUpper(strings.TrimSpace(c.CountryCode))
	name := strings.TrimSpace(c.Country)
	if name == "" {
		name = code
	}

	row := &models.CountryNumberTypes{
		CountryCode: code,
		Country:     name,
		Beta:        c.Beta,
	}
	for _, nt := range models.NumberTypes {
		_, ok := c.SubresourceURIs[string(nt)]
		row.SetSupported(nt, ok)
	}

	if err := row.Validate(); err != nil {
		return nil, fmt.Errorf("country %q: %w", c.CountryCode, err)
	}
	return row, nil
}

// MapToRegulations converts one country's regulations into rows. Entries
// without a sid are dropped and a repeated sid keeps its last occurrence.
func MapToRegulations(set *RegulationSet) []*models.Regulation {
	if set == nil {
		return nil
	}

	index := make(map[string]int, len(set.Regulations))
	out := make([]*models.Regulation, 0, len(set.Regulations))
	for _, reg := range set.Regulations {
		sid := strings.TrimSpace(reg.SID)
		if sid == "" {
			continue
		}

		row := &models.Regulation{
			SID:          sid,
			FriendlyName: optional(reg.FriendlyName),
			IsoCountry:   strings.ToUpper(reg.IsoCountry),
			NumberType:   reg.NumberType,
			EndUserType:  models.EndUserBusiness,
			URL:          optional(reg.URL),
		}
		if row.IsoCountry == "" {
			row.IsoCountry = strings.ToUpper(set.CountryCode)
		}
		if reg.Requirements != nil {
			row.Requirements = models.JSONMap(reg.Requirements)
		}

		if i, ok := index[sid]; ok {
			out[i] = row
			continue
		}
		index[sid] = len(out)
		out = append(out, row)
	}
	return out
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
