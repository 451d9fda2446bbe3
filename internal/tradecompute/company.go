package tradecompute

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"fueltracker/internal/model"
)

// Registry is the last resort for a company's country: a lookup against the
// public IMO company registry.
type Registry interface {
	CompanyCountry(ctx context.Context, name string) (string, error)
}

// companyCountry resolves where a company is based: registration record,
// then the address, then the manual override file, then the registry.
// Registry hits are written back to the company row so the lookup runs once.
func (c *Computer) companyCountry(ctx context.Context, rawName string, companyID *int64, refs *refsets) string {
	var company *model.Company
	if companyID != nil {
		if found, ok := refs.companies[*companyID]; ok {
			company = &found
		}
	}

	if company != nil {
		if company.RegistrationCountryISO2 != "" {
			return company.RegistrationCountryISO2
		}
		if iso2 := countryFromAddress(company.Address, refs.countries); iso2 != "" {
			return iso2
		}
	}
	if iso2, ok := c.Overrides[strings.ToLower(strings.TrimSpace(rawName))]; ok {
		return iso2
	}
	if c.Registry != nil && company != nil {
		iso2, err := c.Registry.CompanyCountry(ctx, rawName)
		if err != nil {
			slog.Warn("registry lookup failed", "component", "tradecompute", "company", rawName, "err", err)
			return ""
		}
		if iso2 != "" {
			company.RegistrationCountryISO2 = iso2
			if err := c.Store.SaveCompany(company); err != nil {
				slog.Warn("company save failed", "component", "tradecompute", "company", rawName, "err", err)
			}
			refs.companies[company.ID] = *company
		}
		return iso2
	}
	return ""
}

// countryFromAddress scans an address for a known country name or alias,
// preferring matches nearer the end where addresses put the country.
func countryFromAddress(address string, countries []model.Country) string {
	if address == "" {
		return ""
	}
	haystack := " " + normalizeAddress(address) + " "

	bestISO2 := ""
	bestPos := -1
	for _, country := range countries {
		for _, name := range append([]string{country.Name}, country.AltNames...) {
			needle := " " + normalizeAddress(name) + " "
			if pos := strings.LastIndex(haystack, needle); pos > bestPos {
				bestPos = pos
				bestISO2 = country.ISO2
			}
		}
	}
	return bestISO2
}

func normalizeAddress(value string) string {
	value = strings.ToLower(value)
	replacer := strings.NewReplacer(",", " ", ".", " ", ";", " ", "(", " ", ")", " ")
	return strings.Join(strings.Fields(replacer.Replace(value)), " ")
}

// LoadOverrides reads the manual company-country override file: a YAML map
// of raw company name to ISO-2 code.
func LoadOverrides(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("tradecompute: overrides: %w", err)
	}
	var parsed map[string]string
	if err := yaml.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("tradecompute: overrides: %w", err)
	}
	overrides := make(map[string]string, len(parsed))
	for name, iso2 := range parsed {
		overrides[strings.ToLower(strings.TrimSpace(name))] = strings.ToUpper(iso2)
	}
	return overrides, nil
}
