// Package insurersite confirms P&I coverage inception dates against the
// insurers' own ship-search pages, for rows the registry returned undated.
// Each configured site is a URL template plus a date extraction pattern.
package insurersite

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"strings"
	"time"

	"golang.org/x/time/rate"
	"gopkg.in/yaml.v3"
)

const (
	defaultTimeoutSeconds = 30
	defaultRequestsPerMin = 6
	defaultUserAgent      = "Mozilla/5.0 (compatible; fueltracker/0.1)"
)

// Site is one insurer's public search page. NameContains matches the raw
// insurer name case-insensitively; URLTemplate takes the IMO number.
type Site struct {
	NameContains string   `yaml:"name_contains"`
	URLTemplate  string   `yaml:"url_template"`
	DatePattern  string   `yaml:"date_pattern"`
	DateLayouts  []string `yaml:"date_layouts"`

	pattern *regexp.Regexp
}

type Client struct {
	sites   []Site
	client  *http.Client
	limiter *rate.Limiter
	agent   string
}

// Load reads the site table from a YAML file. An empty path yields a client
// that matches nothing, so the caller can wire it unconditionally.
func Load(path string) (*Client, error) {
	var sites []Site
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("insurersite: %w", err)
		}
		if err := yaml.Unmarshal(raw, &sites); err != nil {
			return nil, fmt.Errorf("insurersite: %s: %w", path, err)
		}
	}
	return New(sites)
}

func New(sites []Site) (*Client, error) {
	for i := range sites {
		if strings.TrimSpace(sites[i].NameContains) == "" || sites[i].URLTemplate == "" {
			return nil, fmt.Errorf("insurersite: site %d needs name_contains and url_template", i)
		}
		pattern, err := regexp.Compile(sites[i].DatePattern)
		if err != nil {
			return nil, fmt.Errorf("insurersite: site %d: %w", i, err)
		}
		sites[i].pattern = pattern
		if len(sites[i].DateLayouts) == 0 {
			sites[i].DateLayouts = []string{"02/01/2006", "2006-01-02", "02 Jan 2006"}
		}
	}
	return &Client{
		sites:   sites,
		client:  &http.Client{Timeout: defaultTimeoutSeconds * time.Second},
		limiter: rate.NewLimiter(rate.Every(time.Minute/defaultRequestsPerMin), 1),
		agent:   defaultUserAgent,
	}, nil
}

// CoverageStart looks up the inception date for one (insurer, hull) pair.
// An insurer with no configured site returns (nil, nil); the caller keeps the
// row undated.
func (c *Client) CoverageStart(ctx context.Context, insurerName, imo string) (*time.Time, error) {
	site := c.match(insurerName)
	if site == nil {
		return nil, nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf(site.URLTemplate, imo)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.agent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("insurersite: %s returned %s", endpoint, resp.Status)
	}

	match := site.pattern.FindSubmatch(body)
	if match == nil {
		return nil, nil
	}
	value := string(match[len(match)-1])
	for _, layout := range site.DateLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			ts = ts.UTC()
			return &ts, nil
		}
	}
	return nil, fmt.Errorf("insurersite: unparseable date %q from %s", value, endpoint)
}

func (c *Client) match(insurerName string) *Site {
	lower := strings.ToLower(insurerName)
	for i := range c.sites {
		if strings.Contains(lower, strings.ToLower(c.sites[i].NameContains)) {
			return &c.sites[i]
		}
	}
	return nil
}
