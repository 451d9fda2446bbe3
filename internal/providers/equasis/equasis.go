// Package equasis scrapes the public ship registry behind a form login.
// Accounts come from a configured pool; a session that hits the registry's
// "Protected area" lockout is dropped and the next account takes over.
package equasis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultBaseURL        = "https://www.equasis.org"
	defaultLoginPath      = "/EquasisWeb/authen/HomePage"
	defaultSearchPath     = "/EquasisWeb/restricted/ShipInfo"
	defaultTimeoutSeconds = 30
	defaultRequestsPerMin = 12
	defaultUserAgent      = "Mozilla/5.0 (compatible; fueltracker/0.1)"

	deniedMarker = "Protected area, your access is denied"
)

var (
	ErrSessionDenied = errors.New("equasis: session denied")
	ErrPoolExhausted = errors.New("equasis: account pool exhausted")
	ErrShipNotFound  = errors.New("equasis: ship not found")
)

type Config struct {
	BaseURL        string
	LoginPath      string
	SearchPath     string
	EmailPattern   string
	Password       string
	AccountFrom    int
	AccountTo      int
	Timeout        time.Duration
	RequestsPerMin int
	UserAgent      string
}

func ConfigFromEnv() (Config, error) {
	cfg := Config{
		BaseURL:      getenv("EQUASIS_BASE_URL", defaultBaseURL),
		LoginPath:    getenv("EQUASIS_LOGIN_PATH", defaultLoginPath),
		SearchPath:   getenv("EQUASIS_SEARCH_PATH", defaultSearchPath),
		EmailPattern: strings.TrimSpace(os.Getenv("EQUASIS_EMAIL_PATTERN")),
		Password:     strings.TrimSpace(os.Getenv("EQUASIS_PASSWORD")),
		UserAgent:    getenv("EQUASIS_USER_AGENT", defaultUserAgent),
	}
	cfg.AccountFrom = getenvInt("EQUASIS_ACCOUNT_FROM", 1)
	cfg.AccountTo = getenvInt("EQUASIS_ACCOUNT_TO", 1)
	cfg.Timeout = time.Duration(getenvInt("EQUASIS_TIMEOUT_SECONDS", defaultTimeoutSeconds)) * time.Second
	cfg.RequestsPerMin = getenvInt("EQUASIS_REQUESTS_PER_MIN", defaultRequestsPerMin)
	return cfg, nil
}

// Scraper hands out ship-detail lookups over a rotating session pool.
type Scraper struct {
	config   Config
	solver   CaptchaSolver
	accounts []account
	session  *session
}

type account struct {
	Email    string
	Password string
}

func New(solver CaptchaSolver) (*Scraper, error) {
	cfg, err := ConfigFromEnv()
	if err != nil {
		return nil, err
	}
	return NewWithConfig(cfg, solver)
}

func NewWithConfig(cfg Config, solver CaptchaSolver) (*Scraper, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = defaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if strings.TrimSpace(cfg.LoginPath) == "" {
		cfg.LoginPath = defaultLoginPath
	}
	if strings.TrimSpace(cfg.SearchPath) == "" {
		cfg.SearchPath = defaultSearchPath
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeoutSeconds * time.Second
	}
	if cfg.RequestsPerMin <= 0 {
		cfg.RequestsPerMin = defaultRequestsPerMin
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if strings.TrimSpace(cfg.EmailPattern) == "" {
		return nil, errors.New("equasis: account email pattern is required")
	}
	if cfg.AccountTo < cfg.AccountFrom {
		return nil, fmt.Errorf("equasis: invalid account range %d..%d", cfg.AccountFrom, cfg.AccountTo)
	}

	accounts := make([]account, 0, cfg.AccountTo-cfg.AccountFrom+1)
	for i := cfg.AccountFrom; i <= cfg.AccountTo; i++ {
		email := cfg.EmailPattern
		if strings.Contains(email, "%d") {
			email = fmt.Sprintf(cfg.EmailPattern, i)
		}
		accounts = append(accounts, account{Email: email, Password: cfg.Password})
	}

	return &Scraper{config: cfg, solver: solver, accounts: accounts}, nil
}

// session is one logged-in account: its own cookie jar and pacing, never
// shared across accounts.
type session struct {
	client  *http.Client
	limiter *rate.Limiter
	account account
}

func (s *Scraper) newSession(ctx context.Context, acc account) (*session, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	sess := &session{
		client:  &http.Client{Timeout: s.config.Timeout, Jar: jar},
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(s.config.RequestsPerMin)), 1),
		account: acc,
	}
	if err := s.login(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *Scraper) login(ctx context.Context, sess *session) error {
	form := url.Values{}
	form.Set("j_email", sess.account.Email)
	form.Set("j_password", sess.account.Password)
	form.Set("submit", "Login")

	if s.solver != nil {
		answer, err := s.solver.Solve(ctx, s.config.BaseURL+s.config.LoginPath)
		if err != nil {
			return fmt.Errorf("equasis: captcha: %w", err)
		}
		if answer != "" {
			form.Set("g-recaptcha-response", answer)
		}
	}

	body, err := s.post(ctx, sess, s.config.LoginPath, form)
	if err != nil {
		return err
	}
	if strings.Contains(body, deniedMarker) {
		return ErrSessionDenied
	}
	return nil
}

// fetch runs one authenticated request, rotating through the account pool on
// a denied session. The pool emptying is a hard error.
func (s *Scraper) fetch(ctx context.Context, path string, form url.Values) (string, error) {
	for {
		if s.session == nil {
			if len(s.accounts) == 0 {
				return "", ErrPoolExhausted
			}
			acc := s.accounts[0]
			sess, err := s.newSession(ctx, acc)
			if errors.Is(err, ErrSessionDenied) {
				s.accounts = s.accounts[1:]
				continue
			}
			if err != nil {
				return "", err
			}
			s.session = sess
		}

		body, err := s.post(ctx, s.session, path, form)
		if err != nil {
			return "", err
		}
		if strings.Contains(body, deniedMarker) {
			s.session = nil
			s.accounts = s.accounts[1:]
			continue
		}
		return body, nil
	}
}

func (s *Scraper) post(ctx context.Context, sess *session, path string, form url.Values) (string, error) {
	if err := sess.limiter.Wait(ctx); err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.BaseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", s.config.UserAgent)

	resp, err := sess.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusBadRequest {
		return "", fmt.Errorf("equasis: request failed (%s)", resp.Status)
	}
	return string(body), nil
}

func getenv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
