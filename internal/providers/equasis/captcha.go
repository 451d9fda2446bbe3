package equasis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

// CaptchaSolver answers the login page's challenge. Solving has its own
// ceiling independent of the page timeout.
type CaptchaSolver interface {
	Solve(ctx context.Context, pageURL string) (string, error)
}

const (
	solverTimeout      = 5 * time.Minute
	solverPollInterval = 5 * time.Second
)

// HTTPSolver drives a submit-then-poll captcha-solving API.
type HTTPSolver struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

func NewHTTPSolverFromEnv() *HTTPSolver {
	key := strings.TrimSpace(os.Getenv("CAPTCHA_API_KEY"))
	if key == "" {
		return nil
	}
	return &HTTPSolver{
		BaseURL: getenv("CAPTCHA_BASE_URL", "https://api.anti-captcha.example"),
		APIKey:  key,
		Client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (s *HTTPSolver) Solve(ctx context.Context, pageURL string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, solverTimeout)
	defer cancel()

	taskID, err := s.submit(ctx, pageURL)
	if err != nil {
		return "", err
	}
	for {
		answer, done, err := s.poll(ctx, taskID)
		if err != nil {
			return "", err
		}
		if done {
			return answer, nil
		}
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("equasis: captcha solve timed out: %w", ctx.Err())
		case <-time.After(solverPollInterval):
		}
	}
}

func (s *HTTPSolver) submit(ctx context.Context, pageURL string) (string, error) {
	form := url.Values{}
	form.Set("key", s.APIKey)
	form.Set("pageurl", pageURL)

	var parsed struct {
		TaskID string `json:"task_id"`
		Error  string `json:"error"`
	}
	if err := s.call(ctx, "/in", form, &parsed); err != nil {
		return "", err
	}
	if parsed.Error != "" {
		return "", errors.New("equasis: captcha submit: " + parsed.Error)
	}
	return parsed.TaskID, nil
}

func (s *HTTPSolver) poll(ctx context.Context, taskID string) (string, bool, error) {
	form := url.Values{}
	form.Set("key", s.APIKey)
	form.Set("task_id", taskID)

	var parsed struct {
		Status string `json:"status"`
		Answer string `json:"answer"`
		Error  string `json:"error"`
	}
	if err := s.call(ctx, "/res", form, &parsed); err != nil {
		return "", false, err
	}
	if parsed.Error != "" {
		return "", false, errors.New("equasis: captcha poll: " + parsed.Error)
	}
	return parsed.Answer, parsed.Status == "ready", nil
}

func (s *HTTPSolver) call(ctx context.Context, path string, form url.Values, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(s.BaseURL, "/")+path, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("equasis: captcha api failed (%s)", resp.Status)
	}
	return json.Unmarshal(body, dest)
}
