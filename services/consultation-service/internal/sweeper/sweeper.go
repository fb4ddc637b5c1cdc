// Package sweeper drives the service's internal sweep endpoints on a cron
// schedule, so several API replicas can share one trigger.
package sweeper

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/md-rashed-zaman/gurubook/libs/auth"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Job binds a sweep name to its cron spec.
type Job struct {
	Name string
	Spec string
}

type Config struct {
	BaseURL  string
	Secret   string
	Subject  string
	TokenTTL time.Duration
	Timeout  time.Duration
}

type Trigger struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger

	mu      sync.Mutex
	token   string
	expires time.Time
}

func NewTrigger(cfg Config, client *http.Client, logger *zap.Logger) *Trigger {
	if cfg.Subject == "" {
		cfg.Subject = "consultation-sweeper"
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 10 * time.Minute
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if client == nil {
		client = &http.Client{}
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Trigger{cfg: cfg, client: client, logger: logger}
}

type sweepResult struct {
	Sweep     string `json:"sweep"`
	Processed int    `json:"processed"`
}

// Fire posts one sweep and returns how many items the service processed.
func (t *Trigger) Fire(ctx context.Context, name string) (int, error) {
	token, err := t.bearer()
	if err != nil {
		return 0, err
	}
	ctx, cancel := context.WithTimeout(ctx, t.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.cfg.BaseURL+"/internal/v1/sweeps/"+name, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := t.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("sweep %s: %w", name, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("sweep %s: status %d: %s", name, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var out sweepResult
	if err := json.Unmarshal(body, &out); err != nil {
		return 0, fmt.Errorf("sweep %s: decode response: %w", name, err)
	}
	return out.Processed, nil
}

// bearer reuses a signed service token until a minute before it expires.
func (t *Trigger) bearer() (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.token != "" && time.Until(t.expires) > time.Minute {
		return t.token, nil
	}
	tok, err := auth.SignHS256(t.cfg.Subject, []string{"service"}, t.cfg.TokenTTL, t.cfg.Secret)
	if err != nil {
		return "", err
	}
	t.token = tok
	t.expires = time.Now().Add(t.cfg.TokenTTL)
	return tok, nil
}

// Schedule registers every job on c. Overlapping runs of the same job are
// skipped rather than queued.
func (t *Trigger) Schedule(ctx context.Context, c *cron.Cron, jobs []Job) error {
	for _, j := range jobs {
		name := j.Name
		wrapped := cron.NewChain(cron.SkipIfStillRunning(cron.DiscardLogger)).Then(cron.FuncJob(func() {
			n, err := t.Fire(ctx, name)
			if err != nil {
				t.logger.Error("sweep failed", zap.String("sweep", name), zap.Error(err))
				return
			}
			if n > 0 {
				t.logger.Info("sweep processed", zap.String("sweep", name), zap.Int("processed", n))
			}
		}))
		if _, err := c.AddJob(j.Spec, wrapped); err != nil {
			return fmt.Errorf("schedule %s (%q): %w", name, j.Spec, err)
		}
	}
	return nil
}
