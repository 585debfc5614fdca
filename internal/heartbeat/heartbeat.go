// Package heartbeat periodically reports device liveness to the
// server, independent of the upload pipeline.
package heartbeat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Interval is the time between heartbeat requests.
const Interval = 30 * time.Second

const offlineStatus = "offline"

// Config describes the destination and identity for heartbeat requests.
type Config struct {
	URL               string
	Token             string
	DeviceFingerprint string
	AppVersion        string
}

type request struct {
	DeviceFingerprint string `json:"device_fingerprint"`
	AppVersion        string `json:"app_version"`
}

// Response is the server's heartbeat acknowledgment.
type Response struct {
	Status     string `json:"status"`
	FirstSeen  string `json:"first_seen"`
	LastSeen   string `json:"last_seen"`
	AppVersion string `json:"app_version"`
}

// Status is the last observed heartbeat outcome.
type Status struct {
	Response  *Response
	IsLoading bool
	Error     string
}

// Reporter runs the heartbeat loop. The zero value is not usable; use
// New. A Reporter may be Start'd and Stop'd repeatedly; UpdateConfig
// restarts the loop with a new Config.
type Reporter struct {
	HTTPClient *http.Client
	Logger     *zap.Logger

	mu     sync.Mutex
	cfg    *Config
	status Status
	cancel context.CancelFunc
	done   chan struct{}
}

// New returns a stopped Reporter.
func New(logger *zap.Logger) *Reporter {
	return &Reporter{HTTPClient: &http.Client{}, Logger: logger}
}

// Start begins reporting on Interval with cfg. Any previously running
// loop is stopped first.
func (r *Reporter) Start(cfg Config) {
	r.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	r.mu.Lock()
	r.cfg = &cfg
	r.cancel = cancel
	r.done = done
	r.mu.Unlock()

	go r.run(ctx, done)
}

// Stop cancels any running loop and clears the status.
func (r *Reporter) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	done := r.done
	r.cfg = nil
	r.cancel = nil
	r.done = nil
	r.status = Status{}
	r.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
		// A tick that was in flight may have recorded its outcome after
		// the status was cleared above.
		r.mu.Lock()
		r.status = Status{}
		r.mu.Unlock()
	}
	if r.Logger != nil {
		r.Logger.Info("heartbeat stopped")
	}
}

// UpdateConfig restarts the loop with a new Config, equivalent to
// Stop followed by Start.
func (r *Reporter) UpdateConfig(cfg Config) {
	r.Start(cfg)
}

// Status returns the last observed heartbeat outcome.
func (r *Reporter) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

func (r *Reporter) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(Interval)
	defer ticker.Stop()

	r.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

func (r *Reporter) tick(ctx context.Context) {
	r.mu.Lock()
	cfg := r.cfg
	r.mu.Unlock()
	if cfg == nil {
		return
	}

	resp, err := r.send(ctx, *cfg)

	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		failed := r.status.Response
		if failed != nil {
			clone := *failed
			clone.Status = offlineStatus
			failed = &clone
		}
		r.status = Status{Response: failed, Error: err.Error()}
		if r.Logger != nil {
			r.Logger.Warn("heartbeat failed", zap.Error(err))
		}
		return
	}

	r.status = Status{Response: resp}
	if r.Logger != nil {
		r.Logger.Info("heartbeat successful")
	}
}

func (r *Reporter) send(ctx context.Context, cfg Config) (*Response, error) {
	body, err := json.Marshal(request{DeviceFingerprint: cfg.DeviceFingerprint, AppVersion: cfg.AppVersion})
	if err != nil {
		return nil, fmt.Errorf("marshal heartbeat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build heartbeat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if cfg.Token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+cfg.Token)
	}

	resp, err := r.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("heartbeat request to %s: %w", cfg.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("heartbeat HTTP %d: %s", resp.StatusCode, text)
	}

	var parsed Response
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode heartbeat response: %w", err)
	}
	return &parsed, nil
}
