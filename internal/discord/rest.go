package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/EgorLis/Recruitbot/internal/directory"
)

const (
	DefaultAPIURL = "https://discord.com/api/v10"
	userAgent     = "DiscordBot (https://github.com/EgorLis/Recruitbot, 1.0)"

	maxAttempts   = 3
	maxRetryAfter = 30 * time.Second
)

// APIError — ответ REST с кодом не 2xx. errors.Is сопоставляет его с
// ошибками directory.
type APIError struct {
	Status  int    `json:"-"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("discord api: status %d code %d: %s", e.Status, e.Code, e.Message)
}

func (e *APIError) Is(target error) bool {
	switch target {
	case directory.ErrNotFound:
		return e.Status == http.StatusNotFound
	case directory.ErrBlocked:
		return e.Code == codeCannotDM
	case directory.ErrForbidden:
		return e.Status == http.StatusForbidden && e.Code != codeCannotDM
	}
	return false
}

// REST — низкоуровневый клиент HTTP API. Ответы 429 повторяются после
// паузы из retry_after.
type REST struct {
	http    *http.Client
	baseURL string
	token   string
	logger  *slog.Logger
}

type Option func(*REST)

// WithAPIURL подменяет адрес API (для тестов).
func WithAPIURL(u string) Option {
	return func(r *REST) { r.baseURL = strings.TrimRight(u, "/") }
}

func WithHTTPClient(h *http.Client) Option {
	return func(r *REST) { r.http = h }
}

func WithLogger(l *slog.Logger) Option {
	return func(r *REST) { r.logger = l }
}

func NewREST(token string, opts ...Option) *REST {
	r := &REST{
		http:    &http.Client{Timeout: 15 * time.Second},
		baseURL: DefaultAPIURL,
		token:   strings.TrimSpace(token),
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

type rateLimited struct {
	RetryAfter float64 `json:"retry_after"`
}

// do выполняет запрос. body и out могут быть nil; reason уходит в журнал
// аудита сервера.
func (r *REST) do(ctx context.Context, method, path, reason string, body, out any) error {
	var raw []byte
	if body != nil {
		var err error
		if raw, err = json.Marshal(body); err != nil {
			return fmt.Errorf("discord api: encode %s %s: %w", method, path, err)
		}
	}

	for attempt := 1; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, bytes.NewReader(raw))
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bot "+r.token)
		req.Header.Set("User-Agent", userAgent)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if reason != "" {
			req.Header.Set("X-Audit-Log-Reason", url.PathEscape(reason))
		}

		resp, err := r.http.Do(req)
		if err != nil {
			return fmt.Errorf("discord api: %s %s: %w", method, path, err)
		}
		data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("discord api: read %s %s: %w", method, path, err)
		}

		if resp.StatusCode == http.StatusTooManyRequests && attempt < maxAttempts {
			wait := retryAfter(resp, data)
			r.logger.Warn("discord rate limited", "method", method, "path", path, "retry_after", wait)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
			continue
		}

		if resp.StatusCode/100 != 2 {
			apiErr := &APIError{Status: resp.StatusCode}
			_ = json.Unmarshal(data, apiErr)
			if apiErr.Message == "" {
				apiErr.Message = http.StatusText(resp.StatusCode)
			}
			return apiErr
		}
		if out == nil || len(data) == 0 {
			return nil
		}
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("discord api: decode %s %s: %w", method, path, err)
		}
		return nil
	}
}

func retryAfter(resp *http.Response, data []byte) time.Duration {
	var rl rateLimited
	wait := time.Second
	if err := json.Unmarshal(data, &rl); err == nil && rl.RetryAfter > 0 {
		wait = time.Duration(rl.RetryAfter * float64(time.Second))
	} else if s, err := strconv.ParseFloat(resp.Header.Get("Retry-After"), 64); err == nil && s > 0 {
		wait = time.Duration(s * float64(time.Second))
	}
	return min(wait, maxRetryAfter)
}
