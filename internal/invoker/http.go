package invoker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shaiso/Dirigent/internal/registry"
	"github.com/shaiso/Dirigent/internal/telemetry"
)

const (
	defaultInvokeTimeout = 30 * time.Second
	defaultProbeTimeout  = 5 * time.Second
	maxErrorBodyLen      = 200
)

// HTTPInvoker — Invoker поверх HTTP.
//
// Вызов метода: POST {base_url}/{method} с JSON-payload в теле.
// Ответ 2xx/3xx парсится как JSON-объект; код >= 400 — логическая
// ошибка backend'а.
//
// Probe: GET {base_url}/healthz, любой код < 400 считается живым.
type HTTPInvoker struct {
	registry *registry.Registry
	client   *http.Client
	metrics  *telemetry.Metrics
}

// Config — конфигурация HTTPInvoker.
type Config struct {
	// Registry — реестр backend'ов (обязательно).
	Registry *registry.Registry

	// Client — HTTP-клиент (default: http.DefaultClient без общего
	// таймаута; дедлайны задаются per-call через контекст).
	Client *http.Client

	// Metrics — сборщик метрик вызовов (опционально).
	Metrics *telemetry.Metrics
}

// NewHTTP создаёт HTTPInvoker.
func NewHTTP(cfg Config) *HTTPInvoker {
	client := cfg.Client
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPInvoker{
		registry: cfg.Registry,
		client:   client,
		metrics:  cfg.Metrics,
	}
}

// Invoke вызывает метод backend'а.
//
// Таймаут: min(контекст вызывающего, invoke_timeout_sec профиля).
// Истечение дедлайна — ErrInvocationTimeout, прочие ошибки —
// ErrInvocationFailed.
func (i *HTTPInvoker) Invoke(ctx context.Context, backendID, method string, payload map[string]any) (map[string]any, error) {
	profile, err := i.registry.Get(backendID)
	if err != nil {
		return nil, err
	}

	timeout := defaultInvokeTimeout
	if profile.InvokeTimeoutSec > 0 {
		timeout = time.Duration(profile.InvokeTimeoutSec) * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if payload == nil {
		payload = map[string]any{}
	}
	bodyBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal payload: %v", ErrInvocationFailed, err)
	}

	url := profile.BaseURL + "/" + method
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", ErrInvocationFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := i.client.Do(req)
	if i.metrics != nil {
		i.metrics.RecordInvocation(backendID, method, time.Since(start))
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: backend %s method %s", ErrInvocationTimeout, backendID, method)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvocationFailed, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrInvocationFailed, err)
	}

	// HTTP >= 400 — отказ backend'а, считается как failure для контура
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: HTTP %d: %s", ErrInvocationFailed,
			resp.StatusCode, truncate(string(respBody), maxErrorBodyLen))
	}

	// Парсим body: пробуем JSON-объект, иначе заворачиваем как raw
	var output map[string]any
	if err := json.Unmarshal(respBody, &output); err != nil {
		output = map[string]any{"raw": string(respBody)}
	}
	return output, nil
}

// Probe проверяет живость backend'а через GET /healthz.
func (i *HTTPInvoker) Probe(ctx context.Context, backendID string) error {
	profile, err := i.registry.Get(backendID)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, defaultProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, profile.BaseURL+"/healthz", nil)
	if err != nil {
		return fmt.Errorf("%w: create request: %v", ErrInvocationFailed, err)
	}

	resp, err := i.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvocationFailed, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		return fmt.Errorf("%w: HTTP %d", ErrInvocationFailed, resp.StatusCode)
	}
	return nil
}

// truncate обрезает строку до указанной длины.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
