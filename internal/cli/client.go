package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// --- Response types (дублируются из api, CLI не импортирует internal/api) ---

// BackendResponse — backend из API.
type BackendResponse struct {
	ID           string   `json:"id"`
	BaseURL      string   `json:"base_url"`
	Capabilities []string `json:"capabilities"`
	Status       string   `json:"status"`
	MaxCapacity  int      `json:"max_capacity"`
	CurrentLoad  int      `json:"current_load"`
	LoadRatio    float64  `json:"load_ratio"`
	CircuitState string   `json:"circuit_state"`
}

// CircuitResponse — снимок контура из API.
type CircuitResponse struct {
	Backend             string `json:"backend"`
	State               string `json:"state"`
	ConsecutiveFailures int    `json:"consecutive_failures"`
	LastFailureAt       string `json:"last_failure_at,omitempty"`
	NextAttemptAt       string `json:"next_attempt_at,omitempty"`
}

// TemplateResponse — workflow-шаблон из API.
type TemplateResponse struct {
	Name      string              `json:"name"`
	Steps     []StepResponse      `json:"steps"`
	Fallbacks map[string][]string `json:"fallbacks,omitempty"`
}

// StepResponse — шаг шаблона из API.
type StepResponse struct {
	ID       string `json:"id"`
	Backend  string `json:"backend"`
	Method   string `json:"method"`
	Critical bool   `json:"critical"`
}

// MetricsResponse — снимок метрик из API.
type MetricsResponse struct {
	TotalRequests      int64   `json:"total_requests"`
	SuccessfulRequests int64   `json:"successful_requests"`
	FailedRequests     int64   `json:"failed_requests"`
	AverageLatencyMs   float64 `json:"average_latency_ms"`
	Failovers          int64   `json:"failovers"`
	CircuitTrips       int64   `json:"circuit_trips"`
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// --- Client ---

// Client — HTTP-клиент для Dirigent API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для API.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// Orchestrate отправляет запрос оркестрации.
// Тело запроса — произвольный JSON, результат возвращается как есть.
func (c *Client) Orchestrate(request json.RawMessage) (json.RawMessage, error) {
	resp, err := c.do(http.MethodPost, "/api/v1/orchestrate", request)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return nil, err
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return dr.Data, nil
}

// ListBackends возвращает все backend'ы.
func (c *Client) ListBackends() ([]BackendResponse, error) {
	var backends []BackendResponse
	err := c.list("/api/v1/backends", &backends)
	return backends, err
}

// GetCircuit возвращает снимок контура backend'а.
func (c *Client) GetCircuit(backendID string) (*CircuitResponse, error) {
	var circuit CircuitResponse
	err := c.get("/api/v1/backends/"+backendID+"/circuit", &circuit)
	return &circuit, err
}

// ListTemplates возвращает зарегистрированные шаблоны.
func (c *Client) ListTemplates() ([]TemplateResponse, error) {
	var templates []TemplateResponse
	err := c.list("/api/v1/templates", &templates)
	return templates, err
}

// CreateTemplate регистрирует шаблон из JSON.
func (c *Client) CreateTemplate(template json.RawMessage) (*TemplateResponse, error) {
	resp, err := c.do(http.MethodPost, "/api/v1/templates", template)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return nil, err
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	var tmpl TemplateResponse
	if err := json.Unmarshal(dr.Data, &tmpl); err != nil {
		return nil, fmt.Errorf("failed to decode template: %w", err)
	}
	return &tmpl, nil
}

// GetMetrics возвращает снимок метрик.
func (c *Client) GetMetrics() (*MetricsResponse, error) {
	var metrics MetricsResponse
	err := c.get("/api/v1/metrics", &metrics)
	return &metrics, err
}

// --- HTTP helpers ---

func (c *Client) get(path string, result any) error {
	resp, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return json.Unmarshal(dr.Data, result)
}

func (c *Client) list(path string, result any) error {
	resp, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return json.Unmarshal(lr.Data, result)
}

func (c *Client) do(method, path string, body json.RawMessage) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return fmt.Errorf("API error: HTTP %d", resp.StatusCode)
	}

	return fmt.Errorf("%s: %s", er.Error.Code, er.Error.Message)
}
