package registry

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/shaiso/Dirigent/internal/domain"
)

// backendsFile — формат конфигурационного файла с профилями.
type backendsFile struct {
	Backends []domain.BackendProfile `json:"backends"`
}

// LoadFromFile загружает профили backend'ов из JSON-файла.
//
// Формат:
//
//	{
//	  "backends": [
//	    {"id": "moderation-ai", "base_url": "http://moderation:8000",
//	     "capabilities": ["moderation", "sentiment"],
//	     "performance_score": 8, "reliability_score": 9,
//	     "max_capacity": 50, "response_time_ms": 120, "error_rate": 0.02}
//	  ]
//	}
func LoadFromFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read backends config: %w", err)
	}

	var cfg backendsFile
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse backends config: %w", err)
	}

	if len(cfg.Backends) == 0 {
		return nil, fmt.Errorf("%w: no backends in config", ErrInvalidProfile)
	}

	reg := New()
	for i := range cfg.Backends {
		profile := cfg.Backends[i]
		if err := reg.Register(&profile); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// ConfigPath возвращает путь к файлу профилей из окружения.
func ConfigPath() string {
	if path := os.Getenv("DIRIGENT_BACKENDS"); path != "" {
		return path
	}
	return "backends.json"
}
