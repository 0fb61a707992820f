package domain

// BackendStatus — статус здоровья backend'а.
//
// Управляется только HealthMonitor'ом и не зависит от состояния
// circuit breaker'а: backend может быть ACTIVE с открытым контуром
// (probe проходит, а бизнес-вызовы падают) и наоборот.
type BackendStatus string

const (
	// BackendStatusActive — backend здоров, участвует в выборе.
	BackendStatusActive BackendStatus = "ACTIVE"

	// BackendStatusUnhealthy — probe не прошёл, backend исключён из выбора.
	BackendStatusUnhealthy BackendStatus = "UNHEALTHY"
)

// BackendProfile — профиль возможностей одного backend'а.
//
// Создаётся один раз при старте процесса из конфигурации и живёт
// до завершения процесса. Статические поля (scores, capacity, baseline)
// не меняются; Status мутирует HealthMonitor. Текущая нагрузка
// хранится не здесь, а в Registry — профиль можно безопасно читать
// без блокировок.
type BackendProfile struct {
	// ID — уникальный идентификатор backend'а (например, "moderation-ai").
	ID string `json:"id"`

	// BaseURL — адрес backend'а для HTTP invoker'а.
	BaseURL string `json:"base_url"`

	// Capabilities — теги возможностей ("moderation", "recommendation", ...).
	// Используются scorer'ом для подбора backend'а под запрос.
	Capabilities []string `json:"capabilities"`

	// PerformanceScore — статическая оценка производительности.
	PerformanceScore float64 `json:"performance_score"`

	// ReliabilityScore — статическая оценка надёжности.
	ReliabilityScore float64 `json:"reliability_score"`

	// ScalabilityScore — статическая оценка масштабируемости.
	ScalabilityScore float64 `json:"scalability_score"`

	// MaxCapacity — потолок одновременных вызовов.
	MaxCapacity int `json:"max_capacity"`

	// ResponseTimeMs — baseline время ответа в миллисекундах (информационное).
	ResponseTimeMs float64 `json:"response_time_ms"`

	// ErrorRate — baseline доля ошибок в [0..1] (информационное).
	ErrorRate float64 `json:"error_rate"`

	// Status — текущий статус здоровья.
	Status BackendStatus `json:"status"`

	// FailureThreshold — порог consecutive failures для circuit breaker'а.
	// 0 — использовать значение по умолчанию.
	FailureThreshold int `json:"failure_threshold,omitempty"`

	// ResetTimeoutSec — cooldown открытого контура в секундах.
	// 0 — использовать значение по умолчанию.
	ResetTimeoutSec int `json:"reset_timeout_sec,omitempty"`

	// InvokeTimeoutSec — таймаут вызова по умолчанию для этого backend'а.
	// 0 — использовать значение по умолчанию.
	InvokeTimeoutSec int `json:"invoke_timeout_sec,omitempty"`
}

// HasCapability проверяет наличие тега возможности.
func (p *BackendProfile) HasCapability(cap string) bool {
	for _, c := range p.Capabilities {
		if c == cap {
			return true
		}
	}
	return false
}

// CapabilityOverlap возвращает количество совпадений с требуемыми тегами.
func (p *BackendProfile) CapabilityOverlap(required []string) int {
	n := 0
	for _, cap := range required {
		if p.HasCapability(cap) {
			n++
		}
	}
	return n
}
