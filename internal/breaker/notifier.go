package breaker

import (
	"time"

	"github.com/shaiso/Dirigent/internal/telemetry"
)

// Transition — событие перехода контура между состояниями.
type Transition struct {
	// Backend — ID backend'а.
	Backend string `json:"backend"`

	// From — состояние до перехода.
	From State `json:"from"`

	// To — состояние после перехода.
	To State `json:"to"`

	// At — момент перехода.
	At time.Time `json:"at"`
}

// Notifier получает события переходов контуров.
//
// Вызывается вне мьютекса Manager'а; реализации не должны блокировать
// надолго (публикация событий уходит в свою горутину на стороне
// реализации, если транспорт медленный).
type Notifier interface {
	CircuitTransition(t Transition)
}

// MetricsNotifier транслирует переходы контуров в метрики.
type MetricsNotifier struct {
	Metrics *telemetry.Metrics
}

// CircuitTransition реализует Notifier.
func (n *MetricsNotifier) CircuitTransition(t Transition) {
	if n.Metrics == nil {
		return
	}
	if t.To == StateOpen {
		n.Metrics.RecordCircuitTrip(t.Backend)
	}
	n.Metrics.SetCircuitState(t.Backend, stateGaugeValue(t.To))
}

// stateGaugeValue кодирует состояние контура для gauge-метрики.
func stateGaugeValue(s State) float64 {
	switch s {
	case StateOpen:
		return 2
	case StateHalfOpen:
		return 1
	default:
		return 0
	}
}
