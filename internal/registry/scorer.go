package registry

import (
	"github.com/shaiso/Dirigent/internal/domain"
)

// candidateBand — доля от максимального score, в пределах которой
// backend'ы считаются "почти равными" и сравниваются по нагрузке.
const candidateBand = 0.9

// circuitOpenPenalty — штраф к score backend'а с открытым контуром.
const circuitOpenPenalty = 50

// CircuitView — read-only взгляд на состояние контуров.
// Реализуется breaker.Manager'ом; интерфейс здесь, чтобы registry
// не зависел от пакета breaker.
type CircuitView interface {
	// IsOpen возвращает true, если контур backend'а открыт.
	IsOpen(backendID string) bool
}

// Scorer выбирает backend под требуемые возможности.
//
// Выбор read-only: нагрузку инкрементирует вызывающий через
// Registry.Acquire непосредственно перед invoke.
type Scorer struct {
	registry *Registry
	circuits CircuitView
}

// NewScorer создаёт Scorer поверх Registry и состояния контуров.
// circuits может быть nil — тогда штраф за открытый контур не применяется.
func NewScorer(registry *Registry, circuits CircuitView) *Scorer {
	return &Scorer{
		registry: registry,
		circuits: circuits,
	}
}

// Score вычисляет пригодность backend'а для требуемых возможностей.
//
// Формула:
//
//	10×|required ∩ capabilities|
//	+ performanceScore + reliabilityScore
//	+ (10 − 10×load/capacity)
//	− responseTime/10 − errorRate×100
//	− 50, если контур открыт
//
// Результат не бывает отрицательным (clamp к 0).
func (s *Scorer) Score(profile *domain.BackendProfile, required []string) float64 {
	score := 10 * float64(profile.CapabilityOverlap(required))
	score += profile.PerformanceScore
	score += profile.ReliabilityScore
	score += 10 - 10*s.registry.LoadRatio(profile.ID)
	score -= profile.ResponseTimeMs / 10
	score -= profile.ErrorRate * 100

	if s.circuits != nil && s.circuits.IsOpen(profile.ID) {
		score -= circuitOpenPenalty
	}

	if score < 0 {
		return 0
	}
	return score
}

// SelectBackend выбирает backend под требуемые возможности.
//
// Алгоритм:
//  1. Score для каждого backend'а со статусом ACTIVE
//     (UNHEALTHY исключаются независимо от состояния контура).
//  2. Кандидаты — все со score ≥ 0.9×max.
//  3. Среди кандидатов побеждает наименьшее отношение load/capacity.
//
// Возвращает ErrNoAvailableBackend, если активных backend'ов нет
// или все score схлопнулись в 0.
func (s *Scorer) SelectBackend(required []string) (string, error) {
	type scored struct {
		id    string
		score float64
	}

	var all []scored
	maxScore := 0.0

	for _, profile := range s.registry.List() {
		if profile.Status != domain.BackendStatusActive {
			continue
		}
		score := s.Score(profile, required)
		all = append(all, scored{id: profile.ID, score: score})
		if score > maxScore {
			maxScore = score
		}
	}

	if len(all) == 0 || maxScore <= 0 {
		return "", ErrNoAvailableBackend
	}

	// Кандидаты в пределах candidateBand от максимума,
	// tie-break — наименьшая относительная нагрузка.
	best := ""
	bestRatio := 0.0
	for _, c := range all {
		if c.score < candidateBand*maxScore {
			continue
		}
		ratio := s.registry.LoadRatio(c.id)
		if best == "" || ratio < bestRatio {
			best = c.id
			bestRatio = ratio
		}
	}

	if best == "" {
		return "", ErrNoAvailableBackend
	}
	return best, nil
}
