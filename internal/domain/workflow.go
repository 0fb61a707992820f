package domain

// WorkflowTemplate — именованный шаблон workflow.
//
// Шаблон регистрируется один раз на этапе конфигурации и после этого
// неизменяем. Шаги выполняются строго в объявленном порядке; каждый шаг
// заранее привязан к backend'у и методу (scorer внутри workflow не
// используется).
type WorkflowTemplate struct {
	// Name — уникальное имя шаблона (например, "user-onboarding").
	Name string `json:"name"`

	// Steps — упорядоченный список шагов.
	Steps []Step `json:"steps"`

	// Fallbacks — цепочки запасных backend'ов: backendID → упорядоченный
	// список альтернатив. Хранится как данные, а не код, чтобы шаблоны
	// оставались декларативными и тестируемыми отдельно от движка.
	Fallbacks map[string][]string `json:"fallbacks,omitempty"`
}

// Step — шаг workflow, привязанный к backend'у и методу.
type Step struct {
	// ID — уникальный идентификатор шага в рамках шаблона.
	ID string `json:"id"`

	// Backend — ID backend'а, выполняющего шаг.
	Backend string `json:"backend"`

	// Method — метод, вызываемый на backend'е.
	Method string `json:"method"`

	// Critical — при невосстановимом падении критического шага
	// весь workflow прерывается; некритический шаг пропускается.
	Critical bool `json:"critical"`

	// TimeoutSec — таймаут вызова для этого шага.
	// 0 — использовать таймаут backend'а по умолчанию.
	TimeoutSec int `json:"timeout_sec,omitempty"`
}

// FallbacksFor возвращает цепочку запасных backend'ов для указанного.
// Порядок в цепочке — порядок попыток.
func (t *WorkflowTemplate) FallbacksFor(backendID string) []string {
	if t.Fallbacks == nil {
		return nil
	}
	return t.Fallbacks[backendID]
}
