package models

import "time"

// Component источник расхода кредитов.
type Component string

const (
	ComponentSTT       Component = "stt"
	ComponentTTS       Component = "tts"
	ComponentAI        Component = "ai"
	ComponentTranslate Component = "translate"
)

// Valid известный компонент.
func (c Component) Valid() bool {
	switch c {
	case ComponentSTT, ComponentTTS, ComponentAI, ComponentTranslate:
		return true
	}
	return false
}

// ComponentUsage агрегат использования одного компонента за день.
type ComponentUsage struct {
	Count   int     `json:"count"`
	Units   float64 `json:"units"`
	Credits float64 `json:"credits"`
}

// UsageEvent одна запись использования.
type UsageEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Component Component `json:"component"`
	Variant   string    `json:"variant,omitempty"`
	Units     float64   `json:"units"`
	Credits   float64   `json:"credits"`
}

// UsageHistogram содержимое temp/daily_usage.json.
type UsageHistogram struct {
	Date         string                        `json:"date"`
	TotalCredits float64                       `json:"total_credits"`
	Components   map[Component]*ComponentUsage `json:"components"`
	Events       []UsageEvent                  `json:"events"`
}

// ResetIfStale обнуляет гистограмму, если она относится к другому дню.
func (h *UsageHistogram) ResetIfStale(today string) bool {
	if h.Date == today && h.Components != nil {
		return false
	}
	*h = UsageHistogram{
		Date:       today,
		Components: make(map[Component]*ComponentUsage),
		Events:     []UsageEvent{},
	}
	return true
}

// Record добавляет событие в гистограмму.
func (h *UsageHistogram) Record(ev UsageEvent) {
	if h.Components == nil {
		h.Components = make(map[Component]*ComponentUsage)
	}
	cu, ok := h.Components[ev.Component]
	if !ok {
		cu = &ComponentUsage{}
		h.Components[ev.Component] = cu
	}
	cu.Count++
	cu.Units += ev.Units
	cu.Credits += ev.Credits
	h.TotalCredits += ev.Credits
	h.Events = append(h.Events, ev)
}

// UsageDelta изменение баланса, ожидающее отправки на сервер.
type UsageDelta struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	CreditsUsed float64   `json:"credits_used"`
	HoursUsed   float64   `json:"hours_used"`
	Timestamp   time.Time `json:"timestamp"`
	Attempts    int       `json:"attempts"`
}
