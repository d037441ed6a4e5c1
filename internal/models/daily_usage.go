package models

import "time"

// Session одна завершённая сессия работы приложения. Duration в секундах.
type Session struct {
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Duration float64   `json:"duration"`
}

// DailyUsage содержимое temp/daily_usage_limit.json.
type DailyUsage struct {
	Date           string    `json:"date"`
	TotalHoursUsed float64   `json:"total_hours_used"`
	Sessions       []Session `json:"sessions"`
	IsLimited      bool      `json:"is_limited"`
}

// ResetIfStale начинает новый день, если сохранённая дата не совпадает с today.
func (d *DailyUsage) ResetIfStale(today string) bool {
	if d.Date == today {
		return false
	}
	*d = DailyUsage{Date: today, Sessions: []Session{}}
	return true
}

// LimitStatus ответ CanStartApp и локального API.
type LimitStatus struct {
	Allowed        bool    `json:"allowed"`
	UsedHours      float64 `json:"used_hours"`
	RemainingHours float64 `json:"remaining_hours"`
	MaxHours       float64 `json:"max_hours"`
	SessionActive  bool    `json:"session_active"`
}
