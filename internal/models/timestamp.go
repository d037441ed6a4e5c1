package models

import (
	"fmt"
	"strings"
	"time"
)

// WIB часовой пояс Asia/Jakarta без зависимости от tzdata.
var WIB = time.FixedZone("WIB", 7*60*60)

var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTimestamp разбирает ISO8601 отметку времени. Строки без смещения
// считаются временем WIB. Пустая строка даёт nil.
func ParseTimestamp(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return &t, nil
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, WIB); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("unsupported timestamp %q", s)
}

// DateKey возвращает календарную дату t в часовом поясе loc в формате 2006-01-02.
func DateKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2006-01-02")
}
