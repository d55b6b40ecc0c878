package domain

import (
	"strings"
	"time"
)

// Типы событий таймлайна заказа.
const (
	TimelineOrderPlaced        = "OrderPlaced"
	TimelineOrderStatusChanged = "OrderStatusChanged"
	TimelineOrderCompensated   = "OrderCompensated"
)

// TimelineEvent описывает событие в жизненном цикле заказа.
type TimelineEvent struct {
	OrderID  string
	Type     string
	Reason   string
	Occurred time.Time
}

// ValidTimelineType проверяет, что тип события известен витрине.
func ValidTimelineType(eventType string) bool {
	switch eventType {
	case TimelineOrderPlaced, TimelineOrderStatusChanged, TimelineOrderCompensated:
		return true
	default:
		return false
	}
}

// Normalize проверяет событие перед записью: пустое время заменяется на now, время приводится к UTC.
func (e TimelineEvent) Normalize(now time.Time) (TimelineEvent, error) {
	e.OrderID = strings.TrimSpace(e.OrderID)
	e.Reason = strings.TrimSpace(e.Reason)

	var problems []error
	if e.OrderID == "" {
		problems = append(problems, ErrOrderIDRequired)
	}
	if !ValidTimelineType(e.Type) {
		problems = append(problems, ErrTimelineTypeInvalid)
	}
	if err := NewValidationError(problems...); err != nil {
		return TimelineEvent{}, err
	}

	if e.Occurred.IsZero() {
		e.Occurred = now
	}
	e.Occurred = e.Occurred.UTC()
	return e, nil
}
