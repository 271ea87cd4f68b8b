package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType discriminates change events on the shared queue.
type EventType string

const (
	EventExpenseChanged EventType = "expense_changed"
	EventRatesRefreshed EventType = "rates_refreshed"
)

// ChangeEvent notifies consumers that a snapshot component moved and
// any memoized dashboard derived from it is out of date. It carries
// identifiers only; consumers reload from their own source of truth.
type ChangeEvent struct {
	Type      EventType `json:"type"`
	GroupID   string    `json:"group_id,omitempty"`
	ExpenseID string    `json:"expense_id,omitempty"`
	Base      string    `json:"base,omitempty"`
	RateCount int       `json:"rate_count,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func NewExpenseChanged(groupID, expenseID string) *ChangeEvent {
	return &ChangeEvent{
		Type:      EventExpenseChanged,
		GroupID:   groupID,
		ExpenseID: expenseID,
		Timestamp: time.Now(),
	}
}

func NewRatesRefreshed(base string, rateCount int) *ChangeEvent {
	return &ChangeEvent{
		Type:      EventRatesRefreshed,
		Base:      base,
		RateCount: rateCount,
		Timestamp: time.Now(),
	}
}

func (e *ChangeEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

func ChangeEventFromJSON(data []byte) (*ChangeEvent, error) {
	var e ChangeEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	if e.Type != EventExpenseChanged && e.Type != EventRatesRefreshed {
		return nil, fmt.Errorf("unknown event type %q", e.Type)
	}
	return &e, nil
}
