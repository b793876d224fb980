package amqp

import (
	"encoding/json"
	"time"

	"finwatch/internal/alerts"
)

// ToastMessage is the wire format of a budget threshold toast.
type ToastMessage struct {
	UserID     string    `json:"user_id"`
	BudgetID   string    `json:"budget_id"`
	Category   string    `json:"category"`
	Type       string    `json:"type"`
	Priority   string    `json:"priority"`
	Percentage float64   `json:"percentage"`
	Message    string    `json:"message"`
	Timestamp  time.Time `json:"timestamp"`
}

func NewToastMessage(t alerts.Toast) *ToastMessage {
	ts := t.At
	if ts.IsZero() {
		ts = time.Now()
	}
	return &ToastMessage{
		UserID:     t.UserID,
		BudgetID:   t.BudgetID,
		Category:   t.Category,
		Type:       string(t.Type),
		Priority:   string(t.Priority),
		Percentage: t.Percentage,
		Message:    t.Message,
		Timestamp:  ts,
	}
}

// ToJSON converts the message to JSON bytes
func (m *ToastMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ToastMessageFromJSON creates a message from JSON bytes
func ToastMessageFromJSON(data []byte) (*ToastMessage, error) {
	var msg ToastMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
