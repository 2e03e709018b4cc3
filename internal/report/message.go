// Package report defines the summary published for every built demand report.
package report

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"eiademand/internal/core"
)

// Message summarizes one built demand report for downstream consumers.
// It carries the selected categories and their totals, not the series itself.
type Message struct {
	ID            string               `json:"id"`
	Dataset       string               `json:"dataset"`
	Start         string               `json:"start"`
	End           string               `json:"end"`
	Unit          core.Unit            `json:"unit"`
	EasternOnly   bool                 `json:"eastern_only"`
	TopCategories []core.CategoryTotal `json:"top_categories"`
	Points        int                  `json:"points"`
	Timestamp     time.Time            `json:"timestamp"`
}

// NewMessage creates a message with a fresh id and the current time
func NewMessage(dataset, start, end string, unit core.Unit, easternOnly bool, top core.TopSet, points int) *Message {
	return &Message{
		ID:            uuid.NewString(),
		Dataset:       dataset,
		Start:         start,
		End:           end,
		Unit:          unit,
		EasternOnly:   easternOnly,
		TopCategories: append([]core.CategoryTotal(nil), top...),
		Points:        points,
		Timestamp:     time.Now().UTC(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *Message) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// MessageFromJSON creates a message from JSON bytes
func MessageFromJSON(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
