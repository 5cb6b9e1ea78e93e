package amqp

import (
	"encoding/json"
	"time"
)

// BudgetSavedMessage tells the export worker that a building's budget
// changed. It carries identifiers only; the worker re-reads the rollup from
// the database so the message can never go stale.
type BudgetSavedMessage struct {
	BuildingID   string    `json:"building_id"`
	EntityID     string    `json:"entity_id"`
	RowsAffected int64     `json:"rows_affected"`
	Timestamp    time.Time `json:"timestamp"`
}

func NewBudgetSavedMessage(buildingID, entityID string, rowsAffected int64) *BudgetSavedMessage {
	return &BudgetSavedMessage{
		BuildingID:   buildingID,
		EntityID:     entityID,
		RowsAffected: rowsAffected,
		Timestamp:    time.Now(),
	}
}

func (m *BudgetSavedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func BudgetSavedMessageFromJSON(data []byte) (*BudgetSavedMessage, error) {
	var msg BudgetSavedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
