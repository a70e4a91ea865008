package audit

import (
	"encoding/json"
	"log"
	"time"
)

type Event struct {
	Timestamp  time.Time `json:"timestamp"`
	EventType  string    `json:"event_type"`
	Entity     string    `json:"entity"`
	EntityID   int64     `json:"entity_id"`
	MemberID   int64     `json:"member_id,omitempty"`
	Amount     string    `json:"amount,omitempty"`
	FromStatus string    `json:"from_status,omitempty"`
	ToStatus   string    `json:"to_status,omitempty"`
	Status     string    `json:"status"`
	Details    any       `json:"details,omitempty"`
}

// Logger writes one "AUDIT: {json}" line per state change
type Logger struct {
	logf func(format string, v ...any)
}

func NewLogger() *Logger {
	return &Logger{logf: log.Printf}
}

func (a *Logger) LogTransition(entity string, id, memberID int64, from, to, amount string) {
	a.log(Event{
		Timestamp:  time.Now().UTC(),
		EventType:  "TRANSITION",
		Entity:     entity,
		EntityID:   id,
		MemberID:   memberID,
		Amount:     amount,
		FromStatus: from,
		ToStatus:   to,
		Status:     "SUCCESS",
	})
}

func (a *Logger) LogCreate(entity string, id, memberID int64, amount string, details map[string]string) {
	a.log(Event{
		Timestamp: time.Now().UTC(),
		EventType: "CREATE",
		Entity:    entity,
		EntityID:  id,
		MemberID:  memberID,
		Amount:    amount,
		Status:    "SUCCESS",
		Details:   details,
	})
}

func (a *Logger) LogOperation(operation, entity string, id int64, details any) {
	a.log(Event{
		Timestamp: time.Now().UTC(),
		EventType: operation,
		Entity:    entity,
		EntityID:  id,
		Status:    "SUCCESS",
		Details:   details,
	})
}

func (a *Logger) LogError(operation, entity string, id int64, err error) {
	a.log(Event{
		Timestamp: time.Now().UTC(),
		EventType: operation,
		Entity:    entity,
		EntityID:  id,
		Status:    "FAILED",
		Details:   map[string]string{"error": err.Error()},
	})
}

func (a *Logger) log(event Event) {
	if a == nil {
		return
	}
	data, _ := json.Marshal(event)
	a.logf("AUDIT: %s", string(data))
}
