package domain

import "time"

// Realtime event names.
const (
	EventOrderCreated  = "order.created"
	EventOrderUpdated  = "order.updated"
	EventOrderProgress = "order.progress"
	EventOrderDeleted  = "order.deleted"
	EventStageReady    = "stage.ready"
)

// Activation is a decoration stage that was unblocked by a committed transition.
type Activation struct {
	Key          DispatchKey `json:"key"`
	AssignmentID string      `json:"assignment_id"`
	Stage        Craft       `json:"stage"`
	After        Craft       `json:"after"`
	ActivatedAt  time.Time   `json:"activated_at"`
}

type StageReadyPayload struct {
	OrderNumber  string        `json:"order_number"`
	ItemID       string        `json:"item_id"`
	AssignmentID string        `json:"assignment_id"`
	Stage        Craft         `json:"stage"`
	After        Craft         `json:"after"`
	Glass        *GlassSummary `json:"glass_item,omitempty"`
	ActivatedAt  time.Time     `json:"activated_at"`
}

type OrderDeletedPayload struct {
	OrderNumber string    `json:"order_number"`
	DeletedAt   time.Time `json:"deleted_at"`
}
