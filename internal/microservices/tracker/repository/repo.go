package repository

import (
	"context"
	"time"

	"fulfillment-tracker/internal/domain"
)

// Reader is the read side shared by the store and open transactions.
type Reader interface {
	GetOrder(ctx context.Context, number string) (domain.Order, error)
	ListOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error)
	GetItem(ctx context.Context, id string) (domain.OrderItem, error)
	ListItems(ctx context.Context, orderNumber string) ([]domain.OrderItem, error)
	GetAssignment(ctx context.Context, id string) (domain.Assignment, error)
	ListOrderAssignments(ctx context.Context, orderNumber string) ([]domain.Assignment, error)
	// FindStageAssignment returns the decoration assignment of stage decorating glassID.
	FindStageAssignment(ctx context.Context, glassID string, stage domain.Craft) (domain.Assignment, error)
	IsDispatched(ctx context.Context, key domain.DispatchKey) (bool, error)
}

// Tx is one all-or-nothing unit of work.
type Tx interface {
	Reader

	// Savepoint runs fn in a nested unit; an error rolls back only fn's writes.
	Savepoint(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	// LockOrder serializes transitions of one order until the transaction ends.
	LockOrder(ctx context.Context, number string) (domain.Order, error)

	CreateOrder(ctx context.Context, o domain.Order, items []domain.OrderItem, assignments []domain.Assignment) error
	UpdateOrderHeader(ctx context.Context, number string, dispatcher, customer *string, at time.Time) (domain.Order, error)
	DeleteOrder(ctx context.Context, number string) error
	// SetOrderCompleted moves a pending order to completed. It never moves an order back.
	SetOrderCompleted(ctx context.Context, number string, at time.Time) (bool, error)
	SetTeamStatus(ctx context.Context, itemID string, craft domain.Craft, status domain.AssignmentStatus) error

	// RecordCompletion adds entry to the selected tracking record only if the remaining
	// capacity allows it, and re-derives the assignment status.
	RecordCompletion(ctx context.Context, assignmentID string, kind domain.TrackKind, entry domain.Entry) (domain.Assignment, error)

	// MarkDispatched claims key in the dedup ledger. It reports false when the key was already claimed.
	MarkDispatched(ctx context.Context, key domain.DispatchKey, at time.Time) (bool, error)
	// ActivateStage sets the readiness flag. It reports false when the stage was already ready.
	ActivateStage(ctx context.Context, assignmentID string, at time.Time) (bool, error)
}

type Store interface {
	Reader
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	// PurgeLedger evicts ledger rows of completed orders dispatched before cutoff.
	PurgeLedger(ctx context.Context, cutoff time.Time) (int64, error)
}

// LoadOrderView reads an order with its items and assignments.
func LoadOrderView(ctx context.Context, r Reader, number string) (domain.OrderView, error) {
	o, err := r.GetOrder(ctx, number)
	if err != nil {
		return domain.OrderView{}, err
	}
	items, err := r.ListItems(ctx, number)
	if err != nil {
		return domain.OrderView{}, err
	}
	as, err := r.ListOrderAssignments(ctx, number)
	if err != nil {
		return domain.OrderView{}, err
	}
	return domain.BuildOrderView(o, items, as), nil
}
