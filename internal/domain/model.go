package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderCompleted OrderStatus = "completed"
)

type AssignmentStatus string

const (
	StatusPending    AssignmentStatus = "pending"
	StatusInProgress AssignmentStatus = "in_progress"
	StatusCompleted  AssignmentStatus = "completed"
)

type Order struct {
	Number      string      `json:"order_number"`
	Dispatcher  string      `json:"dispatcher_name"`
	Customer    string      `json:"customer_name"`
	Status      OrderStatus `json:"status"`
	ItemIDs     []string    `json:"item_ids"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
}

type OrderItem struct {
	ID              string                     `json:"id"`
	OrderNumber     string                     `json:"order_number"`
	Name            string                     `json:"name"`
	Position        int                        `json:"position"`
	TeamAssignments map[Craft][]string         `json:"team_assignments"`
	TeamStatus      map[Craft]AssignmentStatus `json:"team_status,omitempty"`
}

type Entry struct {
	Qty         int       `json:"qty"`
	SubmittedBy string    `json:"submitted_by"`
	SubmittedAt time.Time `json:"submitted_at"`
	Remarks     string    `json:"remarks,omitempty"`
}

type Tracking struct {
	TotalCompletedQty int        `json:"total_completed_qty"`
	Entries           []Entry    `json:"completed_entries"`
	LastUpdated       *time.Time `json:"last_updated,omitempty"`
}

// GlassDetails describes the physical glass unit; decoration stages inherit it in team views.
type GlassDetails struct {
	Name              string            `json:"glass_name"`
	Weight            decimal.Decimal   `json:"weight"`
	NeckSize          string            `json:"neck_size,omitempty"`
	Combination       string            `json:"decoration"`
	DecorationDetails map[string]string `json:"decoration_details,omitempty"`
}

type Assignment struct {
	ID          string           `json:"id"`
	ItemID      string           `json:"item_id"`
	OrderNumber string           `json:"order_number"`
	Craft       Craft            `json:"craft"`
	Name        string           `json:"name,omitempty"`
	Quantity    int              `json:"quantity"`
	Status      AssignmentStatus `json:"status"`
	Tracking    Tracking         `json:"tracking"`

	// caps only
	HasAssembly      bool      `json:"has_assembly,omitempty"`
	AssemblyTracking *Tracking `json:"assembly_tracking,omitempty"`

	// glass only
	Glass *GlassDetails `json:"glass,omitempty"`

	// decoration stages only
	GlassAssignmentID string     `json:"glass_assignment_id,omitempty"`
	Ready             bool       `json:"ready,omitempty"`
	ReadyAt           *time.Time `json:"ready_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Track returns the tracking record selected by kind. An empty kind selects the primary record.
func (a *Assignment) Track(kind TrackKind) (*Tracking, TrackKind, error) {
	if kind == "" {
		kind = PrimaryTrack(a.Craft)
	}
	switch {
	case kind == PrimaryTrack(a.Craft):
		return &a.Tracking, kind, nil
	case a.Craft == CraftCaps && kind == TrackAssembly:
		if !a.HasAssembly {
			return nil, kind, Validation("track", "cap assignment %s has no assembly process", a.ID)
		}
		if a.AssemblyTracking == nil {
			a.AssemblyTracking = &Tracking{}
		}
		return a.AssemblyTracking, kind, nil
	default:
		return nil, kind, Validation("track", "tracking %q does not apply to %s assignments", kind, a.Craft)
	}
}

// Remaining is the capacity left on the selected tracking record.
func (a *Assignment) Remaining(kind TrackKind) (int, error) {
	t, _, err := a.Track(kind)
	if err != nil {
		return 0, err
	}
	return a.Quantity - t.TotalCompletedQty, nil
}

// IsComplete is the craft-specific completion predicate.
func (a Assignment) IsComplete() bool {
	if a.Tracking.TotalCompletedQty < a.Quantity {
		return false
	}
	if a.Craft == CraftCaps && a.HasAssembly {
		return a.AssemblyTracking != nil && a.AssemblyTracking.TotalCompletedQty >= a.Quantity
	}
	return true
}

// DeriveStatus maps tracking state onto an assignment status.
func (a Assignment) DeriveStatus() AssignmentStatus {
	if a.IsComplete() {
		return StatusCompleted
	}
	if a.Tracking.TotalCompletedQty > 0 || (a.AssemblyTracking != nil && a.AssemblyTracking.TotalCompletedQty > 0) {
		return StatusInProgress
	}
	return StatusPending
}

// DispatchKey identifies one stage transition of one physical glass unit.
type DispatchKey struct {
	OrderNumber       string `json:"order_number"`
	ItemID            string `json:"item_id"`
	GlassAssignmentID string `json:"glass_assignment_id"`
	Stage             Craft  `json:"stage"`
}

func (k DispatchKey) String() string {
	return k.OrderNumber + "/" + k.ItemID + "/" + k.GlassAssignmentID + "/" + string(k.Stage)
}

// OrderFilter selects orders by status for list queries.
type OrderFilter string

const (
	FilterAll       OrderFilter = "all"
	FilterPending   OrderFilter = "pending"
	FilterCompleted OrderFilter = "completed"
)

func ParseOrderFilter(s string) (OrderFilter, error) {
	switch OrderFilter(s) {
	case "", FilterAll:
		return FilterAll, nil
	case FilterPending, FilterCompleted:
		return OrderFilter(s), nil
	}
	return "", Validation("filter", "unknown filter %q", s)
}

func (f OrderFilter) Match(s OrderStatus) bool {
	switch f {
	case FilterPending:
		return s == OrderPending
	case FilterCompleted:
		return s == OrderCompleted
	}
	return true
}
