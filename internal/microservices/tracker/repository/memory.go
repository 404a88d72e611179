package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"fulfillment-tracker/internal/domain"
)

// MemoryStore keeps all state in process. Transactions run one at a time on a
// private copy that replaces the committed state only when fn succeeds.
type MemoryStore struct {
	mu sync.RWMutex
	st *memState
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{st: newMemState()}
}

type memState struct {
	orders      map[string]domain.Order
	items       map[string]domain.OrderItem
	assignments map[string]domain.Assignment
	ledger      map[domain.DispatchKey]time.Time
}

func newMemState() *memState {
	return &memState{
		orders:      map[string]domain.Order{},
		items:       map[string]domain.OrderItem{},
		assignments: map[string]domain.Assignment{},
		ledger:      map[domain.DispatchKey]time.Time{},
	}
}

func (s *memState) clone() *memState {
	c := &memState{
		orders:      make(map[string]domain.Order, len(s.orders)),
		items:       make(map[string]domain.OrderItem, len(s.items)),
		assignments: make(map[string]domain.Assignment, len(s.assignments)),
		ledger:      make(map[domain.DispatchKey]time.Time, len(s.ledger)),
	}
	for k, v := range s.orders {
		c.orders[k] = cloneOrder(v)
	}
	for k, v := range s.items {
		c.items[k] = cloneItem(v)
	}
	for k, v := range s.assignments {
		c.assignments[k] = cloneAssignment(v)
	}
	for k, v := range s.ledger {
		c.ledger[k] = v
	}
	return c
}

func cloneOrder(o domain.Order) domain.Order {
	o.ItemIDs = append([]string(nil), o.ItemIDs...)
	if o.CompletedAt != nil {
		t := *o.CompletedAt
		o.CompletedAt = &t
	}
	return o
}

func cloneItem(it domain.OrderItem) domain.OrderItem {
	ta := make(map[domain.Craft][]string, len(it.TeamAssignments))
	for k, v := range it.TeamAssignments {
		ta[k] = append([]string(nil), v...)
	}
	it.TeamAssignments = ta
	if it.TeamStatus != nil {
		ts := make(map[domain.Craft]domain.AssignmentStatus, len(it.TeamStatus))
		for k, v := range it.TeamStatus {
			ts[k] = v
		}
		it.TeamStatus = ts
	}
	return it
}

func cloneTracking(t domain.Tracking) domain.Tracking {
	t.Entries = append([]domain.Entry(nil), t.Entries...)
	if t.LastUpdated != nil {
		lu := *t.LastUpdated
		t.LastUpdated = &lu
	}
	return t
}

func cloneAssignment(a domain.Assignment) domain.Assignment {
	a.Tracking = cloneTracking(a.Tracking)
	if a.AssemblyTracking != nil {
		at := cloneTracking(*a.AssemblyTracking)
		a.AssemblyTracking = &at
	}
	if a.Glass != nil {
		g := *a.Glass
		if g.DecorationDetails != nil {
			dd := make(map[string]string, len(g.DecorationDetails))
			for k, v := range g.DecorationDetails {
				dd[k] = v
			}
			g.DecorationDetails = dd
		}
		a.Glass = &g
	}
	if a.ReadyAt != nil {
		t := *a.ReadyAt
		a.ReadyAt = &t
	}
	return a
}

func (m *MemoryStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	work := m.st.clone()
	if err := fn(ctx, &memTx{memView{work}}); err != nil {
		return err
	}
	m.st = work
	return nil
}

func (m *MemoryStore) PurgeLedger(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k, at := range m.st.ledger {
		o, ok := m.st.orders[k.OrderNumber]
		if ok && o.Status == domain.OrderCompleted && at.Before(cutoff) {
			delete(m.st.ledger, k)
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) view() (memView, func()) {
	m.mu.RLock()
	return memView{m.st}, m.mu.RUnlock
}

func (m *MemoryStore) GetOrder(ctx context.Context, number string) (domain.Order, error) {
	v, done := m.view()
	defer done()
	return v.GetOrder(ctx, number)
}

func (m *MemoryStore) ListOrders(ctx context.Context, f domain.OrderFilter) ([]domain.Order, error) {
	v, done := m.view()
	defer done()
	return v.ListOrders(ctx, f)
}

func (m *MemoryStore) GetItem(ctx context.Context, id string) (domain.OrderItem, error) {
	v, done := m.view()
	defer done()
	return v.GetItem(ctx, id)
}

func (m *MemoryStore) ListItems(ctx context.Context, number string) ([]domain.OrderItem, error) {
	v, done := m.view()
	defer done()
	return v.ListItems(ctx, number)
}

func (m *MemoryStore) GetAssignment(ctx context.Context, id string) (domain.Assignment, error) {
	v, done := m.view()
	defer done()
	return v.GetAssignment(ctx, id)
}

func (m *MemoryStore) ListOrderAssignments(ctx context.Context, number string) ([]domain.Assignment, error) {
	v, done := m.view()
	defer done()
	return v.ListOrderAssignments(ctx, number)
}

func (m *MemoryStore) FindStageAssignment(ctx context.Context, glassID string, stage domain.Craft) (domain.Assignment, error) {
	v, done := m.view()
	defer done()
	return v.FindStageAssignment(ctx, glassID, stage)
}

func (m *MemoryStore) IsDispatched(ctx context.Context, key domain.DispatchKey) (bool, error) {
	v, done := m.view()
	defer done()
	return v.IsDispatched(ctx, key)
}

type memView struct{ st *memState }

func (v memView) GetOrder(_ context.Context, number string) (domain.Order, error) {
	o, ok := v.st.orders[number]
	if !ok {
		return domain.Order{}, domain.NotFound("order", number)
	}
	return cloneOrder(o), nil
}

func (v memView) ListOrders(_ context.Context, f domain.OrderFilter) ([]domain.Order, error) {
	out := make([]domain.Order, 0, len(v.st.orders))
	for _, o := range v.st.orders {
		if f.Match(o.Status) {
			out = append(out, cloneOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Number < out[j].Number
	})
	return out, nil
}

func (v memView) GetItem(_ context.Context, id string) (domain.OrderItem, error) {
	it, ok := v.st.items[id]
	if !ok {
		return domain.OrderItem{}, domain.NotFound("item", id)
	}
	return cloneItem(it), nil
}

func (v memView) ListItems(_ context.Context, number string) ([]domain.OrderItem, error) {
	o, ok := v.st.orders[number]
	if !ok {
		return nil, domain.NotFound("order", number)
	}
	out := make([]domain.OrderItem, 0, len(o.ItemIDs))
	for _, id := range o.ItemIDs {
		if it, ok := v.st.items[id]; ok {
			out = append(out, cloneItem(it))
		}
	}
	return out, nil
}

func (v memView) GetAssignment(_ context.Context, id string) (domain.Assignment, error) {
	a, ok := v.st.assignments[id]
	if !ok {
		return domain.Assignment{}, domain.NotFound("assignment", id)
	}
	return cloneAssignment(a), nil
}

func (v memView) ListOrderAssignments(_ context.Context, number string) ([]domain.Assignment, error) {
	o, ok := v.st.orders[number]
	if !ok {
		return nil, domain.NotFound("order", number)
	}
	var out []domain.Assignment
	for _, itemID := range o.ItemIDs {
		it := v.st.items[itemID]
		for _, c := range domain.Crafts {
			for _, id := range it.TeamAssignments[c] {
				if a, ok := v.st.assignments[id]; ok {
					out = append(out, cloneAssignment(a))
				}
			}
		}
	}
	return out, nil
}

func (v memView) FindStageAssignment(_ context.Context, glassID string, stage domain.Craft) (domain.Assignment, error) {
	g, ok := v.st.assignments[glassID]
	if !ok {
		return domain.Assignment{}, domain.NotFound("assignment", glassID)
	}
	it := v.st.items[g.ItemID]
	for _, id := range it.TeamAssignments[stage] {
		a := v.st.assignments[id]
		if a.GlassAssignmentID == glassID {
			return cloneAssignment(a), nil
		}
	}
	return domain.Assignment{}, domain.NotFound(string(stage)+" assignment for glass", glassID)
}

func (v memView) IsDispatched(_ context.Context, key domain.DispatchKey) (bool, error) {
	_, ok := v.st.ledger[key]
	return ok, nil
}

type memTx struct{ memView }

func (t *memTx) Savepoint(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	work := t.st.clone()
	if err := fn(ctx, &memTx{memView{work}}); err != nil {
		return err
	}
	*t.st = *work
	return nil
}

func (t *memTx) LockOrder(ctx context.Context, number string) (domain.Order, error) {
	return t.GetOrder(ctx, number)
}

func (t *memTx) CreateOrder(_ context.Context, o domain.Order, items []domain.OrderItem, assignments []domain.Assignment) error {
	if _, exists := t.st.orders[o.Number]; exists {
		return domain.Conflict("order %s already exists", o.Number)
	}
	t.st.orders[o.Number] = cloneOrder(o)
	for _, it := range items {
		t.st.items[it.ID] = cloneItem(it)
	}
	for _, a := range assignments {
		t.st.assignments[a.ID] = cloneAssignment(a)
	}
	return nil
}

func (t *memTx) UpdateOrderHeader(_ context.Context, number string, dispatcher, customer *string, at time.Time) (domain.Order, error) {
	o, ok := t.st.orders[number]
	if !ok {
		return domain.Order{}, domain.NotFound("order", number)
	}
	if dispatcher != nil {
		o.Dispatcher = *dispatcher
	}
	if customer != nil {
		o.Customer = *customer
	}
	o.UpdatedAt = at
	t.st.orders[number] = o
	return cloneOrder(o), nil
}

func (t *memTx) DeleteOrder(_ context.Context, number string) error {
	o, ok := t.st.orders[number]
	if !ok {
		return domain.NotFound("order", number)
	}
	for _, itemID := range o.ItemIDs {
		for _, ids := range t.st.items[itemID].TeamAssignments {
			for _, id := range ids {
				delete(t.st.assignments, id)
			}
		}
		delete(t.st.items, itemID)
	}
	for k := range t.st.ledger {
		if k.OrderNumber == number {
			delete(t.st.ledger, k)
		}
	}
	delete(t.st.orders, number)
	return nil
}

func (t *memTx) SetOrderCompleted(_ context.Context, number string, at time.Time) (bool, error) {
	o, ok := t.st.orders[number]
	if !ok {
		return false, domain.NotFound("order", number)
	}
	if o.Status == domain.OrderCompleted {
		return false, nil
	}
	o.Status = domain.OrderCompleted
	o.CompletedAt = &at
	o.UpdatedAt = at
	t.st.orders[number] = o
	return true, nil
}

func (t *memTx) SetTeamStatus(_ context.Context, itemID string, craft domain.Craft, status domain.AssignmentStatus) error {
	it, ok := t.st.items[itemID]
	if !ok {
		return domain.NotFound("item", itemID)
	}
	if it.TeamStatus == nil {
		it.TeamStatus = map[domain.Craft]domain.AssignmentStatus{}
	}
	it.TeamStatus[craft] = status
	t.st.items[itemID] = it
	return nil
}

func (t *memTx) RecordCompletion(_ context.Context, assignmentID string, kind domain.TrackKind, e domain.Entry) (domain.Assignment, error) {
	a, ok := t.st.assignments[assignmentID]
	if !ok {
		return domain.Assignment{}, domain.NotFound("assignment", assignmentID)
	}
	if err := checkCompletable(a); err != nil {
		return domain.Assignment{}, err
	}
	track, kind, err := a.Track(kind)
	if err != nil {
		return domain.Assignment{}, err
	}
	if remaining := a.Quantity - track.TotalCompletedQty; e.Qty > remaining {
		return domain.Assignment{}, &domain.QuantityExceededError{
			AssignmentID: assignmentID, Track: kind, Requested: e.Qty, Remaining: remaining,
		}
	}
	track.TotalCompletedQty += e.Qty
	track.Entries = append(track.Entries, e)
	at := e.SubmittedAt
	track.LastUpdated = &at
	a.Status = a.DeriveStatus()
	a.UpdatedAt = e.SubmittedAt
	t.st.assignments[assignmentID] = a
	return cloneAssignment(a), nil
}

func (t *memTx) MarkDispatched(_ context.Context, key domain.DispatchKey, at time.Time) (bool, error) {
	if _, ok := t.st.ledger[key]; ok {
		return false, nil
	}
	t.st.ledger[key] = at
	return true, nil
}

func (t *memTx) ActivateStage(_ context.Context, assignmentID string, at time.Time) (bool, error) {
	a, ok := t.st.assignments[assignmentID]
	if !ok {
		return false, domain.NotFound("assignment", assignmentID)
	}
	if !a.Craft.IsDecoration() {
		return false, domain.Validation("assignment", "%s is a %s assignment, not a decoration stage", assignmentID, a.Craft)
	}
	if a.Ready {
		return false, nil
	}
	a.Ready = true
	a.ReadyAt = &at
	a.UpdatedAt = at
	t.st.assignments[assignmentID] = a
	return true, nil
}

// checkCompletable rejects entries against decoration stages that were never unblocked.
func checkCompletable(a domain.Assignment) error {
	if a.Craft.IsDecoration() && !a.Ready {
		return domain.Conflict("%s assignment %s is not ready yet", a.Craft, a.ID)
	}
	return nil
}
