package repository

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"fulfillment-tracker/internal/domain"
)

//go:embed schema.sql
var schemaSQL string

// Migrate creates the tracking tables when they do not exist.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply tracking schema: %w", err)
	}
	return nil
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore runs every transition in a read-committed transaction and relies on
// row locks and conditional updates for isolation.
type PostgresStore struct {
	pgReader
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pgReader: pgReader{q: pool}, pool: pool}
}

func (s *PostgresStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		return fn(ctx, &pgTx{pgReader: pgReader{q: tx}, tx: tx})
	})
}

func (s *PostgresStore) PurgeLedger(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM dispatch_ledger l
		USING orders o
		WHERE o.order_number = l.order_number AND o.status = 'completed' AND l.dispatched_at < $1
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge dispatch ledger: %w", err)
	}
	return tag.RowsAffected(), nil
}

type pgReader struct{ q querier }

const orderCols = `order_number, dispatcher_name, customer_name, status, created_at, updated_at, completed_at`

func scanOrder(row pgx.Row) (domain.Order, error) {
	var o domain.Order
	var status string
	err := row.Scan(&o.Number, &o.Dispatcher, &o.Customer, &status, &o.CreatedAt, &o.UpdatedAt, &o.CompletedAt)
	o.Status = domain.OrderStatus(status)
	return o, err
}

func (r pgReader) GetOrder(ctx context.Context, number string) (domain.Order, error) {
	o, err := scanOrder(r.q.QueryRow(ctx, `SELECT `+orderCols+` FROM orders WHERE order_number=$1`, number))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Order{}, domain.NotFound("order", number)
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("get order %s: %w", number, err)
	}
	if o.ItemIDs, err = r.itemIDs(ctx, number); err != nil {
		return domain.Order{}, err
	}
	return o, nil
}

func (r pgReader) itemIDs(ctx context.Context, number string) ([]string, error) {
	rows, err := r.q.Query(ctx, `SELECT id FROM order_items WHERE order_number=$1 ORDER BY position`, number)
	if err != nil {
		return nil, fmt.Errorf("list item ids: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan item ids: %w", err)
	}
	return ids, nil
}

func (r pgReader) ListOrders(ctx context.Context, f domain.OrderFilter) ([]domain.Order, error) {
	query := `SELECT ` + orderCols + ` FROM orders`
	var args []any
	if f != domain.FilterAll && f != "" {
		query += ` WHERE status=$1`
		args = append(args, string(f))
	}
	query += ` ORDER BY created_at, order_number`

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()
	var out []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		if out[i].ItemIDs, err = r.itemIDs(ctx, out[i].Number); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r pgReader) GetItem(ctx context.Context, id string) (domain.OrderItem, error) {
	items, err := r.queryItems(ctx, `id=$1`, id)
	if err != nil {
		return domain.OrderItem{}, err
	}
	if len(items) == 0 {
		return domain.OrderItem{}, domain.NotFound("item", id)
	}
	return items[0], nil
}

func (r pgReader) ListItems(ctx context.Context, number string) ([]domain.OrderItem, error) {
	if _, err := r.GetOrder(ctx, number); err != nil {
		return nil, err
	}
	return r.queryItems(ctx, `order_number=$1`, number)
}

func (r pgReader) queryItems(ctx context.Context, where string, arg any) ([]domain.OrderItem, error) {
	rows, err := r.q.Query(ctx, `SELECT id, order_number, name, position, team_status FROM order_items WHERE `+where+` ORDER BY position`, arg)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()

	var items []domain.OrderItem
	index := map[string]int{}
	for rows.Next() {
		var it domain.OrderItem
		var teamStatus []byte
		if err := rows.Scan(&it.ID, &it.OrderNumber, &it.Name, &it.Position, &teamStatus); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		it.TeamAssignments = map[domain.Craft][]string{}
		if len(teamStatus) > 0 {
			if err := json.Unmarshal(teamStatus, &it.TeamStatus); err != nil {
				return nil, fmt.Errorf("decode team_status of item %s: %w", it.ID, err)
			}
		}
		index[it.ID] = len(items)
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return items, nil
	}

	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	arows, err := r.q.Query(ctx, `SELECT id, item_id, craft FROM assignments WHERE item_id = ANY($1) ORDER BY position`, ids)
	if err != nil {
		return nil, fmt.Errorf("query item assignments: %w", err)
	}
	defer arows.Close()
	for arows.Next() {
		var id, itemID, craft string
		if err := arows.Scan(&id, &itemID, &craft); err != nil {
			return nil, fmt.Errorf("scan item assignment: %w", err)
		}
		it := &items[index[itemID]]
		it.TeamAssignments[domain.Craft(craft)] = append(it.TeamAssignments[domain.Craft(craft)], id)
	}
	return items, arows.Err()
}

const assignmentCols = `id, item_id, order_number, craft, name, quantity, status, has_assembly, glass,
	COALESCE(glass_assignment_id, ''), ready, ready_at, created_at, updated_at`

func (r pgReader) queryAssignments(ctx context.Context, where string, args ...any) ([]domain.Assignment, error) {
	rows, err := r.q.Query(ctx, `SELECT `+assignmentCols+` FROM assignments WHERE `+where+` ORDER BY position`, args...)
	if err != nil {
		return nil, fmt.Errorf("query assignments: %w", err)
	}
	defer rows.Close()

	var out []domain.Assignment
	index := map[string]int{}
	for rows.Next() {
		var a domain.Assignment
		var craft, status string
		var glass []byte
		if err := rows.Scan(&a.ID, &a.ItemID, &a.OrderNumber, &craft, &a.Name, &a.Quantity, &status,
			&a.HasAssembly, &glass, &a.GlassAssignmentID, &a.Ready, &a.ReadyAt, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan assignment: %w", err)
		}
		a.Craft = domain.Craft(craft)
		a.Status = domain.AssignmentStatus(status)
		if len(glass) > 0 {
			a.Glass = &domain.GlassDetails{}
			if err := json.Unmarshal(glass, a.Glass); err != nil {
				return nil, fmt.Errorf("decode glass of assignment %s: %w", a.ID, err)
			}
		}
		index[a.ID] = len(out)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()
	if len(out) == 0 {
		return out, nil
	}
	if err := r.attachTracking(ctx, out, index); err != nil {
		return nil, err
	}
	return out, nil
}

func (r pgReader) attachTracking(ctx context.Context, as []domain.Assignment, index map[string]int) error {
	ids := make([]string, len(as))
	for i, a := range as {
		ids[i] = a.ID
	}
	trackOf := func(a *domain.Assignment, kind string) *domain.Tracking {
		if domain.TrackKind(kind) == domain.TrackAssembly {
			if a.AssemblyTracking == nil {
				a.AssemblyTracking = &domain.Tracking{}
			}
			return a.AssemblyTracking
		}
		return &a.Tracking
	}

	rows, err := r.q.Query(ctx, `
		SELECT assignment_id, kind, total_completed_qty, last_updated
		FROM assignment_tracking WHERE assignment_id = ANY($1)`, ids)
	if err != nil {
		return fmt.Errorf("query tracking: %w", err)
	}
	for rows.Next() {
		var id, kind string
		var total int
		var last *time.Time
		if err := rows.Scan(&id, &kind, &total, &last); err != nil {
			rows.Close()
			return fmt.Errorf("scan tracking: %w", err)
		}
		t := trackOf(&as[index[id]], kind)
		t.TotalCompletedQty = total
		t.LastUpdated = last
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	rows, err = r.q.Query(ctx, `
		SELECT assignment_id, kind, qty, submitted_by, remarks, submitted_at
		FROM completion_entries WHERE assignment_id = ANY($1) ORDER BY id`, ids)
	if err != nil {
		return fmt.Errorf("query completion entries: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id, kind string
		var e domain.Entry
		if err := rows.Scan(&id, &kind, &e.Qty, &e.SubmittedBy, &e.Remarks, &e.SubmittedAt); err != nil {
			return fmt.Errorf("scan completion entry: %w", err)
		}
		t := trackOf(&as[index[id]], kind)
		t.Entries = append(t.Entries, e)
	}
	return rows.Err()
}

func (r pgReader) GetAssignment(ctx context.Context, id string) (domain.Assignment, error) {
	as, err := r.queryAssignments(ctx, `id=$1`, id)
	if err != nil {
		return domain.Assignment{}, err
	}
	if len(as) == 0 {
		return domain.Assignment{}, domain.NotFound("assignment", id)
	}
	return as[0], nil
}

func (r pgReader) ListOrderAssignments(ctx context.Context, number string) ([]domain.Assignment, error) {
	return r.queryAssignments(ctx, `order_number=$1`, number)
}

func (r pgReader) FindStageAssignment(ctx context.Context, glassID string, stage domain.Craft) (domain.Assignment, error) {
	as, err := r.queryAssignments(ctx, `glass_assignment_id=$1 AND craft=$2`, glassID, string(stage))
	if err != nil {
		return domain.Assignment{}, err
	}
	if len(as) == 0 {
		return domain.Assignment{}, domain.NotFound(string(stage)+" assignment for glass", glassID)
	}
	return as[0], nil
}

func (r pgReader) IsDispatched(ctx context.Context, k domain.DispatchKey) (bool, error) {
	var exists bool
	err := r.q.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM dispatch_ledger
		WHERE order_number=$1 AND item_id=$2 AND glass_assignment_id=$3 AND stage=$4)
	`, k.OrderNumber, k.ItemID, k.GlassAssignmentID, string(k.Stage)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check dispatch ledger: %w", err)
	}
	return exists, nil
}

type pgTx struct {
	pgReader
	tx pgx.Tx
}

func (t *pgTx) Savepoint(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	sp, err := t.tx.Begin(ctx)
	if err != nil {
		return fmt.Errorf("open savepoint: %w", err)
	}
	defer func() { _ = sp.Rollback(ctx) }()
	if err := fn(ctx, &pgTx{pgReader: pgReader{q: sp}, tx: sp}); err != nil {
		return err
	}
	return sp.Commit(ctx)
}

func (t *pgTx) LockOrder(ctx context.Context, number string) (domain.Order, error) {
	o, err := scanOrder(t.tx.QueryRow(ctx, `SELECT `+orderCols+` FROM orders WHERE order_number=$1 FOR UPDATE`, number))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Order{}, domain.NotFound("order", number)
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("lock order %s: %w", number, err)
	}
	return o, nil
}

func (t *pgTx) CreateOrder(ctx context.Context, o domain.Order, items []domain.OrderItem, assignments []domain.Assignment) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO orders (order_number, dispatcher_name, customer_name, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
	`, o.Number, o.Dispatcher, o.Customer, string(o.Status), o.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.Conflict("order %s already exists", o.Number)
		}
		return fmt.Errorf("insert order: %w", err)
	}

	for _, it := range items {
		if _, err := t.tx.Exec(ctx, `
			INSERT INTO order_items (id, order_number, name, position) VALUES ($1, $2, $3, $4)
		`, it.ID, o.Number, it.Name, it.Position); err != nil {
			return fmt.Errorf("insert order item %s: %w", it.Name, err)
		}
	}

	// Glass rows first: decoration stages reference them.
	ordered := make([]domain.Assignment, 0, len(assignments))
	for _, a := range assignments {
		if !a.Craft.IsDecoration() {
			ordered = append(ordered, a)
		}
	}
	for _, a := range assignments {
		if a.Craft.IsDecoration() {
			ordered = append(ordered, a)
		}
	}
	position := make(map[string]int, len(assignments))
	for i, a := range assignments {
		position[a.ID] = i
	}
	for _, a := range ordered {
		var glass []byte
		if a.Glass != nil {
			if glass, err = json.Marshal(a.Glass); err != nil {
				return fmt.Errorf("encode glass details: %w", err)
			}
		}
		var glassRef *string
		if a.GlassAssignmentID != "" {
			glassRef = &a.GlassAssignmentID
		}
		if _, err := t.tx.Exec(ctx, `
			INSERT INTO assignments
			    (id, item_id, order_number, craft, position, name, quantity, status, has_assembly, glass,
			     glass_assignment_id, ready, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $13)
		`, a.ID, a.ItemID, o.Number, string(a.Craft), position[a.ID], a.Name, a.Quantity, string(a.Status),
			a.HasAssembly, glass, glassRef, a.Ready, a.CreatedAt); err != nil {
			return fmt.Errorf("insert %s assignment: %w", a.Craft, err)
		}
		kinds := []domain.TrackKind{domain.PrimaryTrack(a.Craft)}
		if a.Craft == domain.CraftCaps && a.HasAssembly {
			kinds = append(kinds, domain.TrackAssembly)
		}
		for _, k := range kinds {
			if _, err := t.tx.Exec(ctx, `
				INSERT INTO assignment_tracking (assignment_id, kind, quantity) VALUES ($1, $2, $3)
			`, a.ID, string(k), a.Quantity); err != nil {
				return fmt.Errorf("insert %s tracking: %w", k, err)
			}
		}
	}
	return nil
}

func (t *pgTx) UpdateOrderHeader(ctx context.Context, number string, dispatcher, customer *string, at time.Time) (domain.Order, error) {
	tag, err := t.tx.Exec(ctx, `
		UPDATE orders SET
		    dispatcher_name = COALESCE($2, dispatcher_name),
		    customer_name   = COALESCE($3, customer_name),
		    updated_at      = $4
		WHERE order_number=$1
	`, number, dispatcher, customer, at)
	if err != nil {
		return domain.Order{}, fmt.Errorf("update order %s: %w", number, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.Order{}, domain.NotFound("order", number)
	}
	return t.GetOrder(ctx, number)
}

func (t *pgTx) DeleteOrder(ctx context.Context, number string) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM orders WHERE order_number=$1`, number)
	if err != nil {
		return fmt.Errorf("delete order %s: %w", number, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFound("order", number)
	}
	return nil
}

func (t *pgTx) SetOrderCompleted(ctx context.Context, number string, at time.Time) (bool, error) {
	tag, err := t.tx.Exec(ctx, `
		UPDATE orders SET status='completed', completed_at=$2, updated_at=$2
		WHERE order_number=$1 AND status <> 'completed'
	`, number, at)
	if err != nil {
		return false, fmt.Errorf("complete order %s: %w", number, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (t *pgTx) SetTeamStatus(ctx context.Context, itemID string, craft domain.Craft, status domain.AssignmentStatus) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE order_items SET team_status = team_status || jsonb_build_object($2::text, $3::text)
		WHERE id=$1
	`, itemID, string(craft), string(status))
	if err != nil {
		return fmt.Errorf("set team status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFound("item", itemID)
	}
	return nil
}

func (t *pgTx) RecordCompletion(ctx context.Context, assignmentID string, kind domain.TrackKind, e domain.Entry) (domain.Assignment, error) {
	a, err := t.GetAssignment(ctx, assignmentID)
	if err != nil {
		return domain.Assignment{}, err
	}
	if err := checkCompletable(a); err != nil {
		return domain.Assignment{}, err
	}
	if _, kind, err = a.Track(kind); err != nil {
		return domain.Assignment{}, err
	}

	// Compare-and-set on remaining capacity; concurrent submissions cannot overcommit.
	var total int
	err = t.tx.QueryRow(ctx, `
		UPDATE assignment_tracking
		SET total_completed_qty = total_completed_qty + $3, last_updated = $4
		WHERE assignment_id=$1 AND kind=$2 AND total_completed_qty + $3 <= quantity
		RETURNING total_completed_qty
	`, assignmentID, string(kind), e.Qty, e.SubmittedAt).Scan(&total)
	if errors.Is(err, pgx.ErrNoRows) {
		var remaining int
		if err := t.tx.QueryRow(ctx, `
			SELECT quantity - total_completed_qty FROM assignment_tracking WHERE assignment_id=$1 AND kind=$2
		`, assignmentID, string(kind)).Scan(&remaining); err != nil {
			return domain.Assignment{}, fmt.Errorf("read remaining capacity: %w", err)
		}
		return domain.Assignment{}, &domain.QuantityExceededError{
			AssignmentID: assignmentID, Track: kind, Requested: e.Qty, Remaining: remaining,
		}
	}
	if err != nil {
		return domain.Assignment{}, fmt.Errorf("increment tracking: %w", err)
	}

	if _, err := t.tx.Exec(ctx, `
		INSERT INTO completion_entries (assignment_id, kind, qty, submitted_by, remarks, submitted_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, assignmentID, string(kind), e.Qty, e.SubmittedBy, e.Remarks, e.SubmittedAt); err != nil {
		return domain.Assignment{}, fmt.Errorf("insert completion entry: %w", err)
	}

	if a, err = t.GetAssignment(ctx, assignmentID); err != nil {
		return domain.Assignment{}, err
	}
	a.Status = a.DeriveStatus()
	a.UpdatedAt = e.SubmittedAt
	if _, err := t.tx.Exec(ctx, `UPDATE assignments SET status=$2, updated_at=$3 WHERE id=$1`,
		assignmentID, string(a.Status), e.SubmittedAt); err != nil {
		return domain.Assignment{}, fmt.Errorf("update assignment status: %w", err)
	}
	return a, nil
}

func (t *pgTx) MarkDispatched(ctx context.Context, k domain.DispatchKey, at time.Time) (bool, error) {
	tag, err := t.tx.Exec(ctx, `
		INSERT INTO dispatch_ledger (order_number, item_id, glass_assignment_id, stage, dispatched_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT DO NOTHING
	`, k.OrderNumber, k.ItemID, k.GlassAssignmentID, string(k.Stage), at)
	if err != nil {
		return false, fmt.Errorf("mark dispatched %s: %w", k, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (t *pgTx) ActivateStage(ctx context.Context, assignmentID string, at time.Time) (bool, error) {
	tag, err := t.tx.Exec(ctx, `
		UPDATE assignments SET ready=true, ready_at=$2, updated_at=$2
		WHERE id=$1 AND craft IN ('coating', 'printing', 'foiling', 'frosting') AND NOT ready
	`, assignmentID, at)
	if err != nil {
		return false, fmt.Errorf("activate stage %s: %w", assignmentID, err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	a, err := t.GetAssignment(ctx, assignmentID)
	if err != nil {
		return false, err
	}
	if !a.Craft.IsDecoration() {
		return false, domain.Validation("assignment", "%s is a %s assignment, not a decoration stage", assignmentID, a.Craft)
	}
	return false, nil
}
