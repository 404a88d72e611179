package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"fulfillment-tracker/internal/domain"
	"fulfillment-tracker/internal/microservices/tracker/repository"
)

func newID() string { return uuid.NewString() }

// PlaceOrder creates the order, its items, every craft assignment and the
// not-yet-ready decoration stages of each glass unit in one transaction.
func (s *TrackerService) PlaceOrder(ctx context.Context, req domain.PlaceOrderRequest) (domain.OrderView, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return domain.OrderView{}, err
	}

	now := s.now()
	o := domain.Order{
		Number:     req.OrderNumber,
		Dispatcher: req.DispatcherName,
		Customer:   req.CustomerName,
		Status:     domain.OrderPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	var (
		items       []domain.OrderItem
		assignments []domain.Assignment
	)
	for pos, in := range req.Items {
		item := domain.OrderItem{
			ID:              s.newID(),
			OrderNumber:     o.Number,
			Name:            in.Name,
			Position:        pos,
			TeamAssignments: map[domain.Craft][]string{},
		}
		add := func(a domain.Assignment) {
			assignments = append(assignments, a)
			item.TeamAssignments[a.Craft] = append(item.TeamAssignments[a.Craft], a.ID)
		}
		newAssignment := func(c domain.Craft, name string, qty int) domain.Assignment {
			return domain.Assignment{
				ID:          s.newID(),
				ItemID:      item.ID,
				OrderNumber: o.Number,
				Craft:       c,
				Name:        name,
				Quantity:    qty,
				Status:      domain.StatusPending,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
		}

		for _, g := range in.Glass {
			details, err := s.glassDetails(ctx, g)
			if err != nil {
				return domain.OrderView{}, err
			}
			glass := newAssignment(domain.CraftGlass, details.Name, g.Quantity)
			glass.Glass = &details
			add(glass)

			stages, err := domain.Sequence(details.Combination)
			if err != nil {
				return domain.OrderView{}, err
			}
			for _, st := range stages {
				stage := newAssignment(st, details.Name, g.Quantity)
				stage.GlassAssignmentID = glass.ID
				add(stage)
			}
		}
		for _, c := range in.Caps {
			cp := newAssignment(domain.CraftCaps, c.Name, c.Quantity)
			cp.HasAssembly = c.HasAssembly
			if c.HasAssembly {
				cp.AssemblyTracking = &domain.Tracking{}
			}
			add(cp)
		}
		for _, p := range in.Boxes {
			add(newAssignment(domain.CraftBoxes, p.Name, p.Quantity))
		}
		for _, p := range in.Pumps {
			add(newAssignment(domain.CraftPumps, p.Name, p.Quantity))
		}
		for _, p := range in.Accessories {
			add(newAssignment(domain.CraftAccessories, p.Name, p.Quantity))
		}
		items = append(items, item)
		o.ItemIDs = append(o.ItemIDs, item.ID)
	}

	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		return tx.CreateOrder(ctx, o, items, assignments)
	})
	if err != nil {
		return domain.OrderView{}, err
	}
	s.lg.Info("order_placed", map[string]any{
		"order_number": o.Number, "items": len(items), "assignments": len(assignments),
	})

	v := domain.BuildOrderView(o, items, assignments)
	if s.notify != nil {
		s.notify.PublishOrder(ctx, domain.EventOrderCreated, v)
	}
	return v, nil
}

func (s *TrackerService) glassDetails(ctx context.Context, g domain.GlassInput) (domain.GlassDetails, error) {
	d := domain.GlassDetails{
		Name:              strings.TrimSpace(g.Name),
		Weight:            g.Weight,
		NeckSize:          g.NeckSize,
		Combination:       g.Decoration,
		DecorationDetails: g.DecorationDetails,
	}
	if g.CatalogCode != "" && s.catalog != nil {
		spec, err := s.catalog.GlassSpec(ctx, g.CatalogCode)
		if err != nil {
			return domain.GlassDetails{}, fmt.Errorf("resolve glass %q: %w", g.CatalogCode, err)
		}
		if d.Name == "" {
			d.Name = spec.Name
		}
		if d.Weight.IsZero() {
			d.Weight = spec.Weight
		}
		if d.NeckSize == "" {
			d.NeckSize = spec.NeckSize
		}
	}
	if d.Name == "" {
		return domain.GlassDetails{}, domain.Validation("glass.glass_name", "is required")
	}
	return d, nil
}

// EditOrder updates order header fields and re-runs dispatch for the order.
func (s *TrackerService) EditOrder(ctx context.Context, number string, req domain.EditOrderRequest) (domain.OrderView, error) {
	trim := func(p *string) (*string, error) {
		if p == nil {
			return nil, nil
		}
		v := strings.TrimSpace(*p)
		if v == "" {
			return nil, domain.Validation("order", "header fields must not be blank")
		}
		return &v, nil
	}
	dispatcherName, err := trim(req.DispatcherName)
	if err != nil {
		return domain.OrderView{}, err
	}
	customer, err := trim(req.CustomerName)
	if err != nil {
		return domain.OrderView{}, err
	}

	var acts []domain.Activation
	err = s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if _, err := tx.LockOrder(ctx, number); err != nil {
			return err
		}
		if _, err := tx.UpdateOrderHeader(ctx, number, dispatcherName, customer, s.now()); err != nil {
			return err
		}
		acts, err = s.dispatch.Reconcile(ctx, tx, number)
		return err
	})
	if err != nil {
		return domain.OrderView{}, err
	}
	s.lg.Info("order_edited", map[string]any{"order_number": number})
	s.broadcast(ctx, number, domain.EventOrderUpdated, acts)
	return repository.LoadOrderView(ctx, s.store, number)
}

// DeleteOrder removes the order with everything it owns, ledger rows included.
func (s *TrackerService) DeleteOrder(ctx context.Context, number string) error {
	var crafts []domain.Craft
	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if _, err := tx.LockOrder(ctx, number); err != nil {
			return err
		}
		v, err := repository.LoadOrderView(ctx, tx, number)
		if err != nil {
			return err
		}
		crafts = v.CraftsWithWork()
		return tx.DeleteOrder(ctx, number)
	})
	if err != nil {
		return err
	}
	s.lg.Info("order_deleted", map[string]any{"order_number": number})
	if s.notify != nil {
		s.notify.PublishDeleted(ctx, number, crafts)
	}
	return nil
}
