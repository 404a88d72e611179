package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

type PlaceOrderRequest struct {
	OrderNumber    string      `json:"order_number"`
	DispatcherName string      `json:"dispatcher_name"`
	CustomerName   string      `json:"customer_name"`
	Items          []PlaceItem `json:"items"`
}

type PlaceItem struct {
	Name        string       `json:"name"`
	Glass       []GlassInput `json:"glass"`
	Caps        []CapInput   `json:"caps"`
	Boxes       []PartInput  `json:"boxes"`
	Pumps       []PartInput  `json:"pumps"`
	Accessories []PartInput  `json:"accessories"`
}

type GlassInput struct {
	Name              string            `json:"glass_name"`
	CatalogCode       string            `json:"catalog_code,omitempty"`
	Quantity          int               `json:"quantity"`
	Weight            decimal.Decimal   `json:"weight"`
	NeckSize          string            `json:"neck_size,omitempty"`
	Decoration        string            `json:"decoration"`
	DecorationDetails map[string]string `json:"decoration_details,omitempty"`
}

type CapInput struct {
	Name        string `json:"cap_name"`
	Quantity    int    `json:"quantity"`
	HasAssembly bool   `json:"has_assembly"`
}

type PartInput struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
}

func (r *PlaceOrderRequest) Normalize() {
	r.OrderNumber = strings.TrimSpace(r.OrderNumber)
	r.DispatcherName = strings.TrimSpace(r.DispatcherName)
	r.CustomerName = strings.TrimSpace(r.CustomerName)
	for i := range r.Items {
		r.Items[i].Name = strings.TrimSpace(r.Items[i].Name)
		for j := range r.Items[i].Glass {
			r.Items[i].Glass[j].Decoration = NormalizeCombination(r.Items[i].Glass[j].Decoration)
		}
	}
}

func (r PlaceOrderRequest) Validate() error {
	if r.OrderNumber == "" {
		return Validation("order_number", "is required")
	}
	if r.DispatcherName == "" {
		return Validation("dispatcher_name", "is required")
	}
	if r.CustomerName == "" {
		return Validation("customer_name", "is required")
	}
	if len(r.Items) == 0 {
		return Validation("items", "at least one item is required")
	}
	for _, it := range r.Items {
		if it.Name == "" {
			return Validation("items.name", "is required")
		}
		for _, g := range it.Glass {
			if g.Quantity <= 0 {
				return Validation("glass.quantity", "must be positive for %q", g.Name)
			}
			if g.Weight.IsNegative() {
				return Validation("glass.weight", "must not be negative for %q", g.Name)
			}
			if _, err := Sequence(g.Decoration); err != nil {
				return err
			}
		}
		for _, c := range it.Caps {
			if c.Quantity <= 0 {
				return Validation("caps.quantity", "must be positive for %q", c.Name)
			}
		}
		for field, parts := range map[string][]PartInput{"boxes": it.Boxes, "pumps": it.Pumps, "accessories": it.Accessories} {
			for _, p := range parts {
				if p.Quantity <= 0 {
					return Validation(field+".quantity", "must be positive for %q", p.Name)
				}
			}
		}
	}
	return nil
}

type EditOrderRequest struct {
	DispatcherName *string `json:"dispatcher_name,omitempty"`
	CustomerName   *string `json:"customer_name,omitempty"`
}

type CompletionRequest struct {
	Qty         int       `json:"qty"`
	SubmittedBy string    `json:"submitted_by"`
	Track       TrackKind `json:"track,omitempty"`
	Remarks     string    `json:"remarks,omitempty"`
}

func (r CompletionRequest) Validate() error {
	if r.Qty <= 0 {
		return Validation("qty", "must be positive")
	}
	if strings.TrimSpace(r.SubmittedBy) == "" {
		return Validation("submitted_by", "is required")
	}
	switch r.Track {
	case "", TrackMain, TrackMetal, TrackAssembly:
	default:
		return Validation("track", "unknown tracking record %q", r.Track)
	}
	return nil
}

type CompletionResult struct {
	Assignment   Assignment   `json:"assignment"`
	OrderStatus  OrderStatus  `json:"order_status"`
	Activations  []Activation `json:"activations,omitempty"`
	RollupFailed bool         `json:"rollup_failed,omitempty"`
}
