package domain

import "github.com/shopspring/decimal"

// OrderView is an order with its items and their assignments resolved.
type OrderView struct {
	Order
	Items []ItemView `json:"items"`
}

type ItemView struct {
	ID          string                     `json:"id"`
	Name        string                     `json:"name"`
	Assignments map[Craft][]AssignmentView `json:"team_assignments"`
	TeamStatus  map[Craft]AssignmentStatus `json:"team_status,omitempty"`
}

// AssignmentView carries the parent glass unit's attributes on decoration stages.
type AssignmentView struct {
	Assignment
	ParentGlass *GlassSummary `json:"glass_item,omitempty"`
}

type GlassSummary struct {
	AssignmentID      string            `json:"assignment_id"`
	Name              string            `json:"glass_name"`
	Quantity          int               `json:"quantity"`
	Weight            decimal.Decimal   `json:"weight"`
	NeckSize          string            `json:"neck_size,omitempty"`
	Combination       string            `json:"decoration"`
	DecorationDetails map[string]string `json:"decoration_details,omitempty"`
}

// BuildOrderView resolves item assignment references against the given assignments.
// References to unknown ids are skipped.
func BuildOrderView(o Order, items []OrderItem, assignments []Assignment) OrderView {
	byID := make(map[string]Assignment, len(assignments))
	for _, a := range assignments {
		byID[a.ID] = a
	}
	v := OrderView{Order: o, Items: make([]ItemView, 0, len(items))}
	for _, it := range items {
		iv := ItemView{ID: it.ID, Name: it.Name, Assignments: map[Craft][]AssignmentView{}, TeamStatus: it.TeamStatus}
		for _, c := range Crafts {
			ids, ok := it.TeamAssignments[c]
			if !ok {
				continue
			}
			group := make([]AssignmentView, 0, len(ids))
			for _, id := range ids {
				a, ok := byID[id]
				if !ok {
					continue
				}
				av := AssignmentView{Assignment: a}
				if c.IsDecoration() {
					if g, ok := byID[a.GlassAssignmentID]; ok {
						av.ParentGlass = SummarizeGlass(g)
					}
				}
				group = append(group, av)
			}
			iv.Assignments[c] = group
		}
		v.Items = append(v.Items, iv)
	}
	return v
}

// SummarizeGlass extracts the descriptive attributes of a glass unit.
func SummarizeGlass(g Assignment) *GlassSummary {
	s := &GlassSummary{AssignmentID: g.ID, Name: g.Name, Quantity: g.Quantity}
	if g.Glass != nil {
		s.Name = g.Glass.Name
		s.Weight = g.Glass.Weight
		s.NeckSize = g.Glass.NeckSize
		s.Combination = g.Glass.Combination
		s.DecorationDetails = g.Glass.DecorationDetails
	}
	return s
}

// ForCraft returns the team-filtered view: only items that carry work for craft,
// each holding only that craft's assignments. ok is false when the craft has no work on the order.
func (v OrderView) ForCraft(c Craft) (OrderView, bool) {
	out := OrderView{Order: v.Order}
	out.ItemIDs = nil
	for _, it := range v.Items {
		group := it.Assignments[c]
		if len(group) == 0 {
			continue
		}
		fi := ItemView{ID: it.ID, Name: it.Name, Assignments: map[Craft][]AssignmentView{c: group}}
		if st, ok := it.TeamStatus[c]; ok {
			fi.TeamStatus = map[Craft]AssignmentStatus{c: st}
		}
		out.Items = append(out.Items, fi)
		out.ItemIDs = append(out.ItemIDs, it.ID)
	}
	return out, len(out.Items) > 0
}

// CraftsWithWork lists crafts that hold at least one assignment on the order.
func (v OrderView) CraftsWithWork() []Craft {
	var out []Craft
	for _, c := range Crafts {
		for _, it := range v.Items {
			if len(it.Assignments[c]) > 0 {
				out = append(out, c)
				break
			}
		}
	}
	return out
}
