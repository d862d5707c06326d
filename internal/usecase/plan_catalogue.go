package usecase

import (
	"fmt"
	"sort"
	"strings"

	"event-billing/internal/domain"
	"event-billing/internal/domain/model"
)

// PlanCatalogue is the fixed set of purchasable plans, keyed by
// case-insensitive name.
type PlanCatalogue struct {
	byName map[string]*model.Plan
	order  []string
}

func NewPlanCatalogue(plans ...*model.Plan) (*PlanCatalogue, error) {
	c := &PlanCatalogue{byName: make(map[string]*model.Plan, len(plans))}
	for _, p := range plans {
		key := strings.ToLower(p.Name)
		if _, dup := c.byName[key]; dup {
			return nil, fmt.Errorf("%w: plan %q listed twice", domain.ErrAlreadyExists, p.Name)
		}
		c.byName[key] = p
		c.order = append(c.order, key)
	}
	sort.Strings(c.order)
	return c, nil
}

func (c *PlanCatalogue) Find(name string) (*model.Plan, error) {
	p, ok := c.byName[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return p, nil
}

// List returns plans sorted by name.
func (c *PlanCatalogue) List() []*model.Plan {
	out := make([]*model.Plan, 0, len(c.order))
	for _, k := range c.order {
		out = append(out, c.byName[k])
	}
	return out
}
