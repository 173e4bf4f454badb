package matching

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/spigell/partner-engine/internal/domain"
	"github.com/spigell/partner-engine/internal/store"
)

// Filter is a single eligibility step applied to the partner pool.
type Filter interface {
	Name() string
	Disable(reason string)
	IsEnabled() bool

	Apply(ctx context.Context, deps Deps, pool []domain.Partner) ([]domain.Partner, Step, error)
}

// Deps aggregates dependencies shared across all filtering steps.
type Deps struct {
	Request  *domain.ServiceRequest
	Partners store.Partners
	Logger   *zap.Logger
}

// Step describes the result of executing a filtering step.
type Step struct {
	Initial int
	Dropped int
	Left    int
}

// Status represents runtime information about a filter.
type Status struct {
	Name    string
	Enabled bool
	Reason  string
	Details map[string]string
}

type statusProvider interface {
	Status() Status
}

// DefaultFilters returns the eligibility steps in evaluation order.
func DefaultFilters() []Filter {
	return []Filter{NewApproved(), NewCategory(), NewExistingBids()}
}

// DisableByName marks a filter with the provided name as disabled while keeping it in the list.
func DisableByName(steps []Filter, name, reason string) {
	for _, step := range steps {
		if step.Name() == name {
			step.Disable(reason)
		}
	}
}

// RunFilters executes the enabled filters sequentially and returns the
// remaining pool, keeping its order.
func RunFilters(ctx context.Context, deps Deps, steps []Filter, pool []domain.Partner) ([]domain.Partner, error) {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}

	for _, step := range steps {
		if !step.IsEnabled() {
			log.Debug("filter disabled", zap.String("name", step.Name()))
			continue
		}

		next, info, err := step.Apply(ctx, deps, pool)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", step.Name(), err)
		}

		log.Debug("filter step",
			zap.String("name", step.Name()),
			zap.Int("initial", info.Initial),
			zap.Int("dropped", info.Dropped),
			zap.Int("left", info.Left),
		)

		pool = next
	}

	return pool, nil
}

// Describe returns status entries for the provided filters.
func Describe(steps []Filter) []Status {
	statuses := make([]Status, 0, len(steps))
	for _, step := range steps {
		if reporter, ok := step.(statusProvider); ok {
			statuses = append(statuses, reporter.Status())
			continue
		}

		statuses = append(statuses, Status{
			Name:    step.Name(),
			Enabled: step.IsEnabled(),
		})
	}
	return statuses
}

type toggle struct {
	disabled bool
	reason   string
}

func (t *toggle) Disable(reason string) {
	t.disabled = true
	t.reason = reason
}

func (t *toggle) IsEnabled() bool { return !t.disabled }

func keep(pool []domain.Partner, fn func(p *domain.Partner) bool) ([]domain.Partner, []string) {
	out := make([]domain.Partner, 0, len(pool))
	var dropped []string
	for i := range pool {
		if fn(&pool[i]) {
			out = append(out, pool[i])
			continue
		}
		dropped = append(dropped, pool[i].ID)
	}
	return out, dropped
}

type approvedFilter struct{ toggle }

// NewApproved creates a filter that removes partners not in approved status.
func NewApproved() Filter { return &approvedFilter{} }

func (f *approvedFilter) Name() string { return "approved" }

func (f *approvedFilter) Apply(_ context.Context, deps Deps, pool []domain.Partner) ([]domain.Partner, Step, error) {
	out, dropped := keep(pool, func(p *domain.Partner) bool { return p.Status == domain.PartnerApproved })
	if deps.Logger != nil && len(dropped) > 0 {
		deps.Logger.Info("excluding partners that are not approved", zap.Strings("excluded_partners", dropped))
	}
	return out, Step{Initial: len(pool), Dropped: len(dropped), Left: len(out)}, nil
}

type categoryFilter struct{ toggle }

// NewCategory creates a filter that removes partners not declaring the request category.
func NewCategory() Filter { return &categoryFilter{} }

func (f *categoryFilter) Name() string { return "category" }

func (f *categoryFilter) Apply(_ context.Context, deps Deps, pool []domain.Partner) ([]domain.Partner, Step, error) {
	if deps.Request == nil {
		return nil, Step{}, fmt.Errorf("service request is required")
	}
	out, dropped := keep(pool, func(p *domain.Partner) bool { return p.HasCategory(deps.Request.Category) })
	if deps.Logger != nil && len(dropped) > 0 {
		deps.Logger.Info("excluding partners outside the request category",
			zap.String("category", deps.Request.Category),
			zap.Strings("excluded_partners", dropped),
		)
	}
	return out, Step{Initial: len(pool), Dropped: len(dropped), Left: len(out)}, nil
}

type existingBidsFilter struct {
	toggle
	lastExcluded int
}

// NewExistingBids creates a filter that removes partners already bidding on, or
// already recommended for, the request.
func NewExistingBids() Filter { return &existingBidsFilter{} }

func (f *existingBidsFilter) Name() string { return "existing_bids" }

func (f *existingBidsFilter) Apply(ctx context.Context, deps Deps, pool []domain.Partner) ([]domain.Partner, Step, error) {
	if deps.Partners == nil || deps.Request == nil {
		return nil, Step{}, fmt.Errorf("partner store and service request are required")
	}

	ids, err := deps.Partners.ExcludedPartnerIDs(ctx, deps.Request.ID)
	if err != nil {
		return nil, Step{}, fmt.Errorf("get excluded partners: %w", err)
	}
	f.lastExcluded = len(ids)

	excluded := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		excluded[id] = struct{}{}
	}

	out, dropped := keep(pool, func(p *domain.Partner) bool {
		_, ok := excluded[p.ID]
		return !ok
	})
	if deps.Logger != nil && len(dropped) > 0 {
		deps.Logger.Info("excluding partners with existing bids or recommendations",
			zap.Strings("excluded_partners", dropped),
			zap.Int("partners_left", len(out)),
		)
	}
	return out, Step{Initial: len(pool), Dropped: len(dropped), Left: len(out)}, nil
}

func (f *existingBidsFilter) Status() Status {
	return Status{
		Name:    f.Name(),
		Enabled: f.IsEnabled(),
		Reason:  f.reason,
		Details: map[string]string{"excluded_ids": strconv.Itoa(f.lastExcluded)},
	}
}
