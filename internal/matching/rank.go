package matching

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/spigell/partner-engine/internal/domain"
	"github.com/spigell/partner-engine/internal/utils"
)

const (
	// MinScore is the lowest score a partner may have to be a candidate at all.
	MinScore = 30

	DefaultMaxPartners = 5

	positiveEngagementRating = 4
)

// History is the set of partners the requesting client rated well on a
// completed engagement.
type History map[string]struct{}

// NewHistory keeps completed engagements rated at least 4.
func NewHistory(engagements []domain.Engagement) History {
	h := make(History, len(engagements))
	for _, e := range engagements {
		if strings.EqualFold(e.Status, domain.EngagementCompleted) && e.Rating >= positiveEngagementRating {
			h[e.PartnerID] = struct{}{}
		}
	}
	return h
}

func (h History) Has(partnerID string) bool {
	_, ok := h[partnerID]
	return ok
}

// Rank scores every partner of the pool against req and returns the top
// maxPartners candidates scoring at least MinScore, best first. Equal scores
// keep pool order. Rank is deterministic and has no side effects.
func Rank(req *domain.ServiceRequest, pool []domain.Partner, history History, maxPartners int) []domain.Match {
	if req == nil {
		return []domain.Match{}
	}
	if maxPartners <= 0 {
		maxPartners = DefaultMaxPartners
	}

	matches := make([]domain.Match, 0, len(pool))
	for i := range pool {
		m := ScorePartner(req, &pool[i], history.Has(pool[i].ID))
		if m.Score < MinScore {
			continue
		}
		matches = append(matches, m)
	}

	slices.SortStableFunc(matches, func(a, b domain.Match) int {
		return b.Score - a.Score
	})

	if len(matches) > maxPartners {
		matches = matches[:maxPartners]
	}
	return matches
}

// ScorePartner computes one partner's additive score. Reasons follow the order
// in which terms are evaluated.
func ScorePartner(req *domain.ServiceRequest, p *domain.Partner, repeatClient bool) domain.Match {
	var (
		score   int
		reasons []string
	)
	add := func(points int, reason string) {
		score += points
		reasons = append(reasons, reason)
	}

	if p.HasCategory(req.Category) {
		add(35, fmt.Sprintf("Specializes in %s", req.Category))
	}

	if points, reason := budgetFit(req, p); points > 0 {
		add(points, reason)
	}

	switch {
	case p.Rating >= 4.8:
		add(12, fmt.Sprintf("Exceptional rating (%.1f)", p.Rating))
	case p.Rating >= 4.5:
		add(9, fmt.Sprintf("Excellent rating (%.1f)", p.Rating))
	case p.Rating >= 4.0:
		add(6, fmt.Sprintf("Good rating (%.1f)", p.Rating))
	}

	switch {
	case p.ResponseRate >= 95:
		add(8, fmt.Sprintf("Highly responsive (%.0f%%)", p.ResponseRate))
	case p.ResponseRate >= 85:
		add(6, fmt.Sprintf("Responsive (%.0f%%)", p.ResponseRate))
	case p.ResponseRate >= 70:
		add(3, fmt.Sprintf("Reliable response rate (%.0f%%)", p.ResponseRate))
	}

	switch {
	case p.TotalBookings >= 100:
		add(5, fmt.Sprintf("Extensive experience (%d bookings)", p.TotalBookings))
	case p.TotalBookings >= 50:
		add(3, fmt.Sprintf("Proven experience (%d bookings)", p.TotalBookings))
	}

	if repeatClient {
		add(15, "Previously rated highly by this client")
	}

	if region, ok := regionMatch(req.PreferredLocation, p.ServiceRegions); ok {
		add(5, fmt.Sprintf("Serves %s", region))
	}

	score = utils.Clamp(score, 0, 100)
	if reasons == nil {
		reasons = []string{}
	}

	return domain.Match{
		PartnerID:   p.ID,
		CompanyName: p.CompanyName,
		Score:       score,
		Reasons:     reasons,
		Confidence:  confidence(score, repeatClient, p),
	}
}

// budgetFit only scores a request that states both bounds, or none at all.
func budgetFit(req *domain.ServiceRequest, p *domain.Partner) (int, string) {
	if req.BudgetMin == nil && req.BudgetMax == nil {
		return 8, "Flexible budget"
	}
	if req.BudgetMin == nil || req.BudgetMax == nil {
		return 0, ""
	}

	lo, hi := 0.0, math.Inf(1)
	if p.MinBudget != nil {
		lo = *p.MinBudget
	}
	if p.MaxBudget != nil {
		hi = *p.MaxBudget
	}

	reqLo, reqHi := *req.BudgetMin, *req.BudgetMax
	switch {
	case lo <= reqLo && hi >= reqHi:
		return 20, "Budget range fully covered"
	case lo <= reqHi && hi >= reqLo:
		return 12, "Budget range partially covered"
	default:
		return 0, ""
	}
}

func regionMatch(location string, regions []string) (string, bool) {
	location = strings.ToLower(strings.TrimSpace(location))
	if location == "" {
		return "", false
	}
	for _, region := range regions {
		r := strings.ToLower(strings.TrimSpace(region))
		if r == "" {
			continue
		}
		if strings.Contains(r, location) || strings.Contains(location, r) {
			return strings.TrimSpace(region), true
		}
	}
	return "", false
}

// confidence is computed in hundredths so the two-decimal rounding is exact.
func confidence(score int, repeatClient bool, p *domain.Partner) float64 {
	hundredths := float64(score) / 2
	if repeatClient {
		hundredths += 30
	}
	if p.Rating >= 4.5 {
		hundredths += 10
	}
	if p.TotalBookings >= 50 {
		hundredths += 10
	}
	return min(math.Round(hundredths), 100) / 100
}
