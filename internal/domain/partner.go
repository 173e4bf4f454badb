package domain

import (
	"strings"
	"time"
)

type PartnerStatus string

const (
	PartnerApproved  PartnerStatus = "approved"
	PartnerPending   PartnerStatus = "pending"
	PartnerSuspended PartnerStatus = "suspended"
)

// Partner is an approved company with its running operational metrics.
type Partner struct {
	ID             string        `json:"id" yaml:"id"`
	CompanyName    string        `json:"company_name" yaml:"company_name"`
	Categories     []string      `json:"categories" yaml:"categories"`
	ServiceRegions []string      `json:"service_regions" yaml:"service_regions"`
	Rating         float64       `json:"rating" yaml:"rating"`
	ResponseRate   float64       `json:"response_rate" yaml:"response_rate"`
	TotalBookings  int           `json:"total_bookings" yaml:"total_bookings"`
	MinBudget      *float64      `json:"min_budget,omitempty" yaml:"min_budget"`
	MaxBudget      *float64      `json:"max_budget,omitempty" yaml:"max_budget"`
	Status         PartnerStatus `json:"status" yaml:"status"`
}

// HasCategory is an exact, case-insensitive membership test.
func (p *Partner) HasCategory(category string) bool {
	category = strings.TrimSpace(category)
	for _, c := range p.Categories {
		if strings.EqualFold(strings.TrimSpace(c), category) {
			return true
		}
	}
	return false
}

// Contact is the notification identity of a partner. Either field may be empty.
type Contact struct {
	UserID string `json:"user_id" yaml:"user_id"`
	Email  string `json:"email" yaml:"email"`
}

// ServiceRequest is a client ask matched against the partner pool.
type ServiceRequest struct {
	ID                string     `json:"id" yaml:"id"`
	ClientID          string     `json:"client_id" yaml:"client_id"`
	Category          string     `json:"category" yaml:"category"`
	Title             string     `json:"title" yaml:"title"`
	Description       string     `json:"description" yaml:"description"`
	BudgetMin         *float64   `json:"budget_min,omitempty" yaml:"budget_min"`
	BudgetMax         *float64   `json:"budget_max,omitempty" yaml:"budget_max"`
	PreferredLocation string     `json:"preferred_location,omitempty" yaml:"preferred_location"`
	BiddingEnabled    bool       `json:"bidding_enabled" yaml:"bidding_enabled"`
	BiddingDeadline   *time.Time `json:"bidding_deadline,omitempty" yaml:"bidding_deadline"`
}

// Engagement is one past booking of a partner by a client.
type Engagement struct {
	ClientID  string  `json:"client_id" yaml:"client_id"`
	PartnerID string  `json:"partner_id" yaml:"partner_id"`
	Status    string  `json:"status" yaml:"status"`
	Rating    float64 `json:"rating" yaml:"rating"`
}

const EngagementCompleted = "completed"

// Match is the ephemeral score of one partner against one request.
type Match struct {
	PartnerID   string   `json:"partner_id"`
	CompanyName string   `json:"company_name"`
	Score       int      `json:"score"`
	Reasons     []string `json:"reasons"`
	Confidence  float64  `json:"ai_confidence"`
}

const (
	RecommendationPending = "pending"
	// RecommendationInvited marks a partner that received at least one invitation.
	RecommendationInvited = "invited"
)

// Recommendation is the persisted form of a Match.
type Recommendation struct {
	RequestID  string   `json:"request_id"`
	PartnerID  string   `json:"partner_id"`
	Score      int      `json:"score"`
	Reasons    []string `json:"reasons"`
	Confidence float64  `json:"confidence"`
	Status     string   `json:"status"`
}

type OutreachMethod string

const (
	MethodInApp  OutreachMethod = "in_app_notification"
	MethodEmail  OutreachMethod = "email"
	MethodFailed OutreachMethod = "failed"
)

type OutreachAttempt struct {
	PartnerID string         `json:"partner_id"`
	Method    OutreachMethod `json:"method"`
	Success   bool           `json:"success"`
	Error     string         `json:"error,omitempty"`
}

// Notification is a queued in-app message.
type Notification struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id"`
	Kind      string         `json:"kind"`
	Title     string         `json:"title"`
	Body      string         `json:"body"`
	Priority  string         `json:"priority"`
	Data      map[string]any `json:"data,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// TimelineEntry is a client-visible event on a service request.
type TimelineEntry struct {
	RequestID string    `json:"request_id"`
	Kind      string    `json:"kind"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// MatchingLog is the audit record written once per matching run.
type MatchingLog struct {
	ID                  string            `json:"id"`
	RequestID           string            `json:"request_id"`
	Category            string            `json:"category"`
	CandidatesEvaluated int               `json:"candidates_evaluated"`
	MatchesFound        int               `json:"matches_found"`
	OutreachSent        bool              `json:"outreach_sent"`
	Outcomes            []OutreachAttempt `json:"outcomes"`
	ProcessingTimeMS    int64             `json:"processing_time_ms"`
	CreatedAt           time.Time         `json:"created_at"`
}
