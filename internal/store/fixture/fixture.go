// Package fixture is an in-memory data source loaded from a YAML fixture set.
// It serves local runs, demos and tests with the same contracts as postgres.
package fixture

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/spigell/partner-engine/internal/domain"
	"github.com/spigell/partner-engine/internal/store"
)

var _ store.Store = (*Store)(nil)

// Bid is an existing partner bid on a request.
type Bid struct {
	RequestID string `yaml:"request_id"`
	PartnerID string `yaml:"partner_id"`
	Status    string `yaml:"status"`
}

// Data is the on-disk fixture layout.
type Data struct {
	Applications []domain.Application      `yaml:"applications"`
	Partners     []domain.Partner          `yaml:"partners"`
	Contacts     map[string]domain.Contact `yaml:"contacts"`
	Requests     []domain.ServiceRequest   `yaml:"requests"`
	Engagements  []domain.Engagement       `yaml:"engagements"`
	Bids         []Bid                     `yaml:"bids"`
}

type Store struct {
	mu   sync.RWMutex
	data Data

	recommendations map[string]domain.Recommendation
	recOrder        []string
	vettingResults  []domain.VettingResult
	notifications   []domain.Notification
	timeline        []domain.TimelineEntry
	logs            []domain.MatchingLog
}

// Load reads a YAML fixture file.
func Load(path string) (*Store, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading fixture file %q: %w", path, err)
	}

	var data Data
	if err := yaml.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("parsing fixture file %q: %w", path, err)
	}

	return New(data), nil
}

// New builds a store over the given data set.
func New(data Data) *Store {
	if data.Contacts == nil {
		data.Contacts = map[string]domain.Contact{}
	}
	return &Store{
		data:            data,
		recommendations: make(map[string]domain.Recommendation),
	}
}

func (s *Store) Close() {}

func (s *Store) GetApplication(_ context.Context, id string) (*domain.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, app := range s.data.Applications {
		if app.ID == id {
			out := app
			return &out, nil
		}
	}
	return nil, fmt.Errorf("application %s: %w", id, domain.ErrNotFound)
}

func (s *Store) HasDuplicateApplication(_ context.Context, email, companyName, excludeID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	email = strings.ToLower(strings.TrimSpace(email))
	name := strings.ToLower(strings.TrimSpace(companyName))

	for _, app := range s.data.Applications {
		if app.ID == excludeID {
			continue
		}
		if email != "" && strings.EqualFold(strings.TrimSpace(app.ContactEmail), email) {
			return true, nil
		}
		other := strings.ToLower(strings.TrimSpace(app.CompanyName))
		if name != "" && other != "" && (strings.Contains(other, name) || strings.Contains(name, other)) {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) SaveVettingResult(_ context.Context, result *domain.VettingResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vettingResults = append(s.vettingResults, *result)
	return nil
}

func (s *Store) GetServiceRequest(_ context.Context, id string) (*domain.ServiceRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, req := range s.data.Requests {
		if req.ID == id {
			out := req
			return &out, nil
		}
	}
	return nil, fmt.Errorf("service request %s: %w", id, domain.ErrNotFound)
}

func (s *Store) ListPartnersByCategory(_ context.Context, category string) ([]domain.Partner, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Partner, 0, len(s.data.Partners))
	for _, p := range s.data.Partners {
		if p.Status == domain.PartnerApproved && p.HasCategory(category) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *Store) ExcludedPartnerIDs(_ context.Context, requestID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	for _, bid := range s.data.Bids {
		if bid.RequestID == requestID && (bid.Status == "pending" || bid.Status == "submitted") {
			ids = append(ids, bid.PartnerID)
		}
	}
	for _, key := range s.recOrder {
		rec := s.recommendations[key]
		if rec.RequestID == requestID && rec.Status == domain.RecommendationInvited && !slices.Contains(ids, rec.PartnerID) {
			ids = append(ids, rec.PartnerID)
		}
	}
	return ids, nil
}

func (s *Store) ClientEngagements(_ context.Context, clientID string) ([]domain.Engagement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Engagement
	for _, e := range s.data.Engagements {
		if e.ClientID == clientID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *Store) UpsertRecommendations(_ context.Context, recs []domain.Recommendation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range recs {
		key := rec.RequestID + "/" + rec.PartnerID
		prev, ok := s.recommendations[key]
		if !ok {
			s.recOrder = append(s.recOrder, key)
		}
		if ok && prev.Status == domain.RecommendationInvited {
			rec.Status = prev.Status
		}
		s.recommendations[key] = rec
	}
	return nil
}

func (s *Store) MarkInvited(_ context.Context, requestID string, partnerIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range partnerIDs {
		key := requestID + "/" + id
		if rec, ok := s.recommendations[key]; ok {
			rec.Status = domain.RecommendationInvited
			s.recommendations[key] = rec
		}
	}
	return nil
}

func (s *Store) EnableBidding(_ context.Context, requestID string, deadline time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.data.Requests {
		req := &s.data.Requests[i]
		if req.ID != requestID {
			continue
		}
		if !req.BiddingEnabled {
			req.BiddingEnabled = true
			req.BiddingDeadline = &deadline
		}
		return nil
	}
	return fmt.Errorf("service request %s: %w", requestID, domain.ErrNotFound)
}

func (s *Store) PartnerContact(_ context.Context, partnerID string) (*domain.Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	contact, ok := s.data.Contacts[partnerID]
	if !ok {
		return nil, fmt.Errorf("contact for partner %s: %w", partnerID, domain.ErrNotFound)
	}
	return &contact, nil
}

func (s *Store) InsertNotification(_ context.Context, n *domain.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications = append(s.notifications, *n)
	return nil
}

func (s *Store) AppendTimeline(_ context.Context, entry *domain.TimelineEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timeline = append(s.timeline, *entry)
	return nil
}

func (s *Store) InsertMatchingLog(_ context.Context, log *domain.MatchingLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, *log)
	return nil
}

// Recommendations returns persisted recommendations in insertion order.
func (s *Store) Recommendations() []domain.Recommendation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Recommendation, 0, len(s.recOrder))
	for _, key := range s.recOrder {
		out = append(out, s.recommendations[key])
	}
	return out
}

func (s *Store) VettingResults() []domain.VettingResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.vettingResults)
}

func (s *Store) Notifications() []domain.Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.notifications)
}

func (s *Store) Timeline() []domain.TimelineEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.timeline)
}

func (s *Store) MatchingLogs() []domain.MatchingLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.logs)
}

// Request returns the current state of a service request.
func (s *Store) Request(id string) (domain.ServiceRequest, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, req := range s.data.Requests {
		if req.ID == id {
			return req, true
		}
	}
	return domain.ServiceRequest{}, false
}
