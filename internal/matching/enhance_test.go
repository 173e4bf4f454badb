package matching

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/partner-engine/internal/domain"
)

type stubPersonalizer struct {
	sentences map[string]string
	err       error
	block     bool
	panics    bool
}

func (s *stubPersonalizer) Personalize(ctx context.Context, _ *domain.ServiceRequest, _ []domain.Match) (map[string]string, error) {
	if s.panics {
		panic("boom")
	}
	if s.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return s.sentences, s.err
}

func baseMatches() []domain.Match {
	return []domain.Match{
		{PartnerID: "p-1", Score: 95, Reasons: []string{"Specializes in aviation"}},
		{PartnerID: "p-2", Score: 80, Reasons: []string{"Specializes in aviation"}},
	}
}

func TestEnhancerAppendsSentences(t *testing.T) {
	e := NewEnhancer(&stubPersonalizer{sentences: map[string]string{"p-2": "Flies the London to Nice route weekly."}}, 0, zap.NewNop())
	original := baseMatches()

	got := e.Enhance(context.Background(), &domain.ServiceRequest{ID: "r"}, original)

	if len(got[0].Reasons) != 1 {
		t.Fatalf("expected p-1 untouched, got %v", got[0].Reasons)
	}
	want := []string{"Specializes in aviation", "Flies the London to Nice route weekly."}
	if !slices.Equal(got[1].Reasons, want) {
		t.Fatalf("expected %v, got %v", want, got[1].Reasons)
	}
	if got[0].PartnerID != "p-1" || got[0].Score != 95 || got[1].Score != 80 {
		t.Fatalf("expected order and scores unchanged, got %+v", got)
	}
	if len(original[1].Reasons) != 1 {
		t.Fatalf("expected input matches not to be mutated")
	}
}

func TestEnhancerIsBestEffort(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		p    *stubPersonalizer
	}{
		{name: "error", p: &stubPersonalizer{err: errors.New("malformed answer")}},
		{name: "timeout", p: &stubPersonalizer{block: true}},
		{name: "panic", p: &stubPersonalizer{panics: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			e := NewEnhancer(tt.p, 20*time.Millisecond, zap.NewNop())
			got := e.Enhance(context.Background(), &domain.ServiceRequest{ID: "r"}, baseMatches())
			for _, m := range got {
				if len(m.Reasons) != 1 {
					t.Fatalf("expected rule-based reasons only, got %v", m.Reasons)
				}
			}
		})
	}
}

func TestNilEnhancer(t *testing.T) {
	var e *Enhancer
	if got := e.Enhance(context.Background(), &domain.ServiceRequest{}, baseMatches()); len(got) != 2 {
		t.Fatalf("expected matches to pass through")
	}
}
