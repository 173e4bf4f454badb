package matching

import (
	"context"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/partner-engine/internal/ai"
	"github.com/spigell/partner-engine/internal/domain"
)

const defaultPersonalizeTimeout = 10 * time.Second

// Enhancer appends one personalized sentence per match. It never changes
// scores or order, and any failure leaves the matches untouched.
type Enhancer struct {
	personalizer ai.Personalizer
	timeout      time.Duration
	logger       *zap.Logger
}

func NewEnhancer(personalizer ai.Personalizer, timeout time.Duration, logger *zap.Logger) *Enhancer {
	if timeout <= 0 {
		timeout = defaultPersonalizeTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Enhancer{personalizer: personalizer, timeout: timeout, logger: logger}
}

func (e *Enhancer) Enhance(ctx context.Context, req *domain.ServiceRequest, matches []domain.Match) []domain.Match {
	if e == nil || e.personalizer == nil || len(matches) == 0 {
		return matches
	}

	sentences, err := e.personalize(ctx, req, matches)
	if err != nil {
		e.logger.Warn("skipping match personalization", zap.Error(err))
		return matches
	}

	out := make([]domain.Match, len(matches))
	for i, m := range matches {
		if s, ok := sentences[m.PartnerID]; ok && s != "" {
			m.Reasons = append(slices.Clone(m.Reasons), s)
		}
		out[i] = m
	}
	return out
}

func (e *Enhancer) personalize(ctx context.Context, req *domain.ServiceRequest, matches []domain.Match) (sentences map[string]string, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("personalizer panicked", zap.Any("panic", r))
			sentences, err = nil, errPersonalizerPanic
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	return e.personalizer.Personalize(ctx, req, matches)
}
