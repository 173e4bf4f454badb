package matching

import (
	"context"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/spigell/partner-engine/internal/domain"
)

// Blocklist is the operator-maintained list of partners never to shortlist.
type Blocklist struct {
	Partners []string `yaml:"partners"`
}

// ReadBlocklist loads a YAML blocklist file.
func ReadBlocklist(path string) (*Blocklist, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading blocklist file %q: %w", path, err)
	}

	var b Blocklist
	if err := yaml.Unmarshal(raw, &b); err != nil {
		return nil, fmt.Errorf("parsing blocklist file %q: %w", path, err)
	}
	return &b, nil
}

type blocklistFilter struct {
	toggle
	path string
}

// NewBlocklist creates a filter that removes partners listed in the blocklist file.
// An empty path keeps every partner.
func NewBlocklist(path string) Filter {
	return &blocklistFilter{path: strings.TrimSpace(path)}
}

func (f *blocklistFilter) Name() string { return "blocklist" }

func (f *blocklistFilter) Apply(_ context.Context, deps Deps, pool []domain.Partner) ([]domain.Partner, Step, error) {
	if f.path == "" {
		return pool, Step{Initial: len(pool), Left: len(pool)}, nil
	}

	list, err := ReadBlocklist(f.path)
	if err != nil {
		return nil, Step{}, err
	}

	blocked := make(map[string]struct{}, len(list.Partners))
	for _, id := range list.Partners {
		blocked[strings.TrimSpace(id)] = struct{}{}
	}

	out, dropped := keep(pool, func(p *domain.Partner) bool {
		_, ok := blocked[p.ID]
		return !ok
	})
	if deps.Logger != nil && len(dropped) > 0 {
		deps.Logger.Info("excluding partners based on blocklist file",
			zap.String("path", f.path),
			zap.Strings("excluded_partners", dropped),
			zap.Int("partners_left", len(out)),
		)
	}
	return out, Step{Initial: len(pool), Dropped: len(dropped), Left: len(out)}, nil
}

func (f *blocklistFilter) Status() Status {
	details := map[string]string{}
	if f.path != "" {
		details["path"] = f.path
	}
	return Status{Name: f.Name(), Enabled: f.IsEnabled(), Reason: f.reason, Details: details}
}
