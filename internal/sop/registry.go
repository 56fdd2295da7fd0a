package sop

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/sentinelops/incident-engine/internal/models"
)

// PackFile is the YAML root structure of an SOP pack.
type PackFile struct {
	SOPs []models.SOPDefinition `yaml:"sops"`
}

// Registry holds the SOP catalog and resolves which procedures apply to a
// diagnosed root cause.
type Registry struct {
	logger *slog.Logger

	mu   sync.RWMutex
	sops map[string]models.SOPDefinition
}

// NewRegistry builds a registry seeded with the built-in catalog plus an
// optional YAML pack. A missing pack file is not an error.
func NewRegistry(logger *slog.Logger, packPath string) (*Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		logger: logger,
		sops:   make(map[string]models.SOPDefinition),
	}
	for _, def := range Builtins() {
		r.sops[def.ID] = def
	}

	packSOPs, err := loadPack(packPath)
	if err != nil {
		return nil, err
	}
	for _, def := range packSOPs {
		r.sops[def.ID] = def
	}
	if len(packSOPs) > 0 {
		logger.Info("loaded SOP pack",
			slog.String("path", packPath),
			slog.Int("count", len(packSOPs)))
	}
	return r, nil
}

func loadPack(path string) ([]models.SOPDefinition, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read sop pack: %w", err)
	}

	var pack PackFile
	if err := yaml.Unmarshal(data, &pack); err != nil {
		return nil, fmt.Errorf("parse sop pack: %w", err)
	}
	for i, def := range pack.SOPs {
		if def.ID == "" {
			return nil, fmt.Errorf("sop pack entry %d missing id", i)
		}
		if len(def.Steps) == 0 {
			return nil, fmt.Errorf("sop %q has no steps", def.ID)
		}
		if def.Risk < models.RiskL0 || def.Risk > models.RiskL4 {
			return nil, fmt.Errorf("sop %q has invalid risk level %d", def.ID, def.Risk)
		}
	}
	return pack.SOPs, nil
}

// Register adds or replaces one SOP.
func (r *Registry) Register(def models.SOPDefinition) {
	r.mu.Lock()
	r.sops[def.ID] = def
	r.mu.Unlock()
}

// Get returns the SOP with the given id.
func (r *Registry) Get(id string) (models.SOPDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.sops[id]
	return def, ok
}

// All returns every registered SOP.
func (r *Registry) All() []models.SOPDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := make([]models.SOPDefinition, 0, len(r.sops))
	for _, def := range r.sops {
		all = append(all, def)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return all
}

// FindApplicable returns SOPs whose AppliesTo selector covers the root
// cause, ranked by selector specificity (exact match over prefix glob over
// wildcard) and then by lower risk.
func (r *Registry) FindApplicable(rootCause string) []models.SOPDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	type ranked struct {
		def         models.SOPDefinition
		specificity int
	}

	matches := make([]ranked, 0)
	for _, def := range r.sops {
		spec, ok := bestSelector(def.AppliesTo, rootCause)
		if !ok {
			continue
		}
		matches = append(matches, ranked{def: def, specificity: spec})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].specificity != matches[j].specificity {
			return matches[i].specificity > matches[j].specificity
		}
		if matches[i].def.Risk != matches[j].def.Risk {
			return matches[i].def.Risk < matches[j].def.Risk
		}
		return matches[i].def.ID < matches[j].def.ID
	})

	out := make([]models.SOPDefinition, 0, len(matches))
	for _, m := range matches {
		out = append(out, m.def)
	}
	return out
}

// bestSelector evaluates every selector against the root cause and returns
// the highest specificity: exact matches score by full length, prefix globs
// by prefix length, the bare wildcard scores zero.
func bestSelector(selectors []string, rootCause string) (int, bool) {
	best := -1
	for _, sel := range selectors {
		switch {
		case sel == "*":
			if best < 0 {
				best = 0
			}
		case strings.HasSuffix(sel, "*"):
			prefix := strings.TrimSuffix(sel, "*")
			if strings.HasPrefix(rootCause, prefix) && len(prefix) > best {
				best = len(prefix)
			}
		case sel == rootCause:
			// Exact always outranks any glob on the same cause.
			if len(sel)+1 > best {
				best = len(sel) + 1
			}
		}
	}
	return best, best >= 0
}
