package patterns

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/sentinelops/incident-engine/internal/models"
)

// PackFile is the YAML root structure of a pattern pack.
type PackFile struct {
	Patterns []models.Pattern `yaml:"patterns"`
}

// LoadPack reads additional patterns from a YAML pack. A missing file is not
// an error; operators ship packs optionally.
func LoadPack(path string) ([]models.Pattern, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read pattern pack: %w", err)
	}

	var pack PackFile
	if err := yaml.Unmarshal(data, &pack); err != nil {
		return nil, fmt.Errorf("parse pattern pack: %w", err)
	}

	for i := range pack.Patterns {
		if pack.Patterns[i].ID == "" {
			return nil, fmt.Errorf("pattern pack entry %d missing id", i)
		}
		if pack.Patterns[i].Source == "" {
			pack.Patterns[i].Source = models.PatternBuiltIn
		}
	}
	return pack.Patterns, nil
}
