package config

import (
	"fmt"
	"os"
	"tle_zone_grader/internal/domain/model"

	"github.com/pelletier/go-toml/v2"
)

type languagesFile struct {
	Languages []model.Language `toml:"language"`
}

// LoadLanguages builds the language catalog. An empty path yields the
// built-in Judge0 CE defaults.
func LoadLanguages(path string) (*model.LanguageCatalog, error) {
	if path == "" {
		return model.NewLanguageCatalog(model.DefaultLanguages()), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read languages file %s: %w", path, err)
	}
	var f languagesFile
	if err := toml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse languages file %s: %w", path, err)
	}
	if len(f.Languages) == 0 {
		return nil, fmt.Errorf("languages file %s defines no [[language]] entries", path)
	}
	seen := map[string]bool{}
	for _, l := range f.Languages {
		if l.Slug == "" || l.ID <= 0 {
			return nil, fmt.Errorf("languages file %s: entry %q needs a slug and a positive id", path, l.Name)
		}
		if seen[l.Slug] {
			return nil, fmt.Errorf("languages file %s: duplicate slug %q", path, l.Slug)
		}
		seen[l.Slug] = true
	}
	return model.NewLanguageCatalog(f.Languages), nil
}
