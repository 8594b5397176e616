package catalog

import (
	"encoding/json"
	"fmt"
	"os"

	"techassist/server/internal/model"
)

// Seed is the on-disk catalog format. One JSON file carries the whole
// reference set; questions embed their choices.
type Seed struct {
	Categories []model.Category `json:"categories"`
	Questions  []model.Question `json:"questions"`
	Templates  []model.Template `json:"templates"`
	Rules      []model.Rule     `json:"rules"`
}

// LoadSeed reads and validates the catalog file at path.
func LoadSeed(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	var seed Seed
	if err := json.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	if err := seed.validate(); err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return &seed, nil
}

// validate rejects dangling references early; a question pointing at a
// missing category would otherwise surface much later as a silent skip.
func (s *Seed) validate() error {
	cats := make(map[string]bool, len(s.Categories))
	for _, c := range s.Categories {
		if c.ID == "" {
			return fmt.Errorf("category with empty id")
		}
		cats[c.ID] = true
	}
	questions := make(map[string]bool, len(s.Questions))
	for _, q := range s.Questions {
		if q.ID == "" {
			return fmt.Errorf("question with empty id")
		}
		if !cats[q.CategorieID] {
			return fmt.Errorf("question %s: unknown category %s", q.ID, q.CategorieID)
		}
		questions[q.ID] = true
	}
	for _, q := range s.Questions {
		if q.ParentID != "" && !questions[q.ParentID] {
			return fmt.Errorf("question %s: unknown parent %s", q.ID, q.ParentID)
		}
	}
	for _, t := range s.Templates {
		if !cats[t.CategorieID] {
			return fmt.Errorf("template %s: unknown category %s", t.ID, t.CategorieID)
		}
		for _, tq := range t.Questions {
			if !questions[tq.QuestionID] {
				return fmt.Errorf("template %s: unknown question %s", t.ID, tq.QuestionID)
			}
		}
	}
	for _, r := range s.Rules {
		if !cats[r.CategorieID] {
			return fmt.Errorf("rule %s: unknown category %s", r.ID, r.CategorieID)
		}
	}
	return nil
}
