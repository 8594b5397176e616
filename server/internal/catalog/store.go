package catalog

import (
	"context"
	"errors"

	"techassist/server/internal/model"
)

var ErrNotFound = errors.New("catalog entry not found")

// Store serves the diagnostic reference data: categories, the question
// tree, templates and recommendation rules. Everything but rule
// bookkeeping is read-only at runtime.
type Store interface {
	GetCategory(ctx context.Context, id string) (*model.Category, error)
	ListCategories(ctx context.Context) ([]model.Category, error)

	GetQuestion(ctx context.Context, id string) (*model.Question, error)
	// ListQuestions returns every question of a category ordered by Ordre,
	// active or not. Callers filter; the decision tree needs to see
	// inactive entries to skip them explicitly.
	ListQuestions(ctx context.Context, categoryID string) ([]model.Question, error)

	// ActiveTemplate returns the category's active template, or
	// ErrNotFound when the category has none.
	ActiveTemplate(ctx context.Context, categoryID string) (*model.Template, error)

	ListRules(ctx context.Context, categoryID string) ([]model.Rule, error)
	// SaveRule persists rule evaluation bookkeeping (last run, last
	// result, last message).
	SaveRule(ctx context.Context, r *model.Rule) error
}
