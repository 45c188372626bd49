// Package moderation holds the visibility rules for confessions: which
// statuses exist and which rows the public is allowed to read. An operator
// may move a confession between any two statuses so a wrong decision can be
// undone.
package moderation

import (
	"errors"
	"slices"
	"strings"

	"gorm.io/gorm"

	"github.com/sujalbistaa/confessions/internal/models"
)

var (
	ErrInvalidStatus   = errors.New("invalid status")
	ErrUnknownCategory = errors.New("unknown category")
)

// ParseStatus accepts the three moderation statuses, ignoring case and
// surrounding whitespace.
func ParseStatus(s string) (models.Status, error) {
	switch st := models.Status(strings.ToLower(strings.TrimSpace(s))); st {
	case models.StatusPending, models.StatusApproved, models.StatusRejected:
		return st, nil
	default:
		return "", ErrInvalidStatus
	}
}

// Visible is the public read predicate.
func Visible(status models.Status) bool {
	return status == models.StatusApproved
}

// PublicFeed restricts a confessions query to rows the public may see. Every
// public read goes through it.
func PublicFeed(db *gorm.DB) *gorm.DB {
	return db.Where("status = ?", models.StatusApproved)
}

// CategoryPolicy limits submissions to a configured set of categories. The
// zero value accepts any category.
type CategoryPolicy struct {
	categories []string
}

func NewCategoryPolicy(categories []string) CategoryPolicy {
	normalized := make([]string, 0, len(categories))
	for _, c := range categories {
		if c = strings.ToLower(strings.TrimSpace(c)); c != "" && !slices.Contains(normalized, c) {
			normalized = append(normalized, c)
		}
	}
	return CategoryPolicy{categories: normalized}
}

// Check returns the normalized category or ErrUnknownCategory.
func (p CategoryPolicy) Check(category string) (string, error) {
	c := strings.TrimSpace(category)
	if len(p.categories) == 0 {
		return c, nil
	}
	c = strings.ToLower(c)
	if !slices.Contains(p.categories, c) {
		return "", ErrUnknownCategory
	}
	return c, nil
}

// Categories lists the accepted categories; empty means unrestricted.
func (p CategoryPolicy) Categories() []string {
	return slices.Clone(p.categories)
}
