// Package store is the authoritative persistence layer for confessions and
// their comments.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/sujalbistaa/confessions/internal/moderation"
	"github.com/sujalbistaa/confessions/internal/models"
)

const (
	maxNicknameLength = 50
	maxStatusAttempts = 10
)

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation failed")
	ErrConflict   = errors.New("concurrent update")
)

// ValidationError names the input that was rejected. It matches ErrValidation
// with errors.Is.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// CreateConfession inserts a new pending confession.
func (s *Store) CreateConfession(ctx context.Context, content, category, nickname string) (models.Confession, error) {
	content = strings.TrimSpace(content)
	category = strings.TrimSpace(category)
	if content == "" || category == "" {
		return models.Confession{}, &ValidationError{Msg: "Content and category are required"}
	}

	c := models.Confession{
		Content:  content,
		Category: category,
		Nickname: normalizeNickname(nickname),
		Status:   models.StatusPending,
	}
	if err := s.db.WithContext(ctx).Create(&c).Error; err != nil {
		return models.Confession{}, fmt.Errorf("create confession: %w", err)
	}
	return c, nil
}

// GetConfession loads a confession regardless of status.
func (s *Store) GetConfession(ctx context.Context, id uint) (models.Confession, error) {
	var c models.Confession
	if err := s.db.WithContext(ctx).First(&c, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c, ErrNotFound
		}
		return c, fmt.Errorf("get confession %d: %w", id, err)
	}
	return c, nil
}

// ListApproved returns the public feed, newest first.
func (s *Store) ListApproved(ctx context.Context) ([]models.Confession, error) {
	posts := []models.Confession{}
	err := s.db.WithContext(ctx).
		Scopes(moderation.PublicFeed).
		Order("created_at desc, id desc").
		Find(&posts).Error
	if err != nil {
		return nil, fmt.Errorf("list approved confessions: %w", err)
	}
	return posts, nil
}

// ListAll returns every confession for moderators, most reported first and
// newest first within the same report count.
func (s *Store) ListAll(ctx context.Context) ([]models.Confession, error) {
	posts := []models.Confession{}
	err := s.db.WithContext(ctx).
		Order("reports_count desc, created_at desc, id desc").
		Find(&posts).Error
	if err != nil {
		return nil, fmt.Errorf("list confessions: %w", err)
	}
	return posts, nil
}

// StatusChange is the outcome of SetStatus. Confession is the row reloaded
// after the write, with Status set to the value that write stored.
type StatusChange struct {
	Previous   models.Status
	Confession models.Confession
}

// SetStatus overwrites the status and reports the status it replaced. The
// update only applies if the status is still the one just read, so each of
// several concurrent callers sees the value it actually replaced.
func (s *Store) SetStatus(ctx context.Context, id uint, status models.Status) (StatusChange, error) {
	db := s.db.WithContext(ctx)
	for attempt := 0; attempt < maxStatusAttempts; attempt++ {
		var current models.Confession
		if err := db.Select("id", "status").First(&current, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return StatusChange{}, ErrNotFound
			}
			return StatusChange{}, fmt.Errorf("set status of confession %d: %w", id, err)
		}

		res := db.Model(&models.Confession{}).
			Where("id = ? AND status = ?", id, current.Status).
			Update("status", status)
		if res.Error != nil {
			return StatusChange{}, fmt.Errorf("set status of confession %d: %w", id, res.Error)
		}
		if res.RowsAffected == 0 {
			// Changed or deleted since the read.
			continue
		}

		change := StatusChange{Previous: current.Status}
		if err := db.First(&change.Confession, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return StatusChange{}, ErrNotFound
			}
			return StatusChange{}, fmt.Errorf("reload confession %d: %w", id, err)
		}
		change.Confession.Status = status
		return change, nil
	}
	return StatusChange{}, fmt.Errorf("set status of confession %d: %w", id, ErrConflict)
}

// DeleteConfession removes a confession and all of its comments.
func (s *Store) DeleteConfession(ctx context.Context, id uint) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// The foreign key cascades too; deleting here keeps engines without
		// enforced foreign keys consistent.
		if err := tx.Where("confession_id = ?", id).Delete(&models.Comment{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&models.Confession{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
	return wrap(err, "delete confession %d", id)
}

// Like adds one to the like counter and returns the row after the increment.
func (s *Store) Like(ctx context.Context, id uint) (models.Confession, error) {
	var c models.Confession
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := increment(tx, id, "likes"); err != nil {
			return err
		}
		return tx.First(&c, id).Error
	})
	if err != nil {
		return c, wrap(err, "like confession %d", id)
	}
	return c, nil
}

// Report adds one to the report counter.
func (s *Store) Report(ctx context.Context, id uint) error {
	return wrap(increment(s.db.WithContext(ctx), id, "reports_count"), "report confession %d", id)
}

// ListComments returns a confession's comments oldest first.
func (s *Store) ListComments(ctx context.Context, confessionID uint) ([]models.Comment, error) {
	comments := []models.Comment{}
	err := s.db.WithContext(ctx).
		Where("confession_id = ?", confessionID).
		Order("created_at asc, id asc").
		Find(&comments).Error
	if err != nil {
		return nil, fmt.Errorf("list comments of confession %d: %w", confessionID, err)
	}
	return comments, nil
}

// CreateComment attaches a comment to an existing confession.
func (s *Store) CreateComment(ctx context.Context, confessionID uint, content, nickname string) (models.Comment, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return models.Comment{}, &ValidationError{Msg: "Comment content required"}
	}

	comment := models.Comment{
		ConfessionID: confessionID,
		Content:      content,
		Nickname:     normalizeNickname(nickname),
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&models.Confession{}).Where("id = ?", confessionID).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		return tx.Create(&comment).Error
	})
	if err != nil {
		return models.Comment{}, wrap(err, "create comment on confession %d", confessionID)
	}
	return comment, nil
}

// DeleteComment removes a comment. Deleting a missing comment is not an error.
func (s *Store) DeleteComment(ctx context.Context, id uint) error {
	if err := s.db.WithContext(ctx).Delete(&models.Comment{}, id).Error; err != nil {
		return fmt.Errorf("delete comment %d: %w", id, err)
	}
	return nil
}

// Ping checks that the database answers.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// increment performs a single UPDATE so concurrent increments are never lost.
func increment(tx *gorm.DB, id uint, column string) error {
	res := tx.Model(&models.Confession{}).
		Where("id = ?", id).
		UpdateColumn(column, gorm.Expr(column+" + ?", 1))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func wrap(err error, format string, args ...any) error {
	if err == nil || errors.Is(err, ErrNotFound) {
		return err
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

func normalizeNickname(nickname string) string {
	nickname = strings.TrimSpace(nickname)
	if nickname == "" {
		return models.DefaultNickname
	}
	if utf8.RuneCountInString(nickname) > maxNicknameLength {
		nickname = string([]rune(nickname)[:maxNicknameLength])
	}
	return nickname
}
