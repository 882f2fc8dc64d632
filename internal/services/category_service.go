package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"spendtracker/internal/core"
	"spendtracker/internal/storage"
)

// CategoryService manages the categories visible to a user.
type CategoryService struct {
	store   storage.CategoryStore
	timeout time.Duration
}

func NewCategoryService(store storage.CategoryStore, timeout time.Duration) *CategoryService {
	if timeout <= 0 {
		timeout = DefaultStoreTimeout
	}
	return &CategoryService{store: store, timeout: timeout}
}

func (s *CategoryService) List(ctx context.Context, userID int64) ([]core.Category, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	cats, err := s.store.ListCategories(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return cats, nil
}

func (s *CategoryService) Create(ctx context.Context, userID int64, in core.CategoryInput) (core.Category, error) {
	in = in.Normalize()
	if err := in.Validate(); err != nil {
		return core.Category{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	c, err := s.store.CreateCategory(ctx, userID, in)
	if err != nil {
		return core.Category{}, fmt.Errorf("create category: %w", err)
	}
	slog.InfoContext(ctx, "Category created", "user_id", userID, "category_id", c.ID, "name", c.Name)
	return c, nil
}

// Delete soft-deletes a category the user owns. Global categories are not
// deletable and report core.ErrNotFound.
func (s *CategoryService) Delete(ctx context.Context, userID, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.store.SoftDeleteCategory(ctx, userID, id); err != nil {
		return fmt.Errorf("delete category %d: %w", id, err)
	}
	slog.InfoContext(ctx, "Category deleted", "user_id", userID, "category_id", id)
	return nil
}
