package mysql

import (
	"context"
	"fmt"

	"bindery-orders/internal/domain"
	"bindery-orders/internal/repository"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type cartRepo struct {
	db *gorm.DB
}

func NewCartRepository(db *gorm.DB) repository.CartStore {
	return &cartRepo{db: db}
}

func (r *cartRepo) Read(ctx context.Context, userID string) ([]domain.CartItem, error) {
	var items []domain.CartItem
	if err := conn(ctx, r.db).Where("user_id = ?", userID).Order("id").Find(&items).Error; err != nil {
		return nil, fmt.Errorf("read cart: %w", err)
	}
	return items, nil
}

func (r *cartRepo) ReadForUpdate(ctx context.Context, userID string) ([]domain.CartItem, error) {
	if !inTx(ctx) {
		return nil, fmt.Errorf("read cart for update: no transaction in context")
	}
	var items []domain.CartItem
	err := conn(ctx, r.db).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		Order("id").
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("lock cart: %w", err)
	}
	return items, nil
}

func (r *cartRepo) Clear(ctx context.Context, userID string) error {
	if err := conn(ctx, r.db).Where("user_id = ?", userID).Delete(&domain.CartItem{}).Error; err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}
