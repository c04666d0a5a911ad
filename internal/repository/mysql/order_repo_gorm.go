package mysql

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"bindery-orders/internal/domain"
	"bindery-orders/internal/repository"

	mysqldriver "github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

const mysqlErrDuplicateEntry = 1062

type orderRepo struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) repository.OrderLedger {
	return &orderRepo{db: db}
}

// Insert relies on the unique index on payment_reference, so concurrent creators
// for one payment cannot both commit.
func (r *orderRepo) Insert(ctx context.Context, order *domain.Order) error {
	if order.Version == 0 {
		order.Version = 1
	}
	if err := conn(ctx, r.db).Create(order).Error; err != nil {
		if isDuplicateKey(err) {
			return repository.ErrDuplicatePaymentReference
		}
		slog.ErrorContext(ctx, "order insert failed", "order_id", order.ID, "err", err)
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (r *orderRepo) Update(ctx context.Context, order *domain.Order, expectedVersion int) error {
	order.Version = expectedVersion + 1
	res := conn(ctx, r.db).
		Model(&domain.Order{}).
		Where("id = ? AND version = ?", order.ID, expectedVersion).
		Select("*").
		Omit("id", "created_at").
		Updates(order)
	if res.Error != nil {
		order.Version = expectedVersion
		return fmt.Errorf("update order: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		order.Version = expectedVersion
		return repository.ErrVersionConflict
	}
	return nil
}

func (r *orderRepo) FindByID(ctx context.Context, id string) (*domain.Order, error) {
	var o domain.Order
	if err := conn(ctx, r.db).First(&o, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("find order by id: %w", err)
	}
	return &o, nil
}

func (r *orderRepo) FindByPaymentReference(ctx context.Context, ref string) (*domain.Order, error) {
	var o domain.Order
	if err := conn(ctx, r.db).First(&o, "payment_reference = ?", ref).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("find order by payment reference: %w", err)
	}
	return &o, nil
}

func (r *orderRepo) FindByUserID(ctx context.Context, userID string) ([]domain.Order, error) {
	var out []domain.Order
	if err := conn(ctx, r.db).Where("user_id = ?", userID).Order("created_at DESC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("find orders by user: %w", err)
	}
	return out, nil
}

func (r *orderRepo) List(ctx context.Context, page, pageSize int) ([]domain.Order, int64, error) {
	var total int64
	db := conn(ctx, r.db)
	if err := db.Model(&domain.Order{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}

	var out []domain.Order
	err := db.Order("created_at DESC").
		Limit(pageSize).
		Offset((page - 1) * pageSize).
		Find(&out).Error
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	return out, total, nil
}

func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var myErr *mysqldriver.MySQLError
	return errors.As(err, &myErr) && myErr.Number == mysqlErrDuplicateEntry
}
