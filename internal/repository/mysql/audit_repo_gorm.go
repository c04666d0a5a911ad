package mysql

import (
	"context"
	"fmt"

	"bindery-orders/internal/domain"
	"bindery-orders/internal/repository"

	"gorm.io/gorm"
)

type auditRepo struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) repository.AuditLog {
	return &auditRepo{db: db}
}

// Append writes outside any surrounding transaction: an audit record of a failed
// attempt must survive that attempt's rollback.
func (r *auditRepo) Append(ctx context.Context, entry *domain.AuditEntry) error {
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}
