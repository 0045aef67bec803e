package meals

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	pkgerrors "github.com/asbolsyn/mealmarket-backend/pkg/errors"
)

// Inventory decrements portions with single guarded statements so that
// concurrent buyers can never drive a meal below zero.
type Inventory struct {
	now func() time.Time
}

func NewInventory() *Inventory {
	return &Inventory{now: time.Now}
}

// Decrement removes portions only when enough remain. It reports whether
// the row was updated.
func (i *Inventory) Decrement(ctx context.Context, tx *gorm.DB, mealID uuid.UUID, portions int) (bool, error) {
	if tx == nil {
		return false, pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	if portions < 1 {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "portions must be at least 1")
	}
	res := tx.WithContext(ctx).Exec(
		`UPDATE meals SET quantity = quantity - ?, updated_at = ? WHERE id = ? AND quantity >= ?`,
		portions, i.now().UTC(), mealID, portions,
	)
	if res.Error != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "decrement meal quantity")
	}
	return res.RowsAffected == 1, nil
}

// DecrementFloor is used once payment has been taken: the sale stands even
// if stock ran out in the meantime, so the quantity is clamped at zero.
func (i *Inventory) DecrementFloor(ctx context.Context, tx *gorm.DB, mealID uuid.UUID, portions int) error {
	ok, err := i.Decrement(ctx, tx, mealID, portions)
	if err != nil || ok {
		return err
	}
	res := tx.WithContext(ctx).Exec(
		`UPDATE meals SET quantity = 0, updated_at = ? WHERE id = ? AND quantity < ?`,
		i.now().UTC(), mealID, portions,
	)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "clamp meal quantity")
	}
	return nil
}
