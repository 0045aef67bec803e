package commission

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/asbolsyn/mealmarket-backend/pkg/db/models"
	pkgerrors "github.com/asbolsyn/mealmarket-backend/pkg/errors"
	"github.com/asbolsyn/mealmarket-backend/pkg/logger"
)

const defaultDescription = "Default platform commission"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Resolver answers which commission rate applies at an instant and lets
// operators change it.
type Resolver interface {
	RateAt(ctx context.Context, at time.Time) (decimal.Decimal, error)
	RateAtTx(ctx context.Context, tx *gorm.DB, at time.Time) (decimal.Decimal, error)
	Current(ctx context.Context) (*models.Commission, error)
	EnsureDefault(ctx context.Context) error
	SetRate(ctx context.Context, rate decimal.Decimal, description string) (*models.Commission, error)
	History(ctx context.Context) ([]models.Commission, error)
}

type service struct {
	repo        Repository
	tx          txRunner
	defaultRate decimal.Decimal
	logg        *logger.Logger
	now         func() time.Time
}

// ServiceParams wires the commission resolver.
type ServiceParams struct {
	Repository  Repository
	DB          txRunner
	DefaultRate decimal.Decimal
	Logger      *logger.Logger
	Now         func() time.Time
}

func NewService(params ServiceParams) (Resolver, error) {
	if params.Repository == nil {
		return nil, fmt.Errorf("commission repository required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if err := validateRate(params.DefaultRate); err != nil {
		return nil, err
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:        params.Repository,
		tx:          params.DB,
		defaultRate: params.DefaultRate,
		logg:        params.Logger,
		now:         now,
	}, nil
}

func (s *service) RateAt(ctx context.Context, at time.Time) (decimal.Decimal, error) {
	return s.rateAt(ctx, s.repo, at)
}

func (s *service) RateAtTx(ctx context.Context, tx *gorm.DB, at time.Time) (decimal.Decimal, error) {
	return s.rateAt(ctx, s.repo.WithTx(tx), at)
}

// rateAt prefers the row active at the instant, then the latest row, then the
// configured default.
func (s *service) rateAt(ctx context.Context, repo Repository, at time.Time) (decimal.Decimal, error) {
	row, err := repo.FindActive(ctx, at.UTC())
	if err != nil {
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load active commission")
	}
	if row != nil {
		return row.CommissionRate, nil
	}
	row, err = repo.FindLatest(ctx)
	if err != nil {
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load latest commission")
	}
	if row != nil {
		return row.CommissionRate, nil
	}
	return s.defaultRate, nil
}

func (s *service) Current(ctx context.Context) (*models.Commission, error) {
	row, err := s.repo.FindActive(ctx, s.now().UTC())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load active commission")
	}
	if row == nil {
		row, err = s.repo.FindLatest(ctx)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load latest commission")
		}
	}
	if row == nil {
		return &models.Commission{CommissionRate: s.defaultRate, EffectiveFrom: s.now().UTC()}, nil
	}
	return row, nil
}

// EnsureDefault seeds the default rate when no commission row exists.
func (s *service) EnsureDefault(ctx context.Context) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		count, err := repo.Count(ctx)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count commissions")
		}
		if count > 0 {
			return nil
		}
		desc := defaultDescription
		row := &models.Commission{
			ID:             uuid.New(),
			CommissionRate: s.defaultRate,
			EffectiveFrom:  s.now().UTC(),
			Description:    &desc,
		}
		if err := repo.Create(ctx, row); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "seed default commission")
		}
		if s.logg != nil {
			s.logg.Info(s.logg.WithField(ctx, "rate", row.CommissionRate.String()), "default commission seeded")
		}
		return nil
	})
}

// SetRate closes the open row and starts a new one effective now.
func (s *service) SetRate(ctx context.Context, rate decimal.Decimal, description string) (*models.Commission, error) {
	if err := validateRate(rate); err != nil {
		return nil, err
	}

	var created *models.Commission
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		now := s.now().UTC()
		if _, err := repo.CloseOpen(ctx, now); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "close active commission")
		}
		row := &models.Commission{
			ID:             uuid.New(),
			CommissionRate: rate,
			EffectiveFrom:  now,
		}
		if desc := strings.TrimSpace(description); desc != "" {
			row.Description = &desc
		}
		if err := repo.Create(ctx, row); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create commission")
		}
		created = row
		return nil
	})
	if err != nil {
		return nil, err
	}
	if s.logg != nil {
		s.logg.Info(s.logg.WithField(ctx, "rate", rate.String()), "commission rate updated")
	}
	return created, nil
}

func (s *service) History(ctx context.Context) ([]models.Commission, error) {
	rows, err := s.repo.List(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list commissions")
	}
	return rows, nil
}

func validateRate(rate decimal.Decimal) error {
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
		return pkgerrors.New(pkgerrors.CodeValidation, "commission rate must be within [0,1]").
			WithDetails(map[string]any{"rate": rate.String()})
	}
	return nil
}
