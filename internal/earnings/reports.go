package earnings

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/asbolsyn/mealmarket-backend/pkg/db/models"
	pkgerrors "github.com/asbolsyn/mealmarket-backend/pkg/errors"
	"github.com/asbolsyn/mealmarket-backend/pkg/types"
)

// MonthlySummary totals one vendor's earnings for a period.
type MonthlySummary struct {
	VendorID   uuid.UUID               `json:"vendor_id"`
	Period     types.Period            `json:"period"`
	OrderCount int                     `json:"order_count"`
	Gross      decimal.Decimal         `json:"gross_amount"`
	Commission decimal.Decimal         `json:"commission_amount"`
	Net        decimal.Decimal         `json:"net_amount"`
	PaidOut    decimal.Decimal         `json:"paid_out_amount"`
	Unpaid     decimal.Decimal         `json:"unpaid_amount"`
	Rows       []models.VendorEarnings `json:"rows"`
}

// PeriodTotal is the unpaid net for one period.
type PeriodTotal struct {
	Period     types.Period    `json:"period"`
	OrderCount int             `json:"order_count"`
	Net        decimal.Decimal `json:"net_amount"`
}

// RevenueReport is the platform-wide view of one period.
type RevenueReport struct {
	Period         types.Period    `json:"period"`
	GMV            decimal.Decimal `json:"gmv"`
	Commission     decimal.Decimal `json:"commission"`
	VendorEarnings decimal.Decimal `json:"vendor_earnings"`
	OrderCount     int             `json:"order_count"`
	UniqueVendors  int             `json:"unique_vendors"`
}

// Money columns are summed here rather than in SQL so both dialects agree on
// precision.
func (s *service) VendorMonthly(ctx context.Context, vendorID uuid.UUID, period types.Period) (*MonthlySummary, error) {
	if vendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor id required")
	}
	if err := period.Validate(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, err.Error())
	}
	rows, err := s.repo.ListByVendorPeriod(ctx, vendorID, period)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list vendor earnings")
	}

	summary := &MonthlySummary{
		VendorID:   vendorID,
		Period:     period,
		OrderCount: len(rows),
		Gross:      decimal.Zero,
		Commission: decimal.Zero,
		Net:        decimal.Zero,
		PaidOut:    decimal.Zero,
		Unpaid:     decimal.Zero,
		Rows:       rows,
	}
	for _, row := range rows {
		summary.Gross = summary.Gross.Add(row.GrossAmount)
		summary.Commission = summary.Commission.Add(row.CommissionAmount)
		summary.Net = summary.Net.Add(row.NetAmount)
		if row.IsPaidOut {
			summary.PaidOut = summary.PaidOut.Add(row.NetAmount)
		} else {
			summary.Unpaid = summary.Unpaid.Add(row.NetAmount)
		}
	}
	return summary, nil
}

func (s *service) VendorUnpaid(ctx context.Context, vendorID uuid.UUID) ([]PeriodTotal, error) {
	if vendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor id required")
	}
	rows, err := s.repo.ListUnpaidByVendor(ctx, vendorID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list unpaid earnings")
	}

	byPeriod := map[types.Period]*PeriodTotal{}
	for _, row := range rows {
		key := types.Period{Year: row.PeriodYear, Month: row.PeriodMonth}
		total, ok := byPeriod[key]
		if !ok {
			total = &PeriodTotal{Period: key, Net: decimal.Zero}
			byPeriod[key] = total
		}
		total.OrderCount++
		total.Net = total.Net.Add(row.NetAmount)
	}

	out := make([]PeriodTotal, 0, len(byPeriod))
	for _, total := range byPeriod {
		out = append(out, *total)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Period.Year != out[j].Period.Year {
			return out[i].Period.Year > out[j].Period.Year
		}
		return out[i].Period.Month > out[j].Period.Month
	})
	return out, nil
}

func (s *service) PlatformRevenue(ctx context.Context, period types.Period) (*RevenueReport, error) {
	if err := period.Validate(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, err.Error())
	}
	rows, err := s.repo.ListByPeriod(ctx, period)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list period earnings")
	}

	report := &RevenueReport{
		Period:         period,
		GMV:            decimal.Zero,
		Commission:     decimal.Zero,
		VendorEarnings: decimal.Zero,
		OrderCount:     len(rows),
	}
	vendors := map[uuid.UUID]struct{}{}
	for _, row := range rows {
		report.GMV = report.GMV.Add(row.GrossAmount)
		report.Commission = report.Commission.Add(row.CommissionAmount)
		report.VendorEarnings = report.VendorEarnings.Add(row.NetAmount)
		vendors[row.VendorID] = struct{}{}
	}
	report.UniqueVendors = len(vendors)
	return report, nil
}
