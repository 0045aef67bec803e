package enums

import "fmt"

// MetricType labels rows in the activity log.
type MetricType string

const (
	MetricOrderCreated       MetricType = "ORDER_CREATED"
	MetricOrderPaid          MetricType = "ORDER_PAID"
	MetricOrderCompleted     MetricType = "ORDER_COMPLETED"
	MetricOrderCancelled     MetricType = "ORDER_CANCELLED"
	MetricEarningsCalculated MetricType = "EARNINGS_CALCULATED"
	MetricPayoutRequested    MetricType = "PAYOUT_REQUESTED"
	MetricPayoutCompleted    MetricType = "PAYOUT_COMPLETED"
)

var validMetricTypes = []MetricType{
	MetricOrderCreated,
	MetricOrderPaid,
	MetricOrderCompleted,
	MetricOrderCancelled,
	MetricEarningsCalculated,
	MetricPayoutRequested,
	MetricPayoutCompleted,
}

func (m MetricType) String() string {
	return string(m)
}

// IsValid reports whether the value is a known MetricType.
func (m MetricType) IsValid() bool {
	for _, candidate := range validMetricTypes {
		if candidate == m {
			return true
		}
	}
	return false
}

// ParseMetricType converts raw input into a MetricType.
func ParseMetricType(value string) (MetricType, error) {
	for _, candidate := range validMetricTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid metric type %q", value)
}
