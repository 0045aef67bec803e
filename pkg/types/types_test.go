package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPeriodOfUsesLocation(t *testing.T) {
	almaty, err := time.LoadLocation("Asia/Almaty")
	require.NoError(t, err)

	// 20:30 UTC on the last day of January is already February in Almaty.
	ts := time.Date(2025, time.January, 31, 20, 30, 0, 0, time.UTC)

	require.Equal(t, Period{Year: 2025, Month: 1}, PeriodOf(ts, time.UTC))
	require.Equal(t, Period{Year: 2025, Month: 2}, PeriodOf(ts, almaty))
	require.Equal(t, Period{Year: 2025, Month: 1}, PeriodOf(ts, nil))
}

func TestPeriodPreviousWrapsYear(t *testing.T) {
	require.Equal(t, Period{Year: 2024, Month: 12}, Period{Year: 2025, Month: 1}.Previous())
	require.Equal(t, Period{Year: 2025, Month: 5}, Period{Year: 2025, Month: 6}.Previous())
}

func TestPeriodValidate(t *testing.T) {
	require.NoError(t, Period{Year: 2025, Month: 12}.Validate())
	require.Error(t, Period{Year: 2025, Month: 13}.Validate())
	require.Error(t, Period{Year: 1999, Month: 1}.Validate())
	require.Equal(t, "2025-03", Period{Year: 2025, Month: 3}.String())
}

func TestJSONMapRoundTripsThroughDriverValues(t *testing.T) {
	in := JSONMap{"source": "webhook", "portions": float64(2)}
	raw, err := in.Value()
	require.NoError(t, err)

	var out JSONMap
	require.NoError(t, out.Scan(raw))
	require.Equal(t, in, out)

	var fromBytes JSONMap
	require.NoError(t, fromBytes.Scan([]byte(`{"a":1}`)))
	require.Equal(t, float64(1), fromBytes["a"])

	require.Error(t, out.Scan(42))

	var empty JSONMap
	v, err := empty.Value()
	require.NoError(t, err)
	require.Nil(t, v)
}
