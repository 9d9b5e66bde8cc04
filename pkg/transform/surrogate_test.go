package transform_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chanpulse/warehouse/pkg/transform"
)

func TestSurrogateKeyDeterminism(t *testing.T) {
	first := transform.SurrogateKey("CheMed")
	for i := 0; i < 100; i++ {
		require.Equal(t, first, transform.SurrogateKey("CheMed"))
	}
}

func TestSurrogateKeyDistinctInputs(t *testing.T) {
	require.NotEqual(t, transform.SurrogateKey("CheMed"), transform.SurrogateKey("chemed"))
	require.NotEqual(t, transform.SurrogateKey("CheMed"), transform.SurrogateKey("CheMed "))
	require.NotEqual(t, transform.SurrogateKey("a", "bc"), transform.SurrogateKey("ab", "c"))
}

func TestSurrogateKeyNilCoercion(t *testing.T) {
	require.Equal(t, transform.SurrogateKey(""), transform.SurrogateKey(nil))
	require.Equal(t, transform.SurrogateKey("x", ""), transform.SurrogateKey("x", nil))
}

func TestSurrogateKeyMixedTypes(t *testing.T) {
	// Numeric fields are coerced to their string form before hashing.
	require.Equal(t, transform.SurrogateKey("42"), transform.SurrogateKey(42))
}

func TestDateKey(t *testing.T) {
	tests := []struct {
		date     time.Time
		expected int
	}{
		{time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC), 20240115},
		{time.Date(2024, 12, 31, 23, 59, 59, 0, time.UTC), 20241231},
		{time.Date(2020, 2, 29, 0, 0, 0, 0, time.UTC), 20200229},
	}

	for _, tt := range tests {
		require.Equal(t, tt.expected, transform.DateKey(tt.date))
	}
}
