package transform

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// keyDelimiter separates tuple fields before hashing so that ("ab","c") and
// ("a","bc") produce different keys.
const keyDelimiter = "|"

// SurrogateKey derives a stable dimension key from an ordered tuple of
// business-key values. Each value is coerced to its string form (nil becomes
// the empty string), joined with a fixed delimiter, and hashed. The result
// depends only on the inputs: no randomness, clock, or environment, so the
// same tuple yields the same key across runs and across pipeline instances.
func SurrogateKey(fields ...interface{}) string {
	parts := make([]string, len(fields))
	for i, f := range fields {
		if f == nil {
			parts[i] = ""
			continue
		}
		parts[i] = fmt.Sprintf("%v", f)
	}

	sum := sha256.Sum256([]byte(strings.Join(parts, keyDelimiter)))
	return hex.EncodeToString(sum[:])
}

// DateKey encodes a date as its 8-digit yyyymmdd integer, the surrogate key
// of the date dimension.
func DateKey(t time.Time) int {
	return t.Year()*10000 + int(t.Month())*100 + t.Day()
}
