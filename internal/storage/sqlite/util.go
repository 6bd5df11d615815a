package sqlite

import (
	"encoding/json"

	"github.com/untoldecay/idse/internal/types"
)

// computeContentHash is a local alias kept so hash verification reads
// naturally at the storage layer.
func computeContentHash(content string) string {
	return types.ComputeContentHash(content)
}

// formatJSONStringArray serializes a string slice for TEXT JSON columns.
// A nil slice serializes as the empty array.
func formatJSONStringArray(values []string) string {
	if len(values) == 0 {
		return "[]"
	}
	data, err := json.Marshal(values)
	if err != nil {
		return "[]"
	}
	return string(data)
}

// parseJSONStringArray deserializes a TEXT JSON column into a string slice.
// Malformed data yields an empty slice rather than an error: these columns
// are bookkeeping, not invariants.
func parseJSONStringArray(data string) []string {
	if data == "" || data == "[]" {
		return nil
	}
	var values []string
	if err := json.Unmarshal([]byte(data), &values); err != nil {
		return nil
	}
	return values
}
