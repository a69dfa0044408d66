package masking

import (
	"fmt"
	"sort"
	"strings"
)

const maskToken = "****"

// MaskIdentifier redacts a lookup identifier (PAN, UPI handle, account or
// registration number) while keeping a short suffix so officers can match
// records against what they typed.
func MaskIdentifier(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}

	if at := strings.Index(trimmed, "@"); at > 0 {
		// UPI-style handle: mask the local part, keep the PSP suffix.
		return maskTail(trimmed[:at]) + trimmed[at:]
	}

	return maskTail(trimmed)
}

func maskTail(value string) string {
	if len(value) <= 4 {
		return maskToken
	}
	return maskToken + value[len(value)-4:]
}

// Summarize renders a one-line display summary of a lookup input with
// every identifier masked. The raw payload is persisted separately for
// compliance review.
func Summarize(input map[string]any) string {
	if len(input) == 0 {
		return ""
	}

	keys := make([]string, 0, len(input))
	for key := range input {
		if strings.TrimSpace(key) == "" {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		switch cast := input[key].(type) {
		case string:
			parts = append(parts, key+"="+MaskIdentifier(cast))
		default:
			parts = append(parts, key+"="+fmt.Sprintf("%v", cast))
		}
	}
	return strings.Join(parts, " ")
}
