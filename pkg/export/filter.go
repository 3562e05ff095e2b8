package export

import "strings"

// FilterOut drops samples whose device matches any of the patterns.
// Supports wildcard patterns:
//   - "prefix*" matches devices starting with "prefix"
//   - "*suffix" matches devices ending with "suffix"
//   - "*contains*" matches devices containing "contains"
//   - "exact" matches devices exactly
func FilterOut(samples []Sample, patterns []string) []Sample {
	if len(patterns) == 0 {
		return samples
	}

	result := make([]Sample, 0, len(samples))
	for _, s := range samples {
		omit := false
		for _, pattern := range patterns {
			if matchesPattern(s.DeviceID, pattern) {
				omit = true
				break
			}
		}
		if !omit {
			result = append(result, s)
		}
	}
	return result
}

// matchesPattern checks if a device matches a wildcard pattern.
func matchesPattern(device, pattern string) bool {
	// No wildcard - exact match
	if !strings.Contains(pattern, "*") {
		return device == pattern
	}

	// *contains* - contains match
	if strings.HasPrefix(pattern, "*") && strings.HasSuffix(pattern, "*") {
		substr := strings.Trim(pattern, "*")
		return strings.Contains(device, substr)
	}

	// *suffix - ends with match
	if strings.HasPrefix(pattern, "*") {
		suffix := strings.TrimPrefix(pattern, "*")
		return strings.HasSuffix(device, suffix)
	}

	// prefix* - starts with match
	if strings.HasSuffix(pattern, "*") {
		prefix := strings.TrimSuffix(pattern, "*")
		return strings.HasPrefix(device, prefix)
	}

	return false
}
