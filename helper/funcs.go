package helper

// Clamp bounds value to the inclusive range [min, max]. The caller is
// responsible for ensuring min <= max.
func Clamp(value, min, max int) int {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

// StringInList checks whether a string is present within a list of strings.
func StringInList(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

// ParseMetaConfig reviews a map of provider configuration parameters and
// returns the list of required keys which are missing from it.
func ParseMetaConfig(meta map[string]string, requiredKeys []string) (missing []string) {
	for _, key := range requiredKeys {
		if _, ok := meta[key]; !ok {
			missing = append(missing, key)
		}
	}
	return missing
}
