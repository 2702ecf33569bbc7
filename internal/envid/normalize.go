package envid

import "strings"

const (
	PointHazard      = "point-hazard"
	PointHazardDense = "point-hazard-dense"
)

// Normalize canonicalizes environment names and gym-style aliases.
func Normalize(name string) string {
	normalized := strings.TrimSpace(strings.ToLower(name))
	normalized = strings.ReplaceAll(normalized, "_", "-")
	normalized = strings.ReplaceAll(normalized, " ", "-")
	normalized = strings.Trim(normalized, "-")
	if normalized == "" {
		return ""
	}
	if canonical, ok := normalizeKnownAlias(normalized); ok {
		return canonical
	}
	return normalized
}

func normalizeKnownAlias(normalized string) (string, bool) {
	for _, candidate := range aliasCandidates(normalized) {
		if canonical, ok := canonicalEnvName(candidate); ok {
			return canonical, true
		}
	}
	return "", false
}

func aliasCandidates(normalized string) []string {
	candidate := strings.TrimPrefix(normalized, "safety-")
	if candidate == normalized {
		candidate = strings.TrimPrefix(candidate, "safety")
	}
	candidate = strings.Trim(candidate, "-")

	candidates := []string{normalized}
	if candidate != "" && candidate != normalized {
		candidates = append(candidates, candidate)
	}

	trimmedCandidate := trimVersionSuffix(candidate)
	if trimmedCandidate != "" && trimmedCandidate != candidate {
		candidates = append(candidates, trimmedCandidate)
	}

	trimmedNormalized := trimVersionSuffix(normalized)
	if trimmedNormalized != "" &&
		trimmedNormalized != normalized &&
		trimmedNormalized != candidate &&
		trimmedNormalized != trimmedCandidate {
		candidates = append(candidates, trimmedNormalized)
	}
	return candidates
}

// trimVersionSuffix strips gym registry suffixes such as "-v0" or "-v12".
func trimVersionSuffix(value string) string {
	idx := strings.LastIndex(value, "-v")
	if idx <= 0 || idx+2 >= len(value) {
		return value
	}
	for _, r := range value[idx+2:] {
		if r < '0' || r > '9' {
			return value
		}
	}
	return value[:idx]
}

func canonicalEnvName(alias string) (string, bool) {
	switch alias {
	case PointHazard, "point-hazard1", "point-hazard-1":
		return PointHazard, true
	case PointHazardDense, "point-hazard2", "point-hazard-2":
		return PointHazardDense, true
	}

	compact := strings.ReplaceAll(alias, "-", "")
	switch compact {
	case "pointhazard", "pointhazard1", "ph":
		return PointHazard, true
	case "pointhazarddense", "pointhazard2", "phd":
		return PointHazardDense, true
	default:
		return "", false
	}
}
