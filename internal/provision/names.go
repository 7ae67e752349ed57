package provision

import (
	"slices"
	"strings"
)

// normalizeLogin returns the canonical form of a github login, logins are
// case-insensitive.
func normalizeLogin(login string) string {
	return strings.ToLower(strings.TrimSpace(login))
}

// normalizeMembers returns the normalized, deduplicated and sorted member
// identities. Empty identities are removed.
func normalizeMembers(members []string) []string {
	result := make([]string, 0, len(members))

	for _, m := range members {
		m = normalizeLogin(m)
		if m == "" {
			continue
		}

		result = append(result, m)
	}

	slices.Sort(result)

	return slices.Compact(result)
}

func (e *Engine) teamName(stage string, members []string) string {
	return e.cfg.TeamPrefix + stage + "_" + strings.Join(members, "_")
}

func (e *Engine) repoName(stage string, members []string) string {
	return e.cfg.RepoPrefix + stage + "_" + strings.Join(members, "_")
}

func lockKey(org, teamName string) string {
	return org + "/" + teamName
}
