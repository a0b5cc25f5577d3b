package auth

import "strings"

// Gate is the single source of truth for which identifiers may use the vault.
type Gate struct {
	allowed map[string]struct{}
}

// NewGate builds a Gate from the configured whitelist. Blank entries are ignored.
func NewGate(identifiers []string) *Gate {
	allowed := make(map[string]struct{}, len(identifiers))
	for _, identifier := range identifiers {
		normalized := NormalizeIdentifier(identifier)
		if normalized == "" {
			continue
		}
		allowed[normalized] = struct{}{}
	}
	return &Gate{allowed: allowed}
}

// IsWhitelisted reports case-insensitive membership. An empty Gate admits nobody.
func (g *Gate) IsWhitelisted(identifier string) bool {
	if g == nil {
		return false
	}
	normalized := NormalizeIdentifier(identifier)
	if normalized == "" {
		return false
	}
	_, ok := g.allowed[normalized]
	return ok
}

// Size returns the number of distinct whitelisted identifiers.
func (g *Gate) Size() int {
	if g == nil {
		return 0
	}
	return len(g.allowed)
}

// NormalizeIdentifier trims and lowercases an email-like identifier.
func NormalizeIdentifier(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}
