// Package core holds cross-cutting primitives shared by every layer.
package core

import "strings"

// Environment is the deployment tier the service runs in. It gates logging
// verbosity; nothing else branches on it.
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Testing     Environment = "testing"
	Production  Environment = "production"
)

func (e Environment) String() string {
	return string(e)
}

// IsProduction reports whether the tier is production.
func (e Environment) IsProduction() bool {
	return e == Production
}

// ParseEnvironment maps a config value onto a known tier, case-insensitively.
// Anything unrecognised becomes Development so a typo in ENVIRONMENT yields
// verbose logs rather than a startup failure.
func ParseEnvironment(v string) Environment {
	switch e := Environment(strings.ToLower(strings.TrimSpace(v))); e {
	case Production, Staging, Testing:
		return e
	default:
		return Development
	}
}
