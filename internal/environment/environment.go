// Package environment detects whether the process has persistent local
// storage available. Hosted platforms give ephemeral filesystems, so the
// default acquisition strategy flips to fetch-first with a Redis-backed
// cache there. Detection only picks a default; both strategies stay
// reachable through configuration regardless of the result.
package environment

import (
	"fmt"
	"os"
)

// Strategy is the acquisition strategy hint derived from the environment.
type Strategy string

const (
	// StrategyLocal prefers the persisted cache before fetching upstream.
	StrategyLocal Strategy = "local"
	// StrategyCloud prefers a fresh fetch, falling back to cache on failure.
	StrategyCloud Strategy = "cloud"
)

// cloudMarkers are environment variables set by managed hosting platforms
// with ephemeral filesystems.
var cloudMarkers = []string{
	"RENDER",
	"STREAMLIT_SHARING",
	"DYNO",
}

// Detect inspects the process environment and returns the default strategy.
// Pure read, no side effects.
func Detect() Strategy {
	for _, marker := range cloudMarkers {
		if os.Getenv(marker) != "" {
			return StrategyCloud
		}
	}

	return StrategyLocal
}

// Parse converts a configuration override string into a Strategy.
// The empty string means "no override, use Detect()".
func Parse(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyLocal, StrategyCloud:
		return Strategy(s), nil
	case "":
		return "", fmt.Errorf("empty strategy")
	default:
		return "", fmt.Errorf("unknown strategy %q (want %q or %q)", s, StrategyLocal, StrategyCloud)
	}
}
