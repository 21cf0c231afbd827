package engine

import (
	"fmt"

	"github.com/pengelbrecht/weft/internal/git"
)

// Strategy is the policy governing how a failed merge is resolved.
type Strategy string

const (
	// StrategyAgent presents the conflicted files to the agent with an
	// instruction to reconcile both sides in place.
	StrategyAgent Strategy = "agent"

	// StrategyAbort aborts the merge, discards the workspace, and
	// re-runs the item sequentially against the updated base line.
	StrategyAbort Strategy = "abort"

	// StrategyTheirs biases the merge toward the incoming workspace
	// side. A conflict that still surfaces is unresolved and fatal.
	StrategyTheirs Strategy = "theirs"

	// StrategyOurs biases the merge toward the base-line side. A
	// conflict that still surfaces is unresolved and fatal.
	StrategyOurs Strategy = "ours"
)

// ParseStrategy validates a conflict strategy name. Empty defaults to
// abort.
func ParseStrategy(name string) (Strategy, error) {
	switch Strategy(name) {
	case "":
		return StrategyAbort, nil
	case StrategyAgent, StrategyAbort, StrategyTheirs, StrategyOurs:
		return Strategy(name), nil
	default:
		return "", fmt.Errorf("unknown conflict strategy %q", name)
	}
}

// bias returns the merge-side preference passed to git up front.
func (s Strategy) bias() git.MergeBias {
	switch s {
	case StrategyTheirs:
		return git.BiasIncoming
	case StrategyOurs:
		return git.BiasBase
	default:
		return git.BiasNone
	}
}
