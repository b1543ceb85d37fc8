package executor

import (
	"fmt"
	"strings"
)

// Policy decides what a batch does after a command fails.
type Policy string

const (
	// PolicyStop halts at the first failure. Earlier commands stay applied.
	PolicyStop Policy = "stop"

	// PolicyContinue records the failure and runs the remaining commands.
	PolicyContinue Policy = "continue"

	// PolicyAtomic halts at the first failure and restores every subject the
	// batch touched to the state it had before the batch.
	PolicyAtomic Policy = "atomic"
)

// ParsePolicy accepts a policy name. Empty selects PolicyStop.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyStop:
		return PolicyStop, nil
	case PolicyContinue:
		return PolicyContinue, nil
	case PolicyAtomic:
		return PolicyAtomic, nil
	default:
		return "", fmt.Errorf("unknown policy %q (valid: stop, continue, atomic)", s)
	}
}

func (p Policy) String() string { return string(p) }
