package contract

import (
	"time"
)

// ScreenTask inspects a contract's task description for red flags
// before a delegator signs it — excessive permission asks, irreversible
// actions paired with open-ended autonomy, high-sensitivity tasks with
// little verifiability, and deadlines too tight for their stated
// complexity. These are advisory: nothing here blocks CreateContract,
// and the dispatcher never consults them.
func ScreenTask(c TaskContract) []string {
	var warnings []string
	input := c.Task.Input

	if perms, ok := input["permissions"].([]any); ok && len(perms) > 10 {
		warnings = append(warnings, "excessive permissions requested")
	}

	reversible, hasReversible := input["reversible"].(bool)
	autonomy, _ := input["autonomyLevel"].(string)
	if hasReversible && !reversible && autonomy == "open_ended" {
		warnings = append(warnings, "irreversible task with open-ended autonomy: high risk")
	}

	sensitivity, hasSensitivity := numAny(input["contextSensitivity"])
	verifiability, hasVerifiability := numAny(input["verifiability"])
	if hasSensitivity && hasVerifiability && sensitivity > 0.8 && verifiability < 0.3 {
		warnings = append(warnings, "high context sensitivity with low verifiability: potential exfiltration vector")
	}

	complexity, hasComplexity := numAny(input["complexity"])
	if hasComplexity && complexity > 7 && c.Constraints.Deadline != "" {
		deadline, err := time.Parse(time.RFC3339, c.Constraints.Deadline)
		issued, issuedErr := time.Parse(time.RFC3339, c.IssuedAt)
		if err == nil && issuedErr == nil {
			remaining := deadline.Sub(issued)
			if remaining < time.Duration(complexity)*5*time.Minute {
				warnings = append(warnings, "deadline too tight for complexity: potential pressure tactic")
			}
		}
	}

	return warnings
}

func numAny(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
