package contract

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func baseContract() TaskContract {
	return TaskContract{
		Task:        TaskSpec{Input: map[string]any{}},
		Constraints: Constraints{},
		IssuedAt:    "2026-01-01T00:00:00Z",
	}
}

func TestScreenTaskFlagsExcessivePermissions(t *testing.T) {
	c := baseContract()
	perms := make([]any, 11)
	for i := range perms {
		perms[i] = "perm"
	}
	c.Task.Input["permissions"] = perms

	warnings := ScreenTask(c)
	assert.Contains(t, warnings, "excessive permissions requested")
}

func TestScreenTaskFlagsIrreversibleOpenEndedAutonomy(t *testing.T) {
	c := baseContract()
	c.Task.Input["reversible"] = false
	c.Task.Input["autonomyLevel"] = "open_ended"

	warnings := ScreenTask(c)
	assert.Contains(t, warnings, "irreversible task with open-ended autonomy: high risk")
}

func TestScreenTaskFlagsHighSensitivityLowVerifiability(t *testing.T) {
	c := baseContract()
	c.Task.Input["contextSensitivity"] = 0.9
	c.Task.Input["verifiability"] = 0.1

	warnings := ScreenTask(c)
	assert.Contains(t, warnings, "high context sensitivity with low verifiability: potential exfiltration vector")
}

func TestScreenTaskFlagsTightDeadline(t *testing.T) {
	c := baseContract()
	c.Task.Input["complexity"] = 10.0
	c.Constraints.Deadline = "2026-01-01T00:05:00Z" // five minutes for a complexity-10 task

	warnings := ScreenTask(c)
	assert.Contains(t, warnings, "deadline too tight for complexity: potential pressure tactic")
}

func TestScreenTaskNoWarningsForBenignTask(t *testing.T) {
	c := baseContract()
	c.Task.Input["reversible"] = true
	c.Task.Input["complexity"] = 2.0
	c.Constraints.Deadline = "2026-03-01T00:00:00Z"

	assert.Empty(t, ScreenTask(c))
}
