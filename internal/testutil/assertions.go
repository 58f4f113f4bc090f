package testutil

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// AssertTaskRan checks the log output within a HarnessResult to confirm that
// the node with the given id finished.
func AssertTaskRan(t *testing.T, result *HarnessResult, nodeID string) {
	t.Helper()
	require.True(t, taskLogged(result.Output, "Finished task", nodeID),
		"expected node '%s' to finish, logs:\n%s", nodeID, result.Output)
}

// AssertTaskNotRan confirms the node with the given id never started.
func AssertTaskNotRan(t *testing.T, result *HarnessResult, nodeID string) {
	t.Helper()
	require.False(t, taskLogged(result.Output, "Starting task", nodeID),
		"expected node '%s' not to start, logs:\n%s", nodeID, result.Output)
}

func taskLogged(output, msg, nodeID string) bool {
	for _, line := range strings.Split(output, "\n") {
		if !strings.Contains(line, msg) {
			continue
		}
		for _, field := range strings.Fields(line) {
			if field == "task="+nodeID {
				return true
			}
		}
	}
	return false
}
