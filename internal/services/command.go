package services

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// CommandRunner executes an external binary. Stage services accept a runner so
// tests can substitute stubs without spawning processes.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

// RunCommand is the production CommandRunner. It captures combined output and
// folds the trimmed tail into the returned error for diagnostics.
func RunCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return output, fmt.Errorf("%s: %w: %s", name, err, tailOf(output))
	}
	return output, nil
}

// BinaryMissing reports whether the named binary cannot be resolved on PATH.
// Used to split "tool missing" from "tool crashed" in user-facing messages.
func BinaryMissing(name string) bool {
	_, err := exec.LookPath(strings.TrimSpace(name))
	return err != nil
}

func tailOf(output []byte) string {
	text := strings.TrimSpace(string(output))
	const limit = 400
	if len(text) > limit {
		text = "..." + text[len(text)-limit:]
	}
	if text == "" {
		return "(no output)"
	}
	return text
}
