package update

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
)

// EnvGitSHA1 pins the baseline commit, for release-branch runs where HEAD
// is not the commit the baseline dump was built from.
const EnvGitSHA1 = "GIT_SHA1"

// HeadCommit returns the commit the working tree is at, honoring the
// GIT_SHA1 pin.
func HeadCommit(ctx context.Context, repoRoot string) (string, error) {
	if pinned := os.Getenv(EnvGitSHA1); pinned != "" {
		return pinned, nil
	}
	out, err := gitOutput(ctx, repoRoot, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// ChangedPacks diffs the working tree against baseCommit and returns the
// ids of packs with any changed file, sorted.
func ChangedPacks(ctx context.Context, repoRoot, baseCommit string) ([]string, error) {
	out, err := gitOutput(ctx, repoRoot, "diff", "--name-only", baseCommit)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	for _, line := range strings.Split(out, "\n") {
		if id := packOfPath(strings.TrimSpace(line)); id != "" {
			seen[id] = true
		}
	}
	packs := make([]string, 0, len(seen))
	for id := range seen {
		packs = append(packs, id)
	}
	sort.Strings(packs)
	return packs, nil
}

// packOfPath extracts the pack id from a repo-relative path, or "".
func packOfPath(path string) string {
	parts := strings.Split(path, "/")
	for i, part := range parts {
		if part == "Packs" && i+1 < len(parts) {
			return parts[i+1]
		}
	}
	return ""
}

func gitOutput(ctx context.Context, repoRoot string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", append([]string{"-C", repoRoot}, args...)...)
	out, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok && len(exitErr.Stderr) > 0 {
			return "", fmt.Errorf("git %s: %s", strings.Join(args, " "), strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
	}
	return string(out), nil
}
