package snapshot

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// EnsureClone makes sure a git checkout exists at dir, cloning repoURL if
// it is missing, then syncs it to the remote's default branch: prefer the
// remote HEAD symref when known, falling back to main then master (§4.D,
// §4.E step 1). Shared by the snapshot builder and the chat lifecycle
// supervisor, which both need this same clone-then-sync behavior.
func EnsureClone(ctx context.Context, dir, repoURL, preferredBranch string) (branch string, err error) {
	if _, statErr := os.Stat(dir + "/.git"); statErr != nil {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("create workspace dir: %w", err)
		}
		if err := removeThenClone(ctx, dir, repoURL); err != nil {
			return "", err
		}
	}

	branch, err = resolveDefaultBranch(ctx, dir, preferredBranch)
	if err != nil {
		return "", err
	}

	if out, err := runGit(ctx, dir, "fetch", "origin", branch); err != nil {
		return "", fmt.Errorf("git fetch: %w: %s", err, out)
	}
	if out, err := runGit(ctx, dir, "checkout", branch); err != nil {
		return "", fmt.Errorf("git checkout: %w: %s", err, out)
	}
	if out, err := runGit(ctx, dir, "reset", "--hard", "origin/"+branch); err != nil {
		return "", fmt.Errorf("git reset: %w: %s", err, out)
	}
	return branch, nil
}

func removeThenClone(ctx context.Context, dir, repoURL string) error {
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("clear stale workspace: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	cmd := exec.CommandContext(ctx, "git", "clone", repoURL, dir)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("git clone: %w: %s", err, out)
	}
	return nil
}

// resolveDefaultBranch asks the remote for its HEAD symref first, since
// that always reflects the repository's actual default; only when the
// remote doesn't report one does it fall back to the caller-supplied
// branch, then main, then master.
func resolveDefaultBranch(ctx context.Context, dir, preferred string) (string, error) {
	if out, err := runGit(ctx, dir, "remote", "show", "origin"); err == nil {
		for _, line := range strings.Split(out, "\n") {
			line = strings.TrimSpace(line)
			if strings.HasPrefix(line, "HEAD branch:") {
				branch := strings.TrimSpace(strings.TrimPrefix(line, "HEAD branch:"))
				if branch != "" && branch != "(unknown)" {
					return branch, nil
				}
			}
		}
	}

	if preferred != "" {
		return preferred, nil
	}

	for _, candidate := range []string{"main", "master"} {
		if _, err := runGit(ctx, dir, "ls-remote", "--exit-code", "--heads", "origin", candidate); err == nil {
			return candidate, nil
		}
	}
	return "main", nil
}

func runGit(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	return string(out), err
}
