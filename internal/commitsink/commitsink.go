// Package commitsink implements capability.CommitSink: a signature tying a
// stored record to the code state that produced it. Grounded on beads'
// GetCurrentCommitHash, generalized with a documented fallback for when no
// git repository is available.
package commitsink

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os/exec"
	"strings"
	"time"

	"github.com/cludeai/cortex/internal/capability"
)

// gitExec is a function hook so tests can avoid shelling out.
var gitExec = defaultGitExec

func defaultGitExec(ctx context.Context, dir string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	return cmd.Output()
}

// GitCommitSink reads the current HEAD commit hash of Dir as the record
// signature. When git is unavailable or Dir is not a repository, Signature
// falls back to a SHA-256 hash of the current wall-clock minute, a
// documented degraded signature: it proves co-temporal provenance rather
// than exact code-state provenance, and is clearly distinguishable by its
// "nogit:" prefix.
type GitCommitSink struct {
	Dir   string
	Clock capability.Clock
}

func (g *GitCommitSink) Signature(ctx context.Context) (string, error) {
	out, err := gitExec(ctx, g.Dir, "rev-parse", "HEAD")
	if err == nil {
		sha := strings.TrimSpace(string(out))
		if sha != "" {
			return sha, nil
		}
	}
	return g.fallback(), nil
}

func (g *GitCommitSink) fallback() string {
	now := time.Now().UTC()
	if g.Clock != nil {
		now = g.Clock.Now()
	}
	sum := sha256.Sum256([]byte(now.Truncate(time.Minute).Format(time.RFC3339)))
	return "nogit:" + hex.EncodeToString(sum[:])[:12]
}

var _ capability.CommitSink = (*GitCommitSink)(nil)
