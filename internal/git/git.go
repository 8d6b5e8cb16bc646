package git

import (
	"fmt"
	"os/exec"
	"strings"
)

// Exposure describes how a wallet file relates to the enclosing git repository.
type Exposure struct {
	IsRepo  bool
	Path    string
	Tracked bool
	Ignored bool
}

// IsGitRepo checks if the working directory is inside a git repository
func IsGitRepo(workDir string) bool {
	cmd := exec.Command("git", "rev-parse", "--is-inside-work-tree")
	cmd.Dir = workDir
	return cmd.Run() == nil
}

// IsTracked checks if a file is tracked by git
func IsTracked(workDir, path string) bool {
	cmd := exec.Command("git", "ls-files", "--", path)
	cmd.Dir = workDir
	output, err := cmd.Output()
	if err != nil {
		return false
	}
	return len(strings.TrimSpace(string(output))) > 0
}

// IsIgnored checks if a file is ignored by git (handles all .gitignore files)
func IsIgnored(workDir, path string) bool {
	cmd := exec.Command("git", "check-ignore", "-q", "--", path)
	cmd.Dir = workDir
	// git check-ignore returns exit code 0 if file is ignored
	return cmd.Run() == nil
}

// CheckWalletFile reports the git exposure of path relative to workDir.
func CheckWalletFile(workDir, path string) *Exposure {
	e := &Exposure{Path: path}
	if !IsGitRepo(workDir) {
		return e
	}
	e.IsRepo = true
	e.Tracked = IsTracked(workDir, path)
	e.Ignored = IsIgnored(workDir, path)
	return e
}

// Format renders warnings for display. encrypted softens a tracked wallet
// from an error to a warning. It returns "" outside a repository.
func (e *Exposure) Format(encrypted bool) string {
	if !e.IsRepo {
		return ""
	}

	var b strings.Builder
	b.WriteString("\nGit:\n")
	switch {
	case e.Tracked && !encrypted:
		fmt.Fprintf(&b, "   error: plaintext wallet %s is tracked by git (run: git rm --cached %s)\n", e.Path, e.Path)
	case e.Tracked:
		fmt.Fprintf(&b, "   warning: %s is tracked by git; anyone with the repository can guess passphrases offline\n", e.Path)
	case !e.Ignored:
		fmt.Fprintf(&b, "   warning: %s not in .gitignore (add to .gitignore)\n", e.Path)
	default:
		fmt.Fprintf(&b, "   ok: %s is ignored by git\n", e.Path)
	}
	return b.String()
}
