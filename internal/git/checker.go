// Package git guards generated key files against being committed.
package git

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Checker inspects the Git repository (if any) that contains a directory.
type Checker struct {
	dir string
}

// NewChecker creates a checker rooted at dir.
func NewChecker(dir string) *Checker {
	return &Checker{dir: dir}
}

func (c *Checker) git(args ...string) *exec.Cmd {
	cmd := exec.Command("git", args...)
	cmd.Dir = c.dir
	return cmd
}

// IsGitRepository checks if the directory is within a Git repository.
// A missing git binary reports false, nil.
func (c *Checker) IsGitRepository() (bool, error) {
	if err := c.git("rev-parse", "--git-dir").Run(); err != nil {
		// Not in a Git repository, or no git
		return false, nil
	}
	return true, nil
}

// IsIgnored reports whether path (relative to the directory) is excluded by
// the repository's ignore rules.
func (c *Checker) IsIgnored(path string) (bool, error) {
	err := c.git("check-ignore", "-q", path).Run()
	if err == nil {
		return true, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
		return false, nil
	}
	return false, fmt.Errorf("failed to check ignore rules for %s: %w", path, err)
}

// TrackedFiles returns the files under path that are already in the index.
func (c *Checker) TrackedFiles(path string) ([]string, error) {
	output, err := c.git("ls-files", "--", path).Output()
	if err != nil {
		return nil, fmt.Errorf("failed to list tracked files: %w", err)
	}

	var files []string
	for _, line := range strings.Split(strings.TrimSpace(string(output)), "\n") {
		if line != "" {
			files = append(files, line)
		}
	}
	return files, nil
}

// KeyExposure describes how secret files under a path could reach a commit.
// The zero value means they are safe or there is no repository.
type KeyExposure struct {
	NotIgnored bool
	Tracked    []string
}

// Exposed reports whether any risk was found.
func (k KeyExposure) Exposed() bool {
	return k.NotIgnored || len(k.Tracked) > 0
}

// CheckKeys inspects path for exposure to commits.
func (c *Checker) CheckKeys(path string) (KeyExposure, error) {
	isRepo, err := c.IsGitRepository()
	if err != nil || !isRepo {
		return KeyExposure{}, err
	}

	ignored, err := c.IsIgnored(path)
	if err != nil {
		return KeyExposure{}, err
	}
	tracked, err := c.TrackedFiles(path)
	if err != nil {
		return KeyExposure{}, err
	}
	return KeyExposure{NotIgnored: !ignored, Tracked: tracked}, nil
}
