// Package gitsync commits vault changes after mutating sync passes so every
// document edit made by the engine stays recoverable from history.
package gitsync

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport/ssh"
	"github.com/rs/zerolog"

	"github.com/mklimuk/task-pilot/pkg/logging"
)

// Manager commits and optionally pushes the vault repository.
type Manager struct {
	RepoPath string
	Push     bool
	log      zerolog.Logger
}

// NewManager creates a Manager for the vault repository.
func NewManager(repoPath string, push bool) *Manager {
	return &Manager{RepoPath: repoPath, Push: push, log: logging.Component("git")}
}

// Commit stages every change and commits. A clean worktree is not an error.
func (m *Manager) Commit(message string) error {
	r, err := git.PlainOpen(m.RepoPath)
	if err != nil {
		return fmt.Errorf("failed to open repo: %w", err)
	}

	w, err := r.Worktree()
	if err != nil {
		return fmt.Errorf("failed to get worktree: %w", err)
	}

	status, err := w.Status()
	if err != nil {
		return fmt.Errorf("failed to get status: %w", err)
	}
	if status.IsClean() {
		return nil
	}

	if _, err := w.Add("."); err != nil {
		return fmt.Errorf("failed to add changes: %w", err)
	}

	if message == "" {
		message = fmt.Sprintf("task sync: %s", time.Now().Format(time.RFC3339))
	}

	_, err = w.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  "Task Pilot",
			Email: "pilot@tasks.local",
			When:  time.Now(),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}

	if !m.Push {
		return nil
	}
	return m.push(r)
}

func (m *Manager) push(r *git.Repository) error {
	// go-git needs explicit auth over SSH; try the default key, then fall
	// back to an unauthenticated push.
	home, _ := os.UserHomeDir()
	sshKeyPath := fmt.Sprintf("%s/.ssh/id_rsa", home)

	var err error
	publicKeys, keyErr := ssh.NewPublicKeysFromFile("git", sshKeyPath, "")
	if keyErr != nil {
		m.log.Warn().Err(keyErr).Msg("could not load SSH key, pushing without explicit auth")
		err = r.Push(&git.PushOptions{})
	} else {
		err = r.Push(&git.PushOptions{Auth: publicKeys})
	}

	if err != nil {
		if errors.Is(err, git.NoErrAlreadyUpToDate) {
			return nil
		}
		return fmt.Errorf("failed to push: %w", err)
	}
	return nil
}
