// Commits saved documents to a git repository rooted at the store directory.

package docstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// maxRevisions caps History results.
const maxRevisions = 1000

// Revision is one committed version of a document.
type Revision struct {
	Hash    string    `json:"hash"`
	Message string    `json:"message"`
	Author  string    `json:"author"`
	When    time.Time `json:"when"`
}

// history serializes all git operations on the repository.
type history struct {
	name  string
	email string

	mu   sync.Mutex
	repo *gogit.Repository
}

func openHistory(dir, name, email string) (*history, error) {
	repo, err := gogit.PlainOpen(dir)
	if err != nil {
		// Not a repo yet, initialize.
		repo, err = gogit.PlainInit(dir, false)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize git repo: %w", err)
		}
		cfg, err := repo.Config()
		if err != nil {
			return nil, fmt.Errorf("failed to read git config: %w", err)
		}
		cfg.User.Name = name
		cfg.User.Email = email
		if err := repo.SetConfig(cfg); err != nil {
			return nil, fmt.Errorf("failed to write git config: %w", err)
		}
	}
	return &history{name: name, email: email, repo: repo}, nil
}

// commit records the current content of file. It is a no-op when the file did
// not change since the last commit.
func (h *history) commit(_ context.Context, file, msg string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	w, err := h.repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to get worktree: %w", err)
	}
	blob, err := w.Add(file)
	if err != nil {
		return fmt.Errorf("failed to stage %s: %w", file, err)
	}
	if h.unchanged(file, blob) {
		return nil
	}
	sig := &object.Signature{Name: h.name, Email: h.email, When: time.Now()}
	if _, err = w.Commit(msg, &gogit.CommitOptions{Author: sig, Committer: sig}); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// unchanged reports whether HEAD already has blob as the content of file.
func (h *history) unchanged(file string, blob plumbing.Hash) bool {
	head, err := h.repo.Head()
	if err != nil {
		return false
	}
	c, err := h.repo.CommitObject(head.Hash())
	if err != nil {
		return false
	}
	f, err := c.File(file)
	if err != nil {
		return false
	}
	return f.Hash == blob
}

// log returns up to n commits touching file, newest first.
func (h *history) log(_ context.Context, file string, n int) ([]Revision, error) {
	if n <= 0 || n > maxRevisions {
		n = maxRevisions
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	iter, err := h.repo.Log(&gogit.LogOptions{FileName: &file})
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return nil, nil // no commits yet
		}
		return nil, fmt.Errorf("failed to read history of %s: %w", file, err)
	}
	defer iter.Close()

	var revs []Revision
	for range n {
		c, err := iter.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("failed to walk history: %w", err)
		}
		subject, _, _ := strings.Cut(c.Message, "\n")
		revs = append(revs, Revision{
			Hash:    c.Hash.String(),
			Message: subject,
			Author:  c.Author.Name,
			When:    c.Author.When,
		})
	}
	return revs, nil
}

// read returns the content of file at the given commit. hash may be "HEAD".
func (h *history) read(_ context.Context, hash, file string) ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := plumbing.NewHash(hash)
	if hash == "HEAD" {
		ref, err := h.repo.Head()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve HEAD: %w", err)
		}
		ch = ref.Hash()
	}
	c, err := h.repo.CommitObject(ch)
	if err != nil {
		return nil, fmt.Errorf("failed to get commit %s: %w", hash, err)
	}
	f, err := c.File(file)
	if err != nil {
		return nil, fmt.Errorf("failed to get %s at %s: %w", file, hash, err)
	}
	content, err := f.Contents()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s at %s: %w", file, hash, err)
	}
	return []byte(content), nil
}
