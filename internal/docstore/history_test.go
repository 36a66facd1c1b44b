package docstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
)

func TestHistory(t *testing.T) {
	t.Parallel()

	t.Run("disabled", func(t *testing.T) {
		t.Parallel()
		s := setupStore(t)
		if _, err := s.History(t.Context(), "u1", 0); !errors.Is(err, ErrHistoryDisabled) {
			t.Errorf("History() error = %v, want ErrHistoryDisabled", err)
		}
		if _, err := s.LoadRevision(t.Context(), "u1", "HEAD"); !errors.Is(err, ErrHistoryDisabled) {
			t.Errorf("LoadRevision() error = %v, want ErrHistoryDisabled", err)
		}
		if _, err := os.Stat(filepath.Join(s.Dir(), ".git")); !os.IsNotExist(err) {
			t.Errorf(".git created without history: %v", err)
		}
	})

	t.Run("records saves", func(t *testing.T) {
		t.Parallel()
		s := setupStore(t, WithHistory("Test User", "test@example.com"))
		if _, err := os.Stat(filepath.Join(s.Dir(), ".git")); err != nil {
			t.Fatalf(".git directory not created: %v", err)
		}
		revs, err := s.History(t.Context(), "u1", 10)
		if err != nil {
			t.Fatalf("History() on empty repo error = %v", err)
		}
		if len(revs) != 0 {
			t.Errorf("History() on empty repo = %v, want none", revs)
		}

		v1 := map[string]any{"v": json.Number("1")}
		v2 := map[string]any{"v": json.Number("2")}
		mustSave(t, s, "u1", v1)
		mustSave(t, s, "u1", v2)
		// Identical content does not create a revision.
		mustSave(t, s, "u1", v2)
		mustSave(t, s, "other", v1)

		revs, err = s.History(t.Context(), "u1", 0)
		if err != nil {
			t.Fatalf("History() error = %v", err)
		}
		if len(revs) != 2 {
			t.Fatalf("History() returned %d revisions, want 2: %v", len(revs), revs)
		}
		for _, r := range revs {
			if r.Message != "save u1" || r.Author != "Test User" || r.Hash == "" || r.When.IsZero() {
				t.Errorf("unexpected revision %+v", r)
			}
		}
		got, err := s.LoadRevision(t.Context(), "u1", revs[1].Hash)
		if err != nil {
			t.Fatalf("LoadRevision() error = %v", err)
		}
		if !reflect.DeepEqual(got, v1) {
			t.Errorf("LoadRevision(oldest) = %v, want %v", got, v1)
		}
		got, err = s.LoadRevision(t.Context(), "u1", revs[0].Hash)
		if err != nil {
			t.Fatalf("LoadRevision() error = %v", err)
		}
		if !reflect.DeepEqual(got, v2) {
			t.Errorf("LoadRevision(newest) = %v, want %v", got, v2)
		}

		head, err := s.LoadRevision(t.Context(), "other", "HEAD")
		if err != nil {
			t.Fatalf("LoadRevision(HEAD) error = %v", err)
		}
		if !reflect.DeepEqual(head, v1) {
			t.Errorf("LoadRevision(HEAD) = %v, want %v", head, v1)
		}

		limited, err := s.History(t.Context(), "u1", 1)
		if err != nil {
			t.Fatal(err)
		}
		if len(limited) != 1 || limited[0].Hash != revs[0].Hash {
			t.Errorf("History(n=1) = %v, want newest only", limited)
		}
	})

	t.Run("reopen existing repository", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		s, err := New(dir, nil, WithHistory("A", "a@example.com"))
		if err != nil {
			t.Fatal(err)
		}
		mustSave(t, s, "u1", "first")
		_ = s.Close()

		s, err = New(dir, nil, WithHistory("A", "a@example.com"))
		if err != nil {
			t.Fatalf("New() on existing repo error = %v", err)
		}
		defer s.Close()
		mustSave(t, s, "u1", "second")
		revs, err := s.History(t.Context(), "u1", 0)
		if err != nil {
			t.Fatal(err)
		}
		if len(revs) != 2 {
			t.Errorf("History() returned %d revisions, want 2", len(revs))
		}
	})

	t.Run("every concurrent save gets a revision", func(t *testing.T) {
		t.Parallel()
		s := setupStore(t, WithHistory("A", "a@example.com"))
		const n = 5
		var wg sync.WaitGroup
		for i := range n {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := s.Save(t.Context(), "u1", map[string]any{"i": i}); err != nil {
					t.Errorf("Save(%d) error = %v", i, err)
				}
			}()
		}
		wg.Wait()

		revs, err := s.History(t.Context(), "u1", 0)
		if err != nil {
			t.Fatal(err)
		}
		if len(revs) != n {
			t.Fatalf("History() returned %d revisions, want %d", len(revs), n)
		}
		seen := map[string]bool{}
		for _, r := range revs {
			doc, err := s.LoadRevision(t.Context(), "u1", r.Hash)
			if err != nil {
				t.Fatalf("LoadRevision(%s) error = %v", r.Hash, err)
			}
			seen[fmt.Sprint(doc)] = true
		}
		if len(seen) != n {
			t.Errorf("revisions hold %d distinct documents, want %d: %v", len(seen), n, seen)
		}
		if head, latest := mustLoad(t, s, "u1"), mustLoadRevision(t, s, "u1", revs[0].Hash); !reflect.DeepEqual(head, latest) {
			t.Errorf("newest revision = %v, current document = %v", latest, head)
		}
	})

	t.Run("broken repository is reported", func(t *testing.T) {
		t.Parallel()
		s := setupStore(t, WithHistory("A", "a@example.com"))
		mustSave(t, s, "u1", "x")
		// Detach HEAD onto a commit that does not exist.
		writeFile(t, filepath.Join(s.Dir(), ".git", "HEAD"), "0123456789012345678901234567890123456789\n")
		if revs, err := s.History(t.Context(), "u1", 0); err == nil {
			t.Errorf("History() = %v, want an error", revs)
		}
	})

	t.Run("unknown revision", func(t *testing.T) {
		t.Parallel()
		s := setupStore(t, WithHistory("A", "a@example.com"))
		mustSave(t, s, "u1", "x")
		if _, err := s.LoadRevision(t.Context(), "u1", "0123456789012345678901234567890123456789"); err == nil {
			t.Error("LoadRevision() of an unknown commit should fail")
		}
	})
}

func mustLoadRevision(t *testing.T, s *Store, key, hash string) any {
	t.Helper()
	doc, err := s.LoadRevision(t.Context(), key, hash)
	if err != nil {
		t.Fatalf("LoadRevision(%q, %s) error = %v", key, hash, err)
	}
	return doc
}
