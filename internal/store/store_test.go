package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestNew(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "nested", "session.db")

	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer s.Close()

	info, err := os.Stat(dbPath)
	if os.IsNotExist(err) {
		t.Fatal("Database file was not created")
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("Expected mode 0600, got %o", perm)
	}
	if err := s.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestGetSetDelete(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()
	ctx := context.Background()

	if _, err := s.Get(ctx, "token"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}

	if err := s.Set(ctx, "token", "abc"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := s.Set(ctx, "token", "def"); err != nil {
		t.Fatalf("Set overwrite failed: %v", err)
	}
	got, err := s.Get(ctx, "token")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != "def" {
		t.Errorf("Expected 'def', got %q", got)
	}

	if err := s.Delete(ctx, "token", "missing"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := s.Get(ctx, "token"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound after delete, got %v", err)
	}
}

func TestSetMany(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()
	ctx := context.Background()

	if err := s.SetMany(ctx, map[string]string{"token": "t1", "role": "admin"}); err != nil {
		t.Fatalf("SetMany failed: %v", err)
	}
	for key, want := range map[string]string{"token": "t1", "role": "admin"} {
		got, err := s.Get(ctx, key)
		if err != nil {
			t.Fatalf("Get(%s) failed: %v", key, err)
		}
		if got != want {
			t.Errorf("Get(%s) = %q, expected %q", key, got, want)
		}
	}
}

func TestPersistsAcrossReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "session.db")

	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	if err := s.Set(context.Background(), "role", "viewer"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	s.Close()

	s, err = New(dbPath)
	if err != nil {
		t.Fatalf("Failed to reopen store: %v", err)
	}
	defer s.Close()

	got, err := s.Get(context.Background(), "role")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != "viewer" {
		t.Errorf("Expected 'viewer', got %q", got)
	}
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create test store: %v", err)
	}
	return s
}
