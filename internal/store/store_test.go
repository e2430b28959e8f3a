package store

import (
	"bytes"
	"testing"
)

// TestStore_SetGet は値の保存と取得をテストする。
func TestStore_SetGet(t *testing.T) {
	s, err := Open(t.TempDir(), "test.db")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer s.Close()

	if err := s.Set("key1", []byte("value1")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, err := s.Get("key1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !bytes.Equal(got, []byte("value1")) {
		t.Errorf("Get = %q, want %q", got, "value1")
	}
}

// TestStore_GetMissing は存在しないキーが(nil, nil)を返すことをテストする。
func TestStore_GetMissing(t *testing.T) {
	s, err := Open(t.TempDir(), "test.db")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer s.Close()

	got, err := s.Get("missing")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != nil {
		t.Errorf("Get = %v, want nil", got)
	}
}

// TestStore_Delete は削除後にキーが見つからないことをテストする。
func TestStore_Delete(t *testing.T) {
	s, err := Open(t.TempDir(), "test.db")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer s.Close()

	if err := s.Set("key1", []byte("v")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := s.Delete("key1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	found, err := s.Has("key1")
	if err != nil {
		t.Fatalf("Has failed: %v", err)
	}
	if found {
		t.Error("key should be absent after Delete")
	}

	// 存在しないキーの削除はエラーにならない
	if err := s.Delete("key1"); err != nil {
		t.Errorf("Delete of missing key failed: %v", err)
	}
}

// TestStore_Persistence は再オープン後も値が保持されることをテストする。
func TestStore_Persistence(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(dir, "test.db")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	if err := s.Set("key1", []byte("persisted")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	s2, err := Open(dir, "test.db")
	if err != nil {
		t.Fatalf("failed to reopen store: %v", err)
	}
	defer s2.Close()

	got, err := s2.Get("key1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !bytes.Equal(got, []byte("persisted")) {
		t.Errorf("Get = %q, want %q", got, "persisted")
	}
}
