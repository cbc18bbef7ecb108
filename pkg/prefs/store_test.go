package prefs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// backends returns a fresh instance of every Store implementation.
func backends(t *testing.T) map[string]Store {
	t.Helper()

	bs, err := OpenBadgerStore("")
	if err != nil {
		t.Fatalf("OpenBadgerStore: %v", err)
	}
	t.Cleanup(func() { _ = bs.Close() })

	return map[string]Store{
		"memory": NewMemoryStore(),
		"file":   NewFileStore(t.TempDir()),
		"badger": bs,
	}
}

func TestStore_Contract(t *testing.T) {
	ctx := context.Background()

	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("Get(missing) error = %v, want ErrNotFound", err)
			}

			if err := s.Set(ctx, "study.a", "1"); err != nil {
				t.Fatalf("Set: %v", err)
			}
			if err := s.Set(ctx, "study.b", "2"); err != nil {
				t.Fatalf("Set: %v", err)
			}
			if err := s.Set(ctx, "other.c", "3"); err != nil {
				t.Fatalf("Set: %v", err)
			}

			got, err := s.Get(ctx, "study.a")
			if err != nil || got != "1" {
				t.Fatalf("Get(study.a) = %q, %v; want 1", got, err)
			}

			if err := s.Delete(ctx, "study.a"); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			if err := s.Delete(ctx, "study.a"); err != nil {
				t.Fatalf("Delete of absent key: %v", err)
			}
			if _, err := s.Get(ctx, "study.a"); !errors.Is(err, ErrNotFound) {
				t.Errorf("Get after Delete error = %v, want ErrNotFound", err)
			}

			if err := s.DeletePrefix(ctx, "study."); err != nil {
				t.Fatalf("DeletePrefix: %v", err)
			}
			if _, err := s.Get(ctx, "study.b"); !errors.Is(err, ErrNotFound) {
				t.Errorf("study.b survived DeletePrefix")
			}
			if v, err := s.Get(ctx, "other.c"); err != nil || v != "3" {
				t.Errorf("other.c = %q, %v; want 3", v, err)
			}
		})
	}
}

func TestGetInt(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if _, ok, err := GetInt(ctx, s, "exp"); ok || err != nil {
		t.Fatalf("GetInt(absent) ok=%v err=%v, want false, nil", ok, err)
	}

	if err := SetInt(ctx, s, "exp", 1700000000000); err != nil {
		t.Fatalf("SetInt: %v", err)
	}
	v, ok, err := GetInt(ctx, s, "exp")
	if err != nil || !ok || v != 1700000000000 {
		t.Fatalf("GetInt = %d, %v, %v", v, ok, err)
	}

	for _, garbage := range []string{"", "soon", "1.5e12", "12abc"} {
		_ = s.Set(ctx, "exp", garbage)
		if _, ok, err := GetInt(ctx, s, "exp"); ok || err != nil {
			t.Errorf("GetInt(%q) ok=%v err=%v, want absent", garbage, ok, err)
		}
	}
}

func TestGetBool(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if _, ok, _ := GetBool(ctx, s, "optin"); ok {
		t.Fatal("GetBool(absent) reported ok")
	}
	if err := SetBool(ctx, s, "optin", true); err != nil {
		t.Fatalf("SetBool: %v", err)
	}
	if v, ok, err := GetBool(ctx, s, "optin"); !v || !ok || err != nil {
		t.Errorf("GetBool = %v, %v, %v; want true", v, ok, err)
	}
	_ = s.Set(ctx, "optin", "maybe")
	if _, ok, _ := GetBool(ctx, s, "optin"); ok {
		t.Error("GetBool(maybe) reported ok")
	}
}

func TestFileStore_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "nested")

	first := NewFileStore(dir)
	key := "extensions.pioneer-online-news.expirationDateString"
	if err := SetInt(ctx, first, key, 42); err != nil {
		t.Fatalf("SetInt: %v", err)
	}

	info, err := os.Stat(first.Path())
	if err != nil {
		t.Fatalf("stat prefs file: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("prefs file mode = %o, want 600", perm)
	}

	second := NewFileStore(dir)
	v, ok, err := GetInt(ctx, second, key)
	if err != nil || !ok || v != 42 {
		t.Errorf("reopened GetInt = %d, %v, %v; want 42", v, ok, err)
	}
}

func TestFileStore_CorruptFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, prefsFileName), []byte("prefs = [[["), 0o600); err != nil {
		t.Fatal(err)
	}
	s := NewFileStore(dir)
	if _, err := s.Get(context.Background(), "x"); err == nil || errors.Is(err, ErrNotFound) {
		t.Errorf("Get on corrupt file error = %v, want parse error", err)
	}
}

func TestMemoryStore_Writes(t *testing.T) {
	s := NewMemoryStore()
	_ = s.Set(context.Background(), "a", "1")
	_ = s.Set(context.Background(), "a", "2")
	if s.Writes() != 2 || s.Len() != 1 {
		t.Errorf("Writes=%d Len=%d, want 2 and 1", s.Writes(), s.Len())
	}
}
