package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestFileStore_LoadMissingFile(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "cookies.json"))

	s, err := store.Load(context.Background())
	if !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("Load() error = %v, want ErrCacheMiss", err)
	}
	if s != nil {
		t.Errorf("Load() session = %v, want nil", s)
	}
}

func TestFileStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "cookies.json")
	store := NewFileStore(path)
	ctx := context.Background()

	expires := time.Now().Add(24 * time.Hour).Unix()
	want := New(
		Cookie{
			Name:    CookieName,
			Value:   "secret-session-value",
			Domain:  "www.buecherhallen.de",
			Path:    "/",
			Expires: &expires,
			Secure:  true,
			Rest:    map[string]string{"HttpOnly": "true"},
		},
		Cookie{Name: "consent", Value: "true", Domain: "www.buecherhallen.de", Path: "/"},
	)

	if err := store.Save(ctx, want); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("file mode = %o, want 600", perm)
	}

	got, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Load() = %+v, want %+v", got, want)
	}
}

func TestFileStore_CorruptFile(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "not json", content: "{{{"},
		{name: "wrong shape", content: `{"name":"x"}`},
		{name: "nameless cookie", content: `[{"value":"x"}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "cookies.json")
			if err := os.WriteFile(path, []byte(tt.content), 0o600); err != nil {
				t.Fatal(err)
			}

			_, err := NewFileStore(path).Load(context.Background())
			var storeErr *StoreError
			if !errors.As(err, &storeErr) {
				t.Fatalf("Load() error = %v, want *StoreError", err)
			}
			if storeErr.Op != "load" || storeErr.Location != path {
				t.Errorf("StoreError = %+v", storeErr)
			}
		})
	}
}

func TestFileStore_SaveNil(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "cookies.json"))

	var storeErr *StoreError
	if err := store.Save(context.Background(), nil); !errors.As(err, &storeErr) {
		t.Fatalf("Save(nil) error = %v, want *StoreError", err)
	}
}

func TestNewFileStore_Panic(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("NewFileStore should panic with empty path")
		}
	}()
	NewFileStore("")
}
