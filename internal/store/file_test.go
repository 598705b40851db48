package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/xattr"
	"github.com/rs/zerolog"
)

// xattrSupported probes whether the test filesystem accepts user xattrs.
func xattrSupported(t *testing.T, dir string) bool {
	t.Helper()
	probe := filepath.Join(dir, "xattr-probe")
	if err := os.WriteFile(probe, []byte("x"), 0o644); err != nil {
		t.Fatalf("probe write: %v", err)
	}
	return xattr.Set(probe, "user.probe", []byte("1")) == nil
}

func TestFileStore_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := NewFileStore(dir, zerolog.Nop())
	ctx := context.Background()

	obj := NewObject("text/xml", []byte("<anime/>"))
	obj.LastModified = time.Date(2023, 6, 1, 8, 0, 0, 0, time.UTC)

	if err := s.Put(ctx, "anidb/42.xml", obj); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	got, err := s.Get(ctx, "anidb/42.xml")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(got.Data) != "<anime/>" {
		t.Errorf("Data = %q, want %q", got.Data, "<anime/>")
	}
	if got.Size != int64(len(obj.Data)) {
		t.Errorf("Size = %d, want %d", got.Size, len(obj.Data))
	}

	// the file mtime mirrors last-modified, so even without xattrs the
	// timestamp survives
	info, err := os.Stat(filepath.Join(dir, "anidb", "42.xml"))
	if err != nil {
		t.Fatalf("os.Stat: %v", err)
	}
	if !info.ModTime().Equal(obj.LastModified) {
		t.Errorf("file mtime = %v, want %v", info.ModTime(), obj.LastModified)
	}
}

func TestFileStore_XattrMetadata(t *testing.T) {
	dir := t.TempDir()
	if !xattrSupported(t, dir) {
		t.Skip("filesystem does not support user xattrs")
	}

	s := NewFileStore(dir, zerolog.Nop())
	ctx := context.Background()

	obj := NewObject("image/jpeg", []byte{0xff, 0xd8})
	obj.LastModified = time.Date(2023, 6, 1, 8, 0, 0, 0, time.UTC)
	obj.LastFetched = time.Date(2023, 6, 2, 9, 30, 0, 0, time.UTC)

	if err := s.Put(ctx, "poster", obj); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	stat, err := s.Stat(ctx, "poster")
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if stat.ContentType != "image/jpeg" {
		t.Errorf("ContentType = %q, want %q", stat.ContentType, "image/jpeg")
	}
	if !stat.LastModified.Equal(obj.LastModified) {
		t.Errorf("LastModified = %v, want %v", stat.LastModified, obj.LastModified)
	}
	if !stat.LastFetched.Equal(obj.LastFetched) {
		t.Errorf("LastFetched = %v, want %v", stat.LastFetched, obj.LastFetched)
	}
}

func TestFileStore_MimeGuessFallback(t *testing.T) {
	dir := t.TempDir()
	// a file created outside the store has no xattrs at all
	if err := os.WriteFile(filepath.Join(dir, "dump.xml"), []byte("<x/>"), 0o644); err != nil {
		t.Fatal(err)
	}

	s := NewFileStore(dir, zerolog.Nop())
	stat, err := s.Stat(context.Background(), "dump.xml")
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if stat.ContentType != "text/xml; charset=utf-8" && stat.ContentType != "application/xml" {
		t.Errorf("ContentType = %q, want an xml type guessed from the extension", stat.ContentType)
	}
}

func TestFileStore_NotFound(t *testing.T) {
	s := NewFileStore(t.TempDir(), zerolog.Nop())
	if _, err := s.Stat(context.Background(), "missing"); !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("Stat() error = %v, want ErrObjectNotFound", err)
	}
	if _, err := s.Get(context.Background(), "missing"); !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("Get() error = %v, want ErrObjectNotFound", err)
	}
}

func TestSingleFileStore_IgnoresName(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "anime-titles.xml")
	s := NewSingleFileStore(path, zerolog.Nop())
	ctx := context.Background()

	if err := s.Put(ctx, "whatever", NewObject("text/xml", []byte("<titles/>"))); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	got, err := s.Get(ctx, "some-other-name")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(got.Data) != "<titles/>" {
		t.Errorf("Data = %q, want the pinned file content", got.Data)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected the pinned path to exist: %v", err)
	}
}

func TestNullStore(t *testing.T) {
	s := NullStore{}
	ctx := context.Background()

	if err := s.Put(ctx, "x", NewObject("text/plain", []byte("y"))); err != nil {
		t.Errorf("Put() error = %v, want nil (writes are discarded)", err)
	}
	if _, err := s.Get(ctx, "x"); !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("Get() error = %v, want ErrObjectNotFound", err)
	}
	if _, err := s.Stat(ctx, "x"); !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("Stat() error = %v, want ErrObjectNotFound", err)
	}
}

func TestParseFileURL(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"file:///var/cache", "/var/cache", false},
		{"/var/cache", "/var/cache", false},
		{"file://relative", "", true},
		{"http://nope", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFileURL(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseFileURL(%q) expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseFileURL(%q) error = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseFileURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
