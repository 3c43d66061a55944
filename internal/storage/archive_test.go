package storage

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func writeStream(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestArchiveRoundTrip(t *testing.T) {
	arch, err := NewArchiver()
	if err != nil {
		t.Fatalf("NewArchiver: %v", err)
	}

	dir := t.TempDir()
	content := "#time,event,comp,uid,state,msg\n1.0000,boot,agent.0,,,\n"
	path := writeStream(t, dir, "agent.0.prof", content)

	out, err := arch.Archive(path)
	if err != nil {
		t.Fatalf("Archive: %v", err)
	}
	if out != path+".zst" {
		t.Errorf("archive path %q, want %q", out, path+".zst")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("original survived archiving: %v", err)
	}

	rc, err := arch.Open(out)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rc.Close()

	got, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read archive: %v", err)
	}
	if string(got) != content {
		t.Errorf("round trip mismatch:\ngot  %q\nwant %q", got, content)
	}
}

func TestOpenPlainFile(t *testing.T) {
	arch, err := NewArchiver()
	if err != nil {
		t.Fatalf("NewArchiver: %v", err)
	}

	path := writeStream(t, t.TempDir(), "agent.0.prof", "plain\n")
	rc, err := arch.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rc.Close()

	got, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got) != "plain\n" {
		t.Errorf("got %q, want %q", got, "plain\n")
	}
}

func TestOpenRejectsCorruptArchives(t *testing.T) {
	arch, err := NewArchiver()
	if err != nil {
		t.Fatalf("NewArchiver: %v", err)
	}

	dir := t.TempDir()
	makeArchive := func(t *testing.T, name string) string {
		t.Helper()
		path := writeStream(t, dir, name, "1.0000,boot,agent.0,,,\n")
		out, err := arch.Archive(path)
		if err != nil {
			t.Fatalf("Archive: %v", err)
		}
		return out
	}

	t.Run("truncated", func(t *testing.T) {
		path := writeStream(t, dir, "short.prof.zst", "junk")
		if _, err := arch.Open(path); !errors.Is(err, ErrInvalidHeader) {
			t.Errorf("err = %v, want ErrInvalidHeader", err)
		}
	})

	t.Run("bad magic", func(t *testing.T) {
		out := makeArchive(t, "magic.prof")
		data, err := os.ReadFile(out)
		if err != nil {
			t.Fatalf("read archive: %v", err)
		}
		data[0] ^= 0xff
		if err := os.WriteFile(out, data, 0644); err != nil {
			t.Fatalf("rewrite: %v", err)
		}
		if _, err := arch.Open(out); !errors.Is(err, ErrInvalidHeader) {
			t.Errorf("err = %v, want ErrInvalidHeader", err)
		}
	})

	t.Run("size mismatch", func(t *testing.T) {
		out := makeArchive(t, "size.prof")
		data, err := os.ReadFile(out)
		if err != nil {
			t.Fatalf("read archive: %v", err)
		}
		data = append(data, 0)
		if err := os.WriteFile(out, data, 0644); err != nil {
			t.Fatalf("rewrite: %v", err)
		}
		if _, err := arch.Open(out); !errors.Is(err, ErrInvalidHeader) {
			t.Errorf("err = %v, want ErrInvalidHeader", err)
		}
	})

	t.Run("digest mismatch", func(t *testing.T) {
		out := makeArchive(t, "digest.prof")
		data, err := os.ReadFile(out)
		if err != nil {
			t.Fatalf("read archive: %v", err)
		}
		// flip a byte inside the stored digest; the payload still
		// decompresses, so only the verification can catch it
		data[10] ^= 0xff
		if err := os.WriteFile(out, data, 0644); err != nil {
			t.Fatalf("rewrite: %v", err)
		}
		if _, err := arch.Open(out); !errors.Is(err, ErrDigestMismatch) {
			t.Errorf("err = %v, want ErrDigestMismatch", err)
		}
	})
}

func TestDiscover(t *testing.T) {
	arch, err := NewArchiver()
	if err != nil {
		t.Fatalf("NewArchiver: %v", err)
	}

	dir := t.TempDir()
	writeStream(t, dir, "a.prof", "a\n")
	writeStream(t, dir, "c.prof", "c\n")
	writeStream(t, dir, "notes.txt", "ignored\n")
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	// b exists only archived; c exists both ways and the plain file wins
	bPath := writeStream(t, dir, "b.prof", "b\n")
	if _, err := arch.Archive(bPath); err != nil {
		t.Fatalf("Archive: %v", err)
	}
	cArchived := writeStream(t, dir, "c2.prof", "c\n")
	out, err := arch.Archive(cArchived)
	if err != nil {
		t.Fatalf("Archive: %v", err)
	}
	if err := os.Rename(out, filepath.Join(dir, "c.prof.zst")); err != nil {
		t.Fatalf("rename: %v", err)
	}

	paths, err := Discover(dir)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}

	want := []string{
		filepath.Join(dir, "a.prof"),
		filepath.Join(dir, "b.prof.zst"),
		filepath.Join(dir, "c.prof"),
	}
	if len(paths) != len(want) {
		t.Fatalf("got %d paths %v, want %d", len(paths), paths, len(want))
	}
	for i := range want {
		if paths[i] != want[i] {
			t.Errorf("paths[%d] = %q, want %q", i, paths[i], want[i])
		}
	}
}

func TestDiscoverMissingDir(t *testing.T) {
	if _, err := Discover(filepath.Join(t.TempDir(), "absent")); err == nil {
		t.Error("missing directory must fail")
	}
}
