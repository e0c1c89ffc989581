package fingerprint

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFile(t *testing.T) {
	for _, algo := range []Algorithm{SHA256, BLAKE3} {
		t.Run(string(algo), func(t *testing.T) {
			h, err := New(algo)
			if err != nil {
				t.Fatal(err)
			}

			path := filepath.Join(t.TempDir(), "a.patch")
			if err := os.WriteFile(path, []byte("--- a\n+++ b\n"), 0644); err != nil {
				t.Fatal(err)
			}

			first, err := h.File(path)
			if err != nil {
				t.Fatal(err)
			}
			second, err := h.File(path)
			if err != nil {
				t.Fatal(err)
			}
			if first != second {
				t.Errorf("fingerprint not deterministic: %s != %s", first, second)
			}
			if first != h.Bytes([]byte("--- a\n+++ b\n")) {
				t.Error("File and Bytes disagree")
			}

			if err := os.WriteFile(path, []byte("changed\n"), 0644); err != nil {
				t.Fatal(err)
			}
			third, err := h.File(path)
			if err != nil {
				t.Fatal(err)
			}
			if first == third {
				t.Error("fingerprint should change when content changes")
			}
		})
	}
}

func TestSHA256Format(t *testing.T) {
	h, _ := New(SHA256)
	// sha256("")
	want := "E3B0C44298FC1C149AFBF4C8996FB92427AE41E4649B934CA495991B7852B855"
	if got := h.Bytes(nil); got != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestBLAKE3Prefix(t *testing.T) {
	h, _ := New(BLAKE3)
	got := h.Bytes([]byte("x"))
	if !strings.HasPrefix(got, "blake3:") {
		t.Errorf("expected blake3: prefix, got %s", got)
	}
	if len(got) != len("blake3:")+64 {
		t.Errorf("unexpected digest length %d", len(got))
	}
}

func TestFileMissing(t *testing.T) {
	h, _ := New(SHA256)
	_, err := h.File(filepath.Join(t.TempDir(), "nope.patch"))
	if !os.IsNotExist(err) {
		t.Errorf("expected not-exist error, got %v", err)
	}
}

func TestNewUnknown(t *testing.T) {
	if _, err := New("md5"); err == nil {
		t.Error("expected error for unknown algorithm")
	}
}
