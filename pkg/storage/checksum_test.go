package storage

import (
	"errors"
	"io"
	"strings"
	"testing"
)

func TestFormatAndParseChecksum(t *testing.T) {
	formatted := FormatChecksum("md5", []byte{0xde, 0xad, 0xbe, 0xef})
	if formatted != "md5:deadbeef" {
		t.Errorf("FormatChecksum returned %q, want %q", formatted, "md5:deadbeef")
	}

	algo, digest, err := ParseChecksum("sha256:0123abcd")
	if err != nil {
		t.Fatalf("ParseChecksum failed: %v", err)
	}
	if algo != "sha256" || digest != "0123abcd" {
		t.Errorf("ParseChecksum returned (%q, %q), want (sha256, 0123abcd)", algo, digest)
	}

	for _, malformed := range []string{"", "md5", ":abcd", "md5:", "plaindigest"} {
		if _, _, err := ParseChecksum(malformed); err == nil {
			t.Errorf("ParseChecksum(%q) succeeded, want error", malformed)
		}
	}
}

func TestNewHashUnsupported(t *testing.T) {
	if _, err := NewHash("crc32"); err == nil {
		t.Error("NewHash(crc32) succeeded, want error")
	}
	if _, err := NewHash(""); err != nil {
		t.Errorf("NewHash(\"\") failed: %v", err)
	}
}

func TestChecksumReaderDigests(t *testing.T) {
	tests := []struct {
		algorithm string
		want      string
	}{
		{"md5", "md5:5eb63bbbe01eeed093cb22bb8f5acdc3"},
		{"sha256", "sha256:b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"},
		{"", "md5:5eb63bbbe01eeed093cb22bb8f5acdc3"},
	}

	for _, tt := range tests {
		cr, err := NewChecksumReader(strings.NewReader("hello world"), SaveOptions{Algorithm: tt.algorithm})
		if err != nil {
			t.Fatalf("NewChecksumReader(%q) failed: %v", tt.algorithm, err)
		}
		if _, err := io.Copy(io.Discard, cr); err != nil {
			t.Fatalf("copy failed: %v", err)
		}
		if cr.Size() != 11 {
			t.Errorf("Size returned %d, want 11", cr.Size())
		}
		if got := cr.Checksum(); got != tt.want {
			t.Errorf("Checksum(%q) returned %q, want %q", tt.algorithm, got, tt.want)
		}
	}
}

func TestChecksumReaderSizeLimit(t *testing.T) {
	cr, err := NewChecksumReader(strings.NewReader("hello world"), SaveOptions{SizeLimit: 5})
	if err != nil {
		t.Fatalf("NewChecksumReader failed: %v", err)
	}
	_, err = io.Copy(io.Discard, cr)
	if !errors.Is(err, ErrSizeLimitExceeded) {
		t.Errorf("copy returned %v, want ErrSizeLimitExceeded", err)
	}
}

func TestChecksumReaderExpectedSize(t *testing.T) {
	// Exact size passes
	cr, err := NewChecksumReader(strings.NewReader("hello world"), SaveOptions{ExpectedSize: 11})
	if err != nil {
		t.Fatalf("NewChecksumReader failed: %v", err)
	}
	if _, err := io.Copy(io.Discard, cr); err != nil {
		t.Errorf("copy with exact expected size failed: %v", err)
	}

	// Stream longer than declared fails
	cr, err = NewChecksumReader(strings.NewReader("hello world"), SaveOptions{ExpectedSize: 5})
	if err != nil {
		t.Fatalf("NewChecksumReader failed: %v", err)
	}
	if _, err := io.Copy(io.Discard, cr); !errors.Is(err, ErrSizeMismatch) {
		t.Errorf("oversized stream returned %v, want ErrSizeMismatch", err)
	}

	// Stream shorter than declared fails
	cr, err = NewChecksumReader(strings.NewReader("hi"), SaveOptions{ExpectedSize: 5})
	if err != nil {
		t.Fatalf("NewChecksumReader failed: %v", err)
	}
	if _, err := io.Copy(io.Discard, cr); !errors.Is(err, ErrSizeMismatch) {
		t.Errorf("short stream returned %v, want ErrSizeMismatch", err)
	}

	// Unknown size accepts anything
	cr, err = NewChecksumReader(strings.NewReader("hello world"), SaveOptions{})
	if err != nil {
		t.Fatalf("NewChecksumReader failed: %v", err)
	}
	if _, err := io.Copy(io.Discard, cr); err != nil {
		t.Errorf("copy with unknown expected size failed: %v", err)
	}
}

func TestChecksumReaderProgress(t *testing.T) {
	var reported []int64
	cr, err := NewChecksumReader(strings.NewReader("hello world"), SaveOptions{
		Progress: func(n int64) { reported = append(reported, n) },
	})
	if err != nil {
		t.Fatalf("NewChecksumReader failed: %v", err)
	}

	// Read in 4-byte steps so the callback fires with a growing count.
	buf := make([]byte, 4)
	if _, err := io.CopyBuffer(struct{ io.Writer }{io.Discard}, cr, buf); err != nil {
		t.Fatalf("copy failed: %v", err)
	}

	if len(reported) == 0 {
		t.Fatal("progress callback never fired")
	}
	for i := 1; i < len(reported); i++ {
		if reported[i] <= reported[i-1] {
			t.Errorf("progress not monotonic: %v", reported)
			break
		}
	}
	if last := reported[len(reported)-1]; last != 11 {
		t.Errorf("final progress %d, want 11", last)
	}
}

func TestChecksumReaderUnsupportedAlgorithm(t *testing.T) {
	if _, err := NewChecksumReader(strings.NewReader("x"), SaveOptions{Algorithm: "crc32"}); err == nil {
		t.Error("NewChecksumReader with unsupported algorithm succeeded, want error")
	}
}
