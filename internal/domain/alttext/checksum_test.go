package alttext_test

import (
	"bytes"
	"strings"
	"testing"

	"alt-text-server/internal/domain/alttext"
)

func TestChecksum(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
		want  string
	}{
		{
			name:  "empty input",
			input: nil,
			want:  "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		},
		{
			name:  "short ascii",
			input: []byte("hello world"),
			want:  "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9",
		},
		{
			name:  "larger than one chunk",
			input: bytes.Repeat([]byte{0xab}, 100_000),
			want:  "629d3149040db4d0ee8b0e6d0d0dc375b2dcbd937ab2d547e277fe3a9b05d0d1",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := alttext.Checksum(bytes.NewReader(tt.input))
			if err != nil {
				t.Fatalf("Checksum() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Checksum() = %s, want %s", got, tt.want)
			}
			if got != strings.ToLower(got) {
				t.Errorf("Checksum() not lowercase: %s", got)
			}
		})
	}
}

func TestChecksumDeterministic(t *testing.T) {
	data := []byte("same bytes, same identity")
	first, err := alttext.Checksum(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	second, err := alttext.Checksum(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Errorf("checksums differ: %s vs %s", first, second)
	}
}

func TestStorageKey(t *testing.T) {
	tests := []struct {
		name      string
		checksum  string
		extension string
		want      string
	}{
		{"plain extension", "abc123", "png", "abc123.png"},
		{"leading dot", "abc123", ".jpg", "abc123.jpg"},
		{"uppercase extension", "abc123", ".JPEG", "abc123.jpeg"},
		{"no extension", "abc123", "", "abc123"},
		{"only dots", "abc123", "..", "abc123"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := alttext.StorageKey(tt.checksum, tt.extension); got != tt.want {
				t.Errorf("StorageKey(%q, %q) = %q, want %q", tt.checksum, tt.extension, got, tt.want)
			}
		})
	}
}
