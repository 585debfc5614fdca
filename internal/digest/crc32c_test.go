package digest

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/crc32"
)

func TestCRC32CReader_MatchesReferenceImplementation(t *testing.T) {
	data := []byte("the quick brown fox jumps over the lazy dog")

	got, err := CRC32CReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("CRC32CReader: %v", err)
	}

	table := crc32.MakeTable(crc32.Castagnoli)
	sum := crc32.Checksum(data, table)
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], sum)
	want := base64.StdEncoding.EncodeToString(buf[:])

	if got != want {
		t.Errorf("CRC32CReader() = %q, want %q", got, want)
	}
}

func TestCRC32CReader_EmptyInput(t *testing.T) {
	got, err := CRC32CReader(bytes.NewReader(nil))
	if err != nil {
		t.Fatalf("CRC32CReader: %v", err)
	}
	if got == "" {
		t.Error("CRC32CReader() returned empty string for empty input")
	}
}

func TestCRC32CFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sample.txt")
	data := []byte("hello sync agent")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	fromFile, err := CRC32CFile(path)
	if err != nil {
		t.Fatalf("CRC32CFile: %v", err)
	}
	fromReader, err := CRC32CReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("CRC32CReader: %v", err)
	}

	if fromFile != fromReader {
		t.Errorf("CRC32CFile() = %q, want %q (same as reader form)", fromFile, fromReader)
	}
}

func TestCRC32CFile_MissingFile(t *testing.T) {
	_, err := CRC32CFile(filepath.Join(t.TempDir(), "does-not-exist.txt"))
	if err == nil {
		t.Error("CRC32CFile() error = nil, want error for missing file")
	}
}
