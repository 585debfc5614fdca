// Package digest computes the content fingerprint used for server-side
// upload deduplication.
package digest

import (
	"encoding/base64"
	"encoding/binary"
	"io"
	"os"

	"github.com/klauspost/crc32"
)

var castagnoliTable = crc32.MakeTable(crc32.Castagnoli)

// CRC32CFile reads the whole file at path and returns its CRC32C
// (Castagnoli) checksum, big-endian encoded and base64-standard
// encoded (the format the object store's dedup check expects).
func CRC32CFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return CRC32CReader(f)
}

// CRC32CReader is the streaming form of CRC32CFile.
func CRC32CReader(r io.Reader) (string, error) {
	h := crc32.New(castagnoliTable)
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}

	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], h.Sum32())
	return base64.StdEncoding.EncodeToString(buf[:]), nil
}
