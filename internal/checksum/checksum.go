// Package checksum fingerprints inbox batches so a file imported once is not
// applied again, even after a rename or a re-save with different line endings.
package checksum

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
)

var bom = []byte{0xEF, 0xBB, 0xBF}

// Sum returns the hex SHA-256 of the batch content after Normalize.
func Sum(data []byte) string {
	h := sha256.Sum256(Normalize(data))
	return hex.EncodeToString(h[:])
}

// Normalize strips a UTF-8 byte order mark, converts CRLF and CR line endings
// to LF, and drops trailing whitespace at the end of the content.
// Whitespace inside lines is left alone since it is significant in YAML.
func Normalize(data []byte) []byte {
	data = bytes.TrimPrefix(data, bom)
	if bytes.IndexByte(data, '\r') >= 0 {
		data = bytes.ReplaceAll(data, []byte("\r\n"), []byte("\n"))
		data = bytes.ReplaceAll(data, []byte("\r"), []byte("\n"))
	}
	return bytes.TrimRight(data, " \t\n")
}
