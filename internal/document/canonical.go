package document

import (
	"bufio"
	"bytes"
	"crypto"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash/fnv"
	"io"
	"unicode/utf8"

	"github.com/saintfish/chardet"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	AlgorithmSHA256 = "sha256"
	AlgorithmFNV    = "fnv1a64"
)

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

var sha256Available = crypto.SHA256.Available

// Canonicalize returns the form a document is hashed and stored in: UTF-8,
// NFC, "\n" line endings and no trailing blank space.
func Canonicalize(r io.Reader) ([]byte, error) {
	utf8r, err := newUTF8Reader(r)
	if err != nil {
		return nil, err
	}

	b, err := io.ReadAll(transform.NewReader(utf8r, norm.NFC))
	if err != nil {
		return nil, fmt.Errorf("reading content: %w", err)
	}

	b = bytes.ReplaceAll(b, []byte("\r\n"), []byte("\n"))
	b = bytes.ReplaceAll(b, []byte("\r"), []byte("\n"))

	return bytes.TrimRight(b, " \t\n"), nil
}

// Digest hashes canonical content. SHA-256 is used whenever the runtime
// provides it; FNV-1a is only a checksum.
func Digest(content []byte) (algorithm, sum string) {
	if sha256Available() {
		h := sha256.Sum256(content)
		return AlgorithmSHA256, hex.EncodeToString(h[:])
	}

	h := fnv.New64a()
	h.Write(content)

	return AlgorithmFNV, hex.EncodeToString(h.Sum(nil))
}

// newUTF8Reader detects the input encoding and decodes it to UTF-8: BOM
// first, then a UTF-8 validity check, then chardet, then Windows-1252.
func newUTF8Reader(r io.Reader) (io.Reader, error) {
	br := bufio.NewReader(r)

	buf, err := br.Peek(4096)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("peek: %w", err)
	}

	switch {
	case bytes.HasPrefix(buf, bomUTF8):
		_, _ = br.Discard(len(bomUTF8))
		return br, nil
	case bytes.HasPrefix(buf, bomUTF16LE):
		return transform.NewReader(br, unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewDecoder()), nil
	case bytes.HasPrefix(buf, bomUTF16BE):
		return transform.NewReader(br, unicode.UTF16(unicode.BigEndian, unicode.UseBOM).NewDecoder()), nil
	case utf8.Valid(buf):
		return br, nil
	}

	result, err := chardet.NewTextDetector().DetectBest(buf)
	if err == nil {
		switch result.Charset {
		case "UTF-8":
			return br, nil
		case "ISO-8859-9":
			return transform.NewReader(br, charmap.ISO8859_9.NewDecoder()), nil
		}
	}

	return transform.NewReader(br, charmap.Windows1252.NewDecoder()), nil
}
