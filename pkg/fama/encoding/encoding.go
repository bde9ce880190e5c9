package encoding

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding/unicode"
)

const (
	// sniffLen is the number of bytes http.DetectContentType looks at.
	sniffLen = 512
	// checkLen bounds the NUL byte scan.
	checkLen = 8000
)

var (
	// ErrBinary is returned for content that looks like binary data.
	ErrBinary = errors.New("binary content")
	// ErrInvalidUTF8 is returned for text that is not valid UTF-8.
	ErrInvalidUTF8 = errors.New("content is not valid UTF-8")
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Text is a decoded source file.
type Text struct {
	// Body is the UTF-8 content without a byte order mark.
	Body []byte
	// BOM records whether the file started with a UTF-8 byte order mark.
	BOM bool
}

// Decode validates content as UTF-8 text and strips a leading BOM. Files in
// other encodings are rejected with an error naming the detected charset;
// they are never transcoded.
func Decode(content []byte) (Text, error) {
	if IsBinary(content) {
		return Text{}, ErrBinary
	}
	if !utf8.Valid(content) {
		_, name, _ := charset.DetermineEncoding(content, "")
		if name == "" || strings.EqualFold(name, "utf-8") {
			return Text{}, ErrInvalidUTF8
		}
		return Text{}, fmt.Errorf("%w (looks like %s)", ErrInvalidUTF8, name)
	}
	if !bytes.HasPrefix(content, utf8BOM) {
		return Text{Body: content}, nil
	}
	body, err := unicode.UTF8BOM.NewDecoder().Bytes(content)
	if err != nil {
		return Text{}, fmt.Errorf("%w: %w", ErrInvalidUTF8, err)
	}
	return Text{Body: body, BOM: true}, nil
}

// Encode returns body ready to be written back, restoring the BOM if the
// original had one.
func (t Text) Encode(body []byte) []byte {
	if !t.BOM {
		return body
	}
	out, err := unicode.UTF8BOM.NewEncoder().Bytes(body)
	if err != nil {
		return append(append([]byte{}, utf8BOM...), body...)
	}
	return out
}

// IsBinary reports whether content is likely binary. UTF-16 files are caught
// here too since their ASCII range is full of NUL bytes, unless they start
// with a BOM, in which case Decode names the encoding instead.
func IsBinary(content []byte) bool {
	if len(content) == 0 {
		return false
	}
	if bytes.HasPrefix(content, []byte{0xFF, 0xFE}) || bytes.HasPrefix(content, []byte{0xFE, 0xFF}) {
		return false
	}
	head := content
	if len(head) > checkLen {
		head = head[:checkLen]
	}
	if bytes.IndexByte(head, 0) >= 0 {
		return true
	}
	sniff := content
	if len(sniff) > sniffLen {
		sniff = sniff[:sniffLen]
	}
	mime := http.DetectContentType(sniff)
	switch {
	case strings.HasPrefix(mime, "text/"):
		return false
	case strings.HasPrefix(mime, "image/"), strings.HasPrefix(mime, "audio/"),
		strings.HasPrefix(mime, "video/"), strings.HasPrefix(mime, "font/"),
		mime == "application/pdf", mime == "application/zip",
		mime == "application/x-gzip", mime == "application/wasm":
		return true
	}
	return false
}
