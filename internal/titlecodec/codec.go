// Package titlecodec maps page titles to single-segment file names and back.
//
// A title is percent-encoded (everything except ASCII letters, digits and
// "_.-~/" is escaped), then every "/" is replaced by Placeholder. Decoding
// reverses both steps. The mapping round-trips for every title that does not
// already contain Placeholder.
package titlecodec

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	// Placeholder stands in for "/" in encoded names.
	Placeholder = "_"
	// DocumentExt is the extension of per-case documents.
	DocumentExt = ".json"
)

const upperhex = "0123456789ABCDEF"

// TitleToFilename returns the encoded stem for title, without extension.
func TitleToFilename(title string) string {
	return strings.ReplaceAll(quote(title), "/", Placeholder)
}

// DocumentName returns the per-case document file name for title.
func DocumentName(title string) string {
	return TitleToFilename(title) + DocumentExt
}

// FilenameToTitle strips DocumentExt from name and decodes the stem.
func FilenameToTitle(name string) (string, error) {
	return StemToTitle(strings.TrimSuffix(name, DocumentExt))
}

// StemToTitle decodes a stem produced by TitleToFilename.
func StemToTitle(stem string) (string, error) {
	title, err := url.PathUnescape(strings.ReplaceAll(stem, Placeholder, "/"))
	if err != nil {
		return "", fmt.Errorf("decode filename %q: %w", stem, err)
	}
	return title, nil
}

func quote(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if safe(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(upperhex[c>>4])
		b.WriteByte(upperhex[c&15])
	}
	return b.String()
}

func safe(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	return strings.IndexByte("_.-~/", c) >= 0
}
