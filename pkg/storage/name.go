package storage

import (
	"errors"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/Sternrassler/rickmorty-sync/pkg/record"
)

// fileExt is appended to every record file.
const fileExt = ".json"

// maxFileName is the common file name limit in bytes.
const maxFileName = 255

// NormalizeName returns the file-safe form of a record name: surrounding
// whitespace is trimmed and names that could escape the kind directory or
// confuse the filesystem are rejected with a *NameError.
func NormalizeName(name string) (string, error) {
	n := strings.TrimSpace(name)

	fail := func(reason string) (string, error) {
		return "", &NameError{Name: name, Reason: reason}
	}

	switch {
	case n == "":
		return fail("name is empty")
	case n == "." || n == "..":
		return fail("name is a relative path element")
	case strings.ContainsAny(n, `/\`):
		return fail("name contains a path separator")
	case !utf8.ValidString(n):
		return fail("name is not valid UTF-8")
	case len(n)+len(fileExt) > maxFileName:
		return fail("name is too long")
	}

	for _, r := range n {
		if r == 0 || unicode.IsControl(r) {
			return fail("name contains a control character")
		}
	}

	return n, nil
}

// Path returns the file path of a record relative to root. It is a pure
// function of root, kind and name.
func Path(root string, kind record.Kind, name string) (string, error) {
	n, err := NormalizeName(name)
	if err != nil {
		var nameErr *NameError
		if errors.As(err, &nameErr) {
			nameErr.Kind = kind
		}
		return "", err
	}
	return filepath.Join(root, kind.String(), n+fileExt), nil
}
