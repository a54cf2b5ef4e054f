package flowcloud

import (
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"
)

// maxDecodeRounds bounds how many layers of percent-encoding are peeled off
// before a path is treated as hostile.
const maxDecodeRounds = 3

// DefaultDeniedNames are file names that are never served, whatever
// directory they appear in. They are the on-disk names used by the file
// backed key and host stores.
var DefaultDeniedNames = []string{"keys.json", "keys.json.lock", "allowed.json", "allowed.yaml", "allowed.yml"}

// NormalizePath turns a raw request path into a relative storage path.
//
// The path is percent-decoded until stable, trimmed of surrounding
// whitespace and slashes, and split into segments. Empty and "." segments
// are collapsed. The path is rejected with ErrPathUnsafe when:
//   - decoding fails or needs more than maxDecodeRounds rounds
//   - it is empty after trimming
//   - it is not valid UTF-8 or contains a backslash, NUL or control character
//   - any segment is ".." (or only dots)
//   - any segment matches a denied file name, ignoring case
//
// Decoding until stable means a literal '%' cannot reach storage: a stored
// name such as "100%41.txt" is looked up as "100A.txt", and "50%.txt" is
// rejected. Files meant to be served should not have '%' in their names.
//
// Containment within the storage root is enforced separately by the
// storage backend; this function only guarantees the result has no
// traversal segments.
func NormalizePath(raw string, denied ...string) (string, error) {
	p, err := decodePath(raw)
	if err != nil {
		return "", err
	}

	p = strings.TrimSpace(p)
	p = strings.Trim(p, "/")
	p = strings.TrimSpace(p)

	if p == "" {
		return "", fmt.Errorf("normalize path: empty path: %w", ErrPathUnsafe)
	}

	if !utf8.ValidString(p) {
		return "", fmt.Errorf("normalize path: invalid utf-8: %w", ErrPathUnsafe)
	}

	if strings.ContainsRune(p, '\\') {
		return "", fmt.Errorf("normalize path: backslash: %w", ErrPathUnsafe)
	}

	for _, r := range p {
		if r < 0x20 || r == 0x7f {
			return "", fmt.Errorf("normalize path: control character: %w", ErrPathUnsafe)
		}
	}

	segments := strings.Split(p, "/")
	clean := make([]string, 0, len(segments))
	for _, seg := range segments {
		if seg == "" || seg == "." {
			continue
		}

		if isDotSegment(seg) {
			return "", fmt.Errorf("normalize path: traversal segment: %w", ErrPathUnsafe)
		}

		if IsDeniedName(seg, denied...) {
			return "", fmt.Errorf("normalize path: denied name: %w", ErrPathUnsafe)
		}

		clean = append(clean, seg)
	}

	if len(clean) == 0 {
		return "", fmt.Errorf("normalize path: empty path: %w", ErrPathUnsafe)
	}

	return strings.Join(clean, "/"), nil
}

// IsDeniedName reports whether name matches one of DefaultDeniedNames or
// extra, ignoring case and surrounding whitespace.
func IsDeniedName(name string, extra ...string) bool {
	name = strings.TrimSpace(name)
	for _, d := range DefaultDeniedNames {
		if strings.EqualFold(name, d) {
			return true
		}
	}
	for _, d := range extra {
		if d != "" && strings.EqualFold(name, strings.TrimSpace(d)) {
			return true
		}
	}
	return false
}

func decodePath(raw string) (string, error) {
	p := raw
	for range maxDecodeRounds {
		decoded, err := url.PathUnescape(p)
		if err != nil {
			return "", fmt.Errorf("normalize path: decode: %w", ErrPathUnsafe)
		}
		if decoded == p {
			return p, nil
		}
		p = decoded
	}

	if strings.Contains(p, "%") {
		if decoded, err := url.PathUnescape(p); err != nil || decoded != p {
			return "", fmt.Errorf("normalize path: too many encoding layers: %w", ErrPathUnsafe)
		}
	}
	return p, nil
}

// isDotSegment matches "..", "...", and dot runs padded with spaces, all of
// which some platforms resolve to the parent directory.
func isDotSegment(seg string) bool {
	trimmed := strings.TrimSpace(seg)
	if len(trimmed) < 2 {
		return false
	}
	return strings.Trim(trimmed, ".") == ""
}
