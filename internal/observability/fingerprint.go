package observability

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/spaolacci/murmur3"
)

// Fingerprint identifies a query text independent of whitespace and the
// case of anything outside quoted literals. The result is a 16-digit hex
// murmur3 hash.
func Fingerprint(sql string) string {
	return fmt.Sprintf("%016x", murmur3.Sum64([]byte(Normalize(sql))))
}

// Normalize collapses whitespace runs to one space, lower-cases text
// outside single-quoted literals and trims a trailing semicolon.
func Normalize(sql string) string {
	var sb strings.Builder
	sb.Grow(len(sql))

	inQuote := false
	pendingSpace := false
	for _, r := range strings.TrimSpace(sql) {
		if inQuote {
			sb.WriteRune(r)
			if r == '\'' {
				inQuote = false
			}
			continue
		}
		if unicode.IsSpace(r) {
			pendingSpace = true
			continue
		}
		if pendingSpace && sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		pendingSpace = false
		if r == '\'' {
			inQuote = true
		}
		sb.WriteRune(unicode.ToLower(r))
	}

	return strings.TrimRight(sb.String(), "; ")
}
