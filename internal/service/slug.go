package service

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"identity-broker/pkg/secrets"
)

// slugify derives a URL-safe slug from a display name: diacritics are
// folded to ASCII, everything outside [a-z0-9] becomes a hyphen, runs
// of hyphens collapse.
func slugify(name string) string {
	folded := norm.NFD.String(name)

	var b strings.Builder
	lastHyphen := true // suppress a leading hyphen
	for _, r := range folded {
		if unicode.Is(unicode.Mn, r) {
			continue // combining mark left over from NFD
		}
		r = unicode.ToLower(r)
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}

	return strings.Trim(b.String(), "-")
}

// withSlugSuffix disambiguates a colliding slug by appending an
// 8-hex-character random suffix. A single retry is sufficient: the
// suffix collision probability is negligible.
func withSlugSuffix(slug string) (string, error) {
	suffix, err := secrets.NewSlugSuffix()
	if err != nil {
		return "", err
	}
	return slug + "-" + suffix, nil
}
