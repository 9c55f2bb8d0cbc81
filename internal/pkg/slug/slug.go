// Package slug builds URL-safe organization identifiers.
package slug

import (
	"context"
	"crypto/rand"
	"fmt"
	"strings"
)

// Lowercase Base36 so generated suffixes stay valid slug characters.
const alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

const maxAttempts = 5

// Make lowercases s and collapses every run of non-alphanumeric characters
// into a single dash.
func Make(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// Random returns a cryptographically secure random Base36 string.
func Random(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("invalid slug length: %d", length)
	}

	// Rejection sampling to avoid modulo bias.
	// 252 is the largest multiple of 36 below 256.
	const maxRandomByte = 252

	out := make([]byte, length)
	buf := make([]byte, length*2)
	written := 0

	for written < length {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("failed to read secure random bytes: %w", err)
		}

		for _, b := range buf {
			if b >= maxRandomByte {
				continue
			}
			out[written] = alphabet[int(b)%len(alphabet)]
			written++
			if written == length {
				break
			}
		}
	}

	return string(out), nil
}

// Unique derives a slug from name and appends a random suffix while exists
// reports a collision.
func Unique(ctx context.Context, name string, exists func(ctx context.Context, slug string) (bool, error)) (string, error) {
	base := Make(name)
	if base == "" {
		base = "organization"
	}
	candidate := base
	for i := 0; i < maxAttempts; i++ {
		taken, err := exists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
		suffix, err := Random(6)
		if err != nil {
			return "", err
		}
		candidate = base + "-" + suffix
	}
	return "", fmt.Errorf("no free slug for %q after %d attempts", name, maxAttempts)
}
