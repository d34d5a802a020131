package helpers

import "unicode/utf8"

// TruncateRunes cuts s to at most n runes without splitting a multi-byte
// character. n <= 0 returns s unchanged.
func TruncateRunes(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
