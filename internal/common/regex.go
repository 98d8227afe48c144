package common

import "regexp"

// MatchRegex compiles pattern case-insensitively and matches it against text,
// the same way routing patterns are evaluated. Returns an error if the
// pattern is invalid.
func MatchRegex(pattern, text string) (bool, error) {
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return false, err
	}
	return re.MatchString(text), nil
}
