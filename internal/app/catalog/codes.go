package catalog

import (
	"regexp"
	"strings"
)

var courseCodePattern = regexp.MustCompile(`^([A-Z]+)\s*([0-9]+[A-Z]*)$`)

// NormalizeCourseCode upper-cases a course code and separates the subject
// prefix from the number: "csc101" and "CSC  101" both become "CSC 101".
// Codes that do not look like prefix+number are only trimmed and upper-cased.
func NormalizeCourseCode(code string) string {
	code = strings.ToUpper(strings.Join(strings.Fields(code), " "))
	if m := courseCodePattern.FindStringSubmatch(code); m != nil {
		return m[1] + " " + m[2]
	}
	return code
}
