package extract

import "regexp"

// Error and warning indicators mirrored from the pattern sets operators have
// accumulated for triage; matched case-insensitively against each line.
var errorPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ERROR`),
	regexp.MustCompile(`(?i)FATAL`),
	regexp.MustCompile(`(?i)Exception`),
	regexp.MustCompile(`(?i)failed`),
	regexp.MustCompile(`(?i)timeout`),
	regexp.MustCompile(`(?i)connection.*refused`),
	regexp.MustCompile(`(?i)out of memory`),
	regexp.MustCompile(`(?i)stack trace`),
}

var warningPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)WARN`),
	regexp.MustCompile(`(?i)deprecated`),
	regexp.MustCompile(`(?i)retry`),
	regexp.MustCompile(`(?i)slow`),
}

var timestampPattern = regexp.MustCompile(`\d{4}-\d{2}-\d{2}[\sT]\d{2}:\d{2}:\d{2}`)

func matchError(line string) (string, bool) {
	for _, p := range errorPatterns {
		if p.MatchString(line) {
			return p.String(), true
		}
	}
	return "", false
}

func matchWarning(line string) (string, bool) {
	for _, p := range warningPatterns {
		if p.MatchString(line) {
			return p.String(), true
		}
	}
	return "", false
}

func matchTimestamp(line string) string {
	return timestampPattern.FindString(line)
}
