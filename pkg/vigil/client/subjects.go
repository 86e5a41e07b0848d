package client

import (
	"regexp"
	"strings"

	"go.uber.org/zap"
)

var subjectIDPattern = regexp.MustCompile(`^[0-9]+$`)

// ParseSubjects splits a comma-separated list of subject ids into a
// slice, trimming whitespace and dropping empty entries. It does not
// validate the ids; Subscribe filters non-numeric ones.
func ParseSubjects(raw string) []string {
	parts := strings.Split(raw, ",")
	subjects := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			subjects = append(subjects, part)
		}
	}
	return subjects
}

// filterSubjects drops ids that are not purely numeric. Malformed ids
// are filtered quietly; the caller rejects an empty result.
func filterSubjects(ids []string, logger *zap.Logger) []string {
	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if subjectIDPattern.MatchString(id) {
			valid = append(valid, id)
		} else {
			logger.Debug("Dropping malformed subject id", zap.String("id", id))
		}
	}
	return valid
}
