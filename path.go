package gandewa

import (
	"fmt"
	"strings"
)

// PathSeparator joins procedure path segments.
const PathSeparator = "."

// ValidatePath checks a procedure path before any network activity.
// Valid paths are non-empty '.'-separated segments of [A-Za-z0-9_-].
// Violations return a *ValidationError carrying one invalid_format
// issue per broken rule; valid paths pass through unchanged. Path
// failures are never retried.
func ValidatePath(path string) *ValidationError {
	var issues []ValidationIssue

	if path == "" {
		return &ValidationError{
			Path:   path,
			Issues: []ValidationIssue{{Code: CodeInvalidFormat, Message: "path must not be empty"}},
		}
	}

	if strings.HasPrefix(path, PathSeparator) {
		issues = append(issues, ValidationIssue{Code: CodeInvalidFormat, Message: "path must not start with a separator"})
	}
	if strings.HasSuffix(path, PathSeparator) {
		issues = append(issues, ValidationIssue{Code: CodeInvalidFormat, Message: "path must not end with a separator"})
	}
	if strings.Contains(path, PathSeparator+PathSeparator) {
		issues = append(issues, ValidationIssue{Code: CodeInvalidFormat, Message: "path must not contain empty segments"})
	}

	for _, r := range path {
		if r == '.' || r == '_' || r == '-' ||
			(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			continue
		}
		issues = append(issues, ValidationIssue{
			Code:    CodeInvalidFormat,
			Message: fmt.Sprintf("path contains invalid character %q", r),
		})
		break
	}

	if len(issues) > 0 {
		return &ValidationError{Path: path, Issues: issues}
	}
	return nil
}
