package regression

import (
	"github.com/bmatcuk/doublestar/v4"

	"github.com/c360studio/taskqueen/model"
)

// Matches reports whether path falls within scope. A nil scope matches
// everything. A path matching any mustExcludePatterns entry never
// matches. If mustIncludePatterns is non-empty, path must match at least
// one of them.
func Matches(scope *model.RegressionScope, path string) bool {
	if scope == nil {
		return true
	}
	for _, pattern := range scope.MustExcludePatterns {
		if ok, _ := doublestar.Match(pattern, path); ok {
			return false
		}
	}
	if len(scope.MustIncludePatterns) == 0 {
		return true
	}
	for _, pattern := range scope.MustIncludePatterns {
		if ok, _ := doublestar.Match(pattern, path); ok {
			return true
		}
	}
	return false
}
