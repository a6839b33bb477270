package review

import (
	"path"
	"strings"

	"github.com/replikanti/flowlint/internal/domain"
)

// pickTargets filters the pull request's change set down to the files the
// lint configuration selects. Removed files carry no content and are never
// targets. The input order is preserved.
func pickTargets(files []domain.ChangedFile, cfg domain.LintConfig) []domain.ChangedFile {
	var targets []domain.ChangedFile
	for _, f := range files {
		if f.Status == "removed" {
			continue
		}
		if !matchesAny(cfg.IncludeGlobs, f.Path) {
			continue
		}
		if matchesAny(cfg.IgnoreGlobs, f.Path) {
			continue
		}
		targets = append(targets, f)
	}
	return targets
}

func matchesAny(globs []string, filePath string) bool {
	for _, g := range globs {
		if matchGlob(g, filePath) {
			return true
		}
	}
	return false
}

// matchGlob matches slash-separated paths against patterns where `*` and `?`
// stay within one path segment and `**` spans any number of segments,
// including zero.
func matchGlob(pattern, filePath string) bool {
	return matchSegments(strings.Split(pattern, "/"), strings.Split(filePath, "/"))
}

func matchSegments(pattern, segments []string) bool {
	if len(pattern) == 0 {
		return len(segments) == 0
	}
	if pattern[0] == "**" {
		if matchSegments(pattern[1:], segments) {
			return true
		}
		return len(segments) > 0 && matchSegments(pattern, segments[1:])
	}
	if len(segments) == 0 {
		return false
	}
	ok, err := path.Match(pattern[0], segments[0])
	if err != nil || !ok {
		return false
	}
	return matchSegments(pattern[1:], segments[1:])
}
