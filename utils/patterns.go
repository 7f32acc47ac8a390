package utils

import (
	"path"
	"regexp"
	"strings"
)

// NameFilter decides which remote entry names are considered at all. Each
// pattern is tried as a glob against the base name and, when it compiles,
// as a regular expression against the full relative name.
type NameFilter struct {
	excludeGlobs []string
	excludeRegex []*regexp.Regexp
}

func NewNameFilter(excludePatterns []string) *NameFilter {
	globs := make([]string, 0, len(excludePatterns))
	for _, p := range excludePatterns {
		if strings.TrimSpace(p) != "" {
			globs = append(globs, p)
		}
	}
	return &NameFilter{
		excludeGlobs: globs,
		excludeRegex: compileRegex(globs),
	}
}

func (f *NameFilter) Allows(name string) bool {
	if f == nil {
		return true
	}
	base := path.Base(name)
	for _, pattern := range f.excludeGlobs {
		if matched, _ := path.Match(pattern, base); matched {
			return false
		}
	}
	for _, re := range f.excludeRegex {
		if re.MatchString(name) {
			return false
		}
	}
	return true
}

func compileRegex(patterns []string) []*regexp.Regexp {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, pattern := range patterns {
		if re, err := regexp.Compile(pattern); err == nil {
			compiled = append(compiled, re)
		}
	}
	return compiled
}
