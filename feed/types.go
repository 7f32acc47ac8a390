package feed

import (
	"github.com/cloudflare/ahocorasick"
)

// Document type codes published on the feed.
const (
	TypeParticipants         = "DT_PARTIC"
	TypeParticipantUpdate    = "DT_PARTIC_UPDATE"
	TypeMedalStandings       = "DT_MEDALS"
	TypeMedallistsEvent      = "DT_MEDALLISTS"
	TypeMedallistsDay        = "DT_MEDALLISTS_DAY"
	TypeMedallistsDiscipline = "DT_MEDALLISTS_DISCIPLINE"
)

// CombinedCode replaces the discipline field in names of consolidated and
// synthesized artifacts.
const CombinedCode = "XX"

// KnownTypes lists every type code the classifier recognizes.
var KnownTypes = []string{
	TypeParticipants,
	TypeParticipantUpdate,
	TypeMedalStandings,
	TypeMedallistsEvent,
	TypeMedallistsDay,
	TypeMedallistsDiscipline,
}

// DefaultWantedTypes is the ordered list used to seed a discipline's want-set.
var DefaultWantedTypes = []string{
	TypeMedallistsDay,
	TypeMedallistsDiscipline,
	TypeParticipants,
}

// TypeMatcher finds the type code embedded in a file name. Codes are matched
// with their surrounding double underscores so that DT_MEDALS never matches
// inside DT_MEDALLISTS. A TypeMatcher is not safe for concurrent use.
type TypeMatcher struct {
	types   []string
	matcher *ahocorasick.Matcher
}

func NewTypeMatcher(types []string) *TypeMatcher {
	patterns := make([]string, len(types))
	for i, t := range types {
		patterns[i] = "__" + t + "__"
	}
	return &TypeMatcher{
		types:   append([]string(nil), types...),
		matcher: ahocorasick.NewStringMatcher(patterns),
	}
}

// Match returns the type code found in name. When several codes match, the
// longest wins.
func (m *TypeMatcher) Match(name string) (string, bool) {
	if m == nil || len(m.types) == 0 {
		return "", false
	}
	hits := m.matcher.Match([]byte(name))
	best := ""
	for _, idx := range hits {
		if idx < 0 || idx >= len(m.types) {
			continue
		}
		if len(m.types[idx]) > len(best) {
			best = m.types[idx]
		}
	}
	return best, best != ""
}
