package feed

import (
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"
)

// TimestampLayout is the layout of the 14-digit timestamp carried in names.
const TimestampLayout = "20060102150405"

// DefaultEventCodeWidth is the number of code characters after the
// discipline that identify an event (category letter plus event code).
const DefaultEventCodeWidth = 4

// ParsedName is the classification of a single feed file name.
type ParsedName struct {
	Name           string
	DateStamp      string
	DisciplineCode string
	TypeCode       string
	EventSuffix    string
	Timestamp      string
	Sequence       string
}

// EventCode is the composite discipline+category+event code, or "" for
// documents that are not scoped to an event.
func (p ParsedName) EventCode() string {
	if p.EventSuffix == "" {
		return ""
	}
	return p.DisciplineCode + p.EventSuffix
}

func (p ParsedName) Time() (time.Time, error) {
	return time.Parse(TimestampLayout, p.Timestamp)
}

// ClassificationError reports a name that does not follow the feed grammar.
type ClassificationError struct {
	Name   string
	Reason string
}

func (e *ClassificationError) Error() string {
	return fmt.Sprintf("cannot classify %q: %s", e.Name, e.Reason)
}

// Grammar extracts the timestamp and sequence from a feed file name. The
// feed changed its trailer layout over time, so the extraction is pluggable.
type Grammar struct {
	Name    string
	Extract func(name string) (timestamp, sequence string, ok bool)
}

var delimitedTrailer = regexp.MustCompile(`___(\d{14})(\d{6})\.xml$`)

// DelimitedGrammar reads the timestamp after the last "___" delimiter.
var DelimitedGrammar = Grammar{
	Name: "delimited",
	Extract: func(name string) (string, string, bool) {
		m := delimitedTrailer.FindStringSubmatch(name)
		if m == nil {
			return "", "", false
		}
		return m[1], m[2], true
	},
}

// OffsetGrammar reads the timestamp at a fixed offset before the trailing
// 6-digit sequence, whatever precedes it.
var OffsetGrammar = Grammar{
	Name: "offset",
	Extract: func(name string) (string, string, bool) {
		if !strings.HasSuffix(name, ".xml") {
			return "", "", false
		}
		stem := strings.TrimSuffix(name, ".xml")
		if len(stem) < 20 {
			return "", "", false
		}
		trailer := stem[len(stem)-20:]
		if !allDigits(trailer) {
			return "", "", false
		}
		return trailer[:14], trailer[14:], true
	},
}

func GrammarByName(name string) (Grammar, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", DelimitedGrammar.Name:
		return DelimitedGrammar, nil
	case OffsetGrammar.Name:
		return OffsetGrammar, nil
	default:
		return Grammar{}, fmt.Errorf("unknown filename grammar: %s", name)
	}
}

var namePrefix = regexp.MustCompile(`^(\d{8})([A-Z]{2})([A-Z0-9]*)_`)

// Classifier turns remote entry names into ParsedNames. It holds no I/O.
type Classifier struct {
	grammar        Grammar
	types          *TypeMatcher
	eventCodeWidth int
}

func NewClassifier(grammar Grammar, knownTypes []string) *Classifier {
	if grammar.Extract == nil {
		grammar = DelimitedGrammar
	}
	if len(knownTypes) == 0 {
		knownTypes = KnownTypes
	}
	return &Classifier{
		grammar:        grammar,
		types:          NewTypeMatcher(knownTypes),
		eventCodeWidth: DefaultEventCodeWidth,
	}
}

func (c *Classifier) Grammar() Grammar {
	return c.grammar
}

// Classify parses the base name of entry. Directory components are ignored.
func (c *Classifier) Classify(entry string) (ParsedName, error) {
	name := path.Base(entry)
	m := namePrefix.FindStringSubmatch(name)
	if m == nil {
		return ParsedName{}, &ClassificationError{Name: name, Reason: "missing date and discipline prefix"}
	}
	typeCode, ok := c.types.Match(name)
	if !ok {
		return ParsedName{}, &ClassificationError{Name: name, Reason: "no known type code"}
	}
	ts, seq, ok := c.grammar.Extract(name)
	if !ok {
		return ParsedName{}, &ClassificationError{
			Name:   name,
			Reason: fmt.Sprintf("no timestamp for %s grammar", c.grammar.Name),
		}
	}
	return ParsedName{
		Name:           name,
		DateStamp:      m[1],
		DisciplineCode: m[2],
		TypeCode:       typeCode,
		EventSuffix:    eventSuffix(m[3], c.eventCodeWidth),
		Timestamp:      ts,
		Sequence:       seq,
	}, nil
}

func eventSuffix(rest string, width int) string {
	if rest == "" || strings.Trim(rest, "0") == "" {
		return ""
	}
	if width > 0 && len(rest) > width {
		return rest[:width]
	}
	return rest
}

// CombinedName rewrites the discipline field of a feed name.
func CombinedName(name, code string) string {
	base := path.Base(name)
	if len(base) < 10 || !allDigits(base[:8]) {
		return code + "_" + base
	}
	return base[:8] + code + base[10:]
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
