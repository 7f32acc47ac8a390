package synth

import (
	"sort"
	"strings"

	"github.com/beevik/etree"

	"github.com/crishoj/odf-fetch/feed"
	"github.com/crishoj/odf-fetch/logger"
)

// Shell names the hierarchy of a medallists document:
// Root/SubjectParent/Subject/Category/Event/Medal.
type Shell struct {
	Root          string
	SubjectParent string
	Subject       string
	Category      string
	Event         string
	Medal         string
	Key           string
	DateAttr      string
	GoldCode      string
}

var DefaultShell = Shell{
	Root:          "OdfBody",
	SubjectParent: "Competition",
	Subject:       "Discipline",
	Category:      "Gender",
	Event:         "Event",
	Medal:         "Medal",
	Key:           "Code",
	DateAttr:      "Date",
	GoldCode:      "ME_GOLD",
}

// Result describes a synthesized snapshot.
type Result struct {
	Doc        *etree.Document
	TodayCount int
	Backfilled []string
	Golds      int
}

// EventCode is the composite subject+category+event code of an event.
func (s Shell) EventCode(event *etree.Element) string {
	category := ancestor(event, s.Category)
	subject := ancestor(event, s.Subject)
	if category == nil || subject == nil {
		return ""
	}
	return subject.SelectAttrValue(s.Key, "") + category.SelectAttrValue(s.Key, "") + event.SelectAttrValue(s.Key, "")
}

// Golds counts gold medal elements at or below el.
func (s Shell) Golds(el *etree.Element) int {
	if el == nil {
		return 0
	}
	return len(el.FindElements(".//" + s.Medal + "[@" + s.Key + "='" + s.GoldCode + "']"))
}

// Synthesize builds a current-day snapshot. Events in combined dated today
// are kept; if they carry fewer than target gold medals, the most recent
// gold-medal events of historical are added until the target is reached.
// Event nodes are moved out of both documents. A nil Result means there was
// nothing to write.
func Synthesize(combined, historical *etree.Document, index feed.EventIndex, target int, today string, shell Shell) *Result {
	template := historical
	if combined != nil && combined.Root() != nil {
		template = combined
	}
	if template == nil || template.Root() == nil {
		return nil
	}
	b := newBuilder(template, shell)
	res := &Result{Doc: b.doc}

	if combined != nil {
		for _, ev := range combined.FindElements("//" + shell.Event) {
			if !shell.onDay(ev, today) {
				continue
			}
			res.Golds += shell.Golds(ev)
			res.TodayCount++
			b.place(ev)
		}
	}
	if res.Golds < target && historical != nil {
		for _, ev := range shell.rank(historical, index) {
			if res.Golds >= target {
				break
			}
			code := shell.EventCode(ev)
			if b.has(code) {
				continue
			}
			res.Golds += shell.Golds(ev)
			res.Backfilled = append(res.Backfilled, code)
			b.place(ev)
		}
	}
	if len(b.placed) == 0 {
		return nil
	}
	logger.Debugf("Synthesized %d events dated %s and %d backfilled, %d gold medals", res.TodayCount, today, len(res.Backfilled), res.Golds)
	return res
}

// LatestDigest copies the n most recent gold-medal events of historical into
// a new document, oldest first, each under its own subject and category
// shell. It returns nil when there is no such event.
func LatestDigest(historical *etree.Document, index feed.EventIndex, n int, shell Shell) *etree.Document {
	if historical == nil || historical.Root() == nil || n <= 0 {
		return nil
	}
	ranked := shell.rank(historical, index)
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	if len(ranked) == 0 {
		return nil
	}
	b := newBuilder(historical, shell)
	for i := len(ranked) - 1; i >= 0; i-- {
		ev := ranked[i]
		category := strip(ancestor(ev, shell.Category))
		subject := strip(ancestor(ev, shell.Subject))
		subject.AddChild(category)
		category.AddChild(ev.Copy())
		b.parent.AddChild(subject)
	}
	return b.doc
}

// rank returns the gold-medal events of doc ordered by indexed timestamp,
// most recent first. Unindexed events sort last in document order.
func (s Shell) rank(doc *etree.Document, index feed.EventIndex) []*etree.Element {
	var events []*etree.Element
	for _, ev := range doc.FindElements("//" + s.Event) {
		if s.Golds(ev) > 0 && s.EventCode(ev) != "" {
			events = append(events, ev)
		}
	}
	sort.SliceStable(events, func(i, j int) bool {
		return index.Timestamp(s.EventCode(events[i])) > index.Timestamp(s.EventCode(events[j]))
	})
	return events
}

func (s Shell) onDay(ev *etree.Element, today string) bool {
	date := strings.ReplaceAll(ev.SelectAttrValue(s.DateAttr, ""), "-", "")
	return len(date) >= 8 && date[:8] == today
}

// builder owns a new document and materializes subject and category
// containers on demand.
type builder struct {
	shell      Shell
	doc        *etree.Document
	parent     *etree.Element
	subjects   map[string]*etree.Element
	categories map[string]*etree.Element
	placed     map[string]bool
}

func newBuilder(template *etree.Document, shell Shell) *builder {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	// Copy the chain from the root down to the subjects' parent.
	var chain []*etree.Element
	if anchor := template.FindElement("//" + shell.SubjectParent); anchor != nil {
		for el := anchor; el != nil && el.Parent() != nil; el = el.Parent() {
			chain = append(chain, el)
			if el == template.Root() {
				break
			}
		}
	} else {
		chain = []*etree.Element{template.Root()}
	}
	var parent *etree.Element
	for i := len(chain) - 1; i >= 0; i-- {
		el := strip(chain[i])
		if parent == nil {
			doc.SetRoot(el)
		} else {
			parent.AddChild(el)
		}
		parent = el
	}
	return &builder{
		shell:      shell,
		doc:        doc,
		parent:     parent,
		subjects:   make(map[string]*etree.Element),
		categories: make(map[string]*etree.Element),
		placed:     make(map[string]bool),
	}
}

func (b *builder) has(code string) bool {
	return b.placed[code]
}

// place moves ev under its subject and category shells in the new document.
func (b *builder) place(ev *etree.Element) {
	code := b.shell.EventCode(ev)
	srcCategory := ancestor(ev, b.shell.Category)
	srcSubject := ancestor(ev, b.shell.Subject)
	if srcCategory == nil || srcSubject == nil {
		return
	}
	subjectCode := srcSubject.SelectAttrValue(b.shell.Key, "")
	categoryKey := subjectCode + "/" + srcCategory.SelectAttrValue(b.shell.Key, "")

	subject, ok := b.subjects[subjectCode]
	if !ok {
		subject = strip(srcSubject)
		b.parent.AddChild(subject)
		b.subjects[subjectCode] = subject
	}
	category, ok := b.categories[categoryKey]
	if !ok {
		category = strip(srcCategory)
		subject.AddChild(category)
		b.categories[categoryKey] = category
	}
	category.AddChild(ev)
	b.placed[code] = true
}

func ancestor(el *etree.Element, tag string) *etree.Element {
	for p := el.Parent(); p != nil; p = p.Parent() {
		if p.Tag == tag {
			return p
		}
	}
	return nil
}

// strip returns a childless copy of el carrying only its name and
// attributes.
func strip(el *etree.Element) *etree.Element {
	c := etree.NewElement(el.Tag)
	c.Space = el.Space
	for _, a := range el.Attr {
		c.CreateAttr(a.FullKey(), a.Value)
	}
	return c
}
