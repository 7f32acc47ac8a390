package merge

import (
	"errors"
	"fmt"

	"github.com/beevik/etree"

	"github.com/crishoj/odf-fetch/logger"
)

// ErrUpdatesOutOfOrder is returned when updates are not in ascending
// timestamp order. Nothing is applied in that case.
var ErrUpdatesOutOfOrder = errors.New("updates are not in ascending timestamp order")

// RecordSpec locates the repeated, keyed records of a document.
type RecordSpec struct {
	Container string
	Record    string
	Key       string
}

// ParticipantRecords addresses OdfBody/Competition/Participant[@Code].
var ParticipantRecords = RecordSpec{Container: "Competition", Record: "Participant", Key: "Code"}

// Update is one parsed update document and the timestamp from its name.
type Update struct {
	Name      string
	Timestamp string
	Doc       *etree.Document
}

// Stats counts what a merge did.
type Stats struct {
	Added   int `json:"added"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
}

func (s *Stats) Add(o Stats) {
	s.Added += o.Added
	s.Updated += o.Updated
	s.Skipped += o.Skipped
}

func (s Stats) String() string {
	return fmt.Sprintf("%d added, %d updated, %d skipped", s.Added, s.Updated, s.Skipped)
}

// CheckOrder reports ErrUpdatesOutOfOrder unless timestamps never decrease.
func CheckOrder(updates []Update) error {
	for i := 1; i < len(updates); i++ {
		if updates[i].Timestamp < updates[i-1].Timestamp {
			return fmt.Errorf("%w: %s before %s", ErrUpdatesOutOfOrder, updates[i-1].Name, updates[i].Name)
		}
	}
	return nil
}

// MergeUpdates folds every update into base, oldest first. Records found in
// base by key are replaced in place; the rest are appended to the base's
// container. Records are moved out of the update documents, which must not
// be reused afterwards.
func MergeUpdates(base *etree.Document, updates []Update, spec RecordSpec) (Stats, error) {
	var total Stats
	if err := CheckOrder(updates); err != nil {
		return total, err
	}
	container := findContainer(base, spec.Container)
	if container == nil {
		return total, fmt.Errorf("base document has no %s element", spec.Container)
	}
	index := make(map[string]*etree.Element)
	for _, rec := range container.SelectElements(spec.Record) {
		if key := rec.SelectAttrValue(spec.Key, ""); key != "" {
			index[key] = rec
		}
	}

	for _, u := range updates {
		stats := apply(container, index, u, spec)
		logger.Infof("    Merged %s: %s", u.Name, stats)
		total.Add(stats)
	}
	return total, nil
}

func apply(container *etree.Element, index map[string]*etree.Element, u Update, spec RecordSpec) Stats {
	var stats Stats
	if u.Doc == nil || u.Doc.Root() == nil {
		logger.Warnf("Skipping %s: empty document", u.Name)
		return stats
	}
	source := findContainer(u.Doc, spec.Container)
	if source == nil {
		// Records outside the container cannot be placed; count them so the
		// loss shows in the stats.
		stats.Skipped = len(findRecords(u.Doc, spec.Record))
		logger.Warnf("Skipping %s: no %s element, %d %s records ignored", u.Name, spec.Container, stats.Skipped, spec.Record)
		return stats
	}
	for _, rec := range source.SelectElements(spec.Record) {
		key := rec.SelectAttrValue(spec.Key, "")
		if key == "" {
			stats.Skipped++
			logger.Warnf("Skipping %s without %s", spec.Record, spec.Key)
			continue
		}
		if old, ok := index[key]; ok {
			parent := old.Parent()
			parent.InsertChildAt(old.Index(), rec)
			parent.RemoveChild(old)
			stats.Updated++
		} else {
			container.AddChild(rec)
			stats.Added++
		}
		index[key] = rec
	}
	return stats
}

func findRecords(doc *etree.Document, tag string) []*etree.Element {
	root := doc.Root()
	if root.Tag == tag {
		return []*etree.Element{root}
	}
	return root.FindElements(".//" + tag)
}

// findContainer returns the first element named tag, searching the root
// itself first.
func findContainer(doc *etree.Document, tag string) *etree.Element {
	root := doc.Root()
	if root == nil {
		return nil
	}
	if root.Tag == tag {
		return root
	}
	return root.FindElement(".//" + tag)
}
