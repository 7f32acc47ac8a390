package consolidate

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/beevik/etree"

	"github.com/crishoj/odf-fetch/feed"
	"github.com/crishoj/odf-fetch/logger"
)

// SubjectTag is the per-discipline container moved between documents.
const SubjectTag = "Discipline"

// Source is one discipline's document and the path it was read from.
type Source struct {
	Path      string
	Timestamp string
	Doc       *etree.Document
}

// Result is the combined document and the file name it should be saved as.
type Result struct {
	Doc    *etree.Document
	Name   string
	Base   string
	Moved  int
	Donors []string
}

// Consolidate moves every donor's Discipline subtrees into the base
// document. The base is the source with the greatest path; equal paths
// fall back to the greater timestamp. Donor documents are left without
// their subtrees and must not be used again.
func Consolidate(sources map[string]Source) (*Result, error) {
	if len(sources) == 0 {
		return nil, fmt.Errorf("nothing to consolidate")
	}
	disciplines := make([]string, 0, len(sources))
	for d, src := range sources {
		if src.Doc == nil || src.Doc.Root() == nil {
			return nil, fmt.Errorf("discipline %s: empty document %s", d, src.Path)
		}
		disciplines = append(disciplines, d)
	}
	sort.Strings(disciplines)

	baseCode := disciplines[0]
	for _, d := range disciplines[1:] {
		if newer(sources[d], sources[baseCode]) {
			baseCode = d
		}
	}
	base := sources[baseCode]
	dest := subjectParent(base.Doc)

	res := &Result{
		Doc:  base.Doc,
		Name: feed.CombinedName(filepath.Base(base.Path), feed.CombinedCode),
		Base: baseCode,
	}
	for _, d := range disciplines {
		if d == baseCode {
			continue
		}
		donor := sources[d]
		subjects := donor.Doc.FindElements("//" + SubjectTag)
		if len(subjects) == 0 {
			logger.Warnf("No %s element in %s", SubjectTag, donor.Path)
			continue
		}
		for _, subject := range subjects {
			dest.AddChild(subject)
			res.Moved++
		}
		res.Donors = append(res.Donors, d)
	}
	logger.Debugf("Consolidated %d subtrees into %s", res.Moved, base.Path)
	return res, nil
}

func newer(a, b Source) bool {
	if a.Path != b.Path {
		return a.Path > b.Path
	}
	return a.Timestamp > b.Timestamp
}

// subjectParent is the element holding the base's own subjects, or the
// root when it has none.
func subjectParent(doc *etree.Document) *etree.Element {
	if subject := doc.FindElement("//" + SubjectTag); subject != nil && subject.Parent() != nil {
		return subject.Parent()
	}
	return doc.Root()
}
