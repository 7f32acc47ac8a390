package scanner

import (
	"sort"

	"github.com/crishoj/odf-fetch/feed"
	"github.com/crishoj/odf-fetch/remote"
)

// FoundRecord is appended once per wanted file located during a scan. The
// medal standings file gets one too, kept apart in State.Standings.
type FoundRecord struct {
	Discipline string            `json:"discipline"`
	Type       string            `json:"type"`
	LocalPath  string            `json:"local_path"`
	RemotePath string            `json:"remote_path"`
	DateStamp  string            `json:"date_stamp"`
	Timestamp  string            `json:"timestamp"`
	Size       int64             `json:"size"`
	Fetched    bool              `json:"fetched"`
	Checksums  map[string]string `json:"checksums,omitempty"`
}

// UpdateCandidate is an incremental participants file seen while its
// discipline still wanted a base file. Nothing is downloaded for it during
// the scan.
type UpdateCandidate struct {
	RemotePath string
	Entry      remote.Entry
	Name       feed.ParsedName
}

// Stats counts what a scan did. Only used for reporting.
type Stats struct {
	Directories       int `json:"directories"`
	DirectoryFailures int `json:"directory_failures"`
	Entries           int `json:"entries"`
	Unclassified      int `json:"unclassified"`
	Fetched           int `json:"fetched"`
	Cached            int `json:"cached"`
	DownloadFailures  int `json:"download_failures"`
}

// State is everything a scan accumulates. It is threaded explicitly through
// the driver so a single directory can be processed in isolation.
type State struct {
	Tracker          *Tracker
	Found            []FoundRecord
	Index            feed.EventIndex
	Updates          map[string][]UpdateCandidate
	Standings        *FoundRecord
	Stats            Stats
}

func NewState(wanted []string) *State {
	return &State{
		Tracker: NewTracker(wanted),
		Index:   feed.EventIndex{},
		Updates: make(map[string][]UpdateCandidate),
	}
}

// Records returns every materialized file: the wanted files in discovery
// order followed by the medal standings, if fetched.
func (s *State) Records() []FoundRecord {
	records := append([]FoundRecord(nil), s.Found...)
	if s.Standings != nil {
		records = append(records, *s.Standings)
	}
	return records
}

// FoundFor returns the records of one discipline in discovery order.
func (s *State) FoundFor(discipline string) []FoundRecord {
	var out []FoundRecord
	for _, r := range s.Found {
		if r.Discipline == discipline {
			out = append(out, r)
		}
	}
	return out
}

// FoundDisciplines lists disciplines with at least one record, sorted.
func (s *State) FoundDisciplines() []string {
	set := make(map[string]struct{})
	for _, r := range s.Found {
		set[r.Discipline] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for d := range set {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// Latest returns the record with the greatest timestamp for the discipline
// and type.
func (s *State) Latest(discipline, typeCode string) (FoundRecord, bool) {
	var best FoundRecord
	ok := false
	for _, r := range s.Found {
		if r.Discipline != discipline || r.Type != typeCode {
			continue
		}
		if !ok || r.Timestamp > best.Timestamp {
			best = r
			ok = true
		}
	}
	return best, ok
}

// LatestByDiscipline returns, per discipline, the newest record of typeCode.
func (s *State) LatestByDiscipline(typeCode string) map[string]FoundRecord {
	out := make(map[string]FoundRecord)
	for _, r := range s.Found {
		if r.Type != typeCode {
			continue
		}
		if cur, ok := out[r.Discipline]; !ok || r.Timestamp > cur.Timestamp {
			out[r.Discipline] = r
		}
	}
	return out
}

// UpdatesAfter returns the discipline's update candidates strictly newer
// than timestamp, oldest first.
func (s *State) UpdatesAfter(discipline, timestamp string) []UpdateCandidate {
	var out []UpdateCandidate
	for _, u := range s.Updates[discipline] {
		if u.Name.Timestamp > timestamp {
			out = append(out, u)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Name.Timestamp != out[j].Name.Timestamp {
			return out[i].Name.Timestamp < out[j].Name.Timestamp
		}
		return out[i].Name.Sequence < out[j].Name.Sequence
	})
	return out
}
