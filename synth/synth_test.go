package synth

import (
	"testing"

	"github.com/beevik/etree"

	"github.com/crishoj/odf-fetch/feed"
	"github.com/crishoj/odf-fetch/logger"
)

func init() {
	logger.Init("error")
}

const historicalXML = `<?xml version="1.0" encoding="UTF-8"?>
<OdfBody DocumentType="DT_MEDALLISTS_DISCIPLINE">
  <Competition Gen="SOCHI2014">
    <Discipline Code="SB">
      <Gender Code="M">
        <Event Code="001" Date="2014-02-03"><Medal Code="ME_GOLD"/><Medal Code="ME_SILVER"/></Event>
        <Event Code="002" Date="2014-02-04"><Medal Code="ME_GOLD"/></Event>
        <Event Code="009" Date="2014-02-04"><Medal Code="ME_BRONZE"/></Event>
      </Gender>
      <Gender Code="W">
        <Event Code="003" Date="2014-02-05"><Medal Code="ME_GOLD"/></Event>
      </Gender>
    </Discipline>
    <Discipline Code="AL">
      <Gender Code="M">
        <Event Code="004" Date="2014-02-06"><Medal Code="ME_GOLD"/></Event>
        <Event Code="005" Date="2014-02-06"><Medal Code="ME_GOLD"/></Event>
      </Gender>
    </Discipline>
  </Competition>
</OdfBody>`

// T1 < T2 < T3 < T4 < T5
var testIndex = feed.EventIndex{
	"SBM001": "20140203150000",
	"SBM002": "20140204150000",
	"SBW003": "20140205150000",
	"ALM004": "20140206100000",
	"ALM005": "20140206160000",
}

func parse(t *testing.T, s string) *etree.Document {
	t.Helper()
	doc := etree.NewDocument()
	if err := doc.ReadFromString(s); err != nil {
		t.Fatalf("parse: %v", err)
	}
	return doc
}

func codes(shell Shell, doc *etree.Document) []string {
	var out []string
	for _, ev := range doc.FindElements("//" + shell.Event) {
		out = append(out, shell.EventCode(ev))
	}
	return out
}

func TestSynthesizeBackfillsMostRecentGolds(t *testing.T) {
	combined := parse(t, `<OdfBody><Competition><Discipline Code="SB"><Gender Code="M">`+
		`<Event Code="002" Date="2014-02-04"><Medal Code="ME_GOLD"/></Event></Gender></Discipline></Competition></OdfBody>`)
	historical := parse(t, historicalXML)

	res := Synthesize(combined, historical, testIndex, 3, "20140207", DefaultShell)
	if res == nil {
		t.Fatal("expected a synthesized document")
	}
	if res.TodayCount != 0 {
		t.Fatalf("no event is dated today, got %d", res.TodayCount)
	}
	want := []string{"ALM005", "ALM004", "SBW003"}
	if len(res.Backfilled) != len(want) {
		t.Fatalf("expected %v, got %v", want, res.Backfilled)
	}
	for i := range want {
		if res.Backfilled[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, res.Backfilled)
		}
	}
	if got := DefaultShell.Golds(res.Doc.Root()); got != 3 || res.Golds != 3 {
		t.Fatalf("expected 3 gold medals, got %d (%d)", got, res.Golds)
	}
	if got := len(res.Doc.FindElements("/OdfBody/Competition/Discipline")); got != 2 {
		t.Fatalf("expected AL and SB shells, got %d", got)
	}
	if res.Doc.FindElement("/OdfBody/Competition").SelectAttrValue("Gen", "x") != "x" {
		// the template here is the combined document, which has no Gen attribute
		t.Fatal("shell attributes must come from the template")
	}
	if historical.FindElement("//Event[@Code='005']") != nil {
		t.Fatal("backfilled events are moved out of the historical document")
	}
}

func TestSynthesizeKeepsTodaysEvents(t *testing.T) {
	combined := parse(t, `<OdfBody><Competition>`+
		`<Discipline Code="SB"><Gender Code="W"><Event Code="007" Date="2014-02-07"><Medal Code="ME_GOLD"/></Event></Gender></Discipline>`+
		`<Discipline Code="BT"><Gender Code="M"><Event Code="001" Date="2014-02-06"><Medal Code="ME_GOLD"/></Event></Gender></Discipline>`+
		`</Competition></OdfBody>`)
	res := Synthesize(combined, parse(t, historicalXML), testIndex, 3, "20140207", DefaultShell)
	if res == nil {
		t.Fatal("expected a synthesized document")
	}
	if res.TodayCount != 1 || len(res.Backfilled) != 2 {
		t.Fatalf("expected 1 today event and 2 backfilled, got %d and %v", res.TodayCount, res.Backfilled)
	}
	got := codes(DefaultShell, res.Doc)
	if len(got) != 3 || got[0] != "SBW007" {
		t.Fatalf("unexpected events %v", got)
	}
	for _, code := range got {
		if code == "BTM001" {
			t.Fatal("events from other days must be filtered out")
		}
	}
}

func TestSynthesizeTargetMetByToday(t *testing.T) {
	combined := parse(t, `<OdfBody><Competition><Discipline Code="SB"><Gender Code="W">`+
		`<Event Code="007" Date="2014-02-07"><Medal Code="ME_GOLD"/></Event></Gender></Discipline></Competition></OdfBody>`)
	res := Synthesize(combined, parse(t, historicalXML), testIndex, 1, "20140207", DefaultShell)
	if res == nil || len(res.Backfilled) != 0 {
		t.Fatalf("no backfill expected when today already meets the target: %+v", res)
	}
}

func TestSynthesizeNothing(t *testing.T) {
	if Synthesize(nil, nil, testIndex, 3, "20140207", DefaultShell) != nil {
		t.Fatal("expected nil without input documents")
	}
	empty := parse(t, `<OdfBody><Competition/></OdfBody>`)
	if Synthesize(empty, nil, testIndex, 3, "20140207", DefaultShell) != nil {
		t.Fatal("expected nil when no event can be placed")
	}
}

func TestRankUnindexedLast(t *testing.T) {
	index := feed.EventIndex{"SBW003": "20140205150000"}
	ranked := DefaultShell.rank(parse(t, historicalXML), index)
	if len(ranked) != 5 {
		t.Fatalf("expected 5 gold events, got %d", len(ranked))
	}
	if code := DefaultShell.EventCode(ranked[0]); code != "SBW003" {
		t.Fatalf("expected the indexed event first, got %s", code)
	}
	if code := DefaultShell.EventCode(ranked[1]); code != "SBM001" {
		t.Fatalf("unindexed events keep document order, got %s", code)
	}
}

func TestLatestDigest(t *testing.T) {
	historical := parse(t, historicalXML)
	doc := LatestDigest(historical, testIndex, 2, DefaultShell)
	if doc == nil {
		t.Fatal("expected a digest")
	}
	got := codes(DefaultShell, doc)
	if len(got) != 2 || got[0] != "ALM004" || got[1] != "ALM005" {
		t.Fatalf("expected the latest two in chronological order, got %v", got)
	}
	if n := len(doc.FindElements("/OdfBody/Competition/Discipline")); n != 2 {
		t.Fatalf("each event gets its own shell, got %d subjects", n)
	}
	if historical.FindElement("//Event[@Code='005']") == nil {
		t.Fatal("the digest must not consume the historical document")
	}
	if LatestDigest(historical, testIndex, 0, DefaultShell) != nil {
		t.Fatal("expected nil for n=0")
	}
}
