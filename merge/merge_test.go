package merge

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/beevik/etree"

	"github.com/crishoj/odf-fetch/logger"
)

func init() {
	logger.Init("error")
}

const baseXML = `<OdfBody DocumentType="DT_PARTIC"><Competition>` +
	`<Participant Code="1" Name="Alpha"/>` +
	`<Participant Code="2" Name="Bravo"/>` +
	`</Competition></OdfBody>`

func parse(t *testing.T, s string) *etree.Document {
	t.Helper()
	doc := etree.NewDocument()
	if err := doc.ReadFromString(s); err != nil {
		t.Fatalf("parse: %v", err)
	}
	return doc
}

func update(t *testing.T, ts string, records string) Update {
	return Update{
		Name:      "update_" + ts,
		Timestamp: ts,
		Doc:       parse(t, `<OdfBody DocumentType="DT_PARTIC_UPDATE"><Competition>`+records+`</Competition></OdfBody>`),
	}
}

func nameOf(t *testing.T, doc *etree.Document, code string) string {
	t.Helper()
	el := doc.FindElement("//Participant[@Code='" + code + "']")
	if el == nil {
		t.Fatalf("participant %s missing", code)
	}
	return el.SelectAttrValue("Name", "")
}

func TestMergeUpdatesUpsert(t *testing.T) {
	base := parse(t, baseXML)
	stats, err := MergeUpdates(base, []Update{
		update(t, "20140207100000", `<Participant Code="2" Name="Bravo II"/><Participant Code="3" Name="Charlie"/><Participant Name="Nobody"/>`),
	}, ParticipantRecords)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if stats != (Stats{Added: 1, Updated: 1, Skipped: 1}) {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if got := nameOf(t, base, "2"); got != "Bravo II" {
		t.Fatalf("expected updated record, got %s", got)
	}
	participants := base.FindElements("//Participant")
	if len(participants) != 3 {
		t.Fatalf("expected 3 participants, got %d", len(participants))
	}
	if participants[1].SelectAttrValue("Code", "") != "2" {
		t.Fatal("updated record must keep its position")
	}
}

func TestMergeUpdatesLaterWins(t *testing.T) {
	a := `<Participant Code="1" Name="A"/>`
	b := `<Participant Code="1" Name="B"/>`

	base := parse(t, baseXML)
	if _, err := MergeUpdates(base, []Update{update(t, "20140207100000", a), update(t, "20140207110000", b)}, ParticipantRecords); err != nil {
		t.Fatalf("merge: %v", err)
	}
	if got := nameOf(t, base, "1"); got != "B" {
		t.Fatalf("expected the later payload, got %s", got)
	}

	base = parse(t, baseXML)
	if _, err := MergeUpdates(base, []Update{update(t, "20140207100000", b), update(t, "20140207110000", a)}, ParticipantRecords); err != nil {
		t.Fatalf("merge: %v", err)
	}
	if got := nameOf(t, base, "1"); got != "A" {
		t.Fatalf("expected the later payload, got %s", got)
	}
}

func TestMergeUpdatesRejectsDescendingOrder(t *testing.T) {
	base := parse(t, baseXML)
	_, err := MergeUpdates(base, []Update{
		update(t, "20140207110000", `<Participant Code="1" Name="B"/>`),
		update(t, "20140207100000", `<Participant Code="1" Name="A"/>`),
	}, ParticipantRecords)
	if !errors.Is(err, ErrUpdatesOutOfOrder) {
		t.Fatalf("expected ErrUpdatesOutOfOrder, got %v", err)
	}
	if got := nameOf(t, base, "1"); got != "Alpha" {
		t.Fatalf("base must be untouched on rejection, got %s", got)
	}
}

func TestMergeUpdatesIdempotent(t *testing.T) {
	records := []string{
		`<Participant Code="2" Name="Bravo II"/><Participant Code="4" Name="Delta"/>`,
		`<Participant Code="4" Name="Delta II"/>`,
	}
	run := func(times int) string {
		base := parse(t, baseXML)
		for i := 0; i < times; i++ {
			ups := []Update{update(t, "20140207100000", records[0]), update(t, "20140207110000", records[1])}
			if _, err := MergeUpdates(base, ups, ParticipantRecords); err != nil {
				t.Fatalf("merge: %v", err)
			}
		}
		out, err := base.WriteToString()
		if err != nil {
			t.Fatalf("serialize: %v", err)
		}
		return out
	}
	once, twice := run(1), run(2)
	if once != twice {
		t.Fatalf("re-applying updates changed the output:\n%s\n%s", once, twice)
	}
	if again := run(1); again != once {
		t.Fatal("merge output is not deterministic")
	}
}

func TestMergeUpdatesMissingContainer(t *testing.T) {
	base := parse(t, `<OdfBody/>`)
	if _, err := MergeUpdates(base, nil, ParticipantRecords); err == nil {
		t.Fatal("expected an error for a base without records container")
	}
}

func TestMergeUpdateWithoutContainerIsReported(t *testing.T) {
	var buf bytes.Buffer
	logger.Init("warn")
	logger.SetOutput(&buf)
	t.Cleanup(func() { logger.Init("error") })

	base := parse(t, baseXML)
	stats, err := MergeUpdates(base, []Update{{
		Name:      "update_orphan",
		Timestamp: "20140207100000",
		Doc:       parse(t, `<OdfBody><Participant Code="9" Name="Zulu"/></OdfBody>`),
	}}, ParticipantRecords)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if stats != (Stats{Skipped: 1}) {
		t.Fatalf("orphaned record should be counted as skipped, got %+v", stats)
	}
	if !strings.Contains(buf.String(), "update_orphan") || !strings.Contains(buf.String(), "no Competition element") {
		t.Fatalf("expected a warning naming the update, got %q", buf.String())
	}
	if base.FindElement("//Participant[@Code='9']") != nil {
		t.Fatal("orphaned record must not reach the base")
	}
}
