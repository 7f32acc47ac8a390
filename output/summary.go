package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/crishoj/odf-fetch/scanner"
)

// WriteSummary prints, per discipline, the types found and, for disciplines
// still being tracked, the types that were never found.
func WriteSummary(w io.Writer, state *scanner.State) {
	fmt.Fprintln(w, "\nSummary:")
	fmt.Fprintln(w, "  Found:")
	for _, d := range state.FoundDisciplines() {
		records := state.FoundFor(d)
		types := make([]string, 0, len(records))
		for _, r := range records {
			types = append(types, r.Type)
		}
		fmt.Fprintf(w, "    [%s] %s: [%s]\n", d, countFragment(len(types), "this"), strings.Join(types, ", "))
	}

	incomplete := state.Tracker.Incomplete()
	if len(incomplete) == 0 {
		fmt.Fprintln(w, "Found all files")
		return
	}
	fmt.Fprintln(w, "  Did not find:")
	for _, d := range incomplete {
		missing := state.Tracker.Missing(d)
		fmt.Fprintf(w, "    [%s] %s: [%s]\n", d, countFragment(len(missing), "this one"), strings.Join(missing, ", "))
	}
}

func countFragment(n int, single string) string {
	if n == 1 {
		return single
	}
	return fmt.Sprintf("these %d", n)
}
