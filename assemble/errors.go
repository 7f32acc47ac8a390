package assemble

import "fmt"

// FatalError aborts one unit of post-scan work, a discipline's update merge
// or one consolidation, without stopping the run.
type FatalError struct {
	Discipline string
	Stage      string
	Err        error
}

func (e *FatalError) Error() string {
	if e.Discipline == "" {
		return fmt.Sprintf("%s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("%s [%s]: %v", e.Stage, e.Discipline, e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}
