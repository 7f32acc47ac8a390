package feed

// EventIndex maps composite event codes to the timestamp of their most
// recent medallists document. Observe keeps the greatest timestamp, so the
// result does not depend on the order directories are walked in.
type EventIndex map[string]string

func (idx EventIndex) Observe(eventCode, timestamp string) bool {
	if eventCode == "" || timestamp == "" {
		return false
	}
	if cur, ok := idx[eventCode]; ok && cur >= timestamp {
		return false
	}
	idx[eventCode] = timestamp
	return true
}

// Timestamp returns the indexed timestamp, or "" when the event was never
// observed. "" sorts below every real timestamp.
func (idx EventIndex) Timestamp(eventCode string) string {
	return idx[eventCode]
}
