package classifier

import "fmt"

// MalformedEventError marks an event that cannot be classified at all. The
// caller skips it and moves on with the batch.
type MalformedEventError struct {
	EventID string
	Reason  string
}

func (e *MalformedEventError) Error() string {
	return fmt.Sprintf("classifier: malformed event %q: %s", e.EventID, e.Reason)
}
