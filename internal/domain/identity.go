package domain

import "github.com/segmentio/ksuid"

// NewID returns a new k-sortable identifier, used for Task, Segment and
// Job IDs alike so that naive chronological listing (e.g. cleanupOldJobs)
// can sort on ID alone if it has to.
func NewID() string {
	return ksuid.New().String()
}
