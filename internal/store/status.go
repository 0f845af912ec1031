package store

import (
	"fmt"

	apperrors "github.com/alexjbarnes/ragsync/internal/errors"
)

// Status is a tracked file's lifecycle state.
type Status string

// The six lifecycle states, in the order a record normally moves
// through them.
const (
	StatusNew        Status = "New"        // seen on disk, remote knows nothing
	StatusChanged    Status = "Changed"    // content differs from last synced bytes
	StatusUploading  Status = "Uploading"  // upload call in flight this cycle
	StatusUploaded   Status = "Uploaded"   // remote accepted it, remote id assigned
	StatusProcessing Status = "Processing" // parse triggered, not yet confirmed done
	StatusProcessed  Status = "Processed"  // remote confirmed parsing complete
)

// ParseStatus converts a stored string into a Status, rejecting anything
// outside the known set. Raw values never cross the store boundary.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusNew, StatusChanged, StatusUploading, StatusUploaded, StatusProcessing, StatusProcessed:
		return Status(s), nil
	default:
		return "", fmt.Errorf("%w: %q", apperrors.ErrUnknownStatus, s)
	}
}

// HasRemoteID reports whether a record in this status is expected to
// carry a remote document id.
func (s Status) HasRemoteID() bool {
	switch s {
	case StatusUploaded, StatusProcessing, StatusProcessed:
		return true
	default:
		return false
	}
}
