package session

import "github.com/vk/bidevalgo/internal/classify"

// Snapshot is an immutable view of the session, replaced wholesale on each
// transition. Consumers render from snapshots and never reach into the
// controller's mutable state.
type Snapshot struct {
	State    State
	Filename string

	// Progress is the synthetic upload progress, 0 to 100. Meaningful only
	// while uploading or immediately after the response settles.
	Progress int

	// Summary is the extraction's prose summary; SummaryHTML is the same
	// text rendered from markdown.
	Summary     string
	SummaryHTML string

	// UploadError is the user-facing message of an upload-level failure.
	// Mutually exclusive with a loaded specification.
	UploadError string

	// MissingFields holds shortened labels of variables still lacking a
	// usable entry. Non-empty blocks evaluation but keeps the
	// specification loaded.
	MissingFields []string

	// ComputeError is the generic message shown when a rule formula
	// failed on fully-populated input.
	ComputeError string

	// Result is the classified outcome, nil while blocked or empty.
	Result *classify.Result

	// HasSpecification reports whether a specification is loaded.
	HasSpecification bool
}

// Snapshot returns the current session view.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	missing := make([]string, len(c.missing))
	copy(missing, c.missing)
	if len(missing) == 0 {
		missing = nil
	}

	return Snapshot{
		State:            c.state,
		Filename:         c.filename,
		Progress:         c.progress,
		Summary:          c.prose,
		SummaryHTML:      c.proseHTML,
		UploadError:      c.uploadError,
		MissingFields:    missing,
		ComputeError:     c.computeError,
		Result:           c.result,
		HasSpecification: c.specification != nil,
	}
}
