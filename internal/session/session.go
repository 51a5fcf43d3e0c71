// Package session owns one evaluation session: the asynchronous upload
// lifecycle with its synthetic progress tracker, the specification/form
// pair, and the reactive recomputation of coercion → evaluation →
// classification on every input change. Every failure kind is recovered
// here and turned into user-facing state; nothing escapes as a fault.
package session

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vk/bidevalgo/internal/classify"
	"github.com/vk/bidevalgo/internal/coerce"
	"github.com/vk/bidevalgo/internal/ctxlog"
	"github.com/vk/bidevalgo/internal/evaluator"
	"github.com/vk/bidevalgo/internal/extractor"
	"github.com/vk/bidevalgo/internal/spec"
	"github.com/vk/bidevalgo/internal/summary"
)

// State is the session's lifecycle position. A field-level problem
// (missing fields, a failing formula) keeps the session in StateLoaded;
// only upload-level failures reach StateError, which holds no
// specification.
type State int

const (
	StateEmpty State = iota
	StateUploading
	StateLoaded
	StateError
)

// String renders a state for logs.
func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateUploading:
		return "uploading"
	case StateLoaded:
		return "loaded"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// User-facing failure messages. The analyzed system speaks Swedish to its
// users; transport detail is never surfaced raw.
const (
	uploadFailedMessage  = "Dokumentet kunde inte analyseras. Försök igen."
	computeFailedMessage = "Beräkningen kunde inte genomföras. Kontrollera dina värden."
)

// Extractor is the narrow view of the extraction backend the controller
// needs. *extractor.Client satisfies it.
type Extractor interface {
	Extract(ctx context.Context, filename string, file io.Reader) (*spec.Specification, string, error)
}

// Config tunes the cosmetic progress tracker. The extraction backend
// reports no native progress, so the tracker just creeps toward 99 and
// snaps to 100 when the response lands.
type Config struct {
	// TickInterval is the cadence of the synthetic progress increments.
	TickInterval time.Duration

	// SettleDelay is how long the terminal 100 is held before the session
	// transitions to loaded or error.
	SettleDelay time.Duration
}

func (c Config) withDefaults() Config {
	if c.TickInterval <= 0 {
		c.TickInterval = 150 * time.Millisecond
	}
	if c.SettleDelay < 0 {
		c.SettleDelay = 0
	}
	return c
}

// Controller is the evaluation session state machine. All state lives
// behind one mutex: the controller is the session's single logical thread
// of control, with only the progress ticker running beside it.
type Controller struct {
	client   Extractor
	cfg      Config
	onChange func(Snapshot)

	mu         sync.Mutex
	state      State
	generation uuid.UUID
	stop       chan struct{}
	progress   int

	specification *spec.Specification
	form          coerce.FormState
	prose         string
	proseHTML     string
	filename      string

	uploadError  string
	missing      []string
	computeError string
	result       *classify.Result
}

// NewController returns an empty session. onChange, when non-nil, is
// invoked with a fresh snapshot after every observable transition; it must
// not call back into the controller.
func NewController(client Extractor, cfg Config, onChange func(Snapshot)) *Controller {
	return &Controller{
		client:   client,
		cfg:      cfg.withDefaults(),
		onChange: onChange,
		form:     coerce.FormState{},
	}
}

// Upload resets the session and runs one extraction round trip, animating
// the synthetic progress tracker while the request is outstanding. It
// blocks until the session has settled and returns the resulting
// snapshot. A newer Upload or Clear supersedes an in-flight one: the stale
// response is discarded and its ticker stopped, so exactly one
// specification and one settled progress value remain.
func (c *Controller) Upload(ctx context.Context, filename string, file io.Reader) Snapshot {
	logger := ctxlog.FromContext(ctx)

	c.mu.Lock()
	c.resetLocked()
	gen := uuid.New()
	c.generation = gen
	c.state = StateUploading
	c.filename = filename
	stop := make(chan struct{})
	c.stop = stop
	c.mu.Unlock()
	c.notify()

	logger.Info("Upload started.", "filename", filename, "generation", gen)
	go c.tickProgress(gen, stop)

	extracted, prose, err := c.client.Extract(ctx, filename, file)

	c.mu.Lock()
	if c.generation != gen {
		// Superseded while in flight; a newer session owns the state now.
		snap := c.snapshotLocked()
		c.mu.Unlock()
		logger.Debug("Discarding stale extraction response.", "generation", gen)
		return snap
	}
	close(stop)
	c.stop = nil
	c.progress = 100
	c.mu.Unlock()
	c.notify()

	if c.cfg.SettleDelay > 0 {
		select {
		case <-time.After(c.cfg.SettleDelay):
		case <-ctx.Done():
		}
	}

	c.mu.Lock()
	if c.generation != gen {
		snap := c.snapshotLocked()
		c.mu.Unlock()
		return snap
	}
	c.progress = 0

	if err != nil {
		c.state = StateError
		c.uploadError = failureMessage(err)
		snap := c.snapshotLocked()
		c.mu.Unlock()
		c.notify()
		logger.Warn("Upload failed.", "filename", filename, "error", err)
		return snap
	}

	c.specification = extracted
	c.prose = prose
	if html, renderErr := summary.Render(prose); renderErr == nil {
		c.proseHTML = html
	} else {
		logger.Warn("Summary rendering failed, exposing raw text.", "error", renderErr)
		c.proseHTML = prose
	}
	c.form = coerce.FormState{}
	c.state = StateLoaded
	c.recomputeLocked(ctx)
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.notify()
	logger.Info("Specification loaded.", "filename", filename,
		"variables", len(extracted.Variables), "rules", len(extracted.Rules))
	return snap
}

// Load installs a specification directly, bypassing the backend. Used for
// saved extraction responses; the session behaves exactly as after a
// successful upload.
func (c *Controller) Load(ctx context.Context, s *spec.Specification, prose, filename string) Snapshot {
	c.mu.Lock()
	c.resetLocked()
	c.generation = uuid.New()
	c.specification = s
	c.prose = prose
	if html, err := summary.Render(prose); err == nil {
		c.proseHTML = html
	} else {
		c.proseHTML = prose
	}
	c.filename = filename
	c.state = StateLoaded
	c.recomputeLocked(ctx)
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.notify()
	return snap
}

// SetField records one raw form entry and synchronously recomputes the
// full result set. Edits without a loaded specification are ignored.
func (c *Controller) SetField(ctx context.Context, name string, value any) Snapshot {
	c.mu.Lock()
	if c.state != StateLoaded {
		snap := c.snapshotLocked()
		c.mu.Unlock()
		return snap
	}
	c.form[name] = value
	c.recomputeLocked(ctx)
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.notify()
	return snap
}

// Clear resets specification, form data, summary, and filename together.
// Partial resets are disallowed so no stale cross-document state can ever
// be observed. An in-flight upload is abandoned and its ticker stopped.
func (c *Controller) Clear() Snapshot {
	c.mu.Lock()
	c.resetLocked()
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.notify()
	return snap
}

// resetLocked is the single atomic reset path. Callers hold the mutex.
func (c *Controller) resetLocked() {
	if c.stop != nil {
		close(c.stop)
		c.stop = nil
	}
	c.generation = uuid.Nil
	c.state = StateEmpty
	c.progress = 0
	c.specification = nil
	c.form = coerce.FormState{}
	c.prose = ""
	c.proseHTML = ""
	c.filename = ""
	c.uploadError = ""
	c.missing = nil
	c.computeError = ""
	c.result = nil
}

// recomputeLocked re-derives the whole result set from the current
// specification/form pair: coercion, then the rule fold, then
// classification. The pass is total and rebuilt from scratch on every
// call. Callers hold the mutex.
func (c *Controller) recomputeLocked(ctx context.Context) {
	c.missing = nil
	c.computeError = ""
	c.result = nil

	sc, missing := coerce.Coerce(c.form, c.specification)
	if len(missing) > 0 {
		c.missing = missing
		return
	}

	evaluated, err := evaluator.Evaluate(ctx, c.specification.Rules, sc)
	if err != nil {
		// The offending rule was already logged by the evaluator; the user
		// gets a generic message and may keep editing.
		c.computeError = computeFailedMessage
		return
	}

	c.result = classify.Classify(evaluated, c.specification)
}

// tickProgress increments the synthetic progress toward 99 until stopped
// or superseded.
func (c *Controller) tickProgress(gen uuid.UUID, stop <-chan struct{}) {
	ticker := time.NewTicker(c.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.mu.Lock()
			if c.generation != gen || c.state != StateUploading {
				c.mu.Unlock()
				return
			}
			if c.progress < 99 {
				c.progress++
			}
			c.mu.Unlock()
			c.notify()
		}
	}
}

func (c *Controller) notify() {
	if c.onChange == nil {
		return
	}
	c.onChange(c.Snapshot())
}

// failureMessage maps an extraction failure to its user-facing text. The
// backend's own message wins when it sent one; transport failures always
// get the generic text.
func failureMessage(err error) string {
	if ee, ok := err.(*extractor.ExtractionError); ok && ee.Message != "" {
		return ee.Message
	}
	return uploadFailedMessage
}
