package session_test

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vk/bidevalgo/internal/extractor"
	"github.com/vk/bidevalgo/internal/session"
	"github.com/vk/bidevalgo/internal/spec"
)

const specPayload = `{
	"variables": {
		"bid_price": {"label": "Anbudspris exklusive moms", "input": "number"},
		"eco_label": {"label": "Miljömärkning", "input": "yesno"}
	},
	"rules": [
		{"label": "Miljörabatt", "formula": "discount = eco_label * 100"},
		{"label": "Slutpris", "formula": "final_price = bid_price - discount"}
	]
}`

func decodeSpec(t *testing.T, payload string) *spec.Specification {
	t.Helper()
	s, err := spec.Decode([]byte(payload))
	require.NoError(t, err)
	return s
}

// fakeExtractor scripts one response per call, optionally blocking until
// released so tests can overlap uploads.
type fakeExtractor struct {
	mu    sync.Mutex
	calls []fakeCall
	next  int
}

type fakeCall struct {
	spec    *spec.Specification
	summary string
	err     error
	release chan struct{}
}

func (f *fakeExtractor) Extract(ctx context.Context, filename string, file io.Reader) (*spec.Specification, string, error) {
	f.mu.Lock()
	call := f.calls[f.next]
	f.next++
	f.mu.Unlock()

	if call.release != nil {
		select {
		case <-call.release:
		case <-ctx.Done():
			return nil, "", &extractor.TransportError{Err: ctx.Err()}
		}
	}
	return call.spec, call.summary, call.err
}

func quickConfig() session.Config {
	return session.Config{TickInterval: time.Millisecond, SettleDelay: 0}
}

func TestUpload_Success(t *testing.T) {
	fake := &fakeExtractor{calls: []fakeCall{
		{spec: decodeSpec(t, specPayload), summary: "Lägsta **pris**."},
	}}
	controller := session.NewController(fake, quickConfig(), nil)

	snap := controller.Upload(context.Background(), "upphandling.pdf", nil)

	require.Equal(t, session.StateLoaded, snap.State)
	require.True(t, snap.HasSpecification)
	require.Equal(t, "upphandling.pdf", snap.Filename)
	require.Equal(t, "Lägsta **pris**.", snap.Summary)
	require.Contains(t, snap.SummaryHTML, "<strong>pris</strong>")
	require.Empty(t, snap.UploadError)

	// Nothing entered yet: missing fields block evaluation.
	require.Len(t, snap.MissingFields, 2)
	require.Nil(t, snap.Result)
}

func TestUpload_ExtractionFailureKeepsBackendMessage(t *testing.T) {
	fake := &fakeExtractor{calls: []fakeCall{
		{err: &extractor.ExtractionError{Message: "No matching sections found"}},
	}}
	controller := session.NewController(fake, quickConfig(), nil)

	snap := controller.Upload(context.Background(), "a.pdf", nil)

	require.Equal(t, session.StateError, snap.State)
	require.Equal(t, "No matching sections found", snap.UploadError)
	require.False(t, snap.HasSpecification)
	// The filename stays visible next to the error message.
	require.Equal(t, "a.pdf", snap.Filename)
}

func TestUpload_TransportFailureGetsGenericMessage(t *testing.T) {
	fake := &fakeExtractor{calls: []fakeCall{
		{err: &extractor.TransportError{Err: io.ErrUnexpectedEOF}},
	}}
	controller := session.NewController(fake, quickConfig(), nil)

	snap := controller.Upload(context.Background(), "a.pdf", nil)

	require.Equal(t, session.StateError, snap.State)
	require.NotEmpty(t, snap.UploadError)
	require.NotContains(t, snap.UploadError, "EOF")
}

func TestSetField_RecomputesOnEveryEdit(t *testing.T) {
	fake := &fakeExtractor{calls: []fakeCall{{spec: decodeSpec(t, specPayload)}}}
	controller := session.NewController(fake, quickConfig(), nil)
	ctx := context.Background()

	controller.Upload(ctx, "a.pdf", nil)

	snap := controller.SetField(ctx, "bid_price", "1000")
	require.Equal(t, []string{"Miljömärkning"}, snap.MissingFields)
	require.Nil(t, snap.Result)

	snap = controller.SetField(ctx, "eco_label", true)
	require.Empty(t, snap.MissingFields)
	require.NotNil(t, snap.Result)
	require.NotNil(t, snap.Result.Total)
	require.Equal(t, "final_price", snap.Result.Total.Name)
	require.Equal(t, 900.0, snap.Result.Total.Value)
	require.Len(t, snap.Result.Itemized, 1)
	require.Equal(t, "discount", snap.Result.Itemized[0].Name)

	// Editing a field re-derives everything from scratch.
	snap = controller.SetField(ctx, "eco_label", false)
	require.Equal(t, 1000.0, snap.Result.Total.Value)
}

func TestSetField_EvaluationFailureKeepsSession(t *testing.T) {
	broken := `{
		"variables": {"a": {"label": "A", "input": "number"}},
		"rules": [{"label": "Trasig", "formula": "x = a + not_defined"}]
	}`
	fake := &fakeExtractor{calls: []fakeCall{{spec: decodeSpec(t, broken)}}}
	controller := session.NewController(fake, quickConfig(), nil)
	ctx := context.Background()

	controller.Upload(ctx, "a.pdf", nil)
	snap := controller.SetField(ctx, "a", "1")

	require.Equal(t, session.StateLoaded, snap.State)
	require.True(t, snap.HasSpecification)
	require.NotEmpty(t, snap.ComputeError)
	require.Nil(t, snap.Result)

	// The user may keep editing; the session is not torn down.
	snap = controller.SetField(ctx, "a", "2")
	require.True(t, snap.HasSpecification)
}

func TestSetField_IgnoredWithoutSpecification(t *testing.T) {
	controller := session.NewController(&fakeExtractor{}, quickConfig(), nil)
	snap := controller.SetField(context.Background(), "bid_price", "1")
	require.Equal(t, session.StateEmpty, snap.State)
	require.False(t, snap.HasSpecification)
}

func TestClear_ResetsEverythingTogether(t *testing.T) {
	fake := &fakeExtractor{calls: []fakeCall{{spec: decodeSpec(t, specPayload), summary: "S"}}}
	controller := session.NewController(fake, quickConfig(), nil)
	ctx := context.Background()

	controller.Upload(ctx, "a.pdf", nil)
	controller.SetField(ctx, "bid_price", "1000")
	controller.SetField(ctx, "eco_label", true)

	snap := controller.Clear()
	require.Equal(t, session.StateEmpty, snap.State)
	require.False(t, snap.HasSpecification)
	require.Empty(t, snap.Filename)
	require.Empty(t, snap.Summary)
	require.Empty(t, snap.SummaryHTML)
	require.Empty(t, snap.MissingFields)
	require.Nil(t, snap.Result)
	require.Zero(t, snap.Progress)
}

func TestUpload_ProgressCreepsAndSettles(t *testing.T) {
	release := make(chan struct{})
	fake := &fakeExtractor{calls: []fakeCall{
		{spec: decodeSpec(t, specPayload), release: release},
	}}
	controller := session.NewController(fake, quickConfig(), nil)

	done := make(chan session.Snapshot, 1)
	go func() {
		done <- controller.Upload(context.Background(), "a.pdf", nil)
	}()

	// Let the ticker run, then observe the uploading state.
	require.Eventually(t, func() bool {
		snap := controller.Snapshot()
		return snap.State == session.StateUploading && snap.Progress > 0
	}, time.Second, time.Millisecond)

	snap := controller.Snapshot()
	require.LessOrEqual(t, snap.Progress, 99)

	close(release)
	final := <-done
	require.Equal(t, session.StateLoaded, final.State)
	require.Zero(t, final.Progress)
}

func TestUpload_SupersededUploadNeverOverwrites(t *testing.T) {
	firstRelease := make(chan struct{})
	firstSpec := decodeSpec(t, `{
		"variables": {"old": {"label": "Gammal", "input": "number"}},
		"rules": [{"label": "Gammal", "formula": "old_total = old"}]
	}`)
	fake := &fakeExtractor{calls: []fakeCall{
		{spec: firstSpec, release: firstRelease},
		{spec: decodeSpec(t, specPayload)},
	}}
	controller := session.NewController(fake, quickConfig(), nil)
	ctx := context.Background()

	firstDone := make(chan struct{})
	go func() {
		controller.Upload(ctx, "old.pdf", nil)
		close(firstDone)
	}()

	require.Eventually(t, func() bool {
		return controller.Snapshot().State == session.StateUploading
	}, time.Second, time.Millisecond)

	// Second upload supersedes the first while it is still in flight.
	snap := controller.Upload(ctx, "new.pdf", nil)
	require.Equal(t, session.StateLoaded, snap.State)
	require.Equal(t, "new.pdf", snap.Filename)

	// Release the stale response; it must be discarded.
	close(firstRelease)
	<-firstDone

	final := controller.Snapshot()
	require.Equal(t, session.StateLoaded, final.State)
	require.Equal(t, "new.pdf", final.Filename)
	require.Len(t, final.MissingFields, 2) // the new document's variables
}

func TestClear_AbandonsInFlightUpload(t *testing.T) {
	release := make(chan struct{})
	fake := &fakeExtractor{calls: []fakeCall{
		{spec: decodeSpec(t, specPayload), release: release},
	}}
	controller := session.NewController(fake, quickConfig(), nil)

	done := make(chan session.Snapshot, 1)
	go func() {
		done <- controller.Upload(context.Background(), "a.pdf", nil)
	}()

	require.Eventually(t, func() bool {
		return controller.Snapshot().State == session.StateUploading
	}, time.Second, time.Millisecond)

	controller.Clear()
	close(release)
	<-done

	final := controller.Snapshot()
	require.Equal(t, session.StateEmpty, final.State)
	require.False(t, final.HasSpecification)
}

func TestLoad_InstallsSpecificationDirectly(t *testing.T) {
	controller := session.NewController(nil, quickConfig(), nil)
	snap := controller.Load(context.Background(), decodeSpec(t, specPayload), "Sammanfattning", "sparad.json")

	require.Equal(t, session.StateLoaded, snap.State)
	require.Equal(t, "sparad.json", snap.Filename)
	require.Equal(t, "Sammanfattning", snap.Summary)
	require.Len(t, snap.MissingFields, 2)
}

func TestOnChange_SeesSettledState(t *testing.T) {
	fake := &fakeExtractor{calls: []fakeCall{{spec: decodeSpec(t, specPayload)}}}

	var mu sync.Mutex
	var states []session.State
	controller := session.NewController(fake, quickConfig(), func(snap session.Snapshot) {
		mu.Lock()
		states = append(states, snap.State)
		mu.Unlock()
	})

	controller.Upload(context.Background(), "a.pdf", nil)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, states)
	require.Equal(t, session.StateUploading, states[0])
	require.Equal(t, session.StateLoaded, states[len(states)-1])
}
