package app

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/vk/bidevalgo/internal/coerce"
	"github.com/vk/bidevalgo/internal/ctxlog"
	"github.com/vk/bidevalgo/internal/extractor"
	"github.com/vk/bidevalgo/internal/session"
	"github.com/vk/bidevalgo/internal/spec"
)

// Run executes one evaluation: load or extract a specification, apply the
// provided form state, and write the classified report as JSON.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	controller, snap, err := a.loadSession(ctx)
	if err != nil {
		return err
	}
	if snap.State == session.StateError {
		return fmt.Errorf("extraction failed: %s", snap.UploadError)
	}

	snap, err = a.applyInputs(ctx, controller, snap)
	if err != nil {
		return err
	}

	if err := a.writeReport(snap); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	a.logger.Debug("App.Run method finished.")
	return nil
}

// loadSession builds the session controller and brings it to the loaded
// state, either from a saved extraction response or by uploading the
// document to the backend.
func (a *App) loadSession(ctx context.Context) (*session.Controller, session.Snapshot, error) {
	cfg := session.Config{SettleDelay: 0}

	if a.config.SpecPath != "" {
		controller := session.NewController(nil, cfg, nil)
		s, prose, err := loadSavedResponse(a.config.SpecPath)
		if err != nil {
			return nil, session.Snapshot{}, err
		}
		snap := controller.Load(ctx, s, prose, filepath.Base(a.config.SpecPath))
		return controller, snap, nil
	}

	client := extractor.NewClient(a.config.BackendURL, a.config.HTTPTimeout)
	controller := session.NewController(client, cfg, nil)

	file, err := os.Open(a.config.DocumentPath)
	if err != nil {
		return nil, session.Snapshot{}, fmt.Errorf("failed to open document: %w", err)
	}
	defer file.Close()

	snap := controller.Upload(ctx, filepath.Base(a.config.DocumentPath), file)
	return controller, snap, nil
}

// loadSavedResponse reads a saved extraction response from disk. Both the
// full {success, data, summary} envelope and a bare specification object
// are accepted; the same fail-fast decode path applies to either.
func loadSavedResponse(path string) (*spec.Specification, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read specification file: %w", err)
	}

	var envelope spec.Envelope
	if err := json.Unmarshal(data, &envelope); err == nil && len(envelope.Data) > 0 {
		s, err := spec.Decode(envelope.Data)
		if err != nil {
			return nil, "", fmt.Errorf("invalid specification in %s: %w", path, err)
		}
		return s, envelope.Summary, nil
	}

	s, err := spec.Decode(data)
	if err != nil {
		return nil, "", fmt.Errorf("invalid specification in %s: %w", path, err)
	}
	return s, s.Summary, nil
}

// applyInputs feeds the JSON form state into the controller one field at a
// time, the same way an interactive consumer would.
func (a *App) applyInputs(ctx context.Context, controller *session.Controller, snap session.Snapshot) (session.Snapshot, error) {
	if a.config.InputsPath == "" {
		return snap, nil
	}

	data, err := os.ReadFile(a.config.InputsPath)
	if err != nil {
		return snap, fmt.Errorf("failed to read inputs file: %w", err)
	}
	var form coerce.FormState
	if err := json.Unmarshal(data, &form); err != nil {
		return snap, fmt.Errorf("invalid inputs file %s: %w", a.config.InputsPath, err)
	}

	names := make([]string, 0, len(form))
	for name := range form {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		snap = controller.SetField(ctx, name, form[name])
	}
	return snap, nil
}

// report is the JSON shape written to stdout.
type report struct {
	Filename      string       `json:"filename,omitempty"`
	Summary       string       `json:"summary,omitempty"`
	SummaryHTML   string       `json:"summary_html,omitempty"`
	MissingFields []string     `json:"missing_fields,omitempty"`
	ComputeError  string       `json:"compute_error,omitempty"`
	Items         []reportItem `json:"items,omitempty"`
	Total         *reportItem  `json:"total,omitempty"`
}

type reportItem struct {
	Name     string   `json:"name"`
	Label    string   `json:"label"`
	Value    any      `json:"value"`
	Quantity *float64 `json:"quantity,omitempty"`
}

func (a *App) writeReport(snap session.Snapshot) error {
	rep := report{
		Filename:      snap.Filename,
		Summary:       snap.Summary,
		SummaryHTML:   snap.SummaryHTML,
		MissingFields: snap.MissingFields,
		ComputeError:  snap.ComputeError,
	}
	if snap.Result != nil {
		for _, item := range snap.Result.Itemized {
			rep.Items = append(rep.Items, reportItem{
				Name:     item.Name,
				Label:    item.Label,
				Value:    item.Value,
				Quantity: item.Quantity,
			})
		}
		if t := snap.Result.Total; t != nil {
			rep.Total = &reportItem{Name: t.Name, Label: t.Label, Value: t.Value}
		}
	}

	enc := json.NewEncoder(a.outW)
	enc.SetIndent("", "  ")
	return enc.Encode(rep)
}
