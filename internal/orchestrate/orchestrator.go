// Package orchestrate drives the batch conversion pipeline: it
// sequences the discovered traces, runs collector sessions and trace
// replays against them, and normalizes each session's scratch output
// into flow-record files.
package orchestrate

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/looplab/fsm"
	"github.com/rs/zerolog/log"

	"github.com/InfraSecConsult/nfconvert-go/internal/repository"
	"github.com/InfraSecConsult/nfconvert-go/internal/sequence"
	"github.com/InfraSecConsult/nfconvert-go/lib/model"
)

// Mode selects the batch strategy.
type Mode string

const (
	// MergeAll converts every trace through one collector session into
	// a single merged flow file.
	MergeAll Mode = "merge"
	// PerInput gives every trace its own session and flow file.
	PerInput Mode = "per-input"
)

// Batch states.
const (
	StateIdle        = "idle"
	StateSequencing  = "sequencing"
	StateMergedRun   = "merged_run"
	StatePerInputRun = "per_input_run"
	StateFinalizing  = "finalizing"
	StateDone        = "done"
	StateFailed      = "failed"
)

const (
	eventSequence    = "sequence"
	eventRunMerged   = "run_merged"
	eventRunPerInput = "run_per_input"
	eventFinalize    = "finalize"
	eventComplete    = "complete"
	eventFail        = "fail"
)

// ErrDuplicateOutputName indicates two input traces in different
// subdirectories share a basename, so their per-input flow files would
// land on the same path and the later one would replace the earlier.
var ErrDuplicateOutputName = errors.New("duplicate output name")

// Session is a running collector the orchestrator must stop on every
// exit path, including cancellation.
type Session interface {
	Stop(ctx context.Context) error
}

// Launcher starts collector sessions bound to an endpoint and an empty
// scratch directory.
type Launcher interface {
	Start(ctx context.Context, endpoint, scratchDir string) (Session, error)
}

// Transmitter replays one trace at an active session's endpoint.
type Transmitter interface {
	Transmit(ctx context.Context, tracePath, endpoint string) error
}

// Normalizer turns one scratch directory into one flow file.
type Normalizer interface {
	Normalize(ctx context.Context, scratchDir, outPath string) error
}

// Options is the batch configuration. Endpoint and scratch directory
// are explicit parameters rather than ambient globals so independent
// batches can run against different endpoints.
type Options struct {
	InputDir     string
	ScratchDir   string
	OutputDir    string
	MergedOutput string
	Endpoint     string
	Mode         Mode
	TraceExt     string
	OutputExt    string
}

// UnitResult reports the outcome of one trace's conversion. In merged
// mode all units share the one merged flow file.
type UnitResult struct {
	Trace    sequence.Trace
	FlowFile string
	Err      error
}

// Report is the user-visible batch outcome: which units succeeded with
// their flow file paths, and which unit (if any) the batch failed on.
type Report struct {
	Mode      Mode
	Units     []UnitResult
	FlowFiles []string
	Err       error
}

// FailedUnit returns the unit the batch failed on, or nil.
func (r *Report) FailedUnit() *UnitResult {
	for i := range r.Units {
		if r.Units[i].Err != nil {
			return &r.Units[i]
		}
	}
	return nil
}

// Orchestrator runs one batch. It is single-use: construct, Run once,
// examine the report.
type Orchestrator struct {
	opts        Options
	launcher    Launcher
	transmitter Transmitter
	normalizer  Normalizer
	repo        repository.Repository
	onUnit      func(UnitResult)

	sm      *fsm.FSM
	traces  []sequence.Trace
	report  *Report
	runErr  error
	batchID int64
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithRepository records the batch and its units in a history store.
func WithRepository(repo repository.Repository) Option {
	return func(o *Orchestrator) { o.repo = repo }
}

// WithUnitCallback invokes fn after every completed or failed unit.
func WithUnitCallback(fn func(UnitResult)) Option {
	return func(o *Orchestrator) { o.onUnit = fn }
}

func New(opts Options, launcher Launcher, transmitter Transmitter, normalizer Normalizer, extra ...Option) *Orchestrator {
	if opts.TraceExt == "" {
		opts.TraceExt = ".pcap"
	}
	if opts.OutputExt == "" {
		opts.OutputExt = ".nf"
	}
	o := &Orchestrator{
		opts:        opts,
		launcher:    launcher,
		transmitter: transmitter,
		normalizer:  normalizer,
	}
	for _, apply := range extra {
		apply(o)
	}
	o.sm = fsm.NewFSM(
		StateIdle,
		fsm.Events{
			{Name: eventSequence, Src: []string{StateIdle}, Dst: StateSequencing},
			{Name: eventRunMerged, Src: []string{StateSequencing}, Dst: StateMergedRun},
			{Name: eventRunPerInput, Src: []string{StateSequencing}, Dst: StatePerInputRun},
			{Name: eventFinalize, Src: []string{StateMergedRun, StatePerInputRun}, Dst: StateFinalizing},
			{Name: eventComplete, Src: []string{StateFinalizing}, Dst: StateDone},
			{Name: eventFail, Src: []string{StateIdle, StateSequencing, StateMergedRun, StatePerInputRun, StateFinalizing}, Dst: StateFailed},
		},
		fsm.Callbacks{
			"enter_" + StateSequencing:  func(ctx context.Context, e *fsm.Event) { o.doSequence(ctx) },
			"enter_" + StateMergedRun:   func(ctx context.Context, e *fsm.Event) { o.doMergedRun(ctx) },
			"enter_" + StatePerInputRun: func(ctx context.Context, e *fsm.Event) { o.doPerInputRun(ctx) },
			"enter_" + StateFinalizing:  func(ctx context.Context, e *fsm.Event) { o.doFinalize(ctx) },
		},
	)
	return o
}

// State returns the current batch state.
func (o *Orchestrator) State() string { return o.sm.Current() }

// Run executes the batch and returns its report. The returned error is
// the first fatal error, also carried in Report.Err; units completed
// before the failure keep their flow files.
func (o *Orchestrator) Run(ctx context.Context) (*Report, error) {
	o.report = &Report{Mode: o.opts.Mode}

	runEvent := eventRunPerInput
	if o.opts.Mode == MergeAll {
		runEvent = eventRunMerged
	}
	for _, event := range []string{eventSequence, runEvent, eventFinalize} {
		if err := o.step(ctx, event); err != nil {
			return o.failBatch(ctx, err)
		}
	}
	if err := o.sm.Event(ctx, eventComplete); err != nil {
		return o.failBatch(ctx, err)
	}
	if o.repo != nil {
		if err := o.repo.FinishBatch(o.batchID, model.BatchSucceeded, ""); err != nil {
			log.Warn().Err(err).Msg("recording batch completion failed")
		}
	}
	log.Info().Str("mode", string(o.opts.Mode)).Int("units", len(o.report.Units)).
		Int("flow_files", len(o.report.FlowFiles)).Msg("batch complete")
	return o.report, nil
}

// step fires one state transition and surfaces any error its entry
// work produced.
func (o *Orchestrator) step(ctx context.Context, event string) error {
	o.runErr = nil
	if err := o.sm.Event(ctx, event); err != nil {
		return err
	}
	return o.runErr
}

func (o *Orchestrator) failBatch(ctx context.Context, cause error) (*Report, error) {
	if err := o.sm.Event(ctx, eventFail); err != nil {
		log.Warn().Err(err).Msg("transition to failed state rejected")
	}
	if o.repo != nil && o.batchID != 0 {
		if err := o.repo.FinishBatch(o.batchID, model.BatchFailed, cause.Error()); err != nil {
			log.Warn().Err(err).Msg("recording batch failure failed")
		}
	}
	o.report.Err = cause
	log.Error().Err(cause).Str("state", o.sm.Current()).Msg("batch failed")
	return o.report, cause
}

// doSequence discovers and orders the input traces. It performs no
// filesystem writes, so a malformed input name aborts the batch before
// any side effect.
func (o *Orchestrator) doSequence(ctx context.Context) {
	paths, err := sequence.Discover(o.opts.InputDir, o.opts.TraceExt)
	if err != nil {
		o.runErr = err
		return
	}
	traces, err := sequence.Order(paths)
	if err != nil {
		o.runErr = err
		return
	}
	if o.opts.Mode == PerInput {
		seen := make(map[string]string, len(traces))
		for _, tr := range traces {
			if prev, ok := seen[tr.Base]; ok {
				o.runErr = fmt.Errorf("%w: %s and %s both map to %s%s",
					ErrDuplicateOutputName, prev, tr.Path, tr.Base, o.opts.OutputExt)
				return
			}
			seen[tr.Base] = tr.Path
		}
	}
	o.traces = traces
	log.Info().Int("traces", len(traces)).Str("input", o.opts.InputDir).Msg("inputs sequenced")

	if o.repo != nil {
		batch := &model.BatchRecord{
			Mode:      string(o.opts.Mode),
			InputDir:  o.opts.InputDir,
			StartedAt: time.Now(),
		}
		id, err := o.repo.BeginBatch(batch)
		if err != nil {
			log.Warn().Err(err).Msg("recording batch start failed")
			return
		}
		o.batchID = id
	}
}

// doMergedRun replays every trace in sequence order through one
// collector session, then normalizes the shared scratch directory into
// the single merged flow file. On any failure no merged output is
// emitted.
func (o *Orchestrator) doMergedRun(ctx context.Context) {
	if len(o.traces) == 0 {
		log.Info().Msg("no input traces, producing no merged output")
		return
	}
	sess, err := o.launcher.Start(ctx, o.opts.Endpoint, o.opts.ScratchDir)
	if err != nil {
		o.runErr = err
		return
	}
	for _, tr := range o.traces {
		if err := ctx.Err(); err != nil {
			o.stopSession(sess)
			o.runErr = err
			return
		}
		if err := o.transmitter.Transmit(ctx, tr.Path, o.opts.Endpoint); err != nil {
			o.stopSession(sess)
			o.recordUnit(UnitResult{Trace: tr, Err: err})
			o.runErr = fmt.Errorf("replaying %s: %w", tr.Path, err)
			return
		}
	}
	o.stopSession(sess)

	if err := o.normalizer.Normalize(ctx, o.opts.ScratchDir, o.opts.MergedOutput); err != nil {
		o.runErr = err
		return
	}
	for _, tr := range o.traces {
		o.recordUnit(UnitResult{Trace: tr, FlowFile: o.opts.MergedOutput})
	}
	o.report.FlowFiles = append(o.report.FlowFiles, o.opts.MergedOutput)
	o.runErr = clearDir(o.opts.ScratchDir)
}

// doPerInputRun runs the full session/transmit/stop/normalize/clear
// cycle once per trace, producing one flow file per input. A failing
// unit aborts the batch; flow files from earlier units stay intact.
func (o *Orchestrator) doPerInputRun(ctx context.Context) {
	if err := os.MkdirAll(o.opts.OutputDir, 0o755); err != nil {
		o.runErr = fmt.Errorf("creating output directory: %w", err)
		return
	}
	for _, tr := range o.traces {
		if err := ctx.Err(); err != nil {
			o.runErr = err
			return
		}
		out := filepath.Join(o.opts.OutputDir, tr.Base+o.opts.OutputExt)
		if err := o.convertOne(ctx, tr, out); err != nil {
			o.recordUnit(UnitResult{Trace: tr, Err: err})
			o.runErr = fmt.Errorf("converting %s: %w", tr.Path, err)
			return
		}
		o.recordUnit(UnitResult{Trace: tr, FlowFile: out})
		o.report.FlowFiles = append(o.report.FlowFiles, out)
	}
}

// convertOne is one independent conversion unit: fresh session, single
// replay, stop, normalize, drain scratch.
func (o *Orchestrator) convertOne(ctx context.Context, tr sequence.Trace, outPath string) error {
	sess, err := o.launcher.Start(ctx, o.opts.Endpoint, o.opts.ScratchDir)
	if err != nil {
		return err
	}
	if err := o.transmitter.Transmit(ctx, tr.Path, o.opts.Endpoint); err != nil {
		o.stopSession(sess)
		return err
	}
	o.stopSession(sess)
	if err := o.normalizer.Normalize(ctx, o.opts.ScratchDir, outPath); err != nil {
		return err
	}
	return clearDir(o.opts.ScratchDir)
}

// doFinalize removes the drained scratch directory root.
func (o *Orchestrator) doFinalize(ctx context.Context) {
	if err := os.Remove(o.opts.ScratchDir); err != nil && !os.IsNotExist(err) {
		o.runErr = fmt.Errorf("removing scratch directory: %w", err)
	}
}

// stopSession stops a collector best-effort. A failed stop is logged,
// not escalated: the detached process will eventually be reaped, and
// stop failures must not mask the error that triggered shutdown. The
// background context keeps shutdown running even when the batch was
// canceled.
func (o *Orchestrator) stopSession(sess Session) {
	if err := sess.Stop(context.Background()); err != nil {
		log.Warn().Err(err).Msg("collector stop reported an error")
	}
}

func (o *Orchestrator) recordUnit(unit UnitResult) {
	o.report.Units = append(o.report.Units, unit)
	if o.onUnit != nil {
		o.onUnit(unit)
	}
	if o.repo == nil || o.batchID == 0 {
		return
	}
	rec := &model.UnitRecord{
		BatchID:     o.batchID,
		TracePath:   unit.Trace.Path,
		SortKey:     unit.Trace.Key,
		FlowFile:    unit.FlowFile,
		Status:      model.UnitSucceeded,
		CompletedAt: time.Now(),
	}
	if unit.Err != nil {
		rec.Status = model.UnitFailed
		rec.Error = unit.Err.Error()
	}
	if err := o.repo.AddUnit(rec); err != nil {
		log.Warn().Err(err).Str("trace", unit.Trace.Path).Msg("recording unit failed")
	}
}

// clearDir removes everything inside dir, leaving dir itself for the
// next unit.
func clearDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("draining scratch directory: %w", err)
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			return fmt.Errorf("draining scratch directory: %w", err)
		}
	}
	return nil
}
