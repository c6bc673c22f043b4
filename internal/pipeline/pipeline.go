// Package pipeline is the Orchestrator (spec.md §4.7): it drives the
// Enumerator, Hash Stage, Plan Builder and Copy Executor in sequence,
// persists the state machine's current node after every transition, and
// wires a shared pause gate, cancellation and sleep-inhibit leases across
// whichever stage is active. Grounded on the teacher's engine.Run
// orchestration shape (validate inputs, build a collector, dispatch to the
// right stage function), generalized from one copy operation to a
// multi-stage resumable pipeline.
package pipeline

import (
	"context"
	"fmt"
	"runtime"

	"dupvault/internal/concurrency"
	"dupvault/internal/control"
	"dupvault/internal/copyexec"
	"dupvault/internal/enumerate"
	"dupvault/internal/filter"
	"dupvault/internal/hashstage"
	"dupvault/internal/model"
	"dupvault/internal/plan"
	"dupvault/internal/progress"
	"dupvault/internal/sleepinhibit"
	"dupvault/internal/store"
	"dupvault/internal/verify"
)

// Orchestrator ties the pipeline stages to a single project's store,
// enforcing the state machine and fanning progress to a Presenter.
type Orchestrator struct {
	store     *store.Store
	sleep     *sleepinhibit.Manager
	presenter progress.Presenter
	gate      *control.PauseGate
}

// New builds an Orchestrator for an already-open project store. inhib may
// be nil (falls back to a no-op sleep inhibitor); presenter may be nil
// (falls back to a silent one).
func New(s *store.Store, inhib sleepinhibit.Inhibitor, presenter progress.Presenter) *Orchestrator {
	if presenter == nil {
		presenter = progress.PresenterFunc(func(progress.Event) {})
	}
	return &Orchestrator{
		store:     s,
		sleep:     sleepinhibit.NewManager(inhib),
		presenter: presenter,
		gate:      control.NewPauseGate(),
	}
}

// State returns the project's current pipeline state.
func (o *Orchestrator) State() (model.PipelineState, error) {
	settings, err := o.store.GetSettings()
	if err != nil {
		return "", err
	}
	return settings.CurrentState, nil
}

// Pause requests that the active stage suspend at its next checkpoint.
// It is a no-op if the pipeline isn't in a pausable state.
func (o *Orchestrator) Pause(ctx context.Context) error {
	cur, err := o.State()
	if err != nil {
		return err
	}
	var next model.PipelineState
	switch cur {
	case model.StateScanning:
		next = model.StateScanPaused
	case model.StateHashing:
		next = model.StateHashPaused
	case model.StateCopying:
		next = model.StateCopyPaused
	default:
		return fmt.Errorf("%w: cannot pause from %s", ErrInvalidTransition, cur)
	}
	if err := o.transition(ctx, next); err != nil {
		return err
	}
	o.gate.Pause()
	return nil
}

// Resume reverses a prior Pause.
func (o *Orchestrator) Resume(ctx context.Context) error {
	cur, err := o.State()
	if err != nil {
		return err
	}
	var next model.PipelineState
	switch cur {
	case model.StateScanPaused:
		next = model.StateScanning
	case model.StateHashPaused:
		next = model.StateHashing
	case model.StateCopyPaused:
		next = model.StateCopying
	default:
		return fmt.Errorf("%w: cannot resume from %s", ErrInvalidTransition, cur)
	}
	o.gate.Resume()
	return o.transition(ctx, next)
}

// transition checks the current persisted state against the allowed-
// transition table before writing the new one.
func (o *Orchestrator) transition(ctx context.Context, to model.PipelineState) error {
	cur, err := o.State()
	if err != nil {
		return err
	}
	if !CanTransition(cur, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, cur, to)
	}
	return o.store.SetState(ctx, to)
}

// fault writes Faulted directly through the store without consulting
// CanTransition: the transition table lists only the normal forward edges,
// and several states (Planning among them) have no Faulted entry. It records
// err as the project's last error and returns err unchanged (wrapped only
// when recording the fault itself fails), so callers can propagate a single
// error value.
func (o *Orchestrator) fault(err error) error {
	if serr := o.store.SetState(context.Background(), model.StateFaulted); serr != nil {
		return fmt.Errorf("%w (also failed to record fault: %v)", err, serr)
	}
	_ = o.store.SetLastError(context.Background(), err.Error())
	return err
}

func (o *Orchestrator) tier(settings model.ProjectSettings) concurrency.Tier {
	return concurrency.ForProfile(settings.CPUProfile, runtime.NumCPU())
}

// Scan runs the Enumerator against every enabled scan root, persisting
// discovered files as File Instances. On success it returns to Idle;
// Hash can then be called to continue the pipeline.
func (o *Orchestrator) Scan(ctx context.Context) error {
	if err := o.transition(ctx, model.StateScanning); err != nil {
		return err
	}
	lease, err := o.sleep.Acquire("Scan")
	if err != nil {
		return o.fault(err)
	}
	defer lease.Release()

	settings, err := o.store.GetSettings()
	if err != nil {
		return o.fault(err)
	}
	roots, err := o.store.EnabledScanRoots()
	if err != nil {
		return o.fault(err)
	}

	// spec.md §4.2's rescan policy: clear_root(root_id) runs before
	// enumeration so stale File Instances, and the plan they invalidate,
	// never survive a topology change.
	for _, r := range roots {
		if err := o.store.ClearRoot(ctx, r.ID); err != nil {
			return o.fault(err)
		}
	}

	enumRoots := make([]enumerate.Root, len(roots))
	for i, r := range roots {
		enumRoots[i] = enumerate.Root{ID: r.ID, Path: r.Path}
	}

	chain := filter.NewChain(settings.EnabledCategories...)
	enumerator := enumerate.New(chain, o.gate)
	candidates, scanErrs := enumerator.Scan(ctx, enumRoots)

	tracker := progress.NewTracker(progress.StageScan)
	dispCtx, stopDisp := context.WithCancel(context.Background())
	go progress.NewDispatcher(tracker, o.presenter, int(o.tier(settings).UpdateHz)).Run(dispCtx)

	const batchSize = 500
	batch := make([]model.FileInstance, 0, batchSize)
	counted := make(map[int64]struct {
		files int64
		bytes int64
	})

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := o.store.BatchInsertFileInstances(ctx, batch)
		tracker.AddFilesDone(int64(n))
		batch = batch[:0]
		return err
	}

drain:
	for {
		select {
		case c, ok := <-candidates:
			if !ok {
				break drain
			}
			tracker.SetCurrentPath(c.RelativePath)
			batch = append(batch, model.FileInstance{
				ScanRootID:   c.ScanRootID,
				RelativePath: c.RelativePath,
				FileName:     c.FileName,
				Extension:    c.Extension,
				SizeBytes:    c.SizeBytes,
				ModifiedUtc:  c.ModifiedUtc,
				Category:     c.Category,
				Status:       model.FileDiscovered,
			})
			agg := counted[c.ScanRootID]
			agg.files++
			agg.bytes += c.SizeBytes
			counted[c.ScanRootID] = agg
			if len(batch) >= batchSize {
				if err := flush(); err != nil {
					stopDisp()
					return o.fault(err)
				}
			}
		case scanErr, ok := <-scanErrs:
			if !ok {
				continue
			}
			tracker.AddError(1)
			_ = scanErr
		case <-ctx.Done():
			break drain
		}
	}
	if err := flush(); err != nil {
		stopDisp()
		return o.fault(err)
	}
	stopDisp()

	if ctx.Err() != nil {
		return o.transition(context.Background(), model.StateIdle)
	}

	for rootID, agg := range counted {
		if err := o.store.UpdateScanRootStats(context.Background(), rootID, agg.files, agg.bytes); err != nil {
			return o.fault(err)
		}
	}

	return o.transition(context.Background(), model.StateIdle)
}

// Hash runs the Hash Stage over every File Instance pending a hash.
func (o *Orchestrator) Hash(ctx context.Context) error {
	if err := o.transition(ctx, model.StateHashing); err != nil {
		return err
	}
	lease, err := o.sleep.Acquire("Hash")
	if err != nil {
		return o.fault(err)
	}
	defer lease.Release()

	settings, err := o.store.GetSettings()
	if err != nil {
		return o.fault(err)
	}
	tier := o.tier(settings)

	stage, err := hashstage.New(o.store, settings.HashLevel, settings.MovieHashChunkSizeMB, o.gate, tier.Hashers)
	if err != nil {
		return o.fault(err)
	}

	tracker := progress.NewTracker(progress.StageHash)
	pending, err := o.store.FilesPendingHash(0)
	if err == nil {
		tracker.SetTotals(int64(len(pending)), 0)
	}
	dispCtx, stopDisp := context.WithCancel(context.Background())
	go progress.NewDispatcher(tracker, o.presenter, int(tier.UpdateHz)).Run(dispCtx)

	runErr := stage.Run(ctx)
	tracker.AddFilesDone(stage.FilesHashed.Load())
	for i := int64(0); i < stage.Errors.Load(); i++ {
		tracker.AddError(1)
	}
	stopDisp()

	if ctx.Err() != nil {
		return o.transition(context.Background(), model.StateIdle)
	}
	if runErr != nil {
		return o.fault(runErr)
	}
	return o.transition(context.Background(), model.StateIdle)
}

// Plan runs the Plan Builder, grouping hashed files by content and laying
// out the destination folder tree. On success the pipeline sits at
// ReadyToCopy until Copy is called.
func (o *Orchestrator) Plan(ctx context.Context) (int, error) {
	if err := o.transition(ctx, model.StatePlanning); err != nil {
		return 0, err
	}

	builder := plan.New(o.store)
	n, err := builder.Build(ctx)
	if err != nil {
		return 0, o.fault(err)
	}

	if err := o.transition(context.Background(), model.StateReadyToCopy); err != nil {
		return 0, err
	}
	return n, nil
}

// Copy runs the Copy Executor against the current plan, writing to
// destRoot. On success the pipeline reaches Completed; on cancellation it
// returns to Idle with in-progress jobs reset to Pending.
func (o *Orchestrator) Copy(ctx context.Context, destRoot string) error {
	if err := o.transition(ctx, model.StateCopying); err != nil {
		return err
	}
	lease, err := o.sleep.Acquire("Copy")
	if err != nil {
		return o.fault(err)
	}
	defer lease.Release()

	settings, err := o.store.GetSettings()
	if err != nil {
		return o.fault(err)
	}
	tier := o.tier(settings)

	if _, err := o.store.CreateJobsFromPlan(ctx, destRoot); err != nil {
		return o.fault(err)
	}

	exec := copyexec.New(o.store, settings.VerifyByDefault, o.gate, tier.CopyWorkers)

	tracker := progress.NewTracker(progress.StageCopy)
	dispCtx, stopDisp := context.WithCancel(context.Background())
	go progress.NewDispatcher(tracker, o.presenter, int(tier.UpdateHz)).Run(dispCtx)

	runErr := exec.Run(ctx, destRoot)
	tracker.AddFilesDone(exec.JobsCopied.Load())
	tracker.AddBytesDone(exec.BytesCopied.Load())
	for i := int64(0); i < exec.JobsFailed.Load(); i++ {
		tracker.AddError(1)
	}
	stopDisp()

	if ctx.Err() != nil {
		return o.transition(context.Background(), model.StateIdle)
	}
	if runErr != nil {
		return o.fault(runErr)
	}
	return o.transition(context.Background(), model.StateCompleted)
}

// Verify runs an independent post-copy verification pass. It does not
// participate in the state machine: it can be run at any time against
// whatever has already been copied.
func (o *Orchestrator) Verify(ctx context.Context) ([]verify.Record, error) {
	settings, err := o.store.GetSettings()
	if err != nil {
		return nil, err
	}
	tier := o.tier(settings)

	v := verify.New(o.store, tier.CopyWorkers)

	tracker := progress.NewTracker(progress.StageVerify)
	dispCtx, stopDisp := context.WithCancel(context.Background())
	go progress.NewDispatcher(tracker, o.presenter, int(tier.UpdateHz)).Run(dispCtx)
	defer stopDisp()

	records, err := v.Run(ctx)
	tracker.AddFilesDone(int64(len(records)))
	for _, r := range records {
		if r.Outcome != verify.Matched {
			tracker.AddError(1)
		}
	}
	return records, err
}
