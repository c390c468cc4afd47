// Package processor runs pick-and-place jobs.
//
// A job run is a state machine: PreFlight validates the job and prepares
// the machine, then each cycle plans one placement per nozzle, changes
// nozzle tips, feeds and picks, aligns and places, until no pending
// placements are left. Operators recover from failures with Skip,
// IgnoreContinue or Abort.
package processor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mastercactapus/gpnp/errors"
	"github.com/mastercactapus/gpnp/fsm"
	"github.com/mastercactapus/gpnp/job"
	"github.com/mastercactapus/gpnp/logger"
	"github.com/mastercactapus/gpnp/machine"
	"github.com/mastercactapus/gpnp/metrics"
	"github.com/mastercactapus/gpnp/planner"
)

const (
	StateUninitialized   fsm.State = "Uninitialized"
	StatePreFlight       fsm.State = "PreFlight"
	StateTipCalibration  fsm.State = "TipCalibration"
	StateFiducialCheck   fsm.State = "FiducialCheck"
	StatePlan            fsm.State = "Plan"
	StateChangeNozzleTip fsm.State = "ChangeNozzleTip"
	StateFeed            fsm.State = "Feed"
	StateAlign           fsm.State = "Align"
	StatePlace           fsm.State = "Place"
	StateCleanup         fsm.State = "Cleanup"
	StateStopped         fsm.State = "Stopped"
)

const (
	MsgInitialize     fsm.Message = "Initialize"
	MsgNext           fsm.Message = "Next"
	MsgComplete       fsm.Message = "Complete"
	MsgAbort          fsm.Message = "Abort"
	MsgSkip           fsm.Message = "Skip"
	MsgIgnoreContinue fsm.Message = "IgnoreContinue"
	MsgReset          fsm.Message = "Reset"
)

// Options are the collaborators of a Processor. Only the machine is
// required.
type Options struct {
	Config Config

	// Planner defaults to the one named by Config.Planner.
	Planner planner.Planner

	// Aligner is the bottom vision. Without it parts are placed
	// unaligned.
	Aligner machine.PartAligner

	// Locator runs fiducial checks. Jobs that ask for one fail without it.
	Locator machine.FiducialLocator

	JobSaver    job.Saver
	ConfigSaver ConfigSaver

	// Now defaults to time.Now.
	Now func() time.Time
}

// Stats count the work done by a job run.
type Stats struct {
	PartsPlaced      int `json:"partsPlaced"`
	PartsSkipped     int `json:"partsSkipped"`
	Cycles           int `json:"cycles"`
	NozzleTipChanges int `json:"nozzleTipChanges"`
}

type plannedPlacement struct {
	nozzle *machine.Nozzle
	jp     *job.JobPlacement
	feeder machine.Feeder
	offset *machine.PartAlignmentOffset

	disableAlignment bool
	stepComplete     bool
}

func (pp *plannedPlacement) String() string {
	return pp.nozzle.Name() + " -> " + pp.jp.String()
}

// Processor runs one job at a time on a Machine. All methods are safe
// for concurrent use; they are serialized.
type Processor struct {
	m     *machine.Machine
	parts job.PartLibrary
	opt   Options
	cfg   Config

	mx  sync.Mutex
	fsm *fsm.Machine

	job           *job.Job
	runID         string
	jobPlacements []*job.JobPlacement
	planned       []*plannedPlacement
	placeOrdered  bool
	fidsChecked   map[*job.BoardLocation]bool
	makeSkip      bool
	topLight      bool

	start          time.Time
	stepStart      time.Time
	lastConfigSave time.Time
	stats          Stats

	lmx       sync.Mutex
	listeners []Listener
}

// New returns a Processor for m, resolving placements against parts.
func New(m *machine.Machine, parts job.PartLibrary, opt Options) (*Processor, error) {
	err := opt.Config.Validate()
	if err != nil {
		return nil, err
	}
	if opt.Planner == nil {
		opt.Planner, err = planner.ByName(opt.Config.Planner)
		if err != nil {
			return nil, err
		}
	}
	if opt.Now == nil {
		opt.Now = time.Now
	}

	p := &Processor{
		m:     m,
		parts: parts,
		opt:   opt,
		cfg:   opt.Config,
	}
	p.fsm = p.buildFSM()
	p.fsm.OnTransition(p.transitioned)
	return p, nil
}

func (p *Processor) buildFSM() *fsm.Machine {
	m := fsm.New(StateUninitialized)
	add := func(from fsm.State, msg fsm.Message, to fsm.State, a fsm.Action, follow fsm.Message) {
		m.Add(from, msg, fsm.Transition{To: to, Action: a, Follow: follow})
	}

	add(StateUninitialized, MsgInitialize, StatePreFlight, p.doInitialize, "")

	add(StatePreFlight, MsgNext, StateTipCalibration, p.doPreFlight, "")
	add(StatePreFlight, MsgAbort, StateCleanup, nil, MsgNext)

	add(StateTipCalibration, MsgNext, StateFiducialCheck, p.doTipCalibration, "")
	add(StateTipCalibration, MsgSkip, StateFiducialCheck, nil, MsgNext)
	add(StateTipCalibration, MsgAbort, StateCleanup, nil, MsgNext)

	add(StateFiducialCheck, MsgNext, StatePlan, p.doFiducialCheck, "")
	add(StateFiducialCheck, MsgSkip, StatePlan, nil, MsgNext)
	add(StateFiducialCheck, MsgAbort, StateCleanup, nil, MsgNext)

	add(StatePlan, MsgNext, StateChangeNozzleTip, p.doPlan, MsgNext)
	add(StatePlan, MsgAbort, StateCleanup, nil, MsgNext)
	add(StatePlan, MsgComplete, StateCleanup, nil, MsgNext)

	add(StateChangeNozzleTip, MsgNext, StateFeed, p.doChangeNozzleTip, "")
	add(StateChangeNozzleTip, MsgSkip, StateChangeNozzleTip, p.doSkip, MsgNext)
	add(StateChangeNozzleTip, MsgAbort, StateCleanup, nil, MsgNext)

	add(StateFeed, MsgNext, StateAlign, p.doFeedAndPick, "")
	add(StateFeed, MsgSkip, StateFeed, p.doSkip, MsgNext)
	add(StateFeed, MsgIgnoreContinue, StateFeed, p.doIgnoreContinue, MsgNext)
	add(StateFeed, MsgAbort, StateCleanup, nil, MsgNext)

	add(StateAlign, MsgNext, StatePlace, p.doAlign, "")
	add(StateAlign, MsgSkip, StateAlign, p.doSkip, MsgNext)
	add(StateAlign, MsgIgnoreContinue, StateAlign, p.doIgnoreContinue, MsgNext)
	add(StateAlign, MsgAbort, StateCleanup, nil, MsgNext)

	add(StatePlace, MsgNext, StatePlan, p.doPlace, "")
	add(StatePlace, MsgSkip, StatePlace, p.doSkip, MsgNext)
	add(StatePlace, MsgAbort, StateCleanup, nil, MsgNext)

	add(StateCleanup, MsgNext, StateStopped, p.doCleanup, MsgReset)

	add(StateStopped, MsgReset, StateUninitialized, p.doReset, "")
	return m
}

func (p *Processor) transitioned(from, to fsm.State, msg fsm.Message) {
	now := p.opt.Now()
	if !p.stepStart.IsZero() {
		metrics.StepDuration.WithLabelValues(string(from)).Observe(now.Sub(p.stepStart).Seconds())
	}
	p.stepStart = now
	logger.Logger.Debugw("job state changed",
		logger.FieldRunID, p.runID,
		logger.FieldMessage, msg,
		logger.FieldState, to,
		"from", from,
	)
}

// AddListener registers l for status updates.
func (p *Processor) AddListener(l Listener) {
	p.lmx.Lock()
	p.listeners = append(p.listeners, l)
	p.lmx.Unlock()
}

func (p *Processor) eachListener(fn func(Listener)) {
	p.lmx.Lock()
	l := p.listeners
	p.lmx.Unlock()
	for _, ln := range l {
		fn(ln)
	}
}

func (p *Processor) textStatus(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	logger.Logger.Debugw(msg, logger.FieldRunID, p.runID)
	id := p.runID
	p.eachListener(func(l Listener) { l.TextStatus(id, msg) })
}

func (p *Processor) fireJobState(s JobState) {
	id := p.runID
	p.eachListener(func(l Listener) { l.JobState(id, s) })
}

// Initialize prepares a run of j. The job is validated by the first Next.
func (p *Processor) Initialize(ctx context.Context, j *job.Job) error {
	p.mx.Lock()
	defer p.mx.Unlock()

	prev := p.job
	p.job = j
	err := p.fsm.Send(ctx, MsgInitialize)
	if err != nil {
		p.job = prev
		return err
	}
	p.fireJobState(JobStateRunning)
	return nil
}

// Next performs the next step of the job. It returns false once the job
// is finished.
//
// On error the run stays where it failed: calling Next again retries the
// step, or the operator can Skip, IgnoreContinue or Abort.
func (p *Processor) Next(ctx context.Context) (bool, error) {
	p.mx.Lock()
	defer p.mx.Unlock()

	err := p.fsm.Send(ctx, MsgNext)
	for err != nil && p.makeSkip && !p.cfg.DisableAutomatics && p.fsm.Can(MsgSkip) {
		logger.Logger.Warnw("skipping placement automatically",
			logger.FieldRunID, p.runID,
			logger.FieldState, p.fsm.State(),
			logger.FieldError, err,
		)
		err = p.fsm.Send(ctx, MsgSkip)
	}
	if err != nil {
		p.makeSkip = false
		metrics.StepErrors.WithLabelValues(string(p.fsm.State())).Inc()
		p.fireJobState(JobStateError)
		return false, err
	}

	switch {
	case p.fsm.State() == StateStopped:
		return false, p.fsm.Send(ctx, MsgReset)
	case p.fsm.State() == StatePlan && len(p.pending()) == 0:
		var skipped int
		for _, jp := range p.jobPlacements {
			if jp.Status == job.StatusSkipped {
				jp.Status = job.StatusPending
				skipped++
			}
		}
		if skipped > 0 {
			p.m.FireHook("Job.SkipList", p.hookVars())
			return false, errors.WithHint(
				errors.Newf("%d Parts skipped. Operator action required to finish assembling.", skipped),
				"fix the cause and continue to retry the skipped parts, or abort",
			)
		}

		err = p.fsm.Send(ctx, MsgComplete)
		if err != nil {
			p.fireJobState(JobStateError)
			return false, err
		}
		metrics.JobsFinished.Inc()
		p.fireJobState(JobStateFinished)
		return false, nil
	}

	return true, nil
}

func (p *Processor) send(ctx context.Context, msg fsm.Message) error {
	p.mx.Lock()
	defer p.mx.Unlock()
	return p.fsm.Send(ctx, msg)
}

// Abort stops the job, cleaning up the machine.
func (p *Processor) Abort(ctx context.Context) error { return p.send(ctx, MsgAbort) }

// Skip drops the placement the current step failed on.
func (p *Processor) Skip(ctx context.Context) error { return p.send(ctx, MsgSkip) }

// IgnoreContinue marks the failed step as done and carries on.
func (p *Processor) IgnoreContinue(ctx context.Context) error {
	return p.send(ctx, MsgIgnoreContinue)
}

// Reset returns a stopped processor to Uninitialized.
func (p *Processor) Reset(ctx context.Context) error { return p.send(ctx, MsgReset) }

func (p *Processor) State() fsm.State {
	p.mx.Lock()
	defer p.mx.Unlock()
	return p.fsm.State()
}

func (p *Processor) CanSkip() bool {
	p.mx.Lock()
	defer p.mx.Unlock()
	return p.fsm.Can(MsgSkip)
}

func (p *Processor) CanIgnoreContinue() bool {
	p.mx.Lock()
	defer p.mx.Unlock()
	return p.fsm.Can(MsgIgnoreContinue)
}

func (p *Processor) Stats() Stats {
	p.mx.Lock()
	defer p.mx.Unlock()
	return p.stats
}

// RunID identifies the current or last job run.
func (p *Processor) RunID() string {
	p.mx.Lock()
	defer p.mx.Unlock()
	return p.runID
}

// PlacementStatus is the progress of one placement of a run.
type PlacementStatus struct {
	Board     string     `json:"board"`
	Placement string     `json:"placement"`
	Part      string     `json:"part"`
	Status    job.Status `json:"status"`
}

// Status is a snapshot of the processor for reporting.
type Status struct {
	RunID             string            `json:"runId"`
	Job               string            `json:"job,omitempty"`
	State             fsm.State         `json:"state"`
	CanSkip           bool              `json:"canSkip"`
	CanIgnoreContinue bool              `json:"canIgnoreContinue"`
	Stats             Stats             `json:"stats"`
	Placements        []PlacementStatus `json:"placements"`
}

func (p *Processor) Status() Status {
	p.mx.Lock()
	defer p.mx.Unlock()

	s := Status{
		RunID:             p.runID,
		State:             p.fsm.State(),
		CanSkip:           p.fsm.Can(MsgSkip),
		CanIgnoreContinue: p.fsm.Can(MsgIgnoreContinue),
		Stats:             p.stats,
		Placements:        make([]PlacementStatus, 0, len(p.jobPlacements)),
	}
	if p.job != nil {
		s.Job = p.job.Name
	}
	for _, jp := range p.jobPlacements {
		s.Placements = append(s.Placements, PlacementStatus{
			Board:     jp.BoardLocation.Name(),
			Placement: jp.Placement.ID,
			Part:      jp.PartID(),
			Status:    jp.Status,
		})
	}
	return s
}

func (p *Processor) hookVars() map[string]interface{} {
	vars := map[string]interface{}{"runID": p.runID}
	if p.job != nil {
		vars["job"] = p.job.Name
		vars["jobFile"] = p.job.File()
	}
	return vars
}

func (p *Processor) pending() []*job.JobPlacement {
	var res []*job.JobPlacement
	for _, jp := range p.jobPlacements {
		if jp.Status == job.StatusPending {
			res = append(res, jp)
		}
	}
	return res
}

func (p *Processor) clearStepComplete() {
	for _, pp := range p.planned {
		pp.stepComplete = false
	}
}

func (p *Processor) doInitialize(ctx context.Context) error {
	if p.job == nil {
		return errors.New("can't initialize without a job")
	}
	p.runID = uuid.NewString()
	logger.Logger.Infow("job initialized", logger.FieldRunID, p.runID, logger.FieldFile, p.job.File())
	return nil
}

func (p *Processor) doReset(ctx context.Context) error {
	p.job = nil
	p.planned = nil
	return nil
}
