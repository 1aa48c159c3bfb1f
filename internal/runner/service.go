// Package runner triggers scheduling runs on a cron spec and walks each
// planned combination through commit and delivery at its slot time.
package runner

import (
	"context"
	"errors"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"groupcast/internal/directory"
	"groupcast/internal/eventbus"
	"groupcast/internal/groupstate"
	"groupcast/internal/planner"
	"groupcast/internal/sink"
	logx "groupcast/pkg/logx"
)

const defaultCronSpec = "0 8 * * *"

// Config is the resolved runner configuration. Policy and Plan travel with
// it so a config reload swaps everything in one step.
type Config struct {
	Enabled    bool
	Cron       string
	Timezone   string
	AutoAssign bool
	DryRun     bool

	Policy groupstate.Policy
	Plan   planner.Config
}

type Service struct {
	mu  sync.Mutex
	cfg Config

	log   logx.Logger
	bus   eventbus.Bus
	coord *groupstate.Coordinator
	gen   *planner.Generator
	dir   directory.Directory
	snk   sink.Sink
	clock groupstate.Clock

	c      *cron.Cron
	runCtx context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(cfg Config, coord *groupstate.Coordinator, gen *planner.Generator, dir directory.Directory, snk sink.Sink, bus eventbus.Bus, clock groupstate.Clock, log logx.Logger) *Service {
	if clock == nil {
		clock = time.Now
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:   cfg,
		log:   log,
		bus:   bus,
		coord: coord,
		gen:   gen,
		dir:   dir,
		snk:   snk,
		clock: clock,
	}
}

// Apply swaps the runner configuration. A changed cron spec or timezone
// restarts the trigger.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	restart := s.c != nil && (cfg.Cron != s.cfg.Cron || cfg.Timezone != s.cfg.Timezone || cfg.Enabled != s.cfg.Enabled)
	s.cfg = cfg
	if restart {
		s.stopCronLocked()
		s.startCronLocked()
	}
}

func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return nil
	}
	s.runCtx, s.cancel = context.WithCancel(ctx)

	if s.cfg.AutoAssign {
		if err := s.autoAssign(s.runCtx); err != nil {
			return err
		}
	}
	s.startCronLocked()
	return nil
}

func (s *Service) startCronLocked() {
	if !s.cfg.Enabled {
		s.log.Info("runner disabled")
		return
	}
	loc := time.Local
	if s.cfg.Timezone != "" {
		if l, err := time.LoadLocation(s.cfg.Timezone); err == nil {
			loc = l
		} else {
			s.log.Warn("invalid timezone; using local", logx.String("tz", s.cfg.Timezone), logx.Err(err))
		}
	}
	spec := s.cfg.Cron
	if spec == "" {
		spec = defaultCronSpec
	}

	c := cron.New(cron.WithLocation(loc))
	_, err := c.AddFunc(spec, func() { s.RunOnce(s.runCtx) })
	if err != nil {
		s.log.Error("bad cron spec; runner not scheduled", logx.String("spec", spec), logx.Err(err))
		return
	}
	c.Start()
	s.c = c
	s.log.Info("runner started", logx.String("cron", spec), logx.String("tz", loc.String()))
}

func (s *Service) stopCronLocked() {
	if s.c == nil {
		return
	}
	s.c.Stop()
	s.c = nil
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	s.stopCronLocked()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		// best-effort
	}
	s.log.Info("runner stopped")
}

// autoAssign onboards every (active account, directory group) pair. New
// groups get their ramp-up horizon fixed here; existing assignments are
// no-ops.
func (s *Service) autoAssign(ctx context.Context) error {
	accounts, err := s.dir.ListActiveAccounts(ctx)
	if err != nil {
		return err
	}
	groups, err := s.dir.ListGroups(ctx)
	if err != nil {
		return err
	}
	for _, g := range groups {
		for _, a := range accounts {
			if err := s.coord.AssignAccount(ctx, g.ID, a.ID, s.cfg.Policy); err != nil {
				return err
			}
		}
	}
	s.log.Info("auto-assignment done", logx.Int("groups", len(groups)), logx.Int("accounts", len(accounts)))
	return nil
}

// RunOnce performs one full scheduling pass and dispatches the result in
// the background. Exposed so an operator can trigger a run outside the
// cron cadence.
func (s *Service) RunOnce(ctx context.Context) {
	s.mu.Lock()
	cfg := s.cfg
	s.mu.Unlock()

	s.bus.Publish(eventbus.Event{Type: eventbus.TypeRunStarted})
	start := s.clock()

	plan, err := s.generate(ctx, cfg)
	if err != nil {
		var inv *planner.InsufficientInventoryError
		if errors.As(err, &inv) {
			s.log.Error("scheduling run aborted", logx.String("missing", inv.Error()))
		} else {
			s.log.Error("scheduling run failed", logx.Err(err))
		}
		s.bus.Publish(eventbus.Event{Type: eventbus.TypeRunFinished, Data: err})
		return
	}

	for _, w := range plan.Warnings {
		s.log.Warn("schedule warning", logx.String("warning", w))
	}
	s.log.Info("scheduling run planned",
		logx.Int("combinations", len(plan.Combinations)),
		logx.Int("candidates", plan.Stats.TotalCandidates),
		logx.Int("skipped_rate_limit", plan.Stats.SkippedRateLimit),
		logx.Int("skipped_duplicate", plan.Stats.SkippedDuplicate),
		logx.Int("skipped_ramp_up", plan.Stats.SkippedRampUp),
		logx.Duration("took", s.clock().Sub(start)))
	s.bus.Publish(eventbus.Event{Type: eventbus.TypeRunFinished, Data: plan.Stats})

	if cfg.DryRun {
		s.log.Info("dry run; nothing will be posted")
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.dispatch(ctx, cfg, plan)
	}()
}

// generate fetches all inputs up front and runs the planner. The planner
// itself never mutates state, so a failed run can simply be regenerated.
func (s *Service) generate(ctx context.Context, cfg Config) (*planner.Plan, error) {
	accounts, err := s.dir.ListActiveAccounts(ctx)
	if err != nil {
		return nil, err
	}
	groups, err := s.dir.ListGroups(ctx)
	if err != nil {
		return nil, err
	}
	templates, err := s.dir.ListTemplates(ctx)
	if err != nil {
		return nil, err
	}
	media, err := s.dir.ListMedia(ctx)
	if err != nil {
		return nil, err
	}
	assigned, err := s.coord.AssignedGroups(ctx)
	if err != nil {
		return nil, err
	}

	// Pre-shuffle each account's group list for variety; the planner's own
	// tie-break is deterministic first-unused.
	rng := rand.New(rand.NewSource(s.clock().UnixNano()))
	for _, list := range assigned {
		rng.Shuffle(len(list), func(i, j int) { list[i], list[j] = list[j], list[i] })
	}

	byID := make(map[string]directory.Group, len(groups))
	for _, g := range groups {
		byID[g.ID] = g
	}

	in := planner.Inputs{
		Accounts:       accounts,
		AssignedGroups: assigned,
		Groups:         byID,
		Templates:      templates,
		Media:          media,
	}
	return s.gen.Generate(ctx, in, cfg.Plan, cfg.Policy)
}

// dispatch sleeps until each combination's slot, then commits it through
// the coordinator and hands it to the sink. A commit that loses its write
// race is retried once against the re-read state, then abandoned.
func (s *Service) dispatch(ctx context.Context, cfg Config, plan *planner.Plan) {
	combos := make([]planner.Combination, len(plan.Combinations))
	copy(combos, plan.Combinations)
	sort.Slice(combos, func(i, j int) bool { return combos[i].ScheduledAt.Before(combos[j].ScheduledAt) })

	for _, c := range combos {
		if wait := c.ScheduledAt.Sub(s.clock()); wait > 0 {
			t := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				t.Stop()
				return
			case <-t.C:
			}
		}
		s.deliverOne(ctx, cfg, c)
	}
}

func (s *Service) deliverOne(ctx context.Context, cfg Config, c planner.Combination) {
	log := s.log.With(
		logx.String("group", c.GroupID),
		logx.String("account", c.AccountID))

	ok, err := s.coord.RecordPost(ctx, c.GroupID, c.AccountID, c.TextVariantID, c.MediaIDs, cfg.Policy)
	if errors.Is(err, groupstate.ErrConflict) {
		// Someone else posted to this group in the meantime; one retry
		// against current state, then give up on this combination.
		ok, err = s.coord.RecordPost(ctx, c.GroupID, c.AccountID, c.TextVariantID, c.MediaIDs, cfg.Policy)
	}
	if err != nil {
		log.Warn("record post failed; combination abandoned", logx.Err(err))
		s.bus.Publish(eventbus.Event{Type: eventbus.TypePostResult, Data: err})
		return
	}
	if !ok {
		log.Warn("account no longer assigned; combination dropped")
		return
	}

	if err := s.snk.Deliver(ctx, c); err != nil {
		log.Warn("delivery failed", logx.Err(err))
		s.bus.Publish(eventbus.Event{Type: eventbus.TypePostResult, Data: err})
		return
	}
	s.bus.Publish(eventbus.Event{Type: eventbus.TypePostResult, Data: c.GroupID})
	log.Info("post delivered", logx.Time("slot", c.ScheduledAt))
}
