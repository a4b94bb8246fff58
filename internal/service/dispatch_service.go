package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/centralplastcontato-cell/buffet-dispatch-service/environments"
	"github.com/centralplastcontato-cell/buffet-dispatch-service/internal/dispatch"
	"github.com/centralplastcontato-cell/buffet-dispatch-service/internal/domain"
	"github.com/centralplastcontato-cell/buffet-dispatch-service/pkg/logger"
)

var (
	ErrInstanceNotConnected = errors.New("whatsapp instance is not connected")
	ErrNoEligibleRecipients = errors.New("no eligible recipients to dispatch")
	ErrRunNotFound          = errors.New("dispatch run not found")
	ErrRunActive            = errors.New("dispatch run is still active")
	ErrRunNotActive         = errors.New("dispatch run is not active")
	ErrNothingToResume      = errors.New("dispatch run has no recipients left to attempt")
)

// Small internal interfaces so we can test without touching real DB/Redis/gateway.
type runRepository interface {
	CreateRun(ctx context.Context, run *domain.DispatchRun, recipients []domain.Recipient) error
	RecordOutcome(ctx context.Context, outcome domain.Outcome) error
	FinishRun(ctx context.Context, runID string, status domain.RunStatus) error
	MarkRunning(ctx context.Context, runID string) error
	GetRun(ctx context.Context, runID string) (*domain.DispatchRun, error)
	GetRecipients(ctx context.Context, runID string) ([]domain.RunRecipient, error)
	GetUnreached(ctx context.Context, runID string) ([]domain.RunRecipient, error)
	ResetForResume(ctx context.Context, runID string) (int64, error)
	ListRuns(ctx context.Context, page, pageSize int) ([]domain.DispatchRun, int64, error)
	GetRunStats(ctx context.Context) (running, completed, cancelled int64, err error)
}

type settingsRepository interface {
	Get(ctx context.Context, companyID string) (*domain.DispatchSettings, error)
	Upsert(ctx context.Context, settings *domain.DispatchSettings) error
}

type gatewayClient interface {
	SendText(ctx context.Context, instance, address, text string) (*domain.GatewaySendResponse, error)
	ConnectionState(ctx context.Context, instance string) (string, error)
}

// ProgressCache is the live-snapshot store. Exported so main can pass nil
// when Redis is unavailable.
type ProgressCache interface {
	CacheProgress(ctx context.Context, snapshot domain.Snapshot) error
	GetProgress(ctx context.Context, runID string) (*domain.Snapshot, error)
}

type GuestDispatchRequest struct {
	CompanyID       string
	Instance        string
	Guests          []domain.GuestCandidate
	Vars            map[string]string
	Templates       []string
	DelayMinSeconds *int
	DelayMaxSeconds *int
}

type GroupDispatchRequest struct {
	CompanyID string
	Instance  string
	Groups    []domain.GroupCandidate
	Vars      map[string]string
	Templates []string
}

type activeRun struct {
	session *dispatch.Session
	cancel  context.CancelFunc
}

// DispatchService owns the lifecycle of dispatch runs: prerequisite checks,
// recipient selection, launching the paced loop, cancellation, status reads
// and resume of interrupted runs.
type DispatchService struct {
	runs     runRepository
	settings settingsRepository
	gateway  gatewayClient
	cache    ProgressCache
	cfg      environments.DispatchConfig

	// rootCtx outlives individual HTTP requests; per-run contexts derive
	// from it so runs stop on service shutdown but not on request return.
	rootCtx context.Context

	mu     sync.Mutex
	active map[string]*activeRun
	wg     sync.WaitGroup
}

func NewDispatchService(
	rootCtx context.Context,
	runs runRepository,
	settings settingsRepository,
	gateway gatewayClient,
	cache ProgressCache,
	cfg environments.DispatchConfig,
) *DispatchService {
	return &DispatchService{
		runs:     runs,
		settings: settings,
		gateway:  gateway,
		cache:    cache,
		cfg:      cfg,
		rootCtx:  rootCtx,
		active:   make(map[string]*activeRun),
	}
}

// StartGuestDispatch filters the guest roster and launches a paced run over
// the eligible recipients. Returns the new run ID.
func (s *DispatchService) StartGuestDispatch(ctx context.Context, req GuestDispatchRequest) (string, error) {
	if err := s.checkInstance(ctx, req.Instance); err != nil {
		return "", err
	}

	settings := s.loadSettings(ctx, req.CompanyID)

	recipients := dispatch.EligibleGuests(req.Guests)
	if len(recipients) == 0 {
		return "", ErrNoEligibleRecipients
	}
	s.warnDuplicates(recipients)

	minSec := settings.DelayMinSeconds
	maxSec := settings.DelayMaxSeconds
	if req.DelayMinSeconds != nil {
		minSec = *req.DelayMinSeconds
	}
	if req.DelayMaxSeconds != nil {
		maxSec = *req.DelayMaxSeconds
	}
	policy := dispatch.NewRandomWindow(minSec, maxSec)

	pool := s.templatePool(req.Templates, settings)
	vars := s.sessionVars(req.Vars, settings)

	return s.launch(ctx, req.CompanyID, domain.KindGuests, req.Instance, recipients, pool, vars, policy)
}

// StartGroupDispatch launches a paced run over the checked WhatsApp groups,
// using the flat-base-plus-jitter pacing.
func (s *DispatchService) StartGroupDispatch(ctx context.Context, req GroupDispatchRequest) (string, error) {
	if err := s.checkInstance(ctx, req.Instance); err != nil {
		return "", err
	}

	settings := s.loadSettings(ctx, req.CompanyID)

	recipients := dispatch.SelectedGroups(req.Groups)
	if len(recipients) == 0 {
		return "", ErrNoEligibleRecipients
	}
	s.warnDuplicates(recipients)

	policy := dispatch.NewJitteredBase(settings.GroupBaseSeconds, settings.GroupJitterSeconds)

	pool := s.templatePool(req.Templates, settings)
	vars := s.sessionVars(req.Vars, settings)

	return s.launch(ctx, req.CompanyID, domain.KindGroups, req.Instance, recipients, pool, vars, policy)
}

// CancelDispatch stops a live run cooperatively. The loop finishes its
// in-flight send, records the partial tally and stops.
func (s *DispatchService) CancelDispatch(runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.active[runID]
	if !ok {
		return ErrRunNotActive
	}

	run.cancel()
	logger.Infof("Dispatch %s cancellation requested", runID)
	return nil
}

// GetDispatchStatus returns the freshest available snapshot: the live
// session when the run is active, the cached snapshot when present, and the
// stored run otherwise.
func (s *DispatchService) GetDispatchStatus(ctx context.Context, runID string) (*domain.Snapshot, error) {
	s.mu.Lock()
	run, ok := s.active[runID]
	s.mu.Unlock()

	// A reservation placed by a resume in progress has no session yet;
	// fall through to the cache or the store.
	if ok && run.session != nil {
		snapshot := run.session.Snapshot()
		return &snapshot, nil
	}

	if s.cache != nil {
		snapshot, err := s.cache.GetProgress(ctx, runID)
		if err != nil {
			logger.Warnf("Failed to read progress cache for run %s: %v", runID, err)
		} else if snapshot != nil {
			return snapshot, nil
		}
	}

	return s.snapshotFromStore(ctx, runID)
}

// ResumeDispatch re-runs an interrupted or cancelled run over the recipients
// that never reached status sent. Failed recipients get a fresh attempt.
// Template and substitution values are re-supplied by the caller because
// they are not stored with the run; company settings fill any gap.
func (s *DispatchService) ResumeDispatch(ctx context.Context, runID string, vars map[string]string, templates []string) error {
	// Reserve the run ID before any I/O. A concurrent resume of the same
	// run must hit ErrRunActive here, not pass the check while this one is
	// still talking to the gateway and launch a second loop over the same
	// recipients.
	s.mu.Lock()
	if _, isActive := s.active[runID]; isActive {
		s.mu.Unlock()
		return ErrRunActive
	}
	s.active[runID] = &activeRun{cancel: func() {}}
	s.mu.Unlock()

	launched := false
	defer func() {
		if !launched {
			s.mu.Lock()
			delete(s.active, runID)
			s.mu.Unlock()
		}
	}()

	run, err := s.runs.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	if run == nil {
		return ErrRunNotFound
	}

	if err := s.checkInstance(ctx, run.Instance); err != nil {
		return err
	}

	unreached, err := s.runs.GetUnreached(ctx, runID)
	if err != nil {
		return err
	}
	if len(unreached) == 0 {
		return ErrNothingToResume
	}

	if _, err := s.runs.ResetForResume(ctx, runID); err != nil {
		return err
	}
	if err := s.runs.MarkRunning(ctx, runID); err != nil {
		return err
	}

	stored, err := s.runs.GetRecipients(ctx, runID)
	if err != nil {
		return err
	}

	recipients := make([]domain.Recipient, len(stored))
	statuses := make([]domain.RecipientStatus, len(stored))
	for i, rec := range stored {
		recipients[i] = domain.Recipient{Name: rec.Name, Address: rec.Address}
		statuses[i] = rec.Status
	}

	settings := s.loadSettings(ctx, run.CompanyID)

	var policy dispatch.Policy
	if run.Kind == domain.KindGroups {
		policy = dispatch.NewJitteredBase(settings.GroupBaseSeconds, settings.GroupJitterSeconds)
	} else {
		policy = dispatch.NewRandomWindow(settings.DelayMinSeconds, settings.DelayMaxSeconds)
	}

	pool := s.templatePool(templates, settings)
	sessionVars := s.sessionVars(vars, settings)

	session := dispatch.NewResumedSession(runID, recipients, statuses)
	launched = true
	s.run(session, run.Instance, pool, sessionVars, policy)

	logger.Infof("Dispatch %s resumed: %d of %d recipients left", runID, len(unreached), len(stored))
	return nil
}

func (s *DispatchService) ListDispatches(ctx context.Context, page, pageSize int) ([]domain.DispatchRun, int64, error) {
	return s.runs.ListRuns(ctx, page, pageSize)
}

// GetDispatch returns the stored run plus its full per-recipient outcome list.
func (s *DispatchService) GetDispatch(ctx context.Context, runID string) (*domain.DispatchRun, []domain.RunRecipient, error) {
	run, err := s.runs.GetRun(ctx, runID)
	if err != nil {
		return nil, nil, err
	}
	if run == nil {
		return nil, nil, ErrRunNotFound
	}

	recipients, err := s.runs.GetRecipients(ctx, runID)
	if err != nil {
		return nil, nil, err
	}

	return run, recipients, nil
}

// DispatchStats summarizes stored runs per phase plus the in-memory live
// run count.
type DispatchStats struct {
	Active    int   `json:"active"`
	Running   int64 `json:"running"`
	Completed int64 `json:"completed"`
	Cancelled int64 `json:"cancelled"`
}

func (s *DispatchService) GetDispatchStats(ctx context.Context) (*DispatchStats, error) {
	running, completed, cancelled, err := s.runs.GetRunStats(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	active := len(s.active)
	s.mu.Unlock()

	return &DispatchStats{
		Active:    active,
		Running:   running,
		Completed: completed,
		Cancelled: cancelled,
	}, nil
}

func (s *DispatchService) GetSettings(ctx context.Context, companyID string) (*domain.DispatchSettings, error) {
	return s.settings.Get(ctx, companyID)
}

func (s *DispatchService) SaveSettings(ctx context.Context, settings *domain.DispatchSettings) error {
	return s.settings.Upsert(ctx, settings)
}

// Wait blocks until all launched runs have finished. Used on shutdown after
// the root context is cancelled.
func (s *DispatchService) Wait() {
	s.wg.Wait()
}

func (s *DispatchService) checkInstance(ctx context.Context, instance string) error {
	state, err := s.gateway.ConnectionState(ctx, instance)
	if err != nil {
		return fmt.Errorf("failed to check instance %s: %w", instance, err)
	}
	if state != "open" {
		logger.Warnf("Instance %s is not connected (state: %s)", instance, state)
		return ErrInstanceNotConnected
	}
	return nil
}

// loadSettings fetches the company's stored settings; any fetch problem or a
// missing row falls back to the configured defaults instead of failing the
// dispatch.
func (s *DispatchService) loadSettings(ctx context.Context, companyID string) domain.DispatchSettings {
	defaults := domain.DispatchSettings{
		CompanyID:          companyID,
		DelayMinSeconds:    s.cfg.MinDelaySeconds,
		DelayMaxSeconds:    s.cfg.MaxDelaySeconds,
		GroupBaseSeconds:   s.cfg.GroupBaseSeconds,
		GroupJitterSeconds: s.cfg.GroupJitterSeconds,
		Templates:          domain.TemplateList{s.cfg.DefaultTemplate},
	}

	stored, err := s.settings.Get(ctx, companyID)
	if err != nil {
		logger.Warnf("Failed to load settings for company %s, using defaults: %v", companyID, err)
		return defaults
	}
	if stored == nil {
		return defaults
	}

	if len(stored.Templates) == 0 {
		stored.Templates = defaults.Templates
	}
	return *stored
}

func (s *DispatchService) templatePool(requested []string, settings domain.DispatchSettings) []string {
	if len(requested) > 0 {
		return requested
	}
	if len(settings.Templates) > 0 {
		return settings.Templates
	}
	return []string{s.cfg.DefaultTemplate}
}

func (s *DispatchService) sessionVars(vars map[string]string, settings domain.DispatchSettings) map[string]string {
	merged := make(map[string]string, len(vars)+1)
	for k, v := range vars {
		merged[k] = v
	}
	if merged["link"] == "" && settings.DefaultLink != "" {
		merged["link"] = settings.DefaultLink
	}
	return merged
}

func (s *DispatchService) warnDuplicates(recipients []domain.Recipient) {
	dups := dispatch.DuplicateAddresses(recipients)
	if len(dups) > 0 {
		logger.Warnf("Recipient list contains duplicated addresses (each will receive every send): %s",
			strings.Join(dups, ", "))
	}
}

func (s *DispatchService) launch(
	ctx context.Context,
	companyID string,
	kind domain.DispatchKind,
	instance string,
	recipients []domain.Recipient,
	pool []string,
	vars map[string]string,
	policy dispatch.Policy,
) (string, error) {
	runID := uuid.NewString()

	run := &domain.DispatchRun{
		ID:        runID,
		CompanyID: companyID,
		Kind:      kind,
		Instance:  instance,
		Status:    domain.RunRunning,
		Total:     len(recipients),
	}

	if err := s.runs.CreateRun(ctx, run, recipients); err != nil {
		return "", fmt.Errorf("failed to persist dispatch run: %w", err)
	}

	session := dispatch.NewSession(runID, recipients)
	s.run(session, instance, pool, vars, policy)

	logger.Infof("Dispatch %s started: %d recipients, kind=%s, instance=%s", runID, len(recipients), kind, instance)
	return runID, nil
}

// run launches the paced loop in its own goroutine and registers the session
// so status and cancel can reach it while it is live.
func (s *DispatchService) run(
	session *dispatch.Session,
	instance string,
	pool []string,
	vars map[string]string,
	policy dispatch.Policy,
) {
	composer := dispatch.NewComposer(pool, vars)
	dispatcher := dispatch.NewDispatcher(s.gateway, composer, policy, instance).
		WithRecorder(s.runs).
		WithObserver(s.observe)

	runCtx, cancel := context.WithCancel(s.rootCtx)

	s.mu.Lock()
	s.active[session.RunID()] = &activeRun{session: session, cancel: cancel}
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()

		dispatcher.Run(runCtx, session)

		finishCtx := context.WithoutCancel(s.rootCtx)
		if err := s.runs.FinishRun(finishCtx, session.RunID(), session.Phase()); err != nil {
			logger.Errorf("Failed to finish run %s: %v", session.RunID(), err)
		}

		s.mu.Lock()
		delete(s.active, session.RunID())
		s.mu.Unlock()
	}()
}

// observe pushes every session transition into the progress cache so status
// reads stay cheap while a run is live.
func (s *DispatchService) observe(snapshot domain.Snapshot) {
	if s.cache == nil {
		return
	}
	if err := s.cache.CacheProgress(context.WithoutCancel(s.rootCtx), snapshot); err != nil {
		logger.Warnf("Failed to cache progress for run %s: %v", snapshot.RunID, err)
	}
}

// snapshotFromStore rebuilds a snapshot for a run that is no longer live and
// has no cached progress.
func (s *DispatchService) snapshotFromStore(ctx context.Context, runID string) (*domain.Snapshot, error) {
	run, recipients, err := s.GetDispatch(ctx, runID)
	if err != nil {
		return nil, err
	}

	statuses := make([]domain.RecipientStatus, len(recipients))
	for i, rec := range recipients {
		statuses[i] = rec.Status
	}

	percent := 0.0
	if run.Total > 0 {
		percent = float64(run.SentCount+run.ErrorCount) / float64(run.Total) * 100
	}

	// Current is where the loop stopped: the first recipient not yet in a
	// terminal state, or the last position when the run drained.
	current := 0
	if n := len(statuses); n > 0 {
		current = n - 1
		for i, st := range statuses {
			if st != domain.StatusSent && st != domain.StatusError {
				current = i
				break
			}
		}
	}

	return &domain.Snapshot{
		RunID:    run.ID,
		Phase:    run.Status,
		Total:    run.Total,
		Current:  current,
		Percent:  percent,
		Statuses: statuses,
		Tally:    domain.Tally{Sent: run.SentCount, Errors: run.ErrorCount},
	}, nil
}
