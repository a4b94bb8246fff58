package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/centralplastcontato-cell/buffet-dispatch-service/environments"
	"github.com/centralplastcontato-cell/buffet-dispatch-service/internal/domain"
)

//
// Test fakes – only for this file.
//

type fakeRunRepo struct {
	mu sync.Mutex

	createdRuns    []domain.DispatchRun
	createdRecips  map[string][]domain.Recipient
	outcomes       []domain.Outcome
	finishedRuns   map[string]domain.RunStatus
	markedRunning  []string
	resetRuns      []string
	storedRun      *domain.DispatchRun
	storedRecips   []domain.RunRecipient
	unreached      []domain.RunRecipient
	listResult     []domain.DispatchRun
	listTotal      int64
}

func (r *fakeRunRepo) CreateRun(ctx context.Context, run *domain.DispatchRun, recipients []domain.Recipient) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createdRecips == nil {
		r.createdRecips = make(map[string][]domain.Recipient)
	}
	r.createdRuns = append(r.createdRuns, *run)
	r.createdRecips[run.ID] = recipients
	return nil
}

func (r *fakeRunRepo) RecordOutcome(ctx context.Context, outcome domain.Outcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
	return nil
}

func (r *fakeRunRepo) FinishRun(ctx context.Context, runID string, status domain.RunStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finishedRuns == nil {
		r.finishedRuns = make(map[string]domain.RunStatus)
	}
	r.finishedRuns[runID] = status
	return nil
}

func (r *fakeRunRepo) MarkRunning(ctx context.Context, runID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.markedRunning = append(r.markedRunning, runID)
	return nil
}

func (r *fakeRunRepo) GetRun(ctx context.Context, runID string) (*domain.DispatchRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.storedRun != nil && r.storedRun.ID == runID {
		run := *r.storedRun
		return &run, nil
	}
	return nil, nil
}

func (r *fakeRunRepo) GetRecipients(ctx context.Context, runID string) ([]domain.RunRecipient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.storedRecips, nil
}

func (r *fakeRunRepo) GetUnreached(ctx context.Context, runID string) ([]domain.RunRecipient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.unreached, nil
}

func (r *fakeRunRepo) ResetForResume(ctx context.Context, runID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resetRuns = append(r.resetRuns, runID)
	return int64(len(r.unreached)), nil
}

func (r *fakeRunRepo) ListRuns(ctx context.Context, page, pageSize int) ([]domain.DispatchRun, int64, error) {
	return r.listResult, r.listTotal, nil
}

func (r *fakeRunRepo) GetRunStats(ctx context.Context) (running, completed, cancelled int64, err error) {
	return 0, 0, 0, nil
}

type fakeSettingsRepo struct {
	settings *domain.DispatchSettings
	getErr   error
	upserted []domain.DispatchSettings
}

func (r *fakeSettingsRepo) Get(ctx context.Context, companyID string) (*domain.DispatchSettings, error) {
	if r.getErr != nil {
		return nil, r.getErr
	}
	return r.settings, nil
}

func (r *fakeSettingsRepo) Upsert(ctx context.Context, settings *domain.DispatchSettings) error {
	r.upserted = append(r.upserted, *settings)
	return nil
}

type fakeGateway struct {
	mu       sync.Mutex
	state    string
	stateErr error
	sendErr  error
	sends    []string // "address|text"

	// When set, the next ConnectionState call signals stateEntered and
	// blocks until stateRelease is closed.
	stateEntered chan struct{}
	stateRelease chan struct{}
}

func (g *fakeGateway) SendText(ctx context.Context, instance, address, text string) (*domain.GatewaySendResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.sendErr != nil {
		return nil, g.sendErr
	}
	g.sends = append(g.sends, address+"|"+text)
	return &domain.GatewaySendResponse{MessageID: "wamid-" + address, Status: "PENDING"}, nil
}

func (g *fakeGateway) ConnectionState(ctx context.Context, instance string) (string, error) {
	g.mu.Lock()
	entered, release := g.stateEntered, g.stateRelease
	g.stateEntered, g.stateRelease = nil, nil
	g.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
		<-release
	}

	if g.stateErr != nil {
		return "", g.stateErr
	}
	return g.state, nil
}

func (g *fakeGateway) sentCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.sends)
}

type fakeCache struct {
	mu        sync.Mutex
	snapshots map[string]domain.Snapshot
}

func (c *fakeCache) CacheProgress(ctx context.Context, snapshot domain.Snapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.snapshots == nil {
		c.snapshots = make(map[string]domain.Snapshot)
	}
	c.snapshots[snapshot.RunID] = snapshot
	return nil
}

func (c *fakeCache) GetProgress(ctx context.Context, runID string) (*domain.Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.snapshots[runID]; ok {
		return &s, nil
	}
	return nil, nil
}

func testConfig() environments.DispatchConfig {
	return environments.DispatchConfig{
		MinDelaySeconds:    5,
		MaxDelaySeconds:    5,
		GroupBaseSeconds:   10,
		GroupJitterSeconds: 0,
		DefaultTemplate:    "Olá {name}! Aqui é do {company}.",
	}
}

func newTestService(runs *fakeRunRepo, settings *fakeSettingsRepo, gw *fakeGateway, cache ProgressCache) *DispatchService {
	return NewDispatchService(context.Background(), runs, settings, gw, cache, testConfig())
}

//
// Tests
//

func TestStartGuestDispatch_InstanceNotConnected(t *testing.T) {
	runs := &fakeRunRepo{}
	gw := &fakeGateway{state: "close"}
	svc := newTestService(runs, &fakeSettingsRepo{}, gw, nil)

	_, err := svc.StartGuestDispatch(context.Background(), GuestDispatchRequest{
		CompanyID: "buffet-alegria",
		Instance:  "main",
		Guests: []domain.GuestCandidate{
			{Name: "Ana", Phone: "11987654321", WantsInfo: true},
		},
	})

	if !errors.Is(err, ErrInstanceNotConnected) {
		t.Fatalf("expected ErrInstanceNotConnected, got %v", err)
	}
	if len(runs.createdRuns) != 0 {
		t.Fatalf("expected no run created, got %d", len(runs.createdRuns))
	}
	if gw.sentCount() != 0 {
		t.Fatalf("expected no sends, got %d", gw.sentCount())
	}
}

func TestStartGuestDispatch_NoEligibleRecipients(t *testing.T) {
	runs := &fakeRunRepo{}
	gw := &fakeGateway{state: "open"}
	svc := newTestService(runs, &fakeSettingsRepo{}, gw, nil)

	_, err := svc.StartGuestDispatch(context.Background(), GuestDispatchRequest{
		CompanyID: "buffet-alegria",
		Instance:  "main",
		Guests: []domain.GuestCandidate{
			{Name: "Ana", Phone: "123", WantsInfo: true},
			{Name: "Beto", Phone: "11987654321", WantsInfo: false},
		},
	})

	if !errors.Is(err, ErrNoEligibleRecipients) {
		t.Fatalf("expected ErrNoEligibleRecipients, got %v", err)
	}
	if len(runs.createdRuns) != 0 {
		t.Fatalf("expected no run created, got %d", len(runs.createdRuns))
	}
}

func TestStartGuestDispatch_RunsToCompletion(t *testing.T) {
	runs := &fakeRunRepo{}
	settings := &fakeSettingsRepo{
		settings: &domain.DispatchSettings{
			CompanyID:       "buffet-alegria",
			DelayMinSeconds: 5,
			DelayMaxSeconds: 5,
			Templates:       domain.TemplateList{"Oi {name}, aqui é do {company}!"},
		},
	}
	gw := &fakeGateway{state: "open"}
	cache := &fakeCache{}
	svc := newTestService(runs, settings, gw, cache)

	// A single recipient: no inter-send delay, so the run finishes fast.
	runID, err := svc.StartGuestDispatch(context.Background(), GuestDispatchRequest{
		CompanyID: "buffet-alegria",
		Instance:  "main",
		Guests: []domain.GuestCandidate{
			{Name: "Ana", Phone: "(11) 98765-4321", WantsInfo: true},
		},
		Vars: map[string]string{"company": "Buffet Alegria"},
	})
	if err != nil {
		t.Fatalf("StartGuestDispatch returned error: %v", err)
	}
	if runID == "" {
		t.Fatalf("expected a run ID")
	}

	svc.Wait()

	if gw.sentCount() != 1 {
		t.Fatalf("expected 1 send, got %d", gw.sentCount())
	}
	want := "11987654321|Oi Ana, aqui é do Buffet Alegria!"
	if gw.sends[0] != want {
		t.Fatalf("expected send %q, got %q", want, gw.sends[0])
	}

	if status, ok := runs.finishedRuns[runID]; !ok || status != domain.RunCompleted {
		t.Fatalf("expected run finished as completed, got %v (ok=%v)", status, ok)
	}
	if len(runs.outcomes) != 1 || runs.outcomes[0].Status != domain.StatusSent {
		t.Fatalf("expected one sent outcome, got %+v", runs.outcomes)
	}

	snapshot, err := cache.GetProgress(context.Background(), runID)
	if err != nil || snapshot == nil {
		t.Fatalf("expected cached progress snapshot, got %v (err=%v)", snapshot, err)
	}
	if snapshot.Phase != domain.RunCompleted {
		t.Fatalf("expected cached phase completed, got %s", snapshot.Phase)
	}
}

func TestStartGuestDispatch_SettingsFetchFailureFallsBack(t *testing.T) {
	runs := &fakeRunRepo{}
	settings := &fakeSettingsRepo{getErr: fmt.Errorf("db unavailable")}
	gw := &fakeGateway{state: "open"}
	svc := newTestService(runs, settings, gw, nil)

	runID, err := svc.StartGuestDispatch(context.Background(), GuestDispatchRequest{
		CompanyID: "buffet-alegria",
		Instance:  "main",
		Guests: []domain.GuestCandidate{
			{Name: "Ana", Phone: "11987654321", WantsInfo: true},
		},
		Vars: map[string]string{"company": "Buffet Alegria"},
	})
	if err != nil {
		t.Fatalf("expected fallback to defaults, got error: %v", err)
	}

	svc.Wait()

	if gw.sentCount() != 1 {
		t.Fatalf("expected 1 send using default template, got %d", gw.sentCount())
	}
	want := "11987654321|Olá Ana! Aqui é do Buffet Alegria."
	if gw.sends[0] != want {
		t.Fatalf("expected send %q, got %q", want, gw.sends[0])
	}
	if status := runs.finishedRuns[runID]; status != domain.RunCompleted {
		t.Fatalf("expected completed run, got %s", status)
	}
}

func TestStartGroupDispatch_RunsToCompletion(t *testing.T) {
	runs := &fakeRunRepo{}
	settings := &fakeSettingsRepo{
		settings: &domain.DispatchSettings{
			CompanyID:        "buffet-alegria",
			GroupBaseSeconds: 10,
			Templates:        domain.TemplateList{"Agenda da semana: {notes}"},
		},
	}
	gw := &fakeGateway{state: "open"}
	svc := newTestService(runs, settings, gw, nil)

	runID, err := svc.StartGroupDispatch(context.Background(), GroupDispatchRequest{
		CompanyID: "buffet-alegria",
		Instance:  "main",
		Groups: []domain.GroupCandidate{
			{Name: "Festas 2026", GroupID: "123@g.us", Selected: true},
			{Name: "Fornecedores", GroupID: "456@g.us", Selected: false},
		},
		Vars: map[string]string{"notes": "sábado 14h"},
	})
	if err != nil {
		t.Fatalf("StartGroupDispatch returned error: %v", err)
	}

	svc.Wait()

	if gw.sentCount() != 1 {
		t.Fatalf("expected only the selected group, got %d sends", gw.sentCount())
	}
	want := "123@g.us|Agenda da semana: sábado 14h"
	if gw.sends[0] != want {
		t.Fatalf("expected send %q, got %q", want, gw.sends[0])
	}
	if runs.createdRuns[0].Kind != domain.KindGroups {
		t.Fatalf("expected groups run, got %s", runs.createdRuns[0].Kind)
	}
	if status := runs.finishedRuns[runID]; status != domain.RunCompleted {
		t.Fatalf("expected completed run, got %s", status)
	}
}

func TestCancelDispatch_NotActive(t *testing.T) {
	svc := newTestService(&fakeRunRepo{}, &fakeSettingsRepo{}, &fakeGateway{state: "open"}, nil)

	if err := svc.CancelDispatch("missing-run"); !errors.Is(err, ErrRunNotActive) {
		t.Fatalf("expected ErrRunNotActive, got %v", err)
	}
}

func TestResumeDispatch_RunNotFound(t *testing.T) {
	svc := newTestService(&fakeRunRepo{}, &fakeSettingsRepo{}, &fakeGateway{state: "open"}, nil)

	err := svc.ResumeDispatch(context.Background(), "missing-run", nil, nil)
	if !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound, got %v", err)
	}
}

func TestResumeDispatch_NothingToResume(t *testing.T) {
	runs := &fakeRunRepo{
		storedRun: &domain.DispatchRun{
			ID:       "run-1",
			Kind:     domain.KindGuests,
			Instance: "main",
			Status:   domain.RunCompleted,
		},
		unreached: nil,
	}
	svc := newTestService(runs, &fakeSettingsRepo{}, &fakeGateway{state: "open"}, nil)

	err := svc.ResumeDispatch(context.Background(), "run-1", nil, nil)
	if !errors.Is(err, ErrNothingToResume) {
		t.Fatalf("expected ErrNothingToResume, got %v", err)
	}
}

func TestResumeDispatch_SkipsReachedRecipients(t *testing.T) {
	msgID := "wamid-old"
	runs := &fakeRunRepo{
		storedRun: &domain.DispatchRun{
			ID:        "run-1",
			CompanyID: "buffet-alegria",
			Kind:      domain.KindGuests,
			Instance:  "main",
			Status:    domain.RunCancelled,
			Total:     2,
		},
		unreached: []domain.RunRecipient{
			{RunID: "run-1", Position: 1, Name: "Beto", Address: "11987654322", Status: domain.StatusPending},
		},
		storedRecips: []domain.RunRecipient{
			{RunID: "run-1", Position: 0, Name: "Ana", Address: "11987654321", Status: domain.StatusSent, MessageID: &msgID},
			{RunID: "run-1", Position: 1, Name: "Beto", Address: "11987654322", Status: domain.StatusPending},
		},
	}
	gw := &fakeGateway{state: "open"}
	svc := newTestService(runs, &fakeSettingsRepo{}, gw, nil)

	err := svc.ResumeDispatch(context.Background(), "run-1",
		map[string]string{"company": "Buffet Alegria"}, []string{"Oi {name}"})
	if err != nil {
		t.Fatalf("ResumeDispatch returned error: %v", err)
	}

	svc.Wait()

	if gw.sentCount() != 1 {
		t.Fatalf("expected only the unreached recipient to be sent, got %d", gw.sentCount())
	}
	if gw.sends[0] != "11987654322|Oi Beto" {
		t.Fatalf("expected send to Beto, got %q", gw.sends[0])
	}
	if len(runs.resetRuns) != 1 || runs.resetRuns[0] != "run-1" {
		t.Fatalf("expected ResetForResume for run-1, got %v", runs.resetRuns)
	}
	if len(runs.markedRunning) != 1 {
		t.Fatalf("expected MarkRunning call, got %v", runs.markedRunning)
	}
	if status := runs.finishedRuns["run-1"]; status != domain.RunCompleted {
		t.Fatalf("expected resumed run to finish completed, got %s", status)
	}
}

func TestResumeDispatch_ConcurrentResumeRejected(t *testing.T) {
	runs := &fakeRunRepo{
		storedRun: &domain.DispatchRun{
			ID:        "run-1",
			CompanyID: "buffet-alegria",
			Kind:      domain.KindGuests,
			Instance:  "main",
			Status:    domain.RunCancelled,
			Total:     1,
		},
		unreached: []domain.RunRecipient{
			{RunID: "run-1", Position: 0, Name: "Ana", Address: "11987654321", Status: domain.StatusPending},
		},
		storedRecips: []domain.RunRecipient{
			{RunID: "run-1", Position: 0, Name: "Ana", Address: "11987654321", Status: domain.StatusPending},
		},
	}
	gw := &fakeGateway{
		state:        "open",
		stateEntered: make(chan struct{}),
		stateRelease: make(chan struct{}),
	}
	svc := newTestService(runs, &fakeSettingsRepo{}, gw, nil)

	// ConnectionState nils the gateway's channel fields before signalling,
	// so keep local references for the receive and close below.
	stateEntered, stateRelease := gw.stateEntered, gw.stateRelease

	firstErr := make(chan error, 1)
	go func() {
		firstErr <- svc.ResumeDispatch(context.Background(), "run-1", nil, []string{"Oi {name}"})
	}()

	// The first resume is now inside the gateway connectivity check; the
	// run must already be reserved so a second resume is turned away.
	<-stateEntered

	if err := svc.ResumeDispatch(context.Background(), "run-1", nil, []string{"Oi {name}"}); !errors.Is(err, ErrRunActive) {
		t.Fatalf("expected ErrRunActive for concurrent resume, got %v", err)
	}

	close(stateRelease)

	if err := <-firstErr; err != nil {
		t.Fatalf("first resume returned error: %v", err)
	}

	svc.Wait()

	if gw.sentCount() != 1 {
		t.Fatalf("expected exactly 1 send from the surviving resume, got %d", gw.sentCount())
	}
}

func TestResumeDispatch_ReservationReleasedOnError(t *testing.T) {
	// Run exists but the instance is disconnected: resume fails, and the
	// reservation must not leave the run stuck as active.
	runs := &fakeRunRepo{
		storedRun: &domain.DispatchRun{
			ID:       "run-1",
			Kind:     domain.KindGuests,
			Instance: "main",
			Status:   domain.RunCancelled,
		},
	}
	gw := &fakeGateway{state: "close"}
	svc := newTestService(runs, &fakeSettingsRepo{}, gw, nil)

	if err := svc.ResumeDispatch(context.Background(), "run-1", nil, nil); !errors.Is(err, ErrInstanceNotConnected) {
		t.Fatalf("expected ErrInstanceNotConnected, got %v", err)
	}

	// A retry must see the same error again, not ErrRunActive.
	if err := svc.ResumeDispatch(context.Background(), "run-1", nil, nil); !errors.Is(err, ErrInstanceNotConnected) {
		t.Fatalf("expected ErrInstanceNotConnected on retry, got %v", err)
	}
}

func TestGetDispatchStatus_FallsBackToStore(t *testing.T) {
	runs := &fakeRunRepo{
		storedRun: &domain.DispatchRun{
			ID:         "run-9",
			Status:     domain.RunCompleted,
			Total:      2,
			SentCount:  1,
			ErrorCount: 1,
		},
		storedRecips: []domain.RunRecipient{
			{RunID: "run-9", Position: 0, Status: domain.StatusSent},
			{RunID: "run-9", Position: 1, Status: domain.StatusError},
		},
	}
	svc := newTestService(runs, &fakeSettingsRepo{}, &fakeGateway{state: "open"}, nil)

	snapshot, err := svc.GetDispatchStatus(context.Background(), "run-9")
	if err != nil {
		t.Fatalf("GetDispatchStatus returned error: %v", err)
	}

	if snapshot.Phase != domain.RunCompleted {
		t.Fatalf("expected phase completed, got %s", snapshot.Phase)
	}
	if snapshot.Tally.Sent != 1 || snapshot.Tally.Errors != 1 {
		t.Fatalf("expected tally {1 1}, got %+v", snapshot.Tally)
	}
	if snapshot.Percent != 100 {
		t.Fatalf("expected 100%%, got %v", snapshot.Percent)
	}
}

func TestGetDispatchStatus_StoreReportsFirstUnreachedPosition(t *testing.T) {
	runs := &fakeRunRepo{
		storedRun: &domain.DispatchRun{
			ID:         "run-10",
			Status:     domain.RunCancelled,
			Total:      3,
			SentCount:  1,
			ErrorCount: 0,
		},
		storedRecips: []domain.RunRecipient{
			{RunID: "run-10", Position: 0, Status: domain.StatusSent},
			{RunID: "run-10", Position: 1, Status: domain.StatusPending},
			{RunID: "run-10", Position: 2, Status: domain.StatusPending},
		},
	}
	svc := newTestService(runs, &fakeSettingsRepo{}, &fakeGateway{state: "open"}, nil)

	snapshot, err := svc.GetDispatchStatus(context.Background(), "run-10")
	if err != nil {
		t.Fatalf("GetDispatchStatus returned error: %v", err)
	}

	// The loop stopped at position 1, the first recipient never reached.
	if snapshot.Current != 1 {
		t.Fatalf("expected current position 1, got %d", snapshot.Current)
	}
	if snapshot.Phase != domain.RunCancelled {
		t.Fatalf("expected phase cancelled, got %s", snapshot.Phase)
	}
}

func TestGetDispatchStatus_UnknownRun(t *testing.T) {
	svc := newTestService(&fakeRunRepo{}, &fakeSettingsRepo{}, &fakeGateway{state: "open"}, nil)

	_, err := svc.GetDispatchStatus(context.Background(), "missing-run")
	if !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound, got %v", err)
	}
}
