package leadhooks

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	leadcommand "github.com/goliatone/go-leadhooks/command"
	"github.com/goliatone/go-leadhooks/core"
	"github.com/goliatone/go-leadhooks/queue"
	"github.com/goliatone/go-leadhooks/trigger"
	"github.com/goliatone/go-leadhooks/webhooks"
)

type memoryTargetStore struct {
	mu      sync.Mutex
	targets []core.WebhookTarget
}

func (s *memoryTargetStore) ListActive(_ context.Context, tenantID string) ([]core.WebhookTarget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []core.WebhookTarget{}
	for _, target := range s.targets {
		if target.TenantID == tenantID && target.IsActive {
			out = append(out, target)
		}
	}
	return out, nil
}

type memoryAuditStore struct {
	mu      sync.Mutex
	entries []core.AuditEntry
}

func (s *memoryAuditStore) Record(_ context.Context, entry core.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

func (s *memoryAuditStore) ListByLead(_ context.Context, leadID string) ([]core.AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []core.AuditEntry{}
	for _, entry := range s.entries {
		if entry.LeadID == leadID {
			out = append(out, entry)
		}
	}
	return out, nil
}

type capturedRequest struct {
	path      string
	signature string
	userAgent string
	body      []byte
}

type receiver struct {
	server   *httptest.Server
	requests chan capturedRequest
}

func newReceiver(t *testing.T) *receiver {
	t.Helper()
	r := &receiver{requests: make(chan capturedRequest, 16)}
	r.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		body, _ := io.ReadAll(req.Body)
		r.requests <- capturedRequest{
			path:      req.URL.Path,
			signature: req.Header.Get(webhooks.SignatureHeader),
			userAgent: req.Header.Get("User-Agent"),
			body:      body,
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(r.server.Close)
	return r
}

func (r *receiver) next(t *testing.T) capturedRequest {
	t.Helper()
	select {
	case req := <-r.requests:
		return req
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for webhook delivery")
		return capturedRequest{}
	}
}

func newTestService(t *testing.T, store *memoryTargetStore, audit *memoryAuditStore) *Service {
	t.Helper()
	ctx := context.Background()
	svc, err := New(ctx, Config{}, WithTargetStore(store), WithAuditStore(audit))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	t.Cleanup(func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = svc.Close(closeCtx)
	})
	if err := svc.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	return svc
}

func TestNew_RequiresTargetStore(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatalf("expected missing target store to fail")
	}
}

func TestNew_RuntimeConfigOverridesDefaults(t *testing.T) {
	svc, err := New(context.Background(), Config{Breaker: core.BreakerConfig{EntityLimit: 3}}, WithTargetStore(&memoryTargetStore{}))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	defer svc.Close(context.Background())

	cfg := svc.Config()
	if cfg.Breaker.EntityLimit != 3 {
		t.Fatalf("expected runtime entity limit, got %d", cfg.Breaker.EntityLimit)
	}
	if cfg.Breaker.TenantLimit != 200 || cfg.Delivery.UserAgent != core.DefaultUserAgent {
		t.Fatalf("expected defaults to fill the rest, got %+v", cfg)
	}
	if got := svc.health.Timeout(); got != 3*time.Second {
		t.Fatalf("expected health checks to use their own 3s timeout, got %v", got)
	}
}

func TestService_LeadCreatedDeliversSignedEnvelope(t *testing.T) {
	recv := newReceiver(t)
	store := &memoryTargetStore{targets: []core.WebhookTarget{{
		ID:               "target_1",
		TenantID:         "tenant_1",
		URL:              recv.server.URL + "/crm",
		Secret:           "s3cret",
		SubscribedEvents: []string{"lead.created"},
		IsActive:         true,
	}}}
	audit := &memoryAuditStore{}
	svc := newTestService(t, store, audit)

	report, err := svc.LeadCreated(context.Background(), leadcommand.LeadCreatedMessage{
		Lead: core.Lead{
			ID:       "lead_1",
			TenantID: "tenant_1",
			Source:   "api",
			Status:   "new",
			Payload:  map[string]any{"email": "jane@example.com"},
		},
		Source: core.SourceAPI,
	})
	if err != nil {
		t.Fatalf("lead created: %v", err)
	}
	if len(report.Enqueued()) != 1 {
		t.Fatalf("expected one enqueued dispatch, got %+v", report.Dispatches)
	}

	req := recv.next(t)
	if req.path != "/crm" || req.userAgent != core.DefaultUserAgent {
		t.Fatalf("unexpected request %+v", req)
	}
	if req.signature != webhooks.Sign("s3cret", req.body) {
		t.Fatalf("signature does not match body")
	}
	envelope, err := webhooks.DecodeEnvelope(req.body)
	if err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if envelope.Event != "lead.created" || envelope.Lead.ID != "lead_1" {
		t.Fatalf("unexpected envelope %+v", envelope)
	}

	activity, err := svc.LeadActivity(context.Background(), "lead_1")
	if err != nil {
		t.Fatalf("lead activity: %v", err)
	}
	if len(activity) != 1 || activity[0].Content != "Lead created via api" {
		t.Fatalf("unexpected activity %+v", activity)
	}
}

func TestService_LeadUpdatedReportsEachEvent(t *testing.T) {
	recv := newReceiver(t)
	store := &memoryTargetStore{targets: []core.WebhookTarget{{
		ID:               "target_1",
		TenantID:         "tenant_1",
		URL:              recv.server.URL,
		SubscribedEvents: []string{"lead.updated.status"},
		IsActive:         true,
	}}}
	svc := newTestService(t, store, &memoryAuditStore{})

	report, err := svc.LeadUpdated(context.Background(), leadcommand.LeadUpdatedMessage{
		Lead:     core.Lead{ID: "lead_1", TenantID: "tenant_1", Status: "won"},
		Original: map[core.WatchedField]string{core.WatchedFieldStatus: "new"},
	})
	if err != nil {
		t.Fatalf("lead updated: %v", err)
	}
	if len(report.Dispatches) != 2 {
		t.Fatalf("expected status and generic dispatches, got %+v", report.Dispatches)
	}
	if report.Dispatches[0].Status != trigger.StatusEnqueued || report.Dispatches[1].Status != trigger.StatusNoTargets {
		t.Fatalf("unexpected statuses %+v", report.Dispatches)
	}
	envelope, err := webhooks.DecodeEnvelope(recv.next(t).body)
	if err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if envelope.Event != "lead.updated.status" || envelope.Lead.Status != "won" {
		t.Fatalf("unexpected envelope %+v", envelope)
	}
}

func TestService_UnwatchedFieldUpdateIsSilent(t *testing.T) {
	recv := newReceiver(t)
	store := &memoryTargetStore{targets: []core.WebhookTarget{{
		ID:               "target_1",
		TenantID:         "tenant_1",
		URL:              recv.server.URL,
		SubscribedEvents: []string{"lead.updated"},
		IsActive:         true,
	}}}
	audit := &memoryAuditStore{}
	svc := newTestService(t, store, audit)

	report, err := svc.LeadUpdated(context.Background(), leadcommand.LeadUpdatedMessage{
		Lead:     core.Lead{ID: "lead_1", TenantID: "tenant_1", Status: "new"},
		Original: map[core.WatchedField]string{"notes": "old note"},
	})
	if err != nil {
		t.Fatalf("lead updated: %v", err)
	}
	if len(report.Dispatches) != 0 {
		t.Fatalf("expected no dispatches, got %+v", report.Dispatches)
	}
	if entries, _ := audit.ListByLead(context.Background(), "lead_1"); len(entries) != 0 {
		t.Fatalf("expected no audit entries, got %+v", entries)
	}
	select {
	case req := <-recv.requests:
		t.Fatalf("unexpected delivery to %q", req.path)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestService_FullQueueFailsDispatchWithoutBlocking(t *testing.T) {
	store := &memoryTargetStore{targets: []core.WebhookTarget{{
		ID:               "target_1",
		TenantID:         "tenant_1",
		URL:              "https://crm.example.com/hook",
		SubscribedEvents: []string{"lead.created"},
		IsActive:         true,
	}}}
	// Workers are never started, so the single slot stays occupied.
	svc, err := New(context.Background(),
		Config{Queue: core.QueueConfig{Workers: 1, Buffer: 1}},
		WithTargetStore(store), WithAuditStore(&memoryAuditStore{}),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	defer svc.Close(context.Background())

	created := func(leadID string) trigger.Report {
		t.Helper()
		report, err := svc.LeadCreated(context.Background(), leadcommand.LeadCreatedMessage{
			Lead:   core.Lead{ID: leadID, TenantID: "tenant_1", Status: "new"},
			Source: core.SourceAPI,
		})
		if err != nil {
			t.Fatalf("lead created %s: %v", leadID, err)
		}
		return report
	}

	if first := created("lead_1"); len(first.Enqueued()) != 1 {
		t.Fatalf("expected first dispatch to fill the queue, got %+v", first.Dispatches)
	}

	type outcome struct {
		report trigger.Report
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		report, err := svc.LeadCreated(context.Background(), leadcommand.LeadCreatedMessage{
			Lead:   core.Lead{ID: "lead_2", TenantID: "tenant_1", Status: "new"},
			Source: core.SourceAPI,
		})
		done <- outcome{report: report, err: err}
	}()
	select {
	case got := <-done:
		if got.err != nil {
			t.Fatalf("lead created lead_2: %v", got.err)
		}
		second := got.report
		if len(second.Dispatches) != 1 || second.Dispatches[0].Status != trigger.StatusFailed {
			t.Fatalf("expected failed dispatch, got %+v", second.Dispatches)
		}
		if !errors.Is(second.Dispatches[0].Err, queue.ErrQueueFull) {
			t.Fatalf("expected full queue error, got %v", second.Dispatches[0].Err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("expected lead created to return while the queue is full")
	}
}

func TestService_SubmitFormDeliversToFormEndpoint(t *testing.T) {
	recv := newReceiver(t)
	store := &memoryTargetStore{targets: []core.WebhookTarget{{
		ID:               "target_1",
		TenantID:         "tenant_1",
		URL:              recv.server.URL + "/generic",
		SubscribedEvents: []string{"lead.created"},
		IsActive:         true,
	}}}
	svc := newTestService(t, store, &memoryAuditStore{})

	result, err := svc.SubmitForm(context.Background(), leadcommand.FormSubmittedMessage{
		Form: core.Form{ID: "form_1", TenantID: "tenant_1", WebhookURL: recv.server.URL + "/form"},
		Lead: core.Lead{ID: "lead_1"},
	})
	if err != nil {
		t.Fatalf("submit form: %v", err)
	}
	if result.Source != core.SourceFormIntake || result.FormBatchID == "" {
		t.Fatalf("unexpected result %+v", result)
	}
	if len(result.Report.Enqueued()) != 0 {
		t.Fatalf("expected generic lead.created to be suppressed")
	}
	req := recv.next(t)
	if req.path != "/form" {
		t.Fatalf("expected delivery to the form endpoint, got %q", req.path)
	}
	select {
	case extra := <-recv.requests:
		t.Fatalf("unexpected extra delivery to %q", extra.path)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestService_QueriesTargetsAndHealth(t *testing.T) {
	recv := newReceiver(t)
	store := &memoryTargetStore{targets: []core.WebhookTarget{
		{ID: "a", TenantID: "tenant_1", URL: recv.server.URL, IsActive: true},
		{ID: "b", TenantID: "tenant_1", URL: recv.server.URL, IsActive: false},
	}}
	svc := newTestService(t, store, &memoryAuditStore{})

	listed, err := svc.ListTargets(context.Background(), "tenant_1")
	if err != nil {
		t.Fatalf("list targets: %v", err)
	}
	if len(listed) != 1 || listed[0].ID != "a" {
		t.Fatalf("unexpected targets %+v", listed)
	}

	report, err := svc.CheckTarget(context.Background(), recv.server.URL, "")
	if err != nil {
		t.Fatalf("check target: %v", err)
	}
	if report.Status != webhooks.HealthStatusActive {
		t.Fatalf("expected active endpoint, got %+v", report)
	}
}

func TestService_CloseIsIdempotent(t *testing.T) {
	svc, err := New(context.Background(), Config{}, WithTargetStore(&memoryTargetStore{}))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := svc.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := svc.Close(context.Background()); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if err := svc.Start(context.Background()); err == nil {
		t.Fatalf("expected start after close to fail")
	}
}
