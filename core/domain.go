package core

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"
)

var (
	ErrInvalidTarget    = errors.New("core: invalid webhook target")
	ErrInvalidEventType = errors.New("core: invalid event type")
	ErrInvalidLead      = errors.New("core: invalid lead")
	ErrTargetNotFound   = errors.New("core: webhook target not found")
	// ErrPermanentJob marks job failures that retrying cannot fix.
	ErrPermanentJob = errors.New("core: permanent job failure")
)

// EventType is the closed set of dispatchable events.
type EventType string

const (
	EventLeadCreated            EventType = "lead.created"
	EventLeadUpdatedStatus      EventType = "lead.updated.status"
	EventLeadUpdatedTemperature EventType = "lead.updated.temperature"
	EventLeadUpdated            EventType = "lead.updated"
	EventFormSubmission         EventType = "form.submission"
)

var eventTypes = []EventType{
	EventLeadCreated,
	EventLeadUpdatedStatus,
	EventLeadUpdatedTemperature,
	EventLeadUpdated,
	EventFormSubmission,
}

// EventTypes returns every known event type in declaration order.
func EventTypes() []EventType {
	return append([]EventType(nil), eventTypes...)
}

func ParseEventType(raw string) (EventType, error) {
	candidate := EventType(strings.TrimSpace(strings.ToLower(raw)))
	if !candidate.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidEventType, raw)
	}
	return candidate, nil
}

func (e EventType) Valid() bool {
	return slices.Contains(eventTypes, e)
}

func (e EventType) String() string {
	return string(e)
}

// SubscribableEventTypes are the event types a tenant target may subscribe to.
// form.submission is delivered only to a form's dedicated endpoint.
func SubscribableEventTypes() []EventType {
	return []EventType{
		EventLeadCreated,
		EventLeadUpdatedStatus,
		EventLeadUpdatedTemperature,
		EventLeadUpdated,
	}
}

type WatchedField string

const (
	WatchedFieldStatus      WatchedField = "status"
	WatchedFieldTemperature WatchedField = "temperature"
)

// watchedFieldEvents maps every watched lead field to its field-specific event.
var watchedFieldEvents = map[WatchedField]EventType{
	WatchedFieldStatus:      EventLeadUpdatedStatus,
	WatchedFieldTemperature: EventLeadUpdatedTemperature,
}

// WatchedFields returns the watched fields in evaluation order.
func WatchedFields() []WatchedField {
	return []WatchedField{WatchedFieldStatus, WatchedFieldTemperature}
}

func (f WatchedField) EventType() (EventType, bool) {
	eventType, ok := watchedFieldEvents[f]
	return eventType, ok
}

// Label is the capitalized field name used in audit entries.
func (f WatchedField) Label() string {
	value := string(f)
	if value == "" {
		return ""
	}
	return strings.ToUpper(value[:1]) + value[1:]
}

type CreationSource string

const (
	SourceForm       CreationSource = "form"
	SourceManual     CreationSource = "manual"
	SourceCSV        CreationSource = "csv"
	SourceAPI        CreationSource = "api"
	SourceFormIntake CreationSource = "form_intake"
)

// Lead is the snapshot of the externally persisted lead the dispatch path reads.
type Lead struct {
	ID          string
	TenantID    string
	FormID      string
	Source      string
	Status      string
	Temperature string
	Payload     map[string]any
	MetaData    map[string]any
}

func (l Lead) Validate() error {
	if strings.TrimSpace(l.ID) == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidLead)
	}
	if strings.TrimSpace(l.TenantID) == "" {
		return fmt.Errorf("%w: tenant id is required", ErrInvalidLead)
	}
	return nil
}

// FieldValue returns the current value of a watched field.
func (l Lead) FieldValue(field WatchedField) string {
	switch field {
	case WatchedFieldStatus:
		return l.Status
	case WatchedFieldTemperature:
		return l.Temperature
	default:
		return ""
	}
}

// LeadPayload is the restricted projection delivered to webhook consumers.
type LeadPayload struct {
	ID          string         `json:"id"`
	Payload     map[string]any `json:"payload"`
	Source      string         `json:"source"`
	Temperature string         `json:"temperature"`
	Status      string         `json:"status"`
	MetaData    map[string]any `json:"meta_data"`
}

// Project builds a deep copy of the deliverable lead fields.
func (l Lead) Project() LeadPayload {
	return LeadPayload{
		ID:          strings.TrimSpace(l.ID),
		Payload:     CloneAnyMap(l.Payload),
		Source:      l.Source,
		Temperature: l.Temperature,
		Status:      l.Status,
		MetaData:    CloneAnyMap(l.MetaData),
	}
}

type WebhookTarget struct {
	ID               string
	TenantID         string
	Name             string
	URL              string
	Secret           string
	SubscribedEvents []string
	IsActive         bool
	FormID           string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (t WebhookTarget) Validate() error {
	if strings.TrimSpace(t.TenantID) == "" {
		return fmt.Errorf("%w: tenant id is required", ErrInvalidTarget)
	}
	raw := strings.TrimSpace(t.URL)
	if raw == "" {
		return fmt.Errorf("%w: url is required", ErrInvalidTarget)
	}
	parsed, err := url.Parse(raw)
	if err != nil || !parsed.IsAbs() || parsed.Host == "" {
		return fmt.Errorf("%w: url %q must be absolute", ErrInvalidTarget, raw)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%w: url scheme %q is not supported", ErrInvalidTarget, parsed.Scheme)
	}
	for _, event := range t.SubscribedEvents {
		eventType, err := ParseEventType(event)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidTarget, err)
		}
		if !slices.Contains(SubscribableEventTypes(), eventType) {
			return fmt.Errorf("%w: event %q cannot be subscribed", ErrInvalidTarget, eventType)
		}
	}
	return nil
}

// Subscribes reports whether the target subscribed to the event type.
func (t WebhookTarget) Subscribes(eventType EventType) bool {
	for _, event := range t.SubscribedEvents {
		if strings.EqualFold(strings.TrimSpace(event), string(eventType)) {
			return true
		}
	}
	return false
}

func (t WebhookTarget) Signed() bool {
	return t.Secret != ""
}

// NormalizeTarget trims identifiers and guarantees a non-nil subscription set.
func NormalizeTarget(t WebhookTarget) WebhookTarget {
	t.ID = strings.TrimSpace(t.ID)
	t.TenantID = strings.TrimSpace(t.TenantID)
	t.Name = strings.TrimSpace(t.Name)
	t.URL = strings.TrimSpace(t.URL)
	t.FormID = strings.TrimSpace(t.FormID)
	events := make([]string, 0, len(t.SubscribedEvents))
	for _, event := range t.SubscribedEvents {
		trimmed := strings.TrimSpace(strings.ToLower(event))
		if trimmed == "" || slices.Contains(events, trimmed) {
			continue
		}
		events = append(events, trimmed)
	}
	t.SubscribedEvents = events
	return t
}

func CloneTargets(targets []WebhookTarget) []WebhookTarget {
	if len(targets) == 0 {
		return []WebhookTarget{}
	}
	out := make([]WebhookTarget, len(targets))
	for i, target := range targets {
		target.SubscribedEvents = append([]string{}, target.SubscribedEvents...)
		out[i] = target
	}
	return out
}

// DispatchEvent is one fan-out attempt, frozen at enqueue time.
type DispatchEvent struct {
	Type      EventType
	TenantID  string
	EntityID  string
	Payload   LeadPayload
	Timestamp time.Time
}

type DeliveryOutcome string

const (
	DeliveryOutcomeSuccess  DeliveryOutcome = "success"
	DeliveryOutcomeFailed   DeliveryOutcome = "failed"
	DeliveryOutcomeTimedOut DeliveryOutcome = "timed_out"
)

type DeliveryAttempt struct {
	TargetID   string
	URL        string
	Signature  string
	StatusCode int
	Latency    time.Duration
	Outcome    DeliveryOutcome
	Err        error
}

func (a DeliveryAttempt) Succeeded() bool {
	return a.Outcome == DeliveryOutcomeSuccess
}

type AuditEntryType string

const (
	AuditEntrySystem       AuditEntryType = "system"
	AuditEntryStatusChange AuditEntryType = "status_change"
)

type AuditEntry struct {
	ID        string
	LeadID    string
	TenantID  string
	Type      AuditEntryType
	Content   string
	CreatedAt time.Time
}

// Form carries the dedicated legacy endpoint some forms deliver submissions to.
type Form struct {
	ID            string
	TenantID      string
	Name          string
	WebhookURL    string
	WebhookSecret string
}

func CloneAnyMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = cloneAnyValue(value)
	}
	return out
}

func cloneAnyValue(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		return CloneAnyMap(typed)
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = cloneAnyValue(item)
		}
		return out
	case []string:
		return append([]string(nil), typed...)
	default:
		return value
	}
}
