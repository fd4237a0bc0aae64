package httpapi

import (
	"time"

	"github.com/goliatone/go-leadhooks/core"
	"github.com/goliatone/go-leadhooks/trigger"
)

type leadRequest struct {
	ID          string         `json:"id"`
	TenantID    string         `json:"tenant_id"`
	FormID      string         `json:"form_id,omitempty"`
	Source      string         `json:"source,omitempty"`
	Status      string         `json:"status,omitempty"`
	Temperature string         `json:"temperature,omitempty"`
	Payload     map[string]any `json:"payload,omitempty"`
	MetaData    map[string]any `json:"meta_data,omitempty"`
}

func (l leadRequest) toDomain() core.Lead {
	return core.Lead{
		ID:          l.ID,
		TenantID:    l.TenantID,
		FormID:      l.FormID,
		Source:      l.Source,
		Status:      l.Status,
		Temperature: l.Temperature,
		Payload:     l.Payload,
		MetaData:    l.MetaData,
	}
}

type leadCreatedRequest struct {
	Lead             leadRequest `json:"lead"`
	Source           string      `json:"source,omitempty"`
	SuppressWebhooks bool        `json:"suppress_webhooks,omitempty"`
}

type leadUpdatedRequest struct {
	Lead             leadRequest       `json:"lead"`
	Original         map[string]string `json:"original"`
	SuppressWebhooks bool              `json:"suppress_webhooks,omitempty"`
}

type formRequest struct {
	TenantID      string `json:"tenant_id"`
	Name          string `json:"name,omitempty"`
	WebhookURL    string `json:"webhook_url,omitempty"`
	WebhookSecret string `json:"webhook_secret,omitempty"`
}

func (f formRequest) toDomain() core.Form {
	return core.Form{
		TenantID:      f.TenantID,
		Name:          f.Name,
		WebhookURL:    f.WebhookURL,
		WebhookSecret: f.WebhookSecret,
	}
}

type formSubmittedRequest struct {
	Form formRequest `json:"form"`
	Lead leadRequest `json:"lead"`
}

type checkTargetRequest struct {
	URL    string `json:"url"`
	Secret string `json:"secret,omitempty"`
}

type dispatchResponse struct {
	EventType string `json:"event_type"`
	Status    string `json:"status"`
	BatchID   string `json:"batch_id,omitempty"`
	Targets   int    `json:"targets"`
	Error     string `json:"error,omitempty"`
}

type reportResponse struct {
	Dispatches []dispatchResponse `json:"dispatches"`
	Audit      []activityResponse `json:"audit"`
}

func newReportResponse(report trigger.Report) reportResponse {
	out := reportResponse{
		Dispatches: make([]dispatchResponse, 0, len(report.Dispatches)),
		Audit:      make([]activityResponse, 0, len(report.Audit)),
	}
	for _, dispatch := range report.Dispatches {
		item := dispatchResponse{
			EventType: dispatch.EventType.String(),
			Status:    string(dispatch.Status),
			BatchID:   dispatch.BatchID,
			Targets:   dispatch.Targets,
		}
		if dispatch.Err != nil {
			item.Error = dispatch.Err.Error()
		}
		out.Dispatches = append(out.Dispatches, item)
	}
	for _, entry := range report.Audit {
		out.Audit = append(out.Audit, newActivityResponse(entry))
	}
	return out
}

type formSubmittedResponse struct {
	FormBatchID string         `json:"form_batch_id,omitempty"`
	Source      string         `json:"source"`
	Report      reportResponse `json:"report"`
}

type activityResponse struct {
	ID        string    `json:"id,omitempty"`
	LeadID    string    `json:"lead_id"`
	Type      string    `json:"type"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

func newActivityResponse(entry core.AuditEntry) activityResponse {
	return activityResponse{
		ID:        entry.ID,
		LeadID:    entry.LeadID,
		Type:      string(entry.Type),
		Content:   entry.Content,
		CreatedAt: entry.CreatedAt,
	}
}

// targetResponse never exposes the signing secret.
type targetResponse struct {
	ID       string   `json:"id"`
	Name     string   `json:"name,omitempty"`
	URL      string   `json:"url"`
	Events   []string `json:"events"`
	FormID   string   `json:"form_id,omitempty"`
	Signed   bool     `json:"signed"`
	IsActive bool     `json:"is_active"`
}

func newTargetResponse(target core.WebhookTarget) targetResponse {
	return targetResponse{
		ID:       target.ID,
		Name:     target.Name,
		URL:      target.URL,
		Events:   append([]string{}, target.SubscribedEvents...),
		FormID:   target.FormID,
		Signed:   target.Signed(),
		IsActive: target.IsActive,
	}
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	TextCode string `json:"text_code"`
	Message  string `json:"message"`
	Category string `json:"category"`
}
