package crm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"dirchat/internal/models"
)

// ErrWebhookUnset is returned when no destination endpoint is configured.
// Detected at export time rather than startup so the chat path works without
// a CRM attached.
var ErrWebhookUnset = errors.New("crm webhook url not configured")

// phoneMarker tags the assistant turn that rendered business contact details.
const phoneMarker = "📞"

// Exporter posts a chat transcript and summary to the CRM webhook.
type Exporter struct {
	client     *resty.Client
	webhookURL string
	now        func() time.Time
}

// New builds an exporter targeting the given webhook URL (may be empty).
func New(webhookURL string) *Exporter {
	return &Exporter{
		client:     resty.New().SetTimeout(10 * time.Second),
		webhookURL: webhookURL,
		now:        time.Now,
	}
}

type contactPayload struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
}

type conversationPayload struct {
	Summary       string `json:"summary"`
	Transcript    string `json:"transcript"`
	EndedAt       string `json:"endedAt"`
	TotalMessages int    `json:"totalMessages"`
}

type exportPayload struct {
	Contact      contactPayload      `json:"contact"`
	Conversation conversationPayload `json:"conversation"`
}

// Export delivers the conversation to the webhook. Delivery failures
// propagate; the caller's unsent flag stays false so the sweeper retries on a
// later cycle.
func (e *Exporter) Export(ctx context.Context, user *models.User, messages []models.ChatMessage) error {
	if e.webhookURL == "" {
		return ErrWebhookUnset
	}

	payload := exportPayload{
		Contact:      buildContact(user),
		Conversation: conversationPayload{
			Summary:       Summarize(messages),
			Transcript:    "Full Conversation:\n\n" + Transcript(user, messages),
			EndedAt:       e.now().UTC().Format(time.RFC3339),
			TotalMessages: len(messages),
		},
	}

	resp, err := e.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(payload).
		Post(e.webhookURL)
	if err != nil {
		return fmt.Errorf("post crm webhook: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("crm webhook returned %s", resp.Status())
	}
	return nil
}

func buildContact(user *models.User) contactPayload {
	first, last := splitName(user.Name)
	return contactPayload{FirstName: first, LastName: last, Email: user.Email}
}

func splitName(name string) (first, last string) {
	for i, r := range name {
		if r == ' ' {
			return name[:i], name[i+1:]
		}
	}
	return name, ""
}

// Summarize scans the transcript newest-to-oldest: the most recent assistant
// turn carrying the phone marker is the recommended-business block, and the
// nearest preceding user turn is the last inquiry.
func Summarize(messages []models.ChatMessage) string {
	var lastInquiry, businessInfo string
	for i := len(messages) - 1; i >= 0; i-- {
		msg := messages[i]
		if msg.Role == models.RoleAssistant && strings.Contains(msg.Content, phoneMarker) {
			businessInfo = msg.Content
			continue
		}
		if msg.Role == models.RoleUser && lastInquiry == "" && businessInfo != "" {
			lastInquiry = msg.Content
			break
		}
	}

	if lastInquiry == "" {
		lastInquiry = "N/A"
	}
	recommendation := "No specific business was recommended."
	if businessInfo != "" {
		recommendation = "Recommended Business:\n" + businessInfo
	}
	return fmt.Sprintf("User Inquiry: %s\n\n%s", lastInquiry, recommendation)
}

// Transcript renders every turn oldest-first, one per line, blank-line
// separated, with the visitor's display name on user turns.
func Transcript(user *models.User, messages []models.ChatMessage) string {
	out := ""
	for i, msg := range messages {
		name := "Assistant"
		if msg.Role == models.RoleUser {
			name = user.Name
		}
		ts := time.UnixMilli(msg.Timestamp).Local().Format("1/2/2006, 3:04:05 PM")
		if i > 0 {
			out += "\n\n"
		}
		out += fmt.Sprintf("%s (%s): %s", name, ts, msg.Content)
	}
	return out
}
