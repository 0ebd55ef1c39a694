package matcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"

	"dirchat/internal/config"
	"dirchat/internal/models"
)

// ErrEmptyCompletion is returned when the completion API produced no content.
var ErrEmptyCompletion = errors.New("completion returned no content")

// Result is the matcher's answer for one user turn.
type Result struct {
	Message   string
	Matches   []models.BusinessMatch
	IsClosing bool
}

// Matcher asks a completion model to pick businesses from the directory that
// fit the visitor's query and to phrase the conversational reply.
type Matcher struct {
	chatModel model.BaseChatModel
}

// New constructs a matcher for the configured provider.
func New(cfg *config.Config) (*Matcher, error) {
	provider := cfg.BasicConfig.CompletionProvider
	if provider == "" {
		provider = "openai"
	}
	provCfg, ok := cfg.Providers[provider]
	if !ok {
		return nil, fmt.Errorf("provider %s not configured", provider)
	}

	var (
		chatModel model.BaseChatModel
		err       error
	)
	switch provider {
	case "openai":
		chatModel, err = openai.NewChatModel(context.Background(), &openai.ChatModelConfig{
			BaseURL: provCfg.BaseURL,
			Model:   provCfg.Model,
			APIKey:  provCfg.APIKey,
		})
	case "gemini":
		var client *genai.Client
		client, err = genai.NewClient(context.Background(), &genai.ClientConfig{
			APIKey: provCfg.APIKey,
		})
		if err != nil {
			return nil, fmt.Errorf("new gemini client: %w", err)
		}
		chatModel, err = gemini.NewChatModel(context.Background(), &gemini.Config{
			Client: client,
			Model:  provCfg.Model,
		})
	case "claude":
		var baseURLPtr *string
		if provCfg.BaseURL != "" {
			baseURLPtr = &provCfg.BaseURL
		}
		chatModel, err = claude.NewChatModel(context.Background(), &claude.Config{
			APIKey:    provCfg.APIKey,
			Model:     provCfg.Model,
			BaseURL:   baseURLPtr,
			MaxTokens: 3000,
		})
	default:
		return nil, fmt.Errorf("invalid provider: %s", provider)
	}
	if err != nil {
		return nil, fmt.Errorf("init %s chat model: %w", provider, err)
	}
	return &Matcher{chatModel: chatModel}, nil
}

// NewWithModel wraps an existing chat model; used by tests.
func NewWithModel(m model.BaseChatModel) *Matcher {
	return &Matcher{chatModel: m}
}

// completionPayload is the structured object the model is instructed to emit.
// Fields beyond these are dropped on decode.
type completionPayload struct {
	Matches []struct {
		Name            string   `json:"name"`
		PrimaryServices string   `json:"primaryServices"`
		Categories      []string `json:"categories"`
		Phone           string   `json:"phone"`
		Email           string   `json:"email"`
		Website         string   `json:"website"`
	} `json:"matches"`
	Message          string `json:"message"`
	FollowUpQuestion string `json:"followUpQuestion"`
	QuestionContext  string `json:"questionContext"`
	IsClosing        bool   `json:"isClosing"`
	MatchReason      string `json:"matchReason"`
}

// FindMatches sends one completion request carrying the query, the full
// directory snapshot and the prior turns, and shapes the reply:
//   - closing turns return the model's closing message verbatim;
//   - multiple matches append the follow-up question after a blank line, plus
//     the question context in parentheses on its own line when supplied;
//   - zero or one match returns the base message unmodified.
//
// No retry on failure; the caller surfaces a generic error to the visitor.
func (m *Matcher) FindMatches(ctx context.Context, query string, businesses []models.BusinessRecord, prior []models.ChatMessage) (*Result, error) {
	userPayload, err := json.Marshal(struct {
		Query               string                  `json:"query"`
		Businesses          []models.BusinessRecord `json:"businesses"`
		ConversationHistory []models.ChatMessage    `json:"conversationHistory"`
	}{
		Query:               query,
		Businesses:          businesses,
		ConversationHistory: prior,
	})
	if err != nil {
		return nil, fmt.Errorf("encode matcher payload: %w", err)
	}

	resp, err := m.chatModel.Generate(ctx, []*schema.Message{
		{Role: schema.System, Content: systemInstruction},
		{Role: schema.User, Content: string(userPayload)},
	})
	if err != nil {
		return nil, fmt.Errorf("completion request failed: %w", err)
	}
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		return nil, ErrEmptyCompletion
	}

	var payload completionPayload
	if err := json.Unmarshal([]byte(stripFences(resp.Content)), &payload); err != nil {
		return nil, fmt.Errorf("parse completion response: %w", err)
	}

	matches := make([]models.BusinessMatch, 0, len(payload.Matches))
	for _, mt := range payload.Matches {
		matches = append(matches, models.BusinessMatch{
			Name:            mt.Name,
			PrimaryServices: mt.PrimaryServices,
			Categories:      mt.Categories,
			Phone:           mt.Phone,
			Email:           mt.Email,
			Website:         mt.Website,
		})
	}

	message := payload.Message
	if !payload.IsClosing && len(matches) > 1 {
		message = payload.Message + "\n\n" + payload.FollowUpQuestion
		if payload.QuestionContext != "" {
			message += "\n\n(" + payload.QuestionContext + ")"
		}
	}

	return &Result{
		Message:   message,
		Matches:   matches,
		IsClosing: payload.IsClosing,
	}, nil
}

// stripFences removes a markdown code fence some models wrap around JSON.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
