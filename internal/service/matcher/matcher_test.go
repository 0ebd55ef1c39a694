package matcher

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"dirchat/internal/models"
)

type fakeChatModel struct {
	content string
	err     error
	lastIn  []*schema.Message
}

func (f *fakeChatModel) Generate(ctx context.Context, in []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	f.lastIn = in
	if f.err != nil {
		return nil, f.err
	}
	return &schema.Message{Role: schema.Assistant, Content: f.content}, nil
}

func (f *fakeChatModel) Stream(ctx context.Context, in []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("stream not supported in fake")
}

func findMatchesWith(t *testing.T, content string) (*Result, error) {
	t.Helper()
	m := NewWithModel(&fakeChatModel{content: content})
	return m.FindMatches(context.Background(), "need a plumber", nil, nil)
}

func TestFindMatchesSingleMatch(t *testing.T) {
	result, err := findMatchesWith(t, `{
		"matches": [{"name": "Ace Plumbing", "primaryServices": "plumbing", "categories": ["home"], "phone": "555-1234", "unknownField": "dropped"}],
		"message": "I know a great company for that!",
		"followUpQuestion": "should not appear",
		"isClosing": false
	}`)
	if err != nil {
		t.Fatalf("find matches: %v", err)
	}
	if result.Message != "I know a great company for that!" {
		t.Fatalf("single-match message must be unmodified, got %q", result.Message)
	}
	if len(result.Matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(result.Matches))
	}
	if result.Matches[0].Name != "Ace Plumbing" || result.Matches[0].Phone != "555-1234" {
		t.Fatalf("unexpected match %+v", result.Matches[0])
	}
	if result.IsClosing {
		t.Fatalf("unexpected closing flag")
	}
}

func TestFindMatchesMultipleAppendsFollowUp(t *testing.T) {
	result, err := findMatchesWith(t, `{
		"matches": [{"name": "A"}, {"name": "B"}],
		"message": "I work with a couple of options.",
		"followUpQuestion": "Do you prefer residential or commercial work?",
		"questionContext": "This helps me narrow it down",
		"isClosing": false
	}`)
	if err != nil {
		t.Fatalf("find matches: %v", err)
	}
	want := "I work with a couple of options.\n\nDo you prefer residential or commercial work?\n\n(This helps me narrow it down)"
	if result.Message != want {
		t.Fatalf("shaped message mismatch:\nwant %q\ngot  %q", want, result.Message)
	}
}

func TestFindMatchesMultipleWithoutContext(t *testing.T) {
	result, err := findMatchesWith(t, `{
		"matches": [{"name": "A"}, {"name": "B"}],
		"message": "Base.",
		"followUpQuestion": "Which area are you in?",
		"isClosing": false
	}`)
	if err != nil {
		t.Fatalf("find matches: %v", err)
	}
	if result.Message != "Base.\n\nWhich area are you in?" {
		t.Fatalf("unexpected message %q", result.Message)
	}
}

func TestFindMatchesClosingIsVerbatim(t *testing.T) {
	result, err := findMatchesWith(t, `{
		"matches": [{"name": "A"}, {"name": "B"}],
		"message": "Glad I could help. Have a great day!",
		"followUpQuestion": "must not appear",
		"questionContext": "must not appear",
		"isClosing": true
	}`)
	if err != nil {
		t.Fatalf("find matches: %v", err)
	}
	if result.Message != "Glad I could help. Have a great day!" {
		t.Fatalf("closing message must be verbatim, got %q", result.Message)
	}
	if !result.IsClosing {
		t.Fatalf("expected closing flag")
	}
}

func TestFindMatchesFencedJSON(t *testing.T) {
	result, err := findMatchesWith(t, "```json\n{\"matches\": [], \"message\": \"Nothing yet.\", \"isClosing\": false}\n```")
	if err != nil {
		t.Fatalf("fenced JSON should parse: %v", err)
	}
	if result.Message != "Nothing yet." {
		t.Fatalf("unexpected message %q", result.Message)
	}
}

func TestFindMatchesEmptyContent(t *testing.T) {
	if _, err := findMatchesWith(t, "   "); !errors.Is(err, ErrEmptyCompletion) {
		t.Fatalf("expected ErrEmptyCompletion, got %v", err)
	}
}

func TestFindMatchesUnparseableContent(t *testing.T) {
	if _, err := findMatchesWith(t, "sorry, I can't answer that"); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestFindMatchesGenerateError(t *testing.T) {
	m := NewWithModel(&fakeChatModel{err: errors.New("upstream down")})
	if _, err := m.FindMatches(context.Background(), "q", nil, nil); err == nil {
		t.Fatalf("expected error from model")
	}
}

func TestFindMatchesRequestPayload(t *testing.T) {
	fake := &fakeChatModel{content: `{"matches": [], "message": "ok", "isClosing": false}`}
	m := NewWithModel(fake)

	prior := []models.ChatMessage{{Role: models.RoleAssistant, Content: "hello", Timestamp: 1}}
	businesses := []models.BusinessRecord{{"name": "Ace Plumbing"}}
	if _, err := m.FindMatches(context.Background(), "need a plumber", businesses, prior); err != nil {
		t.Fatalf("find matches: %v", err)
	}

	if len(fake.lastIn) != 2 {
		t.Fatalf("expected system+user messages, got %d", len(fake.lastIn))
	}
	if fake.lastIn[0].Role != schema.System || !strings.Contains(fake.lastIn[0].Content, "isClosing") {
		t.Fatalf("system instruction missing response contract")
	}

	var payload struct {
		Query               string                  `json:"query"`
		Businesses          []models.BusinessRecord `json:"businesses"`
		ConversationHistory []models.ChatMessage    `json:"conversationHistory"`
	}
	if err := json.Unmarshal([]byte(fake.lastIn[1].Content), &payload); err != nil {
		t.Fatalf("user payload not JSON: %v", err)
	}
	if payload.Query != "need a plumber" {
		t.Fatalf("query missing from payload")
	}
	if len(payload.Businesses) != 1 || len(payload.ConversationHistory) != 1 {
		t.Fatalf("payload must carry directory and history")
	}
}
