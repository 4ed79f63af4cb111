package api

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kalambet/quizfeed/internal/generator"
	"github.com/kalambet/quizfeed/internal/profile"
	"github.com/kalambet/quizfeed/internal/storage"
)

type staticProfile struct{ p *profile.Profile }

func (s staticProfile) Snapshot() *profile.Profile { return s.p.Clone() }

func newTestMCPDeps(t *testing.T) (MCPDeps, *storage.Store) {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	p := profile.New()
	p.Topics["Science"] = &profile.Topic{
		Weight: 0.8,
		Subtopics: map[string]*profile.Subtopic{
			"Physics": {Weight: 0.7, Branches: map[string]*profile.Branch{}},
		},
	}

	return MCPDeps{
		Store:   store,
		Profile: staticProfile{p},
	}, store
}

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func makeReadResourceRequest(uri string) mcp.ReadResourceRequest {
	return mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{
			URI: uri,
		},
	}
}

func TestMCPTool_GetPreferences(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	handler := mcpGetPreferences(deps)

	result, err := handler(context.Background(), makeCallToolRequest("get_preferences", map[string]interface{}{}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if result.IsError {
		t.Fatalf("tool error: %s", toolText(t, result))
	}

	var req generator.Request
	if err := json.Unmarshal([]byte(toolText(t, result)), &req); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if len(req.PrimaryTopics) == 0 || req.PrimaryTopics[0] != "Science" {
		t.Errorf("primary topics = %v, want [Science]", req.PrimaryTopics)
	}
	if req.Count != 50 {
		t.Errorf("count = %d, want default 50", req.Count)
	}
}

func TestMCPTool_RecentQuestions(t *testing.T) {
	deps, store := newTestMCPDeps(t)
	handler := mcpRecentQuestions(deps)

	result, err := handler(context.Background(), makeCallToolRequest("recent_questions", map[string]interface{}{}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if got := toolText(t, result); got != "[]" {
		t.Errorf("empty store should yield [], got %s", got)
	}

	store.SaveCandidates([]generator.Item{
		{ID: "a", Text: "What is inertia?", Topic: "Science", Subtopic: "Physics", Branch: "Mechanics"},
	})

	result, err = handler(context.Background(), makeCallToolRequest("recent_questions", map[string]interface{}{}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	var texts []string
	if err := json.Unmarshal([]byte(toolText(t, result)), &texts); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if len(texts) != 1 || texts[0] != "What is inertia?" {
		t.Errorf("texts = %v", texts)
	}
}

func TestMCPTool_SubmitCandidates(t *testing.T) {
	deps, store := newTestMCPDeps(t)
	handler := mcpSubmitCandidates(deps)

	items := []generator.Item{
		{Text: "What is inertia?", Topic: "Science", Subtopic: "Physics", Branch: "Mechanics"},
		{Text: "what is INERTIA", Topic: "Science", Subtopic: "Physics", Branch: "Mechanics"},
	}
	b, _ := json.Marshal(items)

	result, err := handler(context.Background(), makeCallToolRequest("submit_candidates", map[string]interface{}{
		"items": string(b),
	}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if result.IsError {
		t.Fatalf("tool error: %s", toolText(t, result))
	}

	stored, err := store.ListCandidates(10)
	if err != nil {
		t.Fatalf("ListCandidates: %v", err)
	}
	if len(stored) != 1 {
		t.Errorf("stored %d items, want 1 (fingerprint duplicate dropped)", len(stored))
	}
	if stored[0].ID == "" {
		t.Error("stored item should have an assigned id")
	}
}

func TestMCPTool_SubmitCandidates_Validation(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	handler := mcpSubmitCandidates(deps)

	cases := map[string]string{
		"missing items": "",
		"empty array":   "[]",
		"no text":       `[{"topic":"Science"}]`,
		"no topic":      `[{"text":"hello"}]`,
		"bad json":      "{not json",
	}
	for name, itemsJSON := range cases {
		args := map[string]interface{}{}
		if itemsJSON != "" {
			args["items"] = itemsJSON
		}
		result, err := handler(context.Background(), makeCallToolRequest("submit_candidates", args))
		if err != nil {
			t.Fatalf("%s: handler error: %v", name, err)
		}
		if !result.IsError {
			t.Errorf("%s: expected tool error", name)
		}
	}
}

func TestMCPResource_Profile(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	handler := mcpResourceProfile(deps)

	contents, err := handler(context.Background(), makeReadResourceRequest("user://profile"))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if len(contents) != 1 {
		t.Fatalf("got %d contents, want 1", len(contents))
	}
	text, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("expected TextResourceContents, got %T", contents[0])
	}

	var p profile.Profile
	if err := json.Unmarshal([]byte(text.Text), &p); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if w := p.TopicWeight("Science"); w != 0.8 {
		t.Errorf("Science weight = %v, want 0.8", w)
	}
}
