package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/quizfeed/internal/generator"
	"github.com/kalambet/quizfeed/internal/profile"
	"github.com/kalambet/quizfeed/internal/storage"
)

// MCPProfileSource provides the preference snapshot exposed to generation
// agents. Implemented by profile.Session.
type MCPProfileSource interface {
	Snapshot() *profile.Profile
}

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Store   *storage.Store
	Profile MCPProfileSource
}

// NewMCPServer creates an MCP server exposing the engine to generation
// agents: they read the user's current preferences and recent questions,
// then submit candidate items back into the pool.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"quizfeed",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("quizfeed — personalized trivia feed engine. Read preferences and recent questions, then submit fresh candidate items."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("get_preferences",
			mcp.WithDescription("Return the user's current topic preferences as a generation request: primary topics, adjacent topics, and preferred subtopics/branches."),
			mcp.WithNumber("count", mcp.Description("Desired number of items the caller plans to generate (default 50)")),
		),
		mcpGetPreferences(deps),
	)

	s.AddTool(
		mcp.NewTool("recent_questions",
			mcp.WithDescription("Return the texts of recently stored questions so new candidates can avoid near-duplicates."),
			mcp.WithNumber("limit", mcp.Description("Maximum number of texts (default 50)")),
		),
		mcpRecentQuestions(deps),
	)

	s.AddTool(
		mcp.NewTool("submit_candidates",
			mcp.WithDescription("Submit generated trivia items into the candidate pool. Duplicates (by normalized text and tags) are silently dropped."),
			mcp.WithString("items", mcp.Description("JSON array of items: {id, text, answer, choices, topic, subtopic, branch, tags, difficulty}"), mcp.Required()),
		),
		mcpSubmitCandidates(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"user://profile",
			"User Profile",
			mcp.WithResourceDescription("Current interest profile as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceProfile(deps),
	)

	return s
}

func mcpGetPreferences(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		count := req.GetInt("count", 50)
		if count <= 0 {
			count = 50
		}

		snap := deps.Profile.Snapshot()
		genReq := generator.BuildRequest(snap, nil, nil, count)

		b, err := json.Marshal(genReq)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal preferences: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpRecentQuestions(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := req.GetInt("limit", 50)
		if limit <= 0 {
			limit = 50
		}
		if limit > 500 {
			limit = 500
		}

		texts, err := deps.Store.RecentQuestionTexts(limit)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to load recent questions: %v", err)), nil
		}
		if texts == nil {
			texts = []string{}
		}

		b, err := json.Marshal(texts)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal texts: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpSubmitCandidates(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		itemsJSON, err := req.RequireString("items")
		if err != nil {
			return mcpError("items is required"), nil
		}

		var items []generator.Item
		if err := json.Unmarshal([]byte(itemsJSON), &items); err != nil {
			return mcpError(fmt.Sprintf("invalid items JSON: %v", err)), nil
		}
		if len(items) == 0 {
			return mcpError("items must not be empty"), nil
		}

		for i := range items {
			if items[i].Text == "" {
				return mcpError(fmt.Sprintf("item %d has no text", i)), nil
			}
			if items[i].Topic == "" {
				return mcpError(fmt.Sprintf("item %d has no topic", i)), nil
			}
			if items[i].ID == "" {
				items[i].ID = uuid.New().String()
			}
		}

		stored, err := deps.Store.SaveCandidates(items)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to store candidates: %v", err)), nil
		}

		return mcpText(fmt.Sprintf("Stored %d of %d items (%d duplicates dropped)",
			stored, len(items), len(items)-stored)), nil
	}
}

func mcpResourceProfile(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		b, err := json.Marshal(deps.Profile.Snapshot())
		if err != nil {
			return nil, fmt.Errorf("failed to marshal profile: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
