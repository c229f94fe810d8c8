package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/automem/pkg/facts"
	"github.com/papercomputeco/automem/pkg/memory"
	"github.com/papercomputeco/automem/pkg/utils"
)

var (
	memoryExtractToolName    = "memory_extract"
	memoryExtractDescription = "Extract durable facts about the user from a message without storing them. Returns the short third-person statements that automatic memory would save for this text."

	memoryRememberToolName    = "memory_remember"
	memoryRememberDescription = "Store facts about a user in long-term memory. Each fact should be a short, standalone statement such as \"User enjoys hiking\"."
)

// MemoryExtractInput represents the input arguments for the memory_extract tool.
type MemoryExtractInput struct {
	Text string `json:"text" jsonschema:"the user message to extract facts from"`
}

// MemoryExtractOutput represents the structured output of an extraction.
type MemoryExtractOutput struct {
	Facts []string `json:"facts"`
	Count int      `json:"count"`
}

// MemoryRememberInput represents the input arguments for the memory_remember tool.
type MemoryRememberInput struct {
	UserID string   `json:"user_id" jsonschema:"the id of the user the facts are about"`
	Facts  []string `json:"facts" jsonschema:"the facts to store"`
}

// MemoryRememberOutput reports how many facts were stored.
type MemoryRememberOutput struct {
	Saved  int `json:"saved"`
	Failed int `json:"failed"`
}

func (s *Server) handleMemoryExtract(ctx context.Context, _ *mcp.CallToolRequest, input MemoryExtractInput) (*mcp.CallToolResult, MemoryExtractOutput, error) {
	if strings.TrimSpace(input.Text) == "" {
		return errorResult("text is required"), MemoryExtractOutput{}, nil
	}

	found, err := s.config.Pipeline.Preview(ctx, input.Text)
	if err != nil && !errors.Is(err, facts.ErrEmptyList) {
		s.config.Logger.Warn("memory_extract rejected model output", "error", err)
		return errorResult(fmt.Sprintf("Extraction failed: %v", err)), MemoryExtractOutput{}, nil
	}
	if found == nil {
		found = []string{}
	}

	output := MemoryExtractOutput{Facts: found, Count: len(found)}
	return jsonResult(output), output, nil
}

func (s *Server) handleMemoryRemember(ctx context.Context, _ *mcp.CallToolRequest, input MemoryRememberInput) (*mcp.CallToolResult, MemoryRememberOutput, error) {
	if strings.TrimSpace(input.UserID) == "" {
		return errorResult("user_id is required"), MemoryRememberOutput{}, nil
	}

	raw, err := json.Marshal(input.Facts)
	if err != nil {
		return errorResult(fmt.Sprintf("Invalid facts: %v", err)), MemoryRememberOutput{}, nil
	}

	res, err := s.config.Pipeline.Remember(ctx, string(raw), memory.Owner{UserID: input.UserID})
	if err != nil {
		return errorResult(fmt.Sprintf("Invalid facts: %v", err)), MemoryRememberOutput{}, nil
	}

	s.config.Logger.Info("memory_remember stored facts",
		"user_id", utils.ShortID(input.UserID),
		"saved", res.Saved,
		"failed", res.Failed,
	)

	output := MemoryRememberOutput{Saved: res.Saved, Failed: res.Failed}
	if res.Saved == 0 {
		out := errorResult(fmt.Sprintf("No facts stored, %d failed", res.Failed))
		return out, output, nil
	}
	return jsonResult(output), output, nil
}

func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{
			&mcp.TextContent{Text: msg},
		},
	}
}

// jsonResult mirrors structured output as a text block for clients that only
// read text content.
func jsonResult(v any) *mcp.CallToolResult {
	jsonBytes, err := json.Marshal(v)
	if err != nil {
		return errorResult(fmt.Sprintf("Failed to serialize results: %v", err))
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(jsonBytes)},
		},
	}
}
