package server

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/oklog/ulid/v2"

	"github.com/helicon-ai/mnemo/internal/core"
	"github.com/helicon-ai/mnemo/internal/engine"
	"github.com/helicon-ai/mnemo/internal/privacy"
	"github.com/helicon-ai/mnemo/pkg/log"
	"github.com/helicon-ai/mnemo/pkg/tokens"
)

// MCP exposes recall and remember as tools over stdio, so an agent runtime
// can use the memory engine without the HTTP API.
type MCP struct {
	pipeline *engine.Pipeline
	records  core.RecordRepository
	jobs     core.JobRepository
	gate     *privacy.Gate
	embedder core.Embedder // optional
	counter  tokens.Counter
}

func NewMCP(pipeline *engine.Pipeline, records core.RecordRepository, jobs core.JobRepository, gate *privacy.Gate, embedder core.Embedder, counter tokens.Counter) *MCP {
	return &MCP{
		pipeline: pipeline,
		records:  records,
		jobs:     jobs,
		gate:     gate,
		embedder: embedder,
		counter:  counter,
	}
}

// Serve blocks on stdio until the client disconnects.
func (m *MCP) Serve(ctx context.Context) error {
	s := mcpserver.NewMCPServer(core.AppName, core.AppVersion,
		mcpserver.WithToolCapabilities(false),
	)

	recall := mcp.NewTool("recall",
		mcp.WithDescription("Retrieve the most relevant memories for a query, scored and packed under the token budget."),
		mcp.WithString("query", mcp.Required(), mcp.Description("What to recall.")),
		mcp.WithString("conversation_id", mcp.Description("Conversation whose window and memories to search. Defaults to 'default'.")),
		mcp.WithString("project_id", mcp.Description("Project scope for retrieval.")),
		mcp.WithNumber("top_k", mcp.Description("Maximum candidates to consider before packing.")),
	)
	s.AddTool(recall, m.handleRecall)

	remember := mcp.NewTool("remember",
		mcp.WithDescription("Store a durable memory. Sensitive content is redacted or rejected."),
		mcp.WithString("content", mcp.Required(), mcp.Description("The fact to remember.")),
		mcp.WithString("scope", mcp.Description("conversation, project, or global. Defaults to global.")),
		mcp.WithString("tags", mcp.Description("Comma-separated tags.")),
		mcp.WithString("conversation_id", mcp.Description("Conversation to attach the memory to.")),
		mcp.WithString("project_id", mcp.Description("Project to attach the memory to.")),
	)
	s.AddTool(remember, m.handleRemember)

	return mcpserver.ServeStdio(s)
}

func (m *MCP) handleRecall(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	conversationID := req.GetString("conversation_id", "default")
	projectID := req.GetString("project_id", "")

	result, err := m.pipeline.Assemble(ctx, engine.AssembleRequest{
		ConversationID: conversationID,
		ProjectID:      projectID,
		Query:          query,
		TopK:           req.GetInt("top_k", 0),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("recall failed: %v", err)), nil
	}

	if result.Signal.Enqueue {
		// Recall can compact the window; the evicted turns survive only in
		// the snapshot, so the job must be enqueued here too.
		job := newConsolidationJob(m.gate, conversationID, projectID, "",
			result.Signal.Reason, result.Snapshot, result.Compaction.Evicted)
		if err := m.jobs.EnqueueJob(ctx, job); err != nil {
			log.FromCtx(ctx).Error().Err(err).Msg("consolidation enqueue failed")
		}
	}

	if len(result.Prompt.Context) == 0 {
		return mcp.NewToolResultText("No relevant memories found."), nil
	}

	var sb strings.Builder
	for _, block := range result.Prompt.Context {
		fmt.Fprintf(&sb, "[%s] (%s, relevance %.2f)\n%s\n\n",
			block.Label, block.Citation.Origin, block.Citation.Relevance, block.Content)
	}
	return mcp.NewToolResultText(strings.TrimSpace(sb.String())), nil
}

func (m *MCP) handleRemember(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	scope := core.Scope(req.GetString("scope", string(core.ScopeGlobal)))
	if _, ok := validScopes[scope]; !ok {
		return mcp.NewToolResultError("scope must be conversation, project, or global"), nil
	}

	switch m.gate.ClassifyFact(content) {
	case privacy.DecisionBlock:
		return mcp.NewToolResultError("content blocked by privacy gate"), nil
	case privacy.DecisionRedact:
		content = m.gate.Redact(content)
	}

	var tags []string
	if raw := req.GetString("tags", ""); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				tags = append(tags, t)
			}
		}
	}

	now := time.Now()
	rec := core.MemoryRecord{
		ID:             ulid.Make().String(),
		Kind:           core.KindSemantic,
		Scope:          scope,
		Content:        content,
		Tags:           tags,
		Confidence:     1.0,
		Tokens:         m.counter.Count(content),
		SessionID:      req.GetString("conversation_id", ""),
		ProjectID:      req.GetString("project_id", ""),
		CreatedAt:      now,
		LastAccessedAt: now,
	}
	if m.embedder != nil {
		if vec, eerr := m.embedder.Embed(ctx, content); eerr == nil {
			rec.Embedding = vec
		}
	}

	if err := m.records.InsertRecord(ctx, rec); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("store failed: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Stored memory %s (%d tokens, scope %s).", rec.ID, rec.Tokens, rec.Scope)), nil
}
