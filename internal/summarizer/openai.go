// internal/summarizer/openai.go
package summarizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"delivery-insights/internal/summary"
)

const (
	DefaultModel = "gpt-4o-mini"
	maxDiffChars = 12000
	maxTokens    = 800
)

const systemPrompt = `You write short engineering progress notes for a delivery report.
Describe what changed and why, in plain prose, in at most two paragraphs.
When a previous note is given, rewrite it so it also covers the new commits. Do not list commit hashes.`

// OpenAI summarizes ticket work with a chat completion model.
type OpenAI struct {
	client *openai.Client
	model  string
	logger *slog.Logger
}

// NewOpenAI creates a summarizer. An empty baseURL uses the public OpenAI endpoint.
func NewOpenAI(apiKey, baseURL, model string, logger *slog.Logger) *OpenAI {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = DefaultModel
	}
	return &OpenAI{client: openai.NewClientWithConfig(cfg), model: model, logger: logger}
}

// Summarize implements summary.Summarizer. The completion id is returned as the session identifier.
func (s *OpenAI) Summarize(ctx context.Context, req summary.Request) (summary.Result, error) {
	prompt := BuildPrompt(req)
	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: 0.2,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return summary.Result{}, fmt.Errorf("openai completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return summary.Result{}, errors.New("openai returned no choices")
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return summary.Result{}, errors.New("openai returned an empty summary")
	}
	s.logger.Debug("openai completion",
		"ticket", req.TicketKey,
		"model", s.model,
		"prompt_length", len(prompt),
		"tokens_used", resp.Usage.TotalTokens,
	)
	return summary.Result{Text: text, SessionID: resp.ID}, nil
}

// BuildPrompt renders the ticket context, the commits and the optional previous note and diff.
func BuildPrompt(req summary.Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Ticket: %s\nRepository: %s\n", req.TicketKey, req.Repo)
	if t := req.Ticket; t != nil {
		fmt.Fprintf(&b, "Title: %s\nStatus: %s\nType: %s\n", t.Summary, t.Status, t.Type)
		if t.Description != "" {
			fmt.Fprintf(&b, "Description:\n%s\n", t.Description)
		}
		for _, c := range t.Comments {
			fmt.Fprintf(&b, "Comment by %s: %s\n", c.Author, c.Body)
		}
	}
	if len(req.Branches) > 0 {
		fmt.Fprintf(&b, "Branches: %s\n", strings.Join(req.Branches, ", "))
	}
	if len(req.Authors) > 0 {
		fmt.Fprintf(&b, "Authors: %s\n", strings.Join(req.Authors, ", "))
	}
	for _, pr := range req.Pulls {
		fmt.Fprintf(&b, "Pull request #%d (%s) into %s: %s\n", pr.ID, pr.State, pr.TargetBranch, pr.Title)
	}

	if req.PreviousSummary != "" {
		fmt.Fprintf(&b, "\nPrevious note:\n%s\n\nNew commits:\n", req.PreviousSummary)
	} else {
		b.WriteString("\nCommits:\n")
	}
	for _, c := range req.Commits {
		fmt.Fprintf(&b, "- %s %s: %s (+%d/-%d)\n", c.Timestamp.Format("2006-01-02"), c.AuthorName,
			firstLine(c.Message), c.Insertions, c.Deletions)
	}

	if req.Diff != "" {
		diff := req.Diff
		if len(diff) > maxDiffChars {
			diff = diff[:maxDiffChars] + "\n[diff truncated]"
		}
		fmt.Fprintf(&b, "\nDiff against base branch:\n%s\n", diff)
	}
	return b.String()
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
