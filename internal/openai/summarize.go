package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/podushkina/meetscribe/internal/retry"
)

const (
	SummaryModel = "gpt-4o-mini"

	DefaultSummaryPrompt = `You summarize meeting transcripts. Reply with a JSON object with two string fields:
"title": a short descriptive meeting title (at most 8 words),
"summary": a concise summary covering key decisions, action items and open questions.`
)

var ErrEmptySummary = errors.New("empty summary in response")

type Summary struct {
	Title   string `json:"title"`
	Summary string `json:"summary"`
}

// Summarizer asks /v1/chat/completions for a title and summary.
type Summarizer struct {
	Client       *Client
	Model        string
	SystemPrompt string
	Retry        retry.Policy
}

func NewSummarizer(c *Client) *Summarizer {
	return &Summarizer{
		Client:       c,
		Model:        SummaryModel,
		SystemPrompt: DefaultSummaryPrompt,
		Retry:        retry.Summary(),
	}
}

func (s *Summarizer) Summarize(ctx context.Context, transcript, notes string) (*Summary, error) {
	var out *Summary
	err := s.Retry.Do(ctx, func(ctx context.Context) error {
		res, err := s.attempt(ctx, transcript, notes)
		if err != nil {
			return err
		}
		out = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Summarizer) attempt(ctx context.Context, transcript, notes string) (*Summary, error) {
	prompt := s.SystemPrompt
	if prompt == "" {
		prompt = DefaultSummaryPrompt
	}
	model := s.Model
	if model == "" {
		model = SummaryModel
	}

	user := "Here is the meeting transcript to summarize:\n\n" + transcript
	if strings.TrimSpace(notes) != "" {
		user += "\n\nNotes from the participant:\n" + notes
	}

	reqBody := chatRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "system", Content: prompt},
			{Role: "user", Content: user},
		},
		ResponseFormat: &responseFormat{Type: "json_object"},
	}
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.Client.BaseURL+"/v1/chat/completions", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	respBody, err := s.Client.do(req, "summarization")
	if err != nil {
		return nil, err
	}

	var apiResp chatResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, fmt.Errorf("parsing summarization response: %w", err)
	}
	if len(apiResp.Choices) == 0 {
		return nil, ErrEmptySummary
	}

	var res Summary
	if err := json.Unmarshal([]byte(apiResp.Choices[0].Message.Content), &res); err != nil {
		return nil, fmt.Errorf("parsing summary content: %w", err)
	}
	res.Title = strings.TrimSpace(res.Title)
	res.Summary = strings.TrimSpace(res.Summary)
	if res.Summary == "" {
		return nil, ErrEmptySummary
	}
	if res.Title == "" {
		res.Title = "Untitled meeting"
	}
	return &res, nil
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}
