package evaluator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/selfpromise/backend/internal/evidence"
)

// LLMBased asks a chat-completions endpoint to judge the promise. Used for
// promise types whose criteria resist a fixed rule, at the cost of a lower
// and model-dependent confidence.
type LLMBased struct {
	endpoint string
	apiKey   string
	model    string
	client   *http.Client
}

// NewLLMBased creates an evaluator backed by an OpenAI-compatible API.
func NewLLMBased(endpoint, apiKey, model string) *LLMBased {
	return &LLMBased{
		endpoint: endpoint,
		apiKey:   apiKey,
		model:    model,
		client:   &http.Client{Timeout: 60 * time.Second},
	}
}

func (l *LLMBased) Name() string { return "llm_based" }

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// llmVerdict is the JSON object the model is instructed to emit. Confidence
// arrives as a 0.0-1.0 float and is rescaled to an integer percentage.
type llmVerdict struct {
	Fulfilled  bool                   `json:"fulfilled"`
	Confidence float64                `json:"confidence"`
	Reasoning  string                 `json:"reasoning"`
	Details    map[string]interface{} `json:"details"`
}

// Evaluate summarizes the evidence, prompts the model, and parses the strict
// JSON verdict out of its reply.
func (l *LLMBased) Evaluate(ctx context.Context, p Params, ev evidence.Bundle) (Result, error) {
	prompt := l.formatPrompt(p, ev)

	body, err := json.Marshal(chatRequest{
		Model: l.model,
		Messages: []chatMessage{
			{Role: "system", Content: "You are an impartial evaluator determining if a person has fulfilled their promise based on evidence. Respond only with a JSON object."},
			{Role: "user", Content: prompt},
		},
		Temperature: 0.1,
	})
	if err != nil {
		return Result{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+l.apiKey)

	resp, err := l.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("LLM request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("LLM API returned status %d", resp.StatusCode)
	}

	var cr chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return Result{}, fmt.Errorf("failed to decode LLM response: %w", err)
	}
	if len(cr.Choices) == 0 {
		return Result{}, fmt.Errorf("LLM response contained no choices")
	}

	return parseVerdict(cr.Choices[0].Message.Content)
}

// parseVerdict extracts the JSON verdict, tolerating surrounding prose or
// markdown fences.
func parseVerdict(content string) (Result, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return Result{}, fmt.Errorf("no JSON object in LLM reply")
	}

	var v llmVerdict
	if err := json.Unmarshal([]byte(content[start:end+1]), &v); err != nil {
		return Result{}, fmt.Errorf("malformed verdict JSON: %w", err)
	}

	confidence := int(v.Confidence * 100)
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 100 {
		confidence = 100
	}

	return Result{
		Fulfilled:  v.Fulfilled,
		Confidence: confidence,
		Reasoning:  v.Reasoning,
		Details:    v.Details,
	}, nil
}

func (l *LLMBased) formatPrompt(p Params, ev evidence.Bundle) string {
	promiseJSON, _ := json.MarshalIndent(map[string]interface{}{
		"type":       p.PromiseType,
		"start_date": p.Start.Format(time.RFC3339),
		"end_date":   p.End.Format(time.RFC3339),
		"parameters": p.Values,
	}, "", "  ")

	var b strings.Builder
	fmt.Fprintf(&b, "Determine whether the following promise was fulfilled.\n\nPromise:\n%s\n\n", promiseJSON)
	b.WriteString("Evidence summary:\n")
	b.WriteString(summarizeEvidence(ev))
	b.WriteString("\nRespond with a JSON object of the form ")
	b.WriteString(`{"fulfilled": bool, "confidence": float between 0.0 and 1.0, "reasoning": string, "details": object}.`)
	return b.String()
}

// summarizeEvidence condenses the bundle into weekly counts so the prompt
// stays small regardless of sample volume.
func summarizeEvidence(ev evidence.Bundle) string {
	var b strings.Builder

	weeks := make(map[time.Time]int)
	for _, s := range ev.Sessions {
		weeks[periodStart(s.Start, "week")]++
	}
	fmt.Fprintf(&b, "- %d exercise sessions across %d weeks\n", len(ev.Sessions), len(weeks))

	for _, ws := range sortedKeys(weeks) {
		fmt.Fprintf(&b, "  - week of %s: %d sessions\n", ws.Format("2006-01-02"), weeks[ws])
	}

	if n := len(ev.ElevatedPeriods); n > 0 {
		total := 0
		for _, ep := range ev.ElevatedPeriods {
			total += ep.DurationMinutes
		}
		fmt.Fprintf(&b, "- %d elevated heart rate periods, %d minutes total\n", n, total)
	}
	if ev.Summary.ActiveZoneMinutes > 0 {
		fmt.Fprintf(&b, "- %d active zone minutes in the window\n", ev.Summary.ActiveZoneMinutes)
	}
	if len(ev.HeartRate) > 0 {
		log.Printf("[Evaluator] omitting %d raw heart rate samples from prompt", len(ev.HeartRate))
	}
	return b.String()
}

func sortedKeys(m map[time.Time]int) []time.Time {
	out := make([]time.Time, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}
