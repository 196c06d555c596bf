// Package agent provides structured-output LLM helpers used opportunistically
// across the pipeline: keyword extraction for image search, phrase splitting
// for subtitles, and input normalization during validation. Every caller has
// a deterministic fallback; an unavailable or failing agent is never fatal.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/Kira7dn/video-create/internal/config"
	"github.com/Kira7dn/video-create/internal/logger"
)

// ErrDisabled is returned by every call when the agent is not configured.
var ErrDisabled = errors.New("agent disabled")

// Agent issues structured chat completions against an OpenAI-compatible API.
type Agent struct {
	client *openai.Client
	model  string
}

// New builds an Agent from settings. Returns nil when AI is disabled or no
// API key is configured; a nil Agent is valid and fails every call with
// ErrDisabled, which callers treat as "use the fallback".
func New(s config.AISettings) *Agent {
	if !s.Enabled || s.APIKey == "" {
		return nil
	}
	return &Agent{
		client: openai.NewClient(s.APIKey),
		model:  s.Model,
	}
}

// Enabled reports whether calls can be attempted.
func (a *Agent) Enabled() bool { return a != nil && a.client != nil }

// completeJSON sends one system+user exchange requesting a JSON object reply
// and unmarshals the reply into out.
func (a *Agent) completeJSON(ctx context.Context, name, system, user string, out any) error {
	if !a.Enabled() {
		return ErrDisabled
	}
	logger.AgentCall(name, a.model)
	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: a.model,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	})
	if err != nil {
		return fmt.Errorf("%s completion: %w", name, err)
	}
	if len(resp.Choices) == 0 {
		return fmt.Errorf("%s completion: empty response", name)
	}
	content := resp.Choices[0].Message.Content
	if err := json.Unmarshal([]byte(content), out); err != nil {
		return fmt.Errorf("%s completion: decoding %q: %w", name, content, err)
	}
	return nil
}

// ExtractKeywords asks for up to max short search keywords describing the
// given narration text, ordered most specific first.
func (a *Agent) ExtractKeywords(ctx context.Context, content string, max int) ([]string, error) {
	var out struct {
		Keywords []string `json:"keywords"`
	}
	system := fmt.Sprintf(
		"You extract stock-photo search keywords. Reply with a JSON object "+
			`{"keywords": [...]} of at most %d short English keywords, most `+
			"specific first. No sentences, no punctuation.", max)
	if err := a.completeJSON(ctx, "keywords", system, content, &out); err != nil {
		return nil, err
	}
	kws := make([]string, 0, max)
	for _, k := range out.Keywords {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		kws = append(kws, k)
		if len(kws) == max {
			break
		}
	}
	if len(kws) == 0 {
		return nil, errors.New("keywords completion: no usable keywords")
	}
	return kws, nil
}

// SplitPhrases asks for the transcript split into subtitle-sized phrases.
// Constraints are advisory to the model; callers re-validate the result.
func (a *Agent) SplitPhrases(ctx context.Context, transcript string, minWords, maxWords, maxChars int) ([]string, error) {
	var out struct {
		Phrases []string `json:"phrases"`
	}
	system := fmt.Sprintf(
		"You split narration into subtitle phrases. Reply with a JSON object "+
			`{"phrases": [...]}. Each phrase must have %d to %d words and at `+
			"most %d characters. Phrases concatenated in order must contain "+
			"every word of the input exactly once, in order. Do not rephrase.",
		minWords, maxWords, maxChars)
	if err := a.completeJSON(ctx, "phrase_split", system, transcript, &out); err != nil {
		return nil, err
	}
	if len(out.Phrases) == 0 {
		return nil, errors.New("phrase_split completion: no phrases")
	}
	return out.Phrases, nil
}

// NormalizeSpec asks the model to repair a spec document that failed
// structural validation, given the reported issues. The reply must be the
// corrected JSON document itself.
func (a *Agent) NormalizeSpec(ctx context.Context, raw []byte, issues []string) ([]byte, error) {
	var out map[string]any
	system := "You repair JSON documents describing video assembly requests. " +
		"Given a document and a list of validation issues, reply with the " +
		"corrected JSON document only. Preserve all valid fields untouched. " +
		"Never invent media URLs."
	user := fmt.Sprintf("Issues:\n- %s\n\nDocument:\n%s",
		strings.Join(issues, "\n- "), string(raw))
	if err := a.completeJSON(ctx, "normalize_spec", system, user, &out); err != nil {
		return nil, err
	}
	fixed, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("normalize_spec: re-encoding: %w", err)
	}
	return fixed, nil
}
