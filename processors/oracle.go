package processors

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"videoStitch/config"
	"videoStitch/core"
	"videoStitch/storage"
)

// OpenAIOracle judges scene relevance with a chat completion. The model is
// asked for strict JSON; anything unparsable surfaces as an error so the
// synthesizer can fall back deterministically.
type OpenAIOracle struct {
	cli   *openai.Client
	model string
}

func NewOpenAIOracle(cfg *config.Config) *OpenAIOracle {
	return &OpenAIOracle{cli: storage.NewOpenAIClient(cfg), model: cfg.ChatModel}
}

type oracleResponse struct {
	RelevantSceneIDs []string `json:"relevant_scene_ids"`
	StartTimeSeconds float64  `json:"start_time_seconds"`
	EndTimeSeconds   float64  `json:"end_time_seconds"`
	Reasoning        string   `json:"reasoning"`
}

func (o *OpenAIOracle) Judge(ctx context.Context, query string, candidates []core.SearchResult) (*Judgment, error) {
	prompt := buildJudgePrompt(query, candidates)

	req := openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleSystem,
				Content: "You are an expert video analyst. Evaluate video scenes for true relevance to " +
					"search queries and recommend precise timestamps. Respond only with valid JSON.",
			},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: 0.1,
		MaxTokens:   800,
	}
	resp, err := o.cli.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("empty completion")
	}

	text := stripCodeFence(resp.Choices[0].Message.Content)
	var parsed oracleResponse
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		return nil, fmt.Errorf("unparsable judgment: %w", err)
	}
	return &Judgment{
		SelectedSceneIDs: parsed.RelevantSceneIDs,
		OverallStart:     parsed.StartTimeSeconds,
		OverallEnd:       parsed.EndTimeSeconds,
		Reasoning:        parsed.Reasoning,
	}, nil
}

func buildJudgePrompt(query string, candidates []core.SearchResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are analyzing scenes from the video %q to determine which are DIRECTLY relevant to a search query.\n\n", candidates[0].VideoTitle)
	fmt.Fprintf(&b, "Search Query: %q\n\nCandidate scenes (sorted by retrieval order):\n", query)
	for _, c := range candidates {
		fmt.Fprintf(&b, "\nScene %d (id %s, %s - %s):\nTranscript: %s\nVisual Context: %s\nSimilarity Score: %.3f\n",
			c.Scene.SceneNumber, c.Scene.SceneID,
			core.FormatClock(c.Scene.StartTime), core.FormatClock(c.Scene.EndTime),
			c.Scene.Transcript, c.Scene.VisualContext, c.Score)
	}
	fmt.Fprintf(&b, `
Apply STRICT criteria: keep only scenes that contain substantial, focused content
about the query topic. A scene with a high similarity score that only mentions the
topic in passing must be dropped. Then recommend the overall start and end
timestamps (in seconds) that tightly bound the kept scenes; you may include
connective context between them.

Respond in this exact JSON shape and nothing else:
{"relevant_scene_ids": ["<scene id>"], "start_time_seconds": <number>, "end_time_seconds": <number>, "reasoning": "why these scenes and timestamps"}
`)
	return b.String()
}

// stripCodeFence removes markdown fences some models wrap around JSON.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```json") {
		s = strings.TrimPrefix(s, "```json")
	} else if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
