// Package pipeline supplies the reference summarization tools: a
// chunk/summarize/merge/refine workflow expressed through the tool
// contract. It doubles as a working example of a graph with a
// conditional self-loop.
package pipeline

import (
	"context"
	"strings"

	"github.com/stepflow-ai/stepflow/graph"
	"github.com/stepflow-ai/stepflow/graph/tool"
)

// Node and state key names used by the summarization workflow.
const (
	NodeSplitText         = "split_text"
	NodeGenerateSummaries = "generate_summaries"
	NodeMergeSummaries    = "merge_summaries"
	NodeRefineSummary     = "refine_summary"

	KeyText          = "text"
	KeyChunkSize     = "chunk_size"
	KeyChunks        = "chunks"
	KeyPerChunkWords = "per_chunk_summary_words"
	KeySummaries     = "summaries"
	KeyDraftSummary  = "draft_summary"
	KeyLimitWords    = "summary_limit_words"
	KeyFinalSummary  = "final_summary"
	KeyShortEnough   = "is_summary_short_enough"
)

// Defaults applied when the initial state leaves a knob unset.
const (
	defaultChunkSize     = 50
	defaultPerChunkWords = 20
	defaultLimitWords    = 40
)

// Register binds the four summarization tools to their node names.
func Register(reg *tool.Registry) {
	reg.RegisterFunc(NodeSplitText, SplitText)
	reg.RegisterFunc(NodeGenerateSummaries, GenerateSummaries)
	reg.RegisterFunc(NodeMergeSummaries, MergeSummaries)
	reg.RegisterFunc(NodeRefineSummary, RefineSummary)
}

// GraphSpec returns the canonical summarization graph: a linear chain
// into refine_summary, which loops on itself until the draft fits the
// word limit.
func GraphSpec() (nodes []string, startNode string, edges map[string]graph.EdgeRule) {
	nodes = []string{NodeSplitText, NodeGenerateSummaries, NodeMergeSummaries, NodeRefineSummary}
	startNode = NodeSplitText
	edges = map[string]graph.EdgeRule{
		NodeSplitText:         graph.LinearRule{Next: NodeGenerateSummaries},
		NodeGenerateSummaries: graph.LinearRule{Next: NodeMergeSummaries},
		NodeMergeSummaries:    graph.LinearRule{Next: NodeRefineSummary},
		NodeRefineSummary: graph.ConditionalRule{
			ConditionKey: KeyShortEnough,
			OnTrue:       graph.EndNode,
			OnFalse:      NodeRefineSummary,
		},
	}
	return nodes, startNode, edges
}

// SplitText chunks state["text"] into groups of state["chunk_size"]
// words (default 50) and stores them under "chunks".
func SplitText(_ context.Context, state map[string]any) (tool.Result, error) {
	text := asString(state[KeyText])
	chunkSize := asInt(state[KeyChunkSize], defaultChunkSize)

	words := strings.Fields(text)
	var chunks []string
	for i := 0; i < len(words); i += chunkSize {
		end := i + chunkSize
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, strings.Join(words[i:end], " "))
	}

	return tool.Update(map[string]any{KeyChunks: chunks}), nil
}

// GenerateSummaries produces a rule-based summary per chunk: the first
// state["per_chunk_summary_words"] words (default 20), stored under
// "summaries".
func GenerateSummaries(_ context.Context, state map[string]any) (tool.Result, error) {
	chunks := asStrings(state[KeyChunks])
	maxWords := asInt(state[KeyPerChunkWords], defaultPerChunkWords)

	summaries := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		words := strings.Fields(chunk)
		if len(words) > maxWords {
			words = words[:maxWords]
		}
		summaries = append(summaries, strings.Join(words, " "))
	}

	return tool.Update(map[string]any{KeySummaries: summaries}), nil
}

// MergeSummaries joins the per-chunk summaries into a single draft
// stored under "draft_summary".
func MergeSummaries(_ context.Context, state map[string]any) (tool.Result, error) {
	summaries := asStrings(state[KeySummaries])
	return tool.Update(map[string]any{KeyDraftSummary: strings.Join(summaries, " ")}), nil
}

// RefineSummary trims the draft to state["summary_limit_words"] words
// (default 40) and flags whether the draft already fit the limit.
//
// The trimmed text is written back to "draft_summary" as well, so the
// conditional self-loop on is_summary_short_enough converges on the
// second pass instead of spinning an oversized draft to the step cap.
func RefineSummary(_ context.Context, state map[string]any) (tool.Result, error) {
	draft := asString(state[KeyDraftSummary])
	limit := asInt(state[KeyLimitWords], defaultLimitWords)

	words := strings.Fields(draft)
	shortEnough := len(words) <= limit
	if len(words) > limit {
		words = words[:limit]
	}
	final := strings.Join(words, " ")

	return tool.Update(map[string]any{
		KeyFinalSummary: final,
		KeyDraftSummary: final,
		KeyShortEnough:  shortEnough,
	}), nil
}

// asString reads a state value as a string, tolerating absence.
func asString(v any) string {
	s, _ := v.(string)
	return s
}

// asInt reads a state value as an int, tolerating the float64 that JSON
// decoding produces and falling back to def when absent or unusable.
func asInt(v any, def int) int {
	switch x := v.(type) {
	case int:
		return x
	case int64:
		return int(x)
	case float64:
		return int(x)
	default:
		return def
	}
}

// asStrings reads a state value as a string slice, tolerating the
// []any that JSON decoding produces.
func asStrings(v any) []string {
	switch x := v.(type) {
	case []string:
		return x
	case []any:
		out := make([]string, 0, len(x))
		for _, item := range x {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
