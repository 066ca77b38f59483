// Package orchestrator runs the query-time pipeline: retrieve context from
// the vector index, grade its relevance, generate an answer, and validate
// the model output into a typed response.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"spacepedia/internal/answer"
	"spacepedia/internal/index"
	"spacepedia/internal/provider"
)

// defaultTopK is how many chunks are retrieved per query.
const defaultTopK = 3

// gradePreviewChars caps the per-document preview shown to the grader.
const gradePreviewChars = 300

// Searcher is the read-side of the vector index used at query time.
type Searcher interface {
	Search(ctx context.Context, query string, k int) ([]index.Result, error)
}

// QueryState is the transient record threaded through the pipeline stages
// for one question. It is discarded after the query completes.
type QueryState struct {
	Question    string
	ChatHistory string
	Documents   []index.Result
	Generation  string
	Answer      answer.ValidatedAnswer
}

// Response is the final shape consumed by the API layer.
type Response struct {
	Answer     string
	Confidence answer.Confidence
	Reasoning  *string
	Sources    []map[string]string
}

// Orchestrator executes the retrieve → grade → generate → validate pipeline.
type Orchestrator struct {
	index     Searcher
	generator provider.Generator
	validator *answer.Validator
	topK      int
	logger    *slog.Logger
}

// New creates an Orchestrator. topK <= 0 selects the default of 3.
func New(idx Searcher, gen provider.Generator, topK int) *Orchestrator {
	if topK <= 0 {
		topK = defaultTopK
	}
	return &Orchestrator{
		index:     idx,
		generator: gen,
		validator: answer.NewValidator(),
		topK:      topK,
		logger:    slog.Default(),
	}
}

// Query answers a question against the index. Index failures and generation
// failures are returned to the caller; grading failures degrade to the
// ungraded result set instead.
func (o *Orchestrator) Query(ctx context.Context, question, chatHistory string) (*Response, error) {
	state := &QueryState{Question: question, ChatHistory: chatHistory}

	if err := o.retrieve(ctx, state); err != nil {
		return nil, err
	}
	o.grade(ctx, state)
	if err := o.generate(ctx, state); err != nil {
		return nil, err
	}

	sources := make([]map[string]string, len(state.Documents))
	for i, doc := range state.Documents {
		sources[i] = doc.Metadata
	}
	return &Response{
		Answer:     state.Answer.Answer,
		Confidence: state.Answer.Confidence,
		Reasoning:  state.Answer.Reasoning,
		Sources:    sources,
	}, nil
}

// retrieve fills state.Documents with the top-K nearest chunks. An empty
// result set is valid and flows on to the later stages.
func (o *Orchestrator) retrieve(ctx context.Context, state *QueryState) error {
	docs, err := o.index.Search(ctx, state.Question, o.topK)
	if err != nil {
		return fmt.Errorf("retrieving context: %w", err)
	}
	state.Documents = docs
	o.logger.Debug("retrieved context", "question", state.Question, "documents", len(docs))
	return nil
}

// grade filters state.Documents to the ones a grading call judges relevant.
//
// Grading is advisory, and the stage fails open by contract: if the grading
// call or its JSON parse fails, or grading would reduce a non-empty
// candidate set to empty, the original ungraded documents are kept. Grading
// must never cost an answer that retrieval already found.
func (o *Orchestrator) grade(ctx context.Context, state *QueryState) {
	if len(state.Documents) == 0 {
		return
	}

	resp, err := o.generator.Generate(ctx, gradePrompt(state.Question, state.Documents))
	if err != nil {
		o.logger.Warn("grading call failed, keeping all documents", "error", err)
		return
	}

	indices, err := parseGradeResponse(resp)
	if err != nil {
		o.logger.Warn("grading response unparseable, keeping all documents", "error", err)
		return
	}

	var kept []index.Result
	for _, i := range indices {
		if i >= 0 && i < len(state.Documents) {
			kept = append(kept, state.Documents[i])
		}
	}
	if len(kept) == 0 {
		o.logger.Warn("grading filtered out all documents, keeping original set",
			"candidates", len(state.Documents))
		return
	}

	o.logger.Debug("graded documents", "kept", len(kept), "candidates", len(state.Documents))
	state.Documents = kept
}

// generate produces and validates the final answer. With no documents the
// generative call is skipped entirely and a fixed low-confidence answer is
// returned. A provider failure here is surfaced to the caller: there is no
// answer to validate.
func (o *Orchestrator) generate(ctx context.Context, state *QueryState) error {
	if len(state.Documents) == 0 {
		state.Answer = answer.ValidatedAnswer{
			Answer:     "I'm sorry, I couldn't find any relevant information in my database to answer your question.",
			Confidence: answer.Low,
			Reasoning:  strPtr("No relevant documents found after grading."),
		}
		return nil
	}

	raw, err := o.generator.Generate(ctx, answerPrompt(state))
	if err != nil {
		return fmt.Errorf("generating answer: %w", err)
	}
	state.Generation = raw
	state.Answer = o.validator.Validate(raw)
	return nil
}

// parseGradeResponse extracts the relevant_indices list from a grading
// reply, tolerating a code fence around the JSON.
func parseGradeResponse(raw string) ([]int, error) {
	text := strings.TrimSpace(raw)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
		text = strings.TrimSpace(text)
	}
	var parsed struct {
		RelevantIndices []int `json:"relevant_indices"`
	}
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		return nil, fmt.Errorf("decoding grade response: %w", err)
	}
	return parsed.RelevantIndices, nil
}

// gradePrompt asks the model which candidate documents are relevant,
// presenting a short preview of each.
func gradePrompt(question string, docs []index.Result) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are a grader assessing relevance of retrieved documents to the user question: '%s'\n\n", question)
	for i, doc := range docs {
		fmt.Fprintf(&sb, "Document %d: %s...\n\n", i, truncate(doc.Text, gradePreviewChars))
	}
	sb.WriteString("Return a JSON object with a single key 'relevant_indices' containing a list of integer indices (0-based) for documents that are relevant.\n")
	sb.WriteString("Example: {\"relevant_indices\": [0, 2]}\n")
	sb.WriteString("If none are relevant, return {\"relevant_indices\": []}.\n")
	sb.WriteString("Do NOT include any explanation, only the JSON.")
	return sb.String()
}

// answerPrompt builds the generation prompt from context, history, and the
// question, instructing the model to answer in JSON.
func answerPrompt(state *QueryState) string {
	texts := make([]string, len(state.Documents))
	for i, doc := range state.Documents {
		texts[i] = doc.Text
	}
	history := state.ChatHistory
	if history == "" {
		history = "No previous history."
	}

	return "You are SpacePedia AI, an expert on space exploration.\n" +
		"Use the provided context and conversation history to answer the user's question.\n" +
		"You MUST return your response in valid JSON format with the following keys:\n" +
		"- 'answer': The direct answer (markdown supported: lists, code blocks, bolding).\n" +
		"- 'confidence': 'High', 'Medium', or 'Low'.\n" +
		"- 'reasoning': A brief explanation of your confidence.\n\n" +
		"Do not include any markdown formatting (like ```json) OUTSIDE the JSON object. Just the raw JSON.\n\n" +
		"CONTEXT:\n" + strings.Join(texts, "\n\n") + "\n\n" +
		"HISTORY:\n" + history + "\n\n" +
		"USER QUESTION: " + state.Question
}

// truncate cuts s to at most max bytes without splitting a UTF-8 sequence.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}

func strPtr(s string) *string { return &s }
