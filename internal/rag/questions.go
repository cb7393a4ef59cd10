package rag

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/banglarag/banglarag/internal/transcribe"
	"github.com/banglarag/banglarag/pkg/docstore"
	"github.com/banglarag/banglarag/pkg/provider/llm"
)

// ErrNoContent is returned by [Processor.GenerateQuestions] when retrieval
// finds nothing to generate questions from.
var ErrNoContent = errors.New("rag: no course content found for question generation")

// ErrUnparsableQuestions is returned when the model's output could not be
// turned into questions by any parsing strategy.
var ErrUnparsableQuestions = errors.New("rag: failed to parse generated questions")

const (
	defaultQuestionCount = 5
	maxQuestionChunks    = 10
)

// QuestionRequest asks for generated assessment questions over the ingested
// material.
type QuestionRequest struct {
	// Topic focuses generation on one subject ("binary search trees").
	// Empty means the whole collection.
	Topic string `json:"topic"`

	// Collection restricts retrieval, empty searches all collections.
	Collection string `json:"collection"`

	// Count is the number of questions to generate. Default: 5.
	Count int `json:"num_questions"`

	// Difficulty is "easy", "medium", "hard", or "mixed". Default: "mixed".
	Difficulty string `json:"difficulty"`

	// Types selects the question formats: "multiple-choice", "true-false",
	// "short-answer", "explain". Default: multiple choice only.
	Types []string `json:"question_types"`
}

// Question is one generated assessment question.
type Question struct {
	Question string `json:"question"`

	// Type is the question format, one of the [QuestionRequest.Types] values.
	Type string `json:"type"`

	// Options holds the four choices of a multiple-choice question, nil for
	// other types.
	Options []string `json:"options,omitempty"`

	Answer     string `json:"answer"`
	Difficulty string `json:"difficulty"`
	Topic      string `json:"topic,omitempty"`
}

// typeInstructions phrases each requested format for the generation prompt.
var typeInstructions = map[string]string{
	"multiple-choice": "multiple choice questions with 4 options (A, B, C, D)",
	"true-false":      "true/false questions",
	"short-answer":    "short answer questions requiring 1-2 sentence responses",
	"explain":         "explanation questions asking to describe or explain concepts",
}

// difficultyGuidance phrases each difficulty level for the generation prompt.
var difficultyGuidance = map[string]string{
	"easy":   "Basic recall and understanding level questions",
	"medium": "Application and analysis level questions",
	"hard":   "Advanced synthesis and evaluation level questions",
	"mixed":  "Mix of easy, medium, and hard questions",
}

// GenerateQuestions retrieves material on the requested topic and asks the
// model chain to write assessment questions over it. Retrieval fetches twice
// as many chunks as questions (capped at 10) so the model has enough
// distinct material to vary the questions.
//
// Returns [ErrNoContent] when retrieval comes back empty and
// [ErrUnparsableQuestions] when the model's output defeats every parsing
// strategy.
func (p *Processor) GenerateQuestions(ctx context.Context, req QuestionRequest) ([]Question, error) {
	if req.Count <= 0 {
		req.Count = defaultQuestionCount
	}
	if _, ok := difficultyGuidance[req.Difficulty]; !ok {
		req.Difficulty = "mixed"
	}
	types := make([]string, 0, len(req.Types))
	for _, t := range req.Types {
		if _, ok := typeInstructions[t]; ok {
			types = append(types, t)
		}
	}
	if len(types) == 0 {
		types = []string{"multiple-choice"}
	}

	query := "course content key topics and concepts"
	if req.Topic != "" {
		query = req.Topic + " content topics concepts"
	}

	k := min(req.Count*2, maxQuestionChunks)
	lang := transcribe.DetectLanguage(query)
	cacheKey := "qgen|" + lang + "|" + req.Collection + "|" + strings.ToLower(query)
	chunks, err := p.retrieve(ctx, query, lang, req.Collection, cacheKey, k)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, ErrNoContent
	}

	prompt := buildQuestionPrompt(req, types, chunks)

	p.logger.Info("generating questions",
		"topic", req.Topic, "count", req.Count,
		"difficulty", req.Difficulty, "types", types)

	llmStart := time.Now()
	resp, err := p.generator.Complete(ctx, llm.CompletionRequest{
		Messages: []llm.Message{{Role: "user", Content: prompt}},
	})
	if p.metrics != nil {
		p.metrics.LLMDuration.Record(ctx, time.Since(llmStart).Seconds())
	}
	if err != nil {
		return nil, fmt.Errorf("rag: generate questions: %w", err)
	}

	questions, err := parseQuestions(resp.Content)
	if err != nil {
		p.logger.Error("question parsing failed",
			"model", p.generator.Model(), "response_head", head(resp.Content, 300))
		return nil, err
	}
	return questions, nil
}

// buildQuestionPrompt assembles the generation prompt: the retrieved
// material, the formats and difficulty requested, and a JSON-only output
// contract that small local models mostly honor.
func buildQuestionPrompt(req QuestionRequest, types []string, chunks []docstore.SearchResult) string {
	sections := make([]string, len(chunks))
	for i, c := range chunks {
		sections[i] = fmt.Sprintf("SECTION: %s\n%s", c.Document.FileName, c.Document.Content)
	}

	typeNames := make([]string, len(types))
	for i, t := range types {
		typeNames[i] = typeInstructions[t]
	}

	focus := req.Topic
	if focus == "" {
		focus = "All course material"
	}

	var b strings.Builder
	b.WriteString("You are an expert educator creating assessment questions for a computer science course.\n\n")
	b.WriteString("COURSE CONTENT:\n")
	b.WriteString(strings.Join(sections, "\n\n"))
	fmt.Fprintf(&b, "\n\nTASK: Generate %d high-quality assessment questions.\n\n", req.Count)
	b.WriteString("REQUIREMENTS:\n")
	fmt.Fprintf(&b, "- Question Types: %s\n", strings.Join(typeNames, ", "))
	fmt.Fprintf(&b, "- Difficulty Level: %s\n", difficultyGuidance[req.Difficulty])
	fmt.Fprintf(&b, "- Topic Focus: %s\n", focus)
	b.WriteString("- Questions must be clear, unambiguous, and directly related to the course content above\n")
	b.WriteString("- For multiple choice: provide exactly 4 options with clear correct answer\n")
	b.WriteString("- For true/false: provide clear reasoning for the answer\n")
	b.WriteString("- Questions should test conceptual understanding, not just memorization\n\n")
	b.WriteString("CRITICAL: You MUST respond with ONLY valid JSON - no markdown, no explanation, no code blocks.\n")
	b.WriteString("Start your response with [ and end with ]\n\n")
	b.WriteString("FORMAT (JSON only):\n")
	b.WriteString(`[
  {
    "question": "What is the time complexity of...",
    "type": "multiple-choice",
    "options": ["O(1)", "O(n)", "O(log n)", "O(n^2)"],
    "answer": "O(n)",
    "difficulty": "medium",
    "topic": "` + focus + `"
  }
]
`)
	fmt.Fprintf(&b, "\nGenerate exactly %d questions. JSON ONLY - no other text:", req.Count)
	return b.String()
}

var (
	fenceOpen  = regexp.MustCompile("(?i)^```json\\s*")
	fenceBare  = regexp.MustCompile("^```\\s*")
	fenceClose = regexp.MustCompile("\\s*```$")
	jsonArray  = regexp.MustCompile(`\[\s*\{[\s\S]*\}\s*\]`)
	// questionObject matches a flat JSON object carrying at least a question
	// and an answer. Nested braces are beyond it, which is fine for the flat
	// objects the prompt asks for.
	questionObject = regexp.MustCompile(`\{[^{}]*"question"[^{}]*"answer"[^{}]*\}`)
)

// parseQuestions turns raw model output into questions. Small local models
// wrap JSON in markdown fences or chatter around it, so three strategies
// run in order: extract the outermost array from the defenced text, parse
// the whole defenced text, and finally fish out individual question objects.
func parseQuestions(raw string) ([]Question, error) {
	clean := strings.TrimSpace(raw)
	clean = fenceOpen.ReplaceAllString(clean, "")
	clean = fenceBare.ReplaceAllString(clean, "")
	clean = fenceClose.ReplaceAllString(clean, "")

	if m := jsonArray.FindString(clean); m != "" {
		var questions []Question
		if err := json.Unmarshal([]byte(m), &questions); err == nil && len(questions) > 0 {
			return questions, nil
		}
	}

	var questions []Question
	if err := json.Unmarshal([]byte(clean), &questions); err == nil && len(questions) > 0 {
		return questions, nil
	}

	questions = nil
	for _, m := range questionObject.FindAllString(raw, -1) {
		var q Question
		if err := json.Unmarshal([]byte(m), &q); err != nil {
			continue
		}
		if q.Question != "" && q.Answer != "" {
			questions = append(questions, q)
		}
	}
	if len(questions) > 0 {
		return questions, nil
	}
	return nil, ErrUnparsableQuestions
}

func head(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && s[n]&0xC0 == 0x80 {
		n--
	}
	return s[:n]
}
