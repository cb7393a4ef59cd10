package rag_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/banglarag/banglarag/internal/rag"
	docmock "github.com/banglarag/banglarag/pkg/docstore/mock"
	"github.com/banglarag/banglarag/pkg/provider/llm"
	llmmock "github.com/banglarag/banglarag/pkg/provider/llm/mock"
)

const questionJSON = `[
  {
    "question": "What is the average lookup complexity of a binary search tree?",
    "type": "multiple-choice",
    "options": ["O(1)", "O(n)", "O(log n)", "O(n^2)"],
    "answer": "O(log n)",
    "difficulty": "medium",
    "topic": "binary search trees"
  },
  {
    "question": "Insertion into a BST follows the search path to a leaf.",
    "type": "true-false",
    "answer": "true",
    "difficulty": "easy"
  }
]`

func TestGenerateQuestions_ParsesCleanJSON(t *testing.T) {
	gen := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: questionJSON},
		ModelName:        "qwen2:1.5b",
	}
	p := newProcessor(t, seedStore(t), gen)

	questions, err := p.GenerateQuestions(context.Background(), rag.QuestionRequest{
		Topic:      "binary search trees",
		Count:      2,
		Difficulty: "medium",
		Types:      []string{"multiple-choice", "true-false"},
	})
	if err != nil {
		t.Fatalf("GenerateQuestions: %v", err)
	}
	if len(questions) != 2 {
		t.Fatalf("questions: want 2, got %d", len(questions))
	}
	q := questions[0]
	if q.Type != "multiple-choice" {
		t.Errorf("Type: got %q", q.Type)
	}
	if len(q.Options) != 4 {
		t.Errorf("Options: want 4, got %v", q.Options)
	}
	if q.Answer != "O(log n)" {
		t.Errorf("Answer: got %q", q.Answer)
	}

	// The prompt carries the retrieved material and the request knobs.
	if len(gen.CompleteCalls) != 1 {
		t.Fatalf("Complete calls: want 1, got %d", len(gen.CompleteCalls))
	}
	prompt := gen.CompleteCalls[0].Req.Messages[0].Content
	for _, want := range []string{
		"sorted order",
		"Generate exactly 2 questions",
		"Application and analysis",
		"true/false questions",
		"binary search trees",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestGenerateQuestions_StripsMarkdownFences(t *testing.T) {
	gen := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{
			Content: "```json\n" + questionJSON + "\n```",
		},
	}
	p := newProcessor(t, seedStore(t), gen)

	questions, err := p.GenerateQuestions(context.Background(), rag.QuestionRequest{})
	if err != nil {
		t.Fatalf("GenerateQuestions: %v", err)
	}
	if len(questions) != 2 {
		t.Errorf("questions: want 2, got %d", len(questions))
	}
}

func TestGenerateQuestions_RecoversIndividualObjects(t *testing.T) {
	// Chatter around the output defeats the array strategies; the flat
	// objects are still recoverable.
	gen := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{
			Content: `Here are your questions!
First: {"question": "What is a BST?", "type": "short-answer", "answer": "A sorted binary tree."}
Second: {"question": "Is lookup O(1)?", "type": "true-false", "answer": "false"}
Hope that helps.`,
		},
	}
	p := newProcessor(t, seedStore(t), gen)

	questions, err := p.GenerateQuestions(context.Background(), rag.QuestionRequest{})
	if err != nil {
		t.Fatalf("GenerateQuestions: %v", err)
	}
	if len(questions) != 2 {
		t.Fatalf("questions: want 2, got %d", len(questions))
	}
	if questions[0].Question != "What is a BST?" {
		t.Errorf("Question: got %q", questions[0].Question)
	}
}

func TestGenerateQuestions_NoContent(t *testing.T) {
	gen := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: questionJSON},
	}
	p := newProcessor(t, &docmock.Store{}, gen)

	_, err := p.GenerateQuestions(context.Background(), rag.QuestionRequest{Topic: "graphs"})
	if !errors.Is(err, rag.ErrNoContent) {
		t.Fatalf("err = %v, want ErrNoContent", err)
	}
	if len(gen.CompleteCalls) != 0 {
		t.Error("model must not be called without content")
	}
}

func TestGenerateQuestions_UnparsableOutput(t *testing.T) {
	gen := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "I cannot produce JSON, sorry."},
	}
	p := newProcessor(t, seedStore(t), gen)

	_, err := p.GenerateQuestions(context.Background(), rag.QuestionRequest{})
	if !errors.Is(err, rag.ErrUnparsableQuestions) {
		t.Fatalf("err = %v, want ErrUnparsableQuestions", err)
	}
}

func TestGenerateQuestions_AppliesDefaults(t *testing.T) {
	gen := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: questionJSON},
	}
	p := newProcessor(t, seedStore(t), gen)

	if _, err := p.GenerateQuestions(context.Background(), rag.QuestionRequest{
		Difficulty: "impossible",
		Types:      []string{"essay"},
	}); err != nil {
		t.Fatalf("GenerateQuestions: %v", err)
	}

	prompt := gen.CompleteCalls[0].Req.Messages[0].Content
	if !strings.Contains(prompt, "Generate exactly 5 questions") {
		t.Error("default count of 5 not applied")
	}
	if !strings.Contains(prompt, "Mix of easy, medium, and hard") {
		t.Error("unknown difficulty should fall back to mixed")
	}
	if !strings.Contains(prompt, "multiple choice questions with 4 options") {
		t.Error("unknown types should fall back to multiple choice")
	}
}

func TestGenerateQuestions_GenerationError(t *testing.T) {
	gen := &llmmock.Provider{CompleteErr: errors.New("model not loaded")}
	p := newProcessor(t, seedStore(t), gen)

	_, err := p.GenerateQuestions(context.Background(), rag.QuestionRequest{})
	if err == nil || !strings.Contains(err.Error(), "generate questions") {
		t.Fatalf("err = %v, want wrapped generation error", err)
	}
}
