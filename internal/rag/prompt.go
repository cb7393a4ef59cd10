package rag

import "strings"

// QueryType categorises a question so the prompt can steer the model toward
// the right answer shape. Small local models ramble without this.
type QueryType string

const (
	QueryDefinition QueryType = "definition"
	QueryProcess    QueryType = "process"
	QueryComplexity QueryType = "complexity"
	QueryPurpose    QueryType = "purpose"
	QueryGeneral    QueryType = "general"
)

// systemPrompt frames every generation request.
const systemPrompt = "You are an expert computer science educator specializing in algorithms and data structures. " +
	"Answer the question based ONLY on the provided context. Be precise, accurate, and appropriately scoped."

var instructions = map[QueryType]string{
	QueryDefinition: `INSTRUCTIONS FOR DEFINITION:
- Provide a clear, concise definition (1-2 sentences)
- Include key characteristics or properties
- Use precise technical terminology
- Avoid excessive detail unless specifically asked

ANSWER (concise definition):`,
	QueryProcess: `INSTRUCTIONS FOR PROCESS:
- Explain the key steps or process briefly
- Focus on the main algorithm or procedure
- Include time/space complexity if relevant
- Keep explanation structured and clear

ANSWER (process explanation):`,
	QueryComplexity: `INSTRUCTIONS FOR COMPLEXITY:
- State both average case and worst case if different
- Use Big O notation correctly
- Be specific about what operations are being measured
- Include space complexity if relevant

ANSWER (complexity analysis):`,
	QueryPurpose: `INSTRUCTIONS FOR PURPOSE:
- Explain the main use case or application
- Include why it's preferred over alternatives
- Mention key advantages
- Keep explanation practical and clear

ANSWER (purpose explanation):`,
	QueryGeneral: `INSTRUCTIONS:
- Answer exactly what is asked - no more, no less
- Be precise and factually accurate
- Include relevant technical details
- Cite page numbers when available

ANSWER:`,
}

// queryTypeMarkers maps trigger phrases to query types, checked in order.
var queryTypeMarkers = []struct {
	phrases []string
	qt      QueryType
}{
	{[]string{"what is", "define", "definition of"}, QueryDefinition},
	{[]string{"how does", "how to", "explain how"}, QueryProcess},
	{[]string{"time complexity", "space complexity", "complexity"}, QueryComplexity},
	{[]string{"used for", "purpose of", "why use"}, QueryPurpose},
}

// DetectQueryType classifies question by trigger phrases, falling back to
// [QueryGeneral].
func DetectQueryType(question string) QueryType {
	lower := strings.ToLower(question)
	for _, m := range queryTypeMarkers {
		for _, phrase := range m.phrases {
			if strings.Contains(lower, phrase) {
				return m.qt
			}
		}
	}
	return QueryGeneral
}

// BuildPrompt assembles the user prompt for one generation request. lang is
// the detected question language; Bangla questions get an explicit answer
// language instruction because small models otherwise drift into English.
func BuildPrompt(question, context string, qt QueryType, lang string) string {
	var b strings.Builder
	b.WriteString("CONTEXT:\n")
	b.WriteString(context)
	b.WriteString("\n\nQUESTION: ")
	b.WriteString(question)
	b.WriteString("\n")
	if lang == "bn" {
		b.WriteString("Answer in Bangla.\n")
	}
	b.WriteString(instructions[qt])
	return b.String()
}
