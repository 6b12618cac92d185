package knowledge

import (
	"strings"
	"text/template"
)

// DocumentSeparator sits between knowledge blocks in the system prompt.
const DocumentSeparator = "\n\n---\n\n"

// EmptyKnowledgePlaceholder replaces the knowledge section when no documents are loaded.
const EmptyKnowledgePlaceholder = "No knowledge base documents loaded yet. Please add documents to the knowledge-base folder."

var systemPromptTemplate = template.Must(template.New("system").Parse(
	`You are a helpful customer support agent for {{.CompanyName}}.

## Your Role
- Answer customer questions accurately based on the knowledge base below
- Be friendly, professional, and empathetic
- Keep responses concise but helpful
- If you don't know something, say "I'll need to check with our team on that" instead of making things up

## Language Handling
- ALWAYS respond in the SAME language the customer used in their most recent message
- If they write in Bulgarian (Български), respond in Bulgarian
- If they write in English, respond in English
- Match their level of formality and tone

## Important Rules
1. ONLY answer based on the knowledge base provided below
2. Never make up product features, prices, or policies
3. If a question is outside your knowledge, offer to connect with a human agent
4. For urgent issues (billing disputes, account security), recommend contacting human support

## Knowledge Base
{{.Knowledge}}

## Response Style
- Use clear, simple language
- Break down complex answers into steps
- Offer follow-up help when appropriate
- End responses with "Is there anything else I can help you with?" only when the conversation naturally concludes`))

// BuildSystemPrompt embeds docs into the support agent instructions for
// companyName. It is pure: equal inputs always give byte-identical output.
func BuildSystemPrompt(companyName string, docs []Document) string {
	blocks := make([]string, 0, len(docs))
	for _, d := range docs {
		blocks = append(blocks, "## "+d.Title+"\n"+d.Content)
	}

	knowledge := strings.Join(blocks, DocumentSeparator)
	if knowledge == "" {
		knowledge = EmptyKnowledgePlaceholder
	}

	var sb strings.Builder
	// Execute only fails on writer errors or bad field access; neither can
	// happen with a strings.Builder and this fixed data shape.
	_ = systemPromptTemplate.Execute(&sb, struct {
		CompanyName string
		Knowledge   string
	}{companyName, knowledge})
	return sb.String()
}
