package research

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mohammad-safakhou/researcher/provider"
)

var (
	//go:embed schemas/plan.json
	planSchemaJSON []byte
	//go:embed schemas/questions.json
	questionsSchemaJSON []byte
	//go:embed schemas/extraction.json
	extractionSchemaJSON []byte
	//go:embed schemas/draft.json
	draftSchemaJSON []byte
	//go:embed schemas/evaluation.json
	evaluationSchemaJSON []byte
)

var (
	planSchema       = provider.MustSchema("plan", planSchemaJSON)
	extractionSchema = provider.MustSchema("extraction", extractionSchemaJSON)
	draftSchema      = provider.MustSchema("draft", draftSchemaJSON)
	evaluationSchema = provider.MustSchema("evaluation", evaluationSchemaJSON)
)

type planOutput struct {
	Plan string `json:"plan"`
}

type questionsOutput struct {
	Questions []string `json:"questions"`
}

type extractionOutput struct {
	Facts     []string `json:"facts"`
	Citations []string `json:"citations"`
}

type draftOutput struct {
	Draft string `json:"draft"`
}

type evaluationOutput struct {
	NeedsFix bool   `json:"needs_fix"`
	Feedback string `json:"feedback"`
}

// questionsSchema pins the question array to exactly n items.
func questionsSchema(n int) (*provider.Schema, error) {
	var doc map[string]interface{}
	if err := json.Unmarshal(questionsSchemaJSON, &doc); err != nil {
		return nil, err
	}
	props, _ := doc["properties"].(map[string]interface{})
	questions, _ := props["questions"].(map[string]interface{})
	if questions == nil {
		return nil, fmt.Errorf("questions schema missing questions property")
	}
	questions["minItems"] = n
	questions["maxItems"] = n
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	return provider.NewSchema("questions", raw)
}

func buildPlanPrompt(query string) string {
	return fmt.Sprintf(`You are the Planner Agent. Read the user query and break it into clear research steps.

Instructions:
1. Do not answer the query.
2. Create an ordered plan of specific steps.
3. Steps must focus on gathering facts, data, citations, comparisons and context needed for a final research brief.
4. Output only the plan field required by the schema.

Goal of the system:
Produce a polished research summary with key insights, data points, citations and recommended next steps.

Generate a concise, actionable plan for the Search Agent.

User Query: %s`, query)
}

func buildQuestionsPrompt(query, plan string, n int) string {
	return fmt.Sprintf(`You are the Search Agent. Read the plan provided by the Planner Agent and convert it into exactly %[1]d atomic search questions.

Instructions:
1. Do not answer the plan.
2. Produce exactly %[1]d questions that together cover every part of the plan.
3. Each question must be atomic and target one fact, one process step, one policy detail or one specific concept.
4. Phrase questions so a web search returns concrete evidence: facts, statistics, expert statements, definitions, timelines, technology details or policy information.
5. Avoid broad or multi-part questions. Avoid interpretation, analysis or recommendations.
6. Questions must directly support the Extraction Agent, which will pull facts, claims and citations from the search results.
7. Output only the questions field required by the schema.

User Query: %[2]s
Plan:
%[3]s

Generate %[1]d atomic questions.`, n, query, plan)
}

func buildExtractionPrompt(questions, evidence []string) string {
	var sb strings.Builder
	for i, ev := range evidence {
		q := ""
		if i < len(questions) {
			q = questions[i]
		}
		fmt.Fprintf(&sb, "[%d] %s\n", i+1, q)
		if strings.TrimSpace(ev) == "" {
			sb.WriteString("(no evidence found)\n\n")
			continue
		}
		sb.WriteString(ev)
		sb.WriteString("\n\n")
	}
	return fmt.Sprintf(`You are the Extraction Agent. Read the raw evidence and extract all factual information that will support the final research brief.

Instructions:
1. Extract factual statements, statistics, definitions, process details, policy information, expert viewpoints and any other verifiable claims.
2. A fact may be a full statement but must reflect what is explicitly present in the evidence.
3. Do not summarise or rewrite. Capture facts as they appear, or as close to the original wording as possible.
4. Extract citations: any URLs, publication names or source identifiers present in the evidence.
5. Ignore irrelevant content, repetition, images and navigation text.
6. Output only the facts and citations fields required by the schema.

Evidence:
%s
Extract factual claims and citations.`, sb.String())
}

func buildDraftPrompt(query string, facts, citations []string, feedback string) string {
	revision := ""
	if strings.TrimSpace(feedback) != "" {
		revision = fmt.Sprintf(`
Previous draft issues (CRITICAL, address every point):
%s

You MUST revise the draft to resolve each of the points above.
`, feedback)
	}
	return fmt.Sprintf(`You are the Writer Agent. Turn the extracted facts and citations into a polished research brief.
%s
Instructions:
1. Use clear markdown formatting and begin with a strong, informative title.
2. Structure the brief with multiple bold section headers chosen for the topic, for example **Overview**, **Background**, **Key Insights**, **Findings**, **Challenges**, **Future Outlook**.
3. Write a long brief: several paragraphs per section with detailed synthesis of the facts.
4. Combine evidence from different parts of the fact set while staying grounded in it.
5. Use bullet points, short paragraphs and occasional tables where they help.
6. Keep a professional, neutral, research-oriented tone.
7. End with a **Citations** section built from the citation list.
8. Directly answer the user's original query.

User Query:
%s

Facts:
%s

Citations:
%s

Write the complete research brief.`, revision, query, bulletList(facts), bulletList(citations))
}

func buildEvaluationPrompt(query, draft string, factPreview []string, totalFacts int) string {
	more := ""
	if totalFacts > len(factPreview) {
		more = fmt.Sprintf("(%d more facts not shown)\n", totalFacts-len(factPreview))
	}
	return fmt.Sprintf(`You are the Evaluator Agent. Evaluate the Writer Agent's draft against the user's query.

Check whether the draft:
- directly addresses all parts of the query
- stays within the scope of the query
- contains no obvious hallucinations or unrelated claims
- is complete and well structured
- uses the extracted facts appropriately

Set needs_fix to true if there are issues and false if the draft is good.
If needs_fix is true, give specific, actionable feedback: unaddressed parts of the query, unsupported claims, and what to add or remove.
If needs_fix is false, set feedback to an empty string.

User Query:
%s

Draft:
%s

Available Facts (for reference):
%s%s
Evaluate the draft and provide your assessment.`, query, draft, bulletList(factPreview), more)
}

func bulletList(items []string) string {
	if len(items) == 0 {
		return "(none)"
	}
	var sb strings.Builder
	for _, it := range items {
		sb.WriteString("- ")
		sb.WriteString(it)
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

// preview flattens whitespace and cuts s to at most n runes.
func preview(s string, n int) string {
	r := []rune(strings.Join(strings.Fields(s), " "))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n]) + "..."
}
