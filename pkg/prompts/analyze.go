package prompts

import (
	"fmt"

	"github.com/soundprediction/go-reliquary/pkg/llm"
)

// FocusEntities is the structured response of the query analysis prompt.
type FocusEntities struct {
	Entities []string `json:"entities"`
}

// AnalyzePrompt defines the interface for query analysis prompts.
type AnalyzePrompt interface {
	FocusEntities() PromptVersion
}

// AnalyzeVersions holds all versions of query analysis prompts.
type AnalyzeVersions struct {
	FocusEntitiesPrompt PromptVersion
}

func (a *AnalyzeVersions) FocusEntities() PromptVersion { return a.FocusEntitiesPrompt }

// focusEntitiesPrompt extracts the entity names a question asks about.
func focusEntitiesPrompt(context map[string]interface{}) ([]llm.Message, error) {
	sysPrompt := `You are an assistant that identifies which entities from a cultural heritage collection a question is about. Respond only with JSON.`

	question, ok := context["question"].(string)
	if !ok || question == "" {
		return nil, fmt.Errorf("analyze prompt requires a question")
	}

	userPrompt := fmt.Sprintf(`
<QUESTION>
%s
</QUESTION>

List the names of the entities the question asks about.

Respond with a JSON object of the form:
{"entities": ["<entity name>", ...]}

Guidelines:
1. Only list names that appear in the question itself.
2. Use the exact surface form from the question.
3. Return an empty list when the question names no specific entity.
`, question)

	return []llm.Message{
		llm.NewSystemMessage(sysPrompt),
		llm.NewUserMessage(userPrompt),
	}, nil
}

// NewAnalyzeVersions creates a new AnalyzeVersions instance.
func NewAnalyzeVersions() *AnalyzeVersions {
	return &AnalyzeVersions{
		FocusEntitiesPrompt: NewPromptVersion(focusEntitiesPrompt),
	}
}
