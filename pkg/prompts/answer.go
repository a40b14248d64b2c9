package prompts

import (
	"fmt"
	"strings"

	"github.com/soundprediction/go-reliquary/pkg/llm"
)

// NoDataRefusal is the fixed reply used when retrieval produced no
// context passages. It is returned without consulting the model.
const NoDataRefusal = "I could not find anything in the collection data that answers this question."

// AnswerPrompt defines the interface for answer generation prompts.
type AnswerPrompt interface {
	Grounded() PromptVersion
}

// AnswerVersions holds all versions of answer generation prompts.
type AnswerVersions struct {
	GroundedPrompt PromptVersion
}

func (a *AnswerVersions) Grounded() PromptVersion { return a.GroundedPrompt }

// groundedPrompt answers a question strictly from retrieved graph passages.
func groundedPrompt(context map[string]interface{}) ([]llm.Message, error) {
	sysPrompt := `You are a careful assistant answering questions about a cultural heritage collection. You are given numbered context passages describing entities from a knowledge graph and the relationships between them.`

	question, ok := context["question"].(string)
	if !ok || question == "" {
		return nil, fmt.Errorf("answer prompt requires a question")
	}

	passages, err := contextPassages(context["passages"])
	if err != nil {
		return nil, err
	}

	userPrompt := fmt.Sprintf(`
<CONTEXT>
%s
</CONTEXT>
<QUESTION>
%s
</QUESTION>

Answer the question using only the context passages.

Guidelines:
1. Base every statement on the passages; do not use outside knowledge.
2. If the passages do not contain the answer, say that the collection data does not cover it.
3. Refer to entities by the exact names used in the passages.
4. Keep the answer concise and factual.
`, formatPassages(passages), question)

	return []llm.Message{
		llm.NewSystemMessage(sysPrompt),
		llm.NewUserMessage(userPrompt),
	}, nil
}

// contextPassages normalizes the "passages" context value into a string
// slice. A plain string is treated as a single passage.
func contextPassages(value interface{}) ([]string, error) {
	switch v := value.(type) {
	case nil:
		return nil, fmt.Errorf("answer prompt requires context passages")
	case string:
		return []string{v}, nil
	case []string:
		return v, nil
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("passage must be a string, got %T", item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("passages must be strings, got %T", value)
	}
}

func formatPassages(passages []string) string {
	var b strings.Builder
	for i, passage := range passages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%d] %s", i+1, passage)
	}
	return b.String()
}

// NewAnswerVersions creates a new AnswerVersions instance.
func NewAnswerVersions() *AnswerVersions {
	return &AnswerVersions{
		GroundedPrompt: NewPromptVersion(groundedPrompt),
	}
}
