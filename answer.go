package reliquary

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	"go.opentelemetry.io/otel/attribute"

	"github.com/soundprediction/go-reliquary/pkg/llm"
	"github.com/soundprediction/go-reliquary/pkg/prompts"
	"github.com/soundprediction/go-reliquary/pkg/types"
)

// AnswerOptions configure one answer request.
type AnswerOptions struct {
	// Retrieve overrides the retrieval parameters for this question.
	Retrieve *RetrieveOptions
}

// Answer is one grounded completion with its supporting retrieval.
type Answer struct {
	Question string                 `json:"question"`
	Answer   string                 `json:"answer"`
	Result   *types.RetrievalResult `json:"result"`
	Model    string                 `json:"model,omitempty"`
	Usage    *llm.TokenUsage        `json:"usage,omitempty"`
	CostUSD  float64                `json:"cost_usd"`
}

var (
	tokenEncoderOnce sync.Once
	tokenEncoder     *tiktoken.Tiktoken
)

// Answer retrieves context for the question and completes it with the
// configured language model. When retrieval comes back empty the fixed
// refusal is returned without a model call.
func (c *Client) Answer(ctx context.Context, question string, opts *AnswerOptions) (*Answer, error) {
	if c.llm == nil {
		return nil, types.ErrNoLanguageModel
	}
	if opts == nil {
		opts = &AnswerOptions{}
	}

	ctx, span := c.tracer.Start(ctx, "reliquary.answer")
	defer span.End()

	result, err := c.Retrieve(ctx, question, opts.Retrieve)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if len(result.Blocks) == 0 {
		span.SetAttributes(attribute.Bool("refused", true))
		return &Answer{
			Question: question,
			Answer:   prompts.NoDataRefusal,
			Result:   result,
		}, nil
	}

	passages := make([]string, 0, len(result.Blocks))
	for _, block := range result.Blocks {
		passages = append(passages, strings.Join(block.Lines, " "))
	}
	passages = truncateToBudget(passages, c.cfg.LLM.ContextBudget)

	messages, err := c.prompts.Answer().Grounded().Call(map[string]interface{}{
		"question": result.Query,
		"passages": passages,
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to build answer prompt: %w", err)
	}

	resp, err := c.llm.Chat(ctx, messages)
	if err != nil {
		span.RecordError(err)
		c.logger.ErrorContext(ctx, "answer generation failed", "error", err)
		return nil, fmt.Errorf("failed to generate answer: %w", err)
	}

	answer := &Answer{
		Question: question,
		Answer:   strings.TrimSpace(resp.Content),
		Result:   result,
		Model:    c.cfg.LLM.Model,
	}
	if resp.TokensUsed != nil {
		answer.Usage = resp.TokensUsed
		answer.CostUSD = c.costs.CalculateCost(c.cfg.LLM.Model,
			resp.TokensUsed.PromptTokens, resp.TokensUsed.CompletionTokens)
		c.logger.InfoContext(ctx, "answer generated",
			"model", c.cfg.LLM.Model,
			"prompt_tokens", resp.TokensUsed.PromptTokens,
			"completion_tokens", resp.TokensUsed.CompletionTokens,
			"cost_usd", answer.CostUSD,
			"passages", len(passages))
	}
	return answer, nil
}

// truncateToBudget drops trailing passages once the token budget is spent.
// The first passage always survives so the model sees the top-ranked
// context even when it alone exceeds the budget. A budget of zero disables
// truncation.
func truncateToBudget(passages []string, budget int) []string {
	if budget <= 0 || len(passages) == 0 {
		return passages
	}

	used := 0
	for i, passage := range passages {
		used += countTokens(passage)
		if used > budget && i > 0 {
			return passages[:i]
		}
	}
	return passages
}

// countTokens counts BPE tokens, falling back to a bytes/4 estimate when
// the encoding tables are unavailable (offline deployments).
func countTokens(text string) int {
	tokenEncoderOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("o200k_base")
		if err == nil {
			tokenEncoder = enc
		}
	})
	if tokenEncoder == nil {
		return len(text) / 4
	}
	return len(tokenEncoder.Encode(text, nil, nil))
}
