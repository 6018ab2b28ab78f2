package provider

import (
	"strconv"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"llmgate/model"
)

// NewDeepSeekAdapter creates an adapter for DeepSeek's API, which speaks the
// Chat Completions protocol; only the base URL and the usage counter names
// differ from OpenAI. DeepSeek reports separate cache-hit and cache-miss
// prompt counters that the SDK's typed usage struct does not model, so they
// are read from the response's extra fields.
func NewDeepSeekAdapter(cfg Config) (*OpenAIChatAdapter, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.deepseek.com"
	}
	if cfg.APIKey == "" {
		return nil, newConfigError("DeepSeek API key is required")
	}
	modelName := cfg.Model
	if modelName == "" {
		modelName = "deepseek-chat"
	}

	client := openai.NewClient(
		option.WithBaseURL(baseURL),
		option.WithAPIKey(cfg.APIKey),
	)

	return &OpenAIChatAdapter{
		client:    client,
		brand:     BrandDeepSeek,
		model:     modelName,
		maxTokens: cfg.MaxTokens,
		usageFn:   mapDeepSeekUsage,
	}, nil
}

// mapDeepSeekUsage maps DeepSeek's counters onto the canonical superset.
// prompt_cache_hit_tokens / prompt_cache_miss_tokens arrive as extra JSON
// fields beside the standard counters.
func mapDeepSeekUsage(u openai.CompletionUsage) model.TokenUsage {
	usage := model.TokenUsage{
		InputTokens:  int(u.PromptTokens),
		OutputTokens: int(u.CompletionTokens),
	}
	usage.CacheHitTokens = extraIntField(u, "prompt_cache_hit_tokens")
	usage.CacheMissTokens = extraIntField(u, "prompt_cache_miss_tokens")
	if usage.CacheHitTokens == 0 && usage.CacheMissTokens == 0 {
		usage.CacheMissTokens = usage.InputTokens
	}
	return usage
}

func extraIntField(u openai.CompletionUsage, name string) int {
	field, ok := u.JSON.ExtraFields[name]
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(field.Raw()))
	if err != nil {
		return 0
	}
	return n
}
