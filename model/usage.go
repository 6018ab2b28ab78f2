package model

// TokenUsage carries raw provider usage counters for one round-trip, before
// any pricing is applied. Providers disagree on counter names: DeepSeek
// reports separate cache-hit/cache-miss prompt counters, OpenAI a single
// cached-token counter, Anthropic separate cache-read/cache-write counters,
// Ollama none at all. Adapters map their wire fields onto this superset and
// the billing ledger picks the fields its brand knows about.
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`

	CachedTokens     int `json:"cached_tokens,omitempty"`      // OpenAI: cached portion of input
	CacheHitTokens   int `json:"cache_hit_tokens,omitempty"`   // DeepSeek
	CacheMissTokens  int `json:"cache_miss_tokens,omitempty"`  // DeepSeek
	CacheReadTokens  int `json:"cache_read_tokens,omitempty"`  // Anthropic
	CacheWriteTokens int `json:"cache_write_tokens,omitempty"` // Anthropic
}

// TotalTokens is input plus output; cache counters subdivide input and are
// not added again.
func (u TokenUsage) TotalTokens() int {
	return u.InputTokens + u.OutputTokens
}

// Add accumulates another usage sample into u, field by field.
func (u *TokenUsage) Add(other TokenUsage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.CachedTokens += other.CachedTokens
	u.CacheHitTokens += other.CacheHitTokens
	u.CacheMissTokens += other.CacheMissTokens
	u.CacheReadTokens += other.CacheReadTokens
	u.CacheWriteTokens += other.CacheWriteTokens
}
