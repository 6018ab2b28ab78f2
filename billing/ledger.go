// Package billing computes billable cost from raw provider usage counters.
//
// Pricing is configured per brand and per model, with rates expressed in
// dollars per million tokens (already marked up upstream of this package).
// Cost computation is a pure function of (usage counters, rates); the only
// policy baked in here is the floor: every nonzero cost component is raised
// to at least MinimumCostUnit, and the summed total is floored again, so a
// tiny request never rounds to a literal zero.
package billing

import (
	"time"
)

// MinimumCostUnit is the smallest billable amount in dollars. Any nonzero
// cost component and any nonzero-rate total is at least this much.
const MinimumCostUnit = 0.0001

// Brand constants match provider adapter brands.
const (
	BrandOpenAI    = "openai"
	BrandAnthropic = "anthropic"
	BrandDeepSeek  = "deepseek"
	BrandOllama    = "ollama"
)

// Rates holds per-million-token prices for one model.
type Rates struct {
	InputPerMTok  float64 `toml:"input_per_mtok"`
	OutputPerMTok float64 `toml:"output_per_mtok"`

	CacheHitPerMTok   float64 `toml:"cache_hit_per_mtok"`   // DeepSeek cache-hit prompt rate
	CacheMissPerMTok  float64 `toml:"cache_miss_per_mtok"`  // DeepSeek cache-miss prompt rate
	CachedPerMTok     float64 `toml:"cached_per_mtok"`      // OpenAI cached-prompt rate
	CacheReadPerMTok  float64 `toml:"cache_read_per_mtok"`  // Anthropic
	CacheWritePerMTok float64 `toml:"cache_write_per_mtok"` // Anthropic
}

// Zero reports whether every rate is zero (local brands like ollama).
func (r Rates) Zero() bool {
	return r.InputPerMTok == 0 && r.OutputPerMTok == 0 &&
		r.CacheHitPerMTok == 0 && r.CacheMissPerMTok == 0 &&
		r.CachedPerMTok == 0 && r.CacheReadPerMTok == 0 && r.CacheWritePerMTok == 0
}

// PriceTable maps brand -> model -> rates. It is read-only after load and
// safe to share across sessions.
type PriceTable map[string]map[string]Rates

// Lookup returns the rates for brand/model. Unknown models fall back to the
// brand's "default" entry when one exists.
func (t PriceTable) Lookup(brand, model string) (Rates, bool) {
	models, ok := t[brand]
	if !ok {
		return Rates{}, false
	}
	if r, ok := models[model]; ok {
		return r, true
	}
	r, ok := models["default"]
	return r, ok
}

// TokenCounts is the raw counter view the ledger consumes. It mirrors
// model.TokenUsage field for field; billing keeps its own copy so the
// package stays dependency-free and testable in isolation.
type TokenCounts struct {
	Input      int
	Output     int
	Cached     int
	CacheHit   int
	CacheMiss  int
	CacheRead  int
	CacheWrite int
}

// Record is the billing-relevant accounting unit produced once per upstream
// round-trip (and occasionally by tools that report their own usage).
type Record struct {
	Brand string    `json:"brand"`
	Model string    `json:"model"`
	At    time.Time `json:"at"`

	Input      int `json:"input_tokens"`
	Output     int `json:"output_tokens"`
	CacheHit   int `json:"cache_hit_tokens,omitempty"`
	CacheMiss  int `json:"cache_miss_tokens,omitempty"`
	Cached     int `json:"cached_tokens,omitempty"`
	CacheRead  int `json:"cache_read_tokens,omitempty"`
	CacheWrite int `json:"cache_write_tokens,omitempty"`

	Cost float64 `json:"cost"`
}

// floorComponent raises a nonzero component to the minimum billable unit.
// A genuinely zero component (no tokens, or a zero rate) stays zero.
func floorComponent(cost float64) float64 {
	if cost <= 0 {
		return 0
	}
	if cost < MinimumCostUnit {
		return MinimumCostUnit
	}
	return cost
}

func tokCost(tokens int, perMTok float64) float64 {
	return float64(tokens) * perMTok / 1_000_000
}

// Compute builds a Usage Record for one round-trip.
//
// Brand-specific field mapping:
//   - deepseek: input cost is cache-hit plus cache-miss components priced at
//     their own rates; when the split counters are absent the whole prompt is
//     billed at the miss rate.
//   - openai: the cached slice of the prompt is billed at the cached rate,
//     the remainder at the input rate.
//   - anthropic: cache-read and cache-write counters are separate components
//     beside plain input.
//   - anything else: flat input/output.
//
// callerKey marks a request made with the caller's own upstream credentials:
// cost is always zero but the token breakdown is still recorded so
// downstream accounting stays uniform.
func Compute(brand, model string, u TokenCounts, table PriceTable, callerKey bool) Record {
	rec := Record{
		Brand:      brand,
		Model:      model,
		At:         time.Now(),
		Input:      u.Input,
		Output:     u.Output,
		CacheHit:   u.CacheHit,
		CacheMiss:  u.CacheMiss,
		Cached:     u.Cached,
		CacheRead:  u.CacheRead,
		CacheWrite: u.CacheWrite,
	}
	if callerKey {
		return rec
	}

	rates, ok := table.Lookup(brand, model)
	if !ok || rates.Zero() {
		return rec
	}

	var total float64
	switch brand {
	case BrandDeepSeek:
		hit, miss := u.CacheHit, u.CacheMiss
		if hit == 0 && miss == 0 {
			miss = u.Input
		}
		total += floorComponent(tokCost(hit, rates.CacheHitPerMTok))
		total += floorComponent(tokCost(miss, rates.CacheMissPerMTok))
	case BrandOpenAI:
		plain := u.Input - u.Cached
		if plain < 0 {
			plain = 0
		}
		total += floorComponent(tokCost(plain, rates.InputPerMTok))
		total += floorComponent(tokCost(u.Cached, rates.CachedPerMTok))
	case BrandAnthropic:
		total += floorComponent(tokCost(u.Input, rates.InputPerMTok))
		total += floorComponent(tokCost(u.CacheRead, rates.CacheReadPerMTok))
		total += floorComponent(tokCost(u.CacheWrite, rates.CacheWritePerMTok))
	default:
		total += floorComponent(tokCost(u.Input, rates.InputPerMTok))
	}
	total += floorComponent(tokCost(u.Output, rates.OutputPerMTok))

	// The total is floored independently of its components: even a
	// zero-token round-trip against a priced brand bills the minimum unit.
	if total < MinimumCostUnit {
		total = MinimumCostUnit
	}
	rec.Cost = total
	return rec
}

// Sum totals the cost across accumulated records.
func Sum(records []Record) float64 {
	var total float64
	for _, r := range records {
		total += r.Cost
	}
	return total
}
