package billing

// DefaultPricing is the built-in rate table, used when the config file does
// not override a brand/model. Rates are dollars per million tokens and
// include the platform markup.
var DefaultPricing = PriceTable{
	BrandOpenAI: {
		"gpt-4o": {
			InputPerMTok: 3.125, OutputPerMTok: 12.50, CachedPerMTok: 1.5625,
		},
		"gpt-4o-mini": {
			InputPerMTok: 0.1875, OutputPerMTok: 0.75, CachedPerMTok: 0.09375,
		},
		"default": {
			InputPerMTok: 3.125, OutputPerMTok: 12.50, CachedPerMTok: 1.5625,
		},
	},
	BrandAnthropic: {
		"claude-sonnet-4-5": {
			InputPerMTok: 3.75, OutputPerMTok: 18.75,
			CacheReadPerMTok: 0.375, CacheWritePerMTok: 4.6875,
		},
		"claude-haiku-3-5": {
			InputPerMTok: 1.00, OutputPerMTok: 5.00,
			CacheReadPerMTok: 0.10, CacheWritePerMTok: 1.25,
		},
		"default": {
			InputPerMTok: 3.75, OutputPerMTok: 18.75,
			CacheReadPerMTok: 0.375, CacheWritePerMTok: 4.6875,
		},
	},
	BrandDeepSeek: {
		"deepseek-chat": {
			CacheHitPerMTok: 0.0875, CacheMissPerMTok: 0.35, OutputPerMTok: 1.375,
		},
		"deepseek-reasoner": {
			CacheHitPerMTok: 0.175, CacheMissPerMTok: 0.6875, OutputPerMTok: 2.74,
		},
		"default": {
			CacheHitPerMTok: 0.0875, CacheMissPerMTok: 0.35, OutputPerMTok: 1.375,
		},
	},
	// Local models bill nothing; the zero-rate table entry makes that
	// explicit rather than relying on a missing brand.
	BrandOllama: {
		"default": {},
	},
}
