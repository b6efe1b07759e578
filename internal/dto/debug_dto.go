package dto

// DeterminismInfoResponse reports the active determinism settings.
type DeterminismInfoResponse struct {
	Model            string  `json:"model"`
	Temperature      float32 `json:"temperature"`
	ConsensusEnabled bool    `json:"consensus_enabled"`
	ConsensusCalls   int     `json:"consensus_calls"`
	CacheEnabled     bool    `json:"cache_enabled"`
	CacheTTLDays     int     `json:"cache_ttl_days"`
	ScorePrecision   int     `json:"score_precision"`
}

// CacheStatsResponse summarizes the result cache.
type CacheStatsResponse struct {
	Enabled    bool  `json:"enabled"`
	Entries    int   `json:"entries"`
	TotalBytes int64 `json:"total_bytes"`
}

// CacheClearResponse reports how many entries were evicted.
type CacheClearResponse struct {
	Cleared int `json:"cleared"`
}

// ConsistencyCheckResponse is the outcome of the determinism self-test.
type ConsistencyCheckResponse struct {
	Consistent     bool      `json:"consistent"`
	Trials         int       `json:"trials"`
	Scores         []float64 `json:"scores"`
	VariancePct    float64   `json:"variance_pct"`
	AllowedPct     float64   `json:"allowed_pct"`
	CacheRoundTrip bool      `json:"cache_round_trip"`
}
