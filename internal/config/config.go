// Package config loads and validates the engine's environment-provided
// configuration surface.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the full validated configuration surface for one engine process.
type Config struct {
	HTTPAddr        string
	DBPath          string
	InternalToken   string
	WebSocketOrigin string
	RunMode         string // "development" or "production"

	Symbols                 []string
	Interval                string
	CandlesLimit            int
	MaxConcurrentSymbols    int
	MaxPositions            int
	MaxRiskPerTradePct      float64
	PositionSizeUSD         float64
	RiskRewardRatio         float64
	MakerFee                float64
	TakerFee                float64
	AutoCloseOnTarget       bool

	CycleSeconds            int
	PerSymbolTimeoutSeconds int
	MaxInflight             int
	MaxErrorsPerSymbol      int
	ErrorResetMinutes       int
	PollSpacingMs           int

	CCIPeriod    int
	CCICoeff     float64
	ATRPeriod    int
	BBLength     int
	BBMult       float64
	KCLength     int
	KCMult       float64
	UseTrueRange bool

	CacheMaxSizeMB        int
	CacheDefaultTTLSecond int

	ExchangeBaseURL    string
	ExchangeMaxReqs60s int
	ExchangeMaxWeight  int
}

// Load reads and validates the configuration from the environment,
// aggregating every missing/invalid variable into one error instead of
// failing on the first one, matching the reference loader's convention.
func Load() (Config, error) {
	var c Config
	var problems []string

	c.HTTPAddr = getDefault("HTTP_ADDR", ":8090")
	c.DBPath = getDefault("DB_PATH", "spartan_trades.db")
	c.InternalToken = os.Getenv("INTERNAL_API_TOKEN")
	if c.InternalToken == "" {
		problems = append(problems, "INTERNAL_API_TOKEN")
	}
	c.WebSocketOrigin = getDefault("WS_ORIGIN", "*")

	c.RunMode = strings.ToLower(strings.TrimSpace(getDefault("RUN_MODE", "development")))
	if c.RunMode != "development" && c.RunMode != "production" {
		problems = append(problems, "RUN_MODE (must be development or production)")
	}

	symbolsRaw := os.Getenv("SYMBOLS")
	if symbolsRaw == "" {
		problems = append(problems, "SYMBOLS")
	} else {
		for _, s := range strings.Split(symbolsRaw, ",") {
			s = strings.ToUpper(strings.TrimSpace(s))
			if s != "" {
				c.Symbols = append(c.Symbols, s)
			}
		}
		if len(c.Symbols) == 0 {
			problems = append(problems, "SYMBOLS (empty after parsing)")
		}
	}

	c.Interval = NormalizeInterval(getDefault("INTERVAL", "5m"))
	if _, err := IntervalDuration(c.Interval); err != nil {
		problems = append(problems, "INTERVAL (unsupported interval)")
	}
	c.CandlesLimit = getIntDefault("CANDLES_LIMIT", 100, &problems)
	if c.CandlesLimit < 20 || c.CandlesLimit > 1500 {
		problems = append(problems, "CANDLES_LIMIT (must be in [20,1500])")
	}
	c.MaxConcurrentSymbols = getIntDefault("MAX_CONCURRENT_SYMBOLS", 50, &problems)
	if len(c.Symbols) > c.MaxConcurrentSymbols {
		problems = append(problems, "SYMBOLS (exceeds MAX_CONCURRENT_SYMBOLS)")
	}

	c.MaxPositions = getIntDefault("MAX_POSITIONS", 5, &problems)
	if c.MaxPositions < 1 || c.MaxPositions > 20 {
		problems = append(problems, "MAX_POSITIONS (must be in [1,20])")
	}
	c.MaxRiskPerTradePct = getFloatDefault("MAX_RISK_PER_TRADE_PCT", 1.0, &problems)
	if c.MaxRiskPerTradePct < 0.1 || c.MaxRiskPerTradePct > 10 {
		problems = append(problems, "MAX_RISK_PER_TRADE_PCT (must be in [0.1,10])")
	}
	c.PositionSizeUSD = getFloatDefault("POSITION_SIZE_USD", 100, &problems)
	if c.PositionSizeUSD <= 0 {
		problems = append(problems, "POSITION_SIZE_USD (must be positive)")
	}
	c.RiskRewardRatio = getFloatDefault("RISK_REWARD_RATIO", 2.0, &problems)
	c.MakerFee = getFloatDefault("MAKER_FEE", 0.0004, &problems)
	c.TakerFee = getFloatDefault("TAKER_FEE", 0.0005, &problems)
	c.AutoCloseOnTarget = getBoolDefault("AUTO_CLOSE_ON_TARGET", true, &problems)

	c.CycleSeconds = getIntDefault("CYCLE_SECONDS", 60, &problems)
	c.PerSymbolTimeoutSeconds = getIntDefault("PER_SYMBOL_TIMEOUT_SECONDS", 30, &problems)
	c.MaxInflight = getIntDefault("MAX_INFLIGHT", 10, &problems)
	c.MaxErrorsPerSymbol = getIntDefault("MAX_ERRORS_PER_SYMBOL", 5, &problems)
	c.ErrorResetMinutes = getIntDefault("ERROR_RESET_MINUTES", 30, &problems)
	c.PollSpacingMs = getIntDefault("POLL_SPACING_MS", 100, &problems)

	c.CCIPeriod = getIntDefault("CCI_PERIOD", 20, &problems)
	c.CCICoeff = getFloatDefault("CCI_COEFF", 1.0, &problems)
	c.ATRPeriod = getIntDefault("ATR_PERIOD", 5, &problems)
	c.BBLength = getIntDefault("BB_LENGTH", 20, &problems)
	c.BBMult = getFloatDefault("BB_MULT", 2.0, &problems)
	c.KCLength = getIntDefault("KC_LENGTH", 20, &problems)
	c.KCMult = getFloatDefault("KC_MULT", 1.5, &problems)
	c.UseTrueRange = getBoolDefault("USE_TRUE_RANGE", true, &problems)

	c.CacheMaxSizeMB = getIntDefault("CACHE_MAX_SIZE_MB", 100, &problems)
	if c.CacheMaxSizeMB < 1 || c.CacheMaxSizeMB > 4096 {
		problems = append(problems, "CACHE_MAX_SIZE_MB (must be in [1,4096])")
	}
	c.CacheDefaultTTLSecond = getIntDefault("CACHE_DEFAULT_TTL_SECONDS", 60, &problems)
	if c.CacheDefaultTTLSecond < 10 || c.CacheDefaultTTLSecond > 3600 {
		problems = append(problems, "CACHE_DEFAULT_TTL_SECONDS (must be in [10,3600])")
	}

	c.ExchangeBaseURL = getDefault("EXCHANGE_BASE_URL", "https://api.binance.com")
	c.ExchangeMaxReqs60s = getIntDefault("EXCHANGE_MAX_REQUESTS_PER_MINUTE", 1200, &problems)
	c.ExchangeMaxWeight = getIntDefault("EXCHANGE_MAX_WEIGHT_PER_MINUTE", 6000, &problems)

	if len(problems) > 0 {
		return c, fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return c, nil
}

// NormalizeInterval accepts bare integers (e.g. "30") and maps them to
// minute-interval strings (e.g. "30m"), per §4.1.
func NormalizeInterval(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return raw
	}
	if _, err := strconv.Atoi(raw); err == nil {
		return raw + "m"
	}
	return raw
}

var validIntervals = map[string]time.Duration{
	"1m": time.Minute, "3m": 3 * time.Minute, "5m": 5 * time.Minute,
	"15m": 15 * time.Minute, "30m": 30 * time.Minute,
	"1h": time.Hour, "2h": 2 * time.Hour, "4h": 4 * time.Hour,
	"6h": 6 * time.Hour, "8h": 8 * time.Hour, "12h": 12 * time.Hour,
	"1d": 24 * time.Hour,
}

// IntervalDuration returns the wall-clock duration of an accepted interval
// string, normalizing bare integers first.
func IntervalDuration(raw string) (time.Duration, error) {
	d, ok := validIntervals[NormalizeInterval(raw)]
	if !ok {
		return 0, errors.New("unsupported interval: " + raw)
	}
	return d, nil
}

func getDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getIntDefault(key string, def int, problems *[]string) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*problems = append(*problems, key+" (not an integer)")
		return def
	}
	return n
}

func getFloatDefault(key string, def float64, problems *[]string) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		*problems = append(*problems, key+" (not a number)")
		return def
	}
	return f
}

func getBoolDefault(key string, def bool, problems *[]string) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		*problems = append(*problems, key+" (not a bool)")
		return def
	}
	return b
}
