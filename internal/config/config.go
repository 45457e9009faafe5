package config

import (
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/pulkyeet/flash-arb/internal/arbitrage"
)

type Config struct {
	// node
	RPCURL       string
	RPCRateLimit float64
	RPCBurst     int
	PrivateKey   string
	Sender       common.Address // probe sender when no key is configured
	ChainID      uint64

	// flash contract
	FlashContract  common.Address
	TitheRecipient common.Address
	TitheBps       uint32

	// cycle
	CycleInterval time.Duration
	MaxBackoff    time.Duration
	DryRun        bool

	// profitability
	SlippageBps     uint32
	GasBufferPct    uint64
	ProfitBufferBps uint32
	MaxGasPrice     *big.Int

	// execution
	Confirmations     uint64
	ConfirmTimeout    time.Duration
	ReceiptPoll       time.Duration
	GasLimitBufferPct uint64

	// pools
	UniverseFile    string
	PoolConcurrency int
	TickCacheSize   int

	// storage + observability
	JournalPath   string
	MetricsAddr   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
	LogLevel      string

	Universe *Universe
}

// Load reads .env (if present), the environment and the universe file
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		RPCURL:       getEnv("RPC_URL", getEnv("ALCHEMY_URL", "")),
		RPCRateLimit: getFloatEnv("RPC_RATE_LIMIT", 20),
		RPCBurst:     getIntEnv("RPC_BURST", 10),
		PrivateKey:   getEnv("PRIVATE_KEY", ""),
		Sender:       common.HexToAddress(getEnv("SENDER_ADDRESS", "")),
		ChainID:      uint64(getIntEnv("CHAIN_ID", 0)),

		FlashContract:  common.HexToAddress(getEnv("FLASH_CONTRACT", "")),
		TitheRecipient: common.HexToAddress(getEnv("TITHE_RECIPIENT", "")),
		TitheBps:       uint32(getIntEnv("TITHE_BPS", 0)),

		CycleInterval: getDurationEnv("CYCLE_INTERVAL", 12*time.Second),
		MaxBackoff:    getDurationEnv("MAX_BACKOFF", 5*time.Minute),
		DryRun:        getBoolEnv("DRY_RUN", true),

		SlippageBps:     uint32(getIntEnv("SLIPPAGE_BPS", 50)),
		GasBufferPct:    uint64(getIntEnv("GAS_BUFFER_PCT", 20)),
		ProfitBufferBps: uint32(getIntEnv("PROFIT_BUFFER_BPS", 1000)),
		MaxGasPrice:     gweiToWei(getFloatEnv("MAX_GAS_PRICE_GWEI", 150)),

		Confirmations:     uint64(getIntEnv("CONFIRMATIONS", 1)),
		ConfirmTimeout:    getDurationEnv("CONFIRM_TIMEOUT", 3*time.Minute),
		ReceiptPoll:       getDurationEnv("RECEIPT_POLL", 2*time.Second),
		GasLimitBufferPct: uint64(getIntEnv("GAS_LIMIT_BUFFER_PCT", 15)),

		UniverseFile:    getEnv("UNIVERSE_FILE", "config/universe.json"),
		PoolConcurrency: getIntEnv("POOL_CONCURRENCY", 8),
		TickCacheSize:   getIntEnv("TICK_CACHE_SIZE", 8192),

		JournalPath:   getEnv("JOURNAL_PATH", "data/journal.db"),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9102"),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),
		RedisPrefix:   getEnv("REDIS_PREFIX", "arb"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
	}

	raw, err := os.ReadFile(cfg.UniverseFile)
	if err != nil {
		return nil, fmt.Errorf("%w: read universe %s: %v", arbitrage.ErrConfig, cfg.UniverseFile, err)
	}
	cfg.Universe, err = ParseUniverse(raw, cfg.ChainID)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks everything the pipeline assumes, before anything dials out
func (c *Config) Validate() error {
	var problems []string
	if c.RPCURL == "" {
		problems = append(problems, "RPC_URL not set")
	}
	if c.FlashContract == (common.Address{}) {
		problems = append(problems, "FLASH_CONTRACT not set")
	}
	if !c.DryRun && c.PrivateKey == "" {
		problems = append(problems, "PRIVATE_KEY required when DRY_RUN=false")
	}
	if c.SlippageBps >= 10000 {
		problems = append(problems, fmt.Sprintf("SLIPPAGE_BPS %d must be below 10000", c.SlippageBps))
	}
	if c.ProfitBufferBps >= 10000 {
		problems = append(problems, fmt.Sprintf("PROFIT_BUFFER_BPS %d must be below 10000", c.ProfitBufferBps))
	}
	if c.TitheBps >= 10000 {
		problems = append(problems, fmt.Sprintf("TITHE_BPS %d must be below 10000", c.TitheBps))
	}
	if c.CycleInterval <= 0 {
		problems = append(problems, "CYCLE_INTERVAL must be positive")
	}
	if c.MaxBackoff < c.CycleInterval {
		problems = append(problems, "MAX_BACKOFF must be at least CYCLE_INTERVAL")
	}
	if c.Universe == nil {
		problems = append(problems, "universe not loaded")
	} else if err := c.Universe.Validate(); err != nil {
		problems = append(problems, err.Error())
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", arbitrage.ErrConfig, strings.Join(problems, "; "))
	}
	return nil
}

func gweiToWei(gwei float64) *big.Int {
	if gwei <= 0 {
		return nil
	}
	wei, _ := new(big.Float).Mul(big.NewFloat(gwei), big.NewFloat(1e9)).Int(nil)
	return wei
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getIntEnv(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getFloatEnv(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getBoolEnv(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getDurationEnv(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
