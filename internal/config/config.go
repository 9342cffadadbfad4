// Package config loads and validates the environment-backed configuration
// snapshot for each process. Defaults are applied with creasty/defaults,
// then overridden from the environment, then checked with
// go-playground/validator/v10. Each process takes one snapshot at start;
// there is no live reload.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Redis holds connection settings shared by every process that touches
// the bus, the cache, or the lock fabric.
type Redis struct {
	Addr     string `default:"localhost:6379" validate:"required"`
	Password string
	DB       int `default:"0" validate:"gte=0"`
}

// Postgres holds the ledger database DSN, used only by processes that
// write TradeRecords (buy executor, sell executor).
type Postgres struct {
	DSN string `validate:"required"`
}

// Risk holds the shared portfolio and gate limits the scanner's daily
// buy cap gate and the buy executor's portfolio guard both enforce,
// mirroring the original system's single RiskConfig block.
type Risk struct {
	MaxPortfolioSize    int     `default:"10" validate:"gte=1"`
	MaxDailyBuys        int     `default:"5" validate:"gte=0"`
	MaxSectorStockCount int     `default:"4" validate:"gte=1"`
	MaxSectorValuePct   float64 `default:"0.30" validate:"gt=0,lte=1"`
	MaxStockValuePct    float64 `default:"0.15" validate:"gt=0,lte=1"`
}

// Gate holds the scanner's risk-gate chain tunables, mirroring the
// original system's ScannerConfig.
type Gate struct {
	MinRequiredBars      int           `default:"20" validate:"gte=1"`
	NoTradeWindowStart   time.Duration `default:"9h"`
	NoTradeWindowEnd     time.Duration `default:"9h15m"`
	DangerZoneStart      time.Duration `default:"14h"`
	DangerZoneEnd        time.Duration `default:"15h"`
	RSIGuardMax          float64       `default:"75" validate:"gt=0"`
	RSIGuardMaxBull      float64       `default:"85" validate:"gt=0"`
	VolumeRatioWarning   float64       `default:"2.0" validate:"gt=0"`
	VWAPDeviationWarning float64       `default:"0.02" validate:"gt=0"`
	SignalCooldown       time.Duration `default:"600s"`
	BlockBearRegimes     bool          `default:"true"`
}

// Sell holds the price monitor's exit-chain tunables, mirroring the
// original system's SellConfig. ScaleOutLevels are not represented
// here: they are a per-regime table, not a scalar, and stay code-
// defined in internal/exitchain rather than flattened into env vars.
type Sell struct {
	HardStopPct                float64 `default:"-10.0"`
	ProfitLockL1Min            float64 `default:"1.5"`
	ProfitLockL1Mult           float64 `default:"1.5"`
	ProfitLockL1Max            float64 `default:"3.0"`
	ProfitLockL1Floor          float64 `default:"0.2"`
	ProfitLockL2Min            float64 `default:"3.0"`
	ProfitLockL2Mult           float64 `default:"2.5"`
	ProfitLockL2Max            float64 `default:"5.0"`
	ProfitLockL2Floor          float64 `default:"1.0"`
	BreakevenEnabled           bool    `default:"true"`
	BreakevenActivationPct     float64 `default:"3.0"`
	BreakevenFloorPct          float64 `default:"0.3"`
	ATRMultiplier              float64 `default:"2.0" validate:"gt=0"`
	StopLossPct                float64 `default:"5.0" validate:"gt=0"`
	TimeTightenEnabled         bool    `default:"true"`
	TimeTightenStartDaysBull   int     `default:"15" validate:"gte=0"`
	TimeTightenStartDays       int     `default:"10" validate:"gte=0"`
	TimeTightenMaxReductionPct float64 `default:"2.0"`
	MaxHoldingDays             int     `default:"30" validate:"gte=1"`
	TrailingEnabled            bool    `default:"true"`
	TrailingActivationPct      float64 `default:"5.0" validate:"gt=0"`
	TrailingDropFromHighPct    float64 `default:"3.5" validate:"gt=0"`
	TrailingMinProfitPct       float64 `default:"3.0"`
	ScaleOutEnabled            bool    `default:"true"`
	MinTransactionAmount       float64 `default:"500000" validate:"gt=0"`
	MinSellQuantity            int64   `default:"50" validate:"gte=1"`
	RSIOverboughtThreshold     float64 `default:"75" validate:"gt=0"`
	RSIMinProfitPct            float64 `default:"3.0"`
	ProfitTargetPct            float64 `default:"10.0" validate:"gt=0"`
}

// Brokerage holds the KIS API credentials and endpoints used by the
// Gateway process.
type Brokerage struct {
	AppKey        string `validate:"required"`
	AppSecret     string `validate:"required"`
	AccountNo     string `validate:"required"`
	BaseURL       string `default:"https://openapi.koreainvestment.com:9443" validate:"required,url"`
	WSURL         string `default:"ws://ops.koreainvestment.com:21000" validate:"required"`
	Paper         bool   `default:"true"`
	TokenCachePath string `default:"/tmp/kis-token-cache.json"`
	RateLimitPerSec int   `default:"19" validate:"gte=1,lte=20"`
}

// Gateway is the full configuration for the Brokerage Gateway process.
type Gateway struct {
	Redis     Redis
	Brokerage Brokerage
	HTTPAddr  string        `default:":8080" validate:"required"`
	ShutdownTimeout time.Duration `default:"5s"`
}

// Scanner is the full configuration for the Buy Scanner process.
type Scanner struct {
	Redis         Redis
	Risk          Risk
	Gate          Gate
	ConsumerGroup string        `default:"scanner-group" validate:"required"`
	ConsumerName  string        `validate:"required"`
	ClaimIdle     time.Duration `default:"300s"`
	BarInterval   time.Duration `default:"60s"`
}

// Executor is the shared configuration shape for the Buy and Sell
// Executor processes.
type Executor struct {
	Redis          Redis
	Postgres       Postgres
	Risk           Risk
	ConsumerGroup  string        `validate:"required"`
	ConsumerName   string        `validate:"required"`
	ClaimIdle      time.Duration `default:"300s"`
	GatewayURL     string        `default:"http://localhost:8080" validate:"required,url"`
	ConfirmPoll    time.Duration `default:"1s"`
	ConfirmTimeout time.Duration `default:"30s"`
	LockTTL        time.Duration `default:"10s"`
}

// Monitor is the full configuration for the Price Monitor process.
type Monitor struct {
	Redis          Redis
	Sell           Sell
	ConsumerGroup  string        `default:"monitor-group" validate:"required"`
	ConsumerName   string        `validate:"required"`
	ClaimIdle      time.Duration `default:"300s"`
	GatewayURL     string        `default:"http://localhost:8080" validate:"required,url"`
	PollEvery      time.Duration `default:"30s"`
	ReconcileEvery time.Duration `default:"30s"`
}

// Load populates target with its `default` tags, overrides recognized
// fields from the environment, and validates the result. target must be
// a pointer to one of the structs in this package.
func Load(target interface{}) error {
	if err := defaults.Set(target); err != nil {
		return fmt.Errorf("apply config defaults: %w", err)
	}
	applyEnvOverrides(target)
	if err := validate.Struct(target); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}
	return nil
}

// applyEnvOverrides fills the well-known fields each process cares about
// from the process environment. Each process calls Load with the struct
// shape it needs; unrecognized types are left at their defaults.
func applyEnvOverrides(target interface{}) {
	switch c := target.(type) {
	case *Gateway:
		overrideRedis(&c.Redis, "")
		overrideBrokerage(&c.Brokerage)
		overrideString(&c.HTTPAddr, "GATEWAY_HTTP_ADDR")
		overrideDuration(&c.ShutdownTimeout, "GATEWAY_SHUTDOWN_TIMEOUT")
	case *Scanner:
		overrideRedis(&c.Redis, "")
		overrideRisk(&c.Risk)
		overrideGate(&c.Gate)
		overrideString(&c.ConsumerGroup, "SCANNER_CONSUMER_GROUP")
		overrideString(&c.ConsumerName, "SCANNER_CONSUMER_NAME")
		overrideDuration(&c.ClaimIdle, "SCANNER_CLAIM_IDLE")
		overrideDuration(&c.BarInterval, "SCANNER_BAR_INTERVAL")
	case *Executor:
		overrideRedis(&c.Redis, "")
		overridePostgres(&c.Postgres)
		overrideRisk(&c.Risk)
		overrideString(&c.ConsumerGroup, "EXECUTOR_CONSUMER_GROUP")
		overrideString(&c.ConsumerName, "EXECUTOR_CONSUMER_NAME")
		overrideDuration(&c.ClaimIdle, "EXECUTOR_CLAIM_IDLE")
		overrideString(&c.GatewayURL, "GATEWAY_URL")
		overrideDuration(&c.ConfirmPoll, "EXECUTOR_CONFIRM_POLL")
		overrideDuration(&c.ConfirmTimeout, "EXECUTOR_CONFIRM_TIMEOUT")
		overrideDuration(&c.LockTTL, "EXECUTOR_LOCK_TTL")
	case *Monitor:
		overrideRedis(&c.Redis, "")
		overrideSell(&c.Sell)
		overrideString(&c.ConsumerGroup, "MONITOR_CONSUMER_GROUP")
		overrideString(&c.ConsumerName, "MONITOR_CONSUMER_NAME")
		overrideDuration(&c.ClaimIdle, "MONITOR_CLAIM_IDLE")
		overrideString(&c.GatewayURL, "GATEWAY_URL")
		overrideDuration(&c.PollEvery, "MONITOR_POLL_EVERY")
		overrideDuration(&c.ReconcileEvery, "MONITOR_RECONCILE_EVERY")
	}
}

func overrideRisk(r *Risk) {
	overrideInt(&r.MaxPortfolioSize, "RISK_MAX_PORTFOLIO_SIZE")
	overrideInt(&r.MaxDailyBuys, "RISK_MAX_DAILY_BUYS")
	overrideInt(&r.MaxSectorStockCount, "RISK_MAX_SECTOR_STOCKS")
	overrideFloat64(&r.MaxSectorValuePct, "RISK_MAX_SECTOR_VALUE_PCT")
	overrideFloat64(&r.MaxStockValuePct, "RISK_MAX_STOCK_VALUE_PCT")
}

func overrideGate(g *Gate) {
	overrideInt(&g.MinRequiredBars, "SCANNER_MIN_REQUIRED_BARS")
	overrideDuration(&g.NoTradeWindowStart, "SCANNER_NO_TRADE_WINDOW_START")
	overrideDuration(&g.NoTradeWindowEnd, "SCANNER_NO_TRADE_WINDOW_END")
	overrideDuration(&g.DangerZoneStart, "SCANNER_DANGER_ZONE_START")
	overrideDuration(&g.DangerZoneEnd, "SCANNER_DANGER_ZONE_END")
	overrideFloat64(&g.RSIGuardMax, "SCANNER_RSI_GUARD_MAX")
	overrideFloat64(&g.RSIGuardMaxBull, "SCANNER_RSI_GUARD_MAX_BULL")
	overrideFloat64(&g.VolumeRatioWarning, "SCANNER_VOLUME_RATIO_WARNING")
	overrideFloat64(&g.VWAPDeviationWarning, "SCANNER_VWAP_DEVIATION_WARNING")
	overrideDuration(&g.SignalCooldown, "SCANNER_SIGNAL_COOLDOWN")
	overrideBool(&g.BlockBearRegimes, "SCANNER_BLOCK_BEAR_REGIMES")
}

func overrideSell(s *Sell) {
	overrideFloat64(&s.HardStopPct, "SELL_HARD_STOP_PCT")
	overrideFloat64(&s.ProfitLockL1Min, "SELL_PROFIT_LOCK_L1_MIN")
	overrideFloat64(&s.ProfitLockL1Mult, "SELL_PROFIT_LOCK_L1_MULT")
	overrideFloat64(&s.ProfitLockL1Max, "SELL_PROFIT_LOCK_L1_MAX")
	overrideFloat64(&s.ProfitLockL1Floor, "SELL_PROFIT_LOCK_L1_FLOOR")
	overrideFloat64(&s.ProfitLockL2Min, "SELL_PROFIT_LOCK_L2_MIN")
	overrideFloat64(&s.ProfitLockL2Mult, "SELL_PROFIT_LOCK_L2_MULT")
	overrideFloat64(&s.ProfitLockL2Max, "SELL_PROFIT_LOCK_L2_MAX")
	overrideFloat64(&s.ProfitLockL2Floor, "SELL_PROFIT_LOCK_L2_FLOOR")
	overrideBool(&s.BreakevenEnabled, "SELL_BREAKEVEN_ENABLED")
	overrideFloat64(&s.BreakevenActivationPct, "SELL_BREAKEVEN_ACTIVATION_PCT")
	overrideFloat64(&s.BreakevenFloorPct, "SELL_BREAKEVEN_FLOOR_PCT")
	overrideFloat64(&s.ATRMultiplier, "SELL_ATR_MULTIPLIER")
	overrideFloat64(&s.StopLossPct, "SELL_STOP_LOSS_PCT")
	overrideBool(&s.TimeTightenEnabled, "SELL_TIME_TIGHTEN_ENABLED")
	overrideInt(&s.TimeTightenStartDaysBull, "SELL_TIME_TIGHTEN_START_DAYS_BULL")
	overrideInt(&s.TimeTightenStartDays, "SELL_TIME_TIGHTEN_START_DAYS")
	overrideFloat64(&s.TimeTightenMaxReductionPct, "SELL_TIME_TIGHTEN_MAX_REDUCTION_PCT")
	overrideInt(&s.MaxHoldingDays, "SELL_MAX_HOLDING_DAYS")
	overrideBool(&s.TrailingEnabled, "SELL_TRAILING_ENABLED")
	overrideFloat64(&s.TrailingActivationPct, "SELL_TRAILING_ACTIVATION_PCT")
	overrideFloat64(&s.TrailingDropFromHighPct, "SELL_TRAILING_DROP_FROM_HIGH_PCT")
	overrideFloat64(&s.TrailingMinProfitPct, "SELL_TRAILING_MIN_PROFIT_PCT")
	overrideBool(&s.ScaleOutEnabled, "SELL_SCALE_OUT_ENABLED")
	overrideFloat64(&s.MinTransactionAmount, "SELL_MIN_TRANSACTION_AMOUNT")
	overrideInt64(&s.MinSellQuantity, "SELL_MIN_SELL_QUANTITY")
	overrideFloat64(&s.RSIOverboughtThreshold, "SELL_RSI_OVERBOUGHT_THRESHOLD")
	overrideFloat64(&s.RSIMinProfitPct, "SELL_RSI_MIN_PROFIT_PCT")
	overrideFloat64(&s.ProfitTargetPct, "SELL_PROFIT_TARGET_PCT")
}

func overrideRedis(r *Redis, prefix string) {
	overrideString(&r.Addr, "REDIS_ADDR")
	overrideString(&r.Password, "REDIS_PASSWORD")
	overrideInt(&r.DB, "REDIS_DB")
}

func overridePostgres(p *Postgres) {
	overrideString(&p.DSN, "DATABASE_URL")
}

func overrideBrokerage(b *Brokerage) {
	overrideString(&b.AppKey, "KIS_APP_KEY")
	overrideString(&b.AppSecret, "KIS_APP_SECRET")
	overrideString(&b.AccountNo, "KIS_ACCOUNT_NO")
	overrideString(&b.BaseURL, "KIS_BASE_URL")
	overrideString(&b.WSURL, "KIS_WS_URL")
	overrideString(&b.TokenCachePath, "KIS_TOKEN_CACHE_PATH")
	overrideInt(&b.RateLimitPerSec, "KIS_RATE_LIMIT_PER_SEC")
	if v := strings.TrimSpace(os.Getenv("KIS_PAPER")); v != "" {
		b.Paper = strings.EqualFold(v, "true")
	}
}

func overrideString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func overrideInt(dst *int, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func overrideDuration(dst *time.Duration, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

func overrideFloat64(dst *float64, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func overrideInt64(dst *int64, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func overrideBool(dst *bool, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = strings.EqualFold(v, "true")
	}
}
