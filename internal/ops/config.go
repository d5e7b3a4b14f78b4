package ops

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"algotrading/internal/errors"
	"algotrading/internal/events"
	"algotrading/internal/exchange"
	"algotrading/internal/lock"
	"algotrading/pkg/conn"
	"algotrading/pkg/exception"
)

// EnvPrefix prefixes every environment override, e.g. ALGOTRADING_EXCHANGE_MODE.
const EnvPrefix = "ALGOTRADING"

// FileConfig mirrors the YAML config layout.
type FileConfig struct {
	AppName     string          `mapstructure:"app_name"`
	Environment string          `mapstructure:"environment"`
	LogsDir     string          `mapstructure:"logs_dir"`
	LogLevel    string          `mapstructure:"log_level"`
	Database    conn.Option     `mapstructure:"database"`
	Exchange    exchange.Config `mapstructure:"exchange"`
	Pass        PassConfig      `mapstructure:"pass"`
	Events      EventsConfig    `mapstructure:"events"`
	Lock        LockConfig      `mapstructure:"lock"`
	Report      ReportConfig    `mapstructure:"report"`
	Profiling   ProfilingConfig `mapstructure:"profiling"`
	Metrics     MetricsConfig   `mapstructure:"metrics"`
}

// PassConfig describes one batch pass.
type PassConfig struct {
	Job             string        `mapstructure:"job"`
	Portfolio       string        `mapstructure:"portfolio"`
	Strategies      []string      `mapstructure:"strategies"`
	Workers         int           `mapstructure:"workers"`
	RiskAppetite    string        `mapstructure:"risk_appetite"`
	ExchangeTimeout time.Duration `mapstructure:"exchange_timeout"`
	Lookback        time.Duration `mapstructure:"lookback"`
	StaleScope      int           `mapstructure:"stale_scope"`
	DryRun          bool          `mapstructure:"dry_run"`
	SnapshotPath    string        `mapstructure:"snapshot_path"`
}

type EventsConfig struct {
	Enabled   bool               `mapstructure:"enabled"`
	QueueSize int                `mapstructure:"queue_size"`
	Kafka     events.KafkaConfig `mapstructure:"kafka"`
}

type LockConfig struct {
	Driver string           `mapstructure:"driver"`
	Redis  lock.RedisConfig `mapstructure:"redis"`
}

type ReportConfig struct {
	Addr                  string   `mapstructure:"addr"`
	AuthorisedIPAddresses []string `mapstructure:"authorised_ip_addresses"`
	TrustedProxies        []string `mapstructure:"trusted_proxies"`
	CORSOrigins           []string `mapstructure:"cors_origins"`
}

type ProfilingConfig struct {
	ServerAddress   string `mapstructure:"server_address"`
	ApplicationName string `mapstructure:"application_name"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// Overrides are command line values that win over the file and the environment.
// Zero values leave the configured value alone.
type Overrides struct {
	Job          string
	Strategies   []string
	Mode         string
	Portfolio    string
	RiskAppetite string
	DryRun       bool
	RunDate      string
	RunTime      string
}

// LoadOptions locate the config.
type LoadOptions struct {
	Environment string
	// Path wins over Dir/<environment>.yaml.
	Path string
	Dir  string
	// EnvFile is loaded into the process environment when it exists.
	EnvFile   string
	Overrides Overrides
	Now       time.Time
}

// Loaded is the resolved configuration ready for use.
type Loaded struct {
	FileConfig
	ConfigPath   string
	RiskAppetite decimal.Decimal
	RunAt        time.Time
}

// Load reads the YAML config, applies environment and command line overrides and validates the result.
func Load(opts LoadOptions) (Loaded, error) {
	if opts.EnvFile != "" {
		if _, err := os.Stat(opts.EnvFile); err == nil {
			if err := godotenv.Load(opts.EnvFile); err != nil {
				return Loaded{}, errors.Wrapf(err, "load env file %s", opts.EnvFile)
			}
		}
	}

	path := opts.Path
	if path == "" {
		env := strings.ToLower(opts.Environment)
		if env == "" {
			env = "dev"
		}
		dir := opts.Dir
		if dir == "" {
			dir = "config"
		}
		path = filepath.Join(dir, env+".yaml")
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.ReadInConfig(); err != nil {
		return Loaded{}, errors.Wrapf(err, "read config %s", path)
	}

	var fc FileConfig
	if err := v.Unmarshal(&fc); err != nil {
		return Loaded{}, errors.Wrapf(err, "decode config %s", path)
	}
	if opts.Environment != "" {
		fc.Environment = strings.ToLower(opts.Environment)
	}
	applyOverrides(&fc, opts.Overrides)

	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	runAt, err := ResolveRunTime(opts.Overrides.RunDate, opts.Overrides.RunTime, now)
	if err != nil {
		return Loaded{}, err
	}

	loaded := Loaded{FileConfig: fc, ConfigPath: path, RunAt: runAt}
	if err := loaded.resolve(); err != nil {
		return Loaded{}, err
	}
	return loaded, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app_name", "algo_trading_platform")
	v.SetDefault("environment", "dev")
	v.SetDefault("logs_dir", "logs")
	v.SetDefault("log_level", "info")
	v.SetDefault("database.driver", conn.DriverPostgres)
	v.SetDefault("exchange.mode", exchange.ModeSimulate)
	v.SetDefault("pass.job", "strategy_batch")
	v.SetDefault("pass.workers", 4)
	v.SetDefault("pass.risk_appetite", "1.0")
	v.SetDefault("pass.exchange_timeout", 10*time.Second)
	v.SetDefault("pass.lookback", 24*time.Hour)
	v.SetDefault("pass.stale_scope", 3)
	v.SetDefault("events.queue_size", 1024)
	v.SetDefault("events.kafka.topic", events.TopicTrades)
	v.SetDefault("lock.driver", "memory")
	v.SetDefault("lock.redis.ttl", 10*time.Minute)
	v.SetDefault("report.addr", ":8080")
	v.SetDefault("profiling.application_name", "algotrading.trader")
}

func applyOverrides(fc *FileConfig, o Overrides) {
	if o.Job != "" {
		fc.Pass.Job = o.Job
	}
	if len(o.Strategies) > 0 {
		fc.Pass.Strategies = o.Strategies
	}
	if o.Mode != "" {
		fc.Exchange.Mode = o.Mode
	}
	if o.Portfolio != "" {
		fc.Pass.Portfolio = o.Portfolio
	}
	if o.RiskAppetite != "" {
		fc.Pass.RiskAppetite = o.RiskAppetite
	}
	if o.DryRun {
		fc.Pass.DryRun = true
	}
}

func (l *Loaded) resolve() error {
	appetite, err := decimal.NewFromString(l.Pass.RiskAppetite)
	if err != nil {
		return errors.Wrapf(exception.ErrInvalidConfig, "pass.risk_appetite %q", l.Pass.RiskAppetite)
	}
	if appetite.IsNegative() {
		return errors.Wrap(exception.ErrInvalidConfig, "pass.risk_appetite must be >= 0")
	}
	l.RiskAppetite = appetite

	l.Exchange.Mode = strings.ToLower(l.Exchange.Mode)
	switch l.Exchange.Mode {
	case exchange.ModeSimulate, exchange.ModeExecute:
	default:
		return errors.Wrapf(exception.ErrUnsupportedMode, "exchange.mode %q", l.Exchange.Mode)
	}

	if l.Pass.Workers < 0 {
		return errors.Wrap(exception.ErrInvalidConfig, "pass.workers must be >= 0")
	}
	switch l.Lock.Driver {
	case "memory", "redis":
	default:
		return errors.Wrapf(exception.ErrInvalidConfig, "lock.driver %q", l.Lock.Driver)
	}
	if l.Events.Enabled && len(l.Events.Kafka.Brokers) == 0 {
		return errors.Wrap(exception.ErrInvalidConfig, "events.kafka.brokers is empty")
	}
	return nil
}

// ValidatePass checks the fields a trading pass needs on top of Load's checks.
func (l Loaded) ValidatePass() error {
	if l.Pass.Portfolio == "" {
		return errors.Wrap(exception.ErrInvalidConfig, "pass.portfolio is empty")
	}
	if len(l.Pass.Strategies) == 0 {
		return errors.Wrap(exception.ErrInvalidConfig, "no strategies")
	}
	return nil
}

// ResolveRunTime combines a YYYYMMDD date and an HHMMSS time, each defaulting to now.
func ResolveRunTime(date, clock string, now time.Time) (time.Time, error) {
	if date == "" {
		date = now.Format("20060102")
	}
	if clock == "" {
		clock = now.Format("150405")
	}
	t, err := time.ParseInLocation("20060102150405", date+clock, now.Location())
	if err != nil {
		return time.Time{}, errors.Wrapf(exception.ErrInvalidConfig, "run date %q time %q", date, clock)
	}
	return t, nil
}

// SplitList splits a comma separated flag value, dropping blanks.
func SplitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
