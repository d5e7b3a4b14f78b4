package pipeline

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"algotrading/internal/errors"
	"algotrading/internal/events"
	"algotrading/internal/exchange"
	"algotrading/internal/job"
	"algotrading/internal/lock"
	"algotrading/internal/marketdata"
	"algotrading/internal/obs"
	"algotrading/internal/reconcile"
	"algotrading/internal/risk"
	"algotrading/internal/schema"
	"algotrading/internal/state"
	"algotrading/internal/strategy"
	"algotrading/internal/trade"
)

// Phases recorded on the job.
const (
	PhaseLoad      = "load"
	PhaseEvaluate  = "evaluate"
	PhaseReconcile = "reconcile"
	PhaseRisk      = "risk"
	PhasePropose   = "propose"
	PhaseExecute   = "execute"
	PhaseValuate   = "valuate"
)

// Store is everything a pass reads from and writes to persistent storage.
type Store interface {
	Strategies(ctx context.Context, names []string) (defs []strategy.Definition, missing []string, err error)
	risk.ProfileSource
	state.SnapshotSource
	marketdata.TickSource
	SaveSignals(ctx context.Context, jobID string, signals []schema.Signal) error
	SavePortfolio(ctx context.Context, snapshot state.Snapshot) error
	SaveValuation(ctx context.Context, portfolioID uint, at time.Time, value decimal.Decimal) error
}

// Config holds the per-pass settings.
type Config struct {
	Strategies      []string
	Portfolio       string
	RiskAppetite    decimal.Decimal
	Workers         int
	ExchangeTimeout time.Duration
	Lookback        time.Duration
	StaleScope      int
	DryRun          bool
	// SnapshotPath, when set, replaces the stored portfolio as the source of
	// state and receives the state after execution.
	SnapshotPath string
	QueueSize    int
	Now          time.Time
}

// Report is the outcome of a pass. Warnings hold the non-fatal errors.
type Report struct {
	JobID        string
	Results      []strategy.Result
	Signals      []schema.Signal
	Proposal     trade.Proposal
	Executed     []schema.ExecutedTrade
	InitialValue decimal.Decimal
	FinalValue   decimal.Decimal
	PnL          decimal.Decimal
	Warnings     []error
}

type Option func(*Pass)

func WithRegistry(r *strategy.Registry) Option { return func(p *Pass) { p.Registry = r } }

func WithLocker(l lock.Locker) Option { return func(p *Pass) { p.Locker = l } }

func WithPublisher(pub events.Publisher) Option { return func(p *Pass) { p.Publisher = pub } }

func WithJob(j *job.Job) Option { return func(p *Pass) { p.Job = j } }

func WithMetrics(m *obs.Metrics) Option { return func(p *Pass) { p.Metrics = m } }

type Pass struct {
	Config    Config
	Store     Store
	Exchange  exchange.Exchange
	Registry  *strategy.Registry
	Locker    lock.Locker
	Publisher events.Publisher
	Job       *job.Job
	Logger    *zap.Logger
	Metrics   *obs.Metrics
}

// NewPass wires a pass. Without options it uses the builtin strategies, an
// in-process lock, no event publishing and a job that is not persisted.
func NewPass(cfg Config, st Store, ex exchange.Exchange, logger *zap.Logger, opts ...Option) (*Pass, error) {
	if st == nil || ex == nil {
		return nil, errors.New("pipeline needs a store and an exchange")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Now.IsZero() {
		cfg.Now = time.Now()
	}

	p := &Pass{
		Config:   cfg,
		Store:    st,
		Exchange: ex,
		Logger:   logger,
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.Registry == nil {
		p.Registry = strategy.NewRegistry()
		if err := strategy.RegisterBuiltins(p.Registry); err != nil {
			return nil, err
		}
	}
	if p.Locker == nil {
		p.Locker = lock.NewMemory()
	}
	if p.Publisher == nil {
		p.Publisher = events.NopPublisher{}
	}
	if p.Job == nil {
		p.Job = job.New(job.Info{Name: "pass"}, nil, logger)
	}
	return p, nil
}

// Run executes the pass and finishes the job with its outcome.
// On an execution failure the partial report is returned with the error.
func (p *Pass) Run(ctx context.Context) (report *Report, err error) {
	started := time.Now()
	if err := p.Job.Start(ctx); err != nil {
		return nil, err
	}
	defer func() {
		p.Metrics.ObservePass(time.Since(started))
		if ferr := p.Job.Finish(ctx, err); ferr != nil {
			p.Logger.Error("finish job", zap.Error(ferr))
		}
	}()

	report = &Report{JobID: p.Job.ID().String()}
	cfg := p.Config
	p.Logger.Info("pass config",
		zap.Strings("strategies", cfg.Strategies),
		zap.String("portfolio", cfg.Portfolio),
		zap.Stringer("risk_appetite", cfg.RiskAppetite),
		zap.Int("workers", cfg.Workers),
		zap.Duration("exchange_timeout", cfg.ExchangeTimeout),
		zap.Duration("lookback", cfg.Lookback),
		zap.Bool("dry_run", cfg.DryRun),
		zap.Time("now", cfg.Now),
	)

	if err := p.phase(ctx, PhaseLoad); err != nil {
		return report, err
	}
	defs, missing, err := p.Store.Strategies(ctx, cfg.Strategies)
	if err != nil {
		return report, errors.Wrap(err, "load strategies")
	}
	for _, name := range missing {
		p.Logger.Error("strategy has no stored definition", zap.String("strategy", name))
	}
	loader := marketdata.NewLoader(p.Store, cfg.StaleScope, p.Logger)
	if cfg.Lookback > 0 {
		if err := loader.Load(ctx, symbolsOf(defs), cfg.Now.Add(-cfg.Lookback), cfg.Now); err != nil {
			return report, errors.Wrap(err, "load market data")
		}
		loader.ReportWarnings()
		report.Warnings = append(report.Warnings, loader.Errors()...)
	}

	if err := p.phase(ctx, PhaseEvaluate); err != nil {
		return report, err
	}
	sc := strategy.NewContext(cfg.Now, loader, p.Logger)
	runner := strategy.NewRunner(p.Registry, cfg.Workers, p.Logger, p.Metrics)
	report.Results = inInputOrder(cfg.Strategies, missing, runner.EvaluateAll(ctx, sc, defs))

	if err := p.phase(ctx, PhaseReconcile); err != nil {
		return report, err
	}
	signals, failures := reconcile.Split(report.Results)
	report.Warnings = append(report.Warnings, failures...)
	report.Signals, err = reconcile.Reconcile(signals)
	if err != nil {
		return report, err
	}
	if err := p.Store.SaveSignals(ctx, report.JobID, report.Signals); err != nil {
		return report, err
	}

	if err := p.phase(ctx, PhaseRisk); err != nil {
		return report, err
	}
	profiles, err := risk.NewBuilder(p.Store, cfg.RiskAppetite, p.Logger).Build(ctx, defs)
	if err != nil {
		return report, errors.Wrap(err, "build risk profiles")
	}
	portfolio, err := state.Recover(ctx, p.Store, state.RecoverConfig{Name: cfg.Portfolio, SnapshotPath: cfg.SnapshotPath})
	if err != nil {
		return report, err
	}

	release, err := p.Locker.Acquire(ctx, "portfolio:"+portfolio.Name)
	if err != nil {
		return report, errors.Wrapf(err, "lock portfolio %s", portfolio.Name)
	}
	defer func() {
		if rerr := release(context.WithoutCancel(ctx)); rerr != nil {
			p.Logger.Error("release portfolio lock", zap.Error(rerr))
		}
	}()

	report.InitialValue, err = portfolio.Valuate(ctx, p.Exchange)
	if err != nil {
		return report, errors.Wrap(err, "initial valuation")
	}
	p.Logger.Info("initial portfolio value", zap.String("portfolio", portfolio.Name), zap.Stringer("value", report.InitialValue))

	if err := p.phase(ctx, PhasePropose); err != nil {
		return report, err
	}
	proposer := trade.NewProposer(p.Exchange, portfolio, p.Logger, p.Metrics)
	report.Proposal, err = proposer.Propose(ctx, defs, report.Signals, profiles)
	if err != nil {
		return report, err
	}
	for _, d := range report.Proposal.Skipped {
		report.Warnings = append(report.Warnings, d.Err())
	}

	if cfg.DryRun {
		p.Logger.Info("dry run, trades not executed", zap.Int("proposed", len(report.Proposal.Trades)))
		report.FinalValue = report.InitialValue
		report.PnL = decimal.Zero
		return report, nil
	}

	if err := p.phase(ctx, PhaseExecute); err != nil {
		return report, err
	}
	executed, execErr := p.execute(ctx, portfolio, report.Proposal.Trades)
	report.Executed = executed
	if len(executed) > 0 {
		if err := p.persist(ctx, portfolio); err != nil {
			return report, err
		}
	}
	if execErr != nil {
		return report, execErr
	}

	if err := p.phase(ctx, PhaseValuate); err != nil {
		return report, err
	}
	report.FinalValue, err = portfolio.Valuate(ctx, p.Exchange)
	if err != nil {
		return report, errors.Wrap(err, "final valuation")
	}
	if err := p.Store.SaveValuation(ctx, portfolio.ID, cfg.Now, report.FinalValue); err != nil {
		return report, err
	}
	p.Metrics.SetPortfolioValue(portfolio.Name, report.FinalValue)
	report.PnL = report.FinalValue.Sub(report.InitialValue)

	p.Logger.Info("pass finished",
		zap.Int("signals", len(report.Signals)),
		zap.Int("proposed", len(report.Proposal.Trades)),
		zap.Int("skipped", len(report.Proposal.Skipped)),
		zap.Int("executed", len(report.Executed)),
		zap.Stringer("final_value", report.FinalValue),
		zap.Stringer("pnl", report.PnL),
		zap.Int("warnings", len(report.Warnings)),
	)
	return report, nil
}

func (p *Pass) execute(ctx context.Context, portfolio *state.Portfolio, trades []schema.Trade) ([]schema.ExecutedTrade, error) {
	dispatcher := events.NewDispatcher(p.Publisher, p.Job.ID(), portfolio.Name, p.Config.QueueSize, p.Logger)
	dispatcher.Start(ctx)
	defer func() {
		if err := dispatcher.Close(); err != nil {
			p.Logger.Error("drain trade events", zap.Error(err))
		}
	}()

	executor := trade.NewExecutor(p.Exchange, portfolio, p.Config.ExchangeTimeout, p.Logger, p.Metrics)
	executor.Notifier = dispatcher
	return executor.Execute(ctx, trades)
}

func (p *Pass) persist(ctx context.Context, portfolio *state.Portfolio) error {
	snapshot := portfolio.Snapshot()
	if p.Config.SnapshotPath != "" {
		if err := state.WriteSnapshot(p.Config.SnapshotPath, snapshot); err != nil {
			return errors.Wrapf(err, "write snapshot %s", p.Config.SnapshotPath)
		}
	}
	return p.Store.SavePortfolio(ctx, snapshot)
}

func (p *Pass) phase(ctx context.Context, name string) error {
	return p.Job.Phase(ctx, name)
}

// inInputOrder interleaves not-found results for missing names with the
// evaluated results, which cover the remaining names in order.
func inInputOrder(names, missing []string, evaluated []strategy.Result) []strategy.Result {
	if len(missing) == 0 {
		return evaluated
	}
	absent := make(map[string]struct{}, len(missing))
	for _, name := range missing {
		absent[name] = struct{}{}
	}
	results := make([]strategy.Result, 0, len(names))
	next := 0
	for _, name := range names {
		if _, ok := absent[name]; ok {
			results = append(results, strategy.Result{
				Strategy: name,
				Err:      &strategy.StrategyNotFoundError{Strategy: name},
			})
			continue
		}
		results = append(results, evaluated[next])
		next++
	}
	return results
}

func symbolsOf(defs []strategy.Definition) []string {
	seen := make(map[string]struct{}, len(defs))
	symbols := make([]string, 0, len(defs))
	for _, d := range defs {
		if _, ok := seen[d.Symbol]; ok || d.Symbol == "" {
			continue
		}
		seen[d.Symbol] = struct{}{}
		symbols = append(symbols, d.Symbol)
	}
	return symbols
}
