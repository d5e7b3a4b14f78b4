package strategy

import (
	"context"
	"fmt"
	"runtime"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"algotrading/internal/obs"
	"algotrading/internal/schema"
)

// Result is the outcome of evaluating one definition. Exactly one of Signal and Err is set.
type Result struct {
	Strategy string
	Signal   *schema.Signal
	Err      error
}

// Runner evaluates definitions against a registry.
type Runner struct {
	Registry *Registry
	Workers  int
	Logger   *zap.Logger
	Metrics  *obs.Metrics
}

func NewRunner(registry *Registry, workers int, logger *zap.Logger, metrics *obs.Metrics) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		Registry: registry,
		Workers:  workers,
		Logger:   logger,
		Metrics:  metrics,
	}
}

// Evaluate runs a single definition. It never panics.
func (r *Runner) Evaluate(sc *Context, def Definition) (res Result) {
	res.Strategy = def.Name

	fn, ok := r.Registry.Resolve(def.Method)
	if !ok {
		res.Err = &StrategyNotFoundError{Strategy: def.Name, Method: def.Method}
		r.Metrics.ObserveStrategy(def.Name, obs.OutcomeNotFound)
		r.Logger.Error("strategy method not found", zap.String("strategy", def.Name), zap.String("method", def.Method))
		return res
	}

	defer func() {
		if p := recover(); p != nil {
			buf := make([]byte, 4096)
			buf = buf[:runtime.Stack(buf, false)]
			res.Signal = nil
			res.Err = &EvaluationError{Strategy: def.Name, Err: fmt.Errorf("panic: %v", p)}
			r.Metrics.ObserveStrategy(def.Name, obs.OutcomeError)
			r.Logger.Error("strategy panicked", zap.String("strategy", def.Name), zap.Any("panic", p), zap.ByteString("stack", buf))
		}
	}()

	sig, err := fn(sc, def.Args)
	if err == nil {
		err = sig.Validate()
	}
	if err != nil {
		res.Err = &EvaluationError{Strategy: def.Name, Err: err}
		r.Metrics.ObserveStrategy(def.Name, obs.OutcomeError)
		r.Logger.Error("evaluate strategy", zap.String("strategy", def.Name), zap.Error(err))
		return res
	}

	sig.Strategy = def.Name
	res.Signal = &sig
	r.Metrics.ObserveStrategy(def.Name, obs.OutcomeSignal)
	r.Logger.Debug("strategy signal", zap.String("strategy", def.Name), zap.Stringer("signal", sig))
	return res
}

// EvaluateAll evaluates every definition and returns one result per input, in input order.
// Definitions are evaluated concurrently, at most Workers at a time.
func (r *Runner) EvaluateAll(ctx context.Context, sc *Context, defs []Definition) []Result {
	results := make([]Result, len(defs))

	g, gctx := errgroup.WithContext(ctx)
	if r.Workers > 0 {
		g.SetLimit(r.Workers)
	}
	for i := range defs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				results[i] = Result{
					Strategy: defs[i].Name,
					Err:      &EvaluationError{Strategy: defs[i].Name, Err: err},
				}
				return nil
			}
			results[i] = r.Evaluate(sc, defs[i])
			return nil
		})
	}
	_ = g.Wait()

	return results
}
