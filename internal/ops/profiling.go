package ops

import (
	pyroscope "github.com/grafana/pyroscope-go"
	"go.uber.org/zap"
)

// StartProfiling pushes continuous profiles when profiling.server_address is set.
// The returned stop function is never nil.
func StartProfiling(cfg ProfilingConfig, environment string, logger *zap.Logger) (func(), error) {
	if cfg.ServerAddress == "" {
		return func() {}, nil
	}
	profiler, err := pyroscope.Start(pyroscope.Config{
		ApplicationName: cfg.ApplicationName,
		ServerAddress:   cfg.ServerAddress,
		Tags: map[string]string{
			"env": environment,
		},
		Logger: pyroscopeLogger{logger.Sugar()},
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocObjects,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileInuseObjects,
			pyroscope.ProfileInuseSpace,
		},
	})
	if err != nil {
		return func() {}, err
	}
	logger.Info("profiling enabled", zap.String("server", cfg.ServerAddress), zap.String("application", cfg.ApplicationName))
	return func() { _ = profiler.Stop() }, nil
}

type pyroscopeLogger struct {
	s *zap.SugaredLogger
}

func (l pyroscopeLogger) Infof(format string, args ...any)  { l.s.Debugf(format, args...) }
func (l pyroscopeLogger) Debugf(format string, args ...any) { l.s.Debugf(format, args...) }
func (l pyroscopeLogger) Errorf(format string, args ...any) { l.s.Errorf(format, args...) }
