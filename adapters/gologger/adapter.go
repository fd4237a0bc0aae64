package gologger

import (
	"io"
	"os"
	"strings"

	job "github.com/goliatone/go-job"
	glog "github.com/goliatone/go-logger/glog"
)

type Options struct {
	Writer io.Writer
	Level  string
	// Format is json (default), text or pretty.
	Format string
	Name   string
}

// New builds the root go-logger used by the process. Named children come from
// GetLogger on the returned logger.
func New(opts Options) *glog.BaseLogger {
	writer := opts.Writer
	if writer == nil {
		writer = os.Stderr
	}
	options := []glog.Option{
		glog.WithWriter(writer),
		glog.WithLevel(strings.TrimSpace(opts.Level)),
		formatOption(opts.Format),
	}
	if name := strings.TrimSpace(opts.Name); name != "" {
		options = append(options, glog.WithName(name))
	}
	return glog.NewLogger(options...)
}

func formatOption(format string) glog.Option {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "text", glog.LoggerTypeConsole:
		return glog.WithLoggerTypeConsole()
	case glog.LoggerTypePretty:
		return glog.WithLoggerTypePretty()
	default:
		return glog.WithLoggerTypeJSON()
	}
}

// Resolve uses deterministic precedence provider > logger > nop.
func Resolve(name string, provider glog.LoggerProvider, logger glog.Logger) (glog.LoggerProvider, glog.Logger) {
	return glog.Resolve(name, provider, logger)
}

// ToJobProvider maps a glog provider to the go-job logger provider contract.
func ToJobProvider(provider glog.LoggerProvider) job.LoggerProvider {
	if provider == nil {
		return nil
	}
	return job.GoLoggerProvider(provider)
}

// ToJobLogger maps a glog logger to the go-job logger contract.
func ToJobLogger(logger glog.Logger) job.Logger {
	if logger == nil {
		return nil
	}
	return job.GoLogger(logger)
}

// ResolveForJob resolves the glog pair for name and returns the go-job
// equivalents the worker pool logs through.
func ResolveForJob(
	name string,
	provider glog.LoggerProvider,
	logger glog.Logger,
) (glog.LoggerProvider, glog.Logger, job.LoggerProvider, job.Logger) {
	resolvedProvider, resolvedLogger := Resolve(name, provider, logger)
	return resolvedProvider, resolvedLogger, ToJobProvider(resolvedProvider), ToJobLogger(resolvedLogger)
}
