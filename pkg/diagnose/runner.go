package diagnose

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"

	"github.com/grid5000/chiropctl/pkg/manifest"
)

// Config locates the stack under diagnosis.
type Config struct {
	// Namespace hosting the Kepler exporter.
	Namespace string

	// MonitoringNamespace hosting Prometheus and the ServiceMonitor.
	MonitoringNamespace string

	// MetricsPort the exporter serves on. Zero means the stack default.
	MetricsPort int32

	// LogTail bounds how many exporter log lines the log check scans.
	LogTail int64
}

func (c Config) metricsPort() int32 {
	if c.MetricsPort == 0 {
		return manifest.KeplerMetricsPort
	}
	return c.MetricsPort
}

func (c Config) logTail() int64 {
	if c.LogTail == 0 {
		return 200
	}
	return c.LogTail
}

// Runner executes the checklist. It only issues read verbs against the
// cluster; nothing in this package mutates state.
type Runner struct {
	clientset  kubernetes.Interface
	dynamic    dynamic.Interface
	restConfig *rest.Config
	cfg        Config

	checks []Check
}

// Option is a functional option for configuring Runner instances.
type Option func(*Runner)

// WithChecks replaces the built-in checklist.
func WithChecks(checks []Check) Option {
	return func(r *Runner) {
		r.checks = checks
	}
}

// New creates a Runner with the built-in stack checklist.
func New(clientset kubernetes.Interface, dyn dynamic.Interface, restConfig *rest.Config, cfg Config, opts ...Option) *Runner {
	r := &Runner{
		clientset:  clientset,
		dynamic:    dyn,
		restConfig: restConfig,
		cfg:        cfg,
	}
	r.checks = builtinChecks()
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Check is one entry of the checklist. Execute returns the verdict and a
// message; failed verdicts may name a remediation hint via hintKey.
type Check struct {
	Order       int
	Name        string
	Description string
	Execute     func(ctx context.Context, rc *runContext) (Verdict, string, hintKey)
}

// runContext carries the clients plus state shared between checks. Later
// checks consume what earlier ones discovered (a pod found by the pod check
// is the one the probe and log checks use), which is why execution order is
// strict.
type runContext struct {
	clientset  kubernetes.Interface
	dynamic    dynamic.Interface
	restConfig *rest.Config
	cfg        Config

	// discovered state
	exporterPod   string
	serviceLabels map[string]string
}

// Run executes every check in declared order and assembles the report. A
// check failure is recorded, never returned as an error; the run always
// completes.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	start := time.Now()

	report := &Report{
		ID:        uuid.New().String(),
		Namespace: r.cfg.Namespace,
	}
	report.Header.Set(Kind)
	report.Header.APIVersion = APIVersion

	rc := &runContext{
		clientset:  r.clientset,
		dynamic:    r.dynamic,
		restConfig: r.restConfig,
		cfg:        r.cfg,
	}

	for _, check := range r.checks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		result := CheckResult{
			Order:       check.Order,
			Name:        check.Name,
			Description: check.Description,
			Verdict:     VerdictRunning,
		}
		slog.Debug("running check", slog.Int("order", check.Order), slog.String("name", check.Name))

		verdict, message, hint := check.Execute(ctx, rc)
		result.Verdict = verdict
		result.Message = message
		if verdict == VerdictFailed {
			result.Hint = hintFor(hint)
		}

		checksTotal.WithLabelValues(string(verdict)).Inc()
		report.Results = append(report.Results, result)

		switch verdict {
		case VerdictPassed:
			report.Summary.Passed++
		case VerdictFailed:
			report.Summary.Failed++
			slog.Warn("check failed",
				slog.String("name", check.Name),
				slog.String("message", message))
		case VerdictSkipped:
			report.Summary.Skipped++
		}
	}

	report.Summary.Total = len(r.checks)
	report.Summary.Duration = time.Since(start)
	switch {
	case report.Summary.Failed > 0:
		report.Summary.Status = StatusFail
	case report.Summary.Skipped > 0:
		report.Summary.Status = StatusPartial
	default:
		report.Summary.Status = StatusPass
	}

	runDuration.Observe(report.Summary.Duration.Seconds())
	slog.Info("diagnostics completed",
		slog.String("id", report.ID),
		slog.Int("passed", report.Summary.Passed),
		slog.Int("failed", report.Summary.Failed),
		slog.Int("skipped", report.Summary.Skipped),
		slog.String("status", string(report.Summary.Status)))

	return report, nil
}

// failf formats a failed verdict.
func failf(hint hintKey, format string, args ...any) (Verdict, string, hintKey) {
	return VerdictFailed, fmt.Sprintf(format, args...), hint
}

// skipf formats a skipped verdict with its explanation.
func skipf(format string, args ...any) (Verdict, string, hintKey) {
	return VerdictSkipped, fmt.Sprintf(format, args...), hintNone
}

func pass() (Verdict, string, hintKey) {
	return VerdictPassed, "", hintNone
}

func passf(format string, args ...any) (Verdict, string, hintKey) {
	return VerdictPassed, fmt.Sprintf(format, args...), hintNone
}
