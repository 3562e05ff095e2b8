// Package chart installs and upgrades the packaged monitoring applications
// (Kepler, kube-prometheus-stack) through the Helm SDK. Applying a release
// under an existing name is an upgrade; a release whose chart version and
// values are unchanged is reported as a no-op.
package chart

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/distribution/reference"
	"helm.sh/helm/v3/pkg/action"
	"helm.sh/helm/v3/pkg/chart"
	"helm.sh/helm/v3/pkg/chart/loader"
	helmcli "helm.sh/helm/v3/pkg/cli"
	"helm.sh/helm/v3/pkg/getter"
	"helm.sh/helm/v3/pkg/release"
	"helm.sh/helm/v3/pkg/repo"
	"helm.sh/helm/v3/pkg/storage/driver"
	"helm.sh/helm/v3/pkg/strvals"
	"k8s.io/client-go/kubernetes"

	chiroperrors "github.com/grid5000/chiropctl/pkg/errors"
)

// Release declares one chart installation target.
type Release struct {
	// Name of the Helm release. At most one active release exists per
	// name and namespace.
	Name string

	// RepoURL of the chart repository (index.yaml location).
	RepoURL string

	// ChartName within the repository.
	ChartName string

	// Version constrains the chart version; empty selects the latest.
	Version string

	// Namespace the release installs into (created if missing).
	Namespace string

	// Values are flat key=value overrides in strvals path syntax.
	Values map[string]string

	// ReadySelector is the pod label selector polled for readiness after
	// the release is applied. Empty skips the wait.
	ReadySelector string

	// ReadyTimeout bounds the readiness wait. Zero means 5 minutes.
	ReadyTimeout time.Duration
}

func (r Release) readyTimeout() time.Duration {
	if r.ReadyTimeout == 0 {
		return 5 * time.Minute
	}
	return r.ReadyTimeout
}

// Result reports the outcome of ensuring one release.
type Result struct {
	ReleaseName  string `json:"releaseName" yaml:"releaseName"`
	Namespace    string `json:"namespace" yaml:"namespace"`
	ChartVersion string `json:"chartVersion" yaml:"chartVersion"`
	Revision     int    `json:"revision" yaml:"revision"`
	Changed      bool   `json:"changed" yaml:"changed"`
	Installed    bool   `json:"installed" yaml:"installed"`
}

// Installer wraps the Helm SDK actions for one kubeconfig.
type Installer struct {
	settings  *helmcli.EnvSettings
	clientset kubernetes.Interface

	pollInterval time.Duration
}

// Option is a functional option for configuring Installer instances.
type Option func(*Installer)

// WithPollInterval overrides the readiness poll interval.
func WithPollInterval(d time.Duration) Option {
	return func(i *Installer) {
		i.pollInterval = d
	}
}

// New creates an Installer. clientset is used for the post-apply readiness
// poll and may be nil when no release declares a ReadySelector.
func New(kubeconfig string, clientset kubernetes.Interface, opts ...Option) *Installer {
	settings := helmcli.New()
	if kubeconfig != "" {
		settings.KubeConfig = kubeconfig
	}

	inst := &Installer{
		settings:     settings,
		clientset:    clientset,
		pollInterval: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(inst)
	}
	return inst
}

// Ensure registers the repository index, resolves and loads the chart, then
// installs or upgrades the release. After a change it waits for pods
// matching the release's ReadySelector; a readiness timeout is surfaced but
// the applied release is not rolled back.
func (i *Installer) Ensure(ctx context.Context, rel Release) (*Result, error) {
	if err := validateImageOverrides(rel.Values); err != nil {
		return nil, err
	}

	vals, err := buildValues(rel.Values)
	if err != nil {
		return nil, chiroperrors.Wrap(err, chiroperrors.ErrCodeValidation, "malformed --set value")
	}

	chartRequested, err := i.fetchChart(rel)
	if err != nil {
		return nil, err
	}

	cfg, err := i.actionConfig(rel.Namespace)
	if err != nil {
		return nil, err
	}

	res, err := i.installOrUpgrade(ctx, cfg, rel, chartRequested, vals)
	if err != nil {
		return nil, err
	}

	if res.Changed && rel.ReadySelector != "" {
		if err := i.WaitForReady(ctx, rel.Namespace, rel.ReadySelector, rel.readyTimeout()); err != nil {
			return res, err
		}
	}
	return res, nil
}

// fetchChart resolves the chart in the repository index and loads the
// downloaded archive.
func (i *Installer) fetchChart(rel Release) (*chart.Chart, error) {
	providers := getter.All(i.settings)

	chartURL, err := repo.FindChartInRepoURL(rel.RepoURL, rel.ChartName, rel.Version, "", "", "", providers)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			return nil, chiroperrors.Wrap(err, chiroperrors.ErrCodeChartNotFound,
				fmt.Sprintf("chart %q not in repository %s", rel.ChartName, rel.RepoURL))
		}
		return nil, chiroperrors.Wrap(err, chiroperrors.ErrCodeRepoUnreachable,
			fmt.Sprintf("cannot read index of repository %s", rel.RepoURL))
	}

	u, err := url.Parse(chartURL)
	if err != nil {
		return nil, chiroperrors.Wrap(err, chiroperrors.ErrCodeRepoUnreachable, "malformed chart URL in index")
	}
	g, err := providers.ByScheme(u.Scheme)
	if err != nil {
		return nil, chiroperrors.Wrap(err, chiroperrors.ErrCodeRepoUnreachable, "unsupported chart URL scheme")
	}

	data, err := g.Get(chartURL, getter.WithURL(rel.RepoURL))
	if err != nil {
		return nil, chiroperrors.Wrap(err, chiroperrors.ErrCodeRepoUnreachable,
			fmt.Sprintf("failed to download chart from %s", chartURL))
	}

	chartRequested, err := loader.LoadArchive(bytes.NewReader(data.Bytes()))
	if err != nil {
		return nil, chiroperrors.Wrap(err, chiroperrors.ErrCodeValidation, "failed to load chart archive")
	}

	if req := chartRequested.Metadata.Dependencies; req != nil {
		if err := action.CheckDependencies(chartRequested, req); err != nil {
			return nil, chiroperrors.Wrap(err, chiroperrors.ErrCodeValidation, "chart dependency check failed")
		}
	}
	return chartRequested, nil
}

func (i *Installer) actionConfig(namespace string) (*action.Configuration, error) {
	cfg := &action.Configuration{}
	logf := func(format string, v ...any) {
		slog.Debug(fmt.Sprintf(format, v...))
	}
	if err := cfg.Init(i.settings.RESTClientGetter(), namespace, "", logf); err != nil {
		return nil, chiroperrors.Wrap(err, chiroperrors.ErrCodeClusterUnreachable,
			"failed to initialize release storage")
	}
	return cfg, nil
}

func (i *Installer) installOrUpgrade(ctx context.Context, cfg *action.Configuration, rel Release,
	ch *chart.Chart, vals map[string]any) (*Result, error) {

	histClient := action.NewHistory(cfg)
	histClient.Max = 1
	history, err := histClient.Run(rel.Name)

	if errors.Is(err, driver.ErrReleaseNotFound) {
		install := action.NewInstall(cfg)
		install.ReleaseName = rel.Name
		install.Namespace = rel.Namespace
		install.CreateNamespace = true

		r, err := install.RunWithContext(ctx, ch, vals)
		if err != nil {
			return nil, classifyHelmError(err, rel)
		}
		slog.Info("release installed",
			slog.String("release", rel.Name),
			slog.String("chart", fmt.Sprintf("%s-%s", ch.Name(), ch.Metadata.Version)))
		return resultFromRelease(r, true, true), nil
	}
	if err != nil {
		return nil, classifyHelmError(err, rel)
	}

	// Same chart version with identical overrides is a no-op upgrade.
	current := history[0]
	if current.Chart != nil && current.Chart.Metadata.Version == ch.Metadata.Version &&
		valuesEqual(current.Config, vals) && current.Info.Status == release.StatusDeployed {
		slog.Info("release unchanged",
			slog.String("release", rel.Name),
			slog.String("chart", fmt.Sprintf("%s-%s", ch.Name(), ch.Metadata.Version)))
		return resultFromRelease(current, false, false), nil
	}

	upgrade := action.NewUpgrade(cfg)
	upgrade.Namespace = rel.Namespace

	r, err := upgrade.RunWithContext(ctx, rel.Name, ch, vals)
	if err != nil {
		return nil, classifyHelmError(err, rel)
	}
	slog.Info("release upgraded",
		slog.String("release", rel.Name),
		slog.Int("revision", r.Version))
	return resultFromRelease(r, true, false), nil
}

func resultFromRelease(r *release.Release, changed, installed bool) *Result {
	res := &Result{
		ReleaseName: r.Name,
		Namespace:   r.Namespace,
		Revision:    r.Version,
		Changed:     changed,
		Installed:   installed,
	}
	if r.Chart != nil {
		res.ChartVersion = r.Chart.Metadata.Version
	}
	return res
}

// buildValues parses flat key=value overrides into nested Helm values, in
// deterministic key order so identical inputs produce identical documents.
func buildValues(overrides map[string]string) (map[string]any, error) {
	vals := map[string]any{}
	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if err := strvals.ParseInto(fmt.Sprintf("%s=%s", k, overrides[k]), vals); err != nil {
			return nil, fmt.Errorf("value %q: %w", k, err)
		}
	}
	return vals, nil
}

func valuesEqual(a, b map[string]any) bool {
	if len(a) == 0 && len(b) == 0 {
		return true
	}
	return reflect.DeepEqual(a, b)
}

// validateImageOverrides checks that any value targeting an image field is a
// well-formed OCI reference, before the chart ever renders it.
func validateImageOverrides(values map[string]string) error {
	for k, v := range values {
		if !strings.HasSuffix(k, "image") && !strings.HasSuffix(k, "image.repository") {
			continue
		}
		if _, err := reference.ParseNormalizedNamed(v); err != nil {
			return chiroperrors.Wrap(err, chiroperrors.ErrCodeValidation,
				fmt.Sprintf("value %q is not a valid image reference: %q", k, v))
		}
	}
	return nil
}

func classifyHelmError(err error, rel Release) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return chiroperrors.Wrap(err, chiroperrors.ErrCodeClusterUnreachable,
		fmt.Sprintf("release %s/%s", rel.Namespace, rel.Name))
}
