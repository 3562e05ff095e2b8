// Package apply reconciles target manifests against live cluster state with
// full-overwrite semantics: absent objects are created, present objects have
// their spec and labels replaced wholesale. No strategic merge.
package apply

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	apiequality "k8s.io/apimachinery/pkg/api/equality"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/util/retry"

	chiroperrors "github.com/grid5000/chiropctl/pkg/errors"
	"github.com/grid5000/chiropctl/pkg/manifest"
)

// Engine applies manifests through the dynamic client.
type Engine struct {
	client dynamic.Interface

	// retry policy for transport failures
	backoff wait.Backoff
}

// Option is a functional option for configuring Engine instances.
type Option func(*Engine)

// WithBackoff overrides the transport-failure retry policy.
func WithBackoff(b wait.Backoff) Option {
	return func(e *Engine) {
		e.backoff = b
	}
}

// New creates an Engine over the given dynamic client.
func New(client dynamic.Interface, opts ...Option) *Engine {
	e := &Engine{
		client: client,
		backoff: wait.Backoff{
			Steps:    3,
			Duration: 500 * time.Millisecond,
			Factor:   2.0,
			Jitter:   0.1,
		},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Result reports the outcome of applying one manifest.
type Result struct {
	Key     manifest.Key               `json:"key" yaml:"key"`
	Object  *unstructured.Unstructured `json:"-" yaml:"-"`
	Changed bool                       `json:"changed" yaml:"changed"`
	Created bool                       `json:"created" yaml:"created"`
}

// Apply reconciles one manifest. Re-applying an identical manifest is a
// no-op reported as Changed=false.
func (e *Engine) Apply(ctx context.Context, m *manifest.Manifest) (*Result, error) {
	start := time.Now()

	gvr, err := m.GroupVersionResource()
	if err != nil {
		return nil, chiroperrors.Wrap(err, chiroperrors.ErrCodeValidation, "unsupported manifest")
	}
	key := m.Key()
	rc := e.client.Resource(gvr).Namespace(key.Namespace)

	var res *Result
	err = retry.OnError(e.backoff, isTransient, func() error {
		var applyErr error
		res, applyErr = e.applyOnce(ctx, rc, m)
		return applyErr
	})
	if err != nil {
		applyTotal.WithLabelValues("error").Inc()
		return nil, classify(err, key)
	}

	outcome := "unchanged"
	switch {
	case res.Created:
		outcome = "created"
	case res.Changed:
		outcome = "updated"
	}
	applyTotal.WithLabelValues(outcome).Inc()
	applyDuration.Observe(time.Since(start).Seconds())

	slog.Debug("applied manifest",
		slog.String("key", key.String()),
		slog.String("outcome", outcome))
	return res, nil
}

// ApplyAll reconciles every manifest in the store in deterministic order,
// stopping at the first error.
func (e *Engine) ApplyAll(ctx context.Context, store *manifest.Store) ([]*Result, error) {
	results := make([]*Result, 0, store.Count())
	for _, m := range store.List() {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res, err := e.Apply(ctx, m)
		if err != nil {
			return results, fmt.Errorf("apply %s: %w", m.Key(), err)
		}
		results = append(results, res)
	}
	return results, nil
}

func (e *Engine) applyOnce(ctx context.Context, rc dynamic.ResourceInterface, m *manifest.Manifest) (*Result, error) {
	key := m.Key()

	live, err := rc.Get(ctx, key.Name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		created, createErr := rc.Create(ctx, m.Object, metav1.CreateOptions{})
		if createErr != nil {
			return nil, createErr
		}
		return &Result{Key: key, Object: created, Changed: true, Created: true}, nil
	}
	if err != nil {
		return nil, err
	}

	if !differs(m.Object, live) {
		return &Result{Key: key, Object: live, Changed: false}, nil
	}

	// Full overwrite: desired spec and labels win; the live object's
	// resourceVersion is carried over for optimistic concurrency.
	desired := m.Object.DeepCopy()
	desired.SetResourceVersion(live.GetResourceVersion())
	desired.SetUID(live.GetUID())
	preserveServiceClusterIP(desired, live)

	updated, err := rc.Update(ctx, desired, metav1.UpdateOptions{})
	if err != nil {
		return nil, err
	}
	return &Result{Key: key, Object: updated, Changed: true}, nil
}

// differs compares the fields the engine owns: spec and labels. Status and
// server-populated metadata never count as drift.
func differs(desired, live *unstructured.Unstructured) bool {
	desiredSpec := desired.Object["spec"]
	liveSpec := normalizedLiveSpec(desired, live)
	if !apiequality.Semantic.DeepEqual(desiredSpec, liveSpec) {
		return true
	}

	// Live objects may carry extra labels (added by controllers); drift
	// means a desired label is missing or has the wrong value.
	liveLabels := live.GetLabels()
	for k, v := range desired.GetLabels() {
		if liveLabels[k] != v {
			return true
		}
	}
	return false
}

// normalizedLiveSpec strips server-defaulted Service fields the target set
// never specifies, so defaults do not read as perpetual drift.
func normalizedLiveSpec(desired, live *unstructured.Unstructured) any {
	liveSpec, ok := live.Object["spec"].(map[string]any)
	if !ok || desired.GetKind() != "Service" {
		return live.Object["spec"]
	}

	desiredSpec, _ := desired.Object["spec"].(map[string]any)
	out := make(map[string]any, len(liveSpec))
	for k, v := range liveSpec {
		if _, wanted := desiredSpec[k]; wanted {
			out[k] = v
		}
	}
	return out
}

// preserveServiceClusterIP keeps the allocated clusterIP on updates; the
// field is immutable once assigned.
func preserveServiceClusterIP(desired, live *unstructured.Unstructured) {
	if desired.GetKind() != "Service" {
		return
	}
	ip, found, _ := unstructured.NestedString(live.Object, "spec", "clusterIP")
	if !found || ip == "" {
		return
	}
	dip, _, _ := unstructured.NestedString(desired.Object, "spec", "clusterIP")
	if dip == "" {
		_ = unstructured.SetNestedField(desired.Object, ip, "spec", "clusterIP")
	}
}

// isTransient reports whether the API error is worth a bounded retry.
func isTransient(err error) bool {
	return apierrors.IsServerTimeout(err) ||
		apierrors.IsServiceUnavailable(err) ||
		apierrors.IsTimeout(err) ||
		apierrors.IsTooManyRequests(err) ||
		isConnectionError(err)
}

// isConnectionError matches errors that never reached the API server, which
// the status helpers above cannot classify. Context cancellation is not a
// transport failure and must not be retried.
func isConnectionError(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var status apierrors.APIStatus
	return !errors.As(err, &status)
}

// classify maps a terminal API error onto the structured taxonomy.
func classify(err error, key manifest.Key) error {
	switch {
	case apierrors.IsForbidden(err) || apierrors.IsUnauthorized(err):
		return chiroperrors.Wrap(err, chiroperrors.ErrCodeNotAuthorized,
			fmt.Sprintf("not permitted to apply %s", key))
	case apierrors.IsInvalid(err) || apierrors.IsBadRequest(err):
		return chiroperrors.Wrap(err, chiroperrors.ErrCodeInvalidSpec,
			fmt.Sprintf("manifest %s rejected by schema validation", key))
	case isTransient(err):
		return chiroperrors.Wrap(err, chiroperrors.ErrCodeClusterUnreachable,
			fmt.Sprintf("cluster unreachable applying %s", key))
	default:
		return chiroperrors.Wrap(err, chiroperrors.ErrCodeInternal,
			fmt.Sprintf("apply %s failed", key))
	}
}
