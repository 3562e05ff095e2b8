package apply

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/util/wait"
	dynamicfake "k8s.io/client-go/dynamic/fake"
	k8stesting "k8s.io/client-go/testing"

	chiroperrors "github.com/grid5000/chiropctl/pkg/errors"
	"github.com/grid5000/chiropctl/pkg/manifest"
)

func fastBackoff() Option {
	return WithBackoff(wait.Backoff{Steps: 1, Duration: time.Millisecond, Factor: 1.0})
}

func newFakeDynamic(objects ...runtime.Object) *dynamicfake.FakeDynamicClient {
	scheme := runtime.NewScheme()
	listKinds := map[schema.GroupVersionResource]string{
		{Version: "v1", Resource: "services"}:                                        "ServiceList",
		{Version: "v1", Resource: "configmaps"}:                                      "ConfigMapList",
		{Group: "networking.k8s.io", Version: "v1", Resource: "networkpolicies"}:     "NetworkPolicyList",
		{Group: "monitoring.coreos.com", Version: "v1", Resource: "servicemonitors"}: "ServiceMonitorList",
	}
	return dynamicfake.NewSimpleDynamicClientWithCustomListKinds(scheme, listKinds, objects...)
}

func serviceManifest(t *testing.T) *manifest.Manifest {
	t.Helper()
	m, err := manifest.KeplerService(manifest.StackConfig{
		Namespace:           "kepler",
		MonitoringNamespace: "monitoring",
	})
	assert.NoError(t, err)
	return m
}

func TestApplyCreatesMissingObject(t *testing.T) {
	engine := New(newFakeDynamic(), fastBackoff())

	res, err := engine.Apply(context.Background(), serviceManifest(t))
	assert.NoError(t, err)
	assert.True(t, res.Created)
	assert.True(t, res.Changed)
	assert.Equal(t, "kepler-exporter", res.Key.Name)
}

func TestApplyIsIdempotent(t *testing.T) {
	engine := New(newFakeDynamic(), fastBackoff())
	m := serviceManifest(t)

	first, err := engine.Apply(context.Background(), m)
	assert.NoError(t, err)
	assert.True(t, first.Changed)

	second, err := engine.Apply(context.Background(), m)
	assert.NoError(t, err)
	assert.False(t, second.Changed)
	assert.False(t, second.Created)
}

func TestApplyOverwritesDriftedSpec(t *testing.T) {
	client := newFakeDynamic()
	engine := New(client, fastBackoff())
	m := serviceManifest(t)
	ctx := context.Background()

	_, err := engine.Apply(ctx, m)
	assert.NoError(t, err)

	// Simulate out-of-band drift on the live object.
	gvr := schema.GroupVersionResource{Version: "v1", Resource: "services"}
	live, err := client.Resource(gvr).Namespace("kepler").Get(ctx, "kepler-exporter", metav1.GetOptions{})
	assert.NoError(t, err)
	assert.NoError(t, unstructured.SetNestedField(live.Object, "drifted", "spec", "selector", "app.kubernetes.io/name"))
	_, err = client.Resource(gvr).Namespace("kepler").Update(ctx, live, metav1.UpdateOptions{})
	assert.NoError(t, err)

	res, err := engine.Apply(ctx, m)
	assert.NoError(t, err)
	assert.True(t, res.Changed)
	assert.False(t, res.Created)

	repaired, err := client.Resource(gvr).Namespace("kepler").Get(ctx, "kepler-exporter", metav1.GetOptions{})
	assert.NoError(t, err)
	selector, _, _ := unstructured.NestedString(repaired.Object, "spec", "selector", "app.kubernetes.io/name")
	assert.Equal(t, "kepler-exporter", selector)
}

func TestApplyClassifiesForbidden(t *testing.T) {
	client := newFakeDynamic()
	client.PrependReactor("get", "services", func(k8stesting.Action) (bool, runtime.Object, error) {
		return true, nil, apierrors.NewForbidden(
			schema.GroupResource{Resource: "services"}, "kepler-exporter", nil)
	})
	engine := New(client, fastBackoff())

	_, err := engine.Apply(context.Background(), serviceManifest(t))
	assert.Error(t, err)
	assert.Equal(t, chiroperrors.ErrCodeNotAuthorized, chiroperrors.CodeOf(err))
}

func TestApplyClassifiesTransportFailure(t *testing.T) {
	client := newFakeDynamic()
	client.PrependReactor("get", "services", func(k8stesting.Action) (bool, runtime.Object, error) {
		return true, nil, apierrors.NewServerTimeout(
			schema.GroupResource{Resource: "services"}, "get", 1)
	})
	engine := New(client, fastBackoff())

	_, err := engine.Apply(context.Background(), serviceManifest(t))
	assert.Error(t, err)
	assert.Equal(t, chiroperrors.ErrCodeClusterUnreachable, chiroperrors.CodeOf(err))
}

func TestApplyAllIsOrderedAndCounted(t *testing.T) {
	engine := New(newFakeDynamic(), fastBackoff())
	store, err := manifest.DefaultStore(manifest.StackConfig{
		Namespace:           "kepler",
		MonitoringNamespace: "monitoring",
	})
	assert.NoError(t, err)

	results, err := engine.ApplyAll(context.Background(), store)
	assert.NoError(t, err)
	assert.Len(t, results, 4)

	report := NewReport(results)
	assert.Equal(t, 4, report.Changed)
	assert.Len(t, report.TableRows(), 4)

	// Second pass finds no drift anywhere.
	results, err = engine.ApplyAll(context.Background(), store)
	assert.NoError(t, err)
	assert.Equal(t, 0, NewReport(results).Changed)
}

func TestApplyAllStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	engine := New(newFakeDynamic(), fastBackoff())
	store, err := manifest.DefaultStore(manifest.StackConfig{Namespace: "kepler", MonitoringNamespace: "monitoring"})
	assert.NoError(t, err)

	_, err = engine.ApplyAll(ctx, store)
	assert.ErrorIs(t, err, context.Canceled)
}
