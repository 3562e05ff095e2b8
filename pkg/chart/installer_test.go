package chart

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"

	chiroperrors "github.com/grid5000/chiropctl/pkg/errors"
)

func TestBuildValuesParsesPaths(t *testing.T) {
	values, err := buildValues(map[string]string{
		"serviceMonitor.enabled":        "true",
		"image.tag":                     "release-0.7.12",
		"extraEnvVars.KEPLER_LOG_LEVEL": "1",
	})
	assert.NoError(t, err)

	sm, ok := values["serviceMonitor"].(map[string]any)
	assert.True(t, ok)
	assert.Equal(t, true, sm["enabled"])

	img, ok := values["image"].(map[string]any)
	assert.True(t, ok)
	assert.Equal(t, "release-0.7.12", img["tag"])
}

func TestBuildValuesEmpty(t *testing.T) {
	values, err := buildValues(nil)
	assert.NoError(t, err)
	assert.Empty(t, values)
}

func TestValuesEqual(t *testing.T) {
	a, err := buildValues(map[string]string{"a.b": "1", "c": "x"})
	assert.NoError(t, err)
	b, err := buildValues(map[string]string{"c": "x", "a.b": "1"})
	assert.NoError(t, err)
	c, err := buildValues(map[string]string{"a.b": "2", "c": "x"})
	assert.NoError(t, err)

	assert.True(t, valuesEqual(a, b))
	assert.False(t, valuesEqual(a, c))
}

func TestValidateImageOverrides(t *testing.T) {
	assert.NoError(t, validateImageOverrides(map[string]string{
		"image.repository": "quay.io/sustainable_computing_io/kepler",
		"other.value":      "whatever",
	}))

	err := validateImageOverrides(map[string]string{
		"image.repository": "quay.io/bad image!!",
	})
	assert.Error(t, err)
	assert.Equal(t, chiroperrors.ErrCodeValidation, chiroperrors.CodeOf(err))
}

func readyPod(name string) *corev1.Pod {
	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: "kepler",
			Labels:    map[string]string{"app.kubernetes.io/name": "kepler-exporter"},
		},
		Status: corev1.PodStatus{
			Phase: corev1.PodRunning,
			Conditions: []corev1.PodCondition{
				{Type: corev1.PodReady, Status: corev1.ConditionTrue},
			},
		},
	}
}

func TestPodIsReady(t *testing.T) {
	assert.True(t, podIsReady(readyPod("a")))

	pending := readyPod("b")
	pending.Status.Phase = corev1.PodPending
	assert.False(t, podIsReady(pending))

	notReady := readyPod("c")
	notReady.Status.Conditions[0].Status = corev1.ConditionFalse
	assert.False(t, podIsReady(notReady))

	noCondition := readyPod("d")
	noCondition.Status.Conditions = nil
	assert.False(t, podIsReady(noCondition))
}

func TestWaitForReadySucceeds(t *testing.T) {
	clientset := fake.NewClientset(readyPod("kepler-exporter-abc"))
	installer := New("", clientset, WithPollInterval(time.Millisecond))

	err := installer.WaitForReady(context.Background(), "kepler",
		"app.kubernetes.io/name=kepler-exporter", time.Second)
	assert.NoError(t, err)
}

func TestWaitForReadyTimesOutWithoutPods(t *testing.T) {
	clientset := fake.NewClientset()
	installer := New("", clientset, WithPollInterval(time.Millisecond))

	err := installer.WaitForReady(context.Background(), "kepler",
		"app.kubernetes.io/name=kepler-exporter", 50*time.Millisecond)
	assert.Error(t, err)
	assert.Equal(t, chiroperrors.ErrCodeReadinessTimeout, chiroperrors.CodeOf(err))
	assert.Contains(t, err.Error(), "no pods")
}

func TestWaitForReadyTimesOutOnUnreadyPod(t *testing.T) {
	unready := readyPod("kepler-exporter-xyz")
	unready.Status.Conditions[0].Status = corev1.ConditionFalse

	clientset := fake.NewClientset(unready)
	installer := New("", clientset, WithPollInterval(time.Millisecond))

	err := installer.WaitForReady(context.Background(), "kepler",
		"app.kubernetes.io/name=kepler-exporter", 50*time.Millisecond)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "0/1 ready")
}

func TestWaitForReadyHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	installer := New("", fake.NewClientset(), WithPollInterval(time.Millisecond))
	err := installer.WaitForReady(ctx, "kepler", "app.kubernetes.io/name=kepler-exporter", time.Second)
	assert.Error(t, err)
	assert.NotEqual(t, chiroperrors.ErrCodeReadinessTimeout, chiroperrors.CodeOf(err))
}

func TestReleaseReadyTimeoutDefault(t *testing.T) {
	assert.Equal(t, 5*time.Minute, Release{}.readyTimeout())
	assert.Equal(t, time.Minute, Release{ReadyTimeout: time.Minute}.readyTimeout())
}
