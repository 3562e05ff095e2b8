package chart

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	chiroperrors "github.com/grid5000/chiropctl/pkg/errors"
)

// WaitForReady polls until every pod matching selector reports Ready, at
// least one pod exists, or the timeout elapses. Polls are throttled by a
// rate limiter so tight intervals cannot hammer the API server. On timeout
// the release stays applied; the caller gets ReadinessTimeout.
func (i *Installer) WaitForReady(ctx context.Context, namespace, selector string, timeout time.Duration) error {
	if i.clientset == nil {
		return chiroperrors.New(chiroperrors.ErrCodeInternal, "readiness wait requires a kubernetes client")
	}

	deadline := time.Now().Add(timeout)
	waitCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	limiter := rate.NewLimiter(rate.Every(i.pollInterval), 1)

	var lastState string
	for {
		if err := limiter.Wait(waitCtx); err != nil {
			if waitCtx.Err() != nil && ctx.Err() == nil {
				return chiroperrors.Newf(chiroperrors.ErrCodeReadinessTimeout,
					"pods matching %q in %s not ready after %s (last state: %s)",
					selector, namespace, timeout, lastState)
			}
			return err
		}

		ready, state, err := i.podsReady(waitCtx, namespace, selector)
		if err != nil {
			// Transient list failures just consume a poll slot; the
			// deadline still bounds the wait.
			slog.Debug("readiness poll failed", slog.String("error", err.Error()))
			continue
		}
		lastState = state
		if ready {
			slog.Info("pods ready",
				slog.String("namespace", namespace),
				slog.String("selector", selector))
			return nil
		}
		slog.Debug("waiting for pods",
			slog.String("selector", selector),
			slog.String("state", state))
	}
}

func (i *Installer) podsReady(ctx context.Context, namespace, selector string) (bool, string, error) {
	pods, err := i.clientset.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{
		LabelSelector: selector,
	})
	if err != nil {
		return false, "", err
	}
	if len(pods.Items) == 0 {
		return false, "no pods", nil
	}

	ready := 0
	for _, pod := range pods.Items {
		if podIsReady(&pod) {
			ready++
		}
	}
	return ready == len(pods.Items), fmt.Sprintf("%d/%d ready", ready, len(pods.Items)), nil
}

func podIsReady(pod *corev1.Pod) bool {
	if pod.Status.Phase != corev1.PodRunning {
		return false
	}
	for _, cond := range pod.Status.Conditions {
		if cond.Type == corev1.PodReady {
			return cond.Status == corev1.ConditionTrue
		}
	}
	return false
}
