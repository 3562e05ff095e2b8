package diagnose

import (
	"context"
	"fmt"
	"strings"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
)

const (
	exporterSelector = "app.kubernetes.io/name=kepler-exporter"
	exporterService  = "kepler-exporter"
	scrapePolicyName = "allow-prometheus-to-kepler"
	serviceMonitor   = "kepler-exporter"
)

var serviceMonitorGVR = schema.GroupVersionResource{
	Group:    "monitoring.coreos.com",
	Version:  "v1",
	Resource: "servicemonitors",
}

// builtinChecks is the checklist for one deployed power-monitoring stack,
// in the order the operators walk it by hand: namespace, workload, service,
// scrape wiring, network path, then in-pod probes.
func builtinChecks() []Check {
	return []Check{
		{
			Order:       1,
			Name:        "namespace-exists",
			Description: "exporter namespace exists",
			Execute:     checkNamespace,
		},
		{
			Order:       2,
			Name:        "exporter-daemonset",
			Description: "exporter DaemonSet present with all nodes ready",
			Execute:     checkDaemonSet,
		},
		{
			Order:       3,
			Name:        "exporter-pods",
			Description: "at least one exporter pod is running",
			Execute:     checkPods,
		},
		{
			Order:       4,
			Name:        "service-endpoints",
			Description: "metrics Service has ready endpoints",
			Execute:     checkServiceEndpoints,
		},
		{
			Order:       5,
			Name:        "servicemonitor-wiring",
			Description: "ServiceMonitor exists and selects the metrics Service",
			Execute:     checkServiceMonitor,
		},
		{
			Order:       6,
			Name:        "networkpolicy-scrape-port",
			Description: "NetworkPolicy admits the scrape port",
			Execute:     checkNetworkPolicy,
		},
		{
			Order:       7,
			Name:        "metrics-probe",
			Description: "exporter serves metrics from inside the pod",
			Execute:     checkMetricsProbe,
		},
		{
			Order:       8,
			Name:        "exporter-logs",
			Description: "exporter logs are free of errors",
			Execute:     checkLogs,
		},
	}
}

func checkNamespace(ctx context.Context, rc *runContext) (Verdict, string, hintKey) {
	_, err := rc.clientset.CoreV1().Namespaces().Get(ctx, rc.cfg.Namespace, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return failf(hintNamespaceMismatch, "namespace %q not found", rc.cfg.Namespace)
	}
	if err != nil {
		return failf(hintNone, "cannot read namespace %q: %v", rc.cfg.Namespace, err)
	}
	return pass()
}

func checkDaemonSet(ctx context.Context, rc *runContext) (Verdict, string, hintKey) {
	dss, err := rc.clientset.AppsV1().DaemonSets(rc.cfg.Namespace).List(ctx, metav1.ListOptions{
		LabelSelector: exporterSelector,
	})
	if err != nil {
		return failf(hintNone, "cannot list daemonsets: %v", err)
	}
	if len(dss.Items) == 0 {
		return failf(hintLabelMismatch,
			"no DaemonSet matching %q in %s; is the exporter chart installed?",
			exporterSelector, rc.cfg.Namespace)
	}

	ds := dss.Items[0]
	if ds.Status.NumberReady < ds.Status.DesiredNumberScheduled {
		return failf(hintNone, "DaemonSet %s: %d/%d nodes ready",
			ds.Name, ds.Status.NumberReady, ds.Status.DesiredNumberScheduled)
	}
	return passf("DaemonSet %s: %d/%d nodes ready",
		ds.Name, ds.Status.NumberReady, ds.Status.DesiredNumberScheduled)
}

func checkPods(ctx context.Context, rc *runContext) (Verdict, string, hintKey) {
	pods, err := rc.clientset.CoreV1().Pods(rc.cfg.Namespace).List(ctx, metav1.ListOptions{
		LabelSelector: exporterSelector,
	})
	if err != nil {
		return failf(hintNone, "cannot list pods: %v", err)
	}
	if len(pods.Items) == 0 {
		return failf(hintLabelMismatch, "no pods matching %q in %s", exporterSelector, rc.cfg.Namespace)
	}

	running := 0
	for _, pod := range pods.Items {
		if pod.Status.Phase == corev1.PodRunning {
			running++
			if rc.exporterPod == "" {
				rc.exporterPod = pod.Name
			}
		}
	}
	if running == 0 {
		return failf(hintNone, "%d pods found, none running (first phase: %s)",
			len(pods.Items), pods.Items[0].Status.Phase)
	}
	return passf("%d/%d exporter pods running", running, len(pods.Items))
}

func checkServiceEndpoints(ctx context.Context, rc *runContext) (Verdict, string, hintKey) {
	svc, err := rc.clientset.CoreV1().Services(rc.cfg.Namespace).Get(ctx, exporterService, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return failf(hintNamespaceMismatch, "Service %s not found in %s", exporterService, rc.cfg.Namespace)
	}
	if err != nil {
		return failf(hintNone, "cannot read Service %s: %v", exporterService, err)
	}
	rc.serviceLabels = svc.Labels

	eps, err := rc.clientset.CoreV1().Endpoints(rc.cfg.Namespace).Get(ctx, exporterService, metav1.GetOptions{})
	if err != nil {
		return failf(hintNone, "cannot read Endpoints %s: %v", exporterService, err)
	}

	addresses := 0
	for _, subset := range eps.Subsets {
		addresses += len(subset.Addresses)
	}
	if addresses == 0 {
		return failf(hintLabelMismatch,
			"Service %s has no ready endpoints; its selector matches no running pod", exporterService)
	}
	return passf("%d endpoint addresses", addresses)
}

func checkServiceMonitor(ctx context.Context, rc *runContext) (Verdict, string, hintKey) {
	sm, err := rc.dynamic.Resource(serviceMonitorGVR).Namespace(rc.cfg.MonitoringNamespace).
		Get(ctx, serviceMonitor, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return failf(hintNamespaceMismatch,
			"ServiceMonitor %s not found in %s", serviceMonitor, rc.cfg.MonitoringNamespace)
	}
	if err != nil {
		return failf(hintNone, "cannot read ServiceMonitor: %v", err)
	}

	matchLabels, found, _ := unstructured.NestedStringMap(sm.Object, "spec", "selector", "matchLabels")
	if !found || len(matchLabels) == 0 {
		return failf(hintEmptySelector, "ServiceMonitor %s has an empty selector", serviceMonitor)
	}

	if rc.serviceLabels != nil {
		for k, v := range matchLabels {
			if rc.serviceLabels[k] != v {
				return failf(hintLabelMismatch,
					"ServiceMonitor selector %s=%s does not match Service labels", k, v)
			}
		}
	}

	names, found, _ := unstructured.NestedStringSlice(sm.Object, "spec", "namespaceSelector", "matchNames")
	if found && len(names) > 0 && !contains(names, rc.cfg.Namespace) {
		return failf(hintNamespaceMismatch,
			"ServiceMonitor namespaceSelector %v does not include %s", names, rc.cfg.Namespace)
	}

	return pass()
}

func checkNetworkPolicy(ctx context.Context, rc *runContext) (Verdict, string, hintKey) {
	pol, err := rc.clientset.NetworkingV1().NetworkPolicies(rc.cfg.Namespace).
		Get(ctx, scrapePolicyName, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		// No policy at all means nothing blocks the scrape; only a policy
		// with the wrong port does.
		pols, listErr := rc.clientset.NetworkingV1().NetworkPolicies(rc.cfg.Namespace).
			List(ctx, metav1.ListOptions{})
		if listErr == nil && len(pols.Items) == 0 {
			return passf("no NetworkPolicy in %s; traffic is unrestricted", rc.cfg.Namespace)
		}
		return failf(hintPortMismatch,
			"policies exist in %s but %s is missing; scrape traffic may be blocked",
			rc.cfg.Namespace, scrapePolicyName)
	}
	if err != nil {
		return failf(hintNone, "cannot read NetworkPolicy %s: %v", scrapePolicyName, err)
	}

	want := rc.cfg.metricsPort()
	for _, rule := range pol.Spec.Ingress {
		if len(rule.Ports) == 0 {
			return pass() // empty port list admits all ports
		}
		for _, p := range rule.Ports {
			if p.Port != nil && p.Port.IntValue() == int(want) {
				return pass()
			}
		}
	}
	return failf(hintPortMismatch,
		"NetworkPolicy %s does not admit port %d", scrapePolicyName, want)
}

func checkMetricsProbe(ctx context.Context, rc *runContext) (Verdict, string, hintKey) {
	if rc.exporterPod == "" {
		return skipf("no running exporter pod to probe")
	}

	cmd := []string{"sh", "-c",
		fmt.Sprintf("wget -q -O - http://localhost:%d/metrics 2>/dev/null || curl -s http://localhost:%d/metrics",
			rc.cfg.metricsPort(), rc.cfg.metricsPort())}

	out, err := execInPod(ctx, rc.clientset, rc.restConfig, rc.cfg.Namespace, rc.exporterPod, cmd)
	if err != nil {
		return failf(hintPortMismatch, "exec into %s failed: %v", rc.exporterPod, err)
	}
	if !strings.Contains(out, "kepler_") && !strings.Contains(out, "# HELP") {
		return failf(hintPortMismatch,
			"pod %s returned no metrics on port %d", rc.exporterPod, rc.cfg.metricsPort())
	}
	return passf("metrics served by %s", rc.exporterPod)
}

func checkLogs(ctx context.Context, rc *runContext) (Verdict, string, hintKey) {
	if rc.exporterPod == "" {
		return skipf("no running exporter pod; log scan not possible")
	}

	tail := rc.cfg.logTail()
	logs, err := podLogs(ctx, rc.clientset, rc.cfg.Namespace, rc.exporterPod, tail)
	if err != nil {
		return failf(hintNone, "cannot read logs of %s: %v", rc.exporterPod, err)
	}

	var suspicious []string
	for _, line := range strings.Split(logs, "\n") {
		lower := strings.ToLower(line)
		if strings.Contains(lower, "error") || strings.Contains(lower, "panic") {
			suspicious = append(suspicious, strings.TrimSpace(line))
		}
	}
	if len(suspicious) > 0 {
		return failf(hintNone, "%d suspicious log lines, first: %s",
			len(suspicious), truncate(suspicious[0], 160))
	}
	return passf("last %d log lines clean", tail)
}

func contains(xs []string, want string) bool {
	for _, x := range xs {
		if x == want {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
