package manifest

import (
	"fmt"

	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/util/intstr"
	"k8s.io/utils/ptr"
)

// Default ports of the monitoring stack.
const (
	KeplerMetricsPort = 9102
	PrometheusPort    = 9090
	GrafanaPort       = 3000
)

// Labels shared by the stack objects.
const (
	keplerAppLabel     = "kepler-exporter"
	prometheusAppLabel = "prometheus"
)

// StackConfig parameterizes the built-in target set for one deployment.
type StackConfig struct {
	// Namespace hosting the Kepler exporter.
	Namespace string

	// MonitoringNamespace hosting Prometheus and Grafana.
	MonitoringNamespace string

	// MetricsPort the exporter serves on. Zero means KeplerMetricsPort.
	MetricsPort int32

	// ScrapeInterval for the ServiceMonitor (Prometheus duration string).
	// Empty means "30s".
	ScrapeInterval string

	// OpenExternal adds the permissive 0.0.0.0/0 ingress/egress peers used
	// on Grid'5000. A lab default, not a production posture.
	OpenExternal bool
}

func (c StackConfig) metricsPort() int32 {
	if c.MetricsPort == 0 {
		return KeplerMetricsPort
	}
	return c.MetricsPort
}

func (c StackConfig) scrapeInterval() string {
	if c.ScrapeInterval == "" {
		return "30s"
	}
	return c.ScrapeInterval
}

// FromTyped converts a typed Kubernetes object into a Manifest. The object's
// TypeMeta must be populated.
func FromTyped(obj runtime.Object) (*Manifest, error) {
	content, err := runtime.DefaultUnstructuredConverter.ToUnstructured(obj)
	if err != nil {
		return nil, fmt.Errorf("failed to convert object to unstructured: %w", err)
	}
	u := &unstructured.Unstructured{Object: content}
	if u.GetKind() == "" {
		return nil, fmt.Errorf("object has no kind set")
	}
	return &Manifest{Object: u}, nil
}

// KeplerService builds the metrics Service fronting the exporter DaemonSet.
func KeplerService(cfg StackConfig) (*Manifest, error) {
	svc := &corev1.Service{
		TypeMeta: metav1.TypeMeta{
			APIVersion: "v1",
			Kind:       "Service",
		},
		ObjectMeta: metav1.ObjectMeta{
			Name:      "kepler-exporter",
			Namespace: cfg.Namespace,
			Labels: map[string]string{
				"app.kubernetes.io/name":      keplerAppLabel,
				"app.kubernetes.io/component": "exporter",
			},
		},
		Spec: corev1.ServiceSpec{
			ClusterIP: corev1.ClusterIPNone,
			Selector: map[string]string{
				"app.kubernetes.io/name": keplerAppLabel,
			},
			Ports: []corev1.ServicePort{
				{
					Name:       "metrics",
					Port:       cfg.metricsPort(),
					TargetPort: intstr.FromInt32(cfg.metricsPort()),
					Protocol:   corev1.ProtocolTCP,
				},
			},
		},
	}
	return FromTyped(svc)
}

// KeplerNetworkPolicy builds the policy admitting Prometheus scrapes into
// the exporter namespace. With OpenExternal it also admits any external
// peer, matching the Grid'5000 testbed scripts.
func KeplerNetworkPolicy(cfg StackConfig) (*Manifest, error) {
	metricsPort := intstr.FromInt32(cfg.metricsPort())

	ingressPeers := []networkingv1.NetworkPolicyPeer{
		{
			NamespaceSelector: &metav1.LabelSelector{
				MatchLabels: map[string]string{
					"kubernetes.io/metadata.name": cfg.MonitoringNamespace,
				},
			},
			PodSelector: &metav1.LabelSelector{
				MatchLabels: map[string]string{
					"app.kubernetes.io/name": prometheusAppLabel,
				},
			},
		},
	}
	if cfg.OpenExternal {
		ingressPeers = append(ingressPeers, networkingv1.NetworkPolicyPeer{
			IPBlock: &networkingv1.IPBlock{CIDR: "0.0.0.0/0"},
		})
	}

	pol := &networkingv1.NetworkPolicy{
		TypeMeta: metav1.TypeMeta{
			APIVersion: "networking.k8s.io/v1",
			Kind:       "NetworkPolicy",
		},
		ObjectMeta: metav1.ObjectMeta{
			Name:      "allow-prometheus-to-kepler",
			Namespace: cfg.Namespace,
			Labels: map[string]string{
				"app.kubernetes.io/part-of": "chirop",
			},
		},
		Spec: networkingv1.NetworkPolicySpec{
			PodSelector: metav1.LabelSelector{
				MatchLabels: map[string]string{
					"app.kubernetes.io/name": keplerAppLabel,
				},
			},
			PolicyTypes: []networkingv1.PolicyType{
				networkingv1.PolicyTypeIngress,
				networkingv1.PolicyTypeEgress,
			},
			Ingress: []networkingv1.NetworkPolicyIngressRule{
				{
					From: ingressPeers,
					Ports: []networkingv1.NetworkPolicyPort{
						{Protocol: ptr.To(corev1.ProtocolTCP), Port: &metricsPort},
					},
				},
			},
			// An empty egress rule allows all egress. The exporter needs
			// unrestricted egress to reach the kubelet and node sensors.
			Egress: []networkingv1.NetworkPolicyEgressRule{{}},
		},
	}
	return FromTyped(pol)
}

// GrafanaNetworkPolicy builds the policy exposing the Grafana dashboard to
// external peers, as the testbed scripts do for interactive access.
func GrafanaNetworkPolicy(cfg StackConfig) (*Manifest, error) {
	grafanaPort := intstr.FromInt32(GrafanaPort)

	peers := []networkingv1.NetworkPolicyPeer{
		{
			NamespaceSelector: &metav1.LabelSelector{
				MatchLabels: map[string]string{
					"kubernetes.io/metadata.name": cfg.MonitoringNamespace,
				},
			},
		},
	}
	if cfg.OpenExternal {
		peers = append(peers, networkingv1.NetworkPolicyPeer{
			IPBlock: &networkingv1.IPBlock{CIDR: "0.0.0.0/0"},
		})
	}

	pol := &networkingv1.NetworkPolicy{
		TypeMeta: metav1.TypeMeta{
			APIVersion: "networking.k8s.io/v1",
			Kind:       "NetworkPolicy",
		},
		ObjectMeta: metav1.ObjectMeta{
			Name:      "allow-grafana-external",
			Namespace: cfg.MonitoringNamespace,
			Labels: map[string]string{
				"app.kubernetes.io/part-of": "chirop",
			},
		},
		Spec: networkingv1.NetworkPolicySpec{
			PodSelector: metav1.LabelSelector{
				MatchLabels: map[string]string{
					"app.kubernetes.io/name": "grafana",
				},
			},
			PolicyTypes: []networkingv1.PolicyType{
				networkingv1.PolicyTypeIngress,
				networkingv1.PolicyTypeEgress,
			},
			Ingress: []networkingv1.NetworkPolicyIngressRule{
				{
					From: peers,
					Ports: []networkingv1.NetworkPolicyPort{
						{Protocol: ptr.To(corev1.ProtocolTCP), Port: &grafanaPort},
					},
				},
			},
			Egress: []networkingv1.NetworkPolicyEgressRule{{}},
		},
	}
	return FromTyped(pol)
}

// KeplerServiceMonitor builds the ServiceMonitor pointing Prometheus at the
// exporter Service. ServiceMonitor is a CRD, so it is built directly as an
// unstructured document.
func KeplerServiceMonitor(cfg StackConfig) (*Manifest, error) {
	u := &unstructured.Unstructured{
		Object: map[string]any{
			"apiVersion": "monitoring.coreos.com/v1",
			"kind":       "ServiceMonitor",
			"metadata": map[string]any{
				"name":      "kepler-exporter",
				"namespace": cfg.MonitoringNamespace,
				"labels": map[string]any{
					// The Prometheus operator discovers ServiceMonitors by
					// release label; the stack chart installs under
					// "prometheus" on the testbed.
					"release":                   "prometheus",
					"app.kubernetes.io/part-of": "chirop",
				},
			},
			"spec": map[string]any{
				"namespaceSelector": map[string]any{
					"matchNames": []any{cfg.Namespace},
				},
				"selector": map[string]any{
					"matchLabels": map[string]any{
						"app.kubernetes.io/name": keplerAppLabel,
					},
				},
				"endpoints": []any{
					map[string]any{
						"port":     "metrics",
						"interval": cfg.scrapeInterval(),
						"scheme":   "http",
						"relabelings": []any{
							map[string]any{
								"action":       "replace",
								"regex":        "(.*)",
								"replacement":  "$1",
								"sourceLabels": []any{"__meta_kubernetes_pod_node_name"},
								"targetLabel":  "instance",
							},
						},
					},
				},
			},
		},
	}
	return &Manifest{Object: u}, nil
}
