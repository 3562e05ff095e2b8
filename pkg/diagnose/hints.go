package diagnose

// hintKey names a known misconfiguration cause.
type hintKey string

const (
	hintNone              hintKey = ""
	hintLabelMismatch     hintKey = "label-mismatch"
	hintNamespaceMismatch hintKey = "namespace-mismatch"
	hintEmptySelector     hintKey = "empty-selector"
	hintPortMismatch      hintKey = "port-mismatch"
)

// hints maps failure causes to remediation guidance. These mirror the
// misconfigurations seen most often when wiring Prometheus to the exporter
// on the testbed.
var hints = map[hintKey]string{
	hintLabelMismatch: "compare the selector labels against the pod/service labels " +
		"(kubectl get pods --show-labels); the chart's fullnameOverride changes them",
	hintNamespaceMismatch: "verify the object was created in the namespace the stack expects; " +
		"check --namespace and --monitoring-namespace flags against the installed releases",
	hintEmptySelector: "an empty selector matches nothing here; set spec.selector.matchLabels " +
		"to the metrics Service labels",
	hintPortMismatch: "check that the exporter port, Service targetPort, ServiceMonitor endpoint " +
		"port and NetworkPolicy port all agree (default 9102)",
}

// hintFor resolves a hint key to its guidance text.
func hintFor(key hintKey) string {
	return hints[key]
}
