// Package manifest holds declarative target-state documents for cluster
// objects managed by chiropctl: the network policies, services, and
// ServiceMonitors of the power-monitoring stack.
//
// Manifests are built as typed Kubernetes objects and carried as
// unstructured documents so one apply path serves both built-in kinds and
// CRDs. Within a store, (kind, namespace, name) uniquely identifies a
// manifest.
package manifest

import (
	"fmt"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
)

// Key uniquely identifies a manifest within a target set.
type Key struct {
	Kind      string
	Namespace string
	Name      string
}

func (k Key) String() string {
	if k.Namespace == "" {
		return fmt.Sprintf("%s/%s", k.Kind, k.Name)
	}
	return fmt.Sprintf("%s/%s/%s", k.Kind, k.Namespace, k.Name)
}

// Manifest is one declarative target-state document.
type Manifest struct {
	Object *unstructured.Unstructured
}

// Key returns the identifying (kind, namespace, name) triple.
func (m *Manifest) Key() Key {
	return Key{
		Kind:      m.Object.GetKind(),
		Namespace: m.Object.GetNamespace(),
		Name:      m.Object.GetName(),
	}
}

// GroupVersionResource resolves the dynamic-client resource for this
// manifest's kind. Only kinds managed by chiropctl are mapped.
func (m *Manifest) GroupVersionResource() (schema.GroupVersionResource, error) {
	gvk := m.Object.GroupVersionKind()
	resource, ok := kindResources[gvk.Kind]
	if !ok {
		return schema.GroupVersionResource{}, fmt.Errorf("unsupported manifest kind %q", gvk.Kind)
	}
	return gvk.GroupVersion().WithResource(resource), nil
}

// kindResources maps managed kinds to their REST resource names. The tool
// deliberately supports a closed set; anything else is a configuration
// mistake worth surfacing early.
var kindResources = map[string]string{
	"NetworkPolicy":  "networkpolicies",
	"Service":        "services",
	"ServiceMonitor": "servicemonitors",
	"ConfigMap":      "configmaps",
}
