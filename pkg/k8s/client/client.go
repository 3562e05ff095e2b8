// Package client builds Kubernetes clients from the usual configuration
// sources (explicit path, KUBECONFIG, ~/.kube/config, in-cluster).
package client

import (
	"fmt"
	"os"
	"path/filepath"

	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/client-go/util/homedir"
)

// Clients bundles the typed and dynamic clients sharing one rest.Config.
type Clients struct {
	ClientSet  kubernetes.Interface
	Dynamic    dynamic.Interface
	RestConfig *rest.Config
}

// New creates clients from the given kubeconfig path. An empty path falls
// back to KUBECONFIG, then ~/.kube/config, then in-cluster configuration.
func New(kubeconfig string) (*Clients, error) {
	config, err := BuildRestConfig(kubeconfig)
	if err != nil {
		return nil, err
	}

	clientset, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create kubernetes client: %w", err)
	}

	dyn, err := dynamic.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create dynamic client: %w", err)
	}

	return &Clients{
		ClientSet:  clientset,
		Dynamic:    dyn,
		RestConfig: config,
	}, nil
}

// BuildRestConfig resolves a rest.Config from the given kubeconfig path,
// applying the standard discovery order when the path is empty.
func BuildRestConfig(kubeconfig string) (*rest.Config, error) {
	if kubeconfig == "" {
		kubeconfig = os.Getenv("KUBECONFIG")

		if kubeconfig == "" {
			candidate := filepath.Join(homedir.HomeDir(), ".kube", "config")
			if _, err := os.Stat(candidate); err == nil {
				kubeconfig = candidate
			}
		}
	}

	config, err := clientcmd.BuildConfigFromFlags("", kubeconfig)
	if err != nil {
		return nil, fmt.Errorf("failed to build kube config: %w", err)
	}
	return config, nil
}
