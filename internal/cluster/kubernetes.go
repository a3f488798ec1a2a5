package cluster

import (
	"context"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// KubernetesGateway implements Gateway against a real cluster through
// client-go.
type KubernetesGateway struct {
	name      string
	clientset kubernetes.Interface
}

// NewKubernetesGateway builds a gateway from a kubeconfig path and context.
// An empty kubeconfig path falls back to in-cluster configuration, then to
// the default loading rules (~/.kube/config, KUBECONFIG).
func NewKubernetesGateway(name, kubeconfig, kubeContext string) (*KubernetesGateway, error) {
	config, err := buildRestConfig(kubeconfig, kubeContext)
	if err != nil {
		return nil, fmt.Errorf("failed to load cluster config for %q: %w", name, err)
	}

	clientset, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create client for cluster %q: %w", name, err)
	}

	return &KubernetesGateway{name: name, clientset: clientset}, nil
}

// NewKubernetesGatewayWithClient wraps an existing clientset (used in tests
// with the client-go fake).
func NewKubernetesGatewayWithClient(name string, clientset kubernetes.Interface) *KubernetesGateway {
	return &KubernetesGateway{name: name, clientset: clientset}
}

func buildRestConfig(kubeconfig, kubeContext string) (*rest.Config, error) {
	if kubeconfig == "" {
		if config, err := rest.InClusterConfig(); err == nil {
			return config, nil
		}
	}

	rules := clientcmd.NewDefaultClientConfigLoadingRules()
	if kubeconfig != "" {
		rules.ExplicitPath = kubeconfig
	}
	overrides := &clientcmd.ConfigOverrides{}
	if kubeContext != "" {
		overrides.CurrentContext = kubeContext
	}
	return clientcmd.NewNonInteractiveDeferredLoadingClientConfig(rules, overrides).ClientConfig()
}

// Name returns the configured cluster name
func (g *KubernetesGateway) Name() string {
	return g.name
}

// GetSecret fetches one Secret
func (g *KubernetesGateway) GetSecret(ctx context.Context, namespace, name string) (*Secret, error) {
	obj, err := g.clientset.CoreV1().Secrets(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		if apierrors.IsNotFound(err) {
			return nil, NotFoundError{Kind: "secret", Namespace: namespace, Name: name}
		}
		return nil, err
	}
	sec := fromCoreSecret(obj)
	return &sec, nil
}

// ListSecrets lists Secrets in a namespace matching the label selector
func (g *KubernetesGateway) ListSecrets(ctx context.Context, namespace, labelSelector string) ([]Secret, error) {
	list, err := g.clientset.CoreV1().Secrets(namespace).List(ctx, metav1.ListOptions{
		LabelSelector: labelSelector,
	})
	if err != nil {
		return nil, err
	}
	secrets := make([]Secret, 0, len(list.Items))
	for i := range list.Items {
		secrets = append(secrets, fromCoreSecret(&list.Items[i]))
	}
	return secrets, nil
}

// ListNamespaces returns the names of all namespaces in the cluster
func (g *KubernetesGateway) ListNamespaces(ctx context.Context) ([]string, error) {
	list, err := g.clientset.CoreV1().Namespaces().List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(list.Items))
	for _, ns := range list.Items {
		names = append(names, ns.Name)
	}
	return names, nil
}

// CreateSecret creates a Secret
func (g *KubernetesGateway) CreateSecret(ctx context.Context, secret Secret) error {
	_, err := g.clientset.CoreV1().Secrets(secret.Namespace).Create(ctx, toCoreSecret(secret), metav1.CreateOptions{})
	return err
}

// UpdateSecret replaces a Secret's data and metadata
func (g *KubernetesGateway) UpdateSecret(ctx context.Context, secret Secret) error {
	_, err := g.clientset.CoreV1().Secrets(secret.Namespace).Update(ctx, toCoreSecret(secret), metav1.UpdateOptions{})
	if apierrors.IsNotFound(err) {
		return NotFoundError{Kind: "secret", Namespace: secret.Namespace, Name: secret.Name}
	}
	return err
}

// DeleteSecret removes a Secret
func (g *KubernetesGateway) DeleteSecret(ctx context.Context, namespace, name string) error {
	err := g.clientset.CoreV1().Secrets(namespace).Delete(ctx, name, metav1.DeleteOptions{})
	if apierrors.IsNotFound(err) {
		return NotFoundError{Kind: "secret", Namespace: namespace, Name: name}
	}
	return err
}

func fromCoreSecret(obj *corev1.Secret) Secret {
	data := make(map[string][]byte, len(obj.Data))
	for k, v := range obj.Data {
		data[k] = v
	}
	return Secret{
		Namespace:   obj.Namespace,
		Name:        obj.Name,
		Data:        data,
		Labels:      copyMap(obj.Labels),
		Annotations: copyMap(obj.Annotations),
	}
}

func toCoreSecret(secret Secret) *corev1.Secret {
	return &corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{
			Namespace:   secret.Namespace,
			Name:        secret.Name,
			Labels:      copyMap(secret.Labels),
			Annotations: copyMap(secret.Annotations),
		},
		Type: corev1.SecretTypeOpaque,
		Data: secret.Data,
	}
}

func copyMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
