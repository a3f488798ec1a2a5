// Package cluster provides the gateway to Kubernetes Secret objects in the
// destination clusters and the live snapshot the reconciler diffs against.
package cluster

import (
	"context"
	"fmt"
)

const (
	// OwnershipLabel marks Secrets managed by this system. Only Secrets
	// carrying it are ever deleted or overwritten during orphan cleanup.
	OwnershipLabel = "app.kubernetes.io/managed-by"

	// OwnershipValue is the value of the ownership label.
	OwnershipValue = "vaultmirror"

	// HashAnnotation stores the content hash of the last applied desired
	// state; an equal hash means the write can be skipped.
	HashAnnotation = "vaultmirror.systmms.com/content-hash"
)

// Secret is the gateway's view of one Secret object: opaque byte data plus
// label and annotation maps.
type Secret struct {
	Namespace   string
	Name        string
	Data        map[string][]byte
	Labels      map[string]string
	Annotations map[string]string
}

// Managed reports whether the secret carries this system's ownership label.
func (s Secret) Managed() bool {
	return s.Labels[OwnershipLabel] == OwnershipValue
}

// ContentHash returns the stored hash annotation, or "" if absent.
func (s Secret) ContentHash() string {
	return s.Annotations[HashAnnotation]
}

// NotFoundError reports a missing Secret or namespace.
type NotFoundError struct {
	Kind      string // "secret" or "namespace"
	Namespace string
	Name      string
}

func (e NotFoundError) Error() string {
	if e.Kind == "namespace" {
		return fmt.Sprintf("namespace %q not found", e.Namespace)
	}
	return fmt.Sprintf("secret %s/%s not found", e.Namespace, e.Name)
}

// IsNotFound reports whether err is a gateway NotFoundError.
func IsNotFound(err error) bool {
	_, ok := err.(NotFoundError)
	return ok
}

// Gateway is the thin contract to Secret objects in one cluster.
type Gateway interface {
	// Name returns the configured cluster name.
	Name() string

	// GetSecret fetches one Secret; returns NotFoundError if absent.
	GetSecret(ctx context.Context, namespace, name string) (*Secret, error)

	// ListSecrets lists Secrets in a namespace matching the label selector
	// (empty selector lists all).
	ListSecrets(ctx context.Context, namespace, labelSelector string) ([]Secret, error)

	// ListNamespaces returns the names of all namespaces in the cluster.
	ListNamespaces(ctx context.Context) ([]string, error)

	// CreateSecret creates a Secret.
	CreateSecret(ctx context.Context, secret Secret) error

	// UpdateSecret replaces a Secret's data and metadata.
	UpdateSecret(ctx context.Context, secret Secret) error

	// DeleteSecret removes a Secret; returns NotFoundError if absent.
	DeleteSecret(ctx context.Context, namespace, name string) error
}

// Snapshot is the live cluster state read once at the start of the diff
// phase. Reconciliation must never run without one: inferring orphans from a
// partial view would make everything currently present look orphaned.
type Snapshot struct {
	Cluster    string
	Namespaces map[string]bool
	// Secrets indexes managed Secrets by namespace then name.
	Secrets map[string]map[string]Secret
}

// HasNamespace reports whether the namespace existed at snapshot time.
func (s *Snapshot) HasNamespace(namespace string) bool {
	return s.Namespaces[namespace]
}

// Lookup returns the managed live Secret for a target, or nil.
func (s *Snapshot) Lookup(namespace, name string) *Secret {
	if byName, ok := s.Secrets[namespace]; ok {
		if sec, ok := byName[name]; ok {
			return &sec
		}
	}
	return nil
}

// TakeSnapshot lists namespaces and this system's managed Secrets through the
// gateway. A failure here fails the whole pass; there is no trustworthy diff
// baseline without it.
func TakeSnapshot(ctx context.Context, gw Gateway) (*Snapshot, error) {
	namespaces, err := gw.ListNamespaces(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list namespaces: %w", err)
	}

	snap := &Snapshot{
		Cluster:    gw.Name(),
		Namespaces: make(map[string]bool, len(namespaces)),
		Secrets:    make(map[string]map[string]Secret),
	}
	selector := OwnershipLabel + "=" + OwnershipValue
	for _, ns := range namespaces {
		snap.Namespaces[ns] = true
		secrets, err := gw.ListSecrets(ctx, ns, selector)
		if err != nil {
			return nil, fmt.Errorf("failed to list secrets in %s: %w", ns, err)
		}
		for _, sec := range secrets {
			if snap.Secrets[ns] == nil {
				snap.Secrets[ns] = make(map[string]Secret)
			}
			snap.Secrets[ns][sec.Name] = sec
		}
	}
	return snap, nil
}
