package cluster

import (
	"context"
	"strings"
	"sync"
)

// FakeGateway is an in-memory Gateway used by reconciler and coordinator
// tests. It is thread-safe and records write operations in order.
type FakeGateway struct {
	mu         sync.Mutex
	name       string
	namespaces map[string]bool
	secrets    map[string]map[string]Secret

	// Ops records every mutating call as "create ns/name" etc.
	Ops []string

	// FailOn makes a mutating call for the given "ns/name" fail (tests
	// exercise per-target failure isolation with this).
	FailOn map[string]error
}

// NewFakeGateway creates a fake gateway with the given namespaces
func NewFakeGateway(name string, namespaces ...string) *FakeGateway {
	nsSet := make(map[string]bool, len(namespaces))
	for _, ns := range namespaces {
		nsSet[ns] = true
	}
	return &FakeGateway{
		name:       name,
		namespaces: nsSet,
		secrets:    make(map[string]map[string]Secret),
		FailOn:     make(map[string]error),
	}
}

// Name returns the cluster name
func (f *FakeGateway) Name() string { return f.name }

// Seed places a secret directly into the fake cluster without recording an op
func (f *FakeGateway) Seed(secret Secret) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.put(secret)
}

// GetSecret fetches one Secret
func (f *FakeGateway) GetSecret(ctx context.Context, namespace, name string) (*Secret, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if byName, ok := f.secrets[namespace]; ok {
		if sec, ok := byName[name]; ok {
			return &sec, nil
		}
	}
	return nil, NotFoundError{Kind: "secret", Namespace: namespace, Name: name}
}

// ListSecrets lists Secrets matching a labelSelector of the form "key=value"
func (f *FakeGateway) ListSecrets(ctx context.Context, namespace, labelSelector string) ([]Secret, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var key, value string
	if labelSelector != "" {
		parts := strings.SplitN(labelSelector, "=", 2)
		key = parts[0]
		if len(parts) == 2 {
			value = parts[1]
		}
	}

	var out []Secret
	for _, sec := range f.secrets[namespace] {
		if key != "" && sec.Labels[key] != value {
			continue
		}
		out = append(out, sec)
	}
	return out, nil
}

// ListNamespaces returns the fake cluster's namespaces
func (f *FakeGateway) ListNamespaces(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for ns := range f.namespaces {
		out = append(out, ns)
	}
	return out, nil
}

// CreateSecret creates a Secret
func (f *FakeGateway) CreateSecret(ctx context.Context, secret Secret) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure(secret.Namespace, secret.Name); err != nil {
		return err
	}
	f.Ops = append(f.Ops, "create "+secret.Namespace+"/"+secret.Name)
	f.put(secret)
	return nil
}

// UpdateSecret replaces a Secret
func (f *FakeGateway) UpdateSecret(ctx context.Context, secret Secret) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure(secret.Namespace, secret.Name); err != nil {
		return err
	}
	f.Ops = append(f.Ops, "update "+secret.Namespace+"/"+secret.Name)
	f.put(secret)
	return nil
}

// DeleteSecret removes a Secret
func (f *FakeGateway) DeleteSecret(ctx context.Context, namespace, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure(namespace, name); err != nil {
		return err
	}
	if byName, ok := f.secrets[namespace]; ok {
		if _, ok := byName[name]; ok {
			delete(byName, name)
			f.Ops = append(f.Ops, "delete "+namespace+"/"+name)
			return nil
		}
	}
	return NotFoundError{Kind: "secret", Namespace: namespace, Name: name}
}

func (f *FakeGateway) put(secret Secret) {
	if f.secrets[secret.Namespace] == nil {
		f.secrets[secret.Namespace] = make(map[string]Secret)
	}
	f.secrets[secret.Namespace][secret.Name] = secret
}

func (f *FakeGateway) failure(namespace, name string) error {
	if err, ok := f.FailOn[namespace+"/"+name]; ok {
		return err
	}
	return nil
}
