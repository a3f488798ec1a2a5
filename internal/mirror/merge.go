// Package mirror merges parsed fragments into the desired Secret state for
// each (namespace, secret name) target and computes the content hash that
// drives create/update/skip decisions.
package mirror

import (
	"sort"

	"github.com/systmms/vaultmirror/internal/parser"
)

// Target identifies one output Secret.
type Target struct {
	Namespace string
	Name      string
}

// Less orders targets by namespace then name, the stable processing order for
// a pass.
func (t Target) Less(other Target) bool {
	if t.Namespace != other.Namespace {
		return t.Namespace < other.Namespace
	}
	return t.Name < other.Name
}

// DesiredSecret is the fully merged target state for one Secret.
type DesiredSecret struct {
	Target      Target
	Keys        map[string]string
	Labels      map[string]string
	Annotations map[string]string

	// ContentHash covers the canonical field sets of every contributing item,
	// not just the merged keys, so a metadata-only source edit still
	// invalidates it.
	ContentHash string

	// ItemIDs lists contributing items in merge order.
	ItemIDs []string
}

// Merge groups fragments by (namespace, secret name) and combines their keys.
// When two fragments supply the same key, the fragment from the later item in
// the stable pass order wins. The pass order is item ID order, imposed here by
// sorting each group, so the result is reproducible regardless of how the
// fragment list was assembled.
func Merge(fragments []parser.Fragment) map[Target]DesiredSecret {
	groups := make(map[Target][]parser.Fragment)
	for _, frag := range fragments {
		for _, ns := range frag.Namespaces {
			target := Target{Namespace: ns, Name: frag.SecretName}
			groups[target] = append(groups[target], frag)
		}
	}

	desired := make(map[Target]DesiredSecret, len(groups))
	for target, group := range groups {
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].ItemID < group[j].ItemID
		})

		d := DesiredSecret{
			Target:      target,
			Keys:        make(map[string]string),
			Labels:      make(map[string]string),
			Annotations: make(map[string]string),
		}
		canonicals := make([]string, 0, len(group))
		for _, frag := range group {
			for k, v := range frag.Keys {
				d.Keys[k] = v
			}
			for k, v := range frag.Labels {
				d.Labels[k] = v
			}
			for k, v := range frag.Annotations {
				d.Annotations[k] = v
			}
			d.ItemIDs = append(d.ItemIDs, frag.ItemID)
			canonicals = append(canonicals, frag.Canonical)
		}
		d.ContentHash = ContentHash(canonicals)
		desired[target] = d
	}
	return desired
}

// SortedTargets returns the targets of a desired set in stable
// (namespace, name) order.
func SortedTargets(desired map[Target]DesiredSecret) []Target {
	targets := make([]Target, 0, len(desired))
	for t := range desired {
		targets = append(targets, t)
	}
	sort.Slice(targets, func(i, j int) bool { return targets[i].Less(targets[j]) })
	return targets
}
