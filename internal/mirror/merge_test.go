package mirror

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/systmms/vaultmirror/internal/parser"
)

func frag(itemID, name string, namespaces []string, keys map[string]string) parser.Fragment {
	return parser.Fragment{
		ItemID:     itemID,
		ItemName:   itemID,
		Namespaces: namespaces,
		SecretName: name,
		Keys:       keys,
		Canonical:  "canonical-" + itemID,
	}
}

func TestMergeGroupsByTarget(t *testing.T) {
	t.Parallel()

	fragments := []parser.Fragment{
		frag("a", "db", []string{"prod", "staging"}, map[string]string{"password": "pw"}),
		frag("b", "api", []string{"prod"}, map[string]string{"token": "tk"}),
	}

	desired := Merge(fragments)
	require.Len(t, desired, 3)

	prodDB := desired[Target{Namespace: "prod", Name: "db"}]
	assert.Equal(t, "pw", prodDB.Keys["password"])
	stagingDB := desired[Target{Namespace: "staging", Name: "db"}]
	assert.Equal(t, "pw", stagingDB.Keys["password"])
	prodAPI := desired[Target{Namespace: "prod", Name: "api"}]
	assert.Equal(t, "tk", prodAPI.Keys["token"])
}

func TestMergeLaterItemWins(t *testing.T) {
	t.Parallel()

	first := frag("item-a", "shared", []string{"prod"}, map[string]string{"key": "from-a", "only_a": "1"})
	second := frag("item-b", "shared", []string{"prod"}, map[string]string{"key": "from-b", "only_b": "2"})

	// Fragment order in the input must not matter, only item ID order does.
	forward := Merge([]parser.Fragment{first, second})
	reversed := Merge([]parser.Fragment{second, first})

	for _, desired := range []map[Target]DesiredSecret{forward, reversed} {
		d := desired[Target{Namespace: "prod", Name: "shared"}]
		assert.Equal(t, "from-b", d.Keys["key"])
		assert.Equal(t, "1", d.Keys["only_a"])
		assert.Equal(t, "2", d.Keys["only_b"])
		assert.Equal(t, []string{"item-a", "item-b"}, d.ItemIDs)
	}
	assert.Equal(t,
		forward[Target{Namespace: "prod", Name: "shared"}].ContentHash,
		reversed[Target{Namespace: "prod", Name: "shared"}].ContentHash)
}

func TestMergeLabelsAndAnnotations(t *testing.T) {
	t.Parallel()

	f := frag("a", "db", []string{"prod"}, map[string]string{"k": "v"})
	f.Labels = map[string]string{"team": "data"}
	f.Annotations = map[string]string{"owner": "dba"}

	desired := Merge([]parser.Fragment{f})
	d := desired[Target{Namespace: "prod", Name: "db"}]
	assert.Equal(t, "data", d.Labels["team"])
	assert.Equal(t, "dba", d.Annotations["owner"])
}

func TestContentHashStableUnderReorder(t *testing.T) {
	t.Parallel()

	a := ContentHash([]string{"one", "two", "three"})
	b := ContentHash([]string{"three", "one", "two"})
	assert.Equal(t, a, b)
}

func TestContentHashChangesWithContent(t *testing.T) {
	t.Parallel()

	a := ContentHash([]string{"one", "two"})
	b := ContentHash([]string{"one", "two!"})
	assert.NotEqual(t, a, b)
	assert.Len(t, a, 64) // hex sha256
}

func TestSortedTargets(t *testing.T) {
	t.Parallel()

	desired := Merge([]parser.Fragment{
		frag("a", "zeta", []string{"b-ns"}, map[string]string{"k": "v"}),
		frag("b", "alpha", []string{"b-ns"}, map[string]string{"k": "v"}),
		frag("c", "mid", []string{"a-ns"}, map[string]string{"k": "v"}),
	})

	targets := SortedTargets(desired)
	require.Len(t, targets, 3)
	assert.Equal(t, Target{Namespace: "a-ns", Name: "mid"}, targets[0])
	assert.Equal(t, Target{Namespace: "b-ns", Name: "alpha"}, targets[1])
	assert.Equal(t, Target{Namespace: "b-ns", Name: "zeta"}, targets[2])
}
