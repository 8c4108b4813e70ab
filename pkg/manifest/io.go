package manifest

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/r-three/git-theta-go/pkg/types"
)

// leafKeys are the exact three sub-record keys that mark a node in the
// nested tree as a parameter leaf rather than a further nesting level,
// per the invariant that every manifest entry has exactly the
// tensor/lfs/theta triple.
var leafKeys = map[string]struct{}{"tensor": {}, "lfs": {}, "theta": {}}

// toNested expands the flat manifest into the nested mapping that is the
// canonical on-disk shape: one level of the tree per ParamName component.
func (m Manifest) toNested() map[string]any {
	root := map[string]any{}
	for _, name := range m.Names() {
		p := m[name.String()]
		cur := root
		for i, part := range name {
			if i == len(name)-1 {
				cur[part] = p
				continue
			}
			next, ok := cur[part].(map[string]any)
			if !ok {
				next = map[string]any{}
				cur[part] = next
			}
			cur = next
		}
	}
	return root
}

// Bytes renders the manifest in its canonical, deterministic text form.
// yaml.v3 sorts map keys during Marshal, so two manifests with the same
// content always produce byte-identical output regardless of insertion
// order — the reproducibility invariant in spec.md §3.
func (m Manifest) Bytes() ([]byte, error) {
	return yaml.Marshal(m.toNested())
}

// WriteFile writes the canonical text form to path.
func (m Manifest) WriteFile(path string) error {
	data, err := m.Bytes()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Parse decodes the canonical text form into a flat Manifest.
func Parse(data []byte) (Manifest, error) {
	var root map[string]any
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("manifest: parse: %w", err)
	}
	m := New()
	if err := flattenInto(m, nil, root); err != nil {
		return nil, err
	}
	return m, nil
}

// ReadFile parses the canonical text form from path.
func ReadFile(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func flattenInto(m Manifest, prefix types.ParamName, node map[string]any) error {
	if isLeaf(node) {
		p, err := decodeLeaf(node)
		if err != nil {
			return fmt.Errorf("manifest: parameter %s: %w", prefix.String(), err)
		}
		m.Set(prefix.Clone(), p)
		return nil
	}
	keys := make([]string, 0, len(node))
	for k := range node {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		child, ok := node[k].(map[string]any)
		if !ok {
			return fmt.Errorf("manifest: %s/%s: expected a mapping", prefix.String(), k)
		}
		if err := flattenInto(m, append(prefix.Clone(), k), child); err != nil {
			return err
		}
	}
	return nil
}

func isLeaf(node map[string]any) bool {
	if len(node) != len(leafKeys) {
		return false
	}
	for k := range node {
		if _, ok := leafKeys[k]; !ok {
			return false
		}
	}
	return true
}

// decodeLeaf re-encodes a generically-decoded leaf node and decodes it
// into a typed ParamMetadata. This double hop (instead of decoding
// straight into the struct) is necessary because yaml.Unmarshal into
// map[string]any can't know ahead of time which nodes are leaves.
func decodeLeaf(node map[string]any) (*ParamMetadata, error) {
	raw, err := yaml.Marshal(node)
	if err != nil {
		return nil, err
	}
	var p ParamMetadata
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// RoundTripCheck reports whether serializing then parsing m reproduces
// m exactly keyed. Used by tests exercising the round-trip invariant.
func RoundTripCheck(m Manifest) (bool, error) {
	data, err := m.Bytes()
	if err != nil {
		return false, err
	}
	back, err := Parse(data)
	if err != nil {
		return false, err
	}
	if len(back) != len(m) {
		return false, nil
	}
	for name, p := range m {
		other, ok := back[name]
		if !ok || !strings.EqualFold(p.Tensor.Hash, other.Tensor.Hash) {
			return false, nil
		}
	}
	return true, nil
}
