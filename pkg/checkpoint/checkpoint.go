// Package checkpoint adapts between framework-specific checkpoint byte
// streams and the flat parameter-name-to-tensor mapping the clean/smudge
// pipelines operate over. Concrete framework readers are plugin-provided
// per spec; this package ships the raw reference format plus a
// safetensors adapter, and a registry for selecting one by
// GIT_THETA_CHECKPOINT_TYPE.
package checkpoint

import (
	"fmt"
	"io"

	"github.com/r-three/git-theta-go/pkg/tensor"
	"github.com/r-three/git-theta-go/pkg/types"
)

// Params is the decoded, flattened form: dotted/slash parameter name to
// its dense tensor value. Adapters never see the manifest or object
// store — only whole checkpoints.
type Params map[string]tensor.Tensor

// Adapter decodes/encodes one checkpoint file format.
type Adapter interface {
	Name() types.CheckpointType
	Decode(r io.Reader) (Params, error)
	Encode(w io.Writer, params Params) error
}

// Registry resolves adapters by checkpoint type, populated at startup.
type Registry struct {
	adapters map[types.CheckpointType]Adapter
}

// DefaultRegistry returns a Registry with the built-in adapters.
func DefaultRegistry() *Registry {
	r := &Registry{adapters: map[types.CheckpointType]Adapter{}}
	r.Register(NewRawAdapter())
	r.Register(NewSafetensorsAdapter())
	return r
}

func (r *Registry) Register(a Adapter) { r.adapters[a.Name()] = a }

func (r *Registry) Get(name types.CheckpointType) (Adapter, error) {
	a, ok := r.adapters[name]
	if !ok {
		return nil, fmt.Errorf("checkpoint: no adapter registered for %q", name)
	}
	return a, nil
}
