// Package classifier maps asset identifiers to their pricing category and, for
// derivatives, to the decomposition into underlying assets.
package classifier

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	sdkmath "cosmossdk.io/math"
	"github.com/samber/lo"

	"github.com/mtlprog/fundfee/internal/domain"
)

// Kind is the pricing category of an asset.
type Kind int

const (
	Unsupported Kind = iota
	Primitive
	Derivative
)

func (k Kind) String() string {
	switch k {
	case Primitive:
		return "primitive"
	case Derivative:
		return "derivative"
	default:
		return "unsupported"
	}
}

// ParseKind parses the string form produced by Kind.String.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "primitive":
		return Primitive, nil
	case "derivative":
		return Derivative, nil
	case "unsupported":
		return Unsupported, nil
	}
	return Unsupported, fmt.Errorf("unknown asset kind %q", s)
}

// Component is one underlying of a derivative: AmountPerUnit smallest units of Asset
// per one whole unit of the derivative.
type Component struct {
	Asset         domain.AssetID `json:"asset"`
	AmountPerUnit sdkmath.Int    `json:"amountPerUnit"`
}

var (
	// ErrPrecisionChanged is returned when an asset is re-registered with another precision.
	ErrPrecisionChanged = errors.New("asset precision cannot change")
	// ErrInvalidDecomposition is returned for empty or malformed derivative decompositions.
	ErrInvalidDecomposition = errors.New("invalid derivative decomposition")
)

type entry struct {
	asset      domain.Asset
	kind       Kind
	components []Component
}

// Registry holds the asset classification table. Safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[domain.AssetID]entry
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[domain.AssetID]entry)}
}

// RegisterPrimitive registers an asset with a direct price feed.
func (r *Registry) RegisterPrimitive(asset domain.Asset) error {
	return r.register(entry{asset: asset, kind: Primitive})
}

// RegisterDerivative registers an asset valued through its components.
func (r *Registry) RegisterDerivative(asset domain.Asset, components []Component) error {
	if len(components) == 0 {
		return fmt.Errorf("%w: %s has no components", ErrInvalidDecomposition, asset.ID)
	}
	for _, c := range components {
		if c.Asset == "" {
			return fmt.Errorf("%w: %s has a component without asset", ErrInvalidDecomposition, asset.ID)
		}
		if c.Asset == asset.ID {
			return fmt.Errorf("%w: %s references itself", ErrInvalidDecomposition, asset.ID)
		}
		if c.AmountPerUnit.IsNil() || c.AmountPerUnit.IsNegative() {
			return fmt.Errorf("%w: %s component %s has negative amount", ErrInvalidDecomposition, asset.ID, c.Asset)
		}
	}
	if dup := lo.FindDuplicatesBy(components, func(c Component) domain.AssetID { return c.Asset }); len(dup) > 0 {
		return fmt.Errorf("%w: %s lists %s twice", ErrInvalidDecomposition, asset.ID, dup[0].Asset)
	}
	return r.register(entry{asset: asset, kind: Derivative, components: components})
}

// MarkUnsupported registers an asset that must never be valued. Its precision is still tracked.
func (r *Registry) MarkUnsupported(asset domain.Asset) error {
	return r.register(entry{asset: asset, kind: Unsupported})
}

func (r *Registry) register(e entry) error {
	if e.asset.ID == "" {
		return fmt.Errorf("asset id is empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.entries[e.asset.ID]; ok && existing.asset.Precision != e.asset.Precision {
		return fmt.Errorf("%w: %s registered with %d, got %d",
			ErrPrecisionChanged, e.asset.ID, existing.asset.Precision, e.asset.Precision)
	}
	e.components = slices.Clone(e.components)
	r.entries[e.asset.ID] = e
	return nil
}

// Classify returns the kind, decomposition and precision of an asset. The components are
// a copy. Unknown assets are Unsupported.
func (r *Registry) Classify(id domain.AssetID) (Kind, []Component, uint8) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[id]
	if !ok {
		return Unsupported, nil, 0
	}
	return e.kind, slices.Clone(e.components), e.asset.Precision
}

// Asset returns the registered asset.
func (r *Registry) Asset(id domain.AssetID) (domain.Asset, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[id]
	return e.asset, ok
}

// Assets returns all registered assets.
func (r *Registry) Assets() []domain.Asset {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return lo.MapToSlice(r.entries, func(_ domain.AssetID, e entry) domain.Asset { return e.asset })
}
