// Package catalog holds the ordered set of capability descriptors.
//
// A Catalog is built once at startup with Register and then frozen.
// After Freeze it is read-only and safe for concurrent use without locks.
// There is no process-wide registry: a catalog is an explicit value and
// many catalogs may coexist.
package catalog

import (
	"iter"
	"slices"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolscope/tools"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/toolscope", "catalog")

var (
	// ErrUnknownCapability is returned by Lookup when no descriptor has the name.
	ErrUnknownCapability = errors.New("unknown capability")
	// ErrDuplicateName is returned by Register when the name is already taken.
	ErrDuplicateName = errors.New("duplicate capability name")
	// ErrFrozen is returned by Register after Freeze.
	ErrFrozen = errors.New("catalog is frozen")
)

// Catalog is an ordered collection of descriptors, in registration order.
type Catalog struct {
	items  []*tools.Descriptor
	index  map[string]int
	frozen bool
}

// New returns an empty catalog open for registration.
func New() *Catalog {
	return &Catalog{
		index: make(map[string]int),
	}
}

// Build registers the descriptors in order and freezes the catalog.
func Build(list ...*tools.Descriptor) (*Catalog, error) {
	c := New()
	for _, d := range list {
		if err := c.Register(d); err != nil {
			return nil, err
		}
	}
	c.Freeze()
	return c, nil
}

// MustBuild is like Build, but panics on error.
func MustBuild(list ...*tools.Descriptor) *Catalog {
	c, err := Build(list...)
	if err != nil {
		panic(err)
	}
	return c
}

// Register appends the descriptor.
// Must be called only during startup, before Freeze.
func (c *Catalog) Register(d *tools.Descriptor) error {
	if c.frozen {
		return errors.WithStack(ErrFrozen)
	}
	if err := d.Validate(); err != nil {
		return err
	}
	if _, ok := c.index[d.Name()]; ok {
		return errors.Mark(errors.Newf("duplicate capability name: %s", d.Name()), ErrDuplicateName)
	}

	c.index[d.Name()] = len(c.items)
	c.items = append(c.items, d)

	logger.KV(xlog.DEBUG,
		"status", "registered",
		"tool", d.Name(),
		"eager", d.Eager(),
		"examples", len(d.Examples()),
	)
	return nil
}

// Freeze ends the registration phase.
func (c *Catalog) Freeze() {
	c.frozen = true
}

// Frozen returns true if the catalog no longer accepts registrations.
func (c *Catalog) Frozen() bool {
	return c.frozen
}

// Lookup returns the descriptor by name, or ErrUnknownCapability.
func (c *Catalog) Lookup(name string) (*tools.Descriptor, error) {
	if idx, ok := c.index[name]; ok {
		return c.items[idx], nil
	}
	return nil, errors.Mark(errors.Newf("unknown capability: %s", name), ErrUnknownCapability)
}

// Len returns the number of descriptors.
func (c *Catalog) Len() int {
	return len(c.items)
}

// All returns the descriptors in registration order.
// The returned slice is a copy.
func (c *Catalog) All() []*tools.Descriptor {
	return slices.Clone(c.items)
}

// Iterate yields the registration index and the descriptor, in registration order.
func (c *Catalog) Iterate() iter.Seq2[int, *tools.Descriptor] {
	return func(yield func(int, *tools.Descriptor) bool) {
		for i, d := range c.items {
			if !yield(i, d) {
				return
			}
		}
	}
}

// Names returns the descriptor names in registration order.
func (c *Catalog) Names() []string {
	names := make([]string, len(c.items))
	for i, d := range c.items {
		names[i] = d.Name()
	}
	return names
}

// Infos returns the serializable metadata in registration order.
func (c *Catalog) Infos() []tools.Info {
	list := make([]tools.Info, len(c.items))
	for i, d := range c.items {
		list[i] = d.Info()
	}
	return list
}
