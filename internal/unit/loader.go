package unit

import (
	"fmt"
	"plugin"
)

// entrySymbol is the exported symbol a dynamically loaded unit's .so
// must provide: a zero-argument constructor returning a Unit. This is
// the Go analogue of the original's "Rubidium-Module-Class" manifest
// attribute plus reflective no-arg construction — Go has no runtime
// class loading, so the isolated code-loading scope is the stdlib
// plugin package's per-.so symbol table instead of a per-module
// URLClassLoader.
const entrySymbol = "NewUnit"

// loadDynamic opens path as a Go plugin and invokes its NewUnit
// constructor. Each call opens a fresh plugin handle; the stdlib plugin
// package never unloads a .so once opened, so repeated loads of the
// same path after an Unload are expected to reuse the already-mapped
// code and simply construct a new instance.
func loadDynamic(path string) (Unit, error) {
	p, err := plugin.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open plugin %s: %w", path, err)
	}

	sym, err := p.Lookup(entrySymbol)
	if err != nil {
		return nil, fmt.Errorf("plugin %s: missing %s symbol: %w", path, entrySymbol, err)
	}

	constructor, ok := sym.(func() Unit)
	if !ok {
		return nil, fmt.Errorf("plugin %s: %s has unexpected signature", path, entrySymbol)
	}

	return constructor(), nil
}
