// Package inventory fetches the set of function names deployed on an
// environment.
package inventory

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"stacksync/internal/mgmt"
	"stacksync/internal/platform"
)

// FunctionLister is the slice of the management API the fetcher needs.
type FunctionLister interface {
	ListFunctions(ctx context.Context, projectRef string) ([]mgmt.FunctionInfo, error)
}

// Inventory is the ordered set of function names that existed on one
// environment at fetch time. Immutable once fetched; re-fetching builds
// a new Inventory.
type Inventory struct {
	// Env is the environment the inventory was taken from.
	Env platform.Environment

	// Names holds the function names in the platform's reported order.
	// The order is not semantically significant but is preserved so
	// runs produce stable logs.
	Names []string

	lookup map[string]struct{}
}

// New builds an Inventory from a name list, dropping duplicates while
// preserving first-seen order.
func New(env platform.Environment, names []string) *Inventory {
	inv := &Inventory{Env: env, lookup: make(map[string]struct{}, len(names))}
	for _, name := range names {
		if _, dup := inv.lookup[name]; dup {
			continue
		}
		inv.lookup[name] = struct{}{}
		inv.Names = append(inv.Names, name)
	}
	return inv
}

// Contains reports whether the inventory holds the named function.
func (inv *Inventory) Contains(name string) bool {
	_, ok := inv.lookup[name]
	return ok
}

// Len returns the number of functions in the inventory.
func (inv *Inventory) Len() int {
	return len(inv.Names)
}

// Restrict returns a new Inventory containing only the given names, in
// the order of the allowlist. Names absent from the inventory are
// dropped; the caller decides whether that is worth reporting.
func (inv *Inventory) Restrict(names []string) *Inventory {
	kept := make([]string, 0, len(names))
	for _, name := range names {
		if inv.Contains(name) {
			kept = append(kept, name)
		}
	}
	return New(inv.Env, kept)
}

// Fetcher lists function inventories through the management API.
// It performs no retries: retry policy belongs to the caller so tests
// can inject deterministic failures.
type Fetcher struct {
	api FunctionLister
}

// NewFetcher creates a Fetcher.
func NewFetcher(api FunctionLister) *Fetcher {
	return &Fetcher{api: api}
}

// Fetch lists the functions on env. The access-token precondition is
// enforced when the management API client is constructed; by the time a
// Fetcher exists the token is known to be present.
func (f *Fetcher) Fetch(ctx context.Context, env platform.Environment) (*Inventory, error) {
	functions, err := f.api.ListFunctions(ctx, env.ProjectRef)
	if err != nil {
		return nil, fmt.Errorf("fetching inventory for %s: %w", env.Name, err)
	}

	names := make([]string, 0, len(functions))
	for _, fn := range functions {
		names = append(names, fn.Slug)
	}
	return New(env, names), nil
}

// ReadNamesFile reads a newline-delimited function allowlist. Blank
// lines and lines starting with '#' are skipped.
func ReadNamesFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening names file: %w", err)
	}
	defer f.Close()

	var names []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		names = append(names, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading names file: %w", err)
	}
	return names, nil
}
