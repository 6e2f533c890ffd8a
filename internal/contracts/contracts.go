// Package contracts holds the ABIs of the FAsset system contracts whose events are indexed.
package contracts

import (
	"bytes"
	"embed"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Interface names.
const (
	IAssetManager     = "IAssetManager"
	ICollateralPool   = "ICollateralPool"
	IERC20            = "IERC20"
	IPriceReader      = "IPriceReader"
	ICoreVaultManager = "ICoreVaultManager"
)

// Interfaces lists every known interface in a stable order.
var Interfaces = []string{IAssetManager, ICollateralPool, IERC20, IPriceReader, ICoreVaultManager}

//go:embed abi/*.json
var abiFS embed.FS

// EventInfo names one event of one interface.
type EventInfo struct {
	Interface string
	Event     abi.Event
}

// Registry gives access to the parsed interface ABIs.
type Registry struct {
	abis map[string]*abi.ABI
}

var (
	defaultRegistry *Registry
	defaultErr      error
	loadOnce        sync.Once
)

// Load parses the embedded ABIs once and returns the shared registry.
func Load() (*Registry, error) {
	loadOnce.Do(func() {
		defaultRegistry, defaultErr = parse()
	})
	return defaultRegistry, defaultErr
}

// MustLoad is like Load but panics on a malformed embedded ABI.
func MustLoad() *Registry {
	r, err := Load()
	if err != nil {
		panic(err)
	}
	return r
}

func parse() (*Registry, error) {
	r := &Registry{abis: make(map[string]*abi.ABI, len(Interfaces))}

	for _, name := range Interfaces {
		data, err := abiFS.ReadFile("abi/" + name + ".json")
		if err != nil {
			return nil, fmt.Errorf("missing abi for %s: %w", name, err)
		}

		parsed, err := abi.JSON(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("invalid abi for %s: %w", name, err)
		}
		r.abis[name] = &parsed
	}

	return r, nil
}

// ABI returns the parsed ABI of the named interface.
func (r *Registry) ABI(iface string) (*abi.ABI, bool) {
	a, ok := r.abis[iface]
	return a, ok
}

// Events returns every event of every interface, sorted by interface then event name.
func (r *Registry) Events() []EventInfo {
	var out []EventInfo
	for _, iface := range Interfaces {
		names := make([]string, 0, len(r.abis[iface].Events))
		for n := range r.abis[iface].Events {
			names = append(names, n)
		}
		sort.Strings(names)

		for _, n := range names {
			out = append(out, EventInfo{Interface: iface, Event: r.abis[iface].Events[n]})
		}
	}
	return out
}

// EventNames returns the distinct names of all known events.
func (r *Registry) EventNames() []string {
	var names []string
	for _, e := range r.Events() {
		if !slices.Contains(names, e.Event.Name) {
			names = append(names, e.Event.Name)
		}
	}
	sort.Strings(names)
	return names
}

// TopicMap maps event topics to the interface events carrying them, restricted to names.
// An empty names list selects every known event. Unknown names are an error.
func (r *Registry) TopicMap(names []string) (map[common.Hash][]EventInfo, error) {
	known := r.EventNames()
	for _, n := range names {
		if !slices.Contains(known, n) {
			return nil, fmt.Errorf("unknown event name %q", n)
		}
	}

	out := make(map[common.Hash][]EventInfo)
	for _, e := range r.Events() {
		if len(names) > 0 && !slices.Contains(names, e.Event.Name) {
			continue
		}
		out[e.Event.ID] = append(out[e.Event.ID], e)
	}

	return out, nil
}

// Topics returns the keys of a topic map in a stable order.
func Topics(m map[common.Hash][]EventInfo) []common.Hash {
	topics := make([]common.Hash, 0, len(m))
	for t := range m {
		topics = append(topics, t)
	}
	slices.SortFunc(topics, func(a, b common.Hash) int { return bytes.Compare(a[:], b[:]) })
	return topics
}

// Union returns the distinct names of a and b, preserving first appearance.
// An empty side means "every event", so the union is empty as well.
func Union(a, b []string) []string {
	if len(a) == 0 || len(b) == 0 {
		return nil
	}
	out := slices.Clone(a)
	for _, n := range b {
		if !slices.Contains(out, n) {
			out = append(out, n)
		}
	}
	return out
}

// Difference returns the names of all that are not in diff.
// An empty all means every known event.
func (r *Registry) Difference(all, diff []string) []string {
	if len(all) == 0 {
		all = r.EventNames()
	}
	var out []string
	for _, n := range all {
		if !slices.Contains(diff, n) {
			out = append(out, n)
		}
	}
	return out
}
