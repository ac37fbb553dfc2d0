package model

import (
	"encoding/json"
	"sort"
)

// MarshalJSON renders SyncPolicy's exclude-package set as a sorted slice so
// the embedded JSON column (spec 4.A, 6) round-trips deterministically.
func (p SyncPolicy) MarshalJSON() ([]byte, error) {
	names := make([]string, 0, len(p.ExcludePackages))
	for name := range p.ExcludePackages {
		names = append(names, name)
	}
	sort.Strings(names)
	return json.Marshal(syncPolicyJSON{
		AutoSync:           p.AutoSync,
		ExcludePackages:    names,
		IncludeAUR:         p.IncludeAUR,
		ConflictResolution: p.ConflictResolution,
	})
}

// UnmarshalJSON reconstructs the exclude-package set map from the stored
// slice form.
func (p *SyncPolicy) UnmarshalJSON(data []byte) error {
	var wire syncPolicyJSON
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	p.AutoSync = wire.AutoSync
	p.IncludeAUR = wire.IncludeAUR
	p.ConflictResolution = wire.ConflictResolution
	p.ExcludePackages = make(map[string]struct{}, len(wire.ExcludePackages))
	for _, name := range wire.ExcludePackages {
		p.ExcludePackages[name] = struct{}{}
	}
	return nil
}
