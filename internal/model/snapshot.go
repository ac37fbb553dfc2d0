package model

import "time"

// PackageRecord is one installed package entry within a Snapshot (spec
// section 3).
type PackageRecord struct {
	Name          string   `json:"name"`
	Version       string   `json:"version"`
	Repository    string   `json:"repository"`
	InstalledSize int64    `json:"installed_size"`
	Dependencies  []string `json:"dependencies"`
}

// Snapshot (aka SystemState) is an immutable record of the installed
// package set on one endpoint at one instant (spec section 3, invariant S1).
type Snapshot struct {
	ID            ID
	PoolID        ID
	EndpointID    ID
	CapturedAt    time.Time
	PacmanVersion string
	Architecture  string
	Packages      []PackageRecord
}

// ByName indexes a snapshot's packages by name for conflict analysis.
func (s Snapshot) ByName() map[string]PackageRecord {
	m := make(map[string]PackageRecord, len(s.Packages))
	for _, p := range s.Packages {
		m[p.Name] = p
	}
	return m
}
