package model

import "time"

// RepositoryPackage is one package entry within a Repository's package
// index, as reported by an endpoint (spec section 3).
type RepositoryPackage struct {
	Name         string `json:"name"`
	Version      string `json:"version"`
	Repository   string `json:"repository"`
	Architecture string `json:"architecture"`
	Description  string `json:"description"`
}

// Repository is one repository (e.g. "core", "extra") as seen from one
// endpoint (spec section 3, invariant R1).
type Repository struct {
	ID          ID
	EndpointID  ID
	RepoName    string
	PrimaryURL  string
	Mirrors     []string
	Packages    []RepositoryPackage
	LastUpdated time.Time
}

// ExclusionReason is the reason tag attached to an excluded package by the
// Repository Compatibility Analyzer (spec 4.E).
type ExclusionReason string

const (
	ExclusionPolicy          ExclusionReason = "policy"
	ExclusionVersionConflict ExclusionReason = "version_conflict"
	ExclusionMissing         ExclusionReason = "missing_from_n_endpoints"
)

// ExcludedPackage is one entry of CompatibilityAnalysis.excluded_packages.
type ExcludedPackage struct {
	Name   string          `json:"name"`
	Reason ExclusionReason `json:"reason"`
	Detail string          `json:"detail,omitempty"`
}

// CommonPackage is one entry of CompatibilityAnalysis.common_packages: a
// package present, at one agreed version, on every endpoint of the pool.
type CommonPackage struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// AnalysisConflict is one entry of CompatibilityAnalysis.conflicts: a
// package present on every endpoint of the pool but at disagreeing
// versions (spec 4.E).
type AnalysisConflict struct {
	Name                string            `json:"name"`
	VersionsByEndpoint  map[ID]string     `json:"versions_by_endpoint"`
	SuggestedResolution string            `json:"suggested_resolution"`
}

// CompatibilityAnalysis is the derived, non-persisted (or pool-cached)
// result the Repository Compatibility Analyzer returns (spec section 3).
type CompatibilityAnalysis struct {
	PoolID           ID                 `json:"pool_id"`
	CommonPackages   []CommonPackage    `json:"common_packages"`
	ExcludedPackages []ExcludedPackage  `json:"excluded_packages"`
	Conflicts        []AnalysisConflict `json:"conflicts"`
	LastAnalyzed     time.Time          `json:"last_analyzed"`
}
