// Package analyzer implements the Repository Compatibility Analyzer
// (spec 4.E): from each endpoint's reported repository package index, it
// derives per-pool the set of packages safely syncable ("common"), the
// set that must be excluded (missing, version-conflicting, or
// policy-excluded), and the set of detected version conflicts.
package analyzer

import (
	"context"
	"sort"
	"strconv"
	"time"

	"github.com/archsync/archsync-coordinator/internal/model"
	"github.com/archsync/archsync-coordinator/internal/storage"
)

// Analyzer wraps a *storage.Store with the Repository Compatibility
// Analyzer contract.
type Analyzer struct {
	store *storage.Store
}

// New builds an Analyzer over store.
func New(store *storage.Store) *Analyzer {
	return &Analyzer{store: store}
}

// availability records, per package name, each contributing endpoint's
// package entry (spec 4.E step 1's PackageAvailability map).
type availability map[string]map[model.ID]model.RepositoryPackage

// Analyze runs the compatibility algorithm for one pool (spec 4.E,
// invoked on demand by operators, and automatically whenever an
// endpoint's repositories are replaced while it is in a pool).
func (a *Analyzer) Analyze(ctx context.Context, poolID model.ID) (model.CompatibilityAnalysis, error) {
	pool, err := a.store.GetPool(ctx, poolID)
	if err != nil {
		return model.CompatibilityAnalysis{}, err
	}
	endpoints, err := a.store.ListEndpoints(ctx, poolID)
	if err != nil {
		return model.CompatibilityAnalysis{}, err
	}

	endpointSet := make(map[model.ID]struct{}, len(endpoints))
	for _, ep := range endpoints {
		endpointSet[ep.ID] = struct{}{}
	}

	avail := availability{}
	for _, ep := range endpoints {
		repos, err := a.store.ListEndpointRepositories(ctx, ep.ID)
		if err != nil {
			return model.CompatibilityAnalysis{}, err
		}
		for _, repo := range repos {
			for _, pkg := range repo.Packages {
				if avail[pkg.Name] == nil {
					avail[pkg.Name] = map[model.ID]model.RepositoryPackage{}
				}
				if _, seen := avail[pkg.Name][ep.ID]; !seen {
					avail[pkg.Name][ep.ID] = pkg
				}
			}
		}
	}

	result := model.CompatibilityAnalysis{
		PoolID:       poolID,
		LastAnalyzed: time.Now().UTC(),
	}

	names := make([]string, 0, len(avail))
	for name := range avail {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		perEndpoint := avail[name]

		if pool.SyncPolicy.ExcludesPackage(name) {
			result.ExcludedPackages = append(result.ExcludedPackages, model.ExcludedPackage{
				Name:   name,
				Reason: model.ExclusionPolicy,
			})
			continue
		}

		presentOnAll := len(perEndpoint) == len(endpointSet)
		if presentOnAll {
			for id := range perEndpoint {
				if _, ok := endpointSet[id]; !ok {
					presentOnAll = false
					break
				}
			}
		}

		if !presentOnAll {
			result.ExcludedPackages = append(result.ExcludedPackages, model.ExcludedPackage{
				Name:   name,
				Reason: model.ExclusionMissing,
				Detail: missingDetail(len(endpointSet) - len(perEndpoint)),
			})
			continue
		}

		versions := distinctVersions(perEndpoint)
		if len(versions) == 1 {
			result.CommonPackages = append(result.CommonPackages, model.CommonPackage{
				Name:    name,
				Version: versions[0],
			})
			continue
		}

		byEndpoint := make(map[model.ID]string, len(perEndpoint))
		for id, pkg := range perEndpoint {
			byEndpoint[id] = pkg.Version
		}
		result.ExcludedPackages = append(result.ExcludedPackages, model.ExcludedPackage{
			Name:   name,
			Reason: model.ExclusionVersionConflict,
		})
		result.Conflicts = append(result.Conflicts, model.AnalysisConflict{
			Name:                name,
			VersionsByEndpoint:  byEndpoint,
			SuggestedResolution: "use most common version (" + MostCommonVersion(byEndpoint) + ")",
		})
	}

	return result, nil
}

// distinctVersions returns the sorted set of distinct version strings
// reported for a package across endpoints.
func distinctVersions(perEndpoint map[model.ID]model.RepositoryPackage) []string {
	seen := map[string]struct{}{}
	for _, pkg := range perEndpoint {
		seen[pkg.Version] = struct{}{}
	}
	versions := make([]string, 0, len(seen))
	for v := range seen {
		versions = append(versions, v)
	}
	sort.Strings(versions)
	return versions
}

// MostCommonVersion picks the modal version among per-endpoint reports,
// breaking ties by lexicographically greatest version string (spec 4.E).
func MostCommonVersion(versionsByEndpoint map[model.ID]string) string {
	counts := map[string]int{}
	for _, v := range versionsByEndpoint {
		counts[v]++
	}

	var best string
	bestCount := -1
	for v, c := range counts {
		if c > bestCount || (c == bestCount && v > best) {
			best = v
			bestCount = c
		}
	}
	return best
}

func missingDetail(missingCount int) string {
	if missingCount <= 0 {
		return ""
	}
	if missingCount == 1 {
		return "missing from 1 endpoint"
	}
	return "missing from " + strconv.Itoa(missingCount) + " endpoints"
}
