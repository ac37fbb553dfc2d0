package coordinator

import (
	"sort"

	"github.com/archsync/archsync-coordinator/internal/model"
)

// AnalyzeConflicts compares an endpoint's current package set against a
// target package set and returns the conflicts found (spec 4.F "Conflict
// analysis"). Only version_mismatch and missing_package are produced
// here; dependency_conflict and repository_unavailable are reserved for
// the Repository Analyzer's output.
func AnalyzeConflicts(current, target []model.PackageRecord) []model.SyncConflict {
	currentByName := byName(current)
	targetByName := byName(target)

	var conflicts []model.SyncConflict
	for _, name := range sortedNames(targetByName) {
		t := targetByName[name]
		if c, ok := currentByName[name]; ok {
			if c.Version != t.Version {
				conflicts = append(conflicts, model.SyncConflict{
					Kind:            model.ConflictVersionMismatch,
					PackageName:     name,
					CurrentVersion:  c.Version,
					TargetVersion:   t.Version,
					SuggestedAction: "upgrade/downgrade to " + t.Version,
				})
			}
			continue
		}
		conflicts = append(conflicts, model.SyncConflict{
			Kind:            model.ConflictMissingPackage,
			PackageName:     name,
			TargetVersion:   t.Version,
			SuggestedAction: "install " + name + " " + t.Version,
		})
	}

	for _, name := range sortedNames(currentByName) {
		if _, ok := targetByName[name]; ok {
			continue
		}
		c := currentByName[name]
		conflicts = append(conflicts, model.SyncConflict{
			Kind:            model.ConflictMissingPackage,
			PackageName:     name,
			CurrentVersion:  c.Version,
			SuggestedAction: "remove",
		})
	}
	return conflicts
}

// ResolveConflicts applies the pool's conflict-resolution strategy to
// every conflict. manual never auto-resolves (ok=false signals the
// caller must fail the operation). newest/oldest pick a winning version
// per Compare and mark the conflict resolved with that version.
func ResolveConflicts(conflicts []model.SyncConflict, resolution model.ConflictResolution) (resolved []model.SyncConflict, ok bool) {
	if resolution == model.ConflictResolutionManual {
		return nil, false
	}

	resolved = make([]model.SyncConflict, 0, len(conflicts))
	for _, c := range conflicts {
		resolvedConflict := c
		switch c.Kind {
		case model.ConflictVersionMismatch:
			resolvedConflict.ResolvedVersion = pickVersion(c.CurrentVersion, c.TargetVersion, resolution)
		case model.ConflictMissingPackage:
			if c.TargetVersion != "" {
				resolvedConflict.ResolvedVersion = c.TargetVersion
			}
		}
		resolved = append(resolved, resolvedConflict)
	}
	return resolved, true
}

func pickVersion(current, target string, resolution model.ConflictResolution) string {
	cmp := Compare(current, target)
	switch resolution {
	case model.ConflictResolutionNewest:
		if cmp >= 0 {
			return current
		}
		return target
	case model.ConflictResolutionOldest:
		if cmp <= 0 {
			return current
		}
		return target
	default:
		return target
	}
}

func byName(records []model.PackageRecord) map[string]model.PackageRecord {
	m := make(map[string]model.PackageRecord, len(records))
	for _, r := range records {
		m[r.Name] = r
	}
	return m
}

func sortedNames(m map[string]model.PackageRecord) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
