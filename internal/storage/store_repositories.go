package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/archsync/archsync-coordinator/internal/apperr"
	"github.com/archsync/archsync-coordinator/internal/model"
)

func (s *Store) scanRepository(row interface {
	Scan(dest ...interface{}) error
}) (model.Repository, error) {
	var r model.Repository
	var id, endpointID sql.NullString
	var mirrorsJSON, packagesJSON string
	if err := row.Scan(&id, &endpointID, &r.RepoName, &r.PrimaryURL, &mirrorsJSON, &packagesJSON, &r.LastUpdated); err != nil {
		return model.Repository{}, err
	}
	parsedID, err := model.ParseID(id.String)
	if err != nil {
		return model.Repository{}, err
	}
	r.ID = parsedID
	endpoint, err := model.ParseID(endpointID.String)
	if err != nil {
		return model.Repository{}, err
	}
	r.EndpointID = endpoint
	if err := json.Unmarshal([]byte(mirrorsJSON), &r.Mirrors); err != nil {
		return model.Repository{}, err
	}
	if err := json.Unmarshal([]byte(packagesJSON), &r.Packages); err != nil {
		return model.Repository{}, err
	}
	return r, nil
}

const repositoryColumns = `id, endpoint_id, repo_name, primary_url, mirrors, packages, last_updated`

// ReplaceEndpointRepositories atomically deletes every repository row
// previously reported by an endpoint and inserts the new set, so a
// mid-report crash never leaves a mix of old and new repository data
// (invariant R1). The store does not run the Compatibility Analyzer; the
// HTTP handler that calls this (handleReplaceRepositories) does.
func (s *Store) ReplaceEndpointRepositories(ctx context.Context, endpointID model.ID, repos []model.Repository, now time.Time) error {
	tx, err := s.DB.BeginTx(ctx)
	if err != nil {
		return apperr.WrapStorage(apperr.Op("store.replace_endpoint_repositories.begin", err))
	}

	if _, err := tx.Execute(ctx, `DELETE FROM repositories WHERE endpoint_id = `+s.DB.Placeholder(1), endpointID.String()); err != nil {
		_ = tx.Rollback()
		return apperr.WrapStorage(apperr.Op("store.replace_endpoint_repositories.delete", err))
	}

	for _, r := range repos {
		mirrorsJSON, err := json.Marshal(r.Mirrors)
		if err != nil {
			_ = tx.Rollback()
			return apperr.Internalf("marshal mirrors: %v", err)
		}
		packagesJSON, err := json.Marshal(r.Packages)
		if err != nil {
			_ = tx.Rollback()
			return apperr.Internalf("marshal packages: %v", err)
		}
		if _, err := tx.Execute(ctx,
			`INSERT INTO repositories (id, endpoint_id, repo_name, primary_url, mirrors, packages, last_updated)
			 VALUES (`+placeholders(s.DB, 7)+`)`,
			r.ID.String(), endpointID.String(), r.RepoName, r.PrimaryURL, string(mirrorsJSON), string(packagesJSON), now); err != nil {
			_ = tx.Rollback()
			return apperr.WrapStorage(apperr.Op("store.replace_endpoint_repositories.insert", err))
		}
	}

	if err := tx.Commit(); err != nil {
		return apperr.WrapStorage(apperr.Op("store.replace_endpoint_repositories.commit", err))
	}
	return nil
}

// ListEndpointRepositories returns every repository currently reported by
// one endpoint.
func (s *Store) ListEndpointRepositories(ctx context.Context, endpointID model.ID) ([]model.Repository, error) {
	rows, err := s.DB.FetchAll(ctx,
		`SELECT `+repositoryColumns+` FROM repositories WHERE endpoint_id = `+s.DB.Placeholder(1), endpointID.String())
	if err != nil {
		return nil, apperr.WrapStorage(apperr.Op("store.list_endpoint_repositories", err))
	}
	defer rows.Close()

	var repos []model.Repository
	for rows.Next() {
		r, err := s.scanRepository(rows)
		if err != nil {
			return nil, apperr.WrapStorage(apperr.Op("store.list_endpoint_repositories.scan", err))
		}
		repos = append(repos, r)
	}
	return repos, rows.Err()
}

// ListPoolRepositories returns every repository reported by any endpoint
// currently assigned to the pool.
func (s *Store) ListPoolRepositories(ctx context.Context, poolID model.ID) ([]model.Repository, error) {
	rows, err := s.DB.FetchAll(ctx,
		`SELECT r.id, r.endpoint_id, r.repo_name, r.primary_url, r.mirrors, r.packages, r.last_updated
		 FROM repositories r
		 JOIN endpoints e ON e.id = r.endpoint_id
		 WHERE e.pool_id = `+s.DB.Placeholder(1), poolID.String())
	if err != nil {
		return nil, apperr.WrapStorage(apperr.Op("store.list_pool_repositories", err))
	}
	defer rows.Close()

	var repos []model.Repository
	for rows.Next() {
		r, err := s.scanRepository(rows)
		if err != nil {
			return nil, apperr.WrapStorage(apperr.Op("store.list_pool_repositories.scan", err))
		}
		repos = append(repos, r)
	}
	return repos, rows.Err()
}
