package storage

// Store is the transactional CRUD layer spec 4.A describes ("Relational
// tables + JSON blobs; transactional CRUD"), one method set per table,
// grounded on storj-storj/pkg/satellite/satellitedb's per-entity
// repositories wrapping a shared *Database. Higher components
// (poolmgr, statemgr, analyzer, coordinator, auth) depend on *Store
// rather than talking to DB directly.
type Store struct {
	DB DB
}

// NewStore wraps an opened DB as a Store.
func NewStore(db DB) *Store {
	return &Store{DB: db}
}
