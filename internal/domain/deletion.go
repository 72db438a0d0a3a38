package domain

// DeletionPolicy is the per-entity strategy for deletes. Accounts, categories,
// transactions, and import batches archive (soft delete) so history queries and
// batch undo keep working; rules hard-delete because nothing references them
// after removal.
type DeletionPolicy string

const (
	DeleteSoft DeletionPolicy = "soft"
	DeleteHard DeletionPolicy = "hard"
)

// EntityKind names a persisted entity for policy lookup.
type EntityKind string

const (
	EntityTransaction EntityKind = "transaction"
	EntityImportBatch EntityKind = "importBatch"
	EntityRule        EntityKind = "rule"
	EntityPayee       EntityKind = "payee"
)

var deletionPolicies = map[EntityKind]DeletionPolicy{
	EntityTransaction: DeleteSoft,
	EntityImportBatch: DeleteSoft,
	EntityRule:        DeleteHard,
	EntityPayee:       DeleteSoft,
}

// DeletionPolicyFor returns the deletion strategy for an entity kind.
// Unknown kinds default to soft delete; losing data is the worse failure mode.
func DeletionPolicyFor(kind EntityKind) DeletionPolicy {
	if p, ok := deletionPolicies[kind]; ok {
		return p
	}
	return DeleteSoft
}
