package state

// Hashes are stored as 64-char hex without the 0x prefix.
var (
	// known_hash keeps every burn message hash ever claimed by this
	// deployment. A row is removed only when an optimistic mint for it
	// failed and the burn must become mintable again.
	knownHashTable = `CREATE TABLE IF NOT EXISTS known_hash (
		hash CHAR(64) PRIMARY KEY NOT NULL
	);`
)
