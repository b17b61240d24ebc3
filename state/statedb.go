package state

import (
	"database/sql"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"github.com/meantime-io/receivables-go/common"
	"github.com/meantime-io/receivables-go/database"
)

// StateDB is the durable slice of state: the known-hash set. Active
// receivables are deliberately not persisted; every restart rebuilds them
// by replaying the full lookback window of escrow logs, so a transfer
// minted long before the restart still lands back in the projection.
type StateDB struct {
	stmtCache *database.StmtCache
}

func NewStateDB(db *sql.DB) (*StateDB, error) {
	if _, err := db.Exec(knownHashTable); err != nil {
		return nil, err
	}

	return &StateDB{
		stmtCache: database.NewStmtCache(db),
	}, nil
}

func (st *StateDB) Close() {
	st.stmtCache.Clear()
}

func (st *StateDB) AddKnownHash(hash ethcommon.Hash) error {
	stmt, err := st.stmtCache.Prepare(`INSERT OR IGNORE INTO known_hash (hash) VALUES (?)`)
	if err != nil {
		return err
	}

	_, err = stmt.Exec(common.Trim0xPrefix(common.NormalizeHash(hash)))
	return err
}

func (st *StateDB) RemoveKnownHash(hash ethcommon.Hash) error {
	stmt, err := st.stmtCache.Prepare(`DELETE FROM known_hash WHERE hash = ?`)
	if err != nil {
		return err
	}

	_, err = stmt.Exec(common.Trim0xPrefix(common.NormalizeHash(hash)))
	return err
}

func (st *StateDB) GetKnownHashes() ([]ethcommon.Hash, error) {
	stmt, err := st.stmtCache.Prepare(`SELECT hash FROM known_hash`)
	if err != nil {
		return nil, err
	}

	rows, err := stmt.Query()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hashes []ethcommon.Hash
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, err
		}
		hashes = append(hashes, ethcommon.BytesToHash(common.HexStrToByteSlice(h)))
	}
	return hashes, rows.Err()
}
