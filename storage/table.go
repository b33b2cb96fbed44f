package storage

import (
	"errors"
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

var (
	// ErrTableNotFound is returned by Lookup for a table that was never created.
	ErrTableNotFound = errors.New("storage: table not found")
	// ErrTableExists is returned by Create when the table is already present.
	ErrTableExists = errors.New("storage: table already exists")
)

var (
	tablePrefix = []byte("tbl:")
	rowPrefix   = []byte("row:")
	tableMarker = []byte{1}
)

// Table is a named keyspace inside a Database, owned by a single contract.
// Row keys are prefixed with a digest of (owner, name) so that two tables can
// never observe each other's rows.
type Table struct {
	db     Database
	owner  []byte
	name   string
	prefix []byte
}

func tableKey(owner []byte, name string) []byte {
	buf := make([]byte, 0, len(tablePrefix)+len(owner)+1+len(name))
	buf = append(buf, tablePrefix...)
	buf = append(buf, owner...)
	buf = append(buf, ':')
	buf = append(buf, name...)
	return buf
}

func rowKeyPrefix(owner []byte, name string) []byte {
	digest := ethcrypto.Keccak256(owner, []byte(name))
	buf := make([]byte, 0, len(rowPrefix)+16)
	buf = append(buf, rowPrefix...)
	return append(buf, digest[:16]...)
}

func newTable(db Database, owner []byte, name string) *Table {
	return &Table{
		db:     db,
		owner:  append([]byte(nil), owner...),
		name:   name,
		prefix: rowKeyPrefix(owner, name),
	}
}

// Lookup returns the table if it has been created.
func Lookup(db Database, owner []byte, name string) (*Table, error) {
	ok, err := db.Has(tableKey(owner, name))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTableNotFound, name)
	}
	return newTable(db, owner, name), nil
}

// Create registers a new table. It fails if the table already exists so a
// redeployment cannot silently reinitialise state.
func Create(db Database, owner []byte, name string) (*Table, error) {
	key := tableKey(owner, name)
	ok, err := db.Has(key)
	if err != nil {
		return nil, err
	}
	if ok {
		return nil, fmt.Errorf("%w: %s", ErrTableExists, name)
	}
	if err := db.Put(key, tableMarker); err != nil {
		return nil, err
	}
	return newTable(db, owner, name), nil
}

// LookupOrCreate opens the table, creating it on first use.
func LookupOrCreate(db Database, owner []byte, name string) (*Table, error) {
	table, err := Lookup(db, owner, name)
	if err == nil {
		return table, nil
	}
	if !errors.Is(err, ErrTableNotFound) {
		return nil, err
	}
	return Create(db, owner, name)
}

// Name returns the table name.
func (t *Table) Name() string { return t.name }

// RowKey maps a table-relative key to the raw database key.
func (t *Table) RowKey(key []byte) []byte {
	buf := make([]byte, 0, len(t.prefix)+len(key))
	buf = append(buf, t.prefix...)
	return append(buf, key...)
}

// Get returns the stored value and whether it exists.
func (t *Table) Get(key []byte) ([]byte, bool, error) {
	value, err := t.db.Get(t.RowKey(key))
	if errors.Is(err, ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

// Set writes a value.
func (t *Table) Set(key, value []byte) error {
	return t.db.Put(t.RowKey(key), value)
}
