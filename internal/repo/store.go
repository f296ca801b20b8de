// Package repo is the persistent metadata store: typed CRUD, indexes, and
// uniqueness constraints over github.com/tidwall/buntdb, an embedded
// indexed KV store. One buntdb.DB instance backs every repository in this
// package, so all code paths go through a single metadata owner.
package repo

import (
	"fmt"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/tidwall/buntdb"

	"github.com/cloudemu/cloudemu/internal/cmn"
)

// json encodes persisted rows. It reads only `repo` struct tags, which the
// model does not use, so every exported field is stored under its Go name,
// including the fields the wire hides with `json:"-"` (file paths, deleted
// flags, container handles, the subnet allocation cursor).
var json = jsoniter.Config{EscapeHTML: true, SortMapKeys: true, ValidateJsonRawMessage: true, TagKey: "repo"}.Froze()

// Store wraps the buntdb handle and offers small generic helpers that
// every entity-specific repository below builds on.
type Store struct {
	db *buntdb.DB
}

// Open creates (or re-opens) the metadata database at path. Pass ":memory:"
// for ephemeral/test use, matching buntdb's own convention.
func Open(path string) (*Store, error) {
	db, err := buntdb.Open(path)
	if err != nil {
		return nil, cmn.WrapInternal(err, "open metadata store at %s", path)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// CreateIndex is a thin pass-through to buntdb's CreateIndex. The
// repositories in this package declare no secondary indexes; they scan
// key prefixes.
func (s *Store) CreateIndex(name, pattern string, less ...func(a, b string) bool) error {
	if len(less) == 0 {
		return s.db.CreateIndex(name, pattern, buntdb.IndexString)
	}
	return s.db.CreateIndex(name, pattern, less[0])
}

func key(parts ...string) string { return strings.Join(parts, "\x1f") }

// put marshals v and writes it at key, returning cmn.AlreadyExists if
// requireAbsent is set and the key already exists.
func put(tx *buntdb.Tx, k string, v interface{}, requireAbsent bool) error {
	if requireAbsent {
		if _, err := tx.Get(k); err == nil {
			return cmn.NewAlreadyExists("key %q already exists", k)
		} else if err != buntdb.ErrNotFound {
			return cmn.WrapInternal(err, "check existing key %q", k)
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return cmn.WrapInternal(err, "marshal value for key %q", k)
	}
	_, _, err = tx.Set(k, string(b), nil)
	if err != nil {
		return cmn.WrapInternal(err, "set key %q", k)
	}
	return nil
}

func get(tx *buntdb.Tx, k string, v interface{}) error {
	raw, err := tx.Get(k)
	if err == buntdb.ErrNotFound {
		return cmn.NewNotFound("no record for key %q", k)
	}
	if err != nil {
		return cmn.WrapInternal(err, "get key %q", k)
	}
	return json.Unmarshal([]byte(raw), v)
}

func del(tx *buntdb.Tx, k string) error {
	_, err := tx.Delete(k)
	if err == buntdb.ErrNotFound {
		return cmn.NewNotFound("no record for key %q", k)
	}
	if err != nil {
		return cmn.WrapInternal(err, "delete key %q", k)
	}
	return nil
}

// Update runs fn in a buntdb read-write transaction. Transactions stay
// short and per-operation; none spans a request boundary.
func (s *Store) Update(fn func(tx *buntdb.Tx) error) error {
	return s.db.Update(fn)
}

func (s *Store) View(fn func(tx *buntdb.Tx) error) error {
	return s.db.View(fn)
}

// now returns the wall-clock time in UTC. Services take "now" from the
// cmn.Clock passed into them (cmn/clock.go), not from here.
func now() time.Time { return time.Now().UTC() }

func fmtGen(g int64) string { return fmt.Sprintf("%020d", g) }
