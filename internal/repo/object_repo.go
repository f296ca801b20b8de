package repo

import (
	"strings"

	"github.com/tidwall/buntdb"

	"github.com/cloudemu/cloudemu/internal/cmn"
	"github.com/cloudemu/cloudemu/internal/model"
)

const (
	headPrefix    = "head"
	versionPrefix = "version"
	genctrPrefix  = "genctr"
)

// ObjectRepo stores the current head row per (bucket,name) plus the
// never-reset generation counter that keeps "generations
// are strictly increasing, even across deletes" true after a
// versioning-disabled bucket purges every version row.
type ObjectRepo struct{ s *Store }

func NewObjectRepo(s *Store) *ObjectRepo { return &ObjectRepo{s: s} }

func headKey(bucketID, name string) string  { return key(headPrefix, bucketID, name) }
func genctrKey(bucketID, name string) string { return key(genctrPrefix, bucketID, name) }

// PeekGeneration returns the last generation issued for (bucket,name),
// 0 if none has ever been issued.
func (r *ObjectRepo) PeekGeneration(tx *buntdb.Tx, bucketID, name string) (int64, error) {
	raw, err := tx.Get(genctrKey(bucketID, name))
	if err == buntdb.ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, cmn.WrapInternal(err, "read generation counter")
	}
	var g int64
	if err := json.Unmarshal([]byte(raw), &g); err != nil {
		return 0, cmn.WrapInternal(err, "decode generation counter")
	}
	return g, nil
}

// NextGeneration allocates and persists the next generation for
// (bucket,name) within tx. Caller must hold the per-key lock for the
// duration of the surrounding upload.
func (r *ObjectRepo) NextGeneration(tx *buntdb.Tx, bucketID, name string) (int64, error) {
	cur, err := r.PeekGeneration(tx, bucketID, name)
	if err != nil {
		return 0, err
	}
	next := cur + 1
	b, _ := json.Marshal(next)
	if _, _, err := tx.Set(genctrKey(bucketID, name), string(b), nil); err != nil {
		return 0, cmn.WrapInternal(err, "persist generation counter")
	}
	return next, nil
}

func (r *ObjectRepo) GetHead(bucketID, name string) (*model.Object, error) {
	var o model.Object
	err := r.s.View(func(tx *buntdb.Tx) error { return get(tx, headKey(bucketID, name), &o) })
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *ObjectRepo) getHeadTx(tx *buntdb.Tx, bucketID, name string) (*model.Object, error) {
	var o model.Object
	if err := get(tx, headKey(bucketID, name), &o); err != nil {
		return nil, err
	}
	return &o, nil
}

// PutHead upserts the head row unconditionally; callers enforce the
// "at most one isLatest head" invariant by always writing through here
// with o.IsLatest=true, never by appending.
func (r *ObjectRepo) PutHead(tx *buntdb.Tx, o *model.Object) error {
	return put(tx, headKey(o.BucketID, o.Name), o, false)
}

func (r *ObjectRepo) DeleteHead(tx *buntdb.Tx, bucketID, name string) error {
	return del(tx, headKey(bucketID, name))
}

// ListHeads returns every non-deleted head in bucketID whose name has the
// given prefix, ascending by name - the basis for both plain listing and
// delimiter-based common-prefix grouping (objectstore/service.go List).
func (r *ObjectRepo) ListHeads(bucketID, prefix string) ([]*model.Object, error) {
	var out []*model.Object
	pat := headPrefix + "\x1f" + bucketID + "\x1f*"
	err := r.s.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys(pat, func(k, v string) bool {
			var o model.Object
			if err := json.Unmarshal([]byte(v), &o); err != nil {
				return true
			}
			if o.Deleted {
				return true
			}
			if prefix == "" || strings.HasPrefix(o.Name, prefix) {
				out = append(out, &o)
			}
			return true
		})
	})
	if err != nil {
		return nil, cmn.WrapInternal(err, "list heads in bucket %s", bucketID)
	}
	return out, nil
}

// CountNonDeleted reports whether bucketID still owns any non-deleted
// head, used by bucket deletion's "zero non-deleted object versions"
// guard.
func (r *ObjectRepo) CountNonDeleted(bucketID string) (int, error) {
	heads, err := r.ListHeads(bucketID, "")
	if err != nil {
		return 0, err
	}
	return len(heads), nil
}
