package repo

import (
	"github.com/tidwall/buntdb"

	"github.com/cloudemu/cloudemu/internal/cmn"
	"github.com/cloudemu/cloudemu/internal/model"
)

// VersionRepo stores every ObjectVersion row. Keys are zero-padded on
// generation so that AscendKeys over the (bucket,name) prefix yields
// strictly increasing generation order for free, without a secondary
// index - joining the identity parts into one key to turn
// structured identity into a sortable flat string.
type VersionRepo struct{ s *Store }

func NewVersionRepo(s *Store) *VersionRepo { return &VersionRepo{s: s} }

func versionKey(bucketID, name string, gen int64) string {
	return key(versionPrefix, bucketID, name, fmtGen(gen))
}

func (r *VersionRepo) Put(tx *buntdb.Tx, v *model.ObjectVersion) error {
	return put(tx, versionKey(v.BucketID, v.Name, v.Generation), v, true)
}

// Update overwrites an existing version row in place (e.g. lifecycle
// archive rewriting StorageClass); unlike Put it does not require absence.
func (r *VersionRepo) Update(tx *buntdb.Tx, v *model.ObjectVersion) error {
	return put(tx, versionKey(v.BucketID, v.Name, v.Generation), v, false)
}

func (r *VersionRepo) Get(bucketID, name string, gen int64) (*model.ObjectVersion, error) {
	var v model.ObjectVersion
	err := r.s.View(func(tx *buntdb.Tx) error {
		return get(tx, versionKey(bucketID, name, gen), &v)
	})
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *VersionRepo) MarkDeleted(tx *buntdb.Tx, bucketID, name string, gen int64) error {
	var v model.ObjectVersion
	k := versionKey(bucketID, name, gen)
	if err := get(tx, k, &v); err != nil {
		return err
	}
	v.Deleted = true
	return put(tx, k, &v, false)
}

func (r *VersionRepo) Delete(tx *buntdb.Tx, bucketID, name string, gen int64) error {
	return del(tx, versionKey(bucketID, name, gen))
}

// ListDescending returns every non-deleted version for (bucket,name) with
// the highest generation first, used by the upload purge of a
// non-versioned bucket, by delete, and by the lifecycle archive action.
func (r *VersionRepo) ListDescending(bucketID, name string) ([]*model.ObjectVersion, error) {
	pat := versionPrefix + "\x1f" + bucketID + "\x1f" + name + "\x1f*"
	var out []*model.ObjectVersion
	err := r.s.View(func(tx *buntdb.Tx) error {
		return tx.DescendKeys(pat, func(k, v string) bool {
			var ver model.ObjectVersion
			if err := json.Unmarshal([]byte(v), &ver); err == nil && !ver.Deleted {
				out = append(out, &ver)
			}
			return true
		})
	})
	if err != nil {
		return nil, cmn.WrapInternal(err, "list versions for %s/%s", bucketID, name)
	}
	return out, nil
}

// ListAllInBucket returns every non-deleted version across the whole
// bucket, ordered name asc / generation desc, the order the versions=true
// listing serves. Keys already sort (name, generation) ascending
// per name; generation must be reversed within each name group, so this
// walks ascending by name and, for ties, collects then reverses the run.
func (r *VersionRepo) ListAllInBucket(bucketID string) ([]*model.ObjectVersion, error) {
	pat := versionPrefix + "\x1f" + bucketID + "\x1f*"
	var flat []*model.ObjectVersion
	err := r.s.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys(pat, func(k, v string) bool {
			var ver model.ObjectVersion
			if err := json.Unmarshal([]byte(v), &ver); err == nil && !ver.Deleted {
				flat = append(flat, &ver)
			}
			return true
		})
	})
	if err != nil {
		return nil, cmn.WrapInternal(err, "list all versions in bucket %s", bucketID)
	}
	out := make([]*model.ObjectVersion, 0, len(flat))
	i := 0
	for i < len(flat) {
		j := i
		for j < len(flat) && flat[j].Name == flat[i].Name {
			j++
		}
		for k := j - 1; k >= i; k-- {
			out = append(out, flat[k])
		}
		i = j
	}
	return out, nil
}
