package repo

import (
	"github.com/tidwall/buntdb"

	"github.com/cloudemu/cloudemu/internal/cmn"
	"github.com/cloudemu/cloudemu/internal/model"
)

const (
	bucketPrefix     = "bucket"
	bucketNameIdxPre = "bucketname"
)

// BucketRepo enforces bucket name global-uniqueness via a secondary
// "bucketname -> bucketID" row, since the primary row is keyed by id.
type BucketRepo struct{ s *Store }

func NewBucketRepo(s *Store) *BucketRepo { return &BucketRepo{s: s} }

func bucketKey(id string) string     { return key(bucketPrefix, id) }
func bucketNameKey(name string) string { return key(bucketNameIdxPre, name) }

func (r *BucketRepo) Create(b *model.Bucket) error {
	return r.s.Update(func(tx *buntdb.Tx) error {
		if _, err := tx.Get(bucketNameKey(b.Name)); err == nil {
			return cmn.NewAlreadyExists("bucket %q already exists", b.Name)
		} else if err != buntdb.ErrNotFound {
			return cmn.WrapInternal(err, "check bucket name uniqueness")
		}
		if err := put(tx, bucketKey(b.ID), b, true); err != nil {
			return err
		}
		_, _, err := tx.Set(bucketNameKey(b.Name), b.ID, nil)
		return err
	})
}

func (r *BucketRepo) Get(id string) (*model.Bucket, error) {
	var b model.Bucket
	err := r.s.View(func(tx *buntdb.Tx) error { return get(tx, bucketKey(id), &b) })
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *BucketRepo) GetByName(name string) (*model.Bucket, error) {
	var id string
	err := r.s.View(func(tx *buntdb.Tx) error {
		v, err := tx.Get(bucketNameKey(name))
		if err == buntdb.ErrNotFound {
			return cmn.NewNotFound("no bucket named %q", name)
		}
		if err != nil {
			return cmn.WrapInternal(err, "get bucket name index")
		}
		id = v
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r.Get(id)
}

func (r *BucketRepo) Update(b *model.Bucket) error {
	return r.s.Update(func(tx *buntdb.Tx) error { return put(tx, bucketKey(b.ID), b, false) })
}

func (r *BucketRepo) Delete(id, name string) error {
	return r.s.Update(func(tx *buntdb.Tx) error {
		if err := del(tx, bucketKey(id)); err != nil {
			return err
		}
		_, err := tx.Delete(bucketNameKey(name))
		if err != nil && err != buntdb.ErrNotFound {
			return cmn.WrapInternal(err, "delete bucket name index")
		}
		return nil
	})
}

func (r *BucketRepo) ListByProject(projectID string) ([]*model.Bucket, error) {
	var out []*model.Bucket
	err := r.s.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys(bucketPrefix+"\x1f*", func(k, v string) bool {
			var b model.Bucket
			if err := json.Unmarshal([]byte(v), &b); err == nil && b.ProjectID == projectID {
				out = append(out, &b)
			}
			return true
		})
	})
	if err != nil {
		return nil, cmn.WrapInternal(err, "list buckets for project %s", projectID)
	}
	return out, nil
}

// ListAll is used by the lifecycle worker to sweep every bucket that
// carries a lifecycle config.
func (r *BucketRepo) ListAll() ([]*model.Bucket, error) {
	var out []*model.Bucket
	err := r.s.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys(bucketPrefix+"\x1f*", func(k, v string) bool {
			var b model.Bucket
			if err := json.Unmarshal([]byte(v), &b); err == nil {
				out = append(out, &b)
			}
			return true
		})
	})
	if err != nil {
		return nil, cmn.WrapInternal(err, "list all buckets")
	}
	return out, nil
}
