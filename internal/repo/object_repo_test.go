package repo

import (
	"testing"
	"time"

	"github.com/tidwall/buntdb"

	"github.com/cloudemu/cloudemu/internal/cmn"
	"github.com/cloudemu/cloudemu/internal/model"
	"github.com/cloudemu/cloudemu/internal/testutil/tassert"
)

func openTestStore(t *testing.T) *Store {
	s, err := Open(":memory:")
	tassert.CheckFatal(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestGenerationCounterMonotonicAcrossDelete(t *testing.T) {
	s := openTestStore(t)
	objects := NewObjectRepo(s)

	alloc := func() int64 {
		var g int64
		err := s.Update(func(tx *buntdb.Tx) error {
			var err error
			g, err = objects.NextGeneration(tx, "b1", "k")
			return err
		})
		tassert.CheckFatal(t, err)
		return g
	}

	tassert.Errorf(t, alloc() == 1, "first generation != 1")
	tassert.Errorf(t, alloc() == 2, "second generation != 2")

	// deleting the head must not reset the counter
	err := s.Update(func(tx *buntdb.Tx) error {
		objects.PutHead(tx, &model.Object{BucketID: "b1", Name: "k", Generation: 2, IsLatest: true})
		return objects.DeleteHead(tx, "b1", "k")
	})
	tassert.CheckFatal(t, err)
	tassert.Errorf(t, alloc() == 3, "generation reset after delete")

	// a different key has its own counter
	var other int64
	err = s.Update(func(tx *buntdb.Tx) error {
		var err error
		other, err = objects.NextGeneration(tx, "b1", "unrelated")
		return err
	})
	tassert.CheckFatal(t, err)
	tassert.Errorf(t, other == 1, "counters bleed across keys")
}

func TestListHeadsFiltersDeletedAndSorts(t *testing.T) {
	s := openTestStore(t)
	objects := NewObjectRepo(s)

	now := time.Now().UTC()
	put := func(name string, deleted bool) {
		err := s.Update(func(tx *buntdb.Tx) error {
			return objects.PutHead(tx, &model.Object{
				ID: name, BucketID: "b1", Name: name, Generation: 1,
				IsLatest: !deleted, Deleted: deleted, TimeCreated: now,
			})
		})
		tassert.CheckFatal(t, err)
	}
	put("zz", false)
	put("aa", false)
	put("gone", true)
	put("prefix/x", false)

	heads, err := objects.ListHeads("b1", "")
	tassert.CheckFatal(t, err)
	tassert.Fatalf(t, len(heads) == 3, "head count = %d", len(heads))
	for _, h := range heads {
		tassert.Errorf(t, h.Name != "gone", "deleted head listed")
	}

	scoped, err := objects.ListHeads("b1", "prefix/")
	tassert.CheckFatal(t, err)
	tassert.Fatalf(t, len(scoped) == 1 && scoped[0].Name == "prefix/x", "prefix scan = %v", scoped)
}

func TestVersionOrdering(t *testing.T) {
	s := openTestStore(t)
	versions := NewVersionRepo(s)

	now := time.Now().UTC()
	add := func(name string, gen int64) {
		err := s.Update(func(tx *buntdb.Tx) error {
			return versions.Put(tx, &model.ObjectVersion{
				ID: name, BucketID: "b1", Name: name, Generation: gen, CreatedAt: now,
			})
		})
		tassert.CheckFatal(t, err)
	}
	add("b", 1)
	add("a", 1)
	add("a", 2)
	add("a", 10) // ordering must be numeric, not lexicographic

	vs, err := versions.ListDescending("b1", "a")
	tassert.CheckFatal(t, err)
	tassert.Fatalf(t, len(vs) == 3, "version count = %d", len(vs))
	tassert.Errorf(t, vs[0].Generation == 10 && vs[1].Generation == 2 && vs[2].Generation == 1,
		"descending order broken: %d %d %d", vs[0].Generation, vs[1].Generation, vs[2].Generation)

	all, err := versions.ListAllInBucket("b1")
	tassert.CheckFatal(t, err)
	tassert.Fatalf(t, len(all) == 4, "bucket-wide count = %d", len(all))
	tassert.Errorf(t, all[0].Name == "a" && all[0].Generation == 10, "first = %s gen %d", all[0].Name, all[0].Generation)
	tassert.Errorf(t, all[3].Name == "b", "last = %s", all[3].Name)

	// (bucket, name, generation) is unique
	err = s.Update(func(tx *buntdb.Tx) error {
		return versions.Put(tx, &model.ObjectVersion{ID: "dup", BucketID: "b1", Name: "a", Generation: 10, CreatedAt: now})
	})
	tassert.Errorf(t, cmn.AsTaxonomy(err).Code() == cmn.CodeAlreadyExists, "duplicate generation accepted: %v", err)
}
