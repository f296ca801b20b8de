// Package objectstore provides multi-version object semantics:
// generation/metageneration bookkeeping, conditional-write preconditions,
// resumable/multipart uploads, signed URLs, lifecycle execution, and
// change-event fan-out.
package objectstore

import (
	"io"
	"sort"
	"strings"

	"github.com/cloudemu/cloudemu/internal/cluster"
	"github.com/cloudemu/cloudemu/internal/cmn"
	"github.com/cloudemu/cloudemu/internal/content"
	"github.com/cloudemu/cloudemu/internal/model"
	"github.com/cloudemu/cloudemu/internal/repo"
	"github.com/cloudemu/cloudemu/internal/stats"
	"github.com/tidwall/buntdb"
	"golang.org/x/sync/singleflight"
)

// Preconditions bundles the four optional if-match headers evaluated, in
// order, before any byte is persisted.
type Preconditions struct {
	IfGenMatch    *int64
	IfGenNotMatch *int64
	IfMetaMatch   *int64
	IfMetaNotMatch *int64
}

// Service is the object store. It takes its repositories, content store,
// key lock, clock, and event sink as explicit constructor arguments.
type Service struct {
	store    *repo.Store
	objects  *repo.ObjectRepo
	versions *repo.VersionRepo
	buckets  *repo.BucketRepo
	sessions *repo.SessionRepo
	content  *content.Store
	locks    *cluster.KeyLock
	clock    cmn.Clock
	events   EventSink

	// headGroup coalesces concurrent metadata stats of the same head so a
	// burst of readers costs one repository round trip.
	headGroup singleflight.Group
}

func New(store *repo.Store, objects *repo.ObjectRepo, versions *repo.VersionRepo, buckets *repo.BucketRepo,
	sessions *repo.SessionRepo, cs *content.Store, locks *cluster.KeyLock, clock cmn.Clock, events EventSink) *Service {
	return &Service{
		store: store, objects: objects, versions: versions, buckets: buckets, sessions: sessions,
		content: cs, locks: locks, clock: clock, events: mustNotNil(events),
	}
}

// evalPreconditions checks the ordered precondition list against the
// current head (nil if none exists). curGen/curMeta are 0 when there is
// no current head; a client's if-generation-match of 0 means "no object".
func evalPreconditions(pre Preconditions, curGen, curMeta int64) error {
	if pre.IfGenMatch != nil && *pre.IfGenMatch != curGen {
		return cmn.NewPreconditionFailed("if-generation-match %d does not equal current generation %d", *pre.IfGenMatch, curGen)
	}
	if pre.IfGenNotMatch != nil && *pre.IfGenNotMatch == curGen {
		return cmn.NewPreconditionFailed("if-generation-not-match %d equals current generation", *pre.IfGenNotMatch)
	}
	if pre.IfMetaMatch != nil && *pre.IfMetaMatch != curMeta {
		return cmn.NewPreconditionFailed("if-metageneration-match %d does not equal current metageneration %d", *pre.IfMetaMatch, curMeta)
	}
	if pre.IfMetaNotMatch != nil && *pre.IfMetaNotMatch == curMeta {
		return cmn.NewPreconditionFailed("if-metageneration-not-match %d equals current metageneration", *pre.IfMetaNotMatch)
	}
	return nil
}

// UploadParams is the input to Upload; ContentType and CustomMetadata are
// optional and default to empty.
type UploadParams struct {
	BucketID       string
	BucketName     string
	Name           string
	ContentType    string
	CustomMetadata map[string]string
	Pre            Preconditions
}

// Upload resolves the head, evaluates preconditions, persists bytes, then
// allocates a new generation and commits head+version in one
// transaction. Writes to the same (bucket,name) are serialized by the
// KeyLock held for the whole operation.
func (s *Service) Upload(p UploadParams, body io.Reader) (*model.Object, error) {
	var result *model.Object
	err := s.locks.WithLock(cluster.ObjectLockName(p.BucketID, p.Name), func() error {
		head, curGen, curMeta, err := s.peekHead(p.BucketID, p.Name)
		if err != nil {
			return err
		}
		if err := evalPreconditions(p.Pre, curGen, curMeta); err != nil {
			return err
		}

		wr, err := s.content.Put(p.BucketID, body)
		if err != nil {
			return err
		}

		obj, bucket, err := s.commitNewVersion(p, wr, head)
		if err != nil {
			s.content.Remove(wr.Path)
			return err
		}
		result = obj
		s.events.Enqueue(finalizeEvent(bucket.Name, obj))
		return nil
	})
	if err != nil {
		stats.ObjectOps.WithLabelValues("upload", "error").Inc()
		return nil, err
	}
	stats.ObjectOps.WithLabelValues("upload", "ok").Inc()
	return result, nil
}

func (s *Service) peekHead(bucketID, name string) (head *model.Object, curGen, curMeta int64, err error) {
	head, err = s.objects.GetHead(bucketID, name)
	if err != nil {
		if cmn.AsTaxonomy(err).Code() != cmn.CodeNotFound {
			return nil, 0, 0, err
		}
		return nil, 0, 0, nil
	}
	return head, head.Generation, head.Metageneration, nil
}

// commitNewVersion runs the DB-transaction half of upload/resumable-finalize:
// allocate generation, insert version, upsert head, purge prior versions
// when versioning is disabled.
func (s *Service) commitNewVersion(p UploadParams, wr *content.WriteResult, priorHead *model.Object) (*model.Object, *model.Bucket, error) {
	bucket, err := s.buckets.Get(p.BucketID)
	if err != nil {
		return nil, nil, err
	}

	// Prior versions are listed before the write transaction opens: buntdb
	// transactions do not nest, and the caller's KeyLock keeps the list
	// current until the commit.
	var olds []*model.ObjectVersion
	if !bucket.VersioningEnabled && priorHead != nil {
		olds, err = s.versions.ListDescending(p.BucketID, p.Name)
		if err != nil {
			return nil, nil, err
		}
	}

	var newObj *model.Object
	var purge []*model.ObjectVersion
	txErr := s.transact(func(tx *buntdb.Tx) error {
		gen, err := s.objects.NextGeneration(tx, p.BucketID, p.Name)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		id := cmn.NewID()
		version := &model.ObjectVersion{
			ID: id, BucketID: p.BucketID, ObjectID: id, Name: p.Name,
			Generation: gen, Metageneration: 1, Size: wr.Size,
			ContentType: p.ContentType, MD5: wr.MD5, CRC32C: wr.CRC32C,
			StorageClass: bucket.StorageClass, FilePath: wr.Path,
			CreatedAt: now, CustomMetadata: p.CustomMetadata,
		}
		if err := s.versions.Put(tx, version); err != nil {
			return err
		}

		head := &model.Object{
			ID: id, BucketID: p.BucketID, Name: p.Name, Generation: gen,
			Metageneration: 1, Size: wr.Size, ContentType: p.ContentType,
			MD5: wr.MD5, CRC32C: wr.CRC32C, StorageClass: bucket.StorageClass,
			ACL: bucket.ACL, FilePath: wr.Path, IsLatest: true, Deleted: false,
			TimeCreated: now, UpdatedAt: now, CustomMetadata: p.CustomMetadata,
		}
		if err := s.objects.PutHead(tx, head); err != nil {
			return err
		}
		newObj = head

		if !bucket.VersioningEnabled && priorHead != nil {
			for _, v := range olds {
				if v.Generation == gen {
					continue
				}
				if err := s.versions.Delete(tx, p.BucketID, p.Name, v.Generation); err != nil && cmn.AsTaxonomy(err).Code() != cmn.CodeNotFound {
					return err
				}
				purge = append(purge, v)
			}
		}
		return nil
	})
	if txErr != nil {
		return nil, nil, txErr
	}
	for _, v := range purge {
		if v.FilePath != wr.Path {
			s.content.Remove(v.FilePath)
		}
	}
	return newObj, bucket, nil
}

func (s *Service) transact(fn func(tx *buntdb.Tx) error) error {
	return s.store.Update(fn)
}

// DownloadParams selects which version to serve.
type DownloadParams struct {
	BucketID   string
	Name       string
	Generation *int64 // nil => serve head
}

// Download serves the head when no generation is given, or the exact
// (possibly archived) version otherwise. Reads are lock-free and see
// committed state.
func (s *Service) Download(p DownloadParams) (io.ReadCloser, *model.ObjectVersion, error) {
	if p.Generation == nil {
		head, err := s.statHead(p.BucketID, p.Name)
		if err != nil {
			return nil, nil, err
		}
		if head.Deleted {
			return nil, nil, cmn.NewNotFound("object %s is deleted", p.Name)
		}
		r, err := s.content.Open(head.FilePath)
		if err != nil {
			return nil, nil, err
		}
		stats.ObjectOps.WithLabelValues("download", "ok").Inc()
		return r, headToVersion(head), nil
	}
	v, err := s.versions.Get(p.BucketID, p.Name, *p.Generation)
	if err != nil {
		return nil, nil, err
	}
	r, err := s.content.Open(v.FilePath)
	if err != nil {
		return nil, nil, err
	}
	stats.ObjectOps.WithLabelValues("download", "ok").Inc()
	return r, v, nil
}

// statHead reads the current head through the singleflight group, so a
// burst of concurrent readers of the same (bucket,name) collapses to one
// repository lookup. Writers never go through here; they re-read under
// the per-key lock.
func (s *Service) statHead(bucketID, name string) (*model.Object, error) {
	v, err, _ := s.headGroup.Do(cluster.ObjectLockName(bucketID, name), func() (interface{}, error) {
		return s.objects.GetHead(bucketID, name)
	})
	if err != nil {
		return nil, err
	}
	return v.(*model.Object), nil
}

func headToVersion(o *model.Object) *model.ObjectVersion {
	return &model.ObjectVersion{
		ID: o.ID, BucketID: o.BucketID, ObjectID: o.ID, Name: o.Name,
		Generation: o.Generation, Metageneration: o.Metageneration, Size: o.Size,
		ContentType: o.ContentType, MD5: o.MD5, CRC32C: o.CRC32C,
		StorageClass: o.StorageClass, FilePath: o.FilePath, CreatedAt: o.TimeCreated,
		CustomMetadata: o.CustomMetadata,
	}
}

// UpdateMetadata bumps metageneration by 1 without touching generation,
// gated by an optional If-Metageneration-Match precondition.
func (s *Service) UpdateMetadata(bucketID, name string, patch map[string]string, ifMetaMatch *int64) (*model.Object, error) {
	var result *model.Object
	var bucketName string
	err := s.locks.WithLock(cluster.ObjectLockName(bucketID, name), func() error {
		head, err := s.objects.GetHead(bucketID, name)
		if err != nil {
			return err
		}
		if ifMetaMatch != nil && *ifMetaMatch != head.Metageneration {
			return cmn.NewPreconditionFailed("if-metageneration-match %d does not equal current metageneration %d", *ifMetaMatch, head.Metageneration)
		}
		if head.CustomMetadata == nil {
			head.CustomMetadata = map[string]string{}
		}
		for k, v := range patch {
			head.CustomMetadata[k] = v
		}
		head.Metageneration++
		head.UpdatedAt = s.clock.Now()
		if err := s.transact(func(tx *buntdb.Tx) error { return s.objects.PutHead(tx, head) }); err != nil {
			return err
		}
		b, err := s.buckets.Get(bucketID)
		if err == nil {
			bucketName = b.Name
		}
		result = head
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.events.Enqueue(metadataEvent(bucketName, result))
	return result, nil
}

// Delete with versioning enabled and no generation marks the head
// deleted and keeps versions; with a generation it removes exactly that
// version; with versioning disabled it physically removes everything.
func (s *Service) Delete(bucketID string, name string, generation *int64) error {
	bucket, err := s.buckets.Get(bucketID)
	if err != nil {
		return err
	}
	var deletedPath string
	var genForEvent int64
	err = s.locks.WithLock(cluster.ObjectLockName(bucketID, name), func() error {
		if bucket.VersioningEnabled {
			if generation != nil {
				v, err := s.versions.Get(bucketID, name, *generation)
				if err != nil {
					return err
				}
				if err := s.transact(func(tx *buntdb.Tx) error { return s.versions.Delete(tx, bucketID, name, *generation) }); err != nil {
					return err
				}
				deletedPath = v.FilePath
				genForEvent = *generation
				return nil
			}
			head, err := s.objects.GetHead(bucketID, name)
			if err != nil {
				return err
			}
			if head.Deleted {
				return cmn.NewNotFound("object %s already deleted", name)
			}
			head.Deleted = true
			head.IsLatest = false
			genForEvent = head.Generation
			return s.transact(func(tx *buntdb.Tx) error { return s.objects.PutHead(tx, head) })
		}

		// versioning disabled: physically remove head + all versions.
		head, err := s.objects.GetHead(bucketID, name)
		if err != nil {
			return err
		}
		genForEvent = head.Generation
		olds, err := s.versions.ListDescending(bucketID, name)
		if err != nil {
			return err
		}
		err = s.transact(func(tx *buntdb.Tx) error {
			for _, v := range olds {
				if err := s.versions.Delete(tx, bucketID, name, v.Generation); err != nil && cmn.AsTaxonomy(err).Code() != cmn.CodeNotFound {
					return err
				}
			}
			return s.objects.DeleteHead(tx, bucketID, name)
		})
		if err != nil {
			return err
		}
		for _, v := range olds {
			s.content.Remove(v.FilePath)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if deletedPath != "" {
		s.content.Remove(deletedPath)
	}
	s.events.Enqueue(deleteEvent(bucket.Name, name, genForEvent))
	stats.ObjectOps.WithLabelValues("delete", "ok").Inc()
	return nil
}

// ListResult carries either head items or version rows, plus any common
// prefixes the delimiter produced.
type ListResult struct {
	Items    []*model.Object
	Versions []*model.ObjectVersion
	Prefixes []string
}

// List without a delimiter is a flat prefix scan; with one, names are
// split into common prefixes vs. leaf items; versions=true switches to
// the version-listing mode entirely.
func (s *Service) List(bucketID, prefix, delimiter string, versions bool) (*ListResult, error) {
	if versions {
		vs, err := s.versions.ListAllInBucket(bucketID)
		if err != nil {
			return nil, err
		}
		if prefix != "" {
			filtered := vs[:0]
			for _, v := range vs {
				if strings.HasPrefix(v.Name, prefix) {
					filtered = append(filtered, v)
				}
			}
			vs = filtered
		}
		return &ListResult{Versions: vs}, nil
	}

	heads, err := s.objects.ListHeads(bucketID, prefix)
	if err != nil {
		return nil, err
	}
	sort.Slice(heads, func(i, j int) bool { return heads[i].Name < heads[j].Name })
	if delimiter == "" {
		return &ListResult{Items: heads}, nil
	}

	seen := map[string]bool{}
	var prefixes []string
	var items []*model.Object
	for _, o := range heads {
		rest := strings.TrimPrefix(o.Name, prefix)
		if idx := strings.Index(rest, delimiter); idx >= 0 {
			cp := prefix + rest[:idx+len(delimiter)]
			if !seen[cp] {
				seen[cp] = true
				prefixes = append(prefixes, cp)
			}
			continue
		}
		items = append(items, o)
	}
	sort.Strings(prefixes)
	return &ListResult{Items: items, Prefixes: prefixes}, nil
}

// Copy atomically reads the latest src version and creates a new
// generation under dst, carrying content type and custom metadata along.
// Both keys' stripes are held for the whole operation; WithLockPair
// orders the acquisitions so a concurrent reverse copy cannot deadlock.
func (s *Service) Copy(srcBucketID, srcName, dstBucketID, dstName string) (*model.Object, error) {
	srcKey := cluster.ObjectLockName(srcBucketID, srcName)
	dstKey := cluster.ObjectLockName(dstBucketID, dstName)

	var result *model.Object
	err := s.locks.WithLockPair(srcKey, dstKey, func() error {
		src, err := s.objects.GetHead(srcBucketID, srcName)
		if err != nil {
			return err
		}
		if src.Deleted {
			return cmn.NewNotFound("source object %s is deleted", srcName)
		}
		r, err := s.content.Open(src.FilePath)
		if err != nil {
			return err
		}
		defer r.Close()

		priorDst, _, _, err := s.peekHead(dstBucketID, dstName)
		if err != nil {
			return err
		}
		wr, err := s.content.Put(dstBucketID, r)
		if err != nil {
			return err
		}
		obj, bucket, err := s.commitNewVersion(UploadParams{
			BucketID: dstBucketID, Name: dstName, ContentType: src.ContentType,
			CustomMetadata: cloneMeta(src.CustomMetadata),
		}, wr, priorDst)
		if err != nil {
			s.content.Remove(wr.Path)
			return err
		}
		result = obj
		s.events.Enqueue(finalizeEvent(bucket.Name, obj))
		return nil
	})
	if err != nil {
		return nil, err
	}
	stats.ObjectOps.WithLabelValues("copy", "ok").Inc()
	return result, nil
}

func cloneMeta(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func finalizeEvent(bucketName string, o *model.Object) *model.ObjectEvent {
	return &model.ObjectEvent{
		EventID: cmn.NewID(), BucketName: bucketName, ObjectName: o.Name,
		Generation: o.Generation, EventType: model.EventObjectFinalize,
		Payload: o.ID, CreatedAt: o.UpdatedAt,
	}
}

func metadataEvent(bucketName string, o *model.Object) *model.ObjectEvent {
	return &model.ObjectEvent{
		EventID: cmn.NewID(), BucketName: bucketName, ObjectName: o.Name,
		Generation: o.Generation, EventType: model.EventObjectMetadataUpdate,
		Payload: o.ID, CreatedAt: o.UpdatedAt,
	}
}

func deleteEvent(bucketName, name string, gen int64) *model.ObjectEvent {
	return &model.ObjectEvent{
		EventID: cmn.NewID(), BucketName: bucketName, ObjectName: name,
		Generation: gen, EventType: model.EventObjectDelete,
	}
}
