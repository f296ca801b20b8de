package objectstore

import (
	"context"
	"time"

	"github.com/golang/glog"
	"github.com/tidwall/buntdb"

	"github.com/cloudemu/cloudemu/internal/cluster"
	"github.com/cloudemu/cloudemu/internal/cmn"
	"github.com/cloudemu/cloudemu/internal/model"
	"github.com/cloudemu/cloudemu/internal/repo"
	"github.com/cloudemu/cloudemu/internal/stats"
)

// LifecycleWorker executes bucket lifecycle rules in the background: a
// long-lived loop that wakes on a configurable interval. Deletes go
// through Service.Delete; the archive action rewrites the head and
// version rows through the repositories while holding the object's lock.
type LifecycleWorker struct {
	svc      *Service
	buckets  *repo.BucketRepo
	versions *repo.VersionRepo
	clock    cmn.Clock
	interval time.Duration
}

func NewLifecycleWorker(svc *Service, buckets *repo.BucketRepo, versions *repo.VersionRepo, clock cmn.Clock, interval time.Duration) *LifecycleWorker {
	return &LifecycleWorker{svc: svc, buckets: buckets, versions: versions, clock: clock, interval: interval}
}

// Run blocks until ctx is cancelled, ticking every interval. Cancellation
// is cooperative: a tick in progress finishes before Run returns.
func (w *LifecycleWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.tick()
		}
	}
}

// RunOnce evaluates every lifecycle rule on every bucket a single time,
// exposed for the standalone "lifecycle run-once" CLI invocation.
func (w *LifecycleWorker) RunOnce() { w.tick() }

// sessionTTL bounds how long a resumable session survives after its
// creation before its row and temp file are reclaimed; chunk activity
// does not extend it.
const sessionTTL = 24 * time.Hour

// tick evaluates every lifecycle rule on every bucket once, then reclaims
// expired resumable sessions and orphaned temp files. Rules are treated
// as a set under union semantics; persisted order does not affect
// evaluation.
func (w *LifecycleWorker) tick() {
	w.sweepSessions()
	buckets, err := w.buckets.ListAll()
	if err != nil {
		glog.Errorf("lifecycle: list buckets: %v", err)
		return
	}
	now := w.clock.Now()
	deleted, archived := 0, 0
	for _, b := range buckets {
		if len(b.Lifecycle.Rules) == 0 {
			continue
		}
		d, a := w.applyRules(b, now)
		deleted += d
		archived += a
	}
	if deleted > 0 || archived > 0 {
		glog.Infof("lifecycle: tick complete, deleted=%d archived=%d", deleted, archived)
	}
}

// sweepSessions deletes resumable sessions created more than sessionTTL ago together
// with their temp files, then removes any temp file no live session
// claims.
func (w *LifecycleWorker) sweepSessions() {
	cutoff := w.clock.Now().Add(-sessionTTL).Unix()
	expired, err := w.svc.sessions.ListExpiredBefore(cutoff)
	if err != nil {
		glog.Errorf("lifecycle: list expired sessions: %v", err)
		return
	}
	for _, sess := range expired {
		w.svc.content.RemoveTemp(sess.TempPath)
		if err := w.svc.sessions.Delete(sess.SessionID); err != nil && cmn.AsTaxonomy(err).Code() != cmn.CodeNotFound {
			glog.Warningf("lifecycle: delete expired session %s: %v", sess.SessionID, err)
		}
	}

	live, err := w.svc.sessions.LiveSessionIDs()
	if err != nil {
		glog.Errorf("lifecycle: list live sessions: %v", err)
		return
	}
	if removed, err := w.svc.content.SweepOrphanTemp(live); err != nil {
		glog.Warningf("lifecycle: orphan temp sweep: %v", err)
	} else if removed > 0 {
		glog.Infof("lifecycle: removed %d orphan temp files", removed)
	}
}

func (w *LifecycleWorker) applyRules(b *model.Bucket, now time.Time) (deleted, archived int) {
	heads, err := w.svc.objects.ListHeads(b.ID, "")
	if err != nil {
		glog.Errorf("lifecycle: list heads for bucket %s: %v", b.Name, err)
		return
	}
	for _, rule := range b.Lifecycle.Rules {
		for _, head := range heads {
			age := now.Sub(head.TimeCreated)
			if int(age.Hours()/24) < rule.AgeDays {
				continue
			}
			switch rule.Action {
			case model.LifecycleDelete:
				if err := w.svc.Delete(b.ID, head.Name, nil); err != nil {
					if cmn.AsTaxonomy(err).Code() != cmn.CodeNotFound {
						glog.Warningf("lifecycle: delete %s/%s: %v", b.Name, head.Name, err)
					}
					continue
				}
				deleted++
				stats.LifecycleActions.WithLabelValues("delete").Inc()
			case model.LifecycleArchive:
				if head.StorageClass == "ARCHIVE" {
					continue // already archived, idempotent on re-run
				}
				if err := w.archiveObject(b.ID, head); err != nil {
					glog.Warningf("lifecycle: archive %s/%s: %v", b.Name, head.Name, err)
					continue
				}
				archived++
				stats.LifecycleActions.WithLabelValues("archive").Inc()
			}
		}
	}
	return deleted, archived
}

// archiveObject sets storage class to ARCHIVE for the head and every
// version, bypassing the upload path since no bytes or generation change.
// Holds the object's stripe so a concurrent upload cannot interleave with
// the read-modify-write.
func (w *LifecycleWorker) archiveObject(bucketID string, head *model.Object) error {
	return w.svc.locks.WithLock(cluster.ObjectLockName(bucketID, head.Name), func() error {
		cur, err := w.svc.objects.GetHead(bucketID, head.Name)
		if err != nil {
			return err
		}
		cur.StorageClass = "ARCHIVE"
		if err := w.svc.store.Update(func(tx *buntdb.Tx) error { return w.svc.objects.PutHead(tx, cur) }); err != nil {
			return err
		}
		versions, err := w.versions.ListDescending(bucketID, head.Name)
		if err != nil {
			return err
		}
		return w.svc.store.Update(func(tx *buntdb.Tx) error {
			for _, v := range versions {
				v.StorageClass = "ARCHIVE"
				if err := w.versions.Update(tx, v); err != nil {
					return err
				}
			}
			return nil
		})
	})
}
