package objectstore

import (
	"io"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/cloudemu/cloudemu/internal/cluster"
	"github.com/cloudemu/cloudemu/internal/cmn"
	"github.com/cloudemu/cloudemu/internal/model"
)

var metaJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// ContentRange is a parsed "bytes S-E/T" or "bytes */T" header.
type ContentRange struct {
	Start       int64 // -1 when the chunk carries no bytes (status probe)
	End         int64 // -1 likewise
	Total       int64 // -1 when size is not yet known
	HasBytes    bool
}

// ParseContentRange accepts the two forms GCS resumable clients send.
func ParseContentRange(header string) (ContentRange, error) {
	const prefix = "bytes "
	if !strings.HasPrefix(header, prefix) {
		return ContentRange{}, cmn.NewInvalidArgument("malformed Content-Range %q", header)
	}
	rest := strings.TrimPrefix(header, prefix)
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 {
		return ContentRange{}, cmn.NewInvalidArgument("malformed Content-Range %q", header)
	}
	total := int64(-1)
	if parts[1] != "*" {
		t, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return ContentRange{}, cmn.NewInvalidArgument("malformed Content-Range total %q", parts[1])
		}
		total = t
	}
	if parts[0] == "*" {
		return ContentRange{Start: -1, End: -1, Total: total}, nil
	}
	se := strings.SplitN(parts[0], "-", 2)
	if len(se) != 2 {
		return ContentRange{}, cmn.NewInvalidArgument("malformed Content-Range range %q", parts[0])
	}
	start, err1 := strconv.ParseInt(se[0], 10, 64)
	end, err2 := strconv.ParseInt(se[1], 10, 64)
	if err1 != nil || err2 != nil {
		return ContentRange{}, cmn.NewInvalidArgument("malformed Content-Range range %q", parts[0])
	}
	return ContentRange{Start: start, End: end, Total: total, HasBytes: true}, nil
}

// InitiateResumableParams mirrors the JSON metadata body a resumable
// initiate request carries.
type InitiateResumableParams struct {
	BucketID       string
	Name           string
	ContentType    string
	CustomMetadata map[string]string
	TotalSize      int64 // -1 if unknown at initiate time
	Pre            Preconditions
}

// InitiateResumable creates a session and its backing temp file. Any
// preconditions supplied at initiate are stored and re-evaluated at
// finalize time, so they apply identically to a resumable upload as to a
// plain one.
func (s *Service) InitiateResumable(p InitiateResumableParams) (*model.ResumableSession, error) {
	id := cmn.NewID()
	tempPath, err := s.content.CreateTemp(id)
	if err != nil {
		return nil, err
	}
	sess := &model.ResumableSession{
		SessionID: id, BucketID: p.BucketID, ObjectName: p.Name,
		ContentType: p.ContentType, MetadataJSON: encodeMeta(p.CustomMetadata),
		CurrentOffset: 0, TotalSize: p.TotalSize, TempPath: tempPath,
		CreatedAt: s.clock.Now(), IfGenMatch: p.Pre.IfGenMatch, IfGenNotMatch: p.Pre.IfGenNotMatch,
	}
	if err := s.sessions.Create(sess); err != nil {
		s.content.RemoveTemp(tempPath)
		return nil, err
	}
	return sess, nil
}

// ChunkResult tells the caller whether the upload finalized (finalize
// returns the new head) or is still incomplete (caller emits HTTP 308
// with Range: bytes=0-offset-1).
type ChunkResult struct {
	Finalized bool
	Object    *model.Object
	Offset    int64
}

// PutChunk enforces strict linear append: cr.Start must equal the
// session's current offset or the chunk is rejected outright, before any
// byte is written, so a cancelled or retried chunk can never advance
// CurrentOffset past durable bytes.
func (s *Service) PutChunk(sessionID string, cr ContentRange, body io.Reader) (*ChunkResult, error) {
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}
	if cr.HasBytes && cr.Start != sess.CurrentOffset {
		return nil, cmn.NewInvalidArgument("chunk start %d does not match session offset %d", cr.Start, sess.CurrentOffset)
	}
	if cr.Total > 0 {
		sess.TotalSize = cr.Total
	}

	if cr.HasBytes {
		n, err := s.content.AppendAt(sess.TempPath, cr.Start, body)
		if err != nil {
			return nil, err
		}
		sess.CurrentOffset = cr.Start + n
		if err := s.sessions.Update(sess); err != nil {
			return nil, err
		}
	}

	if sess.TotalSize < 0 || sess.CurrentOffset < sess.TotalSize {
		return &ChunkResult{Finalized: false, Offset: sess.CurrentOffset}, nil
	}

	obj, err := s.finalizeSession(sess)
	if err != nil {
		return nil, err
	}
	return &ChunkResult{Finalized: true, Object: obj, Offset: sess.CurrentOffset}, nil
}

// finalizeSession runs the completed temp file through the same commit
// path as a normal upload, then deletes the session.
func (s *Service) finalizeSession(sess *model.ResumableSession) (*model.Object, error) {
	var result *model.Object
	err := s.locks.WithLock(cluster.ObjectLockName(sess.BucketID, sess.ObjectName), func() error {
		head, curGen, curMeta, err := s.peekHead(sess.BucketID, sess.ObjectName)
		if err != nil {
			return err
		}
		pre := Preconditions{IfGenMatch: sess.IfGenMatch, IfGenNotMatch: sess.IfGenNotMatch}
		if err := evalPreconditions(pre, curGen, curMeta); err != nil {
			return err
		}
		wr, err := s.content.FinalizeFromTemp(sess.BucketID, sess.TempPath)
		if err != nil {
			return err
		}
		obj, bucket, err := s.commitNewVersion(UploadParams{
			BucketID: sess.BucketID, Name: sess.ObjectName, ContentType: sess.ContentType,
			CustomMetadata: decodeMeta(sess.MetadataJSON),
		}, wr, head)
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
	if derr := s.sessions.Delete(sess.SessionID); derr != nil {
		// The upload already committed; a stray session row only risks a
		// future orphan-temp sweep no-op, never a correctness issue.
		_ = derr
	}
	return result, nil
}

func encodeMeta(m map[string]string) string {
	if len(m) == 0 {
		return ""
	}
	b, err := metaJSON.Marshal(m)
	if err != nil {
		return ""
	}
	return string(b)
}

func decodeMeta(s string) map[string]string {
	if s == "" {
		return nil
	}
	out := map[string]string{}
	if err := metaJSON.Unmarshal([]byte(s), &out); err != nil {
		return nil
	}
	return out
}
