// Package content is the byte-addressed blob backend: object payload
// files under STORAGE_ROOT, and a temp region for in-flight resumable
// uploads.
package content

import (
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"

	"github.com/karrick/godirwalk"

	"github.com/cloudemu/cloudemu/internal/cmn"
)

var crc32cTable = crc32.MakeTable(crc32.Castagnoli)

// Store owns every byte on disk under root. Nothing outside this package
// opens a payload file directly.
type Store struct {
	root string
}

func New(root string) (*Store, error) {
	if err := os.MkdirAll(filepath.Join(root, "tmp"), 0o755); err != nil {
		return nil, cmn.WrapInternal(err, "create storage root %s", root)
	}
	return &Store{root: root}, nil
}

func (s *Store) Root() string { return s.root }

func (s *Store) bucketDir(bucketID string) string { return filepath.Join(s.root, bucketID) }

// WriteResult carries the digest/size pair every upload path needs to
// populate Object/ObjectVersion rows.
type WriteResult struct {
	Path   string
	Size   int64
	MD5    string // base64, GCS wire convention
	CRC32C string // base64
}

// Put streams r into a fresh file under bucketID and returns its digest.
// The file is written to a temp name first and renamed into place, so a
// reader can never observe a partial object and a failed upload leaves no
// half-written blob behind.
func (s *Store) Put(bucketID string, r io.Reader) (*WriteResult, error) {
	dir := s.bucketDir(bucketID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, cmn.WrapInternal(err, "create bucket dir %s", dir)
	}
	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return nil, cmn.WrapInternal(err, "create temp payload file")
	}
	tmpPath := tmp.Name()
	md5h := md5.New()
	crcH := crc32.New(crc32cTable)
	mw := io.MultiWriter(tmp, md5h, crcH)
	size, err := io.Copy(mw, r)
	closeErr := tmp.Close()
	if err != nil {
		os.Remove(tmpPath)
		return nil, cmn.WrapInternal(err, "write payload")
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return nil, cmn.WrapInternal(closeErr, "close payload file")
	}
	finalName := filepath.Join(dir, cmn.NewID())
	if err := os.Rename(tmpPath, finalName); err != nil {
		os.Remove(tmpPath)
		return nil, cmn.WrapInternal(err, "rename payload into place")
	}
	return &WriteResult{
		Path:   finalName,
		Size:   size,
		MD5:    base64.StdEncoding.EncodeToString(md5h.Sum(nil)),
		CRC32C: base64.StdEncoding.EncodeToString(crcH.Sum(nil)),
	}, nil
}

func (s *Store) Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, cmn.NewNotFound("payload missing at %s", path)
		}
		return nil, cmn.WrapInternal(err, "open payload %s", path)
	}
	return f, nil
}

func (s *Store) Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return cmn.WrapInternal(err, "remove payload %s", path)
	}
	return nil
}

// --- resumable temp region ---

func (s *Store) tempPath(sessionID string) string {
	return filepath.Join(s.root, "tmp", sessionID)
}

// CreateTemp opens (creating if absent) the append-only temp file backing
// a resumable session.
func (s *Store) CreateTemp(sessionID string) (string, error) {
	p := s.tempPath(sessionID)
	f, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return "", cmn.WrapInternal(err, "create resumable temp file")
	}
	f.Close()
	return p, nil
}

// AppendAt writes chunk at the given byte offset in the session's temp
// file. Writing at an explicit offset (rather than always appending) lets
// a retried chunk overwrite itself idempotently without corrupting
// already-durable bytes ahead of it.
func (s *Store) AppendAt(path string, offset int64, chunk io.Reader) (int64, error) {
	f, err := os.OpenFile(path, os.O_WRONLY, 0o644)
	if err != nil {
		return 0, cmn.WrapInternal(err, "open resumable temp file")
	}
	defer f.Close()
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return 0, cmn.WrapInternal(err, "seek resumable temp file")
	}
	n, err := io.Copy(f, chunk)
	if err != nil {
		return n, cmn.WrapInternal(err, "append resumable chunk")
	}
	return n, nil
}

// FinalizeFromTemp computes digests over the completed temp file and
// moves it into the bucket's payload directory, the same path a direct
// upload's Put takes, so both converge on one commit code path.
func (s *Store) FinalizeFromTemp(bucketID, tempPath string) (*WriteResult, error) {
	f, err := os.Open(tempPath)
	if err != nil {
		return nil, cmn.WrapInternal(err, "open completed resumable temp file")
	}
	defer f.Close()
	res, err := s.Put(bucketID, f)
	if err != nil {
		return nil, err
	}
	os.Remove(tempPath)
	return res, nil
}

func (s *Store) RemoveTemp(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return cmn.WrapInternal(err, "remove resumable temp file %s", path)
	}
	return nil
}

// SweepOrphanTemp walks STORAGE_ROOT/tmp for files with no corresponding
// live session (caller supplies the still-valid set) and removes them;
// godirwalk keeps this cheap even with a large number of stale temp
// files.
func (s *Store) SweepOrphanTemp(liveSessionIDs map[string]bool) (removed int, err error) {
	tmpDir := filepath.Join(s.root, "tmp")
	err = godirwalk.Walk(tmpDir, &godirwalk.Options{
		Callback: func(path string, de *godirwalk.Dirent) error {
			if path == tmpDir || de.IsDir() {
				return nil
			}
			name := filepath.Base(path)
			if !liveSessionIDs[name] {
				if rmErr := os.Remove(path); rmErr == nil {
					removed++
				}
			}
			return nil
		},
		Unsorted: true,
	})
	if err != nil {
		return removed, cmn.WrapInternal(err, "sweep orphan temp files")
	}
	return removed, nil
}

// DigestHex mirrors the MD5 hex encoding some wire responses want
// alongside the base64 form.
func DigestHex(b64 string) string {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return ""
	}
	return hex.EncodeToString(raw)
}
