package api

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cloudemu/cloudemu/internal/cmn"
	"github.com/cloudemu/cloudemu/internal/model"
	"github.com/cloudemu/cloudemu/internal/objectstore"
	"github.com/cloudemu/cloudemu/internal/pipeline"
	"github.com/cloudemu/cloudemu/internal/wire"
)

// --- buckets ---

func (d *Deps) createBucket(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	projectID := r.URL.Query().Get("project")
	var req wire.CreateBucketRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	if err := createBucketSchema.Validate(map[string]string{
		"project": projectID, "name": req.Name, "acl": req.ACL,
	}); err != nil {
		return err
	}
	if _, err := d.Buckets.GetByName(req.Name); err == nil {
		return cmn.NewAlreadyExists("bucket %s already exists", req.Name)
	}
	now := d.Clock.Now()
	acl := model.ACLPrivate
	if req.ACL == string(model.ACLPublicRead) {
		acl = model.ACLPublicRead
	}
	b := &model.Bucket{
		ID:                cmn.NewID(),
		ProjectID:         projectID,
		Name:              req.Name,
		Location:          req.Location,
		StorageClass:      req.StorageClass,
		VersioningEnabled: req.VersioningEnabled,
		ACL:               acl,
		Labels:            req.Labels,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if b.StorageClass == "" {
		b.StorageClass = "STANDARD"
	}
	if err := d.Buckets.Create(b); err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, bucketResource(d.BaseURL, b))
	return nil
}

func (d *Deps) getBucket(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	b, err := d.Buckets.GetByName(pathVar(r, "bucket"))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, bucketResource(d.BaseURL, b))
	return nil
}

func (d *Deps) deleteBucket(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	b, err := d.Buckets.GetByName(pathVar(r, "bucket"))
	if err != nil {
		return err
	}
	// "zero non-deleted object versions": a live head always has a
	// version row, so the versions listing covers both
	n, err := d.Objects.List(b.ID, "", "", true)
	if err != nil {
		return err
	}
	if len(n.Versions) > 0 {
		return cmn.NewFailedPrecondition("bucket %s is not empty", b.Name)
	}
	if err := d.Buckets.Delete(b.ID, b.Name); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (d *Deps) listBuckets(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	projectID := r.URL.Query().Get("project")
	var bs []*model.Bucket
	var err error
	if projectID != "" {
		bs, err = d.Buckets.ListByProject(projectID)
	} else {
		bs, err = d.Buckets.ListAll()
	}
	if err != nil {
		return err
	}
	items := make([]map[string]interface{}, 0, len(bs))
	for _, b := range bs {
		items = append(items, bucketResource(d.BaseURL, b))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"kind": "storage#buckets", "items": items})
	return nil
}

// --- objects ---

func (d *Deps) resolveBucket(r *http.Request) (*model.Bucket, error) {
	return d.Buckets.GetByName(pathVar(r, "bucket"))
}

func preconditionsFromQuery(r *http.Request) (objectstore.Preconditions, error) {
	var pre objectstore.Preconditions
	var err error
	if pre.IfGenMatch, err = optionalInt64(r, "ifGenerationMatch"); err != nil {
		return pre, err
	}
	if pre.IfGenNotMatch, err = optionalInt64(r, "ifGenerationNotMatch"); err != nil {
		return pre, err
	}
	if pre.IfMetaMatch, err = optionalInt64(r, "ifMetagenerationMatch"); err != nil {
		return pre, err
	}
	if pre.IfMetaNotMatch, err = optionalInt64(r, "ifMetagenerationNotMatch"); err != nil {
		return pre, err
	}
	return pre, nil
}

// insertObject handles POST /upload/storage/v1/b/{bucket}/o, both the
// plain-media and multipart/related shapes.
func (d *Deps) insertObject(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	b, err := d.resolveBucket(r)
	if err != nil {
		return err
	}
	pre, err := preconditionsFromQuery(r)
	if err != nil {
		return err
	}

	name := r.URL.Query().Get("name")
	contentType := r.Header.Get("Content-Type")
	var customMeta map[string]string
	var body io.Reader = r.Body

	if uploadType := r.URL.Query().Get("uploadType"); uploadType == "multipart" {
		meta, payload, perr := objectstore.ParseMultipart(contentType, r.Body)
		if perr != nil {
			return perr
		}
		name = meta.Name
		contentType = meta.ContentType
		customMeta = meta.CustomMetadata
		body = bytes.NewReader(payload)
	}
	if err := pipeline.RequireField("name", name); err != nil {
		return err
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	o, err := d.Objects.Upload(objectstore.UploadParams{
		BucketID: b.ID, BucketName: b.Name, Name: name,
		ContentType: contentType, CustomMetadata: customMeta, Pre: pre,
	}, body)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, objectResource(d.BaseURL, o))
	return nil
}

// enforceReadACL mirrors the original acl_service's read-path check: a
// private bucket rejects anonymous callers, a publicRead bucket admits
// anyone. With auth disabled every caller is "anonymous" by definition,
// so the check only applies in optional/required modes. There is no
// per-object ACL override for reads; the bucket's ACL governs.
func (d *Deps) enforceReadACL(ctx context.Context, b *model.Bucket) error {
	if d.AuthMode == cmn.AuthDisabled || b.ACL == model.ACLPublicRead {
		return nil
	}
	principal := pipeline.IdentityFromContext(ctx).Principal
	if principal == "anonymous" {
		return cmn.NewPermissionDenied("bucket %s is not publicly readable", b.Name)
	}
	if d.AuthMode == cmn.AuthRequired {
		// required mode consults the resource policy; a missing policy
		// denies unless a binding names allUsers/allAuthenticatedUsers
		ok, err := d.IAM.HasPermission("buckets", b.Name, principal)
		if err != nil {
			return err
		}
		if !ok {
			return cmn.NewPermissionDenied("principal %s has no binding on bucket %s", principal, b.Name)
		}
	}
	return nil
}

func (d *Deps) getObject(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	b, err := d.resolveBucket(r)
	if err != nil {
		return err
	}
	if err := d.enforceReadACL(ctx, b); err != nil {
		return err
	}
	name := pathVar(r, "object")
	if r.URL.Query().Get("alt") == "media" {
		gen, gerr := optionalInt64(r, "generation")
		if gerr != nil {
			return gerr
		}
		rc, v, derr := d.Objects.Download(objectstore.DownloadParams{BucketID: b.ID, Name: name, Generation: gen})
		if derr != nil {
			return derr
		}
		defer rc.Close()
		w.Header().Set("Content-Type", v.ContentType)
		w.Header().Set("Content-Length", strconv.FormatInt(v.Size, 10))
		w.WriteHeader(http.StatusOK)
		_, _ = io.Copy(w, rc)
		return nil
	}

	gen, err := optionalInt64(r, "generation")
	if err != nil {
		return err
	}
	_, v, err := d.Objects.Download(objectstore.DownloadParams{BucketID: b.ID, Name: name, Generation: gen})
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, versionResource(d.BaseURL, v))
	return nil
}

func (d *Deps) updateObjectMetadata(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	b, err := d.resolveBucket(r)
	if err != nil {
		return err
	}
	var req wire.UpdateObjectMetadataRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	ifMeta, err := optionalInt64(r, "ifMetagenerationMatch")
	if err != nil {
		return err
	}
	o, err := d.Objects.UpdateMetadata(b.ID, pathVar(r, "object"), req.CustomMetadata, ifMeta)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, objectResource(d.BaseURL, o))
	return nil
}

func (d *Deps) deleteObject(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	b, err := d.resolveBucket(r)
	if err != nil {
		return err
	}
	gen, err := optionalInt64(r, "generation")
	if err != nil {
		return err
	}
	if err := d.Objects.Delete(b.ID, pathVar(r, "object"), gen); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (d *Deps) listObjects(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	b, err := d.resolveBucket(r)
	if err != nil {
		return err
	}
	versions := r.URL.Query().Get("versions") == "true"
	result, err := d.Objects.List(b.ID, r.URL.Query().Get("prefix"), r.URL.Query().Get("delimiter"), versions)
	if err != nil {
		return err
	}
	resp := map[string]interface{}{"kind": "storage#objects", "prefixes": result.Prefixes}
	if versions {
		items := make([]map[string]interface{}, 0, len(result.Versions))
		for _, v := range result.Versions {
			items = append(items, versionResource(d.BaseURL, v))
		}
		resp["items"] = items
	} else {
		items := make([]map[string]interface{}, 0, len(result.Items))
		for _, o := range result.Items {
			items = append(items, objectResource(d.BaseURL, o))
		}
		resp["items"] = items
	}
	writeJSON(w, http.StatusOK, resp)
	return nil
}

func (d *Deps) copyObject(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	srcBucket, err := d.Buckets.GetByName(pathVar(r, "bucket"))
	if err != nil {
		return err
	}
	dstBucket, err := d.Buckets.GetByName(pathVar(r, "dstBucket"))
	if err != nil {
		return err
	}
	o, err := d.Objects.Copy(srcBucket.ID, pathVar(r, "object"), dstBucket.ID, pathVar(r, "dstObject"))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, objectResource(d.BaseURL, o))
	return nil
}

// --- resumable uploads ---

func (d *Deps) initiateResumable(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	b, err := d.resolveBucket(r)
	if err != nil {
		return err
	}
	pre, err := preconditionsFromQuery(r)
	if err != nil {
		return err
	}
	var req wire.UpdateObjectMetadataRequest
	name := r.URL.Query().Get("name")
	ct := r.Header.Get("X-Upload-Content-Type")
	if r.ContentLength > 0 {
		if err := decodeJSON(r, &req); err == nil {
			if req.ContentType != "" {
				ct = req.ContentType
			}
		}
	}
	if err := pipeline.RequireField("name", name); err != nil {
		return err
	}
	if ct == "" {
		ct = "application/octet-stream"
	}
	totalSize := int64(-1)
	if v := r.Header.Get("X-Upload-Content-Length"); v != "" {
		if n, perr := strconv.ParseInt(v, 10, 64); perr == nil {
			totalSize = n
		}
	}
	sess, err := d.Objects.InitiateResumable(objectstore.InitiateResumableParams{
		BucketID: b.ID, Name: name, ContentType: ct,
		CustomMetadata: req.CustomMetadata, TotalSize: totalSize, Pre: pre,
	})
	if err != nil {
		return err
	}
	w.Header().Set("Location", d.BaseURL+"/upload/storage/v1/b/"+b.Name+"/o?uploadType=resumable&upload_id="+sess.SessionID)
	w.WriteHeader(http.StatusOK)
	return nil
}

func (d *Deps) putResumableChunk(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	sessionID := r.URL.Query().Get("upload_id")
	if err := pipeline.RequireField("upload_id", sessionID); err != nil {
		return err
	}
	cr, err := objectstore.ParseContentRange(r.Header.Get("Content-Range"))
	if err != nil {
		return err
	}
	result, err := d.Objects.PutChunk(sessionID, cr, r.Body)
	if err != nil {
		return err
	}
	if !result.Finalized {
		w.Header().Set("Range", "bytes=0-"+strconv.FormatInt(result.Offset-1, 10))
		w.WriteHeader(http.StatusPermanentRedirect)
		return nil
	}
	writeJSON(w, http.StatusOK, objectResource(d.BaseURL, result.Object))
	return nil
}

// --- signed URLs ---

func (d *Deps) signObjectURL(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	b, err := d.resolveBucket(r)
	if err != nil {
		return err
	}
	var req struct {
		Method    string `json:"method"`
		ExpiresIn int    `json:"expiresInSeconds"`
	}
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	if req.Method == "" {
		req.Method = http.MethodGet
	}
	if req.ExpiresIn <= 0 {
		req.ExpiresIn = 900
	}
	path := "/signed/" + b.Name + "/" + pathVar(r, "object")
	q := d.Signer.Sign(req.Method, path, time.Duration(req.ExpiresIn)*time.Second)
	writeJSON(w, http.StatusOK, map[string]interface{}{"signedUrl": d.BaseURL + path + "?" + q.Encode()})
	return nil
}

// signedDownload serves GET /signed/{bucket}/{object}: signature and
// expiry are verified before any bucket or object lookup happens.
func (d *Deps) signedDownload(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	if err := d.Signer.Verify(http.MethodGet, r.URL.Path, r.URL.Query()); err != nil {
		return err
	}
	b, err := d.resolveBucket(r)
	if err != nil {
		return err
	}
	rc, v, err := d.Objects.Download(objectstore.DownloadParams{BucketID: b.ID, Name: pathVar(r, "object")})
	if err != nil {
		return err
	}
	defer rc.Close()
	w.Header().Set("Content-Type", v.ContentType)
	w.Header().Set("Content-Length", strconv.FormatInt(v.Size, 10))
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, rc)
	return nil
}

// signedUpload serves PUT /signed/{bucket}/{object}.
func (d *Deps) signedUpload(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	if err := d.Signer.Verify(http.MethodPut, r.URL.Path, r.URL.Query()); err != nil {
		return err
	}
	b, err := d.resolveBucket(r)
	if err != nil {
		return err
	}
	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	o, err := d.Objects.Upload(objectstore.UploadParams{
		BucketID: b.ID, BucketName: b.Name, Name: pathVar(r, "object"), ContentType: contentType,
	}, r.Body)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, objectResource(d.BaseURL, o))
	return nil
}

// mediaDownload serves GET /{bucket}/{object}, the direct-download path
// the provider's client SDKs use for reads. Equivalent to the JSON
// endpoint with alt=media.
func (d *Deps) mediaDownload(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	b, err := d.resolveBucket(r)
	if err != nil {
		return err
	}
	if err := d.enforceReadACL(ctx, b); err != nil {
		return err
	}
	gen, err := optionalInt64(r, "generation")
	if err != nil {
		return err
	}
	rc, v, err := d.Objects.Download(objectstore.DownloadParams{BucketID: b.ID, Name: pathVar(r, "object"), Generation: gen})
	if err != nil {
		return err
	}
	defer rc.Close()
	w.Header().Set("Content-Type", v.ContentType)
	w.Header().Set("Content-Length", strconv.FormatInt(v.Size, 10))
	// The provider's client libraries read object metadata off these
	// headers on direct downloads.
	w.Header().Set("X-Goog-Generation", wire.FormatGeneration(v.Generation))
	w.Header().Set("X-Goog-Metageneration", wire.FormatGeneration(v.Metageneration))
	w.Header().Set("X-Goog-Hash", "crc32c="+v.CRC32C+",md5="+v.MD5)
	w.Header().Set("Accept-Ranges", "bytes")
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, rc)
	return nil
}

// putResumableChunkByPath is the PUT /upload/resumable/{sessionId} twin
// of putResumableChunk for clients that carry the session id in the path
// instead of the upload_id query parameter.
func (d *Deps) putResumableChunkByPath(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	sessionID := pathVar(r, "sessionID")
	cr, err := objectstore.ParseContentRange(r.Header.Get("Content-Range"))
	if err != nil {
		return err
	}
	result, err := d.Objects.PutChunk(sessionID, cr, r.Body)
	if err != nil {
		return err
	}
	if !result.Finalized {
		w.Header().Set("Range", "bytes=0-"+strconv.FormatInt(result.Offset-1, 10))
		w.WriteHeader(http.StatusPermanentRedirect)
		return nil
	}
	writeJSON(w, http.StatusOK, objectResource(d.BaseURL, result.Object))
	return nil
}
