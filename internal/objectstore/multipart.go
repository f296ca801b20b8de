package objectstore

import (
	"encoding/json"
	"io"
	"mime"
	"mime/multipart"

	"github.com/cloudemu/cloudemu/internal/cmn"
)

// MultipartMetadata is the JSON first part of a multipart/related upload.
type MultipartMetadata struct {
	Name           string            `json:"name"`
	ContentType    string            `json:"contentType"`
	CustomMetadata map[string]string `json:"metadata"`
}

// ParseMultipart extracts the boundary from contentType and splits body
// into its JSON-metadata part and payload part.
func ParseMultipart(contentType string, body io.Reader) (*MultipartMetadata, []byte, error) {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil, nil, cmn.NewInvalidArgument("malformed Content-Type %q: %v", contentType, err)
	}
	if mediaType != "multipart/related" {
		return nil, nil, cmn.NewInvalidArgument("expected multipart/related, got %q", mediaType)
	}
	boundary, ok := params["boundary"]
	if !ok {
		return nil, nil, cmn.NewInvalidArgument("multipart/related missing boundary")
	}

	mr := multipart.NewReader(body, boundary)

	metaPart, err := mr.NextPart()
	if err != nil {
		return nil, nil, cmn.NewInvalidArgument("multipart: missing metadata part: %v", err)
	}
	metaBytes, err := io.ReadAll(metaPart)
	if err != nil {
		return nil, nil, cmn.NewInvalidArgument("multipart: read metadata part: %v", err)
	}
	var meta MultipartMetadata
	if err := json.Unmarshal(metaBytes, &meta); err != nil {
		return nil, nil, cmn.NewInvalidArgument("multipart: decode metadata JSON: %v", err)
	}
	if meta.Name == "" {
		return nil, nil, cmn.NewInvalidArgument("multipart metadata must include name")
	}

	dataPart, err := mr.NextPart()
	if err != nil {
		return nil, nil, cmn.NewInvalidArgument("multipart: missing payload part: %v", err)
	}
	payload, err := io.ReadAll(dataPart)
	if err != nil {
		return nil, nil, cmn.NewInvalidArgument("multipart: read payload part: %v", err)
	}
	if meta.ContentType == "" {
		meta.ContentType = dataPart.Header.Get("Content-Type")
	}
	return &meta, payload, nil
}
