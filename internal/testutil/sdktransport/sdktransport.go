// Package sdktransport builds real provider SDK clients pointed at a
// running emulator, proving the wire surface is bit-compatible enough
// for unmodified client libraries. Integration tests spin an httptest
// server around the emulator's router and drive it through the clients
// constructed here instead of hand-rolled HTTP calls.
package sdktransport

import (
	"context"
	"net/http"
	"os"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// NewStorageClient returns a cloud.google.com/go/storage client whose
// every request targets baseURL (e.g. an httptest.Server URL). The
// client library's own emulator support keys off STORAGE_EMULATOR_HOST,
// which is also how this emulator is meant to be consumed in CI, so the
// helper sets it for the process rather than fighting the library's
// endpoint resolution.
func NewStorageClient(ctx context.Context, baseURL string) (*storage.Client, error) {
	os.Setenv("STORAGE_EMULATOR_HOST", trimScheme(baseURL))
	return storage.NewClient(ctx,
		option.WithEndpoint(baseURL+"/storage/v1/"),
		option.WithoutAuthentication(),
		option.WithHTTPClient(http.DefaultClient),
	)
}

func trimScheme(u string) string {
	u = strings.TrimPrefix(u, "https://")
	return strings.TrimPrefix(u, "http://")
}
