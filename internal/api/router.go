package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/cloudemu/cloudemu/internal/pipeline"
	"github.com/cloudemu/cloudemu/internal/stats"
)

// NewRouter builds the emulator's full HTTP surface, wiring every
// handler through the pipeline's auth/rate-limit/logging stages
// (internal/pipeline.Pipeline.Wrap). Routing is gorilla/mux - Go's own
// net/http mux predates named path variables, and a hand-rolled
// dispatcher would buy nothing over the router everyone already knows.
func NewRouter(d *Deps) *mux.Router {
	r := mux.NewRouter()
	h := func(fn pipeline.HandlerFunc) http.Handler { return d.Pipeline.Wrap(fn) }

	// resource manager
	r.Handle("/v1/projects", h(d.createProject)).Methods(http.MethodPost)
	r.Handle("/v1/projects", h(d.listProjects)).Methods(http.MethodGet)
	r.Handle("/v1/projects/{projectID}", h(d.getProject)).Methods(http.MethodGet)
	r.Handle("/v1/projects/{projectID}", h(d.deleteProject)).Methods(http.MethodDelete)

	// object storage - buckets
	r.Handle("/storage/v1/b", h(d.createBucket)).Methods(http.MethodPost)
	r.Handle("/storage/v1/b", h(d.listBuckets)).Methods(http.MethodGet)
	r.Handle("/storage/v1/b/{bucket}", h(d.getBucket)).Methods(http.MethodGet)
	r.Handle("/storage/v1/b/{bucket}", h(d.deleteBucket)).Methods(http.MethodDelete)

	// object storage - objects
	r.Handle("/storage/v1/b/{bucket}/o", h(d.listObjects)).Methods(http.MethodGet)
	// some SDK transports post inserts against the plain API host rather
	// than the /upload prefix; accept both
	r.Handle("/storage/v1/b/{bucket}/o", h(d.uploadDispatch)).Methods(http.MethodPost)
	r.Handle("/storage/v1/b/{bucket}/o/{object:.+}", h(d.getObject)).Methods(http.MethodGet)
	r.Handle("/storage/v1/b/{bucket}/o/{object:.+}", h(d.updateObjectMetadata)).Methods(http.MethodPatch)
	r.Handle("/storage/v1/b/{bucket}/o/{object:.+}", h(d.deleteObject)).Methods(http.MethodDelete)
	r.Handle("/storage/v1/b/{bucket}/o/{object:.+}/copyTo/b/{dstBucket}/o/{dstObject:.+}", h(d.copyObject)).Methods(http.MethodPost)
	r.Handle("/storage/v1/b/{bucket}/o/{object:.+}/signedUrl", h(d.signObjectURL)).Methods(http.MethodPost)

	// object storage - uploads
	r.Handle("/upload/storage/v1/b/{bucket}/o", h(d.uploadDispatch)).Methods(http.MethodPost)
	r.Handle("/upload/storage/v1/b/{bucket}/o", h(d.putResumableChunk)).Methods(http.MethodPut)
	r.Handle("/upload/resumable/{sessionID}", h(d.putResumableChunkByPath)).Methods(http.MethodPut)

	// object storage - signed endpoints
	r.Handle("/signed/{bucket}/{object:.+}", h(d.signedDownload)).Methods(http.MethodGet)
	r.Handle("/signed/{bucket}/{object:.+}", h(d.signedUpload)).Methods(http.MethodPut)

	// compute
	r.Handle("/compute/v1/projects/{projectID}/zones/{zone}/instances", h(d.runInstance)).Methods(http.MethodPost)
	r.Handle("/compute/v1/projects/{projectID}/zones/{zone}/instances", h(d.listInstances)).Methods(http.MethodGet)
	r.Handle("/compute/v1/projects/{projectID}/zones/{zone}/instances/{instance}", h(d.getInstance)).Methods(http.MethodGet)
	r.Handle("/compute/v1/projects/{projectID}/zones/{zone}/instances/{instance}", h(d.deleteInstance)).Methods(http.MethodDelete)
	r.Handle("/compute/v1/projects/{projectID}/zones/{zone}/instances/{instance}/stop", h(d.stopInstance)).Methods(http.MethodPost)
	r.Handle("/compute/v1/projects/{projectID}/zones/{zone}/instances/{instance}/start", h(d.startInstance)).Methods(http.MethodPost)
	r.Handle("/compute/v1/projects/{projectID}/zones/{zone}/instances/{instance}/addAccessConfig", h(d.addAccessConfig)).Methods(http.MethodPost)
	r.Handle("/compute/v1/projects/{projectID}/zones/{zone}/instances/{instance}/deleteAccessConfig", h(d.deleteAccessConfig)).Methods(http.MethodPost, http.MethodDelete)

	// VPC - networks/subnets
	r.Handle("/compute/v1/projects/{projectID}/global/networks", h(d.createNetwork)).Methods(http.MethodPost)
	r.Handle("/compute/v1/projects/{projectID}/global/networks", h(d.listNetworks)).Methods(http.MethodGet)
	r.Handle("/compute/v1/projects/{projectID}/global/networks/{network}", h(d.getNetwork)).Methods(http.MethodGet)
	r.Handle("/compute/v1/projects/{projectID}/global/networks/{network}", h(d.deleteNetwork)).Methods(http.MethodDelete)
	r.Handle("/compute/v1/projects/{projectID}/global/networks/{network}/subnetworks", h(d.createSubnet)).Methods(http.MethodPost)
	r.Handle("/compute/v1/projects/{projectID}/global/networks/{network}/subnetworks", h(d.listSubnets)).Methods(http.MethodGet)
	r.Handle("/compute/v1/projects/{projectID}/regions/{region}/subnetworks", h(d.createSubnetRegional)).Methods(http.MethodPost)
	r.Handle("/compute/v1/projects/{projectID}/regions/{region}/subnetworks", h(d.listSubnetsRegional)).Methods(http.MethodGet)

	// VPC - firewalls/routes
	r.Handle("/compute/v1/projects/{projectID}/global/firewalls", h(d.createFirewall)).Methods(http.MethodPost)
	r.Handle("/compute/v1/projects/{projectID}/global/networks/{network}/firewalls", h(d.listFirewalls)).Methods(http.MethodGet)
	r.Handle("/compute/v1/projects/{projectID}/global/networks/{network}/firewalls/{firewall}", h(d.deleteFirewall)).Methods(http.MethodDelete)
	r.Handle("/compute/v1/projects/{projectID}/global/routes", h(d.createRoute)).Methods(http.MethodPost)
	r.Handle("/compute/v1/projects/{projectID}/global/networks/{network}/routes", h(d.listRoutes)).Methods(http.MethodGet)

	// VPC - peerings
	r.Handle("/compute/v1/projects/{projectID}/global/networks/{network}/addPeering", h(d.addPeering)).Methods(http.MethodPost)
	r.Handle("/compute/v1/projects/{projectID}/global/networks/{network}/removePeering", h(d.removePeering)).Methods(http.MethodPost)
	r.Handle("/compute/v1/projects/{projectID}/global/networks/{network}/listPeerings", h(d.listPeerings)).Methods(http.MethodGet)

	// VPC - addresses
	r.Handle("/compute/v1/projects/{projectID}/regions/{region}/addresses", h(d.reserveAddress)).Methods(http.MethodPost)
	r.Handle("/compute/v1/projects/{projectID}/aggregated/addresses", h(d.listAddresses)).Methods(http.MethodGet)
	r.Handle("/compute/v1/projects/{projectID}/regions/{region}/addresses/{address}", h(d.deleteAddress)).Methods(http.MethodDelete)

	// VPC - routers/VPN tunnels
	r.Handle("/compute/v1/projects/{projectID}/regions/{region}/routers", h(d.createRouterRegional)).Methods(http.MethodPost)
	r.Handle("/compute/v1/projects/{projectID}/regions/{region}/routers", h(d.listRoutersRegional)).Methods(http.MethodGet)
	r.Handle("/compute/v1/projects/{projectID}/global/networks/{network}/routers", h(d.listRouters)).Methods(http.MethodGet)
	r.Handle("/compute/v1/projects/{projectID}/global/vpnTunnels", h(d.createVPNTunnel)).Methods(http.MethodPost)
	r.Handle("/compute/v1/projects/{projectID}/global/networks/{network}/vpnTunnels", h(d.listVPNTunnels)).Methods(http.MethodGet)

	// IAM - canonical /v1 paths plus the /iam/v1 prefix some clients use
	r.Handle("/v1/projects/{projectID}/serviceAccounts", h(d.createServiceAccount)).Methods(http.MethodPost)
	r.Handle("/v1/projects/{projectID}/serviceAccounts", h(d.listServiceAccounts)).Methods(http.MethodGet)
	r.Handle("/v1/projects/{projectID}/serviceAccounts/{email}", h(d.getServiceAccount)).Methods(http.MethodGet)
	r.Handle("/v1/projects/{projectID}/serviceAccounts/{email}", h(d.deleteServiceAccount)).Methods(http.MethodDelete)
	r.Handle("/v1/projects/{projectID}/serviceAccounts/{email}/keys", h(d.createKey)).Methods(http.MethodPost)
	r.Handle("/v1/projects/{projectID}/serviceAccounts/{email}/keys", h(d.listKeys)).Methods(http.MethodGet)
	r.Handle("/v1/projects/{projectID}/serviceAccounts/{email}/keys/{keyID}", h(d.deleteKey)).Methods(http.MethodDelete)
	r.Handle("/iam/v1/projects/{projectID}/serviceAccounts", h(d.createServiceAccount)).Methods(http.MethodPost)
	r.Handle("/iam/v1/projects/{projectID}/serviceAccounts", h(d.listServiceAccounts)).Methods(http.MethodGet)
	r.Handle("/iam/v1/serviceAccounts/{email}", h(d.getServiceAccount)).Methods(http.MethodGet)
	r.Handle("/iam/v1/serviceAccounts/{email}", h(d.deleteServiceAccount)).Methods(http.MethodDelete)
	r.Handle("/iam/v1/serviceAccounts/{email}/keys", h(d.createKey)).Methods(http.MethodPost)
	r.Handle("/iam/v1/serviceAccounts/{email}/keys", h(d.listKeys)).Methods(http.MethodGet)
	r.Handle("/iam/v1/serviceAccounts/{email}/keys/{keyID}", h(d.deleteKey)).Methods(http.MethodDelete)
	r.Handle("/iam/v1/{resourceType}/{resourceID}:getIamPolicy", h(d.getIamPolicy)).Methods(http.MethodGet)
	r.Handle("/iam/v1/{resourceType}/{resourceID}:setIamPolicy", h(d.setIamPolicy)).Methods(http.MethodPost)
	r.Handle("/iam/v1/{resourceType}/{resourceID}:testIamPermissions", h(d.testIamPermissions)).Methods(http.MethodPost)

	// OAuth-shaped bearer tokens
	r.Handle("/token", h(d.issueToken)).Methods(http.MethodPost)
	r.Handle("/token/revoke", h(d.revokeToken)).Methods(http.MethodPost)
	r.Handle("/oauth2/v1/userinfo", h(d.userinfo)).Methods(http.MethodGet)

	// metrics scrape endpoint, deliberately outside the pipeline
	r.Handle("/metrics", stats.Handler()).Methods(http.MethodGet)

	// SDK-style direct media download; registered last so every API
	// prefix above wins the route match first.
	r.Handle("/{bucket}/{object:.+}", h(d.mediaDownload)).Methods(http.MethodGet)

	return r
}

// uploadDispatch exists because resumable initiate and plain insert
// share the same POST .../o endpoint, distinguished only by
// uploadType=resumable.
func (d *Deps) uploadDispatch(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	if r.URL.Query().Get("uploadType") == "resumable" {
		return d.initiateResumable(ctx, w, r)
	}
	return d.insertObject(ctx, w, r)
}
