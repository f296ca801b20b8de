package api

import (
	"bytes"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cloudemu/cloudemu/internal/cluster"
	"github.com/cloudemu/cloudemu/internal/cmn"
	"github.com/cloudemu/cloudemu/internal/compute"
	"github.com/cloudemu/cloudemu/internal/content"
	"github.com/cloudemu/cloudemu/internal/iam"
	"github.com/cloudemu/cloudemu/internal/objectstore"
	"github.com/cloudemu/cloudemu/internal/pipeline"
	"github.com/cloudemu/cloudemu/internal/repo"
	"github.com/cloudemu/cloudemu/internal/testutil/fakedriver"
	"github.com/cloudemu/cloudemu/internal/testutil/tassert"
	"github.com/cloudemu/cloudemu/internal/vpc"
	"github.com/cloudemu/cloudemu/internal/wire"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type emulator struct {
	srv    *httptest.Server
	clock  *testClock
	driver *fakedriver.Driver
}

// newEmulator wires the full stack - repositories, services, pipeline,
// router - around an in-memory store and the fake container driver, the
// same shape internal/app assembles in production.
func newEmulator(t *testing.T, limiter *pipeline.Limiter) *emulator {
	store, err := repo.Open(":memory:")
	tassert.CheckFatal(t, err)
	t.Cleanup(func() { store.Close() })

	cs, err := content.New(t.TempDir())
	tassert.CheckFatal(t, err)

	clock := &testClock{t: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	driver := fakedriver.New()
	locks := cluster.NewKeyLock(128)

	projects := repo.NewProjectRepo(store)
	buckets := repo.NewBucketRepo(store)
	objects := repo.NewObjectRepo(store)
	versions := repo.NewVersionRepo(store)
	sessions := repo.NewSessionRepo(store)
	events := repo.NewEventRepo(store)
	instances := repo.NewInstanceRepo(store)
	nics := repo.NewNICRepo(store)
	networks := repo.NewNetworkRepo(store)
	subnets := repo.NewSubnetRepo(store)
	firewalls := repo.NewFirewallRepo(store)
	routes := repo.NewRouteRepo(store)
	peerings := repo.NewPeeringRepo(store)
	addresses := repo.NewAddressRepo(store)
	routers := repo.NewRouterRepo(store)
	vpns := repo.NewVPNRepo(store)
	accounts := repo.NewServiceAccountRepo(store)
	keys := repo.NewServiceAccountKeyRepo(store)
	policies := repo.NewPolicyRepo(store)

	vpcSvc := vpc.New(networks, subnets, firewalls, routes, peerings, addresses, routers, vpns, nics,
		driver, locks, clock, 5*time.Second)
	computeSvc := compute.New(instances, nics, driver, vpcSvc, clock, locks, 5*time.Second)
	vpcSvc.SetInstanceLookup(computeSvc)

	notifier := objectstore.NewNotifier(events, buckets)
	objSvc := objectstore.New(store, objects, versions, buckets, sessions, cs, locks, clock, notifier)
	signer := objectstore.NewSigner("e2e-signing-secret", clock)

	iamSvc := iam.New(accounts, keys, policies, clock)
	tokens := iam.NewTokenIssuer("e2e-token-secret", clock, time.Hour)
	revoked := iam.NewRevocationList()

	if limiter == nil {
		limiter = pipeline.NewLimiter(false, time.Minute, 1000, "")
	}
	auth := pipeline.NewAuthenticator(cmn.AuthDisabled, tokens, revoked, nil)

	deps := &Deps{
		Pipeline: pipeline.New(auth, limiter),
		Projects: projects,
		Buckets:  buckets,
		Objects:  objSvc,
		Signer:   signer,
		Compute:  computeSvc,
		VPC:      vpcSvc,
		IAM:      iamSvc,
		Tokens:   tokens,
		Revoked:  revoked,
		Clock:    clock,
		AuthMode: cmn.AuthDisabled,
	}
	srv := httptest.NewServer(NewRouter(deps))
	t.Cleanup(srv.Close)
	deps.BaseURL = srv.URL
	return &emulator{srv: srv, clock: clock, driver: driver}
}

func (e *emulator) do(t *testing.T, method, path string, body io.Reader, headers map[string]string) (*http.Response, []byte) {
	req, err := http.NewRequest(method, e.srv.URL+path, body)
	tassert.CheckFatal(t, err)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	tassert.CheckFatal(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	tassert.CheckFatal(t, err)
	return resp, data
}

func (e *emulator) doJSON(t *testing.T, method, path, body string) (*http.Response, map[string]interface{}) {
	resp, data := e.do(t, method, path, strings.NewReader(body), map[string]string{"Content-Type": "application/json"})
	out := map[string]interface{}{}
	if len(data) > 0 {
		wire.API.Unmarshal(data, &out)
	}
	return resp, out
}

func (e *emulator) mustStatus(t *testing.T, resp *http.Response, want int, context string) {
	tassert.Fatalf(t, resp.StatusCode == want, "%s: status = %d, want %d", context, resp.StatusCode, want)
}

func (e *emulator) setupProjectAndBucket(t *testing.T, bucket string, versioning bool) {
	resp, _ := e.doJSON(t, "POST", "/v1/projects", `{"projectId":"proj-alpha"}`)
	e.mustStatus(t, resp, 200, "create project")

	resp, _ = e.doJSON(t, "POST", "/storage/v1/b?project=proj-alpha",
		fmt.Sprintf(`{"name":%q,"location":"US","versioning_enabled":%v}`, bucket, versioning))
	e.mustStatus(t, resp, 200, "create bucket")
}

func (e *emulator) upload(t *testing.T, bucket, name, payload, query string) (*http.Response, map[string]interface{}) {
	path := "/upload/storage/v1/b/" + bucket + "/o?uploadType=media&name=" + name + query
	resp, data := e.do(t, "POST", path, strings.NewReader(payload), map[string]string{"Content-Type": "text/plain"})
	out := map[string]interface{}{}
	wire.API.Unmarshal(data, &out)
	return resp, out
}

func TestVersionedUploadRoundTrip(t *testing.T) {
	e := newEmulator(t, nil)
	e.setupProjectAndBucket(t, "b1", true)

	resp, _ := e.upload(t, "b1", "hello.txt", "v1", "")
	e.mustStatus(t, resp, 200, "first upload")
	resp, _ = e.upload(t, "b1", "hello.txt", "v2", "")
	e.mustStatus(t, resp, 200, "second upload")

	resp, meta := e.doJSON(t, "GET", "/storage/v1/b/b1/o/hello.txt", "")
	e.mustStatus(t, resp, 200, "get metadata")
	tassert.Errorf(t, meta["generation"] == "2", "generation = %v", meta["generation"])

	resp, body := e.do(t, "GET", "/storage/v1/b/b1/o/hello.txt?alt=media&generation=1", nil, nil)
	e.mustStatus(t, resp, 200, "download gen 1")
	tassert.Errorf(t, string(body) == "v1", "gen 1 body = %q", body)

	resp, body = e.do(t, "GET", "/storage/v1/b/b1/o/hello.txt?alt=media", nil, nil)
	e.mustStatus(t, resp, 200, "download latest")
	tassert.Errorf(t, string(body) == "v2", "latest body = %q", body)
}

func TestPreconditionReject(t *testing.T) {
	e := newEmulator(t, nil)
	e.setupProjectAndBucket(t, "b1", true)

	resp, _ := e.upload(t, "b1", "f.txt", "v1", "")
	e.mustStatus(t, resp, 200, "initial upload")

	resp, _ = e.upload(t, "b1", "f.txt", "x", "&ifGenerationMatch=99")
	e.mustStatus(t, resp, http.StatusPreconditionFailed, "stale precondition")

	resp, meta := e.upload(t, "b1", "f.txt", "v2", "&ifGenerationMatch=1")
	e.mustStatus(t, resp, 200, "matching precondition")
	tassert.Errorf(t, meta["generation"] == "2", "generation = %v", meta["generation"])
}

func TestResumableUploadFlow(t *testing.T) {
	e := newEmulator(t, nil)
	e.setupProjectAndBucket(t, "b1", true)

	req, err := http.NewRequest("POST", e.srv.URL+"/upload/storage/v1/b/b1/o?uploadType=resumable&name=big.bin", nil)
	tassert.CheckFatal(t, err)
	req.Header.Set("X-Upload-Content-Length", "10")
	resp, err := http.DefaultClient.Do(req)
	tassert.CheckFatal(t, err)
	resp.Body.Close()
	tassert.Fatalf(t, resp.StatusCode == 200, "initiate status = %d", resp.StatusCode)
	loc := resp.Header.Get("Location")
	tassert.Fatalf(t, strings.Contains(loc, "upload_id="), "no session URL in Location: %q", loc)
	sessionURL := strings.TrimPrefix(loc, e.srv.URL)

	put := func(rangeHeader, chunk string) *http.Response {
		req, err := http.NewRequest("PUT", e.srv.URL+sessionURL, strings.NewReader(chunk))
		tassert.CheckFatal(t, err)
		req.Header.Set("Content-Range", rangeHeader)
		resp, err := http.DefaultClient.Do(req)
		tassert.CheckFatal(t, err)
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		return resp
	}

	resp1 := put("bytes 0-4/10", "ABCDE")
	tassert.Fatalf(t, resp1.StatusCode == http.StatusPermanentRedirect, "chunk 1 status = %d, want 308", resp1.StatusCode)
	tassert.Errorf(t, resp1.Header.Get("Range") == "bytes=0-4", "Range = %q", resp1.Header.Get("Range"))

	// a repeated or out-of-order chunk is rejected outright
	bad := put("bytes 0-4/10", "ABCDE")
	tassert.Errorf(t, bad.StatusCode == http.StatusBadRequest, "out-of-order chunk status = %d", bad.StatusCode)

	resp2 := put("bytes 5-9/10", "FGHIJ")
	tassert.Fatalf(t, resp2.StatusCode == 200, "final chunk status = %d", resp2.StatusCode)

	resp3, body := e.do(t, "GET", "/storage/v1/b/b1/o/big.bin?alt=media", nil, nil)
	e.mustStatus(t, resp3, 200, "download")
	tassert.Errorf(t, string(body) == "ABCDEFGHIJ", "assembled body = %q", body)
}

func TestSubnetOverlapRejectionNamesConflict(t *testing.T) {
	e := newEmulator(t, nil)
	resp, _ := e.doJSON(t, "POST", "/v1/projects", `{"projectId":"proj-alpha"}`)
	e.mustStatus(t, resp, 200, "create project")

	resp, _ = e.doJSON(t, "POST", "/compute/v1/projects/proj-alpha/global/networks",
		`{"name":"net-1","autoCreateSubnetworks":false,"mtu":1460}`)
	e.mustStatus(t, resp, 200, "create network")

	resp, _ = e.doJSON(t, "POST", "/compute/v1/projects/proj-alpha/global/networks/net-1/subnetworks",
		`{"name":"s1","region":"us-central1","ipCidrRange":"10.0.0.0/24"}`)
	e.mustStatus(t, resp, 200, "create s1")

	resp, errBody := e.doJSON(t, "POST", "/compute/v1/projects/proj-alpha/global/networks/net-1/subnetworks",
		`{"name":"s2","region":"us-central1","ipCidrRange":"10.0.0.128/25"}`)
	e.mustStatus(t, resp, http.StatusBadRequest, "overlapping s2")
	msg := fmt.Sprintf("%v", errBody["error"])
	tassert.Errorf(t, strings.Contains(msg, "s1"), "conflict message should name s1: %s", msg)
}

func TestInstanceLifecycle(t *testing.T) {
	e := newEmulator(t, nil)
	resp, _ := e.doJSON(t, "POST", "/v1/projects", `{"projectId":"proj-alpha"}`)
	e.mustStatus(t, resp, 200, "create project")

	base := "/compute/v1/projects/proj-alpha/zones/us-central1-a/instances"
	resp, in := e.doJSON(t, "POST", base, `{"name":"vm1","machineType":"e2-micro"}`)
	e.mustStatus(t, resp, 200, "run instance")
	tassert.Errorf(t, in["status"] == "RUNNING", "status = %v", in["status"])

	nics := in["networkInterfaces"].([]interface{})
	tassert.Fatalf(t, len(nics) == 1, "nic count = %d", len(nics))
	ip := nics[0].(map[string]interface{})["networkIP"].(string)
	_, defaultNet, _ := net.ParseCIDR("10.128.0.0/20")
	tassert.Errorf(t, defaultNet.Contains(net.ParseIP(ip)), "internal IP %s outside default subnet", ip)

	resp, in = e.doJSON(t, "POST", base+"/vm1/stop", "")
	e.mustStatus(t, resp, 200, "stop")
	tassert.Errorf(t, in["status"] == "STOPPED", "after stop: %v", in["status"])

	resp, in = e.doJSON(t, "POST", base+"/vm1/start", "")
	e.mustStatus(t, resp, 200, "start")
	tassert.Errorf(t, in["status"] == "RUNNING", "after start: %v", in["status"])

	resp, _ = e.doJSON(t, "DELETE", base+"/vm1", "")
	e.mustStatus(t, resp, http.StatusNoContent, "delete")

	resp, in = e.doJSON(t, "GET", base+"/vm1", "")
	e.mustStatus(t, resp, 200, "get after delete")
	tassert.Errorf(t, in["status"] == "TERMINATED", "after delete: %v", in["status"])

	// the backing container is gone
	tassert.Errorf(t, strings.Contains(strings.Join(e.driver.Calls(), "\n"), "remove ctr-"), "container never removed: %v", e.driver.Calls())
}

func TestInstanceRejectsUnknownCatalogEntries(t *testing.T) {
	e := newEmulator(t, nil)
	resp, _ := e.doJSON(t, "POST", "/v1/projects", `{"projectId":"proj-alpha"}`)
	e.mustStatus(t, resp, 200, "create project")

	resp, errBody := e.doJSON(t, "POST", "/compute/v1/projects/proj-alpha/zones/us-central1-a/instances",
		`{"name":"vm1","machineType":"warp-drive"}`)
	e.mustStatus(t, resp, http.StatusBadRequest, "bad machine type")
	msg := fmt.Sprintf("%v", errBody["error"])
	tassert.Errorf(t, strings.Contains(msg, "e2-micro"), "error should list available machine types: %s", msg)
}

func TestSignedURLFlow(t *testing.T) {
	e := newEmulator(t, nil)
	e.setupProjectAndBucket(t, "b1", false)
	resp, _ := e.upload(t, "b1", "doc.txt", "signed content", "")
	e.mustStatus(t, resp, 200, "upload")

	resp, out := e.doJSON(t, "POST", "/storage/v1/b/b1/o/doc.txt/signedUrl", `{"method":"GET","expiresInSeconds":60}`)
	e.mustStatus(t, resp, 200, "sign")
	signedURL, _ := out["signedUrl"].(string)
	tassert.Fatalf(t, signedURL != "", "no signedUrl in response: %v", out)
	path := strings.TrimPrefix(signedURL, e.srv.URL)

	resp, body := e.do(t, "GET", path, nil, nil)
	e.mustStatus(t, resp, 200, "genuine signed GET")
	tassert.Errorf(t, string(body) == "signed content", "body = %q", body)

	tampered := strings.Replace(path, "X-Goog-Signature=", "X-Goog-Signature=AAAA", 1)
	resp, _ = e.do(t, "GET", tampered, nil, nil)
	tassert.Errorf(t, resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusBadRequest,
		"tampered signature status = %d", resp.StatusCode)

	e.clock.Advance(61 * time.Second)
	resp, _ = e.do(t, "GET", path, nil, nil)
	tassert.Errorf(t, resp.StatusCode == http.StatusForbidden, "expired URL status = %d", resp.StatusCode)
}

func TestMultipartUpload(t *testing.T) {
	e := newEmulator(t, nil)
	e.setupProjectAndBucket(t, "b1", false)

	boundary := "emu_boundary"
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "--%s\r\nContent-Type: application/json\r\n\r\n", boundary)
	buf.WriteString(`{"name":"multi.txt","metadata":{"origin":"multipart"}}`)
	fmt.Fprintf(&buf, "\r\n--%s\r\nContent-Type: text/plain\r\n\r\n", boundary)
	buf.WriteString("multipart payload")
	fmt.Fprintf(&buf, "\r\n--%s--\r\n", boundary)

	resp, data := e.do(t, "POST", "/upload/storage/v1/b/b1/o?uploadType=multipart", &buf,
		map[string]string{"Content-Type": "multipart/related; boundary=" + boundary})
	e.mustStatus(t, resp, 200, "multipart upload")
	out := map[string]interface{}{}
	wire.API.Unmarshal(data, &out)
	tassert.Errorf(t, out["name"] == "multi.txt", "name = %v", out["name"])

	resp, body := e.do(t, "GET", "/storage/v1/b/b1/o/multi.txt?alt=media", nil, nil)
	e.mustStatus(t, resp, 200, "download")
	tassert.Errorf(t, string(body) == "multipart payload", "body = %q", body)
}

func TestErrorBodyShape(t *testing.T) {
	e := newEmulator(t, nil)
	resp, out := e.doJSON(t, "GET", "/storage/v1/b/never-created", "")
	e.mustStatus(t, resp, http.StatusNotFound, "missing bucket")
	errObj, ok := out["error"].(map[string]interface{})
	tassert.Fatalf(t, ok, "no error object in body: %v", out)
	tassert.Errorf(t, errObj["code"] == "NotFound", "code = %v", errObj["code"])
	msg, _ := errObj["message"].(string)
	tassert.Errorf(t, msg != "", "message missing")
	status, _ := errObj["status"].(float64)
	tassert.Errorf(t, int(status) == http.StatusNotFound, "status = %v", errObj["status"])
}

func TestRateLimitReturns429WithRetryAfter(t *testing.T) {
	limiter := pipeline.NewLimiter(true, time.Minute, 2, "")
	e := newEmulator(t, limiter)

	for i := 0; i < 2; i++ {
		resp, _ := e.doJSON(t, "GET", "/v1/projects", "")
		e.mustStatus(t, resp, 200, "request inside window")
	}
	resp, out := e.doJSON(t, "GET", "/v1/projects", "")
	e.mustStatus(t, resp, http.StatusTooManyRequests, "over limit")
	tassert.Errorf(t, resp.Header.Get("Retry-After") != "", "no Retry-After header")
	errObj, _ := out["error"].(map[string]interface{})
	tassert.Errorf(t, errObj["code"] == "ResourceExhausted", "code = %v", errObj["code"])
}

func TestValidationRejectsInjectionInProjectID(t *testing.T) {
	e := newEmulator(t, nil)
	resp, _ := e.doJSON(t, "POST", "/v1/projects", `{"projectId":"x' OR 1=1 --"}`)
	e.mustStatus(t, resp, http.StatusBadRequest, "injection project id")
}

func TestTokenIssueAndUserinfo(t *testing.T) {
	e := newEmulator(t, nil)
	resp, out := e.doJSON(t, "POST", "/token", `{"principal":"sa@proj-alpha.iam.cloudemu.local"}`)
	e.mustStatus(t, resp, 200, "issue token")
	tok, _ := out["accessToken"].(string)
	tassert.Fatalf(t, tok != "", "no accessToken: %v", out)

	resp, info := func() (*http.Response, map[string]interface{}) {
		req, _ := http.NewRequest("GET", e.srv.URL+"/oauth2/v1/userinfo", nil)
		req.Header.Set("Authorization", "Bearer "+tok)
		r, err := http.DefaultClient.Do(req)
		tassert.CheckFatal(t, err)
		defer r.Body.Close()
		data, _ := io.ReadAll(r.Body)
		m := map[string]interface{}{}
		wire.API.Unmarshal(data, &m)
		return r, m
	}()
	e.mustStatus(t, resp, 200, "userinfo")
	tassert.Errorf(t, info["email"] == "sa@proj-alpha.iam.cloudemu.local", "email = %v", info["email"])
}
