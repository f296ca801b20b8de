package objectstore

import (
	"strings"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/cloudemu/cloudemu/internal/cmn"
	"github.com/cloudemu/cloudemu/internal/model"
)

var _ = Describe("LifecycleWorker", func() {
	var e *testEnv
	var w *LifecycleWorker

	BeforeEach(func() {
		e = newTestEnv()
		w = NewLifecycleWorker(e.svc, e.buckets, e.versions, e.clock, time.Minute)
	})
	AfterEach(func() { e.teardown() })

	withRules := func(name string, versioning bool, rules ...model.LifecycleRule) *model.Bucket {
		b := e.createBucket(name, versioning)
		b.Lifecycle = model.LifecycleConfig{Rules: rules}
		Expect(e.buckets.Update(b)).To(Succeed())
		return b
	}

	It("deletes objects at or past the rule age and spares younger ones", func() {
		b := withRules("lc", true, model.LifecycleRule{Action: model.LifecycleDelete, AgeDays: 2})
		_, err := upload(e, b, "old", "x", Preconditions{})
		Expect(err).NotTo(HaveOccurred())
		e.clock.Advance(3 * 24 * time.Hour)
		_, err = upload(e, b, "young", "x", Preconditions{})
		Expect(err).NotTo(HaveOccurred())

		w.RunOnce()

		_, _, err = download(e, b, "old", nil)
		Expect(cmn.AsTaxonomy(err).Code()).To(Equal(cmn.CodeNotFound))
		_, _, err = download(e, b, "young", nil)
		Expect(err).NotTo(HaveOccurred())
	})

	It("archives the head and every version, idempotently", func() {
		b := withRules("arch", true, model.LifecycleRule{Action: model.LifecycleArchive, AgeDays: 1})
		_, err := upload(e, b, "k", "v1", Preconditions{})
		Expect(err).NotTo(HaveOccurred())
		_, err = upload(e, b, "k", "v2", Preconditions{})
		Expect(err).NotTo(HaveOccurred())
		e.clock.Advance(2 * 24 * time.Hour)

		w.RunOnce()
		w.RunOnce() // re-run must be a no-op

		_, v, err := download(e, b, "k", nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(v.StorageClass).To(Equal("ARCHIVE"))
		vs, err := e.versions.ListDescending(b.ID, "k")
		Expect(err).NotTo(HaveOccurred())
		for _, ver := range vs {
			Expect(ver.StorageClass).To(Equal("ARCHIVE"))
		}
	})

	It("ignores buckets without lifecycle rules", func() {
		b := e.createBucket("plain", true)
		_, err := upload(e, b, "k", "x", Preconditions{})
		Expect(err).NotTo(HaveOccurred())
		e.clock.Advance(100 * 24 * time.Hour)

		w.RunOnce()

		_, _, err = download(e, b, "k", nil)
		Expect(err).NotTo(HaveOccurred())
	})

	It("applies delete versioning-aware, keeping versions reachable", func() {
		b := withRules("lcv", true, model.LifecycleRule{Action: model.LifecycleDelete, AgeDays: 1})
		_, err := upload(e, b, "k", "v1", Preconditions{})
		Expect(err).NotTo(HaveOccurred())
		e.clock.Advance(2 * 24 * time.Hour)

		w.RunOnce()

		got, _, err := download(e, b, "k", func() *int64 { g := int64(1); return &g }())
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(Equal("v1"))
	})
})

var _ = Describe("Signer", func() {
	var clock *testClock
	var s *Signer

	BeforeEach(func() {
		clock = newTestClock()
		s = NewSigner("test-secret", clock)
	})

	It("verifies a genuine URL within its validity window", func() {
		q := s.Sign("GET", "/signed/b1/obj", time.Minute)
		Expect(q.Get("X-Goog-Algorithm")).To(Equal(SigningAlgorithm))
		Expect(s.Verify("GET", "/signed/b1/obj", q)).To(Succeed())
	})

	It("rejects a tampered signature", func() {
		q := s.Sign("GET", "/signed/b1/obj", time.Minute)
		q.Set("X-Goog-Signature", q.Get("X-Goog-Signature")+"x")
		err := s.Verify("GET", "/signed/b1/obj", q)
		Expect(cmn.AsTaxonomy(err).Code()).To(Equal(cmn.CodePermissionDenied))
	})

	It("rejects a different method or path", func() {
		q := s.Sign("GET", "/signed/b1/obj", time.Minute)
		Expect(s.Verify("PUT", "/signed/b1/obj", q)).NotTo(Succeed())
		Expect(s.Verify("GET", "/signed/b1/other", q)).NotTo(Succeed())
	})

	It("rejects after expiry", func() {
		q := s.Sign("GET", "/signed/b1/obj", time.Minute)
		clock.Advance(2 * time.Minute)
		err := s.Verify("GET", "/signed/b1/obj", q)
		Expect(err).To(HaveOccurred())
		Expect(strings.Contains(err.Error(), "expired")).To(BeTrue())
	})

	It("rejects a missing or foreign algorithm before anything else", func() {
		q := s.Sign("GET", "/signed/b1/obj", time.Minute)
		q.Set("X-Goog-Algorithm", "GOOG4-RSA-SHA256")
		err := s.Verify("GET", "/signed/b1/obj", q)
		Expect(cmn.AsTaxonomy(err).Code()).To(Equal(cmn.CodeInvalidArgument))
	})
})
