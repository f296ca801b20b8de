package objectstore

import (
	"bytes"
	"io"
	"strings"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/cloudemu/cloudemu/internal/cmn"
	"github.com/cloudemu/cloudemu/internal/model"
)

func i64(v int64) *int64 { return &v }

func upload(e *testEnv, b *model.Bucket, name, body string, pre Preconditions) (*model.Object, error) {
	return e.svc.Upload(UploadParams{
		BucketID: b.ID, BucketName: b.Name, Name: name,
		ContentType: "text/plain", Pre: pre,
	}, strings.NewReader(body))
}

func download(e *testEnv, b *model.Bucket, name string, gen *int64) (string, *model.ObjectVersion, error) {
	rc, v, err := e.svc.Download(DownloadParams{BucketID: b.ID, Name: name, Generation: gen})
	if err != nil {
		return "", nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	return string(data), v, err
}

var _ = Describe("Upload", func() {
	var e *testEnv
	var b *model.Bucket

	BeforeEach(func() {
		e = newTestEnv()
		b = e.createBucket("b1", true)
	})
	AfterEach(func() { e.teardown() })

	It("assigns strictly increasing generations starting at 1", func() {
		o1, err := upload(e, b, "hello.txt", "v1", Preconditions{})
		Expect(err).NotTo(HaveOccurred())
		Expect(o1.Generation).To(Equal(int64(1)))
		Expect(o1.Metageneration).To(Equal(int64(1)))

		o2, err := upload(e, b, "hello.txt", "v2", Preconditions{})
		Expect(err).NotTo(HaveOccurred())
		Expect(o2.Generation).To(Equal(int64(2)))
	})

	It("round-trips bytes exactly", func() {
		payload := "the quick brown fox\x00\x01\x02"
		_, err := upload(e, b, "k", payload, Preconditions{})
		Expect(err).NotTo(HaveOccurred())
		got, v, err := download(e, b, "k", nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(Equal(payload))
		Expect(v.Size).To(Equal(int64(len(payload))))
		Expect(v.MD5).NotTo(BeEmpty())
		Expect(v.CRC32C).NotTo(BeEmpty())
	})

	It("serves archived versions after a newer write", func() {
		_, err := upload(e, b, "hello.txt", "v1", Preconditions{})
		Expect(err).NotTo(HaveOccurred())
		_, err = upload(e, b, "hello.txt", "v2", Preconditions{})
		Expect(err).NotTo(HaveOccurred())

		got, _, err := download(e, b, "hello.txt", nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(Equal("v2"))

		got, _, err = download(e, b, "hello.txt", i64(1))
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(Equal("v1"))
	})

	It("keeps generations monotonic across delete", func() {
		_, err := upload(e, b, "k", "v1", Preconditions{})
		Expect(err).NotTo(HaveOccurred())
		_, err = upload(e, b, "k", "v2", Preconditions{})
		Expect(err).NotTo(HaveOccurred())
		Expect(e.svc.Delete(b.ID, "k", nil)).To(Succeed())

		o, err := upload(e, b, "k", "v3", Preconditions{})
		Expect(err).NotTo(HaveOccurred())
		Expect(o.Generation).To(Equal(int64(3)))
	})

	It("emits OBJECT_FINALIZE on success", func() {
		_, err := upload(e, b, "k", "v1", Preconditions{})
		Expect(err).NotTo(HaveOccurred())
		evs := e.sink.byType(model.EventObjectFinalize)
		Expect(evs).To(HaveLen(1))
		Expect(evs[0].BucketName).To(Equal("b1"))
		Expect(evs[0].ObjectName).To(Equal("k"))
		Expect(evs[0].Generation).To(Equal(int64(1)))
	})
})

var _ = Describe("Preconditions", func() {
	var e *testEnv
	var b *model.Bucket

	BeforeEach(func() {
		e = newTestEnv()
		b = e.createBucket("b1", true)
	})
	AfterEach(func() { e.teardown() })

	It("treats ifGenerationMatch=0 as 'no object'", func() {
		_, err := upload(e, b, "f.txt", "v1", Preconditions{IfGenMatch: i64(0)})
		Expect(err).NotTo(HaveOccurred())

		_, err = upload(e, b, "f.txt", "v2", Preconditions{IfGenMatch: i64(0)})
		Expect(cmn.AsTaxonomy(err).Code()).To(Equal(cmn.CodePreconditionFailed))
	})

	It("rejects a stale ifGenerationMatch and accepts the current one", func() {
		_, err := upload(e, b, "f.txt", "v1", Preconditions{})
		Expect(err).NotTo(HaveOccurred())

		_, err = upload(e, b, "f.txt", "x", Preconditions{IfGenMatch: i64(99)})
		Expect(cmn.AsTaxonomy(err).Code()).To(Equal(cmn.CodePreconditionFailed))

		o, err := upload(e, b, "f.txt", "v2", Preconditions{IfGenMatch: i64(1)})
		Expect(err).NotTo(HaveOccurred())
		Expect(o.Generation).To(Equal(int64(2)))
	})

	It("rejects ifGenerationNotMatch equal to current", func() {
		_, err := upload(e, b, "f.txt", "v1", Preconditions{})
		Expect(err).NotTo(HaveOccurred())
		_, err = upload(e, b, "f.txt", "v2", Preconditions{IfGenNotMatch: i64(1)})
		Expect(cmn.AsTaxonomy(err).Code()).To(Equal(cmn.CodePreconditionFailed))
	})

	It("evaluates generation preconditions before metageneration ones", func() {
		_, err := upload(e, b, "f.txt", "v1", Preconditions{})
		Expect(err).NotTo(HaveOccurred())
		// both wrong; the failure message must name the generation check
		_, err = upload(e, b, "f.txt", "v2", Preconditions{IfGenMatch: i64(9), IfMetaMatch: i64(9)})
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("if-generation-match"))
	})

	It("fails before any byte reaches persistent storage", func() {
		_, err := upload(e, b, "f.txt", "v1", Preconditions{})
		Expect(err).NotTo(HaveOccurred())
		versionsBefore, err := e.versions.ListDescending(b.ID, "f.txt")
		Expect(err).NotTo(HaveOccurred())

		_, err = upload(e, b, "f.txt", "v2", Preconditions{IfGenMatch: i64(42)})
		Expect(err).To(HaveOccurred())
		versionsAfter, err := e.versions.ListDescending(b.ID, "f.txt")
		Expect(err).NotTo(HaveOccurred())
		Expect(versionsAfter).To(HaveLen(len(versionsBefore)))
	})
})

var _ = Describe("UpdateMetadata", func() {
	var e *testEnv
	var b *model.Bucket

	BeforeEach(func() {
		e = newTestEnv()
		b = e.createBucket("b1", true)
		_, err := upload(e, b, "k", "v1", Preconditions{})
		Expect(err).NotTo(HaveOccurred())
	})
	AfterEach(func() { e.teardown() })

	It("bumps metageneration without touching generation", func() {
		o, err := e.svc.UpdateMetadata(b.ID, "k", map[string]string{"a": "1"}, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(o.Generation).To(Equal(int64(1)))
		Expect(o.Metageneration).To(Equal(int64(2)))
		Expect(o.CustomMetadata).To(HaveKeyWithValue("a", "1"))
	})

	It("enforces ifMetagenerationMatch", func() {
		_, err := e.svc.UpdateMetadata(b.ID, "k", map[string]string{"a": "1"}, i64(5))
		Expect(cmn.AsTaxonomy(err).Code()).To(Equal(cmn.CodePreconditionFailed))

		o, err := e.svc.UpdateMetadata(b.ID, "k", map[string]string{"a": "1"}, i64(1))
		Expect(err).NotTo(HaveOccurred())
		Expect(o.Metageneration).To(Equal(int64(2)))
	})

	It("emits OBJECT_METADATA_UPDATE", func() {
		_, err := e.svc.UpdateMetadata(b.ID, "k", map[string]string{"a": "1"}, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(e.sink.byType(model.EventObjectMetadataUpdate)).To(HaveLen(1))
	})
})

var _ = Describe("Delete", func() {
	var e *testEnv

	BeforeEach(func() { e = newTestEnv() })
	AfterEach(func() { e.teardown() })

	Context("with versioning enabled", func() {
		It("marks the head deleted but keeps versions readable by generation", func() {
			b := e.createBucket("vb", true)
			_, err := upload(e, b, "k", "v1", Preconditions{})
			Expect(err).NotTo(HaveOccurred())
			Expect(e.svc.Delete(b.ID, "k", nil)).To(Succeed())

			_, _, err = download(e, b, "k", nil)
			Expect(cmn.AsTaxonomy(err).Code()).To(Equal(cmn.CodeNotFound))

			got, _, err := download(e, b, "k", i64(1))
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(Equal("v1"))
		})

		It("removes exactly one version when a generation is given", func() {
			b := e.createBucket("vb", true)
			_, err := upload(e, b, "k", "v1", Preconditions{})
			Expect(err).NotTo(HaveOccurred())
			_, err = upload(e, b, "k", "v2", Preconditions{})
			Expect(err).NotTo(HaveOccurred())

			Expect(e.svc.Delete(b.ID, "k", i64(1))).To(Succeed())
			_, _, err = download(e, b, "k", i64(1))
			Expect(cmn.AsTaxonomy(err).Code()).To(Equal(cmn.CodeNotFound))
			got, _, err := download(e, b, "k", nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(Equal("v2"))
		})

		It("is a NotFound no-op on repeat and emits no extra event", func() {
			b := e.createBucket("vb", true)
			_, err := upload(e, b, "k", "v1", Preconditions{})
			Expect(err).NotTo(HaveOccurred())
			Expect(e.svc.Delete(b.ID, "k", i64(1))).To(Succeed())
			before := len(e.sink.byType(model.EventObjectDelete))

			err = e.svc.Delete(b.ID, "k", i64(1))
			Expect(cmn.AsTaxonomy(err).Code()).To(Equal(cmn.CodeNotFound))
			Expect(e.sink.byType(model.EventObjectDelete)).To(HaveLen(before))
		})
	})

	Context("with versioning disabled", func() {
		It("physically removes the head and every version", func() {
			b := e.createBucket("plain", false)
			_, err := upload(e, b, "k", "v1", Preconditions{})
			Expect(err).NotTo(HaveOccurred())
			Expect(e.svc.Delete(b.ID, "k", nil)).To(Succeed())

			_, _, err = download(e, b, "k", nil)
			Expect(cmn.AsTaxonomy(err).Code()).To(Equal(cmn.CodeNotFound))
			vs, err := e.versions.ListDescending(b.ID, "k")
			Expect(err).NotTo(HaveOccurred())
			Expect(vs).To(BeEmpty())
		})

		It("purges prior versions on overwrite", func() {
			b := e.createBucket("plain", false)
			_, err := upload(e, b, "k", "v1", Preconditions{})
			Expect(err).NotTo(HaveOccurred())
			_, err = upload(e, b, "k", "v2", Preconditions{})
			Expect(err).NotTo(HaveOccurred())

			vs, err := e.versions.ListDescending(b.ID, "k")
			Expect(err).NotTo(HaveOccurred())
			Expect(vs).To(HaveLen(1))
			Expect(vs[0].Generation).To(Equal(int64(2)))
		})
	})
})

var _ = Describe("List", func() {
	var e *testEnv
	var b *model.Bucket

	BeforeEach(func() {
		e = newTestEnv()
		b = e.createBucket("b1", true)
		for _, name := range []string{"a.txt", "dir/one.txt", "dir/two.txt", "dir/sub/three.txt", "zeta.txt"} {
			_, err := upload(e, b, name, "x", Preconditions{})
			Expect(err).NotTo(HaveOccurred())
		}
	})
	AfterEach(func() { e.teardown() })

	It("filters by prefix without a delimiter", func() {
		res, err := e.svc.List(b.ID, "dir/", "", false)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Items).To(HaveLen(3))
		Expect(res.Prefixes).To(BeEmpty())
	})

	It("splits names into sorted, deduplicated common prefixes", func() {
		res, err := e.svc.List(b.ID, "", "/", false)
		Expect(err).NotTo(HaveOccurred())
		names := make([]string, 0, len(res.Items))
		for _, o := range res.Items {
			names = append(names, o.Name)
		}
		Expect(names).To(Equal([]string{"a.txt", "zeta.txt"}))
		Expect(res.Prefixes).To(Equal([]string{"dir/"}))
	})

	It("descends one level per delimiter", func() {
		res, err := e.svc.List(b.ID, "dir/", "/", false)
		Expect(err).NotTo(HaveOccurred())
		names := make([]string, 0, len(res.Items))
		for _, o := range res.Items {
			names = append(names, o.Name)
		}
		Expect(names).To(Equal([]string{"dir/one.txt", "dir/two.txt"}))
		Expect(res.Prefixes).To(Equal([]string{"dir/sub/"}))
	})

	It("is deterministic between writes", func() {
		first, err := e.svc.List(b.ID, "", "/", false)
		Expect(err).NotTo(HaveOccurred())
		second, err := e.svc.List(b.ID, "", "/", false)
		Expect(err).NotTo(HaveOccurred())
		Expect(second).To(Equal(first))
	})

	It("lists versions ordered by name then generation descending", func() {
		_, err := upload(e, b, "a.txt", "x2", Preconditions{})
		Expect(err).NotTo(HaveOccurred())
		res, err := e.svc.List(b.ID, "a", "", true)
		Expect(err).NotTo(HaveOccurred())
		Expect(len(res.Versions)).To(BeNumerically(">=", 2))
		Expect(res.Versions[0].Name).To(Equal("a.txt"))
		Expect(res.Versions[0].Generation).To(Equal(int64(2)))
		Expect(res.Versions[1].Generation).To(Equal(int64(1)))
	})
})

var _ = Describe("Copy", func() {
	var e *testEnv

	BeforeEach(func() { e = newTestEnv() })
	AfterEach(func() { e.teardown() })

	It("creates a new generation under dst carrying content type and custom metadata", func() {
		src := e.createBucket("src", true)
		dst := e.createBucket("dst", true)
		_, err := e.svc.Upload(UploadParams{
			BucketID: src.ID, BucketName: src.Name, Name: "orig",
			ContentType: "application/json",
			CustomMetadata: map[string]string{"owner": "alice"},
		}, strings.NewReader(`{"v":1}`))
		Expect(err).NotTo(HaveOccurred())

		o, err := e.svc.Copy(src.ID, "orig", dst.ID, "copy")
		Expect(err).NotTo(HaveOccurred())
		Expect(o.Generation).To(Equal(int64(1)))
		Expect(o.ContentType).To(Equal("application/json"))
		Expect(o.CustomMetadata).To(HaveKeyWithValue("owner", "alice"))

		got, _, err := download(e, dst, "copy", nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(Equal(`{"v":1}`))
	})

	It("copies within one bucket without self-deadlock", func() {
		b := e.createBucket("one", true)
		_, err := upload(e, b, "a", "data", Preconditions{})
		Expect(err).NotTo(HaveOccurred())
		done := make(chan error, 1)
		go func() {
			_, err := e.svc.Copy(b.ID, "a", b.ID, "b")
			done <- err
		}()
		Eventually(done, "5s").Should(Receive(BeNil()))
	})
})

var _ = Describe("Resumable uploads", func() {
	var e *testEnv
	var b *model.Bucket

	BeforeEach(func() {
		e = newTestEnv()
		b = e.createBucket("b1", true)
	})
	AfterEach(func() { e.teardown() })

	initiate := func(name string, total int64) *model.ResumableSession {
		sess, err := e.svc.InitiateResumable(InitiateResumableParams{
			BucketID: b.ID, Name: name, ContentType: "application/octet-stream", TotalSize: total,
		})
		Expect(err).NotTo(HaveOccurred())
		return sess
	}

	It("appends chunks linearly and finalizes at the declared size", func() {
		sess := initiate("big.bin", 10)

		res, err := e.svc.PutChunk(sess.SessionID,
			ContentRange{Start: 0, End: 4, Total: 10, HasBytes: true},
			strings.NewReader("ABCDE"))
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Finalized).To(BeFalse())
		Expect(res.Offset).To(Equal(int64(5)))

		res, err = e.svc.PutChunk(sess.SessionID,
			ContentRange{Start: 5, End: 9, Total: 10, HasBytes: true},
			strings.NewReader("FGHIJ"))
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Finalized).To(BeTrue())
		Expect(res.Object.Size).To(Equal(int64(10)))

		got, _, err := download(e, b, "big.bin", nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(Equal("ABCDEFGHIJ"))
	})

	It("rejects out-of-order chunks before writing anything", func() {
		sess := initiate("big.bin", 10)
		_, err := e.svc.PutChunk(sess.SessionID,
			ContentRange{Start: 5, End: 9, Total: 10, HasBytes: true},
			strings.NewReader("FGHIJ"))
		Expect(cmn.AsTaxonomy(err).Code()).To(Equal(cmn.CodeInvalidArgument))

		got, err := e.svc.sessions.Get(sess.SessionID)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.CurrentOffset).To(Equal(int64(0)))
	})

	It("reports progress on a bytes */T probe without consuming anything", func() {
		sess := initiate("big.bin", 10)
		_, err := e.svc.PutChunk(sess.SessionID,
			ContentRange{Start: 0, End: 4, Total: 10, HasBytes: true},
			strings.NewReader("ABCDE"))
		Expect(err).NotTo(HaveOccurred())

		res, err := e.svc.PutChunk(sess.SessionID,
			ContentRange{Start: -1, End: -1, Total: -1},
			bytes.NewReader(nil))
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Finalized).To(BeFalse())
		Expect(res.Offset).To(Equal(int64(5)))
	})

	It("applies initiate-time preconditions at finalize", func() {
		_, err := upload(e, b, "guarded", "v1", Preconditions{})
		Expect(err).NotTo(HaveOccurred())

		sess, err := e.svc.InitiateResumable(InitiateResumableParams{
			BucketID: b.ID, Name: "guarded", TotalSize: 2,
			Pre: Preconditions{IfGenMatch: i64(0)},
		})
		Expect(err).NotTo(HaveOccurred())

		_, err = e.svc.PutChunk(sess.SessionID,
			ContentRange{Start: 0, End: 1, Total: 2, HasBytes: true},
			strings.NewReader("xy"))
		Expect(cmn.AsTaxonomy(err).Code()).To(Equal(cmn.CodePreconditionFailed))
	})

	It("deletes the session after finalize", func() {
		sess := initiate("done.bin", 2)
		_, err := e.svc.PutChunk(sess.SessionID,
			ContentRange{Start: 0, End: 1, Total: 2, HasBytes: true},
			strings.NewReader("ok"))
		Expect(err).NotTo(HaveOccurred())
		_, err = e.svc.sessions.Get(sess.SessionID)
		Expect(cmn.AsTaxonomy(err).Code()).To(Equal(cmn.CodeNotFound))
	})
})

var _ = Describe("ParseContentRange", func() {
	It("parses the bytes S-E/T form", func() {
		cr, err := ParseContentRange("bytes 0-4/10")
		Expect(err).NotTo(HaveOccurred())
		Expect(cr).To(Equal(ContentRange{Start: 0, End: 4, Total: 10, HasBytes: true}))
	})

	It("parses the bytes */T probe form", func() {
		cr, err := ParseContentRange("bytes */10")
		Expect(err).NotTo(HaveOccurred())
		Expect(cr.HasBytes).To(BeFalse())
		Expect(cr.Total).To(Equal(int64(10)))
	})

	It("parses an unknown total", func() {
		cr, err := ParseContentRange("bytes 0-4/*")
		Expect(err).NotTo(HaveOccurred())
		Expect(cr.Total).To(Equal(int64(-1)))
	})

	It("rejects malformed headers", func() {
		for _, h := range []string{"", "bytes", "bytes 0-4", "bytes x-y/10", "units 0-4/10"} {
			_, err := ParseContentRange(h)
			Expect(err).To(HaveOccurred(), "header %q", h)
		}
	})
})

var _ = Describe("ParseMultipart", func() {
	const boundary = "sep_boundary"

	build := func(meta, payload string) string {
		return "--" + boundary + "\r\n" +
			"Content-Type: application/json\r\n\r\n" +
			meta + "\r\n" +
			"--" + boundary + "\r\n" +
			"Content-Type: text/plain\r\n\r\n" +
			payload + "\r\n" +
			"--" + boundary + "--\r\n"
	}

	It("splits metadata and payload", func() {
		body := build(`{"name":"obj.txt","metadata":{"k":"v"}}`, "hello")
		meta, payload, err := ParseMultipart("multipart/related; boundary="+boundary, strings.NewReader(body))
		Expect(err).NotTo(HaveOccurred())
		Expect(meta.Name).To(Equal("obj.txt"))
		Expect(meta.ContentType).To(Equal("text/plain"))
		Expect(meta.CustomMetadata).To(HaveKeyWithValue("k", "v"))
		Expect(string(payload)).To(Equal("hello"))
	})

	It("requires a name in the metadata part", func() {
		body := build(`{"contentType":"text/plain"}`, "hello")
		_, _, err := ParseMultipart("multipart/related; boundary="+boundary, strings.NewReader(body))
		Expect(cmn.AsTaxonomy(err).Code()).To(Equal(cmn.CodeInvalidArgument))
	})

	It("rejects a non-related media type", func() {
		_, _, err := ParseMultipart("multipart/form-data; boundary=x", strings.NewReader(""))
		Expect(cmn.AsTaxonomy(err).Code()).To(Equal(cmn.CodeInvalidArgument))
	})
})
