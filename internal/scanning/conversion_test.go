package scanning

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/jpeg"
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
)

var _ = Describe("prepareImageData", func() {
	var (
		data        []byte
		contentType string
		out         []byte
		mimeType    string
		converted   bool
		err         error
	)

	JustBeforeEach(func() {
		out, mimeType, converted, err = prepareImageData(data, contentType)
	})

	When("the image is already PNG", func() {
		BeforeEach(func() {
			data = testPNG()
			contentType = "image/png"
		})

		It("returns it unchanged", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(converted).To(BeFalse())
			Expect(out).To(Equal(data))
			Expect(mimeType).To(Equal("image/png"))
		})
	})

	When("the image is JPEG without a declared type", func() {
		BeforeEach(func() {
			var buf bytes.Buffer
			Expect(jpeg.Encode(&buf, image.NewGray(image.Rect(0, 0, 4, 4)), nil)).To(Succeed())
			data = buf.Bytes()
			contentType = ""
		})

		It("sniffs the type and converts to PNG", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(converted).To(BeTrue())
			Expect(mimeType).To(Equal("image/png"))
			_, format, decodeErr := image.Decode(bytes.NewReader(out))
			Expect(decodeErr).NotTo(HaveOccurred())
			Expect(format).To(Equal("png"))
		})
	})

	When("the data is empty", func() {
		BeforeEach(func() {
			data = nil
			contentType = "image/png"
		})

		It("returns an error", func() {
			Expect(err).To(HaveOccurred())
		})
	})
})

var _ = Describe("DetectMimeType", func() {
	It("prefers a specific declared type", func() {
		Expect(DetectMimeType(testPNG(), " Image/JPEG ")).To(Equal("image/jpeg"))
	})

	It("sniffs generic declarations", func() {
		Expect(DetectMimeType(testPNG(), "application/octet-stream")).To(Equal("image/png"))
	})
})

var _ = Describe("HTTPFetcher", func() {
	var (
		server  *ghttp.Server
		fetcher *HTTPFetcher
	)

	BeforeEach(func() {
		server = ghttp.NewServer()
		fetcher = NewHTTPFetcher(time.Second)
	})

	AfterEach(func() {
		server.Close()
	})

	When("the image exists", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest("GET", "/invoice.png"),
				ghttp.RespondWith(http.StatusOK, testPNG(), http.Header{"Content-Type": {"image/png; charset=binary"}}),
			))
		})

		It("returns the body and media type", func() {
			data, contentType, err := fetcher.Fetch(context.Background(), server.URL()+"/invoice.png")
			Expect(err).NotTo(HaveOccurred())
			Expect(data).To(Equal(testPNG()))
			Expect(contentType).To(Equal("image/png"))
		})
	})

	When("the server returns an error status", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusNotFound, "missing"))
		})

		It("returns an error", func() {
			_, _, err := fetcher.Fetch(context.Background(), server.URL()+"/missing.png")
			Expect(err).To(MatchError(ContainSubstring("status 404")))
		})
	})
})

var _ = Describe("isHEIC", func() {
	heicHeader := append([]byte{0x00, 0x00, 0x00, 0x18}, []byte("ftypheic\x00\x00\x00\x00mif1heic")...)

	It("sniffs HEIC data without a declared type", func() {
		Expect(isHEIC(heicHeader, "")).To(BeTrue())
	})

	It("trusts a declared HEIF type", func() {
		Expect(isHEIC(nil, "image/heif")).To(BeTrue())
	})

	It("rejects other images", func() {
		Expect(isHEIC(testPNG(), "image/png")).To(BeFalse())
	})
})

var _ = Describe("imageToPNG", func() {
	When("the data is not a decodable image", func() {
		It("reports an unsupported format", func() {
			_, err := imageToPNG([]byte("plain text"), "text/plain")
			Expect(errors.Is(err, image.ErrFormat)).To(BeTrue())
			Expect(err).To(MatchError(ContainSubstring("unsupported image format text/plain")))
		})
	})
})
