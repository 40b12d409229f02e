package invoice

import (
	"context"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("LocalStorage", func() {
	var (
		tmpDir  string
		storage *LocalStorage
	)

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
		var err error
		storage, err = NewLocalStorage(tmpDir, "http://localhost:8080/")
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("NewLocalStorage", func() {
		It("creates the directory", func() {
			dir := filepath.Join(tmpDir, "nested", "images")
			_, err := NewLocalStorage(dir, "")
			Expect(err).NotTo(HaveOccurred())
			Expect(dir).To(BeADirectory())
		})
	})

	Describe("Upload", func() {
		var (
			upload   *Upload
			err      error
			progress []float64
		)

		BeforeEach(func() {
			progress = nil
			upload, err = storage.Upload(context.Background(), UploadRequest{
				Data:     testPNG(),
				Folder:   "invoices",
				Access:   AccessPublic,
				Filename: "march.png",
				MimeType: "image/png",
			}, func(p float64) { progress = append(progress, p) })
		})

		It("should not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("writes the file under the folder", func() {
			Expect(upload.StorageID).To(HavePrefix("invoices/"))
			Expect(upload.StorageID).To(HaveSuffix(".png"))
			data, readErr := os.ReadFile(filepath.Join(tmpDir, filepath.FromSlash(upload.StorageID)))
			Expect(readErr).NotTo(HaveOccurred())
			Expect(data).To(Equal(testPNG()))
		})

		It("returns a URL served under /images/", func() {
			Expect(upload.PublicURL).To(Equal("http://localhost:8080/images/" + upload.StorageID))
		})

		It("describes the image", func() {
			Expect(upload.Format).To(Equal("png"))
			Expect(upload.Width).To(Equal(3))
			Expect(upload.Height).To(Equal(2))
			Expect(upload.SizeBytes).To(Equal(int64(len(testPNG()))))
		})

		It("reports completion", func() {
			Expect(progress).To(Equal([]float64{100}))
		})

		It("can be read back", func() {
			data, getErr := storage.Get(upload.StorageID)
			Expect(getErr).NotTo(HaveOccurred())
			Expect(data).To(Equal(testPNG()))
		})
	})

	Describe("Get", func() {
		It("returns an error for a missing file", func() {
			_, err := storage.Get("invoices/missing.png")
			Expect(err).To(HaveOccurred())
		})

		It("does not escape the base directory", func() {
			outside := filepath.Join(filepath.Dir(tmpDir), "secret.txt")
			Expect(os.WriteFile(outside, []byte("secret"), 0644)).To(Succeed())
			DeferCleanup(os.Remove, outside)

			_, err := storage.Get("../secret.txt")
			Expect(err).To(HaveOccurred())
		})
	})
})
