package invoice

import (
	"context"
	"encoding/json"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("BoltDB", func() {
	var (
		db    *BoltDB
		idGen *mockIDGenerator
	)

	BeforeEach(func() {
		idGen = &mockIDGenerator{id: "sub-1"}
		var err error
		db, err = NewBoltDBWithDeps(
			filepath.Join(GinkgoT().TempDir(), "test.db"),
			idGen,
			&mockTimeSource{now: time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)},
		)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		if db != nil {
			db.Close()
		}
	})

	Describe("Submit", func() {
		var (
			payload Payload
			ack     Ack
			err     error
		)

		BeforeEach(func() {
			payload = Payload{ImageURL: "https://images.example.com/a.png", StorageID: "invoices/a.png", ExtractedText: "TOTAL: 10.00"}
			ack, err = db.Submit(context.Background(), payload)
		})

		It("should not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("acknowledges with id, status and time", func() {
			var decoded map[string]string
			Expect(json.Unmarshal(ack, &decoded)).To(Succeed())
			Expect(decoded).To(Equal(map[string]string{
				"id":         "sub-1",
				"status":     "received",
				"receivedAt": "2024-01-15T10:30:00Z",
			}))
		})

		It("stores the payload", func() {
			submission, getErr := db.GetSubmission("sub-1")
			Expect(getErr).NotTo(HaveOccurred())
			Expect(submission.Payload).To(Equal(payload))
			Expect(submission.ReceivedAt).To(Equal(time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)))
		})
	})

	Describe("GetSubmission", func() {
		It("returns an error for an unknown id", func() {
			_, err := db.GetSubmission("nope")
			Expect(err).To(MatchError(ContainSubstring("submission not found")))
		})
	})

	Describe("ListSubmissions", func() {
		When("nothing was submitted", func() {
			It("returns an empty list", func() {
				submissions, err := db.ListSubmissions()
				Expect(err).NotTo(HaveOccurred())
				Expect(submissions).NotTo(BeNil())
				Expect(submissions).To(BeEmpty())
			})
		})

		When("several payloads were submitted", func() {
			BeforeEach(func() {
				for _, id := range []string{"sub-1", "sub-2"} {
					idGen.id = id
					_, err := db.Submit(context.Background(), Payload{StorageID: id})
					Expect(err).NotTo(HaveOccurred())
				}
			})

			It("returns them all", func() {
				submissions, err := db.ListSubmissions()
				Expect(err).NotTo(HaveOccurred())
				Expect(submissions).To(HaveLen(2))
				Expect(submissions[0].ID).To(Equal("sub-1"))
				Expect(submissions[1].Payload.StorageID).To(Equal("sub-2"))
			})
		})
	})
})
