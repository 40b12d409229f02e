package invoice

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

const submissionsBucket = "submissions"

// Submission is a payload accepted by the BoltDB backend
type Submission struct {
	ID         string    `json:"id"`
	Payload    Payload   `json:"payload"`
	ReceivedAt time.Time `json:"receivedAt"`
}

// SubmissionReader reads stored submissions
type SubmissionReader interface {
	GetSubmission(id string) (*Submission, error)
	ListSubmissions() ([]*Submission, error)
}

// BoltDB implements Backend by persisting submissions locally
type BoltDB struct {
	db          *bbolt.DB
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewBoltDB creates a new BoltDB instance
func NewBoltDB(path string) (*BoltDB, error) {
	return NewBoltDBWithDeps(path, uuidGenerator{}, defaultTimeSource{})
}

// NewBoltDBWithDeps creates a new BoltDB with custom dependencies (for testing)
func NewBoltDBWithDeps(path string, idGen IDGenerator, timeSrc TimeSource) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(submissionsBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltDB{db: db, idGenerator: idGen, timeSource: timeSrc}, nil
}

// Submit stores the payload and acknowledges it with its id
func (b *BoltDB) Submit(ctx context.Context, payload Payload) (Ack, error) {
	submission := &Submission{
		ID:         b.idGenerator.Generate(),
		Payload:    payload,
		ReceivedAt: b.timeSource.Now().UTC(),
	}

	err := b.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(submission)
		if err != nil {
			return fmt.Errorf("marshaling submission: %w", err)
		}
		return tx.Bucket([]byte(submissionsBucket)).Put([]byte(submission.ID), data)
	})
	if err != nil {
		return nil, fmt.Errorf("saving submission: %w", err)
	}

	ack, err := json.Marshal(map[string]any{
		"id":         submission.ID,
		"status":     "received",
		"receivedAt": submission.ReceivedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding ack: %w", err)
	}
	return ack, nil
}

// GetSubmission retrieves a submission by ID
func (b *BoltDB) GetSubmission(id string) (*Submission, error) {
	var submission *Submission
	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(submissionsBucket)).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("submission not found: %s", id)
		}
		return json.Unmarshal(data, &submission)
	})
	if err != nil {
		return nil, err
	}
	return submission, nil
}

// ListSubmissions returns all submissions ordered by id
func (b *BoltDB) ListSubmissions() ([]*Submission, error) {
	submissions := make([]*Submission, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(submissionsBucket)).ForEach(func(k, v []byte) error {
			var submission Submission
			if err := json.Unmarshal(v, &submission); err != nil {
				return fmt.Errorf("unmarshaling submission: %w", err)
			}
			submissions = append(submissions, &submission)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return submissions, nil
}

// Close closes the database connection
func (b *BoltDB) Close() error {
	return b.db.Close()
}
