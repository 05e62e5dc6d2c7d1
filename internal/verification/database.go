package verification

import (
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

const (
	documentsBucket     = "documents"
	verificationsBucket = "verifications"
)

// DB defines the interface for database operations
type DB interface {
	// SaveDocument saves a document to the database
	SaveDocument(doc *Document) error

	// GetDocument retrieves a document by ID
	GetDocument(id string) (*Document, error)

	// ListDocuments returns all documents
	ListDocuments() ([]*Document, error)

	// DeleteDocument removes a document from the database
	DeleteDocument(id string) error

	// SaveVerification saves a verification to the database
	SaveVerification(v *Verification) error

	// GetVerification retrieves a verification by ID
	GetVerification(id string) (*Verification, error)

	// ListVerifications returns all verifications
	ListVerifications() ([]*Verification, error)

	// DeleteVerification removes a verification from the database
	DeleteVerification(id string) error

	// Close closes the database connection
	Close() error
}

// BoltDB implements the DB interface using BoltDB
type BoltDB struct {
	db *bbolt.DB
}

// NewBoltDB creates a new BoltDB instance
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{documentsBucket, verificationsBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltDB{db: db}, nil
}

func put(db *bbolt.DB, bucket, id string, v any) error {
	return db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshaling %s: %w", bucket, err)
		}
		return tx.Bucket([]byte(bucket)).Put([]byte(id), data)
	})
}

func get[T any](db *bbolt.DB, bucket, id string) (*T, error) {
	var v T
	err := db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(bucket)).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%s %s: %w", bucket, id, ErrNotFound)
		}
		return json.Unmarshal(data, &v)
	})
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func list[T any](db *bbolt.DB, bucket string) ([]*T, error) {
	out := make([]*T, 0)
	err := db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucket)).ForEach(func(k, data []byte) error {
			var v T
			if err := json.Unmarshal(data, &v); err != nil {
				return fmt.Errorf("unmarshaling %s %s: %w", bucket, k, err)
			}
			out = append(out, &v)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func remove(db *bbolt.DB, bucket, id string) error {
	return db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b.Get([]byte(id)) == nil {
			return fmt.Errorf("%s %s: %w", bucket, id, ErrNotFound)
		}
		return b.Delete([]byte(id))
	})
}

// SaveDocument saves a document to the database
func (b *BoltDB) SaveDocument(doc *Document) error {
	return put(b.db, documentsBucket, doc.ID, doc)
}

// GetDocument retrieves a document by ID
func (b *BoltDB) GetDocument(id string) (*Document, error) {
	return get[Document](b.db, documentsBucket, id)
}

// ListDocuments returns all documents
func (b *BoltDB) ListDocuments() ([]*Document, error) {
	return list[Document](b.db, documentsBucket)
}

// DeleteDocument removes a document from the database
func (b *BoltDB) DeleteDocument(id string) error {
	return remove(b.db, documentsBucket, id)
}

// SaveVerification saves a verification to the database
func (b *BoltDB) SaveVerification(v *Verification) error {
	return put(b.db, verificationsBucket, v.ID, v)
}

// GetVerification retrieves a verification by ID
func (b *BoltDB) GetVerification(id string) (*Verification, error) {
	return get[Verification](b.db, verificationsBucket, id)
}

// ListVerifications returns all verifications
func (b *BoltDB) ListVerifications() ([]*Verification, error) {
	return list[Verification](b.db, verificationsBucket)
}

// DeleteVerification removes a verification from the database
func (b *BoltDB) DeleteVerification(id string) error {
	return remove(b.db, verificationsBucket, id)
}

// Close closes the database connection
func (b *BoltDB) Close() error {
	return b.db.Close()
}
