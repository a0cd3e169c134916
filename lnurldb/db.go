package lnurldb

import (
	"os"
	"path/filepath"
	"time"

	"github.com/go-errors/errors"
	"go.etcd.io/bbolt"
)

const (
	dbName           = "lnurld.db"
	dbFilePermission = 0600
)

var (
	challengesBucket = []byte("challenges")
	invoicesBucket   = []byte("invoices")
)

// DB is the persistent storage of lnurld.
type DB struct {
	*bbolt.DB
}

// Open opens or creates the database inside dataDir.
func Open(dataDir string) (*DB, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, errors.Errorf("Could not create data dir: %v", err)
	}

	path := filepath.Join(dataDir, dbName)

	bdb, err := bbolt.Open(path, dbFilePermission, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Errorf("Could not open %v: %v", path, err)
	}

	db := &DB{DB: bdb}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, bucket := range [][]byte{challengesBucket, invoicesBucket} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		bdb.Close()
		return nil, errors.Errorf("Could not create buckets: %v", err)
	}

	return db, nil
}
