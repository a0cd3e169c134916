package lnurldb

import (
	"bytes"
	"encoding/json"

	"github.com/go-errors/errors"
	"go.etcd.io/bbolt"
)

func putJSON(bucket *bbolt.Bucket, key []byte, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return errors.Errorf("Could not marshal data: %v", err)
	}

	return bucket.Put(key, payload)
}

// getJSON reports false when the key is absent.
func getJSON(bucket *bbolt.Bucket, key []byte, v interface{}) (bool, error) {
	payload := bucket.Get(key)
	if payload == nil || bytes.Equal(payload, []byte("null")) {
		return false, nil
	}

	if err := json.Unmarshal(payload, v); err != nil {
		return false, errors.Errorf("Could not unmarshal data: %v", err)
	}

	return true, nil
}
