package lnurldb

import (
	"context"
	"time"

	"github.com/the-lightning-land/lnurld/challenge"
	"github.com/the-lightning-land/lnurld/lnurl"
	"go.etcd.io/bbolt"
)

// InsertChallenge stores a new challenge keyed by its token.
func (db *DB) InsertChallenge(c *challenge.Challenge) error {
	return db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(challengesBucket)

		if bucket.Get([]byte(c.Token)) != nil {
			return challenge.ErrTokenExists
		}

		return putJSON(bucket, []byte(c.Token), c)
	})
}

// ConsumeChallenge marks a challenge consumed within a single write
// transaction. bbolt serializes writers, so only one caller can win.
func (db *DB) ConsumeChallenge(token string, tag lnurl.Tag, now time.Time) (*challenge.Challenge, error) {
	var consumed *challenge.Challenge

	err := db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(challengesBucket)

		c := &challenge.Challenge{}
		found, err := getJSON(bucket, []byte(token), c)
		if err != nil {
			return err
		}
		if !found {
			c = nil
		}

		if err := challenge.Redeemable(c, tag, now); err != nil {
			return err
		}

		c.Consumed = true
		consumed = c

		return putJSON(bucket, []byte(token), c)
	})
	if err != nil {
		return nil, err
	}

	return consumed, nil
}

// SweepChallenges deletes challenges that expired before now.
func (db *DB) SweepChallenges(now time.Time) (int, error) {
	n := 0

	err := db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(challengesBucket)

		var expired [][]byte

		err := bucket.ForEach(func(k, v []byte) error {
			c := &challenge.Challenge{}
			if _, err := getJSON(bucket, k, c); err != nil {
				return err
			}

			if c.Expired(now) {
				expired = append(expired, append([]byte{}, k...))
			}

			return nil
		})
		if err != nil {
			return err
		}

		for _, k := range expired {
			if err := bucket.Delete(k); err != nil {
				return err
			}
		}

		n = len(expired)

		return nil
	})

	return n, err
}

// ChallengeStore exposes the challenge bucket as a challenge.Store.
func (db *DB) ChallengeStore() challenge.Store {
	return &challengeStore{db: db}
}

type challengeStore struct {
	db *DB
}

func (s *challengeStore) Insert(_ context.Context, c *challenge.Challenge) error {
	return s.db.InsertChallenge(c)
}

func (s *challengeStore) Consume(_ context.Context, token string, tag lnurl.Tag, now time.Time) (*challenge.Challenge, error) {
	return s.db.ConsumeChallenge(token, tag, now)
}

func (s *challengeStore) Sweep(_ context.Context, now time.Time) (int, error) {
	return s.db.SweepChallenges(now)
}
