package lnurldb

import (
	"context"

	"github.com/the-lightning-land/lnurld/payrequest"
	"go.etcd.io/bbolt"
)

var _ payrequest.Ledger = (*DB)(nil)

// RecordInvoice appends an issued invoice to the ledger. Labels start with
// a timestamp so keys sort by issuance.
func (db *DB) RecordInvoice(_ context.Context, invoice *payrequest.IssuedInvoice) error {
	return db.Update(func(tx *bbolt.Tx) error {
		return putJSON(tx.Bucket(invoicesBucket), []byte(invoice.Label), invoice)
	})
}

// ListInvoices returns up to limit invoices, newest first. A limit of zero
// returns all of them.
func (db *DB) ListInvoices(limit int) ([]*payrequest.IssuedInvoice, error) {
	invoices := []*payrequest.IssuedInvoice{}

	err := db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(invoicesBucket)
		c := bucket.Cursor()

		for k, _ := c.Last(); k != nil; k, _ = c.Prev() {
			if limit > 0 && len(invoices) >= limit {
				break
			}

			invoice := &payrequest.IssuedInvoice{}
			if _, err := getJSON(bucket, k, invoice); err != nil {
				return err
			}

			invoices = append(invoices, invoice)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return invoices, nil
}
