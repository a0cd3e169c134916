package api

import (
	"encoding/hex"
	"net/url"
	"strconv"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/the-lightning-land/lnurld/lnurl"
	"github.com/the-lightning-land/lnurld/node"
)

func requiredParam(query url.Values, names ...string) (string, error) {
	for _, name := range names {
		if v := query.Get(name); v != "" {
			return v, nil
		}
	}

	return "", lnurl.MissingParam(names[0])
}

func amountParam(query url.Values) (uint64, error) {
	raw, err := requiredParam(query, "amount")
	if err != nil {
		return 0, err
	}

	amount, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, lnurl.MalformedParam("amount", "must be a positive integer")
	}

	if amount == 0 {
		return 0, lnurl.MalformedParam("amount", "must be greater than zero")
	}

	return amount, nil
}

// boolParam accepts the values strconv.ParseBool does, defaulting to false.
func boolParam(query url.Values, name string) (bool, error) {
	raw := query.Get(name)
	if raw == "" {
		return false, nil
	}

	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, lnurl.MalformedParam(name, "must be 0, 1, true or false")
	}

	return v, nil
}

func nodeIdParam(query url.Values) (string, error) {
	raw, err := requiredParam(query, "remote_id", "remoteid")
	if err != nil {
		return "", err
	}

	b, err := hex.DecodeString(raw)
	if err != nil || len(b) != btcec.PubKeyBytesLenCompressed {
		return "", lnurl.MalformedParam("remote_id", "must be a hex encoded compressed public key")
	}

	if _, err := btcec.ParsePubKey(b); err != nil {
		return "", lnurl.MalformedParam("remote_id", "not a valid public key")
	}

	return raw, nil
}

// peerUriParam joins remote_id with the optional remote_addr host:port the
// wallet listens on. Without it the node can only reach known peers.
func peerUriParam(query url.Values, remoteId string) (string, error) {
	raw := query.Get("remote_addr")
	if raw == "" {
		return "", nil
	}

	uri := remoteId + "@" + raw
	if _, err := node.ParseUri(uri); err != nil {
		return "", lnurl.MalformedParam("remote_addr", "must be host:port")
	}

	return uri, nil
}
