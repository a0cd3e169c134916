package lnurl

import (
	"net/url"
	"strings"

	"github.com/btcsuite/btcd/btcutil/bech32"
	"github.com/go-errors/errors"
)

const hrp = "lnurl"

var ErrInvalidLnurl = errors.New("invalid lnurl")

// Encode bech32-encodes a URL into its upper case LNURL form.
func Encode(rawUrl string) (string, error) {
	converted, err := bech32.ConvertBits([]byte(rawUrl), 8, 5, true)
	if err != nil {
		return "", errors.Errorf("Could not convert url bits: %v", err)
	}

	encoded, err := bech32.Encode(hrp, converted)
	if err != nil {
		return "", errors.Errorf("Could not encode lnurl: %v", err)
	}

	return strings.ToUpper(encoded), nil
}

// Decode returns the URL hidden in a bech32 LNURL.
func Decode(lnurl string) (string, error) {
	prefix, data, err := bech32.DecodeNoLimit(strings.ToLower(lnurl))
	if err != nil {
		return "", errors.Errorf("%w: %v", ErrInvalidLnurl, err)
	}

	if prefix != hrp {
		return "", errors.Errorf("%w: unexpected prefix %q", ErrInvalidLnurl, prefix)
	}

	converted, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return "", errors.Errorf("%w: %v", ErrInvalidLnurl, err)
	}

	return string(converted), nil
}

// Resolve turns a bech32 LNURL, a "lightning:" URI, a plain URL or a
// lightning address (user@host) into the URL that has to be fetched.
func Resolve(input string) (*url.URL, error) {
	input = strings.TrimSpace(input)
	if strings.HasPrefix(strings.ToLower(input), "lightning:") {
		input = input[len("lightning:"):]
	}

	switch {
	case strings.HasPrefix(strings.ToLower(input), hrp+"1"):
		decoded, err := Decode(input)
		if err != nil {
			return nil, err
		}
		input = decoded
	case !strings.Contains(input, "://") && strings.Count(input, "@") == 1:
		return resolveAddress(input)
	}

	u, err := url.Parse(input)
	if err != nil {
		return nil, errors.Errorf("%w: %v", ErrInvalidLnurl, err)
	}

	if u.Scheme != "https" && u.Scheme != "http" {
		return nil, errors.Errorf("%w: unsupported scheme %q", ErrInvalidLnurl, u.Scheme)
	}

	if u.Host == "" {
		return nil, errors.Errorf("%w: missing host", ErrInvalidLnurl)
	}

	return u, nil
}

func resolveAddress(address string) (*url.URL, error) {
	parts := strings.SplitN(address, "@", 2)
	username, host := strings.ToLower(parts[0]), parts[1]

	if !ValidUsername(username) || host == "" {
		return nil, errors.Errorf("%w: malformed lightning address %q", ErrInvalidLnurl, address)
	}

	scheme := "https"
	if strings.HasSuffix(strings.Split(host, ":")[0], ".onion") {
		scheme = "http"
	}

	return &url.URL{
		Scheme: scheme,
		Host:   host,
		Path:   "/.well-known/lnurlp/" + username,
	}, nil
}

// ValidUsername reports whether a lightning address username is acceptable.
func ValidUsername(username string) bool {
	if len(username) == 0 || len(username) > 64 {
		return false
	}

	for _, c := range username {
		switch {
		case c >= 'a' && c <= 'z':
		case c >= '0' && c <= '9':
		case c == '-' || c == '_' || c == '.':
		default:
			return false
		}
	}

	return username != "." && username != ".."
}
