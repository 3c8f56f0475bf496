package wireproto

import (
	"encoding/binary"
	"errors"
	"net/http"
	"strconv"
	"strings"
)

// MaxHandshakeAgeSeconds is the maximum age in seconds (§4.B) of the timestamp carried in an
// upgrade request before it is rejected.
const MaxHandshakeAgeSeconds = 30

// HandshakeAuth is the decoded upgrade-request credential: HTTP Basic
// where the username is the base58 wallet pubkey and the password is the
// base58 signature over the little-endian timestamp, which is also
// carried as a query parameter.
type HandshakeAuth struct {
	WalletPubkeyBase58 string
	SignatureBase58    string
	Timestamp          int64
}

var (
	errNoBasicAuth    = errors.New("wireproto: missing HTTP Basic credentials")
	errMissingTSQuery = errors.New("wireproto: missing timestamp query parameter")
)

// ParseHandshake extracts the Basic-auth pubkey/signature and the
// timestamp query parameter from an upgrade request.
func ParseHandshake(r *http.Request) (HandshakeAuth, error) {
	user, pass, ok := r.BasicAuth()
	if !ok {
		return HandshakeAuth{}, errNoBasicAuth
	}
	tsParam := r.URL.Query().Get("timestamp")
	if tsParam == "" {
		return HandshakeAuth{}, errMissingTSQuery
	}
	ts, err := strconv.ParseInt(tsParam, 10, 64)
	if err != nil {
		return HandshakeAuth{}, err
	}
	return HandshakeAuth{
		WalletPubkeyBase58: user,
		SignatureBase58:    strings.TrimSpace(pass),
		Timestamp:          ts,
	}, nil
}

// TimestampMessage is the exact byte sequence the client signs: the
// 8-byte little-endian timestamp.
func TimestampMessage(timestamp int64) [8]byte {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(timestamp))
	return buf
}
