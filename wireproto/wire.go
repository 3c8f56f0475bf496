// Package wireproto implements the §6 binary WebSocket wire format: a
// single leading type byte followed by a fixed or variable payload. No
// direct teacher analogue was retrieved for a binary framing layer this
// small, so it is built from scratch on stdlib encoding/binary, matching
// the byte-oriented style of the rest of the coordinator's wire-adjacent
// code (see chain.Blockhash, proof.Challenge as fixed-width arrays).
package wireproto

import (
	"encoding/binary"
	"errors"

	"github.com/minepool/coordinator/proof"
)

// Server-to-client message type byte.
const (
	TypeWork byte = 0x00
)

// Client-to-server message type bytes.
const (
	TypeReady        byte = 0x00
	TypeMining       byte = 0x01
	TypeBestSolution byte = 0x02
)

// WorkPacketLen is the fixed size of a server work packet: the type byte,
// the 32-byte challenge, then three little-endian uint64s (cutoff seconds, nonce
// start, nonce end).
const WorkPacketLen = 1 + proof.ChallengeLen + 8 + 8 + 8

// EncodeWork builds the 57-byte S->C work packet.
func EncodeWork(challenge proof.Challenge, cutoffSeconds uint64, nonceStart, nonceEnd uint64) []byte {
	buf := make([]byte, WorkPacketLen)
	buf[0] = TypeWork
	off := 1
	copy(buf[off:], challenge[:])
	off += proof.ChallengeLen
	binary.LittleEndian.PutUint64(buf[off:], cutoffSeconds)
	off += 8
	binary.LittleEndian.PutUint64(buf[off:], nonceStart)
	off += 8
	binary.LittleEndian.PutUint64(buf[off:], nonceEnd)
	return buf
}

var (
	errFrameTooShort = errors.New("wireproto: frame too short")
	errWrongType     = errors.New("wireproto: unexpected message type")
)

// BestSolution is the decoded payload of a C->S 0x02 frame.
type BestSolution struct {
	Solution     proof.Solution
	WalletPubkey proof.WalletPubkey
	Signature    []byte // raw signature bytes, decoded from the ascii payload
}

// minBestSolutionPayload is the fixed-width prefix of a BestSolution frame
// (digest, nonce, wallet pubkey) before the variable-length ascii
// signature.
const minBestSolutionPayload = 16 + 8 + 32

// DecodeBestSolution parses a C->S 0x02 frame's payload (the type byte
// already stripped). The trailing bytes are the ascii-encoded signature,
// decoded by sigDecode (base58, per the wallet's on-chain key format).
func DecodeBestSolution(payload []byte, sigDecode func(string) ([]byte, error)) (BestSolution, error) {
	if len(payload) < minBestSolutionPayload {
		return BestSolution{}, errFrameTooShort
	}
	var bs BestSolution
	copy(bs.Solution.Digest[:], payload[0:16])
	bs.Solution.Nonce = binary.LittleEndian.Uint64(payload[16:24])
	copy(bs.WalletPubkey[:], payload[24:56])

	sigASCII := string(payload[56:])
	sig, err := sigDecode(sigASCII)
	if err != nil {
		return BestSolution{}, err
	}
	bs.Signature = sig
	return bs, nil
}

// SolutionMessage is the exact byte sequence a miner signs for a
// best-solution submission: the digest followed by the little-endian
// nonce, matching the bytes decoded above.
func SolutionMessage(bs BestSolution) [24]byte {
	var msg [24]byte
	copy(msg[0:16], bs.Solution.Digest[:])
	binary.LittleEndian.PutUint64(msg[16:24], bs.Solution.Nonce)
	return msg
}

// DecodeClientFrame splits a raw C->S frame into its type byte and
// payload, validating the frame is non-empty.
func DecodeClientFrame(frame []byte) (msgType byte, payload []byte, err error) {
	if len(frame) < 1 {
		return 0, nil, errFrameTooShort
	}
	return frame[0], frame[1:], nil
}
