package wire

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	CommandSimple     byte   = 0
	TokenLength       uint16 = 32
	FrameHeaderLen           = 1 + 2 + int(TokenLength) + 2
	FeedbackRecordLen        = 4 + 2 + int(TokenLength)
	MaxFramePayload          = 0xFFFF
)

var (
	ErrArityMismatch   = errors.New("wire: token and payload counts differ")
	ErrPayloadTooLarge = errors.New("wire: payload too large")
	ErrInvalidToken    = errors.New("wire: invalid device token")
)

// Token is a binary device token.
type Token [TokenLength]byte

// ParseToken decodes a hex device token. Spaces and angle brackets are
// ignored so tokens copied from device logs parse as-is.
func ParseToken(s string) (Token, error) {
	clean := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '<', '>', '\t', '\n', '\r':
			return -1
		}
		return r
	}, s)
	var t Token
	if len(clean) != hex.EncodedLen(len(t)) {
		return Token{}, fmt.Errorf("%w: want %d hex chars, got %d", ErrInvalidToken, hex.EncodedLen(len(t)), len(clean))
	}
	if _, err := hex.Decode(t[:], []byte(clean)); err != nil {
		return Token{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return t, nil
}

func (t Token) String() string {
	return hex.EncodeToString(t[:])
}

// FeedbackRecord is one entry from the feedback service.
type FeedbackRecord struct {
	Timestamp time.Time
	TokenLen  uint16
	Token     Token
}

// Encode builds the concatenated command-0 frames for a batch, in input order.
func Encode(tokens []Token, payloads [][]byte) ([]byte, error) {
	if len(tokens) != len(payloads) {
		return nil, fmt.Errorf("%w: tokens=%d payloads=%d", ErrArityMismatch, len(tokens), len(payloads))
	}
	size := 0
	for _, p := range payloads {
		size += FrameHeaderLen + len(p)
	}
	out := make([]byte, 0, size)
	for i := range tokens {
		var err error
		out, err = AppendFrame(out, tokens[i], payloads[i])
		if err != nil {
			return nil, fmt.Errorf("frame %d: %w", i, err)
		}
	}
	return out, nil
}

// EncodeOne encodes a single notification.
func EncodeOne(token Token, payload []byte) ([]byte, error) {
	return Encode([]Token{token}, [][]byte{payload})
}

// AppendFrame appends one encoded frame to dst.
func AppendFrame(dst []byte, token Token, payload []byte) ([]byte, error) {
	if len(payload) > MaxFramePayload {
		return dst, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(payload))
	}
	dst = append(dst, CommandSimple)
	dst = binary.BigEndian.AppendUint16(dst, TokenLength)
	dst = append(dst, token[:]...)
	dst = binary.BigEndian.AppendUint16(dst, uint16(len(payload)))
	dst = append(dst, payload...)
	return dst, nil
}

// DecodeFeedback parses whole 38-byte records from b. A trailing partial
// record is ignored.
func DecodeFeedback(b []byte) []FeedbackRecord {
	out := make([]FeedbackRecord, 0, len(b)/FeedbackRecordLen)
	for off := 0; len(b)-off >= FeedbackRecordLen; off += FeedbackRecordLen {
		rec := b[off : off+FeedbackRecordLen]
		ts := int32(binary.BigEndian.Uint32(rec[0:4]))
		r := FeedbackRecord{
			Timestamp: time.Unix(int64(ts), 0).UTC(),
			TokenLen:  binary.BigEndian.Uint16(rec[4:6]),
		}
		copy(r.Token[:], rec[6:])
		out = append(out, r)
	}
	return out
}
