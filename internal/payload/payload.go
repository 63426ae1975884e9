// Package payload builds the JSON body carried by each notification frame.
package payload

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// MaxPayloadLength is the gateway's limit for one serialized payload.
const MaxPayloadLength = 256

var ErrTooLarge = errors.New("payload: too large")

// TooLargeError carries the serialized size that exceeded the limit.
type TooLargeError struct {
	Size int
}

func (e *TooLargeError) Error() string {
	return fmt.Sprintf("payload: too large: %d bytes (max %d)", e.Size, MaxPayloadLength)
}

func (e *TooLargeError) Is(target error) bool {
	return target == ErrTooLarge
}

// Alert is the dictionary form of the aps alert.
type Alert struct {
	Body         string
	ActionLocKey string
	LocKey       string
	LocArgs      []string
	LaunchImage  string
}

func (a *Alert) dict() map[string]any {
	d := map[string]any{"body": a.Body}
	if a.ActionLocKey != "" {
		d["action-loc-key"] = a.ActionLocKey
	}
	if a.LocKey != "" {
		d["loc-key"] = a.LocKey
	}
	if len(a.LocArgs) > 0 {
		d["loc-args"] = a.LocArgs
	}
	if a.LaunchImage != "" {
		d["launch-image"] = a.LaunchImage
	}
	return d
}

// Payload is an immutable, size-checked notification body.
type Payload struct {
	raw []byte
}

type builder struct {
	alert  any
	badge  *int
	sound  string
	custom map[string]any
}

type Option func(*builder)

func WithAlert(text string) Option {
	return func(b *builder) { b.alert = text }
}

func WithAlertDict(a Alert) Option {
	return func(b *builder) { b.alert = &a }
}

func WithBadge(n int) Option {
	return func(b *builder) { b.badge = &n }
}

func WithSound(name string) Option {
	return func(b *builder) { b.sound = name }
}

// WithCustom adds a top-level key next to aps. A custom "aps" key replaces
// the generated dictionary.
func WithCustom(key string, value any) Option {
	return func(b *builder) {
		if b.custom == nil {
			b.custom = make(map[string]any)
		}
		b.custom[key] = value
	}
}

func (b *builder) dict() map[string]any {
	aps := map[string]any{}
	switch a := b.alert.(type) {
	case string:
		if a != "" {
			aps["alert"] = a
		}
	case *Alert:
		aps["alert"] = a.dict()
	}
	if b.sound != "" {
		aps["sound"] = b.sound
	}
	if b.badge != nil {
		aps["badge"] = *b.badge
	}
	d := map[string]any{"aps": aps}
	for k, v := range b.custom {
		d[k] = v
	}
	return d
}

// New serializes the payload eagerly and fails with *TooLargeError when the
// result exceeds MaxPayloadLength.
func New(opts ...Option) (*Payload, error) {
	b := &builder{}
	for _, opt := range opts {
		opt(b)
	}
	return FromMap(b.dict())
}

// FromMap builds a payload from an already decoded JSON object, e.g. an HTTP
// request body. The object is used as-is.
func FromMap(m map[string]any) (*Payload, error) {
	raw, err := marshal(m)
	if err != nil {
		return nil, fmt.Errorf("payload: marshal: %w", err)
	}
	if len(raw) > MaxPayloadLength {
		return nil, &TooLargeError{Size: len(raw)}
	}
	return &Payload{raw: raw}, nil
}

// JSON returns the compact UTF-8 serialization.
func (p *Payload) JSON() []byte {
	return p.raw
}

func (p *Payload) Len() int {
	return len(p.raw)
}

func (p *Payload) String() string {
	return string(p.raw)
}

func marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
