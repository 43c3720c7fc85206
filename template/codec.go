package template

import (
	"github.com/go-json-experiment/json"
)

// TokenCodec serializes tokens to and from the persisted wire form (see
// persisted.go) through pluggable JSON encode/decode functions, so a
// caller can substitute an alternative codec such as
// github.com/goccy/go-json without changing the wire layout.
type TokenCodec struct {
	jsonEncoder func(v any) ([]byte, error)
	jsonDecoder func(data []byte, v any) error
}

// NewTokenCodec creates a codec backed by the module's default JSON
// functions.
func NewTokenCodec() *TokenCodec {
	return &TokenCodec{
		jsonEncoder: func(v any) ([]byte, error) { return json.Marshal(v) },
		jsonDecoder: func(data []byte, v any) error { return json.Unmarshal(data, v) },
	}
}

// WithEncoderJSON configures a custom JSON encoder implementation.
func (c *TokenCodec) WithEncoderJSON(encoder func(v any) ([]byte, error)) *TokenCodec {
	c.jsonEncoder = encoder
	return c
}

// WithDecoderJSON configures a custom JSON decoder implementation.
func (c *TokenCodec) WithDecoderJSON(decoder func(data []byte, v any) error) *TokenCodec {
	c.jsonDecoder = decoder
	return c
}

// Marshal serializes t into the persisted wire form.
func (c *TokenCodec) Marshal(t *Token) ([]byte, error) {
	return c.jsonEncoder(toPersisted(t))
}

// Unmarshal parses the persisted wire form back into a Token tree. A bare
// JSON primitive (outside an object) round-trips as the corresponding
// literal kind.
func (c *TokenCodec) Unmarshal(data []byte) (*Token, error) {
	var bare any
	if err := c.jsonDecoder(data, &bare); err == nil {
		if _, isMap := bare.(map[string]any); !isMap {
			return bareToToken(bare), nil
		}
	}
	var pt persistedToken
	if err := c.jsonDecoder(data, &pt); err != nil {
		return nil, err
	}
	return fromPersisted(&pt)
}

var defaultCodec = NewTokenCodec()

// MarshalToken serializes t with the default codec.
func MarshalToken(t *Token) ([]byte, error) { return defaultCodec.Marshal(t) }

// UnmarshalToken parses the persisted wire form with the default codec.
func UnmarshalToken(data []byte) (*Token, error) { return defaultCodec.Unmarshal(data) }
