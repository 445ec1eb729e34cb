// Package obfuscate turns numeric resource ids into short opaque tokens
// and back.
//
// The token core is a keyed Feistel permutation of the id over 6·n bits
// (n = min(length, 10)) rendered as n base64url characters, so every id in
// range has exactly one token and decoding is a direct inversion. Tokens
// longer than 10 characters carry keyed check characters that decoding
// verifies.
package obfuscate

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"strconv"

	"open-blog/internal/cache"
)

const (
	MinLength = 6
	MaxLength = 32

	maxCoreChars = 10 // 60 bits, the widest even split that fits a uint64
	rounds       = 4

	alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"

	encodeKeyPrefix = "encodeid:"
	decodeKeyPrefix = "decodeid:"
)

var (
	ErrInvalidToken = errors.New("obfuscate: invalid token")
	ErrOutOfRange   = errors.New("obfuscate: id out of range for token length")
)

var charIndex = func() [256]int8 {
	var idx [256]int8
	for i := range idx {
		idx[i] = -1
	}
	for i := 0; i < len(alphabet); i++ {
		idx[alphabet[i]] = int8(i)
	}
	return idx
}()

// Obfuscator encodes and decodes ids for one (salt, length) pair.
type Obfuscator struct {
	key    []byte
	length int
	chars  int    // core characters
	half   uint   // bits per Feistel half
	mask   uint64 // low half mask
	cache  *cache.Manager
}

// New creates an Obfuscator. length is clamped to [MinLength, MaxLength].
// cache may be nil.
func New(salt string, length int, c *cache.Manager) *Obfuscator {
	length = max(MinLength, min(length, MaxLength))
	chars := min(length, maxCoreChars)
	half := uint(chars * 6 / 2)
	return &Obfuscator{
		key:    []byte(salt),
		length: length,
		chars:  chars,
		half:   half,
		mask:   1<<half - 1,
		cache:  c,
	}
}

// Length is the token length produced by Encode.
func (o *Obfuscator) Length() int { return o.length }

// MaxID is the largest id Encode accepts.
func (o *Obfuscator) MaxID() uint64 { return 1<<(2*o.half) - 1 }

// Encode returns the token for id.
func (o *Obfuscator) Encode(id uint64) (string, error) {
	if id > o.MaxID() {
		return "", ErrOutOfRange
	}
	key := encodeKeyPrefix + strconv.FormatUint(id, 10)
	if o.cache != nil {
		if v, ok := o.cache.Peek(key); ok {
			if tok, ok := v.(string); ok {
				return tok, nil
			}
		}
	}

	core := o.render(o.permute(id))
	tok := core + o.check(core)

	if o.cache != nil {
		o.cache.Set(key, tok)
		o.cache.Set(decodeKeyPrefix+tok, id)
	}
	return tok, nil
}

// Decode returns the id a token was produced from. Any malformed token,
// or one whose check characters do not verify, yields ErrInvalidToken.
// Decode does not know whether a resource with the id exists.
func (o *Obfuscator) Decode(token string) (uint64, error) {
	if len(token) != o.length {
		return 0, ErrInvalidToken
	}
	key := decodeKeyPrefix + token
	if o.cache != nil {
		if v, ok := o.cache.Peek(key); ok {
			if id, ok := v.(uint64); ok {
				return id, nil
			}
		}
	}

	core := token[:o.chars]
	v, ok := o.parse(core)
	if !ok {
		return 0, ErrInvalidToken
	}
	if !hmac.Equal([]byte(token[o.chars:]), []byte(o.check(core))) {
		return 0, ErrInvalidToken
	}
	id := o.unpermute(v)

	if o.cache != nil {
		o.cache.Set(key, id)
		o.cache.Set(encodeKeyPrefix+strconv.FormatUint(id, 10), token)
	}
	return id, nil
}

// ClearCache drops every cached encoding in both directions.
func (o *Obfuscator) ClearCache() {
	if o.cache == nil {
		return
	}
	o.cache.Delete(encodeKeyPrefix + cache.Wildcard)
	o.cache.Delete(decodeKeyPrefix + cache.Wildcard)
}

func (o *Obfuscator) round(i int, r uint64) uint64 {
	var buf [9]byte
	buf[0] = byte(i)
	binary.BigEndian.PutUint64(buf[1:], r)
	mac := hmac.New(sha256.New, o.key)
	mac.Write(buf[:])
	return binary.BigEndian.Uint64(mac.Sum(nil)) & o.mask
}

func (o *Obfuscator) permute(x uint64) uint64 {
	l, r := x>>o.half, x&o.mask
	for i := range rounds {
		l, r = r, l^o.round(i, r)
	}
	return l<<o.half | r
}

func (o *Obfuscator) unpermute(x uint64) uint64 {
	l, r := x>>o.half, x&o.mask
	for i := rounds - 1; i >= 0; i-- {
		l, r = r^o.round(i, l), l
	}
	return l<<o.half | r
}

func (o *Obfuscator) render(v uint64) string {
	buf := make([]byte, o.chars)
	for i := o.chars - 1; i >= 0; i-- {
		buf[i] = alphabet[v&63]
		v >>= 6
	}
	return string(buf)
}

func (o *Obfuscator) parse(s string) (uint64, bool) {
	var v uint64
	for i := 0; i < len(s); i++ {
		d := charIndex[s[i]]
		if d < 0 {
			return 0, false
		}
		v = v<<6 | uint64(d)
	}
	return v, true
}

// check returns the keyed suffix for tokens longer than the core.
func (o *Obfuscator) check(core string) string {
	n := o.length - o.chars
	if n == 0 {
		return ""
	}
	mac := hmac.New(sha256.New, o.key)
	mac.Write([]byte("check:"))
	mac.Write([]byte(core))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))[:n]
}
