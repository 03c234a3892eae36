// Package signature implements the HMAC primitives shared by webhook
// verification and synthetic signing. A Scheme describes how a provider
// composes its signature base string, which digest it applies, and how the
// result is encoded and prefixed on the wire.
package signature

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"hash"
	"strings"
)

// Algorithm selects the HMAC digest.
type Algorithm string

const (
	SHA1   Algorithm = "sha1"
	SHA256 Algorithm = "sha256"
	SHA384 Algorithm = "sha384"
	SHA512 Algorithm = "sha512"
)

// Encoding selects how the raw MAC bytes appear on the wire.
type Encoding string

const (
	Hex    Encoding = "hex"
	Base64 Encoding = "base64"
)

// BaseKind names the base-string composition rule applied before hashing.
type BaseKind string

const (
	// BaseBody signs the raw body alone.
	BaseBody BaseKind = "body"
	// BaseTimestampDotBody signs "<timestamp>.<body>" (Stripe).
	BaseTimestampDotBody BaseKind = "timestamp.body"
	// BaseVersionedTimestamp signs "v0:<timestamp>:<body>" (Slack).
	BaseVersionedTimestamp BaseKind = "v0:timestamp:body"
	// BaseIDDotTimestampDotBody signs "<id>.<timestamp>.<body>" (Svix).
	BaseIDDotTimestampDotBody BaseKind = "id.timestamp.body"
	// BaseTimestampBody signs "<timestamp><body>" concatenated (SendGrid).
	BaseTimestampBody BaseKind = "timestamp+body"
	// BaseURLBody signs "<url><body>" concatenated (Twilio).
	BaseURLBody BaseKind = "url+body"
)

// BaseInput carries the material a Scheme may fold into its base string.
// Fields that the scheme's BaseKind does not reference are ignored.
type BaseInput struct {
	Body      []byte
	Timestamp string
	ID        string
	URL       string
}

// Scheme is a declarative description of a provider signature convention.
type Scheme struct {
	Algorithm Algorithm
	Encoding  Encoding
	// Prefix is stripped from inbound signatures and prepended to outbound
	// ones, e.g. "sha256=" or "v1,". Empty means bare.
	Prefix string
	Base   BaseKind
}

func newHash(algo Algorithm) (func() hash.Hash, error) {
	switch algo {
	case SHA1:
		return sha1.New, nil
	case SHA256:
		return sha256.New, nil
	case SHA384:
		return sha512.New384, nil
	case SHA512:
		return sha512.New, nil
	default:
		return nil, fmt.Errorf("signature: unsupported algorithm %q", algo)
	}
}

// Compute returns the raw HMAC of base under secret.
func Compute(algo Algorithm, secret, base []byte) ([]byte, error) {
	h, err := newHash(algo)
	if err != nil {
		return nil, err
	}
	mac := hmac.New(h, secret)
	mac.Write(base)
	return mac.Sum(nil), nil
}

// Equal reports whether two MACs match. The comparison is constant time;
// length mismatches return false without comparing content.
func Equal(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}

// BaseString composes the byte sequence fed into the HMAC for the scheme.
func (s Scheme) BaseString(in BaseInput) []byte {
	switch s.Base {
	case BaseTimestampDotBody:
		return join(in.Timestamp, ".", in.Body)
	case BaseVersionedTimestamp:
		return join("v0:"+in.Timestamp, ":", in.Body)
	case BaseIDDotTimestampDotBody:
		return join(in.ID+"."+in.Timestamp, ".", in.Body)
	case BaseTimestampBody:
		return join(in.Timestamp, "", in.Body)
	case BaseURLBody:
		return join(in.URL, "", in.Body)
	default:
		return in.Body
	}
}

func join(prefix, sep string, body []byte) []byte {
	out := make([]byte, 0, len(prefix)+len(sep)+len(body))
	out = append(out, prefix...)
	out = append(out, sep...)
	out = append(out, body...)
	return out
}

func (s Scheme) encode(mac []byte) string {
	if s.Encoding == Base64 {
		return base64.StdEncoding.EncodeToString(mac)
	}
	return hex.EncodeToString(mac)
}

func (s Scheme) decode(sig string) ([]byte, error) {
	if s.Encoding == Base64 {
		return base64.StdEncoding.DecodeString(sig)
	}
	return hex.DecodeString(sig)
}

// Sign computes the wire-format signature for the input, prefix included.
func (s Scheme) Sign(secret []byte, in BaseInput) (string, error) {
	mac, err := Compute(s.Algorithm, secret, s.BaseString(in))
	if err != nil {
		return "", err
	}
	return s.Prefix + s.encode(mac), nil
}

// Verify checks a wire-format signature against the input. A missing
// expected prefix, a decoding failure, or a length mismatch all yield false.
func (s Scheme) Verify(secret []byte, in BaseInput, provided string) bool {
	if s.Prefix != "" {
		if !strings.HasPrefix(provided, s.Prefix) {
			return false
		}
		provided = strings.TrimPrefix(provided, s.Prefix)
	}
	got, err := s.decode(provided)
	if err != nil {
		return false
	}
	want, err := Compute(s.Algorithm, secret, s.BaseString(in))
	if err != nil {
		return false
	}
	return Equal(got, want)
}

// VerifyAny checks a list of candidate signatures (e.g. Svix's space
// separated set, Stripe's repeated v1 entries) and accepts if any matches.
func (s Scheme) VerifyAny(secret []byte, in BaseInput, provided []string) bool {
	ok := false
	for _, sig := range provided {
		if s.Verify(secret, in, sig) {
			ok = true
		}
	}
	return ok
}
