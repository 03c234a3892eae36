package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"testing"
)

func hmacSHA256Hex(secret, base string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(base))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestSchemeVerify_BodyHexWithPrefix(t *testing.T) {
	scheme := Scheme{Algorithm: SHA256, Encoding: Hex, Prefix: "sha256=", Base: BaseBody}
	body := `{"ref":"refs/heads/main"}`

	sig := "sha256=" + hmacSHA256Hex("shhh", body)
	if !scheme.Verify([]byte("shhh"), BaseInput{Body: []byte(body)}, sig) {
		t.Fatalf("expected valid signature to verify")
	}
	if scheme.Verify([]byte("wrong"), BaseInput{Body: []byte(body)}, sig) {
		t.Fatalf("expected signature under wrong secret to fail")
	}
}

func TestSchemeVerify_MissingPrefixFails(t *testing.T) {
	scheme := Scheme{Algorithm: SHA256, Encoding: Hex, Prefix: "sha256=", Base: BaseBody}
	body := []byte("payload")

	bare := hmacSHA256Hex("s", string(body))
	if scheme.Verify([]byte("s"), BaseInput{Body: body}, bare) {
		t.Fatalf("expected bare signature to fail when prefix is required")
	}
}

func TestSchemeVerify_FlippedByteFails(t *testing.T) {
	scheme := Scheme{Algorithm: SHA256, Encoding: Hex, Base: BaseBody}
	body := []byte(`{"hello":"world"}`)

	sig, err := scheme.Sign([]byte("secret"), BaseInput{Body: body})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if !scheme.Verify([]byte("secret"), BaseInput{Body: body}, sig) {
		t.Fatalf("round trip should verify")
	}

	mutated := append([]byte(nil), body...)
	mutated[0] ^= 0x01
	if scheme.Verify([]byte("secret"), BaseInput{Body: mutated}, sig) {
		t.Fatalf("expected flipped body byte to fail verification")
	}

	badSig := []byte(sig)
	if badSig[0] == 'a' {
		badSig[0] = 'b'
	} else {
		badSig[0] = 'a'
	}
	if scheme.Verify([]byte("secret"), BaseInput{Body: body}, string(badSig)) {
		t.Fatalf("expected flipped signature byte to fail verification")
	}
}

func TestSchemeVerify_WrongLengthBase64Fails(t *testing.T) {
	scheme := Scheme{Algorithm: SHA256, Encoding: Base64, Base: BaseBody}
	// Valid base64, but the decoded MAC is too short for SHA-256.
	short := base64.StdEncoding.EncodeToString([]byte("tiny"))
	if scheme.Verify([]byte("secret"), BaseInput{Body: []byte("x")}, short) {
		t.Fatalf("expected short MAC to fail verification")
	}
}

func TestSchemeVerify_DecodeFailure(t *testing.T) {
	scheme := Scheme{Algorithm: SHA256, Encoding: Hex, Base: BaseBody}
	if scheme.Verify([]byte("secret"), BaseInput{Body: []byte("x")}, "not-hex!") {
		t.Fatalf("expected undecodable signature to fail")
	}
}

func TestBaseString_Compositions(t *testing.T) {
	body := []byte("BODY")
	cases := []struct {
		name string
		kind BaseKind
		in   BaseInput
		want string
	}{
		{"body", BaseBody, BaseInput{Body: body}, "BODY"},
		{"timestamp dot body", BaseTimestampDotBody, BaseInput{Body: body, Timestamp: "123"}, "123.BODY"},
		{"slack v0", BaseVersionedTimestamp, BaseInput{Body: body, Timestamp: "123"}, "v0:123:BODY"},
		{"svix id ts body", BaseIDDotTimestampDotBody, BaseInput{Body: body, Timestamp: "123", ID: "msg_1"}, "msg_1.123.BODY"},
		{"sendgrid concat", BaseTimestampBody, BaseInput{Body: body, Timestamp: "123"}, "123BODY"},
		{"twilio url body", BaseURLBody, BaseInput{Body: body, URL: "https://x/y"}, "https://x/yBODY"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Scheme{Base: tc.kind}.BaseString(tc.in)
			if string(got) != tc.want {
				t.Fatalf("base string = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestVerifyAny(t *testing.T) {
	scheme := Scheme{Algorithm: SHA256, Encoding: Base64, Prefix: "v1,", Base: BaseIDDotTimestampDotBody}
	in := BaseInput{Body: []byte("{}"), ID: "msg_1", Timestamp: "1700000000"}

	good, err := scheme.Sign([]byte("k"), in)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if !scheme.VerifyAny([]byte("k"), in, []string{"v1,AAAA", good}) {
		t.Fatalf("expected one matching candidate to verify")
	}
	if scheme.VerifyAny([]byte("k"), in, []string{"v1,AAAA", "garbage"}) {
		t.Fatalf("expected all-bad candidates to fail")
	}
	if scheme.VerifyAny([]byte("k"), in, nil) {
		t.Fatalf("expected empty candidate set to fail")
	}
}

func TestEqual_LengthMismatch(t *testing.T) {
	if Equal([]byte{1, 2, 3}, []byte{1, 2}) {
		t.Fatalf("expected length mismatch to be unequal")
	}
	if !Equal([]byte{1, 2, 3}, []byte{1, 2, 3}) {
		t.Fatalf("expected identical buffers to be equal")
	}
}

func TestCompute_UnsupportedAlgorithm(t *testing.T) {
	if _, err := Compute(Algorithm("md5"), []byte("s"), []byte("b")); err == nil {
		t.Fatalf("expected error for unsupported algorithm")
	}
}
