// Package signature implements the HMAC signing scheme used by hosted payment pages.
//
// A message is built from a list of field names: each name contributes "name=value"
// and the pairs are joined with commas. The signature is the base64 encoding of the
// HMAC-SHA256 of that message keyed with the merchant secret.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strings"
)

const (
	// FieldSignedNames lists, comma separated, the fields covered by the signature.
	FieldSignedNames = "signed_field_names"
	// FieldSignature carries the base64 signature.
	FieldSignature = "signature"
)

// Sign computes a base64-encoded HMAC-SHA256 of message.
func Sign(message, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Message builds the canonical message for names, in the order given.
// Names absent from fields contribute an empty value.
func Message(fields map[string]string, names []string) string {
	pairs := make([]string, 0, len(names))
	for _, name := range names {
		pairs = append(pairs, name+"="+fields[name])
	}
	return strings.Join(pairs, ",")
}

// SignedNames splits the signed_field_names value of fields. The order is preserved.
func SignedNames(fields map[string]string) []string {
	return strings.Split(fields[FieldSignedNames], ",")
}

// SignFields signs fields over the names listed in their own signed_field_names entry.
func SignFields(fields map[string]string, secret string) string {
	return Sign(Message(fields, SignedNames(fields)), secret)
}

// Verify reports whether the signature carried by fields matches the one recomputed
// with secret. An empty field set never verifies.
func Verify(fields map[string]string, secret string) bool {
	if len(fields) == 0 {
		return false
	}
	expected := SignFields(fields, secret)
	return hmac.Equal([]byte(expected), []byte(fields[FieldSignature]))
}
