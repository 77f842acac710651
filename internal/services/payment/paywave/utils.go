package paywave

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"

	"golang.org/x/crypto/bcrypt"
)

// Hmac256 is a function to generate HMAC256 hash.
func Hmac256(body, key []byte) string {
	hash := hmac.New(sha256.New, key)
	hash.Write(body)
	return hex.EncodeToString(hash.Sum(nil))
}

// VerifyWebhookSecret checks a webhook caller's secret against the
// stored bcrypt hash.
func VerifyWebhookSecret(storedHash, presented string) bool {
	if err := bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(presented)); err != nil {
		return false
	}
	return true
}

// HashWebhookSecret produces the bcrypt hash stored for webhook callers.
func HashWebhookSecret(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifySignature verifies the HMAC signature of a notification body.
func VerifySignature(body, key []byte, receivedHMAC string) bool {
	expected := Hmac256(body, key)
	return hmac.Equal([]byte(receivedHMAC), []byte(expected))
}
