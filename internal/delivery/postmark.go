package delivery

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/xelth-com/dsrelay/internal/crypto"
	"github.com/xelth-com/dsrelay/internal/models"
)

// postmarkBody is the signed part of a postmark, keys in canonical order
type postmarkBody struct {
	IncomingTimestamp int64  `json:"incomingTimestamp"`
	MessageHash       string `json:"messageHash"`
}

func (b postmarkBody) bytes() []byte {
	raw, _ := json.Marshal(b)
	return raw
}

// buildPostmark hashes the sender's ciphertext, stamps it with receivedAt,
// signs it and seals it for the recipient.
func buildPostmark(signer Signer, message string, receivedAt time.Time, recipientEncryptionKey string) (string, error) {
	body := postmarkBody{
		IncomingTimestamp: receivedAt.UnixMilli(),
		MessageHash:       crypto.SHA256Hex([]byte(message)),
	}

	raw, err := json.Marshal(models.Postmark{
		MessageHash:       body.MessageHash,
		IncomingTimestamp: body.IncomingTimestamp,
		Signature:         signer.Sign(body.bytes()),
	})
	if err != nil {
		return "", err
	}

	sealed, err := crypto.Encrypt(recipientEncryptionKey, raw)
	if err != nil {
		return "", fmt.Errorf("seal postmark: %w", err)
	}
	return sealed, nil
}

// OpenPostmark decrypts an envelope's postmark with the recipient's key
func OpenPostmark(recipientKey *[32]byte, env models.EncryptionEnvelope) (models.Postmark, error) {
	var p models.Postmark
	raw, err := crypto.Decrypt(recipientKey, env.Postmark)
	if err != nil {
		return p, err
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, fmt.Errorf("decode postmark: %w", err)
	}
	return p, nil
}

// VerifyPostmark checks that p was signed by the delivery service and covers
// message.
func VerifyPostmark(servicePublicSigningKey string, p models.Postmark, message string) bool {
	if p.MessageHash != crypto.SHA256Hex([]byte(message)) {
		return false
	}
	body := postmarkBody{IncomingTimestamp: p.IncomingTimestamp, MessageHash: p.MessageHash}
	ok, err := crypto.VerifySignature(servicePublicSigningKey, body.bytes(), p.Signature)
	return err == nil && ok
}
