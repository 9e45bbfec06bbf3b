// Package crypto protects workspace integration secrets at rest.
//
// Workspaces attach third-party credentials (Slack incoming-webhook URLs,
// Meta ad library access tokens) that must never reach the database in the
// clear. They are carried as one IntegrationSecrets envelope per workspace,
// sealed with AES-GCM into a self-describing "v1:" string so the storage
// format can change without rewriting every row at once.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const sealedPrefix = "v1:"

var (
	ErrEmptyKey  = errors.New("encryption key must not be empty")
	ErrNotSealed = errors.New("value is not a sealed secret")
	ErrTampered  = errors.New("sealed secret failed authentication")
)

// IntegrationSecrets is the per-workspace credential envelope. All fields
// are optional; a zero envelope seals and opens like any other.
type IntegrationSecrets struct {
	// SlackWebhookURL receives credit alerts and automation notifications.
	SlackWebhookURL string `json:"slack_webhook_url,omitempty"`
	// MetaAccessToken overrides the platform-wide ad library token for
	// competitor scans run on behalf of this workspace.
	MetaAccessToken string `json:"meta_access_token,omitempty"`
}

func (s IntegrationSecrets) Empty() bool {
	return s.SlackWebhookURL == "" && s.MetaAccessToken == ""
}

// Encryptor seals and opens integration secrets under a single service
// key. The key is a passphrase; it is stretched to the AES-256 key size,
// so any non-empty string works.
type Encryptor struct {
	aead cipher.AEAD
}

func NewEncryptor(key string) (*Encryptor, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}

	sum := sha256.Sum256([]byte(key))
	block, err := aes.NewCipher(sum[:])
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("init gcm: %w", err)
	}

	return &Encryptor{aead: aead}, nil
}

// Encrypt seals a single plaintext string into the versioned wire format:
// "v1:" followed by base64(nonce || ciphertext).
func (e *Encryptor) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, e.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	sealed := e.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return sealedPrefix + base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a value produced by Encrypt. A value without the version
// prefix is ErrNotSealed; a sealed value that does not authenticate under
// this key is ErrTampered.
func (e *Encryptor) Decrypt(sealed string) (string, error) {
	encoded, ok := strings.CutPrefix(sealed, sealedPrefix)
	if !ok {
		return "", ErrNotSealed
	}

	data, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNotSealed, err)
	}
	if len(data) < e.aead.NonceSize() {
		return "", ErrNotSealed
	}

	nonce, ciphertext := data[:e.aead.NonceSize()], data[e.aead.NonceSize():]
	plaintext, err := e.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrTampered
	}

	return string(plaintext), nil
}

// SealSecrets serializes and seals a workspace's credential envelope.
// An empty envelope seals to the empty string, so workspaces without
// integrations carry no ciphertext at all.
func (e *Encryptor) SealSecrets(secrets IntegrationSecrets) (string, error) {
	if secrets.Empty() {
		return "", nil
	}

	payload, err := json.Marshal(secrets)
	if err != nil {
		return "", fmt.Errorf("marshal secrets: %w", err)
	}
	return e.Encrypt(string(payload))
}

// OpenSecrets is the inverse of SealSecrets. The empty string opens to an
// empty envelope.
func (e *Encryptor) OpenSecrets(sealed string) (IntegrationSecrets, error) {
	var secrets IntegrationSecrets
	if sealed == "" {
		return secrets, nil
	}

	payload, err := e.Decrypt(sealed)
	if err != nil {
		return secrets, err
	}
	if err := json.Unmarshal([]byte(payload), &secrets); err != nil {
		return secrets, fmt.Errorf("unmarshal secrets: %w", err)
	}
	return secrets, nil
}

// HashAPIKey returns the hex sha256 digest under which workspace API keys
// are stored and looked up. Raw keys never persist.
func HashAPIKey(apiKey string) string {
	sum := sha256.Sum256([]byte(apiKey))
	return hex.EncodeToString(sum[:])
}
