// internal/binding/blob.go
//
// Probe-header blob codec.
//
// Sanitized probe headers are persisted on the binding as one opaque
// string so they can be replayed on later probes.  With a configured key
// (normally pulled from Vault) the blob is AES-GCM sealed; without one it
// degrades to base64 JSON, which keeps single-box deployments working.
// Decode accepts either form.

package binding

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
)

const sealedPrefix = "enc.v1:"

// HeaderCodec encodes and decodes probe-header blobs.  The zero value is
// the plaintext codec.
type HeaderCodec struct {
	key []byte // 32-byte AES key, nil for plaintext
}

// NewHeaderCodec derives a codec from a secret string.  Empty secret means
// plaintext encoding.
func NewHeaderCodec(secret string) HeaderCodec {
	if secret == "" {
		return HeaderCodec{}
	}
	sum := sha256.Sum256([]byte(secret))
	return HeaderCodec{key: sum[:]}
}

// Encode serializes headers into the opaque blob.  Nil or empty maps
// encode to "".
func (c HeaderCodec) Encode(headers map[string]string) (string, error) {
	if len(headers) == 0 {
		return "", nil
	}
	plain, err := json.Marshal(headers)
	if err != nil {
		return "", err
	}
	if c.key == nil {
		return base64.StdEncoding.EncodeToString(plain), nil
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	sealed := gcm.Seal(nonce, nonce, plain, nil)
	return sealedPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decode reverses Encode.  "" yields a nil map.
func (c HeaderCodec) Decode(blob string) (map[string]string, error) {
	if blob == "" {
		return nil, nil
	}

	var plain []byte
	if strings.HasPrefix(blob, sealedPrefix) {
		if c.key == nil {
			return nil, errors.New("sealed header blob but no codec key configured")
		}
		sealed, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(blob, sealedPrefix))
		if err != nil {
			return nil, err
		}
		block, err := aes.NewCipher(c.key)
		if err != nil {
			return nil, err
		}
		gcm, err := cipher.NewGCM(block)
		if err != nil {
			return nil, err
		}
		if len(sealed) < gcm.NonceSize() {
			return nil, errors.New("header blob truncated")
		}
		plain, err = gcm.Open(nil, sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():], nil)
		if err != nil {
			return nil, err
		}
	} else {
		var err error
		plain, err = base64.StdEncoding.DecodeString(blob)
		if err != nil {
			return nil, err
		}
	}

	var headers map[string]string
	if err := json.Unmarshal(plain, &headers); err != nil {
		return nil, err
	}
	return headers, nil
}
