package tuya

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"errors"
	"fmt"
)

// ErrKeyMismatch is returned when a device payload cannot be decrypted with the local key
var ErrKeyMismatch = errors.New("payload cannot be decrypted with local key")

// ecbCipher implements the AES-128-ECB + PKCS7 scheme of protocol 3.3.
// crypto/cipher deliberately has no ECB mode, so blocks are processed one by one.
type ecbCipher struct {
	block cipher.Block
}

func newECBCipher(key []byte) (*ecbCipher, error) {
	if len(key) != 16 {
		return nil, fmt.Errorf("local key must be 16 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	return &ecbCipher{block: block}, nil
}

func (c *ecbCipher) encrypt(plain []byte) []byte {
	bs := c.block.BlockSize()
	pad := bs - len(plain)%bs
	padded := append(append([]byte{}, plain...), bytes.Repeat([]byte{byte(pad)}, pad)...)

	out := make([]byte, len(padded))
	for i := 0; i < len(padded); i += bs {
		c.block.Encrypt(out[i:i+bs], padded[i:i+bs])
	}
	return out
}

func (c *ecbCipher) decrypt(data []byte) ([]byte, error) {
	bs := c.block.BlockSize()
	if len(data) == 0 || len(data)%bs != 0 {
		return nil, fmt.Errorf("%w: length %d is not a multiple of %d", ErrKeyMismatch, len(data), bs)
	}

	out := make([]byte, len(data))
	for i := 0; i < len(data); i += bs {
		c.block.Decrypt(out[i:i+bs], data[i:i+bs])
	}

	pad := int(out[len(out)-1])
	if pad == 0 || pad > bs {
		return nil, fmt.Errorf("%w: bad padding", ErrKeyMismatch)
	}
	for _, b := range out[len(out)-pad:] {
		if int(b) != pad {
			return nil, fmt.Errorf("%w: bad padding", ErrKeyMismatch)
		}
	}

	return out[:len(out)-pad], nil
}
