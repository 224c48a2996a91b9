package jupiter

import (
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"os"

	json "github.com/bytedance/sonic"
	"github.com/mr-tron/base58"
)

const signatureLen = ed25519.SignatureSize

// Signer firma transacciones Solana con la clave del wallet.
type Signer struct {
	key ed25519.PrivateKey
}

// NewSigner crea un Signer a partir de una clave privada ed25519.
func NewSigner(key ed25519.PrivateKey) *Signer {
	return &Signer{key: key}
}

// LoadKeypair lee un keypair en el formato de solana-keygen: un array JSON de 64 bytes.
func LoadKeypair(path string) (*Signer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("jupiter.LoadKeypair: read %q: %w", path, err)
	}
	var ints []int
	if err := json.Unmarshal(data, &ints); err != nil {
		return nil, fmt.Errorf("jupiter.LoadKeypair: decode %q: %w", path, err)
	}
	if len(ints) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("jupiter.LoadKeypair: %q has %d bytes, want %d", path, len(ints), ed25519.PrivateKeySize)
	}
	raw := make([]byte, len(ints))
	for i, v := range ints {
		if v < 0 || v > 255 {
			return nil, fmt.Errorf("jupiter.LoadKeypair: byte %d out of range: %d", i, v)
		}
		raw[i] = byte(v)
	}
	return NewSigner(ed25519.PrivateKey(raw)), nil
}

// PublicKey devuelve la dirección del wallet en base58.
func (s *Signer) PublicKey() string {
	return base58.Encode(s.key.Public().(ed25519.PublicKey))
}

// SignTransaction firma una transacción serializada en base64 en el primer slot
// de firma. Devuelve la transacción firmada y la firma en base58, que es su ID.
func (s *Signer) SignTransaction(txBase64 string) (signed, signature string, err error) {
	tx, err := base64.StdEncoding.DecodeString(txBase64)
	if err != nil {
		return "", "", fmt.Errorf("jupiter.SignTransaction: decode: %w", err)
	}
	n, size, err := decodeShortVec(tx)
	if err != nil {
		return "", "", fmt.Errorf("jupiter.SignTransaction: %w", err)
	}
	if n == 0 {
		return "", "", errors.New("jupiter.SignTransaction: transaction has no signature slots")
	}
	msgStart := size + n*signatureLen
	if len(tx) <= msgStart {
		return "", "", errors.New("jupiter.SignTransaction: truncated transaction")
	}

	sig := ed25519.Sign(s.key, tx[msgStart:])
	copy(tx[size:size+signatureLen], sig)
	return base64.StdEncoding.EncodeToString(tx), base58.Encode(sig), nil
}

// decodeShortVec lee el compact-u16 que precede a los arrays de una transacción.
func decodeShortVec(b []byte) (value, size int, err error) {
	for size < 3 {
		if size >= len(b) {
			return 0, 0, errors.New("short_vec: unexpected end")
		}
		v := int(b[size])
		value |= (v & 0x7f) << (7 * size)
		size++
		if v&0x80 == 0 {
			return value, size, nil
		}
	}
	return 0, 0, errors.New("short_vec: too long")
}
