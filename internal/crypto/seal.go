// =============================================================================
// 文件: internal/crypto/seal.go
// 描述: 帧加密 - PSK 经 HKDF 派生会话密钥, ChaCha20-Poly1305 封装每帧
//       帧格式: Nonce(12) + Ciphertext + Tag(16)
// =============================================================================
package crypto

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const (
	PSKSize   = 32
	NonceSize = chacha20poly1305.NonceSize
	TagSize   = chacha20poly1305.Overhead
)

// 错误定义
var (
	ErrBadPSK   = fmt.Errorf("PSK 无效")
	ErrBadFrame = fmt.Errorf("帧解封失败")
)

// Sealer 帧加密器
// 每帧使用独立的随机 Nonce: 两端由同一 PSK 派生同一把密钥,
// 确定性 Nonce 会在双方之间撞车, 必须逐帧随机;
// 底层承载是可靠字节流, 不做重放窗口
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer 创建帧加密器
func NewSealer(pskBase64 string) (*Sealer, error) {
	psk, err := base64.StdEncoding.DecodeString(pskBase64)
	if err != nil {
		return nil, fmt.Errorf("%w: 解码失败: %v", ErrBadPSK, err)
	}
	if len(psk) != PSKSize {
		return nil, fmt.Errorf("%w: 长度必须是 %d 字节", ErrBadPSK, PSKSize)
	}

	reader := hkdf.New(sha256.New, psk, nil, []byte("swp-frame-key-v1"))
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("派生密钥失败: %w", err)
	}

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("创建 AEAD 失败: %w", err)
	}

	return &Sealer{aead: aead}, nil
}

// Seal 封装一帧
// 输出: Nonce(12) + Ciphertext + Tag(16)
func (s *Sealer) Seal(plaintext []byte) ([]byte, error) {
	output := make([]byte, NonceSize+len(plaintext)+TagSize)
	if _, err := rand.Read(output[:NonceSize]); err != nil {
		return nil, fmt.Errorf("生成 Nonce 失败: %w", err)
	}

	s.aead.Seal(output[NonceSize:NonceSize], output[:NonceSize], plaintext, nil)
	return output, nil
}

// Open 解封一帧
func (s *Sealer) Open(frame []byte) ([]byte, error) {
	if len(frame) < NonceSize+TagSize {
		return nil, fmt.Errorf("%w: 帧太短", ErrBadFrame)
	}

	plaintext, err := s.aead.Open(nil, frame[:NonceSize], frame[NonceSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadFrame, err)
	}
	return plaintext, nil
}

// GeneratePSK 生成新的 PSK
func GeneratePSK() (string, error) {
	psk := make([]byte, PSKSize)
	if _, err := rand.Read(psk); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(psk), nil
}
