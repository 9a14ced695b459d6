package keystore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"golang.org/x/crypto/scrypt"
)

// EncryptedKeyJSON 遵循 Ethereum Keystore V3 的结构风格
// 加密的内容是任意字节 (这里是 vault 的 secret 文档: 助记词 + 导入私钥)
type EncryptedKeyJSON struct {
	Crypto  CryptoJSON `json:"crypto"`
	Id      string     `json:"id"`
	Version int        `json:"version"`
}

type CryptoJSON struct {
	Cipher       string       `json:"cipher"`
	CipherText   string       `json:"ciphertext"`
	CipherParams CipherParams `json:"cipherparams"`
	KDF          string       `json:"kdf"`
	KDFParams    KDFParams    `json:"kdfparams"`
	MAC          string       `json:"mac"`
}

type CipherParams struct {
	IV string `json:"iv"`
}

type KDFParams struct {
	DKLen int    `json:"dklen"`
	N     int    `json:"n"`
	R     int    `json:"r"`
	P     int    `json:"p"`
	Salt  string `json:"salt"`
}

// ScryptParams scrypt 成本参数
type ScryptParams struct {
	N int
	P int
}

var (
	// StandardScrypt 生产环境参数 (约 256MB 内存, 1s CPU)
	StandardScrypt = ScryptParams{N: 1 << 18, P: 1}
	// LightScrypt 测试/低端设备参数
	LightScrypt = ScryptParams{N: 1 << 12, P: 6}
)

const (
	scryptR     = 8
	scryptDKLen = 32
)

var ErrDecrypt = errors.New("invalid password or corrupted data (MAC mismatch)")

// Sealer 持有派生出的对称密钥, 解锁期间用于重新加密 secret
// 调用方负责在锁定时 Wipe
type Sealer struct {
	key    []byte
	params KDFParams
	id     string
}

// Encrypt 使用密码加密 plaintext, 同时返回可复用的 Sealer
func Encrypt(plaintext []byte, password string, sp ScryptParams) (*EncryptedKeyJSON, *Sealer, error) {
	salt := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, nil, err
	}

	derivedKey, err := scrypt.Key([]byte(password), salt, sp.N, scryptR, sp.P, scryptDKLen)
	if err != nil {
		return nil, nil, err
	}

	s := &Sealer{
		key: derivedKey,
		params: KDFParams{
			DKLen: scryptDKLen,
			N:     sp.N,
			R:     scryptR,
			P:     sp.P,
			Salt:  hex.EncodeToString(salt),
		},
		id: uuid.NewString(),
	}
	k, err := s.Seal(plaintext)
	if err != nil {
		return nil, nil, err
	}
	return k, s, nil
}

// Decrypt 解密 Keystore JSON, 返回明文和 Sealer
func Decrypt(keyJSON *EncryptedKeyJSON, password string) ([]byte, *Sealer, error) {
	p := keyJSON.Crypto.KDFParams
	salt, err := hex.DecodeString(p.Salt)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid salt: %w", err)
	}

	derivedKey, err := scrypt.Key([]byte(password), salt, p.N, p.R, p.P, p.DKLen)
	if err != nil {
		return nil, nil, err
	}

	s := &Sealer{key: derivedKey, params: p, id: keyJSON.Id}
	plaintext, err := s.Open(keyJSON)
	if err != nil {
		s.Wipe()
		return nil, nil, err
	}
	return plaintext, s, nil
}

// Seal 用同一派生密钥 (同一 salt) 和新的 IV 加密
func (s *Sealer) Seal(plaintext []byte) (*EncryptedKeyJSON, error) {
	gcm, err := s.gcm()
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	ciphertext := gcm.Seal(nil, nonce, plaintext, nil)

	return &EncryptedKeyJSON{
		Version: 3,
		Id:      s.id,
		Crypto: CryptoJSON{
			Cipher:       "aes-256-gcm",
			CipherText:   hex.EncodeToString(ciphertext),
			CipherParams: CipherParams{IV: hex.EncodeToString(nonce)},
			KDF:          "scrypt",
			KDFParams:    s.params,
			MAC:          hex.EncodeToString(s.mac(ciphertext)),
		},
	}, nil
}

// Open 校验 MAC 并解密
func (s *Sealer) Open(keyJSON *EncryptedKeyJSON) ([]byte, error) {
	nonce, err := hex.DecodeString(keyJSON.Crypto.CipherParams.IV)
	if err != nil {
		return nil, fmt.Errorf("invalid iv: %w", err)
	}
	ciphertext, err := hex.DecodeString(keyJSON.Crypto.CipherText)
	if err != nil {
		return nil, fmt.Errorf("invalid ciphertext: %w", err)
	}
	mac, err := hex.DecodeString(keyJSON.Crypto.MAC)
	if err != nil {
		return nil, fmt.Errorf("invalid mac: %w", err)
	}

	if !hmac.Equal(mac, s.mac(ciphertext)) {
		return nil, ErrDecrypt
	}

	gcm, err := s.gcm()
	if err != nil {
		return nil, err
	}
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("decryption failed: %w", err)
	}
	return plaintext, nil
}

// Wipe 清零派生密钥
func (s *Sealer) Wipe() {
	for i := range s.key {
		s.key[i] = 0
	}
	s.key = nil
}

func (s *Sealer) gcm() (cipher.AEAD, error) {
	if s.key == nil {
		return nil, errors.New("sealer wiped")
	}
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// MAC = SHA256(derivedKey + ciphertext)
func (s *Sealer) mac(ciphertext []byte) []byte {
	buf := make([]byte, 0, len(s.key)+len(ciphertext))
	buf = append(buf, s.key...)
	buf = append(buf, ciphertext...)
	sum := sha256.Sum256(buf)
	return sum[:]
}
