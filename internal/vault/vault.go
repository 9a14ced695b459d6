package vault

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/event"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"wallet-signer/pkg/bip32"
	"wallet-signer/pkg/bip39"
	"wallet-signer/pkg/errno"
	"wallet-signer/pkg/keystore"
	"wallet-signer/pkg/logger"
	"wallet-signer/pkg/wallet/types"
)

const fileVersion = 1

// SignFunc produces a 65-byte recoverable signature over digest.
type SignFunc func(digest []byte, key *ecdsa.PrivateKey) ([]byte, error)

// Vault 唯一持有私钥的组件。对外只暴露 Sign, 任何接口都不返回私钥或助记词。
//
// 锁定状态下不持有任何解密后的密钥。每个 keyRef 的签名串行执行 (single flight),
// 解密后的私钥只在持有该 key 的槽位和读锁期间被访问。
type Vault struct {
	path          string
	scrypt        keystore.ScryptParams
	device        Device
	deviceTimeout time.Duration
	signFn        SignFunc

	mu       sync.RWMutex
	file     *vaultFile
	keys     map[string]KeyInfo
	unlocked bool
	secrets  *secretDoc
	privs    map[string]*ecdsa.PrivateKey
	sealer   *keystore.Sealer

	slotsMu sync.Mutex
	slots   map[string]chan struct{}

	lastUsed atomic.Int64
	feed     event.FeedOf[types.WalletStatus]
}

type Option func(*Vault)

func WithScrypt(p keystore.ScryptParams) Option {
	return func(v *Vault) { v.scrypt = p }
}

func WithDevice(d Device, timeout time.Duration) Option {
	return func(v *Vault) {
		v.device = d
		if timeout > 0 {
			v.deviceTimeout = timeout
		}
	}
}

// WithSignFunc replaces the secp256k1 backend (crypto.Sign).
func WithSignFunc(fn SignFunc) Option {
	return func(v *Vault) { v.signFn = fn }
}

// New opens the vault stored at path. A missing file means the wallet is not set up yet.
func New(path string, opts ...Option) (*Vault, error) {
	v := &Vault{
		path:          path,
		scrypt:        keystore.StandardScrypt,
		deviceTimeout: 60 * time.Second,
		signFn:        crypto.Sign,
		keys:          make(map[string]KeyInfo),
		privs:         make(map[string]*ecdsa.PrivateKey),
		slots:         make(map[string]chan struct{}),
	}
	for _, opt := range opts {
		opt(v)
	}

	f, err := loadFile(path)
	if err != nil {
		return nil, err
	}
	if f != nil {
		v.file = f
		for _, k := range f.Keys {
			v.keys[k.UUID] = k
		}
	}
	v.touch()
	return v, nil
}

func (v *Vault) Status() types.WalletStatus {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.statusLocked()
}

func (v *Vault) statusLocked() types.WalletStatus {
	switch {
	case v.file == nil:
		return types.WalletStatusWelcome
	case v.unlocked:
		return types.WalletStatusUnlocked
	default:
		return types.WalletStatusLocked
	}
}

// SubscribeStatus delivers every status change. The channel must be drained.
func (v *Vault) SubscribeStatus(ch chan<- types.WalletStatus) event.Subscription {
	return v.feed.Subscribe(ch)
}

func (v *Vault) LastUsed() time.Time {
	return time.Unix(0, v.lastUsed.Load())
}

func (v *Vault) touch() {
	v.lastUsed.Store(time.Now().UnixNano())
}

// Setup 初始化钱包, 完成后处于解锁状态
func (v *Vault) Setup(password, mnemonic string) error {
	if password == "" {
		return errno.ErrInvalidPassword.WithMessage("password required")
	}
	if _, err := bip39.Seed(mnemonic, ""); err != nil {
		return errno.ErrBind.WithMessage(err.Error())
	}

	v.mu.Lock()
	if v.file != nil {
		v.mu.Unlock()
		return errno.ErrAlreadyInitialized
	}

	secrets := &secretDoc{Mnemonic: bip39.Normalize(mnemonic), Imported: map[string]string{}}
	plaintext, err := json.Marshal(secrets)
	if err != nil {
		v.mu.Unlock()
		return err
	}
	ks, sealer, err := keystore.Encrypt(plaintext, password, v.scrypt)
	if err != nil {
		v.mu.Unlock()
		return fmt.Errorf("vault: encrypt: %w", err)
	}

	f := &vaultFile{Version: fileVersion, Keystore: ks}
	if err := saveFile(v.path, f); err != nil {
		sealer.Wipe()
		v.mu.Unlock()
		return fmt.Errorf("vault: save: %w", err)
	}

	v.file = f
	v.secrets = secrets
	v.sealer = sealer
	v.unlocked = true
	v.mu.Unlock()

	v.touch()
	logger.Info("[Vault] 钱包已初始化", zap.String("path", v.path))
	v.feed.Send(types.WalletStatusUnlocked)
	return nil
}

func (v *Vault) Unlock(password string) error {
	v.mu.Lock()
	if v.file == nil {
		v.mu.Unlock()
		return errno.ErrNotInitialized
	}
	if v.unlocked {
		v.mu.Unlock()
		return nil
	}

	plaintext, sealer, err := keystore.Decrypt(v.file.Keystore, password)
	if err != nil {
		v.mu.Unlock()
		if errors.Is(err, keystore.ErrDecrypt) {
			return errno.ErrInvalidPassword
		}
		return fmt.Errorf("vault: decrypt: %w", err)
	}

	var secrets secretDoc
	if err := json.Unmarshal(plaintext, &secrets); err != nil {
		sealer.Wipe()
		v.mu.Unlock()
		return fmt.Errorf("vault: corrupted secret: %w", err)
	}
	// 旧文件可能没有 imported 字段
	if secrets.Imported == nil {
		secrets.Imported = map[string]string{}
	}

	privs, err := deriveAll(&secrets, v.keys)
	if err != nil {
		sealer.Wipe()
		v.mu.Unlock()
		return err
	}

	v.secrets = &secrets
	v.sealer = sealer
	v.privs = privs
	v.unlocked = true
	v.mu.Unlock()

	v.touch()
	logger.Info("[Vault] 已解锁", zap.Int("keys", len(privs)))
	v.feed.Send(types.WalletStatusUnlocked)
	return nil
}

// Lock waits for in-flight signatures, then drops all decrypted material.
func (v *Vault) Lock() {
	v.mu.Lock()
	if !v.unlocked {
		v.mu.Unlock()
		return
	}
	for id, priv := range v.privs {
		priv.D.SetInt64(0)
		delete(v.privs, id)
	}
	if v.sealer != nil {
		v.sealer.Wipe()
		v.sealer = nil
	}
	v.secrets = nil
	v.unlocked = false
	v.mu.Unlock()

	logger.Info("[Vault] 已锁定")
	v.feed.Send(types.WalletStatusLocked)
}

// VerifyPassword 重新走一次 KDF 校验密码, 用于删除账户等敏感操作
func (v *Vault) VerifyPassword(password string) error {
	v.mu.RLock()
	f := v.file
	v.mu.RUnlock()
	if f == nil {
		return errno.ErrNotInitialized
	}

	_, sealer, err := keystore.Decrypt(f.Keystore, password)
	if err != nil {
		if errors.Is(err, keystore.ErrDecrypt) {
			return errno.ErrInvalidPassword
		}
		return err
	}
	sealer.Wipe()
	return nil
}

// AddKey 新增密钥 (HD 派生 / 导入私钥 / 硬件), 需要解锁
func (v *Vault) AddKey(params types.AddAccountParams) (KeyInfo, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.file == nil {
		return KeyInfo{}, errno.ErrNotInitialized
	}
	if !v.unlocked {
		return KeyInfo{}, errno.ErrLocked
	}

	info := KeyInfo{UUID: uuid.NewString(), Type: params.Type}
	var priv *ecdsa.PrivateKey
	var err error

	switch params.Type {
	case types.AccountTypeHD:
		info.DerivationPath, priv, err = v.deriveNext(params.DerivationPath)
	case types.AccountTypePrivateKey:
		priv, err = crypto.HexToECDSA(strings.TrimPrefix(params.PrivateKey, "0x"))
		if err != nil {
			err = errno.ErrBind.WithMessage("invalid private key")
		}
	case types.AccountTypeHardware:
		if !common.IsHexAddress(params.Address) {
			return KeyInfo{}, errno.ErrBind.WithMessage("hardware account requires an address")
		}
		info.Address = common.HexToAddress(params.Address).Hex()
		info.PublicKey = params.PublicKey
		info.DerivationPath = params.DerivationPath
	default:
		err = errno.ErrBind.WithMessage(fmt.Sprintf("unsupported account type %q", params.Type))
	}
	if err != nil {
		return KeyInfo{}, err
	}

	if priv != nil {
		info.Address = crypto.PubkeyToAddress(priv.PublicKey).Hex()
		info.PublicKey = hexutil.Encode(crypto.FromECDSAPub(&priv.PublicKey))
	}
	if v.hasAddress(info.Address) {
		return KeyInfo{}, errno.ErrAccountExists
	}

	if info.Type == types.AccountTypePrivateKey {
		v.secrets.Imported[info.UUID] = hexutil.Encode(crypto.FromECDSA(priv))
	}

	keys := append(append([]KeyInfo{}, v.file.Keys...), info)
	if err := v.persist(keys); err != nil {
		delete(v.secrets.Imported, info.UUID)
		return KeyInfo{}, err
	}

	v.keys[info.UUID] = info
	if priv != nil {
		v.privs[info.UUID] = priv
	}
	logger.Info("[Vault] 新增密钥", zap.String("uuid", info.UUID), zap.String("type", string(info.Type)), zap.String("address", info.Address))
	return info, nil
}

// DeleteKey 删除密钥, 需要密码
func (v *Vault) DeleteKey(password, keyRef string) error {
	if err := v.VerifyPassword(password); err != nil {
		return err
	}

	release, err := v.acquire(context.Background(), keyRef)
	if err != nil {
		return err
	}
	defer release()

	v.mu.Lock()
	defer v.mu.Unlock()

	if _, ok := v.keys[keyRef]; !ok {
		return errno.ErrKeyNotFound
	}
	if !v.unlocked {
		return errno.ErrLocked
	}

	keys := make([]KeyInfo, 0, len(v.file.Keys))
	for _, k := range v.file.Keys {
		if k.UUID != keyRef {
			keys = append(keys, k)
		}
	}

	imported, hadImported := v.secrets.Imported[keyRef]
	delete(v.secrets.Imported, keyRef)
	if err := v.persist(keys); err != nil {
		if hadImported {
			v.secrets.Imported[keyRef] = imported
		}
		return err
	}

	delete(v.keys, keyRef)
	if priv, ok := v.privs[keyRef]; ok {
		priv.D.SetInt64(0)
		delete(v.privs, keyRef)
	}
	logger.Info("[Vault] 密钥已删除", zap.String("uuid", keyRef))
	return nil
}

// Key returns the public index entry for keyRef.
func (v *Vault) Key(keyRef string) (KeyInfo, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	info, ok := v.keys[keyRef]
	if !ok {
		return KeyInfo{}, errno.ErrKeyNotFound
	}
	return info, nil
}

// Sign signs a 32-byte digest with keyRef.
func (v *Vault) Sign(ctx context.Context, keyRef string, digest []byte) ([]byte, error) {
	if len(digest) != 32 {
		return nil, fmt.Errorf("vault: digest must be 32 bytes, got %d", len(digest))
	}

	v.mu.RLock()
	info, ok := v.keys[keyRef]
	v.mu.RUnlock()
	if !ok {
		return nil, errno.ErrKeyNotFound
	}

	release, err := v.acquire(ctx, keyRef)
	if err != nil {
		return nil, err
	}
	defer release()
	v.touch()

	if info.Type == types.AccountTypeHardware {
		if v.Status() != types.WalletStatusUnlocked {
			return nil, errno.ErrLocked
		}
		return v.signWithDevice(ctx, info, digest)
	}

	v.mu.RLock()
	defer v.mu.RUnlock()

	if !v.unlocked {
		return nil, errno.ErrLocked
	}
	priv, ok := v.privs[keyRef]
	if !ok {
		return nil, errno.ErrKeyNotFound
	}
	return v.signFn(digest, priv)
}

func (v *Vault) signWithDevice(ctx context.Context, info KeyInfo, digest []byte) ([]byte, error) {
	if v.device == nil {
		return nil, errno.ErrDeviceRejected.WithMessage("hardware device not connected")
	}

	dctx, cancel := context.WithTimeout(ctx, v.deviceTimeout)
	defer cancel()

	account := common.HexToAddress(info.Address)
	sig, err := v.device.SignHash(dctx, info.DerivationPath, account, digest)
	if err != nil {
		switch {
		case errors.Is(err, errno.ErrDeviceRejected):
			return nil, errno.ErrDeviceRejected
		case errors.Is(err, context.DeadlineExceeded), errors.Is(dctx.Err(), context.DeadlineExceeded):
			return nil, errno.ErrDeviceTimeout
		default:
			return nil, errno.ErrDeviceRejected.WithMessage(err.Error())
		}
	}

	// 设备返回的签名必须能恢复出账户地址
	pub, err := crypto.SigToPub(digest, sig)
	if err != nil || crypto.PubkeyToAddress(*pub) != account {
		logger.Warn("[Vault] 硬件签名与账户不匹配", zap.String("address", info.Address))
		return nil, errno.ErrDeviceRejected.WithMessage("device signature does not match account")
	}
	return sig, nil
}

// acquire takes the single-flight slot of keyRef.
func (v *Vault) acquire(ctx context.Context, keyRef string) (func(), error) {
	v.slotsMu.Lock()
	slot, ok := v.slots[keyRef]
	if !ok {
		slot = make(chan struct{}, 1)
		v.slots[keyRef] = slot
	}
	v.slotsMu.Unlock()

	select {
	case slot <- struct{}{}:
		return func() { <-slot }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (v *Vault) hasAddress(address string) bool {
	for _, k := range v.keys {
		if k.Address == address {
			return true
		}
	}
	return false
}

// deriveNext 派生 HD 密钥; 未指定路径时取下一个未使用的索引
func (v *Vault) deriveNext(path string) (string, *ecdsa.PrivateKey, error) {
	seed, err := bip39.Seed(v.secrets.Mnemonic, "")
	if err != nil {
		return "", nil, err
	}
	w, err := bip32.NewMasterKeyFromSeed(seed, nil)
	if err != nil {
		return "", nil, err
	}

	if path != "" {
		priv, err := w.DeriveECDSA(path)
		if err != nil {
			return "", nil, errno.ErrBind.WithMessage(err.Error())
		}
		return path, priv, nil
	}

	for i := uint32(0); ; i++ {
		p := bip32.EthPath(i)
		priv, err := w.DeriveECDSA(p)
		if err != nil {
			return "", nil, err
		}
		if !v.hasAddress(crypto.PubkeyToAddress(priv.PublicKey).Hex()) {
			return p, priv, nil
		}
	}
}

// persist 用当前 secrets 重新加密并写盘, 成功后更新索引
func (v *Vault) persist(keys []KeyInfo) error {
	plaintext, err := json.Marshal(v.secrets)
	if err != nil {
		return err
	}
	ks, err := v.sealer.Seal(plaintext)
	if err != nil {
		return fmt.Errorf("vault: seal: %w", err)
	}

	f := &vaultFile{Version: fileVersion, Keys: keys, Keystore: ks}
	if err := saveFile(v.path, f); err != nil {
		return fmt.Errorf("vault: save: %w", err)
	}
	v.file = f
	return nil
}

// deriveAll 解锁时重建所有软件密钥
func deriveAll(secrets *secretDoc, keys map[string]KeyInfo) (map[string]*ecdsa.PrivateKey, error) {
	privs := make(map[string]*ecdsa.PrivateKey, len(keys))

	var w *bip32.Wallet
	for id, k := range keys {
		switch k.Type {
		case types.AccountTypeHD:
			if w == nil {
				seed, err := bip39.Seed(secrets.Mnemonic, "")
				if err != nil {
					return nil, err
				}
				if w, err = bip32.NewMasterKeyFromSeed(seed, nil); err != nil {
					return nil, err
				}
			}
			priv, err := w.DeriveECDSA(k.DerivationPath)
			if err != nil {
				return nil, fmt.Errorf("vault: derive %s: %w", k.DerivationPath, err)
			}
			privs[id] = priv
		case types.AccountTypePrivateKey:
			raw, ok := secrets.Imported[id]
			if !ok {
				return nil, fmt.Errorf("vault: missing imported key %s", id)
			}
			priv, err := crypto.HexToECDSA(strings.TrimPrefix(raw, "0x"))
			if err != nil {
				return nil, fmt.Errorf("vault: imported key %s: %w", id, err)
			}
			privs[id] = priv
		}
	}
	return privs, nil
}

// PublicKey returns the uncompressed public key of keyRef as 0x-hex.
func (v *Vault) PublicKey(keyRef string) (string, error) {
	info, err := v.Key(keyRef)
	if err != nil {
		return "", err
	}
	return info.PublicKey, nil
}
