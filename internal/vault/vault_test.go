package vault

import (
	"context"
	"crypto/ecdsa"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wallet-signer/pkg/errno"
	"wallet-signer/pkg/keystore"
	"wallet-signer/pkg/wallet/types"
)

const (
	testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"
	testPassword = "correct horse battery staple"
	// m/44'/60'/0'/0/0
	firstHDAddress = "0x9858EfFD232B4033E47d90003D41EC34EcaEda94"
)

func newTestVault(t *testing.T, opts ...Option) (*Vault, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vault.json")
	v, err := New(path, append([]Option{WithScrypt(keystore.LightScrypt)}, opts...)...)
	require.NoError(t, err)
	return v, path
}

func setupWithHD(t *testing.T, opts ...Option) (*Vault, KeyInfo, string) {
	t.Helper()
	v, path := newTestVault(t, opts...)
	require.NoError(t, v.Setup(testPassword, testMnemonic))
	info, err := v.AddKey(types.AddAccountParams{Type: types.AccountTypeHD})
	require.NoError(t, err)
	return v, info, path
}

func digestOf(s string) []byte {
	return crypto.Keccak256([]byte(s))
}

func recoverAddress(t *testing.T, digest, sig []byte) string {
	t.Helper()
	pub, err := crypto.SigToPub(digest, sig)
	require.NoError(t, err)
	return crypto.PubkeyToAddress(*pub).Hex()
}

func TestSetupAndDeriveHD(t *testing.T) {
	v, path := newTestVault(t)
	assert.Equal(t, types.WalletStatusWelcome, v.Status())

	require.NoError(t, v.Setup(testPassword, testMnemonic))
	assert.Equal(t, types.WalletStatusUnlocked, v.Status())
	assert.FileExists(t, path)

	first, err := v.AddKey(types.AddAccountParams{Type: types.AccountTypeHD})
	require.NoError(t, err)
	assert.Equal(t, firstHDAddress, first.Address)
	assert.Equal(t, "m/44'/60'/0'/0/0", first.DerivationPath)

	second, err := v.AddKey(types.AddAccountParams{Type: types.AccountTypeHD})
	require.NoError(t, err)
	assert.Equal(t, "m/44'/60'/0'/0/1", second.DerivationPath)
	assert.NotEqual(t, first.Address, second.Address)

	err = v.Setup(testPassword, testMnemonic)
	assert.ErrorIs(t, err, errno.ErrAlreadyInitialized)
}

func TestSetupRejectsBadInput(t *testing.T) {
	v, _ := newTestVault(t)

	assert.ErrorIs(t, v.Setup("", testMnemonic), errno.ErrInvalidPassword)
	assert.ErrorIs(t, v.Setup(testPassword, "not a mnemonic"), errno.ErrBind)
	assert.Equal(t, types.WalletStatusWelcome, v.Status())
}

func TestSignRecoversToAccount(t *testing.T) {
	v, info, _ := setupWithHD(t)

	digest := digestOf("hello")
	sig, err := v.Sign(context.Background(), info.UUID, digest)
	require.NoError(t, err)
	require.Len(t, sig, 65)
	assert.Equal(t, info.Address, recoverAddress(t, digest, sig))
}

func TestSignRejectsBadInput(t *testing.T) {
	v, info, _ := setupWithHD(t)

	_, err := v.Sign(context.Background(), "missing", digestOf("x"))
	assert.ErrorIs(t, err, errno.ErrKeyNotFound)

	_, err = v.Sign(context.Background(), info.UUID, []byte{1, 2, 3})
	assert.Error(t, err)
}

func TestLockAndUnlock(t *testing.T) {
	v, info, _ := setupWithHD(t)

	statuses := make(chan types.WalletStatus, 4)
	sub := v.SubscribeStatus(statuses)
	defer sub.Unsubscribe()

	v.Lock()
	assert.Equal(t, types.WalletStatusLocked, v.Status())
	assert.Equal(t, types.WalletStatusLocked, <-statuses)

	_, err := v.Sign(context.Background(), info.UUID, digestOf("x"))
	assert.ErrorIs(t, err, errno.ErrLocked)

	_, err = v.AddKey(types.AddAccountParams{Type: types.AccountTypeHD})
	assert.ErrorIs(t, err, errno.ErrLocked)

	assert.ErrorIs(t, v.Unlock("wrong"), errno.ErrInvalidPassword)
	assert.Equal(t, types.WalletStatusLocked, v.Status())

	require.NoError(t, v.Unlock(testPassword))
	assert.Equal(t, types.WalletStatusUnlocked, <-statuses)

	sig, err := v.Sign(context.Background(), info.UUID, digestOf("x"))
	require.NoError(t, err)
	assert.Equal(t, info.Address, recoverAddress(t, digestOf("x"), sig))
}

func TestReloadFromFile(t *testing.T) {
	v, info, path := setupWithHD(t)

	priv, err := crypto.GenerateKey()
	require.NoError(t, err)
	imported, err := v.AddKey(types.AddAccountParams{
		Type:       types.AccountTypePrivateKey,
		PrivateKey: hexutil.Encode(crypto.FromECDSA(priv)),
	})
	require.NoError(t, err)

	reopened, err := New(path, WithScrypt(keystore.LightScrypt))
	require.NoError(t, err)
	assert.Equal(t, types.WalletStatusLocked, reopened.Status())

	got, err := reopened.Key(info.UUID)
	require.NoError(t, err)
	assert.Equal(t, info.Address, got.Address)

	require.NoError(t, reopened.Unlock(testPassword))
	for _, k := range []KeyInfo{info, imported} {
		sig, err := reopened.Sign(context.Background(), k.UUID, digestOf("reload"))
		require.NoError(t, err)
		assert.Equal(t, k.Address, recoverAddress(t, digestOf("reload"), sig))
	}
}

func TestImportPrivateKey(t *testing.T) {
	v, _ := newTestVault(t)
	require.NoError(t, v.Setup(testPassword, testMnemonic))

	priv, err := crypto.GenerateKey()
	require.NoError(t, err)
	want := crypto.PubkeyToAddress(priv.PublicKey).Hex()

	info, err := v.AddKey(types.AddAccountParams{
		Type:       types.AccountTypePrivateKey,
		PrivateKey: hexutil.Encode(crypto.FromECDSA(priv)),
	})
	require.NoError(t, err)
	assert.Equal(t, want, info.Address)

	_, err = v.AddKey(types.AddAccountParams{
		Type:       types.AccountTypePrivateKey,
		PrivateKey: hexutil.Encode(crypto.FromECDSA(priv)),
	})
	assert.ErrorIs(t, err, errno.ErrAccountExists)

	_, err = v.AddKey(types.AddAccountParams{Type: types.AccountTypePrivateKey, PrivateKey: "0xzz"})
	assert.ErrorIs(t, err, errno.ErrBind)
}

func TestImportAfterRelock(t *testing.T) {
	v, hd, path := setupWithHD(t)
	v.Lock()
	require.NoError(t, v.Unlock(testPassword))

	priv, err := crypto.GenerateKey()
	require.NoError(t, err)
	var imported KeyInfo
	assert.NotPanics(t, func() {
		imported, err = v.AddKey(types.AddAccountParams{
			Type:       types.AccountTypePrivateKey,
			PrivateKey: hexutil.Encode(crypto.FromECDSA(priv)),
		})
	})
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(priv.PublicKey).Hex(), imported.Address)

	// 重启后再导入一次
	reopened, err := New(path, WithScrypt(keystore.LightScrypt))
	require.NoError(t, err)
	require.NoError(t, reopened.Unlock(testPassword))
	second, err := crypto.GenerateKey()
	require.NoError(t, err)
	var again KeyInfo
	assert.NotPanics(t, func() {
		again, err = reopened.AddKey(types.AddAccountParams{
			Type:       types.AccountTypePrivateKey,
			PrivateKey: hexutil.Encode(crypto.FromECDSA(second)),
		})
	})
	require.NoError(t, err)

	reopened.Lock()
	require.NoError(t, reopened.Unlock(testPassword))
	for _, k := range []KeyInfo{hd, imported, again} {
		sig, err := reopened.Sign(context.Background(), k.UUID, digestOf("relock"))
		require.NoError(t, err)
		assert.Equal(t, k.Address, recoverAddress(t, digestOf("relock"), sig))
	}
}

func TestDeleteKey(t *testing.T) {
	v, info, _ := setupWithHD(t)

	assert.ErrorIs(t, v.DeleteKey("wrong", info.UUID), errno.ErrInvalidPassword)
	assert.ErrorIs(t, v.DeleteKey(testPassword, "missing"), errno.ErrKeyNotFound)

	require.NoError(t, v.DeleteKey(testPassword, info.UUID))
	_, err := v.Key(info.UUID)
	assert.ErrorIs(t, err, errno.ErrKeyNotFound)

	_, err = v.Sign(context.Background(), info.UUID, digestOf("x"))
	assert.ErrorIs(t, err, errno.ErrKeyNotFound)
}

func TestSignIsSingleFlightPerKey(t *testing.T) {
	var inflight, peak atomic.Int32
	slow := func(digest []byte, key *ecdsa.PrivateKey) ([]byte, error) {
		n := inflight.Add(1)
		defer inflight.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		return crypto.Sign(digest, key)
	}

	v, info, _ := setupWithHD(t, WithSignFunc(slow))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := v.Sign(context.Background(), info.UUID, digestOf("concurrent"))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), peak.Load())
}

func TestSignDifferentKeysInParallel(t *testing.T) {
	var inflight atomic.Int32
	both := make(chan struct{})
	var once sync.Once

	fn := func(digest []byte, key *ecdsa.PrivateKey) ([]byte, error) {
		if inflight.Add(1) == 2 {
			once.Do(func() { close(both) })
		}
		defer inflight.Add(-1)
		select {
		case <-both:
		case <-time.After(2 * time.Second):
		}
		return crypto.Sign(digest, key)
	}

	v, first, _ := setupWithHD(t, WithSignFunc(fn))
	second, err := v.AddKey(types.AddAccountParams{Type: types.AccountTypeHD})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for _, k := range []KeyInfo{first, second} {
		wg.Add(1)
		go func(ref string) {
			defer wg.Done()
			_, err := v.Sign(context.Background(), ref, digestOf("parallel"))
			assert.NoError(t, err)
		}(k.UUID)
	}
	wg.Wait()

	select {
	case <-both:
	default:
		t.Fatal("signatures for different keys did not overlap")
	}
}

func TestSignHonoursContextWhileWaiting(t *testing.T) {
	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	fn := func(digest []byte, key *ecdsa.PrivateKey) ([]byte, error) {
		entered <- struct{}{}
		<-release
		return crypto.Sign(digest, key)
	}
	v, info, _ := setupWithHD(t, WithSignFunc(fn))

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = v.Sign(context.Background(), info.UUID, digestOf("holder"))
	}()
	<-entered

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := v.Sign(ctx, info.UUID, digestOf("waiter"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	<-done
}

type fakeDevice struct {
	key    *ecdsa.PrivateKey
	reject bool
	hang   bool
}

func (d *fakeDevice) SignHash(ctx context.Context, path string, account common.Address, digest []byte) ([]byte, error) {
	switch {
	case d.reject:
		return nil, errno.ErrDeviceRejected
	case d.hang:
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return crypto.Sign(digest, d.key)
}

func TestHardwareSigning(t *testing.T) {
	devKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	address := crypto.PubkeyToAddress(devKey.PublicKey).Hex()

	tests := []struct {
		name    string
		device  *fakeDevice
		wantErr error
	}{
		{"device signs", &fakeDevice{key: devKey}, nil},
		{"user rejects", &fakeDevice{key: devKey, reject: true}, errno.ErrDeviceRejected},
		{"device times out", &fakeDevice{key: devKey, hang: true}, errno.ErrDeviceTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, _ := newTestVault(t, WithDevice(tt.device, 50*time.Millisecond))
			require.NoError(t, v.Setup(testPassword, testMnemonic))

			info, err := v.AddKey(types.AddAccountParams{
				Type:           types.AccountTypeHardware,
				Address:        address,
				DerivationPath: "m/44'/60'/0'/0/0",
			})
			require.NoError(t, err)

			digest := digestOf(tt.name)
			sig, err := v.Sign(context.Background(), info.UUID, digest)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, address, recoverAddress(t, digest, sig))
		})
	}
}

func TestHardwareSignatureMustMatchAccount(t *testing.T) {
	other, err := crypto.GenerateKey()
	require.NoError(t, err)
	declared, err := crypto.GenerateKey()
	require.NoError(t, err)

	v, _ := newTestVault(t, WithDevice(&fakeDevice{key: other}, time.Second))
	require.NoError(t, v.Setup(testPassword, testMnemonic))
	info, err := v.AddKey(types.AddAccountParams{
		Type:    types.AccountTypeHardware,
		Address: crypto.PubkeyToAddress(declared.PublicKey).Hex(),
	})
	require.NoError(t, err)

	_, err = v.Sign(context.Background(), info.UUID, digestOf("mismatch"))
	assert.ErrorIs(t, err, errno.ErrDeviceRejected)
}

func TestVerifyPassword(t *testing.T) {
	v, _ := newTestVault(t)
	assert.ErrorIs(t, v.VerifyPassword(testPassword), errno.ErrNotInitialized)

	require.NoError(t, v.Setup(testPassword, testMnemonic))
	assert.NoError(t, v.VerifyPassword(testPassword))
	assert.ErrorIs(t, v.VerifyPassword("nope"), errno.ErrInvalidPassword)
}
