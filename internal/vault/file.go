package vault

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"wallet-signer/pkg/keystore"
	"wallet-signer/pkg/wallet/types"
)

// KeyInfo 密钥索引, 明文保存, 不含任何私密信息
type KeyInfo struct {
	UUID           string            `json:"uuid"`
	Type           types.AccountType `json:"type"`
	Address        string            `json:"address"`
	PublicKey      string            `json:"publicKey,omitempty"`
	DerivationPath string            `json:"derivationPath,omitempty"`
}

// secretDoc 加密保存的内容
type secretDoc struct {
	Mnemonic string            `json:"mnemonic"`
	Imported map[string]string `json:"imported"` // uuid -> hex private key
}

type vaultFile struct {
	Version  int                        `json:"version"`
	Keys     []KeyInfo                  `json:"keys"`
	Keystore *keystore.EncryptedKeyJSON `json:"keystore"`
}

func loadFile(path string) (*vaultFile, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var f vaultFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("vault file %s: %w", path, err)
	}
	if f.Keystore == nil {
		return nil, fmt.Errorf("vault file %s: missing keystore", path)
	}
	return &f, nil
}

// saveFile 先写临时文件再 rename, 避免写一半的文件
func saveFile(path string, f *vaultFile) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".vault-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
