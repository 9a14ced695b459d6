package vault

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// Device is a hardware signer. It signs a 32-byte digest with the key at path
// and returns a 65-byte [R || S || V] signature, V in {0, 1}.
//
// Implementations return an error matching errno.ErrDeviceRejected when the user
// refuses on the device, and honour ctx for timeouts.
type Device interface {
	SignHash(ctx context.Context, path string, account common.Address, digest []byte) ([]byte, error)
}
