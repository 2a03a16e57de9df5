package programs

import (
	"context"
	"errors"
	"fmt"

	"github.com/ruteri/collection-factory/interfaces"
)

// CollectionImage is the program image of the built-in collection program.
// Its content is a marker; behavior is provided by CollectionInit through a NativeHost.
var CollectionImage = []byte("collection-factory/native/collection/v1")

// InitMethod is the initialization entry point of collection programs.
const InitMethod = "new"

var (
	ErrRoyaltiesTooHigh = errors.New("royalties exceed 100%")
	ErrMissingMetadata  = errors.New("missing collection metadata")
)

// CollectionInit returns the initializer of the built-in collection program.
// It accepts a payload that decodes into InitArgs with a valid owner and royalty
// shares that add up to at most 10000 basis points.
func CollectionInit(codec interfaces.Codec) EntryPoint {
	return func(ctx context.Context, args []byte) error {
		var init interfaces.InitArgs
		if err := codec.Unmarshal(args, &init); err != nil {
			return fmt.Errorf("could not decode init args: %w", err)
		}
		return ValidateInitArgs(&init)
	}
}

func ValidateInitArgs(init *interfaces.InitArgs) error {
	if len(init.Metadata) == 0 || string(init.Metadata) == "null" {
		return ErrMissingMetadata
	}
	if err := init.OwnerID.Validate(); err != nil {
		return fmt.Errorf("owner: %w", err)
	}

	royalties := init.Sale.Royalties
	if royalties == nil {
		return nil
	}
	if royalties.Percent > interfaces.MaxBasisPoints {
		return fmt.Errorf("%w: percent is %d", ErrRoyaltiesTooHigh, royalties.Percent)
	}

	var total uint32
	for account, share := range royalties.Accounts {
		if err := account.Validate(); err != nil {
			return fmt.Errorf("royalty beneficiary: %w", err)
		}
		total += uint32(share)
	}
	if total > uint32(interfaces.MaxBasisPoints) {
		return fmt.Errorf("%w: shares add up to %d", ErrRoyaltiesTooHigh, total)
	}
	return nil
}

// NewCollectionHost returns a host running the built-in collection program natively
// and any other image on the WebAssembly host.
func NewCollectionHost(codec interfaces.Codec, wasm *WasmHost) *NativeHost {
	var fallback interfaces.ProgramHost
	if wasm != nil {
		fallback = wasm
	}
	host := NewNativeHost(fallback)
	host.Register(CollectionImage, InitMethod, CollectionInit(codec))
	return host
}
