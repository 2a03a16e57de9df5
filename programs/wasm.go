package programs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/ruteri/collection-factory/interfaces"
)

const defaultMemoryLimitPages = 256 // 16MB

// WasmHost executes WebAssembly program images.
//
// An entry point takes (ptr, len) of its serialized arguments in linear memory and
// returns an i32 status; zero means success. Arguments are placed in memory returned
// by an exported "alloc" function when the module has one, otherwise at offset 0.
// Every invocation gets a fresh runtime, so no state survives between calls.
type WasmHost struct {
	memoryLimitPages uint32
	log              *slog.Logger
}

// NewWasmHost creates a host. A zero memoryLimitPages selects the default of 256 pages.
func NewWasmHost(memoryLimitPages uint32, log *slog.Logger) *WasmHost {
	if memoryLimitPages == 0 {
		memoryLimitPages = defaultMemoryLimitPages
	}
	return &WasmHost{memoryLimitPages: memoryLimitPages, log: log}
}

// Invoke instantiates code and calls method with args.
// Any failure to load or run the program is reported as interfaces.ErrProgramFailed.
func (h *WasmHost) Invoke(ctx context.Context, code []byte, method string, args []byte) error {
	runtimeConfig := wazero.NewRuntimeConfig().
		WithMemoryLimitPages(h.memoryLimitPages).
		WithCloseOnContextDone(true)

	runtime := wazero.NewRuntimeWithConfig(ctx, runtimeConfig)
	defer runtime.Close(ctx)

	if _, err := wasi_snapshot_preview1.Instantiate(ctx, runtime); err != nil {
		return fmt.Errorf("failed to instantiate WASI: %w", err)
	}

	module, err := runtime.InstantiateWithConfig(ctx, code, wazero.NewModuleConfig().WithName(""))
	if err != nil {
		return fmt.Errorf("%w: failed to instantiate module: %w", interfaces.ErrProgramFailed, err)
	}

	fn := module.ExportedFunction(method)
	if fn == nil {
		return fmt.Errorf("%w: method %q is not exported", interfaces.ErrProgramFailed, method)
	}
	if params := fn.Definition().ParamTypes(); len(params) != 2 || params[0] != api.ValueTypeI32 || params[1] != api.ValueTypeI32 {
		return fmt.Errorf("%w: method %q must take (i32, i32)", interfaces.ErrProgramFailed, method)
	}

	ptr, err := h.writeArgs(ctx, module, args)
	if err != nil {
		return fmt.Errorf("%w: %w", interfaces.ErrProgramFailed, err)
	}

	results, err := fn.Call(ctx, uint64(ptr), uint64(len(args)))
	if err != nil {
		return fmt.Errorf("%w: %s trapped: %w", interfaces.ErrProgramFailed, method, err)
	}
	if len(results) > 0 && api.DecodeI32(results[0]) != 0 {
		return fmt.Errorf("%w: %s returned status %d", interfaces.ErrProgramFailed, method, api.DecodeI32(results[0]))
	}

	h.log.Debug("Program entry point completed", slog.String("method", method), slog.Int("argsLen", len(args)))
	return nil
}

func (h *WasmHost) writeArgs(ctx context.Context, module api.Module, args []byte) (uint32, error) {
	if len(args) == 0 {
		return 0, nil
	}

	memory := module.Memory()
	if memory == nil {
		return 0, fmt.Errorf("module exports no memory for %d bytes of arguments", len(args))
	}

	var ptr uint32
	if alloc := module.ExportedFunction("alloc"); alloc != nil {
		results, err := alloc.Call(ctx, uint64(len(args)))
		if err != nil {
			return 0, fmt.Errorf("alloc failed: %w", err)
		}
		if len(results) == 0 {
			return 0, fmt.Errorf("alloc returned no pointer")
		}
		ptr = api.DecodeU32(results[0])
	}

	if !memory.Write(ptr, args) {
		return 0, fmt.Errorf("arguments do not fit in memory at offset %d", ptr)
	}
	return ptr, nil
}
