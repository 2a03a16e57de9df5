package programs

import (
	"context"
	"fmt"
	"sync"

	"github.com/ruteri/collection-factory/interfaces"
)

// EntryPoint is a program entry point implemented in Go.
type EntryPoint func(ctx context.Context, args []byte) error

// NativeHost executes program images whose behavior is implemented in Go.
// Images are matched by content id; unknown images are handed to the fallback host.
type NativeHost struct {
	mutex    sync.RWMutex
	programs map[interfaces.ContentID]map[string]EntryPoint
	fallback interfaces.ProgramHost
}

// NewNativeHost creates a host delegating unknown images to fallback, which may be nil.
func NewNativeHost(fallback interfaces.ProgramHost) *NativeHost {
	return &NativeHost{
		programs: make(map[interfaces.ContentID]map[string]EntryPoint),
		fallback: fallback,
	}
}

// Register binds method of the image code to fn.
func (h *NativeHost) Register(code []byte, method string, fn EntryPoint) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	id := interfaces.ComputeID(code)
	if h.programs[id] == nil {
		h.programs[id] = make(map[string]EntryPoint)
	}
	h.programs[id][method] = fn
}

func (h *NativeHost) Invoke(ctx context.Context, code []byte, method string, args []byte) error {
	id := interfaces.ComputeID(code)

	h.mutex.RLock()
	methods, known := h.programs[id]
	fn := methods[method]
	h.mutex.RUnlock()

	if !known {
		if h.fallback != nil {
			return h.fallback.Invoke(ctx, code, method, args)
		}
		return fmt.Errorf("%w: unknown program %s", interfaces.ErrProgramFailed, id)
	}
	if fn == nil {
		return fmt.Errorf("%w: method %q is not exported by %s", interfaces.ErrProgramFailed, method, id)
	}

	if err := fn(ctx, args); err != nil {
		return fmt.Errorf("%w: %s: %w", interfaces.ErrProgramFailed, method, err)
	}
	return nil
}
