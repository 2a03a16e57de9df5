package programs

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruteri/collection-factory/codec"
	"github.com/ruteri/collection-factory/interfaces"
)

func TestNativeHost_Dispatch(t *testing.T) {
	ctx := context.Background()
	image := []byte("image")

	var received []byte
	host := NewNativeHost(nil)
	host.Register(image, "new", func(ctx context.Context, args []byte) error {
		received = args
		return nil
	})
	host.Register(image, "fail", func(ctx context.Context, args []byte) error {
		return errors.New("rejected")
	})

	require.NoError(t, host.Invoke(ctx, image, "new", []byte("payload")))
	assert.Equal(t, []byte("payload"), received)

	assert.ErrorIs(t, host.Invoke(ctx, image, "fail", nil), interfaces.ErrProgramFailed)
	assert.ErrorIs(t, host.Invoke(ctx, image, "missing", nil), interfaces.ErrProgramFailed)
	assert.ErrorIs(t, host.Invoke(ctx, []byte("other"), "new", nil), interfaces.ErrProgramFailed)
}

func TestNativeHost_Fallback(t *testing.T) {
	host := NewCollectionHost(codec.JSON{}, NewWasmHost(0, slog.Default()))

	assert.NoError(t, host.Invoke(context.Background(), okModule, "new", nil))
	assert.ErrorIs(t, host.Invoke(context.Background(), failModule, "new", nil), interfaces.ErrProgramFailed)
}

func TestCollectionInit(t *testing.T) {
	host := NewCollectionHost(codec.JSON{}, nil)
	ctx := context.Background()

	tests := []struct {
		name    string
		args    string
		wantErr bool
	}{
		{
			name: "valid",
			args: `{"metadata":{"name":"Abc"},"owner_id":"alice.near","size":100,"sale":{"royalties":{"accounts":{"alice.near":500,"bob.near":1000},"percent":1500},"price":"1"}}`,
		},
		{
			name: "no royalties",
			args: `{"metadata":{"name":"Abc"},"owner_id":"alice.near","size":1,"sale":{"royalties":null,"price":"0"}}`,
		},
		{
			name:    "percent over 100%",
			args:    `{"metadata":{"name":"Abc"},"owner_id":"alice.near","size":1,"sale":{"royalties":{"accounts":{},"percent":10001},"price":"0"}}`,
			wantErr: true,
		},
		{
			name:    "shares over 100%",
			args:    `{"metadata":{"name":"Abc"},"owner_id":"alice.near","size":1,"sale":{"royalties":{"accounts":{"alice.near":6000,"bob.near":5000},"percent":100},"price":"0"}}`,
			wantErr: true,
		},
		{
			name:    "invalid owner",
			args:    `{"metadata":{"name":"Abc"},"owner_id":"A","size":1,"sale":{"royalties":null,"price":"0"}}`,
			wantErr: true,
		},
		{
			name:    "missing metadata",
			args:    `{"metadata":null,"owner_id":"alice.near","size":1,"sale":{"royalties":null,"price":"0"}}`,
			wantErr: true,
		},
		{
			name:    "malformed",
			args:    `{"metadata":`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := host.Invoke(ctx, CollectionImage, InitMethod, []byte(tt.args))
			if tt.wantErr {
				assert.ErrorIs(t, err, interfaces.ErrProgramFailed)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
