package interfaces

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseContentID(t *testing.T) {
	id := ComputeID([]byte("image"))

	parsed, err := ParseContentID(id.String())
	require.NoError(t, err)
	assert.True(t, parsed.Equal(id))

	parsed, err = ParseContentID("0x" + id.String())
	require.NoError(t, err)
	assert.Equal(t, id, parsed)

	_, err = ParseContentID("abcd")
	assert.Error(t, err)
	_, err = ParseContentID(id.String()[:62] + "zz")
	assert.Error(t, err)
}

func TestParseStorageLocation(t *testing.T) {
	loc, err := ParseStorageLocation("s3://KEY:SECRET@bucket/images?region=eu-west-1&path_style=1")
	require.NoError(t, err)
	assert.Equal(t, SchemeS3, loc.Scheme)
	assert.Equal(t, "bucket", loc.Host)
	assert.Equal(t, "/images", loc.Path)
	assert.Equal(t, "KEY:SECRET", loc.Auth)
	assert.Equal(t, "eu-west-1", loc.Param("region"))
	assert.True(t, loc.Flag("path_style"))
	assert.False(t, loc.Flag("missing"))

	_, err = ParseStorageLocation("ftp://host/path")
	assert.ErrorIs(t, err, ErrInvalidLocationURI)
	_, err = ParseStorageLocation("file://%zz")
	assert.ErrorIs(t, err, ErrInvalidLocationURI)
}
