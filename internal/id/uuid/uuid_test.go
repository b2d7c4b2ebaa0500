package uuid

import (
	"testing"

	goUUID "github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestGeneratorNewID(t *testing.T) {
	t.Parallel()

	gen := NewUUIDGenerator()
	id1, err := gen.NewID()
	require.NoError(t, err)
	id2, err := gen.NewID()
	require.NoError(t, err)
	require.NotEqual(t, id1, id2)

	parsed, err := goUUID.Parse(id1)
	require.NoError(t, err)
	require.Equal(t, goUUID.Version(7), parsed.Version())
	// v7 IDs are time ordered.
	require.Less(t, id1, id2)
}

func TestGeneratorMustNewID(t *testing.T) {
	t.Parallel()

	id := NewUUIDGenerator().MustNewID()
	_, err := goUUID.Parse(id)
	require.NoError(t, err)
}
