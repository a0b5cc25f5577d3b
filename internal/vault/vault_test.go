package vault

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestServiceErrorCodeAndUnwrap(t *testing.T) {
	cause := Invalid("title is required")
	err := NewServiceError("notes.create", "invalid_title", cause)

	require.Equal(t, "notes.create.invalid_title", ErrorCode(err))
	require.ErrorIs(t, err, ErrInvalidInput)
	require.Contains(t, err.Error(), "title is required")
	require.Equal(t, "", ErrorCode(errors.New("plain")))
}

func TestIdentifiersValidate(t *testing.T) {
	owner, err := NewOwnerID("  owner-1 ")
	require.NoError(t, err)
	require.Equal(t, "owner-1", owner.String())

	_, err = NewOwnerID(" ")
	require.Error(t, err)

	_, err = NewRecordID(strings.Repeat("x", maxIdentifierLength+1))
	require.Error(t, err)
}

func TestUUIDProviderIssuesDistinctIDs(t *testing.T) {
	provider := NewUUIDProvider()
	first, err := provider.NewID()
	require.NoError(t, err)
	second, err := provider.NewID()
	require.NoError(t, err)
	require.NotEqual(t, first, second)
}

func TestTagHelpers(t *testing.T) {
	require.Equal(t, []string{"beach", "family"}, SplitTags(" beach, ,family,beach "))
	require.Empty(t, SplitTags(""))
	require.True(t, HasTag([]string{"a", "b"}, "b"))
	require.False(t, HasTag(nil, "b"))
	require.Equal(t, []string{"a", "b", "c"}, DistinctTags([]string{"c", "a"}, []string{"b", "a"}))
}
