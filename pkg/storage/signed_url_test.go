package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLinkSignerRoundTrip(t *testing.T) {
	signer := NewLinkSigner("secret", time.Hour)
	token, expiresAt, err := signer.Sign("act-1", "act-1/grades.csv")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	link, err := signer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "act-1", link.Subject)
	assert.Equal(t, "act-1/grades.csv", link.Path)
	assert.WithinDuration(t, expiresAt, link.ExpiresAt, time.Second)
}

func TestLinkSignerRejectsExpiredAndForeign(t *testing.T) {
	signer := NewLinkSigner("secret", time.Minute)
	signer.now = func() time.Time { return time.Now().Add(-time.Hour) }
	token, _, err := signer.Sign("act-1", "act-1/grades.csv")
	require.NoError(t, err)

	_, err = NewLinkSigner("secret", time.Minute).Verify(token)
	assert.True(t, errors.Is(err, ErrInvalidLink))

	token, _, err = NewLinkSigner("other", time.Minute).Sign("act-1", "act-1/grades.csv")
	require.NoError(t, err)
	_, err = NewLinkSigner("secret", time.Minute).Verify(token)
	assert.True(t, errors.Is(err, ErrInvalidLink))

	_, _, err = NewLinkSigner("", time.Minute).Sign("act-1", "x")
	assert.Error(t, err)
}

func TestLocalStoreSaveReadCleanup(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Save("act-1/grades.csv", []byte("a,b\n")))
	data, err := store.Read("act-1/grades.csv")
	require.NoError(t, err)
	assert.Equal(t, "a,b\n", string(data))

	_, err = store.Read("act-1/missing.csv")
	assert.True(t, errors.Is(err, os.ErrNotExist))

	assert.ErrorIs(t, store.Save("../escape.csv", nil), ErrInvalidPath)
	_, err = store.Read(filepath.Join(string(filepath.Separator), "etc", "passwd"))
	assert.ErrorIs(t, err, ErrInvalidPath)

	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(store.baseDir, "act-1", "grades.csv"), old, old))
	require.NoError(t, store.Save("act-2/fresh.csv", []byte("x")))

	deleted, err := store.CleanupOlderThan(24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, []string{"act-1/grades.csv"}, deleted)
}
