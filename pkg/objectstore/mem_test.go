package objectstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemStoreGetPut(t *testing.T) {
	m := NewMemStore()
	ctx := context.Background()

	_, err := m.Get(ctx, "missing")
	assert.True(t, IsNotFound(err))

	require.NoError(t, m.Put(ctx, "a/b.txt", []byte("hello")))
	data, err := m.Get(ctx, "a/b.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)

	// Returned slices are copies; mutating one must not affect the store.
	data[0] = 'X'
	again, err := m.Get(ctx, "a/b.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), again)
}

func TestMemStoreList(t *testing.T) {
	m := NewMemStore()
	ctx := context.Background()

	m.SeedSized("SCPCP000001/SCPCS000101/file.rds", 10)
	m.SeedSized("SCPCP000001/SCPCS000102/file.rds", 20)
	m.Seed("SCPCP000002/other.rds", []byte("x"))

	objs, err := m.List(ctx, "SCPCP000001/")
	require.NoError(t, err)
	require.Len(t, objs, 2)
	assert.Equal(t, "SCPCP000001/SCPCS000101/file.rds", objs[0].Key)
	assert.Equal(t, int64(10), objs[0].Size)
	assert.Equal(t, "SCPCP000001/SCPCS000102/file.rds", objs[1].Key)
	assert.False(t, objs[0].LastModified.IsZero())

	objs, err = m.List(ctx, "nope/")
	require.NoError(t, err)
	assert.Empty(t, objs)
}

func TestMemStoreDownloadUpload(t *testing.T) {
	m := NewMemStore()
	ctx := context.Background()
	dir := t.TempDir()

	m.Seed("manifest.txt", []byte("SCPCP000001\n"))

	local := filepath.Join(dir, "nested", "manifest.txt")
	require.NoError(t, m.Download(ctx, "manifest.txt", local))
	b, err := os.ReadFile(local)
	require.NoError(t, err)
	assert.Equal(t, "SCPCP000001\n", string(b))

	err = m.Download(ctx, "missing.txt", filepath.Join(dir, "missing.txt"))
	assert.True(t, IsNotFound(err))

	require.NoError(t, m.Upload(ctx, "roundtrip.txt", local))
	b, err = m.Get(ctx, "roundtrip.txt")
	require.NoError(t, err)
	assert.Equal(t, "SCPCP000001\n", string(b))
}

func TestMemStoreIsEmpty(t *testing.T) {
	m := NewMemStore()
	ctx := context.Background()

	empty, err := m.IsEmpty(ctx, "absent")
	require.NoError(t, err)
	assert.True(t, empty)

	m.Seed("zero", nil)
	empty, err = m.IsEmpty(ctx, "zero")
	require.NoError(t, err)
	assert.True(t, empty)

	m.Seed("full", []byte("x"))
	empty, err = m.IsEmpty(ctx, "full")
	require.NoError(t, err)
	assert.False(t, empty)
}

func TestMemStoreFailPut(t *testing.T) {
	m := NewMemStore()
	m.FailPut = errors.New("disk full")

	err := m.Put(context.Background(), "k", []byte("v"))
	require.Error(t, err)

	var serr *StoreError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "Put", serr.Op)
	assert.Equal(t, "k", serr.Key)

	// Seed bypasses the failure hook.
	m.Seed("k", []byte("v"))
	b, err := m.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), b)
}

func TestStoreErrorMessages(t *testing.T) {
	withKey := &StoreError{Op: "Get", Bucket: "b", Key: "k", Err: ErrNotFound}
	assert.Equal(t, "Get: b/k: object not found", withKey.Error())

	noKey := &StoreError{Op: "List", Bucket: "b", Err: ErrAccessDenied}
	assert.Equal(t, "List: b: access denied", noKey.Error())
}

func TestErrorPredicates(t *testing.T) {
	assert.True(t, IsNotFound(&StoreError{Op: "Get", Err: ErrNotFound}))
	assert.True(t, IsAccessDenied(&StoreError{Op: "Put", Err: ErrAccessDenied}))
	assert.True(t, IsThrottled(&StoreError{Op: "List", Err: ErrThrottled}))
	assert.True(t, IsUnavailable(&StoreError{Op: "List", Err: ErrUnavailable}))
	assert.False(t, IsNotFound(errors.New("other")))
}
