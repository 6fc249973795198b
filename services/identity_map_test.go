package services

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentityMapPutGet(t *testing.T) {
	m := NewIdentityMap()

	require.NoError(t, m.Put(1, 500))
	require.NoError(t, m.Put(2, 501))

	targetID, ok := m.Get(1)
	assert.True(t, ok)
	assert.Equal(t, 500, targetID)

	_, ok = m.Get(999)
	assert.False(t, ok)

	assert.Equal(t, 2, m.Len())
}

func TestIdentityMapDuplicatePutFails(t *testing.T) {
	m := NewIdentityMap()

	require.NoError(t, m.Put(1, 500))

	err := m.Put(1, 600)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDuplicateKey))

	// 最初に登録された値が保持される
	targetID, ok := m.Get(1)
	assert.True(t, ok)
	assert.Equal(t, 500, targetID)
}

func TestIdentityMapConcurrentReads(t *testing.T) {
	m := NewIdentityMap()
	for i := 1; i <= 100; i++ {
		require.NoError(t, m.Put(i, i+500))
	}

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 1; i <= 100; i++ {
				targetID, ok := m.Get(i)
				assert.True(t, ok)
				assert.Equal(t, i+500, targetID)
			}
		}()
	}
	wg.Wait()
}

func TestIdentityMapSaveLoad(t *testing.T) {
	m := NewIdentityMap()
	require.NoError(t, m.Put(1, 500))
	require.NoError(t, m.Put(2, 501))

	path := filepath.Join(t.TempDir(), "id_mapping.json")
	require.NoError(t, m.SaveToFile(path))

	// フラットなJSONオブジェクトとして書き出されている
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var flat map[string]int
	require.NoError(t, json.Unmarshal(data, &flat))
	assert.Equal(t, map[string]int{"1": 500, "2": 501}, flat)

	loaded, err := LoadIdentityMap(path)
	require.NoError(t, err)
	assert.Equal(t, m.Snapshot(), loaded.Snapshot())
}

func TestLoadIdentityMapMissingFile(t *testing.T) {
	_, err := LoadIdentityMap(filepath.Join(t.TempDir(), "なし.json"))
	assert.Error(t, err)
}

func TestIdentityMapSnapshotIsCopy(t *testing.T) {
	m := NewIdentityMap()
	require.NoError(t, m.Put(1, 500))

	snapshot := m.Snapshot()
	snapshot[1] = 999

	targetID, _ := m.Get(1)
	assert.Equal(t, 500, targetID)
}
