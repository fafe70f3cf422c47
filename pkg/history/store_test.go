// Copyright 2025 Alibaba Group Holding Ltd.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alibaba/opensandbox/healthd/pkg/snapshot"
)

func openTemp(t *testing.T, retention time.Duration) *Store {
	t.Helper()
	store, err := Open(DriverSQLite, filepath.Join(t.TempDir(), "history.db"), retention)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func snapAt(id string, at time.Time, used uint64) *snapshot.Snapshot {
	return &snapshot.Snapshot{
		ID:          id,
		GeneratedAt: at,
		Memory:      snapshot.Memory{Total: 100, Used: used, Usage: float64(used)},
		Storage: snapshot.Storage{
			Freshness: snapshot.Freshness{Stale: true, Reason: "timeout"},
		},
	}
}

func TestRecordAndList(t *testing.T) {
	store := openTemp(t, 0)
	ctx := context.Background()
	base := time.UnixMilli(1_700_000_000_000).UTC()

	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, store.Record(ctx, snapAt(id, base.Add(time.Duration(i)*time.Second), uint64(10*(i+1)))))
	}

	all, err := store.List(ctx, time.UnixMilli(0), 10)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "a", all[0].ID)
	assert.Equal(t, "c", all[2].ID)
	assert.Equal(t, uint64(30), all[2].Memory.Used)
	assert.True(t, all[0].Storage.Stale)
	assert.Equal(t, "timeout", all[0].Storage.Reason)
	assert.True(t, base.Equal(all[0].GeneratedAt))

	since, err := store.List(ctx, base.Add(time.Second), 10)
	require.NoError(t, err)
	require.Len(t, since, 2)
	assert.Equal(t, "b", since[0].ID)

	limited, err := store.List(ctx, time.UnixMilli(0), 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "a", limited[0].ID)
}

func TestRetentionPrunesOldRows(t *testing.T) {
	store := openTemp(t, time.Minute)
	ctx := context.Background()
	base := time.Now().Truncate(time.Millisecond)

	require.NoError(t, store.Record(ctx, snapAt("old", base, 1)))
	require.NoError(t, store.Record(ctx, snapAt("mid", base.Add(30*time.Second), 2)))
	require.NoError(t, store.Record(ctx, snapAt("new", base.Add(2*time.Minute), 3)))

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	rows, err := store.List(ctx, time.UnixMilli(0), 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "new", rows[0].ID)
}

func TestRecordNilIsNoop(t *testing.T) {
	store := openTemp(t, 0)
	require.NoError(t, store.Record(context.Background(), nil))
}

func TestDuplicateIDFails(t *testing.T) {
	store := openTemp(t, 0)
	ctx := context.Background()
	s := snapAt("dup", time.Now(), 1)
	require.NoError(t, store.Record(ctx, s))
	assert.Error(t, store.Record(ctx, s))
}

func TestOpenRejectsBadConfig(t *testing.T) {
	_, err := Open("postgres", "", 0)
	assert.ErrorIs(t, err, ErrUnknownDriver)

	_, err = Open(DriverMySQL, "not a dsn", 0)
	assert.Error(t, err)

	_, err = Open(DriverMySQL, "root:pw@tcp(127.0.0.1:3306)/", 0)
	assert.Error(t, err)
}
