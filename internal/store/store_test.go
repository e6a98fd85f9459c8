package store

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"slices"
	"sync"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"webpush-demo-backend/internal/model"
)

// A helper function to create a mock database connection.
func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db,
	}), &gorm.Config{})
	require.NoError(t, err)

	return gormDB, mock
}

// newSQLiteDB opens a private in-memory database with the schema applied.
func newSQLiteDB(t *testing.T) *gorm.DB {
	t.Helper()
	gormDB, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, gormDB.AutoMigrate(&model.PushSubscription{}))
	return gormDB
}

func sub(endpoint string) model.PushSubscription {
	return model.PushSubscription{
		Endpoint: endpoint,
		Keys:     model.SubscriptionKeys{P256DH: "p256dh-" + endpoint, Auth: "auth-" + endpoint},
	}
}

func endpoints(subs []model.PushSubscription) []string {
	out := make([]string, len(subs))
	for i, s := range subs {
		out[i] = s.Endpoint
	}
	return out
}

type registryFactory func(t *testing.T, policy DuplicatePolicy) Registry

func factories() map[string]registryFactory {
	return map[string]registryFactory{
		"memory": func(_ *testing.T, policy DuplicatePolicy) Registry {
			return NewMemoryStore(policy)
		},
		"gorm": func(t *testing.T, policy DuplicatePolicy) Registry {
			return NewGormStore(newSQLiteDB(t), policy)
		},
	}
}

func TestRegistry_PreservesInsertionOrder(t *testing.T) {
	for name, newRegistry := range factories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			r := newRegistry(t, PolicyReplace)

			_, err := r.Add(ctx, sub("https://push.example/1"))
			require.NoError(t, err)
			snap, err := r.Add(ctx, sub("https://push.example/2"))
			require.NoError(t, err)
			assert.Equal(t, 2, snap.Len())

			all, err := Collect(ctx, r)
			require.NoError(t, err)
			assert.Equal(t, []string{"https://push.example/1", "https://push.example/2"}, endpoints(all))
			assert.Equal(t, "p256dh-https://push.example/1", all[0].Keys.P256DH)
			assert.False(t, all[0].CreatedAt.IsZero())
		})
	}
}

func TestRegistry_AppendPolicyKeepsDuplicates(t *testing.T) {
	for name, newRegistry := range factories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			r := newRegistry(t, PolicyAppend)

			_, err := r.Add(ctx, sub("https://push.example/dup"))
			require.NoError(t, err)
			snap, err := r.Add(ctx, sub("https://push.example/dup"))
			require.NoError(t, err)

			// Known gap of the append policy: one device, two entries.
			assert.Equal(t, 2, snap.Len())
		})
	}
}

func TestRegistry_ReplacePolicyKeysByEndpoint(t *testing.T) {
	for name, newRegistry := range factories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			r := newRegistry(t, PolicyReplace)

			_, err := r.Add(ctx, sub("https://push.example/a"))
			require.NoError(t, err)
			_, err = r.Add(ctx, sub("https://push.example/b"))
			require.NoError(t, err)

			renewed := sub("https://push.example/a")
			renewed.Keys.Auth = "rotated"
			snap, err := r.Add(ctx, renewed)
			require.NoError(t, err)

			assert.Equal(t, []string{"https://push.example/b", "https://push.example/a"}, endpoints(snap.Subscriptions))

			latest, ok, err := r.Latest(ctx)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, "rotated", latest.Keys.Auth)
		})
	}
}

func TestRegistry_Latest(t *testing.T) {
	for name, newRegistry := range factories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			r := newRegistry(t, PolicyReplace)

			_, ok, err := r.Latest(ctx)
			require.NoError(t, err)
			assert.False(t, ok)

			_, err = r.Add(ctx, sub("https://push.example/1"))
			require.NoError(t, err)
			_, err = r.Add(ctx, sub("https://push.example/2"))
			require.NoError(t, err)

			latest, ok, err := r.Latest(ctx)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, "https://push.example/2", latest.Endpoint)
		})
	}
}

func TestRegistry_Remove(t *testing.T) {
	for name, newRegistry := range factories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			r := newRegistry(t, PolicyAppend)

			for _, ep := range []string{"https://push.example/x", "https://push.example/y", "https://push.example/x"} {
				_, err := r.Add(ctx, sub(ep))
				require.NoError(t, err)
			}

			removed, err := r.Remove(ctx, "https://push.example/x")
			require.NoError(t, err)
			assert.True(t, removed)

			removed, err = r.Remove(ctx, "https://push.example/missing")
			require.NoError(t, err)
			assert.False(t, removed)

			snap, err := r.Snapshot(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"https://push.example/y"}, endpoints(snap.Subscriptions))
		})
	}
}

func TestRegistry_ListAllIsPointInTime(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryStore(PolicyReplace)
	_, err := r.Add(ctx, sub("https://push.example/1"))
	require.NoError(t, err)

	seq, err := r.ListAll(ctx)
	require.NoError(t, err)

	_, err = r.Add(ctx, sub("https://push.example/2"))
	require.NoError(t, err)

	assert.Len(t, slices.Collect(seq), 1)

	fresh, err := Collect(ctx, r)
	require.NoError(t, err)
	assert.Len(t, fresh, 2)
}

func TestMemoryStore_ConcurrentAdd(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryStore(PolicyReplace)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := r.Add(ctx, sub(fmt.Sprintf("https://push.example/%d", i)))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	snap, err := r.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 50, snap.Len())
}

// newSQLiteFileDB opens a file database that allows several connections,
// so transactions from different goroutines really interleave.
func newSQLiteFileDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "push.db") + "?_busy_timeout=5000&_txlock=immediate"
	gormDB, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(4)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, gormDB.AutoMigrate(&model.PushSubscription{}))
	return gormDB
}

func TestGormStore_ConcurrentAdd(t *testing.T) {
	ctx := context.Background()
	r := NewGormStore(newSQLiteFileDB(t), PolicyReplace)

	const n = 60
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			endpoint := fmt.Sprintf("https://push.example/%d", i)
			snap, err := r.Add(ctx, sub(endpoint))
			if !assert.NoError(t, err) {
				return
			}
			assert.Contains(t, endpoints(snap.Subscriptions), endpoint)
		}(i)
	}
	wg.Wait()

	snap, err := r.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, n, snap.Len())
}

func TestGormStore_AddReadsSnapshotBeforeCommit(t *testing.T) {
	gormDB, mock := newMockDB(t)
	r := NewGormStore(gormDB, PolicyReplace)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "push_subscriptions" WHERE endpoint = $1`)).
		WithArgs("https://push.example/a").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "push_subscriptions"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "push_subscriptions" ORDER BY id`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "endpoint", "p256dh", "auth"}).
			AddRow(7, "https://push.example/a", "p", "a"))
	mock.ExpectCommit()

	snap, err := r.Add(context.Background(), sub("https://push.example/a"))
	require.NoError(t, err)
	assert.Equal(t, []string{"https://push.example/a"}, endpoints(snap.Subscriptions))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMemoryStore_EmptySnapshotIsNotNil(t *testing.T) {
	snap, err := NewMemoryStore(PolicyReplace).Snapshot(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, snap.Subscriptions)
}

func TestGormStore_RemoveSQL(t *testing.T) {
	gormDB, mock := newMockDB(t)
	r := NewGormStore(gormDB, PolicyReplace)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "push_subscriptions" WHERE endpoint = $1`)).
		WithArgs("https://push.example/gone").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	removed, err := r.Remove(context.Background(), "https://push.example/gone")
	require.NoError(t, err)
	assert.True(t, removed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_LatestSQLError(t *testing.T) {
	gormDB, mock := newMockDB(t)
	r := NewGormStore(gormDB, PolicyReplace)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "push_subscriptions" ORDER BY id DESC`)).
		WillReturnError(fmt.Errorf("connection reset"))

	_, ok, err := r.Latest(context.Background())
	assert.Error(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestParseDuplicatePolicy(t *testing.T) {
	p, err := ParseDuplicatePolicy("")
	require.NoError(t, err)
	assert.Equal(t, PolicyReplace, p)

	p, err = ParseDuplicatePolicy("append")
	require.NoError(t, err)
	assert.Equal(t, PolicyAppend, p)

	_, err = ParseDuplicatePolicy("merge")
	assert.Error(t, err)
}
