package sqlite_test

import (
	"context"
	"crypto/rand"
	"fmt"
	"math"
	"math/big"
	"testing"

	"github.com/flowstate/flowcloud"
	"github.com/flowstate/flowcloud/database/sqlite"
	"github.com/stretchr/testify/require"
)

func getRandomString(t *testing.T) string {
	t.Helper()
	n, err := rand.Int(rand.Reader, big.NewInt(math.MaxInt64))
	require.NoError(t, err, "random string")
	return fmt.Sprintf("test%x", n.Int64())
}

// setupTestStore creates a key store with a unique table name for test isolation
func setupTestStore(t *testing.T) flowcloud.KeyStore {
	t.Helper()

	ctx := context.Background()
	tables := flowcloud.Tables{AccessKeys: fmt.Sprintf("access_keys_%s", getRandomString(t))}

	db, err := sqlite.Connect(ctx, ":memory:", tables)
	require.NoError(t, err, "failed to connect")
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, db.Migrate(ctx), "failed to migrate")
	require.NoError(t, db.Validate(ctx), "failed to validate")

	return db.KeyStore()
}
