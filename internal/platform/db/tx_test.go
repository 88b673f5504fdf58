package db

import (
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"
)

func TestWithTxRunsReadCommitted(t *testing.T) {
	// Concurrent posts touching the same (SKU, location) counter or PO line
	// must queue on the row lock and resume with a fresh read once the
	// winner commits. A repeatable-read snapshot turns that lock wait into
	// a serialization failure for the loser.
	require.Equal(t, pgx.ReadCommitted, mutationTxOptions.IsoLevel)
}
