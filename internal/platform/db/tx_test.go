package db

import (
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"

	_ "github.com/vialibre/vialibre/testing"
)

func TestTxIsolationLevels(t *testing.T) {
	// Assignment batches and booking writes depend on these levels; a silent
	// downgrade to the driver default would reopen read-skew windows.
	assert.Equal(t, pgx.RepeatableRead, defaultTxOptions.IsoLevel)
}
