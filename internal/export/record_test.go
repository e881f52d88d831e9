package export

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeberg.org/mutker/ergmon/internal/errors"
	"codeberg.org/mutker/ergmon/internal/session"
)

func TestSnapshotRequiresAnalyzedSession(t *testing.T) {
	s := session.New(session.Options{})

	_, err := Snapshot(s)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, ErrNotFinalized))
}
