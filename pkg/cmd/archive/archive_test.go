package archive

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	serverCmd "github.com/simplefpvtimer/sftctl/pkg/cmd/server"
	"github.com/simplefpvtimer/sftctl/pkg/model"
	"github.com/simplefpvtimer/sftctl/pkg/ranking"
	"github.com/simplefpvtimer/sftctl/pkg/storage"
)

func TestListAndShow(t *testing.T) {
	db, err := storage.Open("")
	require.NoError(t, err)
	defer db.Close()
	a := storage.NewArchive(db)

	id, err := a.SaveRace([]model.Player{
		{Name: "anna", Laps: []model.Lap{{ID: 1, Duration: 4000}, {ID: 2, Duration: 4100}}},
		{Name: "bob", Laps: []model.Lap{{ID: 1, Duration: 3000}}},
	}, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, listRaces(&buf, a))
	assert.True(t, strings.HasPrefix(buf.String(), id))
	assert.Contains(t, buf.String(), "2 players  3 laps")

	buf.Reset()
	mode = ranking.FastestLap
	require.NoError(t, showRace(&buf, a, id))
	out := buf.String()
	assert.Contains(t, out, "race "+id)
	assert.Contains(t, out, "Fastest Lap")
	assert.Contains(t, out, "3s 0ms")

	err = showRace(&buf, a, "missing")
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestDataDirMatchesServer(t *testing.T) {
	f := NewArchiveCmd().PersistentFlags().Lookup("data-dir")
	require.NotNil(t, f)
	assert.Equal(t, serverCmd.NewServerCmd().Flags().Lookup("data-dir").DefValue, f.DefValue)
}
