package profiles

import (
	"context"
	"strconv"
	"testing"

	"github.com/md-rashed-zaman/gurubook/libs/kafkax"
	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/model"
	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/storage/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProjectorUpsertsNewerProfiles(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	p := NewProjector(store, nil)

	first := kafkax.NewMessage(ctx, "e1", EventGuruProfileUpdated, "g1", []byte(
		`{"guru_id":"g1","email":"g@example.com","timezone":"America/New_York","price_per_30_min":1500,"currency":"USD","updated_at":"2025-01-02T00:00:00Z"}`))
	require.NoError(t, p.Handle(ctx, first))

	g, err := store.GetGuru(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, "America/New_York", g.Timezone)
	assert.Equal(t, int64(1500), g.PricePer30Min)
	assert.Equal(t, "usd", g.Currency)

	older := kafkax.NewMessage(ctx, "e0", EventGuruProfileUpdated, "g1", []byte(
		`{"guru_id":"g1","timezone":"UTC","price_per_30_min":0,"updated_at":"2025-01-01T00:00:00Z"}`))
	require.NoError(t, p.Handle(ctx, older))

	g, err = store.GetGuru(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, int64(1500), g.PricePer30Min)
}

func TestProjectorDropsUnservableProfiles(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	p := NewProjector(store, nil)

	for i, body := range []string{
		`not json`,
		`{"guru_id":"","timezone":"UTC"}`,
		`{"guru_id":"g1","price_per_30_min":-5}`,
		`{"guru_id":"g1","timezone":"Mars/Olympus"}`,
	} {
		msg := kafkax.NewMessage(ctx, "e"+strconv.Itoa(i), EventGuruProfileUpdated, "g1", []byte(body))
		require.NoError(t, p.Handle(ctx, msg), body)
	}

	_, err := store.GetGuru(ctx, "g1")
	assert.ErrorIs(t, err, model.ErrNotFound)
}
