package notifier

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suspectuso/attention-tracker/internal/storage"
	"github.com/suspectuso/attention-tracker/internal/zone"
)

func (e *testEnv) checkpoints(t *testing.T) *Checkpoints {
	t.Helper()
	c, err := NewCheckpoints(e.store, e.messenger, DefaultCheckpoints, e.metrics, e.log)
	require.NoError(t, err)
	return c
}

func (e *testEnv) receipt(t *testing.T, chatID int64, z zone.Zone, entryMcap float64, messageID int, createdAt time.Time) *storage.Receipt {
	t.Helper()
	r := &storage.Receipt{
		ChatID: chatID, TokenAddress: mint, Zone: z, EnteredAt: createdAt,
		MessageID: messageID, EntryMcap: entryMcap, CreatedAt: createdAt,
	}
	created, err := e.store.InsertReceipt(context.Background(), r)
	require.NoError(t, err)
	require.True(t, created)
	return r
}

func (e *testEnv) setMcap(t *testing.T, mcap float64) {
	t.Helper()
	require.NoError(t, e.store.UpdateMarketCap(context.Background(), mint, mcap))
}

func TestCheckpoints_CrossedAcrossTicks(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.activeToken(t, 10_000, zone.DegenOrbit)
	r := e.receipt(t, 1, zone.DegenOrbit, 10_000, 55, base)
	c := e.checkpoints(t)

	e.setMcap(t, 35_000)
	require.NoError(t, c.Check(ctx))
	require.NoError(t, c.Check(ctx))

	msgs := e.messenger.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, 55, msgs[0].ReplyTo)
	assert.Contains(t, msgs[0].Text, "3x")

	e.setMcap(t, 110_000)
	require.NoError(t, c.Check(ctx))
	require.NoError(t, c.Check(ctx))

	msgs = e.messenger.messages()
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[1].Text, "10x")
	assert.Equal(t, 55, msgs[1].ReplyTo)

	receipts, err := e.store.ReceiptsForToken(ctx, mint)
	require.NoError(t, err)
	require.Len(t, receipts, 1)
	assert.Equal(t, r.ID, receipts[0].ID)
	assert.Equal(t, []float64{3, 10}, receipts[0].Checkpoints)
}

func TestCheckpoints_SeveralCrossedAtOnce(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.activeToken(t, 1_000, zone.DegenOrbit)
	e.receipt(t, 1, zone.DegenOrbit, 1_000, 7, base)

	e.setMcap(t, 30_000)
	require.NoError(t, e.checkpoints(t).Check(ctx))

	msgs := e.messenger.messages()
	require.Len(t, msgs, 3)
	assert.Contains(t, msgs[0].Text, "3x")
	assert.Contains(t, msgs[1].Text, "10x")
	assert.Contains(t, msgs[2].Text, "25x")
}

func TestCheckpoints_OscillationNotifiesOnce(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.activeToken(t, 10_000, zone.DegenOrbit)
	e.receipt(t, 1, zone.DegenOrbit, 10_000, 7, base)
	c := e.checkpoints(t)

	for _, mcap := range []float64{31_000, 20_000, 32_000, 29_000, 40_000} {
		e.setMcap(t, mcap)
		require.NoError(t, c.Check(ctx))
	}

	assert.Len(t, e.messenger.messages(), 1)
}

func TestCheckpoints_EarliestReceiptPerChat(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.activeToken(t, 10_000, zone.DegenOrbit, zone.Mainframe)

	e.receipt(t, 1, zone.DegenOrbit, 10_000, 11, base)
	e.receipt(t, 1, zone.Mainframe, 5_000, 12, base.Add(time.Minute))
	e.receipt(t, 2, zone.Mainframe, 5_000, 21, base.Add(time.Minute))

	// 3x for entries at 5K, only 1.5x for the 10K anchor of chat 1
	e.setMcap(t, 15_000)
	require.NoError(t, e.checkpoints(t).Check(ctx))

	msgs := e.messenger.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, int64(2), msgs[0].ChatID)
	assert.Equal(t, 21, msgs[0].ReplyTo)
}

func TestCheckpoints_SkipsZeroEntryAndBelowMinimum(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.activeToken(t, 10_000, zone.DegenOrbit)
	e.receipt(t, 1, zone.DegenOrbit, 0, 11, base)
	e.receipt(t, 2, zone.DegenOrbit, 10_000, 21, base)

	e.setMcap(t, 29_999)
	require.NoError(t, e.checkpoints(t).Check(ctx))
	assert.Empty(t, e.messenger.messages())
}

func TestCheckpoints_FailedSendRetried(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.activeToken(t, 10_000, zone.DegenOrbit)
	e.receipt(t, 1, zone.DegenOrbit, 10_000, 11, base)
	c := e.checkpoints(t)

	e.setMcap(t, 40_000)
	e.messenger.setFail(1, blockedErr())
	require.NoError(t, c.Check(ctx))
	assert.Empty(t, e.messenger.messages())

	receipts, err := e.store.ReceiptsForToken(ctx, mint)
	require.NoError(t, err)
	assert.Empty(t, receipts[0].Checkpoints)

	e.messenger.setFail(1, nil)
	require.NoError(t, c.Check(ctx))
	require.NoError(t, c.Check(ctx))
	assert.Len(t, e.messenger.messages(), 1)
}

func TestCheckpoints_InactiveTokenIgnored(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.activeToken(t, 10_000)
	e.receipt(t, 1, zone.DegenOrbit, 10_000, 11, base)

	e.setMcap(t, 1_000_000)
	require.NoError(t, e.checkpoints(t).Check(ctx))
	assert.Empty(t, e.messenger.messages())
}

func TestNewCheckpoints_Validation(t *testing.T) {
	e := newTestEnv(t)

	c, err := NewCheckpoints(e.store, e.messenger, nil, e.metrics, e.log)
	require.NoError(t, err)
	assert.Equal(t, DefaultCheckpoints, c.multiples)

	_, err = NewCheckpoints(e.store, e.messenger, []float64{0, 2}, e.metrics, e.log)
	assert.Error(t, err)

	c, err = NewCheckpoints(e.store, e.messenger, []float64{10, 3}, e.metrics, e.log)
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 10}, c.multiples)
}
