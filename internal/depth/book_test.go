package depth

import (
	"testing"

	"github.com/ibflow/ingestd/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestInsertThenUpdateMutatesInPlace(t *testing.T) {
	b := NewBook()
	b.Insert(0, models.DepthBuy, 100, 10)
	b.Update(0, models.DepthBuy, 101, 20)

	frozen := b.Rollover()
	assert.Len(t, frozen, 1)
	assert.Equal(t, 101.0, frozen[0].Price)
	assert.Equal(t, 20.0, frozen[0].Volume)
	assert.Equal(t, models.DepthUpdated, frozen[0].Status)
}

func TestUpdateAfterDeleteInsertsFresh(t *testing.T) {
	b := NewBook()
	b.Insert(0, models.DepthBuy, 100, 10)
	b.Delete(0)
	b.Update(0, models.DepthBuy, 102, 30)

	frozen := b.Rollover()
	assert.Len(t, frozen, 2)
	assert.Equal(t, models.DepthDeleted, frozen[0].Status)
	assert.Equal(t, models.DepthInserted, frozen[1].Status)
	assert.Equal(t, 102.0, frozen[1].Price)
}

func TestRolloverDropsDeletedTailFromLiveBook(t *testing.T) {
	b := NewBook()
	b.Insert(0, models.DepthSell, 101, 40)
	b.Delete(0)
	b.Rollover()

	assert.True(t, b.Empty())
}

func TestRolloverKeepsLiveEntryAsNextMinuteSeed(t *testing.T) {
	b := NewBook()
	b.Insert(1, models.DepthBuy, 100, 30)
	frozen := b.Rollover()
	assert.Len(t, frozen, 1)
	assert.False(t, b.Empty())

	frozen = b.Rollover()
	assert.Len(t, frozen, 1)
	assert.Equal(t, 100.0, frozen[0].Price)
}

func TestDeleteOnUnknownPositionIsNoop(t *testing.T) {
	b := NewBook()
	b.Delete(5)
	assert.True(t, b.Empty())
}
