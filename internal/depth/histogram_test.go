package depth

import (
	"testing"

	"github.com/ibflow/ingestd/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestBuildHistogramEmptyWhenNoEntries(t *testing.T) {
	bar := BuildHistogram(nil)
	assert.Equal(t, 0.0, bar.Interval)
}

func TestBuildHistogramEmptyWhenMinEqualsMax(t *testing.T) {
	bar := BuildHistogram([]models.DepthEntry{
		{Price: 100, Volume: 10, Side: models.DepthBuy},
		{Price: 100, Volume: 5, Side: models.DepthSell},
	})
	assert.Equal(t, 100.0, bar.Min)
	assert.Equal(t, 100.0, bar.Max)
	assert.Equal(t, 0.0, bar.Interval)
}

func TestBuildHistogramConservesTotalVolume(t *testing.T) {
	entries := []models.DepthEntry{
		{Price: 100, Volume: 30, Side: models.DepthBuy},
		{Price: 101, Volume: 40, Side: models.DepthSell},
	}
	bar := BuildHistogram(entries)
	assert.Equal(t, 100.0, bar.Min)
	assert.Equal(t, 101.0, bar.Max)
	assert.InDelta(t, 0.05, bar.Interval, 1e-9)

	var totalBuy, totalSell float64
	for _, bucket := range bar.Buckets {
		totalBuy += bucket.BuyVolume
		totalSell += bucket.SellVolume
	}
	assert.Equal(t, 30.0, totalBuy)
	assert.Equal(t, 40.0, totalSell)
}

func TestBuildHistogramBucketsClampToRange(t *testing.T) {
	entries := []models.DepthEntry{
		{Price: 100, Volume: 1, Side: models.DepthBuy},
		{Price: 101, Volume: 1, Side: models.DepthBuy},
	}
	bar := BuildHistogram(entries)
	assert.Equal(t, 1.0, bar.Buckets[0].BuyVolume)
	assert.Equal(t, 1.0, bar.Buckets[models.HistogramBuckets-1].BuyVolume)
}
