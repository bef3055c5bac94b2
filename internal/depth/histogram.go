package depth

import "github.com/ibflow/ingestd/internal/models"

// BuildHistogram maps the minute's frozen L2 entries onto the fixed
// 20-bucket buy/sell volume histogram over the observed price range. An
// empty entries slice, or a range where max==min, yields an empty
// histogram (zero interval, zero buckets) per spec.
func BuildHistogram(entries []models.DepthEntry) models.MinuteBarL2 {
	var bar models.MinuteBarL2
	if len(entries) == 0 {
		return bar
	}

	min, max := entries[0].Price, entries[0].Price
	for _, e := range entries[1:] {
		if e.Price < min {
			min = e.Price
		}
		if e.Price > max {
			max = e.Price
		}
	}
	bar.Min = min
	bar.Max = max
	if max == min {
		return bar
	}
	bar.Interval = (max - min) / models.HistogramBuckets

	for i := range bar.Buckets {
		bar.Buckets[i].MidPrice = min + (float64(i)+0.5)*bar.Interval
	}
	for _, e := range entries {
		idx := int((e.Price - min) / bar.Interval)
		if idx < 0 {
			idx = 0
		}
		if idx > models.HistogramBuckets-1 {
			idx = models.HistogramBuckets - 1
		}
		if e.Side == models.DepthBuy {
			bar.Buckets[idx].BuyVolume += e.Volume
		} else {
			bar.Buckets[idx].SellVolume += e.Volume
		}
	}
	return bar
}
