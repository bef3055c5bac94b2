// Package depth implements the L2 depth book (C3): a position-keyed,
// append-ordered ladder of price/volume/side entries driven by the
// broker's Insert/Update/Delete mutation stream, with a rollover step
// that hands the minute's recorded entries to the frozen buffer and
// leaves the live book holding only each position's current state.
package depth

import (
	"sync"

	"github.com/ibflow/ingestd/internal/models"
)

// Book is the live L2 ladder for one symbol. It is owned exclusively by
// the realtime aggregator; all mutation goes through Insert/Update/Delete.
type Book struct {
	mu   sync.Mutex
	live map[int][]*models.DepthEntry
}

// NewBook creates an empty depth book.
func NewBook() *Book {
	return &Book{live: make(map[int][]*models.DepthEntry)}
}

// Insert appends a new Inserted entry at position, regardless of what was
// there before.
func (b *Book) Insert(position int, side models.DepthSide, price, volume float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.live[position] = append(b.live[position], &models.DepthEntry{
		Position: position,
		Price:    price,
		Volume:   volume,
		Side:     side,
		Status:   models.DepthInserted,
	})
}

// Update mutates the last entry at position in place if it is not
// Deleted; otherwise it behaves like Insert, per spec.
func (b *Book) Update(position int, side models.DepthSide, price, volume float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	entries := b.live[position]
	if len(entries) == 0 || entries[len(entries)-1].Status == models.DepthDeleted {
		b.live[position] = append(entries, &models.DepthEntry{
			Position: position,
			Price:    price,
			Volume:   volume,
			Side:     side,
			Status:   models.DepthInserted,
		})
		return
	}
	last := entries[len(entries)-1]
	last.Price = price
	last.Volume = volume
	last.Side = side
	last.Status = models.DepthUpdated
}

// Delete marks the last entry at position as Deleted without removing
// it; it still contributes to the minute's aggregate until rollover.
// Deleting a position with no live entry is a no-op — the broker never
// deletes a position it has not inserted.
func (b *Book) Delete(position int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	entries := b.live[position]
	if len(entries) == 0 {
		return
	}
	entries[len(entries)-1].Status = models.DepthDeleted
}

// Rollover snapshots every entry recorded at any position since the last
// rollover (the frozen L2 buffer for this minute) and resets the live
// book: positions whose last entry was Deleted are dropped entirely,
// positions still live keep only their current entry as the starting
// state of the next minute.
func (b *Book) Rollover() []models.DepthEntry {
	b.mu.Lock()
	defer b.mu.Unlock()

	var frozen []models.DepthEntry
	for pos, entries := range b.live {
		for _, e := range entries {
			frozen = append(frozen, *e)
		}
		last := entries[len(entries)-1]
		if last.Status == models.DepthDeleted {
			delete(b.live, pos)
			continue
		}
		b.live[pos] = []*models.DepthEntry{{
			Position: last.Position,
			Price:    last.Price,
			Volume:   last.Volume,
			Side:     last.Side,
			Status:   last.Status,
		}}
	}
	return frozen
}

// Empty reports whether the live book holds no positions at all, used
// by the aggregator's rollover edge case (skip a minute when the book is
// empty). A position still live from an earlier minute keeps the book
// non-empty even if no depth update arrived this minute.
func (b *Book) Empty() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.live) == 0
}
