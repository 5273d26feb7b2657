package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mmynk/storefront/internal/models"
)

// mirrorEntry is the persisted layout of one cartItems entry. The quantity
// field keeps the remote API's "quality" spelling so mirrors written by the
// browser storefront stay readable.
type mirrorEntry struct {
	ProductID string `json:"productId"`
	Quality   int    `json:"quality"`
}

// LoadCartMirror reads the cartItems key. Missing or unparsable data yields
// an empty collection; only storage errors are returned.
func LoadCartMirror(ctx context.Context, store Store) ([]models.MirrorItem, error) {
	raw, ok, err := store.Get(ctx, KeyCartItems)
	if err != nil {
		return nil, fmt.Errorf("failed to read cart mirror: %w", err)
	}
	if !ok || raw == "" {
		return []models.MirrorItem{}, nil
	}

	var entries []mirrorEntry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		slog.Warn("Cart mirror unreadable, starting empty", "error", err)
		return []models.MirrorItem{}, nil
	}

	items := make([]models.MirrorItem, 0, len(entries))
	for _, entry := range entries {
		if entry.ProductID == "" {
			continue
		}
		items = append(items, models.MirrorItem{
			ProductID: entry.ProductID,
			Quantity:  models.ClampQuantity(entry.Quality),
		})
	}
	return items, nil
}

// SaveCartMirror replaces the cartItems key with items.
func SaveCartMirror(ctx context.Context, store Store, items []models.MirrorItem) error {
	entries := make([]mirrorEntry, len(items))
	for i, item := range items {
		entries[i] = mirrorEntry{ProductID: item.ProductID, Quality: item.Quantity}
	}
	raw, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("failed to encode cart mirror: %w", err)
	}
	if err := store.Set(ctx, KeyCartItems, string(raw)); err != nil {
		return fmt.Errorf("failed to write cart mirror: %w", err)
	}
	return nil
}

// MirrorFromLines projects cart lines onto the durable mirror layout.
func MirrorFromLines(lines []models.CartLine) []models.MirrorItem {
	items := make([]models.MirrorItem, 0, len(lines))
	for _, line := range lines {
		items = append(items, models.MirrorItem{ProductID: line.ProductID, Quantity: line.Quantity})
	}
	return items
}
