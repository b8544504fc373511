package sandbox

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func TestStorageSaveAndGet(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	msg := &Message{
		ID:         "msg-1",
		Token:      "token-1",
		Platform:   "android",
		Title:      "T",
		Body:       "B",
		CampaignID: "c1",
		CapturedAt: time.Now(),
	}
	if err := storage.Save(ctx, msg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := storage.Get(ctx, "msg-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got == nil || got.Token != "token-1" {
		t.Errorf("unexpected message: %+v", got)
	}

	missing, err := storage.Get(ctx, "nope")
	if err != nil || missing != nil {
		t.Errorf("expected nil for missing id, got %+v, %v", missing, err)
	}
}

func TestStorageListNewestFirst(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()
	base := time.Now()

	for i := 0; i < 5; i++ {
		campaign := "a"
		if i%2 == 1 {
			campaign = "b"
		}
		storage.Save(ctx, &Message{
			ID:         fmt.Sprintf("m%d", i),
			CampaignID: campaign,
			CapturedAt: base.Add(time.Duration(i) * time.Second),
			Payload:    []byte(`{"token":"x"}`),
		})
	}

	all, err := storage.List(ctx, ListFilter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 5 || all[0].ID != "m4" {
		t.Fatalf("unexpected order: first=%s len=%d", all[0].ID, len(all))
	}
	if all[0].Payload != nil {
		t.Error("List should omit payloads")
	}

	byCampaign, _ := storage.List(ctx, ListFilter{CampaignID: "b"})
	if len(byCampaign) != 2 {
		t.Errorf("expected 2 messages for campaign b, got %d", len(byCampaign))
	}

	page, _ := storage.List(ctx, ListFilter{Limit: 2, Offset: 1})
	if len(page) != 2 || page[0].ID != "m3" {
		t.Errorf("unexpected page: %d items", len(page))
	}
}

func TestStorageClear(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	storage.Save(ctx, &Message{ID: "old", CampaignID: "a", CapturedAt: time.Now().Add(-48 * time.Hour)})
	storage.Save(ctx, &Message{ID: "new", CampaignID: "a", CapturedAt: time.Now()})
	storage.Save(ctx, &Message{ID: "other", CampaignID: "b", CapturedAt: time.Now()})

	n, err := storage.Clear(ctx, "", 24*time.Hour)
	if err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if n != 1 {
		t.Errorf("cleared %d, want 1", n)
	}

	n, _ = storage.Clear(ctx, "b", 0)
	if n != 1 {
		t.Errorf("cleared %d for campaign b, want 1", n)
	}

	stats, _ := storage.Stats(ctx)
	if stats.Total != 1 || stats.ByCampaign["a"] != 1 {
		t.Errorf("unexpected stats after clear: %+v", stats)
	}
}
