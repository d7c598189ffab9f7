package registry

import (
    "context"
    "path/filepath"
    "testing"

    "sitewarden/internal/config"
    "sitewarden/internal/database"
)

func openStore(t *testing.T) *database.BoltStore {
    t.Helper()
    store, err := database.NewBoltStore(filepath.Join(t.TempDir(), "registry.db"))
    if err != nil {
        t.Fatalf("NewBoltStore: %v", err)
    }
    t.Cleanup(func() { store.Close() })
    return store
}

func TestSync_CreateUpdatePurge(t *testing.T) {
    ctx := context.Background()
    store := openStore(t)

    initial := []config.TargetConfig{
        {ID: "a", Name: "A", URL: "https://a.example"},
        {ID: "b", Name: "B", URL: "https://b.example"},
    }
    res, err := Sync(ctx, store, initial, false)
    if err != nil {
        t.Fatalf("Sync: %v", err)
    }
    if res.Created != 2 {
        t.Fatalf("expected 2 created, got %+v", res)
    }

    store.RecordCheck(ctx, database.TargetCheckUpdate{TargetID: "a", Status: database.StatusOK, Hash: "h1"})
    store.RecordCheck(ctx, database.TargetCheckUpdate{TargetID: "b", Status: database.StatusOK, Hash: "h2"})

    off := false
    next := []config.TargetConfig{
        {ID: "a", Name: "A renamed", URL: "https://a.example", Enabled: &off},
        {ID: "c", Name: "C", URL: "https://c.example"},
    }
    res, err = Sync(ctx, store, next, true)
    if err != nil {
        t.Fatalf("Sync: %v", err)
    }
    if res.Created != 1 || res.Updated != 1 || res.Purged != 1 {
        t.Errorf("unexpected sync result %+v", res)
    }

    a, err := store.GetTarget(ctx, "a")
    if err != nil {
        t.Fatalf("GetTarget: %v", err)
    }
    if a.Name != "A renamed" || a.Enabled {
        t.Errorf("target a not updated: %+v", a)
    }
    if a.LastHash != "h1" {
        t.Errorf("rename must keep the fingerprint, got %q", a.LastHash)
    }

    if _, err := store.GetTarget(ctx, "b"); err != database.ErrTargetNotFound {
        t.Errorf("expected b to be purged, got %v", err)
    }
}

func TestSync_URLChangeResetsFingerprint(t *testing.T) {
    ctx := context.Background()
    store := openStore(t)

    Sync(ctx, store, []config.TargetConfig{{ID: "a", URL: "https://a.example"}}, false)
    store.RecordCheck(ctx, database.TargetCheckUpdate{TargetID: "a", Status: database.StatusOK, Hash: "h1"})

    Sync(ctx, store, []config.TargetConfig{{ID: "a", URL: "https://a.example/new"}}, false)

    a, _ := store.GetTarget(ctx, "a")
    if a.LastHash != "" || a.LastStatus != database.StatusUnknown {
        t.Errorf("expected fingerprint reset after URL change, got %+v", a)
    }
}
