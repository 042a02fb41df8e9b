package main

import (
	"context"
	"path/filepath"
	"testing"
)

func testSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(StoreConfig{
		SQLitePath: filepath.Join(t.TempDir(), "nested", "startpage.db"),
		WALMode:    true,
	})
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStore_EmptyGetAll(t *testing.T) {
	store := testSQLiteStore(t)

	prefs, err := store.GetAll(context.Background())
	if err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	if prefs != nil {
		t.Fatalf("expected nil prefs for an empty store, got %v", prefs)
	}
}

func TestSQLiteStore_SetAndGet(t *testing.T) {
	store := testSQLiteStore(t)
	ctx := context.Background()

	if err := store.Set(ctx, KeyTheme, "dark"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := store.Set(ctx, KeyTemperatureUnit, "C"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	val, found, err := store.Get(ctx, KeyTheme)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !found || val != "dark" {
		t.Fatalf("Get(theme) = %q, %v; want dark, true", val, found)
	}

	_, found, err = store.Get(ctx, KeyWallpaperURL)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if found {
		t.Fatal("expected wallpaperUrl to be absent")
	}

	prefs, err := store.GetAll(ctx)
	if err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	if len(prefs) != 2 || prefs[KeyTheme] != "dark" || prefs[KeyTemperatureUnit] != "C" {
		t.Fatalf("unexpected prefs: %v", prefs)
	}
}

func TestSQLiteStore_SetOverwrites(t *testing.T) {
	store := testSQLiteStore(t)
	ctx := context.Background()

	store.Set(ctx, KeyWallpaperBlur, "8")
	if err := store.Set(ctx, KeyWallpaperBlur, "20"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	val, _, err := store.Get(ctx, KeyWallpaperBlur)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if val != "20" {
		t.Fatalf("expected 20, got %q", val)
	}
}

func TestSQLiteStore_Delete(t *testing.T) {
	store := testSQLiteStore(t)
	ctx := context.Background()

	store.Set(ctx, KeyTheme, "dark")
	store.Set(ctx, KeyWallpaperBlur, "12")

	if err := store.Delete(ctx, KeyTheme); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	// deleting an absent key is not an error
	if err := store.Delete(ctx, KeyTheme); err != nil {
		t.Fatalf("Delete absent: %v", err)
	}

	prefs, _ := store.GetAll(ctx)
	if _, ok := prefs[KeyTheme]; ok {
		t.Fatal("expected theme to be deleted")
	}
	if prefs[KeyWallpaperBlur] != "12" {
		t.Fatalf("expected wallpaperBlur to remain, got %v", prefs)
	}
}

func TestSQLiteStore_DeleteAll(t *testing.T) {
	store := testSQLiteStore(t)
	ctx := context.Background()

	store.Set(ctx, KeyTheme, "dark")
	store.Set(ctx, KeyWeatherLocation, "Paris")

	if err := store.DeleteAll(ctx); err != nil {
		t.Fatalf("DeleteAll: %v", err)
	}

	prefs, err := store.GetAll(ctx)
	if err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	if prefs != nil {
		t.Fatalf("expected nil prefs after DeleteAll, got %v", prefs)
	}
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "startpage.db")
	ctx := context.Background()

	store, err := NewSQLiteStore(StoreConfig{SQLitePath: path})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := store.Set(ctx, KeySearchEngineIndex, "1"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	store, err = NewSQLiteStore(StoreConfig{SQLitePath: path})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer store.Close()

	val, found, err := store.Get(ctx, KeySearchEngineIndex)
	if err != nil || !found || val != "1" {
		t.Fatalf("Get after reopen = %q, %v, %v", val, found, err)
	}
}

func TestSQLiteStore_BacksPreferences(t *testing.T) {
	store := testSQLiteStore(t)
	p := NewPreferences(store, DefaultsConfig{}, testLogger())
	ctx := context.Background()

	if _, err := p.AddSearchEngine(ctx, SearchEngine{Name: "DuckDuckGo", URLTemplate: "https://duckduckgo.com/?q=%s"}); err != nil {
		t.Fatalf("AddSearchEngine: %v", err)
	}
	if err := p.SetActiveSearchEngine(ctx, 2); err != nil {
		t.Fatalf("SetActiveSearchEngine: %v", err)
	}

	engine, index, err := p.ActiveSearchEngine(ctx)
	if err != nil {
		t.Fatalf("ActiveSearchEngine: %v", err)
	}
	if index != 2 || engine.Name != "DuckDuckGo" {
		t.Fatalf("active engine = %d %q, want 2 DuckDuckGo", index, engine.Name)
	}
}
