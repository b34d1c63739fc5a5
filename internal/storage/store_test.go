package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	logx "fooddates/pkg/logx"
)

func openForTest(t *testing.T, driver string) Store {
	t.Helper()
	cfg := Config{Driver: driver}
	switch driver {
	case "file":
		cfg.Path = filepath.Join(t.TempDir(), "state.json")
	case "sqlite":
		cfg.Path = filepath.Join(t.TempDir(), "state.db")
	}
	st, err := Open(cfg, logx.Nop())
	if err != nil {
		t.Fatalf("open %s: %v", driver, err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestStoreContract(t *testing.T) {
	t.Parallel()

	for _, driver := range []string{"memory", "file", "sqlite"} {
		driver := driver
		t.Run(driver, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			st := openForTest(t, driver)

			if _, ok, err := st.GetPref(ctx, "theme_mode"); err != nil || ok {
				t.Fatalf("GetPref on empty store: ok=%v err=%v", ok, err)
			}
			if err := st.PutPref(ctx, "theme_mode", "DARK"); err != nil {
				t.Fatalf("PutPref: %v", err)
			}
			if err := st.PutPref(ctx, "theme_mode", "LIGHT"); err != nil {
				t.Fatalf("PutPref overwrite: %v", err)
			}
			if v, ok, err := st.GetPref(ctx, "theme_mode"); err != nil || !ok || v != "LIGHT" {
				t.Fatalf("GetPref=%q ok=%v err=%v", v, ok, err)
			}
			if err := st.PutPrefs(ctx, map[string]string{"notification_hour": "7", "notification_minute": "45"}); err != nil {
				t.Fatalf("PutPrefs: %v", err)
			}
			for k, want := range map[string]string{"notification_hour": "7", "notification_minute": "45"} {
				if v, ok, err := st.GetPref(ctx, k); err != nil || !ok || v != want {
					t.Fatalf("GetPref(%s)=%q ok=%v err=%v", k, v, ok, err)
				}
			}

			milk := Item{ID: "b", Name: "milk", ExpiresOn: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), CreatedAt: time.Now()}
			eggs := Item{ID: "a", Name: "eggs", ExpiresOn: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), CreatedAt: time.Now()}
			for _, it := range []Item{milk, eggs} {
				if err := st.PutItem(ctx, it); err != nil {
					t.Fatalf("PutItem: %v", err)
				}
			}
			if err := st.PutItem(ctx, Item{ID: "c"}); err == nil {
				t.Fatalf("expected validation error for item without name")
			}

			items, err := st.ListItems(ctx)
			if err != nil {
				t.Fatalf("ListItems: %v", err)
			}
			if len(items) != 2 || items[0].Name != "eggs" || items[1].Name != "milk" {
				t.Fatalf("ListItems order: %+v", items)
			}
			if !items[0].ExpiresOn.Equal(eggs.ExpiresOn) {
				t.Fatalf("ExpiresOn round trip: %v", items[0].ExpiresOn)
			}

			got, err := st.GetItem(ctx, "b")
			if err != nil || got.Name != "milk" {
				t.Fatalf("GetItem: %+v err=%v", got, err)
			}
			if err := st.DeleteItem(ctx, "b"); err != nil {
				t.Fatalf("DeleteItem: %v", err)
			}
			if err := st.DeleteItem(ctx, "b"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("DeleteItem twice: %v", err)
			}
			if _, err := st.GetItem(ctx, "b"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("GetItem deleted: %v", err)
			}

			if _, ok, _ := st.LastCheckRun(ctx); ok {
				t.Fatalf("expected no check run yet")
			}
			run := CheckRun{At: time.Now(), Expired: 1, Today: 2, Notified: true, TookMS: 5}
			if err := st.AppendCheckRun(ctx, run); err != nil {
				t.Fatalf("AppendCheckRun: %v", err)
			}
			last, ok, err := st.LastCheckRun(ctx)
			if err != nil || !ok || last.Today != 2 || !last.Notified {
				t.Fatalf("LastCheckRun=%+v ok=%v err=%v", last, ok, err)
			}

			until := time.Now().Add(time.Hour).Truncate(time.Millisecond)
			if err := st.PutDedup(ctx, "k", until); err != nil {
				t.Fatalf("PutDedup: %v", err)
			}
			u, ok, err := st.GetDedup(ctx, "k")
			if err != nil || !ok || !u.Equal(until) {
				t.Fatalf("GetDedup=%v ok=%v err=%v", u, ok, err)
			}
		})
	}
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.json")
	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := st.PutPref(ctx, "notification_hour", "7"); err != nil {
		t.Fatal(err)
	}
	if err := st.PutItem(ctx, Item{ID: "x", Name: "yogurt", ExpiresOn: time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)}); err != nil {
		t.Fatal(err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	st2, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer st2.Close()
	if v, ok, _ := st2.GetPref(ctx, "notification_hour"); !ok || v != "7" {
		t.Fatalf("pref after reopen: %q %v", v, ok)
	}
	items, _ := st2.ListItems(ctx)
	if len(items) != 1 || items[0].Name != "yogurt" {
		t.Fatalf("items after reopen: %+v", items)
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	t.Parallel()

	if _, err := Open(Config{Driver: "postgres"}, logx.Nop()); err == nil {
		t.Fatalf("expected error")
	}
}

func TestDateOf(t *testing.T) {
	t.Parallel()

	loc := time.FixedZone("UTC+9", 9*3600)
	got := DateOf(time.Date(2026, 4, 30, 23, 30, 0, 0, loc))
	want := time.Date(2026, 4, 30, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("DateOf=%v want %v", got, want)
	}
	if d, err := ParseDate("2026-04-30"); err != nil || !d.Equal(want) {
		t.Fatalf("ParseDate=%v err=%v", d, err)
	}
}
