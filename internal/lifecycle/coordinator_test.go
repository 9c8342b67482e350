package lifecycle

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/jmylchreest/refresh-agent/internal/clock"
	"github.com/jmylchreest/refresh-agent/internal/models"
	"github.com/jmylchreest/refresh-agent/internal/scheduler"
	"github.com/jmylchreest/refresh-agent/internal/session"
	"github.com/jmylchreest/refresh-agent/internal/site"
	"github.com/jmylchreest/refresh-agent/internal/store"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type nopTabs struct{}

func (nopTabs) URL(context.Context, models.TabID) (string, error) {
	return "https://www.goofish.com/", nil
}

func (nopTabs) Reload(context.Context, models.TabID) error { return nil }

type harness struct {
	coord    *Coordinator
	sched    *scheduler.Scheduler
	sessions *session.Store
	db       *store.SQLiteStore
	clock    *clock.Fake
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db, err := store.NewSQLiteStore(":memory:", testLogger)
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	clk := clock.NewFake(epoch)
	target := site.New("goofish.com")
	sessions := session.NewStore(db, clk, models.DefaultGlobalConfig(), testLogger)
	sched := scheduler.New(sessions, nopTabs{}, target, clk, testLogger)
	t.Cleanup(sched.Close)

	return &harness{
		coord:    New(sched, sessions, target, testLogger),
		sched:    sched,
		sessions: sessions,
		db:       db,
		clock:    clk,
	}
}

func TestRecover_RestoresActiveRecords(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if err := h.db.SaveRefresh(ctx, "5", models.RefreshConfig{Active: true, MinInterval: 40, MaxInterval: 50}); err != nil {
		t.Fatalf("SaveRefresh() error = %v", err)
	}
	if err := h.db.SaveRefresh(ctx, "6", models.RefreshConfig{Active: false}); err != nil {
		t.Fatalf("SaveRefresh() error = %v", err)
	}

	n, err := h.coord.Recover(ctx)
	if err != nil {
		t.Fatalf("Recover() error = %v", err)
	}
	if n != 1 {
		t.Errorf("Recover() = %d, want 1", n)
	}

	status := h.sched.Status(ctx, "5")
	if !status.IsActive || !status.TimerLive {
		t.Errorf("status(5) = %+v, want active with live timer", status)
	}
	if status.RemainingSeconds < 40 || status.RemainingSeconds > 50 {
		t.Errorf("RemainingSeconds = %d, want within [40, 50]", status.RemainingSeconds)
	}
	if h.sched.Scheduled("6") {
		t.Error("inactive record was recovered")
	}
}

func TestRecover_FillsMissingBounds(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if err := h.db.SaveRefresh(ctx, "9", models.RefreshConfig{Active: true}); err != nil {
		t.Fatalf("SaveRefresh() error = %v", err)
	}
	if _, err := h.coord.Recover(ctx); err != nil {
		t.Fatalf("Recover() error = %v", err)
	}

	sess, _ := h.sessions.Session("9")
	if sess.MinInterval != 45 || sess.MaxInterval != 60 {
		t.Errorf("recovered bounds = %d-%d, want 45-60", sess.MinInterval, sess.MaxInterval)
	}
}

func TestTabNavigated(t *testing.T) {
	tests := []struct {
		name       string
		url        string
		autoEnable bool
		scheduled  bool
		want       bool
	}{
		{"target with auto-enable", "https://www.goofish.com/item?id=1", true, false, true},
		{"target without auto-enable", "https://www.goofish.com/", false, false, false},
		{"off target", "https://example.com/", true, false, false},
		{"already scheduled", "https://www.goofish.com/", true, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			ctx := context.Background()

			global := models.GlobalConfig{MinInterval: 90, MaxInterval: 120, AutoEnable: tt.autoEnable}
			if err := h.sessions.SaveGlobal(ctx, global); err != nil {
				t.Fatalf("SaveGlobal() error = %v", err)
			}
			if tt.scheduled {
				h.sched.Start(ctx, "1", 45, 60)
			}

			if got := h.coord.TabNavigated(ctx, "1", tt.url); got != tt.want {
				t.Errorf("TabNavigated() = %v, want %v", got, tt.want)
			}

			if tt.want {
				sess, _ := h.sessions.Session("1")
				if sess.MinInterval != 90 || sess.MaxInterval != 120 {
					t.Errorf("bounds = %d-%d, want global 90-120", sess.MinInterval, sess.MaxInterval)
				}
			}
			if tt.scheduled && h.clock.Pending() != 1 {
				t.Errorf("pending timers = %d, want 1", h.clock.Pending())
			}
		})
	}
}

func TestTabClosed_RemovesEverything(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	var closed []models.TabID
	h.coord.OnClosed(func(id models.TabID) { closed = append(closed, id) })

	h.sched.Start(ctx, "3", 45, 60)
	h.sessions.RecordVerify(ctx, "3")

	h.coord.TabClosed(ctx, "3")

	if h.sched.Scheduled("3") || h.clock.Pending() != 0 {
		t.Error("timer survived tab closure")
	}
	if cfg, _ := h.db.LoadRefresh(ctx, "3"); cfg != nil {
		t.Errorf("refresh record = %+v, want deleted", cfg)
	}
	if st, _ := h.db.LoadStats(ctx, "3"); st != nil {
		t.Errorf("stats record = %+v, want deleted", st)
	}
	if len(closed) != 1 || closed[0] != "3" {
		t.Errorf("closed callbacks = %v, want [3]", closed)
	}
}
