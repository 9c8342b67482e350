package browser

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/jmylchreest/refresh-agent/internal/challenge"
	"github.com/jmylchreest/refresh-agent/internal/clock"
	"github.com/jmylchreest/refresh-agent/internal/config"
	"github.com/jmylchreest/refresh-agent/internal/logging"
	"github.com/jmylchreest/refresh-agent/internal/models"
	"github.com/jmylchreest/refresh-agent/internal/responder"
	"github.com/jmylchreest/refresh-agent/internal/session"
)

// pageAgent is the observer and responder pair attached to one tab.
type pageAgent struct {
	ID       string
	TabID    models.TabID
	page     *Page
	agent    *responder.Agent
	observer *challenge.Observer
	cancel   context.CancelFunc
}

// Agents runs one page agent per target-site tab.
type Agents struct {
	mu     sync.Mutex
	agents map[models.TabID]*pageAgent
	wg     sync.WaitGroup

	host     *Host
	sessions *session.Store
	detector *challenge.Detector
	clk      clock.Clock
	cfg      *config.Config
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// NewAgents creates an agent manager. Agents live until Stop or Close.
func NewAgents(host *Host, sessions *session.Store, detector *challenge.Detector, clk clock.Clock, cfg *config.Config, logger *slog.Logger) *Agents {
	ctx, cancel := context.WithCancel(context.Background())
	return &Agents{
		agents:   make(map[models.TabID]*pageAgent),
		host:     host,
		sessions: sessions,
		detector: detector,
		clk:      clk,
		cfg:      cfg,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Ensure attaches an agent to the tab if it has none.
func (a *Agents) Ensure(ctx context.Context, tabID models.TabID) error {
	_, err := a.ensure(ctx, tabID)
	return err
}

func (a *Agents) ensure(ctx context.Context, tabID models.TabID) (*pageAgent, error) {
	a.mu.Lock()
	if pa, ok := a.agents[tabID]; ok {
		a.mu.Unlock()
		return pa, nil
	}
	a.mu.Unlock()

	p, err := a.host.Page(ctx, tabID)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if pa, ok := a.agents[tabID]; ok {
		return pa, nil
	}
	if a.ctx.Err() != nil {
		return nil, fmt.Errorf("agents closed")
	}

	pa := a.build(tabID, NewPage(p, a.detector.Signatures()))
	runCtx, cancel := context.WithCancel(logging.WithTabID(a.ctx, string(tabID)))
	pa.cancel = cancel
	a.agents[tabID] = pa

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		pa.observer.Run(runCtx)
	}()

	a.logger.Info("page agent attached", "tab_id", tabID, "agent_id", pa.ID)
	return pa, nil
}

func (a *Agents) build(tabID models.TabID, page *Page) *pageAgent {
	logger := a.logger.With("tab_id", tabID)

	report := func(ctx context.Context) {
		st := a.sessions.RecordVerify(ctx, tabID)
		logger.Info("challenge attempt completed", "verify_count", st.VerifyCount)
	}
	reload := func(ctx context.Context) error {
		return a.host.Reload(ctx, tabID)
	}

	r := responder.New(page, page, report, a.clk, a.cfg.ResolveCooldown, logger)
	gate := responder.NewGate(a.clk, a.cfg.ReloadCooldown, reload, logger)
	agent := responder.NewAgent(r, gate, a.cfg.FailureReloadDelay, a.cfg.ConnectionReloadDelay, logger)
	observer := challenge.NewObserver(page, a.detector, agent, a.clk, a.cfg.ChallengePollInterval, a.cfg.ErrorPollInterval, logger)

	return &pageAgent{
		ID:       ulid.Make().String(),
		TabID:    tabID,
		page:     page,
		agent:    agent,
		observer: observer,
	}
}

// Stop detaches the tab's agent, cancelling any pending gated reload.
func (a *Agents) Stop(tabID models.TabID) {
	a.mu.Lock()
	pa, ok := a.agents[tabID]
	delete(a.agents, tabID)
	a.mu.Unlock()

	if !ok {
		return
	}
	pa.cancel()
	pa.agent.Gate().Close()
	a.logger.Info("page agent detached", "tab_id", tabID, "agent_id", pa.ID)
}

// MarkReload tells the tab's gate a scheduled reload was just issued.
func (a *Agents) MarkReload(tabID models.TabID) {
	a.mu.Lock()
	pa, ok := a.agents[tabID]
	a.mu.Unlock()
	if ok {
		pa.agent.Gate().Mark()
	}
}

// TestSlider forces an immediate detection and resolution attempt on the tab.
func (a *Agents) TestSlider(ctx context.Context, tabID models.TabID) (challenge.Detection, error) {
	pa, err := a.ensure(ctx, tabID)
	if err != nil {
		return challenge.Detection{Type: challenge.TypeNone}, err
	}
	return pa.agent.ForceTest(ctx, pa.page, a.detector)
}

// Close stops every agent and waits for their observers to exit.
func (a *Agents) Close() {
	a.mu.Lock()
	tabs := make([]models.TabID, 0, len(a.agents))
	for id := range a.agents {
		tabs = append(tabs, id)
	}
	a.mu.Unlock()

	for _, id := range tabs {
		a.Stop(id)
	}
	a.cancel()
	a.wg.Wait()
}
