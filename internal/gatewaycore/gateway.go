package gatewaycore

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"claudima/internal/archive"
	"claudima/internal/config"
	"claudima/internal/contextbuffer"
	"claudima/internal/dispatch"
	"claudima/internal/peer"
	"claudima/internal/reasoner"
	"claudima/internal/scheduler"
	"claudima/internal/telegram"
	"claudima/internal/toolsurface"
)

// peerPollInterval is how often the shared-directory inbox is checked for
// messages from sibling bot instances (internal/peer).
const peerPollInterval = 10 * time.Second

// Gateway is one fully-wired, running instance of claudima: one Telegram
// bot identity, one Reasoner subprocess, one Archive. The outer process
// supervisor (main.go) rebuilds a fresh Gateway on config reload or on an
// unrecoverable Bridge/Archive error rather than mutating this one in
// place, mirroring the teacher's `runAgent` crash-backoff loop.
type Gateway struct {
	cfg *config.Config
	sys *config.SystemConfig

	Store      *archive.Store
	ContextBuf *contextbuffer.Buffer
	Transport  *telegram.Transport
	Bridge     *reasoner.Bridge
	Engine     *dispatch.Engine
	Scheduler  *scheduler.Scheduler
	Registry   *toolsurface.Registry
}

// Run starts the dispatch debounce timer, the Telegram long-poll loop,
// and the scheduler's reminder/scan loops, then blocks until ctx is
// cancelled. The Telegram loop runs inline on the calling goroutine so
// Run's return signals the transport has actually stopped polling.
func (g *Gateway) Run(ctx context.Context) {
	g.Engine.Start(ctx, g.sys.Debounce())
	g.Scheduler.Run(ctx, g.Engine)
	if len(g.cfg.PeerBots) > 0 {
		go g.peerLoop(ctx)
	}

	slog.Info("gateway: running", "bot", g.Transport.BotUsername())
	g.Transport.Run(ctx, g.Engine)
}

// peerLoop polls the shared-directory inbox (internal/peer) for messages
// relayed by sibling bot instances and injects each as a synthetic system
// message, the inbound half of the notify_peer tool's outbound relay.
func (g *Gateway) peerLoop(ctx context.Context) {
	ticker := time.NewTicker(peerPollInterval)
	defer ticker.Stop()
	myBotID := g.Transport.BotID()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			messages, err := peer.Receive(g.cfg.DataDir, myBotID)
			if err != nil {
				slog.Warn("gateway: peer receive error", "error", err)
				continue
			}
			for _, msg := range messages {
				g.Engine.EnqueueSystemMessage(fmt.Sprintf(
					"[peer message from bot %d, chat %d]: %s", msg.FromBotID, msg.ChatID, msg.Text))
			}
		}
	}
}

// Stop performs graceful shutdown in dependency order: stop accepting
// new Telegram updates, stop the dispatch debounce timer, close the
// reasoner subprocess's stdin, snapshot the Context Buffer to disk, and
// close the Archive's connection last.
func (g *Gateway) Stop() {
	g.Transport.Stop()
	g.Engine.Stop()
	if err := g.Bridge.Close(); err != nil {
		slog.Warn("gateway: reasoner bridge close error", "error", err)
	}
	if err := g.ContextBuf.Persist(g.contextBufferPath()); err != nil {
		slog.Warn("gateway: context buffer persist error", "error", err)
	}
	if err := g.Store.Close(); err != nil {
		slog.Warn("gateway: archive close error", "error", err)
	}
}

func (g *Gateway) contextBufferPath() string {
	return filepath.Join(g.cfg.DataDir, "context.json")
}
