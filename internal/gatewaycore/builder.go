// Package gatewaycore is the top-level wiring layer: a fluent builder
// assembling the Archive, Context Buffer, Telegram Transport, Reasoner
// Bridge, Dispatch Engine, Moderation Pipeline and Scheduler into one
// supervised process. Grounded on the teacher's pkg/gateway/builder.go
// fluent-builder pattern, generalized from its multi-channel registry to
// claudima's single Telegram transport (spec.md's "no multi-tenant
// isolation" non-goal).
package gatewaycore

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"claudima/internal/archive"
	"claudima/internal/config"
	"claudima/internal/contextbuffer"
	"claudima/internal/dispatch"
	"claudima/internal/llmprovider"
	"claudima/internal/moderation"
	"claudima/internal/monitoring"
	"claudima/internal/peer"
	"claudima/internal/reasoner"
	"claudima/internal/scheduler"
	"claudima/internal/signalstore"
	"claudima/internal/telegram"
	"claudima/internal/toolsurface"
)

// contextBufferCapacity is the Context Buffer's fixed ring size (§2).
const contextBufferCapacity = 500

// Builder assembles one Gateway from a loaded Config/SystemConfig pair.
// All With* methods are optional; Build supplies sane defaults for
// anything left unset.
type Builder struct {
	cfg    *config.Config
	sysCfg *config.SystemConfig

	monitor      monitoring.Monitor
	imageGen     toolsurface.ImageGenerator
	tts          toolsurface.SpeechSynthesizer
	oembed       toolsurface.OEmbedClient
	transcriber  telegram.Transcriber
	docExtractor telegram.DocumentExtractor
}

// New starts a Builder from a loaded business Config and an optional
// SystemConfig (nil selects config.DefaultSystemConfig()).
func New(cfg *config.Config, sysCfg *config.SystemConfig) *Builder {
	if sysCfg == nil {
		sysCfg = config.DefaultSystemConfig()
	}
	return &Builder{cfg: cfg, sysCfg: sysCfg}
}

// WithMonitor injects an observability sink; nil (the default) disables
// the Monitor collaborator.
func (b *Builder) WithMonitor(m monitoring.Monitor) *Builder {
	b.monitor = m
	return b
}

// WithImageGen injects the text-to-image external collaborator.
func (b *Builder) WithImageGen(g toolsurface.ImageGenerator) *Builder {
	b.imageGen = g
	return b
}

// WithTTS injects the text-to-speech external collaborator.
func (b *Builder) WithTTS(t toolsurface.SpeechSynthesizer) *Builder {
	b.tts = t
	return b
}

// WithOEmbed injects the oEmbed lookup external collaborator.
func (b *Builder) WithOEmbed(o toolsurface.OEmbedClient) *Builder {
	b.oembed = o
	return b
}

// WithTranscriber injects the voice speech-to-text collaborator.
func (b *Builder) WithTranscriber(t telegram.Transcriber) *Builder {
	b.transcriber = t
	return b
}

// WithDocExtractor injects the non-text document-extraction collaborator.
func (b *Builder) WithDocExtractor(d telegram.DocumentExtractor) *Builder {
	b.docExtractor = d
	return b
}

// Build wires every component and starts the Telegram bot authorization
// handshake and the Reasoner subprocess's startup turn, returning a
// Gateway ready for Run. It does not yet start the long-poll loop, the
// scheduler, or the dispatch debounce timer — that happens in Run, so a
// caller can still inspect/override the assembled Gateway first.
func (b *Builder) Build(ctx context.Context) (*Gateway, error) {
	cfg, sys := b.cfg, b.sysCfg

	store, err := archive.Open(filepath.Join(cfg.DataDir, "database.db"))
	if err != nil {
		return nil, fmt.Errorf("gatewaycore: open archive: %w", err)
	}

	ctxBuf, err := contextbuffer.Load(filepath.Join(cfg.DataDir, "context.json"), contextBufferCapacity)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("gatewaycore: load context buffer: %w", err)
	}

	trust := config.NewTrustSet(cfg)

	registry := toolsurface.NewDefaultRegistry()

	transport, err := telegram.New(telegram.Config{
		Token:         cfg.TelegramBotToken,
		DataDir:       cfg.DataDir,
		MessageLimit:  0,
		LogChatID:     cfg.LogChatID,
		OwnerUserID:   firstOwner(cfg.OwnerIDs),
		AllowedGroups: cfg.AllowedGroups,
		Transcriber:   b.transcriber,
		DocExtractor:  b.docExtractor,
	})
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("gatewaycore: telegram transport: %w", err)
	}

	pipeline, err := buildModeration(cfg, sys, trust, transport)
	if err != nil {
		transport.Stop()
		store.Close()
		return nil, err
	}

	systemPrompt := dispatch.SystemPrompt(registry, dispatch.SystemPromptConfig{
		BotUsername: transport.BotUsername(),
		OwnerUserID: firstOwner(cfg.OwnerIDs),
		Personality: cfg.Personality,
	})
	bridge, err := reasoner.Start(ctx, cfg.ReasonerModel, systemPrompt, filepath.Join(cfg.DataDir, "session_id"))
	if err != nil {
		transport.Stop()
		store.Close()
		return nil, fmt.Errorf("gatewaycore: start reasoner bridge: %w", err)
	}

	signals, err := signalstore.Load(filepath.Join(cfg.DataDir, "signals.json"))
	if err != nil {
		transport.Stop()
		bridge.Close()
		store.Close()
		return nil, fmt.Errorf("gatewaycore: load signal store: %w", err)
	}

	trustedChannels := make(moderation.TrustedChannels, len(cfg.TrustedChannels))
	for _, id := range cfg.TrustedChannels {
		trustedChannels[id] = struct{}{}
	}

	peerSender := peer.Sender{DataDir: cfg.DataDir, BotID: transport.BotID()}

	engine := dispatch.New(dispatch.Deps{
		Archive:         store,
		ContextBuf:      ctxBuf,
		Registry:        registry,
		Bridge:          bridge,
		Transport:       transport,
		Trust:           trust,
		Moderation:      pipeline,
		ImageGen:        b.imageGen,
		TTS:             b.tts,
		OEmbed:          b.oembed,
		Signals:         signals,
		Peer:            peerSender,
		PeerBots:        cfg.PeerBots,
		Monitor:         b.monitor,
		Signaler:        transport,
		MemoriesDir:     filepath.Join(cfg.DataDir, "memories"),
		FeedbackLog:     filepath.Join(cfg.DataDir, "feedback.log"),
		OwnerUserID:     firstOwner(cfg.OwnerIDs),
		DryRun:          cfg.DryRun,
		TrustedChannels: trustedChannels,
	})

	sched := scheduler.New(store, transport, sys.ReminderPoll(), time.Duration(cfg.ScanIntervalMinutes)*time.Minute, cfg.FocusTopics, signals.FormatForPrompt)

	return &Gateway{
		cfg:       cfg,
		sys:       sys,
		Store:     store,
		ContextBuf: ctxBuf,
		Transport: transport,
		Bridge:    bridge,
		Engine:    engine,
		Scheduler: sched,
		Registry:  registry,
	}, nil
}

func buildModeration(cfg *config.Config, sys *config.SystemConfig, trust *config.TrustSet, enforcer moderation.Enforcer) (*moderation.Pipeline, error) {
	prefilter, err := moderation.NewPrefilter(cfg.SpamPatterns, cfg.SafePatterns)
	if err != nil {
		return nil, fmt.Errorf("gatewaycore: compile moderation patterns: %w", err)
	}

	var classifier *moderation.Classifier
	if len(cfg.ClassifierLLM) > 0 {
		client, err := llmprovider.NewFromConfig(cfg.ClassifierLLM, sys.MaxRetries, sys.RetryDelay())
		if err != nil {
			return nil, fmt.Errorf("gatewaycore: build classifier LLM: %w", err)
		}
		classifier = moderation.NewClassifier(client)
	}

	return moderation.NewPipeline(trust, prefilter, classifier, enforcer, cfg.MaxStrikes, cfg.DryRun), nil
}

func firstOwner(ids []int64) int64 {
	if len(ids) == 0 {
		return 0
	}
	return ids[0]
}
