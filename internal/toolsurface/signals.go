package toolsurface

import (
	"context"
	"strings"

	"claudima/internal/signalstore"
)

func argStringSlice(args map[string]any, key string) []string {
	raw, ok := args[key].([]any)
	if !ok {
		return nil
	}
	tags := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok && s != "" {
			tags = append(tags, s)
		}
	}
	return tags
}

var addSignalSpec = &Spec{
	Name:        "add_signal",
	Description: "Track a newly discovered research signal/opportunity.",
	Params: map[string]ParamSchema{
		"title": {Type: "string"},
		"notes": {Type: "string"},
		"tags":  {Type: "array", Description: "optional category tags"},
	},
	Required: []string{"title", "notes"},
	Execute: func(ctx context.Context, x *ExecContext, args map[string]any) *Result {
		if x.Signals == nil {
			return Errf("add_signal: signal tracking is disabled")
		}
		id, err := x.Signals.Add(argString(args, "title"), argString(args, "notes"), argStringSlice(args, "tags"))
		if err != nil {
			return Errf("add_signal: %v", err)
		}
		return Ok(id)
	},
}

var updateSignalSpec = &Spec{
	Name:        "update_signal",
	Description: "Update a tracked signal's status, advancing it through the research pipeline.",
	Params: map[string]ParamSchema{
		"id":     {Type: "string"},
		"status": {Type: "string", Description: "detected|researching|validated|actionable|building|shipped|dropped"},
		"notes":  {Type: "string", Description: "optional replacement notes"},
	},
	Required: []string{"id", "status"},
	Execute: func(ctx context.Context, x *ExecContext, args map[string]any) *Result {
		if x.Signals == nil {
			return Errf("update_signal: signal tracking is disabled")
		}
		status := signalstore.Status(strings.ToLower(argString(args, "status")))
		found, err := x.Signals.UpdateStatus(argString(args, "id"), status, argString(args, "notes"))
		if err != nil {
			return Errf("update_signal: %v", err)
		}
		if !found {
			return Errf("update_signal: signal %q not found", argString(args, "id"))
		}
		return Ok("")
	},
}

var notifyPeerSpec = &Spec{
	Name:        "notify_peer",
	Description: "Relay a message to a configured sibling bot instance (peer_bots); Telegram bots cannot message each other directly.",
	Params: map[string]ParamSchema{
		"peer_bot_id": {Type: "integer"},
		"chat_id":     {Type: "integer", Description: "the chat this relates to, for the peer's own context"},
		"text":        {Type: "string"},
	},
	Required: []string{"peer_bot_id", "text"},
	Execute: func(ctx context.Context, x *ExecContext, args map[string]any) *Result {
		if x.Peer == nil {
			return Errf("notify_peer: peer messaging is disabled")
		}
		peerID := argInt64(args, "peer_bot_id")
		if !peerConfigured(x.PeerBots, peerID) {
			return Errf("notify_peer: %d is not a configured peer bot", peerID)
		}
		if err := x.Peer.Send(peerID, argInt64(args, "chat_id"), argString(args, "text"), 0); err != nil {
			return Errf("notify_peer: %v", err)
		}
		return Ok("")
	},
}

func peerConfigured(peers []int64, id int64) bool {
	for _, p := range peers {
		if p == id {
			return true
		}
	}
	return false
}

var listSignalsSpec = &Spec{
	Name:        "list_signals",
	Description: "List currently tracked (non-shipped, non-dropped) research signals.",
	Params:      map[string]ParamSchema{},
	IsQuery:     true,
	Execute: func(ctx context.Context, x *ExecContext, args map[string]any) *Result {
		if x.Signals == nil {
			return Errf("list_signals: signal tracking is disabled")
		}
		return Ok(x.Signals.FormatForPrompt())
	},
}
