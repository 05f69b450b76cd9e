package log

import (
	"context"
	"encoding/hex"
	"log/slog"
)

// SlogAdapter mirrors protocol events into an operational slog logger,
// at Debug level except for error events, which use Warn.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter returns an adapter writing to logger.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

// Log implements Logger.
func (a *SlogAdapter) Log(event Event) {
	level := slog.LevelDebug
	if event.Error != nil {
		level = slog.LevelWarn
	}
	if !a.logger.Enabled(context.Background(), level) {
		return
	}

	attrs := []slog.Attr{
		slog.String("conn_id", event.ConnectionID),
		slog.String("direction", event.Direction.String()),
		slog.String("layer", event.Layer.String()),
		slog.String("category", event.Category.String()),
	}
	attrs = appendNonEmpty(attrs, "port", event.Port)
	attrs = appendNonEmpty(attrs, "board", event.Board)
	attrs = append(attrs, payloadAttrs(event)...)

	a.logger.LogAttrs(context.Background(), level, "protocol", attrs...)
}

func payloadAttrs(event Event) []slog.Attr {
	switch {
	case event.Frame != nil:
		f := event.Frame
		return []slog.Attr{
			slog.Int("opcode", int(f.Opcode)),
			slog.Int("frame_size", f.Size),
			slog.String("data", hex.EncodeToString(f.Data)),
			slog.Bool("truncated", f.Truncated),
		}
	case event.Command != nil:
		c := event.Command
		attrs := []slog.Attr{slog.String("command", c.Name), slog.Any("args", c.Args)}
		if len(c.Values) > 0 {
			attrs = append(attrs, slog.Any("values", c.Values))
		}
		if c.Duration != nil {
			attrs = append(attrs, slog.Duration("duration", *c.Duration))
		}
		return attrs
	case event.StateChange != nil:
		sc := event.StateChange
		attrs := []slog.Attr{
			slog.String("entity", sc.Entity.String()),
			slog.String("old_state", sc.OldState),
			slog.String("new_state", sc.NewState),
		}
		if sc.Pin != nil {
			attrs = append(attrs, slog.Int("pin", *sc.Pin))
		}
		attrs = appendNonEmpty(attrs, "token", sc.Token)
		return appendNonEmpty(attrs, "reason", sc.Reason)
	case event.Error != nil:
		e := event.Error
		attrs := []slog.Attr{
			slog.String("error_layer", e.Layer.String()),
			slog.String("error_msg", e.Message),
			slog.String("error_context", e.Context),
		}
		return appendNonEmpty(attrs, "error_kind", e.Kind)
	}
	return nil
}

func appendNonEmpty(attrs []slog.Attr, key, value string) []slog.Attr {
	if value == "" {
		return attrs
	}
	return append(attrs, slog.String(key, value))
}

var _ Logger = (*SlogAdapter)(nil)
