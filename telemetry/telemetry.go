// Package telemetry bridges the bootloader's slog output to a text sink and
// an optional fleet beacon, the same split the teacher draws between
// telemetry/slog.go's console text handler and its OTLP queue. Here the
// second sink is the beacon package instead of an OTLP buffer, but the
// shape — wrap a base handler, forward every record, additionally notify a
// side channel for Info-and-above — is the same.
package telemetry

import (
	"context"
	"log/slog"
)

// Severity mirrors the OTLP severity numbers the teacher's handler maps
// slog levels onto, reused here for the beacon's wire events.
type Severity uint8

const (
	SeverityDebug Severity = 5
	SeverityInfo  Severity = 9
	SeverityWarn  Severity = 13
	SeverityError Severity = 17
)

// Notifier receives Info-and-above records, mirroring the teacher's
// Log(severity, msg) call into its telemetry queue. The beacon package
// implements this to publish entry/error events over MQTT; nil means no
// side channel is attached.
type Notifier interface {
	Notify(sev Severity, msg string)
}

// Handler is a slog.Handler that writes to a base handler (normally a
// slog.TextHandler over stderr) and forwards Info-and-above records to an
// optional Notifier.
type Handler struct {
	base     slog.Handler
	notifier Notifier
	group    string
}

// NewHandler wraps base, optionally forwarding to notifier.
func NewHandler(base slog.Handler, notifier Notifier) *Handler {
	return &Handler{base: base, notifier: notifier}
}

func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.base.Enabled(ctx, level)
}

func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	err := h.base.Handle(ctx, r)

	if h.notifier != nil && r.Level >= slog.LevelInfo {
		h.notifier.Notify(severityFor(r.Level), buildMessage(h.group, r))
	}

	return err
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &Handler{
		base:     h.base.WithAttrs(attrs),
		notifier: h.notifier,
		group:    h.group,
	}
}

func (h *Handler) WithGroup(name string) slog.Handler {
	group := name
	if h.group != "" {
		group = h.group + "." + name
	}
	return &Handler{
		base:     h.base.WithGroup(name),
		notifier: h.notifier,
		group:    group,
	}
}

func severityFor(level slog.Level) Severity {
	switch {
	case level >= slog.LevelError:
		return SeverityError
	case level >= slog.LevelWarn:
		return SeverityWarn
	case level >= slog.LevelInfo:
		return SeverityInfo
	default:
		return SeverityDebug
	}
}

func buildMessage(group string, r slog.Record) string {
	msg := r.Message
	if group != "" {
		msg = group + ":" + msg
	}

	n := 0
	r.Attrs(func(a slog.Attr) bool {
		if n >= 4 {
			return false
		}
		msg += " " + a.Key + "=" + a.Value.String()
		n++
		return true
	})

	return msg
}
