package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyRunID      = "run_id"
	KeyPath       = "path"
	KeyKind       = "event_kind"
	KeyTargets    = "targets"
	KeyOutput     = "output"
	KeyGenerator  = "generator"
	KeyCause      = "cause"
	KeyDurationMS = "duration_ms"
	KeyWorkspace  = "workspace"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func RunID(id string) slog.Attr       { return slog.String(KeyRunID, id) }
func Path(p string) slog.Attr         { return slog.String(KeyPath, p) }
func Kind(k string) slog.Attr         { return slog.String(KeyKind, k) }
func Targets(t string) slog.Attr      { return slog.String(KeyTargets, t) }
func Output(o string) slog.Attr       { return slog.String(KeyOutput, o) }
func Generator(g string) slog.Attr    { return slog.String(KeyGenerator, g) }
func Cause(c string) slog.Attr        { return slog.String(KeyCause, c) }
func DurationMS(ms float64) slog.Attr { return slog.Float64(KeyDurationMS, ms) }
func Workspace(w string) slog.Attr    { return slog.String(KeyWorkspace, w) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
