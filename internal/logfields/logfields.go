package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyBuildID    = "build_id"
	KeyProfile    = "profile"
	KeyCategory   = "category"
	KeyStage      = "stage"
	KeyFile       = "file"
	KeyPath       = "path"
	KeyOp         = "op"
	KeyFiles      = "files"
	KeyOutputs    = "outputs"
	KeyDurationMS = "duration_ms"
	KeyMethod     = "method"
	KeyStatus     = "status"
	KeyRemoteAddr = "remote_addr"
	KeyClients    = "clients"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func BuildID(id string) slog.Attr     { return slog.String(KeyBuildID, id) }
func Profile(name string) slog.Attr   { return slog.String(KeyProfile, name) }
func Category(c string) slog.Attr     { return slog.String(KeyCategory, c) }
func Stage(name string) slog.Attr     { return slog.String(KeyStage, name) }
func File(f string) slog.Attr         { return slog.String(KeyFile, f) }
func Path(p string) slog.Attr         { return slog.String(KeyPath, p) }
func Op(op string) slog.Attr          { return slog.String(KeyOp, op) }
func Files(n int) slog.Attr           { return slog.Int(KeyFiles, n) }
func Outputs(n int) slog.Attr         { return slog.Int(KeyOutputs, n) }
func DurationMS(ms float64) slog.Attr { return slog.Float64(KeyDurationMS, ms) }
func Method(m string) slog.Attr       { return slog.String(KeyMethod, m) }
func Status(code int) slog.Attr       { return slog.Int(KeyStatus, code) }
func RemoteAddr(a string) slog.Attr   { return slog.String(KeyRemoteAddr, a) }
func Clients(n int) slog.Attr         { return slog.Int(KeyClients, n) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
