package log

import (
	"log/slog"

	"github.com/botflow/engine/pkg/api"
)

func TenantID[T ~string](id T) slog.Attr {
	return slog.String("tenant_id", string(id))
}

func FlowID[T ~string](id T) slog.Attr {
	return slog.String("flow_id", string(id))
}

func NodeID[T ~string](id T) slog.Attr {
	return slog.String("node_id", string(id))
}

func EventID(id string) slog.Attr {
	return slog.String("event_id", id)
}

func Session(key api.SessionKey) slog.Attr {
	return slog.String("session", key.String())
}

func Error(err error) slog.Attr {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return slog.String("error", msg)
}

func ErrorString(msg string) slog.Attr {
	return slog.String("error", msg)
}
