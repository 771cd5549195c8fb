// Package logging configures structured logging for tokenmeter on top of
// log/slog.
//
// New builds a slog.Logger from a level and format string and wraps its
// handler so that usage identifiers stored in a context (request id, agent
// id, incident id, model id) are added to every record logged with a
// *Context method:
//
//	ctx = logging.WithAgentID(ctx, "cloud-engineer")
//	ctx = logging.WithIncidentID(ctx, "INC-123")
//	slog.InfoContext(ctx, "model invoked")
//	// {"level":"INFO","msg":"model invoked","agent_id":"cloud-engineer","incident_id":"INC-123"}
//
// Components obtain their own logger with
// slog.Default().With("component", "<name>") after Setup has installed the
// configured logger as the process default.
package logging
