// Package monitor ties metering and delivery together for one agent.
//
// An Agent invokes models through a recorder.Recorder and hands every
// resulting usage record to a dispatcher.Dispatcher. The model response is
// returned as soon as the invocation finishes; delivery to the metrics and
// record sinks happens in the background. Invocation errors are reported to
// the metrics sink and returned unchanged.
//
// Middleware offers the same behaviour as an Invoker decorator for code
// that already holds an Invoker:
//
//	inv := agent.Middleware("triage-bot")(recorder.NewBedrockInvoker(client))
//	resp, err := inv.InvokeModel(ctx, &recorder.Request{ModelID: id, Body: body})
package monitor
