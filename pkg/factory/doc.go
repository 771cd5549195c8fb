// Package factory builds a metering pipeline from configuration.
//
// The pieces can be built one by one (NewPricingTable, NewStore,
// NewPublisher, NewRecorder) or all together with Build, which returns a
// Pipeline owning their lifecycle:
//
//	p, err := factory.Build(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	defer p.Close(ctx)
//
//	agent := p.Agent("triage-bot")
//	resp, rec, err := agent.Invoke(ctx, call)
//
// AWS configuration is only loaded when a component needs a client that
// was not injected with an Option.
package factory
