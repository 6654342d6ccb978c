package observer

import (
	"context"

	codeact "github.com/nevindra/codeact"

	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/metric"
)

// WrapSink returns a Sink that counts every event by type, records the run
// outcome when done or error arrives, and then forwards to next. A nil next
// only observes.
func WrapSink(ctx context.Context, next codeact.Sink, inst *Instruments) codeact.Sink {
	rounds := 0
	return func(ev codeact.Event) {
		inst.AgentEvents.Add(ctx, 1, metric.WithAttributes(AttrEventType.String(string(ev.Type))))
		if ev.ToolRound > rounds {
			rounds = ev.ToolRound
		}
		switch ev.Type {
		case codeact.EventDone:
			inst.AgentRuns.Add(ctx, 1, metric.WithAttributes(AttrRunStatus.String("ok")))
		case codeact.EventError:
			inst.AgentRuns.Add(ctx, 1, metric.WithAttributes(
				AttrRunStatus.String("error"),
				AttrErrorKind.String(ev.Kind),
			))
			var rec otellog.Record
			rec.SetSeverity(otellog.SeverityError)
			rec.SetBody(otellog.StringValue("agent run failed"))
			rec.AddAttributes(
				otellog.String("agent.error_kind", ev.Kind),
				otellog.String("error", ev.Message),
				otellog.Int("agent.tool_rounds", rounds),
			)
			inst.Logger.Emit(ctx, rec)
		}
		if next != nil {
			next(ev)
		}
	}
}
