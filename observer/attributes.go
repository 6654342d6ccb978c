package observer

import "go.opentelemetry.io/otel/attribute"

// Attribute keys for codeact spans and metrics.
var (
	AttrLLMModel    = attribute.Key("llm.model")
	AttrLLMProvider = attribute.Key("llm.provider")
	AttrToolCount   = attribute.Key("llm.tool_count")
	AttrToolNames   = attribute.Key("llm.tool_names")
	AttrInputItems  = attribute.Key("llm.input_items")
	AttrOutputItems = attribute.Key("llm.output_items")
	AttrResponseID  = attribute.Key("llm.response_id")

	AttrStreamEvents = attribute.Key("llm.stream_events")

	AttrSandboxAction     = attribute.Key("sandbox.action")
	AttrSandboxStatus     = attribute.Key("sandbox.status")
	AttrSandboxCodeLength = attribute.Key("sandbox.code_length")
	AttrSandboxOutputSize = attribute.Key("sandbox.output_size")

	AttrEventType  = attribute.Key("agent.event_type")
	AttrRunStatus  = attribute.Key("agent.status")
	AttrErrorKind  = attribute.Key("agent.error_kind")
	AttrToolRounds = attribute.Key("agent.tool_rounds")
)
