// Package codeact is an agent loop for LLMs that act by writing code.
//
// Instead of one function call per operation, the model is offered a small
// set of tools whose single argument is a TypeScript snippet. The snippet
// runs in a sandbox where the tool's actions are visible, and whatever it
// prints becomes the tool output for the next model turn.
//
// # Quick Start
//
//	price := codeact.MustDefine("get_price", "Current USD price of a coin.",
//		func(ctx context.Context, in struct{ Ticker string `json:"ticker"` }) (string, error) {
//			return lookup(ctx, in.Ticker)
//		})
//	registry, err := codeact.NewRegistry(price)
//
//	agent := codeact.NewAgent(
//		responses.NewProvider(apiKey, "gpt-4.1-mini", responses.DefaultBaseURL),
//		code.NewInProcessRunner(),
//		codeact.WithRegistry(registry),
//	)
//	conv, err := agent.Run(ctx, []codeact.Message{codeact.UserMessage("Price of 2 BTC?")}, sink)
//
// # Core Types
//
//   - [Action] is either a [DefinedAction] (a schema-validated handler the
//     snippet calls as api.<name>.call(args)) or a [FreeformAction] (a tool
//     whose snippet sees a fixed set of globals).
//   - [Registry] turns actions into the tool list and the per-tool catalogue.
//   - [CodeRunner] executes one snippet; the code package provides an
//     in-process runner (goja) and a subprocess runner with static validation.
//   - [Provider] streams one model turn; provider/responses speaks the OpenAI
//     Responses API.
//   - [Agent] runs the loop and reports progress as [Event] values.
//   - [Checkpointer] persists conversations; see store/file, store/sqlite,
//     store/postgres and store/redis.
//
// The mcp package bridges actions to the Model Context Protocol in both
// directions, and observer adds OpenTelemetry traces, metrics and logs.
package codeact
