// Package agui exposes gateway tasks to AG-UI frontends.
//
// AG-UI (Agent-User Interface) is an event-based protocol that standardizes
// how agents connect to user-facing applications. This package converts a
// task's outbound stream, as produced by the task manager, into AG-UI events.
//
// # Overview
//
//   - [RunAgentInput]: the AG-UI run request, validated by [RunAgentInput.Prepare]
//   - [Mapper]: stateful converter that handles AG-UI's Start-Content-End pattern
//   - Message conversion: [ToA2AMessages], [FromTask]
//
// The package does not serve HTTP. The server package owns the /agui route
// and writes the events as SSE frames.
//
// # Usage
//
//	in, err := input.Prepare()
//	mapper := agui.NewMapper(in.ThreadID, in.RunID)
//	writeEvent(mapper.RunStarted())
//
//	sink := func(out a2a.Outbound) {
//	    for _, ev := range mapper.Map(out) {
//	        writeEvent(ev)
//	    }
//	}
//
// # Event Mapping
//
//   - first artifact chunk → TEXT_MESSAGE_START, TEXT_MESSAGE_CONTENT
//   - later artifact chunks → TEXT_MESSAGE_CONTENT
//   - last chunk → TEXT_MESSAGE_END
//   - final completed status → RUN_FINISHED
//   - final failed or canceled status, or an error frame → RUN_ERROR
//
// Exactly one of RUN_FINISHED and RUN_ERROR is produced per run.
//
// # Thread Safety
//
// The Mapper is NOT safe for concurrent use. Message conversion functions are
// stateless and safe for concurrent use.
package agui
