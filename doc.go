// Package gateway exposes an A2A (Agent-to-Agent) JSON-RPC interface in front of
// a streaming chat API such as Dify.
//
// The root package holds the provider-neutral upstream contract shared by the
// rest of the module:
//
//   - [ChatClient] opens a streaming conversation and returns a [Stream]
//   - [UpstreamEvent] is the normalized event vocabulary (message chunks,
//     message end, errors, agent thoughts)
//   - [Error] categorizes upstream failures as transient, permanent or user input
//
// The packages built on top of it are:
//
//   - a2a: protocol types, the JSON-RPC envelope and a gateway client
//   - store: the concurrent in-memory task store
//   - translator: mapping between A2A messages and upstream requests/events
//   - manager: the task lifecycle engine
//   - session: the conversation-to-caller affinity cache (memory or Redis)
//   - provider/dify, provider/openai, provider/anthropic, provider/google: upstreams
//   - server: JSON-RPC over HTTP with SSE streaming, AG-UI and MCP endpoints
//
// # Streams
//
// A [Stream] is consumed exactly once with a range loop. The connection is
// released on every exit path, including an early break:
//
//	stream, err := client.Stream(ctx, req)
//	if err != nil {
//	    return err
//	}
//	defer stream.Close()
//
//	for ev, err := range stream.Events() {
//	    if err != nil {
//	        return err
//	    }
//	    if ev.Kind == gateway.KindMessageChunk {
//	        fmt.Print(ev.Answer)
//	    }
//	}
package gateway
