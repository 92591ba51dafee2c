// Package server is the gateway's HTTP surface.
//
// Routes:
//
//	POST /a2a            JSON-RPC 2.0 (message.send, tasks/get, tasks/list, tasks/cancel)
//	POST /tasks/get      same dispatcher, for path-per-method clients
//	POST /tasks/list
//	POST /tasks/cancel
//	GET  /health         service and session cache health
//	POST /agui           AG-UI run over SSE
//	     /mcp            MCP streamable HTTP transport
//
// message.send streams by default: each frame is "data: <JSON-RPC envelope>\n\n"
// carrying the request id. With configuration.stream=false the terminal task is
// returned as a single JSON-RPC result. JSON-RPC errors are sent with HTTP 200.
package server
