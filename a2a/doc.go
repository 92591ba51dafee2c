// Package a2a defines the A2A (Agent-to-Agent) protocol types served by the
// gateway, the JSON-RPC 2.0 envelope, and a client for calling a gateway.
//
// # Overview
//
// This package provides:
//   - Core types: [Task], [Message], [Artifact] and the sealed [Part] sum type
//     ([TextPart], [FilePart], [DataPart])
//   - Outbound stream events: [TaskStatusUpdateEvent] and [TaskArtifactUpdateEvent]
//   - The JSON-RPC envelope: [Request], [Response], [Error] and method params
//   - [Client] for message.send, tasks/get, tasks/list and tasks/cancel
//
// # Task Lifecycle
//
// Tasks progress through these statuses:
//
//   - TaskStatusPending: created, not yet started
//   - TaskStatusRunning: streaming from the upstream
//   - TaskStatusCompleted: finished with an artifact
//   - TaskStatusFailed: finished with an error
//   - TaskStatusCanceled: canceled by a caller
//
// Completed, failed and canceled are terminal.
//
// # Parts
//
// Parts are decoded by their "type" tag. An unknown tag is an error, so every
// switch over a [Part] can be exhaustive:
//
//	for _, p := range msg.Parts {
//	    switch p := p.(type) {
//	    case a2a.TextPart:
//	        fmt.Println(p.Text)
//	    case a2a.FilePart:
//	        fmt.Println(p.URI)
//	    case a2a.DataPart:
//	        fmt.Println(p.Data)
//	    }
//	}
//
// # Streaming
//
// [Client.SendStream] yields events as the gateway emits them:
//
//	client := a2a.NewClient("http://localhost:8080/a2a")
//	params := a2a.SendParams{Messages: []a2a.Message{a2a.NewMessage(a2a.RoleUser, a2a.NewTextPart("Hi"))}}
//
//	for out, err := range client.SendStream(ctx, params) {
//	    if err != nil {
//	        return err
//	    }
//	    if ev, ok := out.Event.(a2a.TaskArtifactUpdateEvent); ok && ev.Append {
//	        fmt.Print(ev.Artifact.Text())
//	    }
//	}
//
// # Thread Safety
//
// [Client] is safe for concurrent use. Task values are plain data; use
// [Task.Clone] before sharing one across goroutines.
package a2a
