// Package anthropic streams answers from Claude models through the Messages
// API, implementing [gateway.ChatClient].
//
// Conversation turns are kept in memory by the client and replayed on
// follow-up requests that carry the generated conversation id.
package anthropic
