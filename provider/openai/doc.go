// Package openai streams answers from OpenAI or any server speaking the
// chat completions API, implementing [gateway.ChatClient].
//
// The chat completions API is stateless, so the client keeps each
// conversation's turns in memory and replays them on follow-up requests. A
// request without a conversation id starts a new conversation whose
// generated id is reported on every event.
//
// # Basic Usage
//
//	client := openai.New(os.Getenv("OPENAI_API_KEY"),
//	    openai.WithModel(openai.GPT5Mini),
//	    openai.WithSystemPrompt("You are a helpful assistant."),
//	)
//
//	stream, err := client.Stream(ctx, gateway.ChatRequest{Query: "Hello!", User: "ctx-1"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for ev, err := range stream.Events() {
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    fmt.Print(ev.Answer)
//	}
//
// # Compatible Servers
//
// Point the client at vLLM, Ollama or another compatible server:
//
//	client := openai.New("unused", openai.WithBaseURL("http://localhost:11434/v1/"))
package openai
