// Package dify implements gateway.ChatClient and gateway.Stopper against the
// Dify chat-messages API.
//
// # Usage
//
//	client := dify.New("http://api:5001", os.Getenv("DIFY_API_KEY"),
//	    dify.WithTimeout(5*time.Minute),
//	)
//
//	stream, err := client.Stream(ctx, gateway.ChatRequest{Query: "Hello", User: "a2a-user-1"})
//	if err != nil {
//	    return err
//	}
//	defer stream.Close()
//
//	for ev, err := range stream.Events() {
//	    if err != nil {
//	        return err
//	    }
//	    fmt.Print(ev.Answer)
//	}
//
// # Errors
//
// Non-2xx responses are returned as *gateway.Error. Rate limits and 5xx are
// transient and retried when the stream is opened; 401 and 403 are permanent;
// 400, 404 and 422 are user input errors. Once a stream is open, errors are
// not retried.
package dify
