// Package google streams answers from Gemini models through the Google GenAI
// SDK, implementing [gateway.ChatClient].
//
// # Basic Usage
//
//	client, err := google.New(ctx, os.Getenv("GOOGLE_API_KEY"),
//	    google.WithModel(google.Gemini25Flash),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Prompts blocked by content filtering end the stream with a [*BlockedError].
package google
