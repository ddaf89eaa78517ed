// Package voice provides a provider-neutral client for realtime voice
// sessions.
//
// A Session streams encoded microphone audio up and yields ServerEvents
// down. Each event can carry several things at once (tool calls, response
// audio, transcripts, turn boundaries); the caller decides the order in
// which to apply them.
//
// # Supported Providers
//
// Providers register a Dialer in init(). The bundled package ships two:
//
//   - genai: the official google.golang.org/genai Live client
//   - gemini-ws: the BidiGenerateContent WebSocket spoken directly
//
// # Usage
//
//	import (
//	    "github.com/teslashibe/go-coach/pkg/voice"
//	    _ "github.com/teslashibe/go-coach/pkg/voice/bundled"
//	)
//
//	cfg := voice.DefaultConfig().
//	    WithAPIKey(os.Getenv("GOOGLE_API_KEY")).
//	    WithSystemPrompt("You are an interview coach.").
//	    WithTools(tool)
//
//	sess, err := voice.Connect(ctx, cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer sess.Close()
//
//	for {
//	    ev, err := sess.Receive(ctx)
//	    if errors.Is(err, io.EOF) {
//	        return // server closed the session
//	    }
//	    ...
//	}
//
// # Latency Metrics
//
// MetricsCollector records per-turn timing from the end of user speech to
// the first response audio and to turn completion.
package voice
