package internal

import "time"

// Config holds every tunable of the realtime core, loaded from the
// environment. Required keys fail startup early with a config error.
type Config struct {
	Host              string        `env:"HOST,default=0.0.0.0"`
	Port              int           `env:"PORT,default=8080"`
	BadgerFilepath    string        `env:"BADGER_FILEPATH,required=true"`
	BlugeFilepath     string        `env:"BLUGE_FILEPATH,required=true"`
	JWTSecret         string        `env:"JWT_SECRET,required=true"`
	AuthTokenDuration time.Duration `env:"AUTH_TOKEN_DURATION,default=24h"`
	LogLevel          string        `env:"LOG_LEVEL,default=INFO"`

	// Per-connection delivery tuning. A sink that cannot absorb an event
	// within SinkTimeout is treated as unreachable.
	SinkBufferSize int           `env:"SINK_BUFFER_SIZE,default=32"`
	SinkTimeout    time.Duration `env:"SINK_TIMEOUT,default=5s"`

	// Transport keepalive.
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT,default=10s"`
	PongTimeout  time.Duration `env:"PONG_TIMEOUT,default=60s"`

	// Call signaling: a ringing session not answered within RingTimeout
	// transitions to timed out server-side.
	RingTimeout time.Duration `env:"RING_TIMEOUT,default=45s"`

	// History pagination page size.
	HistoryLimit int `env:"HISTORY_LIMIT,default=50"`

	// Search result cap for /api/messages/search.
	SearchLimit int `env:"SEARCH_LIMIT,default=20"`
}
