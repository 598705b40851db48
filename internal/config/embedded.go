package config

// Embedded API key injected at build time via ldflags. It serves as the
// default and can be overridden by the TMDB_API_KEY environment variable
// or the config file.
//
// Build with:
//   go build -ldflags "-X 'github.com/animemeta/animemeta/internal/config.EmbeddedTMDBKey=xxx'"
var EmbeddedTMDBKey string
