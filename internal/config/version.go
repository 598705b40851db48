package config

// Version is the release version, stamped at build time via
// -ldflags "-X github.com/animemeta/animemeta/internal/config.Version=...".
var Version = "dev"
