package platform

// Package platform contains OS integration and external tooling glue:
// filesystem helpers, destination naming, and playlist expansion via ytdlp.
