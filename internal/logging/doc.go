// Package logging configures structured slog logging for labsearch.
//
// Logs are JSON lines written to a size-rotated file under ~/.labsearch/logs/.
// With --debug the level drops to debug and records are mirrored to stderr.
// The MCP server never mirrors to stderr or stdout, because stdout carries
// the JSON-RPC stream.
package logging
