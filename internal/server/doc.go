// Package server hosts the process-facing surfaces: the shared upstream
// http.Client used by the MLIT fetch client, and the stdio JSON-RPC 2.0
// server that exposes the tool registry and cached GeoJSON resources to an
// MCP-style agent. Messages are newline-delimited on stdin/stdout; logs never
// go to stdout.
package server
