// Package devserver is a development realtime backend speaking the same
// envelope protocol as pkg/realtime. It exists for local runs of cmd/tab
// and for end-to-end tests of the websocket transport.
package devserver
