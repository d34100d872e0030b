// Package state provides a lightweight per-user FSM for multi-step Telegram
// conversations. Sessions live in memory and are lost on restart; handlers
// must not rely on them for anything persisted elsewhere.
package state
