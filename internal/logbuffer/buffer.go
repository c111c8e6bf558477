/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package logbuffer provides an in-memory ring buffer for capturing logs.
package logbuffer

import (
	"encoding/json"
	"sync"
	"time"
)

// Entry represents a single captured log line.
type Entry struct {
	Timestamp time.Time      `json:"timestamp"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Fields    map[string]any `json:"fields,omitempty"`
	Raw       string         `json:"raw,omitempty"`
}

// Buffer is a thread-safe ring buffer for log entries. It implements
// io.Writer so it can sit behind a zerolog multi-writer.
type Buffer struct {
	mu       sync.RWMutex
	entries  []Entry
	capacity int
	head     int
	count    int
}

// New creates a log buffer with the specified capacity.
func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = 2000
	}
	return &Buffer{
		entries:  make([]Entry, capacity),
		capacity: capacity,
	}
}

// Write parses a zerolog JSON line and stores it.
func (b *Buffer) Write(p []byte) (int, error) {
	entry := Entry{Timestamp: time.Now(), Raw: string(p)}

	var fields map[string]any
	if err := json.Unmarshal(p, &fields); err == nil {
		if lvl, ok := fields["level"].(string); ok {
			entry.Level = lvl
			delete(fields, "level")
		}
		if msg, ok := fields["message"].(string); ok {
			entry.Message = msg
			delete(fields, "message")
		}
		if ts, ok := fields["time"].(float64); ok {
			entry.Timestamp = time.Unix(int64(ts), 0)
			delete(fields, "time")
		}
		entry.Fields = fields
	}

	b.add(entry)
	return len(p), nil
}

func (b *Buffer) add(entry Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[b.head] = entry
	b.head = (b.head + 1) % b.capacity
	if b.count < b.capacity {
		b.count++
	}
}

// Recent returns up to n entries, newest last.
func (b *Buffer) Recent(n int) []Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if n <= 0 || n > b.count {
		n = b.count
	}
	out := make([]Entry, 0, n)
	start := b.head - n
	if start < 0 {
		start += b.capacity
	}
	for i := 0; i < n; i++ {
		out = append(out, b.entries[(start+i)%b.capacity])
	}
	return out
}

// Len returns the number of buffered entries.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.count
}
