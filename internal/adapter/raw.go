// Chainplay - Blockchain Game State Aggregation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chainplay

package adapter

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// RawRecord is an upstream payload of unknown shape. Every accessor has a
// fallback so normalization never fails on a missing or mistyped field.
type RawRecord map[string]any

// DecodeRaw parses a JSON object. Anything other than an object is an error.
func DecodeRaw(data []byte) (RawRecord, error) {
	var raw RawRecord
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode raw payload: %w", err)
	}
	if raw == nil {
		return RawRecord{}, nil
	}
	return raw, nil
}

// String returns the first of keys holding a non-empty scalar, formatted as
// a string, or fallback.
func (r RawRecord) String(fallback string, keys ...string) string {
	for _, k := range keys {
		switch v := r[k].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		case json.Number:
			return v.String()
		case bool:
			return strconv.FormatBool(v)
		}
	}
	return fallback
}

// Float returns the value at key as a number. Numeric strings and booleans
// are accepted.
func (r RawRecord) Float(key string) (float64, bool) {
	return toFloat(r[key])
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// Time returns the first of keys holding an RFC 3339 string or a Unix
// timestamp. Numbers above 1e12 are read as milliseconds, otherwise seconds.
func (r RawRecord) Time(keys ...string) (time.Time, bool) {
	for _, k := range keys {
		switch v := r[k].(type) {
		case string:
			if t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(v)); err == nil {
				return t, true
			}
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				return unixTime(f)
			}
		case float64:
			return unixTime(v)
		case json.Number:
			if f, err := v.Float64(); err == nil {
				return unixTime(f)
			}
		}
	}
	return time.Time{}, false
}

func unixTime(f float64) (time.Time, bool) {
	if f <= 0 {
		return time.Time{}, false
	}
	if f >= 1e12 {
		return time.UnixMilli(int64(f)), true
	}
	return time.Unix(int64(f), 0), true
}

// Map returns the nested object at the first matching key, or nil.
func (r RawRecord) Map(keys ...string) RawRecord {
	for _, k := range keys {
		if m, ok := r[k].(map[string]any); ok {
			return m
		}
	}
	return nil
}

// Records returns the objects of the array at the first matching key.
// Non-object elements are skipped.
func (r RawRecord) Records(keys ...string) []RawRecord {
	for _, k := range keys {
		items, ok := r[k].([]any)
		if !ok {
			continue
		}
		out := make([]RawRecord, 0, len(items))
		for _, item := range items {
			if m, ok := item.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	}
	return nil
}
