// Chainplay - Blockchain Game State Aggregation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chainplay

package cache

import (
	"fmt"

	"github.com/goccy/go-json"
	"github.com/klauspost/compress/zstd"
)

// DefaultCompressionThreshold is the encoded size above which values are
// compressed when compression is enabled.
const DefaultCompressionThreshold = 1024

// codec turns values into entry bytes and back. Encoder and decoder are
// safe for concurrent EncodeAll/DecodeAll use.
type codec struct {
	enabled   bool
	threshold int
	enc       *zstd.Encoder
	dec       *zstd.Decoder
}

func newCodec(enabled bool, threshold int) (*codec, error) {
	if threshold <= 0 {
		threshold = DefaultCompressionThreshold
	}
	c := &codec{enabled: enabled, threshold: threshold}
	if !enabled {
		// Entries written compressed by an earlier run must still decode.
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("create zstd decoder: %w", err)
		}
		c.dec = dec
		return c, nil
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	c.enc, c.dec = enc, dec
	return c, nil
}

func (c *codec) encode(value any) ([]byte, bool, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, false, fmt.Errorf("encode cache value: %w", err)
	}
	if !c.enabled || len(raw) <= c.threshold {
		return raw, false, nil
	}
	return c.enc.EncodeAll(raw, make([]byte, 0, len(raw)/2)), true, nil
}

func (c *codec) decode(e *Entry, dest any) error {
	data := e.Value
	if e.Compressed {
		var err error
		data, err = c.dec.DecodeAll(data, nil)
		if err != nil {
			return fmt.Errorf("decompress cache value %s: %w", e.Key, err)
		}
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("decode cache value %s: %w", e.Key, err)
	}
	return nil
}

func (c *codec) close() {
	if c.enc != nil {
		_ = c.enc.Close()
	}
	if c.dec != nil {
		c.dec.Close()
	}
}
