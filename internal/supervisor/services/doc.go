// Chainplay - Blockchain Game State Aggregation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chainplay

// Package services adapts blocking components to suture.Service: the HTTP
// server and the periodic adapter health checker.
package services
