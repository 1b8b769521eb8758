// Chainplay - Blockchain Game State Aggregation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chainplay

/*
Package supervisor runs every long-lived chainplay service under a suture v4
tree.

	RootSupervisor ("chainplay")
	├── CacheSupervisor ("cache-layer")
	│   └── cache.Layer (expiry sweeper)
	├── AdapterSupervisor ("adapter-layer")
	│   ├── adapter.Adapter, one per configured game
	│   └── HealthCheckService
	└── APISupervisor ("api-layer")
	    └── HTTPServerService

An adapter whose push connection gives up returns from Serve with an error
and is restarted by the adapter layer with suture's backoff; other games and
the API keep running.

Supervisor events are logged through logging.NewSlogLogger and sutureslog.
*/
package supervisor
