/*
Package types defines core data structures used throughout reqgate.

# Overview

The types package provides shared type definitions for:
  - Per-call request specs and their serializable overrides
  - Transport requests, responses and errors
  - The {code, msg, data} response envelope
  - Sessions, profiles, OAuth and TLS configuration
  - Call history records and statistics

# Request Types

RequestSpec:
  - Full per-call configuration, including function-valued hooks
  - Built from DefaultRequestSpec, never from the zero value
  - Cloned before modification so defaults are never shared

RequestOverrides:
  - Serializable subset of RequestSpec (YAML, JSON, viper)
  - Pointer fields so an unset value does not clobber a default
  - Layered with Merge, applied with Apply

# Transport Types

TransportRequest is what the gateway hands to a transport. TransportResponse
and TransportError are what comes back. A TransportError says how far the call
got: Response set means the server replied, Request set means the request was
issued without reply, neither means it was never sent.

# Envelope

Envelope holds the raw code, msg and data members. Only the JSON string "0" is
a success code.

# Example Structures

Request file entry:

	{
	  "name": "list-items",
	  "url": "/api/items",
	  "params": {"page": "{{page}}"},
	  "needToken": false,
	  "timeout": 5000
	}

Profile:

	{
	  "name": "dev",
	  "variables": {"page": "1"},
	  "defaults": {"baseURL": "http://localhost:8080", "maxContentLength": 65536}
	}
*/
package types
