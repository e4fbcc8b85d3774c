// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads configuration for the gridbus exchange, agents,
// and bridges.
//
// Loading is layered: [Default] values, then one file named by the
// --config flag or the GRIDBUS_CONFIG environment variable, then
// environment overrides. Files ending in .yaml or .yml are YAML; files
// ending in .json or .jsonc are JSON with comments and trailing commas
// allowed. There is no file discovery; without a path the defaults and
// environment apply.
//
// Environment overrides are grouped by section:
//
//	GRIDBUS_EXCHANGE_PUBLISH_ADDRESS   exchange.publish_address
//	GRIDBUS_AGENT_ERROR_POLICY         agent.error_policy
//	GRIDBUS_KAFKA_BROKERS              kafka.brokers (comma-separated)
//	GRIDBUS_LOG_LEVEL                  log.level
//
// Address fields support ${VAR} and ${VAR:-default} expansion after
// loading, so a single file can place sockets under $XDG_RUNTIME_DIR.
//
// Key exports:
//
//   - [Config] -- Exchange, Agent, Kafka and Log sections
//   - [Default] -- a Config that runs a local exchange
//   - [Load] and [LoadFile] -- the entry points
//   - [Duration] -- a time.Duration that decodes from "1m30s"
package config
