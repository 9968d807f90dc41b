// Package logging is the structured logging layer for Unify Core.
//
// It wraps log/slog with the conventions the rest of the tree relies
// on: every line carries the service identity, subsystems log through
// Component-scoped children, and the destination is injectable so
// tests can capture output.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr, discard
//
// # Usage
//
//	log := logging.New(cfg.Logging, version)
//	zigbee := log.Component("zigbee")
//	zigbee.Info("bridge online", "base_topic", cfg.BaseTopic)
//
// Core packages (device, command, statecache, mqtt, the adapters)
// declare their own minimal Logger interfaces; *logging.Logger
// satisfies all of them through the embedded slog methods.
//
// # Security
//
// Never log secrets, tokens, passwords, or API keys. Log prefixes or
// lengths instead when an identifier is needed.
package logging
