// Package config loads hook policy configuration from TOML.
//
// A configuration file declares dispatcher settings, per-kind default
// decisions, the audit log location, and the policy handlers to build:
// pattern rules, Lua scripts, and external commands. Load validates
// everything eagerly, so unknown event kinds, unknown decisions, and regexes
// that fail to compile are registration-time errors, not hot-path surprises.
//
// The Watcher reports changes to the configuration file so a host can build
// a replacement registry and swap it in. A sealed registry is never
// reopened.
package config
