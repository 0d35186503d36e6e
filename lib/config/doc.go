// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads crashtrace activation settings from a YAML file
// and arms the engines accordingly. Configuration comes from a single
// explicit path with no discovery and no fallbacks, so what is armed
// in a process is always auditable from one file.
//
// The CRASHTRACE environment variable provides the zero-config path:
// any value other than empty or "0" means "enable the fatal handler at
// startup with defaults", for turning on crash dumps in a deployed
// binary without editing anything.
//
// Validation is synchronous and complete at Load/Apply time: an
// unknown signal name or a non-positive watchdog timeout fails
// immediately, never at delivery time.
package config
