// Package config loads bytestorm configuration.
//
// Settings are resolved from three sources, later ones overriding earlier:
//
//  1. Built-in defaults (Default)
//  2. A configuration file, TOML or YAML by extension
//  3. Environment variables, BYTESTORM_SECTION_SETTING_NAME
//
// Command-line flags are applied by the caller on top of the result.
//
// A configuration file looks like:
//
//	[session]
//	chunkSize = 65536
//
//	[source]
//	mmap = true
//	watch = true
//
//	[log]
//	level = "debug"
//	file = "/tmp/bytestorm.log"
package config
