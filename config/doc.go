// Package config provides configuration loading, merging, and validation
// facilities for the data core.
//
// Configuration is assembled from multiple sources in the following
// priority order (earlier sources win for non-zero fields):
//  1. Environment variables (DATACORE_ prefix)
//  2. JSON config file (path from DATACORE_CONFIG)
//  3. Built-in defaults
//
// The main entry point is [Load].
package config
