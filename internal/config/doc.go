// Package config loads hybridrag settings from an optional YAML file and
// HYBRIDRAG_* environment variables, and converts each section into the
// configuration type of the package it drives.
package config
