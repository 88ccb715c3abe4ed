// Package factory builds a toolset from a configuration file: the catalog of
// built-in tools with their credentials, the selector with its scorer and
// score cache, and the orchestration sandbox with its limits.
package factory
