// Package main hosts the gamecatalog CLI entrypoint and command graph.
//
// The Cobra-based command tree runs catalog builds, inspects the published
// dataset and run history, maintains the version image cache, and scaffolds
// configuration. It centralizes configuration resolution and structured
// logging setup so subcommands can focus on output instead of wiring.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
package main
