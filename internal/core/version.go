package core

// version is overridden at build time with -ldflags.
var version = "v0.0.0"
