// Package logx is paypacer's structured logger, a thin layer over zerolog.
//
// Console output goes to stderr so command output on stdout stays clean.
// The optional file sink is JSON. Level and sinks can be swapped at runtime
// through Service.Apply when the config file is reloaded.
package logx
