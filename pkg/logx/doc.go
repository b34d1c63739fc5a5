// Package logx is the structured logger used across fooddates.
//
// It wraps zerolog so that components depend on a small value type
// (logx.Logger) instead of a global:
//   - console output is human readable (short timestamp, file:line caller)
//   - the optional file sink writes one JSON object per line
//   - Service.Apply swaps sinks and level at runtime (config reload)
package logx
