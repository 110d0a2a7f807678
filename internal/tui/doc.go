// Package tui provides the terminal queue monitor behind "checkface top".
//
// The monitor polls a running server's /api/queue/ endpoint and shows:
//   - Whether the worker has finished loading the model
//   - Queue depth against the batch size, with a short history sparkline
//   - Batch counters and the size and duration of the last batch
//   - Throughput between samples
//
// Usage:
//
//	program, _ := tui.NewMonitorProgram(url, tui.HTTPFetcher(url, time.Second), time.Second)
//	_, err := program.Run()
//
// Users quit with 'q' or Ctrl+C and force a poll with 'r'.
package tui
