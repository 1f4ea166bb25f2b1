// Package ui renders poll results for the terminal.
//
// RenderPollTable prints a one-shot result: a status line per host with an
// average utilization bar, then a Bubbles table of every GPU row. WatchModel
// is the Bubble Tea dashboard behind `gpustat watch`; it re-polls on an
// interval and shows a spinner while a poll is running.
//
// Colors are ANSI codes so they follow the terminal theme. DisableColors
// switches to plain text for --no-color and NO_COLOR.
package ui
