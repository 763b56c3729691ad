// Package viz is a terminal host for a simulation session.
//
// The particle field is drawn on a braille [Canvas] (2x4 dots per cell) by a
// presentation surface the engine draws to, and a Bubble Tea program shows
// it next to live statistics. Terminal resizes are forwarded to the engine
// as viewport resizes.
//
// # Key Bindings
//
//	Q     - Quit and stop the session
//	G     - Toggle GIF recording
//	T     - Cycle color themes
//	?     - Show help overlay
//
// # Recording
//
// G records the braille frames the engine presents and writes them to
// binsim.gif in the current directory when recording stops.
package viz
