// Package viz renders a running world in the terminal.
//
// The live view is a Bubble Tea program:
//
//   - [Model]: steps a world on every tick and draws it
//   - [Menu]: preset picker that opens a [Model]
//   - [Canvas]: Braille dot canvas the colony is drawn on
//
// Cells are drawn as circles sized by their radius and bonds as lines, seen
// through a rotatable perspective [Camera].
//
// # Key Bindings
//
//	Space - Pause/Resume
//	R     - Reset to the root cells
//	Tab   - Next genome parameter
//	M     - Next mode
//	Up/Dn - Tune the selected parameter of the selected mode
//	[ ]   - Scrub through recent frames
//	T     - Cycle themes
//	?     - Show help
package viz
