// Package viewer implements a terminal pager over a session viewport.
//
// The viewer registers one viewport sized to the screen and redraws
// whenever the session notifies it of a change. Content is shown either
// as a hex dump or as text, with grapheme widths measured by uniseg.
package viewer
