// Package session implements edit sessions over large byte sources.
//
// A Session layers an ordered log of inserts, overwrites and deletes over
// an immutable source.Source. The current content is described by a
// persistent piece tree, so every change is O(log n) in the number of
// edits and never copies the document. Each change keeps the tree it was
// applied to and the tree it produced, which makes undo, redo and
// snapshot reads cheap.
//
// Viewports are windows onto the current content. Each keeps a cache of
// its bytes that is refreshed whenever a change could alter them:
// inserts and deletes refresh every viewport whose window ends after the
// edit point, overwrites refresh the viewports they intersect.
// Callbacks run after the session lock is released, and may read but not
// mutate the session:
//
//	s := session.NewFromBytes([]byte("Hello World!"))
//	s.Register(0, 64, func(vp *session.Viewport, ev session.ViewportEvent) {
//		data, _ := vp.Data()
//		fmt.Printf("%s: %q\n", ev.Kind, data)
//	})
//	s.Insert(5, []byte(","))
//
// Save streams the document through a temporary file and renames it into
// place, so a failed save never damages the destination.
package session
