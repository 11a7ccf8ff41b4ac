// Package script runs Lua edit scripts against a session.
//
// Scripts run in a sandboxed gopher-lua state with only the base, table,
// string and math libraries opened. The session is exposed as the global
// table "bs" (also available through require("bytestorm")):
//
//	local hits = bs.search("foo")
//	bs.begin()
//	for i = #hits, 1, -1 do
//	    bs.replace(hits[i], 3, "bar")
//	end
//	bs.commit()
//
// Offsets are zero-based byte offsets, matching the Go API. Errors from
// the session are raised as Lua errors and abort the script.
package script
