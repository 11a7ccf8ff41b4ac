package script

import (
	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/bytestorm/internal/session"
)

func (r *Runner) exports() map[string]lua.LGFunction {
	return map[string]lua.LGFunction{
		"len":         r.luaLen,
		"read":        r.luaRead,
		"insert":      r.luaInsert,
		"overwrite":   r.luaOverwrite,
		"delete":      r.luaDelete,
		"replace":     r.luaReplace,
		"search":      r.luaSearch,
		"replace_all": r.luaReplaceAll,
		"undo":        r.luaUndo,
		"redo":        r.luaRedo,
		"begin":       r.luaBegin,
		"commit":      r.luaCommit,
		"pause":       r.luaPause,
		"resume":      r.luaResume,
		"paused":      r.luaPaused,
		"profile":     r.luaProfile,
	}
}

// check raises err as a Lua error.
func check(L *lua.LState, err error) {
	if err != nil {
		L.RaiseError("%v", err)
	}
}

func pushResult(L *lua.LState, res session.Result, err error) int {
	check(L, err)
	L.Push(lua.LNumber(res.Serial))
	L.Push(lua.LNumber(res.Length))
	return 2
}

// len() -> length
func (r *Runner) luaLen(L *lua.LState) int {
	n, err := r.sess.Len()
	check(L, err)
	L.Push(lua.LNumber(n))
	return 1
}

// read(offset, length) -> string
func (r *Runner) luaRead(L *lua.LState) int {
	data, err := r.sess.Segment(L.CheckInt64(1), L.CheckInt64(2))
	check(L, err)
	L.Push(lua.LString(data))
	return 1
}

// insert(offset, data) -> serial, length
func (r *Runner) luaInsert(L *lua.LState) int {
	res, err := r.sess.Insert(L.CheckInt64(1), []byte(L.CheckString(2)))
	return pushResult(L, res, err)
}

// overwrite(offset, data) -> serial, length
func (r *Runner) luaOverwrite(L *lua.LState) int {
	res, err := r.sess.Overwrite(L.CheckInt64(1), []byte(L.CheckString(2)))
	return pushResult(L, res, err)
}

// delete(offset, length) -> serial, length
func (r *Runner) luaDelete(L *lua.LState) int {
	res, err := r.sess.Delete(L.CheckInt64(1), L.CheckInt64(2))
	return pushResult(L, res, err)
}

// replace(offset, length, data) -> serial, length
func (r *Runner) luaReplace(L *lua.LState) int {
	res, err := r.sess.Replace(L.CheckInt64(1), L.CheckInt64(2), []byte(L.CheckString(3)))
	return pushResult(L, res, err)
}

// search(pattern [, opts]) -> {offset, ...}
func (r *Runner) luaSearch(L *lua.LState) int {
	offsets, err := r.sess.Search([]byte(L.CheckString(1)), searchOptions(L, 2))
	check(L, err)

	tbl := L.CreateTable(len(offsets), 0)
	for _, off := range offsets {
		tbl.Append(lua.LNumber(off))
	}
	L.Push(tbl)
	return 1
}

// replace_all(pattern, replacement [, opts]) -> count
func (r *Runner) luaReplaceAll(L *lua.LState) int {
	n, err := r.sess.ReplaceAll([]byte(L.CheckString(1)), []byte(L.CheckString(2)), searchOptions(L, 3))
	check(L, err)
	L.Push(lua.LNumber(n))
	return 1
}

// searchOptions reads an optional {offset=, length=, icase=, limit=}
// table at idx.
func searchOptions(L *lua.LState, idx int) session.SearchOptions {
	var opts session.SearchOptions
	tbl := L.OptTable(idx, nil)
	if tbl == nil {
		return opts
	}
	if v, ok := tbl.RawGetString("offset").(lua.LNumber); ok {
		opts.Offset = int64(v)
	}
	if v, ok := tbl.RawGetString("length").(lua.LNumber); ok {
		opts.Length = int64(v)
	}
	if v, ok := tbl.RawGetString("limit").(lua.LNumber); ok {
		opts.Limit = int(v)
	}
	opts.CaseInsensitive = lua.LVAsBool(tbl.RawGetString("icase"))
	return opts
}

// undo() -> serial, length
func (r *Runner) luaUndo(L *lua.LState) int {
	res, err := r.sess.Undo()
	return pushResult(L, res, err)
}

// redo() -> serial, length
func (r *Runner) luaRedo(L *lua.LState) int {
	res, err := r.sess.Redo()
	return pushResult(L, res, err)
}

// begin() -> transaction id
func (r *Runner) luaBegin(L *lua.LState) int {
	id, err := r.sess.BeginTransaction()
	check(L, err)
	L.Push(lua.LNumber(id))
	return 1
}

// commit() -> transaction id
func (r *Runner) luaCommit(L *lua.LState) int {
	id, err := r.sess.EndTransaction()
	check(L, err)
	L.Push(lua.LNumber(id))
	return 1
}

// pause() stops every edit to the session until resume().
func (r *Runner) luaPause(L *lua.LState) int {
	check(L, r.sess.PauseChanges())
	return 0
}

func (r *Runner) luaResume(L *lua.LState) int {
	check(L, r.sess.ResumeChanges())
	return 0
}

// paused() -> bool
func (r *Runner) luaPaused(L *lua.LState) int {
	L.Push(lua.LBool(r.sess.ChangesPaused()))
	return 1
}

// profile([offset, length]) -> {[byte] = count, ...}, total
func (r *Runner) luaProfile(L *lua.LState) int {
	p, err := r.sess.Profile(L.OptInt64(1, 0), L.OptInt64(2, 0))
	check(L, err)

	tbl := L.NewTable()
	for b, n := range p {
		if n > 0 {
			tbl.RawSetInt(b, lua.LNumber(n))
		}
	}
	L.Push(tbl)
	L.Push(lua.LNumber(p.Total()))
	return 2
}
