package functions

import (
	"encoding/json"
	"errors"
	"fmt"

	lua "github.com/yuin/gopher-lua"
)

// maxLuaDepth bounds table nesting when converting results, which also
// catches self-referencing tables.
const maxLuaDepth = 64

var errLuaTooDeep = errors.New("lua value nested too deeply")

// toLua converts decoded JSON-like Go data into Lua values
func toLua(L *lua.LState, v any) lua.LValue {
	switch val := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(val)
	case string:
		return lua.LString(val)
	case float64:
		return lua.LNumber(val)
	case int:
		return lua.LNumber(val)
	case int64:
		return lua.LNumber(val)
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return lua.LString(val.String())
		}
		return lua.LNumber(f)
	case []any:
		tbl := L.NewTable()
		for i, item := range val {
			tbl.RawSetInt(i+1, toLua(L, item))
		}
		return tbl
	case []string:
		tbl := L.NewTable()
		for i, item := range val {
			tbl.RawSetInt(i+1, lua.LString(item))
		}
		return tbl
	case map[string]any:
		tbl := L.NewTable()
		for k, item := range val {
			tbl.RawSetString(k, toLua(L, item))
		}
		return tbl
	case map[string]string:
		tbl := L.NewTable()
		for k, item := range val {
			tbl.RawSetString(k, lua.LString(item))
		}
		return tbl
	default:
		// structs and named types go through their JSON form
		b, err := json.Marshal(val)
		if err != nil {
			return lua.LString(fmt.Sprint(val))
		}
		var decoded any
		if err := json.Unmarshal(b, &decoded); err != nil {
			return lua.LString(string(b))
		}
		return toLua(L, decoded)
	}
}

// fromLua converts a Lua value into JSON-encodable Go data. Array-like tables
// become slices and other tables become maps; functions and userdata are
// rejected.
func fromLua(v lua.LValue, depth int) (any, error) {
	if depth > maxLuaDepth {
		return nil, errLuaTooDeep
	}

	switch val := v.(type) {
	case *lua.LNilType:
		return nil, nil
	case lua.LBool:
		return bool(val), nil
	case lua.LNumber:
		return float64(val), nil
	case lua.LString:
		return string(val), nil
	case *lua.LTable:
		return tableToGo(val, depth)
	default:
		return nil, fmt.Errorf("cannot convert lua %s to a response value", v.Type().String())
	}
}

func tableToGo(tbl *lua.LTable, depth int) (any, error) {
	count := 0
	tbl.ForEach(func(_, _ lua.LValue) { count++ })

	if n := tbl.MaxN(); n > 0 && n == count {
		arr := make([]any, 0, n)
		for i := 1; i <= n; i++ {
			item, err := fromLua(tbl.RawGetInt(i), depth+1)
			if err != nil {
				return nil, err
			}
			arr = append(arr, item)
		}
		return arr, nil
	}

	obj := make(map[string]any, count)
	var convErr error
	tbl.ForEach(func(k, v lua.LValue) {
		if convErr != nil {
			return
		}
		var key string
		switch kv := k.(type) {
		case lua.LString:
			key = string(kv)
		case lua.LNumber:
			key = kv.String()
		default:
			convErr = fmt.Errorf("unsupported lua table key type %s", k.Type().String())
			return
		}
		item, err := fromLua(v, depth+1)
		if err != nil {
			convErr = err
			return
		}
		obj[key] = item
	})
	if convErr != nil {
		return nil, convErr
	}
	return obj, nil
}
