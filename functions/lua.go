package functions

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"
	"go.uber.org/zap"
)

// defaultLuaLoadTimeout bounds the module body evaluation at discovery time
const defaultLuaLoadTimeout = 5 * time.Second

// LuaLoader loads .lua modules. The module body runs once at load time to
// find the handler, which is resolved in order: a function returned by the
// chunk (default), a table returned by the chunk with a handler field
// (handler), or a global function named handler (global).
type LuaLoader struct {
	loadTimeout time.Duration
}

// NewLuaLoader creates a new LuaLoader
func NewLuaLoader() *LuaLoader {
	return &LuaLoader{loadTimeout: defaultLuaLoadTimeout}
}

// Kind implements Loader
func (l *LuaLoader) Kind() string {
	return "lua"
}

// Extensions implements Loader
func (l *LuaLoader) Extensions() []string {
	return []string{".lua"}
}

// Load implements Loader
func (l *LuaLoader) Load(source string) (*Module, error) {
	proto, err := compileLua(source)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), l.loadTimeout)
	defer cancel()

	L := lua.NewState()
	defer L.Close()
	L.SetContext(ctx)

	_, resolution, err := runChunk(L, proto)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate %s: %w", source, err)
	}
	if resolution == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoHandlerExport, source)
	}

	return &Module{
		Handler:    &luaHandler{source: source, proto: proto},
		Resolution: resolution,
	}, nil
}

func compileLua(source string) (*lua.FunctionProto, error) {
	f, err := os.Open(source)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", source, err)
	}
	defer f.Close()

	chunk, err := parse.Parse(bufio.NewReader(f), source)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", source, err)
	}

	proto, err := lua.Compile(chunk, source)
	if err != nil {
		return nil, fmt.Errorf("failed to compile %s: %w", source, err)
	}
	return proto, nil
}

// runChunk evaluates the module body in L and resolves its handler
func runChunk(L *lua.LState, proto *lua.FunctionProto) (*lua.LFunction, string, error) {
	fn := L.NewFunctionFromProto(proto)
	if err := L.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}); err != nil {
		return nil, "", err
	}
	ret := L.Get(-1)
	L.Pop(1)

	if handler, ok := ret.(*lua.LFunction); ok {
		return handler, ResolutionDefault, nil
	}
	if tbl, ok := ret.(*lua.LTable); ok {
		if handler, ok := tbl.RawGetString("handler").(*lua.LFunction); ok {
			return handler, ResolutionHandler, nil
		}
	}
	if handler, ok := L.GetGlobal("handler").(*lua.LFunction); ok {
		return handler, ResolutionGlobal, nil
	}
	return nil, "", nil
}

// luaHandler runs a compiled module in a fresh VM per invocation
type luaHandler struct {
	source string
	proto  *lua.FunctionProto
}

func (h *luaHandler) Invoke(inv *Invocation) (any, error) {
	payload, err := buildPayload(inv)
	if err != nil {
		return nil, err
	}

	L := lua.NewState()
	defer L.Close()
	L.SetContext(inv.Context())

	fn, _, err := runChunk(L, h.proto)
	if err != nil {
		return nil, fmt.Errorf("lua module %s: %w", h.source, err)
	}
	if fn == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoHandlerExport, h.source)
	}

	if err := L.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}, luaContext(L, inv, payload)); err != nil {
		return nil, fmt.Errorf("lua handler %s: %w", h.source, err)
	}
	ret := L.Get(-1)
	L.Pop(1)

	return fromLua(ret, 0)
}

// luaContext builds the ctx table passed to the handler:
//
//	ctx.req    request method, path, route, id, headers, query and body
//	ctx.user   verified claims
//	ctx.reply  status(code), header(name, value), send(body)
//	ctx.log    log(message)
func luaContext(L *lua.LState, inv *Invocation, payload *requestPayload) *lua.LTable {
	logger := inv.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	sink := inv.Response

	reply := L.NewTable()
	L.SetField(reply, "status", L.NewFunction(func(L *lua.LState) int {
		code := L.CheckInt(1)
		if code < 100 || code > 599 {
			L.ArgError(1, "status code out of range")
		}
		sink.Status(code)
		return 0
	}))
	L.SetField(reply, "header", L.NewFunction(func(L *lua.LState) int {
		sink.Header().Set(L.CheckString(1), L.CheckString(2))
		return 0
	}))
	L.SetField(reply, "send", L.NewFunction(func(L *lua.LState) int {
		if err := sendLua(sink, L.Get(1)); err != nil {
			L.RaiseError("reply.send: %s", err.Error())
		}
		return 0
	}))

	ctx := L.NewTable()
	L.SetField(ctx, "req", toLua(L, payload))
	L.SetField(ctx, "user", toLua(L, map[string]any(inv.Claims)))
	L.SetField(ctx, "reply", reply)
	L.SetField(ctx, "log", L.NewFunction(func(L *lua.LState) int {
		logger.Info("function log", zap.String("message", L.CheckString(1)))
		return 0
	}))
	return ctx
}

// sendLua writes a Lua value as the response body. Strings are sent as text
// and tables as JSON.
func sendLua(sink *ResponseSink, v lua.LValue) error {
	switch val := v.(type) {
	case *lua.LNilType:
		sink.Status(sink.statusOr(http.StatusOK))
		sink.writeHeader()
		return nil
	case lua.LString:
		if sink.Header().Get("Content-Type") == "" {
			sink.Header().Set("Content-Type", "text/plain; charset=utf-8")
		}
		_, err := sink.Write([]byte(val))
		return err
	default:
		data, err := fromLua(val, 0)
		if err != nil {
			return err
		}
		return sink.JSON(sink.statusOr(http.StatusOK), data)
	}
}
