package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mlit-mcp/mlit-mcp/internal/tools"
)

type echoTool struct {
	name string
	fail error
}

func (e echoTool) Name() string { return e.name }

func (e echoTool) Description() string { return "echo arguments" }

func (e echoTool) InputSchema() json.RawMessage { return json.RawMessage(`{"type":"object"}`) }

func (e echoTool) Invoke(_ context.Context, args json.RawMessage) (any, error) {
	if e.fail != nil {
		return nil, e.fail
	}
	if strings.Contains(string(args), "panic") {
		panic("boom")
	}
	return map[string]json.RawMessage{"echo": args}, nil
}

type decodedResponse struct {
	ID     json.RawMessage `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func newTestRPCServer(t *testing.T, resources ResourceProvider) *RPCServer {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	registry := tools.NewRegistry()
	registry.MustRegister(echoTool{name: "test.echo"})
	registry.MustRegister(echoTool{name: "test.fail", fail: errors.New("upstream unavailable")})

	srv, err := NewRPCServer(RPCOptions{
		Logger:    logger,
		Tools:     registry,
		Resources: resources,
		Version:   "test",
	})
	if err != nil {
		t.Fatalf("create rpc server: %v", err)
	}
	return srv
}

// serveLines 执行一轮请求并按 id 收集响应。
func serveLines(t *testing.T, srv *RPCServer, lines ...string) map[string]decodedResponse {
	t.Helper()
	in := strings.NewReader(strings.Join(lines, "\n") + "\n")
	var out bytes.Buffer
	if err := srv.Serve(context.Background(), in, &out); err != nil {
		t.Fatalf("serve: %v", err)
	}

	responses := make(map[string]decodedResponse)
	scanner := bufio.NewScanner(&out)
	scanner.Buffer(make([]byte, 64*1024), maxMessageBytes)
	for scanner.Scan() {
		var resp decodedResponse
		if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
			t.Fatalf("decode response %q: %v", scanner.Text(), err)
		}
		responses[string(resp.ID)] = resp
	}
	return responses
}

func TestRPCInitializeAndPing(t *testing.T) {
	srv := newTestRPCServer(t, nil)
	responses := serveLines(t, srv,
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-03-26"}}`,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		`{"jsonrpc":"2.0","id":"p","method":"ping"}`,
	)
	if len(responses) != 2 {
		t.Fatalf("notifications must not be answered, got %d responses", len(responses))
	}

	var init struct {
		ProtocolVersion string `json:"protocolVersion"`
		ServerInfo      struct {
			Name    string `json:"name"`
			Version string `json:"version"`
		} `json:"serverInfo"`
		Capabilities map[string]any `json:"capabilities"`
	}
	if err := json.Unmarshal(responses["1"].Result, &init); err != nil {
		t.Fatalf("decode initialize: %v", err)
	}
	if init.ProtocolVersion != "2025-03-26" || init.ServerInfo.Name != "mlit-mcp" || init.ServerInfo.Version != "test" {
		t.Fatalf("unexpected initialize result: %+v", init)
	}
	if _, ok := init.Capabilities["tools"]; !ok {
		t.Fatalf("tools capability missing")
	}
	if _, ok := init.Capabilities["resources"]; ok {
		t.Fatalf("resources capability must be absent without a provider")
	}
	if string(responses[`"p"`].Result) != "{}" {
		t.Fatalf("unexpected ping result: %s", responses[`"p"`].Result)
	}
}

func TestRPCToolsListAndCall(t *testing.T) {
	srv := newTestRPCServer(t, nil)
	responses := serveLines(t, srv,
		`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"test.echo","arguments":{"a":1}}}`,
		`{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"test.fail","arguments":{}}}`,
		`{"jsonrpc":"2.0","id":4,"method":"tools/call","params":{"name":"nope"}}`,
	)

	var list struct {
		Tools []toolDescriptor `json:"tools"`
	}
	if err := json.Unmarshal(responses["1"].Result, &list); err != nil {
		t.Fatalf("decode tools/list: %v", err)
	}
	if len(list.Tools) != 2 || list.Tools[0].Name != "test.echo" {
		t.Fatalf("unexpected tools: %+v", list.Tools)
	}

	var call toolCallResult
	if err := json.Unmarshal(responses["2"].Result, &call); err != nil {
		t.Fatalf("decode tools/call: %v", err)
	}
	if call.IsError || len(call.Content) != 1 || call.Content[0].Text != `{"echo":{"a":1}}` {
		t.Fatalf("unexpected call result: %+v", call)
	}

	var failed toolCallResult
	if err := json.Unmarshal(responses["3"].Result, &failed); err != nil {
		t.Fatalf("decode failed call: %v", err)
	}
	if !failed.IsError || failed.Content[0].Text != "upstream unavailable" {
		t.Fatalf("tool failure should be an isError result: %+v", failed)
	}

	if responses["4"].Error == nil || responses["4"].Error.Code != codeInvalidParams {
		t.Fatalf("unknown tool should be invalid params: %+v", responses["4"])
	}
}

func TestRPCProtocolErrors(t *testing.T) {
	srv := newTestRPCServer(t, nil)
	responses := serveLines(t, srv,
		`{"jsonrpc":"2.0","id":1,"method":"unknown/method"}`,
		`{not json`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"test.echo","arguments":{"panic":true}}}`,
		`{"jsonrpc":"1.0","id":3,"method":"ping"}`,
		``,
	)
	if responses["1"].Error == nil || responses["1"].Error.Code != codeMethodNotFound {
		t.Fatalf("expected method not found: %+v", responses["1"])
	}
	if responses["null"].Error == nil || responses["null"].Error.Code != codeParseError {
		t.Fatalf("expected parse error: %+v", responses["null"])
	}
	if responses["2"].Error == nil || responses["2"].Error.Code != codeInternalError {
		t.Fatalf("panic should map to internal error: %+v", responses["2"])
	}
	if responses["3"].Error == nil || responses["3"].Error.Code != codeInvalidRequest {
		t.Fatalf("wrong jsonrpc version should be invalid request: %+v", responses["3"])
	}
}

func TestRPCResources(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "abc.geojson"), []byte(`{"type":"FeatureCollection"}`), 0o644); err != nil {
		t.Fatalf("write resource: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "tile.pbf"), []byte{0x1a, 0x02}, 0o644); err != nil {
		t.Fatalf("write resource: %v", err)
	}
	srv := newTestRPCServer(t, tools.NewResourceStore(dir))
	responses := serveLines(t, srv,
		`{"jsonrpc":"2.0","id":1,"method":"resources/list"}`,
		`{"jsonrpc":"2.0","id":2,"method":"resources/read","params":{"uri":"resource://mlit/transaction_points/abc.geojson"}}`,
		`{"jsonrpc":"2.0","id":3,"method":"resources/read","params":{"uri":"resource://mlit/transaction_points/missing.geojson"}}`,
		`{"jsonrpc":"2.0","id":4,"method":"resources/read","params":{}}`,
		`{"jsonrpc":"2.0","id":5,"method":"resources/read","params":{"uri":"resource://mlit/school_districts/tile.pbf"}}`,
	)

	var list struct {
		Resources []tools.Resource `json:"resources"`
	}
	if err := json.Unmarshal(responses["1"].Result, &list); err != nil {
		t.Fatalf("decode resources/list: %v", err)
	}
	if len(list.Resources) != 2 || list.Resources[0].URI != tools.ResourceURI("files", "abc.geojson") {
		t.Fatalf("unexpected resources: %+v", list.Resources)
	}

	var read struct {
		Contents []resourceContent `json:"contents"`
	}
	if err := json.Unmarshal(responses["2"].Result, &read); err != nil {
		t.Fatalf("decode resources/read: %v", err)
	}
	if len(read.Contents) != 1 || read.Contents[0].Text != `{"type":"FeatureCollection"}` {
		t.Fatalf("unexpected contents: %+v", read.Contents)
	}

	if responses["3"].Error == nil || responses["3"].Error.Code != codeResourceNotFound {
		t.Fatalf("missing resource should be not found: %+v", responses["3"])
	}
	if responses["4"].Error == nil || responses["4"].Error.Code != codeInvalidParams {
		t.Fatalf("missing uri should be invalid params: %+v", responses["4"])
	}

	var blob struct {
		Contents []resourceContent `json:"contents"`
	}
	if err := json.Unmarshal(responses["5"].Result, &blob); err != nil {
		t.Fatalf("decode pbf resources/read: %v", err)
	}
	if len(blob.Contents) != 1 || blob.Contents[0].Blob != "GgI=" || blob.Contents[0].Text != "" {
		t.Fatalf("binary resource should be returned as base64 blob: %+v", blob.Contents)
	}
}

func TestRPCServeStopsOnContextCancel(t *testing.T) {
	srv := newTestRPCServer(t, nil)
	reader, writer := io.Pipe()
	defer writer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, reader, io.Discard) }()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("serve did not stop after cancel")
	}
}

func TestNewRPCServerRequiresDependencies(t *testing.T) {
	if _, err := NewRPCServer(RPCOptions{Tools: tools.NewRegistry()}); err == nil {
		t.Fatalf("logger should be required")
	}
	if _, err := NewRPCServer(RPCOptions{Logger: logrus.New()}); err == nil {
		t.Fatalf("tool registry should be required")
	}
}
