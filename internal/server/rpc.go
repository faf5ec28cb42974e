package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/mlit-mcp/mlit-mcp/internal/logging"
	"github.com/mlit-mcp/mlit-mcp/internal/tools"
)

const (
	jsonRPCVersion         = "2.0"
	defaultProtocolVersion = "2024-11-05"
	maxMessageBytes        = 16 << 20
)

// JSON-RPC 与 MCP 约定的错误码。
const (
	codeParseError       = -32700
	codeInvalidRequest   = -32600
	codeMethodNotFound   = -32601
	codeInvalidParams    = -32602
	codeInternalError    = -32603
	codeResourceNotFound = -32002
)

// ResourceProvider 提供 resources/list 与 resources/read 的数据来源。
type ResourceProvider interface {
	List() ([]tools.Resource, error)
	Read(uri string) (tools.Resource, []byte, error)
}

// RPCOptions 控制 stdio 服务的依赖与自描述信息。
type RPCOptions struct {
	Logger    *logrus.Logger
	Tools     *tools.Registry
	Resources ResourceProvider
	Name      string
	Version   string
}

// RPCServer 逐行读取 JSON-RPC 请求，并发处理，串行写回响应。
type RPCServer struct {
	opts    RPCOptions
	writeMu sync.Mutex
}

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type textContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type toolCallResult struct {
	Content           []textContent `json:"content"`
	StructuredContent any           `json:"structuredContent,omitempty"`
	IsError           bool          `json:"isError"`
}

type toolDescriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

type resourceContent struct {
	URI      string `json:"uri"`
	MimeType string `json:"mimeType"`
	Text     string `json:"text,omitempty"`
	Blob     string `json:"blob,omitempty"`
}

// NewRPCServer 校验依赖并创建服务。
func NewRPCServer(opts RPCOptions) (*RPCServer, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Tools == nil {
		return nil, errors.New("tool registry is required")
	}
	if opts.Name == "" {
		opts.Name = "mlit-mcp"
	}
	return &RPCServer{opts: opts}, nil
}

// Serve 处理 in 上的请求直到 EOF 或 ctx 结束，返回前等待进行中的请求写完响应。
func (s *RPCServer) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan []byte)
	readErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 64*1024), maxMessageBytes)
		for scanner.Scan() {
			line := append([]byte(nil), scanner.Bytes()...)
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-readErr:
			if err != nil {
				return fmt.Errorf("读取请求失败: %w", err)
			}
			return nil
		case line := <-lines:
			line = bytes.TrimSpace(line)
			if len(line) == 0 {
				continue
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				if resp := s.handleMessage(ctx, line); resp != nil {
					s.write(out, resp)
				}
			}()
		}
	}
}

// handleMessage 返回 nil 表示无需响应（通知）。
func (s *RPCServer) handleMessage(ctx context.Context, line []byte) (resp *rpcResponse) {
	if line[0] == '[' {
		return errorResponse(json.RawMessage("null"), codeInvalidRequest, "batch requests are not supported")
	}
	var req rpcRequest
	if err := json.Unmarshal(line, &req); err != nil {
		return errorResponse(json.RawMessage("null"), codeParseError, "parse error: "+err.Error())
	}
	if req.JSONRPC != jsonRPCVersion || req.Method == "" {
		if len(req.ID) == 0 {
			return nil
		}
		return errorResponse(req.ID, codeInvalidRequest, "invalid request")
	}

	requestID := uuid.NewString()
	logger := s.opts.Logger.WithFields(logrus.Fields{
		"action":     "rpc",
		"method":     req.Method,
		"request_id": requestID,
	})
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			logger.WithField("panic", fmt.Sprint(r)).Error("rpc handler panic")
			if len(req.ID) == 0 {
				resp = nil
				return
			}
			resp = errorResponse(req.ID, codeInternalError, "internal error")
		}
	}()

	result, rpcErr := s.dispatch(ctx, logger, req)
	entry := logger.WithField("duration_ms", time.Since(start).Milliseconds())
	if rpcErr != nil {
		entry.WithField("code", rpcErr.Code).Warn(rpcErr.Message)
	} else {
		entry.Debug("rpc handled")
	}

	if len(req.ID) == 0 {
		return nil
	}
	if rpcErr != nil {
		return &rpcResponse{JSONRPC: jsonRPCVersion, ID: req.ID, Error: rpcErr}
	}
	return &rpcResponse{JSONRPC: jsonRPCVersion, ID: req.ID, Result: result}
}

func (s *RPCServer) dispatch(ctx context.Context, logger logrus.FieldLogger, req rpcRequest) (any, *rpcError) {
	switch req.Method {
	case "initialize":
		return s.initialize(req.Params)
	case "ping":
		return map[string]any{}, nil
	case "tools/list":
		return s.listTools(), nil
	case "tools/call":
		return s.callTool(ctx, logger, req)
	case "resources/list":
		return s.listResources()
	case "resources/read":
		return s.readResource(req.Params)
	default:
		if len(req.ID) == 0 {
			return nil, nil
		}
		return nil, &rpcError{Code: codeMethodNotFound, Message: "method not found: " + req.Method}
	}
}

func (s *RPCServer) initialize(raw json.RawMessage) (any, *rpcError) {
	var params struct {
		ProtocolVersion string `json:"protocolVersion"`
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &params); err != nil {
			return nil, &rpcError{Code: codeInvalidParams, Message: "invalid initialize params: " + err.Error()}
		}
	}
	version := params.ProtocolVersion
	if version == "" {
		version = defaultProtocolVersion
	}
	capabilities := map[string]any{"tools": map[string]any{}}
	if s.opts.Resources != nil {
		capabilities["resources"] = map[string]any{}
	}
	return map[string]any{
		"protocolVersion": version,
		"capabilities":    capabilities,
		"serverInfo": map[string]string{
			"name":    s.opts.Name,
			"version": s.opts.Version,
		},
	}, nil
}

func (s *RPCServer) listTools() any {
	registered := s.opts.Tools.List()
	descriptors := make([]toolDescriptor, 0, len(registered))
	for _, tool := range registered {
		descriptors = append(descriptors, toolDescriptor{
			Name:        tool.Name(),
			Description: tool.Description(),
			InputSchema: tool.InputSchema(),
		})
	}
	return map[string]any{"tools": descriptors}
}

func (s *RPCServer) callTool(ctx context.Context, logger logrus.FieldLogger, req rpcRequest) (any, *rpcError) {
	var params struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil || params.Name == "" {
		return nil, &rpcError{Code: codeInvalidParams, Message: "tools/call requires a tool name"}
	}
	tool, ok := s.opts.Tools.Resolve(params.Name)
	if !ok {
		return nil, &rpcError{Code: codeInvalidParams, Message: "unknown tool: " + params.Name}
	}

	toolLogger := logger.WithFields(logging.ToolFields(tool.Name(), string(req.ID)))
	output, err := tool.Invoke(ctx, params.Arguments)
	if err != nil {
		toolLogger.WithError(err).Warn("tool failed")
		return toolCallResult{
			Content: []textContent{{Type: "text", Text: err.Error()}},
			IsError: true,
		}, nil
	}

	encoded, err := json.Marshal(output)
	if err != nil {
		return nil, &rpcError{Code: codeInternalError, Message: "encode tool result: " + err.Error()}
	}
	toolLogger.Info("tool completed")
	return toolCallResult{
		Content:           []textContent{{Type: "text", Text: string(encoded)}},
		StructuredContent: json.RawMessage(encoded),
	}, nil
}

func (s *RPCServer) listResources() (any, *rpcError) {
	if s.opts.Resources == nil {
		return map[string]any{"resources": []tools.Resource{}}, nil
	}
	resources, err := s.opts.Resources.List()
	if err != nil {
		return nil, &rpcError{Code: codeInternalError, Message: err.Error()}
	}
	if resources == nil {
		resources = []tools.Resource{}
	}
	return map[string]any{"resources": resources}, nil
}

func (s *RPCServer) readResource(raw json.RawMessage) (any, *rpcError) {
	var params struct {
		URI string `json:"uri"`
	}
	if err := json.Unmarshal(raw, &params); err != nil || params.URI == "" {
		return nil, &rpcError{Code: codeInvalidParams, Message: "resources/read requires a uri"}
	}
	if s.opts.Resources == nil {
		return nil, &rpcError{Code: codeResourceNotFound, Message: "resource not found: " + params.URI}
	}
	resource, content, err := s.opts.Resources.Read(params.URI)
	if err != nil {
		if errors.Is(err, tools.ErrResourceNotFound) {
			return nil, &rpcError{Code: codeResourceNotFound, Message: err.Error()}
		}
		return nil, &rpcError{Code: codeInternalError, Message: err.Error()}
	}
	item := resourceContent{URI: resource.URI, MimeType: resource.MimeType}
	if resource.IsText() {
		item.Text = string(content)
	} else {
		item.Blob = base64.StdEncoding.EncodeToString(content)
	}
	return map[string]any{"contents": []resourceContent{item}}, nil
}

func (s *RPCServer) write(out io.Writer, resp *rpcResponse) {
	encoded, err := json.Marshal(resp)
	if err != nil {
		s.opts.Logger.WithError(err).Error("encode rpc response failed")
		encoded, _ = json.Marshal(errorResponse(resp.ID, codeInternalError, "internal error"))
	}
	encoded = append(encoded, '\n')

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := out.Write(encoded); err != nil {
		s.opts.Logger.WithError(err).Error("write rpc response failed")
	}
}

func errorResponse(id json.RawMessage, code int, message string) *rpcResponse {
	return &rpcResponse{
		JSONRPC: jsonRPCVersion,
		ID:      id,
		Error:   &rpcError{Code: code, Message: message},
	}
}
