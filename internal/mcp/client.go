package mcp

import (
	"bufio"
	"encoding/json"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/wrp1979/llama-agent/internal/logging"
)

// MCPProtocolVersion is the protocol version this client speaks.
const MCPProtocolVersion = "2024-11-05"

// Client implements an MCP client over the stdio transport of ProcessManager.
type Client struct {
	serverName   string
	process      *ProcessManager
	idGen        *RequestIDGenerator
	logger       logging.Logger

	mu           sync.RWMutex
	pendingCalls map[any]chan *Response
	initialized  bool
	serverInfo   *ServerInfo
	capabilities *ServerCapabilities
}

type ClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type ServerCapabilities struct {
	Tools     *ToolsCapability     `json:"tools,omitempty"`
	Resources *ResourcesCapability `json:"resources,omitempty"`
	Prompts   *PromptsCapability   `json:"prompts,omitempty"`
}

type ToolsCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}
type ResourcesCapability struct {
	Subscribe   bool `json:"subscribe,omitempty"`
	ListChanged bool `json:"listChanged,omitempty"`
}
type PromptsCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

type InitializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	ServerInfo      ServerInfo         `json:"serverInfo"`
	Capabilities    ServerCapabilities `json:"capabilities"`
}

// ToolSchema is one entry of an MCP server's tools/list response.
type ToolSchema struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

// ToolCallResult is the result of an MCP tools/call.
type ToolCallResult struct {
	Content []ContentBlock `json:"content"`
	IsError bool           `json:"isError,omitempty"`
}

// ContentBlock is one piece of an MCP tool's reply.
type ContentBlock struct {
	Type     string `json:"type"` // "text", "image", "resource"
	Text     string `json:"text,omitempty"`
	Data     string `json:"data,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
}

func NewClient(serverName string, process *ProcessManager, log logging.Logger) *Client {
	if log == nil {
		log = logging.Nop()
	}
	return &Client{
		serverName:   serverName,
		process:      process,
		idGen:        NewRequestIDGenerator(),
		pendingCalls: make(map[any]chan *Response),
		logger:       log,
	}
}

// Start starts the server process, its read loop, and the initialize
// handshake.
func (c *Client) Start(ctx context.Context) error {
	if err := c.process.Start(ctx); err != nil {
		return fmt.Errorf("start server process: %w", err)
	}
	go c.readLoop()

	if err := c.initialize(ctx); err != nil {
		_ = c.process.Stop(5 * time.Second)
		return fmt.Errorf("initialize handshake: %w", err)
	}
	return nil
}

func (c *Client) Stop() error { return c.process.Stop(5 * time.Second) }

func (c *Client) initialize(ctx context.Context) error {
	params := map[string]any{
		"protocolVersion": MCPProtocolVersion,
		"clientInfo":      ClientInfo{Name: "llama-agent", Version: "0.1.0"},
	}
	result, err := c.call(ctx, "initialize", params)
	if err != nil {
		return err
	}
	var initResult InitializeResult
	if err := unmarshalResult(result, &initResult); err != nil {
		return fmt.Errorf("parse initialize result: %w", err)
	}
	if initResult.ProtocolVersion != MCPProtocolVersion {
		c.logger.Warn("protocol version mismatch: client=%s server=%s", MCPProtocolVersion, initResult.ProtocolVersion)
	}

	c.mu.Lock()
	c.serverInfo = &initResult.ServerInfo
	c.capabilities = &initResult.Capabilities
	c.initialized = true
	c.mu.Unlock()

	if err := c.notify(ctx, "notifications/initialized", nil); err != nil {
		c.logger.Warn("send initialized notification: %v", err)
	}
	return nil
}

// ListTools retrieves the server's tool catalog.
func (c *Client) ListTools(ctx context.Context) ([]ToolSchema, error) {
	if !c.IsInitialized() {
		return nil, fmt.Errorf("client not initialized")
	}
	result, err := c.call(ctx, "tools/list", nil)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Tools []ToolSchema `json:"tools"`
	}
	if err := unmarshalResult(result, &resp); err != nil {
		return nil, fmt.Errorf("parse tools list: %w", err)
	}
	return resp.Tools, nil
}

// CallTool invokes a named tool on the server.
func (c *Client) CallTool(ctx context.Context, name string, arguments map[string]any) (*ToolCallResult, error) {
	if !c.IsInitialized() {
		return nil, fmt.Errorf("client not initialized")
	}
	result, err := c.call(ctx, "tools/call", map[string]any{"name": name, "arguments": arguments})
	if err != nil {
		return nil, err
	}
	var toolResult ToolCallResult
	if err := unmarshalResult(result, &toolResult); err != nil {
		return nil, fmt.Errorf("parse tool result: %w", err)
	}
	return &toolResult, nil
}

func (c *Client) call(ctx context.Context, method string, params map[string]any) (any, error) {
	id := c.idGen.Next()
	req := NewRequest(id, method, params)
	data, err := Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	data = append(data, '\n')

	respChan := make(chan *Response, 1)
	c.mu.Lock()
	c.pendingCalls[id] = respChan
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pendingCalls, id)
		c.mu.Unlock()
	}()

	if err := c.process.Write(data); err != nil {
		return nil, fmt.Errorf("write request: %w", err)
	}

	select {
	case resp := <-respChan:
		if resp.IsError() {
			return nil, resp.Error
		}
		return resp.Result, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("request cancelled: %w", ctx.Err())
	case <-time.After(30 * time.Second):
		return nil, fmt.Errorf("request timeout after 30s")
	}
}

func (c *Client) notify(_ context.Context, method string, params map[string]any) error {
	data, err := Marshal(NewNotification(method, params))
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	data = append(data, '\n')
	return c.process.Write(data)
}

func (c *Client) readLoop() {
	scanner := bufio.NewScanner(c.process.GetStdout())
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	for scanner.Scan() {
		resp, err := UnmarshalResponse(scanner.Bytes())
		if err != nil {
			c.logger.Error("unmarshal MCP response: %v", err)
			continue
		}
		c.mu.RLock()
		ch, ok := c.pendingCalls[resp.ID]
		c.mu.RUnlock()
		if !ok {
			c.logger.Warn("no pending call for response id=%v", resp.ID)
			continue
		}
		select {
		case ch <- resp:
		default:
			c.logger.Warn("response channel full, dropping id=%v", resp.ID)
		}
	}
	if err := scanner.Err(); err != nil {
		c.logger.Error("MCP read loop error: %v", err)
	}
}

func (c *Client) IsInitialized() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.initialized
}

func (c *Client) GetServerInfo() *ServerInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.serverInfo
}

func unmarshalResult(result any, target any) error {
	data, err := Marshal(result)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, target)
}
