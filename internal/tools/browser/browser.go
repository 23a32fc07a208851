package browser

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/haasonsaas/turnctl/internal/agent"
)

// BrowserTool implements the agent.Tool interface for browser automation.
type BrowserTool struct {
	pool *Pool
}

// NewBrowserTool creates a new browser automation tool.
func NewBrowserTool(pool *Pool) *BrowserTool {
	return &BrowserTool{
		pool: pool,
	}
}

// Name returns the tool name.
func (b *BrowserTool) Name() string {
	return "browser"
}

// Description returns the tool description.
func (b *BrowserTool) Description() string {
	return "Automate web browser interactions including navigation, clicking, form filling, screenshots, content extraction, and JavaScript execution. Supports headless browsing with configurable timeouts and session management."
}

// Schema returns the JSON schema for the tool parameters.
func (b *BrowserTool) Schema() json.RawMessage {
	schema := `{
		"type": "object",
		"properties": {
			"action": {
				"type": "string",
				"enum": ["navigate", "click", "type", "screenshot", "extract_text", "extract_html", "wait_for_element", "wait_for_navigation", "execute_js"],
				"description": "The browser action to perform"
			},
			"url": {
				"type": "string",
				"description": "URL to navigate to (required for navigate action)"
			},
			"selector": {
				"type": "string",
				"description": "CSS selector for the target element (required for click, type, extract actions)"
			},
			"text": {
				"type": "string",
				"description": "Text to type into an input field (required for type action)"
			},
			"script": {
				"type": "string",
				"description": "JavaScript code to execute (required for execute_js action)"
			},
			"timeout": {
				"type": "integer",
				"description": "Timeout in milliseconds for wait operations (default: 30000)"
			},
			"full_page": {
				"type": "boolean",
				"description": "Whether to capture full page screenshot (default: false)"
			}
		},
		"required": ["action"]
	}`
	return json.RawMessage(schema)
}

// Execute runs the browser tool with the given parameters.
func (b *BrowserTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var baseParams struct {
		Action string `json:"action"`
	}

	if err := json.Unmarshal(params, &baseParams); err != nil {
		return &agent.ToolResult{
			Content: fmt.Sprintf("invalid parameters: %v", err),
			IsError: true,
		}, nil
	}

	instance, err := b.pool.Acquire(ctx)
	if err != nil {
		return &agent.ToolResult{
			Content: fmt.Sprintf("failed to acquire browser instance: %v", err),
			IsError: true,
		}, nil
	}
	defer b.pool.Release(instance)

	switch baseParams.Action {
	case "navigate":
		return b.handleNavigate(instance, params)
	case "click":
		return b.handleClick(instance, params)
	case "type":
		return b.handleType(instance, params)
	case "screenshot":
		return b.handleScreenshot(instance, params)
	case "extract_text":
		return b.handleExtractText(instance, params)
	case "extract_html":
		return b.handleExtractHTML(instance, params)
	case "wait_for_element":
		return b.handleWaitForElement(instance, params)
	case "wait_for_navigation":
		return b.handleWaitForNavigation(instance, params)
	case "execute_js":
		return b.handleExecuteJS(instance, params)
	default:
		return &agent.ToolResult{
			Content: fmt.Sprintf("unknown action: %s", baseParams.Action),
			IsError: true,
		}, nil
	}
}

func (b *BrowserTool) handleNavigate(instance *BrowserInstance, params json.RawMessage) (*agent.ToolResult, error) {
	var p struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("invalid navigate parameters: %v", err), IsError: true}, nil
	}
	if p.URL == "" {
		return &agent.ToolResult{Content: "url parameter is required for navigate action", IsError: true}, nil
	}

	if err := chromedp.Run(instance.Ctx, chromedp.Navigate(p.URL)); err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("navigation failed: %v", err), IsError: true}, nil
	}

	return &agent.ToolResult{Content: fmt.Sprintf("Successfully navigated to %s", p.URL), IsError: false}, nil
}

func (b *BrowserTool) handleClick(instance *BrowserInstance, params json.RawMessage) (*agent.ToolResult, error) {
	var p struct {
		Selector string `json:"selector"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("invalid click parameters: %v", err), IsError: true}, nil
	}
	if p.Selector == "" {
		return &agent.ToolResult{Content: "selector parameter is required for click action", IsError: true}, nil
	}

	if err := chromedp.Run(instance.Ctx, chromedp.Click(p.Selector, chromedp.ByQuery)); err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("click failed: %v", err), IsError: true}, nil
	}

	return &agent.ToolResult{Content: fmt.Sprintf("Successfully clicked element: %s", p.Selector), IsError: false}, nil
}

func (b *BrowserTool) handleType(instance *BrowserInstance, params json.RawMessage) (*agent.ToolResult, error) {
	var p struct {
		Selector string `json:"selector"`
		Text     string `json:"text"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("invalid type parameters: %v", err), IsError: true}, nil
	}
	if p.Selector == "" {
		return &agent.ToolResult{Content: "selector parameter is required for type action", IsError: true}, nil
	}

	if err := chromedp.Run(instance.Ctx,
		chromedp.Clear(p.Selector, chromedp.ByQuery),
		chromedp.SendKeys(p.Selector, p.Text, chromedp.ByQuery),
	); err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("type failed: %v", err), IsError: true}, nil
	}

	return &agent.ToolResult{Content: fmt.Sprintf("Successfully typed text into element: %s", p.Selector), IsError: false}, nil
}

func (b *BrowserTool) handleScreenshot(instance *BrowserInstance, params json.RawMessage) (*agent.ToolResult, error) {
	var p struct {
		FullPage bool `json:"full_page"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("invalid screenshot parameters: %v", err), IsError: true}, nil
	}

	var buf []byte
	var action chromedp.Action
	if p.FullPage {
		action = chromedp.FullScreenshot(&buf, 90)
	} else {
		action = chromedp.CaptureScreenshot(&buf)
	}
	if err := chromedp.Run(instance.Ctx, action); err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("screenshot failed: %v", err), IsError: true}, nil
	}

	encoded := base64.StdEncoding.EncodeToString(buf)

	return &agent.ToolResult{Content: fmt.Sprintf("Screenshot captured (base64): %s", encoded), IsError: false}, nil
}

func (b *BrowserTool) handleExtractText(instance *BrowserInstance, params json.RawMessage) (*agent.ToolResult, error) {
	var p struct {
		Selector string `json:"selector"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("invalid extract_text parameters: %v", err), IsError: true}, nil
	}

	selector := p.Selector
	if selector == "" {
		selector = "body"
	}

	var text string
	if err := chromedp.Run(instance.Ctx, chromedp.Text(selector, &text, chromedp.ByQuery)); err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("text extraction failed: %v", err), IsError: true}, nil
	}

	return &agent.ToolResult{Content: text, IsError: false}, nil
}

func (b *BrowserTool) handleExtractHTML(instance *BrowserInstance, params json.RawMessage) (*agent.ToolResult, error) {
	var p struct {
		Selector string `json:"selector"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("invalid extract_html parameters: %v", err), IsError: true}, nil
	}

	selector := p.Selector
	if selector == "" {
		selector = "html"
	}

	var html string
	if err := chromedp.Run(instance.Ctx, chromedp.OuterHTML(selector, &html, chromedp.ByQuery)); err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("HTML extraction failed: %v", err), IsError: true}, nil
	}

	return &agent.ToolResult{Content: html, IsError: false}, nil
}

func (b *BrowserTool) handleWaitForElement(instance *BrowserInstance, params json.RawMessage) (*agent.ToolResult, error) {
	var p struct {
		Selector string `json:"selector"`
		Timeout  int    `json:"timeout"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("invalid wait_for_element parameters: %v", err), IsError: true}, nil
	}
	if p.Selector == "" {
		return &agent.ToolResult{Content: "selector parameter is required for wait_for_element action", IsError: true}, nil
	}

	timeout := time.Duration(p.Timeout) * time.Millisecond
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	waitCtx, cancel := context.WithTimeout(instance.Ctx, timeout)
	defer cancel()

	if err := chromedp.Run(waitCtx, chromedp.WaitVisible(p.Selector, chromedp.ByQuery)); err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("wait for element failed: %v", err), IsError: true}, nil
	}

	return &agent.ToolResult{Content: fmt.Sprintf("Element appeared: %s", p.Selector), IsError: false}, nil
}

func (b *BrowserTool) handleWaitForNavigation(instance *BrowserInstance, params json.RawMessage) (*agent.ToolResult, error) {
	var p struct {
		Timeout int `json:"timeout"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("invalid wait_for_navigation parameters: %v", err), IsError: true}, nil
	}

	timeout := time.Duration(p.Timeout) * time.Millisecond
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	waitCtx, cancel := context.WithTimeout(instance.Ctx, timeout)
	defer cancel()

	// chromedp has no single "navigation finished" action; waiting for the
	// body to be ready again after a navigate/click approximates it well
	// enough for tool-call purposes.
	if err := chromedp.Run(waitCtx, chromedp.WaitReady("body", chromedp.ByQuery)); err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("wait for navigation failed: %v", err), IsError: true}, nil
	}

	return &agent.ToolResult{Content: "Navigation completed", IsError: false}, nil
}

func (b *BrowserTool) handleExecuteJS(instance *BrowserInstance, params json.RawMessage) (*agent.ToolResult, error) {
	var p struct {
		Script string `json:"script"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("invalid execute_js parameters: %v", err), IsError: true}, nil
	}
	if p.Script == "" {
		return &agent.ToolResult{Content: "script parameter is required for execute_js action", IsError: true}, nil
	}

	var result any
	if err := chromedp.Run(instance.Ctx, chromedp.Evaluate(p.Script, &result)); err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("JavaScript execution failed: %v", err), IsError: true}, nil
	}

	return &agent.ToolResult{Content: fmt.Sprintf("%v", result), IsError: false}, nil
}
