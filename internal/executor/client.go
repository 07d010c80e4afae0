// Package executor is the client for the hosted compile-and-run service.
// The gateway is a stateless request/response call: source text, a
// language/version pair, and stdin go in; stdout, a runtime stderr, or a
// compiler stderr come back.
package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/algoprep/algoprep-backend/internal/config"
)

// Request carries one execution of source against stdin.
type Request struct {
	Language string
	Version  string
	Source   string
	Stdin    string
}

// Result is the outcome of one gateway call.
type Result struct {
	Stdout       string `json:"stdout"`
	Stderr       string `json:"stderr"`
	CompileError string `json:"compile_error,omitempty"`
	ExitCode     int    `json:"exit_code"`
}

// Compiled reports whether the source made it past compilation.
func (r *Result) Compiled() bool {
	return strings.TrimSpace(r.CompileError) == ""
}

// Client calls the execution gateway over HTTP.
type Client struct {
	baseURL  string
	language string
	version  string
	http     *http.Client
	log      zerolog.Logger
}

// NewClient creates a gateway client from configuration.
func NewClient(cfg *config.Config, log zerolog.Logger) *Client {
	return &Client{
		baseURL:  strings.TrimRight(cfg.ExecGatewayURL, "/"),
		language: cfg.ExecLanguage,
		version:  cfg.ExecVersion,
		http:     &http.Client{Timeout: cfg.ExecTimeout},
		log:      log.With().Str("component", "executor").Logger(),
	}
}

// Wire format of the gateway (Piston-compatible).
type executePayload struct {
	Language string        `json:"language"`
	Version  string        `json:"version"`
	Files    []payloadFile `json:"files"`
	Stdin    string        `json:"stdin"`
}

type payloadFile struct {
	Content string `json:"content"`
}

type executeResponse struct {
	Compile *stageResponse `json:"compile,omitempty"`
	Run     stageResponse  `json:"run"`
}

type stageResponse struct {
	Stdout string `json:"stdout"`
	Stderr string `json:"stderr"`
	Code   int    `json:"code"`
}

// Execute runs the given source with stdin on the gateway. A network error,
// non-200 status, or malformed body is returned as an error; the caller
// decides how to degrade (failed test case, inline error text).
func (c *Client) Execute(ctx context.Context, req Request) (*Result, error) {
	language := req.Language
	version := req.Version
	if language == "" {
		language = c.language
	}
	if version == "" {
		// The configured version pin belongs to the configured language; any
		// other language runs whatever the gateway has installed.
		if language == c.language {
			version = c.version
		} else {
			version = "*"
		}
	}

	body, err := json.Marshal(executePayload{
		Language: language,
		Version:  version,
		Files:    []payloadFile{{Content: req.Source}},
		Stdin:    req.Stdin,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal execute payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/execute", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build execute request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	started := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("call execution gateway: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Read a bounded slice of the body for the error message.
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("execution gateway returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var wire executeResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("decode gateway response: %w", err)
	}

	result := &Result{
		Stdout:   wire.Run.Stdout,
		Stderr:   wire.Run.Stderr,
		ExitCode: wire.Run.Code,
	}
	if wire.Compile != nil && (wire.Compile.Code != 0 || strings.TrimSpace(wire.Compile.Stderr) != "") {
		result.CompileError = wire.Compile.Stderr
		if result.CompileError == "" {
			result.CompileError = wire.Compile.Stdout
		}
	}

	c.log.Debug().
		Str("language", language).
		Dur("took", time.Since(started)).
		Bool("compiled", result.Compiled()).
		Msg("Gateway execution finished")

	return result, nil
}
