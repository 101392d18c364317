// Package lspserver implements a diagnostics-only Language Server Protocol
// server: `pmmlc lsp` publishes malformed-input / unknown-reference /
// unsupported-feature diagnostics for a PMML document open in an editor.
// There is no completion, hover, go-to-definition, references, or symbol
// support to offer for a PMML document, only compile diagnostics.
package lspserver

import (
	"bytes"
	"context"
	"encoding/json"
	"os"

	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/protocol"
	"go.uber.org/zap"

	"github.com/pmmlc/pmmlc/internal/obs"
	"github.com/pmmlc/pmmlc/pkg/driver"
	"github.com/pmmlc/pmmlc/pkg/models"
	"github.com/pmmlc/pmmlc/pkg/pmmlctx"
	"github.com/pmmlc/pmmlc/pkg/xmldom"
)

// Server implements the LSP server.
type Server struct {
	log          *zap.Logger
	conn         jsonrpc2.Conn
	client       protocol.Client
	capabilities protocol.ServerCapabilities
	cancel       context.CancelFunc
}

// NewServer creates a diagnostics-only LSP server instance.
func NewServer(log *zap.Logger) *Server {
	return &Server{
		log: log,
		capabilities: protocol.ServerCapabilities{
			TextDocumentSync: protocol.TextDocumentSyncOptions{
				OpenClose: true,
				Change:    protocol.TextDocumentSyncKindFull,
				Save:      &protocol.SaveOptions{IncludeText: false},
			},
		},
	}
}

// Run starts the LSP server, reading/writing LSP frames over stdio.
func (s *Server) Run(ctx context.Context) error {
	s.log.Info("starting pmmlc language server")

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	stream := jsonrpc2.NewStream(stdrwc{})
	conn := jsonrpc2.NewConn(stream)
	s.conn = conn
	s.client = protocol.ClientDispatcher(conn, s.log)

	conn.Go(ctx, s.handler())

	<-ctx.Done()
	s.log.Info("shutting down pmmlc language server")
	return conn.Close()
}

func (s *Server) handler() jsonrpc2.Handler {
	return func(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
		switch req.Method() {
		case protocol.MethodInitialize:
			return s.handleInitialize(ctx, reply, req)
		case protocol.MethodInitialized:
			return reply(ctx, nil, nil)
		case protocol.MethodShutdown:
			return reply(ctx, nil, nil)
		case protocol.MethodExit:
			return s.handleExit(ctx, reply)
		case protocol.MethodTextDocumentDidOpen:
			return s.handleDidOpen(ctx, reply, req)
		case protocol.MethodTextDocumentDidChange:
			return s.handleDidChange(ctx, reply, req)
		case protocol.MethodTextDocumentDidClose:
			return reply(ctx, nil, nil)
		case protocol.MethodTextDocumentDidSave:
			return s.handleDidSave(ctx, reply, req)
		default:
			return reply(ctx, nil, jsonrpc2.ErrMethodNotFound)
		}
	}
}

func (s *Server) handleInitialize(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	var params protocol.InitializeParams
	if err := json.Unmarshal(req.Params(), &params); err != nil {
		return reply(ctx, nil, &jsonrpc2.Error{Code: jsonrpc2.InvalidParams, Message: "failed to parse initialize params"})
	}

	result := protocol.InitializeResult{
		Capabilities: s.capabilities,
		ServerInfo:   &protocol.ServerInfo{Name: "pmmlc-lsp", Version: "0.1.0"},
	}
	return reply(ctx, result, nil)
}

func (s *Server) handleExit(ctx context.Context, reply jsonrpc2.Replier) error {
	if err := reply(ctx, nil, nil); err != nil {
		s.log.Warn("error replying to exit", zap.Error(err))
	}
	if s.cancel != nil {
		s.cancel()
	}
	return nil
}

func (s *Server) handleDidOpen(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	var params protocol.DidOpenTextDocumentParams
	if err := json.Unmarshal(req.Params(), &params); err != nil {
		return reply(ctx, nil, &jsonrpc2.Error{Code: jsonrpc2.InvalidParams, Message: "failed to parse didOpen params"})
	}
	s.publishDiagnostics(ctx, string(params.TextDocument.URI), params.TextDocument.Text)
	return reply(ctx, nil, nil)
}

func (s *Server) handleDidChange(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	var params protocol.DidChangeTextDocumentParams
	if err := json.Unmarshal(req.Params(), &params); err != nil {
		return reply(ctx, nil, &jsonrpc2.Error{Code: jsonrpc2.InvalidParams, Message: "failed to parse didChange params"})
	}
	if len(params.ContentChanges) == 0 {
		return reply(ctx, nil, nil)
	}
	// Full document sync only, so the last change carries the whole text.
	content := params.ContentChanges[len(params.ContentChanges)-1].Text
	s.publishDiagnostics(ctx, string(params.TextDocument.URI), content)
	return reply(ctx, nil, nil)
}

func (s *Server) handleDidSave(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	var params protocol.DidSaveTextDocumentParams
	if err := json.Unmarshal(req.Params(), &params); err != nil {
		return reply(ctx, nil, &jsonrpc2.Error{Code: jsonrpc2.InvalidParams, Message: "failed to parse didSave params"})
	}
	if params.Text != "" {
		s.publishDiagnostics(ctx, string(params.TextDocument.URI), params.Text)
	}
	return reply(ctx, nil, nil)
}

// publishDiagnostics compiles content as a PMML regression document and
// sends the resulting cerr.Error list (if any) to the editor as LSP
// diagnostics. A clean compile publishes an empty diagnostics list, which
// clears any diagnostics the editor is currently showing for uri.
func (s *Server) publishDiagnostics(ctx context.Context, docURI, content string) {
	id := obs.CompilationID()
	log := obs.WithCompilation(s.log, id)

	var messages []diagnosticMessage

	doc, err := xmldom.Parse(bytes.NewReader([]byte(content)))
	if err != nil {
		messages = append(messages, diagnosticMessage{line: 0, text: "malformed PMML: " + err.Error()})
	} else {
		pctx := pmmlctx.New()
		parsed, err := models.ParseRegressionDocument(pctx, doc)
		if err != nil {
			messages = append(messages, diagnosticMessage{line: 0, text: err.Error()})
		} else {
			result := driver.Compile(pctx, driver.Options{
				FunctionName:   "score",
				ArgumentFields: parsed.InputFields,
				Lowercase:      true,
			}, parsed.Build)
			parsed.Release()
			for _, e := range result.Errors {
				messages = append(messages, diagnosticMessage{line: e.Line, text: e.Error()})
			}
		}
	}

	diagnostics := make([]protocol.Diagnostic, 0, len(messages))
	for _, m := range messages {
		line := m.line
		if line > 0 {
			line--
		}
		diagnostics = append(diagnostics, protocol.Diagnostic{
			Range: protocol.Range{
				Start: protocol.Position{Line: uint32(line)},
				End:   protocol.Position{Line: uint32(line)},
			},
			Severity: protocol.DiagnosticSeverityError,
			Source:   "pmmlc",
			Message:  m.text,
		})
	}

	err = s.client.PublishDiagnostics(ctx, &protocol.PublishDiagnosticsParams{
		URI:         protocol.DocumentURI(docURI),
		Diagnostics: diagnostics,
	})
	if err != nil {
		log.Warn("failed to publish diagnostics", zap.Error(err), zap.String("uri", docURI))
	}
}

type diagnosticMessage struct {
	line int
	text string
}

// stdrwc implements io.ReadWriteCloser over stdin/stdout for jsonrpc2.
type stdrwc struct{}

func (stdrwc) Read(p []byte) (int, error)  { return os.Stdin.Read(p) }
func (stdrwc) Write(p []byte) (int, error) { return os.Stdout.Write(p) }
func (stdrwc) Close() error {
	if err := os.Stdin.Close(); err != nil {
		return err
	}
	return os.Stdout.Close()
}
