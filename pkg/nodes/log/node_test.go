package log

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/dukex/docflow/pkg/models"
	"github.com/dukex/docflow/pkg/protocol"
	"github.com/dukex/docflow/pkg/testutil"
)

func newNode(buf *bytes.Buffer) *LogNode {
	logger := slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	return NewLogNode(protocol.Dependencies{Logger: logger})
}

func TestLogNode_Execute_Info(t *testing.T) {
	var buf bytes.Buffer

	node := newNode(&buf)

	bag := models.NewContextBag("exec-1", "doc-1")
	bag.Set("user_name", "john_doe")

	result := node.Execute(context.Background(), bag, testutil.LogNode("log-1", "Processing user: {{.variables.user_name}}"))

	if !result.IsSuccess() {
		t.Fatalf("Expected success, got: %s", result.Message)
	}

	if result.Port != OutputPortSuccess {
		t.Errorf("Expected success port, got: %s", result.Port)
	}

	if message := result.Data["message"]; message != "Processing user: john_doe" {
		t.Errorf("Expected 'Processing user: john_doe', got: %v", message)
	}

	if level := result.Data["level"]; level != "info" {
		t.Errorf("Expected level 'info', got: %v", level)
	}

	if !strings.Contains(buf.String(), "execution_id=exec-1") {
		t.Errorf("Expected execution id in log output, got: %s", buf.String())
	}
}

func TestLogNode_Execute_Placeholders(t *testing.T) {
	var buf bytes.Buffer

	bag := models.NewContextBag("exec-1", "doc-42")
	bag.SetNodeOutput("ocr", map[string]any{"pages": 3})

	result := newNode(&buf).Execute(context.Background(), bag, testutil.LogNode("log-1", "Document {document_id} has {ocr.pages} pages, {missing} stays"))

	if want := "Document doc-42 has 3 pages, {missing} stays"; result.Data["message"] != want {
		t.Errorf("Expected %q, got: %v", want, result.Data["message"])
	}
}

func TestLogNode_Execute_Error_Level(t *testing.T) {
	var buf bytes.Buffer

	wfNode := testutil.LogNode("log-1", "Something failed")
	wfNode.Config["level"] = "error"

	result := newNode(&buf).Execute(context.Background(), models.NewContextBag("exec-1", ""), wfNode)

	if result.Data["level"] != "error" {
		t.Errorf("Expected level 'error', got: %v", result.Data["level"])
	}

	if !strings.Contains(buf.String(), "level=ERROR") {
		t.Errorf("Expected ERROR record, got: %s", buf.String())
	}
}

func TestLogNode_Execute_DefaultLevel(t *testing.T) {
	var buf bytes.Buffer

	wfNode := testutil.LogNode("log-1", "hello")
	wfNode.Config["level"] = "verbose"

	result := newNode(&buf).Execute(context.Background(), models.NewContextBag("exec-1", ""), wfNode)

	if result.Data["level"] != "info" {
		t.Errorf("Expected unknown level to fall back to info, got: %v", result.Data["level"])
	}
}

func TestLogNode_Execute_TemplateError(t *testing.T) {
	var buf bytes.Buffer

	result := newNode(&buf).Execute(context.Background(), models.NewContextBag("exec-1", ""), testutil.LogNode("log-1", "{{.invalid syntax"))

	if !result.IsFailed() {
		t.Fatal("Expected a failed result for an invalid template")
	}

	if !strings.Contains(result.Message, "failed to render log message template") {
		t.Errorf("Unexpected failure message: %s", result.Message)
	}
}

func TestLogNode_ValidateDefinition(t *testing.T) {
	var buf bytes.Buffer

	node := newNode(&buf)

	for level, wantErr := range map[string]bool{"debug": false, "warn": false, "loud": true} {
		wfNode := testutil.LogNode("log-1", "msg")
		wfNode.Config["level"] = level

		err := node.ValidateDefinition(nil, wfNode)
		if (err != nil) != wantErr {
			t.Errorf("level %q: unexpected error state: %v", level, err)
		}
	}
}

func TestLogNodeFactory(t *testing.T) {
	factory := NewLogNodeFactory()

	if factory.ID() != models.NodeTypeLog {
		t.Errorf("Expected ID 'log', got: %s", factory.ID())
	}

	executor, err := factory.Create(protocol.Dependencies{})
	if err != nil {
		t.Fatalf("Failed to create executor: %v", err)
	}

	if !executor.ConfigSchema()["message"].Required {
		t.Error("Expected message to be required")
	}
}
