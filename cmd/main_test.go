package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nitro/lazytemplate/internal/domain"
)

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := newRootCommand()
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func TestTemplateSaveCommand(t *testing.T) {
	var received domain.Template
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/templates/save", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		_, _ = io.WriteString(w, `{"template":"invoice.yml"}`)
	}))
	defer server.Close()

	path := filepath.Join(t.TempDir(), "candidates.json")
	require.NoError(t, os.WriteFile(path, []byte(`[
		{"type": "field", "field": "Total", "region": {"x": 120, "y": 80, "width": -100, "height": 20}},
		{"type": "field", "field": "Tiny", "region": {"x": 10, "y": 10, "width": 4, "height": 20}},
		{"type": "issuer", "field": "Vendor", "region": {"x": 10, "y": 40, "width": 80, "height": 20}}
	]`), 0o600))

	stdout, stderr, err := execute(t, "template", "save", "--document", "invoice.pdf", "--candidates", path,
		"--server-url", server.URL, "--log-level", "error")
	require.NoError(t, err)
	require.Contains(t, stdout, "Saved 'invoice.pdf' with 2 annotations")
	require.Contains(t, stderr, "candidate 1 rejected")
	require.Equal(t, domain.Template{
		PDFName: "invoice.pdf",
		Annotations: []domain.Annotation{
			domain.NewGeometric("Total", domain.KindField, domain.Rect{X: 20, Y: 80, Width: 100, Height: 20}),
			domain.NewGeometric("Vendor", domain.KindIssuer, domain.Rect{X: 10, Y: 40, Width: 80, Height: 20}),
		},
	}, received)
}

func TestTemplateSaveCommandFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	path := filepath.Join(t.TempDir(), "candidates.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"type": "keyword", "text": "INVOICE"}]`), 0o600))

	_, _, err := execute(t, "template", "save", "--document", "invoice.pdf", "--candidates", path,
		"--server-url", server.URL, "--log-level", "error")
	require.ErrorContains(t, err, "server answered 503")

	_, _, err = execute(t, "template", "save", "--document", "invoice.pdf")
	require.EqualError(t, err, "--document and --candidates are required")
}

func TestTemplateListDeleteCommands(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			_, _ = io.WriteString(w, `{"templates":["invoice.yml","receipt.yml"]}`)
		case http.MethodDelete:
			w.WriteHeader(http.StatusNoContent)
		}
	}))
	defer server.Close()

	stdout, _, err := execute(t, "template", "list", "--server-url", server.URL)
	require.NoError(t, err)
	require.Equal(t, "invoice.yml\nreceipt.yml\n", stdout)

	stdout, _, err = execute(t, "template", "delete", "invoice", "--server-url", server.URL)
	require.NoError(t, err)
	require.Equal(t, "Deleted 'invoice'\n", stdout)
}
