package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var librarySchema = filepath.Join("..", "harness", "testdata", "schema")

func writeCUE(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
}

func TestValidateValidSchema(t *testing.T) {
	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewValidateCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{librarySchema})

	err := cmd.Execute()
	require.NoError(t, err)

	output := buf.String()
	assert.Contains(t, output, "✓ All collections valid")
	assert.Contains(t, output, "Book: 8 field(s)")
}

func TestValidateValidSchemaJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "json"}
	cmd := NewValidateCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{librarySchema})

	err := cmd.Execute()
	require.NoError(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Valid)
	require.Len(t, resp.Data.Collections, 1)

	book := resp.Data.Collections[0]
	assert.Equal(t, "Book", book.Name)
	assert.Contains(t, book.Indexed, "title")
	assert.Contains(t, book.Indexed, "year")
	assert.NotContains(t, book.Indexed, "notes")
	assert.NotContains(t, book.Indexed, "tags")
}

func TestValidateSingleFile(t *testing.T) {
	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewValidateCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{filepath.Join(librarySchema, "library.cue")})

	err := cmd.Execute()
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "✓ All collections valid")
}

func TestValidateNonExistentDirectory(t *testing.T) {
	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewValidateCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"/nonexistent/directory/path"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "E005") // ErrCodeNotFound
	assert.Contains(t, buf.String(), "not found")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestValidateEmptyDirectory(t *testing.T) {
	tmpDir := t.TempDir()

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewValidateCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{tmpDir})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "E003")
	assert.Contains(t, buf.String(), "no CUE files found")
}

func TestValidateInvalidType(t *testing.T) {
	tmpDir := t.TempDir()
	writeCUE(t, tmpDir, "bad.cue", `
package test

collection: Item: {
	fields: {
		price: "money"
	}
}
`)

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewValidateCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{tmpDir})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation failed")
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, buf.String(), "✗ Validation failed")
	assert.Contains(t, buf.String(), `invalid type "money"`)
}

func TestValidateInvalidSchemaJSON(t *testing.T) {
	tmpDir := t.TempDir()
	writeCUE(t, tmpDir, "bad.cue", `
package test

collection: Item: {
	fields: {
		tags: {type: "list", index: true}
	}
}
`)

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "json"}
	cmd := NewValidateCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{tmpDir})

	err := cmd.Execute()
	require.Error(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E108", resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "cannot be indexed")
}

func TestValidateNoCollections(t *testing.T) {
	tmpDir := t.TempDir()
	writeCUE(t, tmpDir, "empty.cue", `
package test

other: 1
`)

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewValidateCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{tmpDir})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, buf.String(), "no collections declared")
}

func TestValidateVerboseOutput(t *testing.T) {
	stdoutBuf := &bytes.Buffer{}
	stderrBuf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text", Verbose: true}
	cmd := NewValidateCommand(rootOpts)
	cmd.SetOut(stdoutBuf)
	cmd.SetErr(stderrBuf) // Verbose output goes to stderr
	cmd.SetArgs([]string{librarySchema})

	err := cmd.Execute()
	require.NoError(t, err)

	verboseOutput := stderrBuf.String()
	assert.Contains(t, verboseOutput, "Found 1 CUE file(s)")
	assert.Contains(t, verboseOutput, "Validating collection: Book")
}

func TestValidateMultipleErrors(t *testing.T) {
	tmpDir := t.TempDir()
	writeCUE(t, tmpDir, "bad1.cue", `
package test

collection: Bad1: {
	fields: {
		"_secret": "string"
	}
}
`)
	writeCUE(t, tmpDir, "bad2.cue", `
package test

collection: Bad2: {
	fields: {
		size: "huge"
		meta: {type: "object", index: true}
	}
}
`)

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewValidateCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{tmpDir})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "3 error(s)")

	// Collected across collections, not fail-fast
	output := buf.String()
	assert.Contains(t, output, "reserved")
	assert.Contains(t, output, `invalid type "huge"`)
	assert.Contains(t, output, "cannot be indexed")
}

func TestValidateSchema(t *testing.T) {
	errs, err := ValidateSchema(librarySchema)
	require.NoError(t, err)
	assert.Empty(t, errs, "library schema should validate without errors")
}

func TestValidateSchemaInvalid(t *testing.T) {
	tmpDir := t.TempDir()
	writeCUE(t, tmpDir, "bad.cue", `
package test

collection: Bad: {
	fields: {
		a: "string"
		b: "uuid"
	}
}
`)

	errs, err := ValidateSchema(tmpDir)
	require.NoError(t, err) // Function returns errors in slice, not as error
	require.Len(t, errs, 1)
	assert.Equal(t, "fields.b.type", errs[0].Field)
}

func TestValidateSchemaNonExistent(t *testing.T) {
	_, err := ValidateSchema("/nonexistent/directory")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no such file")
}
