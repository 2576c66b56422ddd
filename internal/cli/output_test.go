package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/bulkstep/internal/catalog"
	"github.com/roach88/bulkstep/internal/model"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	data := map[string]string{"result": "success"}
	err := formatter.Success(data)
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)
	assert.NotNil(t, resp.Data)
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	err := formatter.Error("E001", "import failed", nil)
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "error", resp.Status)
	assert.NotNil(t, resp.Error)
	assert.Equal(t, "E001", resp.Error.Code)
	assert.Equal(t, "import failed", resp.Error.Message)
}

func TestOutputFormatter_JSONErrorWithDetails(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	details := map[string]string{"type": "Book", "chunk": "2"}
	err := formatter.Error("E002", "store rejected chunk", details)
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "error", resp.Status)
	assert.NotNil(t, resp.Error)
	assert.NotNil(t, resp.Error.Details)
}

func TestOutputFormatter_TextSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "text",
		Writer: buf,
	}

	err := formatter.Success("8 rows created")
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "8 rows created")
}

func TestOutputFormatter_TextError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format:  "text",
		Writer:  buf,
		Verbose: false,
	}

	err := formatter.Error("E001", "import failed", nil)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Error [E001]")
	assert.Contains(t, buf.String(), "import failed")
}

func TestOutputFormatter_TextErrorVerbose(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format:  "text",
		Writer:  buf,
		Verbose: true,
	}

	details := map[string]string{"type": "Book"}
	err := formatter.Error("E001", "import failed", details)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Error [E001]")
	assert.Contains(t, buf.String(), "Details:")
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	tests := []struct {
		name     string
		verbose  bool
		wantLog  bool
	}{
		{"verbose_enabled", true, true},
		{"verbose_disabled", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			formatter := &OutputFormatter{
				Format:  "text",
				Writer:  buf,
				Verbose: tt.verbose,
			}

			formatter.VerboseLog("Loaded %d entity type(s)", 4)

			if tt.wantLog {
				assert.Contains(t, buf.String(), "Loaded 4 entity type(s)")
			} else {
				assert.Empty(t, buf.String())
			}
		})
	}
}

func TestCLIResponse_JSON(t *testing.T) {
	resp := CLIResponse{
		Status: "ok",
		Data:   map[string]int{"count": 42},
	}

	data, err := json.Marshal(resp)
	require.NoError(t, err)

	var decoded CLIResponse
	err = json.Unmarshal(data, &decoded)
	require.NoError(t, err)
	assert.Equal(t, "ok", decoded.Status)
}

func TestCLIError_JSON(t *testing.T) {
	cliErr := CLIError{
		Code:    "E101",
		Message: "delete failed",
		Details: []string{"unknown field: name"},
	}

	data, err := json.Marshal(cliErr)
	require.NoError(t, err)

	var decoded CLIError
	err = json.Unmarshal(data, &decoded)
	require.NoError(t, err)
	assert.Equal(t, "E101", decoded.Code)
	assert.Equal(t, "delete failed", decoded.Message)
}

func TestOutputFormatter_Emit(t *testing.T) {
	buf := &bytes.Buffer{}
	text := &OutputFormatter{Format: "text", Writer: buf}
	require.NoError(t, text.Emit(OrderResult{Order: []string{"A"}}, func(w io.Writer) error {
		_, err := fmt.Fprint(w, "rendered")
		return err
	}))
	assert.Equal(t, "rendered", buf.String())

	buf.Reset()
	js := &OutputFormatter{Format: "json", Writer: buf}
	require.NoError(t, js.Emit(OrderResult{Order: []string{"A"}}, func(io.Writer) error {
		t.Fatal("text renderer called for json output")
		return nil
	}))
	assert.JSONEq(t, `{"status":"ok","data":{"order":["A"]}}`, buf.String())
}

func TestOutputFormatter_FailMapsErrorCodes(t *testing.T) {
	storeErr := model.NewStoreOperationError("Book", "delete", 2, 2, errors.New("constraint failed"))

	tests := []struct {
		name     string
		err      error
		wantCode string
	}{
		{"configuration", model.NewConfigurationError("step must be positive"), ErrCodeConfiguration},
		{"type mismatch", model.NewTypeMismatchError("Book", "Author"), ErrCodeTypeMismatch},
		{"cycle", model.NewCyclicDependencyError([]string{"A", "B"}), ErrCodeCyclicDependency},
		{"store", fmt.Errorf("wrapped: %w", storeErr), ErrCodeStoreOperation},
		{"schema", &catalog.CompileError{Field: "entity.A.key", Message: "bad"}, ErrCodeSchema},
		{"plain", errors.New("boom"), ErrCodeGeneric},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			formatter := &OutputFormatter{Format: "json", Writer: buf}

			err := formatter.Fail(ExitFailure, "operation failed", tt.err)
			assert.True(t, IsReported(err))
			assert.Equal(t, ExitFailure, GetExitCode(err))
			assert.ErrorIs(t, err, tt.err)

			var resp CLIResponse
			require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
			assert.Contains(t, resp.Error.Message, "operation failed")
		})
	}
}

func TestOutputFormatter_FailCodePrefersDomainCode(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	_ = formatter.FailCode(ExitCommandError, ErrCodeInput, "read failed", errors.New("no such file"))
	assert.Contains(t, buf.String(), "Error [E005]")

	buf.Reset()
	_ = formatter.FailCode(ExitCommandError, ErrCodeInput, "read failed", model.NewConfigurationError("unknown type"))
	assert.Contains(t, buf.String(), "Error [E101]")
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitCommandError, GetExitCode(WrapExitError(ExitCommandError, "bad path", nil)))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
	assert.False(t, IsReported(&ExitError{Code: ExitFailure, Message: "x"}))
}
