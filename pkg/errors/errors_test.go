package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapKeepsCodeAndCause(t *testing.T) {
	root := stderrors.New("no such column: triggered_at")
	err := Wrap(root, CodeSchemaMismatch, "fetch sos_alerts")

	require.NotNil(t, err)
	assert.Equal(t, CodeSchemaMismatch, GetCode(err))
	assert.True(t, HasCode(err, CodeSchemaMismatch))
	assert.False(t, HasCode(err, CodeTransientFetch))
	assert.Equal(t, root, Cause(err))
	assert.Contains(t, err.Error(), "triggered_at")
	assert.True(t, Is(err, root))
}

func TestWrapNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, CodeTransientFetch, "x"))
	assert.Nil(t, Wrapf(nil, CodeTransientFetch, "x %d", 1))
}

func TestHasCodeThroughStdWrapping(t *testing.T) {
	inner := WithCode(CodeNotFound, "alert a1 not found")
	outer := fmt.Errorf("update: %w", inner)

	assert.True(t, HasCode(outer, CodeNotFound))
	assert.Equal(t, CodeNotFound, GetCode(outer))

	e, ok := As(outer)
	require.True(t, ok)
	assert.Equal(t, "alert a1 not found", e.Message)
}

func TestNestedCodes(t *testing.T) {
	inner := WithCode(CodeSchemaMismatch, "column missing")
	outer := Wrap(inner, 0, "load")
	assert.Equal(t, CodeSchemaMismatch, GetCode(outer))
	assert.True(t, HasCode(outer, CodeSchemaMismatch))
}

func TestWithContextCopies(t *testing.T) {
	base := WithCode(CodeTransientFetch, "backend unavailable")
	withTable := base.WithContext("table", "sos_alerts")

	assert.Empty(t, base.Context)
	v, ok := withTable.ContextValue("table")
	assert.True(t, ok)
	assert.Equal(t, "sos_alerts", v)

	_, ok = withTable.ContextValue("column")
	assert.False(t, ok)
}

func TestFormat(t *testing.T) {
	err := WithCodef(CodeMalformedRow, "row %s missing id", "r1")
	assert.Equal(t, "row r1 missing id", fmt.Sprintf("%s", err))
	assert.Contains(t, fmt.Sprintf("%+v", err), "[4221]")
}
