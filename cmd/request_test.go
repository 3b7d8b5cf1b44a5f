package cmd

import (
	"testing"

	"github.com/Rana718/graftflow/internal/types"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRequestCommand(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	c := &cobra.Command{Use: "test"}
	addRequestFlags(c)
	require.NoError(t, c.ParseFlags(args))
	return c
}

func TestRequestFromFlags(t *testing.T) {
	c := newRequestCommand(t,
		"--mode", "structural",
		"--rollback",
		"--rules", "data_integrity_check,security_validation",
		"--fail-on-warnings",
		"--author", "dana",
		"--tag", "schema", "--tag", "q3",
	)

	req, err := requestFromFlags(c, "staging", "prod")
	require.NoError(t, err)

	assert.Equal(t, "staging", req.SourceConnectionID)
	assert.Equal(t, "prod", req.TargetConnectionID)
	assert.Equal(t, types.CompareStructural, req.Options.ComparisonMode)
	assert.True(t, req.Options.IncludeRollback)
	assert.True(t, req.Options.FailOnWarnings)
	assert.False(t, req.Options.StopOnFirstError)
	assert.Equal(t, []string{"data_integrity_check", "security_validation"}, req.Options.BusinessRules)
	assert.Equal(t, "dana", req.Metadata.Author)
	assert.Equal(t, []string{"schema", "q3"}, req.Metadata.Tags)
}

func TestRequestFromFlagsDefaults(t *testing.T) {
	req, err := requestFromFlags(newRequestCommand(t), "a", "b")
	require.NoError(t, err)
	assert.Equal(t, types.CompareStrict, req.Options.ComparisonMode)
	assert.Empty(t, req.Options.BusinessRules)
}

func TestRequestFromFlagsRejectsUnknownMode(t *testing.T) {
	_, err := requestFromFlags(newRequestCommand(t, "--mode", "fuzzy"), "a", "b")
	assert.ErrorContains(t, err, "unknown comparison mode")
}
