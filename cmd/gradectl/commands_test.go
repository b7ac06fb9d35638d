package main

import (
	"bytes"
	"testing"
	"time"
	"tle_zone_grader/internal/common/security"
	"tle_zone_grader/internal/domain/model"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrintLanguages(t *testing.T) {
	color.NoColor = true
	var buf bytes.Buffer
	printLanguages(&buf, []model.Language{
		{ID: 71, Name: "Python", Slug: "python", IsActive: true},
		{ID: 60, Name: "Go", Slug: "go"},
	})
	out := buf.String()
	assert.Contains(t, out, "SLUG")
	assert.Regexp(t, `python\s+71\s+Python\s+active`, out)
	assert.Regexp(t, `go\s+60\s+Go\s+disabled`, out)
}

func TestIssueToken(t *testing.T) {
	tok, err := issueToken([]byte("k"), "ops", model.RoleAdmin, time.Minute)
	require.NoError(t, err)
	decoded, err := security.TokenAuth.Decode(tok)
	require.NoError(t, err)
	claims, err := decoded.AsMap(t.Context())
	require.NoError(t, err)
	p, err := security.PrincipalFromClaims(claims)
	require.NoError(t, err)
	assert.True(t, p.IsAdmin())
}
