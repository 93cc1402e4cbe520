package prompt

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var today = time.Date(2026, 1, 15, 9, 30, 0, 0, time.UTC)

func TestRender_GlobalInstructionHasDate(t *testing.T) {
	out, err := Render("global", GlobalInstruction, Data{Today: today})
	require.NoError(t, err)
	assert.Contains(t, out, "Today's date: 2026-01-15")
	assert.NotContains(t, out, "\u2014", "the instruction itself must not contain em dashes")
}

func TestRender_WriterInstruction(t *testing.T) {
	t.Run("default author", func(t *testing.T) {
		out, err := Render("writer", WriterInstruction, Data{Today: today})
		require.NoError(t, err)
		assert.Contains(t, out, "author: Blog Agent")
		assert.Contains(t, out, "pubDatetime: 2026-01-15")
		assert.Contains(t, out, "save_blog_content")
		for _, bullet := range []string{
			"Linguistic Fingerprints", "Author-Reader Relationship", "Sentence Dynamics",
			"Emotional Distance", "Structural Bias",
		} {
			assert.Contains(t, out, "• "+bullet+":")
		}
		assert.NotContains(t, out, "\u2014")
	})

	t.Run("custom author", func(t *testing.T) {
		out, err := Render("writer", WriterInstruction, Data{Today: today, Author: "Ada"})
		require.NoError(t, err)
		assert.Contains(t, out, "author: Ada")
	})
}

// TestRender_PublisherInstruction verifies the publish conventions are
// rendered from session state.
func TestRender_PublisherInstruction(t *testing.T) {
	out, err := Render("publisher", PublisherInstruction, Data{
		Today: today,
		State: map[string]string{"title": "Go Generics", "slug": "go-generics"},
	})
	require.NoError(t, err)

	for _, want := range []string{
		"- Title: Go Generics",
		`- branch_name: "blog/go-generics"`,
		`- file_name: "go-generics.md"`,
		`- commit_message: "Add blog: Go Generics"`,
		`- pr_title: "Blog: Go Generics"`,
		`- pr_body: "This PR adds a new blog post: Go Generics"`,
	} {
		assert.Contains(t, out, want)
	}
	assert.True(t, strings.HasPrefix(out, "You are the Blog Publisher Agent"))
}

func TestRender_PublisherRequiresState(t *testing.T) {
	_, err := Render("publisher", PublisherInstruction, Data{State: map[string]string{"title": "x"}})
	assert.ErrorContains(t, err, "no slug")

	_, err = Render("publisher", PublisherInstruction, Data{})
	assert.ErrorContains(t, err, "no title")
}

func TestRender_ParseError(t *testing.T) {
	_, err := Render("bad", "{{ .Today", Data{})
	assert.ErrorContains(t, err, "failed to parse bad template")
}

func TestDescriptions(t *testing.T) {
	assert.NotEmpty(t, RootDescription())
	assert.Contains(t, WriterDescription(), "writes blog posts")
	assert.Contains(t, PublisherDescription(), "GitHub")
}
