package gitutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAddThetaToGitAttributesAppendsNewLine(t *testing.T) {
	out := AddThetaToGitAttributes(nil, "model.pt")
	assert.Equal(t, []string{"model.pt filter=theta merge=theta diff=theta"}, out)
}

func TestAddThetaToGitAttributesExtendsMatchingPattern(t *testing.T) {
	out := AddThetaToGitAttributes([]string{"*.pt text"}, "model.pt")
	assert.Equal(t, []string{"*.pt text filter=theta merge=theta diff=theta"}, out)
}

func TestAddThetaToGitAttributesIsIdempotent(t *testing.T) {
	first := AddThetaToGitAttributes(nil, "model.pt")
	second := AddThetaToGitAttributes(first, "model.pt")
	assert.Equal(t, first, second)
}

func TestTrackedPatterns(t *testing.T) {
	lines := []string{
		"*.pt filter=theta merge=theta diff=theta",
		"*.md text",
		"weights/*.bin filter=theta merge=theta diff=theta",
	}
	assert.Equal(t, []string{"*.pt", "weights/*.bin"}, TrackedPatterns(lines))
}
