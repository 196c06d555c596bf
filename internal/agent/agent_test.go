package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Kira7dn/video-create/internal/config"
)

func TestNewDisabledVariants(t *testing.T) {
	assert.Nil(t, New(config.AISettings{Enabled: false, APIKey: "sk-x"}))
	assert.Nil(t, New(config.AISettings{Enabled: true, APIKey: ""}))
	assert.NotNil(t, New(config.AISettings{Enabled: true, APIKey: "sk-x", Model: "gpt-4o-mini"}))
}

func TestNilAgentFailsWithErrDisabled(t *testing.T) {
	var a *Agent
	assert.False(t, a.Enabled())

	_, err := a.ExtractKeywords(t.Context(), "some content", 5)
	assert.ErrorIs(t, err, ErrDisabled)

	_, err = a.SplitPhrases(t.Context(), "some words", 2, 7, 35)
	assert.ErrorIs(t, err, ErrDisabled)

	_, err = a.NormalizeSpec(t.Context(), []byte(`{}`), []string{"issue"})
	assert.ErrorIs(t, err, ErrDisabled)
}
