package compose

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Validate Tests
// =============================================================================

func TestValidate_MinimalService(t *testing.T) {
	summary, err := Validate(`
services:
  web:
    image: nginx:alpine
`)
	require.NoError(t, err)
	assert.Equal(t, []string{"web"}, summary.Services)
	assert.Empty(t, summary.Networks)
	assert.Empty(t, summary.Volumes)
}

func TestValidate_MultiService(t *testing.T) {
	summary, err := Validate(`
services:
  app:
    image: wordpress:latest
    depends_on:
      - db
  db:
    image: mariadb:11
networks:
  backend: {}
volumes:
  dbdata: {}
`)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"app", "db"}, summary.Services)
	assert.Equal(t, []string{"backend"}, summary.Networks)
	assert.Equal(t, []string{"dbdata"}, summary.Volumes)
}

func TestValidate_Empty(t *testing.T) {
	_, err := Validate("")
	assert.ErrorIs(t, err, ErrEmptyDefinition)

	_, err = Validate("   \n\t")
	assert.ErrorIs(t, err, ErrEmptyDefinition)
}

func TestValidate_MalformedYAML(t *testing.T) {
	_, err := Validate("services: [unterminated")
	assert.ErrorIs(t, err, ErrInvalidYAML)
}

func TestValidate_NotAMapping(t *testing.T) {
	_, err := Validate("- just\n- a\n- list\n")
	assert.ErrorIs(t, err, ErrInvalidYAML)
}

func TestValidate_NoServices(t *testing.T) {
	_, err := Validate(`
volumes:
  data: {}
`)
	assert.ErrorIs(t, err, ErrNoServices)
}

func TestValidate_UnresolvedPlaceholdersTolerated(t *testing.T) {
	// Interpolation is skipped so render policy decides what an
	// unresolved variable means, not the loader.
	summary, err := Validate(`
services:
  web:
    image: nginx:alpine
    working_dir: ${STACK_PATH}
`)
	require.NoError(t, err)
	assert.Equal(t, []string{"web"}, summary.Services)
}
