package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVersionCmd_Use(t *testing.T) {
	assert.Equal(t, "version", versionCmd.Use)
}

func TestVersionCmd_Short(t *testing.T) {
	assert.Equal(t, "Print the version number", versionCmd.Short)
}

func TestVersionCmd_Executes(t *testing.T) {
	env := setupCLITest(t)
	originalVersion := version
	version = "test-version-1.0.0"
	defer func() { version = originalVersion }()

	out, code := env.run(t, "version")

	assert.Equal(t, ExitOK, code)
	assert.Contains(t, out, "sfdump version test-version-1.0.0")
}

func TestVersionCmd_DisplaysDevByDefault(t *testing.T) {
	env := setupCLITest(t)
	originalVersion := version
	version = "dev"
	defer func() { version = originalVersion }()

	out, code := env.run(t, "version")

	assert.Equal(t, ExitOK, code)
	assert.Contains(t, out, "sfdump version dev")
}
