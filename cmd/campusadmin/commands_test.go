package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, "campusadmin dev\n", out.String())
}

func TestCollectionsCommand(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"collections"})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "Articles (articles)")
	assert.Contains(t, out.String(), "rich text")
	assert.Contains(t, out.String(), "upload:articles/covers")
}

func TestLoadConfigFromFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "campus.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: Test Campus
admin_password: from-file
storage:
  backend: s3
s3:
  bucket: media
editor:
  session_ttl: 30m
`), 0o600))
	t.Setenv("CAMPUS_ADMIN_PASSWORD", "from-env")
	t.Setenv("CAMPUS_S3_PATH_STYLE", "true")

	v := viper.New()
	require.NoError(t, loadConfig(v, path))
	cfg := siteConfig(v)

	assert.Equal(t, "Test Campus", cfg.Name)
	assert.Equal(t, "from-env", cfg.AdminPassword)
	assert.Equal(t, "s3", cfg.Storage.Backend)
	assert.Equal(t, "media", cfg.Storage.S3.Bucket)
	assert.True(t, cfg.Storage.S3.UsePathStyle)
	assert.Equal(t, 30*time.Minute, cfg.EditorSessionTTL)
	assert.Equal(t, "us-east-1", cfg.Storage.S3.Region)
}
