package source

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/stretchr/testify/require"

	"github.com/ferryline/photoferry/config"
)

// getFTPConfigFromEnv reads FTP configuration from environment variables for integration testing
func getFTPConfigFromEnv() *config.FTPConfig {
	host := os.Getenv("FTP_HOST")
	port := os.Getenv("FTP_PORT")
	username := os.Getenv("FTP_USERNAME")
	password := os.Getenv("FTP_PASSWORD")

	if host == "" || username == "" {
		return nil
	}

	cfg := &config.FTPConfig{
		Host:     host,
		Username: username,
		Password: password,
	}

	if port != "" {
		var p int
		_, err := fmt.Sscanf(port, "%d", &p)
		if err == nil {
			cfg.Port = p
		}
	}

	return cfg
}

func TestNewFTPSource_InvalidConfig(t *testing.T) {
	tests := []struct {
		name         string
		ftpCfg       *config.FTPConfig
		commonCfg    *config.CommonSourceConfig
		errorMessage string
	}{
		{
			name: "missing host",
			ftpCfg: &config.FTPConfig{
				Host:     "",
				Port:     21,
				Username: "user",
				Password: "pass",
			},
			commonCfg: &config.CommonSourceConfig{
				PoolSize:       2,
				TimeoutSeconds: 30,
				MaxRetries:     3,
			},
			errorMessage: "host",
		},
		{
			name: "missing username",
			ftpCfg: &config.FTPConfig{
				Host:     "localhost",
				Port:     21,
				Username: "",
				Password: "pass",
			},
			commonCfg: &config.CommonSourceConfig{
				PoolSize:       2,
				TimeoutSeconds: 30,
				MaxRetries:     3,
			},
			errorMessage: "username",
		},
		{
			name: "invalid port",
			ftpCfg: &config.FTPConfig{
				Host:     "localhost",
				Port:     -1,
				Username: "user",
				Password: "pass",
			},
			commonCfg: &config.CommonSourceConfig{
				PoolSize:       2,
				TimeoutSeconds: 30,
				MaxRetries:     3,
			},
			errorMessage: "port",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, err := NewFTPSource(tt.ftpCfg, tt.commonCfg, nil)
			require.Error(t, err)
			require.Nil(t, src)
			require.Contains(t, err.Error(), tt.errorMessage)
		})
	}
}

func TestFTPSource_SplitEntries(t *testing.T) {
	src := &FTPSource{}
	mtime := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

	entries := []*ftp.Entry{
		{Name: ".", Type: ftp.EntryTypeFolder},
		{Name: "..", Type: ftp.EntryTypeFolder},
		{Name: "Season 1", Type: ftp.EntryTypeFolder},
		{Name: "episode.MKV", Type: ftp.EntryTypeFile, Size: 4 << 30, Time: mtime},
		{Name: "notes.txt", Type: ftp.EntryTypeFile, Size: 120, Time: mtime},
		{Name: "link", Type: ftp.EntryTypeLink},
	}

	files, dirs, err := src.splitEntries("/media/Shows", entries)
	require.NoError(t, err)

	require.Len(t, dirs, 1)
	require.Equal(t, "/media/Shows/Season 1", dirs[0])

	require.Len(t, files, 2)
	require.Equal(t, "/media/Shows/episode.MKV", files[0].Path)
	require.Equal(t, "/media/Shows", files[0].Dir)
	require.Equal(t, "episode.MKV", files[0].Name)
	require.Equal(t, ".mkv", files[0].Ext)
	require.Equal(t, int64(4<<30), files[0].Size)
	require.Equal(t, mtime, files[0].ModTime)

	require.Equal(t, "/media/Shows/notes.txt", files[1].Path)
	require.Equal(t, ".txt", files[1].Ext)
}

func TestFTPSource_SplitEntries_Root(t *testing.T) {
	src := &FTPSource{}

	entries := []*ftp.Entry{
		{Name: "loose.mp4", Type: ftp.EntryTypeFile, Size: 100},
		{Name: "Movies", Type: ftp.EntryTypeFolder},
	}

	files, dirs, err := src.splitEntries("/", entries)
	require.NoError(t, err)

	require.Len(t, files, 1)
	require.Equal(t, "/loose.mp4", files[0].Path)
	require.Equal(t, "/", files[0].Dir)

	require.Len(t, dirs, 1)
	require.Equal(t, "/Movies", dirs[0])
}

func TestFTPSource_SupportsResume(t *testing.T) {
	src := &FTPSource{}
	require.True(t, src.SupportsResume())
}

// Integration tests (require real FTP server)

func TestFTPSource_List_Integration(t *testing.T) {
	cfg := getFTPConfigFromEnv()
	if cfg == nil {
		t.Skip("Skipping test because FTP configuration is not available")
	}

	commonCfg := &config.CommonSourceConfig{}
	src, err := NewFTPSource(cfg, commonCfg, nil)
	require.NoError(t, err)
	require.NotNil(t, src)
	defer src.Close()

	ctx := context.Background()

	files, dirs, err := src.List(ctx, "/")
	require.NoError(t, err)
	t.Logf("root listing: %d files, %d directories", len(files), len(dirs))

	for _, f := range files {
		require.NotEmpty(t, f.Path)
		require.Equal(t, "/", f.Dir)
	}
}

func TestFTPSource_Retrieve_Integration(t *testing.T) {
	cfg := getFTPConfigFromEnv()
	if cfg == nil {
		t.Skip("Skipping test because FTP configuration is not available")
	}
	remotePath := os.Getenv("FTP_TEST_FILE")
	if remotePath == "" {
		t.Skip("Skipping test because FTP_TEST_FILE environment variable is not set")
	}

	commonCfg := &config.CommonSourceConfig{}
	src, err := NewFTPSource(cfg, commonCfg, nil)
	require.NoError(t, err)
	defer src.Close()

	ctx := context.Background()

	var full bytes.Buffer
	err = src.Retrieve(ctx, remotePath, &full, 0)
	require.NoError(t, err)
	require.NotZero(t, full.Len())

	// Retrieve again from the middle and compare against the tail.
	offset := int64(full.Len() / 2)
	var tail bytes.Buffer
	err = src.Retrieve(ctx, remotePath, &tail, offset)
	require.NoError(t, err)
	require.Equal(t, full.Bytes()[offset:], tail.Bytes())
}

func TestFTPSource_Retrieve_Cancelled_Integration(t *testing.T) {
	cfg := getFTPConfigFromEnv()
	if cfg == nil {
		t.Skip("Skipping test because FTP configuration is not available")
	}
	remotePath := os.Getenv("FTP_TEST_FILE")
	if remotePath == "" {
		t.Skip("Skipping test because FTP_TEST_FILE environment variable is not set")
	}

	commonCfg := &config.CommonSourceConfig{}
	src, err := NewFTPSource(cfg, commonCfg, nil)
	require.NoError(t, err)
	defer src.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var buf bytes.Buffer
	err = src.Retrieve(ctx, remotePath, &buf, 0)
	require.Error(t, err)
}

func TestFTPSource_Close_Integration(t *testing.T) {
	cfg := getFTPConfigFromEnv()
	if cfg == nil {
		t.Skip("Skipping test because FTP configuration is not available")
	}

	commonCfg := &config.CommonSourceConfig{}
	src, err := NewFTPSource(cfg, commonCfg, nil)
	require.NoError(t, err)
	require.NotNil(t, src)

	err = src.Close()
	require.NoError(t, err)

	// Multiple closes should be safe
	err = src.Close()
	require.NoError(t, err)
}
