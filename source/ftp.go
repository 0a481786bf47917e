package source

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"math"
	"path"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"
	"golang.org/x/time/rate"

	"github.com/ferryline/photoferry/config"
	"github.com/ferryline/photoferry/logger"
	"github.com/ferryline/photoferry/model"
)

// Ensure FTPSource implements Provider interface
var _ Provider = (*FTPSource)(nil)

const retrieveChunkSize = 1024 * 1024

// FTPSource implements Provider for FTP servers. Listing uses MLSD when
// the server advertises it, falling back to LIST parsing inside the
// client library; retrieval uses REST to continue from an offset.
type FTPSource struct {
	config     *config.FTPConfig
	common     *config.CommonSourceConfig
	connPool   chan *ftp.ServerConn
	dialConfig *ftp.DialOption
	limiter    *rate.Limiter
	log        logger.Logger
}

// NewFTPSource creates a new FTP source and verifies connectivity.
func NewFTPSource(cfg *config.FTPConfig, common *config.CommonSourceConfig, log logger.Logger) (*FTPSource, error) {
	cfg.ApplyDefaults()
	common.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid ftp config: %w", err)
	}
	if err := common.Validate(); err != nil {
		return nil, fmt.Errorf("invalid common config: %w", err)
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}

	var dialConfig *ftp.DialOption
	if cfg.UseTLS {
		opt := ftp.DialWithExplicitTLS(&tls.Config{
			ServerName: cfg.Host,
		})
		dialConfig = &opt
	}

	var limiter *rate.Limiter
	if common.MaxRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(common.MaxRPS), common.MaxRPS)
	}

	src := &FTPSource{
		config:     cfg,
		common:     common,
		connPool:   make(chan *ftp.ServerConn, common.PoolSize),
		dialConfig: dialConfig,
		limiter:    limiter,
		log:        log,
	}

	// Verify connectivity up front so a bad host or credential fails fast.
	conn, err := src.createConnection()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to FTP server: %w", err)
	}
	select {
	case src.connPool <- conn:
	default:
		conn.Quit()
	}

	return src, nil
}

// createConnection creates a new FTP connection
func (f *FTPSource) createConnection() (*ftp.ServerConn, error) {
	addr := fmt.Sprintf("%s:%d", f.config.Host, f.config.Port)
	timeout := time.Duration(f.common.TimeoutSeconds) * time.Second

	var conn *ftp.ServerConn
	var err error

	if f.dialConfig != nil {
		conn, err = ftp.Dial(addr, *f.dialConfig, ftp.DialWithTimeout(timeout))
	} else {
		conn, err = ftp.Dial(addr, ftp.DialWithTimeout(timeout))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dial: %w", err)
	}

	if err := conn.Login(f.config.Username, f.config.Password); err != nil {
		conn.Quit()
		return nil, fmt.Errorf("failed to login: %w", err)
	}

	return conn, nil
}

// getConnection retrieves a connection from the pool or creates a new one
func (f *FTPSource) getConnection(ctx context.Context) (*ftp.ServerConn, error) {
	select {
	case conn := <-f.connPool:
		// Test if connection is still alive
		if err := conn.NoOp(); err != nil {
			conn.Quit()
			return f.createConnection()
		}
		return conn, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
		return f.createConnection()
	}
}

// returnConnection returns a connection to the pool
func (f *FTPSource) returnConnection(conn *ftp.ServerConn) {
	if conn == nil {
		return
	}

	select {
	case f.connPool <- conn:
	default:
		conn.Quit()
	}
}

// discardConnection closes a connection whose control channel may be left
// mid-transfer and must not be reused.
func (f *FTPSource) discardConnection(conn *ftp.ServerConn) {
	if conn != nil {
		conn.Quit()
	}
}

// List returns the files and subdirectories directly inside dir. Listing
// calls are retried with a short backoff before the error is surfaced.
func (f *FTPSource) List(ctx context.Context, dir string) ([]model.RemoteEntry, []string, error) {
	var entries []*ftp.Entry

	var lastErr error
	retries := f.common.MaxRetries
	if retries <= 0 {
		retries = 1
	}
	for i := 0; i < retries; i++ {
		if i > 0 {
			backoff := time.Duration(math.Pow(2, float64(i))) * 200 * time.Millisecond
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, nil, ctx.Err()
			}
		}

		if f.limiter != nil {
			if err := f.limiter.Wait(ctx); err != nil {
				return nil, nil, fmt.Errorf("rate limiter error: %w", err)
			}
		}

		conn, err := f.getConnection(ctx)
		if err != nil {
			lastErr = err
			continue
		}

		entries, err = conn.List(dir)
		if err != nil {
			f.discardConnection(conn)
			lastErr = fmt.Errorf("list %s: %w", dir, err)
			continue
		}
		f.returnConnection(conn)
		return f.splitEntries(dir, entries)
	}

	return nil, nil, fmt.Errorf("listing failed after %d attempts: %w", retries, lastErr)
}

func (f *FTPSource) splitEntries(dir string, entries []*ftp.Entry) ([]model.RemoteEntry, []string, error) {
	var files []model.RemoteEntry
	var dirs []string

	cleanDir := path.Clean(dir)
	for _, e := range entries {
		switch e.Type {
		case ftp.EntryTypeFolder:
			if e.Name == "." || e.Name == ".." {
				continue
			}
			dirs = append(dirs, path.Join(cleanDir, e.Name))
		case ftp.EntryTypeFile:
			files = append(files, model.RemoteEntry{
				Path:    path.Join(cleanDir, e.Name),
				Dir:     cleanDir,
				Name:    e.Name,
				Ext:     strings.ToLower(path.Ext(e.Name)),
				Size:    int64(e.Size),
				ModTime: e.Time,
			})
		}
	}
	return files, dirs, nil
}

// Retrieve streams remotePath into w starting at offset. The copy runs in
// fixed chunks with a per-chunk I/O deadline; cancelling ctx forces the
// in-flight read to unblock immediately.
func (f *FTPSource) Retrieve(ctx context.Context, remotePath string, w io.Writer, offset int64) error {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter error: %w", err)
		}
	}

	conn, err := f.getConnection(ctx)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	resp, err := conn.RetrFrom(remotePath, uint64(offset))
	if err != nil {
		f.discardConnection(conn)
		return fmt.Errorf("retrieve %s from offset %d: %w", remotePath, offset, err)
	}

	// Unblock the data-channel read as soon as the caller cancels.
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			resp.SetDeadline(time.Now())
		case <-done:
		}
	}()

	copyErr := f.copyChunks(ctx, w, resp)
	close(done)

	closeErr := resp.Close()

	if copyErr != nil {
		f.discardConnection(conn)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("transfer %s: %w", remotePath, copyErr)
	}
	if closeErr != nil {
		f.discardConnection(conn)
		return fmt.Errorf("finish transfer %s: %w", remotePath, closeErr)
	}

	f.returnConnection(conn)
	return nil
}

func (f *FTPSource) copyChunks(ctx context.Context, w io.Writer, resp *ftp.Response) error {
	timeout := time.Duration(f.common.TimeoutSeconds) * time.Second
	buf := make([]byte, retrieveChunkSize)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		resp.SetDeadline(time.Now().Add(timeout))
		n, err := resp.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return fmt.Errorf("write local file: %w", werr)
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// SupportsResume reports that FTP retrieval can continue from an offset
// via the REST command.
func (f *FTPSource) SupportsResume() bool { return true }

// Close drains and closes the connection pool.
func (f *FTPSource) Close() error {
	for {
		select {
		case conn := <-f.connPool:
			conn.Quit()
		default:
			return nil
		}
	}
}
