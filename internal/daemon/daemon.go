package daemon

import (
	"context"
	"fmt"
	"log"
	"net"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dshills/ct/internal/catalog"
	"github.com/dshills/ct/internal/config"
	"github.com/dshills/ct/internal/fingerprint"
	"github.com/dshills/ct/internal/ignore"
	"github.com/dshills/ct/internal/ingest"
	"github.com/dshills/ct/internal/query"
	"github.com/dshills/ct/internal/watch"
	"github.com/dshills/ct/pkg/types"
)

const defaultIdleTimeout = 5 * time.Minute

// Daemon is the running ctd process: one live generation handle, the
// workspace it was started against, and the transport/session-token
// state needed to gate connections.
type Daemon struct {
	cfg           config.Config
	workspaceRoot string
	fingerprint   string
	startedAt     time.Time

	gen               generationHandle
	reindexOnce       singleflight.Group
	token             string
	idleTimeout       time.Duration
	lastIndexDuration time.Duration
	watcher           *watch.Watcher
}

// Open discovers the workspace's fingerprint, opens (creating if
// absent) its catalog file, runs an initial ingest if the catalog is
// empty, and returns a Daemon ready to Serve.
func Open(ctx context.Context, cfg config.Config, workspaceRoot string) (*Daemon, error) {
	members, err := ingest.DiscoverMembers(ctx, workspaceRoot)
	if err != nil {
		return nil, fmt.Errorf("daemon: discover workspace members: %w", err)
	}
	roots := make(map[string]string, len(members))
	for _, m := range members {
		roots[m.Name] = m.Dir
	}
	fp, err := fingerprint.Workspace(roots)
	if err != nil {
		return nil, fmt.Errorf("daemon: compute workspace fingerprint: %w", err)
	}

	dbPath := cfg.DBPath(fp)
	store, err := catalog.Open(ctx, dbPath)
	if err != nil {
		return nil, fmt.Errorf("daemon: open catalog %s: %w", dbPath, err)
	}

	total, _, _, _, err := store.CountSymbols(ctx)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("daemon: count symbols: %w", err)
	}
	if total == 0 {
		if _, err := ingest.IngestWorkspace(ctx, store, workspaceRoot, &ingest.Config{ReferenceCeiling: cfg.ReferencesTopN, Workers: cfg.Workers}); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("daemon: initial ingest: %w", err)
		}
	}

	matcher, err := ignore.Load(workspaceRoot + "/.ctignore")
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("daemon: load .ctignore: %w", err)
	}

	resolver, err := query.NewResolver(store, cfg.MaxMemMB)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("daemon: build resolver: %w", err)
	}

	d := &Daemon{
		cfg:           cfg,
		workspaceRoot: workspaceRoot,
		fingerprint:   fp,
		startedAt:     time.Now(),
		idleTimeout:   defaultIdleTimeout,
	}
	d.gen.ptr.Store(newGeneration(store, resolver, matcher, toolFingerprintMismatch(ctx, store)))

	if cfg.EffectiveTransport() == config.TransportTCP {
		token, err := issueSessionToken(cfg, fp)
		if err != nil {
			return nil, err
		}
		d.token = token
	}

	w, err := watch.New(time.Duration(cfg.WatcherDebounceMS)*time.Millisecond, nil)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("daemon: create watcher: %w", err)
	}
	for _, m := range members {
		if err := w.AddRoot(m.Dir, m.Name); err != nil {
			return nil, fmt.Errorf("daemon: watch unit %s: %w", m.Name, err)
		}
	}
	d.watcher = w

	return d, nil
}

// WatchAndReindex runs the filesystem watcher until ctx is canceled,
// triggering an incremental ReindexUnits for every coalesced set of
// affected units (spec §4.8). Call it in its own goroutine alongside
// Serve; a reindex failure is logged and does not stop the watch loop.
func (d *Daemon) WatchAndReindex(ctx context.Context) error {
	defer func() { _ = d.watcher.Close() }()
	return d.watcher.Run(ctx, func(units []string) {
		if err := d.ReindexUnits(ctx, units); err != nil {
			log.Printf("daemon: incremental reindex of %v failed: %v", units, err)
		}
	})
}

// Fingerprint returns the workspace fingerprint this daemon was
// opened against; callers use it to derive the endpoint path.
func (d *Daemon) Fingerprint() string { return d.fingerprint }

// Serve accepts connections on l until ctx is canceled.
func (d *Daemon) Serve(ctx context.Context, l net.Listener) error {
	go func() {
		<-ctx.Done()
		_ = l.Close()
	}()

	for {
		conn, err := l.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
				return fmt.Errorf("daemon: accept: %w", err)
			}
		}
		go d.handleConn(ctx, conn)
	}
}

func (d *Daemon) handleConn(ctx context.Context, conn net.Conn) {
	defer func() { _ = conn.Close() }()
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	reader := newFrameReader(conn, d.idleTimeout)
	writer := newFrameWriter(conn)

	for {
		select {
		case <-connCtx.Done():
			return
		default:
		}

		req, err := reader.readRequest()
		if err != nil {
			return // EOF, timeout, or malformed frame: drop the connection
		}

		if !checkToken(d.token, req.Token) {
			_ = writer.writeResponse(types.ErrorResponse(req.RequestID, types.ErrInvalidArg, fmt.Errorf("invalid session token")))
			continue
		}

		resp := d.dispatch(connCtx, req)
		if err := writer.writeResponse(resp); err != nil {
			return
		}
	}
}

