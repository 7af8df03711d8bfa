package storage

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/gob"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"

	"github.com/tierkreisgo/tierkreis/controller"
	"github.com/tierkreisgo/tierkreis/graph"
	"github.com/tierkreisgo/tierkreis/location"
)

func encodeNodeDescription(desc controller.NodeDescription) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(desc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeNodeDescription(data []byte) (controller.NodeDescription, error) {
	var desc controller.NodeDescription
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&desc); err != nil {
		return controller.NodeDescription{}, err
	}
	return desc, nil
}

// SQLStorage is a database/sql-backed controller.Storage over the same
// per-location fact model as MemStorage, durable across process restarts.
// It is grounded on the teacher's SQLiteStore/MySQLStore connection-setup
// idioms (WAL pragma, busy_timeout, pool limits, CREATE TABLE IF NOT
// EXISTS) but targets a schema of independent (loc, port) facts instead of
// the teacher's whole-state checkpoint rows, since tierkreis never
// serializes "the whole run" as one blob.
//
// Like MemStorage, SQLStorage keeps worker call-args in an in-memory map
// rather than a table: a Func node's resolved inputs only ever need to
// reach an InProcess executor in the same process, and staging them
// through SQL would buy durability nothing can use (a crash mid-run loses
// the in-flight call anyway, same as losing an un-committed transaction).
// A FileStorage-backed run is still required for real out-of-process
// Subprocess/HTTP executors.
type SQLStorage struct {
	db      *sql.DB
	dialect string // "sqlite" or "mysql"

	mu           sync.Mutex
	callArgs     map[string]controller.CallArgs
	callArgsNext int
}

// NewSQLiteStorage opens (creating if absent) a SQLite-backed SQLStorage at
// path, configured the way the teacher's SQLiteStore is: single writer,
// WAL journal mode, a busy timeout so concurrent ticks don't spuriously
// fail against SQLITE_BUSY.
func NewSQLiteStorage(path string) (*SQLStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("controller/storage: opening sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx := context.Background()
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("controller/storage: %s: %w", pragma, err)
		}
	}
	return newSQLStorage(db, "sqlite")
}

// NewMySQLStorage opens a MySQL-backed SQLStorage using dsn (as accepted by
// github.com/go-sql-driver/mysql), with a bounded connection pool matching
// the teacher's MySQLStore defaults.
func NewMySQLStorage(dsn string) (*SQLStorage, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("controller/storage: opening mysql: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)
	return newSQLStorage(db, "mysql")
}

func newSQLStorage(db *sql.DB, dialect string) (*SQLStorage, error) {
	s := &SQLStorage{db: db, dialect: dialect, callArgs: make(map[string]controller.CallArgs)}
	if err := s.createTables(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("controller/storage: creating tables: %w", err)
	}
	return s, nil
}

func (s *SQLStorage) blobType() string {
	if s.dialect == "mysql" {
		return "LONGBLOB"
	}
	return "BLOB"
}

func (s *SQLStorage) createTables(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS node_descriptions (
			loc VARCHAR(512) PRIMARY KEY,
			data %s NOT NULL
		)`, s.blobType()),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS outputs (
			loc VARCHAR(512) NOT NULL,
			port VARCHAR(256) NOT NULL,
			value %s NULL,
			link_loc VARCHAR(512) NULL,
			link_port VARCHAR(256) NULL,
			PRIMARY KEY(loc, port)
		)`, s.blobType()),
		`CREATE TABLE IF NOT EXISTS node_flags (
			loc VARCHAR(512) PRIMARY KEY,
			started INTEGER NOT NULL DEFAULT 0,
			finished INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS node_errors (
			loc VARCHAR(512) PRIMARY KEY,
			message TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS debug_names (
			name VARCHAR(256) PRIMARY KEY,
			loc VARCHAR(512) NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS run_metadata (
			loc VARCHAR(512) PRIMARY KEY,
			started_at VARCHAR(64) NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_node_flags_started ON node_flags(started)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%s: %w", stmt, err)
		}
	}
	return nil
}

// upsert runs an INSERT that replaces any existing row for the given
// conflict columns, using each dialect's native upsert syntax (MySQL lacks
// sqlite's ON CONFLICT ... DO UPDATE before 8.0.19's INSERT ... AS, so this
// stays on the widely-supported ON DUPLICATE KEY UPDATE form instead).
func (s *SQLStorage) upsert(ctx context.Context, table string, cols []string, conflictCols []string, args ...any) error {
	placeholders := strings.TrimRight(strings.Repeat("?,", len(cols)), ",")
	var sb strings.Builder
	fmt.Fprintf(&sb, "INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(cols, ","), placeholders)

	updateCols := make([]string, 0, len(cols))
	conflict := make(map[string]bool, len(conflictCols))
	for _, c := range conflictCols {
		conflict[c] = true
	}
	for _, c := range cols {
		if !conflict[c] {
			updateCols = append(updateCols, c)
		}
	}

	if s.dialect == "mysql" {
		sb.WriteString(" ON DUPLICATE KEY UPDATE ")
		parts := make([]string, len(updateCols))
		for i, c := range updateCols {
			parts[i] = fmt.Sprintf("%s=VALUES(%s)", c, c)
		}
		sb.WriteString(strings.Join(parts, ","))
	} else {
		fmt.Fprintf(&sb, " ON CONFLICT(%s) DO UPDATE SET ", strings.Join(conflictCols, ","))
		parts := make([]string, len(updateCols))
		for i, c := range updateCols {
			parts[i] = fmt.Sprintf("%s=excluded.%s", c, c)
		}
		sb.WriteString(strings.Join(parts, ","))
	}

	_, err := s.db.ExecContext(ctx, sb.String(), args...)
	return err
}

func (s *SQLStorage) WriteMetadata(loc location.Loc) error {
	err := s.upsert(context.Background(), "run_metadata", []string{"loc", "started_at"}, []string{"loc"},
		loc.String(), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return &controller.StorageError{Op: "WriteMetadata", Loc: loc, Cause: err}
	}
	return nil
}

func (s *SQLStorage) WriteNodeDescription(loc location.Loc, desc controller.NodeDescription) error {
	data, err := encodeNodeDescription(desc)
	if err != nil {
		return &controller.StorageError{Op: "WriteNodeDescription", Loc: loc, Cause: err}
	}
	ctx := context.Background()
	if err := s.upsert(ctx, "node_descriptions", []string{"loc", "data"}, []string{"loc"}, loc.String(), data); err != nil {
		return &controller.StorageError{Op: "WriteNodeDescription", Loc: loc, Cause: err}
	}
	if err := s.upsert(ctx, "node_flags", []string{"loc", "started", "finished"}, []string{"loc"}, loc.String(), 1, 0); err != nil {
		return &controller.StorageError{Op: "WriteNodeDescription", Loc: loc, Cause: err}
	}
	return nil
}

func (s *SQLStorage) ReadNodeDescription(loc location.Loc) (controller.NodeDescription, error) {
	var data []byte
	err := s.db.QueryRow(`SELECT data FROM node_descriptions WHERE loc = ?`, loc.String()).Scan(&data)
	if err == sql.ErrNoRows {
		return controller.NodeDescription{}, fmt.Errorf("%w: no description at %s", controller.ErrNotFound, loc)
	}
	if err != nil {
		return controller.NodeDescription{}, &controller.StorageError{Op: "ReadNodeDescription", Loc: loc, Cause: err}
	}
	desc, err := decodeNodeDescription(data)
	if err != nil {
		return controller.NodeDescription{}, &controller.StorageError{Op: "ReadNodeDescription", Loc: loc, Cause: err}
	}
	return desc, nil
}

func (s *SQLStorage) WriteOutput(loc location.Loc, port graph.PortID, value []byte) error {
	err := s.upsert(context.Background(), "outputs",
		[]string{"loc", "port", "value", "link_loc", "link_port"}, []string{"loc", "port"},
		loc.String(), string(port), value, nil, nil)
	if err != nil {
		return &controller.StorageError{Op: "WriteOutput", Loc: loc, Cause: err}
	}
	return nil
}

func (s *SQLStorage) ReadOutput(loc location.Loc, port graph.PortID) ([]byte, error) {
	return s.readOutput(loc, port, 0)
}

func (s *SQLStorage) readOutput(loc location.Loc, port graph.PortID, depth int) ([]byte, error) {
	if depth > 1000 {
		return nil, fmt.Errorf("%w: at (%s, %s)", controller.ErrLinkCycle, loc, port)
	}
	var value []byte
	var linkLoc, linkPort sql.NullString
	err := s.db.QueryRow(`SELECT value, link_loc, link_port FROM outputs WHERE loc = ? AND port = ?`,
		loc.String(), string(port)).Scan(&value, &linkLoc, &linkPort)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: no output at (%s, %s)", controller.ErrNotFound, loc, port)
	}
	if err != nil {
		return nil, &controller.StorageError{Op: "ReadOutput", Loc: loc, Cause: err}
	}
	if linkLoc.Valid {
		srcLoc, err := location.Parse(linkLoc.String)
		if err != nil {
			return nil, &controller.StorageError{Op: "ReadOutput", Loc: loc, Cause: err}
		}
		return s.readOutput(srcLoc, graph.PortID(linkPort.String), depth+1)
	}
	return value, nil
}

func (s *SQLStorage) ReadOutputPorts(loc location.Loc) ([]graph.PortID, error) {
	rows, err := s.db.Query(`SELECT port FROM outputs WHERE loc = ? ORDER BY port`, loc.String())
	if err != nil {
		return nil, &controller.StorageError{Op: "ReadOutputPorts", Loc: loc, Cause: err}
	}
	defer rows.Close()
	var ports []graph.PortID
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, &controller.StorageError{Op: "ReadOutputPorts", Loc: loc, Cause: err}
		}
		ports = append(ports, graph.PortID(p))
	}
	return ports, rows.Err()
}

func (s *SQLStorage) LinkOutputs(dstLoc location.Loc, dstPort graph.PortID, srcLoc location.Loc, srcPort graph.PortID) error {
	err := s.upsert(context.Background(), "outputs",
		[]string{"loc", "port", "value", "link_loc", "link_port"}, []string{"loc", "port"},
		dstLoc.String(), string(dstPort), nil, srcLoc.String(), string(srcPort))
	if err != nil {
		return &controller.StorageError{Op: "LinkOutputs", Loc: dstLoc, Cause: err}
	}
	return nil
}

func (s *SQLStorage) IsNodeStarted(loc location.Loc) (bool, error) {
	var started int
	err := s.db.QueryRow(`SELECT started FROM node_flags WHERE loc = ?`, loc.String()).Scan(&started)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, &controller.StorageError{Op: "IsNodeStarted", Loc: loc, Cause: err}
	}
	return started != 0, nil
}

func (s *SQLStorage) MarkNodeFinished(loc location.Loc) error {
	err := s.upsert(context.Background(), "node_flags", []string{"loc", "started", "finished"}, []string{"loc"},
		loc.String(), 1, 1)
	if err != nil {
		return &controller.StorageError{Op: "MarkNodeFinished", Loc: loc, Cause: err}
	}
	return nil
}

func (s *SQLStorage) IsNodeFinished(loc location.Loc) (bool, error) {
	var finished int
	err := s.db.QueryRow(`SELECT finished FROM node_flags WHERE loc = ?`, loc.String()).Scan(&finished)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, &controller.StorageError{Op: "IsNodeFinished", Loc: loc, Cause: err}
	}
	return finished != 0, nil
}

func (s *SQLStorage) NodeHasError(loc location.Loc) (bool, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM node_errors WHERE loc = ?`, loc.String()).Scan(&count)
	if err != nil {
		return false, &controller.StorageError{Op: "NodeHasError", Loc: loc, Cause: err}
	}
	return count > 0, nil
}

func (s *SQLStorage) ReadErrors(loc location.Loc) (string, error) {
	var message string
	err := s.db.QueryRow(`SELECT message FROM node_errors WHERE loc = ?`, loc.String()).Scan(&message)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("%w: no error recorded at %s", controller.ErrNotFound, loc)
	}
	if err != nil {
		return "", &controller.StorageError{Op: "ReadErrors", Loc: loc, Cause: err}
	}
	return message, nil
}

func (s *SQLStorage) WriteNodeErrors(loc location.Loc, text string) error {
	err := s.upsert(context.Background(), "node_errors", []string{"loc", "message"}, []string{"loc"}, loc.String(), text)
	if err != nil {
		return &controller.StorageError{Op: "WriteNodeErrors", Loc: loc, Cause: err}
	}
	return nil
}

// WriteWorkerCallArgs resolves inputs up front and keeps the record in
// memory — see the type doc comment for why SQL is not involved here.
func (s *SQLStorage) WriteWorkerCallArgs(loc location.Loc, funcName string, inputs map[graph.PortID]controller.OutputLoc, outputs []graph.PortID) (string, error) {
	resolved := make(map[graph.PortID][]byte, len(inputs))
	for port, src := range inputs {
		v, err := s.ReadOutput(src.Loc, src.Port)
		if err != nil {
			return "", err
		}
		resolved[port] = v
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callArgsNext++
	path := fmt.Sprintf("sql://%s/%s/%d", loc.String(), funcName, s.callArgsNext)
	s.callArgs[path] = controller.CallArgs{
		Loc: loc, FunctionName: funcName, Inputs: resolved,
		OutputPorts: append([]graph.PortID(nil), outputs...),
	}
	return path, nil
}

// ResolveCallArgs implements controller.ArgsResolver.
func (s *SQLStorage) ResolveCallArgs(argsPath string) (controller.CallArgs, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	args, ok := s.callArgs[argsPath]
	if !ok {
		return controller.CallArgs{}, fmt.Errorf("%w: no call args at %s", controller.ErrNotFound, argsPath)
	}
	return args, nil
}

func (s *SQLStorage) LatestLoopIteration(loopLoc location.Loc) (location.Loc, error) {
	prefix := loopLoc.String() + ".L%"
	rows, err := s.db.Query(`SELECT loc FROM node_flags WHERE started = 1 AND loc LIKE ?`, prefix)
	if err != nil {
		return loopLoc, &controller.StorageError{Op: "LatestLoopIteration", Loc: loopLoc, Cause: err}
	}
	defer rows.Close()

	exactPrefix := loopLoc.String() + ".L"
	best := -1
	for rows.Next() {
		var locStr string
		if err := rows.Scan(&locStr); err != nil {
			return loopLoc, &controller.StorageError{Op: "LatestLoopIteration", Loc: loopLoc, Cause: err}
		}
		if !strings.HasPrefix(locStr, exactPrefix) {
			continue
		}
		rest := locStr[len(exactPrefix):]
		if strings.ContainsRune(rest, '.') {
			continue
		}
		var k int
		if _, err := fmt.Sscanf(rest, "%d", &k); err != nil {
			continue
		}
		if k > best {
			best = k
		}
	}
	if best < 0 {
		return loopLoc, nil
	}
	return loopLoc.L(best), nil
}

func (s *SQLStorage) LocFromNodeName(name string) (location.Loc, bool, error) {
	var locStr string
	err := s.db.QueryRow(`SELECT loc FROM debug_names WHERE name = ?`, name).Scan(&locStr)
	if err == sql.ErrNoRows {
		return location.Loc{}, false, nil
	}
	if err != nil {
		return location.Loc{}, false, &controller.StorageError{Op: "LocFromNodeName", Cause: err}
	}
	loc, err := location.Parse(locStr)
	if err != nil {
		return location.Loc{}, false, &controller.StorageError{Op: "LocFromNodeName", Cause: err}
	}
	return loc, true, nil
}

func (s *SQLStorage) WriteDebugData(name string, loc location.Loc) error {
	err := s.upsert(context.Background(), "debug_names", []string{"name", "loc"}, []string{"name"}, name, loc.String())
	if err != nil {
		return &controller.StorageError{Op: "WriteDebugData", Loc: loc, Cause: err}
	}
	return nil
}

func (s *SQLStorage) ReadLoopTrace(loopLoc location.Loc, port graph.PortID) ([][]byte, error) {
	var trace [][]byte
	for k := 0; ; k++ {
		v, err := s.readOutput(loopLoc.L(k), port, 0)
		if err != nil {
			break
		}
		trace = append(trace, v)
	}
	return trace, nil
}

func (s *SQLStorage) LogsPath() string { return "" }

// Close releases the underlying database connection.
func (s *SQLStorage) Close() error { return s.db.Close() }

var (
	_ controller.Storage      = (*SQLStorage)(nil)
	_ controller.ArgsResolver = (*SQLStorage)(nil)
)
