// Package sqlite exports analysis snapshots into a SQLite database with a
// traces view joining logic, DAO and statement rows.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/imyousuf/daotrace/internal/graph"
)

//go:embed schema.sql
var schema string

// DB wraps the SQLite database connection.
type DB struct {
	conn *sql.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// Pragmas are per connection.
	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec("PRAGMA foreign_keys = ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Conn returns the underlying database connection for ad hoc queries.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Write replaces the database contents with snap in one transaction.
func (db *DB) Write(ctx context.Context, snap *graph.Snapshot) (err error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, table := range []string{"diagnostics", "edges", "nodes"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	if err := insertNodes(ctx, tx, snap.Nodes); err != nil {
		return err
	}
	if err := insertEdges(ctx, tx, snap.Edges); err != nil {
		return err
	}
	if err := insertDiagnostics(ctx, tx, snap); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

var _ graph.Sink = (*DB)(nil)

func insertNodes(ctx context.Context, tx *sql.Tx, nodes []graph.Node) error {
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO nodes (id, kind, package, type_name, method, params, namespace, operation, tags, attributes, file, line, col)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare nodes: %w", err)
	}
	defer stmt.Close()

	for _, n := range nodes {
		var pkg, typeName, method, params, namespace, operation sql.NullString
		if n.Method != nil {
			pkg = nullString(n.Method.Package)
			typeName = nullString(n.Method.Type)
			method = nullString(n.Method.Name)
			params = nullString(n.Method.Params)
		}
		if n.Statement != nil {
			namespace = nullString(n.Statement.Namespace)
			operation = nullString(n.Statement.Operation)
		}
		var file sql.NullString
		var line, col sql.NullInt64
		if n.Position != nil {
			file = nullString(n.Position.File)
			line = sql.NullInt64{Int64: int64(n.Position.Line), Valid: n.Position.Line > 0}
			col = sql.NullInt64{Int64: int64(n.Position.Column), Valid: n.Position.Column > 0}
		}
		attrs, err := jsonText(n.Attributes)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx,
			n.ID, string(n.Kind), pkg, typeName, method, params, namespace, operation,
			nullString(strings.Join(n.Tags, ",")), attrs, file, line, col,
		); err != nil {
			return fmt.Errorf("insert node %s: %w", n.ID, err)
		}
	}
	return nil
}

func insertEdges(ctx context.Context, tx *sql.Tx, edges []graph.Edge) error {
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO edges (source, target, kind, occurrence_count, access, sites)
		 VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare edges: %w", err)
	}
	defer stmt.Close()

	for _, e := range edges {
		var sites sql.NullString
		if len(e.Sites) > 0 {
			data, err := json.Marshal(e.Sites)
			if err != nil {
				return fmt.Errorf("marshal sites: %w", err)
			}
			sites = nullString(string(data))
		}
		if _, err := stmt.ExecContext(ctx,
			e.Source, e.Target, string(e.Kind), e.OccurrenceCount,
			nullString(strings.Join(e.Access, "|")), sites,
		); err != nil {
			return fmt.Errorf("insert edge %s->%s: %w", e.Source, e.Target, err)
		}
	}
	return nil
}

func insertDiagnostics(ctx context.Context, tx *sql.Tx, snap *graph.Snapshot) error {
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO diagnostics (seq, kind, severity, subject, message, file, line, col)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare diagnostics: %w", err)
	}
	defer stmt.Close()

	for i, d := range snap.Diagnostics {
		if _, err := stmt.ExecContext(ctx,
			i, string(d.Kind), string(d.Severity), d.Subject, d.Message,
			nullString(d.Position.File), d.Position.Line, d.Position.Column,
		); err != nil {
			return fmt.Errorf("insert diagnostic %d: %w", i, err)
		}
	}
	return nil
}

// Trace is one row of the traces view.
type Trace struct {
	LogicID     string
	DAOID       string
	StatementID string
	Access      string
	Calls       int
}

// Traces returns the chains starting at logicID, or every chain when
// logicID is empty, ordered by logic, DAO and statement.
func (db *DB) Traces(ctx context.Context, logicID string) ([]Trace, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT logic_id, dao_id, COALESCE(statement_id, ''), COALESCE(access, ''), calls
		 FROM traces
		 WHERE ? = '' OR logic_id = ?
		 ORDER BY logic_id, dao_id, statement_id`,
		logicID, logicID)
	if err != nil {
		return nil, fmt.Errorf("query traces: %w", err)
	}
	defer rows.Close()

	var out []Trace
	for rows.Next() {
		var t Trace
		if err := rows.Scan(&t.LogicID, &t.DAOID, &t.StatementID, &t.Access, &t.Calls); err != nil {
			return nil, fmt.Errorf("scan trace: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func jsonText(m map[string]string) (sql.NullString, error) {
	if len(m) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("marshal attributes: %w", err)
	}
	return nullString(string(data)), nil
}
