// Package cache persists built population networks so a simulation run
// never rebuilds what a previous run already computed. Nodes, edges and
// sample pools are stored row-oriented in a single SQLite database under
// the cache folder, keyed by network id; geometries are WKB blobs and
// floats are stored as REAL, so a load returns exactly the rows a save
// wrote, in the same order and at full double precision.
package cache

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	sqlitemigrate "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DBFileName is the cache database file created under the cache folder.
const DBFileName = "network_cache.db"

// Store wraps the cache database connection.
type Store struct {
	*sql.DB
}

// NodeRow is one cached node.
type NodeRow struct {
	ID         string
	Geometry   orb.Polygon
	Lat        float64
	Lon        float64
	Population int64
}

// EdgeRow is one cached edge in canonical (node_id1 < node_id2) form.
type EdgeRow struct {
	NodeID1  string
	NodeID2  string
	Value    float64
	Geometry orb.LineString
}

// NodeSampleRow is one precomputed in-polygon point for a node.
type NodeSampleRow struct {
	ID  string
	Lon float64
	Lat float64
}

// EdgeSampleRow holds the two endpoints of an edge; the table carries both
// orientations of every edge so lookups by either node come back directly.
type EdgeSampleRow struct {
	NodeID1 string
	NodeID2 string
	LonX    float64
	LatX    float64
	LonY    float64
	LatY    float64
}

// Open opens (creating if needed) the cache database under dir and brings
// the schema up to date.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cache: create folder: %w", err)
	}
	db, err := sql.Open("sqlite", filepath.Join(dir, DBFileName))
	if err != nil {
		return nil, fmt.Errorf("cache: open database: %w", err)
	}
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("cache: apply pragmas: %w", err)
		}
	}
	s := &Store{DB: db}
	if err := s.migrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrateUp() error {
	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("cache: migrations fs: %w", err)
	}
	sourceDriver, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("cache: iofs source driver: %w", err)
	}
	driver, err := sqlitemigrate.WithInstance(s.DB, &sqlitemigrate.Config{})
	if err != nil {
		return fmt.Errorf("cache: sqlite migrate driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("cache: migrate instance: %w", err)
	}
	// Cannot call m.Close() with WithInstance(): the sqlite driver's Close
	// would close the sql.DB we manage ourselves.
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("cache: migration up failed: %w", err)
	}
	return nil
}

// NodesKey, EdgesKey, NodeSamplesKey and EdgeSamplesKey are the
// human-readable cache keys a network's payloads live under; they are also
// what operators see in logs.
func NodesKey(networkID string) string       { return networkID + "-nodes" }
func EdgesKey(networkID string) string       { return networkID + "-edges" }
func NodeSamplesKey(networkID string) string { return networkID + "-nodes-samples.csv" }
func EdgeSamplesKey(networkID string) string { return networkID + "-edges-samples.csv" }

func (s *Store) has(table, networkID string) (bool, error) {
	var n int
	err := s.QueryRow("SELECT COUNT(*) FROM "+table+" WHERE network_id = ?", networkID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("cache: count %s: %w", table, err)
	}
	return n > 0, nil
}

// HasNodes reports whether the network's node rows are cached.
func (s *Store) HasNodes(networkID string) (bool, error) {
	return s.has("network_nodes", networkID)
}

// HasEdges reports whether the network's edge rows are cached.
func (s *Store) HasEdges(networkID string) (bool, error) {
	return s.has("network_edges", networkID)
}

// HasNodeSamples reports whether the network's node sample pool is cached.
func (s *Store) HasNodeSamples(networkID string) (bool, error) {
	return s.has("node_samples", networkID)
}

// HasEdgeSamples reports whether the network's edge endpoints are cached.
func (s *Store) HasEdgeSamples(networkID string) (bool, error) {
	return s.has("edge_samples", networkID)
}

// SaveNodes replaces the cached node rows for the network.
func (s *Store) SaveNodes(networkID string, rows []NodeRow) error {
	tx, err := s.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM network_nodes WHERE network_id = ?", networkID); err != nil {
		return fmt.Errorf("cache: clear nodes: %w", err)
	}
	stmt, err := tx.Prepare("INSERT INTO network_nodes (network_id, row_order, id, geometry, lat, lon, population) VALUES (?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i, r := range rows {
		g, err := wkb.Marshal(r.Geometry)
		if err != nil {
			return fmt.Errorf("cache: marshal node %s geometry: %w", r.ID, err)
		}
		if _, err := stmt.Exec(networkID, i, r.ID, g, r.Lat, r.Lon, r.Population); err != nil {
			return fmt.Errorf("cache: insert node %s: %w", r.ID, err)
		}
	}
	return tx.Commit()
}

// LoadNodes returns the cached node rows in saved order.
func (s *Store) LoadNodes(networkID string) ([]NodeRow, error) {
	rows, err := s.Query("SELECT id, geometry, lat, lon, population FROM network_nodes WHERE network_id = ? ORDER BY row_order", networkID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []NodeRow
	for rows.Next() {
		var r NodeRow
		var blob []byte
		if err := rows.Scan(&r.ID, &blob, &r.Lat, &r.Lon, &r.Population); err != nil {
			return nil, err
		}
		g, err := wkb.Unmarshal(blob)
		if err != nil {
			return nil, fmt.Errorf("cache: unmarshal node %s geometry: %w", r.ID, err)
		}
		poly, ok := g.(orb.Polygon)
		if !ok {
			return nil, fmt.Errorf("cache: node %s geometry is %T, want polygon", r.ID, g)
		}
		r.Geometry = poly
		out = append(out, r)
	}
	return out, rows.Err()
}

// SaveEdges replaces the cached edge rows for the network.
func (s *Store) SaveEdges(networkID string, rows []EdgeRow) error {
	tx, err := s.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM network_edges WHERE network_id = ?", networkID); err != nil {
		return fmt.Errorf("cache: clear edges: %w", err)
	}
	stmt, err := tx.Prepare("INSERT INTO network_edges (network_id, row_order, node_id1, node_id2, value, geometry) VALUES (?, ?, ?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i, r := range rows {
		g, err := wkb.Marshal(r.Geometry)
		if err != nil {
			return fmt.Errorf("cache: marshal edge %s-%s geometry: %w", r.NodeID1, r.NodeID2, err)
		}
		if _, err := stmt.Exec(networkID, i, r.NodeID1, r.NodeID2, r.Value, g); err != nil {
			return fmt.Errorf("cache: insert edge %s-%s: %w", r.NodeID1, r.NodeID2, err)
		}
	}
	return tx.Commit()
}

// LoadEdges returns the cached edge rows in saved order.
func (s *Store) LoadEdges(networkID string) ([]EdgeRow, error) {
	rows, err := s.Query("SELECT node_id1, node_id2, value, geometry FROM network_edges WHERE network_id = ? ORDER BY row_order", networkID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EdgeRow
	for rows.Next() {
		var r EdgeRow
		var blob []byte
		if err := rows.Scan(&r.NodeID1, &r.NodeID2, &r.Value, &blob); err != nil {
			return nil, err
		}
		g, err := wkb.Unmarshal(blob)
		if err != nil {
			return nil, fmt.Errorf("cache: unmarshal edge %s-%s geometry: %w", r.NodeID1, r.NodeID2, err)
		}
		ls, ok := g.(orb.LineString)
		if !ok {
			return nil, fmt.Errorf("cache: edge %s-%s geometry is %T, want linestring", r.NodeID1, r.NodeID2, g)
		}
		r.Geometry = ls
		out = append(out, r)
	}
	return out, rows.Err()
}

// SaveNodeSamples replaces the cached node sample pool for the network.
func (s *Store) SaveNodeSamples(networkID string, rows []NodeSampleRow) error {
	tx, err := s.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM node_samples WHERE network_id = ?", networkID); err != nil {
		return fmt.Errorf("cache: clear node samples: %w", err)
	}
	stmt, err := tx.Prepare("INSERT INTO node_samples (network_id, row_order, id, lon, lat) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i, r := range rows {
		if _, err := stmt.Exec(networkID, i, r.ID, r.Lon, r.Lat); err != nil {
			return fmt.Errorf("cache: insert node sample: %w", err)
		}
	}
	return tx.Commit()
}

// LoadNodeSamples returns the cached node sample pool in saved order.
func (s *Store) LoadNodeSamples(networkID string) ([]NodeSampleRow, error) {
	rows, err := s.Query("SELECT id, lon, lat FROM node_samples WHERE network_id = ? ORDER BY row_order", networkID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []NodeSampleRow
	for rows.Next() {
		var r NodeSampleRow
		if err := rows.Scan(&r.ID, &r.Lon, &r.Lat); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// SaveEdgeSamples replaces the cached edge endpoints for the network.
func (s *Store) SaveEdgeSamples(networkID string, rows []EdgeSampleRow) error {
	tx, err := s.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM edge_samples WHERE network_id = ?", networkID); err != nil {
		return fmt.Errorf("cache: clear edge samples: %w", err)
	}
	stmt, err := tx.Prepare("INSERT INTO edge_samples (network_id, row_order, node_id1, node_id2, lon_x, lat_x, lon_y, lat_y) VALUES (?, ?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i, r := range rows {
		if _, err := stmt.Exec(networkID, i, r.NodeID1, r.NodeID2, r.LonX, r.LatX, r.LonY, r.LatY); err != nil {
			return fmt.Errorf("cache: insert edge sample: %w", err)
		}
	}
	return tx.Commit()
}

// LoadEdgeSamples returns the cached edge endpoints in saved order.
func (s *Store) LoadEdgeSamples(networkID string) ([]EdgeSampleRow, error) {
	rows, err := s.Query("SELECT node_id1, node_id2, lon_x, lat_x, lon_y, lat_y FROM edge_samples WHERE network_id = ? ORDER BY row_order", networkID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EdgeSampleRow
	for rows.Next() {
		var r EdgeSampleRow
		if err := rows.Scan(&r.NodeID1, &r.NodeID2, &r.LonX, &r.LatX, &r.LonY, &r.LatY); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
