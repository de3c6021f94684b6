// Package restostore is the SQLite-backed storage layer shared by the
// central server and the edge proxy: the restos/vans inventory tables plus
// the sync queue and sync metadata the SyncEngine drives.
package restostore

import (
	"context"
	"database/sql"
	"log/slog"
	"sort"
	"strings"
	"time"

	"retlister/internal/models"

	_ "github.com/mattn/go-sqlite3"
)

// Store implements plank/van/sync-queue/sync-metadata persistence over a
// single *sql.DB.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// New wraps an already-initialized *sql.DB.
func New(db *sql.DB, logger *slog.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// Ping verifies the database connection is alive (used by /ready).
func (s *Store) Ping() error {
	return s.db.PingContext(context.Background())
}

// Plank operations

// CreatePlank inserts a new plank row and assigns its id.
func (s *Store) CreatePlank(p *models.Plank) error {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.Exec(
		`INSERT INTO restos (width_mm, height_mm, thickness_mm, material, notes, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		p.WidthMM, p.HeightMM, p.ThicknessMM, p.Material, p.Notes, now,
	)
	if err != nil {
		s.logger.Error("failed to create plank", "error", err)
		return models.NewStoreError("failed to create plank", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.NewStoreError("failed to read insert id", err)
	}
	p.ID = id
	p.CreatedAt = now
	s.logger.Info("plank created", "id", p.ID, "material", p.Material)
	return nil
}

// CreatePlankWithID inserts (or replaces) a plank at a caller-chosen id, used
// when the proxy mirrors an upstream-created plank, with its upstream-assigned
// id, into the local store.
func (s *Store) CreatePlankWithID(p models.Plank) error {
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO restos (id, width_mm, height_mm, thickness_mm, material, notes, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.WidthMM, p.HeightMM, p.ThicknessMM, p.Material, p.Notes, p.CreatedAt,
	)
	if err != nil {
		return models.NewStoreError("failed to upsert plank", err)
	}
	return nil
}

func (s *Store) GetPlank(id int64) (*models.Plank, error) {
	row := s.db.QueryRow(
		`SELECT id, width_mm, height_mm, thickness_mm, material, notes, created_at FROM restos WHERE id = ?`, id,
	)
	p := &models.Plank{}
	if err := row.Scan(&p.ID, &p.WidthMM, &p.HeightMM, &p.ThicknessMM, &p.Material, &p.Notes, &p.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, models.NewNotFoundError("plank", models.CodePlankNotFound)
		}
		return nil, models.NewStoreError("failed to get plank", err)
	}
	return p, nil
}

// ListPlanks returns every plank ordered newest first.
func (s *Store) ListPlanks() ([]models.Plank, error) {
	rows, err := s.db.Query(
		`SELECT id, width_mm, height_mm, thickness_mm, material, notes, created_at FROM restos ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, models.NewStoreError("failed to list planks", err)
	}
	defer rows.Close()

	var out []models.Plank
	for rows.Next() {
		var p models.Plank
		if err := rows.Scan(&p.ID, &p.WidthMM, &p.HeightMM, &p.ThicknessMM, &p.Material, &p.Notes, &p.CreatedAt); err != nil {
			return nil, models.NewStoreError("failed to scan plank", err)
		}
		out = append(out, p)
	}
	return out, nil
}

// ListPlanksByGroup returns planks matching material (case-insensitive) and
// thickness, the inventory slice the cutting optimizer consumes.
func (s *Store) ListPlanksByGroup(material string, thickness int) ([]models.Plank, error) {
	rows, err := s.db.Query(
		`SELECT id, width_mm, height_mm, thickness_mm, material, notes, created_at FROM restos
		 WHERE LOWER(material) = LOWER(?) AND thickness_mm = ?`,
		material, thickness,
	)
	if err != nil {
		return nil, models.NewStoreError("failed to list planks by group", err)
	}
	defer rows.Close()

	var out []models.Plank
	for rows.Next() {
		var p models.Plank
		if err := rows.Scan(&p.ID, &p.WidthMM, &p.HeightMM, &p.ThicknessMM, &p.Material, &p.Notes, &p.CreatedAt); err != nil {
			return nil, models.NewStoreError("failed to scan plank", err)
		}
		out = append(out, p)
	}
	return out, nil
}

// UpdatePlank applies a partial update: only non-zero/non-empty fields in
// patch are changed, the rest of the row is re-read and kept.
func (s *Store) UpdatePlank(id int64, patch models.Plank) (*models.Plank, error) {
	existing, err := s.GetPlank(id)
	if err != nil {
		return nil, err
	}

	if patch.WidthMM > 0 {
		existing.WidthMM = patch.WidthMM
	}
	if patch.HeightMM > 0 {
		existing.HeightMM = patch.HeightMM
	}
	if patch.ThicknessMM > 0 {
		existing.ThicknessMM = patch.ThicknessMM
	}
	if patch.Material != "" {
		existing.Material = patch.Material
	}
	if patch.Notes != "" {
		existing.Notes = patch.Notes
	}

	res, err := s.db.Exec(
		`UPDATE restos SET width_mm = ?, height_mm = ?, thickness_mm = ?, material = ?, notes = ? WHERE id = ?`,
		existing.WidthMM, existing.HeightMM, existing.ThicknessMM, existing.Material, existing.Notes, id,
	)
	if err != nil {
		return nil, models.NewStoreError("failed to update plank", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return nil, models.NewNotFoundError("plank", models.CodePlankNotFound)
	}
	return existing, nil
}

// DeletePlank removes a plank by id. Deleting an absent id is not an error
// at the store layer — the proxy's remove handler deletes locally whether or
// not the row is present.
func (s *Store) DeletePlank(id int64) error {
	_, err := s.db.Exec(`DELETE FROM restos WHERE id = ?`, id)
	if err != nil {
		return models.NewStoreError("failed to delete plank", err)
	}
	return nil
}

// DeleteBatch removes multiple planks in one statement.
func (s *Store) DeleteBatch(ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	_, err := s.db.Exec(`DELETE FROM restos WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return models.NewStoreError("failed to delete batch", err)
	}
	return nil
}

// SearchPlanks filters by width/height/thickness/material, ordered by area
// ascending so the closest usable plank comes first.
func (s *Store) SearchPlanks(q models.SearchQuery) ([]models.Plank, error) {
	rows, err := s.db.Query(
		`SELECT id, width_mm, height_mm, thickness_mm, material, notes, created_at FROM restos
		 WHERE width_mm >= ? AND height_mm >= ? AND thickness_mm = ? AND LOWER(material) = LOWER(?)`,
		q.WidthMM, q.HeightMM, q.ThicknessMM, q.Material,
	)
	if err != nil {
		return nil, models.NewStoreError("failed to search planks", err)
	}
	defer rows.Close()

	var out []models.Plank
	for rows.Next() {
		var p models.Plank
		if err := rows.Scan(&p.ID, &p.WidthMM, &p.HeightMM, &p.ThicknessMM, &p.Material, &p.Notes, &p.CreatedAt); err != nil {
			return nil, models.NewStoreError("failed to scan plank", err)
		}
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Area() < out[j].Area() })
	return out, nil
}

// Stats aggregates counts/area by material and thickness.
func (s *Store) Stats() (*models.StatsResponse, error) {
	resp := &models.StatsResponse{}

	if err := s.db.QueryRow(`SELECT COUNT(*), COALESCE(SUM(width_mm * height_mm), 0) FROM restos`).
		Scan(&resp.TotalCount, &resp.TotalAreaMM2); err != nil {
		return nil, models.NewStoreError("failed to compute totals", err)
	}

	rows, err := s.db.Query(
		`SELECT material, COUNT(*), COALESCE(SUM(width_mm * height_mm), 0) FROM restos GROUP BY LOWER(material)`,
	)
	if err != nil {
		return nil, models.NewStoreError("failed to compute material stats", err)
	}
	for rows.Next() {
		var m models.MaterialStats
		if err := rows.Scan(&m.Material, &m.Count, &m.TotalAreaMM2); err != nil {
			rows.Close()
			return nil, models.NewStoreError("failed to scan material stats", err)
		}
		resp.ByMaterial = append(resp.ByMaterial, m)
	}
	rows.Close()

	rows, err = s.db.Query(`SELECT thickness_mm, COUNT(*) FROM restos GROUP BY thickness_mm`)
	if err != nil {
		return nil, models.NewStoreError("failed to compute thickness stats", err)
	}
	defer rows.Close()
	for rows.Next() {
		var t models.ThicknessStats
		if err := rows.Scan(&t.ThicknessMM, &t.Count); err != nil {
			return nil, models.NewStoreError("failed to scan thickness stats", err)
		}
		resp.ByThickness = append(resp.ByThickness, t)
	}

	return resp, nil
}

// Van operations

func (s *Store) CreateVan(v *models.Van) error {
	res, err := s.db.Exec(
		`INSERT INTO vans (name, length_mm, width_mm, height_mm, max_weight_kg,
		  wheel_well_height_mm, wheel_well_width_mm, wheel_well_start_x_mm, active)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.Name, v.LengthMM, v.WidthMM, v.HeightMM, v.MaxWeightKG,
		v.WheelWellHeightMM, v.WheelWellWidthMM, v.WheelWellStartXMM, v.Active,
	)
	if err != nil {
		return models.NewStoreError("failed to create van", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.NewStoreError("failed to read insert id", err)
	}
	v.ID = id
	return nil
}

func (s *Store) GetVan(id int64) (*models.Van, error) {
	row := s.db.QueryRow(
		`SELECT id, name, length_mm, width_mm, height_mm, max_weight_kg,
		  wheel_well_height_mm, wheel_well_width_mm, wheel_well_start_x_mm, active
		 FROM vans WHERE id = ?`, id,
	)
	v := &models.Van{}
	if err := row.Scan(&v.ID, &v.Name, &v.LengthMM, &v.WidthMM, &v.HeightMM, &v.MaxWeightKG,
		&v.WheelWellHeightMM, &v.WheelWellWidthMM, &v.WheelWellStartXMM, &v.Active); err != nil {
		if err == sql.ErrNoRows {
			return nil, models.NewNotFoundError("van", models.CodeVanNotFound)
		}
		return nil, models.NewStoreError("failed to get van", err)
	}
	return v, nil
}

func (s *Store) ListVans() ([]models.Van, error) {
	rows, err := s.db.Query(
		`SELECT id, name, length_mm, width_mm, height_mm, max_weight_kg,
		  wheel_well_height_mm, wheel_well_width_mm, wheel_well_start_x_mm, active
		 FROM vans ORDER BY id`,
	)
	if err != nil {
		return nil, models.NewStoreError("failed to list vans", err)
	}
	defer rows.Close()

	var out []models.Van
	for rows.Next() {
		var v models.Van
		if err := rows.Scan(&v.ID, &v.Name, &v.LengthMM, &v.WidthMM, &v.HeightMM, &v.MaxWeightKG,
			&v.WheelWellHeightMM, &v.WheelWellWidthMM, &v.WheelWellStartXMM, &v.Active); err != nil {
			return nil, models.NewStoreError("failed to scan van", err)
		}
		out = append(out, v)
	}
	return out, nil
}

// Sync queue operations

// EnqueueSyncEntry records a local mutation awaiting upstream acknowledgement.
func (s *Store) EnqueueSyncEntry(op models.SyncOperation, restoID int64, payload string) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.Exec(
		`INSERT INTO sync_queue (operation, resto_id, payload, timestamp, synced, retry_count, last_error)
		 VALUES (?, ?, ?, ?, 0, 0, '')`,
		string(op), restoID, payload, now,
	)
	if err != nil {
		return 0, models.NewStoreError("failed to enqueue sync entry", err)
	}
	return res.LastInsertId()
}

// ListPendingSyncEntries returns up to limit entries with synced=0 and
// retry_count<3, oldest first.
func (s *Store) ListPendingSyncEntries(limit int) ([]models.SyncQueueEntry, error) {
	rows, err := s.db.Query(
		`SELECT id, operation, resto_id, payload, timestamp, synced, retry_count, last_error
		 FROM sync_queue WHERE synced = 0 AND retry_count < ? ORDER BY timestamp ASC LIMIT ?`,
		models.MaxRetries, limit,
	)
	if err != nil {
		return nil, models.NewStoreError("failed to list pending sync entries", err)
	}
	defer rows.Close()

	var out []models.SyncQueueEntry
	for rows.Next() {
		var e models.SyncQueueEntry
		var op string
		var synced int
		if err := rows.Scan(&e.ID, &op, &e.RestoID, &e.Payload, &e.Timestamp, &synced, &e.RetryCount, &e.LastError); err != nil {
			return nil, models.NewStoreError("failed to scan sync entry", err)
		}
		e.Operation = models.SyncOperation(op)
		e.Synced = synced != 0
		out = append(out, e)
	}
	return out, nil
}

// MarkSyncEntrySucceeded marks an entry synced=1 without touching
// retry_count, so an idempotent replay leaves retry_count unchanged.
func (s *Store) MarkSyncEntrySucceeded(id int64) error {
	_, err := s.db.Exec(`UPDATE sync_queue SET synced = 1, last_error = '' WHERE id = ?`, id)
	if err != nil {
		return models.NewStoreError("failed to mark sync entry synced", err)
	}
	return nil
}

// MarkSyncEntryFailed increments retry_count and records the error text.
func (s *Store) MarkSyncEntryFailed(id int64, errText string) error {
	_, err := s.db.Exec(
		`UPDATE sync_queue SET retry_count = retry_count + 1, last_error = ? WHERE id = ?`,
		errText, id,
	)
	if err != nil {
		return models.NewStoreError("failed to mark sync entry failed", err)
	}
	return nil
}

// PruneSyncedEntries keeps only the newest `keep` synced=1 rows by timestamp.
func (s *Store) PruneSyncedEntries(keep int) error {
	_, err := s.db.Exec(
		`DELETE FROM sync_queue WHERE synced = 1 AND id NOT IN (
			SELECT id FROM sync_queue WHERE synced = 1 ORDER BY timestamp DESC LIMIT ?
		)`, keep,
	)
	if err != nil {
		return models.NewStoreError("failed to prune synced entries", err)
	}
	return nil
}

// UnsyncedReferencedIDs returns the resto ids referenced by any unsynced
// queue entry, used by cache warming to avoid clobbering local-only work.
func (s *Store) UnsyncedReferencedIDs() (map[int64]bool, error) {
	rows, err := s.db.Query(`SELECT DISTINCT resto_id FROM sync_queue WHERE synced = 0`)
	if err != nil {
		return nil, models.NewStoreError("failed to list unsynced references", err)
	}
	defer rows.Close()

	out := map[int64]bool{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, models.NewStoreError("failed to scan unsynced reference", err)
		}
		out[id] = true
	}
	return out, nil
}

// RewriteLocalPlankID moves a local row from oldID to newID, used when an
// INSERT is accepted upstream under a different id.
func (s *Store) RewriteLocalPlankID(oldID, newID int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return models.NewStoreError("failed to begin id-remap transaction", err)
	}

	if _, err := tx.Exec(`DELETE FROM restos WHERE id = ?`, newID); err != nil {
		tx.Rollback()
		return models.NewStoreError("failed to clear remap target", err)
	}
	if _, err := tx.Exec(`UPDATE restos SET id = ? WHERE id = ?`, newID, oldID); err != nil {
		tx.Rollback()
		return models.NewStoreError("failed to rewrite plank id", err)
	}
	if _, err := tx.Exec(`UPDATE sync_queue SET resto_id = ? WHERE resto_id = ?`, newID, oldID); err != nil {
		tx.Rollback()
		return models.NewStoreError("failed to rewrite sync queue references", err)
	}

	return tx.Commit()
}

// Sync metadata

func (s *Store) SetMetadata(key, value string) error {
	_, err := s.db.Exec(`INSERT INTO sync_metadata (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return models.NewStoreError("failed to set sync metadata", err)
	}
	return nil
}

func (s *Store) GetMetadata(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM sync_metadata WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", models.NewStoreError("failed to get sync metadata", err)
	}
	return value, nil
}

// CacheWarm replaces local rows with the upstream list inside a single
// transaction, preserving rows referenced by unsynced queue entries so
// local-only offline work survives.
func (s *Store) CacheWarm(upstream []models.Plank) error {
	referenced, err := s.UnsyncedReferencedIDs()
	if err != nil {
		return err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return models.NewStoreError("failed to begin cache-warm transaction", err)
	}

	rows, err := tx.Query(`SELECT id FROM restos`)
	if err != nil {
		tx.Rollback()
		return models.NewStoreError("failed to enumerate local planks", err)
	}
	var localIDs []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			tx.Rollback()
			return models.NewStoreError("failed to scan local plank id", err)
		}
		localIDs = append(localIDs, id)
	}
	rows.Close()

	for _, id := range localIDs {
		if referenced[id] {
			continue
		}
		if _, err := tx.Exec(`DELETE FROM restos WHERE id = ?`, id); err != nil {
			tx.Rollback()
			return models.NewStoreError("failed to clear stale local plank", err)
		}
	}

	for _, p := range upstream {
		if _, err := tx.Exec(
			`INSERT OR REPLACE INTO restos (id, width_mm, height_mm, thickness_mm, material, notes, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			p.ID, p.WidthMM, p.HeightMM, p.ThicknessMM, p.Material, p.Notes, p.CreatedAt,
		); err != nil {
			tx.Rollback()
			return models.NewStoreError("failed to warm local plank cache", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return models.NewStoreError("failed to commit cache warm", err)
	}

	s.logger.Info("cache warmed", "upstream_rows", len(upstream))
	return s.SetMetadata(models.MetaLastCacheWarm, time.Now().UTC().Format(time.RFC3339))
}
