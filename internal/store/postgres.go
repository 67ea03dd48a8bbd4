package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"bastion/internal/domain"
	"bastion/migrations"
)

// Postgres implements the record store on top of Postgres via the pgx
// stdlib driver.
type Postgres struct {
	conn *sql.DB
}

// Open connects, applies pending embedded migrations, and returns the store.
func Open(ctx context.Context, dsn string) (*Postgres, error) {
	conn, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	if err := runMigrations(ctx, conn); err != nil {
		conn.Close()
		return nil, err
	}
	return &Postgres{conn: conn}, nil
}

// Close releases the underlying sql.DB connection.
func (p *Postgres) Close() error {
	if p == nil || p.conn == nil {
		return nil
	}
	return p.conn.Close()
}

// Ready validates connectivity and that no migrations are pending.
func (p *Postgres) Ready(ctx context.Context) error {
	if p == nil || p.conn == nil {
		return fmt.Errorf("store connection not initialized")
	}
	if err := p.conn.PingContext(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	rows, err := p.conn.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return fmt.Errorf("list applied migrations: %w", err)
	}
	defer rows.Close()
	applied := make(map[string]struct{})
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return fmt.Errorf("scan migration version: %w", err)
		}
		applied[version] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	var missing []string
	for _, name := range migrationNames() {
		if _, ok := applied[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("pending migrations: %s", strings.Join(missing, ","))
	}
	return nil
}

func migrationNames() []string {
	entries, err := migrations.Files.ReadDir(".")
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names
}

func runMigrations(ctx context.Context, conn *sql.DB) error {
	const createTable = `CREATE TABLE IF NOT EXISTS schema_migrations (
                version TEXT PRIMARY KEY,
                applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        )`
	if _, err := conn.ExecContext(ctx, createTable); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}
	rows, err := conn.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return fmt.Errorf("list applied migrations: %w", err)
	}
	defer rows.Close()
	applied := make(map[string]struct{})
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return fmt.Errorf("scan migration version: %w", err)
		}
		applied[version] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("read applied migrations: %w", err)
	}
	for _, version := range migrationNames() {
		if _, ok := applied[version]; ok {
			continue
		}
		contents, err := migrations.Files.ReadFile(version)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", version, err)
		}
		if err := applyMigration(ctx, conn, version, string(contents)); err != nil {
			return err
		}
	}
	return nil
}

func applyMigration(ctx context.Context, conn *sql.DB, version, body string) error {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration %s: %w", version, err)
	}
	if _, err := tx.ExecContext(ctx, body); err != nil {
		tx.Rollback()
		return fmt.Errorf("apply migration %s: %w", version, err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, version); err != nil {
		tx.Rollback()
		return fmt.Errorf("record migration %s: %w", version, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %s: %w", version, err)
	}
	return nil
}

// Deployments.

func (p *Postgres) InsertDeployment(ctx context.Context, rec domain.DeploymentRecord) error {
	regions, err := json.Marshal(rec.TargetRegions)
	if err != nil {
		return fmt.Errorf("marshal target regions: %w", err)
	}
	rollback, err := json.Marshal(rec.RollbackConfig)
	if err != nil {
		return fmt.Errorf("marshal rollback config: %w", err)
	}
	dr, err := json.Marshal(rec.DisasterRecovery)
	if err != nil {
		return fmt.Errorf("marshal disaster recovery: %w", err)
	}
	_, err = p.conn.ExecContext(ctx, `
                INSERT INTO deployments (deployment_id, created_at, target_regions, strategy, status, rollback_config, disaster_recovery)
                VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.DeploymentID, rec.Timestamp, regions, rec.Strategy, rec.Status, rollback, dr)
	if err != nil {
		return fmt.Errorf("insert deployment %s: %w", rec.DeploymentID, err)
	}
	return nil
}

func (p *Postgres) GetDeployment(ctx context.Context, deploymentID string) (domain.DeploymentRecord, error) {
	row := p.conn.QueryRowContext(ctx, `
                SELECT deployment_id, created_at, target_regions, strategy, status, rollback_config, disaster_recovery
                FROM deployments WHERE deployment_id = $1`, deploymentID)
	return scanDeployment(row)
}

func (p *Postgres) UpdateDeploymentStatus(ctx context.Context, deploymentID string, status domain.DeploymentStatus) error {
	res, err := p.conn.ExecContext(ctx, `
                UPDATE deployments SET status = $2, updated_at = NOW() WHERE deployment_id = $1`,
		deploymentID, status)
	if err != nil {
		return fmt.Errorf("update deployment %s status: %w", deploymentID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) ListDeploymentsByStatus(ctx context.Context, statuses ...domain.DeploymentStatus) ([]domain.DeploymentRecord, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	wanted, err := json.Marshal(statuses)
	if err != nil {
		return nil, err
	}
	rows, err := p.conn.QueryContext(ctx, `
                SELECT deployment_id, created_at, target_regions, strategy, status, rollback_config, disaster_recovery
                FROM deployments
                WHERE status IN (SELECT jsonb_array_elements_text($1::jsonb))
                ORDER BY created_at`, wanted)
	if err != nil {
		return nil, fmt.Errorf("list deployments by status: %w", err)
	}
	defer rows.Close()
	var out []domain.DeploymentRecord
	for rows.Next() {
		rec, err := scanDeployment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDeployment(row rowScanner) (domain.DeploymentRecord, error) {
	var (
		rec      domain.DeploymentRecord
		regions  []byte
		rollback []byte
		dr       []byte
	)
	err := row.Scan(&rec.DeploymentID, &rec.Timestamp, &regions, &rec.Strategy, &rec.Status, &rollback, &dr)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.DeploymentRecord{}, ErrNotFound
	}
	if err != nil {
		return domain.DeploymentRecord{}, fmt.Errorf("scan deployment: %w", err)
	}
	if err := json.Unmarshal(regions, &rec.TargetRegions); err != nil {
		return domain.DeploymentRecord{}, fmt.Errorf("unmarshal target regions: %w", err)
	}
	if err := json.Unmarshal(rollback, &rec.RollbackConfig); err != nil {
		return domain.DeploymentRecord{}, fmt.Errorf("unmarshal rollback config: %w", err)
	}
	if err := json.Unmarshal(dr, &rec.DisasterRecovery); err != nil {
		return domain.DeploymentRecord{}, fmt.Errorf("unmarshal disaster recovery: %w", err)
	}
	return rec, nil
}

// Rollout phases.

func (p *Postgres) UpsertPhase(ctx context.Context, phase domain.RolloutPhase) error {
	regions, err := json.Marshal(phase.Regions)
	if err != nil {
		return fmt.Errorf("marshal phase regions: %w", err)
	}
	_, err = p.conn.ExecContext(ctx, `
                INSERT INTO rollout_phases (deployment_id, phase_index, regions, started_at, health_score, outcome)
                VALUES ($1, $2, $3, $4, $5, $6)
                ON CONFLICT (deployment_id, phase_index)
                DO UPDATE SET health_score = EXCLUDED.health_score, outcome = EXCLUDED.outcome`,
		phase.DeploymentID, phase.Index, regions, phase.StartedAt, phase.HealthScore, phase.Outcome)
	if err != nil {
		return fmt.Errorf("upsert phase %s/%d: %w", phase.DeploymentID, phase.Index, err)
	}
	return nil
}

func (p *Postgres) ListPhases(ctx context.Context, deploymentID string) ([]domain.RolloutPhase, error) {
	rows, err := p.conn.QueryContext(ctx, `
                SELECT deployment_id, phase_index, regions, started_at, health_score, outcome
                FROM rollout_phases WHERE deployment_id = $1 ORDER BY phase_index`, deploymentID)
	if err != nil {
		return nil, fmt.Errorf("list phases for %s: %w", deploymentID, err)
	}
	defer rows.Close()
	var out []domain.RolloutPhase
	for rows.Next() {
		var (
			phase   domain.RolloutPhase
			regions []byte
		)
		if err := rows.Scan(&phase.DeploymentID, &phase.Index, &regions, &phase.StartedAt, &phase.HealthScore, &phase.Outcome); err != nil {
			return nil, fmt.Errorf("scan phase: %w", err)
		}
		if err := json.Unmarshal(regions, &phase.Regions); err != nil {
			return nil, fmt.Errorf("unmarshal phase regions: %w", err)
		}
		out = append(out, phase)
	}
	return out, rows.Err()
}

// Threat events.

func (p *Postgres) InsertThreatEvent(ctx context.Context, ev domain.ThreatEvent, expiresAt time.Time) error {
	details, err := json.Marshal(ev.Details)
	if err != nil {
		return fmt.Errorf("marshal threat details: %w", err)
	}
	_, err = p.conn.ExecContext(ctx, `
                INSERT INTO threat_events (threat_id, occurred_at, region, threat_type, threat_level, details, expires_at)
                VALUES ($1, $2, $3, $4, $5, $6, $7)
                ON CONFLICT (threat_id) DO NOTHING`,
		ev.ThreatID, ev.Timestamp, ev.Region, ev.Type, ev.ThreatLevel, details, expiresAt)
	if err != nil {
		return fmt.Errorf("insert threat event %s: %w", ev.ThreatID, err)
	}
	return nil
}

func (p *Postgres) ListThreatEventsSince(ctx context.Context, since time.Time) ([]domain.ThreatEvent, error) {
	rows, err := p.conn.QueryContext(ctx, `
                SELECT threat_id, occurred_at, region, threat_type, threat_level, details
                FROM threat_events WHERE occurred_at >= $1 ORDER BY occurred_at`, since)
	if err != nil {
		return nil, fmt.Errorf("list threat events: %w", err)
	}
	defer rows.Close()
	var out []domain.ThreatEvent
	for rows.Next() {
		var (
			ev      domain.ThreatEvent
			details []byte
		)
		if err := rows.Scan(&ev.ThreatID, &ev.Timestamp, &ev.Region, &ev.Type, &ev.ThreatLevel, &details); err != nil {
			return nil, fmt.Errorf("scan threat event: %w", err)
		}
		if err := json.Unmarshal(details, &ev.Details); err != nil {
			return nil, fmt.Errorf("unmarshal threat details: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (p *Postgres) DeleteExpiredThreatEvents(ctx context.Context, now time.Time) (int64, error) {
	res, err := p.conn.ExecContext(ctx, `DELETE FROM threat_events WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired threat events: %w", err)
	}
	return res.RowsAffected()
}

// Incidents.

func (p *Postgres) InsertIncident(ctx context.Context, inc domain.Incident) error {
	related, err := json.Marshal(inc.RelatedEvents)
	if err != nil {
		return fmt.Errorf("marshal related events: %w", err)
	}
	actions, err := json.Marshal(actionsOrEmpty(inc.ResponseActions))
	if err != nil {
		return fmt.Errorf("marshal response actions: %w", err)
	}
	_, err = p.conn.ExecContext(ctx, `
                INSERT INTO incidents (incident_id, created_at, status, severity, threat_type, region, related_events, assigned_to, sla_deadline, response_actions, resolved_at, resolution)
                VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		inc.IncidentID, inc.Timestamp, inc.Status, inc.Severity, inc.Type, inc.Region,
		related, inc.AssignedTo, inc.SLADeadline, actions, inc.ResolvedAt, inc.Resolution)
	if err != nil {
		return fmt.Errorf("insert incident %s: %w", inc.IncidentID, err)
	}
	return nil
}

func (p *Postgres) UpdateIncident(ctx context.Context, inc domain.Incident) error {
	related, err := json.Marshal(inc.RelatedEvents)
	if err != nil {
		return fmt.Errorf("marshal related events: %w", err)
	}
	actions, err := json.Marshal(actionsOrEmpty(inc.ResponseActions))
	if err != nil {
		return fmt.Errorf("marshal response actions: %w", err)
	}
	res, err := p.conn.ExecContext(ctx, `
                UPDATE incidents
                SET status = $2, related_events = $3, response_actions = $4, resolved_at = $5, resolution = $6, updated_at = NOW()
                WHERE incident_id = $1`,
		inc.IncidentID, inc.Status, related, actions, inc.ResolvedAt, inc.Resolution)
	if err != nil {
		return fmt.Errorf("update incident %s: %w", inc.IncidentID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) GetIncident(ctx context.Context, incidentID string) (domain.Incident, error) {
	row := p.conn.QueryRowContext(ctx, incidentSelect+` WHERE incident_id = $1`, incidentID)
	return scanIncident(row)
}

// GetIncidentByThreatID finds the incident that already references the
// given threat id, if any. Backs the engine's idempotency check.
func (p *Postgres) GetIncidentByThreatID(ctx context.Context, threatID string) (domain.Incident, error) {
	ref, err := json.Marshal([]string{threatID})
	if err != nil {
		return domain.Incident{}, err
	}
	row := p.conn.QueryRowContext(ctx, incidentSelect+` WHERE related_events @> $1::jsonb LIMIT 1`, ref)
	return scanIncident(row)
}

func (p *Postgres) ListIncidentsSince(ctx context.Context, since time.Time) ([]domain.Incident, error) {
	rows, err := p.conn.QueryContext(ctx, incidentSelect+` WHERE created_at >= $1 ORDER BY created_at`, since)
	if err != nil {
		return nil, fmt.Errorf("list incidents: %w", err)
	}
	return collectIncidents(rows)
}

func (p *Postgres) ListIncidentsByStatus(ctx context.Context, statuses ...domain.IncidentStatus) ([]domain.Incident, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	wanted, err := json.Marshal(statuses)
	if err != nil {
		return nil, err
	}
	rows, err := p.conn.QueryContext(ctx, incidentSelect+`
                WHERE status IN (SELECT jsonb_array_elements_text($1::jsonb))
                ORDER BY created_at`, wanted)
	if err != nil {
		return nil, fmt.Errorf("list incidents by status: %w", err)
	}
	return collectIncidents(rows)
}

const incidentSelect = `
        SELECT incident_id, created_at, status, severity, threat_type, region, related_events, assigned_to, sla_deadline, response_actions, resolved_at, resolution
        FROM incidents`

func collectIncidents(rows *sql.Rows) ([]domain.Incident, error) {
	defer rows.Close()
	var out []domain.Incident
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inc)
	}
	return out, rows.Err()
}

func scanIncident(row rowScanner) (domain.Incident, error) {
	var (
		inc     domain.Incident
		related []byte
		actions []byte
	)
	err := row.Scan(&inc.IncidentID, &inc.Timestamp, &inc.Status, &inc.Severity, &inc.Type, &inc.Region,
		&related, &inc.AssignedTo, &inc.SLADeadline, &actions, &inc.ResolvedAt, &inc.Resolution)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Incident{}, ErrNotFound
	}
	if err != nil {
		return domain.Incident{}, fmt.Errorf("scan incident: %w", err)
	}
	if err := json.Unmarshal(related, &inc.RelatedEvents); err != nil {
		return domain.Incident{}, fmt.Errorf("unmarshal related events: %w", err)
	}
	if err := json.Unmarshal(actions, &inc.ResponseActions); err != nil {
		return domain.Incident{}, fmt.Errorf("unmarshal response actions: %w", err)
	}
	return inc, nil
}

func actionsOrEmpty(actions []domain.ResponseAction) []domain.ResponseAction {
	if actions == nil {
		return []domain.ResponseAction{}
	}
	return actions
}

// Failover audits.

func (p *Postgres) InsertFailoverAudit(ctx context.Context, result domain.FailoverResult) error {
	_, err := p.conn.ExecContext(ctx, `
                INSERT INTO failover_audits (deployment_id, target_region, started_at, completed_at, rto_met)
                VALUES ($1, $2, $3, $4, $5)`,
		result.DeploymentID, result.TargetRegion, result.StartedAt, result.CompletedAt, result.RTOMet)
	if err != nil {
		return fmt.Errorf("insert failover audit for %s: %w", result.DeploymentID, err)
	}
	return nil
}

func (p *Postgres) ListFailoverAudits(ctx context.Context, deploymentID string) ([]domain.FailoverResult, error) {
	rows, err := p.conn.QueryContext(ctx, `
                SELECT deployment_id, target_region, started_at, completed_at, rto_met
                FROM failover_audits WHERE deployment_id = $1 ORDER BY started_at`, deploymentID)
	if err != nil {
		return nil, fmt.Errorf("list failover audits for %s: %w", deploymentID, err)
	}
	defer rows.Close()
	var out []domain.FailoverResult
	for rows.Next() {
		var fr domain.FailoverResult
		if err := rows.Scan(&fr.DeploymentID, &fr.TargetRegion, &fr.StartedAt, &fr.CompletedAt, &fr.RTOMet); err != nil {
			return nil, fmt.Errorf("scan failover audit: %w", err)
		}
		out = append(out, fr)
	}
	return out, rows.Err()
}
