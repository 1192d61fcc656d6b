package graph

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/identity-service/internal/domain"
)

type postgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore returns a Postgres-backed identity graph store. The
// partial unique index on (id_type, id_value) over active links is the
// schema-level enforcement point for single active ownership of a pair.
func NewPostgresStore(pool *pgxpool.Pool) Store {
	return &postgresStore{pool: pool}
}

func (s *postgresStore) CreateIdentity(ctx context.Context, primaryEmail, primaryName string) (*domain.CanonicalIdentity, error) {
	const query = `
        INSERT INTO canonical_identities (id, primary_email, primary_name, active)
        VALUES ($1, $2, $3, TRUE)
        RETURNING created_at, updated_at`

	identity := &domain.CanonicalIdentity{
		ID:           NewIdentityID(),
		PrimaryEmail: primaryEmail,
		PrimaryName:  primaryName,
		Active:       true,
	}
	if err := s.pool.QueryRow(ctx, query, identity.ID, primaryEmail, primaryName).
		Scan(&identity.CreatedAt, &identity.UpdatedAt); err != nil {
		return nil, err
	}
	return identity, nil
}

func (s *postgresStore) GetIdentity(ctx context.Context, id string) (*domain.CanonicalIdentity, error) {
	const query = `
        SELECT id, primary_email, primary_name, active, merged_into, created_at, updated_at
        FROM canonical_identities WHERE id=$1`

	var identity domain.CanonicalIdentity
	if err := s.pool.QueryRow(ctx, query, id).Scan(
		&identity.ID,
		&identity.PrimaryEmail,
		&identity.PrimaryName,
		&identity.Active,
		&identity.MergedInto,
		&identity.CreatedAt,
		&identity.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &identity, nil
}

func (s *postgresStore) UpdatePrimaryContact(ctx context.Context, id, email, name string) error {
	const query = `
        UPDATE canonical_identities SET primary_email=$1, primary_name=$2, updated_at=NOW()
        WHERE id=$3`

	cmd, err := s.pool.Exec(ctx, query, email, name, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *postgresStore) ListActiveIdentities(ctx context.Context, limit, offset int) ([]domain.CanonicalIdentity, error) {
	const query = `
        SELECT id, primary_email, primary_name, active, merged_into, created_at, updated_at
        FROM canonical_identities
        WHERE active
        ORDER BY id
        LIMIT $1 OFFSET $2`

	rows, err := s.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.CanonicalIdentity
	for rows.Next() {
		var identity domain.CanonicalIdentity
		if err := rows.Scan(
			&identity.ID,
			&identity.PrimaryEmail,
			&identity.PrimaryName,
			&identity.Active,
			&identity.MergedInto,
			&identity.CreatedAt,
			&identity.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, identity)
	}
	return result, rows.Err()
}

func (s *postgresStore) Link(ctx context.Context, link domain.IdentityLink) error {
	// The conditional upsert is the one atomicity requirement the store must
	// provide: the WHERE clause only fires for the current owner, so a pair
	// held by a different identity returns no row and is surfaced as a
	// conflict instead of being re-pointed.
	const query = `
        INSERT INTO identity_links (canonical_id, id_type, id_value, source, confidence, verified, active)
        VALUES ($1, $2, $3, $4, $5, $6, TRUE)
        ON CONFLICT (id_type, id_value) WHERE active DO UPDATE
        SET confidence = GREATEST(identity_links.confidence, EXCLUDED.confidence),
            verified = identity_links.verified OR EXCLUDED.verified,
            updated_at = NOW()
        WHERE identity_links.canonical_id = EXCLUDED.canonical_id
        RETURNING canonical_id`

	var owner string
	err := s.pool.QueryRow(ctx, query,
		link.CanonicalID,
		link.IDType,
		link.IDValue,
		link.Source,
		link.Confidence,
		link.Verified,
	).Scan(&owner)
	if err == nil {
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return err
	}

	currentOwner, lookupErr := s.LookupOwner(ctx, link.IDType, link.IDValue)
	if lookupErr != nil {
		return lookupErr
	}
	return &LinkConflictError{IDType: link.IDType, OwnerID: currentOwner, RequestID: link.CanonicalID}
}

func (s *postgresStore) LookupOwner(ctx context.Context, idType domain.IdentifierType, idValue string) (string, error) {
	const query = `
        SELECT canonical_id FROM identity_links
        WHERE id_type=$1 AND id_value=$2 AND active
        LIMIT 1`

	var owner string
	if err := s.pool.QueryRow(ctx, query, idType, idValue).Scan(&owner); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", err
	}
	return owner, nil
}

func (s *postgresStore) LookupAny(ctx context.Context, idValue string) (string, error) {
	const query = `
        SELECT canonical_id FROM identity_links
        WHERE id_value=$1 AND active
        ORDER BY created_at
        LIMIT 1`

	var owner string
	if err := s.pool.QueryRow(ctx, query, idValue).Scan(&owner); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", err
	}
	return owner, nil
}

func (s *postgresStore) ListLinks(ctx context.Context, canonicalID string) ([]domain.IdentityLink, error) {
	const query = `
        SELECT id_type, id_value, canonical_id, source, confidence, verified, active, created_at, updated_at
        FROM identity_links
        WHERE canonical_id=$1 AND active
        ORDER BY id_type, created_at`

	rows, err := s.pool.Query(ctx, query, canonicalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var links []domain.IdentityLink
	for rows.Next() {
		var link domain.IdentityLink
		if err := rows.Scan(
			&link.IDType,
			&link.IDValue,
			&link.CanonicalID,
			&link.Source,
			&link.Confidence,
			&link.Verified,
			&link.Active,
			&link.CreatedAt,
			&link.UpdatedAt,
		); err != nil {
			return nil, err
		}
		links = append(links, link)
	}
	return links, rows.Err()
}

func (s *postgresStore) EmailsWithMultipleOwners(ctx context.Context) (map[string][]string, error) {
	const query = `
        SELECT l.id_value, array_agg(DISTINCT l.canonical_id ORDER BY l.canonical_id)
        FROM identity_links l
        JOIN canonical_identities i ON i.id = l.canonical_id
        WHERE l.id_type=$1 AND l.active AND i.active
        GROUP BY l.id_value
        HAVING COUNT(DISTINCT l.canonical_id) > 1`

	rows, err := s.pool.Query(ctx, query, domain.IdentifierEmail)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	conflicts := make(map[string][]string)
	for rows.Next() {
		var email string
		var owners []string
		if err := rows.Scan(&email, &owners); err != nil {
			return nil, err
		}
		conflicts[email] = owners
	}
	return conflicts, rows.Err()
}

func (s *postgresStore) MoveLinks(ctx context.Context, fromID, toID string) (int, int, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, 0, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	// Retire pairs the survivor already owns before re-pointing the rest,
	// keeping the active-pair uniqueness constraint satisfied.
	const supersede = `
        UPDATE identity_links l SET active=FALSE, updated_at=NOW()
        WHERE l.canonical_id=$2 AND l.active
          AND EXISTS (
              SELECT 1 FROM identity_links t
              WHERE t.canonical_id=$1 AND t.active
                AND t.id_type=l.id_type AND t.id_value=l.id_value)`

	cmd, err := tx.Exec(ctx, supersede, toID, fromID)
	if err != nil {
		return 0, 0, err
	}
	superseded := int(cmd.RowsAffected())

	const repoint = `
        UPDATE identity_links SET canonical_id=$1, updated_at=NOW()
        WHERE canonical_id=$2 AND active`

	cmd, err = tx.Exec(ctx, repoint, toID, fromID)
	if err != nil {
		return 0, 0, err
	}
	moved := int(cmd.RowsAffected())

	if err := tx.Commit(ctx); err != nil {
		return 0, 0, err
	}
	return moved, superseded, nil
}

func (s *postgresStore) Deactivate(ctx context.Context, id, mergedInto string) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	const deactivate = `
        UPDATE canonical_identities SET active=FALSE, merged_into=$1, updated_at=NOW()
        WHERE id=$2`

	cmd, err := tx.Exec(ctx, deactivate, mergedInto, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}

	// Collapse any chain ending at id so merges always point directly at the
	// final survivor.
	const reparent = `
        UPDATE canonical_identities SET merged_into=$1, updated_at=NOW()
        WHERE merged_into=$2 AND id <> $1`

	if _, err := tx.Exec(ctx, reparent, mergedInto, id); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (s *postgresStore) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{LinksByType: make(map[string]int64)}

	const identityCounts = `
        SELECT COUNT(*) FILTER (WHERE active), COUNT(*) FILTER (WHERE NOT active)
        FROM canonical_identities`
	if err := s.pool.QueryRow(ctx, identityCounts).
		Scan(&stats.ActiveIdentities, &stats.MergedIdentities); err != nil {
		return nil, err
	}

	const linkCounts = `
        SELECT id_type, COUNT(*) FROM identity_links WHERE active GROUP BY id_type`
	rows, err := s.pool.Query(ctx, linkCounts)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var idType string
		var count int64
		if err := rows.Scan(&idType, &count); err != nil {
			return nil, err
		}
		stats.LinksByType[idType] = count
		stats.ActiveLinks += count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	const multiSource = `
        SELECT COUNT(*) FROM (
            SELECT canonical_id FROM identity_links WHERE active
            GROUP BY canonical_id HAVING COUNT(DISTINCT id_type) > 1
        ) t`
	if err := s.pool.QueryRow(ctx, multiSource).Scan(&stats.MultiSourceIdentities); err != nil {
		return nil, err
	}

	return stats, nil
}
