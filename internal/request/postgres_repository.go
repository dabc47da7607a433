package request

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository is a PostgreSQL implementation of Repository.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL request repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const requestColumns = `
	id, status, customer_code, customer_roles,
	company_name, address, city, state, phone, email, tax_id,
	contact_name, contact_position, contact_phone, contact_email,
	notes, note_reject,
	created_by_username, created_from_ip,
	created_at, updated_at, active
`

// Get retrieves an active request by ID, with attachments and history.
func (r *PostgresRepository) Get(ctx context.Context, id int64) (*Request, error) {
	query := `
		SELECT ` + requestColumns + `
		FROM requests
		WHERE id = $1 AND active = TRUE
	`

	req, err := r.scanRequest(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, err
	}

	if err := r.loadAttachments(ctx, req); err != nil {
		return nil, err
	}
	if err := r.loadHistory(ctx, req); err != nil {
		return nil, err
	}

	return req, nil
}

// scanRequest scans a request row.
func (r *PostgresRepository) scanRequest(row pgx.Row) (*Request, error) {
	var req Request

	err := row.Scan(
		&req.ID,
		&req.Status,
		&req.CustomerCode,
		&req.CustomerRoles,
		&req.CompanyName,
		&req.Address,
		&req.City,
		&req.State,
		&req.Phone,
		&req.Email,
		&req.TaxID,
		&req.ContactName,
		&req.ContactPosition,
		&req.ContactPhone,
		&req.ContactEmail,
		&req.Notes,
		&req.NoteReject,
		&req.CreatedByUsername,
		&req.CreatedFromIP,
		&req.CreatedAt,
		&req.UpdatedAt,
		&req.Active,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRequestNotFound
		}
		return nil, err
	}

	return &req, nil
}

// List retrieves a page of active requests matching the filter, newest first.
func (r *PostgresRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}

	where := []string{"active = TRUE"}
	args := []interface{}{}

	addArg := func(clause string, value interface{}) {
		args = append(args, value)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}

	if filter.Status != "" {
		addArg("status = $%d", filter.Status)
	}
	if filter.CustomerCode != "" {
		addArg("customer_code = $%d", filter.CustomerCode)
	}
	if filter.ContactEmail != "" {
		addArg("contact_email = $%d", filter.ContactEmail)
	}
	if filter.CustomerRole != "" {
		addArg("$%d = ANY(customer_roles)", filter.CustomerRole)
	}

	whereClause := strings.Join(where, " AND ")

	var total int
	countQuery := `SELECT COUNT(*) FROM requests WHERE ` + whereClause
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, err
	}

	query := `
		SELECT ` + requestColumns + `
		FROM requests
		WHERE ` + whereClause + `
		ORDER BY created_at DESC, id DESC
		LIMIT $` + fmt.Sprint(len(args)+1) + ` OFFSET $` + fmt.Sprint(len(args)+2)
	args = append(args, limit, (page-1)*limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var requests []*Request
	for rows.Next() {
		req, err := r.scanRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, req)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, req := range requests {
		if err := r.loadAttachments(ctx, req); err != nil {
			return nil, err
		}
		if err := r.loadHistory(ctx, req); err != nil {
			return nil, err
		}
	}

	totalPages := (total + limit - 1) / limit
	if totalPages == 0 {
		totalPages = 1
	}

	return &ListResult{
		Items:      requests,
		TotalItems: total,
		TotalPages: totalPages,
		Page:       page,
	}, nil
}

// Create persists a new request and assigns its ID.
func (r *PostgresRepository) Create(ctx context.Context, req *Request) error {
	query := `
		INSERT INTO requests (
			status, customer_code, customer_roles,
			company_name, address, city, state, phone, email, tax_id,
			contact_name, contact_position, contact_phone, contact_email,
			notes, note_reject,
			created_by_username, created_from_ip,
			created_at, updated_at, active
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
		RETURNING id
	`

	return r.pool.QueryRow(ctx, query,
		req.Status,
		req.CustomerCode,
		req.CustomerRoles,
		req.CompanyName,
		req.Address,
		req.City,
		req.State,
		req.Phone,
		req.Email,
		req.TaxID,
		req.ContactName,
		req.ContactPosition,
		req.ContactPhone,
		req.ContactEmail,
		req.Notes,
		req.NoteReject,
		req.CreatedByUsername,
		req.CreatedFromIP,
		req.CreatedAt,
		req.UpdatedAt,
		req.Active,
	).Scan(&req.ID)
}

// Update persists changes to an existing request's scalar fields.
func (r *PostgresRepository) Update(ctx context.Context, req *Request) error {
	query := `
		UPDATE requests SET
			status = $2,
			customer_code = $3,
			customer_roles = $4,
			company_name = $5,
			address = $6,
			city = $7,
			state = $8,
			phone = $9,
			email = $10,
			tax_id = $11,
			contact_name = $12,
			contact_position = $13,
			contact_phone = $14,
			contact_email = $15,
			notes = $16,
			note_reject = $17,
			updated_at = $18
		WHERE id = $1 AND active = TRUE
	`

	result, err := r.pool.Exec(ctx, query,
		req.ID,
		req.Status,
		req.CustomerCode,
		req.CustomerRoles,
		req.CompanyName,
		req.Address,
		req.City,
		req.State,
		req.Phone,
		req.Email,
		req.TaxID,
		req.ContactName,
		req.ContactPosition,
		req.ContactPhone,
		req.ContactEmail,
		req.Notes,
		req.NoteReject,
		req.UpdatedAt,
	)
	if err != nil {
		return err
	}

	if result.RowsAffected() == 0 {
		return ErrRequestNotFound
	}

	return nil
}

// Upsert creates or replaces a request by its externally assigned ID.
func (r *PostgresRepository) Upsert(ctx context.Context, req *Request) error {
	query := `
		INSERT INTO requests (
			id, status, customer_code, customer_roles,
			company_name, address, city, state, phone, email, tax_id,
			contact_name, contact_position, contact_phone, contact_email,
			notes, note_reject,
			created_by_username, created_from_ip,
			created_at, updated_at, active
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			customer_code = EXCLUDED.customer_code,
			customer_roles = EXCLUDED.customer_roles,
			company_name = EXCLUDED.company_name,
			address = EXCLUDED.address,
			city = EXCLUDED.city,
			state = EXCLUDED.state,
			phone = EXCLUDED.phone,
			email = EXCLUDED.email,
			tax_id = EXCLUDED.tax_id,
			contact_name = EXCLUDED.contact_name,
			contact_position = EXCLUDED.contact_position,
			contact_phone = EXCLUDED.contact_phone,
			contact_email = EXCLUDED.contact_email,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.pool.Exec(ctx, query,
		req.ID,
		req.Status,
		req.CustomerCode,
		req.CustomerRoles,
		req.CompanyName,
		req.Address,
		req.City,
		req.State,
		req.Phone,
		req.Email,
		req.TaxID,
		req.ContactName,
		req.ContactPosition,
		req.ContactPhone,
		req.ContactEmail,
		req.Notes,
		req.NoteReject,
		req.CreatedByUsername,
		req.CreatedFromIP,
		req.CreatedAt,
		req.UpdatedAt,
		req.Active,
	)
	return err
}

// SoftDelete marks a request inactive. History rows are kept.
func (r *PostgresRepository) SoftDelete(ctx context.Context, id int64) error {
	query := `UPDATE requests SET active = FALSE, updated_at = NOW() WHERE id = $1 AND active = TRUE`

	result, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return err
	}

	if result.RowsAffected() == 0 {
		return ErrRequestNotFound
	}

	return nil
}

// AddAttachment persists an attachment row and assigns its ID.
func (r *PostgresRepository) AddAttachment(ctx context.Context, att *Attachment) error {
	query := `
		INSERT INTO request_attachments (request_id, object_key, file_url, original_filename, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`

	return r.pool.QueryRow(ctx, query,
		att.RequestID,
		att.ObjectKey,
		att.FileURL,
		att.OriginalFilename,
		att.CreatedAt,
	).Scan(&att.ID)
}

// RemoveAttachments deletes the given attachment rows and returns their
// object keys so the caller can clean up object storage.
func (r *PostgresRepository) RemoveAttachments(ctx context.Context, requestID int64, ids []int64) ([]string, error) {
	query := `
		DELETE FROM request_attachments
		WHERE request_id = $1 AND id = ANY($2)
		RETURNING object_key
	`

	rows, err := r.pool.Query(ctx, query, requestID, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}

	return keys, rows.Err()
}

// AppendHistory appends an audit record.
func (r *PostgresRepository) AppendHistory(ctx context.Context, entry *HistoryEntry) error {
	query := `
		INSERT INTO request_history (request_id, action, changed_at, changed_by_username, changed_from_ip)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`

	return r.pool.QueryRow(ctx, query,
		entry.RequestID,
		entry.Action,
		entry.ChangedAt,
		entry.ChangedByUsername,
		entry.ChangedFromIP,
	).Scan(&entry.ID)
}

// Stats counts active requests by status.
func (r *PostgresRepository) Stats(ctx context.Context) (*Stats, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE status = 'Pending'),
			COUNT(*) FILTER (WHERE status = 'Completed'),
			COUNT(*) FILTER (WHERE status = 'Rejected'),
			COUNT(*)
		FROM requests
		WHERE active = TRUE
	`

	var stats Stats
	err := r.pool.QueryRow(ctx, query).Scan(&stats.Pending, &stats.Completed, &stats.Rejected, &stats.Total)
	if err != nil {
		return nil, err
	}

	return &stats, nil
}

// loadAttachments populates req.Attachments.
func (r *PostgresRepository) loadAttachments(ctx context.Context, req *Request) error {
	query := `
		SELECT id, request_id, object_key, file_url, original_filename, created_at
		FROM request_attachments
		WHERE request_id = $1
		ORDER BY id
	`

	rows, err := r.pool.Query(ctx, query, req.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var att Attachment
		err := rows.Scan(&att.ID, &att.RequestID, &att.ObjectKey, &att.FileURL, &att.OriginalFilename, &att.CreatedAt)
		if err != nil {
			return err
		}
		req.Attachments = append(req.Attachments, att)
	}

	return rows.Err()
}

// loadHistory populates req.History in chronological order.
func (r *PostgresRepository) loadHistory(ctx context.Context, req *Request) error {
	query := `
		SELECT id, request_id, action, changed_at, changed_by_username, changed_from_ip
		FROM request_history
		WHERE request_id = $1
		ORDER BY changed_at, id
	`

	rows, err := r.pool.Query(ctx, query, req.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var entry HistoryEntry
		err := rows.Scan(&entry.ID, &entry.RequestID, &entry.Action, &entry.ChangedAt, &entry.ChangedByUsername, &entry.ChangedFromIP)
		if err != nil {
			return err
		}
		req.History = append(req.History, entry)
	}

	return rows.Err()
}

// Ensure PostgresRepository implements Repository interface.
var _ Repository = (*PostgresRepository)(nil)
