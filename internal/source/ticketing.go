package source

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// TicketingCustomer is one customer record from the support-ticketing system.
type TicketingCustomer struct {
	ID    string
	Email string
	Name  string
}

// TicketingSource exposes the support-ticketing system's customer records
// for graph seeding.
type TicketingSource interface {
	// Customers pages through ticketing customer records in a stable order.
	Customers(ctx context.Context, limit, offset int) ([]TicketingCustomer, error)
}

type postgresTicketing struct {
	pool *pgxpool.Pool
}

// NewPostgresTicketing reads customer records from the ticketing schema.
func NewPostgresTicketing(pool *pgxpool.Pool) TicketingSource {
	return &postgresTicketing{pool: pool}
}

func (s *postgresTicketing) Customers(ctx context.Context, limit, offset int) ([]TicketingCustomer, error) {
	const query = `
        SELECT id::text, COALESCE(email, ''), COALESCE(name, '')
        FROM customers
        ORDER BY id::text
        LIMIT $1 OFFSET $2`

	rows, err := s.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var customers []TicketingCustomer
	for rows.Next() {
		var c TicketingCustomer
		if err := rows.Scan(&c.ID, &c.Email, &c.Name); err != nil {
			return nil, err
		}
		customers = append(customers, c)
	}
	return customers, rows.Err()
}
