package postgres

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ariefcatur/go-storefront-orders/internal/domain"
)

// Store implements domain.Store on Postgres. Order lines and reviews live in
// their own tables keyed by user, so line lookups go through an index instead
// of a scan over every user.
type Store struct{ DB *pgxpool.Pool }

func NewStore(db *pgxpool.Pool) *Store { return &Store{DB: db} }

func (s *Store) Close(context.Context) error {
	s.DB.Close()
	return nil
}

const productCols = `id, title, description, image, price, quantity, rating, created_at`

func scanProduct(row pgx.Row) (*domain.Product, error) {
	var p domain.Product
	if err := row.Scan(&p.ID, &p.Title, &p.Description, &p.Image, &p.Price, &p.Quantity, &p.Rating, &p.CreatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func collectProducts(rows pgx.Rows) ([]domain.Product, error) {
	defer rows.Close()
	var out []domain.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	return err
}

// ---- products ----

func (s *Store) CreateProduct(ctx context.Context, p *domain.Product) error {
	err := s.DB.QueryRow(ctx, `
		INSERT INTO products(id, title, description, image, price, quantity, rating)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING created_at`,
		p.ID, p.Title, p.Description, p.Image, p.Price, p.Quantity, p.Rating,
	).Scan(&p.CreatedAt)
	if isUniqueViolation(err) {
		return domain.ErrDuplicate
	}
	return err
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	p, err := scanProduct(s.DB.QueryRow(ctx, `SELECT `+productCols+` FROM products WHERE id=$1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return p, nil
}

func (s *Store) ListProducts(ctx context.Context, offset, limit int) ([]domain.Product, int64, error) {
	var total int64
	if err := s.DB.QueryRow(ctx, `SELECT COUNT(*) FROM products`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := s.DB.Query(ctx, `SELECT `+productCols+` FROM products
		ORDER BY created_at, id OFFSET $1 LIMIT $2`, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	out, err := collectProducts(rows)
	return out, total, err
}

func (s *Store) SearchProducts(ctx context.Context, title string) ([]domain.Product, error) {
	// escape wildcard LIKE supaya input user dibaca literal
	pattern := "%" + strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(title) + "%"
	rows, err := s.DB.Query(ctx, `SELECT `+productCols+` FROM products
		WHERE title ILIKE $1 ORDER BY created_at, id`, pattern)
	if err != nil {
		return nil, err
	}
	return collectProducts(rows)
}

// DecrementStock is a single conditional UPDATE; concurrent callers serialize
// on the row lock and the WHERE clause re-checks the stock.
func (s *Store) DecrementStock(ctx context.Context, id string, qty int) (int, error) {
	var left int
	err := s.DB.QueryRow(ctx, `
		UPDATE products SET quantity = quantity - $2
		WHERE id=$1 AND quantity >= $2
		RETURNING quantity`, id, qty).Scan(&left)
	if err == nil {
		return left, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, err
	}
	err = s.DB.QueryRow(ctx, `SELECT quantity FROM products WHERE id=$1`, id).Scan(&left)
	if err != nil {
		return 0, notFound(err)
	}
	return left, domain.ErrInsufficientStock
}

func (s *Store) IncrementStock(ctx context.Context, id string, qty int) error {
	ct, err := s.DB.Exec(ctx, `UPDATE products SET quantity = quantity + $2 WHERE id=$1`, id, qty)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Store) SetRating(ctx context.Context, id string, rating float64) error {
	ct, err := s.DB.Exec(ctx, `UPDATE products SET rating=$2 WHERE id=$1`, id, rating)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	ct, err := s.DB.Exec(ctx, `DELETE FROM products WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return domain.ErrNotFound
	}
	return nil
}

// ---- users ----

func (s *Store) EnsureUser(ctx context.Context, u domain.User) (*domain.User, error) {
	var out domain.User
	err := s.DB.QueryRow(ctx, `
		INSERT INTO users(id, name, email, role) VALUES ($1,$2,$3,$4)
		ON CONFLICT (id) DO UPDATE SET
			name  = COALESCE(NULLIF(EXCLUDED.name, ''), users.name),
			email = COALESCE(NULLIF(EXCLUDED.email, ''), users.email),
			role  = COALESCE(NULLIF(EXCLUDED.role, ''), users.role)
		RETURNING id, name, email, role, created_at`,
		u.ID, u.Name, u.Email, u.Role,
	).Scan(&out.ID, &out.Name, &out.Email, &out.Role, &out.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Store) GetUser(ctx context.Context, id string) (*domain.User, error) {
	var u domain.User
	err := s.DB.QueryRow(ctx, `SELECT id, name, email, role, created_at FROM users WHERE id=$1`, id).
		Scan(&u.ID, &u.Name, &u.Email, &u.Role, &u.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	rows, err := s.DB.Query(ctx, `SELECT id FROM reviews WHERE user_id=$1 ORDER BY seq`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var rid string
		if err := rows.Scan(&rid); err != nil {
			return nil, err
		}
		u.ReviewIDs = append(u.ReviewIDs, rid)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := s.DB.QueryRow(ctx,
		`SELECT COALESCE(array_agg(id ORDER BY seq), '{}') FROM queries WHERE user_id=$1`, id,
	).Scan(&u.QueryIDs); err != nil {
		return nil, err
	}
	if u.Orders, err = s.Lines(ctx, id); err != nil {
		return nil, err
	}
	return &u, nil
}

// ---- order lines ----

const lineCols = `id, product_id, quantity, status, product_name, product_price, created_at`

func scanLine(row pgx.Row, l *domain.OrderLine) error {
	var status string
	if err := row.Scan(&l.ID, &l.ProductID, &l.Quantity, &status, &l.ProductName, &l.ProductPrice, &l.CreatedAt); err != nil {
		return err
	}
	l.Status = domain.Status(status)
	return nil
}

func (s *Store) AppendLine(ctx context.Context, userID string, l domain.OrderLine) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO order_lines(id, user_id, product_id, quantity, status, product_name, product_price)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		l.ID, userID, l.ProductID, l.Quantity, string(l.Status), l.ProductName, l.ProductPrice)
	return err
}

func (s *Store) Lines(ctx context.Context, userID string) ([]domain.OrderLine, error) {
	rows, err := s.DB.Query(ctx, `SELECT `+lineCols+` FROM order_lines WHERE user_id=$1 ORDER BY seq`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.OrderLine
	for rows.Next() {
		var l domain.OrderLine
		if err := scanLine(rows, &l); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *Store) RemoveLine(ctx context.Context, userID, lineID string) error {
	ct, err := s.DB.Exec(ctx, `DELETE FROM order_lines WHERE user_id=$1 AND id=$2`, userID, lineID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Store) SetLinesStatus(ctx context.Context, userID string, lineIDs []string, status domain.Status) error {
	if len(lineIDs) == 0 {
		return nil
	}
	_, err := s.DB.Exec(ctx, `UPDATE order_lines SET status=$3 WHERE user_id=$1 AND id = ANY($2)`,
		userID, lineIDs, string(status))
	return err
}

func (s *Store) SetLineStatus(ctx context.Context, lineID string, status domain.Status) (bool, error) {
	ct, err := s.DB.Exec(ctx, `UPDATE order_lines SET status=$2 WHERE id=$1`, lineID, string(status))
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() > 0, nil
}

// AllUserOrders reads users and lines in one repeatable-read snapshot.
func (s *Store) AllUserOrders(ctx context.Context) ([]domain.UserOrders, error) {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `SELECT id, name, email, created_at FROM users ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	var out []domain.UserOrders
	pos := map[string]int{}
	for rows.Next() {
		var u domain.UserOrders
		if err := rows.Scan(&u.UserID, &u.UserName, &u.Email, &u.CreatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		pos[u.UserID] = len(out)
		out = append(out, u)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = tx.Query(ctx, `SELECT user_id, `+lineCols+` FROM order_lines ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			uid    string
			l      domain.OrderLine
			status string
		)
		if err := rows.Scan(&uid, &l.ID, &l.ProductID, &l.Quantity, &status, &l.ProductName, &l.ProductPrice, &l.CreatedAt); err != nil {
			return nil, err
		}
		l.Status = domain.Status(status)
		if i, ok := pos[uid]; ok {
			out[i].Lines = append(out[i].Lines, l)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, tx.Commit(ctx)
}

func (s *Store) RemoveProductLines(ctx context.Context, productID string) (int64, error) {
	ct, err := s.DB.Exec(ctx, `DELETE FROM order_lines WHERE product_id=$1`, productID)
	if err != nil {
		return 0, err
	}
	return ct.RowsAffected(), nil
}

func (s *Store) HasPurchased(ctx context.Context, userID, productID string) (bool, error) {
	var ok bool
	err := s.DB.QueryRow(ctx, `SELECT EXISTS(
		SELECT 1 FROM order_lines WHERE user_id=$1 AND product_id=$2 AND status <> $3)`,
		userID, productID, string(domain.StatusPending)).Scan(&ok)
	return ok, err
}

// ---- reviews ----

const reviewCols = `id, user_id, product_id, rating, review, name, created_at, updated_at`

func scanReview(row pgx.Row) (*domain.Review, error) {
	var r domain.Review
	if err := row.Scan(&r.ID, &r.UserID, &r.ProductID, &r.Rating, &r.Text, &r.UserName, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	return &r, nil
}

func collectReviews(rows pgx.Rows) ([]domain.Review, error) {
	defer rows.Close()
	var out []domain.Review
	for rows.Next() {
		r, err := scanReview(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func (s *Store) FindReview(ctx context.Context, userID, productID string) (*domain.Review, error) {
	r, err := scanReview(s.DB.QueryRow(ctx, `SELECT `+reviewCols+` FROM reviews
		WHERE user_id=$1 AND product_id=$2`, userID, productID))
	if err != nil {
		return nil, notFound(err)
	}
	return r, nil
}

// InsertReview relies on UNIQUE(user_id, product_id); the user's review list
// is derived from that table.
func (s *Store) InsertReview(ctx context.Context, r *domain.Review) error {
	err := s.DB.QueryRow(ctx, `
		INSERT INTO reviews(id, user_id, product_id, rating, review, name)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING created_at, updated_at`,
		r.ID, r.UserID, r.ProductID, r.Rating, r.Text, r.UserName,
	).Scan(&r.CreatedAt, &r.UpdatedAt)
	if isUniqueViolation(err) {
		return domain.ErrDuplicate
	}
	return err
}

func (s *Store) UpdateReview(ctx context.Context, r *domain.Review) error {
	err := s.DB.QueryRow(ctx, `
		UPDATE reviews SET rating=$2, review=$3, name=$4, updated_at=now()
		WHERE id=$1 RETURNING updated_at`,
		r.ID, r.Rating, r.Text, r.UserName,
	).Scan(&r.UpdatedAt)
	return notFound(err)
}

func (s *Store) ProductRatings(ctx context.Context, productID string) ([]int, error) {
	rows, err := s.DB.Query(ctx, `SELECT rating FROM reviews WHERE product_id=$1`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []int
	for rows.Next() {
		var n int
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *Store) ListProductReviews(ctx context.Context, productID string, offset, limit int) ([]domain.Review, error) {
	rows, err := s.DB.Query(ctx, `SELECT `+reviewCols+` FROM reviews WHERE product_id=$1
		ORDER BY created_at DESC, seq DESC OFFSET $2 LIMIT $3`, productID, offset, limit)
	if err != nil {
		return nil, err
	}
	return collectReviews(rows)
}

func (s *Store) ListReviews(ctx context.Context, limit int) ([]domain.Review, error) {
	rows, err := s.DB.Query(ctx, `SELECT `+reviewCols+` FROM reviews
		ORDER BY created_at DESC, seq DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	return collectReviews(rows)
}

func (s *Store) DeleteProductReviews(ctx context.Context, productID string) (int64, error) {
	ct, err := s.DB.Exec(ctx, `DELETE FROM reviews WHERE product_id=$1`, productID)
	if err != nil {
		return 0, err
	}
	return ct.RowsAffected(), nil
}

// ---- queries ----

const queryCols = `id, user_id, name, phone, email, message, created_at, updated_at`

// InsertQuery needs the author row; the user's query list is derived from
// this table.
func (s *Store) InsertQuery(ctx context.Context, q *domain.Query) error {
	err := s.DB.QueryRow(ctx, `
		INSERT INTO queries(id, user_id, name, phone, email, message)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING created_at, updated_at`,
		q.ID, q.UserID, q.Name, q.Phone, q.Email, q.Message,
	).Scan(&q.CreatedAt, &q.UpdatedAt)
	if isForeignKeyViolation(err) {
		return domain.ErrNotFound
	}
	return err
}

func collectQueries(rows pgx.Rows) ([]domain.Query, error) {
	defer rows.Close()
	var out []domain.Query
	for rows.Next() {
		var q domain.Query
		if err := rows.Scan(&q.ID, &q.UserID, &q.Name, &q.Phone, &q.Email, &q.Message,
			&q.CreatedAt, &q.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

func (s *Store) UserQueries(ctx context.Context, userID string) ([]domain.Query, error) {
	rows, err := s.DB.Query(ctx, `SELECT `+queryCols+` FROM queries
		WHERE user_id=$1 ORDER BY seq DESC`, userID)
	if err != nil {
		return nil, err
	}
	return collectQueries(rows)
}

func (s *Store) ListQueries(ctx context.Context, limit int) ([]domain.Query, error) {
	rows, err := s.DB.Query(ctx, `SELECT `+queryCols+` FROM queries
		ORDER BY seq DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	return collectQueries(rows)
}

var _ domain.Store = (*Store)(nil)
