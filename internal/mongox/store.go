// Package mongox stores the catalog as documents: order lines are embedded
// in their owning user, reviews live in their own collection.
package mongox

import (
	"context"
	"errors"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ariefcatur/go-storefront-orders/internal/domain"
)

type Store struct {
	db       *mongo.Database
	products *mongo.Collection
	users    *mongo.Collection
	reviews  *mongo.Collection
	queries  *mongo.Collection
}

func NewStore(db *mongo.Database) *Store {
	return &Store{
		db:       db,
		products: db.Collection(collProducts),
		users:    db.Collection(collUsers),
		reviews:  db.Collection(collReviews),
		queries:  db.Collection(collQueries),
	}
}

func (s *Store) Close(ctx context.Context) error {
	return s.db.Client().Disconnect(ctx)
}

func notFound(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.ErrNotFound
	}
	return err
}

var byCreation = bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}
var newestFirst = bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}

// ---- products ----

func (s *Store) CreateProduct(ctx context.Context, p *domain.Product) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	_, err := s.products.InsertOne(ctx, p)
	if mongo.IsDuplicateKeyError(err) {
		return domain.ErrDuplicate
	}
	return err
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	var p domain.Product
	if err := s.products.FindOne(ctx, bson.M{"_id": id}).Decode(&p); err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (s *Store) ListProducts(ctx context.Context, offset, limit int) ([]domain.Product, int64, error) {
	total, err := s.products.CountDocuments(ctx, bson.M{})
	if err != nil {
		return nil, 0, err
	}
	opts := options.Find().SetSort(byCreation).SetSkip(int64(offset)).SetLimit(int64(limit))
	cur, err := s.products.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, 0, err
	}
	var out []domain.Product
	if err := cur.All(ctx, &out); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (s *Store) SearchProducts(ctx context.Context, title string) ([]domain.Product, error) {
	filter := bson.M{"title": primitive.Regex{Pattern: regexp.QuoteMeta(title), Options: "i"}}
	cur, err := s.products.Find(ctx, filter, options.Find().SetSort(byCreation))
	if err != nil {
		return nil, err
	}
	var out []domain.Product
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DecrementStock matches only when enough stock is left, so the $inc can
// never take quantity below zero.
func (s *Store) DecrementStock(ctx context.Context, id string, qty int) (int, error) {
	var p domain.Product
	err := s.products.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "quantity": bson.M{"$gte": qty}},
		bson.M{"$inc": bson.M{"quantity": -qty}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&p)
	if err == nil {
		return p.Quantity, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return 0, err
	}
	cur, err := s.GetProduct(ctx, id)
	if err != nil {
		return 0, err
	}
	return cur.Quantity, domain.ErrInsufficientStock
}

func (s *Store) IncrementStock(ctx context.Context, id string, qty int) error {
	res, err := s.products.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$inc": bson.M{"quantity": qty}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Store) SetRating(ctx context.Context, id string, rating float64) error {
	res, err := s.products.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"rating": rating}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	res, err := s.products.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ---- users ----

func (s *Store) EnsureUser(ctx context.Context, u domain.User) (*domain.User, error) {
	set := bson.M{}
	if u.Name != "" {
		set["name"] = u.Name
	}
	if u.Email != "" {
		set["email"] = u.Email
	}
	if u.Role != "" {
		set["role"] = u.Role
	}
	update := bson.M{"$setOnInsert": bson.M{
		"created_at": time.Now().UTC(),
		"reviews":    bson.A{},
		"queries":    bson.A{},
		"orders":     bson.A{},
	}}
	if len(set) > 0 {
		update["$set"] = set
	}
	var out domain.User
	err := s.users.FindOneAndUpdate(ctx, bson.M{"_id": u.ID}, update,
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Store) GetUser(ctx context.Context, id string) (*domain.User, error) {
	var u domain.User
	if err := s.users.FindOne(ctx, bson.M{"_id": id}).Decode(&u); err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

// ---- order lines ----

func (s *Store) AppendLine(ctx context.Context, userID string, line domain.OrderLine) error {
	if line.CreatedAt.IsZero() {
		line.CreatedAt = time.Now().UTC()
	}
	res, err := s.users.UpdateOne(ctx, bson.M{"_id": userID}, bson.M{"$push": bson.M{"orders": line}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Store) Lines(ctx context.Context, userID string) ([]domain.OrderLine, error) {
	u, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return u.Orders, nil
}

func (s *Store) RemoveLine(ctx context.Context, userID, lineID string) error {
	res, err := s.users.UpdateOne(ctx,
		bson.M{"_id": userID, "orders.id": lineID},
		bson.M{"$pull": bson.M{"orders": bson.M{"id": lineID}}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Store) SetLinesStatus(ctx context.Context, userID string, lineIDs []string, status domain.Status) error {
	if len(lineIDs) == 0 {
		return nil
	}
	opts := options.Update().SetArrayFilters(options.ArrayFilters{
		Filters: []interface{}{bson.M{"l.id": bson.M{"$in": lineIDs}}},
	})
	res, err := s.users.UpdateOne(ctx, bson.M{"_id": userID},
		bson.M{"$set": bson.M{"orders.$[l].status": status}}, opts)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// SetLineStatus finds the owner through the orders.id index and rewrites the
// matching embedded line.
func (s *Store) SetLineStatus(ctx context.Context, lineID string, status domain.Status) (bool, error) {
	opts := options.Update().SetArrayFilters(options.ArrayFilters{
		Filters: []interface{}{bson.M{"l.id": lineID}},
	})
	res, err := s.users.UpdateMany(ctx, bson.M{"orders.id": lineID},
		bson.M{"$set": bson.M{"orders.$[l].status": status}}, opts)
	if err != nil {
		return false, err
	}
	return res.MatchedCount > 0, nil
}

func (s *Store) AllUserOrders(ctx context.Context) ([]domain.UserOrders, error) {
	cur, err := s.users.Find(ctx, bson.M{}, options.Find().SetSort(byCreation))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []domain.UserOrders
	for cur.Next(ctx) {
		var u domain.User
		if err := cur.Decode(&u); err != nil {
			return nil, err
		}
		out = append(out, domain.UserOrders{
			UserID: u.ID, UserName: u.Name, Email: u.Email, CreatedAt: u.CreatedAt, Lines: u.Orders,
		})
	}
	return out, cur.Err()
}

func (s *Store) RemoveProductLines(ctx context.Context, productID string) (int64, error) {
	cur, err := s.users.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"orders.product_id": productID}}},
		{{Key: "$unwind", Value: "$orders"}},
		{{Key: "$match", Value: bson.M{"orders.product_id": productID}}},
		{{Key: "$count", Value: "n"}},
	})
	if err != nil {
		return 0, err
	}
	var counted []struct {
		N int64 `bson:"n"`
	}
	if err := cur.All(ctx, &counted); err != nil {
		return 0, err
	}
	if len(counted) == 0 {
		return 0, nil
	}
	_, err = s.users.UpdateMany(ctx,
		bson.M{"orders.product_id": productID},
		bson.M{"$pull": bson.M{"orders": bson.M{"product_id": productID}}})
	if err != nil {
		return 0, err
	}
	return counted[0].N, nil
}

func (s *Store) HasPurchased(ctx context.Context, userID, productID string) (bool, error) {
	n, err := s.users.CountDocuments(ctx, bson.M{
		"_id": userID,
		"orders": bson.M{"$elemMatch": bson.M{
			"product_id": productID,
			"status":     bson.M{"$ne": domain.StatusPending},
		}},
	})
	return n > 0, err
}

// ---- reviews ----

func (s *Store) FindReview(ctx context.Context, userID, productID string) (*domain.Review, error) {
	var r domain.Review
	err := s.reviews.FindOne(ctx, bson.M{"user_id": userID, "product_id": productID}).Decode(&r)
	if err != nil {
		return nil, notFound(err)
	}
	return &r, nil
}

func (s *Store) InsertReview(ctx context.Context, r *domain.Review) error {
	now := time.Now().UTC()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
	if _, err := s.reviews.InsertOne(ctx, r); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrDuplicate
		}
		return err
	}
	_, err := s.users.UpdateOne(ctx, bson.M{"_id": r.UserID}, bson.M{"$addToSet": bson.M{"reviews": r.ID}})
	return err
}

func (s *Store) UpdateReview(ctx context.Context, r *domain.Review) error {
	r.UpdatedAt = time.Now().UTC()
	res, err := s.reviews.UpdateOne(ctx, bson.M{"_id": r.ID}, bson.M{"$set": bson.M{
		"rating":     r.Rating,
		"review":     r.Text,
		"name":       r.UserName,
		"updated_at": r.UpdatedAt,
	}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Store) ProductRatings(ctx context.Context, productID string) ([]int, error) {
	cur, err := s.reviews.Find(ctx, bson.M{"product_id": productID},
		options.Find().SetProjection(bson.M{"rating": 1}))
	if err != nil {
		return nil, err
	}
	var rows []struct {
		Rating int `bson:"rating"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, err
	}
	out := make([]int, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Rating)
	}
	return out, nil
}

func (s *Store) findReviews(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]domain.Review, error) {
	cur, err := s.reviews.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var out []domain.Review
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) ListProductReviews(ctx context.Context, productID string, offset, limit int) ([]domain.Review, error) {
	return s.findReviews(ctx, bson.M{"product_id": productID},
		options.Find().SetSort(newestFirst).SetSkip(int64(offset)).SetLimit(int64(limit)))
}

func (s *Store) ListReviews(ctx context.Context, limit int) ([]domain.Review, error) {
	return s.findReviews(ctx, bson.M{}, options.Find().SetSort(newestFirst).SetLimit(int64(limit)))
}

func (s *Store) DeleteProductReviews(ctx context.Context, productID string) (int64, error) {
	ids, err := s.reviews.Distinct(ctx, "_id", bson.M{"product_id": productID})
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := s.reviews.DeleteMany(ctx, bson.M{"product_id": productID})
	if err != nil {
		return 0, err
	}
	if _, err := s.users.UpdateMany(ctx,
		bson.M{"reviews": bson.M{"$in": ids}},
		bson.M{"$pull": bson.M{"reviews": bson.M{"$in": ids}}}); err != nil {
		return res.DeletedCount, err
	}
	return res.DeletedCount, nil
}

// ---- queries ----

// InsertQuery links the id into the author first so a query never exists
// without its owner.
func (s *Store) InsertQuery(ctx context.Context, q *domain.Query) error {
	now := time.Now().UTC()
	if q.CreatedAt.IsZero() {
		q.CreatedAt = now
	}
	q.UpdatedAt = now
	res, err := s.users.UpdateOne(ctx, bson.M{"_id": q.UserID}, bson.M{"$push": bson.M{"queries": q.ID}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	if _, err := s.queries.InsertOne(ctx, q); err != nil {
		_, _ = s.users.UpdateOne(ctx, bson.M{"_id": q.UserID}, bson.M{"$pull": bson.M{"queries": q.ID}})
		return err
	}
	return nil
}

func (s *Store) findQueries(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]domain.Query, error) {
	cur, err := s.queries.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var out []domain.Query
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) UserQueries(ctx context.Context, userID string) ([]domain.Query, error) {
	return s.findQueries(ctx, bson.M{"user_id": userID}, options.Find().SetSort(newestFirst))
}

func (s *Store) ListQueries(ctx context.Context, limit int) ([]domain.Query, error) {
	return s.findQueries(ctx, bson.M{}, options.Find().SetSort(newestFirst).SetLimit(int64(limit)))
}

var _ domain.Store = (*Store)(nil)
