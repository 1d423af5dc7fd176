package mongo

import (
	"context"
	"errors"
	"fmt"
	"math"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/pkg/database"
	apperrors "github.com/utafrali/storefront/pkg/errors"
)

const productsCollection = "products"

// productDocument is the catalog schema. Price is a decimal amount in major
// currency units.
type productDocument struct {
	ID           primitive.ObjectID   `bson:"_id"`
	Name         domain.LocalizedName `bson:"name"`
	Brand        string               `bson:"brand"`
	CountInStock int                  `bson:"countInStock"`
	Price        float64              `bson:"price"`
	Image        string               `bson:"image"`
}

func (d *productDocument) toDomain() *domain.Product {
	return &domain.Product{
		ID:           d.ID.Hex(),
		Name:         d.Name,
		Brand:        d.Brand,
		Price:        int64(math.Round(d.Price * 100)),
		Image:        d.Image,
		CountInStock: d.CountInStock,
	}
}

// ProductRepository implements repository.ProductRepository over the MongoDB
// catalog. The storefront only reads it; UpsertByName exists for seeding.
type ProductRepository struct {
	collection *mongo.Collection
}

// NewProductRepository creates a catalog reader on db's products collection.
func NewProductRepository(db *mongo.Database) *ProductRepository {
	return &ProductRepository{collection: db.Collection(productsCollection)}
}

// NewProductRepositoryWithCollection uses coll directly.
func NewProductRepositoryWithCollection(coll *mongo.Collection) *ProductRepository {
	return &ProductRepository{collection: coll}
}

// GetByID returns the product with the given hex object id.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (_ *domain.Product, err error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, apperrors.InvalidInput(fmt.Sprintf("invalid product id %q", id))
	}

	ctx, end := database.TraceOp(ctx, "mongodb", "GetProduct")
	defer func() {
		if errors.Is(err, apperrors.ErrNotFound) {
			end(nil)
			return
		}
		end(err)
	}()

	var doc productDocument
	if err := r.collection.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperrors.NotFound("product", id)
		}
		return nil, fmt.Errorf("find product: %w", err)
	}

	return doc.toDomain(), nil
}

// UpsertByName writes p keyed by its English name and reports whether a new
// document was inserted. p.Price is in minor units.
func (r *ProductRepository) UpsertByName(ctx context.Context, p *domain.Product) (created bool, err error) {
	if p.Name.EN == "" {
		return false, apperrors.InvalidInput("product english name is required")
	}

	ctx, end := database.TraceOp(ctx, "mongodb", "UpsertProduct")
	defer func() { end(err) }()

	update := bson.M{"$set": bson.M{
		"name":         p.Name,
		"brand":        p.Brand,
		"countInStock": p.CountInStock,
		"price":        float64(p.Price) / 100,
		"image":        p.Image,
	}}
	res, err := r.collection.UpdateOne(ctx, bson.M{"name.en": p.Name.EN}, update, options.Update().SetUpsert(true))
	if err != nil {
		return false, fmt.Errorf("upsert product: %w", err)
	}
	return res.UpsertedCount > 0, nil
}
