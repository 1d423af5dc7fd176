// Package main seeds the MongoDB catalog with a small set of products so the
// storefront can be exercised locally. Re-running it updates the same
// products by English name.
package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/utafrali/storefront/internal/domain"
	mongorepo "github.com/utafrali/storefront/internal/repository/mongo"
	pkgconfig "github.com/utafrali/storefront/pkg/config"
	"github.com/utafrali/storefront/pkg/database"
	"github.com/utafrali/storefront/pkg/logger"
)

type seedConfig struct {
	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`
	MongoURI      string `env:"MONGO_URI" envDefault:"mongodb://localhost:27017"`
	MongoDatabase string `env:"MONGO_DATABASE" envDefault:"storefront"`
}

// Prices are in halalas.
var products = []domain.Product{
	{Name: domain.LocalizedName{EN: "Oud Perfume", AR: "عطر عود"}, Brand: "Arabian Oud", Price: 24900, CountInStock: 40, Image: "/images/oud.jpg"},
	{Name: domain.LocalizedName{EN: "Rose Musk", AR: "مسك الورد"}, Brand: "Ajmal", Price: 8900, CountInStock: 120, Image: "/images/rose-musk.jpg"},
	{Name: domain.LocalizedName{EN: "Amber Bakhoor", AR: "بخور العنبر"}, Brand: "Abdul Samad Al Qurashi", Price: 15000, CountInStock: 65, Image: "/images/amber-bakhoor.jpg"},
	{Name: domain.LocalizedName{EN: "Sandalwood Oil", AR: "زيت الصندل"}, Brand: "Arabian Oud", Price: 32000, CountInStock: 15, Image: "/images/sandalwood.jpg"},
	{Name: domain.LocalizedName{EN: "White Musk", AR: "المسك الأبيض"}, Brand: "Rasasi", Price: 4500, CountInStock: 200, Image: "/images/white-musk.jpg"},
	{Name: domain.LocalizedName{EN: "Saffron Attar", AR: "عطر الزعفران"}, Brand: "Ajmal", Price: 18500, CountInStock: 30, Image: "/images/saffron.jpg"},
}

func main() {
	cfg := &seedConfig{}
	if err := pkgconfig.LoadWithDotenv(cfg, ".env"); err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}
	log := logger.New("storefront-seed", cfg.LogLevel)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	db, err := database.NewMongoDatabase(ctx, database.MongoConfig{
		URI:            cfg.MongoURI,
		Database:       cfg.MongoDatabase,
		ConnectTimeout: 10 * time.Second,
	})
	if err != nil {
		log.Error("failed to connect to mongo", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer func() { _ = db.Client().Disconnect(context.Background()) }()

	repo := mongorepo.NewProductRepository(db)

	var created, updated int
	for i := range products {
		p := &products[i]
		isNew, err := repo.UpsertByName(ctx, p)
		if err != nil {
			log.Warn("failed to seed product",
				slog.String("name", p.Name.EN),
				slog.String("error", err.Error()),
			)
			continue
		}
		if isNew {
			created++
		} else {
			updated++
		}
	}

	log.Info("catalog seeded",
		slog.String("database", cfg.MongoDatabase),
		slog.Int("created", created),
		slog.Int("updated", updated),
	)
}
