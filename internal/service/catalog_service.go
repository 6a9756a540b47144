package service

import (
	"context"
	"regexp"
	"time"

	"github.com/alenorgue/E-Comerce-API/internal/apperrors"
	"github.com/alenorgue/E-Comerce-API/internal/models"
	"github.com/alenorgue/E-Comerce-API/internal/store"
	"github.com/alenorgue/E-Comerce-API/internal/util"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var imageURLPattern = regexp.MustCompile(`(?i)^https?://.*\.(png|jpg|jpeg|gif|webp)$`)

const productCacheTTL = 5 * time.Minute

// productStore is the persistence surface the catalog service needs.
type productStore interface {
	CreateProduct(ctx context.Context, product *models.Product) error
	GetProductByID(ctx context.Context, id int64) (*models.Product, error)
	GetProducts(ctx context.Context) ([]models.Product, error)
	UpdateProduct(ctx context.Context, product *models.Product) error
	DeleteProduct(ctx context.Context, id int64) error
}

// productCache is the Redis surface for catalog reads. Cache faults are soft:
// the database remains the source of truth.
type productCache interface {
	CacheProduct(ctx context.Context, product *models.Product, ttl time.Duration) error
	GetCachedProduct(ctx context.Context, productID int64) (*models.Product, error)
	InvalidateProduct(ctx context.Context, productID int64) error
}

// CatalogService handles product CRUD with a read-through cache.
type CatalogService struct {
	store  productStore
	cache  productCache
	logger *zap.Logger
}

// NewCatalogService creates a new catalog service
func NewCatalogService(store productStore, cache productCache) *CatalogService {
	return &CatalogService{
		store:  store,
		cache:  cache,
		logger: util.GetLogger(),
	}
}

// ProductRequest carries a product create or update payload.
type ProductRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description" binding:"required"`
	Price       *int64 `json:"price" binding:"required"`
	Category    string `json:"category" binding:"required"`
	Stock       *int   `json:"stock" binding:"required"`
	ImageURL    string `json:"image_url" binding:"required"`
}

func (r *ProductRequest) validate() error {
	if len(r.Name) < 2 || len(r.Name) > 100 {
		return apperrors.Validation("name must be between 2 and 100 characters")
	}
	if len(r.Description) < 10 || len(r.Description) > 500 {
		return apperrors.Validation("description must be between 10 and 500 characters")
	}
	if *r.Price < 0 {
		return apperrors.Validation("price must not be negative")
	}
	if !models.ValidCategory(r.Category) {
		return apperrors.Validation("category must be one of electronics, clothing, home, books, toys")
	}
	if *r.Stock < 0 {
		return apperrors.Validation("stock must not be negative")
	}
	if !imageURLPattern.MatchString(r.ImageURL) {
		return apperrors.Validation("image_url must be an http(s) image URL")
	}
	return nil
}

// CreateProduct validates and persists a new catalog entry.
func (s *CatalogService) CreateProduct(ctx context.Context, req *ProductRequest) (*models.Product, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	product := &models.Product{
		Name:        req.Name,
		Description: req.Description,
		Price:       *req.Price,
		Category:    req.Category,
		Stock:       *req.Stock,
		ImageURL:    req.ImageURL,
	}
	if err := s.store.CreateProduct(ctx, product); err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindInternal, "failed to create product")
	}

	s.logger.Info("Product created", zap.Int64("product_id", product.ID))
	return product, nil
}

// GetProduct returns one product, served from cache when possible.
func (s *CatalogService) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	if cached, err := s.cache.GetCachedProduct(ctx, id); err != nil {
		s.logger.Warn("Product cache read failed", zap.Int64("product_id", id), zap.Error(err))
	} else if cached != nil {
		return cached, nil
	}

	product, err := s.store.GetProductByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperrors.NotFound("product not found")
		}
		return nil, apperrors.Wrap(err, apperrors.KindInternal, "failed to fetch product")
	}

	if err := s.cache.CacheProduct(ctx, product, productCacheTTL); err != nil {
		s.logger.Warn("Product cache write failed", zap.Int64("product_id", id), zap.Error(err))
	}
	return product, nil
}

// ListProducts returns the whole catalog.
func (s *CatalogService) ListProducts(ctx context.Context) ([]models.Product, error) {
	products, err := s.store.GetProducts(ctx)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindInternal, "failed to list products")
	}
	return products, nil
}

// UpdateProduct validates and applies a full product update, then drops the
// cached copy.
func (s *CatalogService) UpdateProduct(ctx context.Context, id int64, req *ProductRequest) (*models.Product, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	product := &models.Product{
		ID:          id,
		Name:        req.Name,
		Description: req.Description,
		Price:       *req.Price,
		Category:    req.Category,
		Stock:       *req.Stock,
		ImageURL:    req.ImageURL,
	}
	if err := s.store.UpdateProduct(ctx, product); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperrors.NotFound("product not found")
		}
		return nil, apperrors.Wrap(err, apperrors.KindInternal, "failed to update product")
	}

	if err := s.cache.InvalidateProduct(ctx, id); err != nil {
		s.logger.Warn("Product cache invalidation failed", zap.Int64("product_id", id), zap.Error(err))
	}
	return product, nil
}

// DeleteProduct removes a catalog entry and its cached copy.
func (s *CatalogService) DeleteProduct(ctx context.Context, id int64) error {
	if err := s.store.DeleteProduct(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperrors.NotFound("product not found")
		}
		return apperrors.Wrap(err, apperrors.KindInternal, "failed to delete product")
	}

	if err := s.cache.InvalidateProduct(ctx, id); err != nil {
		s.logger.Warn("Product cache invalidation failed", zap.Int64("product_id", id), zap.Error(err))
	}
	return nil
}
