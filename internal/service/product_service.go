package service

import (
	"strings"
	"time"

	"github.com/veritag-api/internal/models"
	"github.com/veritag-api/internal/repository"
)

// ProductService 商品服务
type ProductService struct {
	productRepo repository.ProductRepository
}

// NewProductService 创建商品服务
func NewProductService(productRepo repository.ProductRepository) *ProductService {
	return &ProductService{productRepo: productRepo}
}

// CreateProductInput 创建商品输入
type CreateProductInput struct {
	Name        string
	Category    string
	ImageURL    string
	Description string
}

// CreateProduct 创建商品
func (s *ProductService) CreateProduct(input CreateProductInput) (*models.Product, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, ErrProductInvalid
	}
	now := time.Now()
	product := &models.Product{
		Name:        name,
		Category:    strings.TrimSpace(input.Category),
		ImageURL:    strings.TrimSpace(input.ImageURL),
		Description: input.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.productRepo.Create(product); err != nil {
		return nil, ErrProductCreateFailed
	}
	return product, nil
}

// GetProduct 获取商品
func (s *ProductService) GetProduct(id uint) (*models.Product, error) {
	if id == 0 {
		return nil, ErrProductInvalid
	}
	product, err := s.productRepo.GetByID(id)
	if err != nil {
		return nil, ErrProductFetchFailed
	}
	if product == nil {
		return nil, ErrProductNotFound
	}
	return product, nil
}

// ListProducts 获取商品列表
func (s *ProductService) ListProducts(filter repository.ProductListFilter) ([]models.Product, int64, error) {
	items, total, err := s.productRepo.List(filter)
	if err != nil {
		return nil, 0, ErrProductFetchFailed
	}
	return items, total, nil
}

// UpdateProductInput 更新商品输入，nil 字段保持不变
type UpdateProductInput struct {
	Name        *string
	Category    *string
	ImageURL    *string
	Description *string
}

// UpdateProduct 更新商品
func (s *ProductService) UpdateProduct(id uint, input UpdateProductInput) (*models.Product, error) {
	product, err := s.GetProduct(id)
	if err != nil {
		return nil, err
	}
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, ErrProductInvalid
		}
		product.Name = name
	}
	if input.Category != nil {
		product.Category = strings.TrimSpace(*input.Category)
	}
	if input.ImageURL != nil {
		product.ImageURL = strings.TrimSpace(*input.ImageURL)
	}
	if input.Description != nil {
		product.Description = *input.Description
	}
	product.UpdatedAt = time.Now()
	if err := s.productRepo.Update(product); err != nil {
		return nil, ErrProductUpdateFailed
	}
	return product, nil
}

// DeleteProduct 软删除商品
func (s *ProductService) DeleteProduct(id uint) error {
	if _, err := s.GetProduct(id); err != nil {
		return err
	}
	if err := s.productRepo.Delete(id); err != nil {
		return ErrProductDeleteFailed
	}
	return nil
}
