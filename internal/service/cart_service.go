package service

import (
	"context"
	"errors"
	"time"

	"storefront-service/internal/models"
	"storefront-service/internal/store"
	"storefront-service/internal/util"

	"go.uber.org/zap"
)

// CartStore is the server-persisted cart surface of the Data Store
type CartStore interface {
	UpsertCartItem(ctx context.Context, userID string, productID int64, quantity int) (*models.CartItem, error)
	SetCartItemQuantity(ctx context.Context, userID string, productID int64, quantity int) error
	DeleteCartItem(ctx context.Context, userID string, productID int64) error
	ClearCart(ctx context.Context, userID string) error
	ListCartItems(ctx context.Context, userID string) ([]models.CartItem, error)
}

// ProductCatalog resolves product display data
type ProductCatalog interface {
	GetProductByID(ctx context.Context, id int64) (*models.Product, error)
	GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error)
}

// GuestCartStore backs anonymous carts (Redis)
type GuestCartStore interface {
	GetGuestItem(ctx context.Context, guestID string, productID int64) (*models.GuestCartItem, error)
	PutGuestItem(ctx context.Context, guestID string, item *models.GuestCartItem, ttl time.Duration) error
	RemoveGuestItem(ctx context.Context, guestID string, productID int64) (bool, error)
	GetGuestCart(ctx context.Context, guestID string) ([]models.GuestCartItem, error)
	ClearGuestCart(ctx context.Context, guestID string) error
}

// CartService presents one logical cart over the authenticated
// (Postgres) and anonymous (Redis) representations.
type CartService struct {
	carts    CartStore
	catalog  ProductCatalog
	guests   GuestCartStore
	guestTTL time.Duration
	logger   *zap.Logger
}

// NewCartService creates a new cart service
func NewCartService(carts CartStore, catalog ProductCatalog, guests GuestCartStore, guestTTL time.Duration) *CartService {
	return &CartService{
		carts:    carts,
		catalog:  catalog,
		guests:   guests,
		guestTTL: guestTTL,
		logger:   util.GetLogger(),
	}
}

// CartEntry is one line of a cart view with its effective unit price
type CartEntry struct {
	ProductID int64  `json:"product_id"`
	Name      string `json:"name"`
	Image     string `json:"image"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
	LineTotal int64  `json:"line_total"`
}

// CartView is a cart with its derived totals. Totals are recomputed
// on every read, never stored.
type CartView struct {
	Items      []CartEntry `json:"items"`
	TotalItems int         `json:"total_items"`
	TotalPrice int64       `json:"total_price"`
}

// MergeFailure is one guest item that could not be carried over
type MergeFailure struct {
	ProductID int64  `json:"product_id"`
	Reason    string `json:"reason"`
}

// MergeReport is the structured outcome of a guest-to-user merge,
// so partial failures are reported instead of silently discarded.
type MergeReport struct {
	Merged []int64        `json:"merged"`
	Failed []MergeFailure `json:"failed"`
}

// AddUserItem upserts a cart row for the authenticated user,
// accumulating quantity on repeat adds. Product existence is left to
// the Data Store's foreign-key constraint.
func (s *CartService) AddUserItem(ctx context.Context, userID string, productID int64, quantity int) (*models.CartItem, error) {
	if quantity < 1 {
		return nil, &ValidationError{Field: "quantity", Reason: "must be at least 1"}
	}
	return s.carts.UpsertCartItem(ctx, userID, productID, quantity)
}

// AddGuestItem resolves the product once and appends or increments the
// guest cart entry carrying its display snapshot.
func (s *CartService) AddGuestItem(ctx context.Context, guestID string, productID int64, quantity int) (*models.GuestCartItem, error) {
	if quantity < 1 {
		return nil, &ValidationError{Field: "quantity", Reason: "must be at least 1"}
	}

	product, err := s.catalog.GetProductByID(ctx, productID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, err
	}

	existing, err := s.guests.GetGuestItem(ctx, guestID, productID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		quantity += existing.Quantity
	}

	item := &models.GuestCartItem{
		ProductID:    product.ID,
		Quantity:     quantity,
		Name:         product.Name,
		Image:        product.Image,
		Stock:        product.Stock,
		RegularPrice: product.RegularPrice,
		OfferPrice:   product.OfferPrice,
		AddedAt:      time.Now(),
	}
	if existing != nil {
		item.AddedAt = existing.AddedAt
	}

	if err := s.guests.PutGuestItem(ctx, guestID, item, s.guestTTL); err != nil {
		return nil, err
	}
	return item, nil
}

// UpdateUserQuantity overwrites a cart row's quantity.
// A quantity of zero or less removes the item.
func (s *CartService) UpdateUserQuantity(ctx context.Context, userID string, productID int64, quantity int) error {
	if quantity <= 0 {
		return s.RemoveUserItem(ctx, userID, productID)
	}
	if err := s.carts.SetCartItemQuantity(ctx, userID, productID, quantity); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrCartItemNotFound
		}
		return err
	}
	return nil
}

// UpdateGuestQuantity overwrites a guest cart entry's quantity.
// A quantity of zero or less removes the item.
func (s *CartService) UpdateGuestQuantity(ctx context.Context, guestID string, productID int64, quantity int) error {
	if quantity <= 0 {
		return s.RemoveGuestItem(ctx, guestID, productID)
	}

	item, err := s.guests.GetGuestItem(ctx, guestID, productID)
	if err != nil {
		return err
	}
	if item == nil {
		return ErrCartItemNotFound
	}

	item.Quantity = quantity
	return s.guests.PutGuestItem(ctx, guestID, item, s.guestTTL)
}

// RemoveUserItem deletes one product from the authenticated cart
func (s *CartService) RemoveUserItem(ctx context.Context, userID string, productID int64) error {
	if err := s.carts.DeleteCartItem(ctx, userID, productID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrCartItemNotFound
		}
		return err
	}
	return nil
}

// RemoveGuestItem deletes one product from the guest cart
func (s *CartService) RemoveGuestItem(ctx context.Context, guestID string, productID int64) error {
	removed, err := s.guests.RemoveGuestItem(ctx, guestID, productID)
	if err != nil {
		return err
	}
	if !removed {
		return ErrCartItemNotFound
	}
	return nil
}

// ClearUserCart empties the authenticated cart
func (s *CartService) ClearUserCart(ctx context.Context, userID string) error {
	return s.carts.ClearCart(ctx, userID)
}

// ClearGuestCart empties the guest cart
func (s *CartService) ClearGuestCart(ctx context.Context, guestID string) error {
	return s.guests.ClearGuestCart(ctx, guestID)
}

// GetUserCart builds the authenticated cart view from current catalog
// display data.
func (s *CartService) GetUserCart(ctx context.Context, userID string) (*CartView, error) {
	rows, err := s.carts.ListCartItems(ctx, userID)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, len(rows))
	for i, row := range rows {
		ids[i] = row.ProductID
	}

	products, err := s.catalog.GetProductsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]*models.Product, len(products))
	for i := range products {
		byID[products[i].ID] = &products[i]
	}

	view := &CartView{Items: make([]CartEntry, 0, len(rows))}
	for _, row := range rows {
		product, ok := byID[row.ProductID]
		if !ok {
			// Product removed from the catalog after it was carted.
			s.logger.Warn("Cart references missing product",
				zap.String("user_id", userID),
				zap.Int64("product_id", row.ProductID))
			continue
		}
		unit := product.EffectivePrice()
		view.Items = append(view.Items, CartEntry{
			ProductID: row.ProductID,
			Name:      product.Name,
			Image:     product.Image,
			Quantity:  row.Quantity,
			UnitPrice: unit,
			LineTotal: unit * int64(row.Quantity),
		})
		view.TotalItems += row.Quantity
		view.TotalPrice += unit * int64(row.Quantity)
	}
	return view, nil
}

// GetGuestCartView builds the guest cart view from the stored snapshots
func (s *CartService) GetGuestCartView(ctx context.Context, guestID string) (*CartView, error) {
	items, err := s.guests.GetGuestCart(ctx, guestID)
	if err != nil {
		return nil, err
	}

	view := &CartView{Items: make([]CartEntry, 0, len(items))}
	for _, item := range items {
		unit := item.EffectivePrice()
		view.Items = append(view.Items, CartEntry{
			ProductID: item.ProductID,
			Name:      item.Name,
			Image:     item.Image,
			Quantity:  item.Quantity,
			UnitPrice: unit,
			LineTotal: unit * int64(item.Quantity),
		})
		view.TotalItems += item.Quantity
		view.TotalPrice += unit * int64(item.Quantity)
	}
	return view, nil
}

// MergeGuestIntoUser carries every guest cart entry into the user's
// server cart via quantity-accumulating upserts, so merging twice with
// the same guest cart cannot double anything: successfully merged
// items leave the guest cart immediately. Failures are collected and
// reported per item; the corresponding entries stay in the guest cart
// for a later retry.
func (s *CartService) MergeGuestIntoUser(ctx context.Context, guestID, userID string) (*MergeReport, error) {
	ctx, span := util.StartSpan(ctx, "CartService.MergeGuestIntoUser")
	defer span.End()

	items, err := s.guests.GetGuestCart(ctx, guestID)
	if err != nil {
		return nil, err
	}

	report := &MergeReport{Merged: make([]int64, 0, len(items))}
	for _, item := range items {
		if _, err := s.carts.UpsertCartItem(ctx, userID, item.ProductID, item.Quantity); err != nil {
			s.logger.Warn("Failed to merge guest cart item",
				zap.String("guest_id", guestID),
				zap.String("user_id", userID),
				zap.Int64("product_id", item.ProductID),
				zap.Error(err))
			report.Failed = append(report.Failed, MergeFailure{
				ProductID: item.ProductID,
				Reason:    err.Error(),
			})
			continue
		}

		if _, err := s.guests.RemoveGuestItem(ctx, guestID, item.ProductID); err != nil {
			s.logger.Warn("Failed to drop merged guest cart item",
				zap.String("guest_id", guestID),
				zap.Int64("product_id", item.ProductID),
				zap.Error(err))
		}
		report.Merged = append(report.Merged, item.ProductID)
		util.CartItemsMergedTotal.Inc()
	}

	if len(report.Failed) == 0 {
		if err := s.guests.ClearGuestCart(ctx, guestID); err != nil {
			s.logger.Warn("Failed to clear guest cart after merge",
				zap.String("guest_id", guestID),
				zap.Error(err))
		}
		util.CartMergesTotal.WithLabelValues("complete").Inc()
	} else {
		util.CartMergesTotal.WithLabelValues("partial").Inc()
	}

	s.logger.Info("Guest cart merged",
		zap.String("guest_id", guestID),
		zap.String("user_id", userID),
		zap.Int("merged", len(report.Merged)),
		zap.Int("failed", len(report.Failed)))
	return report, nil
}
