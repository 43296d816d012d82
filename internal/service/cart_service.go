package service

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tranvanhung2003/digital-world-cart/internal/cache"
	"github.com/tranvanhung2003/digital-world-cart/internal/catalog"
	"github.com/tranvanhung2003/digital-world-cart/domain"
	"github.com/tranvanhung2003/digital-world-cart/internal/repository"
	"golang.org/x/sync/singleflight"
)

// ErrOutOfStock is returned when the requested quantity, together with what is
// already in the cart for the same line, exceeds the catalog stock level.
var ErrOutOfStock = errors.New("requested quantity exceeds available stock")

type CartService struct {
	repo    repository.CartRepository
	cache   cache.CartCache
	catalog catalog.Catalog
	log     logrus.FieldLogger
	sfg     singleflight.Group // Prevents cache stampede
}

func NewCartService(repo repository.CartRepository, cache cache.CartCache, cat catalog.Catalog, log logrus.FieldLogger) *CartService {
	return &CartService{
		repo:    repo,
		cache:   cache,
		catalog: cat,
		log:     log,
	}
}

func (s *CartService) GetCart(ctx context.Context, ownerID string) (*domain.Cart, error) {
	// Use singleflight to prevent multiple concurrent cache misses for same key
	v, err, _ := s.sfg.Do(ownerID, func() (interface{}, error) {

		cart, err := s.cache.Get(ctx, ownerID)
		if err == nil {
			return cart, nil // cart is in cache
		}

		if !errors.Is(err, cache.ErrCacheMiss) {
			s.log.WithError(err).Warn("cache get error") // log cache error but continue
		}

		cart, errGet := s.repo.GetCart(ctx, ownerID)
		if errGet != nil && errors.Is(errGet, repository.ErrCartNotFound) { // not found cart return empty cart
			return &domain.Cart{
				OwnerID:   ownerID,
				Items:     nil,
				CreatedAt: time.Now(),
				UpdatedAt: time.Now(),
			}, nil
		}
		if errGet != nil {
			return nil, errGet // err from repo is not cache miss, return it
		}

		// set cache
		go func() {
			errSet := s.cache.Set(context.Background(), ownerID, cart)
			if errSet != nil {
				s.log.WithError(errSet).Warn("cache set error")
			}
		}()

		return cart, nil // cart was not in cache, return it from repo
	})

	if err != nil {
		return nil, err
	}

	return v.(*domain.Cart), nil
}

// AddItem validates the line against the catalog, snapshots the authoritative
// unit price and increments-or-appends the line. The stock check counts
// quantity already held in the cart for the same line.
func (s *CartService) AddItem(ctx context.Context, ownerID string, item domain.CartItem) error {
	avail, err := s.catalog.Lookup(ctx, item.ProductID, item.VariantID)
	if err != nil {
		return err
	}

	held := 0
	if existing, errGet := s.repo.GetCart(ctx, ownerID); errGet == nil {
		for _, line := range existing.Items {
			if line.SameLine(item) {
				held = line.Quantity
				break
			}
		}
	} else if !errors.Is(errGet, repository.ErrCartNotFound) {
		return errGet
	}

	if held+item.Quantity > avail.Stock {
		return ErrOutOfStock
	}

	item.UnitPrice = avail.UnitPrice

	errAdd := s.repo.AddItem(ctx, ownerID, item)
	if errAdd != nil {
		s.log.WithError(errAdd).Error("repo add item error")
		return errAdd
	}

	s.invalidateCache(ownerID)
	return nil
}

func (s *CartService) UpdateQuantity(ctx context.Context, ownerID, itemID string, quantity int) error {
	errUpdate := s.repo.UpdateItemQuantity(ctx, ownerID, itemID, quantity)
	if errUpdate != nil {
		s.log.WithError(errUpdate).Error("repo update item quantity error")
		return errUpdate
	}

	s.invalidateCache(ownerID)
	return nil
}

func (s *CartService) RemoveItem(ctx context.Context, ownerID, itemID string) error {
	errRemove := s.repo.RemoveItem(ctx, ownerID, itemID)
	if errRemove != nil {
		s.log.WithError(errRemove).Error("repo remove item error")
		return errRemove
	}

	s.invalidateCache(ownerID)
	return nil
}

func (s *CartService) ClearCart(ctx context.Context, ownerID string) error {
	errDelete := s.repo.DeleteCart(ctx, ownerID)
	if errDelete != nil {
		s.log.WithError(errDelete).Error("repo delete cart error")
		return errDelete
	}

	s.invalidateCache(ownerID)
	return nil
}

// MergeGuestCart folds a session-tracked guest cart into the account cart.
// Used when a user logs in and their pre-login cart lived server-side under
// the session owner id. Missing guest cart is a no-op.
func (s *CartService) MergeGuestCart(ctx context.Context, guestOwnerID, userOwnerID string) error {
	errMerge := s.repo.MergeCarts(ctx, guestOwnerID, userOwnerID)
	if errMerge != nil {
		s.log.WithError(errMerge).Error("repo merge carts error")
		return errMerge
	}

	s.invalidateCache(guestOwnerID)
	s.invalidateCache(userOwnerID)
	return nil
}

func (s *CartService) invalidateCache(ownerID string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	errInvalidate := s.cache.Delete(ctx, ownerID)
	if errInvalidate != nil {
		s.log.WithError(errInvalidate).Warn("cache invalidate error")
	}
}
