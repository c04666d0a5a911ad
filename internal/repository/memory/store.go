package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"bindery-orders/internal/domain"
	"bindery-orders/internal/infra"
	"bindery-orders/internal/repository"
)

var (
	_ repository.OrderLedger = (*Store)(nil)
	_ repository.CartStore   = (*Store)(nil)
	_ repository.AuditLog    = (*Store)(nil)
	_ repository.Transactor  = (*Store)(nil)
	_ infra.ProductCatalog   = (*Store)(nil)
)

type txKey struct{}

// Store keeps orders, carts, audit entries and products in process memory.
// A transaction holds the store lock for its whole duration and rolls orders
// and carts back when fn fails; audit entries survive a rollback.
type Store struct {
	mu sync.Mutex

	orders   map[string]*domain.Order
	byRef    map[string]string
	sequence []string
	carts    map[string][]domain.CartItem
	audit    []domain.AuditEntry
	products map[string]domain.Product

	nextCartID  uint64
	nextAuditID uint64
}

func NewStore() *Store {
	return &Store{
		orders:   make(map[string]*domain.Order),
		byRef:    make(map[string]string),
		carts:    make(map[string][]domain.CartItem),
		products: make(map[string]domain.Product),
	}
}

func (s *Store) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.inTx(ctx) {
		return fn(ctx)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	orders, byRef, sequence, carts := s.snapshot()
	if err := fn(context.WithValue(ctx, txKey{}, s)); err != nil {
		s.orders, s.byRef, s.sequence, s.carts = orders, byRef, sequence, carts
		return err
	}
	return nil
}

func (s *Store) inTx(ctx context.Context) bool {
	owner, _ := ctx.Value(txKey{}).(*Store)
	return owner == s
}

// lock takes the store lock unless ctx already runs inside this store's transaction.
func (s *Store) lock(ctx context.Context) func() {
	if s.inTx(ctx) {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *Store) snapshot() (map[string]*domain.Order, map[string]string, []string, map[string][]domain.CartItem) {
	orders := make(map[string]*domain.Order, len(s.orders))
	for id, o := range s.orders {
		orders[id] = o.Clone()
	}
	byRef := make(map[string]string, len(s.byRef))
	for k, v := range s.byRef {
		byRef[k] = v
	}
	carts := make(map[string][]domain.CartItem, len(s.carts))
	for u, items := range s.carts {
		carts[u] = cloneCart(items)
	}
	return orders, byRef, append([]string(nil), s.sequence...), carts
}

func (s *Store) Insert(ctx context.Context, order *domain.Order) error {
	defer s.lock(ctx)()

	if _, ok := s.byRef[order.Payment.Reference]; ok {
		return repository.ErrDuplicatePaymentReference
	}
	if order.Version == 0 {
		order.Version = 1
	}
	now := time.Now().UTC()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = now

	s.orders[order.ID] = order.Clone()
	s.byRef[order.Payment.Reference] = order.ID
	s.sequence = append(s.sequence, order.ID)
	return nil
}

func (s *Store) Update(ctx context.Context, order *domain.Order, expectedVersion int) error {
	defer s.lock(ctx)()

	cur, ok := s.orders[order.ID]
	if !ok || cur.Version != expectedVersion {
		return repository.ErrVersionConflict
	}
	order.Version = expectedVersion + 1
	order.CreatedAt = cur.CreatedAt
	order.UpdatedAt = time.Now().UTC()
	s.orders[order.ID] = order.Clone()
	return nil
}

func (s *Store) FindByID(ctx context.Context, id string) (*domain.Order, error) {
	defer s.lock(ctx)()
	return s.orders[id].Clone(), nil
}

func (s *Store) FindByPaymentReference(ctx context.Context, ref string) (*domain.Order, error) {
	defer s.lock(ctx)()
	id, ok := s.byRef[ref]
	if !ok {
		return nil, nil
	}
	return s.orders[id].Clone(), nil
}

func (s *Store) FindByUserID(ctx context.Context, userID string) ([]domain.Order, error) {
	defer s.lock(ctx)()
	var out []domain.Order
	for i := len(s.sequence) - 1; i >= 0; i-- {
		if o := s.orders[s.sequence[i]]; o.UserID == userID {
			out = append(out, *o.Clone())
		}
	}
	return out, nil
}

func (s *Store) List(ctx context.Context, page, pageSize int) ([]domain.Order, int64, error) {
	defer s.lock(ctx)()
	total := int64(len(s.sequence))
	// Checked before multiplying so a huge page cannot overflow the offset.
	if page < 1 || pageSize < 1 || page-1 > len(s.sequence)/pageSize {
		return []domain.Order{}, total, nil
	}
	start := (page - 1) * pageSize
	var out []domain.Order
	for i := len(s.sequence) - 1 - start; i >= 0 && len(out) < pageSize; i-- {
		out = append(out, *s.orders[s.sequence[i]].Clone())
	}
	return out, total, nil
}

func (s *Store) Read(ctx context.Context, userID string) ([]domain.CartItem, error) {
	defer s.lock(ctx)()
	return cloneCart(s.carts[userID]), nil
}

// ReadForUpdate is Read; inside a transaction the store lock already excludes
// every other writer.
func (s *Store) ReadForUpdate(ctx context.Context, userID string) ([]domain.CartItem, error) {
	return s.Read(ctx, userID)
}

func (s *Store) Clear(ctx context.Context, userID string) error {
	defer s.lock(ctx)()
	delete(s.carts, userID)
	return nil
}

func (s *Store) Append(ctx context.Context, entry *domain.AuditEntry) error {
	defer s.lock(ctx)()
	s.nextAuditID++
	entry.ID = s.nextAuditID
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	cp := *entry
	cp.Metadata = make(map[string]any, len(entry.Metadata))
	for k, v := range entry.Metadata {
		cp.Metadata[k] = v
	}
	s.audit = append(s.audit, cp)
	return nil
}

func (s *Store) GetByID(ctx context.Context, id string) (*domain.Product, error) {
	defer s.lock(ctx)()
	p, ok := s.products[id]
	if !ok {
		return nil, nil
	}
	p.Images = append([]domain.ProductImage(nil), p.Images...)
	return &p, nil
}

func (s *Store) PutProduct(p domain.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ID] = p
}

func (s *Store) DeleteProduct(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.products, id)
}

func (s *Store) AddCartItem(userID, productID string, quantity int, options ...domain.SelectedOption) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextCartID++
	s.carts[userID] = append(s.carts[userID], domain.CartItem{
		ID:              s.nextCartID,
		UserID:          userID,
		ProductID:       productID,
		Quantity:        quantity,
		SelectedOptions: options,
		UpdatedAt:       time.Now().UTC(),
	})
}

// AuditEntries returns entries matching action, or all entries when action is empty.
func (s *Store) AuditEntries(action string) []domain.AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.AuditEntry
	for _, e := range s.audit {
		if action == "" || e.Action == action {
			out = append(out, e)
		}
	}
	return out
}

func (s *Store) OrderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

// SortedProductIDs lists catalog ids, for seeding logs.
func (s *Store) SortedProductIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.products))
	for id := range s.products {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func cloneCart(items []domain.CartItem) []domain.CartItem {
	if items == nil {
		return nil
	}
	out := make([]domain.CartItem, len(items))
	for i, it := range items {
		it.SelectedOptions = append([]domain.SelectedOption(nil), it.SelectedOptions...)
		out[i] = it
	}
	return out
}
