package orders

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/feedflow/feedflow/internal/notify"
	"github.com/feedflow/feedflow/internal/parties"
	"github.com/feedflow/feedflow/internal/sequence"
	"github.com/feedflow/feedflow/internal/shared"
	"github.com/feedflow/feedflow/internal/stock"
)

type memoryState struct {
	orders    map[string]Order
	parties   map[int64]parties.Party
	stock     map[int64]map[int64]int64
	products  map[int64]string
	approvals []shared.ApprovalLog
}

func (s memoryState) clone() memoryState {
	out := memoryState{
		orders:    maps.Clone(s.orders),
		parties:   maps.Clone(s.parties),
		stock:     make(map[int64]map[int64]int64, len(s.stock)),
		products:  s.products,
		approvals: append([]shared.ApprovalLog(nil), s.approvals...),
	}
	for wh, levels := range s.stock {
		out.stock[wh] = maps.Clone(levels)
	}
	return out
}

// memoryRepo serialises transactions and commits a working copy on success.
type memoryRepo struct {
	mu    sync.Mutex
	state memoryState
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{state: memoryState{
		orders:   make(map[string]Order),
		parties:  make(map[int64]parties.Party),
		stock:    make(map[int64]map[int64]int64),
		products: make(map[int64]string),
	}}
}

func (m *memoryRepo) addParty(p parties.Party) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.Status == "" {
		p.Status = parties.StatusActive
	}
	m.state.parties[p.ID] = p
}

func (m *memoryRepo) addProduct(id int64, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.products[id] = name
}

func (m *memoryRepo) setStock(warehouseID, productID, qty int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.stock[warehouseID] == nil {
		m.state.stock[warehouseID] = make(map[int64]int64)
	}
	m.state.stock[warehouseID][productID] = qty
}

func (m *memoryRepo) level(warehouseID, productID int64) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.stock[warehouseID][productID]
}

func (m *memoryRepo) party(id int64) parties.Party {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.parties[id]
}

func (m *memoryRepo) mutate(id string, fn func(*Order)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o := m.state.orders[id]
	fn(&o)
	m.state.orders[id] = o
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx := &memoryTx{state: m.state.clone()}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	m.state = tx.state
	return nil
}

func (m *memoryRepo) Get(_ context.Context, id string) (Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.state.orders[id]
	if !ok {
		return Order{}, ErrOrderNotFound
	}
	return o, nil
}

func (m *memoryRepo) List(_ context.Context, f ListFilter) ([]Order, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Order
	for _, o := range m.state.orders {
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		if f.PlacedBy != 0 && o.PlacedBy != f.PlacedBy {
			continue
		}
		if f.PartyID != 0 && o.PartyID != f.PartyID {
			continue
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, len(out), nil
}

func (m *memoryRepo) History(_ context.Context, id string) ([]shared.ApprovalLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []shared.ApprovalLog
	for _, l := range m.state.approvals {
		if l.RefID == id {
			out = append(out, l)
		}
	}
	return out, nil
}

type memoryTx struct {
	state memoryState
}

func (t *memoryTx) Insert(_ context.Context, o Order) error {
	if _, ok := t.state.orders[o.ID]; ok {
		return fmt.Errorf("%w: order %s already exists", shared.ErrConflict, o.ID)
	}
	t.state.orders[o.ID] = o
	return nil
}

func (t *memoryTx) Lock(_ context.Context, id string) (Order, error) {
	o, ok := t.state.orders[id]
	if !ok {
		return Order{}, ErrOrderNotFound
	}
	return o, nil
}

func (t *memoryTx) Save(_ context.Context, o Order, expected Status) error {
	cur, ok := t.state.orders[o.ID]
	if !ok || cur.Status != expected {
		return ErrStatusChanged
	}
	t.state.orders[o.ID] = o
	return nil
}

func (t *memoryTx) Delete(_ context.Context, id string, expected Status) error {
	cur, ok := t.state.orders[id]
	if !ok || cur.Status != expected {
		return ErrStatusChanged
	}
	delete(t.state.orders, id)
	return nil
}

func (t *memoryTx) ProductNames(_ context.Context, ids []int64) (map[int64]string, error) {
	out := make(map[int64]string)
	for _, id := range ids {
		if name, ok := t.state.products[id]; ok {
			out[id] = name
		}
	}
	return out, nil
}

func (t *memoryTx) Parties() parties.TxRepository { return memoryParties{t} }

func (t *memoryTx) Stock() stock.TxRepository { return memoryStock{t} }

func (t *memoryTx) RecordApproval(_ context.Context, log shared.ApprovalLog) error {
	if err := log.Validate(); err != nil {
		return err
	}
	log.ID = int64(len(t.state.approvals) + 1)
	t.state.approvals = append(t.state.approvals, log)
	return nil
}

type memoryParties struct{ tx *memoryTx }

func (p memoryParties) LockParty(_ context.Context, id int64) (parties.Party, error) {
	party, ok := p.tx.state.parties[id]
	if !ok {
		return parties.Party{}, fmt.Errorf("%w: %w", shared.ErrNotFound, parties.ErrPartyNotFound)
	}
	return party, nil
}

func (p memoryParties) AdjustLimit(_ context.Context, id int64, delta int64) error {
	party, ok := p.tx.state.parties[id]
	if !ok {
		return fmt.Errorf("%w: %w", shared.ErrNotFound, parties.ErrPartyNotFound)
	}
	party.Limit += delta
	p.tx.state.parties[id] = party
	return nil
}

type memoryStock struct{ tx *memoryTx }

func (s memoryStock) LockLevels(_ context.Context, warehouseID int64, productIDs []int64) (map[int64]int64, error) {
	out := make(map[int64]int64)
	for _, id := range productIDs {
		if qty, ok := s.tx.state.stock[warehouseID][id]; ok {
			out[id] = qty
		}
	}
	return out, nil
}

func (s memoryStock) Decrement(_ context.Context, warehouseID int64, lines []stock.Line) error {
	levels := s.tx.state.stock[warehouseID]
	for _, l := range lines {
		if levels[l.ProductID] < l.Quantity {
			return stock.ErrStockChanged
		}
		levels[l.ProductID] -= l.Quantity
	}
	return nil
}

func (s memoryStock) Increment(_ context.Context, warehouseID int64, lines []stock.Line) error {
	if s.tx.state.stock[warehouseID] == nil {
		s.tx.state.stock[warehouseID] = make(map[int64]int64)
	}
	for _, l := range lines {
		s.tx.state.stock[warehouseID][l.ProductID] += l.Quantity
	}
	return nil
}

type memoryCounter struct {
	mu     sync.Mutex
	values map[string]int64
	err    error
}

func (c *memoryCounter) Increment(_ context.Context, name string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return 0, c.err
	}
	if c.values == nil {
		c.values = make(map[string]int64)
	}
	c.values[name]++
	return c.values[name], nil
}

type fakeDirectory struct {
	roles map[shared.Role][]int64
	staff map[int64]shared.WarehouseStaff
}

func (d fakeDirectory) IDsByRole(_ context.Context, roles ...shared.Role) ([]int64, error) {
	var out []int64
	for _, r := range roles {
		out = append(out, d.roles[r]...)
	}
	return out, nil
}

func (d fakeDirectory) WarehouseStaff(_ context.Context, warehouseID int64) (shared.WarehouseStaff, error) {
	staff, ok := d.staff[warehouseID]
	if !ok {
		return shared.WarehouseStaff{}, shared.NotFoundf("warehouse %d", warehouseID)
	}
	return staff, nil
}

type sentNotification struct {
	roles   []shared.Role
	payload notify.Payload
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
	err  error
}

func (n *recordingNotifier) Notify(_ context.Context, roles []shared.Role, p notify.Payload) (notify.Report, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentNotification{roles: roles, payload: p})
	if n.err != nil {
		return notify.Report{}, n.err
	}
	return notify.Report{Recipients: len(p.ReceiverIDs)}, nil
}

func (n *recordingNotifier) ofType(t notify.Type) []notify.Payload {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []notify.Payload
	for _, s := range n.sent {
		if s.payload.Type == t {
			out = append(out, s.payload)
		}
	}
	return out
}

type fakeDocuments struct {
	puts int
}

func (d *fakeDocuments) Put(_ context.Context, filename, _ string, blob []byte) (string, error) {
	if len(blob) == 0 {
		return "", errors.New("empty")
	}
	d.puts++
	return "https://cdn.test/proofs/" + filename, nil
}

const (
	salesmanID   int64 = 100
	otherSalesID int64 = 101
	managerID    int64 = 200
	authorizerID int64 = 300
	adminID      int64 = 400
	plantHeadID  int64 = 500
	accountantID int64 = 600
	warehouseID  int64 = 10
	partyID      int64 = 1
	feedX        int64 = 1
	feedY        int64 = 2
)

var (
	salesman   = shared.Actor{ID: salesmanID, Role: shared.RoleSalesman}
	otherSales = shared.Actor{ID: otherSalesID, Role: shared.RoleSalesman}
	manager    = shared.Actor{ID: managerID, Role: shared.RoleSalesManager}
	authorizer = shared.Actor{ID: authorizerID, Role: shared.RoleSalesAuthorizer}
	admin      = shared.Actor{ID: adminID, Role: shared.RoleAdmin}
	plantHead  = shared.Actor{ID: plantHeadID, Role: shared.RolePlantHead}
	accountant = shared.Actor{ID: accountantID, Role: shared.RoleAccountant}
)

type fixture struct {
	repo      *memoryRepo
	counter   *memoryCounter
	notifier  *recordingNotifier
	documents *fakeDocuments
	service   *Service
}

func newFixture(opts ...Option) *fixture {
	repo := newMemoryRepo()
	repo.addParty(parties.Party{ID: partyID, CompanyName: "Green Farms", ContactPersonNumber: "9800000000", Limit: 100000})
	repo.addProduct(feedX, "FeedX")
	repo.addProduct(feedY, "FeedY")
	directory := fakeDirectory{
		roles: map[shared.Role][]int64{
			shared.RoleAdmin:           {adminID, adminID + 1},
			shared.RoleSalesManager:    {managerID},
			shared.RoleSalesAuthorizer: {authorizerID},
		},
		staff: map[int64]shared.WarehouseStaff{
			warehouseID: {WarehouseID: warehouseID, PlantHeadID: plantHeadID, AccountantID: accountantID},
			20:          {WarehouseID: 20, PlantHeadID: plantHeadID + 1, AccountantID: accountantID + 1},
		},
	}
	counter := &memoryCounter{}
	notifier := &recordingNotifier{}
	documents := &fakeDocuments{}
	base := []Option{
		WithSyncNotifications(),
		WithDocuments(documents),
		WithClock(func() time.Time { return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC) }),
	}
	svc := NewService(repo, sequence.NewAllocator(counter, sequence.OrderCounter), directory, notifier, nil, append(base, opts...)...)
	return &fixture{repo: repo, counter: counter, notifier: notifier, documents: documents, service: svc}
}

// placeAssigned places an order and walks it to WarehouseAssigned.
func (f *fixture) placeAssigned(ctx context.Context, req PlaceRequest) (Order, error) {
	order, err := f.service.Place(ctx, salesman, req)
	if err != nil {
		return Order{}, err
	}
	if _, err := f.service.Forward(ctx, manager, order.ID); err != nil {
		return Order{}, err
	}
	return f.service.AssignWarehouse(ctx, authorizer, order.ID, warehouseID)
}
