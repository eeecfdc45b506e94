// Package memstore is an in-memory implementation of the repository
// interfaces for tests. Transactions are not isolated and never roll back.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/botlist/arcadia/internal/domain"
	"github.com/botlist/arcadia/internal/repository"
)

// DB holds every table.
type DB struct {
	mu          sync.Mutex
	Now         func() time.Time
	users       map[string]domain.StaffOnboardRecord
	positions   map[string]domain.StaffPosition
	members     map[string]domain.StaffMember
	types       map[string]domain.StaffDisciplinaryType
	discs       map[string]domain.StaffDisciplinary
	bots        map[string]domain.BotReviewRecord
	teams       map[string]domain.Team
	teamMembers map[string][]domain.TeamMember
	rpcLogs     map[string]domain.RPCLogEntry
	rpcOrder    []string

	// Fail, when set, is consulted before each mutation with an op name and key.
	Fail func(op, key string) error
}

// New returns an empty database.
func New() *DB {
	return &DB{
		Now:         time.Now,
		users:       map[string]domain.StaffOnboardRecord{},
		positions:   map[string]domain.StaffPosition{},
		members:     map[string]domain.StaffMember{},
		types:       map[string]domain.StaffDisciplinaryType{},
		discs:       map[string]domain.StaffDisciplinary{},
		bots:        map[string]domain.BotReviewRecord{},
		teams:       map[string]domain.Team{},
		teamMembers: map[string][]domain.TeamMember{},
		rpcLogs:     map[string]domain.RPCLogEntry{},
	}
}

// Store binds every repository to db.
func (db *DB) Store() repository.Store {
	return repository.Store{
		Users:          users{db},
		Staff:          staff{db},
		Disciplinaries: disciplinaries{db},
		Bots:           bots{db},
		Teams:          teams{db},
		RPCLogs:        rpcLogs{db},
	}
}

// InTx implements repository.Transactor. Writes are not rolled back; a Fail
// hook on "tx.commit" simulates a commit that fails after fn succeeded.
func (db *DB) InTx(_ context.Context, fn func(repository.Store) error) error {
	if err := fn(db.Store()); err != nil {
		return err
	}
	return db.fail("tx.commit", "")
}

func (db *DB) fail(op, key string) error {
	if db.Fail == nil {
		return nil
	}
	return db.Fail(op, key)
}

// Seed helpers.

// PutUser stores an onboarding record.
func (db *DB) PutUser(rec domain.StaffOnboardRecord) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.users[rec.UserID] = rec
}

// User returns a copy of the onboarding record.
func (db *DB) User(id string) (domain.StaffOnboardRecord, bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	rec, ok := db.users[id]
	return rec, ok
}

// PutPosition stores a position.
func (db *DB) PutPosition(p domain.StaffPosition) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.positions[p.ID] = p
}

// Position returns a stored position.
func (db *DB) Position(id string) (domain.StaffPosition, bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	p, ok := db.positions[id]
	return p, ok
}

// PutMember stores a staff member and ensures its user row.
func (db *DB) PutMember(m domain.StaffMember) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.members[m.UserID] = m
	if _, ok := db.users[m.UserID]; !ok {
		db.users[m.UserID] = domain.StaffOnboardRecord{UserID: m.UserID, State: domain.OnboardPending}
	}
}

// Member returns a stored staff member.
func (db *DB) Member(id string) (domain.StaffMember, bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	m, ok := db.members[id]
	return m, ok
}

// PutType stores a disciplinary type.
func (db *DB) PutType(t domain.StaffDisciplinaryType) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.types[t.ID] = t
}

// PutDisciplinary stores a disciplinary.
func (db *DB) PutDisciplinary(d domain.StaffDisciplinary) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.discs[d.ID] = d
}

// PutBot stores a bot.
func (db *DB) PutBot(b domain.BotReviewRecord) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.bots[b.BotID] = b
}

// Bot returns a stored bot.
func (db *DB) Bot(id string) (domain.BotReviewRecord, bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	b, ok := db.bots[id]
	return b, ok
}

// PutTeam stores a team with its members.
func (db *DB) PutTeam(t domain.Team, members ...domain.TeamMember) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.teams[t.ID] = t
	db.teamMembers[t.ID] = members
}

// Team returns a stored team.
func (db *DB) Team(id string) (domain.Team, bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	t, ok := db.teams[id]
	return t, ok
}

// RPCLogs returns audit rows in insertion order.
func (db *DB) RPCLogs() []domain.RPCLogEntry {
	db.mu.Lock()
	defer db.mu.Unlock()
	out := make([]domain.RPCLogEntry, 0, len(db.rpcOrder))
	for _, id := range db.rpcOrder {
		out = append(out, db.rpcLogs[id])
	}
	return out
}

type users struct{ db *DB }

func (r users) Ensure(_ context.Context, userID string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.users[userID]; !ok {
		r.db.users[userID] = domain.StaffOnboardRecord{UserID: userID, State: domain.OnboardPending}
	}
	return nil
}

func (r users) GetOnboard(_ context.Context, userID string) (*domain.StaffOnboardRecord, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	rec, ok := r.db.users[userID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &rec, nil
}

func (r users) SaveOnboard(_ context.Context, rec *domain.StaffOnboardRecord) error {
	if err := r.db.fail("users.save", rec.UserID); err != nil {
		return err
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.users[rec.UserID]; !ok {
		return pgx.ErrNoRows
	}
	r.db.users[rec.UserID] = *rec
	return nil
}

func (r users) FindBySessionCode(_ context.Context, code string) (*domain.StaffOnboardRecord, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, rec := range r.db.users {
		if rec.SessionCode != nil && *rec.SessionCode == code {
			out := rec
			return &out, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r users) ListByOnboardState(_ context.Context, state domain.OnboardState) ([]domain.StaffOnboardRecord, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []domain.StaffOnboardRecord
	for _, rec := range r.db.users {
		if rec.State == state {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

type staff struct{ db *DB }

func (r staff) ListPositions(_ context.Context) ([]domain.StaffPosition, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	out := make([]domain.StaffPosition, 0, len(r.db.positions))
	for _, p := range r.db.positions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Index != out[j].Index {
			return out[i].Index < out[j].Index
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r staff) GetPosition(_ context.Context, id string) (*domain.StaffPosition, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	p, ok := r.db.positions[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &p, nil
}

func (r staff) LockPosition(ctx context.Context, id string) (*domain.StaffPosition, error) {
	return r.GetPosition(ctx, id)
}

func (r staff) CreatePosition(_ context.Context, pos *domain.StaffPosition) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	pos.CreatedAt = r.db.Now()
	r.db.positions[pos.ID] = *pos
	return nil
}

func (r staff) UpdatePosition(_ context.Context, pos *domain.StaffPosition) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.positions[pos.ID]; !ok {
		return pgx.ErrNoRows
	}
	r.db.positions[pos.ID] = *pos
	return nil
}

func (r staff) DeletePosition(_ context.Context, id string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.positions[id]; !ok {
		return pgx.ErrNoRows
	}
	delete(r.db.positions, id)
	for uid, m := range r.db.members {
		var kept []string
		for _, pid := range m.PositionIDs {
			if pid != id {
				kept = append(kept, pid)
			}
		}
		m.PositionIDs = kept
		r.db.members[uid] = m
	}
	return nil
}

func (r staff) ShiftIndexes(_ context.Context, from int) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for id, p := range r.db.positions {
		if p.Index >= from {
			p.Index++
			r.db.positions[id] = p
		}
	}
	return nil
}

func (r staff) GetMember(_ context.Context, userID string) (*domain.StaffMember, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	m, ok := r.db.members[userID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &m, nil
}

func (r staff) LockMember(ctx context.Context, userID string) (*domain.StaffMember, error) {
	return r.GetMember(ctx, userID)
}

func (r staff) ListMembers(_ context.Context) ([]domain.StaffMember, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	out := make([]domain.StaffMember, 0, len(r.db.members))
	for _, m := range r.db.members {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (r staff) UpsertMember(_ context.Context, member *domain.StaffMember) error {
	if err := r.db.fail("staff.upsert", member.UserID); err != nil {
		return err
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if existing, ok := r.db.members[member.UserID]; ok {
		member.CreatedAt = existing.CreatedAt
		member.PanelTokenHash = existing.PanelTokenHash
	} else {
		member.CreatedAt = r.db.Now()
	}
	r.db.members[member.UserID] = *member
	return nil
}

func (r staff) DeleteMember(_ context.Context, userID string) error {
	if err := r.db.fail("staff.delete", userID); err != nil {
		return err
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.members[userID]; !ok {
		return pgx.ErrNoRows
	}
	delete(r.db.members, userID)
	return nil
}

func (r staff) SetPanelTokenHash(_ context.Context, userID, hash string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	m, ok := r.db.members[userID]
	if !ok {
		return pgx.ErrNoRows
	}
	m.PanelTokenHash = &hash
	r.db.members[userID] = m
	return nil
}

type disciplinaries struct{ db *DB }

func (r disciplinaries) ListTypes(_ context.Context) ([]domain.StaffDisciplinaryType, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	out := make([]domain.StaffDisciplinaryType, 0, len(r.db.types))
	for _, t := range r.db.types {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r disciplinaries) GetType(_ context.Context, id string) (*domain.StaffDisciplinaryType, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	t, ok := r.db.types[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &t, nil
}

func (r disciplinaries) LockType(ctx context.Context, id string) (*domain.StaffDisciplinaryType, error) {
	return r.GetType(ctx, id)
}

func (r disciplinaries) CreateType(_ context.Context, t *domain.StaffDisciplinaryType) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	t.CreatedAt = r.db.Now()
	r.db.types[t.ID] = *t
	return nil
}

func (r disciplinaries) UpdateType(_ context.Context, t *domain.StaffDisciplinaryType) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.types[t.ID]; !ok {
		return pgx.ErrNoRows
	}
	r.db.types[t.ID] = *t
	return nil
}

func (r disciplinaries) ListForUser(_ context.Context, userID string) ([]domain.StaffDisciplinary, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []domain.StaffDisciplinary
	for _, d := range r.db.discs {
		if d.UserID == userID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r disciplinaries) Get(_ context.Context, id string) (*domain.StaffDisciplinary, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	d, ok := r.db.discs[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &d, nil
}

func (r disciplinaries) Create(_ context.Context, d *domain.StaffDisciplinary) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	d.CreatedAt = r.db.Now()
	r.db.discs[d.ID] = *d
	return nil
}

func (r disciplinaries) SetApprovedBy(_ context.Context, id, approver string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	d, ok := r.db.discs[id]
	if !ok {
		return pgx.ErrNoRows
	}
	d.ApprovedBy = &approver
	r.db.discs[id] = d
	return nil
}

func (r disciplinaries) SetExpiry(_ context.Context, id string, expiry time.Duration) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	d, ok := r.db.discs[id]
	if !ok {
		return pgx.ErrNoRows
	}
	d.Expiry = expiry
	r.db.discs[id] = d
	return nil
}

type bots struct{ db *DB }

func (r bots) GetByID(_ context.Context, botID string) (*domain.BotReviewRecord, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	b, ok := r.db.bots[botID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &b, nil
}

func (r bots) LockByID(ctx context.Context, botID string) (*domain.BotReviewRecord, error) {
	return r.GetByID(ctx, botID)
}

func (r bots) Update(_ context.Context, bot *domain.BotReviewRecord) error {
	if err := bot.Validate(); err != nil {
		return err
	}
	if err := r.db.fail("bots.update", bot.BotID); err != nil {
		return err
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.bots[bot.BotID]; !ok {
		return pgx.ErrNoRows
	}
	bot.UpdatedAt = r.db.Now()
	r.db.bots[bot.BotID] = *bot
	return nil
}

func (r bots) Delete(_ context.Context, botID string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.bots[botID]; !ok {
		return pgx.ErrNoRows
	}
	delete(r.db.bots, botID)
	return nil
}

func (r bots) ListQueue(_ context.Context) ([]domain.BotReviewRecord, error) {
	return r.filter(func(b domain.BotReviewRecord) bool {
		return b.Type == domain.BotTypePending || b.Type == domain.BotTypeClaimed
	}), nil
}

func (r bots) ListStaleClaims(_ context.Context, claimedBefore time.Time) ([]domain.BotReviewRecord, error) {
	return r.filter(func(b domain.BotReviewRecord) bool {
		return b.ClaimedBy != nil && b.LastClaimed != nil && b.LastClaimed.Before(claimedBefore)
	}), nil
}

func (r bots) ReleaseStaleClaim(_ context.Context, botID string, claimedBefore time.Time) (bool, error) {
	if err := r.db.fail("bots.release", botID); err != nil {
		return false, err
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	b, ok := r.db.bots[botID]
	if !ok || b.ClaimedBy == nil || b.LastClaimed == nil || !b.LastClaimed.Before(claimedBefore) {
		return false, nil
	}
	b.Release(domain.BotTypePending)
	b.UpdatedAt = r.db.Now()
	r.db.bots[botID] = b
	return true, nil
}

func (r bots) filter(keep func(domain.BotReviewRecord) bool) []domain.BotReviewRecord {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []domain.BotReviewRecord
	for _, b := range r.db.bots {
		if keep(b) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BotID < out[j].BotID })
	return out
}

type teams struct{ db *DB }

func (r teams) GetByID(_ context.Context, id string) (*domain.Team, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	t, ok := r.db.teams[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &t, nil
}

func (r teams) UpdateName(_ context.Context, id, name string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	t, ok := r.db.teams[id]
	if !ok {
		return pgx.ErrNoRows
	}
	t.Name = name
	r.db.teams[id] = t
	return nil
}

func (r teams) ListMembers(_ context.Context, teamID string) ([]domain.TeamMember, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	return append([]domain.TeamMember(nil), r.db.teamMembers[teamID]...), nil
}

func (r teams) ListOrphaned(_ context.Context) ([]domain.Team, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []domain.Team
	for id, t := range r.db.teams {
		if r.orphaned(id) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r teams) DeleteIfOrphaned(_ context.Context, id string) (bool, error) {
	if err := r.db.fail("teams.delete", id); err != nil {
		return false, err
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.teams[id]; !ok || !r.orphaned(id) {
		return false, nil
	}
	delete(r.db.teams, id)
	delete(r.db.teamMembers, id)
	return true, nil
}

// orphaned must be called with mu held.
func (r teams) orphaned(id string) bool {
	if len(r.db.teamMembers[id]) > 0 {
		return false
	}
	for _, b := range r.db.bots {
		if b.TeamOwner != nil && *b.TeamOwner == id {
			return false
		}
	}
	return true
}

type rpcLogs struct{ db *DB }

func (r rpcLogs) Create(_ context.Context, entry *domain.RPCLogEntry) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	entry.CreatedAt = r.db.Now()
	r.db.rpcLogs[entry.ID] = *entry
	r.db.rpcOrder = append(r.db.rpcOrder, entry.ID)
	return nil
}

func (r rpcLogs) UpdateState(_ context.Context, id, state string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	e, ok := r.db.rpcLogs[id]
	if !ok {
		return pgx.ErrNoRows
	}
	e.State = state
	r.db.rpcLogs[id] = e
	return nil
}
