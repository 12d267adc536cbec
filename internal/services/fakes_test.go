package services

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"social-go/internal/changefeed"
	"social-go/internal/kafka"
	"social-go/internal/models"
	"social-go/internal/storage"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// memStore is an in-memory relationship store shared by all fake repositories.
type memStore struct {
	mu          sync.Mutex
	seq         int
	profiles    map[string]models.Profile
	blocks      []models.Block
	friendships []models.Friendship
	likes       []models.Like
	visits      []models.Visit
	messages    []models.Message
	fail        map[string]error
}

func newMemStore() *memStore {
	return &memStore{profiles: map[string]models.Profile{}, fail: map[string]error{}}
}

func (s *memStore) repos() storage.Repositories {
	return storage.Repositories{
		Profiles:    memProfiles{s},
		Blocks:      memBlocks{s},
		Friendships: memFriendships{s},
		Likes:       memLikes{s},
		Visits:      memVisits{s},
		Messages:    memMessages{s},
	}
}

// InTx restores the previous contents when fn fails.
func (s *memStore) InTx(ctx context.Context, fn func(repos storage.Repositories) error) error {
	s.mu.Lock()
	saved := memStore{
		seq:         s.seq,
		profiles:    make(map[string]models.Profile, len(s.profiles)),
		blocks:      slices.Clone(s.blocks),
		friendships: slices.Clone(s.friendships),
		likes:       slices.Clone(s.likes),
		visits:      slices.Clone(s.visits),
		messages:    slices.Clone(s.messages),
	}
	for k, v := range s.profiles {
		saved.profiles[k] = v
	}
	s.mu.Unlock()

	err := fn(s.repos())
	if err != nil {
		s.mu.Lock()
		s.seq, s.profiles, s.blocks = saved.seq, saved.profiles, saved.blocks
		s.friendships, s.likes, s.visits, s.messages = saved.friendships, saved.likes, saved.visits, saved.messages
		s.mu.Unlock()
	}
	return err
}

// next must be called with mu held.
func (s *memStore) next() (string, time.Time) {
	s.seq++
	return fmt.Sprintf("row-%04d", s.seq), baseTime.Add(time.Duration(s.seq) * time.Second)
}

func (s *memStore) failing(op string) error {
	return s.fail[op]
}

func (s *memStore) addProfile(id, username string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, at := s.next()
	s.profiles[id] = models.Profile{ID: id, Username: username, CreatedAt: at, UpdatedAt: at}
}

func (s *memStore) addBlock(blocker, blocked string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, at := s.next()
	s.blocks = append(s.blocks, models.Block{BaseModel: models.BaseModel{ID: id, CreatedAt: at}, BlockerID: blocker, BlockedID: blocked})
}

func (s *memStore) addFriendship(sender, receiver string, status models.FriendshipStatus) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, at := s.next()
	f := models.Friendship{BaseModel: models.BaseModel{ID: id, CreatedAt: at, UpdatedAt: at}, SenderID: sender, ReceiverID: receiver, Status: status}
	f.EnsureCanonicalOrder()
	s.friendships = append(s.friendships, f)
	return id
}

func (s *memStore) addLike(liker, liked string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, at := s.next()
	s.likes = append(s.likes, models.Like{BaseModel: models.BaseModel{ID: id, CreatedAt: at}, LikerID: liker, LikedID: liked})
}

func (s *memStore) addVisit(visitor, viewed string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, at := s.next()
	s.visits = append(s.visits, models.Visit{BaseModel: models.BaseModel{ID: id, CreatedAt: at}, VisitorID: visitor, ViewedID: viewed, VisitDate: at.Format(models.VisitDateLayout), VisitedAt: at})
}

func (s *memStore) addMessage(sender, receiver, content string, read bool) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, at := s.next()
	s.messages = append(s.messages, models.Message{BaseModel: models.BaseModel{ID: id, CreatedAt: at}, SenderID: sender, ReceiverID: receiver, Content: content, IsRead: read})
	return id
}

func (s *memStore) count(table string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch table {
	case "blocks":
		return len(s.blocks)
	case "friendships":
		return len(s.friendships)
	case "likes":
		return len(s.likes)
	case "visits":
		return len(s.visits)
	case "messages":
		return len(s.messages)
	case "profiles":
		return len(s.profiles)
	}
	panic("unknown table " + table)
}

func (s *memStore) message(id string) models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.messages {
		if m.ID == id {
			return m
		}
	}
	return models.Message{}
}

func (s *memStore) friendshipsBetween(a, b string) []models.Friendship {
	s.mu.Lock()
	defer s.mu.Unlock()
	low, high := models.OrderedPair(a, b)
	var out []models.Friendship
	for _, f := range s.friendships {
		if f.UserLow == low && f.UserHigh == high {
			out = append(out, f)
		}
	}
	return out
}

func (s *memStore) blockedEither(a, b string) bool {
	for _, bl := range s.blocks {
		if (bl.BlockerID == a && bl.BlockedID == b) || (bl.BlockerID == b && bl.BlockedID == a) {
			return true
		}
	}
	return false
}

type memProfiles struct{ s *memStore }

func (r memProfiles) GetByID(ctx context.Context, id string) (*models.Profile, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failing("profiles.get"); err != nil {
		return nil, err
	}
	p, ok := r.s.profiles[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (r memProfiles) GetByIDs(ctx context.Context, ids []string) ([]models.Profile, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []models.Profile{}
	for _, id := range ids {
		if p, ok := r.s.profiles[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r memProfiles) EnsureExists(ctx context.Context, id string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failing("profiles.ensure"); err != nil {
		return false, err
	}
	if _, ok := r.s.profiles[id]; ok {
		return false, nil
	}
	_, at := r.s.next()
	r.s.profiles[id] = models.Profile{ID: id, CreatedAt: at, UpdatedAt: at}
	return true, nil
}

func (r memProfiles) Save(ctx context.Context, profile *models.Profile) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if profile.CreatedAt.IsZero() {
		_, profile.CreatedAt = r.s.next()
	}
	r.s.profiles[profile.ID] = *profile
	return nil
}

func (r memProfiles) ListRecent(ctx context.Context, excludeID string, limit int) ([]models.Profile, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.Profile
	for _, p := range r.s.profiles {
		if p.ID != excludeID {
			out = append(out, p)
		}
	}
	slices.SortFunc(out, func(a, b models.Profile) int { return b.CreatedAt.Compare(a.CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type memBlocks struct{ s *memStore }

func (r memBlocks) Exists(ctx context.Context, blockerID, blockedID string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failing("blocks.exists"); err != nil {
		return false, err
	}
	for _, b := range r.s.blocks {
		if b.BlockerID == blockerID && b.BlockedID == blockedID {
			return true, nil
		}
	}
	return false, nil
}

func (r memBlocks) ListTouching(ctx context.Context, userID string) ([]models.Block, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failing("blocks.list"); err != nil {
		return nil, err
	}
	var out []models.Block
	for _, b := range r.s.blocks {
		if b.BlockerID == userID || b.BlockedID == userID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (r memBlocks) ListByBlocker(ctx context.Context, blockerID string) ([]models.Block, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.Block
	for _, b := range r.s.blocks {
		if b.BlockerID == blockerID {
			out = append(out, b)
		}
	}
	slices.SortFunc(out, func(a, b models.Block) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return out, nil
}

func (r memBlocks) Create(ctx context.Context, block *models.Block) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failing("blocks.create"); err != nil {
		return err
	}
	for _, b := range r.s.blocks {
		if b.BlockerID == block.BlockerID && b.BlockedID == block.BlockedID {
			return fmt.Errorf("insert block: %w", storage.ErrConflict)
		}
	}
	block.ID, block.CreatedAt = r.s.next()
	r.s.blocks = append(r.s.blocks, *block)
	return nil
}

func (r memBlocks) Delete(ctx context.Context, blockerID, blockedID string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	before := len(r.s.blocks)
	r.s.blocks = slices.DeleteFunc(r.s.blocks, func(b models.Block) bool {
		return b.BlockerID == blockerID && b.BlockedID == blockedID
	})
	return int64(before - len(r.s.blocks)), nil
}

type memFriendships struct{ s *memStore }

func (r memFriendships) Create(ctx context.Context, f *models.Friendship) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	f.EnsureCanonicalOrder()
	for _, existing := range r.s.friendships {
		if existing.UserLow == f.UserLow && existing.UserHigh == f.UserHigh {
			return fmt.Errorf("insert friendship: %w", storage.ErrConflict)
		}
	}
	f.ID, f.CreatedAt = r.s.next()
	f.UpdatedAt = f.CreatedAt
	r.s.friendships = append(r.s.friendships, *f)
	return nil
}

func (r memFriendships) FindBetween(ctx context.Context, a, b string) (*models.Friendship, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	low, high := models.OrderedPair(a, b)
	for _, f := range r.s.friendships {
		if f.UserLow == low && f.UserHigh == high {
			return &f, nil
		}
	}
	return nil, nil
}

func (r memFriendships) GetByID(ctx context.Context, id string) (*models.Friendship, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, f := range r.s.friendships {
		if f.ID == id {
			return &f, nil
		}
	}
	return nil, nil
}

func (r memFriendships) UpdateStatus(ctx context.Context, id string, status models.FriendshipStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i := range r.s.friendships {
		if r.s.friendships[i].ID == id {
			r.s.friendships[i].Status = status
		}
	}
	return nil
}

func (r memFriendships) DeleteByID(ctx context.Context, id string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	before := len(r.s.friendships)
	r.s.friendships = slices.DeleteFunc(r.s.friendships, func(f models.Friendship) bool { return f.ID == id })
	return int64(before - len(r.s.friendships)), nil
}

func (r memFriendships) DeleteBetween(ctx context.Context, a, b string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failing("friendships.delete"); err != nil {
		return 0, err
	}
	low, high := models.OrderedPair(a, b)
	before := len(r.s.friendships)
	r.s.friendships = slices.DeleteFunc(r.s.friendships, func(f models.Friendship) bool {
		return f.UserLow == low && f.UserHigh == high
	})
	return int64(before - len(r.s.friendships)), nil
}

func (r memFriendships) ListAccepted(ctx context.Context, userID string) ([]models.Friendship, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.Friendship
	for _, f := range r.s.friendships {
		if (f.SenderID == userID || f.ReceiverID == userID) && f.Status == models.FriendshipStatusAccepted {
			out = append(out, f)
		}
	}
	return out, nil
}

func (r memFriendships) ListPendingFor(ctx context.Context, receiverID string) ([]models.Friendship, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.Friendship
	for _, f := range r.s.friendships {
		if f.ReceiverID == receiverID && f.Status == models.FriendshipStatusPending {
			out = append(out, f)
		}
	}
	return out, nil
}

func (r memFriendships) DeleteBlockedPairs(ctx context.Context) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	before := len(r.s.friendships)
	r.s.friendships = slices.DeleteFunc(r.s.friendships, func(f models.Friendship) bool {
		return r.s.blockedEither(f.SenderID, f.ReceiverID)
	})
	return int64(before - len(r.s.friendships)), nil
}

type memLikes struct{ s *memStore }

func (r memLikes) Create(ctx context.Context, like *models.Like) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, l := range r.s.likes {
		if l.LikerID == like.LikerID && l.LikedID == like.LikedID {
			return fmt.Errorf("insert like: %w", storage.ErrConflict)
		}
	}
	like.ID, like.CreatedAt = r.s.next()
	r.s.likes = append(r.s.likes, *like)
	return nil
}

func (r memLikes) Delete(ctx context.Context, likerID, likedID string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	before := len(r.s.likes)
	r.s.likes = slices.DeleteFunc(r.s.likes, func(l models.Like) bool { return l.LikerID == likerID && l.LikedID == likedID })
	return int64(before - len(r.s.likes)), nil
}

func (r memLikes) Exists(ctx context.Context, likerID, likedID string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, l := range r.s.likes {
		if l.LikerID == likerID && l.LikedID == likedID {
			return true, nil
		}
	}
	return false, nil
}

func (r memLikes) ListByLiked(ctx context.Context, likedID string) ([]models.Like, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.Like
	for _, l := range r.s.likes {
		if l.LikedID == likedID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (r memLikes) CountByLiked(ctx context.Context, likedIDs []string) (map[string]int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	counts := map[string]int64{}
	for _, l := range r.s.likes {
		if slices.Contains(likedIDs, l.LikedID) {
			counts[l.LikedID]++
		}
	}
	return counts, nil
}

func (r memLikes) LikedAmong(ctx context.Context, likerID string, candidates []string) (map[string]bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	liked := map[string]bool{}
	for _, l := range r.s.likes {
		if l.LikerID == likerID && slices.Contains(candidates, l.LikedID) {
			liked[l.LikedID] = true
		}
	}
	return liked, nil
}

func (r memLikes) DeleteBlockedPairs(ctx context.Context) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	before := len(r.s.likes)
	r.s.likes = slices.DeleteFunc(r.s.likes, func(l models.Like) bool { return r.s.blockedEither(l.LikerID, l.LikedID) })
	return int64(before - len(r.s.likes)), nil
}

type memVisits struct{ s *memStore }

func (r memVisits) Create(ctx context.Context, visit *models.Visit) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, v := range r.s.visits {
		if v.VisitorID == visit.VisitorID && v.ViewedID == visit.ViewedID && v.VisitDate == visit.VisitDate {
			return fmt.Errorf("insert visit: %w", storage.ErrConflict)
		}
	}
	visit.ID, visit.CreatedAt = r.s.next()
	r.s.visits = append(r.s.visits, *visit)
	return nil
}

func (r memVisits) ListByViewed(ctx context.Context, viewedID string, limit int) ([]models.Visit, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.Visit
	for _, v := range r.s.visits {
		if v.ViewedID == viewedID {
			out = append(out, v)
		}
	}
	slices.SortFunc(out, func(a, b models.Visit) int { return b.VisitedAt.Compare(a.VisitedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type memMessages struct{ s *memStore }

func (r memMessages) Create(ctx context.Context, m *models.Message) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failing("messages.create"); err != nil {
		return err
	}
	m.ID, m.CreatedAt = r.s.next()
	r.s.messages = append(r.s.messages, *m)
	return nil
}

func (r memMessages) ListBetween(ctx context.Context, a, b string, since *time.Time) ([]models.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.Message
	for _, m := range r.s.messages {
		if m.Involves(a, b) && (since == nil || !m.CreatedAt.Before(*since)) {
			out = append(out, m)
		}
	}
	slices.SortStableFunc(out, func(x, y models.Message) int { return x.CreatedAt.Compare(y.CreatedAt) })
	return out, nil
}

func (r memMessages) MarkRead(ctx context.Context, receiverID string, ids []string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for i := range r.s.messages {
		m := &r.s.messages[i]
		if m.ReceiverID == receiverID && !m.IsRead && slices.Contains(ids, m.ID) {
			m.IsRead = true
			n++
		}
	}
	return n, nil
}

func (r memMessages) ListUnreadByIDs(ctx context.Context, receiverID string, ids []string) ([]models.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.Message
	for _, m := range r.s.messages {
		if m.ReceiverID == receiverID && !m.IsRead && slices.Contains(ids, m.ID) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r memMessages) LatestPerPartner(ctx context.Context, userID string) ([]models.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	latest := map[string]models.Message{}
	for _, m := range r.s.messages {
		var partner string
		switch userID {
		case m.SenderID:
			partner = m.ReceiverID
		case m.ReceiverID:
			partner = m.SenderID
		default:
			continue
		}
		if cur, ok := latest[partner]; !ok || m.CreatedAt.After(cur.CreatedAt) {
			latest[partner] = m
		}
	}
	out := make([]models.Message, 0, len(latest))
	for _, m := range latest {
		out = append(out, m)
	}
	slices.SortFunc(out, func(a, b models.Message) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (r memMessages) UnreadCountsBySender(ctx context.Context, receiverID string) (map[string]int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	counts := map[string]int64{}
	for _, m := range r.s.messages {
		if m.ReceiverID == receiverID && !m.IsRead {
			counts[m.SenderID]++
		}
	}
	return counts, nil
}

// recordingFeed captures published change events.
type recordingFeed struct {
	mu     sync.Mutex
	events []changefeed.Event
	err    error
}

func (f *recordingFeed) Publish(ctx context.Context, ev changefeed.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, ev)
	return nil
}

// recordingBlockEvents captures published block events.
type recordingBlockEvents struct {
	mu     sync.Mutex
	events []kafka.BlockChanged
}

func (p *recordingBlockEvents) PublishBlockChanged(ctx context.Context, ev kafka.BlockChanged) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

// fixture wires every service over one memStore.
type fixture struct {
	store       *memStore
	feed        *recordingFeed
	blockEvents *recordingBlockEvents
	oracle      BlockOracle
	filter      *VisibilityFilter
	guard       InteractionGuard
	blocks      BlockService
	profiles    ProfileService
	friends     FriendshipService
	messages    MessageService
	counts      CountsService
}

func newFixture(users ...string) *fixture {
	store := newMemStore()
	for _, u := range users {
		store.addProfile(u, "user "+u)
	}
	repos := store.repos()
	f := &fixture{store: store, feed: &recordingFeed{}, blockEvents: &recordingBlockEvents{}}
	f.oracle = NewBlockOracle(repos.Blocks)
	f.filter = NewVisibilityFilter(repos.Blocks, nil)
	f.guard = NewInteractionGuard(f.oracle, repos, f.feed, nil)
	f.blocks = NewBlockService(repos, store, f.blockEvents, nil)
	f.profiles = NewProfileService(repos, f.oracle, f.filter, configForTests())
	f.friends = NewFriendshipService(repos, f.guard, f.oracle, f.filter)
	f.messages = NewMessageService(repos, f.guard, f.oracle, f.filter)
	f.counts = NewCountsService(repos, f.filter)
	return f
}
