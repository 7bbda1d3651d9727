package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/justestif/go-moodify/internal/auth"
	"github.com/justestif/go-moodify/internal/completion"
	"github.com/justestif/go-moodify/internal/mood"
	"github.com/justestif/go-moodify/internal/playlist"
	"github.com/justestif/go-moodify/internal/resolver"
	"github.com/justestif/go-moodify/internal/spotify"
	"github.com/justestif/go-moodify/internal/store"
)

var relaxedAnswers = []mood.Response{
	{Question: "How was your day?", Answer: "Slow and easy"},
	{Question: "What are you up to tonight?", Answer: "Tea and a book"},
	{Question: "How much energy do you have?", Answer: "Not much, feeling calm"},
}

type stubTokens struct {
	err   error
	calls atomic.Int32
}

func (s *stubTokens) EnsureValidToken(context.Context) (*auth.AuthToken, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return &auth.AuthToken{AccessToken: "tok", ExpiresAt: time.Now().Add(time.Hour)}, nil
}

// scriptedCompleter answers each kind of prompt with canned text.
type scriptedCompleter struct {
	classify string
	title    string
	suggest  string
}

func (s *scriptedCompleter) Complete(_ context.Context, msgs []completion.Message, _ int) (string, error) {
	user := msgs[len(msgs)-1].Content
	switch {
	case strings.Contains(user, "overall mood"):
		return s.classify, nil
	case strings.Contains(user, "playlist title"):
		return s.title, nil
	default:
		return s.suggest, nil
	}
}

// fakeSpotify implements playlist.API and resolver.Catalog.
type fakeSpotify struct {
	mu        sync.Mutex
	catalog   map[string]string // "title|artist" -> id
	playlists map[string]string // id -> name
	tracks    map[string][]string
}

func newFakeSpotify() *fakeSpotify {
	return &fakeSpotify{
		catalog: map[string]string{
			"Weightless|Marconi Union":   "t1",
			"Holocene|Bon Iver":          "t2",
			"Sunset Lover|Petit Biscuit": "t3",
		},
		playlists: make(map[string]string),
		tracks:    make(map[string][]string),
	}
}

func (f *fakeSpotify) UserID(context.Context) (string, error) { return "user-1", nil }

func (f *fakeSpotify) CreatePlaylist(_ context.Context, _, name, _ string, _ bool) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := fmt.Sprintf("pl-%d", len(f.playlists)+1)
	f.playlists[id] = name
	return id, nil
}

func (f *fakeSpotify) AddTracks(_ context.Context, id string, ids []string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tracks[id] = append(f.tracks[id], ids...)
	return "snap", nil
}

func (f *fakeSpotify) UnfollowPlaylist(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.playlists, id)
	return nil
}

func (f *fakeSpotify) UserPlaylists(context.Context, int) ([]spotify.PlaylistSummary, error) {
	return nil, nil
}

func (f *fakeSpotify) SearchTrack(_ context.Context, title, artist string) (spotify.Track, bool, error) {
	id, ok := f.catalog[title+"|"+artist]
	if !ok {
		return spotify.Track{}, false, nil
	}
	return spotify.Track{ID: id, Name: title, Artist: artist}, true, nil
}

func (f *fakeSpotify) LikedTrackIDs(context.Context, int) ([]string, error) {
	return []string{"t2", "liked-1"}, nil
}

func TestRun_RelaxedEndToEnd(t *testing.T) {
	completer := &scriptedCompleter{
		classify: "Based on these answers, the user seems Relaxed.",
		title:    `"Calm Evening Breeze"`,
		suggest: "1. Weightless by Marconi Union\n" +
			"2. Holocene by Bon Iver\n" +
			"3. Made Up Song by Nobody\n" +
			"4. Sunset Lover - Petit Biscuit\n",
	}
	sp := newFakeSpotify()
	gateway := store.NewMemory()
	tokens := &stubTokens{}

	o := New(tokens,
		mood.NewClassifier(completer, nil),
		playlist.New(sp, nil),
		resolver.New(sp),
		gateway,
		WithMinInterval(0),
		WithIncludeLiked(true),
	)

	result, err := o.Run(context.Background(), "session-1", relaxedAnswers)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if result.Mood != mood.Relaxed {
		t.Errorf("Mood = %q, want Relaxed", result.Mood)
	}
	words := len(strings.Fields(result.Title))
	if words < 2 || words > 4 {
		t.Errorf("Title = %q has %d words, want 2 to 4", result.Title, words)
	}
	if utf8.RuneCountInString(sp.playlists[result.PlaylistID]) > playlist.MaxTitleLength {
		t.Errorf("playlist name longer than %d characters", playlist.MaxTitleLength)
	}
	if result.TrackCount < 1 {
		t.Errorf("TrackCount = %d, want >= 1", result.TrackCount)
	}

	// Resolved t1, t2, t3 then liked t2 (duplicate) and liked-1.
	added := sp.tracks[result.PlaylistID]
	want := []string{"t1", "t2", "t3", "liked-1"}
	if strings.Join(added, ",") != strings.Join(want, ",") {
		t.Errorf("added tracks = %v, want %v", added, want)
	}
	if result.TrackCount != len(want) {
		t.Errorf("TrackCount = %d, want %d", result.TrackCount, len(want))
	}

	selections := gateway.Selections()
	if len(selections) != 1 {
		t.Fatalf("stored %d selections, want 1", len(selections))
	}
	if selections[0].Mood != mood.Relaxed || selections[0].PlaylistID != result.PlaylistID {
		t.Errorf("selection = %+v", selections[0])
	}
	if selections[0].UserID != "user-1" {
		t.Errorf("selection user = %q, want user-1", selections[0].UserID)
	}

	if got := tokens.calls.Load(); got != 3 {
		t.Errorf("EnsureValidToken calls = %d, want 3 (one per provider stage)", got)
	}
}

// stub implementations for stage-level tests

type stubClassifier struct {
	mood        mood.Mood
	title       string
	suggestions []mood.Suggestion
	classifyErr error
	titleErr    error
	suggestErr  error

	classifyCalls atomic.Int32
	gate          chan struct{}
	entered       chan struct{}
	seen          []mood.Response
}

func newStubClassifier() *stubClassifier {
	return &stubClassifier{
		mood:        mood.Happy,
		title:       "Sunny Side Up",
		suggestions: []mood.Suggestion{{Title: "Happy", Artist: "Pharrell Williams"}},
	}
}

func (s *stubClassifier) Classify(ctx context.Context, responses []mood.Response) (mood.Mood, error) {
	s.classifyCalls.Add(1)
	s.seen = responses
	if s.entered != nil {
		s.entered <- struct{}{}
	}
	if s.gate != nil {
		<-s.gate
	}
	return s.mood, s.classifyErr
}

func (s *stubClassifier) GenerateTitle(context.Context, mood.Mood) (string, error) {
	return s.title, s.titleErr
}

func (s *stubClassifier) SuggestTracks(context.Context, mood.Mood, int) ([]mood.Suggestion, error) {
	return s.suggestions, s.suggestErr
}

type stubPlaylists struct {
	mu        sync.Mutex
	ownerErr  error
	createErr error
	addErr    error
	created   int
	added     [][]string
	discarded []string

	afterCreate func()
}

func (s *stubPlaylists) OwnerID(context.Context) (string, error) { return "user-1", s.ownerErr }

func (s *stubPlaylists) CreatePlaylist(context.Context, string, string, string) (string, error) {
	s.mu.Lock()
	if s.createErr != nil {
		s.mu.Unlock()
		return "", s.createErr
	}
	s.created++
	id := fmt.Sprintf("pl-%d", s.created)
	s.mu.Unlock()

	if s.afterCreate != nil {
		s.afterCreate()
	}
	return id, nil
}

func (s *stubPlaylists) AddTracks(_ context.Context, _ string, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.addErr != nil {
		return s.addErr
	}
	s.added = append(s.added, ids)
	return nil
}

func (s *stubPlaylists) Discard(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.discarded = append(s.discarded, id)
	return nil
}

type stubTracks struct {
	ids   []string
	err   error
	liked []string
}

func (s *stubTracks) ResolveTracks(context.Context, []mood.Suggestion) ([]string, error) {
	return s.ids, s.err
}

func (s *stubTracks) FetchLikedTrackIDs(context.Context) []string { return s.liked }

type fixture struct {
	tokens     *stubTokens
	classifier *stubClassifier
	playlists  *stubPlaylists
	tracks     *stubTracks
	store      *store.Memory
}

func newFixture() *fixture {
	return &fixture{
		tokens:     &stubTokens{},
		classifier: newStubClassifier(),
		playlists:  &stubPlaylists{},
		tracks:     &stubTracks{ids: []string{"a", "b"}},
		store:      store.NewMemory(),
	}
}

func (f *fixture) orchestrator(opts ...Option) *Orchestrator {
	opts = append([]Option{WithMinInterval(0)}, opts...)
	return New(f.tokens, f.classifier, f.playlists, f.tracks, f.store, opts...)
}

func TestRun_StageErrors(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name         string
		setup        func(*fixture)
		wantStage    Stage
		wantPlaylist string
		wantErr      error
	}{
		{
			name:      "no mood",
			setup:     func(f *fixture) { f.classifier.classifyErr = mood.ErrNoMoodDetected },
			wantStage: StageClassifying,
			wantErr:   mood.ErrNoMoodDetected,
		},
		{
			name:      "title failure",
			setup:     func(f *fixture) { f.classifier.titleErr = boom },
			wantStage: StageTitlingMood,
			wantErr:   boom,
		},
		{
			name:      "auth failure before creating",
			setup:     func(f *fixture) { f.tokens.err = auth.ErrNoRefreshToken },
			wantStage: StageCreatingPlaylist,
			wantErr:   auth.ErrNoRefreshToken,
		},
		{
			name:      "profile failure",
			setup:     func(f *fixture) { f.playlists.ownerErr = playlist.ErrProfileFailed },
			wantStage: StageCreatingPlaylist,
			wantErr:   playlist.ErrProfileFailed,
		},
		{
			name:      "create failure",
			setup:     func(f *fixture) { f.playlists.createErr = playlist.ErrCreateFailed },
			wantStage: StageCreatingPlaylist,
			wantErr:   playlist.ErrCreateFailed,
		},
		{
			name:         "suggestion failure",
			setup:        func(f *fixture) { f.classifier.suggestErr = mood.ErrDecodingFailed },
			wantStage:    StageResolvingTracks,
			wantPlaylist: "pl-1",
			wantErr:      mood.ErrDecodingFailed,
		},
		{
			name:         "no matches",
			setup:        func(f *fixture) { f.tracks.err = resolver.ErrNoMatches },
			wantStage:    StageResolvingTracks,
			wantPlaylist: "pl-1",
			wantErr:      resolver.ErrNoMatches,
		},
		{
			name:         "add failure",
			setup:        func(f *fixture) { f.playlists.addErr = playlist.ErrTrackAdditionFailed },
			wantStage:    StageAddingTracks,
			wantPlaylist: "pl-1",
			wantErr:      playlist.ErrTrackAdditionFailed,
		},
		{
			name:         "persist failure",
			setup:        func(f *fixture) { f.store.FailWrites = boom },
			wantStage:    StagePersisting,
			wantPlaylist: "pl-1",
			wantErr:      store.ErrWriteFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			tt.setup(f)

			result, err := f.orchestrator().Run(context.Background(), "s", relaxedAnswers)
			if result != nil {
				t.Errorf("result = %+v, want nil", result)
			}
			se, ok := AsStageError(err)
			if !ok {
				t.Fatalf("Run() error = %v, want *StageError", err)
			}
			if se.Stage != tt.wantStage {
				t.Errorf("Stage = %q, want %q", se.Stage, tt.wantStage)
			}
			if se.PlaylistID != tt.wantPlaylist {
				t.Errorf("PlaylistID = %q, want %q", se.PlaylistID, tt.wantPlaylist)
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("errors.Is(%v, %v) = false", err, tt.wantErr)
			}
			if len(f.store.Selections()) != 0 {
				t.Error("selection persisted for a failed run")
			}
		})
	}
}

func TestRun_NoPlaylistBeforeClassification(t *testing.T) {
	f := newFixture()
	f.classifier.classifyErr = mood.ErrNoMoodDetected

	f.orchestrator().Run(context.Background(), "s", relaxedAnswers)

	if f.playlists.created != 0 {
		t.Errorf("playlists created = %d, want 0", f.playlists.created)
	}
	if f.tokens.calls.Load() != 0 {
		t.Errorf("token checks = %d, want 0", f.tokens.calls.Load())
	}
}

func TestRun_Cleanup(t *testing.T) {
	tests := []struct {
		name          string
		policy        CleanupPolicy
		setup         func(*fixture)
		wantDiscarded int
	}{
		{
			name:          "none keeps playlist",
			policy:        CleanupNone,
			setup:         func(f *fixture) { f.playlists.addErr = errors.New("500") },
			wantDiscarded: 0,
		},
		{
			name:          "discard after add failure",
			policy:        CleanupDiscard,
			setup:         func(f *fixture) { f.playlists.addErr = errors.New("500") },
			wantDiscarded: 1,
		},
		{
			name:          "discard after resolve failure",
			policy:        CleanupDiscard,
			setup:         func(f *fixture) { f.tracks.err = resolver.ErrNoMatches },
			wantDiscarded: 1,
		},
		{
			name:          "nothing to discard before creation",
			policy:        CleanupDiscard,
			setup:         func(f *fixture) { f.classifier.titleErr = errors.New("x") },
			wantDiscarded: 0,
		},
		{
			name:          "filled playlist kept when persisting fails",
			policy:        CleanupDiscard,
			setup:         func(f *fixture) { f.store.FailWrites = errors.New("x") },
			wantDiscarded: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			tt.setup(f)

			_, err := f.orchestrator(WithCleanup(tt.policy)).Run(context.Background(), "s", relaxedAnswers)
			if err == nil {
				t.Fatal("Run() error = nil, want failure")
			}
			if len(f.playlists.discarded) != tt.wantDiscarded {
				t.Errorf("discarded = %v, want %d", f.playlists.discarded, tt.wantDiscarded)
			}
		})
	}
}

func TestRun_TrackCap(t *testing.T) {
	f := newFixture()
	f.tracks.ids = make([]string, 80)
	for i := range f.tracks.ids {
		f.tracks.ids[i] = fmt.Sprintf("r%d", i)
	}
	f.tracks.liked = make([]string, 40)
	for i := range f.tracks.liked {
		f.tracks.liked[i] = fmt.Sprintf("l%d", i)
	}

	result, err := f.orchestrator(WithIncludeLiked(true)).Run(context.Background(), "s", relaxedAnswers)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.TrackCount != playlist.MaxTracks {
		t.Errorf("TrackCount = %d, want %d", result.TrackCount, playlist.MaxTracks)
	}
	if len(f.playlists.added) != 1 || len(f.playlists.added[0]) != playlist.MaxTracks {
		t.Errorf("add requests = %d", len(f.playlists.added))
	}
}

func TestRun_InvalidResponses(t *testing.T) {
	f := newFixture()

	_, err := f.orchestrator().Run(context.Background(), "s", nil)
	if !errors.Is(err, mood.ErrIncompleteResponses) {
		t.Errorf("Run(nil) error = %v, want ErrIncompleteResponses", err)
	}
	if f.classifier.classifyCalls.Load() != 0 {
		t.Error("classifier called for an empty submission")
	}
}

func TestRun_Cancelled(t *testing.T) {
	f := newFixture()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.orchestrator().Run(ctx, "s", relaxedAnswers)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
	if f.playlists.created != 0 {
		t.Errorf("playlists created = %d after cancellation", f.playlists.created)
	}
}

func TestRun_CancelledAfterCreateReportsPlaylist(t *testing.T) {
	for _, policy := range []CleanupPolicy{CleanupNone, CleanupDiscard} {
		t.Run(fmt.Sprint(policy), func(t *testing.T) {
			f := newFixture()
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			f.playlists.afterCreate = cancel

			_, err := f.orchestrator(WithCleanup(policy)).Run(ctx, "s", relaxedAnswers)
			if !errors.Is(err, context.Canceled) {
				t.Fatalf("Run() error = %v, want context.Canceled", err)
			}
			se, ok := AsStageError(err)
			if !ok {
				t.Fatalf("Run() error = %T, want *StageError", err)
			}
			if se.PlaylistID != "pl-1" {
				t.Errorf("PlaylistID = %q, want pl-1", se.PlaylistID)
			}
			if se.Stage != StageCreatingPlaylist && se.Stage != StageResolvingTracks {
				t.Errorf("Stage = %q, want a stage after the playlist was created", se.Stage)
			}
			if len(f.playlists.added) != 0 {
				t.Errorf("tracks added after cancellation: %v", f.playlists.added)
			}
		})
	}
}

func TestRun_JoinerCancelledMidRun(t *testing.T) {
	f := newFixture()
	created := make(chan struct{})
	release := make(chan struct{})
	f.playlists.afterCreate = func() {
		close(created)
		<-release
	}
	o := f.orchestrator()

	leaderDone := make(chan error, 1)
	go func() {
		_, err := o.Run(context.Background(), "s", relaxedAnswers)
		leaderDone <- err
	}()
	<-created

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := o.Run(ctx, "s", relaxedAnswers)
	close(release)

	se, ok := AsStageError(err)
	if !ok || !errors.Is(err, context.Canceled) {
		t.Fatalf("joiner Run() error = %v, want cancelled *StageError", err)
	}
	if se.Stage != StageCreatingPlaylist {
		t.Errorf("Stage = %q, want %q", se.Stage, StageCreatingPlaylist)
	}
	if se.PlaylistID != "" {
		t.Errorf("PlaylistID = %q before CreatePlaylist returned, want empty", se.PlaylistID)
	}
	if err := <-leaderDone; err != nil {
		t.Errorf("leader Run() error = %v", err)
	}
}

func TestRun_MinIntervalDefers(t *testing.T) {
	f := newFixture()
	o := New(f.tokens, f.classifier, f.playlists, f.tracks, f.store, WithMinInterval(100*time.Millisecond))

	if _, err := o.Run(context.Background(), "s", relaxedAnswers); err != nil {
		t.Fatalf("first Run() error = %v", err)
	}

	second := append([]mood.Response{{Question: "Again?", Answer: "Yes"}}, relaxedAnswers...)
	start := time.Now()
	if _, err := o.Run(context.Background(), "s", second); err != nil {
		t.Fatalf("second Run() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed < 80*time.Millisecond {
		t.Errorf("second run started after %v, want it deferred ~100ms", elapsed)
	}

	// Other sessions are not held back.
	start = time.Now()
	if _, err := o.Run(context.Background(), "other", relaxedAnswers); err != nil {
		t.Fatalf("other session Run() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Errorf("other session waited %v", elapsed)
	}

	if f.playlists.created != 3 {
		t.Errorf("playlists created = %d, want 3", f.playlists.created)
	}
}

func TestRun_MinIntervalWaitCancelled(t *testing.T) {
	f := newFixture()
	o := New(f.tokens, f.classifier, f.playlists, f.tracks, f.store, WithMinInterval(time.Hour))

	if _, err := o.Run(context.Background(), "s", relaxedAnswers); err != nil {
		t.Fatalf("first Run() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	second := []mood.Response{{Question: "q", Answer: "a"}}
	_, err := o.Run(ctx, "s", second)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
	if f.playlists.created != 1 {
		t.Errorf("playlists created = %d, want 1", f.playlists.created)
	}
}

func TestRun_IdleGuardsDropped(t *testing.T) {
	f := newFixture()
	o := New(f.tokens, f.classifier, f.playlists, f.tracks, f.store, WithMinInterval(30*time.Millisecond))

	for _, session := range []string{"a", "b"} {
		if _, err := o.Run(context.Background(), session, relaxedAnswers); err != nil {
			t.Fatalf("Run(%s) error = %v", session, err)
		}
	}
	if got := len(o.limiters); got != 2 {
		t.Fatalf("limiters = %d, want 2", got)
	}

	time.Sleep(60 * time.Millisecond)
	if _, err := o.Run(context.Background(), "c", relaxedAnswers); err != nil {
		t.Fatalf("Run(c) error = %v", err)
	}
	if _, ok := o.limiters["c"]; !ok || len(o.limiters) != 1 {
		t.Errorf("limiters = %v, want only c", o.limiters)
	}

	o.Forget("c")
	if len(o.limiters) != 0 {
		t.Errorf("limiters after Forget = %v, want none", o.limiters)
	}
}

func TestRun_DuplicateSubmissionsShareRun(t *testing.T) {
	f := newFixture()
	f.classifier.gate = make(chan struct{})
	f.classifier.entered = make(chan struct{}, 2)
	o := f.orchestrator()

	var wg sync.WaitGroup
	results := make([]*PlaylistResult, 2)
	errs := make([]error, 2)
	for i := range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = o.Run(context.Background(), "s", relaxedAnswers)
		}()
		if i == 0 {
			<-f.classifier.entered
		}
	}

	time.Sleep(20 * time.Millisecond)
	close(f.classifier.gate)
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("Run() #%d error = %v", i, err)
		}
	}
	if results[0].PlaylistID != results[1].PlaylistID {
		t.Errorf("playlist ids differ: %q and %q", results[0].PlaylistID, results[1].PlaylistID)
	}
	if f.playlists.created != 1 {
		t.Errorf("playlists created = %d, want 1", f.playlists.created)
	}
	if got := f.classifier.classifyCalls.Load(); got != 1 {
		t.Errorf("Classify calls = %d, want 1", got)
	}
}

func TestRunLatest(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	if err := f.store.SubmitResponses(ctx, "user-1", relaxedAnswers); err != nil {
		t.Fatalf("SubmitResponses() error = %v", err)
	}

	result, err := f.orchestrator().RunLatest(ctx, "s", "user-1", 2)
	if err != nil {
		t.Fatalf("RunLatest() error = %v", err)
	}
	if result.PlaylistID == "" {
		t.Error("PlaylistID is empty")
	}
	if len(f.classifier.seen) != 2 || f.classifier.seen[1].Answer != "Not much, feeling calm" {
		t.Errorf("classifier saw %+v, want the latest two answers", f.classifier.seen)
	}

	_, err = f.orchestrator().RunLatest(ctx, "s", "nobody", 5)
	if !errors.Is(err, mood.ErrIncompleteResponses) {
		t.Errorf("RunLatest(no answers) error = %v, want ErrIncompleteResponses", err)
	}
}

func TestFingerprint(t *testing.T) {
	a := []mood.Response{{Question: "q1", Answer: "a1"}, {Question: "q2", Answer: "a2"}}
	b := []mood.Response{{Question: "q2", Answer: "a2"}, {Question: "q1", Answer: "a1"}}
	c := []mood.Response{{Question: "q1a", Answer: "1"}, {Question: "q2", Answer: "a2"}}

	if fingerprint(a) != fingerprint(a) {
		t.Error("fingerprint is not stable")
	}
	if fingerprint(a) == fingerprint(b) {
		t.Error("reordered answers share a fingerprint")
	}
	if fingerprint(a) == fingerprint(c) {
		t.Error("field boundaries are not part of the fingerprint")
	}
}

func TestStageError(t *testing.T) {
	err := &StageError{Stage: StageAddingTracks, PlaylistID: "pl-9", Err: playlist.ErrTrackAdditionFailed}
	want := "adding_tracks (playlist pl-9): could not add tracks to playlist"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}

	wrapped := fmt.Errorf("handler: %w", err)
	se, ok := AsStageError(wrapped)
	if !ok || se.PlaylistID != "pl-9" {
		t.Errorf("AsStageError() = %v, %v", se, ok)
	}
}

func TestParseCleanupPolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    CleanupPolicy
		wantErr error
	}{
		{in: "", want: CleanupNone},
		{in: "none", want: CleanupNone},
		{in: "Discard", want: CleanupDiscard},
		{in: "delete", wantErr: ErrUnknownCleanup},
	}

	for _, tt := range tests {
		got, err := ParseCleanupPolicy(tt.in)
		if !errors.Is(err, tt.wantErr) {
			t.Errorf("ParseCleanupPolicy(%q) error = %v, want %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseCleanupPolicy(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
