package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/lox/blackjack/internal/fileutil"
	"github.com/lox/blackjack/internal/game"
	"github.com/lox/blackjack/internal/gameid"
	"github.com/lox/blackjack/internal/player"
)

const (
	playersFile = "players.json"
	gamesDir    = "games"
)

// FileStore keeps players in one JSON document and each game in its own
// file under dir. Writes are atomic renames. mu serializes every write, so
// the revision check and the write of a game cannot interleave.
type FileStore struct {
	dir string

	mu      sync.Mutex
	players *Memory
}

var _ Backend = (*FileStore)(nil)

type playersDocument struct {
	NextID  int64           `json:"nextId"`
	Players []player.Player `json:"players"`
}

// NewFileStore opens (or initialises) a file store rooted at dir.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("files storage requires a directory")
	}
	if err := os.MkdirAll(filepath.Join(dir, gamesDir), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	fs := &FileStore{dir: dir, players: NewMemory()}

	var doc playersDocument
	err := fileutil.ReadJSON(filepath.Join(dir, playersFile), &doc)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to load players: %w", err)
	default:
		for _, p := range doc.Players {
			fs.players.players[p.ID] = p
			fs.players.byName[p.Name] = p.ID
		}
		fs.players.nextID = doc.NextID
	}
	return fs, nil
}

func (fs *FileStore) flushPlayersLocked() error {
	fs.players.mu.RLock()
	doc := playersDocument{NextID: fs.players.nextID}
	for _, p := range fs.players.players {
		doc.Players = append(doc.Players, p)
	}
	fs.players.mu.RUnlock()

	sortRanking(doc.Players)
	if err := fileutil.WriteJSONAtomic(filepath.Join(fs.dir, playersFile), doc, 0o644); err != nil {
		return fmt.Errorf("failed to write players: %w", err)
	}
	return nil
}

// mutatePlayers runs fn against the in-memory index and persists the result.
func (fs *FileStore) mutatePlayers(fn func() (player.Player, error)) (player.Player, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	p, err := fn()
	if err != nil {
		return player.Player{}, err
	}
	if err := fs.flushPlayersLocked(); err != nil {
		return player.Player{}, err
	}
	return p, nil
}

func (fs *FileStore) CreatePlayer(ctx context.Context, name string) (player.Player, error) {
	return fs.mutatePlayers(func() (player.Player, error) {
		return fs.players.CreatePlayer(ctx, name)
	})
}

func (fs *FileStore) FindOrCreatePlayer(ctx context.Context, name string) (player.Player, error) {
	if p, err := fs.players.GetPlayerByName(ctx, name); err == nil {
		return p, nil
	}
	return fs.mutatePlayers(func() (player.Player, error) {
		return fs.players.FindOrCreatePlayer(ctx, name)
	})
}

func (fs *FileStore) GetPlayer(ctx context.Context, id int64) (player.Player, error) {
	return fs.players.GetPlayer(ctx, id)
}

func (fs *FileStore) GetPlayerByName(ctx context.Context, name string) (player.Player, error) {
	return fs.players.GetPlayerByName(ctx, name)
}

func (fs *FileStore) RenamePlayer(ctx context.Context, id int64, name string) (player.Player, error) {
	return fs.mutatePlayers(func() (player.Player, error) {
		return fs.players.RenamePlayer(ctx, id, name)
	})
}

func (fs *FileStore) AddPoints(ctx context.Context, id int64, delta int) (player.Player, error) {
	return fs.mutatePlayers(func() (player.Player, error) {
		return fs.players.AddPoints(ctx, id, delta)
	})
}

func (fs *FileStore) Ranking(ctx context.Context) ([]player.Player, error) {
	return fs.players.Ranking(ctx)
}

func (fs *FileStore) gamePath(id string) (string, error) {
	if err := gameid.Validate(id); err != nil {
		return "", &game.NotFoundError{ID: id}
	}
	return filepath.Join(fs.dir, gamesDir, id+".json"), nil
}

func (fs *FileStore) SaveGame(_ context.Context, r game.Record) error {
	path, err := fs.gamePath(r.ID)
	if err != nil {
		return fmt.Errorf("invalid game id %q", r.ID)
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.saveGameLocked(path, r)
}

func (fs *FileStore) saveGameLocked(path string, r game.Record) error {
	current, err := readGameFile(path, r.ID)
	switch {
	case errors.Is(err, game.ErrNotFound):
		if r.Version != 0 {
			return err
		}
	case err != nil:
		return err
	case current.Version != r.Version:
		return game.Conflict(r.ID, r.Version)
	}

	next := r
	next.Version = r.Version + 1
	if err := fileutil.WriteJSONAtomic(path, next, 0o644); err != nil {
		return fmt.Errorf("failed to save game %s: %w", r.ID, err)
	}
	return nil
}

// SettleGame writes the finished game, then the player's new total. Both
// happen under the store lock, after the player is known to exist.
func (fs *FileStore) SettleGame(ctx context.Context, r game.Record, delta int) (player.Player, error) {
	path, err := fs.gamePath(r.ID)
	if err != nil {
		return player.Player{}, err
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	if _, err := fs.players.GetPlayer(ctx, r.PlayerID); err != nil {
		return player.Player{}, err
	}
	if err := fs.saveGameLocked(path, r); err != nil {
		return player.Player{}, err
	}
	p, err := fs.players.AddPoints(ctx, r.PlayerID, delta)
	if err != nil {
		return player.Player{}, err
	}
	if err := fs.flushPlayersLocked(); err != nil {
		return player.Player{}, fmt.Errorf("game %s saved but points not written: %w", r.ID, err)
	}
	return p, nil
}

func (fs *FileStore) LoadGame(_ context.Context, id string) (game.Record, error) {
	path, err := fs.gamePath(id)
	if err != nil {
		return game.Record{}, err
	}
	return readGameFile(path, id)
}

func readGameFile(path, id string) (game.Record, error) {
	var r game.Record
	err := fileutil.ReadJSON(path, &r)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return game.Record{}, &game.NotFoundError{ID: id}
	case err != nil:
		return game.Record{}, fmt.Errorf("%w: game %s: %v", game.ErrCorruptRecord, id, err)
	}
	return r, nil
}

func (fs *FileStore) DeleteGame(_ context.Context, id string) error {
	path, err := fs.gamePath(id)
	if err != nil {
		return err
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()
	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &game.NotFoundError{ID: id}
		}
		return fmt.Errorf("failed to delete game %s: %w", id, err)
	}
	return nil
}

func (fs *FileStore) ListGames(_ context.Context, playerID int64) ([]game.Record, error) {
	entries, err := os.ReadDir(filepath.Join(fs.dir, gamesDir))
	if err != nil {
		return nil, fmt.Errorf("failed to list games: %w", err)
	}

	var records []game.Record
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		id := strings.TrimSuffix(name, ".json")
		r, err := readGameFile(filepath.Join(fs.dir, gamesDir, name), id)
		if errors.Is(err, game.ErrNotFound) {
			// deleted while listing
			continue
		}
		if err != nil {
			return nil, err
		}
		if r.PlayerID == playerID {
			records = append(records, r)
		}
	}

	sortGames(records)
	return records, nil
}

func (fs *FileStore) Close() error {
	return nil
}
