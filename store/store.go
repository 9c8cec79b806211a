// Package store persists player accounts and per-player match history.
//
// Accounts live in a single text file with one record per line:
//
//	username:secret:rating:games:wins
//
// Match history is append-only, one file per player under history/:
//
//	timestamp:opponent:result
//
// All mutation is serialized behind one mutex; the account file is
// rewritten through a temp file and rename so a crash never leaves a
// half-written table.
package store

import (
	"bufio"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/argon2"
)

const (
	DefaultRating = 800

	MaxUsernameLen = 49

	// Caps applied to read queries
	HistoryLimit     = 50
	LeaderboardLimit = 50

	accountsFile = "accounts"
	historyDir   = "history"
)

var (
	ErrExists         = errors.New("username already exists")
	ErrNotFound       = errors.New("account not found")
	ErrBadCredentials = errors.New("invalid credentials")
)

// Result of a finished match, as recorded in history files.
type Result string

const (
	ResultWin  Result = "WIN"
	ResultLose Result = "LOSE"
	ResultDraw Result = "DRAW"
)

// Account is a player's persistent record.
type Account struct {
	Username string
	Rating   int
	Games    int
	Wins     int
}

// MatchRecord is one line of a player's match history.
type MatchRecord struct {
	Timestamp int64  `json:"timestamp"`
	Opponent  string `json:"opponent"`
	Result    Result `json:"result"`
}

// LeaderboardEntry is one row of the rating table.
type LeaderboardEntry struct {
	Rank     int     `json:"rank"`
	Username string  `json:"username"`
	Rating   int     `json:"rating"`
	Games    int     `json:"games"`
	Wins     int     `json:"wins"`
	WinRate  float64 `json:"winrate"`
}

type account struct {
	username string
	secret   string
	rating   int
	games    int
	wins     int
}

// Store is a file-backed account and history store.
type Store struct {
	mu       sync.Mutex
	dir      string
	accounts map[string]*account
	log      *zap.Logger
}

// Open loads (or creates) the store rooted at dir.
func Open(dir string, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Join(dir, historyDir), 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}

	s := &Store{
		dir:      dir,
		accounts: make(map[string]*account),
		log:      log.Named("store"),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	s.log.Info("store opened", zap.String("dir", dir), zap.Int("accounts", len(s.accounts)))
	return s, nil
}

func (s *Store) load() error {
	f, err := os.Open(filepath.Join(s.dir, accountsFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open accounts file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, ":", 5)
		if len(parts) != 5 {
			s.log.Warn("skipping malformed account record", zap.String("line", line))
			continue
		}
		rating, err1 := strconv.Atoi(parts[2])
		games, err2 := strconv.Atoi(parts[3])
		wins, err3 := strconv.Atoi(parts[4])
		if err1 != nil || err2 != nil || err3 != nil {
			s.log.Warn("skipping malformed account record", zap.String("line", line))
			continue
		}
		s.accounts[parts[0]] = &account{
			username: parts[0],
			secret:   parts[1],
			rating:   rating,
			games:    games,
			wins:     wins,
		}
	}
	return scanner.Err()
}

// persistLocked rewrites the account file. Caller holds s.mu.
func (s *Store) persistLocked() error {
	names := make([]string, 0, len(s.accounts))
	for name := range s.accounts {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	for _, name := range names {
		a := s.accounts[name]
		fmt.Fprintf(&sb, "%s:%s:%d:%d:%d\n", a.username, a.secret, a.rating, a.games, a.wins)
	}

	path := filepath.Join(s.dir, accountsFile)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(sb.String()), 0o600); err != nil {
		return fmt.Errorf("write accounts file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace accounts file: %w", err)
	}
	return nil
}

// Register creates a new account with the default rating.
func (s *Store) Register(username, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[username]; ok {
		return ErrExists
	}
	secret, err := hashSecret(password)
	if err != nil {
		return err
	}
	s.accounts[username] = &account{
		username: username,
		secret:   secret,
		rating:   DefaultRating,
	}
	if err := s.persistLocked(); err != nil {
		delete(s.accounts, username)
		return err
	}
	s.log.Info("account registered", zap.String("username", username))
	return nil
}

// Authenticate checks a username/password pair. Legacy plaintext secrets
// are accepted and upgraded to the hashed form on success.
func (s *Store) Authenticate(username, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[username]
	if !ok {
		return ErrBadCredentials
	}
	if !strings.Contains(a.secret, "$") {
		// Plaintext record from the old server
		if subtle.ConstantTimeCompare([]byte(a.secret), []byte(password)) != 1 {
			return ErrBadCredentials
		}
		if secret, err := hashSecret(password); err == nil {
			a.secret = secret
			if err := s.persistLocked(); err != nil {
				s.log.Warn("failed to persist upgraded secret", zap.String("username", username), zap.Error(err))
			}
		}
		return nil
	}
	if !verifySecret(a.secret, password) {
		return ErrBadCredentials
	}
	return nil
}

// Get returns a copy of the account.
func (s *Store) Get(username string) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[username]
	if !ok {
		return Account{}, ErrNotFound
	}
	return Account{Username: a.username, Rating: a.rating, Games: a.games, Wins: a.wins}, nil
}

// Rating returns the account's current rating.
func (s *Store) Rating(username string) (int, error) {
	a, err := s.Get(username)
	if err != nil {
		return 0, err
	}
	return a.Rating, nil
}

// UpdateStats applies a game result: the rating delta (which may be
// negative), a played-game increment, and a win increment when won is
// set. The new rating is clamped at zero. It returns the new rating.
func (s *Store) UpdateStats(username string, delta int, won bool) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[username]
	if !ok {
		return 0, ErrNotFound
	}
	a.rating += delta
	if a.rating < 0 {
		a.rating = 0
	}
	a.games++
	if won {
		a.wins++
	}
	if err := s.persistLocked(); err != nil {
		return 0, err
	}
	return a.rating, nil
}

// AppendHistory appends one match record to the player's history file.
func (s *Store) AppendHistory(username, opponent string, result Result) error {
	return s.appendHistoryAt(username, opponent, result, time.Now().Unix())
}

func (s *Store) appendHistoryAt(username, opponent string, result Result, ts int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.historyPath(username)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open history file: %w", err)
	}
	defer f.Close()

	if _, err := fmt.Fprintf(f, "%d:%s:%s\n", ts, opponent, result); err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}

// History returns the player's match records, newest first, up to limit
// (or HistoryLimit when limit <= 0).
func (s *Store) History(username string, limit int) ([]MatchRecord, error) {
	if limit <= 0 {
		limit = HistoryLimit
	}

	s.mu.Lock()
	data, err := os.ReadFile(s.historyPath(username))
	s.mu.Unlock()
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read history file: %w", err)
	}

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	records := make([]MatchRecord, 0, len(lines))
	// File order is oldest first; walk backwards for newest first
	for i := len(lines) - 1; i >= 0 && len(records) < limit; i-- {
		parts := strings.SplitN(strings.TrimSpace(lines[i]), ":", 3)
		if len(parts) != 3 {
			continue
		}
		ts, err := strconv.ParseInt(parts[0], 10, 64)
		if err != nil {
			continue
		}
		records = append(records, MatchRecord{Timestamp: ts, Opponent: parts[1], Result: Result(parts[2])})
	}
	return records, nil
}

// Leaderboard returns the top accounts by rating, descending, with
// username as the tie-break. topN <= 0 means LeaderboardLimit.
func (s *Store) Leaderboard(topN int) []LeaderboardEntry {
	if topN <= 0 {
		topN = LeaderboardLimit
	}

	s.mu.Lock()
	all := make([]*account, 0, len(s.accounts))
	for _, a := range s.accounts {
		all = append(all, a)
	}
	s.mu.Unlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].rating != all[j].rating {
			return all[i].rating > all[j].rating
		}
		return all[i].username < all[j].username
	})

	if len(all) > topN {
		all = all[:topN]
	}
	entries := make([]LeaderboardEntry, len(all))
	for i, a := range all {
		winRate := 0.0
		if a.games > 0 {
			winRate = float64(a.wins) / float64(a.games)
		}
		entries[i] = LeaderboardEntry{
			Rank:     i + 1,
			Username: a.username,
			Rating:   a.rating,
			Games:    a.games,
			Wins:     a.wins,
			WinRate:  winRate,
		}
	}
	return entries
}

func (s *Store) historyPath(username string) string {
	return filepath.Join(s.dir, historyDir, "match_history_"+username)
}

// Secret format: argon2id$<salt hex>$<key hex>
const (
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
	argonKeyLen  = 32
)

func hashSecret(password string) (string, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	key := argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
	return "argon2id$" + hex.EncodeToString(salt) + "$" + hex.EncodeToString(key), nil
}

func verifySecret(secret, password string) bool {
	parts := strings.Split(secret, "$")
	if len(parts) != 3 || parts[0] != "argon2id" {
		return false
	}
	salt, err := hex.DecodeString(parts[1])
	if err != nil {
		return false
	}
	want, err := hex.DecodeString(parts[2])
	if err != nil {
		return false
	}
	key := argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
	return subtle.ConstantTimeCompare(key, want) == 1
}
