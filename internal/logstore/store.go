// Package logstore persists chat history as authenticated-encrypted lines,
// one append-only file per room.
package logstore

import (
	"bufio"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/google/uuid"

	"secure-chat/pkg/logger"
)

// Store is the persistence boundary for room chat logs. SaveMessage never
// reports failure to the caller: losing one log line must not break the chat
// flow.
type Store interface {
	SaveMessage(roomID uuid.UUID, message string)
	Logs(roomID uuid.UUID) (string, error)
}

const appDirName = "secure-chat"

// FileStore encrypts each message with AES-GCM (fresh random 96-bit nonce,
// 128-bit tag) and appends one line per message to <dataDir>/<room-id>.txt
// in the format base64(nonce):base64(ciphertext).
type FileStore struct {
	aead cipher.AEAD
	dir  string

	// mu makes appends line-atomic across concurrent senders in one room.
	mu sync.Mutex
}

var _ Store = (*FileStore)(nil)

// New builds a FileStore from a base64-encoded AES key, which must decode to
// exactly 16 or 32 bytes. An empty dataDir selects the platform default. The
// key lives in memory for the process lifetime and is never written to disk.
func New(keyBase64, dataDir string) (*FileStore, error) {
	key, err := base64.StdEncoding.DecodeString(keyBase64)
	if err != nil {
		return nil, fmt.Errorf("decode AES key: %w", err)
	}
	if len(key) != 16 && len(key) != 32 {
		return nil, fmt.Errorf("AES key must be 16 or 32 bytes after base64 decode, got %d", len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("init GCM: %w", err)
	}

	if dataDir == "" {
		dataDir = defaultDataDir()
	}
	return &FileStore{aead: aead, dir: dataDir}, nil
}

// defaultDataDir resolves the platform-appropriate application-data
// directory.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}

	var base string
	switch runtime.GOOS {
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			base = appData
		} else {
			base = home
		}
	case "darwin":
		base = filepath.Join(home, "Library", "Application Support")
	default:
		base = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(base, appDirName)
}

func (s *FileStore) path(roomID uuid.UUID) string {
	return filepath.Join(s.dir, roomID.String()+".txt")
}

// SaveMessage encrypts and appends one chat line for the room. Failures are
// logged and swallowed.
func (s *FileStore) SaveMessage(roomID uuid.UUID, message string) {
	if err := s.save(roomID, message); err != nil {
		logger.Error("failed to save encrypted message for room %s: %v", roomID, err)
	}
}

func (s *FileStore) save(roomID uuid.UUID, message string) error {
	if roomID == uuid.Nil {
		return fmt.Errorf("room is unset")
	}
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("generate nonce: %w", err)
	}
	ciphertext := s.aead.Seal(nil, nonce, []byte(message), nil)

	line := base64.StdEncoding.EncodeToString(nonce) + ":" +
		base64.StdEncoding.EncodeToString(ciphertext) + "\n"

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path(roomID), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("append log line: %w", err)
	}
	return nil
}

// Logs returns the full decrypted history for the room. A missing file or
// unset room is a retrieval error; a single line that fails to parse or
// decrypt is returned verbatim instead of aborting the batch, so partially
// unreadable history stays recoverable.
func (s *FileStore) Logs(roomID uuid.UUID) (string, error) {
	if roomID == uuid.Nil {
		return "", fmt.Errorf("room is unset")
	}

	f, err := os.Open(s.path(roomID))
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("no logs found for room %s", roomID)
		}
		return "", fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	var b strings.Builder
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		b.WriteString(s.decryptLine(line))
		b.WriteByte('\n')
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("read log file: %w", err)
	}
	return b.String(), nil
}

// decryptLine decrypts one nonce:ciphertext line, falling back to the raw
// line for anything that does not parse or authenticate.
func (s *FileStore) decryptLine(line string) string {
	idx := strings.IndexByte(line, ':')
	if idx <= 0 {
		return line
	}

	nonce, err := base64.StdEncoding.DecodeString(line[:idx])
	if err != nil || len(nonce) != s.aead.NonceSize() {
		return line
	}
	ciphertext, err := base64.StdEncoding.DecodeString(line[idx+1:])
	if err != nil {
		return line
	}

	plaintext, err := s.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		logger.Debug("failed to decrypt log line, returning raw: %v", err)
		return line
	}
	return string(plaintext)
}
