package storage

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/blake2b"

	"github.com/yoockh/veriview/internal/models"
	"github.com/yoockh/veriview/internal/utils"
)

var safeName = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ContentStore owns two roots under one data directory:
// cache/<kind>s/<phase>/ for rendered avatar clips keyed by content hash, and
// sessions/<kind>/<id>/ for user clips and derived audio. Every write lands
// via temp file + rename.
type ContentStore struct {
	root          string
	cacheExpiry   time.Duration
	sessionRetain time.Duration

	mirror Mirror
	log    *logrus.Logger
}

func NewContentStore(root string, cacheExpiry, sessionRetain time.Duration, log *logrus.Logger) (*ContentStore, error) {
	const op = "ContentStore.New"
	if log == nil {
		log = logrus.New()
	}
	for _, dir := range []string{
		filepath.Join(root, "cache", cacheDir(models.KindDebate)),
		filepath.Join(root, "cache", cacheDir(models.KindInterview)),
		filepath.Join(root, "sessions", string(models.KindDebate)),
		filepath.Join(root, "sessions", string(models.KindInterview)),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, utils.E(utils.CodeInternal, op, "failed to create data dir", err)
		}
	}
	return &ContentStore{root: root, cacheExpiry: cacheExpiry, sessionRetain: sessionRetain, log: log}, nil
}

// WithMirror enables uploading retained final recordings.
func (s *ContentStore) WithMirror(m Mirror) *ContentStore {
	s.mirror = m
	return s
}

func (s *ContentStore) Root() string { return s.root }

func cacheDir(kind models.SessionKind) string { return string(kind) + "s" }

// cachePath is cache/<kind>s/<phase>/<key>.mp4; an empty phase files the
// clip under "misc".
func (s *ContentStore) cachePath(kind models.SessionKind, phase, key string) (string, error) {
	const op = "ContentStore.cachePath"
	if phase == "" {
		phase = "misc"
	}
	if !safeName.MatchString(phase) {
		return "", utils.E(utils.CodeInvalidArgument, op, "invalid phase", nil)
	}
	if !safeName.MatchString(key) {
		return "", utils.E(utils.CodeInvalidArgument, op, "invalid cache key", nil)
	}
	return filepath.Join(s.root, "cache", cacheDir(kind), phase, key+".mp4"), nil
}

// Get returns the cached clip for key when present, non-empty and unexpired.
func (s *ContentStore) Get(kind models.SessionKind, phase, key string) (string, bool) {
	p, err := s.cachePath(kind, phase, key)
	if err != nil {
		return "", false
	}
	st, err := os.Stat(p)
	if err != nil || st.Size() == 0 {
		return "", false
	}
	if s.cacheExpiry > 0 && time.Since(st.ModTime()) > s.cacheExpiry {
		return "", false
	}
	return p, true
}

// Put copies src into the cache under key.
func (s *ContentStore) Put(kind models.SessionKind, phase, key, src string) (string, error) {
	const op = "ContentStore.Put"
	f, err := os.Open(src)
	if err != nil {
		return "", utils.E(utils.CodeInternal, op, "open source", err)
	}
	defer f.Close()
	return s.PutReader(kind, phase, key, f)
}

func (s *ContentStore) PutReader(kind models.SessionKind, phase, key string, r io.Reader) (string, error) {
	const op = "ContentStore.PutReader"
	p, err := s.cachePath(kind, phase, key)
	if err != nil {
		return "", err
	}
	if _, err := writeAtomic(p, r, nil); err != nil {
		return "", utils.E(utils.CodeInternal, op, "write cache entry", err)
	}
	return p, nil
}

// SessionDir is sessions/<kind>/<id>.
func (s *ContentStore) SessionDir(kind models.SessionKind, sessionID string) (string, error) {
	if !safeName.MatchString(sessionID) {
		return "", utils.E(utils.CodeInvalidArgument, "ContentStore.SessionDir", "invalid session id", nil)
	}
	return filepath.Join(s.root, "sessions", string(kind), sessionID), nil
}

// TurnPaths are the per-turn artifact locations inside a session directory.
type TurnPaths struct {
	Clip   string
	Audio  string
	Frames string
}

func (s *ContentStore) TurnPaths(kind models.SessionKind, sessionID, phase string) (TurnPaths, error) {
	dir, err := s.SessionDir(kind, sessionID)
	if err != nil {
		return TurnPaths{}, err
	}
	if !safeName.MatchString(phase) {
		return TurnPaths{}, utils.E(utils.CodeInvalidArgument, "ContentStore.TurnPaths", "invalid phase", nil)
	}
	return TurnPaths{
		Clip:   filepath.Join(dir, phase+"_user.mp4"),
		Audio:  filepath.Join(dir, phase+"_user.wav"),
		Frames: filepath.Join(dir, phase+"_frames"),
	}, nil
}

// SaveClip stores an uploaded clip atomically and returns its path and a
// blake2b digest of the bytes. maxBytes <= 0 disables the cap.
func (s *ContentStore) SaveClip(kind models.SessionKind, sessionID, phase string, r io.Reader, maxBytes int64) (string, string, error) {
	const op = "ContentStore.SaveClip"
	tp, err := s.TurnPaths(kind, sessionID, phase)
	if err != nil {
		return "", "", err
	}
	if maxBytes > 0 {
		r = &capReader{r: r, left: maxBytes}
	}
	h, _ := blake2b.New256(nil)
	if _, err := writeAtomic(tp.Clip, r, h); err != nil {
		if errors.Is(err, errOverCap) {
			return "", "", utils.E(utils.CodeTooLarge, op, fmt.Sprintf("clip exceeds %d bytes", maxBytes), utils.ErrMedia)
		}
		return "", "", utils.E(utils.CodeInternal, op, "write clip", err)
	}
	return tp.Clip, hex.EncodeToString(h.Sum(nil)), nil
}

var errOverCap = errors.New("size cap exceeded")

// capReader fails once more than left bytes have been read, so an oversized
// upload never replaces an existing clip.
type capReader struct {
	r    io.Reader
	left int64
}

func (c *capReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.left -= int64(n)
	if c.left < 0 {
		return n, errOverCap
	}
	return n, err
}

// CleanTurn removes temporary per-turn artifacts, keeping the clip.
func (s *ContentStore) CleanTurn(kind models.SessionKind, sessionID, phase string) {
	tp, err := s.TurnPaths(kind, sessionID, phase)
	if err != nil {
		return
	}
	_ = os.RemoveAll(tp.Frames)
}

// MirrorClip uploads a retained clip when a mirror is configured.
func (s *ContentStore) MirrorClip(ctx context.Context, kind models.SessionKind, sessionID, path string) (string, error) {
	if s.mirror == nil {
		return "", nil
	}
	if !safeName.MatchString(sessionID) {
		return "", utils.E(utils.CodeInvalidArgument, "ContentStore.MirrorClip", "invalid session id", nil)
	}
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return s.mirror.Upload(ctx, SessionObject(kind, sessionID, filepath.Base(path)), "video/mp4", f)
}

// RemoveSession deletes a session directory and its mirrored recordings.
func (s *ContentStore) RemoveSession(ctx context.Context, kind models.SessionKind, sessionID string) error {
	const op = "ContentStore.RemoveSession"
	dir, err := s.SessionDir(kind, sessionID)
	if err != nil {
		return err
	}
	var errs []error
	if err := os.RemoveAll(dir); err != nil {
		errs = append(errs, err)
	}
	if s.mirror != nil {
		n, err := s.mirror.DeletePrefix(ctx, sessionPrefix(kind, sessionID))
		if err != nil {
			errs = append(errs, err)
		}
		s.log.WithFields(logrus.Fields{"session_id": sessionID, "objects_removed": n}).Info("mirrored recordings removed")
	}
	if err := errors.Join(errs...); err != nil {
		return utils.E(utils.CodeInternal, op, "failed to remove session content", err)
	}
	return nil
}

// ExpireReport counts what a retention scan removed.
type ExpireReport struct {
	CacheRemoved    int `json:"cache_removed"`
	SessionsRemoved int `json:"sessions_removed"`
}

// Expire removes cache entries older than the cache expiry and session
// directories untouched for longer than the session retention.
func (s *ContentStore) Expire(now time.Time) (ExpireReport, error) {
	var rep ExpireReport
	var errs []error

	err := filepath.WalkDir(filepath.Join(s.root, "cache"), func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if now.Sub(info.ModTime()) > s.cacheExpiry {
			if err := os.Remove(p); err != nil {
				errs = append(errs, err)
				return nil
			}
			rep.CacheRemoved++
		}
		return nil
	})
	if err != nil {
		errs = append(errs, err)
	}

	for _, kind := range []models.SessionKind{models.KindDebate, models.KindInterview} {
		base := filepath.Join(s.root, "sessions", string(kind))
		entries, err := os.ReadDir(base)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, e := range entries {
			if !e.IsDir() {
				continue
			}
			dir := filepath.Join(base, e.Name())
			if now.Sub(latestMod(dir)) <= s.sessionRetain {
				continue
			}
			if err := os.RemoveAll(dir); err != nil {
				errs = append(errs, err)
				continue
			}
			rep.SessionsRemoved++
		}
	}
	if rep.CacheRemoved+rep.SessionsRemoved > 0 {
		s.log.WithFields(logrus.Fields{
			"cache_removed":    rep.CacheRemoved,
			"sessions_removed": rep.SessionsRemoved,
		}).Info("retention scan")
	}
	return rep, errors.Join(errs...)
}

func latestMod(dir string) time.Time {
	var latest time.Time
	_ = filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if info, err := d.Info(); err == nil && info.ModTime().After(latest) {
			latest = info.ModTime()
		}
		return nil
	})
	return latest
}

// Clear removes every cache entry and reports how many were deleted.
func (s *ContentStore) Clear() (int, error) {
	n := 0
	err := filepath.WalkDir(filepath.Join(s.root, "cache"), func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		if err := os.Remove(p); err != nil {
			return err
		}
		n++
		return nil
	})
	return n, err
}

type Info struct {
	Root         string `json:"root"`
	CacheFiles   int    `json:"cache_files"`
	CacheBytes   int64  `json:"cache_bytes"`
	SessionFiles int    `json:"session_files"`
	SessionBytes int64  `json:"session_bytes"`
}

func (s *ContentStore) Info() (Info, error) {
	out := Info{Root: s.root}
	var err error
	out.CacheFiles, out.CacheBytes, err = usage(filepath.Join(s.root, "cache"))
	if err != nil {
		return out, err
	}
	out.SessionFiles, out.SessionBytes, err = usage(filepath.Join(s.root, "sessions"))
	return out, err
}

func usage(dir string) (int, int64, error) {
	var files int
	var size int64
	err := filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		files++
		size += info.Size()
		return nil
	})
	return files, size, err
}

// writeAtomic streams r into a temp file beside dst and renames it into place.
func writeAtomic(dst string, r io.Reader, tee io.Writer) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return 0, err
	}
	tmp := filepath.Join(filepath.Dir(dst), "."+uuid.NewString()+".tmp")
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return 0, err
	}
	w := io.Writer(f)
	if tee != nil {
		w = io.MultiWriter(f, tee)
	}
	n, err := io.Copy(w, r)
	if err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return n, err
	}
	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return n, err
	}
	return n, nil
}
