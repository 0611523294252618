// Package remote browses the contract folders on the provider SFTP server.
package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"consolidador/internal/infra"
	"consolidador/internal/storage"
)

// ErrNotConnected reports that no session could be established.
var ErrNotConnected = errors.New("remote: not connected")

// Kind tells folders from files.
type Kind string

const (
	KindFolder Kind = "carpeta"
	KindFile   Kind = "archivo"
)

const modifiedLayout = "2006-01-02 15:04"

// Item is one entry of a remote folder.
type Item struct {
	Name      string `json:"nombre"`
	Kind      Kind   `json:"tipo"`
	Size      int64  `json:"tamaño"`
	HumanSize string `json:"tamaño_formateado"`
	Modified  string `json:"fecha"`
	Path      string `json:"ruta"`
}

// Listing splits a folder into subfolders and files.
type Listing struct {
	Folders     []Item `json:"carpetas"`
	Files       []Item `json:"archivos"`
	FolderCount int    `json:"total_carpetas"`
	FileCount   int    `json:"total_archivos"`
}

// Navigation is a listing with the links needed to move around.
type Navigation struct {
	Current string  `json:"ruta_actual"`
	Parent  *string `json:"ruta_padre"`
	Listing
}

// YearFolder is a "CONTRATOS <year>" folder under the main folder.
type YearFolder struct {
	Year   int    `json:"año"`
	Folder string `json:"carpeta"`
	Path   string `json:"ruta"`
}

// ContractMatch is the result of looking a contract folder up.
type ContractMatch struct {
	Found    bool   `json:"encontrado"`
	Contract string `json:"contrato"`
	// YearMissing is set when the year folder itself does not exist.
	YearMissing     bool     `json:"-"`
	Folder          string   `json:"carpeta,omitempty"`
	Path            string   `json:"ruta,omitempty"`
	Parent          string   `json:"ruta_padre,omitempty"`
	Content         *Listing `json:"contenido,omitempty"`
	ContentError    string   `json:"error_contenido,omitempty"`
	Variants        []string `json:"variantes_buscadas,omitempty"`
	YearFolder      string   `json:"carpeta_año,omitempty"`
	YearFolderCount int      `json:"total_carpetas_año,omitempty"`
}

type session struct {
	client *sftp.Client
	conn   io.Closer
}

func (s *session) close() error {
	err := s.client.Close()
	if s.conn != nil {
		if cerr := s.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// Browser keeps at most one SFTP session and reconnects on demand. It is safe
// for concurrent use.
type Browser struct {
	cfg     infra.SFTPConfig
	logger  *infra.Logger
	dial    func(ctx context.Context) (*session, error)
	backoff func(attempt int) time.Duration

	mu   sync.Mutex
	sess *session
}

// NewBrowser returns a Browser for cfg. Nothing is dialed until first use.
func NewBrowser(cfg infra.SFTPConfig, logger *infra.Logger) *Browser {
	b := &Browser{
		cfg:     cfg,
		logger:  infra.OrNop(logger),
		backoff: func(attempt int) time.Duration { return time.Second << attempt },
	}
	b.dial = b.dialSSH
	return b
}

// Dialer opens an SFTP client. The closer, when not nil, is closed after the
// client.
type Dialer func(ctx context.Context) (*sftp.Client, io.Closer, error)

// WithDialer replaces the SSH dial of b, for servers reached some other way.
func (b *Browser) WithDialer(d Dialer) *Browser {
	b.dial = func(ctx context.Context) (*session, error) {
		client, conn, err := d(ctx)
		if err != nil {
			return nil, err
		}
		return &session{client: client, conn: conn}, nil
	}
	return b
}

// Server is the host:port the browser connects to.
func (b *Browser) Server() string {
	return net.JoinHostPort(b.cfg.Host, strconv.Itoa(b.cfg.Port))
}

// MainFolder is the root of the contract tree.
func (b *Browser) MainFolder() string { return b.cfg.RemoteFolder }

// Connect replaces any session with a new one, retrying with exponential
// backoff.
func (b *Browser) Connect(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connectLocked(ctx)
}

func (b *Browser) connectLocked(ctx context.Context) error {
	b.closeLocked()
	attempts := b.cfg.Retries
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(b.backoff(i - 1)):
			}
		}
		sess, err := b.dial(ctx)
		if err == nil {
			b.sess = sess
			b.logger.Info().Str("server", b.Server()).Msg("remote: connected")
			return nil
		}
		lastErr = err
		b.logger.Warn().Err(err).Int("attempt", i+1).Str("server", b.Server()).Msg("remote: connect failed")
	}
	return fmt.Errorf("%w: %v", ErrNotConnected, lastErr)
}

// Disconnect closes the session, if any.
func (b *Browser) Disconnect() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closeLocked()
}

func (b *Browser) closeLocked() {
	if b.sess == nil {
		return
	}
	if err := b.sess.close(); err != nil {
		b.logger.Debug().Err(err).Msg("remote: close session")
	}
	b.sess = nil
}

// Connected reports whether the current session still answers.
func (b *Browser) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.aliveLocked()
}

func (b *Browser) aliveLocked() bool {
	if b.sess == nil {
		return false
	}
	if _, err := b.sess.client.Getwd(); err != nil {
		b.closeLocked()
		return false
	}
	return true
}

func (b *Browser) client(ctx context.Context) (*sftp.Client, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.aliveLocked() {
		if err := b.connectLocked(ctx); err != nil {
			return nil, err
		}
	}
	return b.sess.client, nil
}

// List returns the visible entries of dir, folders first, then by name.
func (b *Browser) List(ctx context.Context, dir string) ([]Item, error) {
	c, err := b.client(ctx)
	if err != nil {
		return nil, err
	}
	infos, err := c.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("remote: list %s: %w", dir, err)
	}
	items := make([]Item, 0, len(infos))
	for _, fi := range infos {
		if strings.HasPrefix(fi.Name(), ".") {
			continue
		}
		items = append(items, item(dir, fi))
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Kind != items[j].Kind {
			return items[i].Kind == KindFolder
		}
		return strings.ToLower(items[i].Name) < strings.ToLower(items[j].Name)
	})
	return items, nil
}

// Navigate lists dir and computes where "up" leads. The main folder, "." and
// "/" have no parent; a top-level path goes back to the main folder.
func (b *Browser) Navigate(ctx context.Context, dir string) (Navigation, error) {
	items, err := b.List(ctx, dir)
	if err != nil {
		return Navigation{}, err
	}
	nav := Navigation{Current: dir, Listing: split(items)}
	if dir != "." && dir != "/" && dir != b.cfg.RemoteFolder {
		parent := b.cfg.RemoteFolder
		trimmed := strings.TrimRight(dir, "/")
		if i := strings.LastIndex(trimmed, "/"); i > 0 {
			parent = trimmed[:i]
		}
		nav.Parent = &parent
	}
	return nav, nil
}

// MainFolders lists the folders directly under the main folder.
func (b *Browser) MainFolders(ctx context.Context) ([]Item, error) {
	items, err := b.List(ctx, b.cfg.RemoteFolder)
	if err != nil {
		return nil, err
	}
	return split(items).Folders, nil
}

// Years lists the "CONTRATOS <year>" folders, newest first.
func (b *Browser) Years(ctx context.Context) ([]YearFolder, error) {
	items, err := b.List(ctx, b.cfg.RemoteFolder)
	if err != nil {
		return nil, err
	}
	out := make([]YearFolder, 0)
	for _, it := range items {
		if it.Kind != KindFolder || !strings.Contains(strings.ToUpper(it.Name), "CONTRATOS") {
			continue
		}
		for _, part := range strings.Fields(it.Name) {
			if len(part) != 4 {
				continue
			}
			if y, err := strconv.Atoi(part); err == nil && y > 0 {
				out = append(out, YearFolder{Year: y, Folder: it.Name, Path: it.Path})
				break
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Year > out[j].Year })
	return out, nil
}

// FindContract looks for the folder of contract number in "CONTRATOS <year>".
// Leading zeros are ignored when comparing.
func (b *Browser) FindContract(ctx context.Context, number, year string) (ContractMatch, error) {
	number = strings.TrimSpace(number)
	year = strings.TrimSpace(year)
	yearDir := b.cfg.RemoteFolder + "/CONTRATOS " + year
	match := ContractMatch{Contract: number + "-" + year}

	// A connection failure is an error; a missing year folder is an answer.
	if _, err := b.client(ctx); err != nil {
		return ContractMatch{}, err
	}
	items, err := b.List(ctx, yearDir)
	if err != nil {
		match.YearMissing = true
		return match, nil
	}

	variants := Variants(number)
	for _, it := range items {
		if it.Kind != KindFolder || !matchesContract(it.Name, variants) {
			continue
		}
		match.Found = true
		match.Folder = it.Name
		match.Path = it.Path
		match.Parent = yearDir
		content, err := b.List(ctx, it.Path)
		if err != nil {
			match.ContentError = err.Error()
		} else {
			l := split(content)
			match.Content = &l
		}
		return match, nil
	}

	match.Variants = variants
	match.YearFolder = yearDir
	match.YearFolderCount = len(split(items).Folders)
	return match, nil
}

// Open starts a download of the remote file p.
func (b *Browser) Open(ctx context.Context, p string) (io.ReadCloser, os.FileInfo, error) {
	c, err := b.client(ctx)
	if err != nil {
		return nil, nil, err
	}
	fi, err := c.Stat(p)
	if err != nil {
		return nil, nil, fmt.Errorf("remote: stat %s: %w", p, err)
	}
	if fi.IsDir() {
		return nil, nil, fmt.Errorf("remote: %s is a folder", p)
	}
	f, err := c.Open(p)
	if err != nil {
		return nil, nil, fmt.Errorf("remote: open %s: %w", p, err)
	}
	return f, fi, nil
}

// Variants spells number the ways folder names do: bare, padded to two,
// three and four digits, and with one extra leading zero.
func Variants(number string) []string {
	bare := strings.TrimLeft(strings.TrimSpace(number), "0")
	if bare == "" {
		bare = "0"
	}
	pad := func(n int) string {
		if len(bare) >= n {
			return bare
		}
		return strings.Repeat("0", n-len(bare)) + bare
	}
	var out []string
	seen := map[string]bool{}
	for _, v := range []string{bare, pad(2), pad(3), pad(4), "0" + bare} {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

func matchesContract(name string, variants []string) bool {
	upper := strings.ToUpper(name)
	for _, v := range variants {
		if strings.HasPrefix(upper, v+" ") ||
			strings.HasPrefix(upper, v+"-") ||
			strings.HasPrefix(upper, v+"_") ||
			strings.Contains(upper, "-"+v+"-") ||
			strings.Contains(upper, " "+v+" ") ||
			strings.Contains(upper, " "+v+"-") {
			return true
		}
	}
	return false
}

func item(dir string, fi os.FileInfo) Item {
	it := Item{
		Name:      fi.Name(),
		Kind:      KindFile,
		Size:      fi.Size(),
		HumanSize: storage.HumanSize(fi.Size()),
		Modified:  fi.ModTime().Format(modifiedLayout),
		Path:      fi.Name(),
	}
	if fi.IsDir() {
		it.Kind = KindFolder
	}
	if dir != "." && dir != "/" {
		it.Path = path.Join(strings.TrimRight(dir, "/"), fi.Name())
	}
	return it
}

func split(items []Item) Listing {
	l := Listing{Folders: []Item{}, Files: []Item{}}
	for _, it := range items {
		if it.Kind == KindFolder {
			l.Folders = append(l.Folders, it)
		} else {
			l.Files = append(l.Files, it)
		}
	}
	l.FolderCount = len(l.Folders)
	l.FileCount = len(l.Files)
	return l
}

func (b *Browser) dialSSH(ctx context.Context) (*session, error) {
	hostKey := ssh.InsecureIgnoreHostKey()
	if b.cfg.HostKey != "" {
		pub, _, _, _, err := ssh.ParseAuthorizedKey([]byte(b.cfg.HostKey))
		if err != nil {
			return nil, fmt.Errorf("remote: parse host key: %w", err)
		}
		hostKey = ssh.FixedHostKey(pub)
	}
	conf := &ssh.ClientConfig{
		User:            b.cfg.Username,
		Auth:            []ssh.AuthMethod{ssh.Password(b.cfg.Password)},
		HostKeyCallback: hostKey,
		Timeout:         b.cfg.Timeout,
	}
	addr := b.Server()
	d := net.Dialer{Timeout: b.cfg.Timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("remote: dial %s: %w", addr, err)
	}
	c, chans, reqs, err := ssh.NewClientConn(conn, addr, conf)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("remote: ssh handshake: %w", err)
	}
	sshClient := ssh.NewClient(c, chans, reqs)
	client, err := sftp.NewClient(sshClient)
	if err != nil {
		sshClient.Close()
		return nil, fmt.Errorf("remote: start sftp: %w", err)
	}
	return &session{client: client, conn: sshClient}, nil
}
