package remote

import (
	"context"
	"errors"
	"io"
	"net"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/pkg/sftp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"consolidador/internal/infra"
)

const mainFolder = "/RED ASISTENCIAL"

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// memServer serves one in-memory filesystem to any number of pipe sessions.
type memServer struct {
	handlers sftp.Handlers

	mu    sync.Mutex
	dials int
	fail  int
}

func newMemServer(t *testing.T) *memServer {
	t.Helper()
	s := &memServer{handlers: sftp.InMemHandler()}
	sess, err := s.dial(context.Background())
	require.NoError(t, err)
	defer sess.close()

	c := sess.client
	for _, dir := range []string{
		mainFolder + "/CONTRATOS 2024/0662 CLINICA NORTE/ANEXOS",
		mainFolder + "/CONTRATOS 2024/45-2024 HOSPITAL SUR",
		mainFolder + "/CONTRATOS 2024/1662 OTRA IPS",
		mainFolder + "/CONTRATOS 2023",
		mainFolder + "/Contratos 2025 (nuevos)",
		mainFolder + "/PLANTILLAS",
	} {
		require.NoError(t, c.MkdirAll(dir))
	}
	for _, file := range []struct{ name, body string }{
		{mainFolder + "/CONTRATOS 2024/0662 CLINICA NORTE/tarifas.xlsx", "tarifas"},
		{mainFolder + "/CONTRATOS 2024/0662 CLINICA NORTE/.oculto", "x"},
		{mainFolder + "/LEEME.txt", "hola"},
	} {
		f, err := c.Create(file.name)
		require.NoError(t, err)
		_, err = f.Write([]byte(file.body))
		require.NoError(t, err)
		require.NoError(t, f.Close())
	}
	s.dials = 0
	return s
}

func (s *memServer) dial(context.Context) (*session, error) {
	s.mu.Lock()
	s.dials++
	if s.fail > 0 {
		s.fail--
		s.mu.Unlock()
		return nil, errors.New("connection refused")
	}
	s.mu.Unlock()

	serverConn, clientConn := net.Pipe()
	server := sftp.NewRequestServer(serverConn, s.handlers)
	go func() { _ = server.Serve() }()
	client, err := sftp.NewClientPipe(clientConn, clientConn)
	if err != nil {
		server.Close()
		return nil, err
	}
	return &session{client: client, conn: closerFunc(server.Close)}, nil
}

func newTestBrowser(t *testing.T, s *memServer) *Browser {
	t.Helper()
	b := NewBrowser(infra.SFTPConfig{Host: "sftp.example", Port: 2243, RemoteFolder: mainFolder, Retries: 3}, nil)
	b.dial = s.dial
	b.backoff = func(int) time.Duration { return 0 }
	t.Cleanup(b.Disconnect)
	return b
}

func TestListSortsAndHides(t *testing.T) {
	b := newTestBrowser(t, newMemServer(t))
	ctx := context.Background()

	items, err := b.List(ctx, mainFolder)
	require.NoError(t, err)
	var names []string
	for _, it := range items {
		names = append(names, it.Name)
	}
	assert.Equal(t, []string{"CONTRATOS 2023", "CONTRATOS 2024", "Contratos 2025 (nuevos)", "PLANTILLAS", "LEEME.txt"}, names)
	assert.Equal(t, KindFile, items[4].Kind)
	assert.Equal(t, mainFolder+"/LEEME.txt", items[4].Path)
	assert.Equal(t, int64(4), items[4].Size)
	assert.Equal(t, "4.0 B", items[4].HumanSize)
	assert.Regexp(t, regexp.MustCompile(`^\d{4}-\d{2}-\d{2} \d{2}:\d{2}$`), items[4].Modified)

	contract, err := b.List(ctx, mainFolder+"/CONTRATOS 2024/0662 CLINICA NORTE/")
	require.NoError(t, err)
	require.Len(t, contract, 2, "hidden files are skipped")
	assert.Equal(t, mainFolder+"/CONTRATOS 2024/0662 CLINICA NORTE/ANEXOS", contract[0].Path)

	_, err = b.List(ctx, mainFolder+"/NO EXISTE")
	assert.Error(t, err)
}

func TestNavigateParents(t *testing.T) {
	b := newTestBrowser(t, newMemServer(t))
	ctx := context.Background()

	nav, err := b.Navigate(ctx, mainFolder)
	require.NoError(t, err)
	assert.Nil(t, nav.Parent)
	assert.Equal(t, 4, nav.FolderCount)
	assert.Equal(t, 1, nav.FileCount)

	nav, err = b.Navigate(ctx, mainFolder+"/CONTRATOS 2024")
	require.NoError(t, err)
	require.NotNil(t, nav.Parent)
	assert.Equal(t, mainFolder, *nav.Parent)

	nav, err = b.Navigate(ctx, "/")
	require.NoError(t, err)
	assert.Nil(t, nav.Parent)
	assert.Equal(t, []Item{}, nav.Files)
}

func TestYearsNewestFirst(t *testing.T) {
	b := newTestBrowser(t, newMemServer(t))
	years, err := b.Years(context.Background())
	require.NoError(t, err)
	require.Len(t, years, 3)
	assert.Equal(t, 2025, years[0].Year)
	assert.Equal(t, "Contratos 2025 (nuevos)", years[0].Folder)
	assert.Equal(t, YearFolder{Year: 2023, Folder: "CONTRATOS 2023", Path: mainFolder + "/CONTRATOS 2023"}, years[2])

	folders, err := b.MainFolders(context.Background())
	require.NoError(t, err)
	assert.Len(t, folders, 4)
}

func TestFindContract(t *testing.T) {
	b := newTestBrowser(t, newMemServer(t))
	ctx := context.Background()

	m, err := b.FindContract(ctx, "662", "2024")
	require.NoError(t, err)
	require.True(t, m.Found)
	assert.Equal(t, "662-2024", m.Contract)
	assert.Equal(t, "0662 CLINICA NORTE", m.Folder)
	assert.Equal(t, mainFolder+"/CONTRATOS 2024", m.Parent)
	require.NotNil(t, m.Content)
	assert.Equal(t, 1, m.Content.FolderCount)
	assert.Equal(t, 1, m.Content.FileCount)

	m, err = b.FindContract(ctx, "0045", "2024")
	require.NoError(t, err)
	assert.True(t, m.Found)
	assert.Equal(t, "45-2024 HOSPITAL SUR", m.Folder)

	m, err = b.FindContract(ctx, "7", "2024")
	require.NoError(t, err)
	assert.False(t, m.Found)
	assert.False(t, m.YearMissing)
	assert.Equal(t, []string{"7", "07", "007", "0007"}, m.Variants)
	assert.Equal(t, 3, m.YearFolderCount)

	m, err = b.FindContract(ctx, "662", "1999")
	require.NoError(t, err)
	assert.False(t, m.Found)
	assert.True(t, m.YearMissing)
}

func TestOpenDownloadsFiles(t *testing.T) {
	b := newTestBrowser(t, newMemServer(t))
	ctx := context.Background()

	rc, fi, err := b.Open(ctx, mainFolder+"/LEEME.txt")
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "hola", string(body))
	assert.Equal(t, int64(4), fi.Size())

	_, _, err = b.Open(ctx, mainFolder+"/PLANTILLAS")
	assert.Error(t, err)
	_, _, err = b.Open(ctx, mainFolder+"/nada.xlsx")
	assert.Error(t, err)
}

func TestConnectRetriesAndReconnects(t *testing.T) {
	s := newMemServer(t)
	b := newTestBrowser(t, s)
	ctx := context.Background()

	assert.False(t, b.Connected())
	s.fail = 2
	require.NoError(t, b.Connect(ctx))
	assert.Equal(t, 3, s.dials)
	assert.True(t, b.Connected())

	b.Disconnect()
	assert.False(t, b.Connected())
	_, err := b.List(ctx, mainFolder)
	require.NoError(t, err, "operations reconnect on demand")
	assert.Equal(t, 4, s.dials)

	b.Disconnect()
	s.fail = 5
	err = b.Connect(ctx)
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.False(t, b.Connected())
}

func TestVariants(t *testing.T) {
	assert.Equal(t, []string{"662", "0662"}, Variants("662"))
	assert.Equal(t, []string{"1234", "01234"}, Variants("01234"))
	assert.Equal(t, []string{"0", "00", "000", "0000"}, Variants("000"))
	assert.True(t, matchesContract("CONTRATO-0662-2024", Variants("662")))
	assert.True(t, matchesContract("ips 662 norte", Variants("662")))
	assert.False(t, matchesContract("1662 OTRA IPS", Variants("662")))
}
