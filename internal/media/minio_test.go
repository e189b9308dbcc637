package media

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	minioUser     = "eventdesk"
	minioPassword = "eventdesk-secret"
)

func startMinio(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping minio container test in short mode")
	}
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "minio/minio:RELEASE.2024-10-13T13-34-11Z",
			ExposedPorts: []string{"9000/tcp"},
			Env: map[string]string{
				"MINIO_ROOT_USER":     minioUser,
				"MINIO_ROOT_PASSWORD": minioPassword,
			},
			Cmd:        []string{"server", "/data"},
			WaitingFor: wait.ForHTTP("/minio/health/live").WithPort("9000/tcp"),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("minio container unavailable: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "9000/tcp")
	require.NoError(t, err)
	return fmt.Sprintf("%s:%s", host, port.Port())
}

func TestMinioStore_RoundTrip(t *testing.T) {
	endpoint := startMinio(t)
	store, err := NewMinioStore(endpoint, minioUser, minioPassword, "banners-test", false)
	require.NoError(t, err)

	ing := NewIngestor(store, zerolog.Nop())
	data := pngBytes(t, 8)
	ctx := context.Background()

	name, err := ing.Ingest(ctx, Upload{Filename: "poster.png", ContentType: "image/png", Body: bytes.NewReader(data)})
	require.NoError(t, err)

	rc, info, err := store.Open(ctx, name)
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	require.Equal(t, data, body)
	require.Equal(t, int64(len(data)), info.Size)
	require.Equal(t, "image/png", info.ContentType)

	require.ErrorIs(t, store.Put(ctx, name, bytes.NewReader(data), int64(len(data)), "image/png"), ErrExists)

	require.NoError(t, store.Delete(ctx, name))
	_, _, err = store.Open(ctx, name)
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, store.Ping(ctx))
}
