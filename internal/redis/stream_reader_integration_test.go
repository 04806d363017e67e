package redis

import (
	"context"
	"flag"
	"fmt"
	"os"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

var testRedisURL string

func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() {
		os.Exit(m.Run())
	}

	ctx := context.Background()
	container, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start redis container: %v\n", err)
		os.Exit(1)
	}

	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to get redis endpoint: %v\n", err)
		os.Exit(1)
	}
	testRedisURL = "redis://" + endpoint

	code := m.Run()

	_ = container.Terminate(ctx)
	os.Exit(code)
}

func setupTestReader(t *testing.T) (*StreamReader, *goredis.Client) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	client, err := NewClient(context.Background(), testRedisURL)
	require.NoError(t, err)

	require.NoError(t, client.FlushAll(context.Background()).Err())
	t.Cleanup(func() { _ = client.Close() })

	return NewStreamReader(client), client
}

func addLocation(t *testing.T, client *goredis.Client, sessionKey string, driver int, ts, x, y string) {
	t.Helper()
	err := client.XAdd(context.Background(), &goredis.XAddArgs{
		Stream: LocationStreamKey(sessionKey),
		Values: map[string]any{
			"driver_number": fmt.Sprint(driver),
			"x":             x,
			"y":             y,
			"z":             "0",
			"timestamp":     ts,
			"data":          "{}",
		},
	}).Err()
	require.NoError(t, err)
}

func addCarData(t *testing.T, client *goredis.Client, sessionKey string, driver int, ts string, values map[string]any) {
	t.Helper()
	merged := map[string]any{
		"driver_number": fmt.Sprint(driver),
		"speed":         "0",
		"rpm":           "0",
		"gear":          "0",
		"throttle":      "0",
		"brake":         "0",
		"timestamp":     ts,
		"data":          "{}",
	}
	for k, v := range values {
		merged[k] = v
	}
	err := client.XAdd(context.Background(), &goredis.XAddArgs{
		Stream: CarDataStreamKey(sessionKey),
		Values: merged,
	}).Err()
	require.NoError(t, err)
}

func TestStreamReader_ReadLocationsByTimeRange(t *testing.T) {
	reader, client := setupTestReader(t)

	addLocation(t, client, "9140", 1, "2024-05-12T14:00:00.100Z", "100", "200")
	addLocation(t, client, "9140", 1, "2024-05-12T14:00:00.500Z", "110", "210")
	addLocation(t, client, "9140", 44, "2024-05-12T14:00:01.200Z", "300", "400")

	start := time.Date(2024, 5, 12, 14, 0, 0, 0, time.UTC)
	locations := reader.ReadLocations(context.Background(), "9140", start, start.Add(time.Second))

	require.Len(t, locations, 2)
	assert.Equal(t, 9140, locations[0].SessionKey)
	assert.Equal(t, 1, locations[0].DriverNumber)
	assert.Equal(t, 100.0, locations[0].X)
	assert.Equal(t, 200.0, locations[0].Y)
	assert.True(t, locations[0].Timestamp.Before(locations[1].Timestamp))
}

func TestStreamReader_UpperBoundIsExclusive(t *testing.T) {
	reader, client := setupTestReader(t)

	boundary := "2024-05-12T14:00:01Z"
	addLocation(t, client, "9140", 1, boundary, "1", "1")

	start := time.Date(2024, 5, 12, 14, 0, 0, 0, time.UTC)
	end := time.Date(2024, 5, 12, 14, 0, 1, 0, time.UTC)

	assert.Empty(t, reader.ReadLocations(context.Background(), "9140", start, end))
	assert.Len(t, reader.ReadLocations(context.Background(), "9140", end, end.Add(time.Second)), 1)
}

func TestStreamReader_DropsRecordsWithBadTimestamps(t *testing.T) {
	reader, client := setupTestReader(t)

	addLocation(t, client, "9140", 1, "garbage", "1", "1")
	addLocation(t, client, "9140", 1, "2024-05-12T14:00:00.100Z", "2", "2")

	start := time.Date(2024, 5, 12, 14, 0, 0, 0, time.UTC)
	locations := reader.ReadLocations(context.Background(), "9140", start, start.Add(time.Second))

	require.Len(t, locations, 1)
	assert.Equal(t, 2.0, locations[0].X)
}

func TestStreamReader_MalformedNumericsDegradeToZero(t *testing.T) {
	reader, client := setupTestReader(t)

	addCarData(t, client, "9140", 1, "2024-05-12T14:00:00.100Z", map[string]any{
		"speed": "oops",
		"rpm":   "11500",
	})

	start := time.Date(2024, 5, 12, 14, 0, 0, 0, time.UTC)
	carData := reader.ReadCarData(context.Background(), "9140", start, start.Add(time.Second))

	require.Len(t, carData, 1)
	assert.Equal(t, 0, carData[0].Speed)
	assert.Equal(t, 11500, carData[0].RPM)
}

func TestStreamReader_StreamLengthAndExists(t *testing.T) {
	reader, client := setupTestReader(t)

	assert.Equal(t, int64(0), reader.StreamLength(context.Background(), LocationStreamKey("9140")))
	assert.False(t, reader.StreamExists(context.Background(), LocationStreamKey("9140")))

	addLocation(t, client, "9140", 1, "2024-05-12T14:00:00.100Z", "1", "1")
	addLocation(t, client, "9140", 1, "2024-05-12T14:00:00.200Z", "2", "2")

	assert.Equal(t, int64(2), reader.StreamLength(context.Background(), LocationStreamKey("9140")))
	assert.True(t, reader.StreamExists(context.Background(), LocationStreamKey("9140")))
}

func TestStreamReader_FirstAndLastTimestamp(t *testing.T) {
	reader, client := setupTestReader(t)

	assert.Nil(t, reader.FirstTimestamp(context.Background(), LocationStreamKey("9140")))

	addLocation(t, client, "9140", 1, "2024-05-12T14:00:00.100Z", "1", "1")
	addLocation(t, client, "9140", 1, "2024-05-12T14:59:59.900Z", "2", "2")

	first := reader.FirstTimestamp(context.Background(), LocationStreamKey("9140"))
	require.NotNil(t, first)
	assert.Equal(t, time.Date(2024, 5, 12, 14, 0, 0, 100000000, time.UTC), *first)

	last := reader.LastTimestamp(context.Background(), LocationStreamKey("9140"))
	require.NotNil(t, last)
	assert.Equal(t, time.Date(2024, 5, 12, 14, 59, 59, 900000000, time.UTC), *last)
}

func TestStreamReader_UnreachableStoreReturnsEmpty(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	client := goredis.NewClient(&goredis.Options{Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond})
	t.Cleanup(func() { _ = client.Close() })
	reader := NewStreamReader(client)

	start := time.Date(2024, 5, 12, 14, 0, 0, 0, time.UTC)
	assert.Empty(t, reader.ReadLocations(context.Background(), "9140", start, start.Add(time.Second)))
	assert.Equal(t, int64(0), reader.StreamLength(context.Background(), LocationStreamKey("9140")))
	assert.False(t, reader.StreamExists(context.Background(), LocationStreamKey("9140")))
	assert.Nil(t, reader.FirstTimestamp(context.Background(), LocationStreamKey("9140")))
}
