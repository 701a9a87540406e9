package events_test

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/memories-go/events"
)

func TestPublishReachesEverySubscriber(t *testing.T) {
	b := events.NewBroadcaster(4)
	_, first := b.Subscribe()
	_, second := b.Subscribe()
	assert.Equal(t, 2, b.Clients())

	b.Publish("post.created", "p1", map[string]string{"title": "Trip"})

	for _, ch := range []<-chan events.Event{first, second} {
		ev := <-ch
		assert.Equal(t, uint64(1), ev.ID)
		assert.Equal(t, "post.created", ev.Type)
		assert.JSONEq(t, `{"postId":"p1","post":{"title":"Trip"}}`, string(ev.Data))
	}
}

func TestPublishWithoutPostOmitsIt(t *testing.T) {
	b := events.NewBroadcaster(1)
	_, ch := b.Subscribe()
	b.Publish("post.deleted", "p9", nil)
	assert.JSONEq(t, `{"postId":"p9"}`, string((<-ch).Data))
}

func TestSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	b := events.NewBroadcaster(2)
	_, ch := b.Subscribe()

	for i := 0; i < 5; i++ {
		b.Publish("post.liked", "p1", nil)
	}
	assert.Equal(t, uint64(3), b.Dropped())
	assert.Len(t, ch, 2)
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := events.NewBroadcaster(1)
	id, ch := b.Subscribe()
	b.Unsubscribe(id)
	b.Unsubscribe(id)

	_, open := <-ch
	assert.False(t, open)
	assert.Equal(t, 0, b.Clients())
}

func TestConcurrentPublishAndUnsubscribe(t *testing.T) {
	b := events.NewBroadcaster(8)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(2)
		id, _ := b.Subscribe()
		go func() {
			defer wg.Done()
			b.Publish("post.commented", "p1", nil)
		}()
		go func() {
			defer wg.Done()
			b.Unsubscribe(id)
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, b.Clients())
}

func TestHandlerStreamsEvents(t *testing.T) {
	b := events.NewBroadcaster(4)
	srv := httptest.NewServer(b.Handler(time.Hour))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, ": connected\n", line)
	_, err = reader.ReadString('\n')
	require.NoError(t, err)

	b.Publish("post.updated", "p7", map[string]string{"title": "New"})

	var frame []string
	for {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		if line == "" {
			break
		}
		frame = append(frame, line)
	}
	require.Len(t, frame, 3)
	assert.Equal(t, "id: 1", frame[0])
	assert.Equal(t, "event: post.updated", frame[1])

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(frame[2], "data: ")), &body))
	assert.Equal(t, "p7", body["postId"])
}

func TestCloseEndsStreams(t *testing.T) {
	b := events.NewBroadcaster(1)
	srv := httptest.NewServer(b.Handler(time.Hour))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	reader := bufio.NewReader(resp.Body)
	_, err = reader.ReadString('\n')
	require.NoError(t, err)

	b.Close()
	_, err = reader.ReadString('\n') // blank line after the connected comment
	require.NoError(t, err)
	_, err = reader.ReadString('\n')
	assert.Error(t, err)
}

// flushOnlyWriter hides every ResponseWriter capability except Flush.
type flushOnlyWriter struct {
	w http.ResponseWriter
}

func (f flushOnlyWriter) Header() http.Header         { return f.w.Header() }
func (f flushOnlyWriter) Write(p []byte) (int, error) { return f.w.Write(p) }
func (f flushOnlyWriter) WriteHeader(code int)        { f.w.WriteHeader(code) }
func (f flushOnlyWriter) Flush()                      { f.w.(http.Flusher).Flush() }

func TestHandlerLogsWhenDeadlineCannotBeCleared(t *testing.T) {
	hook := test.NewGlobal()
	defer hook.Reset()
	logrus.SetLevel(logrus.DebugLevel)
	defer logrus.SetLevel(logrus.InfoLevel)

	b := events.NewBroadcaster(1)
	stream := b.Handler(time.Hour)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stream(flushOnlyWriter{w: w}, r)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	line, err := bufio.NewReader(resp.Body).ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, ": connected\n", line)

	var found bool
	for _, entry := range hook.AllEntries() {
		if entry.Level == logrus.DebugLevel && strings.Contains(entry.Message, "write deadline not cleared") {
			found = true
			assert.ErrorIs(t, entry.Data[logrus.ErrorKey].(error), http.ErrNotSupported)
		}
	}
	assert.True(t, found)
}
