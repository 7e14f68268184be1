package delivery

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/apache/pulsar-client-go/pulsar"
	"github.com/golang/mock/gomock"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/G-Research/phonehome/internal/common/armadacontext"
	"github.com/G-Research/phonehome/internal/statsaggregator/delivery/mocks"
	"github.com/G-Research/phonehome/internal/statsaggregator/snapshot"
)

var testSnapshot = &snapshot.Snapshot{
	SysStats: &snapshot.SystemsStats{
		ClusterId:    "cluster-a",
		Version:      "Unknown",
		AgentVersion: "Unknown",
		Systems:      []snapshot.SystemStats{},
	},
	NodeStats: &snapshot.NodesStats{Histograms: map[string]map[string]int64{}},
	OpsStats:  snapshot.OpsStats{},
}

// phdataServer records the phdata field of every request and answers with the given statuses in turn.
func phdataServer(t *testing.T, tlsServer bool, statuses ...int) (*httptest.Server, func() []string) {
	var received []string
	mu := sync.Mutex{}
	calls := atomic.NewInt32(0)
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, PayloadPath, r.URL.Path)
		assert.NoError(t, r.ParseMultipartForm(1<<20))
		mu.Lock()
		received = append(received, r.FormValue(PayloadFormField))
		mu.Unlock()

		status := http.StatusOK
		if i := int(calls.Inc()) - 1; i < len(statuses) {
			status = statuses[i]
		}
		w.WriteHeader(status)
	})
	var server *httptest.Server
	if tlsServer {
		server = httptest.NewTLSServer(handler)
	} else {
		server = httptest.NewServer(handler)
	}
	t.Cleanup(server.Close)
	return server, func() []string {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), received...)
	}
}

func TestHttpSender_PostsMultipartPayload(t *testing.T) {
	server, received := phdataServer(t, false)
	sender := NewHttpSender(HttpSenderConfig{ListenerUrl: server.URL + "/", Timeout: time.Second})

	require.NoError(t, sender.Send(armadacontext.Background(), testSnapshot))

	require.Len(t, received(), 1)
	expected, err := json.Marshal(testSnapshot)
	require.NoError(t, err)
	assert.JSONEq(t, string(expected), received()[0])
}

func TestHttpSender_RetriesServerErrors(t *testing.T) {
	server, received := phdataServer(t, false, http.StatusServiceUnavailable, http.StatusInternalServerError)
	sender := NewHttpSender(HttpSenderConfig{ListenerUrl: server.URL, MaxAttempts: 3, RetryDelay: time.Millisecond})

	require.NoError(t, sender.Send(armadacontext.Background(), testSnapshot))
	assert.Len(t, received(), 3)
}

func TestHttpSender_GivesUpAfterMaxAttempts(t *testing.T) {
	server, received := phdataServer(t, false, 500, 500, 500, 500)
	sender := NewHttpSender(HttpSenderConfig{ListenerUrl: server.URL, MaxAttempts: 2, RetryDelay: time.Millisecond})

	err := sender.Send(armadacontext.Background(), testSnapshot)
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, 500, statusErr.StatusCode)
	assert.Len(t, received(), 2)
}

func TestHttpSender_DoesNotRetryClientErrors(t *testing.T) {
	server, received := phdataServer(t, false, http.StatusBadRequest)
	sender := NewHttpSender(HttpSenderConfig{ListenerUrl: server.URL, MaxAttempts: 5, RetryDelay: time.Millisecond})

	assert.Error(t, sender.Send(armadacontext.Background(), testSnapshot))
	assert.Len(t, received(), 1)
}

func TestHttpSender_InsecureSkipVerify(t *testing.T) {
	server, received := phdataServer(t, true)

	strict := NewHttpSender(HttpSenderConfig{ListenerUrl: server.URL})
	assert.Error(t, strict.Send(armadacontext.Background(), testSnapshot))
	assert.Empty(t, received())

	insecure := NewHttpSender(HttpSenderConfig{ListenerUrl: server.URL, InsecureSkipVerify: true})
	require.NoError(t, insecure.Send(armadacontext.Background(), testSnapshot))
	assert.Len(t, received(), 1)
}

func TestMultiSender_SendsToAllAndAggregatesErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	ctx := armadacontext.Background()
	first := mocks.NewMockSender(ctrl)
	second := mocks.NewMockSender(ctrl)
	third := mocks.NewMockSender(ctrl)
	first.EXPECT().Send(ctx, testSnapshot).Return(errors.New("first failed"))
	second.EXPECT().Send(ctx, testSnapshot).Return(nil)
	third.EXPECT().Send(ctx, testSnapshot).Return(errors.New("third failed"))

	err := NewMultiSender(first, second, third).Send(ctx, testSnapshot)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "first failed")
	assert.Contains(t, err.Error(), "third failed")
}

func TestMultiSender_NoErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	sender := mocks.NewMockSender(ctrl)
	sender.EXPECT().Send(gomock.Any(), testSnapshot).Return(nil)

	assert.NoError(t, NewMultiSender(sender).Send(armadacontext.Background(), testSnapshot))
	assert.NoError(t, NewMultiSender().Send(armadacontext.Background(), testSnapshot))
}

func TestPulsarSender(t *testing.T) {
	ctrl := gomock.NewController(t)
	producer := mocks.NewMockProducer(ctrl)
	producer.EXPECT().
		Send(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, msg *pulsar.ProducerMessage) (pulsar.MessageID, error) {
			assert.Equal(t, "cluster-a", msg.Key)
			decoded := &snapshot.Snapshot{}
			require.NoError(t, json.Unmarshal(msg.Payload, decoded))
			assert.Equal(t, testSnapshot, decoded)
			return nil, nil
		})
	producer.EXPECT().Close()

	sender := NewPulsarSender(producer)
	require.NoError(t, sender.Send(armadacontext.Background(), testSnapshot))
	sender.Close()
}

func TestPulsarSender_Error(t *testing.T) {
	ctrl := gomock.NewController(t)
	producer := mocks.NewMockProducer(ctrl)
	producer.EXPECT().Send(gomock.Any(), gomock.Any()).Return(nil, errors.New("broker unavailable"))

	err := NewPulsarSender(producer).Send(armadacontext.Background(), testSnapshot)
	assert.ErrorContains(t, err, "broker unavailable")
}

func TestLogSender(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	ctx := armadacontext.New(context.Background(), logrus.NewEntry(logger))

	require.NoError(t, LogSender{}.Send(ctx, snapshot.Empty()))
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.DebugLevel, hook.LastEntry().Level)
	assert.Equal(t, "{}", hook.LastEntry().Data["payload"])
}
